/*
 * Portions copyright 2019-present Open Networking Foundation
 * Original copyright 2019-present Ciena Corporation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package commands

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"

	"github.com/opencord/olt/internal/oltctl/config"
)

// doRequest performs one REST call against the vOLT API and decodes
// the JSON response into out when it is non-nil.
func doRequest(method, path string, query url.Values, out interface{}) error {
	config.ProcessGlobalOptions()

	u := url.URL{
		Scheme:   "http",
		Host:     config.GlobalConfig.Server,
		Path:     path,
		RawQuery: query.Encode(),
	}

	req, err := http.NewRequest(method, u.String(), nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: config.GlobalConfig.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		apiError := struct {
			Error string `json:"error"`
		}{}
		if err := json.Unmarshal(body, &apiError); err == nil && apiError.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiError.Error)
		}
		return fmt.Errorf("%s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
