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
	"fmt"
	"net/http"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
)

type OltList struct{}

type OltPurge struct {
	Args struct {
		DeviceID string
	} `positional-args:"yes" required:"yes"`
}

type oltOptions struct {
	List  OltList  `command:"list"`
	Purge OltPurge `command:"purge"`
}

func RegisterOltCommands(parser *flags.Parser) {
	_, err := parser.AddCommand("olt", "OLT Commands", "Commands to inspect and purge access devices", &oltOptions{})
	if err != nil {
		log.Fatalf("Cannot register olt commands: %s", err)
	}
}

func (o *OltList) Execute(args []string) error {
	var devices []string
	if err := doRequest(http.MethodGet, "/v1/olts", nil, &devices); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Device"})
	for _, d := range devices {
		table.Append([]string{d})
	}
	table.Render()
	return nil
}

func (o *OltPurge) Execute(args []string) error {
	path := fmt.Sprintf("/v1/devices/%s/flows", o.Args.DeviceID)
	if err := doRequest(http.MethodDelete, path, nil, nil); err != nil {
		return err
	}
	fmt.Println("purged")
	return nil
}
