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
	"net/url"
	"os"
	"strconv"

	"github.com/jessevdk/go-flags"
	"github.com/olekukonko/tablewriter"
	"github.com/opencord/olt/internal/olt/api"
	log "github.com/sirupsen/logrus"
)

type SubscriberList struct{}

type SubscriberProvision struct {
	STag int `long:"stag" default:"-1" description:"S-Tag of the single service to provision"`
	CTag int `long:"ctag" default:"-1" description:"C-Tag of the single service to provision"`
	TpID int `long:"tpid" default:"-1" description:"Technology profile of the single service to provision"`
	Args struct {
		SubscriberID string
	} `positional-args:"yes" required:"yes"`
}

type SubscriberRemove struct {
	STag int `long:"stag" default:"-1" description:"S-Tag of the single service to remove"`
	CTag int `long:"ctag" default:"-1" description:"C-Tag of the single service to remove"`
	TpID int `long:"tpid" default:"-1" description:"Technology profile of the single service to remove"`
	Args struct {
		SubscriberID string
	} `positional-args:"yes" required:"yes"`
}

type SubscriberStatus struct{}

type subscriberOptions struct {
	List      SubscriberList      `command:"list"`
	Provision SubscriberProvision `command:"provision"`
	Remove    SubscriberRemove    `command:"remove"`
	Status    SubscriberStatus    `command:"status"`
}

func RegisterSubscriberCommands(parser *flags.Parser) {
	_, err := parser.AddCommand("subscriber", "Subscriber Commands", "Commands to provision and inspect subscribers", &subscriberOptions{})
	if err != nil {
		log.Fatalf("Cannot register subscriber commands: %s", err)
	}
}

func (o *SubscriberList) Execute(args []string) error {
	var entries []api.SubscriberEntry
	if err := doRequest(http.MethodGet, "/v1/subscribers", nil, &entries); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Device", "Port", "PortName", "CTag", "STag", "TpID"})
	for _, e := range entries {
		table.Append([]string{
			string(e.DeviceID),
			strconv.FormatUint(uint64(e.Port), 10),
			e.PortName,
			e.CTag.String(),
			e.STag.String(),
			strconv.Itoa(e.TpID),
		})
	}
	table.Render()
	return nil
}

func (o *SubscriberStatus) Execute(args []string) error {
	var entries []api.StatusEntry
	if err := doRequest(http.MethodGet, "/v1/status", nil, &entries); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Device", "Port", "PortName", "CTag", "STag", "TpID", "Eapol", "Subscriber", "Dhcp"})
	for _, e := range entries {
		table.Append([]string{
			string(e.DeviceID),
			strconv.FormatUint(uint64(e.Port), 10),
			e.PortName,
			e.CTag.String(),
			e.STag.String(),
			strconv.Itoa(e.TpID),
			e.DefaultEapolStatus,
			e.SubscriberFlowsStatus,
			e.DhcpStatus,
		})
	}
	table.Render()
	return nil
}

func (o *SubscriberProvision) Execute(args []string) error {
	query := tagQuery(o.STag, o.CTag, o.TpID)
	path := fmt.Sprintf("/v1/subscribers/%s", o.Args.SubscriberID)
	if err := doRequest(http.MethodPost, path, query, nil); err != nil {
		return err
	}
	fmt.Println("provisioned")
	return nil
}

func (o *SubscriberRemove) Execute(args []string) error {
	query := tagQuery(o.STag, o.CTag, o.TpID)
	path := fmt.Sprintf("/v1/subscribers/%s", o.Args.SubscriberID)
	if err := doRequest(http.MethodDelete, path, query, nil); err != nil {
		return err
	}
	fmt.Println("removed")
	return nil
}

func tagQuery(sTag, cTag, tpID int) url.Values {
	query := url.Values{}
	if sTag >= 0 {
		query.Set("sTag", strconv.Itoa(sTag))
	}
	if cTag >= 0 {
		query.Set("cTag", strconv.Itoa(cTag))
	}
	if tpID >= 0 {
		query.Set("tpId", strconv.Itoa(tpID))
	}
	return query
}
