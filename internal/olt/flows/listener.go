/*
 * Copyright 2018-present Open Networking Foundation

 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at

 * http://www.apache.org/licenses/LICENSE-2.0

 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package flows

import (
	"github.com/opencord/olt/internal/olt/sadis"
	"github.com/opencord/olt/internal/olt/southbound"
	"github.com/opencord/olt/internal/olt/store"
	"github.com/opencord/olt/internal/olt/types"
	log "github.com/sirupsen/logrus"
)

var listenerLogger = log.WithFields(log.Fields{
	"module": "FLOW_LISTENER",
})

// PortProvider is the inventory lookup the listener needs to resolve a
// rule back to a port.
type PortProvider interface {
	PortByNumber(device types.DeviceID, number types.PortNumber) *types.Port
	IsNniPort(port types.Port) bool
}

// DefaultEapolKey is the canonical ServiceKey of the pre-provisioning
// authentication trap on a UNI.
func DefaultEapolKey(port types.Port, defaultTpID int) types.ServiceKey {
	return types.ServiceKey{
		Device:   port.Device,
		Port:     port.Number,
		PortName: port.Name,
		CTag:     types.EapolDefaultVlan,
		STag:     types.VlanNone,
		TpID:     defaultTpID,
	}
}

// NniKey is the canonical ServiceKey for NNI trap flows.
func NniKey(port types.Port) types.ServiceKey {
	return types.ServiceKey{
		Device:   port.Device,
		Port:     port.Number,
		PortName: port.Name,
		CTag:     types.VlanNone,
		STag:     types.VlanNone,
		TpID:     types.NoneTpID,
	}
}

type ruleClass int

const (
	classUnknown ruleClass = iota
	classDefaultEapol
	classDhcp
	classData
)

// Listener reconciles flow rule events from the southbound back into
// the status store.
type Listener struct {
	AppID       string
	DefaultTpID int
	Ports       PortProvider
	Sadis       sadis.Service
	Statuses    *store.StatusStore
	IsMine      func(types.DeviceID) bool
}

// HandleEvent processes one flow rule event.
func (l *Listener) HandleEvent(event southbound.FlowRuleEvent) {
	rule := event.Rule
	if rule.AppID != l.AppID {
		return
	}
	if l.IsMine != nil && !l.IsMine(rule.Device) {
		return
	}

	port := l.Ports.PortByNumber(rule.Device, rule.Selector.InPort)
	if port == nil {
		listenerLogger.WithFields(log.Fields{
			"device": rule.Device,
			"port":   rule.Selector.InPort,
			"type":   event.Type,
		}).Debug("Ignoring flow event for unknown port")
		return
	}

	status, ok := statusFor(event.Type)
	if !ok {
		return
	}

	switch l.classify(rule, *port) {
	case classDefaultEapol:
		key := DefaultEapolKey(*port, l.DefaultTpID)
		l.Statuses.Update(key, store.FieldUpdate{DefaultEapol: store.Status(status)})
	case classDhcp:
		key, ok := l.serviceKeyFor(rule, *port, dhcpFlowVlan(rule))
		if !ok {
			return
		}
		l.Statuses.Update(key, store.FieldUpdate{Dhcp: store.Status(status)})
	case classData:
		key, ok := l.serviceKeyFor(rule, *port, rule.Selector.MatchVlan())
		if !ok {
			return
		}
		l.Statuses.Update(key, store.FieldUpdate{SubscriberFlows: store.Status(status)})
	}
}

func statusFor(eventType southbound.FlowRuleEventType) (types.OltFlowsStatus, bool) {
	switch eventType {
	case southbound.RuleAddRequested:
		return types.StatusPendingAdd, true
	case southbound.RuleAdded:
		return types.StatusAdded, true
	case southbound.RuleRemoveRequested:
		return types.StatusPendingRemove, true
	case southbound.RuleRemoved:
		return types.StatusRemoved, true
	default:
		return types.StatusNone, false
	}
}

func (l *Listener) classify(rule southbound.FlowRule, port types.Port) ruleClass {
	if rule.Selector.EthType == types.EthTypeEapol {
		if rule.Treatment != nil {
			for _, vlan := range rule.Treatment.SetVlans() {
				if vlan == types.EapolDefaultVlan {
					return classDefaultEapol
				}
			}
		}
		return classUnknown
	}
	if rule.Selector.IPProto == types.IPProtoUDP &&
		(rule.Selector.UdpSrc == types.DhcpV4ServerPort || rule.Selector.UdpSrc == types.DhcpV4ClientPort) {
		return classDhcp
	}
	if rule.Selector.VlanID != nil {
		if l.Ports.IsNniPort(port) {
			// tracking a data flow per subscriber on the NNI would
			// explode the store
			return classUnknown
		}
		return classData
	}
	return classUnknown
}

// dhcpFlowVlan extracts the VLAN the DHCP trap pushes towards the PON.
func dhcpFlowVlan(rule southbound.FlowRule) types.VlanID {
	if rule.Treatment != nil {
		if vlans := rule.Treatment.SetVlans(); len(vlans) > 0 {
			return vlans[0]
		}
	}
	return types.VlanNone
}

// serviceKeyFor resolves a rule to the service it belongs to, matching
// the flow VLAN against the subscriber's tag list. The first matching
// tag wins; an additional match is reported because overlapping VLAN
// semantics make the choice ambiguous.
func (l *Listener) serviceKeyFor(rule southbound.FlowRule, port types.Port, vlan types.VlanID) (types.ServiceKey, bool) {
	if l.Ports.IsNniPort(port) {
		return NniKey(port), true
	}

	sub := l.Sadis.SubscriberByPortName(port.Name)
	if sub == nil {
		listenerLogger.WithFields(log.Fields{
			"device":   rule.Device,
			"portName": port.Name,
		}).Debug("No subscriber entry for flow event port")
		return types.ServiceKey{}, false
	}

	var found *sadis.UniTagInformation
	for i := range sub.UniTagList {
		uti := &sub.UniTagList[i]
		if uti.PonCTag == vlan || uti.PonSTag == vlan || uti.UniTagMatch == vlan {
			if found == nil {
				found = uti
				continue
			}
			listenerLogger.WithFields(log.Fields{
				"portName": port.Name,
				"vlan":     vlan,
				"service":  uti.ServiceName,
				"chosen":   found.ServiceName,
			}).Warn("Multiple services match the flow VLAN, keeping the first")
		}
	}
	if found == nil {
		listenerLogger.WithFields(log.Fields{
			"portName": port.Name,
			"vlan":     vlan,
		}).Debug("No service matches the flow VLAN")
		return types.ServiceKey{}, false
	}
	return found.ServiceKey(port), true
}
