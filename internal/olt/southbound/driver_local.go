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

package southbound

import (
	"sync"

	"github.com/opencord/olt/internal/olt/types"
	log "github.com/sirupsen/logrus"
)

var driverLogger = log.WithFields(log.Fields{
	"module": "DRIVER",
})

// LoopbackDriver accepts every objective and reflects the matching
// rule events back, so the core converges without hardware. Used for
// standalone runs and tests; production deployments plug a real
// driver.
type LoopbackDriver struct {
	mu      sync.Mutex
	handler func(FlowRuleEvent)
}

func NewLoopbackDriver() *LoopbackDriver {
	return &LoopbackDriver{}
}

// SetEventHandler wires the flow rule event consumer.
func (d *LoopbackDriver) SetEventHandler(handler func(FlowRuleEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = handler
}

func (d *LoopbackDriver) emit(eventType FlowRuleEventType, rule FlowRule) {
	d.mu.Lock()
	handler := d.handler
	d.mu.Unlock()
	if handler != nil {
		handler(FlowRuleEvent{Type: eventType, Rule: rule})
	}
}

func (d *LoopbackDriver) Filter(device types.DeviceID, flt FilteringObjective, cb ObjectiveCallback) {
	driverLogger.WithFields(log.Fields{
		"device":   device,
		"inPort":   flt.InPort,
		"ethType":  flt.Selector.EthType,
		"install":  flt.Install,
		"priority": flt.Priority,
	}).Debug("Accepted filtering objective")
	cb(nil)
	d.reflect(device, flt.AppID, flt.Selector, flt.Treatment, flt.Priority, flt.Install)
}

func (d *LoopbackDriver) Forward(device types.DeviceID, fwd ForwardingObjective, cb ObjectiveCallback) {
	driverLogger.WithFields(log.Fields{
		"device":   device,
		"inPort":   fwd.Selector.InPort,
		"install":  fwd.Install,
		"priority": fwd.Priority,
	}).Debug("Accepted forwarding objective")
	cb(nil)
	d.reflect(device, fwd.AppID, fwd.Selector, fwd.Treatment, fwd.Priority, fwd.Install)
}

func (d *LoopbackDriver) reflect(device types.DeviceID, appID string, selector TrafficSelector,
	treatment *TrafficTreatment, priority int, install bool) {

	rule := FlowRule{
		Device:    device,
		AppID:     appID,
		Selector:  selector,
		Treatment: treatment,
		Priority:  priority,
	}
	if install {
		d.emit(RuleAddRequested, rule)
		d.emit(RuleAdded, rule)
	} else {
		d.emit(RuleRemoveRequested, rule)
		d.emit(RuleRemoved, rule)
	}
}

func (d *LoopbackDriver) SubmitMeter(device types.DeviceID, req MeterRequest, cb ObjectiveCallback) {
	driverLogger.WithFields(log.Fields{
		"device": device,
		"meter":  req.Meter,
	}).Debug("Accepted meter")
	cb(nil)
}

func (d *LoopbackDriver) WithdrawMeter(device types.DeviceID, meter MeterID, cb ObjectiveCallback) {
	driverLogger.WithFields(log.Fields{
		"device": device,
		"meter":  meter,
	}).Debug("Withdrew meter")
	cb(nil)
}
