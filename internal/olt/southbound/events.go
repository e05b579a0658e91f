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

import "github.com/opencord/olt/internal/olt/types"

// FlowRuleEventType enumerates the flow rule events emitted by the
// driver as rules move through its store.
type FlowRuleEventType string

const (
	RuleAddRequested    FlowRuleEventType = "RULE_ADD_REQUESTED"
	RuleAdded           FlowRuleEventType = "RULE_ADDED"
	RuleRemoveRequested FlowRuleEventType = "RULE_REMOVE_REQUESTED"
	RuleRemoved         FlowRuleEventType = "RULE_REMOVED"
)

// FlowRule is the driver's view of one installed (or in-flight) rule.
type FlowRule struct {
	Device    types.DeviceID
	AppID     string
	Selector  TrafficSelector
	Treatment *TrafficTreatment
	Priority  int
}

// FlowRuleEvent is one rule lifecycle notification.
type FlowRuleEvent struct {
	Type FlowRuleEventType
	Rule FlowRule
}

// MeterEventType enumerates meter lifecycle notifications.
type MeterEventType string

const (
	MeterInstalled          MeterEventType = "METER_INSTALLED"
	MeterInstallFailed      MeterEventType = "METER_INSTALL_FAILED"
	MeterReferenceCountZero MeterEventType = "METER_REFERENCE_COUNT_ZERO"
)

// MeterEvent is one meter lifecycle notification.
type MeterEvent struct {
	Type   MeterEventType
	Device types.DeviceID
	Meter  MeterID
	AppID  string
}
