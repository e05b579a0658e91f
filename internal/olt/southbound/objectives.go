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

// Package southbound defines the contract between the provisioning core
// and the driver that programs flows and meters on the hardware.
package southbound

import (
	"fmt"

	"github.com/opencord/olt/internal/olt/types"
)

// MeterID identifies a meter on a device. Zero means "no meter".
type MeterID uint32

// ObjectiveError is the failure reported by the driver for an
// objective.
type ObjectiveError string

const (
	ErrBadParams ObjectiveError = "BADPARAMS"
	ErrUnknown   ObjectiveError = "UNKNOWN"
	ErrTransient ObjectiveError = "TRANSIENT"
)

func (e ObjectiveError) Error() string {
	return string(e)
}

// ObjectiveCallback is invoked once per objective; a nil error means
// the driver accepted and applied it.
type ObjectiveCallback func(err error)

// TrafficSelector is the match half of an objective.
type TrafficSelector struct {
	InPort    types.PortNumber
	EthType   uint16
	IPProto   uint8
	UdpSrc    uint16
	UdpDst    uint16
	VlanID    *types.VlanID
	InnerVlan *types.VlanID
	VlanPcp   *uint8
	EthDst    string
	Metadata  *uint64
}

// MatchVlan returns the VLAN criterion, or VlanNone when absent.
func (s TrafficSelector) MatchVlan() types.VlanID {
	if s.VlanID == nil {
		return types.VlanNone
	}
	return *s.VlanID
}

// InstructionType enumerates treatment instructions.
type InstructionType int

const (
	InstrPushVlan InstructionType = iota
	InstrPopVlan
	InstrSetVlanID
	InstrSetVlanPcp
	InstrMeter
	InstrWriteMetadata
	InstrOutput
)

func (t InstructionType) String() string {
	switch t {
	case InstrPushVlan:
		return "PUSH_VLAN"
	case InstrPopVlan:
		return "POP_VLAN"
	case InstrSetVlanID:
		return "SET_VLAN_ID"
	case InstrSetVlanPcp:
		return "SET_VLAN_PCP"
	case InstrMeter:
		return "METER"
	case InstrWriteMetadata:
		return "WRITE_METADATA"
	case InstrOutput:
		return "OUTPUT"
	default:
		return "UNKNOWN"
	}
}

// Instruction is one treatment action. Only the fields relevant to its
// type are set.
type Instruction struct {
	Type     InstructionType
	Vlan     types.VlanID
	Pcp      uint8
	Meter    MeterID
	Metadata uint64
	Port     types.PortNumber
}

func (i Instruction) String() string {
	switch i.Type {
	case InstrSetVlanID:
		return fmt.Sprintf("SET_VLAN_ID:%s", i.Vlan)
	case InstrSetVlanPcp:
		return fmt.Sprintf("SET_VLAN_PCP:%d", i.Pcp)
	case InstrMeter:
		return fmt.Sprintf("METER:%d", i.Meter)
	case InstrWriteMetadata:
		return fmt.Sprintf("WRITE_METADATA:%#x", i.Metadata)
	case InstrOutput:
		return fmt.Sprintf("OUTPUT:%d", i.Port)
	default:
		return i.Type.String()
	}
}

// TrafficTreatment is the ordered action half of an objective.
type TrafficTreatment struct {
	Instructions []Instruction
}

// Meters returns every meter id referenced by the treatment.
func (t *TrafficTreatment) Meters() []MeterID {
	var out []MeterID
	for _, i := range t.Instructions {
		if i.Type == InstrMeter {
			out = append(out, i.Meter)
		}
	}
	return out
}

// SetVlans returns the VLAN ids pushed or set by the treatment, in
// order.
func (t *TrafficTreatment) SetVlans() []types.VlanID {
	var out []types.VlanID
	for _, i := range t.Instructions {
		if i.Type == InstrSetVlanID {
			out = append(out, i.Vlan)
		}
	}
	return out
}

// TreatmentBuilder assembles a TrafficTreatment instruction by
// instruction.
type TreatmentBuilder struct {
	treatment TrafficTreatment
}

func NewTreatmentBuilder() *TreatmentBuilder {
	return &TreatmentBuilder{}
}

func (b *TreatmentBuilder) PushVlan() *TreatmentBuilder {
	b.treatment.Instructions = append(b.treatment.Instructions, Instruction{Type: InstrPushVlan})
	return b
}

func (b *TreatmentBuilder) PopVlan() *TreatmentBuilder {
	b.treatment.Instructions = append(b.treatment.Instructions, Instruction{Type: InstrPopVlan})
	return b
}

func (b *TreatmentBuilder) SetVlanID(vlan types.VlanID) *TreatmentBuilder {
	b.treatment.Instructions = append(b.treatment.Instructions, Instruction{Type: InstrSetVlanID, Vlan: vlan})
	return b
}

func (b *TreatmentBuilder) SetVlanPcp(pcp uint8) *TreatmentBuilder {
	b.treatment.Instructions = append(b.treatment.Instructions, Instruction{Type: InstrSetVlanPcp, Pcp: pcp})
	return b
}

func (b *TreatmentBuilder) Meter(meter MeterID) *TreatmentBuilder {
	b.treatment.Instructions = append(b.treatment.Instructions, Instruction{Type: InstrMeter, Meter: meter})
	return b
}

func (b *TreatmentBuilder) WriteMetadata(metadata uint64) *TreatmentBuilder {
	b.treatment.Instructions = append(b.treatment.Instructions, Instruction{Type: InstrWriteMetadata, Metadata: metadata})
	return b
}

func (b *TreatmentBuilder) SetOutput(port types.PortNumber) *TreatmentBuilder {
	b.treatment.Instructions = append(b.treatment.Instructions, Instruction{Type: InstrOutput, Port: port})
	return b
}

func (b *TreatmentBuilder) Build() *TrafficTreatment {
	t := b.treatment
	return &t
}

// FilteringObjective is a trap-style filter keyed on an ingress port.
type FilteringObjective struct {
	InPort    types.PortNumber
	Selector  TrafficSelector
	Treatment *TrafficTreatment
	Priority  int
	Install   bool
	AppID     string
}

// ForwardingObjective is a versatile match-to-treatment rule.
type ForwardingObjective struct {
	Selector  TrafficSelector
	Treatment *TrafficTreatment
	Priority  int
	Install   bool
	AppID     string
}

// Band is one rate bucket of a meter.
type Band struct {
	Rate      int64
	BurstSize int64
}

// MeterRequest carries the bands synthesized from a bandwidth profile.
type MeterRequest struct {
	Meter     MeterID
	AppID     string
	Committed Band
	Exceeded  Band
	Assured   Band
}

// Driver pushes objectives and meters to an access device. Every call
// completes asynchronously through the callback.
type Driver interface {
	Filter(device types.DeviceID, flt FilteringObjective, cb ObjectiveCallback)
	Forward(device types.DeviceID, fwd ForwardingObjective, cb ObjectiveCallback)
	SubmitMeter(device types.DeviceID, req MeterRequest, cb ObjectiveCallback)
	WithdrawMeter(device types.DeviceID, meter MeterID, cb ObjectiveCallback)
}
