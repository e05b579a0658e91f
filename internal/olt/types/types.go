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

package types

import (
	"fmt"
	"strings"
)

// DeviceID identifies an access device (OLT).
type DeviceID string

// PortNumber identifies a port on a device.
type PortNumber uint32

const (
	// PortController is the reserved output port that traps packets to the controller.
	PortController PortNumber = 0xfffffffd
	// PortLocal is the reserved local port of a device, never provisioned.
	PortLocal PortNumber = 0xfffffffe
)

// VlanID is a dot1q VLAN id, with reserved negative values for
// wildcard and absent tags.
type VlanID int16

const (
	// VlanNone means no VLAN tag is expected or carried.
	VlanNone VlanID = -2
	// VlanAny matches any VLAN tag.
	VlanAny VlanID = -1
	// VlanNoVID is the zero VLAN id, treated as "not set" on matches.
	VlanNoVID VlanID = 0
	// VlanMax is the highest valid VLAN id.
	VlanMax VlanID = 4095

	// EapolDefaultVlan tags the authentication trap installed before a
	// subscriber is provisioned.
	EapolDefaultVlan VlanID = 4091
)

func (v VlanID) String() string {
	switch v {
	case VlanNone:
		return "None"
	case VlanAny:
		return "Any"
	default:
		return fmt.Sprintf("%d", int16(v))
	}
}

// Valid reports whether v is a concrete, usable VLAN id.
func (v VlanID) Valid() bool {
	return v > VlanNoVID && v <= VlanMax
}

const (
	// NoPcp marks an unset 802.1p priority.
	NoPcp int = -1
	// NoneTpID marks an unset technology profile id.
	NoneTpID int = -1
)

// Ethernet types matched by trap flows.
const (
	EthTypeIPv4   uint16 = 0x0800
	EthTypeEapol  uint16 = 0x888e
	EthTypePppoed uint16 = 0x8863
	EthTypeLldp   uint16 = 0x88cc
	EthTypeIPv6   uint16 = 0x86dd
)

// IP protocol numbers matched by trap flows.
const (
	IPProtoUDP  uint8 = 17
	IPProtoIgmp uint8 = 2
)

// DHCP UDP ports, v4 and v6.
const (
	DhcpV4ServerPort uint16 = 67
	DhcpV4ClientPort uint16 = 68
	DhcpV6ServerPort uint16 = 547
	DhcpV6ClientPort uint16 = 546
)

const nniPortNamePrefix = "nni-"

// ConnectPoint is a (device, port) pair.
type ConnectPoint struct {
	Device DeviceID
	Port   PortNumber
}

func (cp ConnectPoint) String() string {
	return fmt.Sprintf("%s/%d", cp.Device, cp.Port)
}

// Port is a device port as reported by the southbound.
type Port struct {
	Device  DeviceID
	Number  PortNumber
	Name    string
	Enabled bool
}

func (p Port) ConnectPoint() ConnectPoint {
	return ConnectPoint{Device: p.Device, Port: p.Number}
}

// HasNniName reports whether the port name carries the NNI signature.
// Used as a fallback when the uplink port is misconfigured.
func (p Port) HasNniName() bool {
	return strings.HasPrefix(p.Name, nniPortNamePrefix)
}

// Device is an access device as reported by the southbound.
type Device struct {
	ID           DeviceID
	SerialNumber string
}

// OltFlowsStatus tracks one family of flows for a service on a port.
type OltFlowsStatus int

const (
	StatusNone OltFlowsStatus = iota
	StatusPendingAdd
	StatusAdded
	StatusPendingRemove
	StatusRemoved
	StatusError
)

func (s OltFlowsStatus) String() string {
	switch s {
	case StatusNone:
		return "NONE"
	case StatusPendingAdd:
		return "PENDING_ADD"
	case StatusAdded:
		return "ADDED"
	case StatusPendingRemove:
		return "PENDING_REMOVE"
	case StatusRemoved:
		return "REMOVED"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// HasFlow reports whether the status means a flow is present or about
// to be.
func (s OltFlowsStatus) HasFlow() bool {
	return s != StatusNone && s != StatusRemoved
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition. Same-state updates are always allowed so that
// re-executed tasks stay idempotent.
func (s OltFlowsStatus) CanTransitionTo(next OltFlowsStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusNone, StatusRemoved:
		return next == StatusPendingAdd
	case StatusPendingAdd:
		return next == StatusAdded || next == StatusError || next == StatusPendingRemove
	case StatusAdded:
		return next == StatusPendingRemove || next == StatusError
	case StatusPendingRemove:
		return next == StatusRemoved || next == StatusError
	case StatusError:
		return next == StatusPendingAdd || next == StatusPendingRemove
	default:
		return false
	}
}

// OltPortStatus is the per-service flow bookkeeping record.
type OltPortStatus struct {
	DefaultEapolStatus    OltFlowsStatus
	SubscriberFlowsStatus OltFlowsStatus
	DhcpStatus            OltFlowsStatus
}

// HasAnyFlow reports whether any of the three families is present or in
// progress.
func (s OltPortStatus) HasAnyFlow() bool {
	return s.DefaultEapolStatus.HasFlow() ||
		s.SubscriberFlowsStatus.HasFlow() ||
		s.DhcpStatus.HasFlow()
}

// ServiceKey uniquely identifies one (port, service) combination.
// The c tag, s tag and technology profile id disambiguate multiple
// services on the same UNI.
type ServiceKey struct {
	Device   DeviceID
	Port     PortNumber
	PortName string
	CTag     VlanID
	STag     VlanID
	TpID     int
}

func (k ServiceKey) String() string {
	return fmt.Sprintf("%s/%d[%s] c:%s s:%s tp:%d", k.Device, k.Port, k.PortName, k.CTag, k.STag, k.TpID)
}

func (k ServiceKey) ConnectPoint() ConnectPoint {
	return ConnectPoint{Device: k.Device, Port: k.Port}
}
