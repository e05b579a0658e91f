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

// Package flows builds the trap and data-plane directives for access
// device ports and reconciles rule events back into flow statuses.
package flows

import (
	"net"

	"github.com/opencord/olt/internal/olt/sadis"
	"github.com/opencord/olt/internal/olt/southbound"
	"github.com/opencord/olt/internal/olt/types"
)

const (
	// MaxPriority is used for trap filters.
	MaxPriority = 10000
	// MinPriority is used for data-plane forwards.
	MinPriority = 1000
)

// Builder translates service definitions into flow directives. It has
// no state beyond its configuration and performs no I/O.
type Builder struct {
	AppID                string
	DefaultTechProfileID int
}

func NewBuilder(appID string, defaultTpID int) *Builder {
	return &Builder{AppID: appID, DefaultTechProfileID: defaultTpID}
}

// Metadata builds the 64 bit write-metadata value for data-plane
// forwards: inner VLAN in the two most significant bytes, technology
// profile id in the next two, egress port in the low four.
func (b *Builder) Metadata(innerVlan types.VlanID, tpID int, egress types.PortNumber) uint64 {
	if tpID == types.NoneTpID {
		tpID = b.DefaultTechProfileID
	}
	var vlan uint64
	if innerVlan.Valid() {
		vlan = uint64(innerVlan)
	}
	return vlan<<48 | uint64(uint16(tpID))<<32 | uint64(egress)
}

// TechProfMetadata builds the write-metadata value for trap flows,
// which carry no egress port; the low bits optionally carry the
// upstream OLT meter id.
func (b *Builder) TechProfMetadata(innerVlan types.VlanID, tpID int, oltMeter southbound.MeterID) uint64 {
	if tpID == types.NoneTpID {
		tpID = b.DefaultTechProfileID
	}
	var vlan uint64
	if innerVlan.Valid() {
		vlan = uint64(innerVlan)
	}
	return vlan<<48 | uint64(uint16(tpID))<<32 | uint64(oltMeter)
}

// EapolFlow builds the authentication trap for a UNI, tagged with the
// given VLAN. The default trap uses EapolDefaultVlan and carries no
// inner VLAN in its metadata.
func (b *Builder) EapolFlow(port types.PortNumber, vlan types.VlanID, tpID int,
	meter, oltMeter southbound.MeterID, install bool) southbound.FilteringObjective {

	metaVlan := vlan
	if vlan == types.EapolDefaultVlan {
		metaVlan = types.VlanNone
	}
	t := southbound.NewTreatmentBuilder()
	if meter != 0 {
		t.Meter(meter)
	}
	t.WriteMetadata(b.TechProfMetadata(metaVlan, tpID, oltMeter)).
		PushVlan().
		SetVlanID(vlan).
		SetOutput(types.PortController)

	return southbound.FilteringObjective{
		InPort: port,
		Selector: southbound.TrafficSelector{
			InPort:  port,
			EthType: types.EthTypeEapol,
		},
		Treatment: t.Build(),
		Priority:  MaxPriority,
		Install:   install,
		AppID:     b.AppID,
	}
}

// DhcpFlow builds one DHCP trap for a direction and IP version. For
// the upstream direction the UNI tag is matched and the pon c tag is
// applied; the downstream (NNI) variant matches the optional trap VLAN
// and leaves tags alone.
func (b *Builder) DhcpFlow(port types.PortNumber, uti *sadis.UniTagInformation,
	meter southbound.MeterID, v6, upstream, install bool, nniTrapVid types.VlanID) southbound.FilteringObjective {

	var ethType uint16 = types.EthTypeIPv4
	udpSrc, udpDst := types.DhcpV4ClientPort, types.DhcpV4ServerPort
	if v6 {
		ethType = types.EthTypeIPv6
		udpSrc, udpDst = types.DhcpV6ServerPort, types.DhcpV6ClientPort
	}
	if !upstream {
		udpSrc, udpDst = udpDst, udpSrc
	}

	tpID := types.NoneTpID
	cTag := types.VlanNone
	uniTagMatch := types.VlanAny
	pcp := types.NoPcp
	if uti != nil {
		tpID = uti.TechnologyProfileID
		cTag = uti.PonCTag
		uniTagMatch = uti.UniTagMatch
		pcp = uti.UsPonCTagPriority
	}

	selector := southbound.TrafficSelector{
		InPort:  port,
		EthType: ethType,
		IPProto: types.IPProtoUDP,
		UdpSrc:  udpSrc,
		UdpDst:  udpDst,
	}

	t := southbound.NewTreatmentBuilder()
	if meter != 0 {
		t.Meter(meter)
	}
	if tpID != types.NoneTpID {
		t.WriteMetadata(b.TechProfMetadata(uniTagMatch, tpID, 0))
	}

	if upstream {
		t.SetVlanID(cTag)
		if uniTagMatch != types.VlanNoVID {
			match := uniTagMatch
			selector.VlanID = &match
		}
		if pcp != types.NoPcp {
			t.SetVlanPcp(uint8(pcp))
		}
	} else if nniTrapVid.Valid() {
		match := nniTrapVid
		selector.VlanID = &match
	}
	t.SetOutput(types.PortController)

	return southbound.FilteringObjective{
		InPort:    port,
		Selector:  selector,
		Treatment: t.Build(),
		Priority:  MaxPriority,
		Install:   install,
		AppID:     b.AppID,
	}
}

// IgmpFlow builds the multicast signaling trap.
func (b *Builder) IgmpFlow(port types.PortNumber, uti *sadis.UniTagInformation,
	meter southbound.MeterID, upstream, install bool) southbound.FilteringObjective {

	selector := southbound.TrafficSelector{
		InPort:  port,
		EthType: types.EthTypeIPv4,
		IPProto: types.IPProtoIgmp,
	}

	t := southbound.NewTreatmentBuilder()
	if upstream && uti != nil {
		if uti.TechnologyProfileID != types.NoneTpID {
			t.WriteMetadata(b.TechProfMetadata(types.VlanNone, uti.TechnologyProfileID, 0))
		}
		if meter != 0 {
			t.Meter(meter)
		}
		if uti.UniTagMatch != types.VlanNoVID {
			match := uti.UniTagMatch
			selector.VlanID = &match
		}
		if uti.PonCTag != types.VlanNoVID {
			t.SetVlanID(uti.PonCTag)
		}
		if uti.UsPonCTagPriority != types.NoPcp {
			t.SetVlanPcp(uint8(uti.UsPonCTagPriority))
		}
	}
	t.SetOutput(types.PortController)

	return southbound.FilteringObjective{
		InPort:    port,
		Selector:  selector,
		Treatment: t.Build(),
		Priority:  MaxPriority,
		Install:   install,
		AppID:     b.AppID,
	}
}

// PppoedFlow builds the PPPoE discovery trap.
func (b *Builder) PppoedFlow(port types.PortNumber, uti *sadis.UniTagInformation,
	meter southbound.MeterID, upstream, install bool) southbound.FilteringObjective {

	tpID := types.NoneTpID
	cTag := types.VlanNone
	uniTagMatch := types.VlanAny
	pcp := types.NoPcp
	if uti != nil {
		tpID = uti.TechnologyProfileID
		cTag = uti.PonCTag
		uniTagMatch = uti.UniTagMatch
		pcp = uti.UsPonCTagPriority
	}

	selector := southbound.TrafficSelector{
		InPort:  port,
		EthType: types.EthTypePppoed,
	}

	t := southbound.NewTreatmentBuilder()
	if meter != 0 {
		t.Meter(meter)
	}
	if tpID != types.NoneTpID {
		t.WriteMetadata(b.TechProfMetadata(cTag, tpID, 0))
	}
	if upstream {
		t.SetVlanID(cTag)
		if uniTagMatch != types.VlanNoVID {
			match := uniTagMatch
			selector.VlanID = &match
		}
		if pcp != types.NoPcp {
			t.SetVlanPcp(uint8(pcp))
		}
	}
	t.SetOutput(types.PortController)

	return southbound.FilteringObjective{
		InPort:    port,
		Selector:  selector,
		Treatment: t.Build(),
		Priority:  MaxPriority,
		Install:   install,
		AppID:     b.AppID,
	}
}

// LldpFlow builds the discovery trap installed on NNI ports.
func (b *Builder) LldpFlow(port types.PortNumber, install bool) southbound.FilteringObjective {
	return southbound.FilteringObjective{
		InPort: port,
		Selector: southbound.TrafficSelector{
			InPort:  port,
			EthType: types.EthTypeLldp,
		},
		Treatment: southbound.NewTreatmentBuilder().
			SetOutput(types.PortController).
			Build(),
		Priority: MaxPriority,
		Install:  install,
		AppID:    b.AppID,
	}
}

// UpstreamForward builds the UNI to NNI data-plane rule for one
// service.
func (b *Builder) UpstreamForward(uplink, uniPort types.PortNumber, uti *sadis.UniTagInformation,
	meter, oltMeter southbound.MeterID, install bool) southbound.ForwardingObjective {

	match := uti.UniTagMatch
	selector := southbound.TrafficSelector{
		InPort: uniPort,
		VlanID: &match,
	}

	t := southbound.NewTreatmentBuilder()
	if uti.PonCTag != types.VlanAny {
		t.PushVlan().SetVlanID(uti.PonCTag)
	}
	if uti.PonSTag == types.VlanAny {
		// single tagged handoff, strip whatever tag came in
		t.PopVlan()
	}
	if uti.UsPonCTagPriority != types.NoPcp {
		t.SetVlanPcp(uint8(uti.UsPonCTagPriority))
	}
	if uti.PonSTag != types.VlanAny {
		t.PushVlan().SetVlanID(uti.PonSTag)
	}
	if uti.UsPonSTagPriority != types.NoPcp {
		t.SetVlanPcp(uint8(uti.UsPonSTagPriority))
	}
	t.WriteMetadata(b.Metadata(uti.PonCTag, uti.TechnologyProfileID, uplink))
	if meter != 0 {
		t.Meter(meter)
	}
	if oltMeter != 0 {
		t.Meter(oltMeter)
	}
	t.SetOutput(uplink)

	return southbound.ForwardingObjective{
		Selector:  selector,
		Treatment: t.Build(),
		Priority:  MinPriority,
		Install:   install,
		AppID:     b.AppID,
	}
}

// DownstreamForward builds the NNI to UNI data-plane rule for one
// service. macAddress is the configured or learned destination MAC,
// empty when not applicable.
func (b *Builder) DownstreamForward(uplink, uniPort types.PortNumber, uti *sadis.UniTagInformation,
	meter, oltMeter southbound.MeterID, macAddress string, install bool) southbound.ForwardingObjective {

	sTag := uti.PonSTag
	cTag := uti.PonCTag
	selector := southbound.TrafficSelector{
		InPort:    uplink,
		VlanID:    &sTag,
		InnerVlan: &cTag,
	}
	if uti.PonCTag != types.VlanAny {
		meta := uint64(uint16(uti.PonCTag))
		selector.Metadata = &meta
	}
	if uti.DsPonSTagPriority != types.NoPcp {
		pcp := uint8(uti.DsPonSTagPriority)
		selector.VlanPcp = &pcp
	}
	if validMac(macAddress) {
		selector.EthDst = macAddress
	}

	t := southbound.NewTreatmentBuilder()
	t.PopVlan()
	if uti.UsPonCTagPriority != types.NoPcp {
		t.SetVlanPcp(uint8(uti.UsPonCTagPriority))
	}
	if uti.UniTagMatch != types.VlanNone && uti.PonCTag != types.VlanAny {
		t.SetVlanID(uti.UniTagMatch)
	}
	t.WriteMetadata(b.Metadata(uti.PonCTag, uti.TechnologyProfileID, uniPort))
	if meter != 0 {
		t.Meter(meter)
	}
	if oltMeter != 0 {
		t.Meter(oltMeter)
	}
	t.SetOutput(uniPort)

	return southbound.ForwardingObjective{
		Selector:  selector,
		Treatment: t.Build(),
		Priority:  MinPriority,
		Install:   install,
		AppID:     b.AppID,
	}
}

// TransparentForward builds one direction of the double-tagged
// pass-through pair used when a subscriber is provisioned for a single
// specific (sTag, cTag, tpId) service.
func (b *Builder) TransparentForward(uplink, uniPort types.PortNumber, uti *sadis.UniTagInformation,
	meter southbound.MeterID, upstream, install bool) southbound.ForwardingObjective {

	sTag := uti.PonSTag
	cTag := uti.PonCTag
	inPort, outPort := uniPort, uplink
	metaVlan := sTag
	if !upstream {
		inPort, outPort = uplink, uniPort
		metaVlan = cTag
	}

	selector := southbound.TrafficSelector{
		InPort:    inPort,
		VlanID:    &sTag,
		InnerVlan: &cTag,
	}

	t := southbound.NewTreatmentBuilder()
	if meter != 0 {
		t.Meter(meter)
	}
	t.WriteMetadata(b.Metadata(metaVlan, uti.TechnologyProfileID, outPort)).
		SetOutput(outPort)

	return southbound.ForwardingObjective{
		Selector:  selector,
		Treatment: t.Build(),
		Priority:  MinPriority,
		Install:   install,
		AppID:     b.AppID,
	}
}

func validMac(mac string) bool {
	if mac == "" {
		return false
	}
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return false
	}
	for _, b := range hw {
		if b != 0 {
			return true
		}
	}
	return false
}
