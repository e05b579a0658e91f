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
	"testing"

	"github.com/opencord/olt/internal/olt/sadis"
	"github.com/opencord/olt/internal/olt/southbound"
	"github.com/opencord/olt/internal/olt/types"
	"github.com/stretchr/testify/assert"
)

func testService() *sadis.UniTagInformation {
	return &sadis.UniTagInformation{
		UniTagMatch:                types.VlanAny,
		PonCTag:                    101,
		PonSTag:                    7,
		UsPonCTagPriority:          types.NoPcp,
		UsPonSTagPriority:          types.NoPcp,
		DsPonCTagPriority:          types.NoPcp,
		DsPonSTagPriority:          types.NoPcp,
		TechnologyProfileID:        64,
		UpstreamBandwidthProfile:   "HSIA-US",
		DownstreamBandwidthProfile: "HSIA-DS",
		IsDhcpRequired:             true,
		ServiceName:                "hsia",
	}
}

func instructionTypes(t *southbound.TrafficTreatment) []southbound.InstructionType {
	out := make([]southbound.InstructionType, 0, len(t.Instructions))
	for _, i := range t.Instructions {
		out = append(out, i.Type)
	}
	return out
}

func TestBuilder_Metadata(t *testing.T) {
	b := NewBuilder("test", 64)

	// inner vlan in the top two bytes, tech profile next, egress port low
	assert.Equal(t, uint64(101)<<48|uint64(64)<<32|uint64(2), b.Metadata(101, 64, 2))

	// absent inner vlan leaves the top bytes zero
	assert.Equal(t, uint64(64)<<32|uint64(16), b.Metadata(types.VlanNone, 64, 16))

	// unset tech profile falls back to the configured default
	assert.Equal(t, uint64(64)<<32|uint64(16), b.Metadata(types.VlanNone, types.NoneTpID, 16))
}

func TestBuilder_DefaultEapolFlow(t *testing.T) {
	b := NewBuilder("test", 64)

	flt := b.EapolFlow(16, types.EapolDefaultVlan, types.NoneTpID, 1, 0, true)

	assert.Equal(t, types.PortNumber(16), flt.Selector.InPort)
	assert.Equal(t, types.EthTypeEapol, flt.Selector.EthType)
	assert.Equal(t, MaxPriority, flt.Priority)
	assert.True(t, flt.Install)

	assert.Equal(t, []southbound.InstructionType{
		southbound.InstrMeter,
		southbound.InstrWriteMetadata,
		southbound.InstrPushVlan,
		southbound.InstrSetVlanID,
		southbound.InstrOutput,
	}, instructionTypes(flt.Treatment))

	// the default trap carries no inner vlan in its metadata
	assert.Equal(t, uint64(64)<<32, flt.Treatment.Instructions[1].Metadata)
	assert.Equal(t, types.EapolDefaultVlan, flt.Treatment.Instructions[3].Vlan)
	assert.Equal(t, types.PortController, flt.Treatment.Instructions[4].Port)
}

func TestBuilder_TaggedEapolFlow(t *testing.T) {
	b := NewBuilder("test", 64)

	flt := b.EapolFlow(16, 101, 64, 2, 0, true)

	vlans := flt.Treatment.SetVlans()
	assert.Equal(t, []types.VlanID{101}, vlans)
	// tagged trap metadata carries the c tag
	assert.Equal(t, uint64(101)<<48|uint64(64)<<32, flt.Treatment.Instructions[1].Metadata)
}

func TestBuilder_DhcpFlowUpstream(t *testing.T) {
	b := NewBuilder("test", 64)
	uti := testService()

	flt := b.DhcpFlow(16, uti, 2, false, true, true, types.VlanNone)

	assert.Equal(t, types.EthTypeIPv4, flt.Selector.EthType)
	assert.Equal(t, types.IPProtoUDP, flt.Selector.IPProto)
	assert.Equal(t, uint16(68), flt.Selector.UdpSrc)
	assert.Equal(t, uint16(67), flt.Selector.UdpDst)
	// uniTagMatch of ANY is still a vlan criterion
	assert.NotNil(t, flt.Selector.VlanID)
	assert.Equal(t, types.VlanAny, *flt.Selector.VlanID)

	// the trap pushes the c tag towards the PON
	assert.Equal(t, []types.VlanID{101}, flt.Treatment.SetVlans())
	assert.Equal(t, []southbound.MeterID{2}, flt.Treatment.Meters())
}

func TestBuilder_DhcpFlowNni(t *testing.T) {
	b := NewBuilder("test", 64)

	flt := b.DhcpFlow(2, nil, 0, false, false, true, types.VlanNone)

	assert.Equal(t, uint16(67), flt.Selector.UdpSrc)
	assert.Equal(t, uint16(68), flt.Selector.UdpDst)
	assert.Nil(t, flt.Selector.VlanID)
	// no vlan rewrite on the NNI trap
	assert.Empty(t, flt.Treatment.SetVlans())
	assert.Empty(t, flt.Treatment.Meters())
}

func TestBuilder_DhcpV6Flow(t *testing.T) {
	b := NewBuilder("test", 64)
	uti := testService()

	flt := b.DhcpFlow(16, uti, 0, true, true, true, types.VlanNone)

	assert.Equal(t, types.EthTypeIPv6, flt.Selector.EthType)
	assert.Equal(t, uint16(547), flt.Selector.UdpSrc)
	assert.Equal(t, uint16(546), flt.Selector.UdpDst)
}

func TestBuilder_LldpFlow(t *testing.T) {
	b := NewBuilder("test", 64)

	flt := b.LldpFlow(2, true)

	assert.Equal(t, types.EthTypeLldp, flt.Selector.EthType)
	assert.Equal(t, []southbound.InstructionType{southbound.InstrOutput}, instructionTypes(flt.Treatment))
	assert.Equal(t, types.PortController, flt.Treatment.Instructions[0].Port)
}

func TestBuilder_UpstreamForward(t *testing.T) {
	b := NewBuilder("test", 64)
	uti := testService()

	fwd := b.UpstreamForward(2, 16, uti, 3, 0, true)

	assert.Equal(t, types.PortNumber(16), fwd.Selector.InPort)
	assert.Equal(t, types.VlanAny, *fwd.Selector.VlanID)
	assert.Equal(t, MinPriority, fwd.Priority)

	// both tags pushed, inner first
	assert.Equal(t, []types.VlanID{101, 7}, fwd.Treatment.SetVlans())
	assert.Equal(t, []southbound.MeterID{3}, fwd.Treatment.Meters())

	last := fwd.Treatment.Instructions[len(fwd.Treatment.Instructions)-1]
	assert.Equal(t, southbound.InstrOutput, last.Type)
	assert.Equal(t, types.PortNumber(2), last.Port)
}

func TestBuilder_DownstreamForward(t *testing.T) {
	b := NewBuilder("test", 64)
	uti := testService()

	fwd := b.DownstreamForward(2, 16, uti, 4, 0, "", true)

	assert.Equal(t, types.PortNumber(2), fwd.Selector.InPort)
	assert.Equal(t, types.VlanID(7), *fwd.Selector.VlanID)
	assert.Equal(t, types.VlanID(101), *fwd.Selector.InnerVlan)
	assert.NotNil(t, fwd.Selector.Metadata)
	assert.Equal(t, uint64(101), *fwd.Selector.Metadata)
	assert.Equal(t, "", fwd.Selector.EthDst)

	assert.Equal(t, southbound.InstrPopVlan, fwd.Treatment.Instructions[0].Type)
	assert.Equal(t, []southbound.MeterID{4}, fwd.Treatment.Meters())

	last := fwd.Treatment.Instructions[len(fwd.Treatment.Instructions)-1]
	assert.Equal(t, southbound.InstrOutput, last.Type)
	assert.Equal(t, types.PortNumber(16), last.Port)
}

func TestBuilder_DownstreamForwardWithMac(t *testing.T) {
	b := NewBuilder("test", 64)
	uti := testService()
	uti.ConfiguredMacAddress = "2e:01:01:01:01:01"

	fwd := b.DownstreamForward(2, 16, uti, 4, 0, uti.ConfiguredMacAddress, true)
	assert.Equal(t, "2e:01:01:01:01:01", fwd.Selector.EthDst)

	// a zero mac is not a usable match
	fwd = b.DownstreamForward(2, 16, uti, 4, 0, "00:00:00:00:00:00", true)
	assert.Equal(t, "", fwd.Selector.EthDst)
}

func TestBuilder_TransparentForward(t *testing.T) {
	b := NewBuilder("test", 64)
	uti := testService()

	up := b.TransparentForward(2, 16, uti, 5, true, true)
	assert.Equal(t, types.PortNumber(16), up.Selector.InPort)
	assert.Equal(t, types.VlanID(7), *up.Selector.VlanID)
	assert.Equal(t, types.VlanID(101), *up.Selector.InnerVlan)
	last := up.Treatment.Instructions[len(up.Treatment.Instructions)-1]
	assert.Equal(t, types.PortNumber(2), last.Port)

	down := b.TransparentForward(2, 16, uti, 5, false, true)
	assert.Equal(t, types.PortNumber(2), down.Selector.InPort)
	last = down.Treatment.Instructions[len(down.Treatment.Instructions)-1]
	assert.Equal(t, types.PortNumber(16), last.Port)
}

func TestBuilder_IgmpFlow(t *testing.T) {
	b := NewBuilder("test", 64)
	uti := testService()

	flt := b.IgmpFlow(16, uti, 2, true, true)
	assert.Equal(t, types.EthTypeIPv4, flt.Selector.EthType)
	assert.Equal(t, types.IPProtoIgmp, flt.Selector.IPProto)
	assert.Equal(t, []types.VlanID{101}, flt.Treatment.SetVlans())

	// downstream variant has no vlan handling at all
	flt = b.IgmpFlow(2, nil, 0, false, true)
	assert.Nil(t, flt.Selector.VlanID)
	assert.Empty(t, flt.Treatment.SetVlans())
}

func TestBuilder_RemoveVerb(t *testing.T) {
	b := NewBuilder("test", 64)
	uti := testService()

	flt := b.DhcpFlow(16, uti, 2, false, true, false, types.VlanNone)
	assert.False(t, flt.Install)

	fwd := b.UpstreamForward(2, 16, uti, 3, 0, false)
	assert.False(t, fwd.Install)
}
