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

package sadis

import (
	"io/ioutil"
	"os"
	"path"
	"testing"

	"github.com/opencord/olt/internal/olt/types"
	"gotest.tools/assert"
)

const testEntries = `
entries:
  - id: "OLT-001"
    uplinkPort: 2
  - id: "BBSM0001-1"
    nasPortId: "BBSM0001-1"
    uniTagList:
      - ponCTag: 101
        ponSTag: 7
        technologyProfileId: 64
        upstreamBandwidthProfile: "HSIA-US"
        downstreamBandwidthProfile: "HSIA-DS"
        isDhcpRequired: true
        serviceName: "hsia"
      - ponCTag: 102
        ponSTag: 7
        usPonCTagPriority: 5
        serviceName: "voip"
bandwidthProfiles:
  - id: "HSIA-US"
    cir: 30000
    cbs: 10000
    eir: 100000
    ebs: 1000
    air: 100000
`

func writeEntries(t *testing.T) string {
	file := path.Join(os.TempDir(), "sadis-test.yaml")
	err := ioutil.WriteFile(file, []byte(testEntries), 0644)
	assert.NilError(t, err)
	return file
}

func TestLoadStaticService(t *testing.T) {
	file := writeEntries(t)
	defer func() { _ = os.Remove(file) }()

	s, err := LoadStaticService(file)
	assert.NilError(t, err)

	olt := s.SubscriberByPortName("OLT-001")
	assert.Assert(t, olt != nil)
	assert.Equal(t, olt.UplinkPort, 2)

	sub := s.SubscriberByPortName("BBSM0001-1")
	assert.Assert(t, sub != nil)
	assert.Equal(t, len(sub.UniTagList), 2)
	assert.Equal(t, sub.UniTagList[0].PonCTag, types.VlanID(101))
	assert.Equal(t, sub.UniTagList[0].UpstreamBandwidthProfile, "HSIA-US")

	bp := s.BandwidthProfileByID("HSIA-US")
	assert.Assert(t, bp != nil)
	assert.Equal(t, bp.CommittedRate, int64(30000))

	assert.Assert(t, s.SubscriberByPortName("missing") == nil)
	assert.Assert(t, s.BandwidthProfileByID("missing") == nil)
}

func TestLoadStaticService_Normalization(t *testing.T) {
	file := writeEntries(t)
	defer func() { _ = os.Remove(file) }()

	s, err := LoadStaticService(file)
	assert.NilError(t, err)

	sub := s.SubscriberByPortName("BBSM0001-1")

	// omitted priorities are unset, not zero
	hsia := sub.UniTagList[0]
	assert.Equal(t, hsia.UsPonCTagPriority, types.NoPcp)
	assert.Equal(t, hsia.DsPonSTagPriority, types.NoPcp)
	// omitted uniTagMatch is a wildcard
	assert.Equal(t, hsia.UniTagMatch, types.VlanAny)

	voip := sub.UniTagList[1]
	assert.Equal(t, voip.UsPonCTagPriority, 5)
	// omitted technology profile id is absent
	assert.Equal(t, voip.TechnologyProfileID, types.NoneTpID)
}

func TestUniTagServiceKey(t *testing.T) {
	uti := UniTagInformation{
		PonCTag:             101,
		PonSTag:             7,
		TechnologyProfileID: 64,
	}
	port := types.Port{Device: "of:1", Number: 16, Name: "BBSM0001-1"}

	key := uti.ServiceKey(port)
	assert.Equal(t, key.Device, types.DeviceID("of:1"))
	assert.Equal(t, key.Port, types.PortNumber(16))
	assert.Equal(t, key.PortName, "BBSM0001-1")
	assert.Equal(t, key.CTag, types.VlanID(101))
	assert.Equal(t, key.STag, types.VlanID(7))
	assert.Equal(t, key.TpID, 64)
}
