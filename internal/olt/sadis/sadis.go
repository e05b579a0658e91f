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

// Package sadis carries the subscriber and device information contract.
// The authoritative service is external; this package defines the
// records the provisioning core consumes and a static in-memory
// implementation used for tests and standalone runs.
package sadis

import (
	"io/ioutil"
	"sync"

	"github.com/opencord/olt/internal/olt/types"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

var sadisLogger = log.WithFields(log.Fields{
	"module": "SADIS",
})

// UniTagInformation is a single service definition for one subscriber.
type UniTagInformation struct {
	UniTagMatch                   types.VlanID `yaml:"uniTagMatch" json:"uniTagMatch"`
	PonCTag                       types.VlanID `yaml:"ponCTag" json:"ponCTag"`
	PonSTag                       types.VlanID `yaml:"ponSTag" json:"ponSTag"`
	UsPonCTagPriority             int          `yaml:"usPonCTagPriority" json:"usPonCTagPriority"`
	UsPonSTagPriority             int          `yaml:"usPonSTagPriority" json:"usPonSTagPriority"`
	DsPonCTagPriority             int          `yaml:"dsPonCTagPriority" json:"dsPonCTagPriority"`
	DsPonSTagPriority             int          `yaml:"dsPonSTagPriority" json:"dsPonSTagPriority"`
	TechnologyProfileID           int          `yaml:"technologyProfileId" json:"technologyProfileId"`
	UpstreamBandwidthProfile      string       `yaml:"upstreamBandwidthProfile" json:"upstreamBandwidthProfile"`
	DownstreamBandwidthProfile    string       `yaml:"downstreamBandwidthProfile" json:"downstreamBandwidthProfile"`
	UpstreamOltBandwidthProfile   string       `yaml:"upstreamOltBandwidthProfile" json:"upstreamOltBandwidthProfile"`
	DownstreamOltBandwidthProfile string       `yaml:"downstreamOltBandwidthProfile" json:"downstreamOltBandwidthProfile"`
	IsDhcpRequired                bool         `yaml:"isDhcpRequired" json:"isDhcpRequired"`
	IsIgmpRequired                bool         `yaml:"isIgmpRequired" json:"isIgmpRequired"`
	IsPppoeRequired               bool         `yaml:"isPppoeRequired" json:"isPppoeRequired"`
	EnableMacLearning             bool         `yaml:"enableMacLearning" json:"enableMacLearning"`
	ConfiguredMacAddress          string       `yaml:"configuredMacAddress" json:"configuredMacAddress"`
	ServiceName                   string       `yaml:"serviceName" json:"serviceName"`
}

// normalize maps omitted yaml fields onto their sentinel values: a
// zero priority counts as unset, a zero technology profile id as
// absent and a zero uniTagMatch as a wildcard.
func (u *UniTagInformation) normalize() {
	if u.UsPonCTagPriority == 0 {
		u.UsPonCTagPriority = types.NoPcp
	}
	if u.UsPonSTagPriority == 0 {
		u.UsPonSTagPriority = types.NoPcp
	}
	if u.DsPonCTagPriority == 0 {
		u.DsPonCTagPriority = types.NoPcp
	}
	if u.DsPonSTagPriority == 0 {
		u.DsPonSTagPriority = types.NoPcp
	}
	if u.TechnologyProfileID == 0 {
		u.TechnologyProfileID = types.NoneTpID
	}
	if u.UniTagMatch == 0 {
		u.UniTagMatch = types.VlanAny
	}
}

// ServiceKey builds the status-store key for this service on the given
// port.
func (u *UniTagInformation) ServiceKey(port types.Port) types.ServiceKey {
	return types.ServiceKey{
		Device:   port.Device,
		Port:     port.Number,
		PortName: port.Name,
		CTag:     u.PonCTag,
		STag:     u.PonSTag,
		TpID:     u.TechnologyProfileID,
	}
}

// SubscriberAndDeviceInformation is the record returned for a
// subscriber (looked up by port name) or for an OLT (looked up by
// device serial number).
type SubscriberAndDeviceInformation struct {
	ID             string              `yaml:"id" json:"id"`
	NasPortID      string              `yaml:"nasPortId" json:"nasPortId"`
	UplinkPort     int                 `yaml:"uplinkPort" json:"uplinkPort"`
	NniDhcpTrapVid types.VlanID        `yaml:"nniDhcpTrapVid" json:"nniDhcpTrapVid"`
	UniTagList     []UniTagInformation `yaml:"uniTagList" json:"uniTagList"`
}

// BandwidthProfileInformation is translated into a three-band meter.
type BandwidthProfileInformation struct {
	ID                  string `yaml:"id" json:"id"`
	CommittedRate       int64  `yaml:"cir" json:"cir"`
	CommittedBurstSize  int64  `yaml:"cbs" json:"cbs"`
	ExceededRate        int64  `yaml:"eir" json:"eir"`
	ExceededBurstSize   int64  `yaml:"ebs" json:"ebs"`
	AssuredRate         int64  `yaml:"air" json:"air"`
}

// Service is the subscriber-information lookup contract. Lookups are
// synchronous and side-effect free; a missing entry returns nil.
type Service interface {
	SubscriberByPortName(portName string) *SubscriberAndDeviceInformation
	BandwidthProfileByID(bpID string) *BandwidthProfileInformation
}

// StaticService serves entries loaded from a yaml file or injected by
// tests.
type StaticService struct {
	mu          sync.RWMutex
	Subscribers map[string]*SubscriberAndDeviceInformation
	Profiles    map[string]*BandwidthProfileInformation
}

type staticConfig struct {
	Entries           []*SubscriberAndDeviceInformation `yaml:"entries"`
	BandwidthProfiles []*BandwidthProfileInformation    `yaml:"bandwidthProfiles"`
}

func NewStaticService() *StaticService {
	return &StaticService{
		Subscribers: make(map[string]*SubscriberAndDeviceInformation),
		Profiles:    make(map[string]*BandwidthProfileInformation),
	}
}

// LoadStaticService reads subscriber and bandwidth profile entries from
// a yaml file.
func LoadStaticService(path string) (*StaticService, error) {
	s := NewStaticService()
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	conf := staticConfig{}
	if err := yaml.Unmarshal(content, &conf); err != nil {
		return nil, err
	}
	for _, e := range conf.Entries {
		for i := range e.UniTagList {
			e.UniTagList[i].normalize()
		}
		s.Subscribers[e.ID] = e
	}
	for _, bp := range conf.BandwidthProfiles {
		s.Profiles[bp.ID] = bp
	}
	sadisLogger.WithFields(log.Fields{
		"entries":           len(s.Subscribers),
		"bandwidthProfiles": len(s.Profiles),
	}).Info("Loaded sadis entries")
	return s, nil
}

// AddSubscriber registers an entry under its ID.
func (s *StaticService) AddSubscriber(info *SubscriberAndDeviceInformation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Subscribers[info.ID] = info
}

// AddBandwidthProfile registers a profile under its ID.
func (s *StaticService) AddBandwidthProfile(bp *BandwidthProfileInformation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Profiles[bp.ID] = bp
}

func (s *StaticService) SubscriberByPortName(portName string) *SubscriberAndDeviceInformation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Subscribers[portName]
}

func (s *StaticService) BandwidthProfileByID(bpID string) *BandwidthProfileInformation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Profiles[bpID]
}
