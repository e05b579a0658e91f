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

package core

import (
	"sync"

	"github.com/opencord/olt/internal/common"
	"github.com/opencord/olt/internal/olt/sadis"
	"github.com/opencord/olt/internal/olt/sharding"
	"github.com/opencord/olt/internal/olt/southbound"
	"github.com/opencord/olt/internal/olt/types"
)

// recordingDriver captures every objective the core emits. Meter
// installs complete immediately unless the test takes over.
type recordingDriver struct {
	mu         sync.Mutex
	filters    []southbound.FilteringObjective
	forwards   []southbound.ForwardingObjective
	meters     []southbound.MeterRequest
	meterCbs   []southbound.ObjectiveCallback
	withdrawn  []southbound.MeterID
	autoMeters bool
	failAll    bool
}

func newRecordingDriver() *recordingDriver {
	return &recordingDriver{autoMeters: true}
}

func (d *recordingDriver) Filter(device types.DeviceID, flt southbound.FilteringObjective, cb southbound.ObjectiveCallback) {
	d.mu.Lock()
	d.filters = append(d.filters, flt)
	d.mu.Unlock()
	if d.failAll {
		cb(southbound.ErrUnknown)
		return
	}
	cb(nil)
}

func (d *recordingDriver) Forward(device types.DeviceID, fwd southbound.ForwardingObjective, cb southbound.ObjectiveCallback) {
	d.mu.Lock()
	d.forwards = append(d.forwards, fwd)
	d.mu.Unlock()
	if d.failAll {
		cb(southbound.ErrUnknown)
		return
	}
	cb(nil)
}

func (d *recordingDriver) SubmitMeter(device types.DeviceID, req southbound.MeterRequest, cb southbound.ObjectiveCallback) {
	d.mu.Lock()
	d.meters = append(d.meters, req)
	auto := d.autoMeters
	if !auto {
		d.meterCbs = append(d.meterCbs, cb)
	}
	d.mu.Unlock()
	if auto {
		cb(nil)
	}
}

func (d *recordingDriver) WithdrawMeter(device types.DeviceID, meter southbound.MeterID, cb southbound.ObjectiveCallback) {
	d.mu.Lock()
	d.withdrawn = append(d.withdrawn, meter)
	d.mu.Unlock()
	cb(nil)
}

func (d *recordingDriver) completeMeters(err error) {
	d.mu.Lock()
	callbacks := d.meterCbs
	d.meterCbs = nil
	d.mu.Unlock()
	for _, cb := range callbacks {
		cb(err)
	}
}

func (d *recordingDriver) filterCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.filters)
}

func (d *recordingDriver) forwardCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.forwards)
}

func (d *recordingDriver) lastFilter() southbound.FilteringObjective {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filters[len(d.filters)-1]
}

func (d *recordingDriver) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filters = nil
	d.forwards = nil
	d.meters = nil
}

// staticHosts is a fixed host inventory for MAC learning tests.
type staticHosts struct {
	mu    sync.Mutex
	hosts map[types.ConnectPoint][]Host
}

func newStaticHosts() *staticHosts {
	return &staticHosts{hosts: make(map[types.ConnectPoint][]Host)}
}

func (h *staticHosts) add(cp types.ConnectPoint, host Host) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hosts[cp] = append(h.hosts[cp], host)
}

func (h *staticHosts) ConnectedHosts(cp types.ConnectPoint) []Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hosts[cp]
}

type harness struct {
	app    *App
	driver *recordingDriver
	sadis  *sadis.StaticService
	hosts  *staticHosts
}

const (
	testDevice types.DeviceID   = "of:0000000001"
	testSerial                  = "OLT-001"
	uniPortNo  types.PortNumber = 16
	nniPortNo  types.PortNumber = 2
	uniName                     = "BBSM0001-1"
)

func uniCp() types.ConnectPoint {
	return types.ConnectPoint{Device: testDevice, Port: uniPortNo}
}

func nniCp() types.ConnectPoint {
	return types.ConnectPoint{Device: testDevice, Port: nniPortNo}
}

func testUniTag() sadis.UniTagInformation {
	return sadis.UniTagInformation{
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

func newHarness(mutate func(*common.OltConfig)) *harness {
	cfg := common.GetDefaultOps().Olt
	cfg.WaitForRemoval = false
	if mutate != nil {
		mutate(&cfg)
	}

	sadisService := sadis.NewStaticService()
	sadisService.AddSubscriber(&sadis.SubscriberAndDeviceInformation{
		ID:         testSerial,
		UplinkPort: int(nniPortNo),
	})
	uti := testUniTag()
	sadisService.AddSubscriber(&sadis.SubscriberAndDeviceInformation{
		ID:         uniName,
		UniTagList: []sadis.UniTagInformation{uti},
	})
	for _, bp := range []*sadis.BandwidthProfileInformation{
		{ID: "Default", CommittedRate: 600, CommittedBurstSize: 30, ExceededRate: 400, ExceededBurstSize: 30, AssuredRate: 100000},
		{ID: "HSIA-US", CommittedRate: 30000, CommittedBurstSize: 10000, ExceededRate: 100000, ExceededBurstSize: 1000, AssuredRate: 100000},
		{ID: "HSIA-DS", CommittedRate: 100000, CommittedBurstSize: 5000, ExceededRate: 100000, ExceededBurstSize: 5000, AssuredRate: 100000},
	} {
		sadisService.AddBandwidthProfile(bp)
	}

	driver := newRecordingDriver()
	hosts := newStaticHosts()
	cluster := sharding.NewStaticCluster("node-1", []sharding.NodeID{"node-1"})
	app := NewApp(cfg, driver, sadisService, hosts, cluster, nil)

	h := &harness{app: app, driver: driver, sadis: sadisService, hosts: hosts}
	h.addDevice()
	return h
}

func (h *harness) addDevice() {
	h.app.Registry.UpsertDevice(types.Device{ID: testDevice, SerialNumber: testSerial})
	h.app.Registry.UpsertPort(types.Port{Device: testDevice, Number: nniPortNo, Name: "nni-" + testSerial, Enabled: true})
	h.app.Registry.UpsertPort(types.Port{Device: testDevice, Number: uniPortNo, Name: uniName, Enabled: true})
}

func (h *harness) uniPort() types.Port {
	return *h.app.Registry.Port(uniCp())
}

// drain synchronously runs every task the reconciler has queued.
func (h *harness) drain() {
	for {
		select {
		case t := <-h.app.Reconciler.tasks:
			h.app.Reconciler.process(t)
		default:
			return
		}
	}
}

// run executes one task until it reports done, draining follow-up
// work between passes. Tasks that stay parked give up after a few
// rounds so a broken test fails instead of spinning.
func (h *harness) run(t *task) (bool, error) {
	var done bool
	var err error
	for i := 0; i < 8; i++ {
		done, err = h.app.Reconciler.execute(t)
		h.drain()
		if done {
			break
		}
	}
	return done, err
}
