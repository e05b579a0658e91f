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
	"github.com/opencord/olt/internal/olt/flows"
	"github.com/opencord/olt/internal/olt/meters"
	"github.com/opencord/olt/internal/olt/sadis"
	"github.com/opencord/olt/internal/olt/sharding"
	"github.com/opencord/olt/internal/olt/southbound"
	"github.com/opencord/olt/internal/olt/store"
	"github.com/opencord/olt/internal/olt/types"
	log "github.com/sirupsen/logrus"
)

// AppID identifies this application towards the southbound.
const AppID = "org.opencord.olt"

// App owns and wires every component of the provisioning core.
type App struct {
	cfg common.OltConfig

	Registry    *DeviceRegistry
	Reconciler  *Reconciler
	Pump        *DeviceEventPump
	Listener    *flows.Listener
	Meters      *meters.MeterCache
	Statuses    *store.StatusStore
	Subscribers *store.ProvisionedSubscribers
	Sink        *EventSink

	sadis   sadis.Service
	hasher  *sharding.ConsistentHasher
	cluster sharding.ClusterService

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewApp builds the core around its external collaborators. kafkaCh
// may be nil when event publishing is disabled.
func NewApp(cfg common.OltConfig, driver southbound.Driver, sadisService sadis.Service,
	hosts HostService, cluster sharding.ClusterService,
	kafkaCh chan types.AccessDeviceEvent) *App {

	nodes := cluster.Nodes()
	hasher := sharding.NewConsistentHasher(nodes, sharding.HashWeight)

	registry := NewDeviceRegistry(sadisService)
	statuses := store.NewStatusStore()
	subscribers := store.NewProvisionedSubscribers()
	builder := flows.NewBuilder(AppID, cfg.DefaultTechProfileID)
	sink := NewEventSink(kafkaCh)
	meterCache := meters.NewMeterCache(driver, sadisService.BandwidthProfileByID, AppID)

	app := &App{
		cfg:         cfg,
		Registry:    registry,
		Meters:      meterCache,
		Statuses:    statuses,
		Subscribers: subscribers,
		Sink:        sink,
		sadis:       sadisService,
		hasher:      hasher,
		cluster:     cluster,
		quit:        make(chan struct{}),
	}

	reconciler := NewReconciler(cfg, driver, sadisService, hosts, meterCache,
		statuses, subscribers, builder, sink, registry)
	reconciler.SetOwnershipFn(app.IsDeviceMine)
	app.Reconciler = reconciler

	pump := NewDeviceEventPump(registry, reconciler, sink)
	pump.SetOwnershipFn(app.IsDeviceMine)
	app.Pump = pump

	app.Listener = &flows.Listener{
		AppID:       AppID,
		DefaultTpID: cfg.DefaultTechProfileID,
		Ports:       registry,
		Sadis:       sadisService,
		Statuses:    statuses,
		IsMine:      app.IsDeviceMine,
	}

	meterCache.SetUsageFn(app.meterInUse)

	return app
}

// Start launches the event pump, the reconciler workers and the
// cluster listener.
func (a *App) Start() {
	a.Reconciler.Start()
	a.Pump.Start()
	a.wg.Add(1)
	go a.clusterLoop()
	oltLogger.WithFields(log.Fields{
		"appId": AppID,
		"node":  a.cluster.LocalNode(),
	}).Info("Started")
}

// Stop quiesces the core.
func (a *App) Stop() {
	close(a.quit)
	a.Pump.Stop()
	a.Reconciler.Stop()
	a.wg.Wait()
	oltLogger.Info("Stopped")
}

// IsDeviceMine reports whether this instance drives the device.
func (a *App) IsDeviceMine(device types.DeviceID) bool {
	node := a.hasher.Hash(string(device))
	return node == a.cluster.LocalNode()
}

// HandleDeviceEvent feeds one southbound device event into the pump.
func (a *App) HandleDeviceEvent(event types.DeviceEvent) {
	a.Pump.Submit(event)
}

// HandleFlowRuleEvent feeds one southbound flow rule event into the
// reverse reconciliation path.
func (a *App) HandleFlowRuleEvent(event southbound.FlowRuleEvent) {
	a.Listener.HandleEvent(event)
}

// HandleMeterEvent feeds one southbound meter event into the meter
// cache.
func (a *App) HandleMeterEvent(event southbound.MeterEvent) {
	if !a.IsDeviceMine(event.Device) {
		return
	}
	switch event.Type {
	case southbound.MeterInstalled:
		a.Meters.OnMeterInstalled(event.Device, event.Meter)
	case southbound.MeterInstallFailed:
		a.Meters.OnMeterFailed(event.Device, event.Meter)
	case southbound.MeterReferenceCountZero:
		a.Meters.OnMeterReferenceCountZero(event.Device, event.Meter, event.AppID)
	}
}

// OnHostLearned resumes provisioning parked on MAC discovery.
func (a *App) OnHostLearned(cp types.ConnectPoint) {
	a.Reconciler.OnHostLearned(cp)
}

func (a *App) clusterLoop() {
	defer a.wg.Done()
	events := a.cluster.Listen()
	for {
		select {
		case <-a.quit:
			return
		case event := <-events:
			switch event.Type {
			case sharding.InstanceReady:
				a.hasher.AddServer(event.Node)
			case sharding.InstanceDeactivated:
				a.hasher.RemoveServer(event.Node)
			}
			oltLogger.WithFields(log.Fields{
				"type": event.Type,
				"node": event.Node,
			}).Info("Cluster membership changed, devices will re-hash")
		}
	}
}

// meterInUse reports whether a meter still backs any provisioned
// service on the device.
func (a *App) meterInUse(device types.DeviceID, meter southbound.MeterID) bool {
	for _, key := range a.Subscribers.All() {
		if key.Device != device {
			continue
		}
		sub := a.sadis.SubscriberByPortName(key.PortName)
		if sub == nil {
			continue
		}
		for i := range sub.UniTagList {
			uti := &sub.UniTagList[i]
			profiles := []string{uti.UpstreamBandwidthProfile, uti.DownstreamBandwidthProfile,
				uti.UpstreamOltBandwidthProfile, uti.DownstreamOltBandwidthProfile}
			for _, bpID := range profiles {
				if bpID == "" {
					continue
				}
				if m, ok := a.Meters.MeterFor(device, bpID); ok && m == meter {
					return true
				}
			}
		}
	}
	return false
}
