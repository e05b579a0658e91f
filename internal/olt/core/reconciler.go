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
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/looplab/fsm"
	"github.com/opencord/olt/internal/common"
	"github.com/opencord/olt/internal/olt/flows"
	"github.com/opencord/olt/internal/olt/meters"
	"github.com/opencord/olt/internal/olt/sadis"
	"github.com/opencord/olt/internal/olt/southbound"
	"github.com/opencord/olt/internal/olt/store"
	"github.com/opencord/olt/internal/olt/types"
	log "github.com/sirupsen/logrus"
)

var oltLogger = log.WithFields(log.Fields{
	"module": "OLT",
})

const reconcilerWorkers = 4

// Host is one station learned behind a connect point.
type Host struct {
	MAC  string
	Vlan types.VlanID
}

// HostService looks up learned stations; the learning service itself
// is external.
type HostService interface {
	ConnectedHosts(cp types.ConnectPoint) []Host
}

type operation string

const (
	opPortUp          operation = "PORT_UP"
	opPortDown        operation = "PORT_DOWN"
	opNniUp           operation = "NNI_UP"
	opProvision       operation = "PROVISION"
	opRemove          operation = "REMOVE"
	opProvisionTagged operation = "PROVISION_TAGGED"
	opRemoveTagged    operation = "REMOVE_TAGGED"
	opPurge           operation = "PURGE"
)

// task is one reconciliation unit for a (port, operation) pair. Tasks
// are idempotent: a re-executed task observes the stores and re-emits
// nothing that is already in place.
type task struct {
	id    string
	op    operation
	cp    types.ConnectPoint
	sTag  types.VlanID
	cTag  types.VlanID
	tpID  int
	state *fsm.FSM
	retry *backoff.Backoff
	// macDeadline caps how long the task may wait for MAC learning
	macDeadline time.Time
}

func newTask(op operation, cp types.ConnectPoint) *task {
	t := &task{
		id: uuid.New().String(),
		op: op,
		cp: cp,
		retry: &backoff.Backoff{
			Min:    100 * time.Millisecond,
			Max:    10 * time.Second,
			Factor: 2,
			Jitter: true,
		},
	}
	t.state = fsm.NewFSM(
		"created",
		fsm.Events{
			{Name: "run", Src: []string{"created", "parked"}, Dst: "running"},
			{Name: "park", Src: []string{"running"}, Dst: "parked"},
			{Name: "complete", Src: []string{"running"}, Dst: "completed"},
			{Name: "fail", Src: []string{"running"}, Dst: "failed"},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				oltLogger.WithFields(log.Fields{
					"task": t.id,
					"op":   t.op,
					"cp":   t.cp.String(),
				}).Tracef("Changing task state from %s to %s", e.Src, e.Dst)
			},
		},
	)
	return t
}

// Reconciler converges the desired provisioning state of each port
// onto the southbound.
type Reconciler struct {
	cfg         common.OltConfig
	driver      southbound.Driver
	sadis       sadis.Service
	hosts       HostService
	meters      *meters.MeterCache
	statuses    *store.StatusStore
	subscribers *store.ProvisionedSubscribers
	builder     *flows.Builder
	sink        *EventSink
	registry    *DeviceRegistry
	isMine      func(types.DeviceID) bool

	tasks chan *task
	quit  chan struct{}
	wg    sync.WaitGroup

	mu           sync.Mutex
	parkedOnHost map[types.ConnectPoint][]*task
}

func NewReconciler(cfg common.OltConfig, driver southbound.Driver, sadisService sadis.Service,
	hosts HostService, meterCache *meters.MeterCache, statuses *store.StatusStore,
	subscribers *store.ProvisionedSubscribers, builder *flows.Builder,
	sink *EventSink, registry *DeviceRegistry) *Reconciler {

	return &Reconciler{
		cfg:          cfg,
		driver:       driver,
		sadis:        sadisService,
		hosts:        hosts,
		meters:       meterCache,
		statuses:     statuses,
		subscribers:  subscribers,
		builder:      builder,
		sink:         sink,
		registry:     registry,
		isMine:       func(types.DeviceID) bool { return true },
		tasks:        make(chan *task, 1024),
		quit:         make(chan struct{}),
		parkedOnHost: make(map[types.ConnectPoint][]*task),
	}
}

// SetOwnershipFn wires the cluster ownership check.
func (r *Reconciler) SetOwnershipFn(fn func(types.DeviceID) bool) {
	r.isMine = fn
}

// Start launches the worker pool.
func (r *Reconciler) Start() {
	for i := 0; i < reconcilerWorkers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Stop drains the workers.
func (r *Reconciler) Stop() {
	close(r.quit)
	r.wg.Wait()
}

func (r *Reconciler) worker(id int) {
	defer r.wg.Done()
	for {
		select {
		case <-r.quit:
			return
		case t := <-r.tasks:
			r.process(t)
		}
	}
}

func (r *Reconciler) enqueue(t *task) {
	select {
	case <-r.quit:
	case r.tasks <- t:
	}
}

func (r *Reconciler) process(t *task) {
	if !r.isMine(t.cp.Device) {
		// silently skip, another instance drives this device
		return
	}

	_ = t.state.Event("run")
	done, err := r.execute(t)
	if !done {
		_ = t.state.Event("park")
		delay := t.retry.Duration()
		oltLogger.WithFields(log.Fields{
			"task":  t.id,
			"op":    t.op,
			"cp":    t.cp.String(),
			"delay": delay,
			"err":   err,
		}).Debug("Task is not done, rescheduling")
		time.AfterFunc(delay, func() { r.enqueue(t) })
		return
	}
	if err != nil {
		_ = t.state.Event("fail")
		oltLogger.WithFields(log.Fields{
			"task": t.id,
			"op":   t.op,
			"cp":   t.cp.String(),
			"err":  err,
		}).Warn("Task failed")
		return
	}
	_ = t.state.Event("complete")
}

func (r *Reconciler) execute(t *task) (bool, error) {
	switch t.op {
	case opPortUp:
		return r.reconcilePortUp(t)
	case opPortDown:
		return r.reconcilePortDown(t)
	case opNniUp:
		return r.reconcileNniUp(t)
	case opProvision:
		return r.reconcileProvision(t)
	case opRemove:
		return r.reconcileRemove(t)
	case opProvisionTagged:
		return r.reconcileProvisionTagged(t)
	case opRemoveTagged:
		return r.reconcileRemoveTagged(t)
	case opPurge:
		return r.reconcilePurge(t)
	default:
		return true, nil
	}
}

// PortUp schedules the default trap installation for a UNI.
func (r *Reconciler) PortUp(cp types.ConnectPoint) {
	r.enqueue(newTask(opPortUp, cp))
}

// PortDown schedules the removal of every flow on a port.
func (r *Reconciler) PortDown(cp types.ConnectPoint) {
	r.enqueue(newTask(opPortDown, cp))
}

// NniUp schedules the NNI trap suite.
func (r *Reconciler) NniUp(cp types.ConnectPoint) {
	r.enqueue(newTask(opNniUp, cp))
}

// Provision schedules the full subscriber suite for a port.
func (r *Reconciler) Provision(cp types.ConnectPoint) {
	r.enqueue(newTask(opProvision, cp))
}

// Remove schedules the subscriber suite removal for a port.
func (r *Reconciler) Remove(cp types.ConnectPoint) {
	r.enqueue(newTask(opRemove, cp))
}

// ProvisionService schedules the transparent pair for one specific
// service triple.
func (r *Reconciler) ProvisionService(cp types.ConnectPoint, sTag, cTag types.VlanID, tpID int) {
	t := newTask(opProvisionTagged, cp)
	t.sTag, t.cTag, t.tpID = sTag, cTag, tpID
	r.enqueue(t)
}

// RemoveService schedules the transparent pair removal for one
// specific service triple.
func (r *Reconciler) RemoveService(cp types.ConnectPoint, sTag, cTag types.VlanID, tpID int) {
	t := newTask(opRemoveTagged, cp)
	t.sTag, t.cTag, t.tpID = sTag, cTag, tpID
	r.enqueue(t)
}

// Purge schedules the bulk cleanup for a departing device.
func (r *Reconciler) Purge(device types.DeviceID) {
	r.enqueue(newTask(opPurge, types.ConnectPoint{Device: device}))
}

// OnHostLearned resumes tasks parked on MAC discovery for the connect
// point.
func (r *Reconciler) OnHostLearned(cp types.ConnectPoint) {
	r.mu.Lock()
	parked := r.parkedOnHost[cp]
	delete(r.parkedOnHost, cp)
	r.mu.Unlock()
	for _, t := range parked {
		r.enqueue(t)
	}
}

func (r *Reconciler) parkOnHost(t *task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, parked := range r.parkedOnHost[t.cp] {
		if parked == t {
			return
		}
	}
	r.parkedOnHost[t.cp] = append(r.parkedOnHost[t.cp], t)
}

func (r *Reconciler) reconcilePortUp(t *task) (bool, error) {
	port := r.registry.Port(t.cp)
	if port == nil || !port.Enabled {
		// the port went away, nothing to converge
		return true, nil
	}
	if r.registry.IsNniPort(*port) {
		return r.reconcileNniUp(t)
	}
	if !r.cfg.EnableEapol {
		return true, nil
	}
	if r.statuses.HasDefaultEapol(*port) {
		return true, nil
	}
	if r.statuses.IsDefaultEapolPendingRemoval(*port) {
		return false, nil
	}

	meter, ready, err := r.meters.EnsureMeter(t.cp.Device, r.cfg.DefaultBpID)
	if err != nil {
		oltLogger.WithFields(log.Fields{
			"device":           t.cp.Device,
			"bandwidthProfile": r.cfg.DefaultBpID,
		}).Warn("Authentication trap will not be installed, bandwidth profile is missing")
		return true, err
	}
	if !ready {
		r.meters.Park(t.cp.Device, func(bool) { r.enqueue(t) })
		return false, ErrMeterUnavailable
	}

	r.emitDefaultEapol(*port, meter, true)
	return true, nil
}

func (r *Reconciler) emitDefaultEapol(port types.Port, meter southbound.MeterID, install bool) {
	key := flows.DefaultEapolKey(port, r.cfg.DefaultTechProfileID)
	next := types.StatusPendingAdd
	if !install {
		next = types.StatusPendingRemove
	}
	r.statuses.Update(key, store.FieldUpdate{DefaultEapol: store.Status(next)})

	flt := r.builder.EapolFlow(port.Number, types.EapolDefaultVlan, r.eapolTechProfileID(port), meter, 0, install)
	r.driver.Filter(port.Device, flt, func(err error) {
		if err != nil {
			oltLogger.WithFields(log.Fields{
				"device":  port.Device,
				"port":    port.Number,
				"install": install,
				"err":     err,
			}).Error("Default authentication trap failed")
			r.statuses.Update(key, store.FieldUpdate{DefaultEapol: store.Status(types.StatusError)})
		}
	})
}

// eapolTechProfileID picks the technology profile carried by the trap
// metadata: the subscriber's own when it has exactly one service,
// otherwise the configured default.
func (r *Reconciler) eapolTechProfileID(port types.Port) int {
	info := r.sadis.SubscriberByPortName(port.Name)
	if info != nil && len(info.UniTagList) == 1 {
		return info.UniTagList[0].TechnologyProfileID
	}
	return types.NoneTpID
}

func (r *Reconciler) reconcileNniUp(t *task) (bool, error) {
	port := r.registry.Port(t.cp)
	if port == nil || !port.Enabled {
		return true, nil
	}

	r.emitFilter(*port, r.builder.LldpFlow(port.Number, true), nil)

	trapVid := types.VlanNone
	if info := r.registry.OltInfo(t.cp.Device); info != nil {
		trapVid = info.NniDhcpTrapVid
	}
	if r.cfg.EnableDhcpOnNni {
		key := flows.NniKey(*port)
		if r.cfg.EnableDhcpV4 {
			r.statuses.Update(key, store.FieldUpdate{Dhcp: store.Status(types.StatusPendingAdd)})
			r.emitFilter(*port, r.builder.DhcpFlow(port.Number, nil, 0, false, false, true, trapVid), &key)
		}
		if r.cfg.EnableDhcpV6 {
			r.statuses.Update(key, store.FieldUpdate{Dhcp: store.Status(types.StatusPendingAdd)})
			r.emitFilter(*port, r.builder.DhcpFlow(port.Number, nil, 0, true, false, true, trapVid), &key)
		}
	}
	if r.cfg.EnableIgmpOnNni {
		r.emitFilter(*port, r.builder.IgmpFlow(port.Number, nil, 0, false, true), nil)
	}
	if r.cfg.EnablePppoe {
		r.emitFilter(*port, r.builder.PppoedFlow(port.Number, nil, 0, false, true), nil)
	}
	return true, nil
}

// emitFilter pushes one trap directive; when key is set a failure is
// reflected in the DHCP status of that service.
func (r *Reconciler) emitFilter(port types.Port, flt southbound.FilteringObjective, key *types.ServiceKey) {
	r.driver.Filter(port.Device, flt, func(err error) {
		if err != nil {
			oltLogger.WithFields(log.Fields{
				"device":  port.Device,
				"port":    port.Number,
				"install": flt.Install,
				"err":     err,
			}).Error("Trap flow failed")
			if key != nil {
				r.statuses.Update(*key, store.FieldUpdate{Dhcp: store.Status(types.StatusError)})
			}
		}
	})
}

func (r *Reconciler) reconcileProvision(t *task) (bool, error) {
	port := r.registry.Port(t.cp)
	if port == nil {
		oltLogger.WithFields(log.Fields{"cp": t.cp.String()}).Warn("Cannot provision, port is unknown")
		return true, ErrNotConfigured
	}
	if r.registry.IsNniPort(*port) {
		return true, ErrBadRequest
	}
	sub := r.sadis.SubscriberByPortName(port.Name)
	if sub == nil {
		oltLogger.WithFields(log.Fields{
			"cp":       t.cp.String(),
			"portName": port.Name,
		}).Warn("No subscriber found for connect point")
		return true, ErrNotConfigured
	}
	if len(sub.UniTagList) == 0 {
		oltLogger.WithFields(log.Fields{"portName": port.Name}).Warn("Subscriber has no service definitions")
		return true, ErrNotConfigured
	}
	uplink := r.registry.UplinkPort(t.cp.Device)
	if uplink == nil {
		oltLogger.WithFields(log.Fields{"device": t.cp.Device}).Warn("No uplink port found for OLT device")
		return true, ErrNotConfigured
	}

	ready, err := r.ensureSubscriberMeters(t, sub)
	if err != nil {
		r.postTagEvents(types.SubscriberUniTagRegistrationFailed, *port, sub)
		return true, err
	}
	if !ready {
		return false, ErrMeterUnavailable
	}

	// the pre-provisioning trap and the per-service tagged trap are
	// mutually exclusive on the same UNI
	if r.cfg.EnableEapol {
		if r.statuses.HasDefaultEapol(*port) {
			meter, _ := r.meters.MeterFor(t.cp.Device, r.cfg.DefaultBpID)
			r.emitDefaultEapol(*port, meter, false)
			if r.cfg.WaitForRemoval {
				return false, nil
			}
		} else if r.cfg.WaitForRemoval && r.statuses.IsDefaultEapolPendingRemoval(*port) {
			// the removal and the tagged add must not land in the same
			// southbound batch
			return false, nil
		}
	}

	for i := range sub.UniTagList {
		uti := &sub.UniTagList[i]
		done, err := r.provisionService(t, *port, *uplink, uti)
		if err != nil {
			return true, err
		}
		if !done {
			return false, nil
		}
	}
	return true, nil
}

// ensureSubscriberMeters walks every bandwidth profile the subscriber
// references and makes sure a meter exists for each. Returns false
// while any install is still in flight.
func (r *Reconciler) ensureSubscriberMeters(t *task, sub *sadis.SubscriberAndDeviceInformation) (bool, error) {
	allReady := true
	for i := range sub.UniTagList {
		uti := &sub.UniTagList[i]
		if uti.ServiceName == r.cfg.MulticastServiceName {
			continue
		}
		profiles := []string{uti.UpstreamBandwidthProfile, uti.DownstreamBandwidthProfile,
			uti.UpstreamOltBandwidthProfile, uti.DownstreamOltBandwidthProfile}
		for _, bpID := range profiles {
			if bpID == "" {
				continue
			}
			_, ready, err := r.meters.EnsureMeter(t.cp.Device, bpID)
			if err != nil {
				oltLogger.WithFields(log.Fields{
					"device":           t.cp.Device,
					"bandwidthProfile": bpID,
				}).Warn("No meter installed, bandwidth profile definition not found")
				return false, err
			}
			if !ready {
				allReady = false
			}
		}
	}
	if !allReady {
		r.meters.Park(t.cp.Device, func(bool) { r.enqueue(t) })
	}
	return allReady, nil
}

func (r *Reconciler) provisionService(t *task, port, uplink types.Port, uti *sadis.UniTagInformation) (bool, error) {
	key := uti.ServiceKey(port)

	if uti.ServiceName == r.cfg.MulticastServiceName {
		// multicast data flows ride on the multicast service itself
		r.subscribers.Set(key, true)
		r.postTagEvent(types.SubscriberUniTagRegistered, port, uti)
		return true, nil
	}

	usMeter, _ := r.meters.MeterFor(port.Device, uti.UpstreamBandwidthProfile)
	dsMeter, _ := r.meters.MeterFor(port.Device, uti.DownstreamBandwidthProfile)
	usOltMeter, _ := r.meters.MeterFor(port.Device, uti.UpstreamOltBandwidthProfile)
	dsOltMeter, _ := r.meters.MeterFor(port.Device, uti.DownstreamOltBandwidthProfile)

	if uti.IsDhcpRequired && !r.statuses.HasDhcpFlows(key) {
		r.statuses.Update(key, store.FieldUpdate{Dhcp: store.Status(types.StatusPendingAdd)})
		if r.cfg.EnableDhcpV4 {
			r.emitFilter(port, r.builder.DhcpFlow(port.Number, uti, usMeter, false, true, true, types.VlanNone), &key)
		}
		if r.cfg.EnableDhcpV6 {
			r.emitFilter(port, r.builder.DhcpFlow(port.Number, uti, usMeter, true, true, true, types.VlanNone), &key)
		}
	}

	macAddress := uti.ConfiguredMacAddress
	if uti.EnableMacLearning && macAddress == "" {
		learned := r.learnedMac(port.ConnectPoint(), uti.PonCTag)
		if learned == "" {
			if r.macWaitExpired(t) {
				oltLogger.WithFields(log.Fields{
					"cp":   t.cp.String(),
					"cTag": uti.PonCTag,
				}).Warn("Gave up waiting for MAC learning")
				r.postTagEvent(types.SubscriberUniTagRegistrationFailed, port, uti)
				return true, ErrMacPending
			}
			r.parkOnHost(t)
			return false, nil
		}
		macAddress = learned
	}

	if !r.statuses.HasSubscriberFlows(key) {
		r.statuses.Update(key, store.FieldUpdate{SubscriberFlows: store.Status(types.StatusPendingAdd)})
		r.emitDataplane(port, uplink, uti, key, usMeter, dsMeter, usOltMeter, dsOltMeter, macAddress, true)
	}

	r.subscribers.Set(key, true)
	r.postTagEvent(types.SubscriberUniTagRegistered, port, uti)
	return true, nil
}

func (r *Reconciler) emitDataplane(port, uplink types.Port, uti *sadis.UniTagInformation, key types.ServiceKey,
	usMeter, dsMeter, usOltMeter, dsOltMeter southbound.MeterID, macAddress string, install bool) {

	onError := func(direction string) southbound.ObjectiveCallback {
		return func(err error) {
			if err != nil {
				oltLogger.WithFields(log.Fields{
					"cp":        key.ConnectPoint().String(),
					"cTag":      uti.PonCTag,
					"sTag":      uti.PonSTag,
					"direction": direction,
					"install":   install,
					"err":       err,
				}).Error("Data plane flow failed")
				r.statuses.Update(key, store.FieldUpdate{SubscriberFlows: store.Status(types.StatusError)})
				eventType := types.SubscriberUniTagRegistrationFailed
				if !install {
					eventType = types.SubscriberUniTagUnregistrationFailed
				}
				r.postTagEvent(eventType, port, uti)
			}
		}
	}

	up := r.builder.UpstreamForward(uplink.Number, port.Number, uti, usMeter, usOltMeter, install)
	down := r.builder.DownstreamForward(uplink.Number, port.Number, uti, dsMeter, dsOltMeter, macAddress, install)
	r.driver.Forward(port.Device, up, onError("upstream"))
	r.driver.Forward(port.Device, down, onError("downstream"))

	if r.cfg.EnableEapol {
		flt := r.builder.EapolFlow(port.Number, uti.PonCTag, uti.TechnologyProfileID, usMeter, usOltMeter, install)
		r.driver.Filter(port.Device, flt, onError("eapol"))
	}
	if uti.IsIgmpRequired {
		r.emitFilter(port, r.builder.IgmpFlow(port.Number, uti, usMeter, true, install), nil)
	}
	if uti.IsPppoeRequired && r.cfg.EnablePppoe {
		r.emitFilter(port, r.builder.PppoedFlow(port.Number, uti, usMeter, true, install), nil)
	}
}

func (r *Reconciler) learnedMac(cp types.ConnectPoint, cTag types.VlanID) string {
	if r.hosts == nil {
		return ""
	}
	for _, host := range r.hosts.ConnectedHosts(cp) {
		if host.Vlan == cTag {
			return host.MAC
		}
	}
	return ""
}

func (r *Reconciler) macWaitExpired(t *task) bool {
	if r.cfg.MacLearningTimeout <= 0 {
		return false
	}
	if t.macDeadline.IsZero() {
		t.macDeadline = time.Now().Add(time.Duration(r.cfg.MacLearningTimeout) * time.Second)
		return false
	}
	return time.Now().After(t.macDeadline)
}

func (r *Reconciler) reconcileRemove(t *task) (bool, error) {
	keys := r.subscribers.ForPort(t.cp)
	if len(keys) == 0 {
		oltLogger.WithFields(log.Fields{
			"cp": t.cp.String(),
		}).Warn("Subscriber was not previously programmed, nothing to remove")
		return true, nil
	}

	port := r.registry.Port(t.cp)
	uplink := r.registry.UplinkPort(t.cp.Device)

	for _, key := range keys {
		uti := r.serviceFor(key)
		if uti.ServiceName == r.cfg.MulticastServiceName {
			r.subscribers.Set(key, false)
			r.postTagEventForKey(types.SubscriberUniTagUnregistered, port, key, uti)
			continue
		}
		r.removeServiceFlows(port, uplink, key, uti)
		r.subscribers.Set(key, false)
		r.postTagEventForKey(types.SubscriberUniTagUnregistered, port, key, uti)
	}

	// the port goes back to its pre-provisioning state
	if port != nil && port.Enabled && r.cfg.EnableEapol {
		r.enqueue(newTask(opPortUp, t.cp))
	}
	return true, nil
}

// removeServiceFlows emits the inverse of the provisioning suite for
// one service.
func (r *Reconciler) removeServiceFlows(port *types.Port, uplink *types.Port, key types.ServiceKey, uti *sadis.UniTagInformation) {
	if port == nil {
		p := types.Port{Device: key.Device, Number: key.Port, Name: key.PortName}
		port = &p
	}

	usMeter, _ := r.meters.MeterFor(key.Device, uti.UpstreamBandwidthProfile)
	dsMeter, _ := r.meters.MeterFor(key.Device, uti.DownstreamBandwidthProfile)
	usOltMeter, _ := r.meters.MeterFor(key.Device, uti.UpstreamOltBandwidthProfile)
	dsOltMeter, _ := r.meters.MeterFor(key.Device, uti.DownstreamOltBandwidthProfile)

	if r.statuses.HasSubscriberFlows(key) {
		r.statuses.Update(key, store.FieldUpdate{SubscriberFlows: store.Status(types.StatusPendingRemove)})
		uplinkPort := types.Port{Device: key.Device, Number: types.PortNumber(0)}
		if uplink != nil {
			uplinkPort = *uplink
		}
		r.emitDataplane(*port, uplinkPort, uti, key, usMeter, dsMeter, usOltMeter, dsOltMeter, uti.ConfiguredMacAddress, false)
	}
	if r.statuses.HasDhcpFlows(key) {
		r.statuses.Update(key, store.FieldUpdate{Dhcp: store.Status(types.StatusPendingRemove)})
		if r.cfg.EnableDhcpV4 {
			r.emitFilter(*port, r.builder.DhcpFlow(port.Number, uti, usMeter, false, true, false, types.VlanNone), &key)
		}
		if r.cfg.EnableDhcpV6 {
			r.emitFilter(*port, r.builder.DhcpFlow(port.Number, uti, usMeter, true, true, false, types.VlanNone), &key)
		}
	}
}

// serviceFor resolves the full service definition for a key, falling
// back to a minimal one when the subscriber entry is gone.
func (r *Reconciler) serviceFor(key types.ServiceKey) *sadis.UniTagInformation {
	sub := r.sadis.SubscriberByPortName(key.PortName)
	if sub != nil {
		for i := range sub.UniTagList {
			uti := &sub.UniTagList[i]
			if uti.PonCTag == key.CTag && uti.PonSTag == key.STag && uti.TechnologyProfileID == key.TpID {
				return uti
			}
		}
	}
	return &sadis.UniTagInformation{
		PonCTag:             key.CTag,
		PonSTag:             key.STag,
		TechnologyProfileID: key.TpID,
		UniTagMatch:         types.VlanAny,
		UsPonCTagPriority:   types.NoPcp,
		UsPonSTagPriority:   types.NoPcp,
		DsPonCTagPriority:   types.NoPcp,
		DsPonSTagPriority:   types.NoPcp,
	}
}

func (r *Reconciler) reconcilePortDown(t *task) (bool, error) {
	port := r.registry.Port(t.cp)
	uplink := r.registry.UplinkPort(t.cp.Device)

	for _, key := range r.statuses.KeysForPort(t.cp) {
		status, ok := r.statuses.Get(key)
		if !ok {
			continue
		}
		if status.DefaultEapolStatus.HasFlow() && status.DefaultEapolStatus != types.StatusPendingRemove {
			p := types.Port{Device: key.Device, Number: key.Port, Name: key.PortName}
			if port != nil {
				p = *port
			}
			meter, _ := r.meters.MeterFor(key.Device, r.cfg.DefaultBpID)
			r.emitDefaultEapol(p, meter, false)
		}
		if status.SubscriberFlowsStatus.HasFlow() || status.DhcpStatus.HasFlow() {
			r.removeServiceFlows(port, uplink, key, r.serviceFor(key))
		}
	}
	// provisioning intent survives so the subscriber comes back with
	// the port
	return true, nil
}

func (r *Reconciler) reconcileProvisionTagged(t *task) (bool, error) {
	port := r.registry.Port(t.cp)
	if port == nil {
		return true, ErrNotConfigured
	}
	uplink := r.registry.UplinkPort(t.cp.Device)
	if uplink == nil {
		oltLogger.WithFields(log.Fields{"device": t.cp.Device}).Warn("No uplink port found for OLT device")
		return true, ErrNotConfigured
	}
	uti := r.findServiceTriple(*port, t.cTag, t.sTag, t.tpID)
	if uti == nil {
		return true, ErrBadRequest
	}
	key := uti.ServiceKey(*port)

	profiles := map[string]bool{}
	allReady := true
	for _, bpID := range []string{uti.UpstreamBandwidthProfile, uti.DownstreamBandwidthProfile} {
		if bpID == "" || profiles[bpID] {
			continue
		}
		profiles[bpID] = true
		_, ready, err := r.meters.EnsureMeter(t.cp.Device, bpID)
		if err != nil {
			return true, err
		}
		if !ready {
			allReady = false
		}
	}
	if !allReady {
		r.meters.Park(t.cp.Device, func(bool) { r.enqueue(t) })
		return false, ErrMeterUnavailable
	}

	if r.cfg.EnableEapol && r.statuses.HasDefaultEapol(*port) {
		meter, _ := r.meters.MeterFor(t.cp.Device, r.cfg.DefaultBpID)
		r.emitDefaultEapol(*port, meter, false)
		if r.cfg.WaitForRemoval {
			return false, nil
		}
	}

	if !r.statuses.HasSubscriberFlows(key) {
		r.statuses.Update(key, store.FieldUpdate{SubscriberFlows: store.Status(types.StatusPendingAdd)})
		r.emitTransparent(*port, *uplink, uti, key, true)
	}
	r.subscribers.Set(key, true)
	r.postTagEvent(types.SubscriberUniTagRegistered, *port, uti)
	return true, nil
}

func (r *Reconciler) reconcileRemoveTagged(t *task) (bool, error) {
	port := r.registry.Port(t.cp)
	if port == nil {
		return true, nil
	}
	uplink := r.registry.UplinkPort(t.cp.Device)
	if uplink == nil {
		return true, ErrNotConfigured
	}
	uti := r.findServiceTriple(*port, t.cTag, t.sTag, t.tpID)
	if uti == nil {
		oltLogger.WithFields(log.Fields{
			"cp":   t.cp.String(),
			"cTag": t.cTag,
			"sTag": t.sTag,
			"tpId": t.tpID,
		}).Warn("No service definition for the requested triple")
		return true, ErrBadRequest
	}
	key := uti.ServiceKey(*port)

	if r.statuses.HasSubscriberFlows(key) {
		r.statuses.Update(key, store.FieldUpdate{SubscriberFlows: store.Status(types.StatusPendingRemove)})
		r.emitTransparent(*port, *uplink, uti, key, false)
	}
	r.subscribers.Set(key, false)
	r.postTagEvent(types.SubscriberUniTagUnregistered, *port, uti)
	return true, nil
}

func (r *Reconciler) emitTransparent(port, uplink types.Port, uti *sadis.UniTagInformation, key types.ServiceKey, install bool) {
	usMeter, _ := r.meters.MeterFor(port.Device, uti.UpstreamBandwidthProfile)
	dsMeter, _ := r.meters.MeterFor(port.Device, uti.DownstreamBandwidthProfile)

	cb := func(err error) {
		if err != nil {
			r.statuses.Update(key, store.FieldUpdate{SubscriberFlows: store.Status(types.StatusError)})
		}
	}
	r.driver.Forward(port.Device, r.builder.TransparentForward(uplink.Number, port.Number, uti, usMeter, true, install), cb)
	r.driver.Forward(port.Device, r.builder.TransparentForward(uplink.Number, port.Number, uti, dsMeter, false, install), cb)
}

func (r *Reconciler) findServiceTriple(port types.Port, cTag, sTag types.VlanID, tpID int) *sadis.UniTagInformation {
	sub := r.sadis.SubscriberByPortName(port.Name)
	if sub == nil {
		return nil
	}
	for i := range sub.UniTagList {
		uti := &sub.UniTagList[i]
		if uti.PonCTag == cTag && uti.PonSTag == sTag && uti.TechnologyProfileID == tpID {
			return uti
		}
	}
	return nil
}

func (r *Reconciler) reconcilePurge(t *task) (bool, error) {
	device := t.cp.Device
	removed := r.statuses.PurgeDevice(device)
	r.subscribers.PurgeDevice(device)
	r.meters.Clear(device)
	oltLogger.WithFields(log.Fields{
		"device":  device,
		"removed": removed,
	}).Info("Purged device state")
	r.sink.Post(types.AccessDeviceEvent{Type: types.DeviceDisconnected, DeviceID: device})
	return true, nil
}

func (r *Reconciler) postTagEvent(eventType types.AccessDeviceEventType, port types.Port, uti *sadis.UniTagInformation) {
	p := port
	r.sink.Post(types.AccessDeviceEvent{
		Type:     eventType,
		DeviceID: port.Device,
		Port:     &p,
		SVlan:    uti.PonSTag,
		CVlan:    uti.PonCTag,
		TpID:     uti.TechnologyProfileID,
	})
}

func (r *Reconciler) postTagEventForKey(eventType types.AccessDeviceEventType, port *types.Port, key types.ServiceKey, uti *sadis.UniTagInformation) {
	if port != nil {
		r.postTagEvent(eventType, *port, uti)
		return
	}
	r.sink.Post(types.AccessDeviceEvent{
		Type:     eventType,
		DeviceID: key.Device,
		SVlan:    key.STag,
		CVlan:    key.CTag,
		TpID:     key.TpID,
	})
}

func (r *Reconciler) postTagEvents(eventType types.AccessDeviceEventType, port types.Port, sub *sadis.SubscriberAndDeviceInformation) {
	for i := range sub.UniTagList {
		r.postTagEvent(eventType, port, &sub.UniTagList[i])
	}
}
