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

	"github.com/looplab/fsm"
	"github.com/opencord/olt/internal/olt/sadis"
	"github.com/opencord/olt/internal/olt/types"
	log "github.com/sirupsen/logrus"
)

var registryLogger = log.WithFields(log.Fields{
	"module": "REGISTRY",
})

type deviceState struct {
	device    types.Device
	ports     map[types.PortNumber]*types.Port
	operState *fsm.FSM
}

func newOperStateFSM(device types.DeviceID) *fsm.FSM {
	return fsm.NewFSM(
		"down",
		fsm.Events{
			{Name: "enable", Src: []string{"down"}, Dst: "up"},
			{Name: "disable", Src: []string{"up"}, Dst: "down"},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				registryLogger.WithFields(log.Fields{
					"device": device,
				}).Debugf("Changing device OperState from %s to %s", e.Src, e.Dst)
			},
		},
	)
}

// DeviceRegistry is the local inventory of devices and ports, kept in
// sync by the event pump.
type DeviceRegistry struct {
	mu      sync.RWMutex
	devices map[types.DeviceID]*deviceState
	sadis   sadis.Service
}

func NewDeviceRegistry(sadisService sadis.Service) *DeviceRegistry {
	return &DeviceRegistry{
		devices: make(map[types.DeviceID]*deviceState),
		sadis:   sadisService,
	}
}

// UpsertDevice records a device, preserving its ports if already
// known.
func (r *DeviceRegistry) UpsertDevice(device types.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.devices[device.ID]; ok {
		state.device = device
		return
	}
	r.devices[device.ID] = &deviceState{
		device:    device,
		ports:     make(map[types.PortNumber]*types.Port),
		operState: newOperStateFSM(device.ID),
	}
}

// RemoveDevice forgets a device and all its ports.
func (r *DeviceRegistry) RemoveDevice(id types.DeviceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, id)
}

// SetAvailable drives the device oper state machine.
func (r *DeviceRegistry) SetAvailable(id types.DeviceID, available bool) {
	r.mu.RLock()
	state, ok := r.devices[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	event := "enable"
	if !available {
		event = "disable"
	}
	_ = state.operState.Event(event)
}

// IsAvailable reports the device oper state.
func (r *DeviceRegistry) IsAvailable(id types.DeviceID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.devices[id]
	return ok && state.operState.Current() == "up"
}

// Device returns the device record, if known.
func (r *DeviceRegistry) Device(id types.DeviceID) *types.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.devices[id]
	if !ok {
		return nil
	}
	device := state.device
	return &device
}

// Devices returns every known device.
func (r *DeviceRegistry) Devices() []types.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Device, 0, len(r.devices))
	for _, state := range r.devices {
		out = append(out, state.device)
	}
	return out
}

// UpsertPort records a port. The owning device must be known.
func (r *DeviceRegistry) UpsertPort(port types.Port) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.devices[port.Device]
	if !ok {
		registryLogger.WithFields(log.Fields{
			"device": port.Device,
			"port":   port.Number,
		}).Warn("Ignoring port for unknown device")
		return
	}
	p := port
	state.ports[port.Number] = &p
}

// RemovePort forgets a port.
func (r *DeviceRegistry) RemovePort(cp types.ConnectPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.devices[cp.Device]; ok {
		delete(state.ports, cp.Port)
	}
}

// Port returns the port on a connect point, if known.
func (r *DeviceRegistry) Port(cp types.ConnectPoint) *types.Port {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.devices[cp.Device]
	if !ok {
		return nil
	}
	port, ok := state.ports[cp.Port]
	if !ok {
		return nil
	}
	p := *port
	return &p
}

// PortByNumber implements the lookup used by the flow listener.
func (r *DeviceRegistry) PortByNumber(device types.DeviceID, number types.PortNumber) *types.Port {
	return r.Port(types.ConnectPoint{Device: device, Port: number})
}

// Ports returns every port of a device.
func (r *DeviceRegistry) Ports(device types.DeviceID) []types.Port {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.devices[device]
	if !ok {
		return nil
	}
	out := make([]types.Port, 0, len(state.ports))
	for _, port := range state.ports {
		out = append(out, *port)
	}
	return out
}

// FindPortByName scans every device for the port carrying the given
// name annotation. Port names are the subscriber key, unique across
// the access network.
func (r *DeviceRegistry) FindPortByName(name string) *types.Port {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, state := range r.devices {
		for _, port := range state.ports {
			if port.Name == name {
				p := *port
				return &p
			}
		}
	}
	return nil
}

// OltInfo returns the OLT-level record for a device, looked up in the
// subscriber information service by device serial number.
func (r *DeviceRegistry) OltInfo(device types.DeviceID) *sadis.SubscriberAndDeviceInformation {
	dev := r.Device(device)
	if dev == nil {
		return nil
	}
	return r.sadis.SubscriberByPortName(dev.SerialNumber)
}

// UplinkPort returns the NNI port configured for the device, if
// present and known.
func (r *DeviceRegistry) UplinkPort(device types.DeviceID) *types.Port {
	info := r.OltInfo(device)
	if info == nil {
		registryLogger.WithFields(log.Fields{
			"device": device,
		}).Warn("Device is not configured in the subscriber information service")
		return nil
	}
	return r.Port(types.ConnectPoint{Device: device, Port: types.PortNumber(info.UplinkPort)})
}

// IsNniPort reports whether the port is the uplink. The port number is
// compared against the configured uplink; when the device is unknown
// to the subscriber information service the port name signature is the
// fallback.
func (r *DeviceRegistry) IsNniPort(port types.Port) bool {
	info := r.OltInfo(port.Device)
	if info != nil {
		return types.PortNumber(info.UplinkPort) == port.Number
	}
	return port.HasNniName()
}
