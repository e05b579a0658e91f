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

	"github.com/opencord/olt/internal/olt/types"
	log "github.com/sirupsen/logrus"
)

var pumpLogger = log.WithFields(log.Fields{
	"module": "DEVICE_EVENTS",
})

// DeviceEventPump serializes device and port events onto one queue,
// filters them by ownership and dispatches them to the reconciler.
type DeviceEventPump struct {
	events     chan types.DeviceEvent
	registry   *DeviceRegistry
	reconciler *Reconciler
	sink       *EventSink
	isMine     func(types.DeviceID) bool
	quit       chan struct{}
	wg         sync.WaitGroup

	// devices this instance programmed, so events for OLTs that
	// disappeared from the subscriber information service still drain
	mu                sync.Mutex
	programmedDevices map[types.DeviceID]bool
}

func NewDeviceEventPump(registry *DeviceRegistry, reconciler *Reconciler, sink *EventSink) *DeviceEventPump {
	return &DeviceEventPump{
		events:            make(chan types.DeviceEvent, 256),
		registry:          registry,
		reconciler:        reconciler,
		sink:              sink,
		isMine:            func(types.DeviceID) bool { return true },
		quit:              make(chan struct{}),
		programmedDevices: make(map[types.DeviceID]bool),
	}
}

// SetOwnershipFn wires the cluster ownership check.
func (p *DeviceEventPump) SetOwnershipFn(fn func(types.DeviceID) bool) {
	p.isMine = fn
}

// Submit hands one event to the pump. Called by the southbound
// adapter.
func (p *DeviceEventPump) Submit(event types.DeviceEvent) {
	select {
	case <-p.quit:
	case p.events <- event:
	}
}

// Start launches the single event loop.
func (p *DeviceEventPump) Start() {
	p.wg.Add(1)
	go p.loop()
}

// Stop terminates the event loop.
func (p *DeviceEventPump) Stop() {
	close(p.quit)
	p.wg.Wait()
}

func (p *DeviceEventPump) loop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case event := <-p.events:
			p.handle(event)
		}
	}
}

func (p *DeviceEventPump) handle(event types.DeviceEvent) {
	switch event.Type {
	case types.PortStatsUpdated, types.DeviceSuspended, types.DeviceUpdated:
		return
	}

	// the inventory tracks every device so that an ownership change
	// finds the ports already known; dispatching below is what the
	// ownership filter gates
	p.updateInventory(event)

	deviceID := event.Device.ID
	// keep the device record around while its removal is dispatched,
	// the disconnect sweep still needs the port list
	if event.Type == types.DeviceRemoved {
		defer p.registry.RemoveDevice(deviceID)
	}
	if !p.isMine(deviceID) {
		return
	}

	pumpLogger.WithFields(log.Fields{
		"type":   event.Type,
		"device": deviceID,
	}).Debug("Handling device event")

	if p.registry.OltInfo(deviceID) == nil && !p.isProgrammed(deviceID) {
		pumpLogger.WithFields(log.Fields{
			"device": deviceID,
			"serial": event.Device.SerialNumber,
		}).Warn("No device info found, this is either not an OLT or not known to the subscriber information service")
		return
	}

	switch event.Type {
	case types.PortAdded:
		p.handlePortAdded(event)
	case types.PortRemoved:
		p.handlePortRemoved(event)
	case types.PortUpdated:
		p.handlePortUpdated(event)
	case types.DeviceAdded:
		p.handleDeviceConnection(event.Device, true)
	case types.DeviceRemoved:
		p.handleDeviceDisconnection(event.Device, true)
	case types.DeviceAvailabilityChanged:
		if event.Available {
			p.handleDeviceConnection(event.Device, false)
		} else {
			p.handleDeviceDisconnection(event.Device, false)
		}
	}
}

func (p *DeviceEventPump) updateInventory(event types.DeviceEvent) {
	p.registry.UpsertDevice(event.Device)
	switch event.Type {
	case types.PortAdded, types.PortUpdated:
		if event.Port != nil {
			p.registry.UpsertPort(*event.Port)
		}
	case types.PortRemoved:
		if event.Port != nil {
			p.registry.RemovePort(event.Port.ConnectPoint())
		}
	case types.DeviceAdded:
		p.registry.SetAvailable(event.Device.ID, true)
	case types.DeviceAvailabilityChanged:
		p.registry.SetAvailable(event.Device.ID, event.Available)
	}
}

func (p *DeviceEventPump) handlePortAdded(event types.DeviceEvent) {
	port := event.Port
	if port == nil || port.Number == types.PortLocal {
		return
	}
	if p.registry.IsNniPort(*port) {
		p.reconciler.NniUp(port.ConnectPoint())
		return
	}
	p.sink.Post(types.AccessDeviceEvent{Type: types.UniAdded, DeviceID: port.Device, Port: port})
	if port.Enabled {
		p.reconciler.PortUp(port.ConnectPoint())
	}
}

func (p *DeviceEventPump) handlePortRemoved(event types.DeviceEvent) {
	port := event.Port
	if port == nil {
		return
	}
	if p.registry.IsNniPort(*port) {
		return
	}
	p.reconciler.PortDown(port.ConnectPoint())
	p.sink.Post(types.AccessDeviceEvent{Type: types.UniRemoved, DeviceID: port.Device, Port: port})
}

func (p *DeviceEventPump) handlePortUpdated(event types.DeviceEvent) {
	port := event.Port
	if port == nil || p.registry.IsNniPort(*port) {
		return
	}
	// an enable bit toggle is a port add or remove in disguise
	if port.Enabled {
		if port.Number != types.PortLocal {
			p.reconciler.PortUp(port.ConnectPoint())
		}
		p.sink.Post(types.AccessDeviceEvent{Type: types.UniAdded, DeviceID: port.Device, Port: port})
	} else {
		p.reconciler.PortDown(port.ConnectPoint())
		p.sink.Post(types.AccessDeviceEvent{Type: types.UniRemoved, DeviceID: port.Device, Port: port})
	}
}

func (p *DeviceEventPump) handleDeviceConnection(device types.Device, sendUniEvents bool) {
	pumpLogger.WithFields(log.Fields{
		"device": device.ID,
		"serial": device.SerialNumber,
	}).Info("Device connected")
	p.sink.Post(types.AccessDeviceEvent{Type: types.DeviceConnected, DeviceID: device.ID})
	p.setProgrammed(device.ID, true)
	p.checkAndCreateDeviceFlows(device.ID)
	if sendUniEvents {
		p.sendUniEvents(device.ID, types.UniAdded)
	}
}

func (p *DeviceEventPump) handleDeviceDisconnection(device types.Device, sendUniEvents bool) {
	pumpLogger.WithFields(log.Fields{
		"device": device.ID,
		"serial": device.SerialNumber,
	}).Info("Device disconnected")
	p.setProgrammed(device.ID, false)
	p.reconciler.Purge(device.ID)
	if sendUniEvents {
		p.sendUniEvents(device.ID, types.UniRemoved)
	}
}

// checkAndCreateDeviceFlows walks the device ports and schedules the
// trap suites for every enabled one.
func (p *DeviceEventPump) checkAndCreateDeviceFlows(device types.DeviceID) {
	for _, port := range p.registry.Ports(device) {
		if port.Number == types.PortLocal || !port.Enabled {
			continue
		}
		if p.registry.IsNniPort(port) {
			p.reconciler.NniUp(port.ConnectPoint())
		} else {
			p.reconciler.PortUp(port.ConnectPoint())
		}
	}
}

func (p *DeviceEventPump) sendUniEvents(device types.DeviceID, eventType types.AccessDeviceEventType) {
	for _, port := range p.registry.Ports(device) {
		if port.Number == types.PortLocal || p.registry.IsNniPort(port) {
			continue
		}
		uniPort := port
		p.sink.Post(types.AccessDeviceEvent{Type: eventType, DeviceID: device, Port: &uniPort})
	}
}

func (p *DeviceEventPump) isProgrammed(device types.DeviceID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.programmedDevices[device]
}

func (p *DeviceEventPump) setProgrammed(device types.DeviceID, programmed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if programmed {
		p.programmedDevices[device] = true
	} else {
		delete(p.programmedDevices, device)
	}
}
