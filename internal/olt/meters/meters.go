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

// Package meters maps bandwidth profiles to device meters and parks
// flow work until the meters it needs are confirmed installed.
package meters

import (
	"sync"

	"github.com/opencord/olt/internal/olt/sadis"
	"github.com/opencord/olt/internal/olt/southbound"
	"github.com/opencord/olt/internal/olt/types"
	log "github.com/sirupsen/logrus"
)

var meterLogger = log.WithFields(log.Fields{
	"module": "METERS",
})

// UsageFn reports whether a meter is still referenced by the programmed
// subscriber set on a device.
type UsageFn func(device types.DeviceID, meter southbound.MeterID) bool

// MeterCache guarantees at most one meter per (device, bandwidth
// profile) and defers flow work until the meter exists.
type MeterCache struct {
	mu     sync.Mutex
	driver southbound.Driver
	bp     func(string) *sadis.BandwidthProfileInformation
	appID  string
	inUse  UsageFn

	// bandwidth profile id to meter, per device
	meters map[types.DeviceID]map[string]southbound.MeterID
	// profiles with an outstanding install, per device
	pending map[types.DeviceID]map[string]southbound.MeterID
	// work parked until a meter settles, per device
	parked map[types.DeviceID][]func(ok bool)
	nextID map[types.DeviceID]uint32
}

func NewMeterCache(driver southbound.Driver, bp func(string) *sadis.BandwidthProfileInformation, appID string) *MeterCache {
	return &MeterCache{
		driver:  driver,
		bp:      bp,
		appID:   appID,
		meters:  make(map[types.DeviceID]map[string]southbound.MeterID),
		pending: make(map[types.DeviceID]map[string]southbound.MeterID),
		parked:  make(map[types.DeviceID][]func(ok bool)),
		nextID:  make(map[types.DeviceID]uint32),
	}
}

// SetUsageFn wires the programmed-subscriber check used when the driver
// reports a meter with no remaining references.
func (c *MeterCache) SetUsageFn(fn UsageFn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inUse = fn
}

// EnsureMeter returns the meter bound to the profile on the device,
// creating it if needed. The boolean reports whether the meter is
// installed; when false the caller must not emit flows referencing it
// and should park itself with Park.
func (c *MeterCache) EnsureMeter(device types.DeviceID, bpID string) (southbound.MeterID, bool, error) {
	c.mu.Lock()

	if meter, ok := c.meters[device][bpID]; ok {
		c.mu.Unlock()
		return meter, true, nil
	}
	if meter, ok := c.pending[device][bpID]; ok {
		// install already in flight, do not issue a duplicate
		c.mu.Unlock()
		return meter, false, nil
	}

	bpInfo := c.bp(bpID)
	if bpInfo == nil {
		c.mu.Unlock()
		meterLogger.WithFields(log.Fields{
			"device":           device,
			"bandwidthProfile": bpID,
		}).Warn("Bandwidth profile not found, no meter will be installed")
		return 0, false, southbound.ErrBadParams
	}

	meter := c.allocateLocked(device)
	if c.pending[device] == nil {
		c.pending[device] = make(map[string]southbound.MeterID)
	}
	c.pending[device][bpID] = meter
	c.mu.Unlock()

	req := southbound.MeterRequest{
		Meter:     meter,
		AppID:     c.appID,
		Committed: southbound.Band{Rate: bpInfo.CommittedRate, BurstSize: bpInfo.CommittedBurstSize},
		Exceeded:  southbound.Band{Rate: bpInfo.ExceededRate, BurstSize: bpInfo.ExceededBurstSize},
		Assured:   southbound.Band{Rate: bpInfo.AssuredRate},
	}

	meterLogger.WithFields(log.Fields{
		"device":           device,
		"bandwidthProfile": bpID,
		"meter":            meter,
	}).Info("Submitting meter")

	c.driver.SubmitMeter(device, req, func(err error) {
		if err != nil {
			meterLogger.WithFields(log.Fields{
				"device":           device,
				"bandwidthProfile": bpID,
				"meter":            meter,
				"err":              err,
			}).Error("Meter installation failed")
			c.OnMeterFailed(device, meter)
			return
		}
		c.OnMeterInstalled(device, meter)
	})

	return meter, false, nil
}

// Park defers work on a device until the next meter for it settles.
// The callback receives true when the awaited install succeeded. When
// nothing is in flight anymore the work resumes immediately, so a
// caller racing the install confirmation cannot strand itself.
func (c *MeterCache) Park(device types.DeviceID, resume func(ok bool)) {
	c.mu.Lock()
	if len(c.pending[device]) == 0 {
		c.mu.Unlock()
		resume(true)
		return
	}
	c.parked[device] = append(c.parked[device], resume)
	c.mu.Unlock()
}

// MeterFor returns the current binding without allocating.
func (c *MeterCache) MeterFor(device types.DeviceID, bpID string) (southbound.MeterID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	meter, ok := c.meters[device][bpID]
	return meter, ok
}

// OnMeterInstalled confirms a pending meter and resumes parked work.
func (c *MeterCache) OnMeterInstalled(device types.DeviceID, meter southbound.MeterID) {
	c.settle(device, meter, true)
}

// OnMeterFailed drops a pending meter and resumes parked work so it can
// observe the failure.
func (c *MeterCache) OnMeterFailed(device types.DeviceID, meter southbound.MeterID) {
	c.settle(device, meter, false)
}

func (c *MeterCache) settle(device types.DeviceID, meter southbound.MeterID, ok bool) {
	c.mu.Lock()
	for bpID, pendingMeter := range c.pending[device] {
		if pendingMeter != meter {
			continue
		}
		delete(c.pending[device], bpID)
		if ok {
			if c.meters[device] == nil {
				c.meters[device] = make(map[string]southbound.MeterID)
			}
			c.meters[device][bpID] = meter
		}
		break
	}
	queue := c.parked[device]
	delete(c.parked, device)
	c.mu.Unlock()

	meterLogger.WithFields(log.Fields{
		"device":    device,
		"meter":     meter,
		"installed": ok,
		"parked":    len(queue),
	}).Debug("Meter settled, draining parked work")

	for _, resume := range queue {
		resume(ok)
	}
}

// Clear forgets every binding for a departing device.
func (c *MeterCache) Clear(device types.DeviceID) {
	c.mu.Lock()
	queue := c.parked[device]
	delete(c.meters, device)
	delete(c.pending, device)
	delete(c.parked, device)
	delete(c.nextID, device)
	c.mu.Unlock()

	for _, resume := range queue {
		resume(false)
	}
}

// OnMeterReferenceCountZero withdraws a meter this application
// installed once nothing in the programmed set references it anymore.
func (c *MeterCache) OnMeterReferenceCountZero(device types.DeviceID, meter southbound.MeterID, appID string) {
	if appID != c.appID {
		return
	}

	c.mu.Lock()
	var boundBp string
	for bpID, m := range c.meters[device] {
		if m == meter {
			boundBp = bpID
			break
		}
	}
	if boundBp == "" {
		c.mu.Unlock()
		return
	}
	inUse := c.inUse
	c.mu.Unlock()

	if inUse != nil && inUse(device, meter) {
		return
	}

	c.mu.Lock()
	delete(c.meters[device], boundBp)
	c.mu.Unlock()

	meterLogger.WithFields(log.Fields{
		"device":           device,
		"meter":            meter,
		"bandwidthProfile": boundBp,
	}).Info("Withdrawing unreferenced meter")

	c.driver.WithdrawMeter(device, meter, func(err error) {
		if err != nil {
			meterLogger.WithFields(log.Fields{
				"device": device,
				"meter":  meter,
				"err":    err,
			}).Error("Meter withdrawal failed")
		}
	})
}

func (c *MeterCache) allocateLocked(device types.DeviceID) southbound.MeterID {
	c.nextID[device]++
	return southbound.MeterID(c.nextID[device])
}
