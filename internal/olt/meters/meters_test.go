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

package meters

import (
	"sync"
	"testing"

	"github.com/opencord/olt/internal/olt/sadis"
	"github.com/opencord/olt/internal/olt/southbound"
	"github.com/opencord/olt/internal/olt/types"
	"github.com/stretchr/testify/assert"
)

// meterDriver records meter requests and lets the test decide when
// they complete.
type meterDriver struct {
	mu        sync.Mutex
	submitted []southbound.MeterRequest
	withdrawn []southbound.MeterID
	callbacks []southbound.ObjectiveCallback
}

func (d *meterDriver) Filter(types.DeviceID, southbound.FilteringObjective, southbound.ObjectiveCallback) {
}
func (d *meterDriver) Forward(types.DeviceID, southbound.ForwardingObjective, southbound.ObjectiveCallback) {
}

func (d *meterDriver) SubmitMeter(device types.DeviceID, req southbound.MeterRequest, cb southbound.ObjectiveCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitted = append(d.submitted, req)
	d.callbacks = append(d.callbacks, cb)
}

func (d *meterDriver) WithdrawMeter(device types.DeviceID, meter southbound.MeterID, cb southbound.ObjectiveCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.withdrawn = append(d.withdrawn, meter)
	cb(nil)
}

func (d *meterDriver) completeAll(err error) {
	d.mu.Lock()
	callbacks := d.callbacks
	d.callbacks = nil
	d.mu.Unlock()
	for _, cb := range callbacks {
		cb(err)
	}
}

func testProfiles() func(string) *sadis.BandwidthProfileInformation {
	profiles := map[string]*sadis.BandwidthProfileInformation{
		"HSIA-US": {ID: "HSIA-US", CommittedRate: 30000, CommittedBurstSize: 10000, ExceededRate: 100000, ExceededBurstSize: 1000, AssuredRate: 100000},
		"Default": {ID: "Default", CommittedRate: 600, CommittedBurstSize: 30, ExceededRate: 400, ExceededBurstSize: 30, AssuredRate: 100000},
	}
	return func(id string) *sadis.BandwidthProfileInformation {
		return profiles[id]
	}
}

func TestMeterCache_EnsureMeter(t *testing.T) {
	driver := &meterDriver{}
	cache := NewMeterCache(driver, testProfiles(), "test")

	meter, ready, err := cache.EnsureMeter("of:1", "HSIA-US")
	assert.NoError(t, err)
	assert.False(t, ready)
	assert.NotZero(t, meter)
	assert.Len(t, driver.submitted, 1)
	assert.Equal(t, int64(30000), driver.submitted[0].Committed.Rate)
	assert.Equal(t, int64(1000), driver.submitted[0].Exceeded.BurstSize)

	// a second call while the install is in flight must not submit a
	// duplicate
	again, ready, err := cache.EnsureMeter("of:1", "HSIA-US")
	assert.NoError(t, err)
	assert.False(t, ready)
	assert.Equal(t, meter, again)
	assert.Len(t, driver.submitted, 1)

	driver.completeAll(nil)

	installed, ready, err := cache.EnsureMeter("of:1", "HSIA-US")
	assert.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, meter, installed)
	assert.Len(t, driver.submitted, 1)
}

func TestMeterCache_UnknownProfile(t *testing.T) {
	driver := &meterDriver{}
	cache := NewMeterCache(driver, testProfiles(), "test")

	_, ready, err := cache.EnsureMeter("of:1", "missing")
	assert.Error(t, err)
	assert.False(t, ready)
	assert.Empty(t, driver.submitted)
}

func TestMeterCache_ParkedWorkDrains(t *testing.T) {
	driver := &meterDriver{}
	cache := NewMeterCache(driver, testProfiles(), "test")

	_, ready, _ := cache.EnsureMeter("of:1", "HSIA-US")
	assert.False(t, ready)

	resumed := make(chan bool, 1)
	cache.Park("of:1", func(ok bool) { resumed <- ok })

	driver.completeAll(nil)
	assert.True(t, <-resumed)

	// the queue drains once, nothing is replayed on the next settle
	_, _, _ = cache.EnsureMeter("of:1", "Default")
	driver.completeAll(nil)
	select {
	case <-resumed:
		t.Fatal("parked work resumed twice")
	default:
	}
}

func TestMeterCache_FailedInstall(t *testing.T) {
	driver := &meterDriver{}
	cache := NewMeterCache(driver, testProfiles(), "test")

	_, ready, _ := cache.EnsureMeter("of:1", "HSIA-US")
	assert.False(t, ready)

	resumed := make(chan bool, 1)
	cache.Park("of:1", func(ok bool) { resumed <- ok })

	driver.completeAll(southbound.ErrUnknown)
	assert.False(t, <-resumed)

	// no binding was left behind, the next attempt retries the install
	_, ok := cache.MeterFor("of:1", "HSIA-US")
	assert.False(t, ok)
	_, ready, err := cache.EnsureMeter("of:1", "HSIA-US")
	assert.NoError(t, err)
	assert.False(t, ready)
	assert.Len(t, driver.submitted, 2)
}

func TestMeterCache_PerDeviceIsolation(t *testing.T) {
	driver := &meterDriver{}
	cache := NewMeterCache(driver, testProfiles(), "test")

	_, _, _ = cache.EnsureMeter("of:1", "HSIA-US")
	_, _, _ = cache.EnsureMeter("of:2", "HSIA-US")
	assert.Len(t, driver.submitted, 2)
}

func TestMeterCache_Clear(t *testing.T) {
	driver := &meterDriver{}
	cache := NewMeterCache(driver, testProfiles(), "test")

	_, _, _ = cache.EnsureMeter("of:1", "HSIA-US")
	driver.completeAll(nil)
	_, ok := cache.MeterFor("of:1", "HSIA-US")
	assert.True(t, ok)

	cache.Clear("of:1")
	_, ok = cache.MeterFor("of:1", "HSIA-US")
	assert.False(t, ok)
}

func TestMeterCache_ReferenceCountZero(t *testing.T) {
	driver := &meterDriver{}
	cache := NewMeterCache(driver, testProfiles(), "test")

	meter, _, _ := cache.EnsureMeter("of:1", "HSIA-US")
	driver.completeAll(nil)

	// still referenced, nothing happens
	cache.SetUsageFn(func(types.DeviceID, southbound.MeterID) bool { return true })
	cache.OnMeterReferenceCountZero("of:1", meter, "test")
	assert.Empty(t, driver.withdrawn)

	// a foreign application's meter is never ours to withdraw
	cache.SetUsageFn(func(types.DeviceID, southbound.MeterID) bool { return false })
	cache.OnMeterReferenceCountZero("of:1", meter, "someone-else")
	assert.Empty(t, driver.withdrawn)

	cache.OnMeterReferenceCountZero("of:1", meter, "test")
	assert.Equal(t, []southbound.MeterID{meter}, driver.withdrawn)
	_, ok := cache.MeterFor("of:1", "HSIA-US")
	assert.False(t, ok)
}
