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

package store

import (
	"testing"

	"github.com/opencord/olt/internal/olt/types"
	"github.com/stretchr/testify/assert"
)

func testKey() types.ServiceKey {
	return types.ServiceKey{
		Device:   "of:1",
		Port:     16,
		PortName: "BBSM0001-1",
		CTag:     101,
		STag:     7,
		TpID:     64,
	}
}

func testPort() types.Port {
	return types.Port{Device: "of:1", Number: 16, Name: "BBSM0001-1", Enabled: true}
}

func TestStatusStore_MergeContract(t *testing.T) {
	s := NewStatusStore()
	key := testKey()

	s.Update(key, FieldUpdate{Dhcp: Status(types.StatusPendingAdd)})
	s.Update(key, FieldUpdate{SubscriberFlows: Status(types.StatusPendingAdd)})

	// a nil field leaves the other fields alone
	status, ok := s.Get(key)
	assert.True(t, ok)
	assert.Equal(t, types.StatusPendingAdd, status.DhcpStatus)
	assert.Equal(t, types.StatusPendingAdd, status.SubscriberFlowsStatus)
	assert.Equal(t, types.StatusNone, status.DefaultEapolStatus)
}

func TestStatusStore_IllegalTransitionRejected(t *testing.T) {
	s := NewStatusStore()
	key := testKey()

	// NONE cannot jump straight to ADDED
	s.Update(key, FieldUpdate{Dhcp: Status(types.StatusAdded)})
	_, ok := s.Get(key)
	assert.False(t, ok)

	s.Update(key, FieldUpdate{Dhcp: Status(types.StatusPendingAdd)})
	s.Update(key, FieldUpdate{Dhcp: Status(types.StatusAdded)})
	status, _ := s.Get(key)
	assert.Equal(t, types.StatusAdded, status.DhcpStatus)

	// ADDED cannot go back to PENDING_ADD without removal in between
	s.Update(key, FieldUpdate{Dhcp: Status(types.StatusPendingAdd)})
	status, _ = s.Get(key)
	assert.Equal(t, types.StatusAdded, status.DhcpStatus)
}

func TestStatusStore_FullyRemovedEntryIsPruned(t *testing.T) {
	s := NewStatusStore()
	key := testKey()

	s.Update(key, FieldUpdate{SubscriberFlows: Status(types.StatusPendingAdd)})
	s.Update(key, FieldUpdate{SubscriberFlows: Status(types.StatusAdded)})
	s.Update(key, FieldUpdate{SubscriberFlows: Status(types.StatusPendingRemove)})
	_, ok := s.Get(key)
	assert.True(t, ok)

	s.Update(key, FieldUpdate{SubscriberFlows: Status(types.StatusRemoved)})
	_, ok = s.Get(key)
	assert.False(t, ok)
}

func TestStatusStore_HasDefaultEapol(t *testing.T) {
	s := NewStatusStore()
	port := testPort()
	key := testKey()

	assert.False(t, s.HasDefaultEapol(port))

	s.Update(key, FieldUpdate{DefaultEapol: Status(types.StatusPendingAdd)})
	assert.True(t, s.HasDefaultEapol(port))

	s.Update(key, FieldUpdate{DefaultEapol: Status(types.StatusError)})
	// the southbound keeps retrying an errored flow, it counts as
	// present
	assert.True(t, s.HasDefaultEapol(port))

	s.Update(key, FieldUpdate{DefaultEapol: Status(types.StatusPendingRemove)})
	assert.False(t, s.HasDefaultEapol(port))
	assert.True(t, s.IsDefaultEapolPendingRemoval(port))

	s.Update(key, FieldUpdate{DefaultEapol: Status(types.StatusRemoved)})
	assert.False(t, s.IsDefaultEapolPendingRemoval(port))
}

func TestStatusStore_ServiceQueries(t *testing.T) {
	s := NewStatusStore()
	key := testKey()

	assert.False(t, s.HasDhcpFlows(key))
	assert.False(t, s.HasSubscriberFlows(key))

	s.Update(key, FieldUpdate{Dhcp: Status(types.StatusPendingAdd)})
	assert.True(t, s.HasDhcpFlows(key))

	s.Update(key, FieldUpdate{SubscriberFlows: Status(types.StatusPendingAdd)})
	s.Update(key, FieldUpdate{SubscriberFlows: Status(types.StatusAdded)})
	assert.True(t, s.HasSubscriberFlows(key))

	s.Update(key, FieldUpdate{SubscriberFlows: Status(types.StatusError)})
	assert.False(t, s.HasSubscriberFlows(key))
}

func TestStatusStore_PurgeDevice(t *testing.T) {
	s := NewStatusStore()
	key := testKey()
	other := testKey()
	other.Device = "of:2"

	s.Update(key, FieldUpdate{Dhcp: Status(types.StatusPendingAdd)})
	s.Update(other, FieldUpdate{Dhcp: Status(types.StatusPendingAdd)})

	removed := s.PurgeDevice("of:1")
	assert.Equal(t, 1, removed)

	for k := range s.All() {
		assert.NotEqual(t, types.DeviceID("of:1"), k.Device)
	}
}

func TestStatusStore_KeysForPort(t *testing.T) {
	s := NewStatusStore()
	key := testKey()
	second := testKey()
	second.CTag = 102

	s.Update(key, FieldUpdate{Dhcp: Status(types.StatusPendingAdd)})
	s.Update(second, FieldUpdate{Dhcp: Status(types.StatusPendingAdd)})

	keys := s.KeysForPort(types.ConnectPoint{Device: "of:1", Port: 16})
	assert.Len(t, keys, 2)
}

func TestProvisionedSubscribers(t *testing.T) {
	p := NewProvisionedSubscribers()
	key := testKey()

	assert.False(t, p.IsProvisioned(key))

	p.Set(key, true)
	assert.True(t, p.IsProvisioned(key))
	assert.Len(t, p.ForPort(key.ConnectPoint()), 1)
	assert.Len(t, p.All(), 1)

	p.Set(key, false)
	assert.False(t, p.IsProvisioned(key))
	assert.Empty(t, p.All())
}

func TestProvisionedSubscribers_PurgeDevice(t *testing.T) {
	p := NewProvisionedSubscribers()
	key := testKey()
	other := testKey()
	other.Device = "of:2"

	p.Set(key, true)
	p.Set(other, true)

	p.PurgeDevice("of:1")
	assert.False(t, p.IsProvisioned(key))
	assert.True(t, p.IsProvisioned(other))
}
