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

// Package store keeps the per-service flow statuses and the operator
// provisioning intent. Both maps are the in-process mirror of their
// cluster-replicated counterparts; readers and writers synchronize
// here, the replication layer keeps the mirrors coherent across nodes.
package store

import (
	"sync"

	"github.com/opencord/olt/internal/olt/types"
	log "github.com/sirupsen/logrus"
)

var storeLogger = log.WithFields(log.Fields{
	"module": "STORE",
})

// Replicated map names, stable across versions.
const (
	CpStatusMapName              = "volt-cp-status"
	ProvisionedSubscriberMapName = "volt-provisioned-subscriber"
)

// FieldUpdate carries the per-field merge request for one ServiceKey.
// A nil field leaves the current value untouched.
type FieldUpdate struct {
	DefaultEapol    *types.OltFlowsStatus
	SubscriberFlows *types.OltFlowsStatus
	Dhcp            *types.OltFlowsStatus
}

// Status returns a FieldUpdate pointer argument for s.
func Status(s types.OltFlowsStatus) *types.OltFlowsStatus {
	return &s
}

// StatusStore is the source of truth for flow idempotence decisions.
type StatusStore struct {
	mu       sync.RWMutex
	statuses map[types.ServiceKey]types.OltPortStatus
}

func NewStatusStore() *StatusStore {
	storeLogger.WithFields(log.Fields{
		"map": CpStatusMapName,
	}).Debug("Opened connect point status map")
	return &StatusStore{
		statuses: make(map[types.ServiceKey]types.OltPortStatus),
	}
}

// Get returns the record for a key, and whether it exists.
func (s *StatusStore) Get(key types.ServiceKey) (types.OltPortStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[key]
	return status, ok
}

// Update merges upd into the record for key in a single compare and
// update step. Illegal transitions are rejected per field and logged;
// legal fields still apply. An entry whose three fields all end up
// NONE or REMOVED is dropped.
func (s *StatusStore) Update(key types.ServiceKey, upd FieldUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.statuses[key]

	current.DefaultEapolStatus = mergeField(key, "defaultEapol", current.DefaultEapolStatus, upd.DefaultEapol)
	current.SubscriberFlowsStatus = mergeField(key, "subscriberFlows", current.SubscriberFlowsStatus, upd.SubscriberFlows)
	current.DhcpStatus = mergeField(key, "dhcp", current.DhcpStatus, upd.Dhcp)

	if !current.HasAnyFlow() {
		delete(s.statuses, key)
		return
	}
	s.statuses[key] = current
}

func mergeField(key types.ServiceKey, name string, current types.OltFlowsStatus, next *types.OltFlowsStatus) types.OltFlowsStatus {
	if next == nil {
		return current
	}
	if !current.CanTransitionTo(*next) {
		storeLogger.WithFields(log.Fields{
			"serviceKey": key.String(),
			"field":      name,
			"from":       current,
			"to":         *next,
		}).Warn("Rejecting illegal status transition")
		return current
	}
	return *next
}

// Remove drops the record for a key unconditionally.
func (s *StatusStore) Remove(key types.ServiceKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.statuses, key)
}

// HasDefaultEapol reports whether the port carries (or is acquiring)
// the default authentication trap. ERROR counts as present because the
// southbound keeps retrying it.
func (s *StatusStore) HasDefaultEapol(port types.Port) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, status := range s.statuses {
		if key.Device != port.Device || key.Port != port.Number {
			continue
		}
		switch status.DefaultEapolStatus {
		case types.StatusAdded, types.StatusPendingAdd, types.StatusError:
			return true
		}
	}
	return false
}

// IsDefaultEapolPendingRemoval reports whether a default trap removal
// is still in flight on the port.
func (s *StatusStore) IsDefaultEapolPendingRemoval(port types.Port) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, status := range s.statuses {
		if key.Device != port.Device || key.Port != port.Number {
			continue
		}
		if status.DefaultEapolStatus == types.StatusPendingRemove {
			return true
		}
	}
	return false
}

// HasDhcpFlows reports whether the DHCP trap for the service is in
// place or being added.
func (s *StatusStore) HasDhcpFlows(key types.ServiceKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[key]
	if !ok {
		return false
	}
	return status.DhcpStatus == types.StatusAdded || status.DhcpStatus == types.StatusPendingAdd
}

// HasSubscriberFlows reports whether the data-plane flows for the
// service are in place or being added.
func (s *StatusStore) HasSubscriberFlows(key types.ServiceKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[key]
	if !ok {
		return false
	}
	return status.SubscriberFlowsStatus == types.StatusAdded || status.SubscriberFlowsStatus == types.StatusPendingAdd
}

// KeysForPort returns every ServiceKey recorded on the given connect
// point.
func (s *StatusStore) KeysForPort(cp types.ConnectPoint) []types.ServiceKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.ServiceKey
	for key := range s.statuses {
		if key.Device == cp.Device && key.Port == cp.Port {
			out = append(out, key)
		}
	}
	return out
}

// All returns a copy of the full map, for the operator surface.
func (s *StatusStore) All() map[types.ServiceKey]types.OltPortStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[types.ServiceKey]types.OltPortStatus, len(s.statuses))
	for key, status := range s.statuses {
		out[key] = status
	}
	return out
}

// PurgeDevice drops every record belonging to a device and returns how
// many were removed.
func (s *StatusStore) PurgeDevice(device types.DeviceID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.statuses {
		if key.Device == device {
			delete(s.statuses, key)
			removed++
		}
	}
	return removed
}

// ProvisionedSubscribers records operator intent per ServiceKey,
// independent of actual flow status.
type ProvisionedSubscribers struct {
	mu          sync.RWMutex
	subscribers map[types.ServiceKey]bool
}

func NewProvisionedSubscribers() *ProvisionedSubscribers {
	storeLogger.WithFields(log.Fields{
		"map": ProvisionedSubscriberMapName,
	}).Debug("Opened provisioned subscriber map")
	return &ProvisionedSubscribers{
		subscribers: make(map[types.ServiceKey]bool),
	}
}

// Set records or clears intent for one service.
func (p *ProvisionedSubscribers) Set(key types.ServiceKey, provisioned bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if provisioned {
		p.subscribers[key] = true
	} else {
		delete(p.subscribers, key)
	}
}

// IsProvisioned reports the recorded intent for one service.
func (p *ProvisionedSubscribers) IsProvisioned(key types.ServiceKey) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.subscribers[key]
}

// ForPort returns the provisioned services on a connect point.
func (p *ProvisionedSubscribers) ForPort(cp types.ConnectPoint) []types.ServiceKey {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []types.ServiceKey
	for key := range p.subscribers {
		if key.Device == cp.Device && key.Port == cp.Port {
			out = append(out, key)
		}
	}
	return out
}

// All returns every provisioned service key.
func (p *ProvisionedSubscribers) All() []types.ServiceKey {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]types.ServiceKey, 0, len(p.subscribers))
	for key := range p.subscribers {
		out = append(out, key)
	}
	return out
}

// PurgeDevice drops every record belonging to a device.
func (p *ProvisionedSubscribers) PurgeDevice(device types.DeviceID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key := range p.subscribers {
		if key.Device == device {
			delete(p.subscribers, key)
		}
	}
}
