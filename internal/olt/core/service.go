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
	"github.com/opencord/olt/internal/olt/types"
	log "github.com/sirupsen/logrus"
)

// AccessDeviceService is the operator-facing surface of the
// provisioning core.
type AccessDeviceService interface {
	ProvisionSubscriber(cp types.ConnectPoint) error
	RemoveSubscriber(cp types.ConnectPoint) error
	ProvisionSubscriberByID(subscriberID string, sTag, cTag *types.VlanID, tpID *int) error
	RemoveSubscriberByID(subscriberID string, sTag, cTag *types.VlanID, tpID *int) error
	ProgrammedSubscribers() []types.ServiceKey
	ConnectPointStatus() map[types.ServiceKey]types.OltPortStatus
	FetchOlts() []types.DeviceID
	PurgeDeviceFlows(device types.DeviceID)
}

// ProvisionSubscriber installs the full service suite on a connect
// point.
func (a *App) ProvisionSubscriber(cp types.ConnectPoint) error {
	oltLogger.WithFields(log.Fields{"cp": cp.String()}).Info("Call to provision subscriber")
	port := a.Registry.Port(cp)
	if port == nil {
		return ErrBadRequest
	}
	if a.sadis.SubscriberByPortName(port.Name) == nil {
		oltLogger.WithFields(log.Fields{"cp": cp.String()}).Warn("No subscriber found for connect point")
		return ErrNotConfigured
	}
	a.Reconciler.Provision(cp)
	return nil
}

// RemoveSubscriber removes the service suite from a connect point.
// Removal always succeeds so that the operator queue drains even for
// entries the subscriber service no longer knows.
func (a *App) RemoveSubscriber(cp types.ConnectPoint) error {
	oltLogger.WithFields(log.Fields{"cp": cp.String()}).Info("Call to remove subscriber")
	a.Reconciler.Remove(cp)
	return nil
}

// ProvisionSubscriberByID locates the subscriber port by name. With no
// tag selectors the full suite is installed; with all three selectors
// only the transparent pair of the matching service is.
func (a *App) ProvisionSubscriberByID(subscriberID string, sTag, cTag *types.VlanID, tpID *int) error {
	oltLogger.WithFields(log.Fields{
		"subscriberId": subscriberID,
	}).Info("Provisioning subscriber by id")
	port := a.Registry.FindPortByName(subscriberID)
	if port == nil {
		oltLogger.WithFields(log.Fields{"subscriberId": subscriberID}).Warn("Connect point for subscriber not found")
		return ErrNotConfigured
	}
	cp := port.ConnectPoint()
	if sTag == nil && cTag == nil {
		return a.ProvisionSubscriber(cp)
	}
	if sTag != nil && cTag != nil && tpID != nil {
		a.Reconciler.ProvisionService(cp, *sTag, *cTag, *tpID)
		return nil
	}
	return ErrBadRequest
}

// RemoveSubscriberByID is the inverse of ProvisionSubscriberByID.
func (a *App) RemoveSubscriberByID(subscriberID string, sTag, cTag *types.VlanID, tpID *int) error {
	port := a.Registry.FindPortByName(subscriberID)
	if port == nil {
		oltLogger.WithFields(log.Fields{"subscriberId": subscriberID}).Warn("Connect point for subscriber not found")
		return ErrNotConfigured
	}
	cp := port.ConnectPoint()
	if sTag == nil && cTag == nil {
		return a.RemoveSubscriber(cp)
	}
	if sTag != nil && cTag != nil && tpID != nil {
		a.Reconciler.RemoveService(cp, *sTag, *cTag, *tpID)
		return nil
	}
	return ErrBadRequest
}

// ProgrammedSubscribers lists every service the operator has
// provisioned.
func (a *App) ProgrammedSubscribers() []types.ServiceKey {
	return a.Subscribers.All()
}

// ConnectPointStatus lists the flow statuses of every tracked service.
func (a *App) ConnectPointStatus() map[types.ServiceKey]types.OltPortStatus {
	return a.Statuses.All()
}

// FetchOlts lists the known devices that are OLTs according to the
// subscriber information service.
func (a *App) FetchOlts() []types.DeviceID {
	var out []types.DeviceID
	for _, device := range a.Registry.Devices() {
		if a.Registry.OltInfo(device.ID) != nil {
			out = append(out, device.ID)
		}
	}
	return out
}

// PurgeDeviceFlows drops every flow, status and meter binding of a
// device.
func (a *App) PurgeDeviceFlows(device types.DeviceID) {
	a.Reconciler.Purge(device)
}
