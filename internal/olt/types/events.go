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

package types

// AccessDeviceEventType enumerates the events posted on the public sink.
type AccessDeviceEventType string

const (
	DeviceConnected                      AccessDeviceEventType = "DEVICE_CONNECTED"
	DeviceDisconnected                   AccessDeviceEventType = "DEVICE_DISCONNECTED"
	UniAdded                             AccessDeviceEventType = "UNI_ADDED"
	UniRemoved                           AccessDeviceEventType = "UNI_REMOVED"
	SubscriberUniTagRegistered           AccessDeviceEventType = "SUBSCRIBER_UNI_TAG_REGISTERED"
	SubscriberUniTagUnregistered         AccessDeviceEventType = "SUBSCRIBER_UNI_TAG_UNREGISTERED"
	SubscriberUniTagRegistrationFailed   AccessDeviceEventType = "SUBSCRIBER_UNI_TAG_REGISTRATION_FAILED"
	SubscriberUniTagUnregistrationFailed AccessDeviceEventType = "SUBSCRIBER_UNI_TAG_UNREGISTRATION_FAILED"
)

// AccessDeviceEvent describes something that happened to an access
// device or one of its subscribers.
type AccessDeviceEvent struct {
	Type     AccessDeviceEventType `json:"type"`
	DeviceID DeviceID              `json:"deviceId"`
	Port     *Port                 `json:"port,omitempty"`
	SVlan    VlanID                `json:"sVlan,omitempty"`
	CVlan    VlanID                `json:"cVlan,omitempty"`
	TpID     int                   `json:"tpId,omitempty"`
}

// DeviceEventType enumerates the southbound device events consumed by
// the event pump.
type DeviceEventType string

const (
	DeviceAdded               DeviceEventType = "DEVICE_ADDED"
	DeviceRemoved             DeviceEventType = "DEVICE_REMOVED"
	DeviceAvailabilityChanged DeviceEventType = "DEVICE_AVAILABILITY_CHANGED"
	DeviceUpdated             DeviceEventType = "DEVICE_UPDATED"
	DeviceSuspended           DeviceEventType = "DEVICE_SUSPENDED"
	PortAdded                 DeviceEventType = "PORT_ADDED"
	PortRemoved               DeviceEventType = "PORT_REMOVED"
	PortUpdated               DeviceEventType = "PORT_UPDATED"
	PortStatsUpdated          DeviceEventType = "PORT_STATS_UPDATED"
)

// DeviceEvent is a single southbound device or port event.
type DeviceEvent struct {
	Type      DeviceEventType
	Device    Device
	Port      *Port
	Available bool
}
