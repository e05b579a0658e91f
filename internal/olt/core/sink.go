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

var sinkLogger = log.WithFields(log.Fields{
	"module": "EVENTS",
})

// EventSink fans access device events out to the kafka publisher and
// to in-process subscribers.
type EventSink struct {
	mu      sync.RWMutex
	kafkaCh chan types.AccessDeviceEvent
	subs    []chan types.AccessDeviceEvent
}

// NewEventSink builds a sink. kafkaCh may be nil when event publishing
// is disabled.
func NewEventSink(kafkaCh chan types.AccessDeviceEvent) *EventSink {
	return &EventSink{kafkaCh: kafkaCh}
}

// Subscribe returns a channel receiving every posted event. Slow
// subscribers miss events rather than stall the core.
func (s *EventSink) Subscribe() <-chan types.AccessDeviceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan types.AccessDeviceEvent, 64)
	s.subs = append(s.subs, ch)
	return ch
}

// Post publishes one event.
func (s *EventSink) Post(event types.AccessDeviceEvent) {
	sinkLogger.WithFields(log.Fields{
		"type":   event.Type,
		"device": event.DeviceID,
		"sVlan":  event.SVlan,
		"cVlan":  event.CVlan,
		"tpId":   event.TpID,
	}).Debug("Posting access device event")

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kafkaCh != nil {
		select {
		case s.kafkaCh <- event:
		default:
			sinkLogger.Warn("Kafka event channel full, dropping event")
		}
	}
	for _, sub := range s.subs {
		select {
		case sub <- event:
		default:
		}
	}
}
