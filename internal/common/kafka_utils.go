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

package common

import (
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"
	"github.com/opencord/olt/internal/olt/types"
	log "github.com/sirupsen/logrus"
)

var producer sarama.AsyncProducer
var topic string

// InitializePublisher initializes the kafka publisher for access
// device events.
func InitializePublisher(NewAsyncProducer func([]string, *sarama.Config) (sarama.AsyncProducer, error), nodeID string) error {

	var err error
	sarama.Logger = log.New()
	config := sarama.NewConfig()
	config.Producer.Retry.Max = 5
	config.Metadata.Retry.Max = 10
	config.Metadata.Retry.Backoff = 10 * time.Second
	config.ClientID = "volt-" + nodeID
	if len(Config.Olt.KafkaEventTopic) > 0 {
		topic = Config.Olt.KafkaEventTopic
	} else {
		topic = "volt-" + nodeID + "-events"
	}

	producer, err = NewAsyncProducer([]string{Config.Olt.KafkaAddress}, config)
	return err
}

// KafkaPublisher receives access device events on the channel and
// publishes them to kafka.
func KafkaPublisher(eventChannel chan types.AccessDeviceEvent) {
	defer log.Debugf("KafkaPublisher stopped")
	for event := range eventChannel {
		log.WithFields(log.Fields{
			"EventType": event.Type,
			"DeviceID":  event.DeviceID,
			"SVlan":     event.SVlan,
			"CVlan":     event.CVlan,
			"TpID":      event.TpID,
		}).Trace("Received event on channel")
		jsonEvent, err := json.Marshal(event)
		if err != nil {
			log.Errorf("Failed to get json event %v", err)
			continue
		}
		producer.Input() <- &sarama.ProducerMessage{
			Topic: topic,
			Value: sarama.ByteEncoder(jsonEvent),
		}
		log.WithFields(log.Fields{
			"EventType": event.Type,
			"DeviceID":  event.DeviceID,
		}).Debug("Event sent on kafka")
	}
}
