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

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/Shopify/sarama"
	"github.com/opencord/olt/internal/common"
	"github.com/opencord/olt/internal/olt/api"
	"github.com/opencord/olt/internal/olt/core"
	"github.com/opencord/olt/internal/olt/sadis"
	"github.com/opencord/olt/internal/olt/sharding"
	"github.com/opencord/olt/internal/olt/southbound"
	"github.com/opencord/olt/internal/olt/types"
	log "github.com/sirupsen/logrus"
)

func main() {
	options := common.LoadConfig()

	common.SetLogLevel(log.StandardLogger(), options.Olt.LogLevel, options.Olt.LogCaller)

	log.WithFields(log.Fields{
		"NodeID":          options.Olt.NodeID,
		"ApiAddress":      options.Olt.ApiAddress,
		"EnableEapol":     options.Olt.EnableEapol,
		"EnableDhcpOnNni": options.Olt.EnableDhcpOnNni,
		"DefaultBpId":     options.Olt.DefaultBpID,
	}).Info("vOLT provisioning service is on")

	sadisService := loadSadis(options)

	var kafkaCh chan types.AccessDeviceEvent
	if options.Olt.KafkaAddress != "" {
		if err := common.InitializePublisher(sarama.NewAsyncProducer, options.Olt.NodeID); err != nil {
			log.WithFields(log.Fields{"err": err}).Warn("Cannot initialize kafka publisher, events will not be published")
		} else {
			kafkaCh = make(chan types.AccessDeviceEvent, 128)
			go common.KafkaPublisher(kafkaCh)
		}
	}

	var nodes []sharding.NodeID
	for _, n := range options.Olt.ClusterNodes {
		nodes = append(nodes, sharding.NodeID(n))
	}
	cluster := sharding.NewStaticCluster(sharding.NodeID(options.Olt.NodeID), nodes)

	driver := southbound.NewLoopbackDriver()
	app := core.NewApp(options.Olt, driver, sadisService, nil, cluster, kafkaCh)
	driver.SetEventHandler(app.HandleFlowRuleEvent)
	app.Start()

	apiServer := &api.Server{
		Address: options.Olt.ApiAddress,
		Service: app,
	}
	go func() {
		if err := apiServer.Serve(); err != nil {
			log.WithFields(log.Fields{"err": err}).Fatal("REST API server failed")
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	app.Stop()
	log.Info("vOLT provisioning service is off")
}

func loadSadis(options *common.GlobalConfig) sadis.Service {
	if options.Olt.SadisFile == "" {
		log.Warn("No sadis file configured, starting with an empty subscriber service")
		return sadis.NewStaticService()
	}
	service, err := sadis.LoadStaticService(options.Olt.SadisFile)
	if err != nil {
		log.WithFields(log.Fields{
			"file": options.Olt.SadisFile,
			"err":  err,
		}).Fatal("Cannot load sadis entries")
	}
	return service
}
