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
	"flag"
	"io/ioutil"
	"os"

	"github.com/imdario/mergo"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Config is the global application configuration. Populated by
// LoadConfig, read everywhere else.
var Config *GlobalConfig

// GlobalConfig is the top level of the yaml configuration file.
type GlobalConfig struct {
	Olt OltConfig `yaml:"olt"`
}

// OltConfig carries the provisioning knobs together with the ambient
// options of the process.
type OltConfig struct {
	// provisioning behavior
	EnableDhcpOnNni      bool   `yaml:"enableDhcpOnNni"`
	EnableDhcpV4         bool   `yaml:"enableDhcpV4"`
	EnableDhcpV6         bool   `yaml:"enableDhcpV6"`
	EnableIgmpOnNni      bool   `yaml:"enableIgmpOnNni"`
	EnableEapol          bool   `yaml:"enableEapol"`
	EnablePppoe          bool   `yaml:"enablePppoe"`
	DefaultTechProfileID int    `yaml:"defaultTechProfileId"`
	WaitForRemoval       bool   `yaml:"waitForRemoval"`
	DefaultBpID          string `yaml:"defaultBpId"`
	MulticastServiceName string `yaml:"multicastServiceName"`
	// how long a task may wait for MAC learning before it is dropped,
	// in seconds; zero waits forever
	MacLearningTimeout int `yaml:"macLearningTimeout"`

	// process plumbing
	ApiAddress      string   `yaml:"apiAddress"`
	KafkaAddress    string   `yaml:"kafkaAddress"`
	KafkaEventTopic string   `yaml:"kafkaEventTopic"`
	SadisFile       string   `yaml:"sadisFile"`
	NodeID          string   `yaml:"nodeId"`
	ClusterNodes    []string `yaml:"clusterNodes"`
	LogLevel        string   `yaml:"logLevel"`
	LogCaller       bool     `yaml:"logCaller"`
}

// GetDefaultOps returns the compiled-in defaults.
func GetDefaultOps() *GlobalConfig {
	return &GlobalConfig{
		Olt: OltConfig{
			EnableDhcpOnNni:      true,
			EnableDhcpV4:         true,
			EnableDhcpV6:         false,
			EnableIgmpOnNni:      false,
			EnableEapol:          true,
			EnablePppoe:          false,
			DefaultTechProfileID: 64,
			WaitForRemoval:       true,
			DefaultBpID:          "Default",
			MulticastServiceName: "multicastServiceName",
			MacLearningTimeout:   60,
			ApiAddress:           "0.0.0.0:50080",
			KafkaAddress:         "127.0.0.1:9092",
			KafkaEventTopic:      "",
			SadisFile:            "",
			NodeID:               "node-1",
			ClusterNodes:         nil,
			LogLevel:             "debug",
			LogCaller:            false,
		},
	}
}

// LoadConfig reads the yaml configuration file over the defaults and
// applies command line overrides on top.
func LoadConfig() *GlobalConfig {
	conf := GetDefaultOps()

	configFile := flag.String("config", "configs/olt.yaml", "Configuration file path")
	logLevel := flag.String("logLevel", "", "Set the log level (trace, debug, info, warn, error)")
	logCaller := flag.Bool("logCaller", false, "Whether to print the caller filename or not")
	apiAddress := flag.String("api", "", "IP address:port of the REST API")
	kafkaAddress := flag.String("kafkaAddress", "", "IP:Port for the kafka broker")
	sadisFile := flag.String("sadisFile", "", "Path of the static sadis entries file")
	nodeID := flag.String("nodeId", "", "Cluster identity of this instance")
	flag.Parse()

	loadFromFile(conf, *configFile)

	overrides := OltConfig{
		LogLevel:     *logLevel,
		ApiAddress:   *apiAddress,
		KafkaAddress: *kafkaAddress,
		SadisFile:    *sadisFile,
		NodeID:       *nodeID,
	}
	if err := mergo.Merge(&conf.Olt, overrides, mergo.WithOverride); err != nil {
		log.WithError(err).Fatal("Cannot apply command line overrides")
	}
	if *logCaller {
		conf.Olt.LogCaller = true
	}

	Config = conf
	return conf
}

func loadFromFile(conf *GlobalConfig, path string) {
	if _, err := os.Stat(path); err != nil {
		log.WithFields(log.Fields{
			"file": path,
		}).Debug("Configuration file not found, using defaults")
		return
	}
	content, err := ioutil.ReadFile(path)
	if err != nil {
		log.WithFields(log.Fields{
			"file": path,
			"err":  err,
		}).Fatal("Cannot read configuration file")
	}
	if err := yaml.Unmarshal(content, conf); err != nil {
		log.WithFields(log.Fields{
			"file": path,
			"err":  err,
		}).Fatal("Cannot parse configuration file")
	}
	log.WithFields(log.Fields{
		"file": path,
	}).Info("Loaded configuration file")
}
