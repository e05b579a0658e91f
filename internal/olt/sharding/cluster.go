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

package sharding

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

var clusterLogger = log.WithFields(log.Fields{
	"module": "CLUSTER",
})

// ClusterEventType enumerates membership changes.
type ClusterEventType string

const (
	InstanceReady       ClusterEventType = "INSTANCE_READY"
	InstanceDeactivated ClusterEventType = "INSTANCE_DEACTIVATED"
)

// ClusterEvent is one membership change.
type ClusterEvent struct {
	Type ClusterEventType
	Node NodeID
}

// ClusterService is the membership contract. The authoritative cluster
// manager is external.
type ClusterService interface {
	LocalNode() NodeID
	Nodes() []NodeID
	Listen() <-chan ClusterEvent
}

// StaticCluster is a fixed membership list, driven by configuration.
// Membership changes can still be injected for tests and manual
// failover.
type StaticCluster struct {
	mu    sync.RWMutex
	local NodeID
	nodes []NodeID
	ch    chan ClusterEvent
}

func NewStaticCluster(local NodeID, nodes []NodeID) *StaticCluster {
	if len(nodes) == 0 {
		nodes = []NodeID{local}
	}
	return &StaticCluster{
		local: local,
		nodes: nodes,
		ch:    make(chan ClusterEvent, 16),
	}
}

func (c *StaticCluster) LocalNode() NodeID {
	return c.local
}

func (c *StaticCluster) Nodes() []NodeID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]NodeID, len(c.nodes))
	copy(out, c.nodes)
	return out
}

func (c *StaticCluster) Listen() <-chan ClusterEvent {
	return c.ch
}

// Activate announces a node as ready.
func (c *StaticCluster) Activate(node NodeID) {
	c.mu.Lock()
	for _, n := range c.nodes {
		if n == node {
			c.mu.Unlock()
			return
		}
	}
	c.nodes = append(c.nodes, node)
	c.mu.Unlock()

	clusterLogger.WithFields(log.Fields{"node": node}).Info("Cluster instance ready")
	c.ch <- ClusterEvent{Type: InstanceReady, Node: node}
}

// Deactivate removes a node from the membership.
func (c *StaticCluster) Deactivate(node NodeID) {
	c.mu.Lock()
	filtered := c.nodes[:0]
	for _, n := range c.nodes {
		if n != node {
			filtered = append(filtered, n)
		}
	}
	c.nodes = filtered
	c.mu.Unlock()

	clusterLogger.WithFields(log.Fields{"node": node}).Warn("Cluster instance deactivated")
	c.ch <- ClusterEvent{Type: InstanceDeactivated, Node: node}
}
