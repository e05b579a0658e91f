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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasher_Deterministic(t *testing.T) {
	nodes := []NodeID{"node-1", "node-2", "node-3"}
	a := NewConsistentHasher(nodes, HashWeight)
	b := NewConsistentHasher(nodes, HashWeight)

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("of:%012d", i)
		assert.Equal(t, a.Hash(key), b.Hash(key))
	}
}

func TestHasher_ExactlyOneOwner(t *testing.T) {
	nodes := []NodeID{"node-1", "node-2", "node-3"}
	hashers := make([]*ConsistentHasher, len(nodes))
	for i := range nodes {
		hashers[i] = NewConsistentHasher(nodes, HashWeight)
	}

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("of:%012d", i)
		owners := 0
		for n, h := range hashers {
			if h.Hash(key) == nodes[n] {
				owners++
			}
		}
		assert.Equal(t, 1, owners, "device %s must have exactly one owner", key)
	}
}

func TestHasher_AllNodesUsed(t *testing.T) {
	nodes := []NodeID{"node-1", "node-2", "node-3"}
	h := NewConsistentHasher(nodes, HashWeight)

	seen := make(map[NodeID]int)
	for i := 0; i < 1000; i++ {
		seen[h.Hash(fmt.Sprintf("of:%012d", i))]++
	}
	for _, n := range nodes {
		assert.True(t, seen[n] > 0, "node %s received no devices", n)
	}
}

func TestHasher_RemoveServer(t *testing.T) {
	nodes := []NodeID{"node-1", "node-2"}
	h := NewConsistentHasher(nodes, HashWeight)

	h.RemoveServer("node-1")
	for i := 0; i < 50; i++ {
		assert.Equal(t, NodeID("node-2"), h.Hash(fmt.Sprintf("of:%012d", i)))
	}

	h.AddServer("node-1")
	assert.Len(t, h.Nodes(), 2)
}

func TestHasher_MinimalMovement(t *testing.T) {
	h := NewConsistentHasher([]NodeID{"node-1", "node-2", "node-3"}, HashWeight)

	before := make(map[string]NodeID)
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("of:%012d", i)
		before[key] = h.Hash(key)
	}

	h.RemoveServer("node-3")
	for key, owner := range before {
		if owner == "node-3" {
			continue
		}
		// keys not owned by the departed node stay put
		assert.Equal(t, owner, h.Hash(key))
	}
}

func TestHasher_EmptyRing(t *testing.T) {
	h := NewConsistentHasher(nil, HashWeight)
	assert.Equal(t, NodeID(""), h.Hash("of:000000000001"))
}

func TestStaticCluster_Membership(t *testing.T) {
	cluster := NewStaticCluster("node-1", []NodeID{"node-1", "node-2"})
	assert.Equal(t, NodeID("node-1"), cluster.LocalNode())
	assert.Len(t, cluster.Nodes(), 2)

	events := cluster.Listen()

	cluster.Deactivate("node-2")
	event := <-events
	assert.Equal(t, InstanceDeactivated, event.Type)
	assert.Equal(t, NodeID("node-2"), event.Node)
	assert.Len(t, cluster.Nodes(), 1)

	cluster.Activate("node-3")
	event = <-events
	assert.Equal(t, InstanceReady, event.Type)
	assert.Len(t, cluster.Nodes(), 2)
}
