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

// Package sharding decides which controller instance owns each access
// device.
package sharding

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
)

// HashWeight is the number of virtual ring tokens per cluster node.
const HashWeight = 10

// NodeID identifies one controller instance.
type NodeID string

type ringEntry struct {
	hash uint64
	node NodeID
}

// ConsistentHasher maps keys onto cluster nodes through a weighted
// hash ring, so membership changes move as few devices as possible.
type ConsistentHasher struct {
	mu     sync.RWMutex
	weight int
	ring   []ringEntry
}

func NewConsistentHasher(nodes []NodeID, weight int) *ConsistentHasher {
	h := &ConsistentHasher{weight: weight}
	for _, n := range nodes {
		h.addLocked(n)
	}
	return h
}

// AddServer inserts a node's tokens into the ring.
func (h *ConsistentHasher) AddServer(node NodeID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.ring {
		if e.node == node {
			return
		}
	}
	h.addLocked(node)
}

func (h *ConsistentHasher) addLocked(node NodeID) {
	for i := 0; i < h.weight; i++ {
		h.ring = append(h.ring, ringEntry{
			hash: hashString(fmt.Sprintf("%s-%d", node, i)),
			node: node,
		})
	}
	sort.Slice(h.ring, func(a, b int) bool { return h.ring[a].hash < h.ring[b].hash })
}

// RemoveServer drops a node's tokens from the ring.
func (h *ConsistentHasher) RemoveServer(node NodeID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	filtered := h.ring[:0]
	for _, e := range h.ring {
		if e.node != node {
			filtered = append(filtered, e)
		}
	}
	h.ring = filtered
}

// Hash returns the node owning the given key, or the empty NodeID when
// the ring is empty.
func (h *ConsistentHasher) Hash(key string) NodeID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.ring) == 0 {
		return ""
	}
	target := hashString(key)
	idx := sort.Search(len(h.ring), func(i int) bool { return h.ring[i].hash >= target })
	if idx == len(h.ring) {
		idx = 0
	}
	return h.ring[idx].node
}

// Nodes returns the distinct nodes currently on the ring.
func (h *ConsistentHasher) Nodes() []NodeID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[NodeID]bool)
	var out []NodeID
	for _, e := range h.ring {
		if !seen[e.node] {
			seen[e.node] = true
			out = append(out, e.node)
		}
	}
	return out
}

func hashString(s string) uint64 {
	f := fnv.New64a()
	_, _ = f.Write([]byte(s))
	// FNV alone keeps strings that differ only in their last bytes
	// close together on the ring; the finalizer spreads them.
	h := f.Sum64()
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}
