// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import "sync"

// nodeInfo stores per-node statuses and the two ancestor-propagated
// flags. It has its own lock so that status reads (frequent on the
// drawing path) do not contend on the big tree mutex.
type nodeInfo struct {
	mu sync.RWMutex

	statuses          []Status
	hasSolvedChildren []bool
	hasOpenChildren   []bool
}

func newNodeInfo() *nodeInfo {
	return &nodeInfo{}
}

// addEntry registers storage for nid. Entries must be added in NodeID
// order.
func (ni *nodeInfo) addEntry(nid NodeID) {
	ni.mu.Lock()
	defer ni.mu.Unlock()
	if int(nid) != len(ni.statuses) {
		panic("tree: node info entries added out of order")
	}
	ni.statuses = append(ni.statuses, Undetermined)
	ni.hasSolvedChildren = append(ni.hasSolvedChildren, false)
	ni.hasOpenChildren = append(ni.hasOpenChildren, true)
}

func (ni *nodeInfo) status(nid NodeID) Status {
	ni.mu.RLock()
	defer ni.mu.RUnlock()
	return ni.statuses[nid]
}

func (ni *nodeInfo) setStatus(nid NodeID, s Status) {
	ni.mu.Lock()
	defer ni.mu.Unlock()
	ni.statuses[nid] = s
}

func (ni *nodeInfo) hasSolvedDescendants(nid NodeID) bool {
	ni.mu.RLock()
	defer ni.mu.RUnlock()
	return ni.hasSolvedChildren[nid]
}

func (ni *nodeInfo) setHasSolvedDescendants(nid NodeID, v bool) {
	ni.mu.Lock()
	defer ni.mu.Unlock()
	ni.hasSolvedChildren[nid] = v
}

func (ni *nodeInfo) hasOpenDescendants(nid NodeID) bool {
	ni.mu.RLock()
	defer ni.mu.RUnlock()
	return ni.hasOpenChildren[nid]
}

func (ni *nodeInfo) setHasOpenDescendants(nid NodeID, v bool) {
	ni.mu.Lock()
	defer ni.mu.Unlock()
	ni.hasOpenChildren[nid] = v
}
