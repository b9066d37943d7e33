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

import (
	"sort"
	"sync"
)

// LanternMax is the largest lantern size; lantern heights encode a
// collapsed subtree's descendant count scaled into 0..LanternMax.
const LanternMax = 127

// VisualFlags stores the per-node display state: hidden, highlighted,
// label-shown and the optional lantern size of collapsed subtrees.
//
// Hidden and highlighted nodes are tracked both in dense bit vectors
// (for O(1) queries) and in side sets, so that UnhideAll and
// UnhighlightAll are proportional to the number of flagged nodes rather
// than to the tree size.
//
// Thread Safety: safe for concurrent use.
type VisualFlags struct {
	mu sync.RWMutex

	labelShown  []bool
	hidden      []bool
	highlighted []bool

	hiddenSet      map[NodeID]struct{}
	highlightedSet map[NodeID]struct{}

	lanternSizes map[NodeID]int
}

// NewVisualFlags creates an empty flag store.
func NewVisualFlags() *VisualFlags {
	return &VisualFlags{
		hiddenSet:      make(map[NodeID]struct{}),
		highlightedSet: make(map[NodeID]struct{}),
		lanternSizes:   make(map[NodeID]int),
	}
}

// grow ensures the dense vectors cover nid. Callers hold mu.
func (vf *VisualFlags) grow(nid NodeID) {
	need := int(nid) + 1
	for len(vf.labelShown) < need {
		vf.labelShown = append(vf.labelShown, false)
		vf.hidden = append(vf.hidden, false)
		vf.highlighted = append(vf.highlighted, false)
	}
}

// SetLabelShown toggles label display for nid.
func (vf *VisualFlags) SetLabelShown(nid NodeID, v bool) {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	vf.grow(nid)
	vf.labelShown[nid] = v
}

// IsLabelShown reports whether the label of nid is displayed.
func (vf *VisualFlags) IsLabelShown(nid NodeID) bool {
	vf.mu.RLock()
	defer vf.mu.RUnlock()
	if int(nid) >= len(vf.labelShown) {
		return false
	}
	return vf.labelShown[nid]
}

// SetHidden marks nid as (un)hidden.
func (vf *VisualFlags) SetHidden(nid NodeID, v bool) {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	vf.grow(nid)
	vf.hidden[nid] = v
	if v {
		vf.hiddenSet[nid] = struct{}{}
	} else {
		delete(vf.hiddenSet, nid)
	}
}

// IsHidden reports whether nid is hidden.
func (vf *VisualFlags) IsHidden(nid NodeID) bool {
	vf.mu.RLock()
	defer vf.mu.RUnlock()
	if int(nid) >= len(vf.hidden) {
		return false
	}
	return vf.hidden[nid]
}

// HiddenCount returns the number of hidden nodes.
func (vf *VisualFlags) HiddenCount() int {
	vf.mu.RLock()
	defer vf.mu.RUnlock()
	return len(vf.hiddenSet)
}

// HiddenNodes returns the hidden nodes in ascending NodeID order.
func (vf *VisualFlags) HiddenNodes() []NodeID {
	vf.mu.RLock()
	defer vf.mu.RUnlock()
	return sortedKeys(vf.hiddenSet)
}

// UnhideAll clears the hidden flag everywhere without traversing the
// tree.
func (vf *VisualFlags) UnhideAll() {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	for nid := range vf.hiddenSet {
		vf.hidden[nid] = false
	}
	vf.hiddenSet = make(map[NodeID]struct{})
}

// SetHighlighted marks nid as (un)highlighted.
func (vf *VisualFlags) SetHighlighted(nid NodeID, v bool) {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	vf.grow(nid)
	vf.highlighted[nid] = v
	if v {
		vf.highlightedSet[nid] = struct{}{}
	} else {
		delete(vf.highlightedSet, nid)
	}
}

// IsHighlighted reports whether nid is highlighted.
func (vf *VisualFlags) IsHighlighted(nid NodeID) bool {
	vf.mu.RLock()
	defer vf.mu.RUnlock()
	if int(nid) >= len(vf.highlighted) {
		return false
	}
	return vf.highlighted[nid]
}

// HighlightedNodes returns the highlighted nodes in ascending NodeID
// order.
func (vf *VisualFlags) HighlightedNodes() []NodeID {
	vf.mu.RLock()
	defer vf.mu.RUnlock()
	return sortedKeys(vf.highlightedSet)
}

// UnhighlightAll clears all highlights in O(|highlighted|).
func (vf *VisualFlags) UnhighlightAll() {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	for nid := range vf.highlightedSet {
		vf.highlighted[nid] = false
	}
	vf.highlightedSet = make(map[NodeID]struct{})
}

// SetLanternSize records a lantern size (0..LanternMax) for nid.
func (vf *VisualFlags) SetLanternSize(nid NodeID, size int) {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	vf.lanternSizes[nid] = size
}

// LanternSize returns the lantern size of nid, or -1 when nid is not a
// lantern.
func (vf *VisualFlags) LanternSize(nid NodeID) int {
	vf.mu.RLock()
	defer vf.mu.RUnlock()
	if s, ok := vf.lanternSizes[nid]; ok {
		return s
	}
	return -1
}

// ResetLanternSizes drops all lantern entries.
func (vf *VisualFlags) ResetLanternSizes() {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	vf.lanternSizes = make(map[NodeID]int)
}

func sortedKeys(set map[NodeID]struct{}) []NodeID {
	out := make([]NodeID, 0, len(set))
	for nid := range set {
		out = append(out, nid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
