// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package layout

import (
	"sync"

	"github.com/AleutianAI/treescope/services/profiler/tree"
)

// Layout stores the per-node layout entries: the owned shape, the
// x-offset relative to the parent, and the layout-done and dirty flags.
//
// Invariants:
//   - dirty(n) implies every ancestor of n is dirty or becomes dirty on
//     the next recompute ("dirty-up").
//   - !dirty(n) && done(n) implies shape, offset and bounding box are
//     consistent with the current tree, flags and labels of n and all
//     its descendants.
//
// # Locking
//
// Layout has its own mutex, acquired after the tree mutex whenever both
// are needed.
type Layout struct {
	mu sync.Mutex

	shapes  []*Shape
	offsets []int
	done    []bool
	dirty   []bool
}

// New creates an empty layout.
func New() *Layout {
	return &Layout{}
}

// Mutex returns the layout mutex.
func (l *Layout) Mutex() *sync.Mutex { return &l.mu }

// Grow ensures entries exist for count nodes. New entries start dirty
// and not done. Callers hold the layout mutex.
func (l *Layout) Grow(count int) {
	for len(l.shapes) < count {
		l.shapes = append(l.shapes, nil)
		l.offsets = append(l.offsets, 0)
		l.done = append(l.done, false)
		l.dirty = append(l.dirty, true)
	}
}

// Shape returns the shape of nid (nil before the first recompute).
func (l *Layout) Shape(nid tree.NodeID) *Shape { return l.shapes[nid] }

// SetShape replaces the shape of nid.
func (l *Layout) SetShape(nid tree.NodeID, s *Shape) { l.shapes[nid] = s }

// ChildOffset returns the x-offset of nid relative to its parent.
func (l *Layout) ChildOffset(nid tree.NodeID) int { return l.offsets[nid] }

// SetChildOffset records the x-offset of nid relative to its parent.
func (l *Layout) SetChildOffset(nid tree.NodeID, x int) { l.offsets[nid] = x }

// IsDirty reports whether nid needs recomputation.
func (l *Layout) IsDirty(nid tree.NodeID) bool {
	return int(nid) < len(l.dirty) && l.dirty[nid]
}

// SetDirty marks or clears the dirty flag of nid.
func (l *Layout) SetDirty(nid tree.NodeID, v bool) { l.dirty[nid] = v }

// Done reports whether a layout has ever been computed for nid.
func (l *Layout) Done(nid tree.NodeID) bool {
	return int(nid) < len(l.done) && l.done[nid]
}

// SetDone marks the layout of nid as computed.
func (l *Layout) SetDone(nid tree.NodeID, v bool) { l.done[nid] = v }

// Size returns the number of nodes with layout entries.
func (l *Layout) Size() int { return len(l.shapes) }
