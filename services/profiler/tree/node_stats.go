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

import "sync/atomic"

// Stats keeps running counts of node statuses and the maximum observed
// depth. All counters use atomic operations so the stats bar and the
// status API can read them while the builder is ingesting.
type Stats struct {
	branch       atomic.Int64
	failed       atomic.Int64
	solved       atomic.Int64
	skipped      atomic.Int64
	undetermined atomic.Int64
	maxDepth     atomic.Int64
}

// AddNode records a node of the given status.
func (s *Stats) AddNode(status Status) {
	switch status {
	case Branch, Merged:
		s.branch.Add(1)
	case Failed:
		s.failed.Add(1)
	case Solved:
		s.solved.Add(1)
	case Skipped:
		s.skipped.Add(1)
	case Undetermined:
		s.undetermined.Add(1)
	}
}

// AddUndetermined records n pre-allocated child slots.
func (s *Stats) AddUndetermined(n int) {
	s.undetermined.Add(int64(n))
}

// SubtractUndetermined records the promotion of one undetermined slot.
func (s *Stats) SubtractUndetermined(n int) {
	s.undetermined.Add(-int64(n))
}

// InformDepth widens the maximum depth if d exceeds it.
func (s *Stats) InformDepth(d int) {
	for {
		cur := s.maxDepth.Load()
		if int64(d) <= cur {
			return
		}
		if s.maxDepth.CompareAndSwap(cur, int64(d)) {
			return
		}
	}
}

// BranchCount returns the number of branch (and merged) nodes.
func (s *Stats) BranchCount() int { return int(s.branch.Load()) }

// FailedCount returns the number of failed leaves.
func (s *Stats) FailedCount() int { return int(s.failed.Load()) }

// SolvedCount returns the number of solution leaves.
func (s *Stats) SolvedCount() int { return int(s.solved.Load()) }

// SkippedCount returns the number of skipped leaves.
func (s *Stats) SkippedCount() int { return int(s.skipped.Load()) }

// UndeterminedCount returns the number of open (white) nodes.
func (s *Stats) UndeterminedCount() int { return int(s.undetermined.Load()) }

// MaxDepth returns the deepest level seen so far (root-only tree is 1).
func (s *Stats) MaxDepth() int { return int(s.maxDepth.Load()) }
