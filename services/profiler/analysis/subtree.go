// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis implements the profiler's offline analyses:
// identical-subtree detection by partition refinement, shape
// equivalence classes over a completed layout, and the structural merge
// of two executions. All analyses assume the tree structure is fixed
// while they run; callers hold the relevant tree mutexes.
package analysis

import (
	"github.com/AleutianAI/treescope/services/profiler/tree"
)

// Group is a set of nodes whose subtrees are (so far) indistinguishable.
type Group []tree.NodeID

// SubtreePattern is one equivalence class in an analysis result: the
// member nodes, their common subtree height and size. A pattern with
// two or more members is a repeated subtree.
type SubtreePattern struct {
	Nodes  []tree.NodeID
	Height int
	Size   int
}

// Count returns the number of occurrences of the pattern.
func (p SubtreePattern) Count() int { return len(p.Nodes) }

// partition splits the nodes into groups known to be final (processed)
// and groups still being refined (remaining).
type partition struct {
	processed []Group
	remaining []Group
}

// RunIdenticalSubtrees partitions the tree's nodes into classes of
// structurally identical subtrees, ignoring labels.
//
// The refinement runs height by height: once every subtree of height h
// is final, the parents of each height-h group are used as markers to
// split the remaining groups, and any remaining group whose members now
// have height h+1 becomes final. Worst case roughly
// O(nodes x max-arity x height).
//
// The structure must not change during the run; the caller holds the
// tree mutex or analyses a finished tree.
func RunIdenticalSubtrees(t *tree.Tree) []SubtreePattern {
	if t.NodeCount() == 0 {
		return nil
	}

	heights := make([]int, t.NodeCount())
	maxHeight := subtreeHeights(t, heights)
	sizes := tree.SubtreeSizes(t)

	p := initialPartition(t)

	for curHeight := 1; curHeight != maxHeight; curHeight++ {
		partitionStep(t, &p, curHeight, heights)
		setAsProcessed(&p, curHeight+1, heights)
	}

	result := make([]SubtreePattern, 0, len(p.processed))
	for _, group := range p.processed {
		if len(group) == 0 {
			continue
		}
		result = append(result, SubtreePattern{
			Nodes:  group,
			Height: heights[group[0]],
			Size:   sizes[group[0]],
		})
	}
	return result
}

// initialPartition seeds the refinement: failed leaves and solved
// leaves are final immediately; all branch nodes form one remaining
// group. Other statuses are ignored.
func initialPartition(t *tree.Tree) partition {
	var failed, solved, branches Group
	for _, nid := range tree.AnyOrder(t) {
		switch t.Status(nid) {
		case tree.Failed:
			failed = append(failed, nid)
		case tree.Solved:
			solved = append(solved, nid)
		case tree.Branch:
			branches = append(branches, nid)
		}
	}

	var p partition
	if len(failed) > 0 {
		p.processed = append(p.processed, failed)
	}
	if len(solved) > 0 {
		p.processed = append(p.processed, solved)
	}
	if len(branches) > 0 {
		p.remaining = append(p.remaining, branches)
	}
	return p
}

// partitionStep walks the processed groups of height h and, for every
// alt position among their parents, splits each remaining group by
// whether a member's alt-th child belongs to the processed group.
func partitionStep(t *tree.Tree, p *partition, h int, heights []int) {
	for _, group := range p.processed {
		if len(group) == 0 || heights[group[0]] != h {
			continue
		}

		maxKids := 0
		for _, nid := range group {
			pid := t.Parent(nid)
			if pid == tree.NoNode {
				continue
			}
			if k := t.ChildrenCount(pid); k > maxKids {
				maxKids = k
			}
		}

		for alt := 0; alt < maxKids; alt++ {
			var marked []tree.NodeID
			for _, nid := range group {
				nodeAlt, err := t.Alternative(nid)
				if err != nil || nodeAlt != alt {
					continue
				}
				if pid := t.Parent(nid); pid != tree.NoNode {
					marked = append(marked, pid)
				}
			}
			p.remaining = separateMarked(p.remaining, marked)
		}
	}
}

// separateMarked splits every group into a marked and an unmarked
// subgroup, dropping empty halves.
func separateMarked(groups []Group, marked []tree.NodeID) []Group {
	markedSet := make(map[tree.NodeID]struct{}, len(marked))
	for _, nid := range marked {
		markedSet[nid] = struct{}{}
	}

	out := make([]Group, 0, len(groups))
	for _, group := range groups {
		var in, notIn Group
		for _, nid := range group {
			if _, ok := markedSet[nid]; ok {
				in = append(in, nid)
			} else {
				notIn = append(notIn, nid)
			}
		}
		if len(in) > 0 {
			out = append(out, in)
		}
		if len(notIn) > 0 {
			out = append(out, notIn)
		}
	}
	return out
}

// setAsProcessed moves remaining groups whose members reached height h
// into processed. A group under refinement holds subtrees of a single
// height once that height has been fully processed, so checking the
// first member suffices.
func setAsProcessed(p *partition, h int, heights []int) {
	var still []Group
	for _, group := range p.remaining {
		if heights[group[0]] == h {
			p.processed = append(p.processed, group)
		} else {
			still = append(still, group)
		}
	}
	p.remaining = still
}

// subtreeHeights fills heights with the height of each node's subtree
// (leaves have height 1) and returns the root's height.
func subtreeHeights(t *tree.Tree, heights []int) int {
	order := tree.PreOrder(t)
	for i := len(order) - 1; i >= 0; i-- {
		nid := order[i]
		h := 0
		for alt := 0; alt < t.ChildrenCount(nid); alt++ {
			kid, err := t.Child(nid, alt)
			if err == nil && heights[kid] > h {
				h = heights[kid]
			}
		}
		heights[nid] = h + 1
	}
	return heights[t.Root()]
}
