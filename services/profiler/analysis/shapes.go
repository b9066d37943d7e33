// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"sort"

	"github.com/AleutianAI/treescope/services/profiler/tree"
	"github.com/AleutianAI/treescope/services/profiler/tree/layout"
)

// CompareShapes imposes the total order used to group shapes: first by
// height (shorter is less), then row by row where a smaller left extent
// makes a shape greater while a smaller right extent makes it less.
// The asymmetry is intentional and load-bearing: equal results mean
// identical outlines. Returns -1, 0 or 1.
func CompareShapes(s1, s2 *layout.Shape) int {
	if s1.Height() < s2.Height() {
		return -1
	}
	if s1.Height() > s2.Height() {
		return 1
	}
	for i := 0; i < s1.Height(); i++ {
		e1, e2 := s1.At(i), s2.At(i)
		if e1.L < e2.L {
			return 1
		}
		if e1.L > e2.L {
			return -1
		}
		if e1.R < e2.R {
			return -1
		}
		if e1.R > e2.R {
			return 1
		}
	}
	return 0
}

// RunSimilarShapes partitions the tree's nodes into equivalence classes
// by shape, given a completed layout. Classes come back sorted by
// height. Every node must have a computed shape: run a full layout pass
// first.
func RunSimilarShapes(t *tree.Tree, lo *layout.Layout) []SubtreePattern {
	if t.NodeCount() == 0 {
		return nil
	}

	order := tree.AnyOrder(t)
	sort.SliceStable(order, func(i, j int) bool {
		return CompareShapes(lo.Shape(order[i]), lo.Shape(order[j])) < 0
	})

	sizes := tree.SubtreeSizes(t)

	var patterns []SubtreePattern
	for i := 0; i < len(order); {
		j := i + 1
		for j < len(order) && CompareShapes(lo.Shape(order[i]), lo.Shape(order[j])) == 0 {
			j++
		}
		group := make([]tree.NodeID, j-i)
		copy(group, order[i:j])
		patterns = append(patterns, SubtreePattern{
			Nodes:  group,
			Height: lo.Shape(order[i]).Height(),
			Size:   sizes[group[0]],
		})
		i = j
	}
	return patterns
}
