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

// PreOrder returns every node in pre-order (parent before children,
// children left to right). Callers hold the tree mutex when the tree
// may still be mutating.
func PreOrder(t *Tree) []NodeID {
	count := t.NodeCount()
	if count == 0 {
		return nil
	}
	order := make([]NodeID, 0, count)
	stack := []NodeID{t.Root()}
	for len(stack) > 0 {
		nid := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, nid)
		for i := t.ChildrenCount(nid) - 1; i >= 0; i-- {
			kid, err := t.Child(nid, i)
			if err == nil {
				stack = append(stack, kid)
			}
		}
	}
	return order
}

// AnyOrder returns every node in an unspecified (identifier) order.
// Cheaper than PreOrder when the visit order does not matter.
func AnyOrder(t *Tree) []NodeID {
	order := make([]NodeID, t.NodeCount())
	for i := range order {
		order[i] = NodeID(i)
	}
	return order
}

// CountDescendants returns the size of the subtree rooted at nid,
// nid included.
func CountDescendants(t *Tree, nid NodeID) int {
	if nid == NoNode {
		return 0
	}
	count := 0
	stack := []NodeID{nid}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++
		for i := t.ChildrenCount(n) - 1; i >= 0; i-- {
			kid, err := t.Child(n, i)
			if err == nil {
				stack = append(stack, kid)
			}
		}
	}
	return count
}

// SubtreeSizes computes the subtree size of every node in one
// bottom-up pass over the pre-order.
func SubtreeSizes(t *Tree) []int {
	order := PreOrder(t)
	sizes := make([]int, t.NodeCount())
	for i := len(order) - 1; i >= 0; i-- {
		nid := order[i]
		size := 1
		for alt := 0; alt < t.ChildrenCount(nid); alt++ {
			kid, err := t.Child(nid, alt)
			if err == nil {
				size += sizes[kid]
			}
		}
		sizes[nid] = size
	}
	return sizes
}

// HideBySize hides every node whose subtree holds more than maxSize
// nodes (descendant count, the node excluded) and assigns it a lantern
// size proportional to the largest collapsed subtree. Leaves are never
// hidden. HideBySize with a threshold at least the tree size hides
// nothing.
func HideBySize(t *Tree, vf *VisualFlags, maxSize int) {
	vf.ResetLanternSizes()

	sizes := SubtreeSizes(t)
	largest := 0
	var toHide []NodeID
	for _, nid := range AnyOrder(t) {
		if t.ChildrenCount(nid) == 0 {
			continue
		}
		if desc := sizes[nid] - 1; desc > maxSize {
			toHide = append(toHide, nid)
			if desc > largest {
				largest = desc
			}
		}
	}
	for _, nid := range toHide {
		vf.SetHidden(nid, true)
		vf.SetLanternSize(nid, (sizes[nid]-1)*LanternMax/largest)
	}
}

// HideFailed hides every maximal failed subtree under nid: subtrees
// with children but no solved and no open descendants. Returns the
// roots of the subtrees that were hidden.
func HideFailed(t *Tree, vf *VisualFlags, nid NodeID) []NodeID {
	var hiddenRoots []NodeID
	stack := []NodeID{nid}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !t.HasSolvedDescendants(n) && !t.HasOpenDescendants(n) && t.ChildrenCount(n) > 0 {
			vf.SetHidden(n, true)
			hiddenRoots = append(hiddenRoots, n)
			continue
		}
		for i := t.ChildrenCount(n) - 1; i >= 0; i-- {
			kid, err := t.Child(n, i)
			if err == nil {
				stack = append(stack, kid)
			}
		}
	}
	return hiddenRoots
}
