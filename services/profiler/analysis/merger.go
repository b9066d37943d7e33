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
	"errors"
	"strings"
	"unicode"

	"github.com/AleutianAI/treescope/services/profiler/tree"
)

// ErrEmptyTree is returned when an analysis input has no nodes.
var ErrEmptyTree = errors.New("analysis: tree is empty")

// PentagonItem records one divergence point of a merge: the merged
// node in the result tree and the subtree sizes on either side.
type PentagonItem struct {
	Node  tree.NodeID
	Left  int
	Right int
}

// MergeOptions tunes the merge comparison.
type MergeOptions struct {
	// CompareLabels also requires normalized labels to match for two
	// nodes to be considered equal. Off by default.
	CompareLabels bool
}

// Merge walks two trees simultaneously and materializes their merge
// into res, which must be a fresh empty tree. Wherever the walks
// diverge, a MERGED (pentagon) node is created whose two children carry
// structural copies of the diverging subtrees, and a PentagonItem is
// recorded.
//
// Extra children present on one side only are merged in unless they are
// UNDETERMINED or SKIPPED (replay artifacts, treated as absent).
//
// Locking: the two input mutexes are acquired in argument order, then
// the result mutex. Callers pass the executions in registration order
// so that concurrent merges cannot deadlock.
func Merge(l, r, res *tree.Tree, opts MergeOptions) ([]PentagonItem, error) {
	if l.NodeCount() == 0 || r.NodeCount() == 0 {
		return nil, ErrEmptyTree
	}

	l.Mutex().Lock()
	defer l.Mutex().Unlock()
	if r != l {
		r.Mutex().Lock()
		defer r.Mutex().Unlock()
	}
	res.Mutex().Lock()
	defer res.Mutex().Unlock()

	var pentagons []PentagonItem

	root, err := res.CreateRoot(0, tree.Branch, "")
	if err != nil {
		return nil, err
	}

	stackL := []tree.NodeID{l.Root()}
	stackR := []tree.NodeID{r.Root()}
	stack := []tree.NodeID{root}

	pop := func(s *[]tree.NodeID) tree.NodeID {
		n := (*s)[len(*s)-1]
		*s = (*s)[:len(*s)-1]
		return n
	}

	for len(stackL) > 0 {
		nodeL := pop(&stackL)
		nodeR := pop(&stackR)
		target := pop(&stack)

		if nodesEqual(nodeL, l, nodeR, r, opts.CompareLabels) {
			kidsL := l.ChildrenCount(nodeL)
			kidsR := r.ChildrenCount(nodeR)
			minKids, maxKids := kidsL, kidsR
			if minKids > maxKids {
				minKids, maxKids = maxKids, minKids
			}

			// The merged node always carries the larger arity.
			if _, err := res.PromoteNode(target, maxKids, l.Status(nodeL), l.RawLabel(nodeL)); err != nil {
				return nil, err
			}

			for i := maxKids - 1; i >= minKids; i-- {
				if kidsL > kidsR {
					kid, err := l.Child(nodeL, i)
					if err != nil {
						return nil, err
					}
					if s := l.Status(kid); s == tree.Undetermined || s == tree.Skipped {
						continue
					}
					stackL = append(stackL, kid)
					stackR = append(stackR, tree.NoNode)
				} else {
					kid, err := r.Child(nodeR, i)
					if err != nil {
						return nil, err
					}
					if s := r.Status(kid); s == tree.Undetermined || s == tree.Skipped {
						continue
					}
					stackL = append(stackL, tree.NoNode)
					stackR = append(stackR, kid)
				}
				t, err := res.Child(target, i)
				if err != nil {
					return nil, err
				}
				stack = append(stack, t)
			}

			for i := minKids - 1; i >= 0; i-- {
				kl, err := l.Child(nodeL, i)
				if err != nil {
					return nil, err
				}
				kr, err := r.Child(nodeR, i)
				if err != nil {
					return nil, err
				}
				t, err := res.Child(target, i)
				if err != nil {
					return nil, err
				}
				stackL = append(stackL, kl)
				stackR = append(stackR, kr)
				stack = append(stack, t)
			}
			continue
		}

		if err := createPentagon(res, target, l, nodeL, r, nodeR); err != nil {
			return nil, err
		}
		pentagons = append(pentagons, PentagonItem{
			Node:  target,
			Left:  tree.CountDescendants(l, nodeL),
			Right: tree.CountDescendants(r, nodeR),
		})
	}

	res.SetDone()
	return pentagons, nil
}

// nodesEqual compares the current nodes of both walks by status and,
// optionally, by normalized label.
func nodesEqual(n1 tree.NodeID, t1 *tree.Tree, n2 tree.NodeID, t2 *tree.Tree, withLabels bool) bool {
	if n1 == tree.NoNode || n2 == tree.NoNode {
		return false
	}
	if t1.Status(n1) != t2.Status(n2) {
		return false
	}
	if withLabels && !labelsEqual(t1.Label(n1), t2.Label(n2)) {
		return false
	}
	return true
}

// labelsEqual compares two labels modulo the rendering differences
// between solver backends: leading [i]/[f] type tags are stripped,
// whitespace is removed, and == is normalized to =.
func labelsEqual(lhs, rhs string) bool {
	return normalizeLabel(lhs) == normalizeLabel(rhs)
}

func normalizeLabel(s string) string {
	if strings.HasPrefix(s, "[i]") || strings.HasPrefix(s, "[f]") {
		s = s[3:]
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.ReplaceAll(b.String(), "==", "=")
}

// createPentagon promotes target to a MERGED node with two children and
// copies the diverging subtrees under them.
func createPentagon(res *tree.Tree, target tree.NodeID, l *tree.Tree, nodeL tree.NodeID, r *tree.Tree, nodeR tree.NodeID) error {
	if _, err := res.PromoteNode(target, 2, tree.Merged, ""); err != nil {
		return err
	}

	if nodeL != tree.NoNode {
		t, err := res.Child(target, 0)
		if err != nil {
			return err
		}
		if err := copyTreeInto(res, t, l, nodeL); err != nil {
			return err
		}
	}
	if nodeR != tree.NoNode {
		t, err := res.Child(target, 1)
		if err != nil {
			return err
		}
		if err := copyTreeInto(res, t, r, nodeR); err != nil {
			return err
		}
	}
	return nil
}

// copyTreeInto copies the subtree of src rooted at srcNode onto the
// undetermined node dst of t, preserving statuses and labels.
func copyTreeInto(t *tree.Tree, dst tree.NodeID, src *tree.Tree, srcNode tree.NodeID) error {
	stack := []tree.NodeID{dst}
	stackSrc := []tree.NodeID{srcNode}

	for len(stackSrc) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodeSrc := stackSrc[len(stackSrc)-1]
		stackSrc = stackSrc[:len(stackSrc)-1]

		kids := src.ChildrenCount(nodeSrc)
		if _, err := t.PromoteNode(node, kids, src.Status(nodeSrc), src.RawLabel(nodeSrc)); err != nil {
			return err
		}

		for alt := 0; alt < kids; alt++ {
			kid, err := t.Child(node, alt)
			if err != nil {
				return err
			}
			kidSrc, err := src.Child(nodeSrc, alt)
			if err != nil {
				return err
			}
			stack = append(stack, kid)
			stackSrc = append(stackSrc, kidSrc)
		}
	}
	return nil
}
