// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/treescope/services/profiler/tree"
)

func TestMerge_IdenticalTrees(t *testing.T) {
	build := func() *tree.Tree {
		tr := tree.New()
		root, _ := tr.CreateRoot(2, tree.Branch, "")
		tr.PromoteAt(root, 0, 0, tree.Failed, "")
		tr.PromoteAt(root, 1, 0, tree.Solved, "")
		return tr
	}
	l, r := build(), build()

	res := tree.New()
	pentagons, err := Merge(l, r, res, MergeOptions{})
	require.NoError(t, err)

	assert.Empty(t, pentagons)
	assert.Equal(t, 3, res.NodeCount())
	assert.Equal(t, tree.Branch, res.Status(res.Root()))
	k0, _ := res.Child(res.Root(), 0)
	k1, _ := res.Child(res.Root(), 1)
	assert.Equal(t, tree.Failed, res.Status(k0))
	assert.Equal(t, tree.Solved, res.Status(k1))
}

func TestMerge_DivergencePentagon(t *testing.T) {
	// Tree A: root -> (FAILED, BRANCH -> (FAILED, FAILED)).
	a := tree.New()
	rootA, _ := a.CreateRoot(2, tree.Branch, "")
	a.PromoteAt(rootA, 0, 0, tree.Failed, "")
	midA, _ := a.PromoteAt(rootA, 1, 2, tree.Branch, "")
	a.PromoteAt(midA, 0, 0, tree.Failed, "")
	a.PromoteAt(midA, 1, 0, tree.Failed, "")

	// Tree B: root -> (FAILED, FAILED).
	b := tree.New()
	rootB, _ := b.CreateRoot(2, tree.Branch, "")
	b.PromoteAt(rootB, 0, 0, tree.Failed, "")
	b.PromoteAt(rootB, 1, 0, tree.Failed, "")

	res := tree.New()
	pentagons, err := Merge(a, b, res, MergeOptions{})
	require.NoError(t, err)

	// Root and alt 0 match; alt 1 diverges (BRANCH vs FAILED).
	require.Len(t, pentagons, 1)
	item := pentagons[0]
	assert.Equal(t, 3, item.Left)
	assert.Equal(t, 1, item.Right)

	assert.Equal(t, tree.Merged, res.Status(item.Node))
	assert.Equal(t, 2, res.ChildrenCount(item.Node))

	// Child 0 carries A's diverging subtree, child 1 carries B's.
	c0, _ := res.Child(item.Node, 0)
	assert.Equal(t, tree.Branch, res.Status(c0))
	assert.Equal(t, 2, res.ChildrenCount(c0))
	c1, _ := res.Child(item.Node, 1)
	assert.Equal(t, tree.Failed, res.Status(c1))
	assert.Equal(t, 0, res.ChildrenCount(c1))

	assert.True(t, res.IsDone())
}

func TestMerge_ExtraChildrenIgnoredWhenOpenOrSkipped(t *testing.T) {
	// A has a third child that is SKIPPED: treated as absent.
	a := tree.New()
	rootA, _ := a.CreateRoot(3, tree.Branch, "")
	a.PromoteAt(rootA, 0, 0, tree.Failed, "")
	a.PromoteAt(rootA, 1, 0, tree.Failed, "")
	a.PromoteAt(rootA, 2, 0, tree.Skipped, "")

	b := tree.New()
	rootB, _ := b.CreateRoot(2, tree.Branch, "")
	b.PromoteAt(rootB, 0, 0, tree.Failed, "")
	b.PromoteAt(rootB, 1, 0, tree.Failed, "")

	res := tree.New()
	pentagons, err := Merge(a, b, res, MergeOptions{})
	require.NoError(t, err)

	assert.Empty(t, pentagons)
	// The merged root still has the larger arity, but the skipped
	// extra child stays undetermined.
	assert.Equal(t, 3, res.ChildrenCount(res.Root()))
	extra, _ := res.Child(res.Root(), 2)
	assert.Equal(t, tree.Undetermined, res.Status(extra))
}

func TestMerge_ExtraRealChildMergesOneSided(t *testing.T) {
	a := tree.New()
	rootA, _ := a.CreateRoot(3, tree.Branch, "")
	a.PromoteAt(rootA, 0, 0, tree.Failed, "")
	a.PromoteAt(rootA, 1, 0, tree.Failed, "")
	a.PromoteAt(rootA, 2, 0, tree.Failed, "")

	b := tree.New()
	rootB, _ := b.CreateRoot(2, tree.Branch, "")
	b.PromoteAt(rootB, 0, 0, tree.Failed, "")
	b.PromoteAt(rootB, 1, 0, tree.Failed, "")

	res := tree.New()
	pentagons, err := Merge(a, b, res, MergeOptions{})
	require.NoError(t, err)

	// The one-sided walk compares A's third child against NoNode,
	// which always diverges: a pentagon with an empty right side.
	require.Len(t, pentagons, 1)
	assert.Equal(t, 1, pentagons[0].Left)
	assert.Equal(t, 0, pentagons[0].Right)
}

func TestMerge_EmptyTreeRejected(t *testing.T) {
	_, err := Merge(tree.New(), tree.New(), tree.New(), MergeOptions{})
	assert.ErrorIs(t, err, ErrEmptyTree)
}

func TestLabelsEqual_Normalization(t *testing.T) {
	tests := []struct {
		lhs, rhs string
		want     bool
	}{
		{"x == 5", "x=5", true},
		{"[i]x = 5", "x = 5", true},
		{"[f]y<2", "y < 2", true},
		{"x = 5", "x = 6", false},
		{"", "", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, labelsEqual(tt.lhs, tt.rhs), "%q vs %q", tt.lhs, tt.rhs)
	}
}
