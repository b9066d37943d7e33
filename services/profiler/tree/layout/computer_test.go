// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/treescope/services/profiler/tree"
)

type fixture struct {
	tree  *tree.Tree
	flags *tree.VisualFlags
	lo    *Layout
	comp  *Computer
}

func newFixture(t *tree.Tree) *fixture {
	flags := tree.NewVisualFlags()
	lo := New()
	comp := NewComputer(t, flags, lo)
	comp.Attach()
	return &fixture{tree: t, flags: flags, lo: lo, comp: comp}
}

func TestCompute_EmptyTree(t *testing.T) {
	f := newFixture(tree.New())
	assert.False(t, f.comp.Compute())
}

func TestCompute_LeafOnly(t *testing.T) {
	tr := tree.New()
	root, err := tr.CreateRoot(0, tree.Failed, "")
	require.NoError(t, err)

	f := newFixture(tr)
	require.True(t, f.comp.Compute())

	shape := f.lo.Shape(root)
	require.Equal(t, 1, shape.Height())
	assert.Equal(t, Extent{-HalfMaxNodeW, HalfMaxNodeW}, shape.At(0))
	assert.Equal(t, BoundingBox{-HalfMaxNodeW, HalfMaxNodeW}, shape.BoundingBox())
	assert.True(t, f.lo.Done(root))
	assert.False(t, f.lo.IsDirty(root))
}

func TestCompute_TwoLeaves(t *testing.T) {
	tr := tree.New()
	root, _ := tr.CreateRoot(2, tree.Branch, "")
	l, _ := tr.PromoteAt(root, 0, 0, tree.Failed, "")
	r, err := tr.PromoteAt(root, 1, 0, tree.Solved, "")
	require.NoError(t, err)

	f := newFixture(tr)
	require.True(t, f.comp.Compute())

	// Leaves sit (-11, 11); they must be 22 + 16 apart, so offsets are
	// +/- 19 and the merged row reaches (-30, 30).
	shape := f.lo.Shape(root)
	require.Equal(t, 2, shape.Height())
	assert.Equal(t, Extent{-HalfMaxNodeW, HalfMaxNodeW}, shape.At(0))
	assert.Equal(t, Extent{-30, 30}, shape.At(1))
	assert.Equal(t, BoundingBox{-30, 30}, shape.BoundingBox())
	assert.Equal(t, -19, f.lo.ChildOffset(l))
	assert.Equal(t, 19, f.lo.ChildOffset(r))
}

func TestCompute_SingleChildChain(t *testing.T) {
	tr := tree.New()
	root, _ := tr.CreateRoot(1, tree.Branch, "")
	kid, err := tr.PromoteAt(root, 0, 0, tree.Failed, "")
	require.NoError(t, err)

	f := newFixture(tr)
	require.True(t, f.comp.Compute())

	shape := f.lo.Shape(root)
	require.Equal(t, 2, shape.Height())
	assert.Equal(t, Extent{-HalfMaxNodeW, HalfMaxNodeW}, shape.At(0))
	assert.Equal(t, Extent{-HalfMaxNodeW, HalfMaxNodeW}, shape.At(1))
	// A single child keeps the child's bounding box and a zero offset.
	assert.Equal(t, BoundingBox{-HalfMaxNodeW, HalfMaxNodeW}, shape.BoundingBox())
	assert.Equal(t, 0, f.lo.ChildOffset(kid))
}

func TestCompute_TernaryRow(t *testing.T) {
	tr := tree.New()
	root, _ := tr.CreateRoot(3, tree.Branch, "")
	var kids []tree.NodeID
	for alt := 0; alt < 3; alt++ {
		kid, err := tr.PromoteAt(root, alt, 0, tree.Failed, "")
		require.NoError(t, err)
		kids = append(kids, kid)
	}

	f := newFixture(tr)
	require.True(t, f.comp.Compute())

	assert.Equal(t, -38, f.lo.ChildOffset(kids[0]))
	assert.Equal(t, 0, f.lo.ChildOffset(kids[1]))
	assert.Equal(t, 38, f.lo.ChildOffset(kids[2]))

	shape := f.lo.Shape(root)
	require.Equal(t, 2, shape.Height())
	assert.Equal(t, Extent{-49, 49}, shape.At(1))
	assert.Equal(t, BoundingBox{-49, 49}, shape.BoundingBox())
}

func TestCompute_HiddenTriangle(t *testing.T) {
	tr := tree.New()
	root, _ := tr.CreateRoot(2, tree.Branch, "")
	tr.PromoteAt(root, 0, 0, tree.Failed, "")
	tr.PromoteAt(root, 1, 0, tree.Failed, "")

	f := newFixture(tr)
	f.flags.SetHidden(root, true)
	require.True(t, f.comp.Compute())

	shape := f.lo.Shape(root)
	require.Equal(t, 2, shape.Height())
	assert.Equal(t, Extent{-HalfMaxNodeW, HalfMaxNodeW}, shape.At(0))
	assert.Equal(t, Extent{-MaxNodeW, MaxNodeW}, shape.At(1))
}

func TestCompute_LanternHeights(t *testing.T) {
	tr := tree.New()
	root, _ := tr.CreateRoot(2, tree.Branch, "")
	tr.PromoteAt(root, 0, 0, tree.Failed, "")
	tr.PromoteAt(root, 1, 0, tree.Failed, "")

	tests := []struct {
		size   int
		levels int
	}{
		{0, 2},
		{LanternPrecision, 5},
	}
	for _, tt := range tests {
		f := newFixture(tr)
		f.flags.SetHidden(root, true)
		f.flags.SetLanternSize(root, tt.size)
		require.True(t, f.comp.Compute())

		shape := f.lo.Shape(root)
		assert.Equal(t, tt.levels, shape.Height(), "size %d", tt.size)
		for i := 0; i < shape.Height(); i++ {
			assert.Equal(t, Extent{-LanternHalfWidth, LanternHalfWidth}, shape.At(i))
		}
	}
}

func TestCompute_LabelWidensCorrectSide(t *testing.T) {
	tr := tree.New()
	root, _ := tr.CreateRoot(2, tree.Branch, "")
	l, _ := tr.PromoteAt(root, 0, 0, tree.Failed, "ab")
	r, err := tr.PromoteAt(root, 1, 0, tree.Failed, "cd")
	require.NoError(t, err)

	f := newFixture(tr)
	f.flags.SetLabelShown(l, true)
	f.flags.SetLabelShown(r, true)
	require.True(t, f.comp.Compute())

	// Non-right-most children draw labels on the left, the right-most
	// child on the right; two characters widen by 18.
	assert.Equal(t, Extent{-HalfMaxNodeW - 18, HalfMaxNodeW}, f.lo.Shape(l).At(0))
	assert.Equal(t, Extent{-HalfMaxNodeW, HalfMaxNodeW + 18}, f.lo.Shape(r).At(0))
}

func TestCompute_Deterministic(t *testing.T) {
	tr := tree.New()
	root, _ := tr.CreateRoot(2, tree.Branch, "")
	mid, _ := tr.PromoteAt(root, 0, 2, tree.Branch, "")
	tr.PromoteAt(mid, 0, 0, tree.Failed, "")
	tr.PromoteAt(mid, 1, 0, tree.Solved, "")
	leaf, _ := tr.PromoteAt(root, 1, 0, tree.Failed, "")

	f := newFixture(tr)
	require.True(t, f.comp.Compute())

	first := make(map[tree.NodeID]*Shape)
	for _, nid := range tree.AnyOrder(tr) {
		first[nid] = f.lo.Shape(nid)
	}

	// Dirty everything up again and recompute: bit-identical shapes.
	f.comp.DirtyUpLater(leaf)
	f.comp.DirtyUpLater(mid)
	require.True(t, f.comp.Compute())

	for nid, shape := range first {
		assert.True(t, shape.Equal(f.lo.Shape(nid)), "node %d", nid)
	}
}

func TestCompute_IncrementalGrowth(t *testing.T) {
	tr := tree.New()
	root, _ := tr.CreateRoot(2, tree.Branch, "")
	tr.PromoteAt(root, 0, 0, tree.Failed, "")

	f := newFixture(tr)
	require.True(t, f.comp.Compute())
	require.Equal(t, 2, f.lo.Shape(root).Height())

	// Growing alt 1 dirties the ancestor chain through the event
	// subscription; the next pass deepens the root shape.
	mid, err := tr.PromoteAt(root, 1, 2, tree.Branch, "")
	require.NoError(t, err)
	tr.PromoteAt(mid, 0, 0, tree.Failed, "")
	tr.PromoteAt(mid, 1, 0, tree.Failed, "")

	require.True(t, f.comp.Compute())
	assert.Equal(t, 3, f.lo.Shape(root).Height())
	assert.False(t, f.lo.IsDirty(root))
}

func TestCompute_HiddenSubtreeNotDescended(t *testing.T) {
	tr := tree.New()
	root, _ := tr.CreateRoot(2, tree.Branch, "")
	mid, _ := tr.PromoteAt(root, 0, 2, tree.Branch, "")
	tr.PromoteAt(mid, 0, 0, tree.Failed, "")
	tr.PromoteAt(mid, 1, 0, tree.Failed, "")
	tr.PromoteAt(root, 1, 0, tree.Failed, "")

	f := newFixture(tr)
	f.flags.SetHidden(mid, true)
	require.True(t, f.comp.Compute())

	// The hidden subtree contributes its two-row collapsed triangle, so
	// the root spans three rows.
	assert.Equal(t, 3, f.lo.Shape(root).Height())

	// Children of the hidden node were never laid out.
	kid, _ := tr.Child(mid, 0)
	assert.False(t, f.lo.Done(kid))
}
