// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_SingleFailedRoot(t *testing.T) {
	tr := New()

	root, err := tr.CreateRoot(0, Failed, "")
	require.NoError(t, err)

	assert.Equal(t, 1, tr.NodeCount())
	assert.Equal(t, Failed, tr.Status(root))
	assert.Equal(t, 1, tr.Depth())
	assert.Equal(t, 1, tr.Stats().FailedCount())
	assert.False(t, tr.HasOpenDescendants(root))
}

func TestTree_BinaryDepthTwo(t *testing.T) {
	tr := New()

	var closed []NodeID
	tr.Events().Subscribe(func(ev Event) {
		closed = append(closed, ev.Node)
	}, SubtreeClosed)

	root, err := tr.CreateRoot(2, Branch, "")
	require.NoError(t, err)
	assert.Equal(t, 3, tr.NodeCount())
	assert.Equal(t, 2, tr.Depth())
	assert.Equal(t, 2, tr.Stats().UndeterminedCount())

	n1, err := tr.PromoteAt(root, 0, 0, Failed, "")
	require.NoError(t, err)
	assert.True(t, tr.HasOpenDescendants(root))

	n2, err := tr.PromoteAt(root, 1, 0, Solved, "")
	require.NoError(t, err)

	assert.NotEqual(t, n1, n2)
	assert.Equal(t, 3, tr.NodeCount())
	assert.Equal(t, 2, tr.Depth())
	assert.True(t, tr.HasSolvedDescendants(root))
	assert.False(t, tr.HasOpenDescendants(root))
	assert.Equal(t, 0, tr.Stats().UndeterminedCount())
	assert.Equal(t, 1, tr.Stats().SolvedCount())
	assert.Equal(t, 1, tr.Stats().FailedCount())

	// Exactly one subtree-closed event, on the root.
	assert.Equal(t, []NodeID{root}, closed)
}

func TestTree_SubtreeClosedFiresOnce(t *testing.T) {
	tr := New()

	events := 0
	tr.Events().Subscribe(func(ev Event) { events++ }, SubtreeClosed)

	root, _ := tr.CreateRoot(2, Branch, "")
	mid, err := tr.PromoteAt(root, 0, 2, Branch, "")
	require.NoError(t, err)
	_, err = tr.PromoteAt(mid, 0, 0, Failed, "")
	require.NoError(t, err)
	_, err = tr.PromoteAt(mid, 1, 0, Failed, "")
	require.NoError(t, err)

	// mid's subtree is closed, the root still has an open child.
	assert.Equal(t, 1, events)
	assert.False(t, tr.HasOpenDescendants(mid))
	assert.True(t, tr.HasOpenDescendants(root))

	_, err = tr.PromoteAt(root, 1, 0, Failed, "")
	require.NoError(t, err)
	assert.Equal(t, 2, events)
	assert.False(t, tr.HasOpenDescendants(root))
}

func TestTree_ParentChildAltInvariant(t *testing.T) {
	tr := New()
	root, _ := tr.CreateRoot(3, Branch, "")
	n0, _ := tr.PromoteAt(root, 0, 2, Branch, "a")
	_, err := tr.PromoteAt(n0, 0, 0, Failed, "")
	require.NoError(t, err)
	_, err = tr.PromoteAt(n0, 1, 0, Failed, "")
	require.NoError(t, err)

	for _, nid := range AnyOrder(tr) {
		k := tr.ChildrenCount(nid)
		for i := 0; i < k; i++ {
			kid, err := tr.Child(nid, i)
			require.NoError(t, err)
			assert.Equal(t, nid, tr.Parent(kid))
			alt, err := tr.Alternative(kid)
			require.NoError(t, err)
			assert.Equal(t, i, alt)
		}
	}
}

func TestTree_PromoteTwiceDropsSecond(t *testing.T) {
	tr := New()
	root, _ := tr.CreateRoot(2, Branch, "")

	_, err := tr.PromoteAt(root, 0, 2, Branch, "first")
	require.NoError(t, err)

	nodesBefore := tr.NodeCount()
	_, err = tr.PromoteAt(root, 0, 2, Branch, "second")
	assert.ErrorIs(t, err, ErrNodeExists)
	assert.Equal(t, nodesBefore, tr.NodeCount())

	kid, _ := tr.Child(root, 0)
	assert.Equal(t, "first", tr.Label(kid))
}

func TestTree_PromoteAltOutOfRange(t *testing.T) {
	tr := New()
	root, _ := tr.CreateRoot(2, Branch, "")

	_, err := tr.PromoteAt(root, 5, 0, Failed, "")
	assert.ErrorIs(t, err, ErrNoSuchChild)
}

func TestTree_RestartSuperRoot(t *testing.T) {
	tr := New()

	root, err := tr.CreateRoot(0, Branch, "")
	require.NoError(t, err)

	for restart := 0; restart < 2; restart++ {
		_, err := tr.AddExtraChild(root)
		require.NoError(t, err)
		nid, err := tr.PromoteAt(root, restart, 0, Failed, "")
		require.NoError(t, err)
		assert.Equal(t, Failed, tr.Status(nid))
	}

	assert.Equal(t, 2, tr.ChildrenCount(root))
	assert.Equal(t, 2, tr.Stats().FailedCount())
}

func TestTree_SolvedPropagatesToAllAncestors(t *testing.T) {
	tr := New()
	root, _ := tr.CreateRoot(1, Branch, "")
	n1, _ := tr.PromoteAt(root, 0, 1, Branch, "")
	n2, _ := tr.PromoteAt(n1, 0, 1, Branch, "")
	leaf, err := tr.PromoteAt(n2, 0, 0, Solved, "")
	require.NoError(t, err)

	for _, nid := range []NodeID{leaf, n2, n1, root} {
		assert.True(t, tr.HasSolvedDescendants(nid), "node %d", nid)
	}
}

func TestTree_PromoteWithOneKidUpdatesDepth(t *testing.T) {
	tr := New()
	root, _ := tr.CreateRoot(1, Branch, "")
	n1, err := tr.PromoteAt(root, 0, 1, Branch, "")
	require.NoError(t, err)
	assert.Equal(t, 3, tr.Depth())

	_, err = tr.PromoteAt(n1, 0, 0, Failed, "")
	require.NoError(t, err)
	assert.Equal(t, 3, tr.Depth())
}

func TestTree_LabelRenamedThroughNameMap(t *testing.T) {
	tr := New()
	tr.SetNameMap(stubResolver{})

	root, _ := tr.CreateRoot(0, Branch, "X_INTRODUCED_1 <= 4")
	assert.Equal(t, "x <= 4", tr.Label(root))
	assert.Equal(t, "X_INTRODUCED_1 <= 4", tr.RawLabel(root))
}

type stubResolver struct{}

func (stubResolver) ReplaceNames(text string) string {
	if text == "X_INTRODUCED_1 <= 4" {
		return "x <= 4"
	}
	return text
}

func TestTree_DBRoundTripStructure(t *testing.T) {
	// Build live, replay through the offline path, compare.
	live := New()
	root, _ := live.CreateRoot(2, Branch, "r")
	n1, _ := live.PromoteAt(root, 0, 2, Branch, "a")
	live.PromoteAt(n1, 0, 0, Failed, "b")
	live.PromoteAt(n1, 1, 0, Solved, "c")
	live.PromoteAt(root, 1, 0, Failed, "d")

	replayed := New()
	replayed.DBInitialize(live.NodeCount())
	for _, nid := range PreOrder(live) {
		pid := live.Parent(nid)
		if pid == NoNode {
			replayed.DBCreateRoot(nid, live.Status(nid), live.RawLabel(nid))
			continue
		}
		alt, err := live.Alternative(nid)
		require.NoError(t, err)
		require.NoError(t, replayed.DBAddChild(nid, pid, alt, live.Status(nid), live.RawLabel(nid)))
	}

	require.Equal(t, live.NodeCount(), replayed.NodeCount())
	for _, nid := range AnyOrder(live) {
		assert.Equal(t, live.Parent(nid), replayed.Parent(nid))
		assert.Equal(t, live.ChildrenCount(nid), replayed.ChildrenCount(nid))
		assert.Equal(t, live.Status(nid), replayed.Status(nid))
		assert.Equal(t, live.RawLabel(nid), replayed.RawLabel(nid))
	}
	assert.Equal(t, live.Depth(), replayed.Depth())
}
