// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package execution

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/treescope/services/profiler/namemap"
	"github.com/AleutianAI/treescope/services/profiler/tree"
	"github.com/AleutianAI/treescope/services/profiler/wire"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func nodeMsg(nid int32, parent wire.UID, alt, kids int32, status byte, label string) wire.Message {
	msg := wire.NewNode(wire.UID{Nid: nid, Rid: -1, Tid: -1}, parent, alt, kids, status)
	if label != "" {
		msg.SetLabel(label)
	}
	return msg
}

func TestBuilder_SingleFailure(t *testing.T) {
	// START + one failed root: a one-node FAILED tree.
	ex := New("t", 1, false)
	b := NewBuilder(ex, discard())

	b.HandleNode(nodeMsg(0, wire.RootUID, -1, 0, 1, ""))
	b.Finish()

	tr := ex.Tree()
	assert.Equal(t, 1, tr.NodeCount())
	assert.Equal(t, tree.Failed, tr.Status(tr.Root()))
	assert.Equal(t, 1, tr.Depth())
	assert.Equal(t, 1, tr.Stats().FailedCount())
	assert.True(t, tr.IsDone())
}

func TestBuilder_BinaryDepthTwo(t *testing.T) {
	ex := New("t", 1, false)
	b := NewBuilder(ex, discard())

	root := wire.UID{Nid: 0, Rid: -1, Tid: -1}
	b.HandleNode(nodeMsg(0, wire.RootUID, -1, 2, 2, ""))
	b.HandleNode(nodeMsg(1, root, 0, 0, 1, "x=1"))
	b.HandleNode(nodeMsg(2, root, 1, 0, 0, "x!=1"))

	tr := ex.Tree()
	assert.Equal(t, 3, tr.NodeCount())
	assert.Equal(t, 2, tr.Depth())
	assert.True(t, tr.HasSolvedDescendants(tr.Root()))
	assert.False(t, tr.HasOpenDescendants(tr.Root()))

	// The UID map resolves children to the promoted slots.
	nid := ex.SolverData().NodeID(wire.UID{Nid: 2, Rid: -1, Tid: -1})
	require.NotEqual(t, tree.NoNode, nid)
	assert.Equal(t, tree.Solved, tr.Status(nid))
	assert.Equal(t, "x!=1", tr.Label(nid))
}

func TestBuilder_RestartExecution(t *testing.T) {
	// Two successive root messages on a restart-enabled execution.
	ex := New("t", 1, true)
	b := NewBuilder(ex, discard())

	b.HandleNode(nodeMsg(0, wire.RootUID, -1, 0, 1, ""))
	b.HandleNode(nodeMsg(0, wire.UID{Nid: -1, Rid: 1, Tid: -1}, -1, 0, 1, ""))

	tr := ex.Tree()
	assert.Equal(t, 2, b.RestartCount())
	assert.Equal(t, 2, tr.ChildrenCount(tr.Root()))
	for alt := 0; alt < 2; alt++ {
		kid, err := tr.Child(tr.Root(), alt)
		require.NoError(t, err)
		assert.Equal(t, tree.Failed, tr.Status(kid))
	}
}

func TestBuilder_SecondRootDropped(t *testing.T) {
	ex := New("t", 1, false)
	b := NewBuilder(ex, discard())

	b.HandleNode(nodeMsg(0, wire.RootUID, -1, 0, 1, ""))
	b.HandleNode(nodeMsg(1, wire.RootUID, -1, 0, 1, ""))

	assert.Equal(t, 1, ex.Tree().NodeCount())
}

func TestBuilder_UnknownParentDropped(t *testing.T) {
	ex := New("t", 1, false)
	b := NewBuilder(ex, discard())

	b.HandleNode(nodeMsg(0, wire.RootUID, -1, 2, 2, ""))
	b.HandleNode(nodeMsg(5, wire.UID{Nid: 99, Rid: -1, Tid: -1}, 0, 0, 1, ""))

	tr := ex.Tree()
	assert.Equal(t, 3, tr.NodeCount())
	assert.Equal(t, tree.NoNode, ex.SolverData().NodeID(wire.UID{Nid: 5, Rid: -1, Tid: -1}))
}

func TestBuilder_DuplicatePromotionDropped(t *testing.T) {
	ex := New("t", 1, false)
	b := NewBuilder(ex, discard())

	root := wire.UID{Nid: 0, Rid: -1, Tid: -1}
	b.HandleNode(nodeMsg(0, wire.RootUID, -1, 1, 2, ""))
	b.HandleNode(nodeMsg(1, root, 0, 2, 2, "first"))
	b.HandleNode(nodeMsg(2, root, 0, 2, 2, "second"))

	tr := ex.Tree()
	kid, err := tr.Child(tr.Root(), 0)
	require.NoError(t, err)
	assert.Equal(t, "first", tr.Label(kid))
}

func TestBuilder_MessagesAfterDoneDropped(t *testing.T) {
	ex := New("t", 1, false)
	b := NewBuilder(ex, discard())

	b.HandleNode(nodeMsg(0, wire.RootUID, -1, 0, 1, ""))
	b.Finish()
	b.HandleNode(nodeMsg(1, wire.UID{Nid: 0, Rid: -1, Tid: -1}, 0, 0, 1, ""))

	assert.Equal(t, 1, ex.Tree().NodeCount())
}

func TestBuilder_NogoodRenaming(t *testing.T) {
	dir := t.TempDir()
	paths := filepath.Join(dir, "paths.txt")
	require.NoError(t, os.WriteFile(paths,
		[]byte("X_INTRODUCED_1\tmark[1]\tmodel.mzn;1;1;1;2;\n"), 0644))
	nm, err := namemap.Load(paths, "")
	require.NoError(t, err)

	ex := New("t", 1, false)
	ex.SetNameMap(nm)
	b := NewBuilder(ex, discard())

	msg := nodeMsg(0, wire.RootUID, -1, 0, 1, "")
	msg.SetNogood("X_INTRODUCED_1 != 3")
	b.HandleNode(msg)

	nid := ex.SolverData().NodeID(wire.UID{Nid: 0, Rid: -1, Tid: -1})
	ng := ex.SolverData().GetNogood(nid)
	assert.Equal(t, "X_INTRODUCED_1 != 3", ng.Original)
	assert.Equal(t, "mark[1] != 3", ng.Renamed)
	assert.Equal(t, "mark[1] != 3", ng.Get())
}

func TestBuilder_InfoStored(t *testing.T) {
	ex := New("t", 1, false)
	b := NewBuilder(ex, discard())

	msg := nodeMsg(0, wire.RootUID, -1, 0, 1, "")
	msg.SetInfo(`{"domain": 4}`)
	b.HandleNode(msg)

	nid := ex.SolverData().NodeID(wire.UID{Nid: 0, Rid: -1, Tid: -1})
	assert.Equal(t, `{"domain": 4}`, ex.SolverData().GetInfo(nid))
}
