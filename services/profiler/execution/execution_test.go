// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/treescope/services/profiler/tree"
	"github.com/AleutianAI/treescope/services/profiler/wire"
)

func TestSolverData_UIDMapping(t *testing.T) {
	sd := NewSolverData()

	uid := wire.UID{Nid: 4, Rid: 0, Tid: 1}
	assert.Equal(t, tree.NoNode, sd.NodeID(uid))

	sd.SetNodeID(uid, 7)
	assert.Equal(t, tree.NodeID(7), sd.NodeID(uid))

	// The same node number under another restart is a different UID.
	assert.Equal(t, tree.NoNode, sd.NodeID(wire.UID{Nid: 4, Rid: 1, Tid: 1}))
}

func TestSolverData_Nogoods(t *testing.T) {
	sd := NewSolverData()
	assert.False(t, sd.HasNogoods())

	sd.SetNogood(3, "a \\/ b", "x \\/ y")
	assert.True(t, sd.HasNogoods())
	assert.Equal(t, "a \\/ b", sd.GetNogood(3).Original)
	assert.Equal(t, "x \\/ y", sd.GetNogood(3).Get())

	// Without a renamed form, Get falls back to the original.
	sd.SetNogood(4, "c", "")
	assert.Equal(t, "c", sd.GetNogood(4).Get())
}

func TestUserData_Selection(t *testing.T) {
	ud := NewUserData()
	assert.Equal(t, tree.NoNode, ud.SelectedNode())

	ud.SetSelectedNode(5)
	assert.Equal(t, tree.NodeID(5), ud.SelectedNode())
}

func TestUserData_Bookmarks(t *testing.T) {
	ud := NewUserData()

	ud.SetBookmark(9, "interesting")
	ud.SetBookmark(2, "start")
	assert.True(t, ud.IsBookmarked(9))
	assert.Equal(t, []tree.NodeID{2, 9}, ud.BookmarkedNodes())

	text, ok := ud.Bookmark(9)
	assert.True(t, ok)
	assert.Equal(t, "interesting", text)

	ud.ClearBookmark(9)
	assert.False(t, ud.IsBookmarked(9))
	assert.Equal(t, []tree.NodeID{2}, ud.BookmarkedNodes())
}

func TestExecution_NameMapAttachesToTree(t *testing.T) {
	ex := New("t", 1, false)
	assert.Nil(t, ex.NameMap())

	// A nil map stays detached.
	ex.SetNameMap(nil)
	assert.Nil(t, ex.NameMap())
}
