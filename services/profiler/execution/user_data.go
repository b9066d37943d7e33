// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package execution

import (
	"sort"
	"sync"

	"github.com/AleutianAI/treescope/services/profiler/tree"
)

// UserData holds user-driven state for one execution: the currently
// selected node and a sparse map of bookmarks.
//
// Thread Safety: safe for concurrent use; owned by the UI-facing
// goroutine but readable everywhere.
type UserData struct {
	mu        sync.RWMutex
	selected  tree.NodeID
	bookmarks map[tree.NodeID]string
}

// NewUserData creates empty user data with no selection.
func NewUserData() *UserData {
	return &UserData{
		selected:  tree.NoNode,
		bookmarks: make(map[tree.NodeID]string),
	}
}

// SetSelectedNode records the current selection (NoNode to clear).
func (ud *UserData) SetSelectedNode(nid tree.NodeID) {
	ud.mu.Lock()
	ud.selected = nid
	ud.mu.Unlock()
}

// SelectedNode returns the current selection, possibly NoNode.
func (ud *UserData) SelectedNode() tree.NodeID {
	ud.mu.RLock()
	defer ud.mu.RUnlock()
	return ud.selected
}

// SetBookmark attaches bookmark text to nid.
func (ud *UserData) SetBookmark(nid tree.NodeID, text string) {
	ud.mu.Lock()
	ud.bookmarks[nid] = text
	ud.mu.Unlock()
}

// ClearBookmark removes the bookmark of nid.
func (ud *UserData) ClearBookmark(nid tree.NodeID) {
	ud.mu.Lock()
	delete(ud.bookmarks, nid)
	ud.mu.Unlock()
}

// Bookmark returns the bookmark of nid and whether one exists.
func (ud *UserData) Bookmark(nid tree.NodeID) (string, bool) {
	ud.mu.RLock()
	defer ud.mu.RUnlock()
	text, ok := ud.bookmarks[nid]
	return text, ok
}

// IsBookmarked reports whether nid has a bookmark.
func (ud *UserData) IsBookmarked(nid tree.NodeID) bool {
	_, ok := ud.Bookmark(nid)
	return ok
}

// BookmarkedNodes returns all bookmarked nodes in ascending order.
func (ud *UserData) BookmarkedNodes() []tree.NodeID {
	ud.mu.RLock()
	defer ud.mu.RUnlock()
	out := make([]tree.NodeID, 0, len(ud.bookmarks))
	for nid := range ud.bookmarks {
		out = append(out, nid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
