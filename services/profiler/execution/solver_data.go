// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package execution ties one solver run together: the tree, the
// solver-supplied side data (UID mapping, nogoods, info), the
// user-facing data (selection, bookmarks) and the builder that ingests the
// message stream. The registry that owns all live executions is package
// conductor.
package execution

import (
	"github.com/AleutianAI/treescope/services/profiler/tree"
	"github.com/AleutianAI/treescope/services/profiler/wire"
)

// Nogood is a solver-emitted constraint attached to a node: the
// original text and, when a name map is available, the renamed form.
type Nogood struct {
	Original string
	Renamed  string
}

// Get returns the renamed text when present, the original otherwise.
func (n Nogood) Get() string {
	if n.Renamed != "" {
		return n.Renamed
	}
	return n.Original
}

// SolverData maps solver UIDs to internal node identifiers and stores
// the per-node nogood and info side channels.
//
// Mutated only by the builder while it holds the tree mutex; readers on
// other goroutines take the same mutex.
type SolverData struct {
	uidToNid map[wire.UID]tree.NodeID
	nogoods  map[tree.NodeID]Nogood
	info     map[tree.NodeID]string
}

// NewSolverData creates empty solver data.
func NewSolverData() *SolverData {
	return &SolverData{
		uidToNid: make(map[wire.UID]tree.NodeID),
		nogoods:  make(map[tree.NodeID]Nogood),
		info:     make(map[tree.NodeID]string),
	}
}

// SetNodeID records the translation of a solver UID.
func (sd *SolverData) SetNodeID(uid wire.UID, nid tree.NodeID) {
	sd.uidToNid[uid] = nid
}

// NodeID resolves a solver UID; returns NoNode when unknown.
func (sd *SolverData) NodeID(uid wire.UID) tree.NodeID {
	if nid, ok := sd.uidToNid[uid]; ok {
		return nid
	}
	return tree.NoNode
}

// SetNogood stores the nogood texts for nid.
func (sd *SolverData) SetNogood(nid tree.NodeID, original, renamed string) {
	sd.nogoods[nid] = Nogood{Original: original, Renamed: renamed}
}

// GetNogood returns the nogood of nid (zero value when absent).
func (sd *SolverData) GetNogood(nid tree.NodeID) Nogood {
	return sd.nogoods[nid]
}

// HasNogoods reports whether any node carries a nogood.
func (sd *SolverData) HasNogoods() bool { return len(sd.nogoods) > 0 }

// NogoodNodes returns every node that carries a nogood.
func (sd *SolverData) NogoodNodes() []tree.NodeID {
	out := make([]tree.NodeID, 0, len(sd.nogoods))
	for nid := range sd.nogoods {
		out = append(out, nid)
	}
	return out
}

// SetInfo stores the info JSON blob for nid.
func (sd *SolverData) SetInfo(nid tree.NodeID, info string) {
	sd.info[nid] = info
}

// GetInfo returns the info blob of nid ("" when absent).
func (sd *SolverData) GetInfo(nid tree.NodeID) string {
	return sd.info[nid]
}

// HasInfo reports whether any node carries info.
func (sd *SolverData) HasInfo() bool { return len(sd.info) > 0 }

// InfoNodes returns every node that carries info.
func (sd *SolverData) InfoNodes() []tree.NodeID {
	out := make([]tree.NodeID, 0, len(sd.info))
	for nid := range sd.info {
		out = append(out, nid)
	}
	return out
}
