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
	"github.com/AleutianAI/treescope/services/profiler/namemap"
	"github.com/AleutianAI/treescope/services/profiler/tree"
)

// ID identifies one execution within the registry.
type ID int

// Execution bundles everything belonging to one solver run.
type Execution struct {
	id   ID
	name string

	tree       *tree.Tree
	solverData *SolverData
	userData   *UserData
	nameMap    *namemap.NameMap

	// Whether the run restarts; restart runs grow an implicit
	// super-root with one child per restart.
	restarts bool
}

// New creates an empty execution.
func New(name string, id ID, restarts bool) *Execution {
	return &Execution{
		id:         id,
		name:       name,
		tree:       tree.New(),
		solverData: NewSolverData(),
		userData:   NewUserData(),
		restarts:   restarts,
	}
}

// ID returns the execution's identifier.
func (e *Execution) ID() ID { return e.id }

// Name returns the execution's display name.
func (e *Execution) Name() string { return e.name }

// Tree returns the execution's search tree.
func (e *Execution) Tree() *tree.Tree { return e.tree }

// SolverData returns the UID mapping and nogood/info side data.
func (e *Execution) SolverData() *SolverData { return e.solverData }

// UserData returns the selection and bookmarks.
func (e *Execution) UserData() *UserData { return e.userData }

// NameMap returns the attached name map, possibly nil.
func (e *Execution) NameMap() *namemap.NameMap { return e.nameMap }

// SetNameMap attaches a name map to the execution and its tree.
func (e *Execution) SetNameMap(nm *namemap.NameMap) {
	e.nameMap = nm
	if nm != nil {
		e.tree.SetNameMap(nm)
	}
}

// DoesRestarts reports whether the execution uses restarts.
func (e *Execution) DoesRestarts() bool { return e.restarts }

// HasNogoods reports whether any node carries a nogood.
func (e *Execution) HasNogoods() bool { return e.solverData.HasNogoods() }
