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
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/treescope/services/profiler/tree"
	"github.com/AleutianAI/treescope/services/profiler/wire"
)

// Builder translates the solver's message stream into tree mutations
// for one execution. Messages are applied strictly in arrival order;
// if the solver emits a parent before its children, the same holds in
// the tree.
//
// All connections of one execution feed the same builder, so it may be
// driven from several goroutines; it acquires the tree mutex around every
// mutation, the end-of-stream flag included.
type Builder struct {
	ex     *Execution
	logger *slog.Logger

	// Position of the next restart under the implicit super-root.
	restartCount int

	done bool
}

// NewBuilder creates a builder for ex.
func NewBuilder(ex *Execution, logger *slog.Logger) *Builder {
	return &Builder{ex: ex, logger: logger}
}

// RestartCount returns how many restart roots have been attached.
func (b *Builder) RestartCount() int { return b.restartCount }

// Done reports whether the builder has seen end-of-stream.
func (b *Builder) Done() bool { return b.done }

// HandleNode applies one NODE message. Tree inconsistencies (unknown
// parent, duplicate promotion, alt out of range) are logged and the
// message is dropped; the tree is left intact. Messages arriving after
// Finish are out-of-stream and dropped as well.
func (b *Builder) HandleNode(msg wire.Message) {
	t := b.ex.Tree()
	sd := b.ex.SolverData()

	label := ""
	if msg.HaveLabel {
		label = msg.Label
	}
	status := tree.Status(msg.Status)

	t.Mutex().Lock()
	defer t.Mutex().Unlock()

	if b.done {
		b.logger.Warn("node message after DONE dropped", "uid", msg.Node)
		return
	}

	pid := tree.NoNode
	if msg.Parent.Nid != -1 {
		pid = sd.NodeID(msg.Parent)
		if pid == tree.NoNode {
			b.logger.Error("dropping node with unknown parent",
				"uid", msg.Node, "parent", msg.Parent, "error", tree.ErrUnknownParent)
			return
		}
	}

	var nid tree.NodeID
	var err error

	if pid == tree.NoNode {
		if b.ex.DoesRestarts() {
			nid, err = b.attachRestartRoot(msg, status, label)
		} else if t.NodeCount() == 0 {
			nid, err = t.CreateRoot(int(msg.Kids), status, label)
		} else {
			err = fmt.Errorf("%w: second root message", tree.ErrInvalidTree)
		}
	} else {
		nid, err = t.PromoteAt(pid, int(msg.Alt), int(msg.Kids), status, label)
	}

	if err != nil {
		b.logger.Error("dropping inconsistent node message",
			"uid", msg.Node, "parent", msg.Parent, "alt", msg.Alt, "error", err)
		return
	}

	sd.SetNodeID(msg.Node, nid)

	if msg.HaveNogood {
		renamed := ""
		if nm := b.ex.NameMap(); nm != nil {
			renamed = nm.ReplaceNames(msg.Nogood)
		}
		sd.SetNogood(nid, msg.Nogood, renamed)
	}

	if msg.HaveInfo && msg.Info != "" {
		sd.SetInfo(nid, msg.Info)
	}
}

// attachRestartRoot grows the implicit super-root by one child and
// promotes it from the message. The super-root itself is created on the
// first restart.
func (b *Builder) attachRestartRoot(msg wire.Message, status tree.Status, label string) (tree.NodeID, error) {
	t := b.ex.Tree()
	if t.NodeCount() == 0 {
		if _, err := t.CreateRoot(0, tree.Branch, ""); err != nil {
			return tree.NoNode, err
		}
	}
	if _, err := t.AddExtraChild(t.Root()); err != nil {
		return tree.NoNode, err
	}
	alt := b.restartCount
	b.restartCount++
	return t.PromoteAt(t.Root(), alt, int(msg.Kids), status, label)
}

// HandleRestart processes a RESTART message; the restart id is purely
// informational.
func (b *Builder) HandleRestart(msg wire.Message) {
	if !msg.HaveInfo {
		return
	}
	var info struct {
		RestartID int `json:"restart_id"`
	}
	if err := json.Unmarshal([]byte(msg.Info), &info); err != nil {
		b.logger.Warn("unparsable restart info", "error", err)
		return
	}
	b.logger.Info("solver restart", "execution", b.ex.ID(), "restart_id", info.RestartID)
}

// Finish marks the execution's tree as fully built. Further NODE
// messages on the same stream are dropped.
func (b *Builder) Finish() {
	t := b.ex.Tree()
	t.Mutex().Lock()
	defer t.Mutex().Unlock()
	b.done = true
	t.SetDone()
}

