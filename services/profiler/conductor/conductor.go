// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conductor owns the set of live executions: it reacts to
// START messages by registering executions and builders, wires each
// execution's layout machinery, runs analyses, and fires completion
// hooks used by the headless save-and-exit modes.
package conductor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/treescope/services/profiler/analysis"
	"github.com/AleutianAI/treescope/services/profiler/execution"
	"github.com/AleutianAI/treescope/services/profiler/namemap"
	"github.com/AleutianAI/treescope/services/profiler/receiver"
	"github.com/AleutianAI/treescope/services/profiler/telemetry"
	"github.com/AleutianAI/treescope/services/profiler/tree"
	"github.com/AleutianAI/treescope/services/profiler/tree/layout"
	"github.com/AleutianAI/treescope/services/profiler/wire"
)

// View bundles the per-execution display state: visual flags, the
// layout store and the computer that keeps it fresh. The viewer polls
// Computer.Compute roughly every 100ms.
type View struct {
	Flags    *tree.VisualFlags
	Layout   *layout.Layout
	Computer *layout.Computer
}

// Options tunes conductor behavior; all fields are optional.
type Options struct {
	// PathsFile and ModelFile feed the name map attached to new
	// executions.
	PathsFile string
	ModelFile string

	// AutoHideFailed collapses failed subtrees as they close.
	AutoHideFailed bool
}

// Conductor is the execution registry. It implements receiver.Sink.
//
// Thread Safety: safe for concurrent use.
type Conductor struct {
	logger *slog.Logger
	opts   Options

	mu         sync.Mutex
	executions map[execution.ID]*execution.Execution
	builders   map[execution.ID]*execution.Builder
	views      map[execution.ID]*View

	nameMap *namemap.NameMap

	// doneCh receives every execution whose stream finished.
	doneCh chan *execution.Execution
}

// New creates a conductor. When Options name a paths file, the name
// map is loaded eagerly; a broken map is logged and skipped.
func New(opts Options, logger *slog.Logger) *Conductor {
	c := &Conductor{
		logger:     logger,
		opts:       opts,
		executions: make(map[execution.ID]*execution.Execution),
		builders:   make(map[execution.ID]*execution.Builder),
		views:      make(map[execution.ID]*View),
		doneCh:     make(chan *execution.Execution, 16),
	}

	if opts.PathsFile != "" {
		nm, err := namemap.Load(opts.PathsFile, opts.ModelFile)
		if err != nil {
			logger.Warn("could not load name map", "paths", opts.PathsFile, "error", err)
		} else {
			c.nameMap = nm
			logger.Info("name map loaded", "symbols", nm.Len())
		}
	}

	return c
}

// SetNameMap replaces the name map handed to new executions (used by
// the file watcher on reload).
func (c *Conductor) SetNameMap(nm *namemap.NameMap) {
	c.mu.Lock()
	c.nameMap = nm
	c.mu.Unlock()
}

// Done exposes finished executions; the headless save modes drain it.
func (c *Conductor) Done() <-chan *execution.Execution { return c.doneCh }

// Execution returns a registered execution, or nil.
func (c *Conductor) Execution(id execution.ID) *execution.Execution {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executions[id]
}

// ViewOf returns the display state of an execution, or nil.
func (c *Conductor) ViewOf(id execution.ID) *View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.views[id]
}

// Executions returns all registered executions ordered by ID.
func (c *Conductor) Executions() []*execution.Execution {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*execution.Execution, 0, len(c.executions))
	for _, ex := range c.executions {
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// AddExecution registers an already built execution (loaded from a
// database, or produced by a merge) and wires its view.
func (c *Conductor) AddExecution(ex *execution.Execution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.register(ex)
}

// register stores ex and builds its view. Callers hold c.mu.
func (c *Conductor) register(ex *execution.Execution) {
	c.executions[ex.ID()] = ex

	flags := tree.NewVisualFlags()
	lo := layout.New()
	comp := layout.NewComputer(ex.Tree(), flags, lo)
	comp.Attach()
	c.views[ex.ID()] = &View{Flags: flags, Layout: lo, Computer: comp}

	if c.opts.AutoHideFailed {
		c.attachAutoHide(ex, flags, comp)
	}
}

// attachAutoHide hides solution-free subtrees as soon as they close.
func (c *Conductor) attachAutoHide(ex *execution.Execution, flags *tree.VisualFlags, comp *layout.Computer) {
	t := ex.Tree()
	t.Events().Subscribe(func(ev tree.Event) {
		if t.HasSolvedDescendants(ev.Node) {
			return
		}
		if t.ChildrenCount(ev.Node) == 0 {
			return
		}
		flags.SetHidden(ev.Node, true)
		comp.DirtyUpLater(ev.Node)
	}, tree.SubtreeClosed)
}

// NextExecID draws a fresh random execution id that is not in use.
func (c *Conductor) NextExecID() execution.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextExecIDLocked()
}

func (c *Conductor) nextExecIDLocked() execution.ID {
	for {
		id := execution.ID(uuid.New().ID()%1_000_000 + 1)
		if _, taken := c.executions[id]; !taken {
			return id
		}
	}
}

// OnStart implements receiver.Sink: it finds or registers the
// execution named by a START message and returns the message stream
// feeding its builder. Multiple connections may feed one execution
// (parallel solvers); the builder is created only once.
func (c *Conductor) OnStart(meta receiver.StartMeta) (receiver.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := execution.ID(meta.ExecutionID)
	if !meta.HasExecutionID || id == 0 {
		id = c.nextExecIDLocked()
	}

	ex, ok := c.executions[id]
	if !ok {
		ex = execution.New(meta.Name, id, meta.HasRestarts)
		if c.nameMap != nil {
			ex.SetNameMap(c.nameMap)
		}
		c.register(ex)
		c.builders[id] = execution.NewBuilder(ex, c.logger.With("execution_id", int(id)))
		c.logger.Info("new execution",
			"execution_id", int(id), "name", meta.Name, "has_restarts", meta.HasRestarts)
	}

	return &builderStream{c: c, ex: ex, builder: c.builders[id]}, nil
}

// builderStream adapts one connection's messages onto the execution's
// builder.
type builderStream struct {
	c       *Conductor
	ex      *execution.Execution
	builder *execution.Builder
}

func (s *builderStream) OnNode(msg wire.Message) {
	s.builder.HandleNode(msg)
	telemetry.RecordNodeBuilt(context.Background())
}

func (s *builderStream) OnRestart(msg wire.Message) {
	s.builder.HandleRestart(msg)
}

func (s *builderStream) OnDone() {
	s.builder.Finish()
	s.c.logger.Info("execution done",
		"execution_id", int(s.ex.ID()),
		"nodes", s.ex.Tree().NodeCount(),
		"depth", s.ex.Tree().Depth())
	select {
	case s.c.doneCh <- s.ex:
	default:
		s.c.logger.Warn("done channel full; dropping notification",
			"execution_id", int(s.ex.ID()))
	}
}

// MergeTrees merges two registered executions into a new one, which is
// registered as well. Returns the merged execution and its pentagon
// items. Executions are passed to the merge in ID order so concurrent
// merges lock consistently.
func (c *Conductor) MergeTrees(id1, id2 execution.ID) (*execution.Execution, []analysis.PentagonItem, error) {
	ex1 := c.Execution(id1)
	ex2 := c.Execution(id2)
	if ex1 == nil || ex2 == nil {
		return nil, nil, fmt.Errorf("conductor: unknown execution (%d, %d)", id1, id2)
	}
	if id2 < id1 {
		ex1, ex2 = ex2, ex1
	}

	start := time.Now()
	merged := execution.New(
		fmt.Sprintf("merge of %d and %d", ex1.ID(), ex2.ID()),
		c.NextExecID(), false)

	pentagons, err := analysis.Merge(ex1.Tree(), ex2.Tree(), merged.Tree(), analysis.MergeOptions{})
	if err != nil {
		return nil, nil, err
	}
	telemetry.RecordAnalysis(context.Background(), "merge", time.Since(start))

	c.AddExecution(merged)
	c.logger.Info("merge finished",
		"execution_id", int(merged.ID()), "pentagons", len(pentagons))
	return merged, pentagons, nil
}
