// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package namemap

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a name map whenever its backing files change on
// disk, so that a profiler left running picks up a re-exported model
// without a restart.
//
// Thread Safety: Current is safe to call from any goroutine.
type Watcher struct {
	pathsFile string
	modelFile string
	logger    *slog.Logger

	mu      sync.RWMutex
	current *NameMap

	fw *fsnotify.Watcher

	// onReload, when set, is invoked with every successfully reloaded
	// map. The CLI passes Conductor.SetNameMap, which hands the map to
	// executions registered afterwards; existing executions keep theirs.
	onReload func(*NameMap)
}

// NewWatcher loads the initial map and starts watching both files.
// The underlying file watcher is closed when Run returns, i.e. when the
// context passed to Run is cancelled.
func NewWatcher(pathsFile, modelFile string, logger *slog.Logger, onReload func(*NameMap)) (*Watcher, error) {
	nm, err := Load(pathsFile, modelFile)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(pathsFile); err != nil {
		fw.Close()
		return nil, err
	}
	if modelFile != "" {
		// Best effort: the model file is optional.
		_ = fw.Add(modelFile)
	}

	return &Watcher{
		pathsFile: pathsFile,
		modelFile: modelFile,
		logger:    logger,
		current:   nm,
		fw:        fw,
		onReload:  onReload,
	}, nil
}

// Current returns the most recently loaded map.
func (w *Watcher) Current() *NameMap {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run processes file events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("name map watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	nm, err := Load(w.pathsFile, w.modelFile)
	if err != nil {
		w.logger.Warn("name map reload failed; keeping previous map",
			"paths", w.pathsFile, "error", err)
		return
	}

	w.mu.Lock()
	w.current = nm
	w.mu.Unlock()

	w.logger.Info("name map reloaded", "paths", w.pathsFile, "symbols", nm.Len())
	if w.onReload != nil {
		w.onReload(nm)
	}
}
