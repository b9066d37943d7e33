// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import (
	"sync"

	"github.com/google/uuid"
)

// EventKind identifies a structure event published by the tree.
type EventKind int

const (
	// StructureUpdated fires after any mutation.
	StructureUpdated EventKind = iota
	// ChildrenStructureChanged fires when a node gains children
	// (promotion with kids > 0, or an extra child on the super-root).
	ChildrenStructureChanged
	// SubtreeClosed fires once, at the transition where the last open
	// descendant of a subtree closes, whether or not the subtree holds
	// a solution.
	SubtreeClosed
)

// Event is one structure notification. Node is NoNode for events that
// concern the whole tree (StructureUpdated).
type Event struct {
	Kind EventKind
	Node NodeID
}

// Handler processes a single event. Handlers run on the publishing
// goroutine while the tree mutex is held: they must enqueue work (mark
// a dirty set, post to a channel) rather than perform it synchronously.
type Handler func(Event)

// Emitter broadcasts structure events to subscribers.
//
// Thread Safety: safe for concurrent use.
type Emitter struct {
	mu   sync.RWMutex
	subs map[string]subscription
}

type subscription struct {
	handler Handler
	kinds   []EventKind
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[string]subscription)}
}

// Subscribe registers a handler for the given event kinds (all kinds if
// none are listed) and returns a subscription ID for Unsubscribe.
func (e *Emitter) Subscribe(h Handler, kinds ...EventKind) string {
	id := uuid.NewString()
	e.mu.Lock()
	e.subs[id] = subscription{handler: h, kinds: kinds}
	e.mu.Unlock()
	return id
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (e *Emitter) Unsubscribe(id string) {
	e.mu.Lock()
	delete(e.subs, id)
	e.mu.Unlock()
}

// Emit delivers ev to every matching subscriber on the caller's
// goroutine, in no particular order.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, sub := range e.subs {
		if len(sub.kinds) == 0 {
			sub.handler(ev)
			continue
		}
		for _, k := range sub.kinds {
			if k == ev.Kind {
				sub.handler(ev)
				break
			}
		}
	}
}
