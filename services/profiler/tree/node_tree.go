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

import "sync"

// NameResolver rewrites solver identifiers in a label or nogood to
// their user-facing names. Implemented by namemap.NameMap.
type NameResolver interface {
	ReplaceNames(text string) string
}

// Tree is the façade over the node store: it owns the structure, the
// per-node statuses and labels, the running statistics and the event
// stream that drives layout updates.
//
// # Locking
//
// Tree methods are not internally synchronized with respect to the
// structure. The builder, the layout engine, the merge engine and the
// persistence layer each acquire Mutex() around their work, exactly one
// of them mutating at a time. Status reads go through an internal lock
// and are safe without the tree mutex; Stats uses atomics.
//
// When the tree mutex and the layout mutex are both needed, the tree
// mutex is acquired first.
type Tree struct {
	mu sync.Mutex

	structure *structure
	info      *nodeInfo
	labels    []string
	stats     Stats
	emitter   *Emitter

	// Optional identifier renaming applied by Label.
	nameMap NameResolver

	done bool
}

// New creates an empty tree.
func New() *Tree {
	return &Tree{
		structure: newStructure(),
		info:      newNodeInfo(),
		emitter:   NewEmitter(),
	}
}

// Mutex returns the mutex guarding structural state. See the Tree
// documentation for the locking protocol.
func (t *Tree) Mutex() *sync.Mutex { return &t.mu }

// Events returns the tree's structure event emitter. Events are
// delivered on the mutating goroutine; handlers must enqueue work.
func (t *Tree) Events() *Emitter { return t.emitter }

// Stats returns the running node statistics.
func (t *Tree) Stats() *Stats { return &t.stats }

// SetNameMap attaches an identifier resolver used by Label.
func (t *Tree) SetNameMap(nm NameResolver) { t.nameMap = nm }

// SetDone marks the tree as fully built.
func (t *Tree) SetDone() { t.done = true }

// IsDone reports whether the tree is fully built.
func (t *Tree) IsDone() bool { return t.done }

// addEntry registers nid with every per-node table.
func (t *Tree) addEntry(nid NodeID) {
	t.info.addEntry(nid)
	t.labels = append(t.labels, "")
}

// ----------------------------- queries -----------------------------

// Root returns the root's identifier (always 0 once the tree exists).
func (t *Tree) Root() NodeID { return t.structure.root() }

// NodeCount returns the total number of nodes, undetermined included.
func (t *Tree) NodeCount() int { return t.structure.nodeCount() }

// Parent returns the parent of nid (NoNode for the root).
func (t *Tree) Parent(nid NodeID) NodeID { return t.structure.parent(nid) }

// ChildrenCount returns the number of children of nid.
func (t *Tree) ChildrenCount(nid NodeID) int { return t.structure.childrenCount(nid) }

// Child returns the child of pid at position alt.
func (t *Tree) Child(pid NodeID, alt int) (NodeID, error) {
	return t.structure.child(pid, alt)
}

// Alternative returns the position of nid among its siblings
// (-1 for the root).
func (t *Tree) Alternative(nid NodeID) (int, error) {
	return t.structure.alternative(nid)
}

// NumberOfSiblings returns the sibling count of nid, itself included.
func (t *Tree) NumberOfSiblings(nid NodeID) int {
	return t.structure.childrenCount(t.structure.parent(nid))
}

// Status returns the status of nid.
func (t *Tree) Status(nid NodeID) Status { return t.info.status(nid) }

// RawLabel returns the stored label of nid without renaming.
func (t *Tree) RawLabel(nid NodeID) string { return t.labels[nid] }

// Label returns the label of nid, renamed through the name map when one
// is attached.
func (t *Tree) Label(nid NodeID) string {
	label := t.labels[nid]
	if t.nameMap != nil && label != "" {
		return t.nameMap.ReplaceNames(label)
	}
	return label
}

// SetLabel overwrites the label of nid.
func (t *Tree) SetLabel(nid NodeID, label string) { t.labels[nid] = label }

// Depth returns the maximum observed depth.
func (t *Tree) Depth() int { return t.stats.MaxDepth() }

// HasSolvedDescendants reports whether nid or any descendant is solved.
func (t *Tree) HasSolvedDescendants(nid NodeID) bool {
	return t.info.hasSolvedDescendants(nid)
}

// HasOpenDescendants reports whether any descendant of nid is still
// open (undetermined, or a branch with open descendants).
func (t *Tree) HasOpenDescendants(nid NodeID) bool {
	return t.info.hasOpenDescendants(nid)
}

// IsOpen reports whether nid itself is open or has open descendants.
func (t *Tree) IsOpen(nid NodeID) bool {
	return t.Status(nid) == Undetermined || t.HasOpenDescendants(nid)
}

// ---------------------------- mutations ----------------------------

// CreateRoot creates the root with kids pre-allocated undetermined
// children and the given status and label. Only valid on an empty tree.
func (t *Tree) CreateRoot(kids int, status Status, label string) (NodeID, error) {
	nid, err := t.structure.createRoot(kids)
	if err != nil {
		return NoNode, err
	}
	t.addEntry(nid)
	t.labels[nid] = label
	t.info.setStatus(nid, status)

	depth := 1
	if kids > 0 {
		depth = 2
	}
	t.stats.InformDepth(depth)
	t.stats.AddNode(status)

	for i := 0; i < kids; i++ {
		child, err := t.structure.child(nid, i)
		if err != nil {
			return NoNode, err
		}
		t.addEntry(child)
	}
	t.stats.AddUndetermined(kids)

	if status == Solved {
		t.notifyAncestors(nid)
	}
	if status.IsClosing() && kids == 0 {
		t.closeNode(nid)
	}

	t.emitter.Emit(Event{Kind: StructureUpdated, Node: NoNode})
	return nid, nil
}

// PromoteAt turns the undetermined child of parent at position alt into
// a node of the given status, allocating kids fresh undetermined
// children when kids > 0. A parent of NoNode addresses the root itself,
// which makes it possible to promote an undetermined root (used when
// building merged trees).
//
// Returns ErrNodeExists, leaving the tree unchanged, if the target
// already has children.
func (t *Tree) PromoteAt(parent NodeID, alt, kids int, status Status, label string) (NodeID, error) {
	var nid NodeID
	if parent == NoNode {
		nid = t.structure.root()
	} else {
		var err error
		nid, err = t.structure.child(parent, alt)
		if err != nil {
			return NoNode, err
		}
	}

	if t.structure.childrenCount(nid) != 0 {
		return NoNode, ErrNodeExists
	}

	t.info.setStatus(nid, status)
	t.labels[nid] = label

	if kids > 0 {
		if err := t.structure.addChildren(nid, kids); err != nil {
			return NoNode, err
		}
		t.emitter.Emit(Event{Kind: ChildrenStructureChanged, Node: nid})

		for i := 0; i < kids; i++ {
			child, err := t.structure.child(nid, i)
			if err != nil {
				return NoNode, err
			}
			t.addEntry(child)
		}
		t.stats.AddUndetermined(kids)
		t.stats.InformDepth(t.calculateDepth(nid) + 1)
	}

	t.stats.SubtractUndetermined(1)
	t.stats.AddNode(status)

	if status == Solved {
		t.notifyAncestors(nid)
	}
	if status.IsClosing() {
		t.closeNode(nid)
	}

	t.emitter.Emit(Event{Kind: StructureUpdated, Node: NoNode})
	return nid, nil
}

// PromoteNode is PromoteAt addressed by the node itself rather than by
// its parent and position.
func (t *Tree) PromoteNode(nid NodeID, kids int, status Status, label string) (NodeID, error) {
	pid := t.structure.parent(nid)
	alt, err := t.structure.alternative(nid)
	if err != nil {
		return NoNode, err
	}
	return t.PromoteAt(pid, alt, kids, status, label)
}

// AddExtraChild appends one more undetermined child slot to pid. Used
// on the implicit super-root of restart executions.
func (t *Tree) AddExtraChild(pid NodeID) (NodeID, error) {
	nid, err := t.structure.addExtraChild(pid)
	if err != nil {
		return NoNode, err
	}
	t.addEntry(nid)
	t.stats.AddUndetermined(1)

	// The new slot is open, which reopens pid and any closed ancestors.
	for a := pid; a != NoNode && !t.info.hasOpenDescendants(a); a = t.structure.parent(a) {
		t.info.setHasOpenDescendants(a, true)
	}

	t.emitter.Emit(Event{Kind: ChildrenStructureChanged, Node: pid})
	t.emitter.Emit(Event{Kind: StructureUpdated, Node: NoNode})
	return nid, nil
}

// ----------------------- ancestor propagation -----------------------

// notifyAncestors walks upward from nid setting the solved flag until
// it hits a node that already has it.
func (t *Tree) notifyAncestors(nid NodeID) {
	for nid != NoNode {
		if t.info.hasSolvedDescendants(nid) {
			return
		}
		t.info.setHasSolvedDescendants(nid, true)
		nid = t.structure.parent(nid)
	}
}

// closeNode marks nid as having no open descendants and checks whether
// its parent now closes as well.
func (t *Tree) closeNode(nid NodeID) {
	t.info.setHasOpenDescendants(nid, false)
	pid := t.structure.parent(nid)
	if pid != NoNode {
		t.onChildClosed(pid)
	}
}

// onChildClosed re-evaluates nid after one of its children closed. If
// every child is closed the node itself closes, a SubtreeClosed event
// fires (once, at the transition), and the check propagates upward.
func (t *Tree) onChildClosed(nid NodeID) {
	for i := t.structure.childrenCount(nid) - 1; i >= 0; i-- {
		kid, err := t.structure.child(nid, i)
		if err != nil || t.IsOpen(kid) {
			return
		}
	}
	t.emitter.Emit(Event{Kind: SubtreeClosed, Node: nid})
	t.closeNode(nid)
}

// calculateDepth returns the number of nodes on the path from the root
// to nid, both included.
func (t *Tree) calculateDepth(nid NodeID) int {
	depth := 0
	for nid != NoNode {
		depth++
		nid = t.structure.parent(nid)
	}
	return depth
}

// ------------------- offline (database) construction -------------------

// DBInitialize pre-allocates the node store for size nodes.
func (t *Tree) DBInitialize(size int) {
	t.structure.dbInitialize(size)
}

// DBCreateRoot materializes the root row of a stored execution. Unlike
// CreateRoot it does not allocate children; every stored row creates
// exactly one node.
func (t *Tree) DBCreateRoot(nid NodeID, status Status, label string) {
	t.structure.dbCreateRoot(nid)
	t.addEntry(nid)
	t.labels[nid] = label
	t.stats.InformDepth(1)
	t.stats.AddNode(status)
	t.info.setStatus(nid, status)
}

// DBAddChild materializes a non-root row of a stored execution.
func (t *Tree) DBAddChild(nid, pid NodeID, alt int, status Status, label string) error {
	if err := t.structure.dbAddChild(nid, pid, alt); err != nil {
		return err
	}
	t.addEntry(nid)
	t.info.setStatus(nid, status)
	t.labels[nid] = label

	t.emitter.Emit(Event{Kind: ChildrenStructureChanged, Node: pid})

	t.stats.InformDepth(t.calculateDepth(nid))
	t.stats.AddNode(status)

	if status.IsClosing() {
		t.closeNode(nid)
	}
	if status == Solved {
		t.notifyAncestors(nid)
	}

	t.emitter.Emit(Event{Kind: StructureUpdated, Node: NoNode})
	return nil
}
