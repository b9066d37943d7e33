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

// arityTag selects the interpretation of a node's child payload. The
// original encodes this in the low bits of a tagged pointer; here the
// tag is explicit and the payload is a small union of fixed words plus
// an optional slice for the many-children case.
type arityTag uint8

const (
	tagLeaf arityTag = iota
	tagOne
	tagTwo
	tagMany
)

// node is the fixed-size structural record for one tree node.
//
// Payload interpretation by tag:
//
//	tagLeaf: first/second unused
//	tagOne:  first holds the only child
//	tagTwo:  first and second hold the two children
//	tagMany: more holds all children (len(more) is the arity)
type node struct {
	parent NodeID
	tag    arityTag
	first  NodeID
	second NodeID
	more   []NodeID
}

func (n *node) childrenCount() int {
	switch n.tag {
	case tagLeaf:
		return 0
	case tagOne:
		return 1
	case tagTwo:
		return 2
	default:
		return len(n.more)
	}
}

func (n *node) child(alt int) (NodeID, error) {
	if alt < 0 || alt >= n.childrenCount() {
		return NoNode, ErrNoSuchChild
	}
	switch n.tag {
	case tagOne:
		return n.first, nil
	case tagTwo:
		if alt == 0 {
			return n.first, nil
		}
		return n.second, nil
	default:
		return n.more[alt], nil
	}
}

func (n *node) setChild(id NodeID, alt int) error {
	if alt < 0 || alt >= n.childrenCount() {
		return ErrAltOutOfRange
	}
	switch n.tag {
	case tagOne:
		n.first = id
	case tagTwo:
		if alt == 0 {
			n.first = id
		} else {
			n.second = id
		}
	default:
		n.more[alt] = id
	}
	return nil
}

// setNumberOfChildren reserves k child slots on an open (leaf) node.
// The slot contents are assigned afterwards via setChild.
func (n *node) setNumberOfChildren(k int) error {
	if k == n.childrenCount() {
		return nil
	}
	if n.childrenCount() != 0 {
		return ErrNodeExists
	}
	switch {
	case k == 1:
		n.tag = tagOne
	case k == 2:
		n.tag = tagTwo
	case k > 2:
		n.tag = tagMany
		n.more = make([]NodeID, k)
	}
	return nil
}

// addSlot makes room for one more child, transitioning the arity class
// as required (LEAF -> ONE -> TWO -> MANY -> grown MANY).
func (n *node) addSlot() {
	switch n.tag {
	case tagLeaf:
		n.tag = tagOne
	case tagOne:
		n.tag = tagTwo
	case tagTwo:
		n.more = []NodeID{n.first, n.second, NoNode}
		n.tag = tagMany
	default:
		n.more = append(n.more, NoNode)
	}
}

// structure holds the purely structural view of the tree: parents and
// children over dense NodeIDs. It knows nothing about statuses or
// labels; the Tree façade layers those on top and owns the mutex that
// guards access.
type structure struct {
	nodes []node
}

func newStructure() *structure {
	return &structure{nodes: make([]node, 0, 128)}
}

func (s *structure) nodeCount() int { return len(s.nodes) }

func (s *structure) root() NodeID { return 0 }

func (s *structure) parent(nid NodeID) NodeID {
	return s.nodes[nid].parent
}

func (s *structure) childrenCount(nid NodeID) int {
	return s.nodes[nid].childrenCount()
}

func (s *structure) child(pid NodeID, alt int) (NodeID, error) {
	return s.nodes[pid].child(alt)
}

// alternative returns the position of nid among its siblings, found by
// a linear scan. Siblings are few in practice, so the scan is fine.
func (s *structure) alternative(nid NodeID) (int, error) {
	pid := s.parent(nid)
	if pid == NoNode {
		return -1, nil
	}
	for i := 0; i < s.childrenCount(pid); i++ {
		kid, err := s.child(pid, i)
		if err != nil {
			return -1, err
		}
		if kid == nid {
			return i, nil
		}
	}
	return -1, ErrNoSuchChild
}

// createNode appends a fresh node record and returns its identifier.
func (s *structure) createNode(pid NodeID, kids int) (NodeID, error) {
	nid := NodeID(len(s.nodes))
	n := node{parent: pid, tag: tagLeaf, first: NoNode, second: NoNode}
	if err := n.setNumberOfChildren(kids); err != nil {
		return NoNode, err
	}
	s.nodes = append(s.nodes, n)
	return nid, nil
}

// createChild allocates a node with `kids` slots and registers it as
// the alt-th child of pid.
func (s *structure) createChild(pid NodeID, alt, kids int) (NodeID, error) {
	nid, err := s.createNode(pid, kids)
	if err != nil {
		return NoNode, err
	}
	if err := s.nodes[pid].setChild(nid, alt); err != nil {
		return NoNode, err
	}
	return nid, nil
}

// createRoot creates the root with `kids` pre-allocated children.
// The root's ID is always 0.
func (s *structure) createRoot(kids int) (NodeID, error) {
	if len(s.nodes) > 0 {
		return NoNode, ErrInvalidTree
	}
	rootID, err := s.createNode(NoNode, kids)
	if err != nil {
		return NoNode, err
	}
	for i := 0; i < kids; i++ {
		if _, err := s.createChild(rootID, i, 0); err != nil {
			return NoNode, err
		}
	}
	return rootID, nil
}

// addChildren reserves and allocates `kids` fresh children on an open
// node. Fails with ErrNodeExists if the node already has children.
func (s *structure) addChildren(nid NodeID, kids int) error {
	if s.nodes[nid].childrenCount() > 0 {
		return ErrNodeExists
	}
	if err := s.nodes[nid].setNumberOfChildren(kids); err != nil {
		return err
	}
	for i := 0; i < kids; i++ {
		if _, err := s.createChild(nid, i, 0); err != nil {
			return err
		}
	}
	return nil
}

// addExtraChild appends one more child slot to pid and allocates a node
// for it. Only used on the implicit super-root of restart executions.
func (s *structure) addExtraChild(pid NodeID) (NodeID, error) {
	alt := s.childrenCount(pid)
	s.nodes[pid].addSlot()
	return s.createChild(pid, alt, 0)
}

// ------------------- offline (database) construction -------------------
//
// The offline path differs from live ingest in that children are not
// auto-allocated: every database row explicitly creates one node at a
// pre-determined identifier.

func (s *structure) dbInitialize(size int) {
	s.nodes = make([]node, size)
}

func (s *structure) dbCreateNode(nid, pid NodeID) {
	s.nodes[nid] = node{parent: pid, tag: tagLeaf, first: NoNode, second: NoNode}
}

func (s *structure) dbCreateRoot(nid NodeID) {
	s.dbCreateNode(nid, NoNode)
}

func (s *structure) dbAddChild(nid, pid NodeID, alt int) error {
	s.nodes[pid].addSlot()
	s.dbCreateNode(nid, pid)
	return s.nodes[pid].setChild(nid, alt)
}
