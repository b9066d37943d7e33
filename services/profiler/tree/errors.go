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

import "errors"

// Sentinel errors for tree operations.
var (
	// ErrInvalidTree is returned when an operation would corrupt the
	// tree, such as creating a second root.
	ErrInvalidTree = errors.New("invalid tree")

	// ErrNodeExists is returned when promoting a node that already has
	// children. The offending message should be dropped; the tree is
	// left unchanged.
	ErrNodeExists = errors.New("node already promoted")

	// ErrNoSuchChild is returned when a child lookup references a slot
	// that does not exist.
	ErrNoSuchChild = errors.New("child does not exist at alt")

	// ErrAltOutOfRange is returned when alt is negative or beyond the
	// declared arity of the parent.
	ErrAltOutOfRange = errors.New("alt out of range")

	// ErrUnknownParent is returned by the builder when a NODE message
	// references a parent UID that was never registered.
	ErrUnknownParent = errors.New("unknown parent uid")
)
