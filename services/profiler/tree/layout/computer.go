// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package layout

import (
	"math"
	"sync"

	"github.com/AleutianAI/treescope/services/profiler/tree"
)

// Computer recomputes shapes and offsets for the dirty part of the
// tree. Dirty-up requests accumulate between passes; Compute drains
// them, propagates dirtiness along ancestor chains and then walks the
// dirty region bottom-up.
//
// Thread Safety: safe for concurrent use. Compute acquires the tree
// mutex and then the layout mutex.
type Computer struct {
	tree   *tree.Tree
	flags  *tree.VisualFlags
	layout *Layout

	duMu  sync.Mutex
	duSet map[tree.NodeID]struct{}
}

// NewComputer creates a layout computer over the given tree, visual
// flags and layout store.
func NewComputer(t *tree.Tree, vf *tree.VisualFlags, lo *Layout) *Computer {
	return &Computer{
		tree:   t,
		flags:  vf,
		layout: lo,
		duSet:  make(map[tree.NodeID]struct{}),
	}
}

// Attach subscribes the computer to the tree's structure events so that
// growing nodes schedule their own dirty-up. Returns the subscription
// ID.
func (c *Computer) Attach() string {
	return c.tree.Events().Subscribe(func(ev tree.Event) {
		c.DirtyUpLater(ev.Node)
	}, tree.ChildrenStructureChanged)
}

// DirtyUpLater schedules a dirty-up from nid at the start of the next
// Compute pass. Safe to call from event handlers: it only touches the
// request set.
func (c *Computer) DirtyUpLater(nid tree.NodeID) {
	c.duMu.Lock()
	c.duSet[nid] = struct{}{}
	c.duMu.Unlock()
}

// dirtyUp marks nid and its whole ancestor chain dirty. The walk is
// unconditional: freshly grown nodes start out dirty with clean
// ancestors, so stopping at the first dirty node would strand the
// chain. Callers hold both mutexes.
func (c *Computer) dirtyUp(nid tree.NodeID) {
	for nid != tree.NoNode {
		c.layout.SetDirty(nid, true)
		nid = c.tree.Parent(nid)
	}
}

// Compute runs one recompute pass. Returns false when the tree is
// empty, true otherwise. Recomputing an already clean layout is cheap:
// the traversal stops at clean nodes.
func (c *Computer) Compute() bool {
	if c.tree.NodeCount() == 0 {
		return false
	}

	c.tree.Mutex().Lock()
	defer c.tree.Mutex().Unlock()
	c.layout.Mutex().Lock()
	defer c.layout.Mutex().Unlock()

	c.layout.Grow(c.tree.NodeCount())

	c.duMu.Lock()
	for nid := range c.duSet {
		if nid != tree.NoNode {
			c.dirtyUp(nid)
		}
	}
	c.duSet = make(map[tree.NodeID]struct{})
	c.duMu.Unlock()

	c.postOrder(c.tree.Root())
	return true
}

// postOrder visits the dirty region bottom-up. Descent is gated the
// same way the processing is: a clean or hidden node's descendants
// cannot affect its shape.
func (c *Computer) postOrder(root tree.NodeID) {
	type frame struct {
		nid  tree.NodeID
		next int
	}
	stack := []frame{{nid: root}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if c.mayDescend(top.nid) && top.next < c.tree.ChildrenCount(top.nid) {
			kid, err := c.tree.Child(top.nid, top.next)
			top.next++
			if err == nil {
				stack = append(stack, frame{nid: kid})
			}
			continue
		}
		if c.layout.IsDirty(top.nid) {
			c.computeForNode(top.nid)
			c.layout.SetDirty(top.nid, false)
		}
		stack = stack[:len(stack)-1]
	}
}

func (c *Computer) mayDescend(nid tree.NodeID) bool {
	return c.tree.ChildrenCount(nid) > 0 &&
		!c.flags.IsHidden(nid) &&
		c.layout.IsDirty(nid)
}

// computeForNode recomputes the shape, bounding box and child offsets
// of one node whose children are laid out already.
func (c *Computer) computeForNode(nid tree.NodeID) {
	hidden := c.flags.IsHidden(nid)
	labelShown := c.flags.IsLabelShown(nid)

	if hidden {
		if size := c.flags.LanternSize(nid); size > -1 {
			shape := lanternShape(size)
			if labelShown {
				e := c.singleNodeExtents(nid, true)
				shape.Set(0, e)
				shape.SetBoundingBox(BoundingBox{e.L, e.R})
			}
			c.layout.SetShape(nid, shape)
		} else if !labelShown {
			c.layout.SetShape(nid, HiddenShape())
		} else {
			e := c.singleNodeExtents(nid, true)
			shape := NewShape(2)
			shape.Set(0, e)
			shape.Set(1, e)
			shape.SetBoundingBox(BoundingBox{e.L, e.R})
			c.layout.SetShape(nid, shape)
		}
		c.layout.SetDone(nid, true)
		return
	}

	switch kids := c.tree.ChildrenCount(nid); {
	case kids == 0:
		if !labelShown {
			c.layout.SetShape(nid, LeafShape())
		} else {
			e := c.singleNodeExtents(nid, false)
			shape := NewShape(1)
			shape.Set(0, e)
			shape.SetBoundingBox(BoundingBox{e.L, e.R})
			c.layout.SetShape(nid, shape)
		}
	case kids == 1:
		c.computeForSingleKid(nid)
	case kids == 2:
		c.computeForBinary(nid)
	default:
		c.computeForNary(nid, kids)
	}

	c.layout.SetDone(nid, true)
}

func (c *Computer) computeForSingleKid(nid tree.NodeID) {
	kid, err := c.tree.Child(nid, 0)
	if err != nil {
		return
	}
	kidShape := c.layout.Shape(kid)

	shape := NewShape(kidShape.Height() + 1)
	shape.Set(0, c.singleNodeExtents(nid, false))
	for depth := 0; depth < kidShape.Height(); depth++ {
		shape.Set(depth+1, kidShape.At(depth))
	}
	shape.SetBoundingBox(kidShape.BoundingBox())

	c.layout.SetChildOffset(kid, 0)
	c.layout.SetShape(nid, shape)
}

func (c *Computer) computeForBinary(nid tree.NodeID) {
	kidL, errL := c.tree.Child(nid, 0)
	kidR, errR := c.tree.Child(nid, 1)
	if errL != nil || errR != nil {
		return
	}

	s1 := c.layout.Shape(kidL)
	s2 := c.layout.Shape(kidR)

	combined, offL, offR := combineShapes(s1, s2)

	root := c.singleNodeExtents(nid, false)
	combined.Set(0, root)

	// The root row may stick out of the combined children boxes.
	bb := combined.BoundingBox()
	if bb.Left > root.L || bb.Right < root.R {
		combined.SetBoundingBox(BoundingBox{
			Left:  min(bb.Left, root.L),
			Right: max(bb.Right, root.R),
		})
	}

	c.layout.SetShape(nid, combined)
	c.layout.SetChildOffset(kidL, offL)
	c.layout.SetChildOffset(kidR, offR)
}

func (c *Computer) computeForNary(nid tree.NodeID, kids int) {
	distances := make([]int, kids-1)
	maxDist := 0
	for i := 0; i < kids-1; i++ {
		kl, _ := c.tree.Child(nid, i)
		kr, _ := c.tree.Child(nid, i+1)
		distances[i] = distanceBetween(c.layout.Shape(kl), c.layout.Shape(kr))
		maxDist += distances[i]
	}

	newDepth := 1
	for i := 0; i < kids; i++ {
		kid, _ := c.tree.Child(nid, i)
		if h := c.layout.Shape(kid).Height() + 1; h > newDepth {
			newDepth = h
		}
	}

	combined := NewShape(newDepth)

	offsets := make([]int, kids)
	curX := -maxDist / 2
	for i := 0; i < kids; i++ {
		kid, _ := c.tree.Child(nid, i)
		c.layout.SetChildOffset(kid, curX)
		offsets[i] = curX
		if i < kids-1 {
			curX += distances[i]
		}
	}

	combined.Set(0, Extent{-HalfMaxNodeW, HalfMaxNodeW})
	for depth := 1; depth < newDepth; depth++ {
		leftmost := math.MaxInt
		rightmost := math.MinInt
		for alt := 0; alt < kids; alt++ {
			kid, _ := c.tree.Child(nid, alt)
			shape := c.layout.Shape(kid)
			if shape.Height() > depth-1 {
				leftmost = min(leftmost, shape.At(depth-1).L+offsets[alt])
				// Matches the historical layout: the right edge is
				// seeded from leftmost, not from the previous right.
				rightmost = max(leftmost, shape.At(depth-1).R+offsets[alt])
			}
		}
		combined.Set(depth, Extent{leftmost, rightmost})
	}

	lBound := math.MaxInt
	rBound := math.MinInt
	for depth := 0; depth < newDepth; depth++ {
		lBound = min(lBound, combined.At(depth).L)
		rBound = max(rBound, combined.At(depth).R)
	}
	combined.SetBoundingBox(BoundingBox{lBound, rBound})

	c.layout.SetShape(nid, combined)
}

// singleNodeExtents returns the extents the node itself occupies on its
// own row, including a shown label on the appropriate side: labels draw
// on the left for every child but the right-most one.
func (c *Computer) singleNodeExtents(nid tree.NodeID, hidden bool) Extent {
	e := Extent{-HalfMaxNodeW, HalfMaxNodeW}
	if hidden {
		e = Extent{-HalfCollapsedWidth, HalfCollapsedWidth}
	}
	if !c.flags.IsLabelShown(nid) {
		return e
	}

	labelWidth := len(c.tree.Label(nid)) * LabelCharW

	if c.isRightMostChild(nid) {
		e.R += labelWidth
	} else {
		e.L -= labelWidth
	}
	return e
}

func (c *Computer) isRightMostChild(nid tree.NodeID) bool {
	pid := c.tree.Parent(nid)
	if pid == tree.NoNode {
		return true
	}
	alt, err := c.tree.Alternative(nid)
	if err != nil {
		return true
	}
	return alt == c.tree.ChildrenCount(pid)-1
}

// distanceBetween computes how far apart two sibling roots must sit
// along x so that their outlines keep a MinDistX margin at every shared
// depth level.
func distanceBetween(s1, s2 *Shape) int {
	commonDepth := min(s1.Height(), s2.Height())
	maxDist := math.MinInt
	for i := 0; i < commonDepth; i++ {
		if d := s1.At(i).R - s2.At(i).L; d > maxDist {
			maxDist = d
		}
	}
	return maxDist + MinDistX
}

// combineShapes merges two sibling shapes under a fresh parent row,
// returning the combined shape and the two child offsets.
func combineShapes(s1, s2 *Shape) (*Shape, int, int) {
	depthLeft := s1.Height()
	depthRight := s2.Height()
	maxDepth := max(depthLeft, depthRight)
	commonDepth := min(depthLeft, depthRight)

	distance := distanceBetween(s1, s2)
	halfDist := distance / 2

	combined := NewShape(maxDepth + 1)
	combined.SetBoundingBox(BoundingBox{
		Left:  min(s1.BoundingBox().Left-halfDist, s2.BoundingBox().Left+halfDist),
		Right: max(s1.BoundingBox().Right-halfDist, s2.BoundingBox().Right+halfDist),
	})

	for depth := 0; depth < commonDepth; depth++ {
		combined.Set(depth+1, Extent{s1.At(depth).L - halfDist, s2.At(depth).R + halfDist})
	}

	if maxDepth != commonDepth {
		longer, offset := s1, -halfDist
		if depthRight > depthLeft {
			longer, offset = s2, halfDist
		}
		for depth := commonDepth; depth < maxDepth; depth++ {
			combined.Set(depth+1, Extent{longer.At(depth).L + offset, longer.At(depth).R + offset})
		}
	}

	return combined, -halfDist, halfDist
}

// lanternShape builds the rectangular shape of a collapsed subtree
// whose height encodes size (0..LanternPrecision).
func lanternShape(size int) *Shape {
	levels := int(math.Ceil((float64(size)*LanternK+LanternBaseHeight)/DistY)) + 1
	shape := NewShape(levels)
	for i := 0; i < levels; i++ {
		shape.Set(i, Extent{-LanternHalfWidth, LanternHalfWidth})
	}
	shape.SetBoundingBox(BoundingBox{-LanternHalfWidth, LanternHalfWidth})
	return shape
}
