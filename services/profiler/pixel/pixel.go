// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pixel builds the compressed pixel-tree overview of an
// execution: the pre-order traversal is cut into vertical slices of
// `compression` nodes each, and every slice aggregates the depth range
// and status mix of its nodes.
package pixel

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/AleutianAI/treescope/services/profiler/tree"
)

// DefaultCompression is the default number of nodes per slice.
const DefaultCompression = 2

// pixelSize is the square edge, in image pixels, of one slice cell.
const pixelSize = 4

// Slice aggregates one group of consecutive pre-order nodes.
type Slice struct {
	// DepthMin and DepthMax bound the depths of the slice's nodes
	// (1-based, root is depth 1).
	DepthMin int
	DepthMax int
	// Count is the number of nodes in the slice.
	Count int
	// HasSolved reports whether the slice contains a solution node.
	HasSolved bool
}

// BuildSlices cuts the tree's pre-order into slices of compression
// nodes. The caller holds the tree mutex when the tree is live.
func BuildSlices(t *tree.Tree, compression int) []Slice {
	if compression < 1 {
		compression = 1
	}

	order := tree.PreOrder(t)
	if len(order) == 0 {
		return nil
	}

	depths := make([]int, t.NodeCount())
	for _, nid := range order {
		if pid := t.Parent(nid); pid == tree.NoNode {
			depths[nid] = 1
		} else {
			depths[nid] = depths[pid] + 1
		}
	}

	slices := make([]Slice, 0, (len(order)+compression-1)/compression)
	for start := 0; start < len(order); start += compression {
		end := min(start+compression, len(order))
		s := Slice{DepthMin: depths[order[start]], DepthMax: depths[order[start]]}
		for _, nid := range order[start:end] {
			d := depths[nid]
			s.DepthMin = min(s.DepthMin, d)
			s.DepthMax = max(s.DepthMax, d)
			s.Count++
			if t.Status(nid) == tree.Solved {
				s.HasSolved = true
			}
		}
		slices = append(slices, s)
	}
	return slices
}

// SavePNG renders the slices of t to a PNG file at path.
func SavePNG(t *tree.Tree, path string, compression int) error {
	t.Mutex().Lock()
	slices := BuildSlices(t, compression)
	maxDepth := t.Depth()
	t.Mutex().Unlock()

	if len(slices) == 0 {
		return fmt.Errorf("pixel: tree is empty")
	}

	width := len(slices) * pixelSize
	height := maxDepth * pixelSize
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	bg := color.RGBA{255, 255, 255, 255}
	fg := color.RGBA{64, 64, 64, 255}
	solved := color.RGBA{0, 160, 0, 255}

	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, bg)
		}
	}

	for i, s := range slices {
		c := fg
		if s.HasSolved {
			c = solved
		}
		for d := s.DepthMin; d <= s.DepthMax; d++ {
			for dx := 0; dx < pixelSize; dx++ {
				for dy := 0; dy < pixelSize; dy++ {
					img.Set(i*pixelSize+dx, (d-1)*pixelSize+dy, c)
				}
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create pixel tree file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode pixel tree: %w", err)
	}
	return f.Close()
}
