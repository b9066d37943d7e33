// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package execution

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/treescope/services/profiler/tree"
)

func TestWriteSearchLog_Format(t *testing.T) {
	// root(0) -> [branch(1) -> [failed(3), solved(4)], skipped(2)]
	ex := New("t", 1, false)
	tr := ex.Tree()
	root, _ := tr.CreateRoot(2, tree.Branch, "")
	mid, err := tr.PromoteAt(root, 0, 2, tree.Branch, "x=1")
	require.NoError(t, err)
	_, err = tr.PromoteAt(mid, 0, 0, tree.Failed, "y=1")
	require.NoError(t, err)
	_, err = tr.PromoteAt(mid, 1, 0, tree.Solved, "y!=1")
	require.NoError(t, err)
	_, err = tr.PromoteAt(root, 1, 0, tree.Skipped, "x!=1")
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, WriteSearchLog(ex, &sb))

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	require.Len(t, lines, 4)

	// The skipped child of the root is omitted and not counted.
	assert.Equal(t, "0 1 1 x=1", lines[0])
	assert.Equal(t, "1 2 3 y=1 4 y!=1", lines[1])
	assert.Equal(t, "3 0", lines[2])
	assert.Equal(t, "4 0", lines[3])
}

func TestWriteSearchLog_StopMarksOpenBranch(t *testing.T) {
	// A BRANCH leaf (declared kids never arrived): timed-out search.
	ex := New("t", 1, false)
	tr := ex.Tree()
	_, err := tr.CreateRoot(0, tree.Branch, "")
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, WriteSearchLog(ex, &sb))
	assert.Equal(t, "0 0 stop\n", sb.String())
}

func TestWriteSearchLog_UndeterminedOmitted(t *testing.T) {
	ex := New("t", 1, false)
	tr := ex.Tree()
	root, _ := tr.CreateRoot(2, tree.Branch, "")
	_, err := tr.PromoteAt(root, 0, 0, tree.Failed, "a")
	require.NoError(t, err)
	// alt 1 stays undetermined.

	var sb strings.Builder
	require.NoError(t, WriteSearchLog(ex, &sb))

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "0 1 1 a", lines[0])
	assert.Equal(t, "1 0", lines[1])
}
