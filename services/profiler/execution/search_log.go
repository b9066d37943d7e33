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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AleutianAI/treescope/services/profiler/tree"
)

// WriteSearchLog writes the execution's tree as a textual search log,
// one line per non-skipped, non-undetermined node in pre-order:
//
//	<node_id> <children_count_logged>[ stop][ <child_id> <child_label>]*
//
// SKIPPED and UNDETERMINED children are omitted and do not count.
// `stop` marks a branch node with zero actual children (an open branch
// the search timed out on).
func WriteSearchLog(ex *Execution, w io.Writer) error {
	t := ex.Tree()
	t.Mutex().Lock()
	defer t.Mutex().Unlock()

	order := tree.PreOrder(t)

	for _, nid := range order {
		status := t.Status(nid)
		if status == tree.Skipped || status == tree.Undetermined {
			continue
		}

		// Children are walked first so the logged count precedes them
		// on the line.
		var children strings.Builder
		kidsLogged := 0
		kids := t.ChildrenCount(nid)
		for alt := 0; alt < kids; alt++ {
			kid, err := t.Child(nid, alt)
			if err != nil {
				return err
			}
			kidStatus := t.Status(kid)
			if kidStatus == tree.Skipped || kidStatus == tree.Undetermined {
				continue
			}
			kidsLogged++
			fmt.Fprintf(&children, " %d %s", kid, t.Label(kid))
		}

		if _, err := fmt.Fprintf(w, "%d %d", nid, kidsLogged); err != nil {
			return err
		}
		if kids == 0 && status == tree.Branch {
			if _, err := io.WriteString(w, " stop"); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, children.String()+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// SaveSearchLog writes the search log to a file, truncating any
// previous content.
func SaveSearchLog(ex *Execution, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create search log: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := WriteSearchLog(ex, bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
