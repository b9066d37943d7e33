// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package db saves and restores executions as SQLite databases with a
// four-table relational schema: Nodes, Bookmarks, Nogoods and Info.
package db

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/AleutianAI/treescope/services/profiler/execution"
	"github.com/AleutianAI/treescope/services/profiler/telemetry"
	"github.com/AleutianAI/treescope/services/profiler/tree"
)

// transactionSize is how many node rows are written per transaction.
const transactionSize = 50000

// ErrCorruptDatabase is returned when a stored execution cannot be
// rebuilt from its rows.
var ErrCorruptDatabase = errors.New("db: corrupt execution database")

const schema = `
CREATE TABLE Nodes(
  NodeID INTEGER PRIMARY KEY,
  ParentID int NOT NULL,
  Alternative int NOT NULL,
  NKids int NOT NULL,
  Status int,
  Label varchar(256)
);
CREATE TABLE Bookmarks(
  NodeID INTEGER PRIMARY KEY,
  Bookmark varchar(8)
);
CREATE TABLE Nogoods(
  NodeID INTEGER PRIMARY KEY,
  Nogood varchar(8)
);
CREATE TABLE Info(
  NodeID INTEGER PRIMARY KEY,
  Info TEXT
);`

// nodeRow mirrors one row of the Nodes table.
type nodeRow struct {
	NodeID      int64  `db:"NodeID"`
	ParentID    int64  `db:"ParentID"`
	Alternative int64  `db:"Alternative"`
	NKids       int64  `db:"NKids"`
	Status      int64  `db:"Status"`
	Label       string `db:"Label"`
}

// textRow mirrors one row of the Bookmarks/Nogoods/Info tables.
type textRow struct {
	NodeID int64  `db:"NodeID"`
	Text   string `db:"Text"`
}

// Save writes ex to a database file at path. Any pre-existing file is
// deleted first: a partial file is never considered valid.
func Save(ctx context.Context, ex *execution.Execution, path string) error {
	ctx, span := telemetry.StartSpan(ctx, "db.save")
	defer span.End()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale database: %w", err)
	}

	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	t := ex.Tree()
	t.Mutex().Lock()
	defer t.Mutex().Unlock()

	if err := saveNodes(ctx, conn, ex); err != nil {
		return err
	}
	if err := saveBookmarks(ctx, conn, ex); err != nil {
		return err
	}
	if ex.SolverData().HasNogoods() {
		if err := saveNogoods(ctx, conn, ex); err != nil {
			return err
		}
	}
	if ex.SolverData().HasInfo() {
		if err := saveInfo(ctx, conn, ex); err != nil {
			return err
		}
	}
	return nil
}

// saveNodes writes the Nodes table in pre-order, batching rows into
// transactions so that multi-million node trees save quickly.
func saveNodes(ctx context.Context, conn *sqlx.DB, ex *execution.Execution) error {
	t := ex.Tree()
	order := tree.PreOrder(t)

	const insert = `INSERT INTO Nodes
	  (NodeID, ParentID, Alternative, NKids, Status, Label)
	  VALUES (?, ?, ?, ?, ?, ?)`

	for start := 0; start < len(order); start += transactionSize {
		end := min(start+transactionSize, len(order))

		tx, err := conn.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin nodes transaction: %w", err)
		}
		stmt, err := tx.PreparexContext(ctx, insert)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("prepare nodes insert: %w", err)
		}

		for _, nid := range order[start:end] {
			alt, err := t.Alternative(nid)
			if err != nil {
				stmt.Close()
				tx.Rollback()
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				int64(nid), int64(t.Parent(nid)), int64(alt),
				int64(t.ChildrenCount(nid)), int64(t.Status(nid)), t.RawLabel(nid),
			); err != nil {
				stmt.Close()
				tx.Rollback()
				return fmt.Errorf("insert node %d: %w", nid, err)
			}
		}

		stmt.Close()
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit nodes transaction: %w", err)
		}
	}
	return nil
}

func saveBookmarks(ctx context.Context, conn *sqlx.DB, ex *execution.Execution) error {
	ud := ex.UserData()
	return saveTextRows(ctx, conn,
		"INSERT INTO Bookmarks (NodeID, Bookmark) VALUES (?, ?)",
		ud.BookmarkedNodes(),
		func(nid tree.NodeID) string {
			text, _ := ud.Bookmark(nid)
			return text
		})
}

func saveNogoods(ctx context.Context, conn *sqlx.DB, ex *execution.Execution) error {
	sd := ex.SolverData()
	return saveTextRows(ctx, conn,
		"INSERT INTO Nogoods (NodeID, Nogood) VALUES (?, ?)",
		sd.NogoodNodes(),
		func(nid tree.NodeID) string { return sd.GetNogood(nid).Original })
}

func saveInfo(ctx context.Context, conn *sqlx.DB, ex *execution.Execution) error {
	sd := ex.SolverData()
	return saveTextRows(ctx, conn,
		"INSERT INTO Info (NodeID, Info) VALUES (?, ?)",
		sd.InfoNodes(),
		func(nid tree.NodeID) string { return sd.GetInfo(nid) })
}

// saveTextRows writes one of the text tables in a single transaction,
// skipping rows with empty text.
func saveTextRows(ctx context.Context, conn *sqlx.DB, insert string, nodes []tree.NodeID, text func(tree.NodeID) string) error {
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	for _, nid := range nodes {
		s := text(nid)
		if s == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, insert, int64(nid), s); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert row for node %d: %w", nid, err)
		}
	}
	return tx.Commit()
}

// Load rebuilds an execution from a database file. The offline path
// pre-allocates the node store for the row count, then materializes one
// node per row.
func Load(ctx context.Context, path string, id execution.ID) (*execution.Execution, error) {
	ctx, span := telemetry.StartSpan(ctx, "db.load")
	defer span.End()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open execution database: %w", err)
	}

	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	ex := execution.New(path, id, false)

	if err := loadNodes(ctx, conn, ex); err != nil {
		return nil, err
	}
	if err := loadBookmarks(ctx, conn, ex); err != nil {
		return nil, err
	}
	if err := loadNogoods(ctx, conn, ex); err != nil {
		return nil, err
	}
	if err := loadInfo(ctx, conn, ex); err != nil {
		return nil, err
	}

	ex.Tree().SetDone()
	return ex, nil
}

func loadNodes(ctx context.Context, conn *sqlx.DB, ex *execution.Execution) error {
	var total int
	if err := conn.GetContext(ctx, &total, "SELECT count(*) FROM Nodes"); err != nil {
		return fmt.Errorf("count nodes: %w", err)
	}

	t := ex.Tree()
	t.Mutex().Lock()
	defer t.Mutex().Unlock()

	t.DBInitialize(total)

	// IDs are assigned in creation order, so ascending NodeID always
	// materializes a parent before its children.
	rows, err := conn.QueryxContext(ctx, "SELECT NodeID, ParentID, Alternative, NKids, Status, Label FROM Nodes ORDER BY NodeID")
	if err != nil {
		return fmt.Errorf("select nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row nodeRow
		if err := rows.StructScan(&row); err != nil {
			return fmt.Errorf("scan node row: %w", err)
		}

		nid := tree.NodeID(row.NodeID)
		pid := tree.NodeID(row.ParentID)
		status := tree.Status(row.Status)

		if pid == tree.NoNode {
			t.DBCreateRoot(nid, status, row.Label)
		} else {
			if err := t.DBAddChild(nid, pid, int(row.Alternative), status, row.Label); err != nil {
				return fmt.Errorf("%w: node %d: %v", ErrCorruptDatabase, nid, err)
			}
		}
	}
	return rows.Err()
}

func loadBookmarks(ctx context.Context, conn *sqlx.DB, ex *execution.Execution) error {
	return loadTextRows(ctx, conn, "SELECT NodeID, Bookmark AS Text FROM Bookmarks",
		func(nid tree.NodeID, text string) {
			ex.UserData().SetBookmark(nid, text)
		})
}

func loadNogoods(ctx context.Context, conn *sqlx.DB, ex *execution.Execution) error {
	return loadTextRows(ctx, conn, "SELECT NodeID, Nogood AS Text FROM Nogoods",
		func(nid tree.NodeID, text string) {
			ex.SolverData().SetNogood(nid, text, "")
		})
}

func loadInfo(ctx context.Context, conn *sqlx.DB, ex *execution.Execution) error {
	return loadTextRows(ctx, conn, "SELECT NodeID, Info AS Text FROM Info",
		func(nid tree.NodeID, text string) {
			ex.SolverData().SetInfo(nid, text)
		})
}

func loadTextRows(ctx context.Context, conn *sqlx.DB, query string, apply func(tree.NodeID, string)) error {
	rows, err := conn.QueryxContext(ctx, query)
	if err != nil {
		return fmt.Errorf("select rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row textRow
		if err := rows.StructScan(&row); err != nil {
			return fmt.Errorf("scan text row: %w", err)
		}
		apply(tree.NodeID(row.NodeID), row.Text)
	}
	return rows.Err()
}
