// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package receiver reads framed solver messages from TCP connections
// and dispatches typed events to the execution registry.
package receiver

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/AleutianAI/treescope/services/profiler/telemetry"
	"github.com/AleutianAI/treescope/services/profiler/wire"
)

// msgPerBuffer is how many messages are parsed before the input buffer
// is compacted. Compacting rarely keeps the amortized copying cost
// small while bounding buffer growth.
const msgPerBuffer = 10000

// StartMeta is the metadata extracted from a START message's info
// blob.
type StartMeta struct {
	Name           string
	HasRestarts    bool
	ExecutionID    int
	HasExecutionID bool
	Version        int32
}

// Stream consumes the messages of one execution, in arrival order.
// OnDone is called exactly once, either for a DONE message or
// synthetically when the connection fails.
type Stream interface {
	OnNode(msg wire.Message)
	OnRestart(msg wire.Message)
	OnDone()
}

// Sink hands out a Stream when a connection announces its execution.
type Sink interface {
	OnStart(meta StartMeta) (Stream, error)
}

// Worker reads one connection. It keeps a growing input buffer and a
// two-state machine: awaiting the 4-byte frame length, then awaiting
// the frame body.
type Worker struct {
	conn   io.ReadCloser
	sink   Sink
	logger *slog.Logger

	// Artificial per-message delay for deterministic testing.
	delay time.Duration

	buf       []byte
	bytesRead int
	sizeRead  bool
	msgSize   int
	processed int

	stream Stream
	done   bool
}

// NewWorker creates a worker over conn. delay, when positive, is
// applied after each parsed message.
func NewWorker(conn io.ReadCloser, sink Sink, delay time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		conn:   conn,
		sink:   sink,
		logger: logger,
		delay:  delay,
		buf:    make([]byte, 0, 4096),
	}
}

// Run reads until the peer closes the connection, DONE arrives, or a
// fatal per-connection error occurs. Fatal errors are logged, a
// synthetic DONE is emitted, and the connection is closed; they never
// propagate.
func (w *Worker) Run(ctx context.Context) {
	defer w.conn.Close()
	defer w.finish()

	chunk := make([]byte, 32*1024)
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := w.conn.Read(chunk)
		if n > 0 {
			w.buf = append(w.buf, chunk[:n]...)
			if err := w.drain(ctx); err != nil {
				w.logger.Error("closing connection", "error", err)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				w.logger.Error("socket read failed", "error", err)
			}
			return
		}
		if w.done {
			return
		}
	}
}

// drain parses as many complete frames as the buffer holds.
func (w *Worker) drain(ctx context.Context) error {
	for {
		if !w.sizeRead {
			if len(w.buf)-w.bytesRead < 4 {
				return nil
			}
			w.msgSize = int(binary.BigEndian.Uint32(w.buf[w.bytesRead:]))
			w.bytesRead += 4
			w.sizeRead = true
			continue
		}

		// A frame larger than the remaining buffer blocks for more
		// bytes; it is not an error.
		if len(w.buf)-w.bytesRead < w.msgSize {
			return nil
		}

		payload := w.buf[w.bytesRead : w.bytesRead+w.msgSize]
		msg, err := wire.Decode(payload)
		if err != nil {
			telemetry.RecordDrop(ctx, "decode")
			return err
		}

		w.bytesRead += w.msgSize
		w.sizeRead = false
		w.processed++

		if w.processed == msgPerBuffer {
			w.processed = 0
			w.buf = append(w.buf[:0], w.buf[w.bytesRead:]...)
			w.bytesRead = 0
		}

		if w.delay > 0 {
			time.Sleep(w.delay)
		}

		if err := w.handle(ctx, msg); err != nil {
			return err
		}
		if w.done {
			return nil
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg wire.Message) error {
	switch msg.Kind {
	case wire.KindStart:
		telemetry.RecordMessage(ctx, "start", w.msgSize)
		return w.handleStart(msg)
	case wire.KindNode:
		telemetry.RecordMessage(ctx, "node", w.msgSize)
		if w.stream == nil {
			telemetry.RecordDrop(ctx, "no_start")
			w.logger.Warn("node message before START dropped")
			return nil
		}
		w.stream.OnNode(msg)
	case wire.KindRestart:
		telemetry.RecordMessage(ctx, "restart", w.msgSize)
		if w.stream != nil {
			w.stream.OnRestart(msg)
		}
	case wire.KindDone:
		telemetry.RecordMessage(ctx, "done", w.msgSize)
		w.finish()
	}
	return nil
}

// handleStart extracts the execution metadata and obtains the stream
// for the rest of the connection.
func (w *Worker) handleStart(msg wire.Message) error {
	meta := StartMeta{Name: "<no name>", Version: msg.Version}

	if msg.HaveVersion && msg.Version != wire.Version {
		w.logger.Warn("protocol version mismatch; attempting to parse anyway",
			"got", msg.Version, "want", wire.Version)
	}

	if msg.HaveInfo {
		var info struct {
			Name        string `json:"name"`
			HasRestarts bool   `json:"has_restarts"`
			ExecutionID *int   `json:"execution_id"`
		}
		if err := json.Unmarshal([]byte(msg.Info), &info); err != nil {
			w.logger.Warn("start message info is invalid or empty", "error", err)
		} else {
			if info.Name != "" {
				meta.Name = info.Name
			}
			meta.HasRestarts = info.HasRestarts
			if info.ExecutionID != nil {
				meta.ExecutionID = *info.ExecutionID
				meta.HasExecutionID = true
			}
		}
	}

	stream, err := w.sink.OnStart(meta)
	if err != nil {
		return err
	}
	w.stream = stream
	return nil
}

// finish emits the end-of-stream signal exactly once.
func (w *Worker) finish() {
	if w.done {
		return
	}
	w.done = true
	if w.stream != nil {
		w.stream.OnDone()
	}
}
