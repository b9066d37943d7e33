// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package receiver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultPort is the port solvers connect to by default.
const DefaultPort = 6565

// Server accepts solver connections and runs one Worker per
// connection.
type Server struct {
	listener net.Listener
	sink     Sink
	logger   *slog.Logger
	delay    time.Duration
}

// Listen binds the requested TCP port, falling back to an ephemeral
// port when it is busy. Pass 0 to request an ephemeral port directly.
func Listen(port int, sink Sink, delay time.Duration, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil && port != 0 {
		logger.Warn("default port busy, binding ephemeral port", "port", port, "error", err)
		ln, err = net.Listen("tcp", ":0")
	}
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{listener: ln, sink: sink, logger: logger, delay: delay}
	logger.Info("ready to listen", "port", s.Port())
	return s, nil
}

// Port returns the actually bound port.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Serve accepts connections until the context is cancelled. Each
// connection gets its own goroutine; worker failures never take the
// server down.
func (s *Server) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		return s.listener.Close()
	})

	g.Go(func() error {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			s.logger.Info("solver connected", "remote", conn.RemoteAddr())

			worker := NewWorker(conn, s.sink, s.delay, s.logger.With("remote", conn.RemoteAddr().String()))
			g.Go(func() error {
				worker.Run(ctx)
				return nil
			})
		}
	})

	return g.Wait()
}
