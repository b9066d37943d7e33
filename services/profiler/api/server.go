// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves the profiler's status and debug HTTP endpoints:
// health, the execution list with live statistics, on-demand analyses
// and Prometheus metrics. The desktop front end is out of scope; this
// API is what headless deployments monitor instead.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/treescope/services/profiler/analysis"
	"github.com/AleutianAI/treescope/services/profiler/conductor"
	"github.com/AleutianAI/treescope/services/profiler/execution"
	"github.com/AleutianAI/treescope/services/profiler/telemetry"
)

// Server exposes conductor state over HTTP.
type Server struct {
	cond   *conductor.Conductor
	logger *slog.Logger
	engine *gin.Engine
}

// New builds the router.
func New(cond *conductor.Conductor, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{cond: cond, logger: logger, engine: engine}

	engine.GET("/healthz", s.health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	v1.GET("/executions", s.listExecutions)
	v1.GET("/executions/:id/stats", s.executionStats)
	v1.POST("/executions/:id/analyses/identical-subtrees", s.identicalSubtrees)

	return s
}

// Handler returns the HTTP handler, e.g. for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("status API listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type executionSummary struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Restarts bool   `json:"restarts"`
	Done     bool   `json:"done"`
	Nodes    int    `json:"nodes"`
}

func (s *Server) listExecutions(c *gin.Context) {
	executions := s.cond.Executions()
	out := make([]executionSummary, 0, len(executions))
	for _, ex := range executions {
		out = append(out, executionSummary{
			ID:       int(ex.ID()),
			Name:     ex.Name(),
			Restarts: ex.DoesRestarts(),
			Done:     ex.Tree().IsDone(),
			Nodes:    ex.Tree().NodeCount(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) executionStats(c *gin.Context) {
	ex := s.lookup(c)
	if ex == nil {
		return
	}
	stats := ex.Tree().Stats()
	c.JSON(http.StatusOK, gin.H{
		"depth":        stats.MaxDepth(),
		"branch":       stats.BranchCount(),
		"failed":       stats.FailedCount(),
		"solved":       stats.SolvedCount(),
		"skipped":      stats.SkippedCount(),
		"undetermined": stats.UndeterminedCount(),
	})
}

func (s *Server) identicalSubtrees(c *gin.Context) {
	ex := s.lookup(c)
	if ex == nil {
		return
	}
	if !ex.Tree().IsDone() {
		c.JSON(http.StatusConflict, gin.H{"error": "execution still building"})
		return
	}

	start := time.Now()
	ex.Tree().Mutex().Lock()
	patterns := analysis.RunIdenticalSubtrees(ex.Tree())
	ex.Tree().Mutex().Unlock()
	telemetry.RecordAnalysis(c.Request.Context(), "identical_subtrees", time.Since(start))

	type patternJSON struct {
		Height int `json:"height"`
		Size   int `json:"size"`
		Count  int `json:"count"`
	}
	out := make([]patternJSON, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, patternJSON{Height: p.Height, Size: p.Size, Count: p.Count()})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) lookup(c *gin.Context) *execution.Execution {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad execution id"})
		return nil
	}
	ex := s.cond.Execution(execution.ID(id))
	if ex == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown execution"})
		return nil
	}
	return ex
}
