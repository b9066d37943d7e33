// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command treescope runs the constraint-programming search-tree
// profiler. Solvers connect over TCP (default port 6565) and stream
// their search; treescope rebuilds the tree live, keeps its layout
// fresh and serves a status API.
//
// Usage:
//
//	treescope
//	treescope --port 7000 --api-port 8080
//
// Headless batch modes terminate after the first execution finishes:
//
//	treescope --save_search search.log
//	treescope --save_execution run.db --save_pixel_tree run.png
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/treescope/pkg/logging"
	"github.com/AleutianAI/treescope/services/profiler/api"
	"github.com/AleutianAI/treescope/services/profiler/conductor"
	"github.com/AleutianAI/treescope/services/profiler/config"
	"github.com/AleutianAI/treescope/services/profiler/db"
	"github.com/AleutianAI/treescope/services/profiler/execution"
	"github.com/AleutianAI/treescope/services/profiler/namemap"
	"github.com/AleutianAI/treescope/services/profiler/pixel"
	"github.com/AleutianAI/treescope/services/profiler/receiver"
	"github.com/AleutianAI/treescope/services/profiler/telemetry"
)

type flags struct {
	configFile string
	port       int
	apiPort    int

	paths string
	mzn   string

	saveSearch      string
	saveExecution   string
	savePixelTree   string
	pixelTreeFactor int

	receiverDelayMS int
	logLevel        string
}

func main() {
	var f flags

	root := &cobra.Command{
		Use:           "treescope",
		Short:         "Profiler for constraint-programming search trees",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}

	root.Flags().StringVar(&f.configFile, "config", "settings.yaml", "Settings file")
	root.Flags().IntVar(&f.port, "port", 0, "TCP port for solver connections (overrides settings)")
	root.Flags().IntVar(&f.apiPort, "api-port", 0, "Status API port (0 disables)")
	root.Flags().StringVar(&f.paths, "paths", "", "Use symbol table from: <file_name>")
	root.Flags().StringVar(&f.mzn, "mzn", "", "Use MiniZinc file for tying ids to expressions: <file_name>")
	root.Flags().StringVar(&f.saveSearch, "save_search", "", "Process one execution and save its search to <file_name>; terminate afterwards")
	root.Flags().StringVar(&f.saveExecution, "save_execution", "", "Process one execution and save it to a database named <file_name>; terminate afterwards")
	root.Flags().StringVar(&f.savePixelTree, "save_pixel_tree", "", "Additionally save a pixel tree image to <file_name>")
	root.Flags().IntVar(&f.pixelTreeFactor, "pixel_tree_compression", pixel.DefaultCompression, "Compression factor for the saved pixel tree")
	root.Flags().IntVar(&f.receiverDelayMS, "receiver-delay", 0, "Artificial delay (ms) after each received message")
	root.Flags().StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	if err := root.Execute(); err != nil {
		// Only argument errors reach this point; runtime failures are
		// logged and exit 0.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run(f flags) error {
	settings, err := config.Load(f.configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		settings = config.Default()
	}
	if f.port != 0 {
		settings.ListenPort = f.port
	}
	if f.apiPort != 0 {
		settings.APIPort = f.apiPort
	}
	if f.receiverDelayMS != 0 {
		settings.ReceiverDelayMS = f.receiverDelayMS
	}
	if f.logLevel != "" {
		settings.LogLevel = f.logLevel
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(settings.LogLevel),
		Service: "profiler",
	})
	defer logger.Close()

	cond := conductor.New(conductor.Options{
		PathsFile:      f.paths,
		ModelFile:      f.mzn,
		AutoHideFailed: settings.AutoHideFailed,
	}, logger.Slog())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Keep the name map fresh while the profiler runs.
	if f.paths != "" {
		watcher, err := namemap.NewWatcher(f.paths, f.mzn, logger.Slog(), cond.SetNameMap)
		if err != nil {
			logger.Warn("name map watcher disabled", "error", err)
		} else {
			g.Go(func() error {
				watcher.Run(ctx)
				return nil
			})
		}
	}

	delay := time.Duration(settings.ReceiverDelayMS) * time.Millisecond
	server, err := receiver.Listen(settings.ListenPort, cond, delay, logger.Slog())
	if err != nil {
		logger.Error("cannot listen for solvers", "error", err)
		return nil
	}
	g.Go(func() error { return server.Serve(ctx) })

	if settings.APIPort != 0 {
		statusAPI := api.New(cond, logger.Slog())
		g.Go(func() error {
			return statusAPI.Run(ctx, fmt.Sprintf(":%d", settings.APIPort))
		})
	}

	batch := f.saveSearch != "" || f.saveExecution != ""
	if batch {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return nil
			case ex := <-cond.Done():
				saveAndExit(ctx, f, ex, logger)
				stop()
				return nil
			}
		})
	} else {
		// Live mode: keep views fresh for attached clients.
		g.Go(func() error {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					for _, ex := range cond.Executions() {
						if view := cond.ViewOf(ex.ID()); view != nil && view.Computer.Compute() {
							telemetry.RecordLayoutPass(ctx)
						}
					}
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("profiler terminated", "error", err)
	}
	return nil
}

// saveAndExit performs the headless exports for a finished execution.
// Failures are logged; exit codes stay zero by design.
func saveAndExit(ctx context.Context, f flags, ex *execution.Execution, logger *logging.Logger) {
	if f.saveSearch != "" {
		logger.Info("saving search", "path", f.saveSearch)
		if err := execution.SaveSearchLog(ex, f.saveSearch); err != nil {
			logger.Error("saving search failed", "error", err)
		}
	}

	if f.saveExecution != "" {
		logger.Info("saving execution", "path", f.saveExecution)
		if err := db.Save(ctx, ex, f.saveExecution); err != nil {
			logger.Error("saving execution failed", "error", err)
		}
		if f.savePixelTree != "" {
			logger.Info("saving pixel tree", "path", f.savePixelTree)
			if err := pixel.SavePNG(ex.Tree(), f.savePixelTree, f.pixelTreeFactor); err != nil {
				logger.Error("saving pixel tree failed", "error", err)
			}
		}
	}
}
