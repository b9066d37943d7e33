// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the profiler's settings file.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Settings configures the running profiler. A zero value is usable;
// Default fills in the documented defaults.
type Settings struct {
	// ListenPort is the TCP port solvers connect to. When busy, an
	// ephemeral port is bound instead.
	ListenPort int `yaml:"listen_port" validate:"gte=0,lte=65535"`

	// APIPort serves the status/debug HTTP API; 0 disables it.
	APIPort int `yaml:"api_port" validate:"gte=0,lte=65535"`

	// ReceiverDelayMS is an artificial delay, in milliseconds, applied
	// after each received message. Used for deterministic testing.
	ReceiverDelayMS int `yaml:"receiver_delay" validate:"gte=0"`

	// AutoHideFailed collapses failed subtrees as they close.
	AutoHideFailed bool `yaml:"auto_hide_failed"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// Default returns the settings used when no file is present.
func Default() Settings {
	return Settings{
		ListenPort:     6565,
		APIPort:        0,
		AutoHideFailed: true,
		LogLevel:       "info",
	}
}

// Load reads a YAML settings file over the defaults and validates the
// result. A missing file is not an error: defaults are returned.
func Load(path string) (Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings: %w", err)
	}

	if err := validator.New().Struct(&s); err != nil {
		return s, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}
