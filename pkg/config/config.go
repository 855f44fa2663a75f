/*
 * Copyright 2022 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config loads the process-wide settings the embedding
// application otherwise has no documented way to set: the log level,
// the stash-word alignment, an aggressive-inliner threshold (loaded but
// not read by internal/specializer), and the specializer worker count. Settings live in a TOML file, parsed with
// github.com/BurntSushi/toml.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/cloudwego/drti/internal/carrier"
	"github.com/cloudwego/drti/internal/specializer"
	"github.com/cloudwego/drti/pkg/klog"
)

// Config is the root of drti.toml.
type Config struct {
	Log         LogConfig         `toml:"log"`
	Specializer SpecializerConfig `toml:"specializer"`
}

// LogConfig controls the default klog.FullLogger's level.
type LogConfig struct {
	// Level is one of "fatal", "error", "warn", "info", "trace",
	// "debug" (matched exactly, lower case; "warning" is also accepted
	// for "warn"). Defaults to "info".
	Level string `toml:"level"`
}

// SpecializerConfig controls internal/specializer and internal/asm.
type SpecializerConfig struct {
	// Retalign is the stash-word alignment internal/asm pads guarded
	// calls to. Defaults to carrier.DefaultRetalign. Must be a power
	// of two and at least 16 (8 bytes of stash word plus room for the
	// CALL instruction that follows it).
	Retalign int `toml:"retalign"`

	// InlineThreshold is the Go-native analog of the aggressive
	// inliner's threshold-1000 setting. It is loaded and defaulted to
	// 1000, but nothing in this module reads it: Apply does not pass it
	// on, and internal/specializer.optimize runs its dead-block cleanup
	// on every caller regardless of size.
	InlineThreshold int `toml:"inline_threshold"`

	// Workers is the specializer worker count. Above 1, Compile calls
	// run on internal/pool goroutines and Workers caps how many of them
	// stay parked idle between tasks; the pool still starts a new
	// goroutine whenever none is idle. Defaults to 1, meaning Compile
	// runs synchronously on whatever goroutine observed the landing.
	Workers int `toml:"workers"`
}

// Default returns the configuration this module uses when no drti.toml
// is present.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Specializer: SpecializerConfig{
			Retalign:        carrier.DefaultRetalign,
			InlineThreshold: 1000,
			Workers:         1,
		},
	}
}

// Load reads and parses the TOML file at path, filling in defaults for
// any field left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("drti: config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("drti: config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Specializer.Retalign == 0 {
		c.Specializer.Retalign = carrier.DefaultRetalign
	}
	if c.Specializer.InlineThreshold == 0 {
		c.Specializer.InlineThreshold = 1000
	}
	if c.Specializer.Workers == 0 {
		c.Specializer.Workers = 1
	}
}

// Validate rejects configurations internal/asm or internal/specializer
// cannot safely act on.
func (c *Config) Validate() error {
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Specializer.Retalign < 16 || c.Specializer.Retalign&(c.Specializer.Retalign-1) != 0 {
		return fmt.Errorf("drti: config: retalign %d must be a power of two >= 16", c.Specializer.Retalign)
	}
	if c.Specializer.Workers < 1 {
		return fmt.Errorf("drti: config: workers must be >= 1, got %d", c.Specializer.Workers)
	}
	return nil
}

// LogLevel parses Log.Level into a klog.Level.
func (c *Config) LogLevel() (klog.Level, error) {
	switch c.Log.Level {
	case "fatal":
		return klog.LevelFatal, nil
	case "error":
		return klog.LevelError, nil
	case "warn", "warning":
		return klog.LevelWarn, nil
	case "info":
		return klog.LevelInfo, nil
	case "trace":
		return klog.LevelTrace, nil
	case "debug":
		return klog.LevelDebug, nil
	default:
		return 0, fmt.Errorf("drti: config: unknown log level %q", c.Log.Level)
	}
}

// Apply installs cfg as the process-wide configuration: sets klog's
// level and internal/specializer's Retalign. It does not touch the
// specializer worker pool; callers that want that reconfigured do so
// explicitly with cfg.Specializer.Workers.
func Apply(cfg *Config) error {
	lv, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	klog.SetLevel(lv)
	specializer.Retalign = cfg.Specializer.Retalign
	return nil
}
