/*
 * Copyright 2021 CloudWeGo Authors
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

// Package drti is the embedding application's entry point into the
// dynamic runtime instrumentation JIT: it wires pkg/config, pkg/klog,
// pkg/metrics, pkg/introspect and internal/specializer together behind
// a small surface (Start/SetLogger/SetLevel), the Go-native analog of
// the original runtime's single process-wide log-level knob (spec.md
// §6, "the core has none [environment/CLI] [...] a single process-wide
// log-level is settable by the embedding application").
package drti

import (
	"regexp"
	"runtime/debug"
	"time"

	"github.com/cloudwego/drti/internal/pool"
	"github.com/cloudwego/drti/internal/specializer"
	"github.com/cloudwego/drti/pkg/accounting"
	"github.com/cloudwego/drti/pkg/config"
	"github.com/cloudwego/drti/pkg/introspect"
	"github.com/cloudwego/drti/pkg/klog"
	"github.com/cloudwego/drti/pkg/metrics"
)

const (
	// Name identifies this runtime for statistics and debug, the same
	// role kitex.Name plays for the teacher's framework.
	Name = "DRTI"

	packageName    = "github.com/cloudwego/drti"
	versionUnknown = "unknown"
)

var (
	// Version is this build's module version, resolved from the
	// running binary's embedded build info.
	Version string

	versionPattern = regexp.MustCompile(`^v\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)*$`)
)

func init() {
	Version = getVersion(packageName)
}

func getVersion(path string) (version string) {
	defer func() {
		if !versionPattern.MatchString(version) {
			version = versionUnknown
		}
	}()
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if info.Main.Path == path {
		version = info.Main.Version
		return
	}
	for _, dep := range info.Deps {
		if dep.Path == path {
			if dep.Replace != nil {
				version = dep.Replace.Version
			} else {
				version = dep.Version
			}
			return
		}
	}
	return
}

// SetLogger replaces the default logger every klog call in this module
// goes through.
func SetLogger(logger klog.FullLogger) {
	klog.SetLogger(logger)
}

// SetLevel sets the process-wide log level.
func SetLevel(level klog.Level) {
	klog.SetLevel(level)
}

// Runtime owns the worker pool that drains latched treenodes into
// internal/specializer.Compile, and the optional introspection server.
type Runtime struct {
	cfg        *config.Config
	pool       *pool.Pool
	introspect *introspect.Server
}

// Start applies cfg (pkg/config.Default() if nil), installs the
// accounting-graph inspector that drives JIT compilation, and wires
// pkg/metrics' attempt/result counters into internal/specializer. The
// returned Runtime's Introspect server, once mounted as an HTTP handler
// (see Introspect), streams every latch this process observes.
func Start(cfg *config.Config) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Apply(cfg); err != nil {
		return nil, err
	}

	specializer.OnAttempt = metrics.RecordAttempt
	specializer.OnResult = metrics.RecordResult

	rt := &Runtime{
		cfg:        cfg,
		pool:       pool.New(cfg.Specializer.Workers, 30*time.Second),
		introspect: introspect.NewServer(),
	}

	accounting.SetInspector(fanoutInspector{
		compile: func(node *accounting.Treenode) {
			rt.dispatch(node)
		},
		introspect: rt.introspect,
	})

	return rt, nil
}

// dispatch hands node to internal/specializer.Compile, synchronously if
// the configured worker count is 1 (the common case: Compile then runs
// on whatever goroutine observed the landing, matching the original
// runtime's inline compileTreenode call), or onto the worker pool
// otherwise.
func (rt *Runtime) dispatch(node *accounting.Treenode) {
	if rt.cfg.Specializer.Workers <= 1 {
		rt.compile(node)
		return
	}
	rt.pool.Go(func() { rt.compile(node) })
}

func (rt *Runtime) compile(node *accounting.Treenode) {
	if err := specializer.Compile(node); err != nil {
		klog.Errorf("drti: specialization failed: %v", err)
	}
}

// Introspect returns the websocket server streaming state-machine
// transitions; mount it with http.Handle("/drti/introspect", rt.Introspect()).
func (rt *Runtime) Introspect() *introspect.Server {
	return rt.introspect
}

// fanoutInspector composes the specializer-dispatching callback and the
// introspection server into the single accounting.Inspector the graph
// supports installing at a time.
type fanoutInspector struct {
	compile    func(node *accounting.Treenode)
	introspect *introspect.Server
}

func (f fanoutInspector) Inspect(node *accounting.Treenode) {
	f.introspect.Inspect(node)
	f.compile(node)
}
