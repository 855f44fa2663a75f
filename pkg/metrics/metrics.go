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

// Package metrics counts specialization attempts, successes, and
// failures by taxonomy, and times how long internal/specializer.Compile
// takes, using github.com/armon/go-metrics, part of the teacher's own
// dependency closure (pulled in transitively through its discovery
// stack) rather than a sibling example's.
package metrics

import (
	"time"

	metrics "github.com/armon/go-metrics"

	"github.com/cloudwego/drti/pkg/accounting"
	"github.com/cloudwego/drti/pkg/kerrors"
)

var (
	keyAttempt = []string{"drti", "specialize", "attempt"}
	keySuccess = []string{"drti", "specialize", "success"}
	keyFailure = []string{"drti", "specialize", "failure"}
	keyLatency = []string{"drti", "specialize", "latency_ms"}
)

// Sink is the narrow slice of go-metrics' Metrics interface this
// package drives; satisfied by *metrics.Metrics (the real client) and
// easily faked in tests.
type Sink interface {
	IncrCounter(key []string, val float32)
	IncrCounterWithLabels(key []string, val float32, labels []metrics.Label)
	AddSample(key []string, val float32)
}

var sink Sink = newDefaultSink()

// newDefaultSink builds the package's starting sink: a real
// *metrics.Metrics backed by a no-op reporter, so counters and samples
// are tracked (and SetSink can swap in a real reporter later) even
// before the embedding application configures one.
func newDefaultSink() Sink {
	m, err := metrics.NewGlobal(metrics.DefaultConfig("drti"), &metrics.BlackholeSink{})
	if err != nil {
		return &metrics.BlackholeSink{}
	}
	return m
}

// SetSink replaces the package-level sink, normally called once at
// startup with the result of metrics.NewGlobal wired to a real
// reporter (statsd, in-memory, etc.). Tests use this to inject a fake.
func SetSink(s Sink) {
	sink = s
}

// RecordAttempt increments the attempt counter. Called once per
// internal/specializer.Compile invocation, before any work is done.
func RecordAttempt() {
	sink.IncrCounter(keyAttempt, 1)
}

// RecordResult increments the success or taxonomy-tagged failure
// counter and records elapsed as a latency sample, in milliseconds.
// err is nil on success. node is unused but keeps this function's
// signature matching internal/specializer.OnResult, so the root
// package can wire it in directly.
func RecordResult(node *accounting.Treenode, err error, elapsed time.Duration) {
	sink.AddSample(keyLatency, float32(elapsed.Milliseconds()))
	if err == nil {
		sink.IncrCounter(keySuccess, 1)
		return
	}
	sink.IncrCounterWithLabels(keyFailure, 1, []metrics.Label{
		{Name: "reason", Value: failureReason(err)},
	})
}

func failureReason(err error) string {
	if de, ok := err.(*kerrors.DetailedError); ok {
		return de.ErrorType().Error()
	}
	return "unknown"
}

// Inspector is an accounting.Inspector that counts latches: every
// Inspect call bumps the drti.landing.latched counter by one. It does
// not track which terminal State a treenode later reaches, and the root
// package does not install it.
type Inspector struct{}

// Inspect satisfies accounting.Inspector. Every latch also counts as a
// specialization attempt about to begin, from metrics' point of view:
// internal/specializer.Compile itself calls RecordAttempt/RecordResult,
// so this only needs to bump a cheap, advisory "latched" counter for
// dashboards that want to compare latches to completed attempts.
func (Inspector) Inspect(node *accounting.Treenode) {
	sink.IncrCounter([]string{"drti", "landing", "latched"}, 1)
}
