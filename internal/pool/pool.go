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

// Package pool dispatches internal/specializer.Compile calls onto a
// small pool of goroutines with high reuse, so that, when more than one
// worker is configured, the landing-latch path (pkg/accounting's
// Inspector.Inspect) hands the work to an idle goroutine, or starts a
// new one, rather than running the JIT itself. Adapted from the teacher's internal/wpool: same idle-reuse
// design, generalized from an arbitrary Task to specifically dispatching
// specialization work, and with the profiler tagging dropped (nothing
// in this tree needs per-task profiling).
package pool

import (
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/cloudwego/drti/pkg/klog"
)

// Task is one unit of specialization work.
type Task func()

// Pool is a worker pool bound to some idle goroutines.
type Pool struct {
	size  int32
	tasks chan Task

	maxIdle     int32
	maxIdleTime time.Duration
}

// New creates a Pool. maxIdle caps the number of goroutines that park
// waiting for the next task rather than exiting immediately after one;
// maxIdleTime bounds how long a goroutine waits before exiting.
func New(maxIdle int, maxIdleTime time.Duration) *Pool {
	return &Pool{
		tasks:       make(chan Task),
		maxIdle:     int32(maxIdle),
		maxIdleTime: maxIdleTime,
	}
}

// Size returns the number of goroutines currently running or idling in
// the pool.
func (p *Pool) Size() int32 {
	return atomic.LoadInt32(&p.size)
}

// Go runs task on a pooled goroutine, reusing an idle one if available
// and spawning a new one otherwise.
func (p *Pool) Go(task Task) {
	select {
	case p.tasks <- task:
		return
	default:
	}

	atomic.AddInt32(&p.size, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				klog.Errorf("drti: pool: panic in worker: %v: %s", r, debug.Stack())
			}
			atomic.AddInt32(&p.size, -1)
		}()

		task()

		if atomic.LoadInt32(&p.size) > p.maxIdle {
			return
		}

		idleTimer := time.NewTimer(p.maxIdleTime)
		for {
			select {
			case task = <-p.tasks:
				task()
			case <-idleTimer.C:
				return
			}

			if !idleTimer.Stop() {
				<-idleTimer.C
			}
			idleTimer.Reset(p.maxIdleTime)
		}
	}()
}
