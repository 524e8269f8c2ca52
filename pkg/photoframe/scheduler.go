/*
 * Copyright 2018 Ji-Young Park(jiyoung.park.dev@gmail.com)
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

package photoframe

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// State is the scheduler state
type State int

const (
	Idle State = iota
	Fetching
)

func (s State) String() string {
	if s == Fetching {
		return "fetching"
	}
	return "idle"
}

// Runner runs one fetch cycle
type Runner interface {
	Run(ctx context.Context) Result
}

// Scheduler re-runs the pipeline a fixed interval after each cycle ends.
// Only one cycle runs at a time; a trigger arriving while a cycle is running
// is dropped and the next timer tick picks up the work.
type Scheduler struct {
	runner   Runner
	interval time.Duration

	mu      sync.Mutex
	ctx     context.Context
	state   State
	timer   *time.Timer
	stopped bool
	lastRun time.Time

	wg sync.WaitGroup
}

// NewScheduler creates a Scheduler
func NewScheduler(runner Runner, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		ctx:      context.Background(),
	}
}

// Start runs the first cycle and keeps the schedule going until ctx is done
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.stopTimer()
		s.mu.Unlock()
	}()

	s.Trigger()
}

// Trigger starts a cycle now. It returns false when a cycle is already
// running or the scheduler was stopped.
func (s *Scheduler) Trigger() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.ctx.Err() != nil {
		return false
	}
	if s.state == Fetching {
		glog.V(3).Info("Fetch already in progress, dropping trigger")
		return false
	}

	s.state = Fetching
	s.stopTimer()

	ctx := s.ctx
	s.wg.Add(1)
	go s.cycle(ctx)
	return true
}

func (s *Scheduler) cycle(ctx context.Context) {
	defer s.wg.Done()

	result := s.runner.Run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = Idle
	s.lastRun = result.At
	if s.stopped || ctx.Err() != nil {
		return
	}
	s.timer = time.AfterFunc(s.interval, func() {
		s.Trigger()
	})
	glog.V(3).Infof("Next fetch in %s", s.interval)
}

// must hold s.mu
func (s *Scheduler) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// State returns the current state
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastRun returns when the last cycle finished
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// Stop cancels the pending timer and waits for a running cycle to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.stopTimer()
	s.mu.Unlock()

	s.wg.Wait()
}
