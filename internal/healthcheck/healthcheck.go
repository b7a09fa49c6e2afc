// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package healthcheck watches engine occupancy and completion counters from
// the outside to flag a stalled stream for /healthz. Per spec.md §7 "the
// engine does not take corrective action" — this is purely observational,
// an external collaborator in the terms of spec.md §4.9.
package healthcheck

import (
	"fmt"
	"sync"
	"time"

	"github.com/ClusterCockpit/framesync/pkg/align"
	"github.com/ClusterCockpit/framesync/pkg/log"
	"github.com/go-co-op/gocron/v2"
)

type StatsFunc func() align.Stats
type BuffersFunc func() []align.BufferSnapshot

// streamState tracks one stream's consecutive at-capacity-with-no-progress
// checks.
type streamState struct {
	consecutiveNoProgress int
	stalled               bool
}

// Checker flags a stream "stalled" once its buffer has sat at capacity
// through StallThreshold consecutive checks with no new completed rows at
// all (a global signal, since a single stream sitting full can also be the
// one a healthy row completion is still draining).
type Checker struct {
	mu             sync.Mutex
	streams        []streamState
	streamNames    []string
	StallThreshold int

	statsFn   StatsFunc
	buffersFn BuffersFunc

	lastCompleted uint64
	scheduler     gocron.Scheduler
}

// NewChecker builds a Checker for numStreams streams. stallThreshold is the
// number of consecutive checks a stream must sit at capacity with zero
// engine-wide progress before it is reported stalled.
func NewChecker(numStreams, stallThreshold int, streamNames []string, statsFn StatsFunc, buffersFn BuffersFunc) *Checker {
	return &Checker{
		streams:        make([]streamState, numStreams),
		streamNames:    streamNames,
		StallThreshold: stallThreshold,
		statsFn:        statsFn,
		buffersFn:      buffersFn,
	}
}

// Start schedules the periodic check via gocron.
func (c *Checker) Start(interval time.Duration) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("healthcheck: creating scheduler: %w", err)
	}
	if _, err := s.NewJob(gocron.DurationJob(interval), gocron.NewTask(c.check)); err != nil {
		return fmt.Errorf("healthcheck: scheduling check job: %w", err)
	}
	c.scheduler = s
	s.Start()
	log.Infof("healthcheck: stream-liveness job started, interval %s", interval)
	return nil
}

// Stop shuts down the scheduler.
func (c *Checker) Stop() error {
	if c.scheduler == nil {
		return nil
	}
	return c.scheduler.Shutdown()
}

func (c *Checker) check() {
	stats := c.statsFn()
	buffers := c.buffersFn()

	c.mu.Lock()
	defer c.mu.Unlock()

	progressed := stats.CompletedRows > c.lastCompleted
	c.lastCompleted = stats.CompletedRows

	for i, b := range buffers {
		if i >= len(c.streams) {
			break
		}
		atCapacity := b.Len >= b.MaxSize
		if atCapacity && !progressed {
			c.streams[i].consecutiveNoProgress++
		} else {
			c.streams[i].consecutiveNoProgress = 0
		}

		wasStalled := c.streams[i].stalled
		c.streams[i].stalled = c.streams[i].consecutiveNoProgress >= c.StallThreshold
		if c.streams[i].stalled && !wasStalled {
			log.Warnf("healthcheck: stream %q flagged stalled", c.streamLabel(i))
		}
	}
}

func (c *Checker) streamLabel(i int) string {
	if i < len(c.streamNames) && c.streamNames[i] != "" {
		return c.streamNames[i]
	}
	return fmt.Sprintf("stream-%d", i)
}

// Stalled returns a copy of the per-stream stalled flags.
func (c *Checker) Stalled() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]bool, len(c.streams))
	for i, s := range c.streams {
		out[i] = s.stalled
	}
	return out
}

// Healthy reports whether no stream is currently flagged stalled.
func (c *Checker) Healthy() bool {
	for _, stalled := range c.Stalled() {
		if stalled {
			return false
		}
	}
	return true
}
