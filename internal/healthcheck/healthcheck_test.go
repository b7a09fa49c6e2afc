// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package healthcheck

import (
	"testing"

	"github.com/ClusterCockpit/framesync/pkg/align"
	"github.com/stretchr/testify/assert"
)

// stubEngine feeds a Checker hand-built snapshots so check() can be driven
// without a live engine or scheduler.
type stubEngine struct {
	stats   align.Stats
	buffers []align.BufferSnapshot
}

func (s *stubEngine) statsFn() align.Stats              { return s.stats }
func (s *stubEngine) buffersFn() []align.BufferSnapshot { return s.buffers }

func newStubChecker(numStreams, stallThreshold int) (*Checker, *stubEngine) {
	eng := &stubEngine{
		stats:   align.Stats{SkippedPerStream: make([]uint64, numStreams)},
		buffers: make([]align.BufferSnapshot, numStreams),
	}
	for i := range eng.buffers {
		eng.buffers[i] = align.BufferSnapshot{Len: 0, MaxSize: 10}
	}
	c := NewChecker(numStreams, stallThreshold, nil, eng.statsFn, eng.buffersFn)
	return c, eng
}

func TestCheckerHealthyByDefault(t *testing.T) {
	c, _ := newStubChecker(2, 3)
	assert.True(t, c.Healthy())
	assert.Equal(t, []bool{false, false}, c.Stalled())
}

func TestCheckerFlagsStreamAtCapacityWithoutProgress(t *testing.T) {
	c, eng := newStubChecker(2, 3)
	eng.buffers[0] = align.BufferSnapshot{Len: 10, MaxSize: 10}

	// One check short of the threshold: not stalled yet.
	for i := 0; i < 2; i++ {
		c.check()
	}
	assert.Equal(t, []bool{false, false}, c.Stalled())

	c.check()
	assert.Equal(t, []bool{true, false}, c.Stalled())
	assert.False(t, c.Healthy())
}

func TestCheckerCompletedRowResetsCounter(t *testing.T) {
	c, eng := newStubChecker(1, 2)
	eng.buffers[0] = align.BufferSnapshot{Len: 10, MaxSize: 10}

	c.check()

	// A new completed row counts as engine-wide progress: the at-capacity
	// stream's counter restarts from zero.
	eng.stats.CompletedRows = 1
	c.check()
	assert.Equal(t, []bool{false}, c.Stalled())

	// Two more stale checks are needed before the stall flag trips again.
	c.check()
	assert.Equal(t, []bool{false}, c.Stalled())
	c.check()
	assert.Equal(t, []bool{true}, c.Stalled())
}

func TestCheckerBelowCapacityResetsCounter(t *testing.T) {
	c, eng := newStubChecker(1, 2)
	eng.buffers[0] = align.BufferSnapshot{Len: 10, MaxSize: 10}

	c.check()
	eng.buffers[0].Len = 4
	c.check()
	eng.buffers[0].Len = 10
	c.check()

	assert.Equal(t, []bool{false}, c.Stalled())
}

func TestCheckerStreamsTrackedIndependently(t *testing.T) {
	c, eng := newStubChecker(3, 2)
	eng.buffers[0] = align.BufferSnapshot{Len: 10, MaxSize: 10}
	eng.buffers[2] = align.BufferSnapshot{Len: 10, MaxSize: 10}

	c.check()

	// Stream 2 drains before the threshold; stream 0 stays full.
	eng.buffers[2].Len = 1
	c.check()

	assert.Equal(t, []bool{true, false, false}, c.Stalled())
	assert.False(t, c.Healthy())
}

func TestCheckerRecoversAfterStall(t *testing.T) {
	c, eng := newStubChecker(1, 1)
	eng.buffers[0] = align.BufferSnapshot{Len: 10, MaxSize: 10}

	c.check()
	assert.Equal(t, []bool{true}, c.Stalled())

	eng.stats.CompletedRows = 5
	c.check()
	assert.Equal(t, []bool{false}, c.Stalled())
	assert.True(t, c.Healthy())
}
