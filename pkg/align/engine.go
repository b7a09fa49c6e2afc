// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package align

import (
	"fmt"
	"sync"
)

// Stats is a snapshot of the engine's cumulative counters.
type Stats struct {
	CompletedRows    uint64
	SkippedTotal     uint64
	SkippedPerStream []uint64
}

// BufferSnapshot is a read-only view of one stream's buffer occupancy, safe
// to hand to a caller that does not hold the engine's lock.
type BufferSnapshot struct {
	Len     int
	MaxSize int
}

// OnCompleteRow is invoked synchronously, under the engine's lock, whenever
// a row completes. It must return quickly: see internal/rowsink for the
// recommended bounded-mailbox hand-off pattern.
type OnCompleteRow[T any] func(row []GetResult[T])

// Engine owns N SortedBuffers (one per stream) and detects, on every
// insert, whether a Δ-aligned row exists across all of them. The critical
// section (insert, row-completion check, prune, and the OnCompleteRow
// callback) runs under a single mutex: the row-completion algorithm
// inherently touches every buffer, so finer-grained locking would not
// reduce contention, only complexity.
type Engine[T any] struct {
	mu sync.Mutex

	buffers              []*SortedBuffer[T]
	maxIndexValueDelta   uint64
	pruneLowerOnComplete bool
	onCompleteRow        OnCompleteRow[T]

	completedRows    uint64
	skippedTotal     uint64
	skippedPerStream []uint64
}

// NewEngine constructs an Engine with streamCount fixed-capacity buffers.
// maxIndexValueDelta is the cross-stream tolerance Δ. pruneLowerOnComplete
// selects the normal live-streaming policy (discard everything older than a
// completed row in every buffer) versus the permissive policy used for
// tests and late-row semantics. onCompleteRow may be nil, in which case
// completed rows are still pruned and counted but not delivered anywhere
// (useful in tests that only assert on Engine.State()).
//
// streamCount must be at least 1 and maxBufferSize must be positive;
// violating either is a programmer error and panics.
func NewEngine[T any](streamCount, maxBufferSize int, maxIndexValueDelta uint64, pruneLowerOnComplete bool, onCompleteRow OnCompleteRow[T]) *Engine[T] {
	if streamCount < 1 {
		panic(fmt.Sprintf("align: Engine streamCount must be >= 1, got %d", streamCount))
	}

	buffers := make([]*SortedBuffer[T], streamCount)
	for i := range buffers {
		buffers[i] = NewSortedBuffer[T](maxBufferSize)
	}

	return &Engine[T]{
		buffers:              buffers,
		maxIndexValueDelta:   maxIndexValueDelta,
		pruneLowerOnComplete: pruneLowerOnComplete,
		onCompleteRow:        onCompleteRow,
		skippedPerStream:     make([]uint64, streamCount),
	}
}

// NumStreams returns N, the number of buffers the engine owns.
func (e *Engine[T]) NumStreams() int {
	return len(e.buffers)
}

// Insert places entry into the buffer for streamIndex, then checks whether
// a row is now completable anchored at entry.IndexValue. If so, the matched
// entries are removed from their buffers (and, depending on
// pruneLowerOnComplete, everything older than them too), completedRows is
// incremented, and onCompleteRow is invoked before Insert returns.
//
// streamIndex must be in [0, NumStreams()); an invalid index is a
// programmer error and panics.
func (e *Engine[T]) Insert(streamIndex int, entry Entry[T]) int {
	if streamIndex < 0 || streamIndex >= len(e.buffers) {
		panic(fmt.Sprintf("align: Insert stream index %d out of range [0,%d)", streamIndex, len(e.buffers)))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	position := e.buffers[streamIndex].Insert(entry)
	e.checkCompleteRow(entry.IndexValue)
	return position
}

// checkCompleteRow implements the row-completion algorithm from §4.2: look
// up the anchor timestamp in every buffer, and only if all N lookups
// succeed does a row exist. Must be called with e.mu held.
func (e *Engine[T]) checkCompleteRow(anchor uint64) {
	row := make([]GetResult[T], len(e.buffers))
	for i, buf := range e.buffers {
		result, ok := buf.Get(anchor, e.maxIndexValueDelta)
		if !ok {
			return
		}
		row[i] = result
	}

	for i, buf := range e.buffers {
		removed := buf.Remove(row[i].Position, e.pruneLowerOnComplete)
		skipped := uint64(removed.Count - 1)
		e.skippedPerStream[i] += skipped
		e.skippedTotal += skipped
	}

	e.completedRows++
	if e.onCompleteRow != nil {
		e.onCompleteRow(row)
	}
}

// Buffers returns a point-in-time snapshot of every stream's occupancy.
// Concurrent callers must treat the result as instantaneous: by the time it
// is read, the live buffers may already differ.
func (e *Engine[T]) Buffers() []BufferSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]BufferSnapshot, len(e.buffers))
	for i, buf := range e.buffers {
		out[i] = BufferSnapshot{Len: buf.Len(), MaxSize: buf.MaxSize()}
	}
	return out
}

// State returns a copy of the engine's cumulative counters.
func (e *Engine[T]) State() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	perStream := make([]uint64, len(e.skippedPerStream))
	copy(perStream, e.skippedPerStream)

	return Stats{
		CompletedRows:    e.completedRows,
		SkippedTotal:     e.skippedTotal,
		SkippedPerStream: perStream,
	}
}
