// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rowsink implements the Row Sink contract from spec.md §4.3: a
// callback registered with align.Engine must return quickly and must never
// block the engine's single lock. Mailbox is the bounded, non-blocking
// hand-off primitive every concrete sink (display queue, websocket relay)
// is built on; FanOut lets more than one sink share a single
// align.OnCompleteRow registration.
package rowsink

import (
	"sync/atomic"

	"github.com/ClusterCockpit/framesync/pkg/align"
)

// OverflowPolicy selects what a full Mailbox does on Send: keep the rows
// already queued and drop the incoming one, or make room by discarding the
// oldest queued row. Neither choice is "more correct" per spec.md §9 — the
// deployment picks based on whether freshness or continuity matters more.
type OverflowPolicy int

const (
	// DropNewest discards the row that was just produced, preserving
	// whatever is already queued.
	DropNewest OverflowPolicy = iota
	// DropOldest discards the head of the queue to make room for the new
	// row, preserving freshness at the cost of continuity.
	DropOldest
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop-newest"
	case DropOldest:
		return "drop-oldest"
	default:
		return "unknown"
	}
}

// Mailbox is a bounded single-producer/single-consumer channel wrapper.
// Send never blocks: on a full channel it applies OverflowPolicy and
// increments Dropped. Safe for one concurrent producer and one concurrent
// consumer; Dropped may be read from any goroutine.
type Mailbox[T any] struct {
	name    string
	ch      chan []align.GetResult[T]
	policy  OverflowPolicy
	dropped atomic.Uint64
}

// NewMailbox creates a Mailbox with the given capacity and overflow policy.
// name identifies the mailbox in telemetry (e.g. "display", "wsrelay").
func NewMailbox[T any](name string, capacity int, policy OverflowPolicy) *Mailbox[T] {
	return &Mailbox[T]{
		name:   name,
		ch:     make(chan []align.GetResult[T], capacity),
		policy: policy,
	}
}

// Name returns the mailbox's telemetry label.
func (m *Mailbox[T]) Name() string {
	return m.name
}

// Policy returns the configured overflow policy.
func (m *Mailbox[T]) Policy() OverflowPolicy {
	return m.policy
}

// Dropped returns the cumulative number of rows discarded due to overflow.
func (m *Mailbox[T]) Dropped() uint64 {
	return m.dropped.Load()
}

// Send hands a completed row to the mailbox without blocking. Intended to
// be called directly as (or from) an align.OnCompleteRow callback.
func (m *Mailbox[T]) Send(row []align.GetResult[T]) {
	select {
	case m.ch <- row:
		return
	default:
	}

	switch m.policy {
	case DropNewest:
		m.dropped.Add(1)
	case DropOldest:
		select {
		case <-m.ch:
			m.dropped.Add(1)
		default:
		}
		select {
		case m.ch <- row:
		default:
			m.dropped.Add(1)
		}
	}
}

// Recv returns the mailbox's receive-only channel for a consumer loop.
func (m *Mailbox[T]) Recv() <-chan []align.GetResult[T] {
	return m.ch
}
