// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rowsink

import "github.com/ClusterCockpit/framesync/pkg/align"

// Sink is anything that can receive a completed row without blocking,
// satisfied by *Mailbox[T].
type Sink[T any] interface {
	Send(row []align.GetResult[T])
}

// FanOut combines several Sinks into a single align.OnCompleteRow callback,
// so the engine can feed more than one consumer (a display queue and the
// websocket relay, say) without knowing either exists.
type FanOut[T any] struct {
	sinks []Sink[T]
}

// NewFanOut builds a FanOut over the given sinks.
func NewFanOut[T any](sinks ...Sink[T]) *FanOut[T] {
	return &FanOut[T]{sinks: sinks}
}

// OnCompleteRow is the align.OnCompleteRow callback: it forwards row to
// every registered sink in order. Each Sink.Send is itself non-blocking, so
// one slow/full sink cannot delay delivery to the others.
func (f *FanOut[T]) OnCompleteRow(row []align.GetResult[T]) {
	for _, s := range f.sinks {
		s.Send(row)
	}
}
