// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rowsink

import (
	"context"

	"github.com/ClusterCockpit/framesync/pkg/align"
	"github.com/ClusterCockpit/framesync/pkg/log"
)

// DisplayQueue is the consumer side of a Mailbox standing in for the GPU
// renderer: it drains completed rows at whatever rate the consumer calls
// Next, which is the steady-rate delivery spec.md §1 asks the pipeline for.
type DisplayQueue[T any] struct {
	mailbox *Mailbox[T]
}

// NewDisplayQueue wraps mailbox as a renderer-facing display queue.
func NewDisplayQueue[T any](mailbox *Mailbox[T]) *DisplayQueue[T] {
	return &DisplayQueue[T]{mailbox: mailbox}
}

// Next blocks until a row is available or ctx is done.
func (d *DisplayQueue[T]) Next(ctx context.Context) ([]align.GetResult[T], bool) {
	select {
	case row := <-d.mailbox.Recv():
		return row, true
	case <-ctx.Done():
		return nil, false
	}
}

// Run drains rows until ctx is canceled, handing each to consume. Intended
// to stand in for the renderer's frame loop; framesync ships it only so the
// row sink's consumer side has somewhere real to run.
func (d *DisplayQueue[T]) Run(ctx context.Context, consume func([]align.GetResult[T])) {
	for {
		row, ok := d.Next(ctx)
		if !ok {
			log.Infof("rowsink: display queue %q stopping", d.mailbox.Name())
			return
		}
		consume(row)
	}
}
