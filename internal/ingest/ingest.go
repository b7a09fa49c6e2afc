// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ingest wires NATS subject subscriptions to the alignment engine:
// one subscription per configured stream, decoding each message's envelope
// and calling align.Engine.Insert from the subscription's own goroutine —
// the stand-in for the codec threads spec.md §2 describes.
package ingest

import (
	"sync/atomic"

	"github.com/ClusterCockpit/framesync/internal/codec"
	"github.com/ClusterCockpit/framesync/pkg/align"
	"github.com/ClusterCockpit/framesync/pkg/log"
	"github.com/ClusterCockpit/framesync/pkg/natsclient"
	"golang.org/x/time/rate"
)

// StreamConfig describes one ingested stream: which NATS subject feeds it,
// which buffer index in the engine it targets, and what its envelope looks
// like.
type StreamConfig struct {
	Index     int
	Name      string
	Subject   string
	Decoder   codec.FrameDecoder
	RateLimit float64 // frames/sec; 0 disables throttling
	RateBurst int     // burst allowance; defaults to RateLimit+1 when 0
}

// Ingestor owns one NATS subscription per configured stream and feeds
// decoded frames into the shared alignment engine.
type Ingestor struct {
	client  *natsclient.Client
	engine  *align.Engine[codec.Frame]
	streams []StreamConfig

	limiters  []*rate.Limiter
	throttled []atomic.Uint64
}

// New builds an Ingestor. The engine must have exactly len(streams) buffers
// (one per StreamConfig.Index); mismatches surface once a stream starts
// inserting, via align.Engine's own fatal-on-invalid-index check.
func New(client *natsclient.Client, engine *align.Engine[codec.Frame], streams []StreamConfig) *Ingestor {
	limiters := make([]*rate.Limiter, len(streams))
	for i, s := range streams {
		if s.RateLimit > 0 {
			burst := s.RateBurst
			if burst <= 0 {
				burst = int(s.RateLimit) + 1
			}
			limiters[i] = rate.NewLimiter(rate.Limit(s.RateLimit), burst)
		}
	}

	return &Ingestor{
		client:    client,
		engine:    engine,
		streams:   streams,
		limiters:  limiters,
		throttled: make([]atomic.Uint64, len(streams)),
	}
}

// Start subscribes to every configured stream's NATS subject. A subscribe
// failure on one stream aborts the remaining ones and returns the error;
// the caller decides whether that is fatal for the process.
func (ig *Ingestor) Start() error {
	for i, s := range ig.streams {
		stream := s
		idx := i
		if err := ig.client.Subscribe(stream.Subject, func(_ string, data []byte) {
			ig.handle(idx, stream, data)
		}); err != nil {
			return err
		}
	}
	return nil
}

// handle decodes one message and, if it passes the per-stream rate limiter,
// inserts it into the engine. Decode failures and throttled frames never
// reach Insert: they are not engine-level skips (spec.md §7 distinguishes
// "the frame never reached a buffer" from alignment-miss/overflow skips).
func (ig *Ingestor) handle(streamIndex int, cfg StreamConfig, data []byte) {
	if lim := ig.limiters[streamIndex]; lim != nil && !lim.Allow() {
		ig.throttled[streamIndex].Add(1)
		return
	}

	frame, ts, err := cfg.Decoder.Decode(data)
	if err != nil {
		log.Warnf("ingest: stream %q (%d) decode failed: %v", cfg.Name, streamIndex, err)
		return
	}

	ig.engine.Insert(cfg.Index, align.Entry[codec.Frame]{Value: frame, IndexValue: ts})
}

// Throttled returns the cumulative count of frames dropped by the rate
// limiter for streamIndex, distinct from align.Stats.SkippedPerStream.
func (ig *Ingestor) Throttled(streamIndex int) uint64 {
	return ig.throttled[streamIndex].Load()
}
