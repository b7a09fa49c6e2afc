// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the JSON configuration file that
// describes the stream set, alignment parameters, sink policies, and
// telemetry targets, following the teacher's internal/config load-then-
// validate-then-decode style.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ClusterCockpit/framesync/internal/rowsink"
	"github.com/ClusterCockpit/framesync/pkg/log"
	"github.com/ClusterCockpit/framesync/pkg/natsclient"
)

// StreamKind names a stream's wire codec, matching internal/codec.Kind's
// String spelling so config authors never have to think in integers.
type StreamKind string

const (
	StreamKindColor StreamKind = "color"
	StreamKindDepth StreamKind = "depth"
)

// StreamConfig describes one input stream: what subject it arrives on and
// how to decode its frames.
type StreamConfig struct {
	Name    string     `json:"name"`
	Kind    StreamKind `json:"kind"`
	Subject string     `json:"subject"`
}

// SinkConfig configures the bounded display mailbox the row sink feeds.
type SinkConfig struct {
	DisplayCapacity int    `json:"display-capacity"`
	OverflowPolicy  string `json:"overflow-policy"` // "drop-newest" or "drop-oldest"
}

// TelemetryConfig configures the CSV snapshot writer and the Prometheus
// scrape surface's sampling cadence.
type TelemetryConfig struct {
	CSVPath        string `json:"csv-path"`
	SampleInterval string `json:"sample-interval"`
	HealthInterval string `json:"health-interval"`
	StallThreshold int    `json:"stall-threshold"`
}

// HTTPConfig configures the introspection HTTP server.
type HTTPConfig struct {
	Addr string `json:"addr"`
}

// Config is the full on-disk configuration for a framesync process.
type Config struct {
	Streams              []StreamConfig        `json:"streams"`
	MaxBufferSize        int                   `json:"max-buffer-size"`
	MaxIndexValueDelta   uint64                `json:"max-index-value-delta"`
	PruneLowerOnComplete bool                  `json:"prune-lower-on-complete"`
	IngestRateLimit      float64               `json:"ingest-rate-limit"`
	IngestRateBurst      int                   `json:"ingest-rate-burst"`
	Sink                 SinkConfig            `json:"sink"`
	Nats                 natsclient.NatsConfig `json:"nats"`
	Telemetry            TelemetryConfig       `json:"telemetry"`
	HTTP                 HTTPConfig            `json:"http"`
}

// Keys holds the process-global configuration loaded via Init, mirroring
// the teacher's package-level Keys convention.
var Keys Config = Config{
	MaxBufferSize:        32,
	MaxIndexValueDelta:   0,
	PruneLowerOnComplete: true,
	IngestRateLimit:      0,
	IngestRateBurst:      1,
	Sink: SinkConfig{
		DisplayCapacity: 8,
		OverflowPolicy:  "drop-newest",
	},
	Telemetry: TelemetryConfig{
		CSVPath:        "./var/telemetry.csv",
		SampleInterval: "5s",
		HealthInterval: "2s",
		StallThreshold: 5,
	},
	HTTP: HTTPConfig{Addr: ":8080"},
}

// Init reads path, validates it against configSchema, and decodes it into
// Keys. The file is mandatory: the stream list and NATS address have no
// usable built-in defaults.
func Init(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %q: %w", path, err)
	}

	if err := Validate(configSchema, raw); err != nil {
		return fmt.Errorf("config: validating %q: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("config: decoding %q: %w", path, err)
	}

	if len(Keys.Streams) < 1 {
		return fmt.Errorf("config: at least one stream is required")
	}

	return nil
}

// SampleInterval parses Telemetry.SampleInterval, falling back to 5s on a
// malformed or empty value rather than failing startup over telemetry.
func (c Config) SampleInterval() time.Duration {
	return parseDurationOrDefault(c.Telemetry.SampleInterval, 5*time.Second)
}

// HealthInterval parses Telemetry.HealthInterval, falling back to 2s.
func (c Config) HealthInterval() time.Duration {
	return parseDurationOrDefault(c.Telemetry.HealthInterval, 2*time.Second)
}

func parseDurationOrDefault(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Warnf("config: invalid duration %q, using default %s", s, def)
		return def
	}
	return d
}

// MailboxOverflowPolicy resolves the configured overflow-policy string into
// a rowsink.OverflowPolicy, defaulting to DropNewest.
func (s SinkConfig) MailboxOverflowPolicy() rowsink.OverflowPolicy {
	if s.OverflowPolicy == "drop-oldest" {
		return rowsink.DropOldest
	}
	return rowsink.DropNewest
}

// StreamNames returns the configured streams' names in order, the label set
// internal/telemetry and internal/httpapi report against.
func (c Config) StreamNames() []string {
	names := make([]string, len(c.Streams))
	for i, s := range c.Streams {
		names[i] = s.Name
	}
	return names
}
