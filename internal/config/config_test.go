// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ClusterCockpit/framesync/internal/rowsink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `{
    "streams": [
        {"name": "color0", "kind": "color", "subject": "cam.color0"},
        {"name": "depth0", "kind": "depth", "subject": "cam.depth0"}
    ],
    "max-buffer-size": 16,
    "max-index-value-delta": 50,
    "sink": {"display-capacity": 4, "overflow-policy": "drop-oldest"},
    "nats": {"address": "nats://localhost:4222"},
    "telemetry": {"csv-path": "./var/out.csv", "sample-interval": "10s"}
}`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "framesync.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestInitLoadsAndValidatesConfig(t *testing.T) {
	Keys = Config{}
	path := writeTempConfig(t, validConfig)

	require.NoError(t, Init(path))
	assert.Len(t, Keys.Streams, 2)
	assert.Equal(t, "color0", Keys.Streams[0].Name)
	assert.Equal(t, 16, Keys.MaxBufferSize)
	assert.Equal(t, "nats://localhost:4222", Keys.Nats.Address)
	assert.Equal(t, 4, Keys.Sink.DisplayCapacity)
	assert.Equal(t, rowsink.DropOldest, Keys.Sink.MailboxOverflowPolicy())
	assert.Equal(t, 10*time.Second, Keys.SampleInterval())
}

func TestInitAcceptsSingleStream(t *testing.T) {
	Keys = Config{}
	path := writeTempConfig(t, `{"streams": [{"name": "a", "kind": "color", "subject": "s"}], "nats": {"address": "nats://x"}}`)

	require.NoError(t, Init(path))
	assert.Len(t, Keys.Streams, 1)
}

func TestInitRejectsEmptyStreamList(t *testing.T) {
	Keys = Config{}
	path := writeTempConfig(t, `{"streams": [], "nats": {"address": "nats://x"}}`)

	err := Init(path)
	assert.Error(t, err)
}

func TestInitRejectsSchemaViolation(t *testing.T) {
	Keys = Config{}
	path := writeTempConfig(t, `{"streams": [{"name": "a"}], "nats": {"address": "nats://x"}}`)

	err := Init(path)
	assert.Error(t, err)
}

func TestInitMissingFileFails(t *testing.T) {
	Keys = Config{}
	err := Init(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.Error(t, err)
}

func TestSinkOverflowPolicyDefaultsToDropNewest(t *testing.T) {
	assert.Equal(t, rowsink.DropNewest, SinkConfig{}.MailboxOverflowPolicy())
	assert.Equal(t, rowsink.DropOldest, SinkConfig{OverflowPolicy: "drop-oldest"}.MailboxOverflowPolicy())
}

func TestStreamNames(t *testing.T) {
	c := Config{Streams: []StreamConfig{{Name: "a"}, {Name: "b"}}}
	assert.Equal(t, []string{"a", "b"}, c.StreamNames())
}
