// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package telemetry

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ClusterCockpit/framesync/pkg/align"
	"github.com/ClusterCockpit/framesync/pkg/log"
	"github.com/go-co-op/gocron/v2"
)

// StatsFunc and BuffersFunc let CSVWriter snapshot an align.Engine[T]
// without itself being generic over T.
type StatsFunc func() align.Stats
type BuffersFunc func() []align.BufferSnapshot

// CSVWriter periodically appends one row of engine state to a CSV file,
// grounded on the original system's print_buffer_status console loop
// (original_source/.../tetris_buffer/__init__.py) translated into a
// structured telemetry sink, with an fps column holding the completed-rows
// rate over each sample interval
// (original_source/.../performance/fps_counter.py).
type CSVWriter struct {
	mu          sync.Mutex
	file        *os.File
	w           *csv.Writer
	streamNames []string
	statsFn     StatsFunc
	buffersFn   BuffersFunc
	interval    time.Duration

	scheduler gocron.Scheduler

	lastCompleted uint64
	lastSample    time.Time
}

// NewCSVWriter opens (or creates) path for append and prepares a writer
// that will snapshot the engine every interval once Start is called.
func NewCSVWriter(path string, interval time.Duration, streamNames []string, statsFn StatsFunc, buffersFn BuffersFunc) (*CSVWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("telemetry: creating CSV directory %q: %w", dir, err)
		}
	}

	info, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: opening CSV file %q: %w", path, err)
	}

	cw := &CSVWriter{
		file:        f,
		w:           csv.NewWriter(f),
		streamNames: streamNames,
		statsFn:     statsFn,
		buffersFn:   buffersFn,
		interval:    interval,
	}

	if statErr != nil || info.Size() == 0 {
		if err := cw.w.Write(cw.header()); err != nil {
			f.Close()
			return nil, fmt.Errorf("telemetry: writing CSV header: %w", err)
		}
		cw.w.Flush()
	}

	return cw, nil
}

func (cw *CSVWriter) header() []string {
	row := []string{"timestamp", "completed_rows", "skipped_total", "fps"}
	for i := range cw.streamNames {
		row = append(row, fmt.Sprintf("buffer_length_%s", cw.streamLabel(i)))
	}
	return row
}

func (cw *CSVWriter) streamLabel(i int) string {
	if i < len(cw.streamNames) && cw.streamNames[i] != "" {
		return cw.streamNames[i]
	}
	return strconv.Itoa(i)
}

// Start schedules the periodic snapshot via gocron. Calling Start twice is
// a programmer error.
func (cw *CSVWriter) Start() error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("telemetry: creating scheduler: %w", err)
	}

	cw.lastSample = time.Now()
	if _, err := s.NewJob(
		gocron.DurationJob(cw.interval),
		gocron.NewTask(cw.sample),
	); err != nil {
		return fmt.Errorf("telemetry: scheduling CSV snapshot job: %w", err)
	}

	cw.scheduler = s
	s.Start()
	log.Infof("telemetry: CSV snapshot job started, interval %s", cw.interval)
	return nil
}

// Stop shuts down the scheduler and flushes/closes the file.
func (cw *CSVWriter) Stop() error {
	if cw.scheduler != nil {
		if err := cw.scheduler.Shutdown(); err != nil {
			log.Warnf("telemetry: scheduler shutdown: %v", err)
		}
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.w.Flush()
	return cw.file.Close()
}

func (cw *CSVWriter) sample() {
	stats := cw.statsFn()
	buffers := cw.buffersFn()

	cw.mu.Lock()
	defer cw.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(cw.lastSample).Seconds()
	var fps float64
	if elapsed > 0 && stats.CompletedRows >= cw.lastCompleted {
		fps = float64(stats.CompletedRows-cw.lastCompleted) / elapsed
	}
	cw.lastCompleted = stats.CompletedRows
	cw.lastSample = now

	row := []string{
		now.UTC().Format(time.RFC3339),
		strconv.FormatUint(stats.CompletedRows, 10),
		strconv.FormatUint(stats.SkippedTotal, 10),
		strconv.FormatFloat(fps, 'f', 2, 64),
	}
	for _, b := range buffers {
		row = append(row, strconv.Itoa(b.Len))
	}

	if err := cw.w.Write(row); err != nil {
		log.Errorf("telemetry: writing CSV row: %v", err)
		return
	}
	cw.w.Flush()
}
