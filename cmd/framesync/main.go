// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ClusterCockpit/framesync/internal/codec"
	cfgpkg "github.com/ClusterCockpit/framesync/internal/config"
	"github.com/ClusterCockpit/framesync/internal/healthcheck"
	"github.com/ClusterCockpit/framesync/internal/httpapi"
	"github.com/ClusterCockpit/framesync/internal/ingest"
	"github.com/ClusterCockpit/framesync/internal/rowsink"
	"github.com/ClusterCockpit/framesync/internal/telemetry"
	"github.com/ClusterCockpit/framesync/internal/wsrelay"
	"github.com/ClusterCockpit/framesync/pkg/align"
	"github.com/ClusterCockpit/framesync/pkg/log"
	"github.com/ClusterCockpit/framesync/pkg/natsclient"
	"github.com/google/gops/agent"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var flagConfigFile string
	var flagGops, flagLogDateTime bool
	var flagLogLevel string
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Path to the process configuration file")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Set this flag to add date and time to log messages")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Minimum log level: debug, info, warn, err, crit")
	flag.Parse()

	log.SetLogDateTime(flagLogDateTime)
	log.SetLogLevel(flagLogLevel)

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	if err := cfgpkg.Init(flagConfigFile); err != nil {
		log.Fatal(err)
	}
	cfg := cfgpkg.Keys

	client, err := natsclient.NewClient(&cfg.Nats)
	if err != nil {
		log.Fatalf("connecting to NATS: %s", err.Error())
	}

	streamNames := cfg.StreamNames()
	hub := wsrelay.NewHub()
	displayMailbox := rowsink.NewMailbox[codec.Frame]("display",
		cfg.Sink.DisplayCapacity, cfg.Sink.MailboxOverflowPolicy())
	display := rowsink.NewDisplayQueue[codec.Frame](displayMailbox)
	fanOut := rowsink.NewFanOut[codec.Frame](displayMailbox, hub)

	engine := align.NewEngine[codec.Frame](len(cfg.Streams), cfg.MaxBufferSize,
		cfg.MaxIndexValueDelta, cfg.PruneLowerOnComplete, fanOut.OnCompleteRow)

	metrics := telemetry.NewMetrics(len(cfg.Streams), streamNames)

	ingestStreams := make([]ingest.StreamConfig, len(cfg.Streams))
	for i, s := range cfg.Streams {
		dec, err := codec.DecoderForName(string(s.Kind))
		if err != nil {
			log.Fatalf("stream %q: %s", s.Name, err.Error())
		}
		ingestStreams[i] = ingest.StreamConfig{
			Index:     i,
			Name:      s.Name,
			Subject:   s.Subject,
			Decoder:   dec,
			RateLimit: cfg.IngestRateLimit,
			RateBurst: cfg.IngestRateBurst,
		}
	}
	ingestor := ingest.New(client, engine, ingestStreams)

	checker := healthcheck.NewChecker(len(cfg.Streams), cfg.Telemetry.StallThreshold, streamNames,
		engine.State, engine.Buffers)

	csvWriter, err := telemetry.NewCSVWriter(cfg.Telemetry.CSVPath, cfg.SampleInterval(), streamNames,
		engine.State, engine.Buffers)
	if err != nil {
		log.Fatalf("telemetry: %s", err.Error())
	}

	httpServer := httpapi.New(httpapi.Options{
		Addr:           cfg.HTTP.Addr,
		StreamNames:    streamNames,
		StatsFn:        engine.State,
		BuffersFn:      engine.Buffers,
		ConnectedFn:    client.IsConnected,
		Checker:        checker,
		Hub:            hub,
		MetricsHandler: promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go runDisplayLoop(ctx, display)
	go runMetricsLoop(ctx, metrics, engine, displayMailbox, ingestor, streamNames, cfg.SampleInterval())

	if err := ingestor.Start(); err != nil {
		log.Fatalf("ingest: starting subscriptions: %s", err.Error())
	}
	if err := checker.Start(cfg.HealthInterval()); err != nil {
		log.Fatalf("healthcheck: %s", err.Error())
	}
	if err := csvWriter.Start(); err != nil {
		log.Fatalf("telemetry: %s", err.Error())
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Serve(); err != nil {
			log.Fatalf("httpapi: %s", err.Error())
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("shutdown signal received, draining...")

	// Graceful shutdown order: close the NATS client first, which unsubscribes
	// every stream so nothing new enters the engine, then stop the display and
	// metrics loops, the health and CSV jobs, the websocket relay and finally
	// the HTTP server. Rows still queued in the display mailbox when its loop
	// stops are dropped, not drained.
	client.Close()
	cancel()

	if err := checker.Stop(); err != nil {
		log.Warnf("healthcheck: stop: %v", err)
	}
	if err := csvWriter.Stop(); err != nil {
		log.Warnf("telemetry: stop: %v", err)
	}
	hub.Shutdown(context.Background())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("httpapi: shutdown: %v", err)
	}

	wg.Wait()
	log.Info("graceful shutdown completed")
}

// runDisplayLoop drains the display mailbox, logging completed rows. It
// stands in for the local preview renderer spec.md's display consumer
// describes; nothing downstream of framesync renders pixels in this module.
func runDisplayLoop(ctx context.Context, display *rowsink.DisplayQueue[codec.Frame]) {
	display.Run(ctx, func(row []align.GetResult[codec.Frame]) {
		log.Debugf("row complete: %d entries", len(row))
	})
}

// runMetricsLoop periodically pushes engine, mailbox, and ingest-throttle
// counters into the Prometheus registry, at the same cadence as the CSV
// snapshot writer.
func runMetricsLoop(
	ctx context.Context,
	metrics *telemetry.Metrics,
	engine *align.Engine[codec.Frame],
	displayMailbox *rowsink.Mailbox[codec.Frame],
	ingestor *ingest.Ingestor,
	streamNames []string,
	interval time.Duration,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var displayDropped uint64
	throttled := make([]uint64, len(streamNames))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.Observe(engine.State(), engine.Buffers(), streamNames)
			displayDropped = metrics.ObserveMailbox(displayMailbox, displayDropped)
			for i, name := range streamNames {
				throttled[i] = metrics.ObserveThrottle(name, ingestor.Throttled(i), throttled[i])
			}
		}
	}
}
