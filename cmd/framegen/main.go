// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// framegen is a synthetic frame producer for exercising a framesync
// deployment without real cameras: it publishes envelope-encoded dummy
// frames on every stream subject of the given config at a fixed rate, with
// optional per-stream timestamp jitter so the alignment engine has something
// to tolerate.
package main

import (
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClusterCockpit/framesync/internal/codec"
	cfgpkg "github.com/ClusterCockpit/framesync/internal/config"
	"github.com/ClusterCockpit/framesync/pkg/log"
	"github.com/ClusterCockpit/framesync/pkg/natsclient"
)

const depthUnitsPerMeter = 1000.0

func main() {
	var flagConfigFile string
	var flagFPS float64
	var flagPayloadBytes int
	var flagJitter time.Duration
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Path to the framesync configuration file")
	flag.Float64Var(&flagFPS, "fps", 30, "Frames per second per stream")
	flag.IntVar(&flagPayloadBytes, "payload-bytes", 1024, "Dummy payload size per frame")
	flag.DurationVar(&flagJitter, "jitter", 0, "Max random timestamp offset per stream (e.g. 5ms)")
	flag.Parse()

	if err := cfgpkg.Init(flagConfigFile); err != nil {
		log.Fatal(err)
	}
	cfg := cfgpkg.Keys

	client, err := natsclient.NewClient(&cfg.Nats)
	if err != nil {
		log.Fatalf("connecting to NATS: %s", err.Error())
	}
	defer client.Close()

	payload := make([]byte, flagPayloadBytes)
	ticker := time.NewTicker(time.Duration(float64(time.Second) / flagFPS))
	defer ticker.Stop()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	log.Infof("framegen: publishing %d streams at %.1f fps", len(cfg.Streams), flagFPS)

	var published uint64
	for {
		select {
		case <-sigs:
			if err := client.Flush(); err != nil {
				log.Warnf("framegen: flush: %v", err)
			}
			log.Infof("framegen: stopping after %d frames", published)
			return
		case <-ticker.C:
			base := uint64(time.Now().UnixNano())
			for _, s := range cfg.Streams {
				ts := base
				if flagJitter > 0 {
					ts += uint64(rand.Int63n(int64(flagJitter)))
				}
				var envelope []byte
				switch s.Kind {
				case cfgpkg.StreamKindDepth:
					envelope = codec.EncodeDepthEnvelope(ts, depthUnitsPerMeter, payload)
				default:
					envelope = codec.EncodeColorEnvelope(ts, payload)
				}
				if err := client.Publish(s.Subject, envelope); err != nil {
					log.Warnf("framegen: publish to %q: %v", s.Subject, err)
					continue
				}
				published++
			}
		}
	}
}
