// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package codec parses the minimal binary frame envelope producers attach to
// each pub/sub message before handing the remaining bytes to the alignment
// engine as an opaque payload. It does not decode pixels: real H.264/zdepth
// decoding is explicitly out of scope (spec.md §1 Non-goals), so these
// decoders only strip a fixed header and report the timestamp it carries.
//
// Envelope layout (little-endian, mirrors the original system's
// VideoStreamMessage/CameraSensor CDR fields without the pose/calibration
// payload this pipeline never needs):
//
//	Color frame:
//	  timestamp_ns: uint64
//	  image:        []byte (remainder)
//
//	Depth frame:
//	  timestamp_ns:          uint64
//	  depth_units_per_meter: float32
//	  image:                 []byte (remainder)
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Kind distinguishes a color frame from a depth frame.
type Kind int

const (
	KindColor Kind = iota
	KindDepth
)

func (k Kind) String() string {
	switch k {
	case KindColor:
		return "color"
	case KindDepth:
		return "depth"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Frame is the opaque payload the alignment engine carries per entry.
// Payload is the raw, still-encoded image bytes: framesync never decodes
// pixels, it only forwards them to whatever consumer the row sink feeds.
type Frame struct {
	Kind Kind
	// DepthUnitsPerMeter scales DepthFrame payloads back to metric depth;
	// zero and unused for color frames, carried over from the original
	// system's CameraSensor.depth_units_per_meter.
	DepthUnitsPerMeter float32
	Payload            []byte
}

// FrameDecoder strips a stream's envelope header and returns the decoded
// Frame along with the timestamp to use as the entry's IndexValue.
type FrameDecoder interface {
	Decode(payload []byte) (Frame, uint64, error)
}

const colorHeaderLen = 8 // uint64 timestamp

// ColorFrameDecoder decodes the color-stream envelope.
type ColorFrameDecoder struct{}

func (ColorFrameDecoder) Decode(payload []byte) (Frame, uint64, error) {
	if len(payload) < colorHeaderLen {
		return Frame{}, 0, fmt.Errorf("codec: color envelope too short: %d bytes", len(payload))
	}
	ts := binary.LittleEndian.Uint64(payload[0:8])
	return Frame{Kind: KindColor, Payload: payload[colorHeaderLen:]}, ts, nil
}

const depthHeaderLen = 12 // uint64 timestamp + float32 units-per-meter

// DepthFrameDecoder decodes the depth-stream envelope.
type DepthFrameDecoder struct{}

func (DepthFrameDecoder) Decode(payload []byte) (Frame, uint64, error) {
	if len(payload) < depthHeaderLen {
		return Frame{}, 0, fmt.Errorf("codec: depth envelope too short: %d bytes", len(payload))
	}
	ts := binary.LittleEndian.Uint64(payload[0:8])
	unitsBits := binary.LittleEndian.Uint32(payload[8:12])
	units := math.Float32frombits(unitsBits)
	return Frame{
		Kind:               KindDepth,
		DepthUnitsPerMeter: units,
		Payload:            payload[depthHeaderLen:],
	}, ts, nil
}

// DecoderFor returns the decoder registered for a stream kind; DecoderForName
// is the counterpart keyed by the config-facing kind name.
func DecoderFor(kind Kind) (FrameDecoder, error) {
	switch kind {
	case KindColor:
		return ColorFrameDecoder{}, nil
	case KindDepth:
		return DepthFrameDecoder{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown stream kind %v", kind)
	}
}

// EncodeColorEnvelope builds the color-stream wire envelope for image,
// stamped with ts. The inverse of ColorFrameDecoder.Decode, used by the
// framegen test producer.
func EncodeColorEnvelope(ts uint64, image []byte) []byte {
	buf := make([]byte, colorHeaderLen+len(image))
	binary.LittleEndian.PutUint64(buf[0:8], ts)
	copy(buf[colorHeaderLen:], image)
	return buf
}

// EncodeDepthEnvelope builds the depth-stream wire envelope, the inverse of
// DepthFrameDecoder.Decode.
func EncodeDepthEnvelope(ts uint64, unitsPerMeter float32, image []byte) []byte {
	buf := make([]byte, depthHeaderLen+len(image))
	binary.LittleEndian.PutUint64(buf[0:8], ts)
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(unitsPerMeter))
	copy(buf[depthHeaderLen:], image)
	return buf
}

// DecoderForName resolves a config-facing kind name ("color", "depth") to
// its decoder.
func DecoderForName(name string) (FrameDecoder, error) {
	switch name {
	case "color":
		return ColorFrameDecoder{}, nil
	case "depth":
		return DepthFrameDecoder{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown stream kind %q", name)
	}
}
