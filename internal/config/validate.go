// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"fmt"

	"github.com/ClusterCockpit/framesync/pkg/natsclient"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate compiles schema and checks instance against it, the same
// compile-then-validate shape as the teacher's own config validator.
func Validate(schema string, instance json.RawMessage) error {
	sch, err := jsonschema.CompileString("framesync-config.json", schema)
	if err != nil {
		return fmt.Errorf("compiling schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("unmarshaling instance: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}

// configSchema composes the stream/engine/telemetry/http shape with
// natsclient.ConfigSchema spliced in under "nats", so the NATS connection
// settings are validated by the same source of truth the pkg/natsclient
// package itself documents.
var configSchema = fmt.Sprintf(configSchemaTemplate, natsclient.ConfigSchema)

const configSchemaTemplate = `{
    "type": "object",
    "description": "Configuration for a framesync alignment process.",
    "properties": {
        "streams": {
            "type": "array",
            "minItems": 1,
            "items": {
                "type": "object",
                "properties": {
                    "name": {"type": "string"},
                    "kind": {"type": "string", "enum": ["color", "depth"]},
                    "subject": {"type": "string"}
                },
                "required": ["name", "kind", "subject"]
            }
        },
        "max-buffer-size": {"type": "integer", "minimum": 1},
        "max-index-value-delta": {"type": "integer", "minimum": 0},
        "prune-lower-on-complete": {"type": "boolean"},
        "ingest-rate-limit": {"type": "number", "minimum": 0},
        "ingest-rate-burst": {"type": "integer", "minimum": 1},
        "sink": {
            "type": "object",
            "properties": {
                "display-capacity": {"type": "integer", "minimum": 1},
                "overflow-policy": {"type": "string", "enum": ["drop-newest", "drop-oldest"]}
            }
        },
        "nats": %s,
        "telemetry": {
            "type": "object",
            "properties": {
                "csv-path": {"type": "string"},
                "sample-interval": {"type": "string"},
                "health-interval": {"type": "string"},
                "stall-threshold": {"type": "integer", "minimum": 1}
            }
        },
        "http": {
            "type": "object",
            "properties": {
                "addr": {"type": "string"}
            }
        }
    },
    "required": ["streams", "nats"]
}`
