// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"os"
	"reflect"

	"github.com/sv-project/sv/lib/sverr"
)

// JSONOutput is embedded in a command's params struct to provide the
// --json and --quiet flags.
type JSONOutput struct {
	OutputJSON bool `flag:"json" desc:"output as JSON"`
	Quiet      bool `flag:"quiet,q" desc:"suppress human output"`
}

// WriteJSON writes value as indented JSON to stdout.
func WriteJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// normalizeNilSlice turns a nil slice into an empty one so JSON
// output produces [] instead of null.
func normalizeNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}

type errorEnvelope struct {
	SchemaVersion string    `json:"schema_version"`
	Command       string    `json:"command,omitempty"`
	OK            bool      `json:"ok"`
	Error         errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Details any    `json:"details,omitempty"`
}

// WriteJSONError writes the error envelope for a failed command.
func WriteJSONError(command string, err error) error {
	return WriteJSON(errorEnvelope{
		SchemaVersion: SchemaVersion,
		Command:       command,
		OK:            false,
		Error: errorBody{
			Message: err.Error(),
			Code:    sverr.ExitCodeOf(err),
			Kind:    sverr.KindOf(err).String(),
		},
	})
}
