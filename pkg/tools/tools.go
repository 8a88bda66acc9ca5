// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

// Package tools implements the executable capabilities bound to agents:
// schema introspection, bounded query execution, and KPI/insight
// persistence. Each tool satisfies core.Tool and publishes an llm.Tool
// manifest for the provider tool-calling loop.
package tools

import (
	"encoding/json"
	"strings"

	"github.com/metrikahq/metrika/pkg/errors"
)

// decodeInput unmarshals a tool input into target. Providers deliver
// arguments either as a JSON string or as an already-decoded map, so
// both are accepted. A nil or empty input leaves target at its zero
// value.
func decodeInput(input any, target any) error {
	switch v := input.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(v), target); err != nil {
			return errors.New(errors.CodeInvalidInput, "invalid tool input", err)
		}
	case []byte:
		if len(v) == 0 {
			return nil
		}
		if err := json.Unmarshal(v, target); err != nil {
			return errors.New(errors.CodeInvalidInput, "invalid tool input", err)
		}
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return errors.New(errors.CodeInvalidInput, "invalid tool input", err)
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return errors.New(errors.CodeInvalidInput, "invalid tool input", err)
		}
	}
	return nil
}
