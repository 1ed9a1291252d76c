// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tool defines the Tool Registry boundary (§4.3): a ToolSpec
// interface the LLM function-calling loop drives, a generic
// constructor that derives the JSON schema from a typed Go struct
// (following the teacher's functiontool pattern), and a Registry of
// named ToolSpecs with route-based gating.
package tool

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Result is a tool's outcome, matching spec §4.3: a successful result
// carries a summary and optional source/citations; a failure carries a
// reason and never a summary.
type Result struct {
	OK        bool           `json:"ok"`
	Summary   string         `json:"summary,omitempty"`
	Source    string         `json:"source,omitempty"`
	Citations []string       `json:"citations,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Payload   map[string]any `json:"-"`
}

// Context carries per-call cancellation and a scoped logger to a tool
// invocation, matching spec §6.3's {signal, log}.
type Context struct {
	Ctx context.Context
	Log *slog.Logger
}

// ErrorClass classifies a failed invocation for Execution Ledger TTL
// selection (§4.4) and for actor-loop error reporting.
type ErrorClass string

const (
	ErrClassTimeout    ErrorClass = "timeout"
	ErrClassHTTPBlock  ErrorClass = "http_block"  // 403/429
	ErrClassHTTP5xx    ErrorClass = "http_5xx"
	ErrClassHTTP4xx    ErrorClass = "http_4xx"
	ErrClassValidation ErrorClass = "validation"
	ErrClassOther      ErrorClass = "other"
)

// InvokeError is a classified tool failure.
type InvokeError struct {
	Class ErrorClass
	Err   error
}

func (e *InvokeError) Error() string { return e.Err.Error() }
func (e *InvokeError) Unwrap() error { return e.Err }

// NewInvokeError wraps err with a classification.
func NewInvokeError(class ErrorClass, err error) *InvokeError {
	return &InvokeError{Class: class, Err: err}
}

// Spec is a single entry in the Tool Registry.
type Spec interface {
	Name() string
	Description() string
	// JSONSchema returns the function-calling schema consumable by the
	// LLM transport: {type:"function", function:{name, description,
	// parameters}}.
	JSONSchema() map[string]any
	// DefaultTimeout is this tool's default per-call deadline (§5);
	// the actor clamps it to the remaining turn budget.
	DefaultTimeout() time.Duration
	// Invoke validates args and runs the tool. A validation failure is
	// returned as an *InvokeError with ErrClassValidation.
	Invoke(tc Context, args map[string]any) (Result, error)
}

// Config is the shared, non-typed configuration for a tool built with
// New.
type Config struct {
	Name           string
	Description    string
	DefaultTimeout time.Duration
}

func (c Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("tool: name is required")
	}
	if c.Description == "" {
		return fmt.Errorf("tool: description is required")
	}
	return nil
}

// genericSpec adapts a typed Args function into Spec, mirroring the
// teacher's functiontool.New: schema is reflected once from Args at
// construction time, and each call round-trips the map args through
// JSON into a typed struct before invoking fn.
type genericSpec[Args any] struct {
	cfg    Config
	schema map[string]any
	fn     func(Context, Args) (Result, error)
}

// New builds a Spec from a typed handler function. Args must be a
// struct with `json` and `jsonschema` tags describing the parameters;
// the schema shown to the LLM is generated by reflection over Args.
func New[Args any](cfg Config, fn func(Context, Args) (Result, error)) (Spec, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("tool: schema for %s: %w", cfg.Name, err)
	}
	return &genericSpec[Args]{cfg: cfg, schema: schema, fn: fn}, nil
}

func (g *genericSpec[Args]) Name() string        { return g.cfg.Name }
func (g *genericSpec[Args]) Description() string { return g.cfg.Description }

func (g *genericSpec[Args]) DefaultTimeout() time.Duration {
	if g.cfg.DefaultTimeout > 0 {
		return g.cfg.DefaultTimeout
	}
	return 7 * time.Second
}

func (g *genericSpec[Args]) JSONSchema() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        g.cfg.Name,
			"description": g.cfg.Description,
			"parameters":  g.schema,
		},
	}
}

func (g *genericSpec[Args]) Invoke(tc Context, args map[string]any) (Result, error) {
	var typed Args
	if err := mapToStruct(args, &typed); err != nil {
		return Result{}, NewInvokeError(ErrClassValidation, fmt.Errorf("invalid arguments for %s: %w", g.cfg.Name, err))
	}
	return g.fn(tc, typed)
}

var _ Spec = (*genericSpec[struct{}])(nil)
