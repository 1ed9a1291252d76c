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

// Package llms abstracts the LLM Transport boundary (§6.4): two
// operations, chat and chatWithTools, each returning either a final
// message or a set of tool calls — the tagged-variant reduction spec
// §9 calls for, regardless of whether the underlying provider uses
// native function calling or JSON-in-text.
package llms

import (
	"context"
	"log/slog"
	"time"
)

// Message is the universal chat message format threaded through the
// Planner and Actor Loop.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolDefinition is the function-calling schema sent to the provider.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	RawArgs   string         `json:"raw_args"`
}

// ResponseFormat is the "text"|"json" hint from spec §6.4.
type ResponseFormat string

const (
	ResponseFormatText ResponseFormat = "text"
	ResponseFormatJSON ResponseFormat = "json"
)

// ChatOptions configures a plain chat() call.
type ChatOptions struct {
	ResponseFormat ResponseFormat
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
}

// ChatWithToolsRequest configures a chatWithTools() call.
type ChatWithToolsRequest struct {
	Messages       []Message
	Tools          []ToolDefinition
	ResponseFormat ResponseFormat
	Timeout        time.Duration
	Log            *slog.Logger
}

// ChatResponse is the result of a plain chat() call.
type ChatResponse struct {
	Content string
}

// Choice is a single completion choice, matching spec §6.4's
// {message:{content?, tool_calls?}} shape.
type Choice struct {
	Message Message
}

// ChatWithToolsResponse is the result of chatWithTools(): either a
// final message (Content non-empty, no ToolCalls) or one or more
// ToolCalls on the message, never both being meaningful at once.
type ChatWithToolsResponse struct {
	Choices []Choice
}

// FinalContent returns the first choice's content if present.
func (r ChatWithToolsResponse) FinalContent() (string, bool) {
	if len(r.Choices) == 0 {
		return "", false
	}
	msg := r.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		return "", false
	}
	if msg.Content == "" {
		return "", false
	}
	return msg.Content, true
}

// ToolCalls returns the first choice's tool calls, if any.
func (r ChatWithToolsResponse) ToolCalls() []ToolCall {
	if len(r.Choices) == 0 {
		return nil
	}
	return r.Choices[0].Message.ToolCalls
}

// Transport is the LLM Transport boundary. Implementations talk to a
// concrete provider (OpenAI, Anthropic, Gemini, ...); the core never
// depends on a specific one.
type Transport interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (ChatResponse, error)
	ChatWithTools(ctx context.Context, req ChatWithToolsRequest) (ChatWithToolsResponse, error)
}
