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

package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAITransport talks to any OpenAI-compatible chat-completions
// endpoint (OpenAI itself, or a local/self-hosted gateway using the
// same wire format). It is a concrete, real Transport implementation
// so the module runs end-to-end; the core never imports it directly —
// only main wires a concrete Transport into the Turn Driver.
type OpenAITransport struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
}

// NewOpenAITransport constructs a transport against baseURL (e.g.
// "https://api.openai.com/v1") using apiKey for bearer auth.
func NewOpenAITransport(baseURL, apiKey, model string) *OpenAITransport {
	return &OpenAITransport{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type oaMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []oaToolCall   `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type oaToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type oaRequest struct {
	Model          string      `json:"model"`
	Messages       []oaMessage `json:"messages"`
	Tools          []oaTool    `json:"tools,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type oaResponse struct {
	Choices []struct {
		Message oaMessage `json:"message"`
	} `json:"choices"`
}

func toOAMessages(msgs []Message) []oaMessage {
	out := make([]oaMessage, len(msgs))
	for i, m := range msgs {
		out[i] = oaMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name}
		for _, tc := range m.ToolCalls {
			var call oaToolCall
			call.ID = tc.ID
			call.Type = "function"
			call.Function.Name = tc.Name
			call.Function.Arguments = tc.RawArgs
			if call.Function.Arguments == "" {
				encoded, _ := json.Marshal(tc.Arguments)
				call.Function.Arguments = string(encoded)
			}
			out[i].ToolCalls = append(out[i].ToolCalls, call)
		}
	}
	return out
}

func toOATools(defs []ToolDefinition) []oaTool {
	out := make([]oaTool, len(defs))
	for i, d := range defs {
		out[i].Type = "function"
		out[i].Function.Name = d.Name
		out[i].Function.Description = d.Description
		out[i].Function.Parameters = d.Parameters
	}
	return out
}

func (t *OpenAITransport) post(ctx context.Context, body oaRequest) (oaResponse, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return oaResponse{}, fmt.Errorf("llms: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return oaResponse{}, fmt.Errorf("llms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := t.HTTP.Do(req)
	if err != nil {
		return oaResponse{}, fmt.Errorf("llms: request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return oaResponse{}, fmt.Errorf("llms: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return oaResponse{}, fmt.Errorf("llms: provider returned %d: %s", resp.StatusCode, string(data))
	}

	var out oaResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return oaResponse{}, fmt.Errorf("llms: decode response: %w", err)
	}
	return out, nil
}

func (t *OpenAITransport) Chat(ctx context.Context, messages []Message, opts ChatOptions) (ChatResponse, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	req := oaRequest{Model: t.Model, Messages: toOAMessages(messages)}
	if opts.ResponseFormat == ResponseFormatJSON {
		req.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}
	resp, err := t.post(ctx, req)
	if err != nil {
		return ChatResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, nil
	}
	return ChatResponse{Content: resp.Choices[0].Message.Content}, nil
}

func (t *OpenAITransport) ChatWithTools(ctx context.Context, r ChatWithToolsRequest) (ChatWithToolsResponse, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	req := oaRequest{Model: t.Model, Messages: toOAMessages(r.Messages), Tools: toOATools(r.Tools)}
	if r.ResponseFormat == ResponseFormatJSON {
		req.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}
	resp, err := t.post(ctx, req)
	if err != nil {
		return ChatWithToolsResponse{}, err
	}

	choices := make([]Choice, len(resp.Choices))
	for i, c := range resp.Choices {
		msg := Message{Role: "assistant", Content: c.Message.Content}
		for _, tc := range c.Message.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: args,
				RawArgs:   tc.Function.Arguments,
			})
		}
		choices[i] = Choice{Message: msg}
	}
	return ChatWithToolsResponse{Choices: choices}, nil
}

var _ Transport = (*OpenAITransport)(nil)
