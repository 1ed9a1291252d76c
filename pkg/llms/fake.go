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
	"context"
	"sync"
)

// Fake is a scriptable Transport used by package tests: each call to
// Chat or ChatWithTools pops the next scripted response (or error) off
// its queue. It is not used outside _test.go files but lives in the
// package proper so every consuming package's tests can import it
// without a dependency cycle.
type Fake struct {
	mu            sync.Mutex
	chatQueue     []chatStep
	toolsQueue    []toolsStep
	ChatCalls     []ChatCallRecord
	ToolsCalls    []ChatWithToolsRequest
}

type chatStep struct {
	resp ChatResponse
	err  error
}

type toolsStep struct {
	resp ChatWithToolsResponse
	err  error
}

// ChatCallRecord captures one Chat() invocation for assertions.
type ChatCallRecord struct {
	Messages []Message
	Opts     ChatOptions
}

// NewFake constructs an empty scriptable transport.
func NewFake() *Fake { return &Fake{} }

// QueueChat appends a scripted Chat() response.
func (f *Fake) QueueChat(resp ChatResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatQueue = append(f.chatQueue, chatStep{resp: resp, err: err})
}

// QueueTools appends a scripted ChatWithTools() response.
func (f *Fake) QueueTools(resp ChatWithToolsResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolsQueue = append(f.toolsQueue, toolsStep{resp: resp, err: err})
}

func (f *Fake) Chat(ctx context.Context, messages []Message, opts ChatOptions) (ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ChatCalls = append(f.ChatCalls, ChatCallRecord{Messages: messages, Opts: opts})
	if len(f.chatQueue) == 0 {
		return ChatResponse{}, nil
	}
	step := f.chatQueue[0]
	f.chatQueue = f.chatQueue[1:]
	return step.resp, step.err
}

func (f *Fake) ChatWithTools(ctx context.Context, req ChatWithToolsRequest) (ChatWithToolsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ToolsCalls = append(f.ToolsCalls, req)
	if len(f.toolsQueue) == 0 {
		return ChatWithToolsResponse{}, nil
	}
	step := f.toolsQueue[0]
	f.toolsQueue = f.toolsQueue[1:]
	return step.resp, step.err
}

var _ Transport = (*Fake)(nil)
