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

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travelbot/orchestrator/pkg/ledger"
	"github.com/travelbot/orchestrator/pkg/llms"
	"github.com/travelbot/orchestrator/pkg/metrics"
	"github.com/travelbot/orchestrator/pkg/session"
	"github.com/travelbot/orchestrator/pkg/tool"
	"github.com/travelbot/orchestrator/pkg/turn"
)

func newTestServer(t *testing.T, fake *llms.Fake) (*Server, *metrics.Metrics) {
	t.Helper()
	reg := tool.NewRegistry()
	m := metrics.New()
	deps := turn.Deps{
		Store:        session.NewMemory(session.DefaultConfig()),
		Registry:     reg,
		Transport:    fake,
		Shared:       ledger.NewShared(),
		LedgerTTLs:   ledger.DefaultTTLs(),
		TurnDeadline: 5 * time.Second,
		Metrics:      m,
	}
	return New(":0", deps, m, nil), m
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleChatRejectsEmptyMessage(t *testing.T) {
	s, _ := newTestServer(t, llms.NewFake())
	rec := postJSON(t, s, "/chat", chatRequest{Message: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatRejectsOversizedMessage(t *testing.T) {
	s, _ := newTestServer(t, llms.NewFake())
	huge := make([]byte, maxMessageLen+1)
	for i := range huge {
		huge[i] = 'a'
	}
	rec := postJSON(t, s, "/chat", chatRequest{Message: string(huge)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatReturnsReplyAndThreadID(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueChat(llms.ChatResponse{Content: `{"intent":"unknown","needExternal":false,"slots":{},"confidence":0.1}`}, nil)
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{Role: "assistant", Content: "Hi there."}}}}, nil)

	s, m := newTestServer(t, fake)
	rec := postJSON(t, s, "/chat", chatRequest{Message: "hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result turn.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.Reply)
	assert.NotEmpty(t, result.ThreadID)
	assert.Equal(t, float64(1), m.Snapshot().MessagesTotal)
}

func TestHandleMetricsReturnsJSONSnapshot(t *testing.T) {
	s, m := newTestServer(t, llms.NewFake())
	m.IncMessage()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, float64(1), snap.MessagesTotal)
}

func TestHandleHealthzReturnsOK(t *testing.T) {
	s, _ := newTestServer(t, llms.NewFake())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
}
