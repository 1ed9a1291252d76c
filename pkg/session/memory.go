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

package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// thread is the per-thread state held by Memory. A thread-scoped mutex
// serializes the individual Store operations on it; whole turns are not
// serialized, so two concurrent requests for the same threadId can
// interleave their reads and writes.
type thread struct {
	mu       sync.Mutex
	msgs     []Message
	slots    SlotMap
	kv       map[string]json.RawMessage
	expireAt time.Time
}

func (t *thread) expired(now time.Time) bool {
	return !t.expireAt.IsZero() && now.After(t.expireAt)
}

// Memory is the in-process Session Store backend.
type Memory struct {
	cfg     Config
	mu      sync.Mutex // protects the threads map itself, not individual threads
	threads map[string]*thread
}

// NewMemory constructs an in-process Session Store.
func NewMemory(cfg Config) *Memory {
	return &Memory{cfg: cfg, threads: make(map[string]*thread)}
}

func (m *Memory) getOrCreate(id string) *thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	now := time.Now()
	if ok && t.expired(now) {
		delete(m.threads, id)
		ok = false
	}
	if !ok {
		t = &thread{slots: SlotMap{}, kv: map[string]json.RawMessage{}}
		m.threads[id] = t
	}
	return t
}

func (m *Memory) touch(t *thread, ttl time.Duration) {
	t.expireAt = time.Now().Add(m.cfg.ttlOr(ttl))
}

func (m *Memory) GetMsgs(ctx context.Context, threadID string, limit int) ([]Message, error) {
	t := m.getOrCreate(threadID)
	t.mu.Lock()
	defer t.mu.Unlock()
	m.touch(t, 0)

	n := len(t.msgs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Message, n)
	copy(out, t.msgs[len(t.msgs)-n:])
	return out, nil
}

func (m *Memory) AppendMsg(ctx context.Context, threadID string, msg Message, capN int) error {
	t := m.getOrCreate(threadID)
	t.mu.Lock()
	defer t.mu.Unlock()

	t.msgs = append(t.msgs, msg)
	cap := m.cfg.capOr(capN)
	if len(t.msgs) > cap {
		t.msgs = t.msgs[len(t.msgs)-cap:]
	}
	m.touch(t, 0)
	return nil
}

func (m *Memory) GetSlots(ctx context.Context, threadID string) (SlotMap, error) {
	t := m.getOrCreate(threadID)
	t.mu.Lock()
	defer t.mu.Unlock()
	m.touch(t, 0)
	return t.slots.Clone(), nil
}

func (m *Memory) SetSlots(ctx context.Context, threadID string, put SlotMap, del []string) error {
	t := m.getOrCreate(threadID)
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.slots == nil {
		t.slots = SlotMap{}
	}
	for k, v := range put {
		if v == "" {
			delete(t.slots, k)
			continue
		}
		t.slots[k] = v
	}
	for _, k := range del {
		delete(t.slots, k)
	}
	m.touch(t, 0)
	return nil
}

func (m *Memory) GetJSON(ctx context.Context, threadID, kind string, out any) (bool, error) {
	t := m.getOrCreate(threadID)
	t.mu.Lock()
	defer t.mu.Unlock()
	m.touch(t, 0)

	raw, ok := t.kv[kind]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memory) SetJSON(ctx context.Context, threadID, kind string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	t := m.getOrCreate(threadID)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.kv == nil {
		t.kv = map[string]json.RawMessage{}
	}
	t.kv[kind] = raw
	m.touch(t, 0)
	return nil
}

func (m *Memory) Expire(ctx context.Context, threadID string, ttl time.Duration) error {
	t := m.getOrCreate(threadID)
	t.mu.Lock()
	defer t.mu.Unlock()
	m.touch(t, ttl)
	return nil
}

func (m *Memory) Clear(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, threadID)
	return nil
}

var _ Store = (*Memory)(nil)
