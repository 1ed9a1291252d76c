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
	"fmt"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Etcd implements Store against an etcd cluster. All keys for a thread
// share one lease so that a read or write on any of them refreshes the
// TTL for the whole thread at once, matching spec §6.6.
type Etcd struct {
	cli *clientv3.Client
	cfg Config

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID
}

// OpenEtcd dials an etcd cluster reachable at the given endpoints.
func OpenEtcd(endpoints []string, cfg Config) (*Etcd, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("session: dial etcd: %w", err)
	}
	return &Etcd{cli: cli, cfg: cfg, leases: make(map[string]clientv3.LeaseID)}, nil
}

func msgsKey(threadID string) string { return fmt.Sprintf("chat:%s:msgs", threadID) }
func slotsKey(threadID string) string { return fmt.Sprintf("chat:%s:slots", threadID) }
func kvKey(threadID, kind string) string { return fmt.Sprintf("chat:%s:kv:%s", threadID, kind) }
func kvPrefix(threadID string) string { return fmt.Sprintf("chat:%s:kv:", threadID) }

// leaseFor returns the thread's shared lease, renewing it if it already
// exists or minting a fresh one (with the configured TTL) otherwise.
func (e *Etcd) leaseFor(ctx context.Context, threadID string, ttl time.Duration) (clientv3.LeaseID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id, ok := e.leases[threadID]; ok {
		if _, err := e.cli.KeepAliveOnce(ctx, id); err == nil {
			return id, nil
		}
		// Lease expired or invalid server-side; fall through and re-mint.
		delete(e.leases, threadID)
	}

	seconds := int64(e.cfg.ttlOr(ttl) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	lease, err := e.cli.Grant(ctx, seconds)
	if err != nil {
		return 0, fmt.Errorf("session: grant lease: %w", err)
	}
	e.leases[threadID] = lease.ID
	return lease.ID, nil
}

func (e *Etcd) GetMsgs(ctx context.Context, threadID string, limit int) ([]Message, error) {
	ctx, cancel := withOpTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	if _, err := e.leaseFor(ctx, threadID, 0); err != nil {
		return nil, err
	}

	resp, err := e.cli.Get(ctx, msgsKey(threadID))
	if err != nil {
		return nil, fmt.Errorf("session: get msgs: %w", err)
	}
	var all []Message
	if len(resp.Kvs) > 0 {
		if err := json.Unmarshal(resp.Kvs[0].Value, &all); err != nil {
			return nil, fmt.Errorf("session: decode msgs: %w", err)
		}
	}
	n := len(all)
	if limit > 0 && limit < n {
		n = limit
	}
	return all[len(all)-n:], nil
}

func (e *Etcd) AppendMsg(ctx context.Context, threadID string, msg Message, capN int) error {
	ctx, cancel := withOpTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	leaseID, err := e.leaseFor(ctx, threadID, 0)
	if err != nil {
		return err
	}

	key := msgsKey(threadID)
	resp, err := e.cli.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("session: read msgs: %w", err)
	}
	var all []Message
	if len(resp.Kvs) > 0 {
		_ = json.Unmarshal(resp.Kvs[0].Value, &all)
	}
	all = append(all, msg)
	if cap := e.cfg.capOr(capN); len(all) > cap {
		all = all[len(all)-cap:]
	}
	encoded, err := json.Marshal(all)
	if err != nil {
		return err
	}
	_, err = e.cli.Put(ctx, key, string(encoded), clientv3.WithLease(leaseID))
	if err != nil {
		return fmt.Errorf("session: put msgs: %w", err)
	}
	return nil
}

func (e *Etcd) GetSlots(ctx context.Context, threadID string) (SlotMap, error) {
	ctx, cancel := withOpTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	if _, err := e.leaseFor(ctx, threadID, 0); err != nil {
		return nil, err
	}
	resp, err := e.cli.Get(ctx, slotsKey(threadID))
	if err != nil {
		return nil, fmt.Errorf("session: get slots: %w", err)
	}
	slots := SlotMap{}
	if len(resp.Kvs) > 0 {
		if err := json.Unmarshal(resp.Kvs[0].Value, &slots); err != nil {
			return nil, fmt.Errorf("session: decode slots: %w", err)
		}
	}
	return slots, nil
}

func (e *Etcd) SetSlots(ctx context.Context, threadID string, put SlotMap, del []string) error {
	ctx, cancel := withOpTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	leaseID, err := e.leaseFor(ctx, threadID, 0)
	if err != nil {
		return err
	}

	key := slotsKey(threadID)
	resp, err := e.cli.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("session: read slots: %w", err)
	}
	slots := SlotMap{}
	if len(resp.Kvs) > 0 {
		_ = json.Unmarshal(resp.Kvs[0].Value, &slots)
	}
	for k, v := range put {
		if v == "" {
			delete(slots, k)
			continue
		}
		slots[k] = v
	}
	for _, k := range del {
		delete(slots, k)
	}
	encoded, err := json.Marshal(slots)
	if err != nil {
		return err
	}
	if _, err := e.cli.Put(ctx, key, string(encoded), clientv3.WithLease(leaseID)); err != nil {
		return fmt.Errorf("session: put slots: %w", err)
	}
	return nil
}

func (e *Etcd) GetJSON(ctx context.Context, threadID, kind string, out any) (bool, error) {
	ctx, cancel := withOpTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	if _, err := e.leaseFor(ctx, threadID, 0); err != nil {
		return false, err
	}
	resp, err := e.cli.Get(ctx, kvKey(threadID, kind))
	if err != nil {
		return false, fmt.Errorf("session: get json: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(resp.Kvs[0].Value, out); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Etcd) SetJSON(ctx context.Context, threadID, kind string, value any) error {
	ctx, cancel := withOpTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	leaseID, err := e.leaseFor(ctx, threadID, 0)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if _, err := e.cli.Put(ctx, kvKey(threadID, kind), string(encoded), clientv3.WithLease(leaseID)); err != nil {
		return fmt.Errorf("session: put json: %w", err)
	}
	return nil
}

func (e *Etcd) Expire(ctx context.Context, threadID string, ttl time.Duration) error {
	ctx, cancel := withOpTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	e.mu.Lock()
	delete(e.leases, threadID) // force a fresh Grant at the requested ttl
	e.mu.Unlock()

	_, err := e.leaseFor(ctx, threadID, ttl)
	return err
}

func (e *Etcd) Clear(ctx context.Context, threadID string) error {
	ctx, cancel := withOpTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	e.mu.Lock()
	leaseID, ok := e.leases[threadID]
	delete(e.leases, threadID)
	e.mu.Unlock()

	if ok {
		if _, err := e.cli.Revoke(ctx, leaseID); err != nil {
			return fmt.Errorf("session: revoke lease: %w", err)
		}
		return nil
	}

	// No cached lease (process restarted); fall back to an explicit
	// prefix delete of everything under the thread's key namespace.
	_, err := e.cli.Delete(ctx, fmt.Sprintf("chat:%s:", threadID), clientv3.WithPrefix())
	return err
}

// Close releases the underlying etcd client.
func (e *Etcd) Close() error { return e.cli.Close() }

var _ Store = (*Etcd)(nil)

// parseEtcdEndpoints splits a comma-separated endpoint list, as used
// by SESSION_REMOTE_URL when its scheme is etcd://.
func parseEtcdEndpoints(raw string) []string {
	raw = strings.TrimPrefix(raw, "etcd://")
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
