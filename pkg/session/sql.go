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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// Database drivers, selected by dialect at Open time.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQL implements Store over database/sql, supporting postgres, mysql,
// and sqlite via blank-imported drivers, mirroring the dialect-switch
// pattern used for the teacher's session storage layer.
type SQL struct {
	db      *sql.DB
	dialect string
	cfg     Config
}

const createThreadsTableSQL = `
CREATE TABLE IF NOT EXISTS chat_threads (
    thread_id   VARCHAR(64) PRIMARY KEY,
    slots_json  TEXT NOT NULL DEFAULT '{}',
    expires_at  TIMESTAMP NOT NULL
);
`

const createMessagesTableSQL = `
CREATE TABLE IF NOT EXISTS chat_messages (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    thread_id     VARCHAR(64) NOT NULL,
    seq           INTEGER NOT NULL,
    role          VARCHAR(16) NOT NULL,
    content       TEXT NOT NULL,
    name          VARCHAR(128),
    tool_call_id  VARCHAR(128)
);
`

const createMessagesTablePostgres = `
CREATE TABLE IF NOT EXISTS chat_messages (
    id            SERIAL PRIMARY KEY,
    thread_id     VARCHAR(64) NOT NULL,
    seq           INTEGER NOT NULL,
    role          VARCHAR(16) NOT NULL,
    content       TEXT NOT NULL,
    name          VARCHAR(128),
    tool_call_id  VARCHAR(128)
);
`

const createKVTableSQL = `
CREATE TABLE IF NOT EXISTS chat_kv (
    thread_id  VARCHAR(64) NOT NULL,
    kind       VARCHAR(64) NOT NULL,
    value_json TEXT NOT NULL,
    PRIMARY KEY (thread_id, kind)
);
`

// OpenSQL opens (and pings) a database/sql connection for dialect
// ("postgres", "mysql", or "sqlite") and wraps it as a Store.
func OpenSQL(dialect, dsn string, cfg Config) (*SQL, error) {
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("session: unsupported sql dialect %q", dialect)
	}

	driverName := dialect
	if dialect == "sqlite" {
		driverName = "sqlite3"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", dialect, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: ping %s: %w", dialect, err)
	}

	s := &SQL{db: db, dialect: dialect, cfg: cfg}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQL) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	messagesSQL := createMessagesTableSQL
	if s.dialect == "postgres" {
		messagesSQL = createMessagesTablePostgres
	}

	for _, stmt := range []string{createThreadsTableSQL, messagesSQL, createKVTableSQL} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("session: init schema: %w", err)
		}
	}
	return nil
}

// ph returns the i'th (1-based) bind placeholder for the
// configured dialect.
func (s *SQL) ph(i int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func (s *SQL) ensureThread(ctx context.Context, tx *sql.Tx, threadID string, ttl time.Duration) error {
	expiresAt := time.Now().Add(s.cfg.ttlOr(ttl))
	var q string
	switch s.dialect {
	case "postgres":
		q = `INSERT INTO chat_threads (thread_id, slots_json, expires_at) VALUES ($1, '{}', $2)
		     ON CONFLICT (thread_id) DO UPDATE SET expires_at = EXCLUDED.expires_at`
	case "mysql":
		q = `INSERT INTO chat_threads (thread_id, slots_json, expires_at) VALUES (?, '{}', ?)
		     ON DUPLICATE KEY UPDATE expires_at = VALUES(expires_at)`
	default: // sqlite
		q = `INSERT INTO chat_threads (thread_id, slots_json, expires_at) VALUES (?, '{}', ?)
		     ON CONFLICT(thread_id) DO UPDATE SET expires_at = excluded.expires_at`
	}
	_, err := tx.ExecContext(ctx, q, threadID, expiresAt)
	return err
}

func (s *SQL) touch(ctx context.Context, threadID string, ttl time.Duration) error {
	q := fmt.Sprintf(`UPDATE chat_threads SET expires_at = %s WHERE thread_id = %s`, s.ph(1), s.ph(2))
	_, err := s.db.ExecContext(ctx, q, time.Now().Add(s.cfg.ttlOr(ttl)), threadID)
	return err
}

func (s *SQL) GetMsgs(ctx context.Context, threadID string, limit int) ([]Message, error) {
	ctx, cancel := withOpTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	capN := s.cfg.capOr(limit)
	q := fmt.Sprintf(`SELECT role, content, name, tool_call_id FROM (
		SELECT role, content, name, tool_call_id, seq FROM chat_messages
		WHERE thread_id = %s ORDER BY seq DESC LIMIT %s
	) sub ORDER BY seq ASC`, s.ph(1), s.ph(2))

	rows, err := s.db.QueryContext(ctx, q, threadID, capN)
	if err != nil {
		return nil, fmt.Errorf("session: get msgs: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var name, toolCallID sql.NullString
		if err := rows.Scan(&m.Role, &m.Content, &name, &toolCallID); err != nil {
			return nil, err
		}
		m.Name = name.String
		m.ToolCallID = toolCallID.String
		out = append(out, m)
	}
	if err := s.touch(ctx, threadID, 0); err != nil {
		return out, err
	}
	return out, rows.Err()
}

func (s *SQL) AppendMsg(ctx context.Context, threadID string, msg Message, capN int) error {
	ctx, cancel := withOpTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: append msg: %w", err)
	}
	defer tx.Rollback()

	if err := s.ensureThread(ctx, tx, threadID, 0); err != nil {
		return fmt.Errorf("session: ensure thread: %w", err)
	}

	var seq int64
	seqQ := fmt.Sprintf(`SELECT COALESCE(MAX(seq),0)+1 FROM chat_messages WHERE thread_id = %s`, s.ph(1))
	if err := tx.QueryRowContext(ctx, seqQ, threadID).Scan(&seq); err != nil {
		return fmt.Errorf("session: next seq: %w", err)
	}

	insQ := fmt.Sprintf(`INSERT INTO chat_messages (thread_id, seq, role, content, name, tool_call_id)
		VALUES (%s, %s, %s, %s, %s, %s)`, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6))
	if _, err := tx.ExecContext(ctx, insQ, threadID, seq, string(msg.Role), msg.Content, msg.Name, msg.ToolCallID); err != nil {
		return fmt.Errorf("session: insert msg: %w", err)
	}

	cap := s.cfg.capOr(capN)
	delQ := fmt.Sprintf(`DELETE FROM chat_messages WHERE thread_id = %s AND seq <= (
		SELECT COALESCE(MAX(seq),0) - %s FROM chat_messages WHERE thread_id = %s
	)`, s.ph(1), s.ph(2), s.ph(3))
	if _, err := tx.ExecContext(ctx, delQ, threadID, cap, threadID); err != nil {
		return fmt.Errorf("session: trim msgs: %w", err)
	}

	return tx.Commit()
}

func (s *SQL) GetSlots(ctx context.Context, threadID string) (SlotMap, error) {
	ctx, cancel := withOpTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	q := fmt.Sprintf(`SELECT slots_json FROM chat_threads WHERE thread_id = %s`, s.ph(1))
	var raw string
	err := s.db.QueryRowContext(ctx, q, threadID).Scan(&raw)
	if err == sql.ErrNoRows {
		return SlotMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: get slots: %w", err)
	}
	if err := s.touch(ctx, threadID, 0); err != nil {
		return nil, err
	}

	slots := SlotMap{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &slots); err != nil {
			return nil, fmt.Errorf("session: decode slots: %w", err)
		}
	}
	return slots, nil
}

func (s *SQL) SetSlots(ctx context.Context, threadID string, put SlotMap, del []string) error {
	ctx, cancel := withOpTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: set slots: %w", err)
	}
	defer tx.Rollback()

	if err := s.ensureThread(ctx, tx, threadID, 0); err != nil {
		return err
	}

	q := fmt.Sprintf(`SELECT slots_json FROM chat_threads WHERE thread_id = %s`, s.ph(1))
	var raw string
	if err := tx.QueryRowContext(ctx, q, threadID).Scan(&raw); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("session: read slots: %w", err)
	}
	slots := SlotMap{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &slots)
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
	updQ := fmt.Sprintf(`UPDATE chat_threads SET slots_json = %s WHERE thread_id = %s`, s.ph(1), s.ph(2))
	if _, err := tx.ExecContext(ctx, updQ, string(encoded), threadID); err != nil {
		return fmt.Errorf("session: write slots: %w", err)
	}
	return tx.Commit()
}

func (s *SQL) GetJSON(ctx context.Context, threadID, kind string, out any) (bool, error) {
	ctx, cancel := withOpTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	q := fmt.Sprintf(`SELECT value_json FROM chat_kv WHERE thread_id = %s AND kind = %s`, s.ph(1), s.ph(2))
	var raw string
	err := s.db.QueryRowContext(ctx, q, threadID, kind).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session: get json: %w", err)
	}
	if err := s.touch(ctx, threadID, 0); err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQL) SetJSON(ctx context.Context, threadID, kind string, value any) error {
	ctx, cancel := withOpTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.ensureThread(ctx, tx, threadID, 0); err != nil {
		return err
	}

	var q string
	switch s.dialect {
	case "postgres":
		q = `INSERT INTO chat_kv (thread_id, kind, value_json) VALUES ($1, $2, $3)
		     ON CONFLICT (thread_id, kind) DO UPDATE SET value_json = EXCLUDED.value_json`
	case "mysql":
		q = `INSERT INTO chat_kv (thread_id, kind, value_json) VALUES (?, ?, ?)
		     ON DUPLICATE KEY UPDATE value_json = VALUES(value_json)`
	default:
		q = `INSERT INTO chat_kv (thread_id, kind, value_json) VALUES (?, ?, ?)
		     ON CONFLICT(thread_id, kind) DO UPDATE SET value_json = excluded.value_json`
	}
	if _, err := tx.ExecContext(ctx, q, threadID, kind, string(encoded)); err != nil {
		return fmt.Errorf("session: set json: %w", err)
	}
	return tx.Commit()
}

func (s *SQL) Expire(ctx context.Context, threadID string, ttl time.Duration) error {
	ctx, cancel := withOpTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	return s.touch(ctx, threadID, ttl)
}

func (s *SQL) Clear(ctx context.Context, threadID string) error {
	ctx, cancel := withOpTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	for _, q := range []string{
		fmt.Sprintf(`DELETE FROM chat_messages WHERE thread_id = %s`, s.ph(1)),
		fmt.Sprintf(`DELETE FROM chat_kv WHERE thread_id = %s`, s.ph(1)),
		fmt.Sprintf(`DELETE FROM chat_threads WHERE thread_id = %s`, s.ph(1)),
	} {
		if _, err := s.db.ExecContext(ctx, q, threadID); err != nil {
			return fmt.Errorf("session: clear: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database connection.
func (s *SQL) Close() error { return s.db.Close() }

var _ Store = (*SQL)(nil)
