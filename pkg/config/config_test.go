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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsMatchSpecLiterals(t *testing.T) {
	d := Defaults()

	assert.Equal(t, 300*time.Second, d.LedgerSuccessTTL)
	assert.Equal(t, 900*time.Second, d.LedgerHTTPBlockTTL)
	assert.Equal(t, 300*time.Second, d.LedgerValidationTTL)
	assert.Equal(t, 120*time.Second, d.LedgerOtherTTL)
	assert.Equal(t, 20*time.Second, d.TurnTimeout)
	assert.Equal(t, 3*time.Second, d.ClassifierTimeout)
	assert.True(t, d.DeepResearchEnabled)
	assert.Equal(t, "memory", d.SessionKind)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TURN_TIMEOUT_MS", "5000")
	t.Setenv("LEDGER_SUCCESS_TTL_MS", "60000")
	t.Setenv("DEEP_RESEARCH_ENABLED", "false")
	t.Setenv("SESSION_TTL_SEC", "120")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.TurnTimeout)
	assert.Equal(t, 60*time.Second, cfg.LedgerSuccessTTL)
	assert.False(t, cfg.DeepResearchEnabled)
	assert.Equal(t, 120*time.Second, cfg.SessionTTL)
}

func TestLoadAppliesPerToolTimeoutOverrides(t *testing.T) {
	t.Setenv("TOOL_TIMEOUT_MS_WEATHER", "2500")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2500*time.Millisecond, cfg.ToolTimeouts["WEATHER"])
}

func TestLoadAppliesYAMLFileBeforeEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := "port: 7070\nlogLevel: warn\nturnTimeout: 15s\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	t.Setenv("LOG_LEVEL", "error")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.TurnTimeout)
	// Env still wins over the YAML file.
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoadMissingYAMLFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Port, cfg.Port)
}
