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

// Package config loads the §6.7 environment variables (plus an
// optional YAML override file) into a typed Config, following the
// teacher's own config package: .env-file loading via godotenv, weak-
// typed decoding via mapstructure.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the fully-resolved runtime configuration.
type Config struct {
	Port     int    `yaml:"port" mapstructure:"port"`
	LogLevel string `yaml:"logLevel" mapstructure:"logLevel"`

	SessionKind       string        `yaml:"sessionKind" mapstructure:"sessionKind"`
	SessionTTL        time.Duration `yaml:"sessionTtl" mapstructure:"sessionTtl"`
	SessionTimeout    time.Duration `yaml:"sessionTimeout" mapstructure:"sessionTimeout"`
	SessionRemoteURL  string        `yaml:"sessionRemoteUrl" mapstructure:"sessionRemoteUrl"`

	LedgerSuccessTTL    time.Duration `yaml:"ledgerSuccessTtl" mapstructure:"ledgerSuccessTtl"`
	LedgerHTTPBlockTTL  time.Duration `yaml:"ledgerHttpBlockTtl" mapstructure:"ledgerHttpBlockTtl"`
	LedgerValidationTTL time.Duration `yaml:"ledgerValidationTtl" mapstructure:"ledgerValidationTtl"`
	LedgerOtherTTL      time.Duration `yaml:"ledgerOtherTtl" mapstructure:"ledgerOtherTtl"`

	TurnTimeout time.Duration `yaml:"turnTimeout" mapstructure:"turnTimeout"`

	DeepResearchEnabled bool          `yaml:"deepResearchEnabled" mapstructure:"deepResearchEnabled"`
	ClassifierTimeout   time.Duration `yaml:"classifierTimeout" mapstructure:"classifierTimeout"`

	// ToolTimeouts holds per-tool timeout overrides; an env var of the
	// form TOOL_TIMEOUT_MS_<TOOLNAME> is stored under the part of its
	// name after that prefix, as written (e.g. "WEATHER"). Tool
	// registration does not read this map: every tool runs under its
	// own DefaultTimeout.
	ToolTimeouts map[string]time.Duration `yaml:"toolTimeouts" mapstructure:"toolTimeouts"`

	OpenAIBaseURL string `yaml:"openaiBaseUrl" mapstructure:"openaiBaseUrl"`
	OpenAIAPIKey  string `yaml:"openaiApiKey" mapstructure:"openaiApiKey"`
	OpenAIModel   string `yaml:"openaiModel" mapstructure:"openaiModel"`

	AmadeusBaseURL string `yaml:"amadeusBaseUrl" mapstructure:"amadeusBaseUrl"`
	AmadeusClientID string `yaml:"amadeusClientId" mapstructure:"amadeusClientId"`
	AmadeusSecret   string `yaml:"amadeusSecret" mapstructure:"amadeusSecret"`

	SearchAPIURL string `yaml:"searchApiUrl" mapstructure:"searchApiUrl"`
	SearchAPIKey string `yaml:"searchApiKey" mapstructure:"searchApiKey"`

	PolicyKBPath       string `yaml:"policyKbPath" mapstructure:"policyKbPath"`
	PolicyKBCollection string `yaml:"policyKbCollection" mapstructure:"policyKbCollection"`
}

// Defaults matches spec.md §6.7's literal defaults.
func Defaults() Config {
	return Config{
		Port:     8080,
		LogLevel: "info",

		SessionKind:    "memory",
		SessionTTL:     3600 * time.Second,
		SessionTimeout: 1500 * time.Millisecond,

		LedgerSuccessTTL:    300 * time.Second,
		LedgerHTTPBlockTTL:  900 * time.Second,
		LedgerValidationTTL: 300 * time.Second,
		LedgerOtherTTL:      120 * time.Second,

		TurnTimeout: 20 * time.Second,

		DeepResearchEnabled: true,
		ClassifierTimeout:   3 * time.Second,

		ToolTimeouts: map[string]time.Duration{},

		OpenAIBaseURL: "https://api.openai.com/v1",
		OpenAIModel:   "gpt-4o-mini",

		AmadeusBaseURL: "https://test.api.amadeus.com",

		PolicyKBCollection: "policy",
	}
}

// Load builds a Config by layering, lowest precedence first: built-in
// defaults, an optional YAML override file, then environment
// variables (§6.7) — matching the teacher's own layering of
// defaults → file → env/flag overrides.
func Load(yamlPath string) (Config, error) {
	if err := loadEnvFiles(); err != nil {
		return Config{}, err
	}

	cfg := Defaults()

	if yamlPath != "" {
		if err := applyYAMLFile(&cfg, yamlPath); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// loadEnvFiles loads .env.local then .env into the process
// environment, ignoring a missing file (mirrors the teacher's
// LoadEnvFiles).
func loadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("config: load %s: %w", file, err)
		}
	}
	return nil
}

func applyYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("config: build decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v, ok := envString("PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v, ok := envString("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}

	if v, ok := envString("SESSION_KIND"); ok {
		cfg.SessionKind = v
	}
	if v, ok := envDurationSeconds("SESSION_TTL_SEC"); ok {
		cfg.SessionTTL = v
	}
	if v, ok := envDurationMillis("SESSION_TIMEOUT_MS"); ok {
		cfg.SessionTimeout = v
	}
	if v, ok := envString("SESSION_REMOTE_URL"); ok {
		cfg.SessionRemoteURL = v
	}

	if v, ok := envDurationMillis("LEDGER_SUCCESS_TTL_MS"); ok {
		cfg.LedgerSuccessTTL = v
	}
	if v, ok := envDurationMillis("LEDGER_HTTP_BLOCK_TTL_MS"); ok {
		cfg.LedgerHTTPBlockTTL = v
	}
	if v, ok := envDurationMillis("LEDGER_ZOD_FAIL_TTL_MS"); ok {
		cfg.LedgerValidationTTL = v
	}
	if v, ok := envDurationMillis("LEDGER_FAIL_TTL_MS"); ok {
		cfg.LedgerOtherTTL = v
	}

	if v, ok := envDurationMillis("TURN_TIMEOUT_MS"); ok {
		cfg.TurnTimeout = v
	}
	if v, ok := envBool("DEEP_RESEARCH_ENABLED"); ok {
		cfg.DeepResearchEnabled = v
	}
	if v, ok := envDurationMillis("CLASSIFIER_TIMEOUT_MS"); ok {
		cfg.ClassifierTimeout = v
	}

	if v, ok := envString("OPENAI_BASE_URL"); ok {
		cfg.OpenAIBaseURL = v
	}
	if v, ok := envString("OPENAI_API_KEY"); ok {
		cfg.OpenAIAPIKey = v
	}
	if v, ok := envString("OPENAI_MODEL"); ok {
		cfg.OpenAIModel = v
	}

	if v, ok := envString("AMADEUS_BASE_URL"); ok {
		cfg.AmadeusBaseURL = v
	}
	if v, ok := envString("AMADEUS_CLIENT_ID"); ok {
		cfg.AmadeusClientID = v
	}
	if v, ok := envString("AMADEUS_CLIENT_SECRET"); ok {
		cfg.AmadeusSecret = v
	}

	if v, ok := envString("SEARCH_API_URL"); ok {
		cfg.SearchAPIURL = v
	}
	if v, ok := envString("SEARCH_API_KEY"); ok {
		cfg.SearchAPIKey = v
	}

	if v, ok := envString("POLICY_KB_PATH"); ok {
		cfg.PolicyKBPath = v
	}
	if v, ok := envString("POLICY_KB_COLLECTION"); ok {
		cfg.PolicyKBCollection = v
	}

	applyToolTimeoutOverrides(cfg)
}

// toolTimeoutEnvPrefix matches spec's "per-tool timeout overrides":
// TOOL_TIMEOUT_MS_<TOOLNAME_UPPER_SNAKE>.
const toolTimeoutEnvPrefix = "TOOL_TIMEOUT_MS_"

func applyToolTimeoutOverrides(cfg *Config) {
	for _, kv := range os.Environ() {
		name, value, found := splitEnvPair(kv)
		if !found || len(name) <= len(toolTimeoutEnvPrefix) || name[:len(toolTimeoutEnvPrefix)] != toolTimeoutEnvPrefix {
			continue
		}
		ms, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		toolName := name[len(toolTimeoutEnvPrefix):]
		if cfg.ToolTimeouts == nil {
			cfg.ToolTimeouts = map[string]time.Duration{}
		}
		cfg.ToolTimeouts[toolName] = time.Duration(ms) * time.Millisecond
	}
}

func splitEnvPair(kv string) (name, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

func envString(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func envBool(key string) (bool, bool) {
	v, ok := envString(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func envDurationMillis(key string) (time.Duration, bool) {
	v, ok := envString(key)
	if !ok {
		return 0, false
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

func envDurationSeconds(key string) (time.Duration, bool) {
	v, ok := envString(key)
	if !ok {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
