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
	"fmt"
	"strings"
)

// Kind selects a Session Store backend, per spec §6.5.
type Kind string

const (
	KindMemory Kind = "memory"
	KindRemote Kind = "remote"
)

// RemoteConfig describes how to reach a remote KV backend. URL scheme
// selects the concrete implementation:
//
//	etcd://host:2379,host2:2379
//	postgres://...   mysql://...   sqlite:///path/to/file.db
type RemoteConfig struct {
	URL string
}

// New constructs a Store for the given kind. For KindRemote, remote.URL
// selects the concrete backend by scheme.
func New(kind Kind, remote RemoteConfig, cfg Config) (Store, error) {
	switch kind {
	case "", KindMemory:
		return NewMemory(cfg), nil
	case KindRemote:
		return newRemote(remote, cfg)
	default:
		return nil, fmt.Errorf("session: unknown kind %q", kind)
	}
}

func newRemote(remote RemoteConfig, cfg Config) (Store, error) {
	url := remote.URL
	switch {
	case strings.HasPrefix(url, "etcd://"):
		return OpenEtcd(parseEtcdEndpoints(url), cfg)
	case strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://"):
		return OpenSQL("postgres", url, cfg)
	case strings.HasPrefix(url, "mysql://"):
		return OpenSQL("mysql", strings.TrimPrefix(url, "mysql://"), cfg)
	case strings.HasPrefix(url, "sqlite://"):
		return OpenSQL("sqlite", strings.TrimPrefix(url, "sqlite://"), cfg)
	default:
		return nil, fmt.Errorf("session: remote URL %q has no recognized scheme (etcd://, postgres://, mysql://, sqlite://)", url)
	}
}
