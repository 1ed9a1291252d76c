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

// Package slots is the typed view over the Session Store's slot map:
// normalization, placeholder resolution, temporal-reference detection,
// and consent-state clearing.
package slots

import "strings"

// Location precedence used to resolve placeholder tokens ("there",
// "here", "same place") against the most recent concrete location.
var locationPrecedence = []string{"city", "destinationCity", "country", "originCity", "region"}

var placeholderTokens = map[string]bool{
	"there":     true,
	"here":      true,
	"same place": true,
	"same":      true,
}

var temporalTokens = map[string]bool{
	"today":        true,
	"tonight":      true,
	"tomorrow":     true,
	"now":          true,
	"this week":    true,
	"this weekend": true,
	"this evening": true,
	"this morning": true,
	"next week":    true,
	"next month":   true,
}

// IsTemporalReference reports whether s (case-insensitively) is one of
// the small fixed set of relative-time expressions the router must
// never normalize into a concrete date.
func IsTemporalReference(s string) bool {
	return temporalTokens[strings.ToLower(strings.TrimSpace(s))]
}

// isPlaceholder reports whether s refers to "the place we were already
// talking about" rather than naming a location.
func isPlaceholder(s string) bool {
	return placeholderTokens[strings.ToLower(strings.TrimSpace(s))]
}

// LocationKeys and the other key groups below are used by the Router
// to perform a context-switch reset (§4.5) and by ClearConsentState.
var LocationKeys = []string{"city", "destinationCity", "originCity", "country", "region"}
var TimeKeys = []string{"month", "dates", "departureDate", "returnDate", "travelWindow", "season"}
var ProfileKeys = []string{"travelerProfile", "travelStyle", "groupType", "budgetLevel", "activityType"}

// ConsentKinds enumerates the consent kinds spec.md names.
var ConsentKinds = []string{"search", "web_search", "deep_research", "flight_clarification"}

// ConsentAndAuxKeys returns every awaiting_/pending_ consent key plus
// the aux (complexity_*) and clarification keys, for every kind in
// ConsentKinds.
func ConsentAndAuxKeys() []string {
	keys := []string{"clarification_options", "clarification_reasoning", "complexity_score", "complexity_reasoning"}
	for _, kind := range ConsentKinds {
		keys = append(keys, "awaiting_"+kind+"_consent", "pending_"+kind+"_query")
	}
	return keys
}

// Map is a local alias kept distinct from session.SlotMap so this
// package has no import-time dependency on the session package;
// callers convert at the boundary (they're both map[string]string).
type Map map[string]string

// Normalize applies the §4.2 normalizeSlots rules: drops empty
// strings, for intent "flights" preserves prior origin/destination
// unless explicitly overwritten by incoming, and resolves placeholder
// location tokens against the most recent concrete location using the
// fixed precedence city > destinationCity > country > originCity >
// region.
func Normalize(prev, incoming Map, intent string) Map {
	out := Map{}
	for k, v := range prev {
		if v != "" {
			out[k] = v
		}
	}

	mostRecentLocation := ""
	for _, k := range locationPrecedence {
		if v, ok := out[k]; ok && v != "" {
			mostRecentLocation = v
			break
		}
	}

	for k, v := range incoming {
		if v == "" {
			continue
		}
		if isPlaceholder(v) {
			if mostRecentLocation != "" && isLocationKey(k) {
				out[k] = mostRecentLocation
			}
			continue // placeholder tokens are never stored verbatim
		}
		if intent == "flights" && isOriginOrDestination(k) {
			// Preserve prior value unless incoming explicitly overwrites
			// it (which it does here, since v != "").
			out[k] = v
			continue
		}
		out[k] = v
	}

	return out
}

// PrimaryLocation returns the most specific concrete location present
// in m, using the same city > destinationCity > country > originCity
// > region precedence Normalize resolves placeholders against. Returns
// "" if m has no location slot set.
func PrimaryLocation(m Map) string {
	for _, k := range locationPrecedence {
		if v, ok := m[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

func isLocationKey(k string) bool {
	for _, lk := range LocationKeys {
		if lk == k {
			return true
		}
	}
	return false
}

func isOriginOrDestination(k string) bool {
	return k == "originCity" || k == "destinationCity"
}

// ClearConsentState deletes every awaiting_*_consent, pending_*_query,
// complexity_*, and clarification key, leaving other slots untouched.
// Callers pass the result to session.Store.SetSlots as the del list.
func ClearConsentState() []string {
	return ConsentAndAuxKeys()
}

// ResetKeys returns every location, time, and profile key plus the
// consent/aux keys — the full set dropped on a detected context
// switch (§4.5).
func ResetKeys() []string {
	keys := append([]string{}, LocationKeys...)
	keys = append(keys, TimeKeys...)
	keys = append(keys, ProfileKeys...)
	keys = append(keys, ConsentAndAuxKeys()...)
	return keys
}

// StaleGuardKeys returns the time and profile keys dropped when no
// fresh time/profile signal exists in the new turn and no context
// switch was detected (the "otherwise" branch of §4.5).
func StaleGuardKeys() []string {
	keys := append([]string{}, TimeKeys...)
	keys = append(keys, ProfileKeys...)
	return keys
}
