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

package tools

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/travelbot/orchestrator/pkg/tool"
)

// PNRParseArgs is the pnrParse tool's argument struct: raw booking
// record text pasted by the traveler.
type PNRParseArgs struct {
	Raw string `json:"raw" jsonschema:"required,description=Raw PNR or itinerary text to parse"`
}

var (
	recordLocatorRE = regexp.MustCompile(`(?i)\b(?:record locator|confirmation|pnr)[^A-Za-z0-9]{0,5}([A-Z0-9]{5,7})\b`)
	flightSegmentRE = regexp.MustCompile(`(?i)\b([A-Z]{2})\s?(\d{1,4})\b.{0,20}?([A-Z]{3})\s*[-–>]\s*([A-Z]{3})`)
)

// NewPNRParseTool builds the "pnrParse" tool: a regex-driven extractor
// pulling a record locator and flight segments (carrier, flight
// number, origin, destination) out of free-form booking text, with no
// external dependency since this is pure text processing local to the
// traveler's own input.
func NewPNRParseTool() (tool.Spec, error) {
	return tool.New(tool.Config{
		Name:           tool.NamePNRParse,
		Description:    "Parses a pasted PNR or itinerary confirmation into record locator and flight segments.",
		DefaultTimeout: 3 * time.Second,
	}, func(tc tool.Context, args PNRParseArgs) (tool.Result, error) {
		if strings.TrimSpace(args.Raw) == "" {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassValidation, fmt.Errorf("raw is required"))
		}

		locator := ""
		if m := recordLocatorRE.FindStringSubmatch(args.Raw); len(m) > 1 {
			locator = strings.ToUpper(m[1])
		}

		segments := make([]string, 0, 4)
		for _, m := range flightSegmentRE.FindAllStringSubmatch(args.Raw, -1) {
			segments = append(segments, fmt.Sprintf("%s%s %s-%s", strings.ToUpper(m[1]), m[2], strings.ToUpper(m[3]), strings.ToUpper(m[4])))
		}

		if locator == "" && len(segments) == 0 {
			return tool.Result{OK: false, Reason: "no_pnr_data_found"}, nil
		}

		summary := strings.Join(segments, ", ")
		if locator != "" {
			if summary != "" {
				summary = "locator " + locator + ": " + summary
			} else {
				summary = "locator " + locator
			}
		}

		return tool.Result{
			OK:      true,
			Summary: summary,
			Payload: map[string]any{"recordLocator": locator, "segments": segments},
		}, nil
	})
}

// IrropsProcessArgs is the irropsProcess tool's argument struct: an
// irregular-operations (delay/cancellation/rebooking) notice plus the
// traveler's original segments, so the tool can describe the impact.
type IrropsProcessArgs struct {
	Notice           string `json:"notice" jsonschema:"required,description=Airline disruption notice text (delay, cancellation, schedule change)"`
	OriginalSegments string `json:"originalSegments,omitempty" jsonschema:"description=The traveler's original flight segments, if known, for comparison"`
}

var (
	delayRE    = regexp.MustCompile(`(?i)delay(?:ed)?\D{0,15}(\d+)\s*(hour|hr|minute|min)`)
	cancelRE   = regexp.MustCompile(`(?i)cancel{1,2}ed`)
	rebookedRE = regexp.MustCompile(`(?i)rebook|re-book|new flight|alternate flight`)
)

// NewIrropsProcessTool builds the "irropsProcess" tool: classifies a
// disruption notice (delay/cancellation/rebooking) and surfaces the
// detected delay duration when present, again pure text processing
// over traveler-supplied input.
func NewIrropsProcessTool() (tool.Spec, error) {
	return tool.New(tool.Config{
		Name:           tool.NameIrropsProcess,
		Description:    "Classifies an airline disruption notice as a delay, cancellation, or rebooking, and extracts the delay duration if present.",
		DefaultTimeout: 3 * time.Second,
	}, func(tc tool.Context, args IrropsProcessArgs) (tool.Result, error) {
		if strings.TrimSpace(args.Notice) == "" {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassValidation, fmt.Errorf("notice is required"))
		}

		var kind, detail string
		switch {
		case cancelRE.MatchString(args.Notice):
			kind = "cancellation"
			detail = "flight cancelled"
		case delayRE.MatchString(args.Notice):
			kind = "delay"
			m := delayRE.FindStringSubmatch(args.Notice)
			detail = fmt.Sprintf("delayed by %s %s", m[1], m[2])
		case rebookedRE.MatchString(args.Notice):
			kind = "rebooking"
			detail = "traveler has been rebooked onto an alternate flight"
		default:
			kind = "unknown"
			detail = "disruption type could not be determined from the notice"
		}

		summary := detail
		if args.OriginalSegments != "" {
			summary = fmt.Sprintf("%s (original segments: %s)", detail, args.OriginalSegments)
		}

		return tool.Result{
			OK:      true,
			Summary: summary,
			Payload: map[string]any{"kind": kind},
		}, nil
	})
}
