/*
 * Copyright 2026 Ornatel S.r.l.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package digil

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	rosterIDPattern = regexp.MustCompile(`^(\d+):(\d+):(\d+):(\d+):(\d+):DIGIL_\w+_(\d+)$`)
	trailingNumber  = regexp.MustCompile(`_(\d+)$`)
)

// APIDeviceID translates a roster-format device id into the single-token
// form the diagnostics API expects:
//
//	"1:1:2:15:22:DIGIL_MRN_0259" -> "1121522_0259"
//
// Ids that do not match the canonical shape are rebuilt best-effort from
// the colon segments; if even that fails the id passes through unchanged.
func APIDeviceID(deviceID string) string {
	if m := rosterIDPattern.FindStringSubmatch(deviceID); m != nil {
		return fmt.Sprintf("%s%s%s%s%s_%s", m[1], m[2], m[3], m[4], m[5], m[6])
	}

	parts := strings.Split(deviceID, ":")
	if len(parts) >= 5 {
		if m := trailingNumber.FindStringSubmatch(deviceID); m != nil {
			return strings.Join(parts[:5], "") + "_" + m[1]
		}
	}

	return deviceID
}
