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
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ornatel/fieldscan/pkg/models"
)

// Epoch values above 2100-01-01 make no sense as seconds, so they are
// treated as milliseconds.
const maxEpochSeconds = 4102444800

// DecodeTimestamp normalizes an API timestamp to the record layout.
// Accepted inputs: epoch seconds, epoch milliseconds, or an ISO-8601
// string whose zone suffix is stripped (the wall-clock reading is kept
// as-is). Returns "" when the value is absent or unparseable.
func DecodeTimestamp(v any) string {
	t, ok := decodeTime(v)
	if !ok {
		return ""
	}

	return t.Format(models.TimestampLayout)
}

func decodeTime(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case nil:
		return time.Time{}, false
	case float64:
		return epochTime(ts), true
	case int64:
		return epochTime(float64(ts)), true
	case int:
		return epochTime(float64(ts)), true
	case json.Number:
		f, err := ts.Float64()
		if err != nil {
			return time.Time{}, false
		}

		return epochTime(f), true
	case string:
		return decodeTimeString(ts)
	default:
		return time.Time{}, false
	}
}

func decodeTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if strings.Contains(s, "T") || strings.Contains(s, "-") {
		return decodeISO(s)
	}

	// A plain digit string is an epoch value in disguise.
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, false
	}

	return epochTime(n), true
}

func decodeISO(s string) (time.Time, bool) {
	if i := strings.Index(s, "+"); i > 0 {
		s = s[:i]
	}

	// A "-" past the "T" is a negative zone offset; the ones before it
	// are date separators.
	if ti := strings.IndexByte(s, 'T'); ti >= 0 {
		if i := strings.LastIndexByte(s, '-'); i > ti {
			s = s[:i]
		}
	}

	s = strings.TrimSuffix(s, "Z")

	layouts := []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

func epochTime(v float64) time.Time {
	if v > maxEpochSeconds {
		v /= 1000
	}

	sec := int64(v)
	nsec := int64((v - float64(sec)) * float64(time.Second))

	return time.Unix(sec, nsec).UTC()
}
