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

package probe

import (
	"strconv"
	"strings"

	"github.com/ornatel/fieldscan/pkg/models"
)

// classifyPingOutput maps the bridge-side ping output to an attempt
// outcome. Partial loss still counts as reachable: one echo out of two is
// a device that woke up. Anything unrecognizable is a failed attempt, not
// a success.
func classifyPingOutput(stdout string) (ok bool, rtt *float64, note string) {
	// Total loss first: "100% packet loss" would otherwise match the
	// "0% packet loss" substring below.
	if strings.Contains(stdout, "0 received") || strings.Contains(stdout, "100% packet loss") {
		return false, nil, "no ping reply"
	}

	rtt = parseAvgRTT(stdout)

	if strings.Contains(stdout, "bytes from") || strings.Contains(stdout, "0% packet loss") {
		return true, rtt, ""
	}

	if strings.Contains(stdout, "1 received") || strings.Contains(stdout, "50% packet loss") {
		return true, rtt, ""
	}

	return false, nil, "inconclusive ping output"
}

// parseAvgRTT extracts the average round-trip time from the ping summary
// line, e.g. "rtt min/avg/max/mdev = 12.1/13.4/14.8/1.1 ms".
func parseAvgRTT(stdout string) *float64 {
	for _, line := range strings.Split(stdout, "\n") {
		if !strings.Contains(strings.ToLower(line), "avg") || !strings.Contains(line, "/") {
			continue
		}

		_, values, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		parts := strings.Split(values, "/")
		if len(parts) < 2 {
			continue
		}

		avg, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}

		return &avg
	}

	return nil
}

// classifyPortOutput maps the connect-probe output to a port status.
func classifyPortOutput(stdout string) (models.ProbeStatus, string) {
	switch {
	case strings.Contains(stdout, "PORT_OPEN"):
		return models.StatusPortOpen, ""
	case strings.Contains(stdout, "PORT_CLOSED"), strings.Contains(stdout, "Connection refused"):
		return models.StatusPortClosed, "management port closed or refused"
	case strings.Contains(strings.ToLower(stdout), "timed out"),
		strings.Contains(strings.ToLower(stdout), "timeout"):
		return models.StatusPortTimeout, "management port connection timed out"
	default:
		return models.StatusPortClosed, strings.TrimSpace(stdout)
	}
}
