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
	"strconv"
	"strings"
	"time"

	"github.com/ornatel/fieldscan/pkg/models"
)

// Diagnostic entry names carried by the API. Alarms live under "diags",
// measurements under "measures".
const (
	diagLowBatteryAlarm   = "ALG_Digil2_Alm_Low_Batt"
	diagLowBatteryWarning = "ALG_Digil2_Warn_Low_Batt"
	diagOpenDoorAlarm     = "ALG_Digil2_Alm_Open_Door"

	measureChargePercent = "SENS_Digil2_BatteryLevel_Percent"
	measureHealthPercent = "SENS_Digil2_BatteryState_Percent"
	measureLTESignal     = "SENS_Digil2_LtePowerSignal"
	measureNBIoTSignal   = "SENS_Digil2_NBIoTPowerSignal"
	measureChannel       = "SENS_Digil2_Channel"
)

// Snapshot is the health picture the diagnostics API holds for one
// device, mapped to tri-state facts. Anything the API did not report
// stays unknown or nil.
type Snapshot struct {
	LinkConnected models.TriState
	BatteryOK     models.TriState
	DoorOpen      models.TriState

	ChargePercent *float64
	HealthPercent *float64
	SignalDBm     *float64
	Channel       string

	Status    string
	Vendor    string
	Typology  string
	Timestamp string
}

type metricEntry struct {
	Value      any `json:"value"`
	Timestamp  any `json:"timestamp"`
	ReceivedOn any `json:"receivedOn"`
}

type rawDiagnostics struct {
	Status     string                 `json:"status"`
	Vendor     string                 `json:"vendor"`
	Typology   string                 `json:"typology"`
	LastUpdate any                    `json:"lastUpdate"`
	ReceivedOn any                    `json:"receivedOn"`
	Timestamp  any                    `json:"timestamp"`
	Diags      map[string]metricEntry `json:"diags"`
	Measures   map[string]metricEntry `json:"measures"`
}

func parseDiagnostics(raw *rawDiagnostics) *Snapshot {
	snap := &Snapshot{
		Status:   raw.Status,
		Vendor:   raw.Vendor,
		Typology: raw.Typology,
	}

	snap.LinkConnected = models.TriFromBool(strings.EqualFold(raw.Status, "CONNECTED"))

	// The alarm is authoritative; the warning only fills in when the
	// alarm entry is absent.
	if v, ok := entryBool(raw.Diags, diagLowBatteryAlarm); ok {
		snap.BatteryOK = models.TriFromBool(!v)
	} else if v, ok := entryBool(raw.Diags, diagLowBatteryWarning); ok {
		snap.BatteryOK = models.TriFromBool(!v)
	}

	if v, ok := entryBool(raw.Diags, diagOpenDoorAlarm); ok {
		snap.DoorOpen = models.TriFromBool(v)
	}

	snap.ChargePercent = entryFloat(raw.Measures, measureChargePercent)
	snap.HealthPercent = entryFloat(raw.Measures, measureHealthPercent)

	snap.SignalDBm = entryFloat(raw.Measures, measureLTESignal)
	if snap.SignalDBm == nil {
		snap.SignalDBm = entryFloat(raw.Measures, measureNBIoTSignal)
	}

	if v, ok := raw.Measures[measureChannel]; ok && v.Value != nil {
		snap.Channel = fmt.Sprintf("%v", v.Value)
	}

	snap.Timestamp = latestTimestamp(raw)

	return snap
}

// latestTimestamp picks the freshest timestamp across every sub-entry,
// falling back to the top-level fields when none carries one.
func latestTimestamp(raw *rawDiagnostics) string {
	var best time.Time

	consider := func(v any) {
		if t, ok := decodeTime(v); ok && t.After(best) {
			best = t
		}
	}

	for _, entry := range raw.Measures {
		consider(firstNonNil(entry.Timestamp, entry.ReceivedOn))
	}

	for _, entry := range raw.Diags {
		consider(firstNonNil(entry.Timestamp, entry.ReceivedOn))
	}

	if best.IsZero() {
		consider(firstNonNil(raw.LastUpdate, raw.ReceivedOn, raw.Timestamp))
	}

	if best.IsZero() {
		return ""
	}

	return best.Format(models.TimestampLayout)
}

func entryBool(entries map[string]metricEntry, name string) (bool, bool) {
	entry, ok := entries[name]
	if !ok || entry.Value == nil {
		return false, false
	}

	switch v := entry.Value.(type) {
	case bool:
		return v, true
	case float64:
		return v != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1":
			return true, true
		case "false", "0":
			return false, true
		default:
			return false, false
		}
	default:
		return false, false
	}
}

func entryFloat(entries map[string]metricEntry, name string) *float64 {
	entry, ok := entries[name]
	if !ok || entry.Value == nil {
		return nil
	}

	switch v := entry.Value.(type) {
	case float64:
		return &v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}

		return &f
	default:
		return nil
	}
}

func firstNonNil(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}

	return nil
}
