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

package report

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ornatel/fieldscan/pkg/metricstore"
	"github.com/ornatel/fieldscan/pkg/models"
)

var testRunTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestExporter() *Exporter {
	e := NewExporter()
	e.now = func() time.Time { return testRunTime }

	return e
}

func healthyDevice(id string) *models.DeviceRecord {
	dev := models.NewDeviceRecord(id, "10.183.224.51", "L123", "ST 42", "SIRTI")
	dev.PingStatus = models.StatusPingOK
	dev.PortStatus = models.StatusPortOpen
	dev.LinkConnected = models.TriTrue
	dev.BatteryOK = models.TriTrue
	dev.DoorOpen = models.TriFalse
	dev.HasRecentData = models.TriTrue
	dev.StoreChecked = true
	dev.Category = models.CategoryOK
	dev.TestedAt = "2026-03-14 09:25:00"

	lastSeen := time.Date(2026, 3, 14, 8, 12, 33, 0, time.UTC)
	dev.LastSeen = &lastSeen

	soc := 84.0
	dev.ChargePercent = &soc
	dev.Channel = "LTE"
	dev.APITimestamp = "2026-03-14 08:12:33"

	return dev
}

func disconnectedDevice(id string) *models.DeviceRecord {
	dev := models.NewDeviceRecord(id, "10.183.224.52", "L123", "ST 43", "SIRTI")
	dev.PingStatus = models.StatusPingFailed
	dev.PortStatus = models.StatusPortClosed
	dev.HasRecentData = models.TriFalse
	dev.StoreChecked = true
	dev.Category = models.CategoryDisconnected
	dev.TestedAt = "2026-03-14 09:25:00"

	return dev
}

func openAndRows(t *testing.T, path, sheet string) [][]string {
	t.Helper()

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = f.Close() })

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)

	return rows
}

func TestWriteProducesResultRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	devices := []*models.DeviceRecord{
		healthyDevice("1121522_0259"),
		disconnectedDevice("1121522_0260"),
	}

	require.NoError(t, newTestExporter().Write(path, devices, nil))

	rows := openAndRows(t, path, "Risultati Diagnostici")
	require.Len(t, rows, 3)
	assert.Equal(t, resultColumns, rows[0])

	healthy := rows[1]
	assert.Equal(t, "L123", healthy[0])
	assert.Equal(t, "ST 42", healthy[1])
	assert.Equal(t, "1121522_0259", healthy[2])
	assert.Equal(t, "10.183.224.51", healthy[3])
	assert.Equal(t, "SIRTI", healthy[4])
	assert.Equal(t, "2026-03-14 08:12:33", healthy[7], "store check shows last seen")
	assert.Equal(t, "OK", healthy[8], "LTE link")
	assert.Equal(t, "OK", healthy[9], "management port")
	assert.Equal(t, "OK", healthy[10], "battery")
	assert.Equal(t, "OK", healthy[11], "door closed renders OK")
	assert.Equal(t, "84", healthy[12])
	assert.Equal(t, "LTE", healthy[15])
	assert.Equal(t, "OK", healthy[17])

	down := rows[2]
	assert.Equal(t, "KO", down[7], "confirmed absence of telemetry")
	assert.Equal(t, "0", down[8], "link state never measured")
	assert.Equal(t, "KO", down[9])
	assert.Equal(t, "-", down[10], "battery unknown")
	assert.Equal(t, "-", down[11], "door unknown")
	assert.Equal(t, "Disconnected", down[17])
}

func TestWriteRejectsEmptyRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")

	err := newTestExporter().Write(path, nil, nil)
	require.ErrorIs(t, err, ErrNoResults)
}

func TestSummaryCountsCategories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")

	tension := healthyDevice("1121522_0261")
	tension.InstallType = "Inst. Completa"

	devices := []*models.DeviceRecord{
		healthyDevice("1121522_0259"),
		tension,
		disconnectedDevice("1121522_0260"),
	}

	require.NoError(t, newTestExporter().Write(path, devices, nil))

	rows := openAndRows(t, path, "Riepilogo")
	require.Len(t, rows, 10)

	got := make(map[string]string, len(rows)-1)
	for _, row := range rows[1:] {
		require.Len(t, row, 2)
		got[row[0]] = row[1]
	}

	assert.Equal(t, "3", got["Totale Dispositivi"])
	assert.Equal(t, "2", got["OK"])
	assert.Equal(t, "1", got["Disconnected"])
	assert.Equal(t, "0", got["Door open"])
	assert.Equal(t, "1", got["Da verificare Tiro"])
	assert.Equal(t, "2026-03-14 09:30:00", got["Data Test"])
}

func TestNoteComposition(t *testing.T) {
	tension := healthyDevice("a")
	tension.InstallType = "Inst. Completa"
	tension.ConnectivityNote = "Ping KO, SSH KO"

	failed := disconnectedDevice("b")
	failed.ErrorNote = "ping failed after 6 attempts. request timed out"
	failed.StoreError = strings.Repeat("x", 60)

	clean := healthyDevice("c")

	tests := []struct {
		name string
		dev  *models.DeviceRecord
		want string
	}{
		{"tension flag joins with connectivity note", tension, "Verificare Tiro; Ping KO, SSH KO"},
		{"technical errors truncated", failed, "ping failed after 6 attempts. request timed out; x"},
		{"clean device has no note", clean, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Note(tt.dev)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), 50)

			// the tension-only case keeps the 50-char cap irrelevant
			if tt.dev == tension {
				assert.Contains(t, got, "Verificare Tiro")
			}
		})
	}
}

func TestStoreCellRenderings(t *testing.T) {
	withData := healthyDevice("a")

	noTimestamp := healthyDevice("b")
	noTimestamp.LastSeen = nil

	errored := disconnectedDevice("c")
	errored.HasRecentData = models.TriUnknown
	errored.StoreError = "server selection timeout exceeded while dialing"

	unchecked := disconnectedDevice("d")
	unchecked.HasRecentData = models.TriUnknown

	assert.Equal(t, "2026-03-14 08:12:33", storeCell(withData))
	assert.Equal(t, "Data", storeCell(noTimestamp))
	assert.Equal(t, "server selection tim", storeCell(errored))
	assert.Equal(t, "-", storeCell(unchecked))
}

func TestHistorySheetsFollowBucketColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	dev := healthyDevice("1121522_0259")

	avg := 82.5
	minSOC, maxSOC := 78, 86
	history := &History{
		SOC: map[string]*metricstore.SOCHistory{
			dev.DeviceID: {
				DeviceID: dev.DeviceID,
				Daily: map[string]int{
					"2026-03-14": 86,
					"2026-03-13": 78,
				},
				Avg:   &avg,
				Min:   &minSOC,
				Max:   &maxSOC,
				Trend: metricstore.TrendUp,
			},
		},
		Channel: map[string]*metricstore.ChannelHistory{
			dev.DeviceID: {
				DeviceID:   dev.DeviceID,
				Hourly:     map[string]string{"2026-03-14 09:00": "LTE"},
				Channels:   []string{"LTE"},
				LTECount:   1,
				NBIoTCount: 0,
			},
		},
	}

	require.NoError(t, newTestExporter().Write(path, []*models.DeviceRecord{dev}, history))

	soc := openAndRows(t, path, "Storico SOC")
	require.Len(t, soc, 2)
	// identity columns, then buckets newest first
	assert.Equal(t, "DeviceID", soc[0][2])
	assert.Equal(t, "2026-03-14", soc[0][3])
	assert.Equal(t, "2026-03-13", soc[0][4])
	assert.Equal(t, "86", soc[1][3])
	assert.Equal(t, "78", soc[1][4])

	statsStart := 3 + socDays
	assert.Equal(t, "Media", soc[0][statsStart])
	assert.Equal(t, "82.5", soc[1][statsStart])
	assert.Equal(t, metricstore.TrendUp, soc[1][statsStart+3])

	channel := openAndRows(t, path, "Storico Canale")
	require.Len(t, channel, 2)
	assert.Equal(t, "2026-03-14 09:00", channel[0][3])
	assert.Equal(t, "LTE", channel[1][3])

	chStats := 3 + historyHours
	assert.Equal(t, "LTE", channel[0][chStats])
	assert.Equal(t, "1", channel[1][chStats])
	assert.Equal(t, "LTE", channel[1][chStats+3], "used channels list")
}

func TestMissingHistoryRowsCarryError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	dev := healthyDevice("1121522_0259")

	history := &History{
		Signal: map[string]*metricstore.SignalHistory{},
	}

	require.NoError(t, newTestExporter().Write(path, []*models.DeviceRecord{dev}, history))

	rows := openAndRows(t, path, "Storico Segnale")
	require.Len(t, rows, 2)

	errColumn := 3 + historyHours + 3
	assert.Equal(t, "Errore", rows[0][errColumn])
	assert.Equal(t, "Nessun dato", rows[1][errColumn])
}

func TestDefaultFilenameEncodesRunTime(t *testing.T) {
	assert.Equal(t, "DIGIL_Diagnostic_20260314_093000.xlsx", newTestExporter().DefaultFilename())
}
