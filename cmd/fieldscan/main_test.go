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

package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ornatel/fieldscan/pkg/logger"
	"github.com/ornatel/fieldscan/pkg/scanner"
)

// writeRoster builds an inventory workbook the way the field teams ship
// it: a "Stato" sheet with a title row above the header row.
func writeRoster(t *testing.T, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Stato"))
	require.NoError(t, f.SetSheetRow("Stato", "A1", &[]any{"Monitoraggio apparati"}))

	header := []any{"Tipo Installazione AM", "Linea", "ST Sostegno", "DeviceID", "IP address SIM", "Fornitore"}
	require.NoError(t, f.SetSheetRow("Stato", "A2", &header))

	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+3)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Stato", cellRef, &row))
	}

	path := filepath.Join(t.TempDir(), "roster.xlsx")
	require.NoError(t, f.SaveAs(path))

	return path
}

func TestSelectDevicesAppliesFilterFlags(t *testing.T) {
	path := writeRoster(t, [][]any{
		{"Inst. Completa", "L123", "S045", "1:1:2:15:22:DIGIL_MRN_0259", "10.183.224.17", "MARINI"},
		{"Inst. Parziale", "L123", "S046", "1:1:2:16:21:DIGIL_SR2_0103", "10.183.224.51", "SIRTI"},
	})

	devices, err := selectDevices(&options{rosterPath: path})
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	devices, err = selectDevices(&options{rosterPath: path, vendorFilter: "sirti"})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "1:1:2:16:21:DIGIL_SR2_0103", devices[0].DeviceID)

	devices, err = selectDevices(&options{rosterPath: path, roleFilter: "master"})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "1:1:2:15:22:DIGIL_MRN_0259", devices[0].DeviceID)
}

func TestSelectDevicesRejectsEmptySelection(t *testing.T) {
	path := writeRoster(t, [][]any{
		{"", "L1", "S1", "1:1:2:15:22:DIGIL_MRN_0001", "10.183.224.10", "MARINI"},
	})

	_, err := selectDevices(&options{rosterPath: path, vendorFilter: "INDRA"})
	require.ErrorIs(t, err, errNoDevices)
}

func TestSelectDevicesHonorsTestList(t *testing.T) {
	path := writeRoster(t, [][]any{
		{"", "L1", "S1", "1:1:2:15:22:DIGIL_MRN_0001", "10.183.224.10", "MARINI"},
		{"", "L1", "S2", "1:1:2:15:22:DIGIL_MRN_0002", "10.183.224.11", "MARINI"},
	})

	list := excelize.NewFile()
	require.NoError(t, list.SetSheetRow("Sheet1", "A1", &[]any{"DeviceID"}))
	require.NoError(t, list.SetSheetRow("Sheet1", "A2", &[]any{"1:1:2:15:22:DIGIL_MRN_0002"}))

	listPath := filepath.Join(t.TempDir(), "testlist.xlsx")
	require.NoError(t, list.SaveAs(listPath))

	devices, err := selectDevices(&options{rosterPath: path, testListPath: listPath})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "1:1:2:15:22:DIGIL_MRN_0002", devices[0].DeviceID)
}

func TestBatchOutcomeKeepsCancelledRuns(t *testing.T) {
	log := logger.NewTestLogger()

	// A clean batch and a cancelled batch both let the run continue to
	// the export step; only a genuine failure aborts it.
	assert.NoError(t, batchOutcome(scanner.Event{Type: scanner.EventBatchDone}, false, log))
	assert.NoError(t, batchOutcome(scanner.Event{
		Type:      scanner.EventBatchDone,
		Err:       context.Canceled,
		Completed: 3,
		Total:     10,
	}, false, log))

	err := batchOutcome(scanner.Event{Type: scanner.EventBatchDone, Err: errors.New("pool wedged")}, false, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool wedged")
}

func TestBatchOutcomeToleratesBridgeFailure(t *testing.T) {
	ev := scanner.Event{Type: scanner.EventBatchDone, Err: errors.New("dial tcp: refused")}
	assert.NoError(t, batchOutcome(ev, true, logger.NewTestLogger()))
}
