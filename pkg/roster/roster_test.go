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

package roster

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ornatel/fieldscan/pkg/models"
)

// writeInventory builds a workbook shaped like the production one: a
// "Stato" sheet with a title row above the header row.
func writeInventory(t *testing.T, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Stato"))

	require.NoError(t, f.SetSheetRow("Stato", "A1", &[]any{"Monitoraggio apparati"}))

	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Stato", cellRef, &row))
	}

	path := filepath.Join(t.TempDir(), "inventory.xlsx")
	require.NoError(t, f.SaveAs(path))

	return path
}

func inventoryHeader() []any {
	return []any{"Tipo Installazione AM", "Linea", "ST Sostegno", "DeviceID", "IP address SIM", "Fornitore"}
}

func TestLoadBuildsRecords(t *testing.T) {
	path := writeInventory(t, [][]any{
		inventoryHeader(),
		{"Inst. Completa", "L123", "S045", "1:1:2:15:22:DIGIL_MRN_0259", "10.183.224.17", "MARINI"},
		{"Inst. Parziale", "L123", "S046", "1:1:2:16:21:DIGIL_SR2_0103", "1018322451", "SIRTI"},
	})

	devices, err := Load(path)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	first := devices[0]
	assert.Equal(t, "1:1:2:15:22:DIGIL_MRN_0259", first.DeviceID)
	assert.Equal(t, "10.183.224.17", first.IPAddress)
	assert.Equal(t, "L123", first.Line)
	assert.Equal(t, "S045", first.Support)
	assert.Equal(t, "MARINI", first.Supplier)
	assert.Equal(t, "Inst. Completa", first.InstallType)
	assert.Equal(t, models.RoleMaster, first.Role)
	assert.Equal(t, models.VendorMII, first.Vendor)

	second := devices[1]
	assert.Equal(t, "10.183.224.51", second.IPAddress, "digit-only IPs are normalized")
	assert.Equal(t, models.RoleSlave, second.Role)
	assert.Equal(t, models.VendorSirti, second.Vendor)
}

func TestLoadSkipsIncompleteRows(t *testing.T) {
	path := writeInventory(t, [][]any{
		inventoryHeader(),
		{"", "L1", "S1", "1:1:2:15:22:DIGIL_MRN_0001", "10.183.224.10", ""},
		{"", "L1", "S2", "", "10.183.224.11", ""},
		{"", "L1", "S3", "1:1:2:15:22:DIGIL_MRN_0003", "", ""},
	})

	devices, err := Load(path)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "1:1:2:15:22:DIGIL_MRN_0001", devices[0].DeviceID)
}

func TestLoadReportsMissingColumns(t *testing.T) {
	path := writeInventory(t, [][]any{
		{"DeviceID", "Linea"},
		{"1:1:2:15:22:DIGIL_MRN_0001", "L1"},
	})

	_, err := Load(path)
	require.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), "IP address SIM")
}

func TestLoadRequiresInventorySheet(t *testing.T) {
	f := excelize.NewFile()
	path := filepath.Join(t.TempDir(), "wrong.xlsx")
	require.NoError(t, f.SaveAs(path))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrSheetNotFound)
}

func writeTestList(t *testing.T, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()

	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cellRef, &row))
	}

	path := filepath.Join(t.TempDir(), "testlist.xlsx")
	require.NoError(t, f.SaveAs(path))

	return path
}

func TestLoadTestListByHeaderName(t *testing.T) {
	path := writeTestList(t, [][]any{
		{"Note", "DeviceID"},
		{"x", "1:1:2:15:22:DIGIL_MRN_0001"},
		{"y", "1:1:2:16:21:DIGIL_SR2_0002"},
		{"", ""},
	})

	ids, err := LoadTestList(path, TestListOptions{HasHeader: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"1:1:2:15:22:DIGIL_MRN_0001", "1:1:2:16:21:DIGIL_SR2_0002"}, ids)
}

func TestLoadTestListDefaultsToFirstColumn(t *testing.T) {
	path := writeTestList(t, [][]any{
		{"Elenco", "Note"},
		{"1:1:2:15:22:DIGIL_MRN_0001", "x"},
	})

	ids, err := LoadTestList(path, TestListOptions{HasHeader: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"1:1:2:15:22:DIGIL_MRN_0001"}, ids)
}

func TestLoadTestListWithoutHeader(t *testing.T) {
	path := writeTestList(t, [][]any{
		{"1:1:2:15:22:DIGIL_MRN_0001"},
		{"1:1:2:15:22:DIGIL_MRN_0002"},
	})

	ids, err := LoadTestList(path, TestListOptions{HasHeader: false})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestFilterApplies(t *testing.T) {
	devices := []*models.DeviceRecord{
		models.NewDeviceRecord("1:1:2:15:22:DIGIL_MRN_0001", "10.0.0.1", "L1", "S1", "MARINI"),
		models.NewDeviceRecord("1:1:2:16:21:DIGIL_SR2_0002", "10.0.0.2", "L1", "S2", "SIRTI"),
		models.NewDeviceRecord("1:1:2:15:22:DIGIL_IND_0003", "10.0.0.3", "L1", "S3", "INDRA"),
	}

	for _, dev := range devices {
		dev.Role = models.DetectRole(dev.DeviceID)
		dev.Vendor = models.DetectVendor(dev.DeviceID, dev.Supplier)
	}

	byVendor := (&Filter{Vendor: models.VendorSirti}).Apply(devices)
	require.Len(t, byVendor, 1)
	assert.Equal(t, "1:1:2:16:21:DIGIL_SR2_0002", byVendor[0].DeviceID)

	byRole := (&Filter{Role: models.RoleMaster}).Apply(devices)
	assert.Len(t, byRole, 2)

	byList := (&Filter{TestIDs: []string{"1:1:2:15:22:DIGIL_IND_0003", "not-in-roster"}}).Apply(devices)
	require.Len(t, byList, 1)
	assert.Equal(t, "1:1:2:15:22:DIGIL_IND_0003", byList[0].DeviceID)

	everything := (&Filter{}).Apply(devices)
	assert.Len(t, everything, 3)
}
