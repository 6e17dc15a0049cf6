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

// Package roster reads the fleet inventory workbook and the optional
// test-list workbook that narrows a run down to specific devices.
package roster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ornatel/fieldscan/pkg/models"
)

const (
	// The inventory lives on the "Stato" sheet with its header on the
	// second row.
	inventorySheet  = "Stato"
	headerRowOffset = 1

	colDeviceID  = "DeviceID"
	colIPAddress = "IP address SIM"
	colLine      = "Linea"
	colSupport   = "ST Sostegno"
	colSupplier  = "Fornitore"
)

// The install-type column name drifted across workbook revisions.
var installTypeNames = []string{
	"Tipo Installazione AM",
	"Tipo installazione AM",
	"TIPO INSTALLAZIONE AM",
	"Tipo_Installazione_AM",
}

var (
	ErrSheetNotFound  = errors.New("roster: inventory sheet not found")
	ErrMissingColumns = errors.New("roster: required columns missing")
	ErrEmptyWorkbook  = errors.New("roster: workbook has no data rows")
)

// Load reads the inventory workbook into device records. Rows missing a
// device id or IP are skipped; the IP is normalized and role/vendor are
// derived immediately.
func Load(path string) ([]*models.DeviceRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening roster %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(inventorySheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %q in %s", ErrSheetNotFound, inventorySheet, path)
	}

	if len(rows) <= headerRowOffset {
		return nil, ErrEmptyWorkbook
	}

	header := rows[headerRowOffset]
	columns := indexColumns(header)

	var missing []string

	for _, name := range []string{colDeviceID, colIPAddress, colLine, colSupport} {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	installCol := findInstallTypeColumn(header, columns)

	var devices []*models.DeviceRecord

	for _, row := range rows[headerRowOffset+1:] {
		deviceID := cell(row, columns[colDeviceID])
		ip := cell(row, columns[colIPAddress])

		if deviceID == "" || ip == "" {
			continue
		}

		dev := models.NewDeviceRecord(
			deviceID,
			models.NormalizeIP(ip),
			cell(row, columns[colLine]),
			cell(row, columns[colSupport]),
			cellAt(row, columns, colSupplier),
		)
		dev.Role = models.DetectRole(deviceID)
		dev.Vendor = models.DetectVendor(deviceID, dev.Supplier)

		if installCol >= 0 {
			dev.InstallType = cell(row, installCol)
		}

		devices = append(devices, dev)
	}

	return devices, nil
}

// TestListOptions tunes test-list parsing.
type TestListOptions struct {
	// Column names the id column, or is ignored when absent. With
	// HasHeader false it is a zero-based column index in string form.
	Column string
	// HasHeader marks the first row as a header row.
	HasHeader bool
	// Sheet overrides the first sheet.
	Sheet string
}

// Candidate header names for the id column of a test list.
var testListIDColumns = []string{
	"DeviceID", "deviceid", "DEVICEID", "Device_ID", "device_id", "ID", "id", "DeviceId",
}

// LoadTestList reads the device ids a run should be restricted to.
func LoadTestList(path string, opts TestListOptions) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening test list %s: %w", path, err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %q in %s", ErrSheetNotFound, sheet, path)
	}

	if len(rows) == 0 {
		return nil, ErrEmptyWorkbook
	}

	col := 0
	start := 0

	if opts.HasHeader {
		start = 1
		col = findTestListColumn(rows[0], opts.Column)
	} else if opts.Column != "" {
		// Header-less lists address the column by position.
		if _, err := fmt.Sscanf(opts.Column, "%d", &col); err != nil {
			col = 0
		}
	}

	var ids []string

	for _, row := range rows[start:] {
		id := cell(row, col)
		if id != "" {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

// Filter narrows a device list by test list, vendor and role. Empty
// criteria match everything.
type Filter struct {
	TestIDs []string
	Vendor  models.Vendor
	Role    models.Role
}

func (f *Filter) Apply(devices []*models.DeviceRecord) []*models.DeviceRecord {
	var testSet map[string]struct{}

	if len(f.TestIDs) > 0 {
		testSet = make(map[string]struct{}, len(f.TestIDs))

		for _, id := range f.TestIDs {
			testSet[id] = struct{}{}
		}
	}

	var kept []*models.DeviceRecord

	for _, dev := range devices {
		if testSet != nil {
			if _, ok := testSet[dev.DeviceID]; !ok {
				continue
			}
		}

		if f.Vendor != "" && !strings.EqualFold(string(dev.Vendor), string(f.Vendor)) {
			continue
		}

		if f.Role != "" && !strings.EqualFold(string(dev.Role), string(f.Role)) {
			continue
		}

		kept = append(kept, dev)
	}

	return kept
}

func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))

	for i, name := range header {
		name = strings.TrimSpace(name)
		if name != "" {
			columns[name] = i
		}
	}

	return columns
}

// findInstallTypeColumn tries the known name variants, then falls back
// to the first column when its header looks like an install-type label.
func findInstallTypeColumn(header []string, columns map[string]int) int {
	for _, name := range installTypeNames {
		if i, ok := columns[name]; ok {
			return i
		}
	}

	if len(header) > 0 {
		first := strings.ToLower(header[0])
		if strings.Contains(first, "tipo") || strings.Contains(first, "installazione") {
			return 0
		}
	}

	return -1
}

func findTestListColumn(header []string, preferred string) int {
	columns := indexColumns(header)

	if preferred != "" {
		if i, ok := columns[preferred]; ok {
			return i
		}
	}

	for _, name := range testListIDColumns {
		if i, ok := columns[name]; ok {
			return i
		}
	}

	return 0
}

// cell reads a trimmed value, tolerating the short rows GetRows returns
// when trailing cells are empty.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}

	return strings.TrimSpace(row[i])
}

func cellAt(row []string, columns map[string]int, name string) string {
	i, ok := columns[name]
	if !ok {
		return ""
	}

	return cell(row, i)
}
