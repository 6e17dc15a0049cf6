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

// Package report writes the diagnostic run to a workbook: one result row
// per tested device, a summary sheet of category counts, and optional
// history sheets when time-bucketed telemetry was collected. Column
// headers keep the names downstream consumers of the workbook already
// parse.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ornatel/fieldscan/pkg/metricstore"
	"github.com/ornatel/fieldscan/pkg/models"
)

const (
	resultsSheet = "Risultati Diagnostici"
	summarySheet = "Riepilogo"
	socSheet     = "Storico SOC"
	channelSheet = "Storico Canale"
	signalSheet  = "Storico Segnale"

	// The Note column flags completed installations that passed the run
	// so the field crew re-checks the line tension.
	noteVerifyTension     = "Verificare Tiro"
	installTypeCompleted  = "Inst. Completa"
	maxTechnicalErrorsLen = 50

	socDays      = 15
	historyHours = 24
)

var ErrNoResults = errors.New("report: no results to export")

var resultColumns = []string{
	"Linea", "ST Sostegno", "DeviceID", "IP Address", "Vendor", "Tipo",
	"Tipo Installazione AM", "Check MongoDB (24h)", "Check LTE", "Check SSH",
	"Batteria", "Porta", "SOC %", "SOH %", "Segnale dBm", "Canale",
	"API Timestamp", "Tipo Malfunzionamento", "Note", "Timestamp Test",
}

var resultColumnWidths = map[string]float64{
	"Linea": 10, "ST Sostegno": 20, "DeviceID": 28, "IP Address": 14,
	"Vendor": 8, "Tipo": 8, "Tipo Installazione AM": 18,
	"Check MongoDB (24h)": 18, "Check LTE": 10, "Check SSH": 10,
	"Batteria": 9, "Porta": 7, "SOC %": 7, "SOH %": 7,
	"Segnale dBm": 11, "Canale": 8, "API Timestamp": 18,
	"Tipo Malfunzionamento": 18, "Note": 30, "Timestamp Test": 18,
}

// History carries the optional per-device time-bucketed series, keyed by
// device id. Nil maps skip their sheet.
type History struct {
	SOC     map[string]*metricstore.SOCHistory
	Channel map[string]*metricstore.ChannelHistory
	Signal  map[string]*metricstore.SignalHistory
}

// Exporter writes run results. The clock is injectable so the generated
// date columns are stable in tests.
type Exporter struct {
	now func() time.Time
}

func NewExporter() *Exporter {
	return &Exporter{now: time.Now}
}

// DefaultFilename names the output workbook after the run time.
func (e *Exporter) DefaultFilename() string {
	return fmt.Sprintf("DIGIL_Diagnostic_%s.xlsx", e.now().Format("20060102_150405"))
}

// Write exports the run to path, preserving the input device order.
func (e *Exporter) Write(path string, devices []*models.DeviceRecord, history *History) error {
	if len(devices) == 0 {
		return ErrNoResults
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return err
	}

	styles, err := newStyleSet(f)
	if err != nil {
		return err
	}

	if err := e.writeResults(f, styles, devices); err != nil {
		return err
	}

	if err := e.writeSummary(f, styles, devices); err != nil {
		return err
	}

	if history != nil {
		if err := e.writeHistorySheets(f, styles, devices, history); err != nil {
			return err
		}
	}

	return f.SaveAs(path)
}

func (e *Exporter) writeResults(f *excelize.File, styles *styleSet, devices []*models.DeviceRecord) error {
	if err := writeHeader(f, resultsSheet, styles, resultColumns); err != nil {
		return err
	}

	for i, dev := range devices {
		row := []any{
			dev.Line, dev.Support, dev.DeviceID, dev.IPAddress,
			string(dev.Vendor), string(dev.Role), dev.InstallType,
			storeCell(dev), triCell(dev.LinkConnected, "0"), portCell(dev),
			triCell(dev.BatteryOK, "-"), doorCell(dev),
			floatCell(dev.ChargePercent), floatCell(dev.HealthPercent),
			floatCell(dev.SignalDBm), dev.Channel, dev.APITimestamp,
			string(dev.Category), Note(dev), dev.TestedAt,
		}

		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}

		if err := f.SetSheetRow(resultsSheet, cellRef, &row); err != nil {
			return err
		}
	}

	for i, name := range resultColumns {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}

		width := resultColumnWidths[name]
		if width == 0 {
			width = 12
		}

		if err := f.SetColWidth(resultsSheet, col, col, width); err != nil {
			return err
		}
	}

	lastRow := len(devices) + 1

	malfRange, err := columnRange(indexOf(resultColumns, "Tipo Malfunzionamento"), 2, lastRow)
	if err != nil {
		return err
	}

	if err := f.SetConditionalFormat(resultsSheet, malfRange, []excelize.ConditionalFormatOptions{
		{Type: "cell", Criteria: "==", Value: `"OK"`, Format: &styles.ok},
		{Type: "cell", Criteria: "!=", Value: `"OK"`, Format: &styles.ko},
	}); err != nil {
		return err
	}

	noteRange, err := columnRange(indexOf(resultColumns, "Note"), 2, lastRow)
	if err != nil {
		return err
	}

	if err := f.SetConditionalFormat(resultsSheet, noteRange, []excelize.ConditionalFormatOptions{
		{Type: "text", Criteria: "containing", Value: noteVerifyTension, Format: &styles.warn},
	}); err != nil {
		return err
	}

	socRange, err := columnRange(indexOf(resultColumns, "SOC %"), 2, lastRow)
	if err != nil {
		return err
	}

	if err := f.SetConditionalFormat(resultsSheet, socRange, socBands(styles)); err != nil {
		return err
	}

	signalRange, err := columnRange(indexOf(resultColumns, "Segnale dBm"), 2, lastRow)
	if err != nil {
		return err
	}

	if err := f.SetConditionalFormat(resultsSheet, signalRange, signalBands(styles)); err != nil {
		return err
	}

	return finishSheet(f, resultsSheet, len(resultColumns), lastRow)
}

func (e *Exporter) writeSummary(f *excelize.File, styles *styleSet, devices []*models.DeviceRecord) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}

	if err := writeHeader(f, summarySheet, styles, []string{"Metrica", "Valore"}); err != nil {
		return err
	}

	byCategory := make(map[models.Category]int, len(devices))
	verifyTension := 0

	for _, dev := range devices {
		byCategory[dev.Category]++

		if dev.Category == models.CategoryOK && dev.InstallType == installTypeCompleted {
			verifyTension++
		}
	}

	rows := [][]any{
		{"Totale Dispositivi", len(devices)},
		{"OK", byCategory[models.CategoryOK]},
		{string(models.CategoryDisconnected), byCategory[models.CategoryDisconnected]},
		{string(models.CategoryMetricsMissing), byCategory[models.CategoryMetricsMissing]},
		{string(models.CategoryBatteryAlarm), byCategory[models.CategoryBatteryAlarm]},
		{string(models.CategoryDoorOpen), byCategory[models.CategoryDoorOpen]},
		{string(models.CategoryNotClassified), byCategory[models.CategoryNotClassified]},
		{"Da verificare Tiro", verifyTension},
		{"Data Test", e.now().Format(models.TimestampLayout)},
	}

	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}

		if err := f.SetSheetRow(summarySheet, cellRef, &row); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(summarySheet, "A", "A", 25); err != nil {
		return err
	}

	return f.SetColWidth(summarySheet, "B", "B", 20)
}

// Note composes the per-device annotation. Priority order: the tension
// re-check flag for passed completed installations, then the
// connectivity note, then truncated technical errors.
func Note(dev *models.DeviceRecord) string {
	var notes []string

	if dev.Category == models.CategoryOK && dev.InstallType == installTypeCompleted {
		notes = append(notes, noteVerifyTension)
	}

	if dev.ConnectivityNote != "" {
		notes = append(notes, dev.ConnectivityNote)
	}

	if len(notes) > 0 {
		return strings.Join(notes, "; ")
	}

	var errs []string

	for _, msg := range []string{dev.ErrorNote, dev.APIError, dev.StoreError} {
		if msg != "" {
			errs = append(errs, msg)
		}
	}

	joined := strings.Join(errs, "; ")
	if len(joined) > maxTechnicalErrorsLen {
		joined = joined[:maxTechnicalErrorsLen]
	}

	return joined
}

// storeCell renders the 24h telemetry check: the last-seen timestamp
// when data exists, KO when confirmed absent, otherwise a shortened
// error or a placeholder.
func storeCell(dev *models.DeviceRecord) string {
	switch {
	case dev.HasRecentData.IsTrue():
		if dev.LastSeen != nil {
			return dev.LastSeen.Format(models.TimestampLayout)
		}

		return "Data"
	case dev.HasRecentData.IsFalse():
		return "KO"
	case dev.StoreError != "":
		if len(dev.StoreError) > 20 {
			return dev.StoreError[:20]
		}

		return dev.StoreError
	default:
		return "-"
	}
}

func triCell(v models.TriState, unknown string) string {
	switch {
	case v.IsTrue():
		return "OK"
	case v.IsFalse():
		return "KO"
	default:
		return unknown
	}
}

func portCell(dev *models.DeviceRecord) string {
	switch dev.PortStatus {
	case models.StatusPortOpen:
		return "OK"
	case models.StatusPending, models.StatusRelayUnreachable:
		return "-"
	default:
		return "KO"
	}
}

// doorCell renders the door fact inverted: an open door is the failure.
func doorCell(dev *models.DeviceRecord) string {
	switch {
	case dev.DoorOpen.IsTrue():
		return "KO"
	case dev.DoorOpen.IsFalse():
		return "OK"
	default:
		return "-"
	}
}

func floatCell(v *float64) any {
	if v == nil {
		return ""
	}

	return *v
}

func indexOf(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}

	return -1
}

func columnRange(colIndex, firstRow, lastRow int) (string, error) {
	col, err := excelize.ColumnNumberToName(colIndex + 1)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%d:%s%d", col, firstRow, col, lastRow), nil
}

func writeHeader(f *excelize.File, sheet string, styles *styleSet, columns []string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}

	if err := f.SetSheetRow(sheet, "A1", &row); err != nil {
		return err
	}

	last, err := excelize.CoordinatesToCellName(len(columns), 1)
	if err != nil {
		return err
	}

	return f.SetCellStyle(sheet, "A1", last, styles.header)
}

// finishSheet adds the filter row and freezes the header.
func finishSheet(f *excelize.File, sheet string, columns, lastRow int) error {
	last, err := excelize.CoordinatesToCellName(columns, lastRow)
	if err != nil {
		return err
	}

	if err := f.AutoFilter(sheet, "A1:"+last, nil); err != nil {
		return err
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
