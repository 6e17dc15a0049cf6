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
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ornatel/fieldscan/pkg/metricstore"
	"github.com/ornatel/fieldscan/pkg/models"
)

const noHistoryData = "Nessun dato"

var historyIDColumns = []string{"Linea", "ST Sostegno", "DeviceID"}

func (e *Exporter) writeHistorySheets(f *excelize.File, styles *styleSet, devices []*models.DeviceRecord, history *History) error {
	if history.SOC != nil {
		if err := e.writeSOCHistory(f, styles, devices, history.SOC); err != nil {
			return err
		}
	}

	if history.Channel != nil {
		if err := e.writeChannelHistory(f, styles, devices, history.Channel); err != nil {
			return err
		}
	}

	if history.Signal != nil {
		if err := e.writeSignalHistory(f, styles, devices, history.Signal); err != nil {
			return err
		}
	}

	return nil
}

func (e *Exporter) writeSOCHistory(f *excelize.File, styles *styleSet, devices []*models.DeviceRecord, series map[string]*metricstore.SOCHistory) error {
	days := e.dayColumns(socDays)
	columns := append(append(append([]string{}, historyIDColumns...), days...),
		"Media", "Min", "Max", "Trend", "Errore")

	if err := newHistorySheet(f, styles, socSheet, columns); err != nil {
		return err
	}

	for i, dev := range devices {
		row := []any{dev.Line, dev.Support, dev.DeviceID}

		hist := series[dev.DeviceID]
		if hist == nil {
			row = historyErrorRow(row, len(days)+4, noHistoryData)
		} else {
			for _, day := range days {
				if v, ok := hist.Daily[day]; ok {
					row = append(row, v)
				} else {
					row = append(row, "")
				}
			}

			row = append(row, floatCell(hist.Avg), intCell(hist.Min), intCell(hist.Max), hist.Trend, "")
		}

		if err := writeRow(f, socSheet, i+2, row); err != nil {
			return err
		}
	}

	lastRow := len(devices) + 1

	socRange, err := cellRange(len(historyIDColumns)+1, 2, len(historyIDColumns)+len(days), lastRow)
	if err != nil {
		return err
	}

	if err := f.SetConditionalFormat(socSheet, socRange, socBands(styles)); err != nil {
		return err
	}

	return finishSheet(f, socSheet, len(columns), lastRow)
}

func (e *Exporter) writeChannelHistory(f *excelize.File, styles *styleSet, devices []*models.DeviceRecord, series map[string]*metricstore.ChannelHistory) error {
	hours := e.hourColumns(historyHours)
	columns := append(append(append([]string{}, historyIDColumns...), hours...),
		"LTE", "NBIoT", "Altro", "Canali Usati", "Errore")

	if err := newHistorySheet(f, styles, channelSheet, columns); err != nil {
		return err
	}

	for i, dev := range devices {
		row := []any{dev.Line, dev.Support, dev.DeviceID}

		hist := series[dev.DeviceID]
		if hist == nil {
			row = historyErrorRow(row, len(hours)+4, noHistoryData)
		} else {
			for _, hour := range hours {
				row = append(row, hist.Hourly[hour])
			}

			other := len(hist.Hourly) - hist.LTECount - hist.NBIoTCount

			row = append(row, hist.LTECount, hist.NBIoTCount, other,
				joinChannels(hist.Channels), "")
		}

		if err := writeRow(f, channelSheet, i+2, row); err != nil {
			return err
		}
	}

	return finishSheet(f, channelSheet, len(columns), len(devices)+1)
}

func (e *Exporter) writeSignalHistory(f *excelize.File, styles *styleSet, devices []*models.DeviceRecord, series map[string]*metricstore.SignalHistory) error {
	hours := e.hourColumns(historyHours)
	columns := append(append(append([]string{}, historyIDColumns...), hours...),
		"Media", "Min", "Max", "Errore")

	if err := newHistorySheet(f, styles, signalSheet, columns); err != nil {
		return err
	}

	for i, dev := range devices {
		row := []any{dev.Line, dev.Support, dev.DeviceID}

		hist := series[dev.DeviceID]
		if hist == nil {
			row = historyErrorRow(row, len(hours)+3, noHistoryData)
		} else {
			for _, hour := range hours {
				if v, ok := hist.Hourly[hour]; ok {
					row = append(row, v)
				} else {
					row = append(row, "")
				}
			}

			row = append(row, floatCell(hist.Avg), intCell(hist.Min), intCell(hist.Max), "")
		}

		if err := writeRow(f, signalSheet, i+2, row); err != nil {
			return err
		}
	}

	lastRow := len(devices) + 1

	signalRange, err := cellRange(len(historyIDColumns)+1, 2, len(historyIDColumns)+len(hours), lastRow)
	if err != nil {
		return err
	}

	if err := f.SetConditionalFormat(signalSheet, signalRange, signalBands(styles)); err != nil {
		return err
	}

	return finishSheet(f, signalSheet, len(columns), lastRow)
}

// dayColumns lists the bucket keys for the last n days, newest first,
// matching the store's daily bucket format.
func (e *Exporter) dayColumns(n int) []string {
	now := e.now().UTC()
	columns := make([]string, 0, n)

	for i := 0; i < n; i++ {
		columns = append(columns, now.AddDate(0, 0, -i).Format("2006-01-02"))
	}

	return columns
}

// hourColumns lists the bucket keys for the last n hours, newest first.
func (e *Exporter) hourColumns(n int) []string {
	now := e.now().UTC().Truncate(time.Hour)
	columns := make([]string, 0, n)

	for i := 0; i < n; i++ {
		columns = append(columns, now.Add(-time.Duration(i)*time.Hour).Format("2006-01-02 15:00"))
	}

	return columns
}

func newHistorySheet(f *excelize.File, styles *styleSet, sheet string, columns []string) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	return writeHeader(f, sheet, styles, columns)
}

// historyErrorRow pads the value columns and puts the message in the
// trailing Errore column.
func historyErrorRow(row []any, padding int, message string) []any {
	for i := 0; i < padding; i++ {
		row = append(row, "")
	}

	return append(row, message)
}

func writeRow(f *excelize.File, sheet string, rowNum int, row []any) error {
	cellRef, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}

	return f.SetSheetRow(sheet, cellRef, &row)
}

func cellRange(firstCol, firstRow, lastCol, lastRow int) (string, error) {
	first, err := excelize.CoordinatesToCellName(firstCol, firstRow)
	if err != nil {
		return "", err
	}

	last, err := excelize.CoordinatesToCellName(lastCol, lastRow)
	if err != nil {
		return "", err
	}

	return first + ":" + last, nil
}

func intCell(v *int) any {
	if v == nil {
		return ""
	}

	return *v
}

func joinChannels(channels []string) string {
	return strings.Join(channels, ", ")
}
