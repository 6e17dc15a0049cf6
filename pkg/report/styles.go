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

import "github.com/xuri/excelize/v2"

// styleSet holds the style ids shared across sheets. Excel style ids are
// workbook-scoped, so one set serves every sheet.
type styleSet struct {
	header int
	ok     int
	ko     int
	warn   int
}

func newStyleSet(f *excelize.File) (*styleSet, error) {
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"0066CC"}},
	})
	if err != nil {
		return nil, err
	}

	ok, err := fillStyle(f, "C6EFCE", "006100", false)
	if err != nil {
		return nil, err
	}

	ko, err := fillStyle(f, "FFC7CE", "9C0006", false)
	if err != nil {
		return nil, err
	}

	warn, err := fillStyle(f, "FFEB9C", "9C6500", true)
	if err != nil {
		return nil, err
	}

	return &styleSet{header: header, ok: ok, ko: ko, warn: warn}, nil
}

func fillStyle(f *excelize.File, fill, font string, bold bool) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: font, Bold: bold},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fill}},
	})
}

// socBands colours state-of-charge cells: below 30 critical, up to 60
// degraded, above 60 healthy.
func socBands(styles *styleSet) []excelize.ConditionalFormatOptions {
	return []excelize.ConditionalFormatOptions{
		{Type: "cell", Criteria: "<", Value: "30", Format: &styles.ko},
		{Type: "cell", Criteria: "between", MinValue: "30", MaxValue: "60", Format: &styles.warn},
		{Type: "cell", Criteria: ">", Value: "60", Format: &styles.ok},
	}
}

// signalBands colours dBm cells: stronger than -70 good, down to -85
// marginal, weaker than -85 poor.
func signalBands(styles *styleSet) []excelize.ConditionalFormatOptions {
	return []excelize.ConditionalFormatOptions{
		{Type: "cell", Criteria: ">", Value: "-70", Format: &styles.ok},
		{Type: "cell", Criteria: "between", MinValue: "-85", MaxValue: "-70", Format: &styles.warn},
		{Type: "cell", Criteria: "<", Value: "-85", Format: &styles.ko},
	}
}
