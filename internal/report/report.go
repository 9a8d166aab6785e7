// Package report renders classified history rows as downloadable CSV or XLSX files.
package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"iot-monitor/internal/models"

	"github.com/relvacode/iso8601"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var header = []string{"Sensor", "Timestamp", "Current (A)", "Power (W)", "Device", "State"}

// Row is one exported history entry with its numeric columns already rounded.
type Row struct {
	SensorID   string
	Timestamp  string
	Current    decimal.Decimal
	Power      decimal.Decimal
	DeviceType string
	State      string
}

func Rows(records []models.AlertRecord) []Row {
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, Row{
			SensorID:   r.SensorID,
			Timestamp:  r.Timestamp,
			Current:    decimal.NewFromFloat(r.Current).Round(3),
			Power:      decimal.NewFromFloat(r.Power).Round(2),
			DeviceType: r.Device.Type,
			State:      r.State,
		})
	}
	return rows
}

func (r Row) strings() []string {
	return []string{r.SensorID, r.Timestamp, r.Current.StringFixed(3), r.Power.StringFixed(2), r.DeviceType, r.State}
}

func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.strings()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const sheet = "History"

// WriteExcel writes a single-sheet workbook. Timestamps that parse as ISO-8601 become date cells.
func WriteExcel(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"2C3E50"}},
	})
	if err != nil {
		return err
	}
	overloadStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "E74C3C", Bold: true},
	})
	if err != nil {
		return err
	}
	currentFormat, powerFormat := "0.000", "0.00"
	currentStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &currentFormat})
	if err != nil {
		return err
	}
	powerStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &powerFormat})
	if err != nil {
		return err
	}
	dateFormat := "yyyy-mm-dd hh:mm:ss"
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dateFormat})
	if err != nil {
		return err
	}

	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "F1", headerStyle); err != nil {
		return err
	}

	for i, r := range rows {
		line := i + 2
		current, _ := r.Current.Float64()
		power, _ := r.Power.Float64()
		values := []interface{}{r.SensorID, r.Timestamp, current, power, r.DeviceType, r.State}

		ts, perr := iso8601.ParseString(r.Timestamp)
		if perr == nil {
			values[1] = ts
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", line), &values); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, fmt.Sprintf("C%d", line), fmt.Sprintf("C%d", line), currentStyle); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, fmt.Sprintf("D%d", line), fmt.Sprintf("D%d", line), powerStyle); err != nil {
			return err
		}
		if perr == nil {
			cell := fmt.Sprintf("B%d", line)
			if err := f.SetCellStyle(sheet, cell, cell, dateStyle); err != nil {
				return err
			}
		}
		if r.State == models.StateOverload {
			cell := fmt.Sprintf("F%d", line)
			if err := f.SetCellStyle(sheet, cell, cell, overloadStyle); err != nil {
				return err
			}
		}
	}

	for col, width := range map[string]float64{"A": 14, "B": 22, "C": 12, "D": 12, "E": 22, "F": 12} {
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return err
		}
	}

	_, err = f.WriteTo(w)
	return err
}
