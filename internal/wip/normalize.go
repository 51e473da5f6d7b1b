package wip

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/bdi-platform/wip-backend/internal/models"
)

// Raw rows arrive as string-keyed cell maps from the upload collaborator.
// Header names follow the source workbook and carry the usual spreadsheet
// messiness (trailing spaces, renamed columns between exports), so every
// field is looked up under its known aliases.

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"01-02-2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// NormalizeRow converts one raw import row into a canonical unit draft.
// Missing serial or model number is a hard row error; every other field is
// optional. Derived fields are not populated here, see Derive.
func NormalizeRow(row map[string]any) (models.WIPUnit, error) {
	cells := indexCells(row)

	serial := cellString(cells, "serial number", "serial", "serial #", "sn")
	model := cellString(cells, "model number", "model", "sku")
	if serial == "" {
		return models.WIPUnit{}, fmt.Errorf("missing serial number")
	}
	if model == "" {
		return models.WIPUnit{}, fmt.Errorf("missing model number")
	}

	source := cellString(cells, "source")
	sourceLower := strings.ToLower(source)

	unit := models.WIPUnit{
		SerialNumber: serial,
		ModelNumber:  model,
		Source:       source,
	}

	unit.IsWIP = cellFlag(cells, "wip (1/0)", "wip", "wip(1/0)")
	// RMA column with source-based fallback for exports that predate it.
	unit.IsRMA = cellFlag(cells, "rma/seed stock", "rma", "rma (1/0)", "rma(1/0)") ||
		strings.Contains(sourceLower, "rma")
	unit.IsCATVIntake = strings.Contains(sourceLower, "catv")

	unit.ReceivedDate = cellDate(cells, "date stamp", "received date", "date received")
	unit.EMGShipDate = cellDate(cells, "emg ship date")
	unit.EMGInvoiceDate = cellDate(cells, "emg invoice date")
	unit.JiraInvoiceDate = cellDate(cells, "jira invoice date")
	unit.JiraTransferDate = cellDate(cells, "jira transfer date")

	unit.ISOYearWeekReceived = cellString(cells, "iso yearweek (received)", "iso yearweek received", "iso week received")
	unit.WIPStatus = strings.ToUpper(cellString(cells, "wip status", "status"))
	unit.Outflow = cellString(cells, "outflow", "destination")

	return unit, nil
}

func indexCells(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[normalizeHeader(k)] = v
	}
	return out
}

func normalizeHeader(h string) string {
	h = strings.ReplaceAll(h, "\ufeff", "")
	return strings.ToLower(strings.TrimSpace(h))
}

func cellString(cells map[string]any, names ...string) string {
	for _, name := range names {
		v, ok := cells[name]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case int:
			s = strconv.Itoa(t)
		case bool:
			if t {
				s = "1"
			}
		default:
			s = fmt.Sprintf("%v", t)
		}
		s = strings.TrimSpace(s)
		if s != "" {
			return s
		}
	}
	return ""
}

// cellFlag coerces 1/"1"/true/"yes" to true; blank and everything else is false.
func cellFlag(cells map[string]any, names ...string) bool {
	s := strings.ToLower(cellString(cells, names...))
	return s == "1" || s == "true" || s == "yes"
}

func cellDate(cells map[string]any, names ...string) *time.Time {
	for _, name := range names {
		v, ok := cells[name]
		if !ok || v == nil {
			continue
		}
		if d := parseDateCell(v); d != nil {
			return d
		}
	}
	return nil
}

// parseDateCell accepts ISO and locale date strings, spreadsheet serial
// numbers and time.Time values, truncating all of them to a calendar date.
// Time-of-day is not meaningful in this domain.
func parseDateCell(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return datePtr(t)
	case float64:
		return serialDate(t)
	case int:
		return serialDate(float64(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return datePtr(parsed)
			}
		}
		// Serial numbers sometimes surface as strings after re-encoding.
		if serial, err := strconv.ParseFloat(s, 64); err == nil {
			return serialDate(serial)
		}
	}
	return nil
}

func serialDate(serial float64) *time.Time {
	if serial <= 0 {
		return nil
	}
	d, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return nil
	}
	return datePtr(d)
}

func datePtr(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

// ISOYearWeek formats t per ISO 8601 week numbering, e.g. "2025-41".
func ISOYearWeek(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-%02d", year, week)
}
