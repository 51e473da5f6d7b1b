package wip

import (
	"testing"
	"time"
)

func TestNormalizeRow_MessyHeaders(t *testing.T) {
	row := map[string]any{
		"  Serial Number ": "SN-001",
		"MODEL NUMBER":     "MNQ1525-30W-U",
		"Source":           "CPE RMA Returns",
		"WIP (1/0)":        "1",
		"Date Stamp":       "2025-09-01",
	}
	u, err := NormalizeRow(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.SerialNumber != "SN-001" {
		t.Fatalf("expected serial SN-001, got %q", u.SerialNumber)
	}
	if u.ModelNumber != "MNQ1525-30W-U" {
		t.Fatalf("expected model MNQ1525-30W-U, got %q", u.ModelNumber)
	}
	if !u.IsWIP {
		t.Fatalf("expected is_wip true")
	}
	if !u.IsRMA {
		t.Fatalf("expected is_rma true from source containing rma")
	}
	if u.ReceivedDate == nil || !u.ReceivedDate.Equal(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected received date 2025-09-01, got %v", u.ReceivedDate)
	}
}

func TestNormalizeRow_MissingSerial(t *testing.T) {
	_, err := NormalizeRow(map[string]any{"Model Number": "ABC123"})
	if err == nil {
		t.Fatalf("expected error for missing serial number")
	}
}

func TestNormalizeRow_MissingModel(t *testing.T) {
	_, err := NormalizeRow(map[string]any{"Serial Number": "SN-1"})
	if err == nil {
		t.Fatalf("expected error for missing model number")
	}
}

func TestNormalizeRow_FlagCoercion(t *testing.T) {
	cases := []struct {
		value any
		want  bool
	}{
		{1, true},
		{"1", true},
		{true, true},
		{"yes", true},
		{"Yes", true},
		{0, false},
		{"0", false},
		{"", false},
		{nil, false},
		{"no", false},
	}
	for _, tc := range cases {
		u, err := NormalizeRow(map[string]any{
			"Serial Number": "SN-1",
			"Model Number":  "ABC123",
			"WIP (1/0)":     tc.value,
		})
		if err != nil {
			t.Fatalf("unexpected error for %v: %v", tc.value, err)
		}
		if u.IsWIP != tc.want {
			t.Fatalf("value %v: expected is_wip=%v, got %v", tc.value, tc.want, u.IsWIP)
		}
	}
}

func TestParseDateCell_SerialNumber(t *testing.T) {
	// 45900 is 2025-08-31 in the 1900 date system.
	d := parseDateCell(float64(45900))
	if d == nil {
		t.Fatalf("expected serial date to parse")
	}
	if got := d.Format("2006-01-02"); got != "2025-08-31" {
		t.Fatalf("expected 2025-08-31, got %s", got)
	}
	if h, m, s := d.Clock(); h != 0 || m != 0 || s != 0 {
		t.Fatalf("expected midnight, got %02d:%02d:%02d", h, m, s)
	}
}

func TestParseDateCell_SerialAsString(t *testing.T) {
	d := parseDateCell("45900")
	if d == nil {
		t.Fatalf("expected serial string to parse")
	}
	if got := d.Format("2006-01-02"); got != "2025-08-31" {
		t.Fatalf("expected 2025-08-31, got %s", got)
	}
}

func TestParseDateCell_Layouts(t *testing.T) {
	for _, s := range []string{"2025-09-01", "09/01/2025", "9/1/2025", "2025/09/01"} {
		d := parseDateCell(s)
		if d == nil {
			t.Fatalf("expected %q to parse", s)
		}
		if got := d.Format("2006-01-02"); got != "2025-09-01" {
			t.Fatalf("%q: expected 2025-09-01, got %s", s, got)
		}
	}
	if d := parseDateCell("not a date"); d != nil {
		t.Fatalf("expected garbage to yield nil, got %v", d)
	}
}

func TestISOYearWeek(t *testing.T) {
	// 2025-01-01 is a Wednesday in ISO week 1.
	got := ISOYearWeek(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if got != "2025-01" {
		t.Fatalf("expected 2025-01, got %s", got)
	}
	// 2024-12-30 is a Monday belonging to ISO 2025 week 1.
	got = ISOYearWeek(time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC))
	if got != "2025-01" {
		t.Fatalf("expected 2025-01, got %s", got)
	}
}
