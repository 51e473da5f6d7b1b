package models

import "time"

// Lifecycle stages, ordered from least to most advanced.
const (
	StageIntake      = "Intake"
	StageWIP         = "WIP"
	StageRMA         = "RMA"
	StageOutflow     = "Outflow"
	StageOtherIntake = "Other Intake"
	StageUnknown     = "Unknown"
)

const (
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchFailed     = "failed"
)

// StatusOrder is the canonical display order for wip_status values.
// A unit with no status is reported under StatusUnassigned.
var StatusOrder = []string{
	"RECEIVED",
	"PASSED",
	"FAILED",
	"RTS-NEW",
	"RTS-KITTED",
	"RECYCLED",
	"SHIPPED",
	"RMA_SHIPPED",
	"MISSING",
}

const StatusUnassigned = "UNASSIGNED"

// AgingBuckets in display order. Boundaries are inclusive on both ends.
var AgingBuckets = []string{"0-7", "8-14", "15-30", ">30"}

// WIPUnit is one physical inventory unit keyed by serial number within a
// batch. All date fields are calendar dates (midnight UTC, no time-of-day).
// Stage, OutflowDate, AgingDays and AgingBucket are derived, never imported.
type WIPUnit struct {
	ID           string `json:"id,omitempty"`
	SerialNumber string `json:"serial_number"`
	ModelNumber  string `json:"model_number"`
	Source       string `json:"source,omitempty"`

	ReceivedDate        *time.Time `json:"received_date,omitempty"`
	ISOYearWeekReceived string     `json:"iso_year_week_received,omitempty"`
	EMGShipDate         *time.Time `json:"emg_ship_date,omitempty"`
	EMGInvoiceDate      *time.Time `json:"emg_invoice_date,omitempty"`
	JiraInvoiceDate     *time.Time `json:"jira_invoice_date,omitempty"`
	JiraTransferDate    *time.Time `json:"jira_transfer_date,omitempty"`

	IsWIP        bool `json:"is_wip"`
	IsRMA        bool `json:"is_rma"`
	IsCATVIntake bool `json:"is_catv_intake"`

	WIPStatus string `json:"wip_status,omitempty"`
	Outflow   string `json:"outflow,omitempty"`

	Stage       string     `json:"stage"`
	OutflowDate *time.Time `json:"outflow_date,omitempty"`
	AgingDays   *int       `json:"aging_days,omitempty"`
	AgingBucket string     `json:"aging_bucket,omitempty"`

	Scope         string    `json:"scope,omitempty"`
	ImportBatchID string    `json:"import_batch_id,omitempty"`
	ImportedAt    time.Time `json:"imported_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

type SummaryStats struct {
	Intake  int `json:"intake"`
	WIP     int `json:"wip"`
	RMA     int `json:"rma"`
	Outflow int `json:"outflow"`
}

type ImportBatch struct {
	ID            string        `json:"id"`
	Scope         string        `json:"scope"`
	FileName      string        `json:"file_name"`
	TotalRows     int           `json:"total_rows"`
	ProcessedRows int           `json:"processed_rows"`
	FailedRows    int           `json:"failed_rows"`
	Status        string        `json:"status"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	SummaryStats  *SummaryStats `json:"summary_stats,omitempty"`
}

// WeeklySummary is a materialized row of the weekly aggregate, regenerated
// wholesale on each import.
type WeeklySummary struct {
	ISOYearWeek    string `json:"iso_year_week"`
	ReceivedIn     int    `json:"received_in"`
	JiraShippedOut int    `json:"jira_shipped_out"`
	EMGShippedOut  int    `json:"emg_shipped_out"`
	WIPInHouse     int    `json:"wip_in_house"`
	WIPCumulative  int    `json:"wip_cumulative"`
	ImportBatchID  string `json:"import_batch_id,omitempty"`
}

// UnitFilters narrows storage reads. Zero values mean "no filter".
type UnitFilters struct {
	Scope         string
	ImportBatchID string
	SKU           string
	Source        string
	Stage         string
	Search        string
	Destination   string
	Status        string
	RMAOnly       bool
	DateFrom      *time.Time
	DateTo        *time.Time
}
