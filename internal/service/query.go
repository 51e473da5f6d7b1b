package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bdi-platform/wip-backend/internal/models"
	"github.com/bdi-platform/wip-backend/internal/tenant"
	"github.com/bdi-platform/wip-backend/internal/wip"
)

// QueryService serves filtered unit listings, the full CSV export, and the
// tenant-filtered unit sets the aggregate views are computed from. Because
// tenant visibility is a fuzzy prefix match that storage cannot evaluate,
// reads page through the store and filter in memory; totals therefore always
// reflect the tenant-filtered count, not the raw storage count.
type QueryService struct {
	Store    Store
	PageSize int
	Now      func() time.Time
}

func (q *QueryService) now() time.Time {
	if q.Now != nil {
		return q.Now()
	}
	return time.Now().UTC()
}

func (q *QueryService) pageSize() int {
	if q.PageSize > 0 {
		return q.PageSize
	}
	return 1000
}

// AllUnits fetches every unit matching the filters, paging sequentially
// through the store (single reads may be capped), applies the tenant filter
// and recomputes aging as of now so in-house aging never goes stale.
func (q *QueryService) AllUnits(ctx context.Context, f models.UnitFilters, vis tenant.Visibility) ([]models.WIPUnit, error) {
	size := q.pageSize()
	now := q.now()
	var out []models.WIPUnit
	for offset := 0; ; offset += size {
		page, err := q.Store.FetchUnits(ctx, f, size, offset)
		if err != nil {
			return nil, fmt.Errorf("fetch units at offset %d: %w", offset, err)
		}
		for _, u := range page {
			if !vis.Visible(u.ModelNumber) {
				continue
			}
			u.AgingDays, u.AgingBucket = wip.Aging(u, now)
			out = append(out, u)
		}
		if len(page) < size {
			return out, nil
		}
	}
}

type UnitPage struct {
	Units      []models.WIPUnit `json:"units"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"totalPages"`
}

// List returns one page of the tenant-filtered listing. An unknown batch id
// simply yields an empty page: dashboards poll these endpoints continuously
// and an empty list is more useful to them than an error.
func (q *QueryService) List(ctx context.Context, f models.UnitFilters, vis tenant.Visibility, page, limit int) (UnitPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	units, err := q.AllUnits(ctx, f, vis)
	if err != nil {
		return UnitPage{}, err
	}

	total := len(units)
	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return UnitPage{
		Units:      units[start:end],
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

// ExportFileName returns the date-stamped attachment name.
func (q *QueryService) ExportFileName() string {
	return "wip_export_" + q.now().Format("2006-01-02") + ".csv"
}

var exportHeaders = []string{
	"Serial Number", "Model Number", "Source", "Stage",
	"Received Date", "ISO Week Received", "Outflow Date",
	"Aging Days", "Aging Bucket",
	"Is WIP", "Is RMA", "Is CATV Intake",
	"EMG Ship Date", "Jira Transfer Date", "Imported At",
}

// ExportCSV renders the full filtered unit set as CSV with the fixed column
// set. The whole set is fetched before a single byte is rendered: a partial
// file is worse than an explicit failure.
func (q *QueryService) ExportCSV(ctx context.Context, f models.UnitFilters, vis tenant.Visibility) ([]byte, int, error) {
	units, err := q.AllUnits(ctx, f, vis)
	if err != nil {
		return nil, 0, err
	}

	var b strings.Builder
	b.WriteString(strings.Join(exportHeaders, ","))
	b.WriteByte('\n')
	for _, u := range units {
		fields := []string{
			quote(u.SerialNumber),
			quote(u.ModelNumber),
			quote(u.Source),
			quote(u.Stage),
			dateField(u.ReceivedDate),
			u.ISOYearWeekReceived,
			dateField(u.OutflowDate),
			intField(u.AgingDays),
			quote(u.AgingBucket),
			yesNo(u.IsWIP),
			yesNo(u.IsRMA),
			yesNo(u.IsCATVIntake),
			dateField(u.EMGShipDate),
			dateField(u.JiraTransferDate),
			u.ImportedAt.Format(time.RFC3339),
		}
		b.WriteString(strings.Join(fields, ","))
		b.WriteByte('\n')
	}
	return []byte(b.String()), len(units), nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func dateField(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func intField(n *int) string {
	if n == nil {
		return ""
	}
	return fmt.Sprintf("%d", *n)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// ResolveBatchID falls back to the scope's most recent completed import
// when the caller did not pin a batch. An empty result means no data yet.
func (q *QueryService) ResolveBatchID(ctx context.Context, scope, batchID string) (string, error) {
	if batchID != "" {
		return batchID, nil
	}
	return q.Store.LatestCompletedBatchID(ctx, scope)
}
