package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bdi-platform/wip-backend/internal/models"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

var unitColumns = []string{
	"id", "scope", "serial_number", "model_number", "source",
	"received_date", "iso_year_week_received",
	"emg_ship_date", "emg_invoice_date", "jira_invoice_date", "jira_transfer_date",
	"is_wip", "is_rma", "is_catv_intake", "wip_status", "outflow",
	"stage", "outflow_date", "import_batch_id", "imported_at", "updated_at",
}

// ReplaceSnapshot swaps the stored unit set for a scope: delete the previous
// snapshot, insert the new units in bounded CopyFrom chunks, and regenerate
// the weekly summary rows - all in one transaction, so concurrent readers
// never observe a mix of old and new data.
func (s *Store) ReplaceSnapshot(ctx context.Context, scope string, units []models.WIPUnit, weekly []models.WeeklySummary, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM warehouse_wip_units WHERE scope = $1`, scope); err != nil {
			return fmt.Errorf("delete previous snapshot: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM warehouse_wip_weekly_summary WHERE scope = $1`, scope); err != nil {
			return fmt.Errorf("delete previous weekly summary: %w", err)
		}

		cols := unitColumns[1:] // id is generated
		for start := 0; start < len(units); start += chunkSize {
			end := start + chunkSize
			if end > len(units) {
				end = len(units)
			}
			rows := make([][]any, 0, end-start)
			for _, u := range units[start:end] {
				rows = append(rows, []any{
					scope, u.SerialNumber, u.ModelNumber, nullString(u.Source),
					u.ReceivedDate, nullString(u.ISOYearWeekReceived),
					u.EMGShipDate, u.EMGInvoiceDate, u.JiraInvoiceDate, u.JiraTransferDate,
					u.IsWIP, u.IsRMA, u.IsCATVIntake, nullString(u.WIPStatus), nullString(u.Outflow),
					u.Stage, u.OutflowDate, u.ImportBatchID, u.ImportedAt, u.UpdatedAt,
				})
			}
			if _, err := tx.CopyFrom(ctx, pgx.Identifier{"warehouse_wip_units"}, cols, pgx.CopyFromRows(rows)); err != nil {
				return fmt.Errorf("insert units %d-%d: %w", start, end, err)
			}
		}

		for _, w := range weekly {
			_, err := tx.Exec(ctx, `
				INSERT INTO warehouse_wip_weekly_summary
					(scope, iso_year_week, received_in, jira_shipped_out, emg_shipped_out, wip_in_house, wip_cumulative, import_batch_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				scope, w.ISOYearWeek, w.ReceivedIn, w.JiraShippedOut, w.EMGShippedOut, w.WIPInHouse, w.WIPCumulative, w.ImportBatchID)
			if err != nil {
				return fmt.Errorf("insert weekly summary %s: %w", w.ISOYearWeek, err)
			}
		}
		return nil
	})
}

// FetchUnits reads one page of units matching the filters, sorted by
// received date descending. Tenant filtering happens above the store.
func (s *Store) FetchUnits(ctx context.Context, f models.UnitFilters, limit, offset int) ([]models.WIPUnit, error) {
	query := `SELECT ` + strings.Join(unitColumns, ", ") + ` FROM warehouse_wip_units`
	var args []any
	var wheres []string

	add := func(cond string, val any) {
		args = append(args, val)
		wheres = append(wheres, fmt.Sprintf(cond, len(args)))
	}

	if f.Scope != "" {
		add("scope = $%d", f.Scope)
	}
	if f.ImportBatchID != "" {
		add("import_batch_id = $%d", f.ImportBatchID)
	}
	if f.SKU != "" {
		add("model_number = $%d", f.SKU)
	}
	if f.Source != "" {
		add("source ILIKE $%d", "%"+f.Source+"%")
	}
	if f.Stage != "" {
		add("stage = $%d", f.Stage)
	}
	if f.Search != "" {
		add("serial_number ILIKE $%d", "%"+f.Search+"%")
	}
	if f.Destination != "" {
		add("outflow = $%d", f.Destination)
	}
	if f.Status != "" {
		add("wip_status = $%d", f.Status)
	}
	if f.RMAOnly {
		wheres = append(wheres, "is_rma = TRUE")
	}
	if f.DateFrom != nil {
		add("received_date >= $%d", *f.DateFrom)
	}
	if f.DateTo != nil {
		add("received_date <= $%d", *f.DateTo)
	}

	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY received_date DESC NULLS LAST, serial_number ASC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WIPUnit
	for rows.Next() {
		var u models.WIPUnit
		var source, week, status, outflow *string
		if err := rows.Scan(
			&u.ID, &u.Scope, &u.SerialNumber, &u.ModelNumber, &source,
			&u.ReceivedDate, &week,
			&u.EMGShipDate, &u.EMGInvoiceDate, &u.JiraInvoiceDate, &u.JiraTransferDate,
			&u.IsWIP, &u.IsRMA, &u.IsCATVIntake, &status, &outflow,
			&u.Stage, &u.OutflowDate, &u.ImportBatchID, &u.ImportedAt, &u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		u.Source = deref(source)
		u.ISOYearWeekReceived = deref(week)
		u.WIPStatus = deref(status)
		u.Outflow = deref(outflow)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) CreateImportBatch(ctx context.Context, b models.ImportBatch) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO warehouse_wip_imports (id, scope, file_name, status, started_at)
		VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.Scope, b.FileName, b.Status, b.StartedAt)
	return err
}

func (s *Store) FinishImportBatch(ctx context.Context, b models.ImportBatch) error {
	var stats []byte
	if b.SummaryStats != nil {
		stats, _ = json.Marshal(b.SummaryStats)
	}
	_, err := s.Pool.Exec(ctx, `
		UPDATE warehouse_wip_imports
		SET status = $2, total_rows = $3, processed_rows = $4, failed_rows = $5,
			error_message = $6, completed_at = $7, summary_stats = $8
		WHERE id = $1`,
		b.ID, b.Status, b.TotalRows, b.ProcessedRows, b.FailedRows,
		nullString(b.ErrorMessage), b.CompletedAt, stats)
	return err
}

func (s *Store) GetImportBatch(ctx context.Context, id string) (models.ImportBatch, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, scope, file_name, total_rows, processed_rows, failed_rows,
			status, COALESCE(error_message, ''), started_at, completed_at, summary_stats
		FROM warehouse_wip_imports WHERE id = $1`, id)
	return scanImportBatch(row)
}

func (s *Store) ListImportBatches(ctx context.Context, scope string, limit int) ([]models.ImportBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, scope, file_name, total_rows, processed_rows, failed_rows,
			status, COALESCE(error_message, ''), started_at, completed_at, summary_stats
		FROM warehouse_wip_imports`
	args := []any{}
	if scope != "" {
		args = append(args, scope)
		query += ` WHERE scope = $1`
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, len(args))

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ImportBatch
	for rows.Next() {
		b, err := scanImportBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// FindCompletedImportByFile reports a prior completed import of the same
// file within the scope, used by the duplicate-upload guard.
func (s *Store) FindCompletedImportByFile(ctx context.Context, scope, fileName string) (*models.ImportBatch, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, scope, file_name, total_rows, processed_rows, failed_rows,
			status, COALESCE(error_message, ''), started_at, completed_at, summary_stats
		FROM warehouse_wip_imports
		WHERE scope = $1 AND file_name = $2 AND status = $3
		ORDER BY completed_at DESC LIMIT 1`, scope, fileName, models.BatchCompleted)
	b, err := scanImportBatch(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) DeleteImportBatch(ctx context.Context, id string) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM warehouse_wip_imports WHERE id = $1`, id)
	return err
}

// LatestCompletedBatchID returns "" when the scope has no completed import.
func (s *Store) LatestCompletedBatchID(ctx context.Context, scope string) (string, error) {
	var id string
	err := s.Pool.QueryRow(ctx, `
		SELECT id FROM warehouse_wip_imports
		WHERE scope = $1 AND status = $2
		ORDER BY completed_at DESC LIMIT 1`, scope, models.BatchCompleted).Scan(&id)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	return id, err
}

// ListOwnedSKUCodes returns the sku and model codes of the catalog entries
// manufactured by the given organization.
func (s *Store) ListOwnedSKUCodes(ctx context.Context, orgCode string) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT sku, COALESCE(model, '') FROM product_skus WHERE mfg = $1`, orgCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := map[string]struct{}{}
	var out []string
	for rows.Next() {
		var sku, model string
		if err := rows.Scan(&sku, &model); err != nil {
			return nil, err
		}
		for _, code := range []string{sku, model} {
			if code == "" {
				continue
			}
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			out = append(out, code)
		}
	}
	return out, rows.Err()
}

func scanImportBatch(row pgx.Row) (models.ImportBatch, error) {
	var b models.ImportBatch
	var stats []byte
	var completedAt *time.Time
	err := row.Scan(&b.ID, &b.Scope, &b.FileName, &b.TotalRows, &b.ProcessedRows,
		&b.FailedRows, &b.Status, &b.ErrorMessage, &b.StartedAt, &completedAt, &stats)
	if err != nil {
		return models.ImportBatch{}, err
	}
	b.CompletedAt = completedAt
	if len(stats) > 0 {
		var s models.SummaryStats
		if err := json.Unmarshal(stats, &s); err == nil {
			b.SummaryStats = &s
		}
	}
	return b, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
