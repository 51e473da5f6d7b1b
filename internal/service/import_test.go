package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/bdi-platform/wip-backend/internal/lock"
	"github.com/bdi-platform/wip-backend/internal/models"
)

// fakeStore keeps the snapshot in memory and mimics the store's paging and
// ordering contract closely enough for service tests.
type fakeStore struct {
	units   map[string][]models.WIPUnit
	weekly  map[string][]models.WeeklySummary
	batches map[string]models.ImportBatch
	skus    map[string][]string

	replaceErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		units:   map[string][]models.WIPUnit{},
		weekly:  map[string][]models.WeeklySummary{},
		batches: map[string]models.ImportBatch{},
		skus:    map[string][]string{},
	}
}

func (s *fakeStore) ReplaceSnapshot(_ context.Context, scope string, units []models.WIPUnit, weekly []models.WeeklySummary, _ int) error {
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.units[scope] = append([]models.WIPUnit{}, units...)
	s.weekly[scope] = append([]models.WeeklySummary{}, weekly...)
	return nil
}

func (s *fakeStore) FetchUnits(_ context.Context, f models.UnitFilters, limit, offset int) ([]models.WIPUnit, error) {
	all := s.units[f.Scope]
	var matched []models.WIPUnit
	for _, u := range all {
		if f.ImportBatchID != "" && u.ImportBatchID != f.ImportBatchID {
			continue
		}
		if f.SKU != "" && u.ModelNumber != f.SKU {
			continue
		}
		if f.Stage != "" && u.Stage != f.Stage {
			continue
		}
		if f.RMAOnly && !u.IsRMA {
			continue
		}
		matched = append(matched, u)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *fakeStore) CreateImportBatch(_ context.Context, b models.ImportBatch) error {
	s.batches[b.ID] = b
	return nil
}

func (s *fakeStore) FinishImportBatch(_ context.Context, b models.ImportBatch) error {
	s.batches[b.ID] = b
	return nil
}

func (s *fakeStore) GetImportBatch(_ context.Context, id string) (models.ImportBatch, error) {
	b, ok := s.batches[id]
	if !ok {
		return models.ImportBatch{}, pgx.ErrNoRows
	}
	return b, nil
}

func (s *fakeStore) ListImportBatches(_ context.Context, scope string, _ int) ([]models.ImportBatch, error) {
	var out []models.ImportBatch
	for _, b := range s.batches {
		if scope == "" || b.Scope == scope {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeStore) FindCompletedImportByFile(_ context.Context, scope, fileName string) (*models.ImportBatch, error) {
	for _, b := range s.batches {
		if b.Scope == scope && b.FileName == fileName && b.Status == models.BatchCompleted {
			found := b
			return &found, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) DeleteImportBatch(_ context.Context, id string) error {
	delete(s.batches, id)
	return nil
}

func (s *fakeStore) LatestCompletedBatchID(_ context.Context, scope string) (string, error) {
	var latest models.ImportBatch
	for _, b := range s.batches {
		if b.Scope != scope || b.Status != models.BatchCompleted || b.CompletedAt == nil {
			continue
		}
		if latest.CompletedAt == nil || b.CompletedAt.After(*latest.CompletedAt) {
			latest = b
		}
	}
	return latest.ID, nil
}

func (s *fakeStore) ListOwnedSKUCodes(_ context.Context, orgCode string) ([]string, error) {
	return s.skus[orgCode], nil
}

func newImportService(store Store) *ImportService {
	return &ImportService{
		Store:  store,
		Locker: lock.NewLocalLocker(),
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return time.Date(2025, 9, 20, 0, 0, 0, 0, time.UTC) },
	}
}

func sampleRow(serial string) map[string]any {
	return map[string]any{
		"Serial Number": serial,
		"Model Number":  "MNQ1525-30W-U",
		"Source":        "EMG",
		"Date Stamp":    "2025-09-01",
		"WIP (1/0)":     "1",
	}
}

func TestImportRun_Completes(t *testing.T) {
	store := newFakeStore()
	svc := newImportService(store)

	batch, rowErrors, err := svc.Run(context.Background(), ImportRequest{
		Scope:    "warehouse-wip",
		FileName: "snapshot.xlsx",
		Rows:     []map[string]any{sampleRow("SN-1"), sampleRow("SN-2")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rowErrors) != 0 {
		t.Fatalf("expected no row errors, got %v", rowErrors)
	}
	if batch.Status != models.BatchCompleted {
		t.Fatalf("expected completed, got %s", batch.Status)
	}
	if batch.ProcessedRows != 2 || batch.FailedRows != 0 {
		t.Fatalf("unexpected counts: %+v", batch)
	}
	if batch.SummaryStats == nil || batch.SummaryStats.Intake != 2 {
		t.Fatalf("unexpected stats: %+v", batch.SummaryStats)
	}
	if len(store.units["warehouse-wip"]) != 2 {
		t.Fatalf("expected 2 persisted units, got %d", len(store.units["warehouse-wip"]))
	}
	for _, u := range store.units["warehouse-wip"] {
		if u.ImportBatchID != batch.ID {
			t.Fatalf("unit missing batch id: %+v", u)
		}
		if u.Stage == "" {
			t.Fatalf("unit missing derived stage: %+v", u)
		}
	}
}

func TestImportRun_BadRowsSkippedNotFatal(t *testing.T) {
	store := newFakeStore()
	svc := newImportService(store)

	rows := make([]map[string]any, 0, 1000)
	for i := 0; i < 1000; i++ {
		if i == 500 {
			rows = append(rows, map[string]any{"Model Number": "MNQ1525-30W-U"})
			continue
		}
		rows = append(rows, sampleRow(fmt.Sprintf("SN-%04d", i)))
	}

	batch, rowErrors, err := svc.Run(context.Background(), ImportRequest{
		Scope: "warehouse-wip", FileName: "big.xlsx", Rows: rows,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.Status != models.BatchCompleted {
		t.Fatalf("expected completed, got %s", batch.Status)
	}
	if batch.TotalRows != 1000 || batch.ProcessedRows != 999 || batch.FailedRows != 1 {
		t.Fatalf("unexpected counts: total=%d processed=%d failed=%d", batch.TotalRows, batch.ProcessedRows, batch.FailedRows)
	}
	if len(rowErrors) != 1 || !strings.HasPrefix(rowErrors[0], "row 501:") {
		t.Fatalf("unexpected row errors: %v", rowErrors)
	}
}

func TestImportRun_ReplaceSemantics(t *testing.T) {
	store := newFakeStore()
	svc := newImportService(store)
	ctx := context.Background()

	if _, _, err := svc.Run(ctx, ImportRequest{
		Scope: "warehouse-wip", FileName: "day1.xlsx",
		Rows: []map[string]any{sampleRow("SN-1"), sampleRow("SN-2"), sampleRow("SN-3")},
	}); err != nil {
		t.Fatalf("first import: %v", err)
	}

	batch, _, err := svc.Run(ctx, ImportRequest{
		Scope: "warehouse-wip", FileName: "day2.xlsx",
		Rows: []map[string]any{sampleRow("SN-9")},
	})
	if err != nil {
		t.Fatalf("second import: %v", err)
	}

	units := store.units["warehouse-wip"]
	if len(units) != 1 {
		t.Fatalf("expected snapshot fully replaced, got %d units", len(units))
	}
	if units[0].SerialNumber != "SN-9" || units[0].ImportBatchID != batch.ID {
		t.Fatalf("unexpected surviving unit: %+v", units[0])
	}
}

func TestImportRun_DuplicateFileRejected(t *testing.T) {
	store := newFakeStore()
	svc := newImportService(store)
	ctx := context.Background()

	first, _, err := svc.Run(ctx, ImportRequest{
		Scope: "warehouse-wip", FileName: "same.xlsx", Rows: []map[string]any{sampleRow("SN-1")},
	})
	if err != nil {
		t.Fatalf("first import: %v", err)
	}

	_, _, err = svc.Run(ctx, ImportRequest{
		Scope: "warehouse-wip", FileName: "same.xlsx", Rows: []map[string]any{sampleRow("SN-2")},
	})
	var dup *DuplicateFileError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateFileError, got %v", err)
	}
	if dup.ExistingID != first.ID {
		t.Fatalf("expected existing id %s, got %s", first.ID, dup.ExistingID)
	}

	// replace=true overwrites both the data and the batch record.
	batch, _, err := svc.Run(ctx, ImportRequest{
		Scope: "warehouse-wip", FileName: "same.xlsx", Replace: true,
		Rows: []map[string]any{sampleRow("SN-2")},
	})
	if err != nil {
		t.Fatalf("replace import: %v", err)
	}
	if _, err := store.GetImportBatch(ctx, first.ID); err != pgx.ErrNoRows {
		t.Fatalf("expected first batch deleted, got %v", err)
	}
	if batch.Status != models.BatchCompleted {
		t.Fatalf("expected completed, got %s", batch.Status)
	}
}

func TestImportRun_PersistenceFailureMarksBatchFailed(t *testing.T) {
	store := newFakeStore()
	store.replaceErr = errors.New("copy failed")
	svc := newImportService(store)

	batch, _, err := svc.Run(context.Background(), ImportRequest{
		Scope: "warehouse-wip", FileName: "bad.xlsx", Rows: []map[string]any{sampleRow("SN-1")},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if batch.Status != models.BatchFailed {
		t.Fatalf("expected failed status, got %s", batch.Status)
	}
	stored := store.batches[batch.ID]
	if stored.Status != models.BatchFailed {
		t.Fatalf("expected failure persisted, got %s", stored.Status)
	}
	if strings.Contains(stored.ErrorMessage, "copy failed") {
		t.Fatalf("driver detail leaked into stored error: %q", stored.ErrorMessage)
	}
	if len(store.units["warehouse-wip"]) != 0 {
		t.Fatalf("expected no units persisted on failure")
	}
}

func TestImportRun_ScopeLocked(t *testing.T) {
	store := newFakeStore()
	locker := lock.NewLocalLocker()
	svc := newImportService(store)
	svc.Locker = locker

	release, err := locker.Acquire(context.Background(), "warehouse-wip", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	_, _, err = svc.Run(context.Background(), ImportRequest{
		Scope: "warehouse-wip", FileName: "f.xlsx", Rows: []map[string]any{sampleRow("SN-1")},
	})
	if !errors.Is(err, lock.ErrScopeLocked) {
		t.Fatalf("expected ErrScopeLocked, got %v", err)
	}
}
