package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bdi-platform/wip-backend/internal/lock"
	"github.com/bdi-platform/wip-backend/internal/models"
	"github.com/bdi-platform/wip-backend/internal/wip"
)

// Store is the storage surface the services depend on, implemented by db.Store.
type Store interface {
	ReplaceSnapshot(ctx context.Context, scope string, units []models.WIPUnit, weekly []models.WeeklySummary, chunkSize int) error
	FetchUnits(ctx context.Context, f models.UnitFilters, limit, offset int) ([]models.WIPUnit, error)
	CreateImportBatch(ctx context.Context, b models.ImportBatch) error
	FinishImportBatch(ctx context.Context, b models.ImportBatch) error
	GetImportBatch(ctx context.Context, id string) (models.ImportBatch, error)
	ListImportBatches(ctx context.Context, scope string, limit int) ([]models.ImportBatch, error)
	FindCompletedImportByFile(ctx context.Context, scope, fileName string) (*models.ImportBatch, error)
	DeleteImportBatch(ctx context.Context, id string) error
	LatestCompletedBatchID(ctx context.Context, scope string) (string, error)
	ListOwnedSKUCodes(ctx context.Context, orgCode string) ([]string, error)
}

// DuplicateFileError signals that the same file already completed for this
// scope and the caller did not ask to replace it.
type DuplicateFileError struct {
	ExistingID          string
	ExistingCompletedAt *time.Time
}

func (e *DuplicateFileError) Error() string {
	return fmt.Sprintf("file already imported (batch %s)", e.ExistingID)
}

const maxRecordedRowErrors = 50

type ImportRequest struct {
	Scope    string
	FileName string
	Replace  bool
	Rows     []map[string]any
}

// ImportService replaces a scope's derived unit snapshot from one uploaded
// file. The source file is always a full current-state export, so the
// previous snapshot is deleted, never merged into.
type ImportService struct {
	Store     Store
	Locker    lock.Locker
	Logger    zerolog.Logger
	ChunkSize int
	LockTTL   time.Duration
	Now       func() time.Time
}

func (s *ImportService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Run normalizes, classifies and persists one import. Row errors are
// recorded and skipped; only a persistence failure fails the batch, and the
// replacement transaction rolls back wholesale so readers keep the last
// successful snapshot.
func (s *ImportService) Run(ctx context.Context, req ImportRequest) (models.ImportBatch, []string, error) {
	release, err := s.Locker.Acquire(ctx, req.Scope, s.lockTTL())
	if err != nil {
		return models.ImportBatch{}, nil, err
	}
	defer release()

	existing, err := s.Store.FindCompletedImportByFile(ctx, req.Scope, req.FileName)
	if err != nil {
		return models.ImportBatch{}, nil, err
	}
	if existing != nil {
		if !req.Replace {
			return models.ImportBatch{}, nil, &DuplicateFileError{
				ExistingID:          existing.ID,
				ExistingCompletedAt: existing.CompletedAt,
			}
		}
		if err := s.Store.DeleteImportBatch(ctx, existing.ID); err != nil {
			return models.ImportBatch{}, nil, err
		}
	}

	now := s.now()
	batch := models.ImportBatch{
		ID:        uuid.NewString(),
		Scope:     req.Scope,
		FileName:  req.FileName,
		TotalRows: len(req.Rows),
		Status:    models.BatchProcessing,
		StartedAt: now,
	}
	if err := s.Store.CreateImportBatch(ctx, batch); err != nil {
		return models.ImportBatch{}, nil, err
	}

	logger := s.Logger.With().Str("scope", req.Scope).Str("batch_id", batch.ID).Logger()

	var units []models.WIPUnit
	var rowErrors []string
	for i, row := range req.Rows {
		unit, err := wip.NormalizeRow(row)
		if err != nil {
			batch.FailedRows++
			if len(rowErrors) < maxRecordedRowErrors {
				rowErrors = append(rowErrors, fmt.Sprintf("row %d: %v", i+1, err))
			}
			continue
		}
		unit = wip.Derive(unit, now)
		unit.Scope = req.Scope
		unit.ImportBatchID = batch.ID
		unit.ImportedAt = now
		unit.UpdatedAt = now
		units = append(units, unit)
	}
	batch.ProcessedRows = len(units)

	weekly := wip.BuildWeeklySummary(units)
	for i := range weekly {
		weekly[i].ImportBatchID = batch.ID
	}

	if err := s.Store.ReplaceSnapshot(ctx, req.Scope, units, weekly, s.ChunkSize); err != nil {
		logger.Error().Err(err).Msg("snapshot replacement failed")
		completedAt := s.now()
		batch.Status = models.BatchFailed
		batch.ErrorMessage = "persistence failure during snapshot replacement"
		batch.CompletedAt = &completedAt
		if finishErr := s.Store.FinishImportBatch(ctx, batch); finishErr != nil {
			logger.Error().Err(finishErr).Msg("failed to mark batch failed")
		}
		return batch, rowErrors, fmt.Errorf("replace snapshot: %w", err)
	}

	stats := models.SummaryStats{Intake: len(units)}
	for _, u := range units {
		switch u.Stage {
		case models.StageWIP:
			stats.WIP++
		case models.StageRMA:
			stats.RMA++
		case models.StageOutflow:
			stats.Outflow++
		}
	}

	completedAt := s.now()
	batch.Status = models.BatchCompleted
	batch.CompletedAt = &completedAt
	batch.SummaryStats = &stats
	if err := s.Store.FinishImportBatch(ctx, batch); err != nil {
		logger.Error().Err(err).Msg("failed to finalize batch")
		return batch, rowErrors, err
	}

	logger.Info().
		Int("processed", batch.ProcessedRows).
		Int("failed", batch.FailedRows).
		Msg("import completed")
	return batch, rowErrors, nil
}

func (s *ImportService) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return 5 * time.Minute
}
