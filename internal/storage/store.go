package storage

import (
	"context"

	"pleroma/internal/model"
)

// Store defines persistence operations for engine snapshots and run history.
type Store interface {
	Init(ctx context.Context) error
	SaveSnapshot(ctx context.Context, snapshot model.EngineSnapshot) error
	GetSnapshot(ctx context.Context, id string) (model.EngineSnapshot, bool, error)
	ListSnapshotIDs(ctx context.Context) ([]string, error)
	DeleteSnapshot(ctx context.Context, id string) error
	SaveContractionHistory(ctx context.Context, engineID string, records []model.ContractionRecord) error
	GetContractionHistory(ctx context.Context, engineID string) ([]model.ContractionRecord, bool, error)
	SaveErrorHistory(ctx context.Context, runID string, history []float64) error
	GetErrorHistory(ctx context.Context, runID string) ([]float64, bool, error)
}
