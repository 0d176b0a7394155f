package storage

import (
	"context"
	"testing"

	"pleroma/internal/model"
)

func testSnapshot(id string) model.EngineSnapshot {
	return model.EngineSnapshot{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              id,
		BirthHash:       "8989a57520456d8461815412eed4b530",
		Config: model.EngineConfig{
			InputSize: 1, ReservoirSize: 2, OutputSize: 1,
			SpectralRadius: 0.9, Sparsity: 0.5, Seed: 42,
		},
		InputWeights:     [][]float64{{0.1}, {-0.2}},
		ReservoirWeights: [][]float64{{0, 0.3}, {0.4, 0}},
		OutputWeights:    [][]float64{{1.5}, {-0.7}},
		Trained:          true,
		RNGState:         11355432,
		StepCount:        400,
	}
}

func TestMemoryStoreSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := testSnapshot("e1")
	if err := store.SaveSnapshot(ctx, input); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	output, ok, err := store.GetSnapshot(ctx, "e1")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted snapshot")
	}
	if output.BirthHash != input.BirthHash || output.RNGState != input.RNGState {
		t.Fatalf("unexpected snapshot: %+v", output)
	}

	_, ok, err = store.GetSnapshot(ctx, "missing")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if ok {
		t.Fatal("missing snapshot should not be found")
	}
}

func TestMemoryStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, id := range []string{"e2", "e1", "e3"} {
		if err := store.SaveSnapshot(ctx, testSnapshot(id)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	ids, err := store.ListSnapshotIDs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 3 || ids[0] != "e1" || ids[2] != "e3" {
		t.Fatalf("unexpected id order: %v", ids)
	}

	if err := store.DeleteSnapshot(ctx, "e2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, ok, err := store.GetSnapshot(ctx, "e2")
	if err != nil {
		t.Fatalf("get deleted: %v", err)
	}
	if ok {
		t.Fatal("deleted snapshot still present")
	}
}

func TestMemoryStoreContractionHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []model.ContractionRecord{
		{Cycle: 1, PreConnections: 100, PostConnections: 65, PrunedCount: 50, RegrownCount: 15, BytesSaved: 420},
		{Cycle: 2, PreConnections: 65, PostConnections: 42, PrunedCount: 32, RegrownCount: 9, BytesSaved: 276, CumulativeSaved: 696},
	}
	if err := store.SaveContractionHistory(ctx, "e1", input); err != nil {
		t.Fatalf("save history: %v", err)
	}
	output, ok, err := store.GetContractionHistory(ctx, "e1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted contraction history")
	}
	if len(output) != 2 || output[1].CumulativeSaved != 696 {
		t.Fatalf("unexpected history: %+v", output)
	}
}

func TestMemoryStoreErrorHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []float64{0.5, 0.2, 0.05}
	if err := store.SaveErrorHistory(ctx, "run-1", input); err != nil {
		t.Fatalf("save history: %v", err)
	}
	output, ok, err := store.GetErrorHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted error history")
	}
	if len(output) != len(input) || output[2] != input[2] {
		t.Fatalf("unexpected history: %+v", output)
	}

	// Mutating the returned slice must not leak back into the store.
	output[0] = 99
	again, _, err := store.GetErrorHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again[0] != 0.5 {
		t.Fatalf("store shares slice with caller: %v", again)
	}
}
