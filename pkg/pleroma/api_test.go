package pleroma

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"pleroma/internal/model"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	base := t.TempDir()
	client, err := New(Options{
		StoreKind:  "memory",
		RunsDir:    filepath.Join(base, "runs"),
		ExportsDir: filepath.Join(base, "exports"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestClientTrainPredictExport(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Train(ctx, TrainRequest{
		Signal:        "logistic",
		Samples:       600,
		Washout:       50,
		Holdout:       150,
		ReservoirSize: 40,
		Seed:          42,
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if summary.RunID == "" || summary.EngineID == "" {
		t.Fatalf("missing identifiers: %+v", summary)
	}
	if len(summary.BirthHash) != 32 {
		t.Fatalf("unexpected birth hash: %s", summary.BirthHash)
	}
	if summary.HoldoutMSE <= 0 || math.IsNaN(summary.HoldoutMSE) {
		t.Fatalf("suspicious holdout MSE: %g", summary.HoldoutMSE)
	}
	// The logistic map is learnable at this size.
	if summary.HoldoutMSE > 0.05 {
		t.Fatalf("holdout MSE %g too high", summary.HoldoutMSE)
	}

	preds, err := client.Predict(ctx, PredictRequest{
		EngineID:   summary.EngineID,
		Signal:     "logistic",
		Samples:    200,
		ResetState: true,
	})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(preds.Outputs) != 200 {
		t.Fatalf("unexpected output length: %d", len(preds.Outputs))
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 5})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) == 0 || runs[0].RunID != summary.RunID {
		t.Fatalf("expected latest run %s in runs list: %+v", summary.RunID, runs)
	}

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != summary.RunID {
		t.Fatalf("exported wrong run: %s", exported.RunID)
	}

	engines, err := client.Engines(ctx)
	if err != nil {
		t.Fatalf("engines: %v", err)
	}
	if len(engines) != 1 || engines[0].EngineID != summary.EngineID {
		t.Fatalf("unexpected engines: %+v", engines)
	}
	if !engines[0].Trained {
		t.Fatal("persisted engine should be trained")
	}
}

func TestClientTrainWithContractionAndQuantization(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Train(ctx, TrainRequest{
		Signal:        "logistic",
		Samples:       600,
		Washout:       50,
		Holdout:       150,
		ReservoirSize: 50,
		Sparsity:      0.9,
		Seed:          42,
		Contraction: &model.ContractionConfig{
			PruneFraction:    0.5,
			RegrowFraction:   0.3,
			MinConnections:   10,
			PreserveTopology: true,
		},
		QuantizeBits: 8,
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if len(summary.Contraction) != 1 {
		t.Fatalf("expected one contraction record, got %d", len(summary.Contraction))
	}
	record := summary.Contraction[0]
	if record.PrunedCount != record.PreConnections/2 {
		t.Fatalf("pruned %d of %d, want half", record.PrunedCount, record.PreConnections)
	}
	if summary.QuantizedMSE == nil {
		t.Fatal("expected quantized MSE")
	}
	if summary.MemoryReport.CompressionRatio <= 1 {
		t.Fatalf("compression ratio %g should exceed 1", summary.MemoryReport.CompressionRatio)
	}
}

func TestClientGenerate(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Train(ctx, TrainRequest{
		Signal:        "sine",
		Samples:       500,
		Washout:       50,
		Holdout:       100,
		ReservoirSize: 40,
		Seed:          7,
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	gen, err := client.Generate(ctx, GenerateRequest{
		EngineID:     summary.EngineID,
		Steps:        50,
		InitialValue: 0,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(gen.Outputs) != 50 {
		t.Fatalf("unexpected output length: %d", len(gen.Outputs))
	}
	for i, out := range gen.Outputs {
		if math.IsNaN(out[0]) || math.Abs(out[0]) > 5 {
			t.Fatalf("step %d output %g out of range", i, out[0])
		}
	}
}

func TestClientQuantizeExistingEngine(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Train(ctx, TrainRequest{
		Signal:        "logistic",
		Samples:       600,
		Washout:       50,
		Holdout:       150,
		ReservoirSize: 40,
		Seed:          42,
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	q, err := client.Quantize(ctx, QuantizeRequest{
		EngineID: summary.EngineID,
		Bits:     8,
		Signal:   "logistic",
		Samples:  200,
	})
	if err != nil {
		t.Fatalf("quantize: %v", err)
	}
	if q.Bits != 8 {
		t.Fatalf("unexpected bits: %d", q.Bits)
	}
	if q.QuantizedMSE > 5*q.FullMSE && q.QuantizedMSE > 1e-3 {
		t.Fatalf("8-bit MSE %g too far above full precision %g", q.QuantizedMSE, q.FullMSE)
	}
	if len(q.Params) != 3 {
		t.Fatalf("expected params for 3 matrices: %+v", q.Params)
	}
}

func TestClientContractExistingEngine(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Train(ctx, TrainRequest{
		Signal:        "logistic",
		Samples:       600,
		Washout:       50,
		Holdout:       150,
		ReservoirSize: 50,
		Sparsity:      0.8,
		Seed:          42,
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	result, err := client.Contract(ctx, ContractRequest{
		EngineID: summary.EngineID,
		Cycles:   2,
		Config: model.ContractionConfig{
			PruneFraction:  0.2,
			RegrowFraction: 0.5,
			MinConnections: 10,
		},
		RefitSignal:  "logistic",
		RefitSamples: 600,
		RefitWashout: 50,
	})
	if err != nil {
		t.Fatalf("contract: %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	if result.Records[1].CumulativeSaved < result.Records[0].BytesSaved {
		t.Fatalf("cumulative accounting broken: %+v", result.Records)
	}
	for _, record := range result.Records {
		if record.EngineID != summary.EngineID {
			t.Fatalf("record missing engine id: %+v", record)
		}
	}
}

func TestClientTrainPlasticityAdaptsWeights(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	base := TrainRequest{
		Signal:        "logistic",
		Samples:       600,
		Washout:       50,
		Holdout:       150,
		ReservoirSize: 40,
		Seed:          42,
	}
	plain, err := client.Train(ctx, base)
	if err != nil {
		t.Fatalf("plain train: %v", err)
	}

	adapted := base
	adapted.Plasticity = &model.PlasticityConfig{Rule: "hebbian", Rate: 0.05}
	hebb, err := client.Train(ctx, adapted)
	if err != nil {
		t.Fatalf("hebbian train: %v", err)
	}

	// Same seed and signal: any difference comes from adaptation having
	// actually touched the recurrent weights before fitting.
	if hebb.TrainMSE == plain.TrainMSE && hebb.HoldoutMSE == plain.HoldoutMSE {
		t.Fatalf("hebbian run reproduced the plain run exactly: train=%g holdout=%g",
			hebb.TrainMSE, hebb.HoldoutMSE)
	}

	plainSnap, ok, err := client.store.GetSnapshot(ctx, plain.EngineID)
	if err != nil || !ok {
		t.Fatalf("plain snapshot: ok=%v err=%v", ok, err)
	}
	hebbSnap, ok, err := client.store.GetSnapshot(ctx, hebb.EngineID)
	if err != nil || !ok {
		t.Fatalf("hebbian snapshot: ok=%v err=%v", ok, err)
	}
	changed := false
	for i := range plainSnap.ReservoirWeights {
		for j := range plainSnap.ReservoirWeights[i] {
			if plainSnap.ReservoirWeights[i][j] != hebbSnap.ReservoirWeights[i][j] {
				changed = true
			}
		}
	}
	if !changed {
		t.Fatal("persisted recurrent weights identical with and without plasticity")
	}
}

func TestClientTrainRejectsIntervalContraction(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Train(ctx, TrainRequest{
		Signal:        "logistic",
		Samples:       600,
		Washout:       50,
		Holdout:       150,
		ReservoirSize: 40,
		Seed:          42,
		Contraction: &model.ContractionConfig{
			PruneFraction:  0.2,
			MinConnections: 10,
			IntervalSteps:  25,
		},
	})
	if err == nil {
		t.Fatal("expected interval_steps rejection")
	}

	summary, err := client.Train(ctx, TrainRequest{
		Signal:        "logistic",
		Samples:       600,
		Washout:       50,
		Holdout:       150,
		ReservoirSize: 40,
		Seed:          42,
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	_, err = client.Contract(ctx, ContractRequest{
		EngineID: summary.EngineID,
		Config: model.ContractionConfig{
			PruneFraction:  0.2,
			MinConnections: 10,
			IntervalSteps:  25,
		},
	})
	if err == nil {
		t.Fatal("expected interval_steps rejection from contract")
	}
}

func TestClientPredictUnknownEngine(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.Predict(context.Background(), PredictRequest{EngineID: "missing"}); err == nil {
		t.Fatal("expected error for unknown engine")
	}
	if _, err := client.Predict(context.Background(), PredictRequest{}); err == nil {
		t.Fatal("expected error for empty engine id")
	}
}

func TestClientExportValidation(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	if _, err := client.Export(ctx, ExportRequest{}); err == nil {
		t.Fatal("expected error without run id or latest")
	}
	if _, err := client.Export(ctx, ExportRequest{RunID: "x", Latest: true}); err == nil {
		t.Fatal("expected error for both run id and latest")
	}
	if _, err := client.Export(ctx, ExportRequest{Latest: true}); err == nil {
		t.Fatal("expected error with no runs recorded")
	}
}

func TestBirthHashHelper(t *testing.T) {
	if got := BirthHash(42, 0); got != "8989a57520456d8461815412eed4b530" {
		t.Fatalf("unexpected hash: %s", got)
	}
}
