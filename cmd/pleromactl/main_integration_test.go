//go:build sqlite

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"pleroma/internal/stats"
)

func TestTrainCommandSQLiteCreatesArtifacts(t *testing.T) {
	origWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	workdir := t.TempDir()
	if err := os.Chdir(workdir); err != nil {
		t.Fatalf("chdir tempdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(origWD)
	})

	dbPath := filepath.Join(workdir, "pleroma.db")
	args := []string{
		"train",
		"--store", "sqlite",
		"--db-path", dbPath,
		"--signal", "logistic",
		"--samples", "600",
		"--washout", "50",
		"--holdout", "150",
		"--reservoir", "40",
		"--seed", "42",
	}

	if err := run(context.Background(), args); err != nil {
		t.Fatalf("train command: %v", err)
	}

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected sqlite db at %s: %v", dbPath, err)
	}

	entries, err := stats.ListRunIndex("runs")
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one indexed run")
	}

	runID := entries[0].RunID
	for _, file := range []string{"config.json", "error_history.json", "contraction_history.json", "memory_report.json", "quantization.json", "error_series.csv"} {
		path := filepath.Join("runs", runID, file)
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected artifact %s: %v", path, err)
		}
	}

	engineID := entries[0].EngineID
	if engineID == "" {
		t.Fatal("expected engine id in run index")
	}

	// The persisted engine answers predictions in a fresh invocation.
	predictArgs := []string{
		"predict",
		"--store", "sqlite",
		"--db-path", dbPath,
		"--engine-id", engineID,
		"--signal", "logistic",
		"--samples", "100",
	}
	if err := run(context.Background(), predictArgs); err != nil {
		t.Fatalf("predict command: %v", err)
	}

	exportArgs := []string{"export", "--latest"}
	if err := run(context.Background(), exportArgs); err != nil {
		t.Fatalf("export command: %v", err)
	}
	if _, err := os.Stat(filepath.Join("exports", runID, "config.json")); err != nil {
		t.Fatalf("expected exported config: %v", err)
	}
}

func TestContractCommandSQLite(t *testing.T) {
	origWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	workdir := t.TempDir()
	if err := os.Chdir(workdir); err != nil {
		t.Fatalf("chdir tempdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(origWD)
	})

	dbPath := filepath.Join(workdir, "pleroma.db")
	trainArgs := []string{
		"train",
		"--store", "sqlite",
		"--db-path", dbPath,
		"--signal", "logistic",
		"--samples", "600",
		"--washout", "50",
		"--holdout", "150",
		"--reservoir", "50",
		"--sparsity", "0.8",
		"--seed", "42",
	}
	if err := run(context.Background(), trainArgs); err != nil {
		t.Fatalf("train command: %v", err)
	}

	entries, err := stats.ListRunIndex("runs")
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected indexed run")
	}

	contractArgs := []string{
		"contract",
		"--store", "sqlite",
		"--db-path", dbPath,
		"--engine-id", entries[0].EngineID,
		"--cycles", "1",
		"--prune", "0.3",
		"--regrow", "0.5",
		"--min-connections", "10",
	}
	if err := run(context.Background(), contractArgs); err != nil {
		t.Fatalf("contract command: %v", err)
	}
}
