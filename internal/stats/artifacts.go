// Package stats writes run artifacts (config, error history, contraction
// reports, memory reports) as JSON files under a per-run directory, and
// maintains a newest-first run index.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"pleroma/internal/model"
)

const runIndexFile = "run_index.json"

// RunConfig captures everything needed to reproduce a training run.
type RunConfig struct {
	RunID    string             `json:"run_id"`
	EngineID string             `json:"engine_id,omitempty"`
	Engine   model.EngineConfig `json:"engine"`

	Signal       string `json:"signal"`
	SampleCount  int    `json:"sample_count"`
	Washout      int    `json:"washout"`
	HoldoutCount int    `json:"holdout_count,omitempty"`

	Plasticity   *model.PlasticityConfig  `json:"plasticity,omitempty"`
	Contraction  *model.ContractionConfig `json:"contraction,omitempty"`
	QuantizeBits int                      `json:"quantize_bits,omitempty"`

	StoreBackend string `json:"store_backend,omitempty"`
	SQLitePath   string `json:"sqlite_path,omitempty"`
}

// RunArtifacts is everything a completed run leaves on disk.
type RunArtifacts struct {
	Config             RunConfig                           `json:"config"`
	ErrorHistory       []float64                           `json:"error_history"`
	TrainMSE           float64                             `json:"train_mse"`
	HoldoutMSE         float64                             `json:"holdout_mse,omitempty"`
	BirthHash          string                              `json:"birth_hash,omitempty"`
	ContractionHistory []model.ContractionRecord           `json:"contraction_history,omitempty"`
	MemoryReport       *model.MemoryReport                 `json:"memory_report,omitempty"`
	Quantization       map[string]model.QuantizationParams `json:"quantization,omitempty"`
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	EngineID     string  `json:"engine_id,omitempty"`
	Signal       string  `json:"signal"`
	SampleCount  int     `json:"sample_count"`
	Seed         uint32  `json:"seed"`
	HoldoutMSE   float64 `json:"holdout_mse,omitempty"`
	TrainMSE     float64 `json:"train_mse"`
	QuantizeBits int     `json:"quantize_bits,omitempty"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "error_history.json"), map[string]any{
		"error_history": artifacts.ErrorHistory,
		"train_mse":     artifacts.TrainMSE,
		"holdout_mse":   artifacts.HoldoutMSE,
		"birth_hash":    artifacts.BirthHash,
	}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "contraction_history.json"), artifacts.ContractionHistory); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "memory_report.json"), artifacts.MemoryReport); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "quantization.json"), artifacts.Quantization); err != nil {
		return "", err
	}
	if err := WriteErrorSeries(runDir, artifacts.ErrorHistory); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	files := []string{"config.json", "error_history.json", "contraction_history.json", "memory_report.json", "quantization.json"}
	for _, file := range files {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	seriesPath := filepath.Join(src, "error_series.csv")
	if _, err := os.Stat(seriesPath); err == nil {
		if err := copyFile(seriesPath, filepath.Join(dst, "error_series.csv")); err != nil {
			return "", err
		}
	} else if err != nil && !os.IsNotExist(err) {
		return "", err
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, "config.json"), cfg)
}

func ReadContractionHistory(baseDir, runID string) ([]model.ContractionRecord, bool, error) {
	path := filepath.Join(baseDir, runID, "contraction_history.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var records []model.ContractionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false, err
	}
	return records, true, nil
}

// WriteErrorSeries writes the per-sample squared error as CSV next to the
// JSON artifacts, for plotting outside the toolchain.
func WriteErrorSeries(runDir string, errorHistory []float64) error {
	path := filepath.Join(runDir, "error_series.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"sample", "squared_error"}); err != nil {
		return err
	}
	for i, value := range errorHistory {
		if err := writer.Write([]string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(value, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadErrorSeries(baseDir, runID string) ([]float64, bool, error) {
	path := filepath.Join(baseDir, runID, "error_series.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("error series header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("error series row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
