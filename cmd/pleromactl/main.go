package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"

	"pleroma/internal/model"
	"pleroma/internal/stats"
	"pleroma/internal/storage"
	"pleroma/pkg/pleroma"
)

const (
	runsDir    = "runs"
	exportsDir = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "predict":
		return runPredict(ctx, args[1:])
	case "generate":
		return runGenerate(ctx, args[1:])
	case "quantize":
		return runQuantize(ctx, args[1:])
	case "contract":
		return runContract(ctx, args[1:])
	case "engines":
		return runEngines(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "hash":
		return runHash(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func newClient(storeKind, dbPath string) (*pleroma.Client, error) {
	return pleroma.New(pleroma.Options{
		StoreKind:  storeKind,
		DBPath:     dbPath,
		RunsDir:    runsDir,
		ExportsDir: exportsDir,
	})
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "pleroma.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "pleroma.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.NewStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()
	if err := store.Init(ctx); err != nil {
		return err
	}
	ids, err := store.ListSnapshotIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := store.DeleteSnapshot(ctx, id); err != nil {
			return err
		}
	}

	fmt.Printf("reset store=%s engines_removed=%d\n", *storeKind, len(ids))
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional train config JSON path")
	signalName := fs.String("signal", "logistic", "training signal: sine|logistic|mackey_glass|henon")
	samples := fs.Int("samples", 1000, "total sample count")
	washout := fs.Int("washout", 100, "washout steps dropped from training")
	holdout := fs.Int("holdout", 0, "held-out evaluation samples (0 uses samples/4)")
	reservoirSize := fs.Int("reservoir", 50, "reservoir unit count")
	spectralRadius := fs.Float64("radius", 0.9, "target spectral radius in (0, 2]")
	sparsity := fs.Float64("sparsity", 0.9, "zero fraction of the reservoir matrix")
	noise := fs.Float64("noise", 0, "per-step gaussian state noise amplitude")
	ridgeLambda := fs.Float64("lambda", 0, "ridge regularization (0 uses default)")
	seed := fs.Uint64("seed", 42, "rng seed")
	estimator := fs.String("estimator", "", "spectral radius estimator: exact|power|auto")
	plasticityRule := fs.String("plasticity", "", "pre-training plasticity rule: hebbian|anti_hebbian|stdp (empty disables)")
	plasticityRate := fs.Float64("plasticity-rate", 0.001, "plasticity learning rate")
	contract := fs.Bool("contract", false, "run a contraction cycle before measuring")
	pruneFraction := fs.Float64("prune", 0.5, "fraction of connections pruned per cycle")
	regrowFraction := fs.Float64("regrow", 0.3, "fraction of pruned connections regrown")
	minConnections := fs.Int("min-connections", 10, "connection floor the pruner never crosses")
	preserveTopology := fs.Bool("preserve-topology", true, "keep at least one connection per neuron row and column")
	cycles := fs.Int("cycles", 1, "contraction cycle count")
	quantizeBits := fs.Int("quantize", 0, "quantize the trained engine to N bits (0 disables)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "pleroma.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *seed > math.MaxUint32 {
		return usageError("seed must fit in 32 bits")
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req, err := loadOrDefaultTrainRequest(*configPath)
	if err != nil {
		return err
	}
	if *configPath == "" {
		req = pleroma.TrainRequest{
			Signal:         *signalName,
			Samples:        *samples,
			Washout:        *washout,
			Holdout:        *holdout,
			ReservoirSize:  *reservoirSize,
			SpectralRadius: *spectralRadius,
			Sparsity:       *sparsity,
			Noise:          *noise,
			RidgeLambda:    *ridgeLambda,
			Seed:           uint32(*seed),
			Estimator:      *estimator,
		}
		if *plasticityRule != "" {
			req.Plasticity = &model.PlasticityConfig{Rule: *plasticityRule, Rate: *plasticityRate}
		}
		if *contract {
			req.Contraction = &model.ContractionConfig{
				PruneFraction:    *pruneFraction,
				RegrowFraction:   *regrowFraction,
				MinConnections:   *minConnections,
				PreserveTopology: *preserveTopology,
			}
			req.ContractionCycles = *cycles
		}
		req.QuantizeBits = *quantizeBits
	} else {
		overrideTrainFromFlags(&req, setFlags, map[string]any{
			"signal":          *signalName,
			"samples":         *samples,
			"washout":         *washout,
			"holdout":         *holdout,
			"reservoir":       *reservoirSize,
			"radius":          *spectralRadius,
			"sparsity":        *sparsity,
			"noise":           *noise,
			"lambda":          *ridgeLambda,
			"seed":            *seed,
			"estimator":       *estimator,
			"plasticity":      *plasticityRule,
			"plasticity-rate": *plasticityRate,
			"quantize":        *quantizeBits,
			"cycles":          *cycles,
		})
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Train(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(summary)
	}
	fmt.Printf("trained run_id=%s engine_id=%s birth_hash=%s\n", summary.RunID, summary.EngineID, summary.BirthHash)
	fmt.Printf("train_mse=%.6g holdout_mse=%.6g warnings=%d\n", summary.TrainMSE, summary.HoldoutMSE, summary.WarningCount)
	if summary.QuantizedMSE != nil {
		fmt.Printf("quantized_mse=%.6g\n", *summary.QuantizedMSE)
	}
	for _, record := range summary.Contraction {
		printContractionRecord(record)
	}
	printMemoryReport(summary.MemoryReport)
	fmt.Printf("artifacts=%s\n", summary.ArtifactsDir)
	return nil
}

func runPredict(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	engineID := fs.String("engine-id", "", "engine id")
	signalName := fs.String("signal", "logistic", "evaluation signal")
	samples := fs.Int("samples", 300, "evaluation sample count")
	reset := fs.Bool("reset", true, "reset state before predicting")
	limit := fs.Int("limit", 10, "printed prediction count")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "pleroma.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit predictions as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *engineID == "" {
		return errors.New("predict requires --engine-id")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Predict(ctx, pleroma.PredictRequest{
		EngineID:   *engineID,
		Signal:     *signalName,
		Samples:    *samples,
		ResetState: *reset,
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(summary)
	}
	fmt.Printf("predicted engine_id=%s signal=%s samples=%d mse=%.6g\n", *engineID, *signalName, len(summary.Outputs), summary.MSE)
	count := *limit
	if count > len(summary.Outputs) {
		count = len(summary.Outputs)
	}
	for i := 0; i < count; i++ {
		fmt.Printf("  %4d %.6f\n", i, summary.Outputs[i][0])
	}
	return nil
}

func runGenerate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	engineID := fs.String("engine-id", "", "engine id")
	steps := fs.Int("steps", 100, "generated step count")
	initial := fs.Float64("initial", 0, "initial input value")
	limit := fs.Int("limit", 10, "printed output count")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "pleroma.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit outputs as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *engineID == "" {
		return errors.New("generate requires --engine-id")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Generate(ctx, pleroma.GenerateRequest{
		EngineID:     *engineID,
		Steps:        *steps,
		InitialValue: *initial,
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(summary)
	}
	fmt.Printf("generated engine_id=%s steps=%d\n", *engineID, len(summary.Outputs))
	count := *limit
	if count > len(summary.Outputs) {
		count = len(summary.Outputs)
	}
	for i := 0; i < count; i++ {
		fmt.Printf("  %4d %.6f\n", i, summary.Outputs[i][0])
	}
	return nil
}

func runQuantize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("quantize", flag.ContinueOnError)
	engineID := fs.String("engine-id", "", "engine id")
	bits := fs.Int("bits", 8, "quantization width: 1|2|4|8")
	signalName := fs.String("signal", "logistic", "evaluation signal")
	samples := fs.Int("samples", 300, "evaluation sample count")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "pleroma.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *engineID == "" {
		return errors.New("quantize requires --engine-id")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Quantize(ctx, pleroma.QuantizeRequest{
		EngineID: *engineID,
		Bits:     *bits,
		Signal:   *signalName,
		Samples:  *samples,
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(summary)
	}
	fmt.Printf("quantized engine_id=%s bits=%d full_mse=%.6g quantized_mse=%.6g\n",
		*engineID, summary.Bits, summary.FullMSE, summary.QuantizedMSE)
	printMemoryReport(summary.MemoryReport)
	return nil
}

func runContract(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("contract", flag.ContinueOnError)
	engineID := fs.String("engine-id", "", "engine id")
	cycles := fs.Int("cycles", 1, "contraction cycle count")
	pruneFraction := fs.Float64("prune", 0.5, "fraction of connections pruned per cycle")
	regrowFraction := fs.Float64("regrow", 0.3, "fraction of pruned connections regrown")
	minConnections := fs.Int("min-connections", 10, "connection floor the pruner never crosses")
	preserveTopology := fs.Bool("preserve-topology", true, "keep at least one connection per neuron row and column")
	refitSignal := fs.String("refit-signal", "logistic", "signal used to retrain the readout after pruning")
	refitSamples := fs.Int("refit-samples", 1000, "sample count for the refit")
	refitWashout := fs.Int("refit-washout", 100, "washout for the refit")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "pleroma.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *engineID == "" {
		return errors.New("contract requires --engine-id")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Contract(ctx, pleroma.ContractRequest{
		EngineID: *engineID,
		Cycles:   *cycles,
		Config: model.ContractionConfig{
			PruneFraction:    *pruneFraction,
			RegrowFraction:   *regrowFraction,
			MinConnections:   *minConnections,
			PreserveTopology: *preserveTopology,
		},
		RefitSignal:  *refitSignal,
		RefitSamples: *refitSamples,
		RefitWashout: *refitWashout,
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(summary)
	}
	fmt.Printf("contracted engine_id=%s cycles=%d\n", *engineID, len(summary.Records))
	for _, record := range summary.Records {
		printContractionRecord(record)
	}
	printMemoryReport(summary.MemoryReport)
	return nil
}

func runEngines(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("engines", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "pleroma.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit engines list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	engines, err := client.Engines(ctx)
	if err != nil {
		return err
	}
	if len(engines) == 0 {
		fmt.Println("no engines found")
		return nil
	}

	if *jsonOut {
		return printJSON(engines)
	}
	for _, item := range engines {
		fmt.Printf("engine_id=%s birth_hash=%s reservoir=%d trained=%t steps=%d\n",
			item.EngineID, item.BirthHash, item.Reservoir, item.Trained, item.StepCount)
	}
	return nil
}

func runRuns(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	entries, err := stats.ListRunIndex(runsDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	if len(entries) > *limit {
		entries = entries[:*limit]
	}
	if *jsonOut {
		return printJSON(entries)
	}
	for _, entry := range entries {
		line := fmt.Sprintf("run_id=%s created=%s signal=%s seed=%d samples=%d train_mse=%.6g holdout_mse=%.6g",
			entry.RunID, entry.CreatedAtUTC, entry.Signal, entry.Seed, entry.SampleCount, entry.TrainMSE, entry.HoldoutMSE)
		if entry.QuantizeBits > 0 {
			line += " quantize_bits=" + strconv.Itoa(entry.QuantizeBits)
		}
		fmt.Println(line)
	}
	return nil
}

func runExport(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}
	if *latest {
		entries, err := stats.ListRunIndex(runsDir)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return errors.New("no runs available to export")
		}
		*runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(runsDir, *runID, *outDir)
	if err != nil {
		return err
	}

	fmt.Printf("exported run_id=%s to=%s\n", *runID, filepath.Clean(exportedDir))
	return nil
}

func runHash(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	seed := fs.Uint64("seed", 42, "rng seed")
	timestamp := fs.Int64("timestamp", 0, "unix timestamp mixed into the hash")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Println(pleroma.BirthHash(uint32(*seed), *timestamp))
	return nil
}

func printContractionRecord(record model.ContractionRecord) {
	if record.FloorHit {
		fmt.Printf("cycle=%d floor_hit connections=%d\n", record.Cycle, record.PostConnections)
		return
	}
	fmt.Printf("cycle=%d pruned=%d regrown=%d connections=%d->%d saved=%s cumulative=%s\n",
		record.Cycle, record.PrunedCount, record.RegrownCount,
		record.PreConnections, record.PostConnections,
		humanize.Bytes(uint64(record.BytesSaved)), humanize.Bytes(uint64(record.CumulativeSaved)))
}

func printMemoryReport(report model.MemoryReport) {
	line := fmt.Sprintf("memory total=%s packed=%s",
		humanize.Bytes(uint64(report.TotalBytes)), humanize.Bytes(uint64(report.PackedBytes)))
	if report.CompressionRatio > 0 {
		line += fmt.Sprintf(" ratio=%.2fx", report.CompressionRatio)
	}
	fmt.Println(line)
}

func printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: pleromactl <init|reset|train|predict|generate|quantize|contract|engines|runs|export|hash> [flags]", msg)
}
