// Package pleroma is the embedding API for the reservoir engine: training
// runs, prediction, quantization, contraction and run artifact management
// behind a single client.
package pleroma

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"pleroma/internal/contraction"
	"pleroma/internal/model"
	"pleroma/internal/plasticity"
	"pleroma/internal/quant"
	"pleroma/internal/reservoir"
	"pleroma/internal/rng"
	"pleroma/internal/signal"
	"pleroma/internal/stats"
	"pleroma/internal/storage"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "pleroma.db"
)

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
}

type Client struct {
	store       storage.Store
	initialized bool

	runsDir    string
	exportsDir string
}

type TrainRequest struct {
	Signal  string
	Samples int
	Washout int
	Holdout int

	ReservoirSize  int
	SpectralRadius float64
	Sparsity       float64
	Noise          float64
	RidgeLambda    float64
	Seed           uint32
	Estimator      string

	Plasticity        *model.PlasticityConfig
	Contraction       *model.ContractionConfig
	ContractionCycles int
	QuantizeBits      int
}

type TrainSummary struct {
	RunID        string
	EngineID     string
	BirthHash    string
	ArtifactsDir string

	TrainMSE     float64
	HoldoutMSE   float64
	QuantizedMSE *float64

	Contraction  []model.ContractionRecord
	MemoryReport model.MemoryReport
	WarningCount int64
}

type PredictRequest struct {
	EngineID   string
	Signal     string
	Samples    int
	ResetState bool
}

type PredictSummary struct {
	Outputs [][]float64
	MSE     float64
}

type GenerateRequest struct {
	EngineID     string
	Steps        int
	InitialValue float64
}

type GenerateSummary struct {
	Outputs [][]float64
}

type QuantizeRequest struct {
	EngineID string
	Bits     int
	Signal   string
	Samples  int
}

type QuantizeSummary struct {
	Bits         int
	FullMSE      float64
	QuantizedMSE float64
	MemoryReport model.MemoryReport
	Params       map[string]model.QuantizationParams
}

type ContractRequest struct {
	EngineID string
	Cycles   int
	Config   model.ContractionConfig

	RefitSignal  string
	RefitSamples int
	RefitWashout int
}

type ContractSummary struct {
	Records      []model.ContractionRecord
	MemoryReport model.MemoryReport
}

type EngineItem struct {
	EngineID  string
	BirthHash string
	Trained   bool
	StepCount int64
	Reservoir int
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	EngineID     string
	CreatedAtUTC string
	Signal       string
	Seed         uint32
	SampleCount  int
	TrainMSE     float64
	HoldoutMSE   float64
	QuantizeBits int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		runsDir:    runsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureStore(ctx)
}

// BirthHash computes the engine fingerprint for a seed and unix timestamp
// without constructing an engine.
func BirthHash(seed uint32, timestamp int64) string {
	return rng.BirthHashString(seed, timestamp)
}

func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	if req.Signal == "" {
		req.Signal = "logistic"
	}
	if req.Samples <= 0 {
		req.Samples = 1000
	}
	if req.Washout < 0 {
		return TrainSummary{}, errors.New("washout must be >= 0")
	}
	if req.Washout == 0 {
		req.Washout = 100
	}
	if req.Holdout < 0 {
		return TrainSummary{}, errors.New("holdout must be >= 0")
	}
	if req.Holdout == 0 {
		req.Holdout = req.Samples / 4
	}
	if req.ReservoirSize <= 0 {
		req.ReservoirSize = 50
	}
	if req.SpectralRadius == 0 {
		req.SpectralRadius = 0.9
	}
	if req.Sparsity == 0 {
		req.Sparsity = 0.9
	}
	if req.Seed == 0 {
		req.Seed = 42
	}
	if req.Samples-req.Holdout <= req.Washout+1 {
		return TrainSummary{}, fmt.Errorf("samples %d leave no training data after holdout %d and washout %d", req.Samples, req.Holdout, req.Washout)
	}

	cfg := model.EngineConfig{
		InputSize:       1,
		ReservoirSize:   req.ReservoirSize,
		OutputSize:      1,
		SpectralRadius:  req.SpectralRadius,
		Sparsity:        req.Sparsity,
		Noise:           req.Noise,
		RidgeLambda:     req.RidgeLambda,
		Seed:            req.Seed,
		RadiusEstimator: req.Estimator,
	}
	engine, err := reservoir.New(cfg)
	if err != nil {
		return TrainSummary{}, err
	}

	series, err := signal.ByName(req.Signal, req.Samples+1)
	if err != nil {
		return TrainSummary{}, err
	}
	inputs, targets, err := signal.OneStepPairs(series)
	if err != nil {
		return TrainSummary{}, err
	}
	split := len(inputs) - req.Holdout
	trainInputs, trainTargets := inputs[:split], targets[:split]
	holdInputs, holdTargets := inputs[split:], targets[split:]

	var ext *plasticity.Extension
	if req.Plasticity != nil {
		ext, err = plasticity.New(*req.Plasticity)
		if err != nil {
			return TrainSummary{}, err
		}
		// Adaptation is a bounded phase: the rule fires only during this
		// replay, then the hook comes off so the readout is fit and
		// evaluated against frozen weights.
		engine.AddHook(ext)
		if err := ext.Adapt(engine, trainInputs); err != nil {
			return TrainSummary{}, err
		}
		engine.RemoveHook(ext)
	}

	if err := engine.Fit(trainInputs, trainTargets, req.Washout); err != nil {
		return TrainSummary{}, err
	}

	var records []model.ContractionRecord
	if req.Contraction != nil {
		// The pipeline runs explicit cycles; interval auto-triggering is
		// for engines driven step by step with the protocol hooked in.
		if req.Contraction.IntervalSteps != 0 {
			return TrainSummary{}, fmt.Errorf("interval_steps is not supported by training; run explicit cycles")
		}
		proto, err := contraction.New(*req.Contraction)
		if err != nil {
			return TrainSummary{}, err
		}
		if ext != nil {
			proto.SetTrace(ext)
		}
		cycles := req.ContractionCycles
		if cycles <= 0 {
			cycles = 1
		}
		for i := 0; i < cycles; i++ {
			if _, err := proto.Cycle(engine); err != nil {
				return TrainSummary{}, err
			}
		}
		// Pruning invalidates the readout; retrain it on the thinned
		// reservoir before measuring anything.
		if err := engine.Fit(trainInputs, trainTargets, req.Washout); err != nil {
			return TrainSummary{}, err
		}
		records = proto.Records()
	}

	trainPreds, err := engine.Predict(trainInputs, true)
	if err != nil {
		return TrainSummary{}, err
	}
	errorHistory := make([]float64, 0, len(trainPreds)-req.Washout)
	trainSum := 0.0
	for i := req.Washout; i < len(trainPreds); i++ {
		d := trainPreds[i][0] - trainTargets[i][0]
		errorHistory = append(errorHistory, d*d)
		trainSum += d * d
	}
	trainMSE := trainSum / float64(len(errorHistory))

	holdPreds, err := engine.Predict(holdInputs, false)
	if err != nil {
		return TrainSummary{}, err
	}
	holdoutMSE := pairMSE(holdPreds, holdTargets)

	report := engine.MemoryReport()
	summary := TrainSummary{
		BirthHash:    engine.BirthHash(),
		TrainMSE:     trainMSE,
		HoldoutMSE:   holdoutMSE,
		Contraction:  records,
		MemoryReport: report,
		WarningCount: engine.WarningCount(),
	}

	var quantParams map[string]model.QuantizationParams
	if req.QuantizeBits > 0 {
		qe, err := quant.Quantize(engine, req.QuantizeBits)
		if err != nil {
			return TrainSummary{}, err
		}
		qPreds, err := qe.Predict(holdInputs, true)
		if err != nil {
			return TrainSummary{}, err
		}
		qMSE := pairMSE(qPreds, holdTargets)
		summary.QuantizedMSE = &qMSE
		summary.MemoryReport = qe.MemoryReport()
		quantParams = qe.Params()
	}

	now := time.Now().UTC()
	engineID := uuid.NewString()
	runID := fmt.Sprintf("%s-%d-%d", req.Signal, req.Seed, now.Unix())
	summary.RunID = runID
	summary.EngineID = engineID

	if err := c.ensureStore(ctx); err != nil {
		return TrainSummary{}, err
	}
	if err := c.store.SaveSnapshot(ctx, engine.Snapshot(engineID)); err != nil {
		return TrainSummary{}, err
	}
	if err := c.store.SaveErrorHistory(ctx, runID, errorHistory); err != nil {
		return TrainSummary{}, err
	}
	if len(records) > 0 {
		if err := c.store.SaveContractionHistory(ctx, engineID, records); err != nil {
			return TrainSummary{}, err
		}
	}

	runConfig := stats.RunConfig{
		RunID:        runID,
		EngineID:     engineID,
		Engine:       engine.Config(),
		Signal:       req.Signal,
		SampleCount:  req.Samples,
		Washout:      req.Washout,
		HoldoutCount: req.Holdout,
		Plasticity:   req.Plasticity,
		Contraction:  req.Contraction,
		QuantizeBits: req.QuantizeBits,
	}
	runDir, err := stats.WriteRunArtifacts(c.runsDir, stats.RunArtifacts{
		Config:             runConfig,
		ErrorHistory:       errorHistory,
		TrainMSE:           trainMSE,
		HoldoutMSE:         holdoutMSE,
		BirthHash:          engine.BirthHash(),
		ContractionHistory: records,
		MemoryReport:       &summary.MemoryReport,
		Quantization:       quantParams,
	})
	if err != nil {
		return TrainSummary{}, err
	}
	if err := stats.AppendRunIndex(c.runsDir, stats.RunIndexEntry{
		RunID:        runID,
		EngineID:     engineID,
		Signal:       req.Signal,
		SampleCount:  req.Samples,
		Seed:         req.Seed,
		TrainMSE:     trainMSE,
		HoldoutMSE:   holdoutMSE,
		QuantizeBits: req.QuantizeBits,
		CreatedAtUTC: now.Format(time.RFC3339Nano),
	}); err != nil {
		return TrainSummary{}, err
	}

	summary.ArtifactsDir = filepath.Clean(runDir)
	return summary, nil
}

func (c *Client) Predict(ctx context.Context, req PredictRequest) (PredictSummary, error) {
	if req.Signal == "" {
		req.Signal = "logistic"
	}
	if req.Samples <= 0 {
		req.Samples = 300
	}

	engine, err := c.loadEngine(ctx, req.EngineID)
	if err != nil {
		return PredictSummary{}, err
	}

	series, err := signal.ByName(req.Signal, req.Samples+1)
	if err != nil {
		return PredictSummary{}, err
	}
	inputs, targets, err := signal.OneStepPairs(series)
	if err != nil {
		return PredictSummary{}, err
	}

	outputs, err := engine.Predict(inputs, req.ResetState)
	if err != nil {
		return PredictSummary{}, err
	}
	return PredictSummary{Outputs: outputs, MSE: pairMSE(outputs, targets)}, nil
}

func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateSummary, error) {
	if req.Steps <= 0 {
		req.Steps = 100
	}

	engine, err := c.loadEngine(ctx, req.EngineID)
	if err != nil {
		return GenerateSummary{}, err
	}

	outputs, err := engine.PredictGenerative(req.Steps, []float64{req.InitialValue})
	if err != nil {
		return GenerateSummary{}, err
	}
	return GenerateSummary{Outputs: outputs}, nil
}

func (c *Client) Quantize(ctx context.Context, req QuantizeRequest) (QuantizeSummary, error) {
	if req.Bits == 0 {
		req.Bits = 8
	}
	if req.Signal == "" {
		req.Signal = "logistic"
	}
	if req.Samples <= 0 {
		req.Samples = 300
	}

	engine, err := c.loadEngine(ctx, req.EngineID)
	if err != nil {
		return QuantizeSummary{}, err
	}

	qe, err := quant.Quantize(engine, req.Bits)
	if err != nil {
		return QuantizeSummary{}, err
	}

	series, err := signal.ByName(req.Signal, req.Samples+1)
	if err != nil {
		return QuantizeSummary{}, err
	}
	inputs, targets, err := signal.OneStepPairs(series)
	if err != nil {
		return QuantizeSummary{}, err
	}

	fullPreds, err := engine.Predict(inputs, true)
	if err != nil {
		return QuantizeSummary{}, err
	}
	qPreds, err := qe.Predict(inputs, true)
	if err != nil {
		return QuantizeSummary{}, err
	}

	return QuantizeSummary{
		Bits:         req.Bits,
		FullMSE:      pairMSE(fullPreds, targets),
		QuantizedMSE: pairMSE(qPreds, targets),
		MemoryReport: qe.MemoryReport(),
		Params:       qe.Params(),
	}, nil
}

func (c *Client) Contract(ctx context.Context, req ContractRequest) (ContractSummary, error) {
	if req.Cycles <= 0 {
		req.Cycles = 1
	}
	if req.RefitSignal == "" {
		req.RefitSignal = "logistic"
	}
	if req.RefitSamples <= 0 {
		req.RefitSamples = 1000
	}
	if req.RefitWashout <= 0 {
		req.RefitWashout = 100
	}

	if req.Config.IntervalSteps != 0 {
		return ContractSummary{}, fmt.Errorf("interval_steps is not supported by contract; run explicit cycles")
	}

	engine, err := c.loadEngine(ctx, req.EngineID)
	if err != nil {
		return ContractSummary{}, err
	}

	proto, err := contraction.New(req.Config)
	if err != nil {
		return ContractSummary{}, err
	}

	previous, ok, err := c.store.GetContractionHistory(ctx, req.EngineID)
	if err != nil {
		return ContractSummary{}, err
	}
	for i := 0; i < req.Cycles; i++ {
		if _, err := proto.Cycle(engine); err != nil {
			return ContractSummary{}, err
		}
	}

	if engine.Trained() {
		series, err := signal.ByName(req.RefitSignal, req.RefitSamples+1)
		if err != nil {
			return ContractSummary{}, err
		}
		inputs, targets, err := signal.OneStepPairs(series)
		if err != nil {
			return ContractSummary{}, err
		}
		if err := engine.Fit(inputs, targets, req.RefitWashout); err != nil {
			return ContractSummary{}, err
		}
	}

	records := proto.Records()
	for i := range records {
		records[i].EngineID = req.EngineID
	}
	history := records
	if ok {
		history = append(previous, records...)
	}

	if err := c.store.SaveSnapshot(ctx, engine.Snapshot(req.EngineID)); err != nil {
		return ContractSummary{}, err
	}
	if err := c.store.SaveContractionHistory(ctx, req.EngineID, history); err != nil {
		return ContractSummary{}, err
	}

	return ContractSummary{Records: records, MemoryReport: engine.MemoryReport()}, nil
}

func (c *Client) Engines(ctx context.Context) ([]EngineItem, error) {
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	ids, err := c.store.ListSnapshotIDs(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]EngineItem, 0, len(ids))
	for _, id := range ids {
		snap, ok, err := c.store.GetSnapshot(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, EngineItem{
			EngineID:  snap.ID,
			BirthHash: snap.BirthHash,
			Trained:   snap.Trained,
			StepCount: snap.StepCount,
			Reservoir: snap.Config.ReservoirSize,
		})
	}
	return out, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			EngineID:     e.EngineID,
			CreatedAtUTC: e.CreatedAtUTC,
			Signal:       e.Signal,
			Seed:         e.Seed,
			SampleCount:  e.SampleCount,
			TrainMSE:     e.TrainMSE,
			HoldoutMSE:   e.HoldoutMSE,
			QuantizeBits: e.QuantizeBits,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.runsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) loadEngine(ctx context.Context, engineID string) (*reservoir.Engine, error) {
	if engineID == "" {
		return nil, errors.New("engine id is required")
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	snap, ok, err := c.store.GetSnapshot(ctx, engineID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("engine not found: %s", engineID)
	}
	return reservoir.FromSnapshot(snap)
}

func (c *Client) ensureStore(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func pairMSE(preds, targets [][]float64) float64 {
	if len(preds) == 0 {
		return 0
	}
	sum := 0.0
	for i := range preds {
		d := preds[i][0] - targets[i][0]
		sum += d * d
	}
	return sum / float64(len(preds))
}
