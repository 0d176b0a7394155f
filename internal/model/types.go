package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// EngineConfig is the validated construction surface of a reservoir engine.
type EngineConfig struct {
	InputSize     int `json:"input_size"`
	ReservoirSize int `json:"reservoir_size"`
	OutputSize    int `json:"output_size"`

	SpectralRadius float64 `json:"spectral_radius"`
	Sparsity       float64 `json:"sparsity"`
	Noise          float64 `json:"noise"`
	RidgeLambda    float64 `json:"ridge_lambda"`

	Seed            uint32 `json:"seed"`
	RadiusEstimator string `json:"radius_estimator,omitempty"`

	SaturationEpsilon      float64 `json:"saturation_epsilon,omitempty"`
	SaturationWarnFraction float64 `json:"saturation_warn_fraction,omitempty"`
}

// PlasticityConfig selects and parameterizes the online plasticity rule.
type PlasticityConfig struct {
	Rule           string  `json:"rule"`
	Rate           float64 `json:"rate"`
	STDPThreshold  float64 `json:"stdp_threshold,omitempty"`
	TraceDecay     float64 `json:"trace_decay,omitempty"`
	RadiusDriftCap float64 `json:"radius_drift_cap,omitempty"`
}

// ContractionConfig parameterizes the pruning/regrowth cycle.
type ContractionConfig struct {
	PruneFraction    float64 `json:"prune_fraction"`
	RegrowFraction   float64 `json:"regrow_fraction"`
	MinConnections   int     `json:"min_connections"`
	PreserveTopology bool    `json:"preserve_topology"`
	IntervalSteps    int     `json:"interval_steps,omitempty"`
	ImportanceDecay  float64 `json:"importance_decay,omitempty"`
	MagnitudeWeight  float64 `json:"magnitude_weight,omitempty"`
	PlasticityWeight float64 `json:"plasticity_weight,omitempty"`
	RegrowthScale    float64 `json:"regrowth_scale,omitempty"`
}

// EngineSnapshot is the persisted form of an engine: configuration, weights
// and the single RNG word. A restored snapshot replays identically.
type EngineSnapshot struct {
	VersionedRecord
	ID               string       `json:"id"`
	BirthHash        string       `json:"birth_hash"`
	Config           EngineConfig `json:"config"`
	InputWeights     [][]float64  `json:"input_weights"`
	ReservoirWeights [][]float64  `json:"reservoir_weights"`
	OutputWeights    [][]float64  `json:"output_weights,omitempty"`
	Trained          bool         `json:"trained"`
	RNGState         uint32       `json:"rng_state"`
	StepCount        int64        `json:"step_count"`
	CreatedAtUTC     string       `json:"created_at_utc,omitempty"`
}

// QuantizationParams are the immutable per-matrix affine parameters chosen
// at quantization time. Min/Max record the source range the integer grid
// was fitted to, so persisted models stay self-describing.
type QuantizationParams struct {
	Bits   int     `json:"bits"`
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// ContractionRecord reports one completed pruning/regrowth cycle.
type ContractionRecord struct {
	VersionedRecord
	EngineID        string `json:"engine_id,omitempty"`
	Cycle           int    `json:"cycle"`
	PreConnections  int    `json:"pre_connections"`
	PostConnections int    `json:"post_connections"`
	PrunedCount     int    `json:"pruned_count"`
	RegrownCount    int    `json:"regrown_count"`
	FloorHit        bool   `json:"floor_hit"`
	BytesSaved      int64  `json:"bytes_saved"`
	CumulativeSaved int64  `json:"cumulative_saved"`
	CompletedAtUTC  string `json:"completed_at_utc,omitempty"`
}

// MemoryReport maps matrix names to byte counts with aggregate totals.
// PackedBytes is the theoretical size after compression (sparse encoding
// for the full-precision engine, sub-byte packing for quantized copies).
type MemoryReport struct {
	Matrices         map[string]int64 `json:"matrices"`
	TotalBytes       int64            `json:"total_bytes"`
	PackedBytes      int64            `json:"packed_bytes"`
	CompressionRatio float64          `json:"compression_ratio,omitempty"`
}
