package reservoir

import (
	"fmt"
	"time"

	"pleroma/internal/model"
	"pleroma/internal/numerics"
	"pleroma/internal/rng"
	"pleroma/internal/storage"
)

// Snapshot captures the engine for persistence: configuration, all weight
// matrices and the RNG word. The state vector is deliberately excluded; a
// restored engine starts from a zeroed state.
func (e *Engine) Snapshot(id string) model.EngineSnapshot {
	snap := model.EngineSnapshot{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:               id,
		BirthHash:        e.birthHash,
		Config:           e.cfg,
		InputWeights:     e.win.ToRows(),
		ReservoirWeights: e.wres.ToRows(),
		Trained:          e.trained,
		RNGState:         e.src.State(),
		StepCount:        e.stepCount,
		CreatedAtUTC:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	if e.wout != nil {
		snap.OutputWeights = e.wout.ToRows()
	}
	return snap
}

// FromSnapshot reconstructs an engine from a persisted snapshot. The weight
// matrices and RNG word are restored verbatim, so the restored instance
// replays identically to the one that was saved.
func FromSnapshot(snap model.EngineSnapshot) (*Engine, error) {
	cfg, err := NormalizeConfig(snap.Config)
	if err != nil {
		return nil, fmt.Errorf("snapshot config: %w", err)
	}
	est, err := numerics.EstimatorFromName(cfg.RadiusEstimator)
	if err != nil {
		return nil, err
	}

	win, err := numerics.FromRows(snap.InputWeights)
	if err != nil {
		return nil, fmt.Errorf("snapshot input weights: %w", err)
	}
	wres, err := numerics.FromRows(snap.ReservoirWeights)
	if err != nil {
		return nil, fmt.Errorf("snapshot reservoir weights: %w", err)
	}
	if win.Rows != cfg.ReservoirSize || win.Cols != cfg.InputSize {
		return nil, fmt.Errorf("input weights are %dx%d, config wants %dx%d", win.Rows, win.Cols, cfg.ReservoirSize, cfg.InputSize)
	}
	if wres.Rows != cfg.ReservoirSize || wres.Cols != cfg.ReservoirSize {
		return nil, fmt.Errorf("reservoir weights are %dx%d, config wants %dx%d", wres.Rows, wres.Cols, cfg.ReservoirSize, cfg.ReservoirSize)
	}

	e := &Engine{
		cfg:            cfg,
		birthHash:      snap.BirthHash,
		win:            win,
		wres:           wres,
		state:          make([]float64, cfg.ReservoirSize),
		src:            rng.NewSource(cfg.Seed),
		est:            est,
		stepCount:      snap.StepCount,
		scratchPre:     make([]float64, cfg.ReservoirSize),
		scratchRec:     make([]float64, cfg.ReservoirSize),
		initialNonZero: wres.NonZeroCount(),
	}
	e.src.Restore(snap.RNGState)
	if snap.Trained {
		if len(snap.OutputWeights) == 0 {
			return nil, fmt.Errorf("snapshot marked trained but has no output weights")
		}
		wout, err := numerics.FromRows(snap.OutputWeights)
		if err != nil {
			return nil, fmt.Errorf("snapshot output weights: %w", err)
		}
		if wout.Rows != cfg.ReservoirSize || wout.Cols != cfg.OutputSize {
			return nil, fmt.Errorf("output weights are %dx%d, config wants %dx%d", wout.Rows, wout.Cols, cfg.ReservoirSize, cfg.OutputSize)
		}
		e.wout = wout
		e.trained = true
		e.postFitRNG = snap.RNGState
	}
	return e, nil
}
