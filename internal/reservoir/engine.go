package reservoir

import (
	"errors"
	"fmt"
	"math"
	"time"

	"pleroma/internal/model"
	"pleroma/internal/numerics"
	"pleroma/internal/rng"
)

var (
	// ErrNotTrained reports a capacity precondition: predict and quantize
	// require a completed fit.
	ErrNotTrained = errors.New("engine is not trained")

	// ErrUnstable reports non-finite reservoir state. The instance is dead
	// until the caller resets or reconstructs it.
	ErrUnstable = errors.New("numerical instability in reservoir state")
)

// StepHook runs after every state update. Hooks are ordered; each wraps the
// behavior of the ones registered before it. Plasticity and contraction are
// hooks.
type StepHook interface {
	Name() string
	AfterStep(e *Engine, input []float64) error
}

// Warning is a non-fatal diagnostic emitted when a sustained fraction of
// state entries sits near the tanh saturation bound.
type Warning struct {
	Step               int64
	SaturationFraction float64
}

// Engine owns the three weight matrices and the state vector. Instances are
// single-threaded: matrices and state are exclusively owned and concurrent
// access requires external locking.
type Engine struct {
	cfg       model.EngineConfig
	birthHash string

	win  *numerics.Matrix // ReservoirSize x InputSize
	wres *numerics.Matrix // ReservoirSize x ReservoirSize
	wout *numerics.Matrix // ReservoirSize x OutputSize, nil until Fit

	state []float64
	src   *rng.Source
	est   numerics.RadiusEstimator

	hooks []StepHook

	trained        bool
	unstable       bool
	stepCount      int64
	postFitRNG     uint32
	warnCount      int64
	onWarning      func(Warning)
	scratchPre     []float64
	scratchRec     []float64
	initialNonZero int
}

// New synthesizes an engine from a validated configuration: W_in uniform
// [-1,1), W_res uniform [-1,1) masked to the configured sparsity and
// rescaled so its spectral radius equals the target.
func New(cfg model.EngineConfig) (*Engine, error) {
	cfg, err := NormalizeConfig(cfg)
	if err != nil {
		return nil, err
	}
	est, err := numerics.EstimatorFromName(cfg.RadiusEstimator)
	if err != nil {
		return nil, err
	}

	src := rng.NewSource(cfg.Seed)
	win, err := numerics.RandomUniform(cfg.ReservoirSize, cfg.InputSize, src)
	if err != nil {
		return nil, err
	}
	wres, err := numerics.RandomSparse(cfg.ReservoirSize, cfg.Sparsity, src)
	if err != nil {
		return nil, err
	}
	if _, err := numerics.ScaleToRadius(wres, cfg.SpectralRadius, est); err != nil {
		return nil, fmt.Errorf("reservoir synthesis: %w", err)
	}

	return &Engine{
		cfg:            cfg,
		birthHash:      rng.BirthHashString(cfg.Seed, time.Now().Unix()),
		win:            win,
		wres:           wres,
		state:          make([]float64, cfg.ReservoirSize),
		src:            src,
		est:            est,
		scratchPre:     make([]float64, cfg.ReservoirSize),
		scratchRec:     make([]float64, cfg.ReservoirSize),
		initialNonZero: wres.NonZeroCount(),
	}, nil
}

// AddHook appends a post-step extension. Hooks run in registration order.
func (e *Engine) AddHook(h StepHook) {
	e.hooks = append(e.hooks, h)
}

// RemoveHook detaches a previously added extension so later steps no longer
// invoke it. Removing a hook that was never added is a no-op.
func (e *Engine) RemoveHook(h StepHook) {
	for i, hook := range e.hooks {
		if hook == h {
			e.hooks = append(e.hooks[:i], e.hooks[i+1:]...)
			return
		}
	}
}

// SetWarningFunc installs an observer for saturation warnings. Warnings are
// diagnostics only; no corrective action is taken.
func (e *Engine) SetWarningFunc(fn func(Warning)) {
	e.onWarning = fn
}

// Step advances the reservoir one time step:
// state = tanh(W_in·input + W_res·state + noise). It is the sole
// state-mutating primitive; fit, predict and the extensions are built on it.
func (e *Engine) Step(input []float64) error {
	if e.unstable {
		return fmt.Errorf("engine requires reset: %w", ErrUnstable)
	}
	if len(input) != e.cfg.InputSize {
		return fmt.Errorf("input length %d does not match input size %d", len(input), e.cfg.InputSize)
	}

	if err := e.win.MulVec(input, e.scratchPre); err != nil {
		return err
	}
	if err := e.wres.MulVec(e.state, e.scratchRec); err != nil {
		return err
	}
	for i := range e.state {
		sum := e.scratchPre[i] + e.scratchRec[i]
		if e.cfg.Noise > 0 {
			sum += e.cfg.Noise * e.src.NormFloat64()
		}
		e.state[i] = math.Tanh(sum)
	}
	e.stepCount++

	if err := numerics.CheckFinite(e.state); err != nil {
		e.unstable = true
		return fmt.Errorf("step %d: %v: %w", e.stepCount, err, ErrUnstable)
	}
	if frac := numerics.SaturationFraction(e.state, e.cfg.SaturationEpsilon); frac >= e.cfg.SaturationWarnFraction {
		e.warnCount++
		if e.onWarning != nil {
			e.onWarning(Warning{Step: e.stepCount, SaturationFraction: frac})
		}
	}

	for _, h := range e.hooks {
		if err := h.AfterStep(e, input); err != nil {
			return fmt.Errorf("hook %s: %w", h.Name(), err)
		}
	}
	return nil
}

// Fit trains the linear readout on equal-length input/target sequences. The
// state is zeroed, the inputs replayed through Step, the first washout rows
// discarded while the recurrence forgets its arbitrary initial state, and
// W_out solved by ridge regression.
func (e *Engine) Fit(inputs, targets [][]float64, washout int) error {
	if len(inputs) == 0 {
		return fmt.Errorf("training sequence must not be empty")
	}
	if len(inputs) != len(targets) {
		return fmt.Errorf("inputs length %d does not match targets length %d", len(inputs), len(targets))
	}
	if washout < 0 {
		return fmt.Errorf("washout must be >= 0, got %d", washout)
	}
	if washout >= len(inputs) {
		return fmt.Errorf("washout %d must be < sequence length %d", washout, len(inputs))
	}
	for t := range inputs {
		if len(inputs[t]) != e.cfg.InputSize {
			return fmt.Errorf("input %d has length %d, want %d", t, len(inputs[t]), e.cfg.InputSize)
		}
		if len(targets[t]) != e.cfg.OutputSize {
			return fmt.Errorf("target %d has length %d, want %d", t, len(targets[t]), e.cfg.OutputSize)
		}
	}

	e.Reset()
	kept := len(inputs) - washout
	states := &numerics.Matrix{Rows: kept, Cols: e.cfg.ReservoirSize, Data: make([]float64, kept*e.cfg.ReservoirSize)}
	outs := &numerics.Matrix{Rows: kept, Cols: e.cfg.OutputSize, Data: make([]float64, kept*e.cfg.OutputSize)}
	for t := range inputs {
		if err := e.Step(inputs[t]); err != nil {
			return err
		}
		if t < washout {
			continue
		}
		row := t - washout
		copy(states.Data[row*e.cfg.ReservoirSize:(row+1)*e.cfg.ReservoirSize], e.state)
		copy(outs.Data[row*e.cfg.OutputSize:(row+1)*e.cfg.OutputSize], targets[t])
	}

	wout, err := numerics.SolveRidge(states, outs, e.cfg.RidgeLambda)
	if err != nil {
		return fmt.Errorf("readout fit: %w", err)
	}
	e.wout = wout
	e.trained = true
	e.postFitRNG = e.src.State()
	return nil
}

// Predict replays inputs through the reservoir and projects each state
// through the trained readout. With resetState the engine first returns to
// its canonical post-training origin (zero state, post-fit noise stream),
// which makes repeated calls on an unmodified engine bit-identical.
func (e *Engine) Predict(inputs [][]float64, resetState bool) ([][]float64, error) {
	if !e.trained {
		return nil, ErrNotTrained
	}
	if resetState {
		e.Reset()
		e.src.Restore(e.postFitRNG)
	}
	out := make([][]float64, 0, len(inputs))
	for t := range inputs {
		if err := e.Step(inputs[t]); err != nil {
			return nil, err
		}
		out = append(out, e.project())
	}
	return out, nil
}

// PredictGenerative feeds each output back as the next input for nSteps,
// demonstrating autonomous continuation of the learned dynamics. Requires
// matching input and output dimensions.
func (e *Engine) PredictGenerative(nSteps int, initialInput []float64) ([][]float64, error) {
	if !e.trained {
		return nil, ErrNotTrained
	}
	if nSteps <= 0 {
		return nil, fmt.Errorf("step count must be > 0, got %d", nSteps)
	}
	if e.cfg.InputSize != e.cfg.OutputSize {
		return nil, fmt.Errorf("generative prediction requires input size %d == output size %d", e.cfg.InputSize, e.cfg.OutputSize)
	}
	if len(initialInput) != e.cfg.InputSize {
		return nil, fmt.Errorf("initial input has length %d, want %d", len(initialInput), e.cfg.InputSize)
	}

	input := append([]float64(nil), initialInput...)
	out := make([][]float64, 0, nSteps)
	for i := 0; i < nSteps; i++ {
		if err := e.Step(input); err != nil {
			return nil, err
		}
		next := e.project()
		out = append(out, next)
		input = next
	}
	return out, nil
}

// Reset zeroes the state vector. Weights, readout and step counters are
// untouched. An instance marked unstable becomes usable again.
func (e *Engine) Reset() {
	for i := range e.state {
		e.state[i] = 0
	}
	e.unstable = false
}

func (e *Engine) project() []float64 {
	out := make([]float64, e.cfg.OutputSize)
	for i, s := range e.state {
		if s == 0 {
			continue
		}
		row := e.wout.Data[i*e.cfg.OutputSize : (i+1)*e.cfg.OutputSize]
		for j, w := range row {
			out[j] += s * w
		}
	}
	return out
}

// MemoryReport returns per-matrix and total byte sizes. PackedBytes is the
// theoretical sparse encoding of the reservoir (8-byte value plus 4-byte
// column index per non-zero) with the dense matrices unchanged.
func (e *Engine) MemoryReport() model.MemoryReport {
	matrices := map[string]int64{
		"input_weights":     int64(e.win.Bytes()),
		"reservoir_weights": int64(e.wres.Bytes()),
		"state":             int64(len(e.state) * 8),
	}
	if e.wout != nil {
		matrices["output_weights"] = int64(e.wout.Bytes())
	}
	total := int64(0)
	for _, b := range matrices {
		total += b
	}
	packed := total - matrices["reservoir_weights"] + int64(e.wres.NonZeroCount()*12)
	return model.MemoryReport{
		Matrices:    matrices,
		TotalBytes:  total,
		PackedBytes: packed,
	}
}

// Accessors used by extensions and persistence. ReservoirWeights returns
// the live matrix: plasticity and contraction mutate it in place.
func (e *Engine) Config() model.EngineConfig          { return e.cfg }
func (e *Engine) BirthHash() string                   { return e.birthHash }
func (e *Engine) Trained() bool                       { return e.trained }
func (e *Engine) StepCount() int64                    { return e.stepCount }
func (e *Engine) WarningCount() int64                 { return e.warnCount }
func (e *Engine) ReservoirWeights() *numerics.Matrix  { return e.wres }
func (e *Engine) InputWeights() *numerics.Matrix      { return e.win }
func (e *Engine) OutputWeights() *numerics.Matrix     { return e.wout }
func (e *Engine) Estimator() numerics.RadiusEstimator { return e.est }
func (e *Engine) Rand() *rng.Source                   { return e.src }
func (e *Engine) InitialConnectionCount() int         { return e.initialNonZero }

// State returns a copy of the state vector.
func (e *Engine) State() []float64 {
	return append([]float64(nil), e.state...)
}

// SpectralRadius measures the current reservoir radius with the engine's
// configured estimator.
func (e *Engine) SpectralRadius() (float64, error) {
	return e.est.Estimate(e.wres)
}
