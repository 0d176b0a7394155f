package quant

import (
	"fmt"
	"math"

	"pleroma/internal/model"
	"pleroma/internal/numerics"
	"pleroma/internal/reservoir"
	"pleroma/internal/rng"
)

// SupportedBits lists the accepted quantization widths.
var SupportedBits = []int{1, 2, 4, 8}

// Matrix is a reduced-precision weight matrix: int8 codes plus immutable
// affine parameters. Codes are stored one per byte; sub-byte packing is a
// reporting concern only.
type Matrix struct {
	Rows   int
	Cols   int
	Codes  []int8
	Params model.QuantizationParams
}

// Dequantize reverses the affine map for one code.
func (m *Matrix) Dequantize(code int8) float64 {
	if m.Params.Bits == 1 {
		return float64(code) * m.Params.Scale
	}
	return float64(code)*m.Params.Scale + m.Params.Offset
}

// MulVec computes the dequantized matrix-vector product into dst. Weights
// stay compressed in memory; arithmetic happens in full precision.
func (m *Matrix) MulVec(x, dst []float64) error {
	if len(x) != m.Cols {
		return fmt.Errorf("vector length %d does not match %d columns", len(x), m.Cols)
	}
	if len(dst) != m.Rows {
		return fmt.Errorf("destination length %d does not match %d rows", len(dst), m.Rows)
	}
	for i := 0; i < m.Rows; i++ {
		row := m.Codes[i*m.Cols : (i+1)*m.Cols]
		sum := 0.0
		for j, code := range row {
			sum += m.Dequantize(code) * x[j]
		}
		dst[i] = sum
	}
	return nil
}

// Bytes returns the allocated size of the code storage.
func (m *Matrix) Bytes() int { return len(m.Codes) }

// PackedBytes returns the theoretical size after sub-byte packing.
func (m *Matrix) PackedBytes() int {
	return (len(m.Codes)*m.Params.Bits + 7) / 8
}

// Engine is an independent, inference-only reduced-precision copy of a
// trained reservoir engine. Mutating the source after quantization never
// affects it.
type Engine struct {
	cfg  model.EngineConfig
	bits int

	win  *Matrix
	wres *Matrix
	wout *Matrix

	state      []float64
	src        *rng.Source
	origin     uint32
	scratchPre []float64
	scratchRec []float64
}

// Quantize produces a reduced-precision copy of a trained engine. The
// source must be trained and bits must be one of SupportedBits.
func Quantize(e *reservoir.Engine, bits int) (*Engine, error) {
	if e == nil {
		return nil, fmt.Errorf("source engine is required")
	}
	if !e.Trained() {
		return nil, fmt.Errorf("quantize: %w", reservoir.ErrNotTrained)
	}
	supported := false
	for _, b := range SupportedBits {
		if bits == b {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("unsupported bit width: %d (supported: 1, 2, 4, 8)", bits)
	}

	cfg := e.Config()
	q := &Engine{
		cfg:        cfg,
		bits:       bits,
		win:        quantizeMatrix(e.InputWeights(), bits),
		wres:       quantizeMatrix(e.ReservoirWeights(), bits),
		wout:       quantizeMatrix(e.OutputWeights(), bits),
		state:      make([]float64, cfg.ReservoirSize),
		src:        rng.NewSource(cfg.Seed),
		origin:     e.Rand().State(),
		scratchPre: make([]float64, cfg.ReservoirSize),
		scratchRec: make([]float64, cfg.ReservoirSize),
	}
	// The copy continues the source's noise stream from the moment of
	// quantization, independently of the source afterwards.
	q.src.Restore(q.origin)
	return q, nil
}

// quantizeMatrix reduces one matrix. Binary mode keeps the sign scaled by
// the mean absolute weight; wider modes map the matrix's own [min, max]
// linearly onto the signed integer grid.
func quantizeMatrix(m *numerics.Matrix, bits int) *Matrix {
	out := &Matrix{Rows: m.Rows, Cols: m.Cols, Codes: make([]int8, len(m.Data))}

	if bits == 1 {
		sum, count := 0.0, 0
		for _, v := range m.Data {
			if v != 0 {
				sum += math.Abs(v)
				count++
			}
		}
		scale := 0.0
		if count > 0 {
			scale = sum / float64(count)
		}
		out.Params = model.QuantizationParams{Bits: 1, Scale: scale}
		for i, v := range m.Data {
			switch {
			case v > 0:
				out.Codes[i] = 1
			case v < 0:
				out.Codes[i] = -1
			}
		}
		return out
	}

	lo, hi := m.Data[0], m.Data[0]
	for _, v := range m.Data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	qmax := float64(int(1)<<(bits-1) - 1)
	offset := (hi + lo) / 2
	scale := 0.0
	if hi > lo {
		scale = (hi - lo) / (2 * qmax)
	}
	out.Params = model.QuantizationParams{Bits: bits, Scale: scale, Offset: offset, Min: lo, Max: hi}
	for i, v := range m.Data {
		if scale == 0 {
			continue
		}
		code := math.Round((v - offset) / scale)
		if code > qmax {
			code = qmax
		} else if code < -qmax {
			code = -qmax
		}
		out.Codes[i] = int8(code)
	}
	return out
}

// Bits returns the quantization width.
func (q *Engine) Bits() int { return q.bits }

// Params returns the immutable per-matrix quantization parameters.
func (q *Engine) Params() map[string]model.QuantizationParams {
	return map[string]model.QuantizationParams{
		"input_weights":     q.win.Params,
		"reservoir_weights": q.wres.Params,
		"output_weights":    q.wout.Params,
	}
}

// Step advances the copy with the same update rule as the source engine,
// dequantizing weights on the fly.
func (q *Engine) Step(input []float64) error {
	if len(input) != q.cfg.InputSize {
		return fmt.Errorf("input length %d does not match input size %d", len(input), q.cfg.InputSize)
	}
	if err := q.win.MulVec(input, q.scratchPre); err != nil {
		return err
	}
	if err := q.wres.MulVec(q.state, q.scratchRec); err != nil {
		return err
	}
	for i := range q.state {
		sum := q.scratchPre[i] + q.scratchRec[i]
		if q.cfg.Noise > 0 {
			sum += q.cfg.Noise * q.src.NormFloat64()
		}
		q.state[i] = math.Tanh(sum)
	}
	return numerics.CheckFinite(q.state)
}

// Predict mirrors the source engine's predict semantics. With resetState
// the copy returns to its quantization-time origin.
func (q *Engine) Predict(inputs [][]float64, resetState bool) ([][]float64, error) {
	if resetState {
		q.Reset()
	}
	out := make([][]float64, 0, len(inputs))
	for t := range inputs {
		if err := q.Step(inputs[t]); err != nil {
			return nil, err
		}
		out = append(out, q.project())
	}
	return out, nil
}

// PredictGenerative feeds outputs back as inputs, as on the source engine.
func (q *Engine) PredictGenerative(nSteps int, initialInput []float64) ([][]float64, error) {
	if nSteps <= 0 {
		return nil, fmt.Errorf("step count must be > 0, got %d", nSteps)
	}
	if q.cfg.InputSize != q.cfg.OutputSize {
		return nil, fmt.Errorf("generative prediction requires input size %d == output size %d", q.cfg.InputSize, q.cfg.OutputSize)
	}
	if len(initialInput) != q.cfg.InputSize {
		return nil, fmt.Errorf("initial input has length %d, want %d", len(initialInput), q.cfg.InputSize)
	}
	input := append([]float64(nil), initialInput...)
	out := make([][]float64, 0, nSteps)
	for i := 0; i < nSteps; i++ {
		if err := q.Step(input); err != nil {
			return nil, err
		}
		next := q.project()
		out = append(out, next)
		input = next
	}
	return out, nil
}

// Reset zeroes the state and rewinds the noise stream to the
// quantization-time origin.
func (q *Engine) Reset() {
	for i := range q.state {
		q.state[i] = 0
	}
	q.src.Restore(q.origin)
}

func (q *Engine) project() []float64 {
	out := make([]float64, q.cfg.OutputSize)
	for i, s := range q.state {
		if s == 0 {
			continue
		}
		row := q.wout.Codes[i*q.cfg.OutputSize : (i+1)*q.cfg.OutputSize]
		for j, code := range row {
			out[j] += s * q.wout.Dequantize(code)
		}
	}
	return out
}

// MemoryReport returns actual allocated sizes (one byte per code) next to
// the theoretical packed sizes, with the compression ratio against the
// full-precision float64 baseline.
func (q *Engine) MemoryReport() model.MemoryReport {
	matrices := map[string]int64{
		"input_weights":     int64(q.win.Bytes()),
		"reservoir_weights": int64(q.wres.Bytes()),
		"output_weights":    int64(q.wout.Bytes()),
		"state":             int64(len(q.state) * 8),
	}
	total := int64(0)
	for _, b := range matrices {
		total += b
	}
	packed := int64(q.win.PackedBytes()+q.wres.PackedBytes()+q.wout.PackedBytes()) + int64(len(q.state)*8)
	fullPrecision := int64((len(q.win.Codes) + len(q.wres.Codes) + len(q.wout.Codes)) * 8)
	report := model.MemoryReport{
		Matrices:    matrices,
		TotalBytes:  total,
		PackedBytes: packed,
	}
	if packed > 0 {
		report.CompressionRatio = float64(fullPrecision+int64(len(q.state)*8)) / float64(packed)
	}
	return report
}
