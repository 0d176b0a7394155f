package contraction

import (
	"fmt"
	"sort"
	"time"

	"pleroma/internal/model"
	"pleroma/internal/numerics"
	"pleroma/internal/reservoir"
	"pleroma/internal/storage"
)

// Phase is the contraction state machine position. Phases advance only
// through contraction operations.
type Phase string

const (
	PhasePlenitude Phase = "plenitude"
	PhaseDarkNight Phase = "dark_night"
	PhaseVoid      Phase = "void"
	PhaseRebirth   Phase = "rebirth"
)

const (
	defaultImportanceDecay  = 0.9
	defaultMagnitudeWeight  = 0.7
	defaultPlasticityWeight = 0.3
	defaultRegrowthScale    = 0.01

	// sparseConnectionBytes is the sparse-encoding cost of one connection
	// (8-byte value plus 4-byte column index), the unit for memory-saved
	// reporting.
	sparseConnectionBytes = 12
)

// PlasticityTrace supplies accumulated plasticity contributions for
// importance blending. plasticity.Extension satisfies it.
type PlasticityTrace interface {
	Trace() *numerics.Matrix
}

// Protocol cyclically removes and regrows recurrent connections. It is a
// reservoir StepHook: the importance map updates continuously and a cycle
// can auto-trigger on a configured step interval.
type Protocol struct {
	cfg   model.ContractionConfig
	phase Phase

	importance *numerics.Matrix
	trace      PlasticityTrace

	cycleCount      int
	stepsSinceCycle int
	cumulativeSaved int64
	records         []model.ContractionRecord
}

func New(cfg model.ContractionConfig) (*Protocol, error) {
	if cfg.PruneFraction < 0 || cfg.PruneFraction > 1 {
		return nil, fmt.Errorf("prune fraction must be in [0, 1], got %f", cfg.PruneFraction)
	}
	if cfg.RegrowFraction < 0 || cfg.RegrowFraction > 1 {
		return nil, fmt.Errorf("regrow fraction must be in [0, 1], got %f", cfg.RegrowFraction)
	}
	if cfg.MinConnections < 1 {
		return nil, fmt.Errorf("minimum connection count must be >= 1, got %d", cfg.MinConnections)
	}
	if cfg.IntervalSteps < 0 {
		return nil, fmt.Errorf("interval steps must be >= 0, got %d", cfg.IntervalSteps)
	}
	if cfg.ImportanceDecay <= 0 || cfg.ImportanceDecay >= 1 {
		cfg.ImportanceDecay = defaultImportanceDecay
	}
	if cfg.MagnitudeWeight <= 0 {
		cfg.MagnitudeWeight = defaultMagnitudeWeight
	}
	if cfg.PlasticityWeight < 0 {
		cfg.PlasticityWeight = 0
	} else if cfg.PlasticityWeight == 0 {
		cfg.PlasticityWeight = defaultPlasticityWeight
	}
	if cfg.RegrowthScale <= 0 {
		cfg.RegrowthScale = defaultRegrowthScale
	}
	return &Protocol{cfg: cfg, phase: PhasePlenitude}, nil
}

// SetTrace wires accumulated plasticity contributions into importance
// blending. Without a trace, importance is magnitude-only.
func (p *Protocol) SetTrace(t PlasticityTrace) {
	p.trace = t
}

func (p *Protocol) Name() string { return "contraction" }

func (p *Protocol) Phase() Phase { return p.phase }

func (p *Protocol) CycleCount() int { return p.cycleCount }

func (p *Protocol) CumulativeSaved() int64 { return p.cumulativeSaved }

// Records returns all completed cycle reports in order.
func (p *Protocol) Records() []model.ContractionRecord {
	return append([]model.ContractionRecord(nil), p.records...)
}

// AfterStep maintains the running importance map and auto-triggers a cycle
// every configured interval.
func (p *Protocol) AfterStep(e *reservoir.Engine, _ []float64) error {
	p.updateImportance(e)
	if p.cfg.IntervalSteps > 0 {
		p.stepsSinceCycle++
		if p.stepsSinceCycle >= p.cfg.IntervalSteps {
			p.stepsSinceCycle = 0
			if _, err := p.Cycle(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// updateImportance blends weight magnitude with accumulated plasticity
// contribution under exponential decay. Absent connections carry no
// importance.
func (p *Protocol) updateImportance(e *reservoir.Engine) {
	w := e.ReservoirWeights()
	if p.importance == nil || len(p.importance.Data) != len(w.Data) {
		p.importance = &numerics.Matrix{Rows: w.Rows, Cols: w.Cols, Data: make([]float64, len(w.Data))}
	}
	var traceData []float64
	if p.trace != nil {
		if tm := p.trace.Trace(); tm != nil && len(tm.Data) == len(w.Data) {
			traceData = tm.Data
		}
	}
	decay := p.cfg.ImportanceDecay
	for i, v := range w.Data {
		if v == 0 {
			p.importance.Data[i] = 0
			continue
		}
		score := p.cfg.MagnitudeWeight * abs(v)
		if traceData != nil {
			score += p.cfg.PlasticityWeight * traceData[i]
		}
		p.importance.Data[i] = decay*p.importance.Data[i] + (1-decay)*score
	}
}

// Cycle runs one full contraction: DarkNight prunes the least important
// connections, Void renormalizes the thinned reservoir, Rebirth regrows a
// fraction of the pruned count at random empty positions, and the protocol
// returns to Plenitude. A cycle that would breach the connection floor
// prunes nothing and reports so.
func (p *Protocol) Cycle(e *reservoir.Engine) (model.ContractionRecord, error) {
	w := e.ReservoirWeights()
	p.updateImportance(e)
	pre := w.NonZeroCount()

	record := model.ContractionRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		Cycle:          p.cycleCount + 1,
		PreConnections: pre,
	}

	p.phase = PhaseDarkNight
	target := int(p.cfg.PruneFraction * float64(pre))
	if pre-target < p.cfg.MinConnections {
		target = pre - p.cfg.MinConnections
	}
	if target <= 0 {
		// Floor reached: no partial side effect, the cycle reports and
		// returns to rest.
		p.phase = PhasePlenitude
		record.FloorHit = true
		record.PostConnections = pre
		record.CumulativeSaved = p.cumulativeSaved
		record.CompletedAtUTC = time.Now().UTC().Format(time.RFC3339Nano)
		p.cycleCount++
		p.records = append(p.records, record)
		return record, nil
	}

	pruned, err := p.prune(e, target)
	if err != nil {
		return model.ContractionRecord{}, err
	}
	record.PrunedCount = pruned

	p.phase = PhaseVoid
	if err := p.renormalize(e); err != nil {
		return model.ContractionRecord{}, err
	}

	p.phase = PhaseRebirth
	regrown, err := p.regrow(e, pruned)
	if err != nil {
		return model.ContractionRecord{}, err
	}
	record.RegrownCount = regrown
	if regrown > 0 {
		if err := p.renormalize(e); err != nil {
			return model.ContractionRecord{}, err
		}
	}

	p.phase = PhasePlenitude
	post := w.NonZeroCount()
	record.PostConnections = post
	record.BytesSaved = int64(pre-post) * sparseConnectionBytes
	p.cumulativeSaved += record.BytesSaved
	record.CumulativeSaved = p.cumulativeSaved
	record.CompletedAtUTC = time.Now().UTC().Format(time.RFC3339Nano)

	p.cycleCount++
	p.records = append(p.records, record)
	return record, nil
}

type scoredEntry struct {
	index int
	score float64
}

// prune zeroes up to target connections in ascending importance order,
// skipping entries protected by topology preservation.
func (p *Protocol) prune(e *reservoir.Engine, target int) (int, error) {
	w := e.ReservoirWeights()
	entries := make([]scoredEntry, 0, target*2)
	for i, v := range w.Data {
		if v != 0 {
			entries = append(entries, scoredEntry{index: i, score: p.importance.Data[i]})
		}
	}
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].score != entries[b].score {
			return entries[a].score < entries[b].score
		}
		return entries[a].index < entries[b].index
	})

	var protected map[int]bool
	if p.cfg.PreserveTopology {
		protected = p.protectedEntries(w)
	}

	pruned := 0
	for _, entry := range entries {
		if pruned >= target {
			break
		}
		if protected[entry.index] {
			continue
		}
		w.Data[entry.index] = 0
		p.importance.Data[entry.index] = 0
		pruned++
	}
	return pruned, nil
}

// protectedEntries marks the highest-importance connection in every row and
// column so each neuron keeps at least one inbound and one outbound link.
func (p *Protocol) protectedEntries(w *numerics.Matrix) map[int]bool {
	protected := make(map[int]bool, 2*w.Rows)
	for i := 0; i < w.Rows; i++ {
		best, bestScore := -1, -1.0
		for j := 0; j < w.Cols; j++ {
			idx := i*w.Cols + j
			if w.Data[idx] != 0 && p.importance.Data[idx] > bestScore {
				best, bestScore = idx, p.importance.Data[idx]
			}
		}
		if best >= 0 {
			protected[best] = true
		}
	}
	for j := 0; j < w.Cols; j++ {
		best, bestScore := -1, -1.0
		for i := 0; i < w.Rows; i++ {
			idx := i*w.Cols + j
			if w.Data[idx] != 0 && p.importance.Data[idx] > bestScore {
				best, bestScore = idx, p.importance.Data[idx]
			}
		}
		if best >= 0 {
			protected[best] = true
		}
	}
	return protected
}

// regrow reinstates a fraction of the pruned count at random currently
// empty positions with small weights. New connections must earn influence
// through later plasticity.
func (p *Protocol) regrow(e *reservoir.Engine, pruned int) (int, error) {
	count := int(p.cfg.RegrowFraction * float64(pruned))
	if count <= 0 {
		return 0, nil
	}
	w := e.ReservoirWeights()
	empty := make([]int, 0, len(w.Data))
	for i, v := range w.Data {
		if v == 0 {
			empty = append(empty, i)
		}
	}
	if count > len(empty) {
		count = len(empty)
	}
	src := e.Rand()
	src.Shuffle(len(empty), func(a, b int) {
		empty[a], empty[b] = empty[b], empty[a]
	})
	for _, idx := range empty[:count] {
		weight := src.Range(-p.cfg.RegrowthScale, p.cfg.RegrowthScale)
		for weight == 0 {
			weight = src.Range(-p.cfg.RegrowthScale, p.cfg.RegrowthScale)
		}
		w.Data[idx] = weight
	}
	return count, nil
}

func (p *Protocol) renormalize(e *reservoir.Engine) error {
	w := e.ReservoirWeights()
	target := e.Config().SpectralRadius
	if _, err := numerics.ScaleToRadius(w, target, e.Estimator()); err != nil {
		return fmt.Errorf("renormalize after contraction: %w", err)
	}
	return nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
