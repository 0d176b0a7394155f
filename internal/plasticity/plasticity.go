package plasticity

import (
	"fmt"
	"math"
	"strings"

	"pleroma/internal/model"
	"pleroma/internal/numerics"
	"pleroma/internal/reservoir"
)

const (
	RuleHebbian     = "hebbian"
	RuleAntiHebbian = "anti_hebbian"
	RuleSTDP        = "stdp"
)

const (
	defaultTraceDecay     = 0.99
	defaultRadiusDriftCap = 0.1
	defaultSTDPThreshold  = 0.5
)

// NormalizeRuleName maps accepted aliases onto the canonical rule names.
func NormalizeRuleName(rule string) string {
	switch strings.ToLower(strings.TrimSpace(rule)) {
	case RuleHebbian, "hebb":
		return RuleHebbian
	case RuleAntiHebbian, "anti-hebbian", "antihebbian":
		return RuleAntiHebbian
	case RuleSTDP, "stdp_approx":
		return RuleSTDP
	default:
		return strings.ToLower(strings.TrimSpace(rule))
	}
}

func validateRule(rule string) error {
	switch rule {
	case RuleHebbian, RuleAntiHebbian, RuleSTDP:
		return nil
	default:
		return fmt.Errorf("unsupported plasticity rule: %s", rule)
	}
}

// Extension applies one online plasticity rule to the recurrent matrix
// after every state update. It never creates connections: updates touch
// only currently non-zero entries, so the sparsity mask is invariant.
type Extension struct {
	cfg model.PlasticityConfig

	prevState []float64
	trace     *numerics.Matrix
}

// New validates the rule selection. The rule is fixed for the lifetime of
// the extension.
func New(cfg model.PlasticityConfig) (*Extension, error) {
	cfg.Rule = NormalizeRuleName(cfg.Rule)
	if err := validateRule(cfg.Rule); err != nil {
		return nil, err
	}
	if cfg.Rate == 0 {
		return nil, fmt.Errorf("plasticity rate must be non-zero")
	}
	if cfg.TraceDecay <= 0 || cfg.TraceDecay >= 1 {
		cfg.TraceDecay = defaultTraceDecay
	}
	if cfg.RadiusDriftCap <= 0 {
		cfg.RadiusDriftCap = defaultRadiusDriftCap
	}
	if cfg.STDPThreshold <= 0 {
		cfg.STDPThreshold = defaultSTDPThreshold
	}
	return &Extension{cfg: cfg}, nil
}

func (x *Extension) Name() string {
	return "plasticity:" + x.cfg.Rule
}

// Rule returns the canonical rule name chosen at construction.
func (x *Extension) Rule() string { return x.cfg.Rule }

// Trace exposes the exponentially decayed accumulation of plasticity
// contributions per connection, consumed by contraction importance
// blending.
func (x *Extension) Trace() *numerics.Matrix { return x.trace }

// AfterStep applies the configured rule to every currently non-zero
// recurrent weight, using the pre-update state as presynaptic activity and
// the post-update state as postsynaptic activity. Unbounded Hebbian growth
// is positive feedback, so the recurrent radius is renormalized whenever it
// drifts more than the configured cap above target.
func (x *Extension) AfterStep(e *reservoir.Engine, _ []float64) error {
	post := e.State()
	if x.prevState == nil {
		// First step: no presynaptic activity yet.
		x.prevState = post
		x.trace = &numerics.Matrix{Rows: len(post), Cols: len(post), Data: make([]float64, len(post)*len(post))}
		return nil
	}
	pre := x.prevState
	w := e.ReservoirWeights()
	theta := x.cfg.STDPThreshold

	for i := 0; i < w.Rows; i++ {
		row := w.Data[i*w.Cols : (i+1)*w.Cols]
		traceRow := x.trace.Data[i*w.Cols : (i+1)*w.Cols]
		for j := range row {
			traceRow[j] *= x.cfg.TraceDecay
			if row[j] == 0 {
				continue
			}
			var delta float64
			switch x.cfg.Rule {
			case RuleHebbian:
				delta = x.cfg.Rate * post[i] * pre[j]
			case RuleAntiHebbian:
				delta = -x.cfg.Rate * post[i] * pre[j]
			case RuleSTDP:
				// Threshold-crossing order approximation: presynaptic
				// activity preceding postsynaptic activity potentiates,
				// the reverse order depresses.
				if pre[j] >= theta && post[i] >= theta {
					delta += x.cfg.Rate * pre[j] * post[i]
				}
				if pre[i] >= theta && post[j] >= theta {
					delta -= x.cfg.Rate * pre[i] * post[j]
				}
			}
			if delta != 0 {
				row[j] += delta
				traceRow[j] += math.Abs(delta)
			}
		}
	}
	x.prevState = post

	target := e.Config().SpectralRadius
	rho, err := e.Estimator().Estimate(w)
	if err != nil {
		return err
	}
	if rho > target*(1+x.cfg.RadiusDriftCap) {
		w.Scale(target / rho)
	}
	return nil
}

// Adapt replays a sequence through the reservoir for unsupervised
// structural adaptation: plasticity applies after every step, no readout
// is trained. The extension must already be registered on the engine.
func (x *Extension) Adapt(e *reservoir.Engine, inputs [][]float64) error {
	if len(inputs) == 0 {
		return fmt.Errorf("adaptation sequence must not be empty")
	}
	for t := range inputs {
		if err := e.Step(inputs[t]); err != nil {
			return fmt.Errorf("adaptation step %d: %w", t, err)
		}
	}
	return nil
}
