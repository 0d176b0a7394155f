package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"pleroma/internal/model"
	"pleroma/pkg/pleroma"
)

func loadTrainRequestFromConfig(path string) (pleroma.TrainRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pleroma.TrainRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return pleroma.TrainRequest{}, err
	}

	var req pleroma.TrainRequest
	if v, ok := asString(raw["signal"]); ok {
		req.Signal = v
	}
	if v, ok := asInt(raw["samples"]); ok {
		req.Samples = v
	}
	if v, ok := asInt(raw["washout"]); ok {
		req.Washout = v
	}
	if v, ok := asInt(raw["holdout"]); ok {
		req.Holdout = v
	}
	if v, ok := asInt(raw["reservoir_size"]); ok {
		req.ReservoirSize = v
	}
	if v, ok := asFloat64(raw["spectral_radius"]); ok {
		req.SpectralRadius = v
	}
	if v, ok := asFloat64(raw["sparsity"]); ok {
		req.Sparsity = v
	}
	if v, ok := asFloat64(raw["noise"]); ok {
		req.Noise = v
	}
	if v, ok := asFloat64(raw["ridge_lambda"]); ok {
		req.RidgeLambda = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		if v < 0 || v > math.MaxUint32 {
			return pleroma.TrainRequest{}, fmt.Errorf("seed %d out of 32-bit range", v)
		}
		req.Seed = uint32(v)
	}
	if v, ok := asString(raw["estimator"]); ok {
		req.Estimator = v
	}
	if v, ok := asInt(raw["quantize_bits"]); ok {
		req.QuantizeBits = v
	}
	if v, ok := asInt(raw["contraction_cycles"]); ok {
		req.ContractionCycles = v
	}

	if plasticityMap, ok := raw["plasticity"].(map[string]any); ok {
		var cfg model.PlasticityConfig
		if v, ok := asString(plasticityMap["rule"]); ok {
			cfg.Rule = v
		}
		if v, ok := asFloat64(plasticityMap["rate"]); ok {
			cfg.Rate = v
		}
		if v, ok := asFloat64(plasticityMap["stdp_threshold"]); ok {
			cfg.STDPThreshold = v
		}
		if v, ok := asFloat64(plasticityMap["trace_decay"]); ok {
			cfg.TraceDecay = v
		}
		if v, ok := asFloat64(plasticityMap["radius_drift_cap"]); ok {
			cfg.RadiusDriftCap = v
		}
		req.Plasticity = &cfg
	}

	if contractionMap, ok := raw["contraction"].(map[string]any); ok {
		var cfg model.ContractionConfig
		if v, ok := asFloat64(contractionMap["prune_fraction"]); ok {
			cfg.PruneFraction = v
		}
		if v, ok := asFloat64(contractionMap["regrow_fraction"]); ok {
			cfg.RegrowFraction = v
		}
		if v, ok := asInt(contractionMap["min_connections"]); ok {
			cfg.MinConnections = v
		}
		if v, ok := asBool(contractionMap["preserve_topology"]); ok {
			cfg.PreserveTopology = v
		}
		if v, ok := asInt(contractionMap["interval_steps"]); ok {
			cfg.IntervalSteps = v
		}
		if v, ok := asFloat64(contractionMap["importance_decay"]); ok {
			cfg.ImportanceDecay = v
		}
		if v, ok := asFloat64(contractionMap["magnitude_weight"]); ok {
			cfg.MagnitudeWeight = v
		}
		if v, ok := asFloat64(contractionMap["plasticity_weight"]); ok {
			cfg.PlasticityWeight = v
		}
		if v, ok := asFloat64(contractionMap["regrowth_scale"]); ok {
			cfg.RegrowthScale = v
		}
		req.Contraction = &cfg
	}

	return req, nil
}

func loadOrDefaultTrainRequest(configPath string) (pleroma.TrainRequest, error) {
	if configPath == "" {
		return pleroma.TrainRequest{}, nil
	}
	req, err := loadTrainRequestFromConfig(configPath)
	if err != nil {
		return pleroma.TrainRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}

func overrideTrainFromFlags(req *pleroma.TrainRequest, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "signal":
			req.Signal = v.(string)
		case "samples":
			req.Samples = v.(int)
		case "washout":
			req.Washout = v.(int)
		case "holdout":
			req.Holdout = v.(int)
		case "reservoir":
			req.ReservoirSize = v.(int)
		case "radius":
			req.SpectralRadius = v.(float64)
		case "sparsity":
			req.Sparsity = v.(float64)
		case "noise":
			req.Noise = v.(float64)
		case "lambda":
			req.RidgeLambda = v.(float64)
		case "seed":
			req.Seed = uint32(v.(uint64))
		case "estimator":
			req.Estimator = v.(string)
		case "plasticity":
			if rule := v.(string); rule != "" {
				if req.Plasticity == nil {
					req.Plasticity = &model.PlasticityConfig{}
				}
				req.Plasticity.Rule = rule
			}
		case "plasticity-rate":
			if req.Plasticity != nil {
				req.Plasticity.Rate = v.(float64)
			}
		case "quantize":
			req.QuantizeBits = v.(int)
		case "cycles":
			req.ContractionCycles = v.(int)
		}
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
