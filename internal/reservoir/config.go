package reservoir

import (
	"fmt"

	"pleroma/internal/model"
	"pleroma/internal/numerics"
)

const (
	defaultRidgeLambda            = 1e-6
	defaultSaturationEpsilon      = 1e-3
	defaultSaturationWarnFraction = 0.9
)

// NormalizeConfig applies defaults and validates. Configuration errors fail
// fast, before any matrix is synthesized.
func NormalizeConfig(cfg model.EngineConfig) (model.EngineConfig, error) {
	if cfg.RidgeLambda <= 0 {
		cfg.RidgeLambda = defaultRidgeLambda
	}
	if cfg.SaturationEpsilon <= 0 {
		cfg.SaturationEpsilon = defaultSaturationEpsilon
	}
	if cfg.SaturationWarnFraction <= 0 {
		cfg.SaturationWarnFraction = defaultSaturationWarnFraction
	}
	if cfg.RadiusEstimator == "" {
		cfg.RadiusEstimator = numerics.EstimatorAuto
	}

	if cfg.InputSize < 1 {
		return cfg, fmt.Errorf("input size must be >= 1, got %d", cfg.InputSize)
	}
	if cfg.ReservoirSize < 1 {
		return cfg, fmt.Errorf("reservoir size must be >= 1, got %d", cfg.ReservoirSize)
	}
	if cfg.OutputSize < 1 {
		return cfg, fmt.Errorf("output size must be >= 1, got %d", cfg.OutputSize)
	}
	if cfg.SpectralRadius <= 0 || cfg.SpectralRadius > 2 {
		return cfg, fmt.Errorf("spectral radius must be in (0, 2], got %f", cfg.SpectralRadius)
	}
	if cfg.Sparsity < 0 || cfg.Sparsity >= 1 {
		return cfg, fmt.Errorf("sparsity must be in [0, 1), got %f", cfg.Sparsity)
	}
	if cfg.Noise < 0 {
		return cfg, fmt.Errorf("noise must be >= 0, got %f", cfg.Noise)
	}
	if cfg.SaturationWarnFraction > 1 {
		return cfg, fmt.Errorf("saturation warn fraction must be <= 1, got %f", cfg.SaturationWarnFraction)
	}
	if _, err := numerics.EstimatorFromName(cfg.RadiusEstimator); err != nil {
		return cfg, err
	}
	return cfg, nil
}
