package strategy

import (
	"encoding/json"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/atmx/nbapaper/internal/model"
)

var validate = validator.New()

func decimalFromFloat(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// DefaultSharpLineConfig returns documented defaults.
func DefaultSharpLineConfig() SharpLineConfig {
	return SharpLineConfig{
		ThresholdPercent:     decimalFromFloat(5.0),
		MinSampleSportsbooks: 3,
		PositionSize:         10,
		CooldownMinutes:      5,
		MinEVPercent:         decimalFromFloat(2.0),
		MarketTypes:          []string{"moneyline"},
		UseKellySizing:       false,
		KellyFraction:        decimalFromFloat(0.25),
		BankrollUnits:        1000,
	}
}

// DefaultMomentumConfig returns documented defaults.
func DefaultMomentumConfig() MomentumConfig {
	return MomentumConfig{
		LookbackSeconds:     120,
		MinPriceChangeCents: 5,
		PositionSize:        10,
		CooldownMinutes:     3,
		MaxSpreadCents:      3,
		MarketTypes:         []string{"moneyline", "spread", "total"},
	}
}

// DefaultEvMultiBookConfig returns documented defaults.
func DefaultEvMultiBookConfig() EvMultiBookConfig {
	return EvMultiBookConfig{
		MinEVPercent:           decimalFromFloat(3.0),
		MinSportsbooksAgreeing: 2,
		PositionSize:           10,
		CooldownMinutes:        5,
		MarketTypes:            []string{"moneyline"},
	}
}

// DefaultMeanReversionConfig returns documented defaults.
func DefaultMeanReversionConfig() MeanReversionConfig {
	return MeanReversionConfig{
		MinReversionPercent: decimalFromFloat(15.0),
		MaxReversionPercent: decimalFromFloat(40.0),
		MinTimeRemainingPct: decimalFromFloat(25.0),
		PositionSize:        10,
		CooldownMinutes:     10,
		OnlyFirstHalf:       true,
		MarketTypes:         []string{"moneyline"},
		MaxScoreDeficit:     20,
	}
}

// DefaultCorrelationConfig returns documented defaults.
func DefaultCorrelationConfig() CorrelationConfig {
	return CorrelationConfig{
		MinDiscrepancyPercent: decimalFromFloat(5.0),
		ComplementaryMaxSum:   decimalFromFloat(105.0),
		ComplementaryMinSum:   decimalFromFloat(95.0),
		PositionSize:          10,
		CooldownMinutes:       5,
		CheckComplementary:    true,
		CheckMoneylineSpread:  true,
		PreferNoOnOvervalued:  true,
	}
}

// decodeConfig seeds out with its documented defaults (seed is a pointer
// to an already-defaulted value of the same type as out), then merges in
// any operator overrides present in raw, then validates. defaults.Set
// additionally fills any plain (non-decimal) field the seed left zero —
// belt-and-suspenders for config structs that grow a field between
// releases without a matching seed update.
func decodeConfig(seed, out interface{}, raw map[string]interface{}) error {
	b, err := json.Marshal(seed)
	if err != nil {
		return fmt.Errorf("strategy: marshal default config: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("strategy: unmarshal default config: %w", err)
	}
	if err := defaults.Set(out); err != nil {
		return fmt.Errorf("strategy: defaults: %w", err)
	}
	if len(raw) > 0 {
		b, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("strategy: marshal override config: %w", err)
		}
		if err := json.Unmarshal(b, out); err != nil {
			return fmt.Errorf("strategy: unmarshal override config: %w", err)
		}
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("strategy: invalid config: %w", err)
	}
	return nil
}

// FromRecord constructs a Strategy instance from a persisted
// StrategyRecord, applying documented defaults to any fields the operator
// left unset.
func FromRecord(rec model.StrategyRecord) (Strategy, error) {
	switch Kind(rec.Kind) {
	case KindSharpLine:
		seed := DefaultSharpLineConfig()
		var cfg SharpLineConfig
		if err := decodeConfig(seed, &cfg, rec.Config); err != nil {
			return nil, err
		}
		return NewSharpLine(rec.ID, cfg), nil
	case KindMomentum:
		seed := DefaultMomentumConfig()
		var cfg MomentumConfig
		if err := decodeConfig(seed, &cfg, rec.Config); err != nil {
			return nil, err
		}
		return NewMomentum(rec.ID, cfg), nil
	case KindEvMultiBook:
		seed := DefaultEvMultiBookConfig()
		var cfg EvMultiBookConfig
		if err := decodeConfig(seed, &cfg, rec.Config); err != nil {
			return nil, err
		}
		return NewEvMultiBook(rec.ID, cfg), nil
	case KindMeanRevert:
		seed := DefaultMeanReversionConfig()
		var cfg MeanReversionConfig
		if err := decodeConfig(seed, &cfg, rec.Config); err != nil {
			return nil, err
		}
		return NewMeanReversion(rec.ID, cfg), nil
	case KindCorrelation:
		seed := DefaultCorrelationConfig()
		var cfg CorrelationConfig
		if err := decodeConfig(seed, &cfg, rec.Config); err != nil {
			return nil, err
		}
		return NewCorrelation(rec.ID, cfg), nil
	default:
		return nil, fmt.Errorf("strategy: unknown kind %q", rec.Kind)
	}
}
