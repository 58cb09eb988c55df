package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/nbapaper/internal/model"
)

// CorrelationConfig is the typed configuration for the correlation-
// checking strategy kind, distinct from the risk package's exposure
// accounting of the same name.
type CorrelationConfig struct {
	MinDiscrepancyPercent decimal.Decimal `json:"min_discrepancy_percent" default:"5.0"`
	ComplementaryMaxSum   decimal.Decimal `json:"complementary_max_sum" default:"105.0"`
	ComplementaryMinSum   decimal.Decimal `json:"complementary_min_sum" default:"95.0"`
	PositionSize          int64           `json:"position_size" default:"10" validate:"min=1"`
	CooldownMinutes       int             `json:"cooldown_minutes" default:"5" validate:"min=0"`
	CheckComplementary    bool            `json:"check_complementary" default:"true"`
	CheckMoneylineSpread  bool            `json:"check_moneyline_spread" default:"true"`
	PreferNoOnOvervalued  bool            `json:"prefer_no_on_overvalued" default:"true"`
}

// Correlation checks two cross-market consistency relationships: the
// home/away moneyline Yes prices should sum to roughly 100, and a spread
// market's implied probability should track a simple linear function of
// the moneyline's.
type Correlation struct {
	id       string
	cfg      CorrelationConfig
	cooldown *cooldownTracker
	history  *signalHistory
}

func NewCorrelation(id string, cfg CorrelationConfig) *Correlation {
	return &Correlation{id: id, cfg: cfg, cooldown: newCooldownTracker(), history: newSignalHistory()}
}

func (s *Correlation) ID() string                  { return s.id }
func (s *Correlation) Kind() Kind                  { return KindCorrelation }
func (s *Correlation) Recent() []model.TradeSignal { return s.history.Recent() }

func (s *Correlation) Evaluate(now time.Time, gs model.GameState, markets []model.Market, odds []model.OddsQuote) []model.TradeSignal {
	var out []model.TradeSignal

	homes := marketsByKind(markets, model.MarketMoneylineHome)
	aways := marketsByKind(markets, model.MarketMoneylineAway)

	if s.cfg.CheckComplementary && len(homes) > 0 && len(aways) > 0 {
		if sig, ok := s.checkComplementary(now, gs, homes[0], aways[0]); ok {
			s.fire(sig, now, sig.MarketTicker, &out)
		}
	}

	if s.cfg.CheckMoneylineSpread && len(homes) > 0 {
		for _, spreadMkt := range marketsByKind(markets, model.MarketSpread) {
			if sig, ok := s.checkMoneylineSpread(now, gs, homes[0], spreadMkt); ok {
				s.fire(sig, now, sig.MarketTicker, &out)
			}
		}
	}

	return out
}

func (s *Correlation) fire(sig model.TradeSignal, now time.Time, ticker string, out *[]model.TradeSignal) {
	s.cooldown.Fire(now, ticker)
	s.history.Record(sig)
	*out = append(*out, sig)
}

func (s *Correlation) checkComplementary(now time.Time, gs model.GameState, home, away model.Market) (model.TradeSignal, bool) {
	homeOB, ok1 := gs.Orderbooks[home.Ticker]
	awayOB, ok2 := gs.Orderbooks[away.Ticker]
	if !ok1 || !ok2 {
		return model.TradeSignal{}, false
	}
	homeMid, ok1 := homeOB.Mid()
	awayMid, ok2 := awayOB.Mid()
	if !ok1 || !ok2 {
		return model.TradeSignal{}, false
	}

	sum := homeMid.Add(awayMid)
	if sum.LessThanOrEqual(s.cfg.ComplementaryMaxSum) {
		return model.TradeSignal{}, false
	}

	// both sides overvalued relative to their complement; prefer No on the
	// higher-priced side
	overvalued := home
	overvaluedOB := homeOB
	if awayMid.GreaterThan(homeMid) {
		overvalued = away
		overvaluedOB = awayOB
	}

	if !s.cooldown.Ready(now, overvalued.Ticker, time.Duration(s.cfg.CooldownMinutes)*time.Minute) {
		return model.TradeSignal{}, false
	}

	var entry decimal.Decimal
	switch {
	case overvaluedOB.HasNoAsk:
		entry = overvaluedOB.NoAsk
	case overvaluedOB.HasYesBid:
		entry = decimal.NewFromInt(100).Sub(overvaluedOB.YesBid)
	default:
		return model.TradeSignal{}, false
	}

	return model.TradeSignal{
		StrategyID:   s.id,
		StrategyKind: string(KindCorrelation),
		GameID:       gs.Game.ID,
		MarketTicker: overvalued.Ticker,
		Side:         model.SideNo,
		Quantity:     s.cfg.PositionSize,
		Confidence:   sum.Sub(s.cfg.ComplementaryMaxSum),
		Reason:       "home/away moneyline sum overvalued",
		Metadata: map[string]interface{}{
			"sum_pct":     sum.String(),
			"entry_price": entry.String(),
		},
		EmittedAt: now,
	}, true
}

func (s *Correlation) checkMoneylineSpread(now time.Time, gs model.GameState, moneyline, spread model.Market) (model.TradeSignal, bool) {
	if !s.cooldown.Ready(now, spread.Ticker, time.Duration(s.cfg.CooldownMinutes)*time.Minute) {
		return model.TradeSignal{}, false
	}
	mlOB, ok := gs.Orderbooks[moneyline.Ticker]
	if !ok {
		return model.TradeSignal{}, false
	}
	mlMid, ok := mlOB.Mid()
	if !ok {
		return model.TradeSignal{}, false
	}
	spreadOB, ok := gs.Orderbooks[spread.Ticker]
	if !ok {
		return model.TradeSignal{}, false
	}
	actual, ok := spreadOB.Mid()
	if !ok {
		return model.TradeSignal{}, false
	}

	half := decimal.NewFromFloat(0.5)
	fifty := decimal.NewFromInt(50)
	expected := fifty.Add(mlMid.Sub(fifty).Mul(half))
	discrepancy := actual.Sub(expected)

	if discrepancy.Abs().LessThan(s.cfg.MinDiscrepancyPercent) {
		return model.TradeSignal{}, false
	}

	var side model.Side
	var entry decimal.Decimal
	if discrepancy.GreaterThan(decimal.Zero) {
		// actual overpriced on Yes: close the gap by going No.
		side = model.SideNo
		switch {
		case spreadOB.HasNoAsk:
			entry = spreadOB.NoAsk
		case spreadOB.HasYesBid:
			entry = decimal.NewFromInt(100).Sub(spreadOB.YesBid)
		default:
			return model.TradeSignal{}, false
		}
	} else {
		side = model.SideYes
		if !spreadOB.HasYesAsk {
			return model.TradeSignal{}, false
		}
		entry = spreadOB.YesAsk
	}

	return model.TradeSignal{
		StrategyID:   s.id,
		StrategyKind: string(KindCorrelation),
		GameID:       gs.Game.ID,
		MarketTicker: spread.Ticker,
		Side:         side,
		Quantity:     s.cfg.PositionSize,
		Confidence:   discrepancy.Abs(),
		Reason:       "spread price diverges from moneyline-implied expectation",
		Metadata: map[string]interface{}{
			"actual_pct":   actual.String(),
			"expected_pct": expected.String(),
			"entry_price":  entry.String(),
		},
		EmittedAt: now,
	}, true
}
