package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/nbapaper/internal/model"
	"github.com/atmx/nbapaper/internal/oddsmath"
)

// SharpLineConfig is the typed configuration, populated with defaults
// via github.com/creasty/defaults before any caller overrides are merged in.
type SharpLineConfig struct {
	ThresholdPercent     decimal.Decimal `json:"threshold_percent" default:"5.0" validate:"required"`
	MinSampleSportsbooks int             `json:"min_sample_sportsbooks" default:"3" validate:"min=1"`
	PositionSize         int64           `json:"position_size" default:"10" validate:"min=1"`
	CooldownMinutes      int             `json:"cooldown_minutes" default:"5" validate:"min=0"`
	MinEVPercent         decimal.Decimal `json:"min_ev_percent" default:"2.0"`
	MarketTypes          []string        `json:"market_types" default:"[\"moneyline\"]"`
	UseKellySizing       bool            `json:"use_kelly_sizing" default:"false"`
	KellyFraction        decimal.Decimal `json:"kelly_fraction" default:"0.25"`
	BankrollUnits        int64           `json:"bankroll_units" default:"1000"`
}

// SharpLine compares the exchange's implied probability against sportsbook
// consensus and trades the divergence.
type SharpLine struct {
	id       string
	cfg      SharpLineConfig
	cooldown *cooldownTracker
	history  *signalHistory
}

// NewSharpLine constructs a SharpLine instance with a fully defaulted config.
func NewSharpLine(id string, cfg SharpLineConfig) *SharpLine {
	return &SharpLine{id: id, cfg: cfg, cooldown: newCooldownTracker(), history: newSignalHistory()}
}

func (s *SharpLine) ID() string   { return s.id }
func (s *SharpLine) Kind() Kind   { return KindSharpLine }
func (s *SharpLine) Recent() []model.TradeSignal { return s.history.Recent() }

// Evaluate implements divergence rule against every moneyline
// market currently carrying an orderbook.
func (s *SharpLine) Evaluate(now time.Time, gs model.GameState, markets []model.Market, odds []model.OddsQuote) []model.TradeSignal {
	var out []model.TradeSignal
	for _, kind := range []model.MarketKind{model.MarketMoneylineHome, model.MarketMoneylineAway} {
		for _, m := range marketsByKindFiltered(markets, kind, s.cfg.MarketTypes) {
			sig, ok := s.evaluateMarket(now, gs, m, kind, odds)
			if !ok {
				continue
			}
			s.cooldown.Fire(now, m.Ticker)
			s.history.Record(sig)
			out = append(out, sig)
		}
	}
	return out
}

func (s *SharpLine) evaluateMarket(now time.Time, gs model.GameState, m model.Market, kind model.MarketKind, odds []model.OddsQuote) (model.TradeSignal, bool) {
	if !s.cooldown.Ready(now, m.Ticker, time.Duration(s.cfg.CooldownMinutes)*time.Minute) {
		return model.TradeSignal{}, false
	}

	ob, ok := gs.Orderbooks[m.Ticker]
	if !ok {
		return model.TradeSignal{}, false
	}
	mid, ok := ob.Mid()
	if !ok {
		return model.TradeSignal{}, false
	}
	pExch := mid.Div(decimal.NewFromInt(100))

	var probs []decimal.Decimal
	for _, q := range odds {
		american := q.MoneylineHome
		if kind == model.MarketMoneylineAway {
			american = q.MoneylineAway
		}
		if american == 0 {
			continue
		}
		probs = append(probs, oddsmath.ProbabilityFromAmerican(american))
	}
	if len(probs) < s.cfg.MinSampleSportsbooks {
		return model.TradeSignal{}, false
	}

	consensus := oddsmath.ConsensusMedian(probs)
	divergencePct := consensus.Sub(pExch).Mul(decimal.NewFromInt(100))

	threshold := s.cfg.ThresholdPercent
	if divergencePct.Abs().LessThan(threshold) {
		return model.TradeSignal{}, false
	}

	var side model.Side
	var entryCents decimal.Decimal
	if divergencePct.GreaterThan(decimal.Zero) {
		side = model.SideYes
		if !ob.HasYesAsk {
			return model.TradeSignal{}, false
		}
		entryCents = ob.YesAsk
	} else {
		side = model.SideNo
		switch {
		case ob.HasNoAsk:
			entryCents = ob.NoAsk
		case ob.HasYesBid:
			entryCents = decimal.NewFromInt(100).Sub(ob.YesBid)
		default:
			return model.TradeSignal{}, false
		}
	}

	truePct := consensus
	if side == model.SideNo {
		truePct = decimal.NewFromInt(1).Sub(consensus)
	}
	evPct := oddsmath.ExpectedValuePercent(truePct, entryCents)
	if evPct.LessThan(s.cfg.MinEVPercent) {
		return model.TradeSignal{}, false
	}

	qty := s.cfg.PositionSize
	if s.cfg.UseKellySizing {
		kf := oddsmath.KellyFraction(truePct, entryCents.Div(decimal.NewFromInt(100)))
		sized := s.cfg.KellyFraction.Mul(kf).Mul(decimal.NewFromInt(s.cfg.BankrollUnits))
		qty = clampQuantity(sized.Floor().IntPart(), s.cfg.PositionSize)
	}
	if qty <= 0 {
		return model.TradeSignal{}, false
	}

	return model.TradeSignal{
		StrategyID:   s.id,
		StrategyKind: string(KindSharpLine),
		GameID:       gs.Game.ID,
		MarketTicker: m.Ticker,
		Side:         side,
		Quantity:     qty,
		Confidence:   divergencePct.Abs(),
		Reason:       "exchange/consensus divergence",
		Metadata: map[string]interface{}{
			"divergence_pct": divergencePct.String(),
			"ev_pct":          evPct.String(),
			"consensus":       consensus.String(),
			"sample_size":     len(probs),
		},
		EmittedAt: now,
	}, true
}
