package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/nbapaper/internal/model"
)

// MomentumConfig is the typed configuration.
type MomentumConfig struct {
	LookbackSeconds      int      `json:"lookback_seconds" default:"120" validate:"min=1"`
	MinPriceChangeCents  int64    `json:"min_price_change_cents" default:"5" validate:"min=1"`
	PositionSize         int64    `json:"position_size" default:"10" validate:"min=1"`
	CooldownMinutes      int      `json:"cooldown_minutes" default:"3" validate:"min=0"`
	MaxSpreadCents       int64    `json:"max_spread_cents" default:"3" validate:"min=0"`
	MarketTypes          []string `json:"market_types" default:"[\"moneyline\",\"spread\",\"total\"]"`
}

// Momentum trades continuation when a market's mid price has moved enough
// over the lookback window.
type Momentum struct {
	id       string
	cfg      MomentumConfig
	cooldown *cooldownTracker
	history  *signalHistory
	prices   *priceDeque
}

func NewMomentum(id string, cfg MomentumConfig) *Momentum {
	return &Momentum{id: id, cfg: cfg, cooldown: newCooldownTracker(), history: newSignalHistory(), prices: newPriceDeque()}
}

func (s *Momentum) ID() string                     { return s.id }
func (s *Momentum) Kind() Kind                     { return KindMomentum }
func (s *Momentum) Recent() []model.TradeSignal    { return s.history.Recent() }

func (s *Momentum) Evaluate(now time.Time, gs model.GameState, markets []model.Market, odds []model.OddsQuote) []model.TradeSignal {
	var out []model.TradeSignal
	kinds := marketKindsByTicker(markets)
	for ticker, ob := range gs.Orderbooks {
		if kind, known := kinds[ticker]; known && !marketTypeAllowed(s.cfg.MarketTypes, kind) {
			continue
		}
		mid, ok := ob.Mid()
		if !ok {
			continue
		}
		s.prices.Append(ticker, now, mid.IntPart())

		sig, ok := s.evaluateMarket(now, gs, ticker, ob)
		if !ok {
			continue
		}
		s.cooldown.Fire(now, ticker)
		s.history.Record(sig)
		out = append(out, sig)
	}
	return out
}

func (s *Momentum) evaluateMarket(now time.Time, gs model.GameState, ticker string, ob model.OrderbookState) (model.TradeSignal, bool) {
	cooldown := time.Duration(s.cfg.CooldownMinutes) * time.Minute
	if !s.cooldown.Ready(now, ticker, cooldown) {
		return model.TradeSignal{}, false
	}

	if !ob.HasYesBid || !ob.HasYesAsk {
		return model.TradeSignal{}, false
	}
	spread := ob.YesAsk.Sub(ob.YesBid).IntPart()
	if spread > s.cfg.MaxSpreadCents {
		return model.TradeSignal{}, false
	}

	target := now.Add(-time.Duration(s.cfg.LookbackSeconds) * time.Second)
	hist, ok := s.prices.ClosestTo(ticker, target)
	if !ok {
		return model.TradeSignal{}, false
	}
	// require the nearest sample to fall within 50% tolerance of the window
	tolerance := time.Duration(s.cfg.LookbackSeconds) * time.Second / 2
	if absDuration(hist.at.Sub(target)) > tolerance {
		return model.TradeSignal{}, false
	}

	mid, _ := ob.Mid()
	delta := mid.IntPart() - hist.price
	if delta < 0 {
		delta = -delta
	}
	if delta < s.cfg.MinPriceChangeCents {
		return model.TradeSignal{}, false
	}

	var side model.Side
	var entry decimal.Decimal
	if mid.IntPart() > hist.price {
		side = model.SideYes
		entry = ob.YesAsk
	} else {
		side = model.SideNo
		if ob.HasNoAsk {
			entry = ob.NoAsk
		} else {
			entry = decimal.NewFromInt(100).Sub(ob.YesBid)
		}
	}

	return model.TradeSignal{
		StrategyID:   s.id,
		StrategyKind: string(KindMomentum),
		GameID:       gs.Game.ID,
		MarketTicker: ticker,
		Side:         side,
		Quantity:     s.cfg.PositionSize,
		Confidence:   decimal.NewFromInt(delta),
		Reason:       "price momentum over lookback window",
		Metadata: map[string]interface{}{
			"delta_cents":   delta,
			"historical_at": hist.at,
			"entry_price":   entry.String(),
		},
		EmittedAt: now,
	}, true
}
