package strategy

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/nbapaper/internal/model"
)

// MeanReversionConfig is the typed configuration.
type MeanReversionConfig struct {
	MinReversionPercent decimal.Decimal `json:"min_reversion_percent" default:"15.0"`
	MaxReversionPercent decimal.Decimal `json:"max_reversion_percent" default:"40.0"`
	MinTimeRemainingPct decimal.Decimal `json:"min_time_remaining_pct" default:"25.0"`
	PositionSize        int64           `json:"position_size" default:"10" validate:"min=1"`
	CooldownMinutes     int             `json:"cooldown_minutes" default:"10" validate:"min=0"`
	OnlyFirstHalf       bool            `json:"only_first_half" default:"true"`
	MarketTypes         []string        `json:"market_types" default:"[\"moneyline\"]"`
	MaxScoreDeficit     int             `json:"max_score_deficit" default:"20"`
}

// MeanReversion trades a swing back toward a market's pregame price once
// the live price has diverged within a bounded band.
type MeanReversion struct {
	id       string
	cfg      MeanReversionConfig
	cooldown *cooldownTracker
	history  *signalHistory

	mu       sync.Mutex
	pregame  map[string]decimal.Decimal
}

func NewMeanReversion(id string, cfg MeanReversionConfig) *MeanReversion {
	return &MeanReversion{
		id: id, cfg: cfg,
		cooldown: newCooldownTracker(), history: newSignalHistory(),
		pregame: make(map[string]decimal.Decimal),
	}
}

func (s *MeanReversion) ID() string                  { return s.id }
func (s *MeanReversion) Kind() Kind                  { return KindMeanRevert }
func (s *MeanReversion) Recent() []model.TradeSignal { return s.history.Recent() }

func (s *MeanReversion) Evaluate(now time.Time, gs model.GameState, markets []model.Market, odds []model.OddsQuote) []model.TradeSignal {
	var out []model.TradeSignal
	for _, kind := range []model.MarketKind{model.MarketMoneylineHome, model.MarketMoneylineAway} {
		for _, m := range marketsByKindFiltered(markets, kind, s.cfg.MarketTypes) {
			ob, ok := gs.Orderbooks[m.Ticker]
			if !ok {
				continue
			}
			mid, ok := ob.Mid()
			if !ok {
				continue
			}

			s.mu.Lock()
			if gs.Game.Phase == model.PhaseLive {
				if _, captured := s.pregame[m.Ticker]; !captured {
					s.pregame[m.Ticker] = mid
				}
			}
			pregame, captured := s.pregame[m.Ticker]
			s.mu.Unlock()

			if gs.Game.Phase != model.PhaseLive || !captured {
				continue
			}

			sig, ok := s.evaluateMarket(now, gs, m, ob, mid, pregame)
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

func (s *MeanReversion) evaluateMarket(now time.Time, gs model.GameState, m model.Market, ob model.OrderbookState, mid, pregame decimal.Decimal) (model.TradeSignal, bool) {
	if !s.cooldown.Ready(now, m.Ticker, time.Duration(s.cfg.CooldownMinutes)*time.Minute) {
		return model.TradeSignal{}, false
	}
	if gs.Live == nil {
		return model.TradeSignal{}, false
	}

	swing := mid.Sub(pregame)
	abs := swing.Abs()
	if abs.LessThan(s.cfg.MinReversionPercent) || abs.GreaterThan(s.cfg.MaxReversionPercent) {
		return model.TradeSignal{}, false
	}

	pctRemaining := timeRemainingPercent(gs.Live.Period, gs.Live.TimeRemaining)
	if pctRemaining.LessThan(s.cfg.MinTimeRemainingPct) {
		return model.TradeSignal{}, false
	}
	if s.cfg.OnlyFirstHalf && gs.Live.Period > 2 {
		return model.TradeSignal{}, false
	}

	deficit := gs.Live.HomeScore - gs.Live.AwayScore
	if deficit < 0 {
		deficit = -deficit
	}
	if deficit > s.cfg.MaxScoreDeficit {
		return model.TradeSignal{}, false
	}

	var side model.Side
	var entry decimal.Decimal
	if swing.LessThan(decimal.Zero) {
		side = model.SideYes
		if !ob.HasYesAsk {
			return model.TradeSignal{}, false
		}
		entry = ob.YesAsk
	} else {
		side = model.SideNo
		switch {
		case ob.HasNoAsk:
			entry = ob.NoAsk
		case ob.HasYesBid:
			entry = decimal.NewFromInt(100).Sub(ob.YesBid)
		default:
			return model.TradeSignal{}, false
		}
	}

	return model.TradeSignal{
		StrategyID:   s.id,
		StrategyKind: string(KindMeanRevert),
		GameID:       gs.Game.ID,
		MarketTicker: m.Ticker,
		Side:         side,
		Quantity:     s.cfg.PositionSize,
		Confidence:   abs,
		Reason:       "price reversion toward pregame line",
		Metadata: map[string]interface{}{
			"swing_cents":         swing.String(),
			"pregame_mid":         pregame.String(),
			"pct_time_remaining":  pctRemaining.String(),
			"entry_price":         entry.String(),
		},
		EmittedAt: now,
	}, true
}

// timeRemainingPercent implements exact formula: elapsed minutes
// accrue 12 per completed period plus however much of the current period's
// clock has burned, against a 48-minute regulation game.
func timeRemainingPercent(period int, clock string) decimal.Decimal {
	mm, ss := parseClock(clock)
	elapsed := decimal.NewFromInt(int64(period-1)).Mul(decimal.NewFromInt(12)).
		Add(decimal.NewFromInt(12).Sub(decimal.NewFromInt(int64(mm)).Add(decimal.NewFromInt(int64(ss)).Div(decimal.NewFromInt(60)))))
	remaining := decimal.NewFromInt(48).Sub(elapsed).Div(decimal.NewFromInt(48)).Mul(decimal.NewFromInt(100))
	if remaining.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	return remaining
}

func parseClock(clock string) (mm, ss int) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	mm, _ = strconv.Atoi(parts[0])
	ss, _ = strconv.Atoi(parts[1])
	return mm, ss
}
