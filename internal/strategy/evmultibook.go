package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/nbapaper/internal/model"
	"github.com/atmx/nbapaper/internal/oddsmath"
)

// EvMultiBookConfig is the typed configuration.
type EvMultiBookConfig struct {
	MinEVPercent          decimal.Decimal `json:"min_ev_percent" default:"3.0"`
	MinSportsbooksAgreeing int            `json:"min_sportsbooks_agreeing" default:"2" validate:"min=1"`
	PositionSize          int64           `json:"position_size" default:"10" validate:"min=1"`
	CooldownMinutes       int             `json:"cooldown_minutes" default:"5" validate:"min=0"`
	PreferredBooks        []string        `json:"preferred_books"`
	ExcludeBooks          []string        `json:"exclude_books"`
	MarketTypes           []string        `json:"market_types" default:"[\"moneyline\"]"`
}

// EvMultiBook emits a signal when a quorum of sportsbooks independently
// imply positive EV on the same side of a market. Total markets are
// evaluated symmetrically on both the over and the under side.
type EvMultiBook struct {
	id       string
	cfg      EvMultiBookConfig
	cooldown *cooldownTracker
	history  *signalHistory
}

func NewEvMultiBook(id string, cfg EvMultiBookConfig) *EvMultiBook {
	return &EvMultiBook{id: id, cfg: cfg, cooldown: newCooldownTracker(), history: newSignalHistory()}
}

func (s *EvMultiBook) ID() string                  { return s.id }
func (s *EvMultiBook) Kind() Kind                  { return KindEvMultiBook }
func (s *EvMultiBook) Recent() []model.TradeSignal { return s.history.Recent() }

func (s *EvMultiBook) excluded(vendor string) bool {
	for _, b := range s.cfg.ExcludeBooks {
		if b == vendor {
			return true
		}
	}
	if len(s.cfg.PreferredBooks) == 0 {
		return false
	}
	for _, b := range s.cfg.PreferredBooks {
		if b == vendor {
			return false
		}
	}
	return true
}

type bookVote struct {
	vendor string
	evPct  decimal.Decimal
}

func (s *EvMultiBook) Evaluate(now time.Time, gs model.GameState, markets []model.Market, odds []model.OddsQuote) []model.TradeSignal {
	var out []model.TradeSignal

	for _, kind := range []model.MarketKind{model.MarketMoneylineHome, model.MarketMoneylineAway} {
		for _, m := range marketsByKindFiltered(markets, kind, s.cfg.MarketTypes) {
			sig, ok := s.evaluateMoneyline(now, gs, m, kind, odds)
			if !ok {
				continue
			}
			s.fire(sig, now, m.Ticker, &out)
		}
	}

	for _, m := range marketsByKindFiltered(markets, model.MarketTotal, s.cfg.MarketTypes) {
		sig, ok := s.evaluateTotal(now, gs, m, odds)
		if !ok {
			continue
		}
		s.fire(sig, now, m.Ticker, &out)
	}

	return out
}

func (s *EvMultiBook) fire(sig model.TradeSignal, now time.Time, ticker string, out *[]model.TradeSignal) {
	s.cooldown.Fire(now, ticker)
	s.history.Record(sig)
	*out = append(*out, sig)
}

func (s *EvMultiBook) evaluateMoneyline(now time.Time, gs model.GameState, m model.Market, kind model.MarketKind, odds []model.OddsQuote) (model.TradeSignal, bool) {
	if !s.cooldown.Ready(now, m.Ticker, time.Duration(s.cfg.CooldownMinutes)*time.Minute) {
		return model.TradeSignal{}, false
	}
	ob, ok := gs.Orderbooks[m.Ticker]
	if !ok || !ob.HasYesAsk {
		return model.TradeSignal{}, false
	}

	var yesVotes, noVotes []bookVote
	for _, q := range odds {
		if s.excluded(q.Vendor) {
			continue
		}
		american := q.MoneylineHome
		if kind == model.MarketMoneylineAway {
			american = q.MoneylineAway
		}
		if american == 0 {
			continue
		}
		p := oddsmath.ProbabilityFromAmerican(american)

		if ob.HasYesAsk {
			if ev := oddsmath.ExpectedValuePercent(p, ob.YesAsk); ev.GreaterThanOrEqual(s.cfg.MinEVPercent) {
				yesVotes = append(yesVotes, bookVote{q.Vendor, ev})
			}
		}
		noAsk := ob.NoAsk
		if !ob.HasNoAsk && ob.HasYesBid {
			noAsk = decimal.NewFromInt(100).Sub(ob.YesBid)
		}
		if ev := oddsmath.ExpectedValuePercent(decimal.NewFromInt(1).Sub(p), noAsk); ev.GreaterThanOrEqual(s.cfg.MinEVPercent) {
			noVotes = append(noVotes, bookVote{q.Vendor, ev})
		}
	}

	return s.pickSide(now, gs, m.Ticker, model.SideYes, yesVotes, model.SideNo, noVotes)
}

func (s *EvMultiBook) evaluateTotal(now time.Time, gs model.GameState, m model.Market, odds []model.OddsQuote) (model.TradeSignal, bool) {
	if !s.cooldown.Ready(now, m.Ticker, time.Duration(s.cfg.CooldownMinutes)*time.Minute) {
		return model.TradeSignal{}, false
	}
	ob, ok := gs.Orderbooks[m.Ticker]
	if !ok {
		return model.TradeSignal{}, false
	}

	var overVotes, underVotes []bookVote
	for _, q := range odds {
		if s.excluded(q.Vendor) {
			continue
		}
		if q.TotalOverOdds != 0 && ob.HasYesAsk {
			p := oddsmath.ProbabilityFromAmerican(q.TotalOverOdds)
			if ev := oddsmath.ExpectedValuePercent(p, ob.YesAsk); ev.GreaterThanOrEqual(s.cfg.MinEVPercent) {
				overVotes = append(overVotes, bookVote{q.Vendor, ev})
			}
		}
		if q.TotalUnderOdds != 0 {
			noAsk := ob.NoAsk
			if !ob.HasNoAsk && ob.HasYesBid {
				noAsk = decimal.NewFromInt(100).Sub(ob.YesBid)
			}
			p := oddsmath.ProbabilityFromAmerican(q.TotalUnderOdds)
			if ev := oddsmath.ExpectedValuePercent(p, noAsk); ev.GreaterThanOrEqual(s.cfg.MinEVPercent) {
				underVotes = append(underVotes, bookVote{q.Vendor, ev})
			}
		}
	}

	return s.pickSide(now, gs, m.Ticker, model.SideYes, overVotes, model.SideNo, underVotes)
}

func (s *EvMultiBook) pickSide(now time.Time, gs model.GameState, ticker string, sideA model.Side, votesA []bookVote, sideB model.Side, votesB []bookVote) (model.TradeSignal, bool) {
	side, votes := pickWinningVotes(sideA, votesA, sideB, votesB)
	if len(votes) < s.cfg.MinSportsbooksAgreeing {
		return model.TradeSignal{}, false
	}

	best := votes[0]
	for _, v := range votes[1:] {
		if v.evPct.GreaterThan(best.evPct) {
			best = v
		}
	}

	contributing := make([]string, 0, len(votes))
	for _, v := range votes {
		contributing = append(contributing, v.vendor)
	}

	return model.TradeSignal{
		StrategyID:   s.id,
		StrategyKind: string(KindEvMultiBook),
		GameID:       gs.Game.ID,
		MarketTicker: ticker,
		Side:         side,
		Quantity:     s.cfg.PositionSize,
		Confidence:   best.evPct,
		Reason:       "multi-book EV consensus",
		Metadata: map[string]interface{}{
			"best_book":    best.vendor,
			"best_ev":      best.evPct.String(),
			"contributing": contributing,
		},
		EmittedAt: now,
	}, true
}

// pickWinningVotes returns the larger-count side, breaking ties by the
// larger best-book EV.
func pickWinningVotes(sideA model.Side, votesA []bookVote, sideB model.Side, votesB []bookVote) (model.Side, []bookVote) {
	if len(votesA) > len(votesB) {
		return sideA, votesA
	}
	if len(votesB) > len(votesA) {
		return sideB, votesB
	}
	if len(votesA) == 0 {
		return sideA, votesA
	}
	if bestOf(votesA).GreaterThanOrEqual(bestOf(votesB)) {
		return sideA, votesA
	}
	return sideB, votesB
}

func bestOf(votes []bookVote) decimal.Decimal {
	best := decimal.Zero
	for _, v := range votes {
		if v.evPct.GreaterThan(best) {
			best = v.evPct
		}
	}
	return best
}
