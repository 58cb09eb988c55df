// Package strategy implements the StrategyEngine and its five strategy
// kinds. Each kind carries a typed configuration
// struct populated with github.com/creasty/defaults before any caller
// overrides are merged in and validated with go-playground/validator/v10 —
// the "typed configuration with documented defaults" shape the retrieval
// pack's Junivor-DoAn-Finpull uses for its own strategy configs.
package strategy

import (
	"sync"
	"time"

	"github.com/atmx/nbapaper/internal/model"
)

// Kind enumerates the five strategy kinds this engine supports. New kinds
// extend this set; the engine never removes an instance to make room for
// one of the same kind.
type Kind string

const (
	KindSharpLine    Kind = "sharp_line"
	KindMomentum     Kind = "momentum"
	KindEvMultiBook  Kind = "ev_multi_book"
	KindMeanRevert   Kind = "mean_reversion"
	KindCorrelation  Kind = "correlation"
)

// Strategy is the capability interface every kind implements.
type Strategy interface {
	ID() string
	Kind() Kind
	Evaluate(now time.Time, gs model.GameState, markets []model.Market, odds []model.OddsQuote) []model.TradeSignal
}

// cooldownTracker enforces a per-market suppression window after a signal
// fires; cooldown is tracked inside each strategy rather than centrally.
type cooldownTracker struct {
	mu       sync.Mutex
	lastFire map[string]time.Time
}

func newCooldownTracker() *cooldownTracker {
	return &cooldownTracker{lastFire: make(map[string]time.Time)}
}

// Ready reports whether ticker is past its cooldown as of now.
func (c *cooldownTracker) Ready(now time.Time, ticker string, cooldown time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastFire[ticker]
	if !ok {
		return true
	}
	return now.Sub(last) >= cooldown
}

// Fire records that ticker emitted a signal at now.
func (c *cooldownTracker) Fire(now time.Time, ticker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFire[ticker] = now
}

// signalHistory bounds each strategy's recent-signal ring to the last 100
// entries.
type signalHistory struct {
	mu      sync.Mutex
	signals []model.TradeSignal
}

func newSignalHistory() *signalHistory {
	return &signalHistory{}
}

func (h *signalHistory) Record(sig model.TradeSignal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signals = append(h.signals, sig)
	if len(h.signals) > 100 {
		h.signals = h.signals[len(h.signals)-100:]
	}
}

// Recent returns a copy of the bounded history.
func (h *signalHistory) Recent() []model.TradeSignal {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.TradeSignal, len(h.signals))
	copy(out, h.signals)
	return out
}

// priceObservation is one (timestamp, mid-in-cents) sample for Momentum's
// per-market history deque.
type priceObservation struct {
	at    time.Time
	price int64
}

// priceDeque bounds each market's observation history to the last 100
// samples, evicting the oldest on overflow.
type priceDeque struct {
	mu  sync.Mutex
	obs map[string][]priceObservation
}

func newPriceDeque() *priceDeque {
	return &priceDeque{obs: make(map[string][]priceObservation)}
}

func (d *priceDeque) Append(ticker string, at time.Time, price int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	series := append(d.obs[ticker], priceObservation{at: at, price: price})
	if len(series) > 100 {
		series = series[len(series)-100:]
	}
	d.obs[ticker] = series
}

// ClosestTo returns the observation whose timestamp is nearest target,
// provided the series is non-empty.
func (d *priceDeque) ClosestTo(ticker string, target time.Time) (priceObservation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	series := d.obs[ticker]
	if len(series) == 0 {
		return priceObservation{}, false
	}
	best := series[0]
	bestDelta := absDuration(best.at.Sub(target))
	for _, o := range series[1:] {
		if delta := absDuration(o.at.Sub(target)); delta < bestDelta {
			best, bestDelta = o, delta
		}
	}
	return best, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// marketsByKind groups markets by their MarketKind for convenient lookup
// inside a strategy's Evaluate.
func marketsByKind(markets []model.Market, kind model.MarketKind) []model.Market {
	var out []model.Market
	for _, m := range markets {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// marketTypeAllowed reports whether kind passes an optional market_types
// allow-list from strategy config. An empty list allows every kind.
// "moneyline" matches both moneyline_home and moneyline_away, since
// config authors think of the two sides as one market type.
func marketTypeAllowed(allowed []string, kind model.MarketKind) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if model.MarketKind(a) == kind {
			return true
		}
		if a == "moneyline" && (kind == model.MarketMoneylineHome || kind == model.MarketMoneylineAway) {
			return true
		}
	}
	return false
}

// marketsByKindFiltered is marketsByKind narrowed by an optional
// market_types allow-list.
func marketsByKindFiltered(markets []model.Market, kind model.MarketKind, allowed []string) []model.Market {
	if !marketTypeAllowed(allowed, kind) {
		return nil
	}
	return marketsByKind(markets, kind)
}

// marketKindsByTicker indexes markets by ticker for strategies that walk
// gs.Orderbooks directly rather than a single MarketKind at a time.
func marketKindsByTicker(markets []model.Market) map[string]model.MarketKind {
	out := make(map[string]model.MarketKind, len(markets))
	for _, m := range markets {
		out[m.Ticker] = m.Kind
	}
	return out
}

func clampQuantity(qty, max int64) int64 {
	if qty < 0 {
		return 0
	}
	if qty > max {
		return max
	}
	return qty
}
