package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/nbapaper/internal/model"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func defaultSharpLineConfig() SharpLineConfig {
	return SharpLineConfig{
		ThresholdPercent:     d(5.0),
		MinSampleSportsbooks: 3,
		PositionSize:         10,
		CooldownMinutes:      5,
		MinEVPercent:         d(2.0),
	}
}

// TestSharpLine_DivergenceEmitsYesSignal exercises the literal scenario:
// yes_bid=42, yes_ask=44, vendor American odds {-150,-140,-160} -> median
// consensus 0.60 against an exchange mid of 43 (p_exch=0.43), a 17-point
// divergence that clears both the 5% threshold and the 2% EV floor.
func TestSharpLine_DivergenceEmitsYesSignal(t *testing.T) {
	s := NewSharpLine("s1", defaultSharpLineConfig())
	gs := model.GameState{
		Game: model.Game{ID: "g1"},
		Orderbooks: map[string]model.OrderbookState{
			"T-Y": {MarketTicker: "T-Y", YesBid: d(42), HasYesBid: true, YesAsk: d(44), HasYesAsk: true},
		},
	}
	markets := []model.Market{{Ticker: "T-Y", Kind: model.MarketMoneylineHome}}
	odds := []model.OddsQuote{
		{Vendor: "a", MoneylineHome: -150},
		{Vendor: "b", MoneylineHome: -140},
		{Vendor: "c", MoneylineHome: -160},
	}

	sigs := s.Evaluate(time.Now(), gs, markets, odds)
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	sig := sigs[0]
	if sig.Side != model.SideYes {
		t.Errorf("expected Yes side, got %s", sig.Side)
	}
	if sig.Quantity != 10 {
		t.Errorf("expected quantity 10, got %d", sig.Quantity)
	}
}

func TestSharpLine_InsufficientSampleSuppressesSignal(t *testing.T) {
	s := NewSharpLine("s1", defaultSharpLineConfig())
	gs := model.GameState{
		Game: model.Game{ID: "g1"},
		Orderbooks: map[string]model.OrderbookState{
			"T-Y": {MarketTicker: "T-Y", YesBid: d(42), HasYesBid: true, YesAsk: d(44), HasYesAsk: true},
		},
	}
	markets := []model.Market{{Ticker: "T-Y", Kind: model.MarketMoneylineHome}}
	odds := []model.OddsQuote{
		{Vendor: "a", MoneylineHome: -150},
		{Vendor: "b", MoneylineHome: -140},
	}

	sigs := s.Evaluate(time.Now(), gs, markets, odds)
	if len(sigs) != 0 {
		t.Fatalf("expected no signal with fewer than min_sample_sportsbooks vendors, got %d", len(sigs))
	}
}

func TestSharpLine_CooldownSuppressesRepeat(t *testing.T) {
	s := NewSharpLine("s1", defaultSharpLineConfig())
	gs := model.GameState{
		Game: model.Game{ID: "g1"},
		Orderbooks: map[string]model.OrderbookState{
			"T-Y": {MarketTicker: "T-Y", YesBid: d(42), HasYesBid: true, YesAsk: d(44), HasYesAsk: true},
		},
	}
	markets := []model.Market{{Ticker: "T-Y", Kind: model.MarketMoneylineHome}}
	odds := []model.OddsQuote{
		{Vendor: "a", MoneylineHome: -150},
		{Vendor: "b", MoneylineHome: -140},
		{Vendor: "c", MoneylineHome: -160},
	}

	now := time.Now()
	first := s.Evaluate(now, gs, markets, odds)
	if len(first) != 1 {
		t.Fatalf("expected first evaluation to emit, got %d", len(first))
	}
	second := s.Evaluate(now.Add(time.Minute), gs, markets, odds)
	if len(second) != 0 {
		t.Fatalf("expected cooldown to suppress repeat signal, got %d", len(second))
	}
}
