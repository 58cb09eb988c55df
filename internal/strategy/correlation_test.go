package strategy

import (
	"testing"
	"time"

	"github.com/atmx/nbapaper/internal/model"
)

func defaultCorrelationConfig() CorrelationConfig {
	return CorrelationConfig{
		MinDiscrepancyPercent: d(5.0),
		ComplementaryMaxSum:   d(105.0),
		ComplementaryMinSum:   d(95.0),
		PositionSize:          10,
		CooldownMinutes:       5,
		CheckComplementary:    true,
		CheckMoneylineSpread:  false,
		PreferNoOnOvervalued:  true,
	}
}

// TestCorrelation_OvervaluedSumEmitsNoOnHigherSide exercises the literal
// scenario: home_yes mid=55, away_yes mid=52, sum=107 exceeds the 105
// complementary ceiling, so a No signal fires on the higher-priced (home)
// side.
func TestCorrelation_OvervaluedSumEmitsNoOnHigherSide(t *testing.T) {
	s := NewCorrelation("c1", defaultCorrelationConfig())
	markets := []model.Market{
		{Ticker: "T-HOME-Y", Kind: model.MarketMoneylineHome},
		{Ticker: "T-AWAY-Y", Kind: model.MarketMoneylineAway},
	}
	gs := model.GameState{
		Game: model.Game{ID: "g1"},
		Orderbooks: map[string]model.OrderbookState{
			"T-HOME-Y": {MarketTicker: "T-HOME-Y", YesBid: d(54), HasYesBid: true, YesAsk: d(56), HasYesAsk: true, NoAsk: d(46), HasNoAsk: true},
			"T-AWAY-Y": {MarketTicker: "T-AWAY-Y", YesBid: d(51), HasYesBid: true, YesAsk: d(53), HasYesAsk: true, NoAsk: d(49), HasNoAsk: true},
		},
	}

	sigs := s.Evaluate(time.Now(), gs, markets, nil)
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	if sigs[0].MarketTicker != "T-HOME-Y" {
		t.Errorf("expected signal on the higher-priced home side, got %s", sigs[0].MarketTicker)
	}
	if sigs[0].Side != model.SideNo {
		t.Errorf("expected No side, got %s", sigs[0].Side)
	}
}

func TestCorrelation_SumWithinBandSuppressesSignal(t *testing.T) {
	s := NewCorrelation("c1", defaultCorrelationConfig())
	markets := []model.Market{
		{Ticker: "T-HOME-Y", Kind: model.MarketMoneylineHome},
		{Ticker: "T-AWAY-Y", Kind: model.MarketMoneylineAway},
	}
	gs := model.GameState{
		Game: model.Game{ID: "g1"},
		Orderbooks: map[string]model.OrderbookState{
			"T-HOME-Y": {MarketTicker: "T-HOME-Y", YesBid: d(49), HasYesBid: true, YesAsk: d(51), HasYesAsk: true},
			"T-AWAY-Y": {MarketTicker: "T-AWAY-Y", YesBid: d(49), HasYesBid: true, YesAsk: d(51), HasYesAsk: true},
		},
	}

	sigs := s.Evaluate(time.Now(), gs, markets, nil)
	if len(sigs) != 0 {
		t.Fatalf("expected sum within [95,105] to suppress signal, got %d", len(sigs))
	}
}

// TestCorrelation_MoneylineSpreadDiscrepancyEmitsSignal covers the second
// check: a spread market's implied probability diverges from the linear
// function of the moneyline by more than min_discrepancy_percent.
func TestCorrelation_MoneylineSpreadDiscrepancyEmitsSignal(t *testing.T) {
	cfg := defaultCorrelationConfig()
	cfg.CheckComplementary = false
	cfg.CheckMoneylineSpread = true
	s := NewCorrelation("c1", cfg)

	markets := []model.Market{
		{Ticker: "T-HOME-Y", Kind: model.MarketMoneylineHome},
		{Ticker: "T-SPREAD-Y", Kind: model.MarketSpread},
	}
	gs := model.GameState{
		Game: model.Game{ID: "g1"},
		Orderbooks: map[string]model.OrderbookState{
			// moneyline mid = 70 -> expected spread prob = 50 + (70-50)*0.5 = 60
			"T-HOME-Y":   {MarketTicker: "T-HOME-Y", YesBid: d(69), HasYesBid: true, YesAsk: d(71), HasYesAsk: true},
			"T-SPREAD-Y": {MarketTicker: "T-SPREAD-Y", YesBid: d(74), HasYesBid: true, YesAsk: d(76), HasYesAsk: true, NoAsk: d(26), HasNoAsk: true},
		},
	}

	sigs := s.Evaluate(time.Now(), gs, markets, nil)
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	if sigs[0].MarketTicker != "T-SPREAD-Y" {
		t.Errorf("expected signal on the spread market, got %s", sigs[0].MarketTicker)
	}
	if sigs[0].Side != model.SideNo {
		t.Errorf("expected No side to close an overpriced spread, got %s", sigs[0].Side)
	}
}
