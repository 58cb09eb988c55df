package strategy

import (
	"testing"
	"time"

	"github.com/atmx/nbapaper/internal/model"
)

func defaultMeanReversionConfig() MeanReversionConfig {
	return MeanReversionConfig{
		MinReversionPercent: d(15.0),
		MaxReversionPercent: d(40.0),
		MinTimeRemainingPct: d(25.0),
		PositionSize:        10,
		CooldownMinutes:     10,
		OnlyFirstHalf:       true,
		MaxScoreDeficit:     20,
	}
}

// TestMeanReversion_FirstHalfSwingEmitsSignal exercises the literal
// scenario: a pregame mid of 60c swings to 43c (a 17c reversion within the
// [15,40] band) during the second quarter with an 8-point score deficit,
// comfortably inside max_score_deficit.
func TestMeanReversion_FirstHalfSwingEmitsSignal(t *testing.T) {
	s := NewMeanReversion("mr1", defaultMeanReversionConfig())
	markets := []model.Market{{Ticker: "T-Y", Kind: model.MarketMoneylineHome}}

	// The first Live-phase observation establishes the pregame baseline at
	// mid=60c; a later observation supplies the swing.
	baselineGS := model.GameState{
		Game:       model.Game{ID: "g1", Phase: model.PhaseLive},
		Live:       &model.NBALiveState{Period: 1, TimeRemaining: "12:00", HomeScore: 0, AwayScore: 0},
		Orderbooks: map[string]model.OrderbookState{"T-Y": {MarketTicker: "T-Y", YesBid: d(59), HasYesBid: true, YesAsk: d(61), HasYesAsk: true}},
	}
	s.Evaluate(time.Now(), baselineGS, markets, nil)

	liveGS := model.GameState{
		Game:       model.Game{ID: "g1", Phase: model.PhaseLive},
		Live:       &model.NBALiveState{Period: 2, TimeRemaining: "06:00", HomeScore: 50, AwayScore: 42},
		Orderbooks: map[string]model.OrderbookState{"T-Y": {MarketTicker: "T-Y", YesBid: d(42), HasYesBid: true, YesAsk: d(44), HasYesAsk: true}},
	}

	sigs := s.Evaluate(time.Now(), liveGS, markets, nil)
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	if sigs[0].Side != model.SideYes {
		t.Errorf("expected Yes side on a downward swing, got %s", sigs[0].Side)
	}
}

func TestMeanReversion_ExcessiveScoreDeficitSuppressesSignal(t *testing.T) {
	s := NewMeanReversion("mr1", defaultMeanReversionConfig())
	markets := []model.Market{{Ticker: "T-Y", Kind: model.MarketMoneylineHome}}

	baselineGS := model.GameState{
		Game:       model.Game{ID: "g1", Phase: model.PhaseLive},
		Live:       &model.NBALiveState{Period: 1, TimeRemaining: "12:00", HomeScore: 0, AwayScore: 0},
		Orderbooks: map[string]model.OrderbookState{"T-Y": {MarketTicker: "T-Y", YesBid: d(59), HasYesBid: true, YesAsk: d(61), HasYesAsk: true}},
	}
	s.Evaluate(time.Now(), baselineGS, markets, nil)

	liveGS := model.GameState{
		Game:       model.Game{ID: "g1", Phase: model.PhaseLive},
		Live:       &model.NBALiveState{Period: 2, TimeRemaining: "06:00", HomeScore: 70, AwayScore: 40},
		Orderbooks: map[string]model.OrderbookState{"T-Y": {MarketTicker: "T-Y", YesBid: d(42), HasYesBid: true, YesAsk: d(44), HasYesAsk: true}},
	}

	sigs := s.Evaluate(time.Now(), liveGS, markets, nil)
	if len(sigs) != 0 {
		t.Fatalf("expected score deficit beyond max_score_deficit to suppress signal, got %d", len(sigs))
	}
}

func TestMeanReversion_SecondHalfSuppressedWhenOnlyFirstHalf(t *testing.T) {
	s := NewMeanReversion("mr1", defaultMeanReversionConfig())
	markets := []model.Market{{Ticker: "T-Y", Kind: model.MarketMoneylineHome}}

	baselineGS := model.GameState{
		Game:       model.Game{ID: "g1", Phase: model.PhaseLive},
		Live:       &model.NBALiveState{Period: 1, TimeRemaining: "12:00", HomeScore: 0, AwayScore: 0},
		Orderbooks: map[string]model.OrderbookState{"T-Y": {MarketTicker: "T-Y", YesBid: d(59), HasYesBid: true, YesAsk: d(61), HasYesAsk: true}},
	}
	s.Evaluate(time.Now(), baselineGS, markets, nil)

	liveGS := model.GameState{
		Game:       model.Game{ID: "g1", Phase: model.PhaseLive},
		Live:       &model.NBALiveState{Period: 3, TimeRemaining: "06:00", HomeScore: 50, AwayScore: 42},
		Orderbooks: map[string]model.OrderbookState{"T-Y": {MarketTicker: "T-Y", YesBid: d(42), HasYesBid: true, YesAsk: d(44), HasYesAsk: true}},
	}

	sigs := s.Evaluate(time.Now(), liveGS, markets, nil)
	if len(sigs) != 0 {
		t.Fatalf("expected third-period swing to be suppressed when only_first_half is set, got %d", len(sigs))
	}
}
