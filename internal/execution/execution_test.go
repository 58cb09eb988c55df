package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atmx/nbapaper/internal/model"
	"github.com/atmx/nbapaper/internal/risk"
	"github.com/atmx/nbapaper/internal/store"
)

// failingPositionStore wraps a real store but fails every UpsertPosition
// call, simulating a storage outage on the write that follows a fill.
type failingPositionStore struct {
	store.Store
}

func (f *failingPositionStore) UpsertPosition(ctx context.Context, p *model.Position) error {
	return errors.New("storage unavailable")
}

type fakeBooks struct {
	books map[string]model.OrderbookState
}

func (f *fakeBooks) Orderbook(ticker string) (model.OrderbookState, bool) {
	ob, ok := f.books[ticker]
	return ob, ok
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func newTestEngine() (*Engine, *fakeBooks) {
	books := &fakeBooks{books: map[string]model.OrderbookState{
		"KXNBAGAME-26JAN08DALUTA-Y": {
			MarketTicker: "KXNBAGAME-26JAN08DALUTA-Y",
			YesBid:       d(54), HasYesBid: true,
			YesAsk: d(56), HasYesAsk: true,
			NoBid: d(44), HasNoBid: true,
			NoAsk: d(46), HasNoAsk: true,
		},
	}}
	gate := risk.NewGate(risk.DefaultLimits())
	eng := NewEngine(store.NewMemoryStore(), gate, books)
	return eng, books
}

func TestExecute_FillsAtAsk(t *testing.T) {
	eng, _ := newTestEngine()
	signal := model.TradeSignal{
		StrategyID: "s1", GameID: "g1", MarketTicker: "KXNBAGAME-26JAN08DALUTA-Y",
		Side: model.SideYes, Quantity: 10,
	}

	order, err := eng.Execute(context.Background(), signal)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if order.Status != model.OrderFilled {
		t.Fatalf("expected filled, got %s (%s)", order.Status, order.RejectReason)
	}
	if !order.FillPrice.Equal(d(56)) {
		t.Errorf("expected fill at ask 56, got %s", order.FillPrice)
	}

	pos, ok := eng.Position(model.PositionKey{StrategyID: "s1", MarketTicker: signal.MarketTicker, Side: model.SideYes})
	if !ok || pos.Quantity != 10 {
		t.Errorf("expected open position qty 10, got %+v", pos)
	}
}

func TestExecute_RejectsOnMissingMarket(t *testing.T) {
	eng, _ := newTestEngine()
	signal := model.TradeSignal{StrategyID: "s1", MarketTicker: "UNKNOWN-Y", Side: model.SideYes, Quantity: 1}

	order, err := eng.Execute(context.Background(), signal)
	if err == nil {
		t.Fatal("expected error for unknown market")
	}
	if order.Status != model.OrderRejected {
		t.Errorf("expected rejected status, got %s", order.Status)
	}
}

func TestExecute_RejectsOnRiskLimit(t *testing.T) {
	eng, _ := newTestEngine()
	signal := model.TradeSignal{
		StrategyID: "s1", GameID: "g1", MarketTicker: "KXNBAGAME-26JAN08DALUTA-Y",
		Side: model.SideYes, Quantity: 1000, // exceeds MaxContractsPerMarket
	}

	order, err := eng.Execute(context.Background(), signal)
	if err == nil {
		t.Fatal("expected risk rejection")
	}
	if order.Status != model.OrderRejected {
		t.Errorf("expected rejected, got %s", order.Status)
	}
}

func TestApplyOpen_WeightedAveragePrice(t *testing.T) {
	eng, books := newTestEngine()
	ctx := context.Background()
	ticker := "KXNBAGAME-26JAN08DALUTA-Y"

	sig1 := model.TradeSignal{StrategyID: "s1", GameID: "g1", MarketTicker: ticker, Side: model.SideYes, Quantity: 10}
	if _, err := eng.Execute(ctx, sig1); err != nil {
		t.Fatalf("first execute: %v", err)
	}

	pos, _ := eng.Position(model.PositionKey{StrategyID: "s1", MarketTicker: ticker, Side: model.SideYes})
	if !pos.AvgPrice.Equal(d(56)) {
		t.Fatalf("expected avg price 56 after first fill, got %s", pos.AvgPrice)
	}

	// A second fill of 10 at ask 60: (10*56 + 10*60) / 20 = 58.
	ob := books.books[ticker]
	ob.YesAsk = d(60)
	books.books[ticker] = ob
	if _, err := eng.Execute(ctx, sig1); err != nil {
		t.Fatalf("second execute: %v", err)
	}

	pos, _ = eng.Position(model.PositionKey{StrategyID: "s1", MarketTicker: ticker, Side: model.SideYes})
	if pos.Quantity != 20 || !pos.AvgPrice.Equal(d(58)) {
		t.Fatalf("expected qty 20 at avg price 58 after second fill, got qty %d at %s", pos.Quantity, pos.AvgPrice)
	}
}

func TestClosePosition_RealizesPnL(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	ticker := "KXNBAGAME-26JAN08DALUTA-Y"
	key := model.PositionKey{StrategyID: "s1", MarketTicker: ticker, Side: model.SideYes}

	sig := model.TradeSignal{StrategyID: "s1", GameID: "g1", MarketTicker: ticker, Side: model.SideYes, Quantity: 10}
	if _, err := eng.Execute(ctx, sig); err != nil {
		t.Fatalf("execute: %v", err)
	}

	// Closing at the current bid (54) against an entry of 56 realizes a loss.
	pos, err := eng.ClosePosition(ctx, key, decimal.Zero)
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if pos.IsOpen {
		t.Error("expected position to be closed")
	}
	want := d(54).Sub(d(56)).Mul(decimal.NewFromInt(10))
	if !pos.RealizedPnL.Equal(want) {
		t.Errorf("expected realized pnl %s, got %s", want, pos.RealizedPnL)
	}
}

func TestSettlePosition_WinPaysOutHundred(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	ticker := "KXNBAGAME-26JAN08DALUTA-Y"
	key := model.PositionKey{StrategyID: "s1", MarketTicker: ticker, Side: model.SideYes}

	sig := model.TradeSignal{StrategyID: "s1", GameID: "g1", MarketTicker: ticker, Side: model.SideYes, Quantity: 10}
	if _, err := eng.Execute(ctx, sig); err != nil {
		t.Fatalf("execute: %v", err)
	}

	pos, err := eng.SettlePosition(ctx, key, model.SideYes)
	if err != nil {
		t.Fatalf("SettlePosition: %v", err)
	}
	want := d(100).Sub(d(56)).Mul(decimal.NewFromInt(10))
	if !pos.RealizedPnL.Equal(want) {
		t.Errorf("expected realized pnl %s, got %s", want, pos.RealizedPnL)
	}
}

func TestSettlePosition_LossPaysOutZero(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	ticker := "KXNBAGAME-26JAN08DALUTA-Y"
	key := model.PositionKey{StrategyID: "s1", MarketTicker: ticker, Side: model.SideYes}

	sig := model.TradeSignal{StrategyID: "s1", GameID: "g1", MarketTicker: ticker, Side: model.SideYes, Quantity: 10}
	if _, err := eng.Execute(ctx, sig); err != nil {
		t.Fatalf("execute: %v", err)
	}

	pos, err := eng.SettlePosition(ctx, key, model.SideNo)
	if err != nil {
		t.Fatalf("SettlePosition: %v", err)
	}
	want := decimal.Zero.Sub(d(56)).Mul(decimal.NewFromInt(10))
	if !pos.RealizedPnL.Equal(want) {
		t.Errorf("expected realized pnl %s, got %s", want, pos.RealizedPnL)
	}
}

func TestExecute_HaltsEngineWhenPersistFails(t *testing.T) {
	books := &fakeBooks{books: map[string]model.OrderbookState{
		"KXNBAGAME-26JAN08DALUTA-Y": {
			MarketTicker: "KXNBAGAME-26JAN08DALUTA-Y",
			YesBid:       d(54), HasYesBid: true,
			YesAsk: d(56), HasYesAsk: true,
		},
	}}
	gate := risk.NewGate(risk.DefaultLimits())
	st := &failingPositionStore{Store: store.NewMemoryStore()}
	eng := NewEngine(st, gate, books)

	signal := model.TradeSignal{
		StrategyID: "s1", GameID: "g1", MarketTicker: "KXNBAGAME-26JAN08DALUTA-Y",
		Side: model.SideYes, Quantity: 10,
	}

	order, err := eng.Execute(context.Background(), signal)
	if err == nil {
		t.Fatal("expected an error when the position write fails")
	}
	if order.Status != model.OrderRejected {
		t.Errorf("expected rejected status on halt, got %s", order.Status)
	}
	if !eng.Halted() {
		t.Fatal("expected engine to be halted after a failed fill persist")
	}
	if _, ok := eng.Position(model.PositionKey{StrategyID: "s1", MarketTicker: signal.MarketTicker, Side: model.SideYes}); ok {
		t.Error("position must not be committed when persist fails")
	}

	if _, err := eng.Execute(context.Background(), signal); err == nil {
		t.Fatal("expected a halted engine to reject further signals")
	}

	eng.Resume()
	if eng.Halted() {
		t.Error("expected Resume to clear the halt")
	}
}

func TestMarkToMarket_UpdatesUnrealizedPnL(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	ticker := "KXNBAGAME-26JAN08DALUTA-Y"

	sig := model.TradeSignal{StrategyID: "s1", GameID: "g1", MarketTicker: ticker, Side: model.SideYes, Quantity: 10}
	if _, err := eng.Execute(ctx, sig); err != nil {
		t.Fatalf("execute: %v", err)
	}

	eng.MarkToMarket(ctx)

	pos, _ := eng.Position(model.PositionKey{StrategyID: "s1", MarketTicker: ticker, Side: model.SideYes})
	want := d(54).Sub(d(56)).Mul(decimal.NewFromInt(10))
	if !pos.UnrealizedPnL.Equal(want) {
		t.Errorf("expected unrealized pnl %s, got %s", want, pos.UnrealizedPnL)
	}
}
