package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/nbapaper/internal/model"
)

func TestMemoryStore_GameRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	g := &model.Game{ID: "g1", EventTicker: "KXNBAGAME-26JAN08DALUTA", IsActive: true}
	if err := s.UpsertGame(ctx, g); err != nil {
		t.Fatalf("UpsertGame: %v", err)
	}

	got, err := s.GetGameByEventTicker(ctx, "KXNBAGAME-26JAN08DALUTA")
	if err != nil {
		t.Fatalf("GetGameByEventTicker: %v", err)
	}
	if got.ID != "g1" {
		t.Errorf("expected id g1, got %s", got.ID)
	}

	active, err := s.ListActiveGames(ctx)
	if err != nil || len(active) != 1 {
		t.Errorf("expected 1 active game, got %d (err %v)", len(active), err)
	}
}

func TestMemoryStore_PositionCompositeKey(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	yes := &model.Position{StrategyID: "s1", MarketTicker: "M1", Side: model.SideYes, Quantity: 5, IsOpen: true}
	no := &model.Position{StrategyID: "s1", MarketTicker: "M1", Side: model.SideNo, Quantity: 3, IsOpen: true}
	otherStrategy := &model.Position{StrategyID: "s2", MarketTicker: "M1", Side: model.SideYes, Quantity: 7, IsOpen: true}

	for _, p := range []*model.Position{yes, no, otherStrategy} {
		if err := s.UpsertPosition(ctx, p); err != nil {
			t.Fatalf("UpsertPosition: %v", err)
		}
	}

	open, err := s.ListOpenPositions(ctx)
	if err != nil {
		t.Fatalf("ListOpenPositions: %v", err)
	}
	if len(open) != 3 {
		t.Errorf("expected 3 distinct positions (same market, different strategy/side), got %d", len(open))
	}

	byStrategy, err := s.ListPositionsByStrategy(ctx, "s1")
	if err != nil || len(byStrategy) != 2 {
		t.Errorf("expected 2 positions for s1, got %d (err %v)", len(byStrategy), err)
	}
}

func TestMemoryStore_RiskAccountPersistence(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	acct := model.RiskAccount{
		DailyLoss:     decimal.NewFromInt(250),
		DailyResetAt:  time.Now().Add(time.Hour),
		WeeklyResetAt: time.Now().Add(24 * time.Hour),
		HourResetAt:   time.Now().Add(time.Minute),
	}
	if err := s.SaveRiskAccount(ctx, acct); err != nil {
		t.Fatalf("SaveRiskAccount: %v", err)
	}

	got, err := s.LoadRiskAccount(ctx)
	if err != nil {
		t.Fatalf("LoadRiskAccount: %v", err)
	}
	if !got.DailyLoss.Equal(decimal.NewFromInt(250)) {
		t.Errorf("expected daily loss 250, got %s", got.DailyLoss)
	}
}

func TestMemoryStore_OrdersAndStrategies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := model.StrategyRecord{ID: "strat1", Kind: "sharp_line", Name: "Sharp Line A", Enabled: true}
	if err := s.UpsertStrategy(ctx, rec); err != nil {
		t.Fatalf("UpsertStrategy: %v", err)
	}

	order := &model.SimulatedOrder{ID: "o1", StrategyID: "strat1", Status: model.OrderFilled}
	if err := s.InsertOrder(ctx, order); err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}

	orders, err := s.ListOrdersByStrategy(ctx, "strat1")
	if err != nil || len(orders) != 1 {
		t.Errorf("expected 1 order for strat1, got %d (err %v)", len(orders), err)
	}

	strategies, err := s.ListStrategies(ctx)
	if err != nil || len(strategies) != 1 {
		t.Errorf("expected 1 strategy, got %d (err %v)", len(strategies), err)
	}
}
