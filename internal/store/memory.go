package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/atmx/nbapaper/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// local development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu sync.RWMutex

	games              map[string]*model.Game
	gamesByTicker      map[string]string // event_ticker -> game id
	markets            map[string]*model.Market
	orders             []model.SimulatedOrder
	positions          map[model.PositionKey]*model.Position
	strategies         map[string]model.StrategyRecord
	strategyPerf       map[string]model.StrategyPerformance
	riskAccount        model.RiskAccount
	logs               []systemLog
}

type systemLog struct {
	Level     string
	Component string
	Message   string
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:         make(map[string]*model.Game),
		gamesByTicker: make(map[string]string),
		markets:       make(map[string]*model.Market),
		positions:     make(map[model.PositionKey]*model.Position),
		strategies:    make(map[string]model.StrategyRecord),
		strategyPerf:  make(map[string]model.StrategyPerformance),
	}
}

func (s *MemoryStore) UpsertGame(_ context.Context, g *model.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *g
	s.games[g.ID] = &cp
	s.gamesByTicker[g.EventTicker] = g.ID
	return nil
}

func (s *MemoryStore) GetGame(_ context.Context, id string) (*model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	if !ok {
		return nil, fmt.Errorf("game %s not found", id)
	}
	cp := *g
	return &cp, nil
}

func (s *MemoryStore) GetGameByEventTicker(_ context.Context, ticker string) (*model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.gamesByTicker[ticker]
	if !ok {
		return nil, fmt.Errorf("game for ticker %s not found", ticker)
	}
	cp := *s.games[id]
	return &cp, nil
}

func (s *MemoryStore) ListActiveGames(_ context.Context) ([]model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Game
	for _, g := range s.games {
		if g.IsActive {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.markets[m.Ticker] = &cp
	return nil
}

func (s *MemoryStore) GetMarketByTicker(_ context.Context, ticker string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[ticker]
	if !ok {
		return nil, fmt.Errorf("market %s not found", ticker)
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMarketsByGame(_ context.Context, gameID string) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Market
	for _, m := range s.markets {
		if m.GameID == gameID {
			out = append(out, *m)
		}
	}
	return out, nil
}

// InsertOrderbookSnapshot is a no-op in MemoryStore: replay history is not
// retained in memory, only the latest state (held by the Aggregator).
func (s *MemoryStore) InsertOrderbookSnapshot(_ context.Context, _ model.OrderbookState) error {
	return nil
}

// InsertNBALiveState is a no-op in MemoryStore, mirroring InsertOrderbookSnapshot.
func (s *MemoryStore) InsertNBALiveState(_ context.Context, _ model.NBALiveState) error {
	return nil
}

// InsertOddsQuote is a no-op in MemoryStore, mirroring InsertOrderbookSnapshot.
func (s *MemoryStore) InsertOddsQuote(_ context.Context, _ model.OddsQuote) error {
	return nil
}

func (s *MemoryStore) UpsertStrategy(_ context.Context, rec model.StrategyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies[rec.ID] = rec
	return nil
}

func (s *MemoryStore) ListStrategies(_ context.Context) ([]model.StrategyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.StrategyRecord, 0, len(s.strategies))
	for _, rec := range s.strategies {
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) InsertOrder(_ context.Context, o *model.SimulatedOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, *o)
	return nil
}

func (s *MemoryStore) ListOrdersByStrategy(_ context.Context, strategyID string) ([]model.SimulatedOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SimulatedOrder
	for _, o := range s.orders {
		if o.StrategyID == strategyID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertPosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.positions[p.Key()] = &cp
	return nil
}

func (s *MemoryStore) ListOpenPositions(_ context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Position
	for _, p := range s.positions {
		if p.IsOpen {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListPositionsByStrategy(_ context.Context, strategyID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Position
	for _, p := range s.positions {
		if p.StrategyID == strategyID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertStrategyPerformance(_ context.Context, p model.StrategyPerformance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategyPerf[p.StrategyID] = p
	return nil
}

func (s *MemoryStore) ListStrategyPerformance(_ context.Context) ([]model.StrategyPerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.StrategyPerformance, 0, len(s.strategyPerf))
	for _, p := range s.strategyPerf {
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryStore) SaveRiskAccount(_ context.Context, a model.RiskAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.riskAccount = a
	return nil
}

func (s *MemoryStore) LoadRiskAccount(_ context.Context) (model.RiskAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.riskAccount, nil
}

func (s *MemoryStore) InsertSystemLog(_ context.Context, level, component, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, systemLog{Level: level, Component: component, Message: message})
	return nil
}
