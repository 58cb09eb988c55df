package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/nbapaper/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache over the hottest reads: active games and open positions. Writes go
// to the primary store and invalidate the cache; everything else passes
// through uncached since it is either append-only history or low-volume.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

// --- Write-through ---

func (s *CachedStore) UpsertGame(ctx context.Context, g *model.Game) error {
	if err := s.primary.UpsertGame(ctx, g); err != nil {
		return err
	}
	s.rdb.Del(ctx, activeGamesKey())
	return nil
}

func (s *CachedStore) UpsertPosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.UpsertPosition(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, openPositionsKey())
	return nil
}

// --- Read-through ---

func (s *CachedStore) ListActiveGames(ctx context.Context) ([]model.Game, error) {
	data, err := s.rdb.Get(ctx, activeGamesKey()).Bytes()
	if err == nil {
		var games []model.Game
		if json.Unmarshal(data, &games) == nil {
			return games, nil
		}
	}

	games, err := s.primary.ListActiveGames(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(games); err == nil {
		s.rdb.Set(ctx, activeGamesKey(), data, s.ttl)
	}
	return games, nil
}

func (s *CachedStore) ListOpenPositions(ctx context.Context) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, openPositionsKey()).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.ListOpenPositions(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, openPositionsKey(), data, s.ttl)
	}
	return positions, nil
}

// --- Passthrough ---

func (s *CachedStore) GetGame(ctx context.Context, id string) (*model.Game, error) {
	return s.primary.GetGame(ctx, id)
}

func (s *CachedStore) GetGameByEventTicker(ctx context.Context, ticker string) (*model.Game, error) {
	return s.primary.GetGameByEventTicker(ctx, ticker)
}

func (s *CachedStore) UpsertMarket(ctx context.Context, m *model.Market) error {
	return s.primary.UpsertMarket(ctx, m)
}

func (s *CachedStore) GetMarketByTicker(ctx context.Context, ticker string) (*model.Market, error) {
	return s.primary.GetMarketByTicker(ctx, ticker)
}

func (s *CachedStore) ListMarketsByGame(ctx context.Context, gameID string) ([]model.Market, error) {
	return s.primary.ListMarketsByGame(ctx, gameID)
}

func (s *CachedStore) InsertOrderbookSnapshot(ctx context.Context, ob model.OrderbookState) error {
	return s.primary.InsertOrderbookSnapshot(ctx, ob)
}

func (s *CachedStore) InsertNBALiveState(ctx context.Context, st model.NBALiveState) error {
	return s.primary.InsertNBALiveState(ctx, st)
}

func (s *CachedStore) InsertOddsQuote(ctx context.Context, q model.OddsQuote) error {
	return s.primary.InsertOddsQuote(ctx, q)
}

func (s *CachedStore) UpsertStrategy(ctx context.Context, rec model.StrategyRecord) error {
	return s.primary.UpsertStrategy(ctx, rec)
}

func (s *CachedStore) ListStrategies(ctx context.Context) ([]model.StrategyRecord, error) {
	return s.primary.ListStrategies(ctx)
}

func (s *CachedStore) InsertOrder(ctx context.Context, o *model.SimulatedOrder) error {
	return s.primary.InsertOrder(ctx, o)
}

func (s *CachedStore) ListOrdersByStrategy(ctx context.Context, strategyID string) ([]model.SimulatedOrder, error) {
	return s.primary.ListOrdersByStrategy(ctx, strategyID)
}

func (s *CachedStore) ListPositionsByStrategy(ctx context.Context, strategyID string) ([]model.Position, error) {
	return s.primary.ListPositionsByStrategy(ctx, strategyID)
}

func (s *CachedStore) UpsertStrategyPerformance(ctx context.Context, p model.StrategyPerformance) error {
	return s.primary.UpsertStrategyPerformance(ctx, p)
}

func (s *CachedStore) ListStrategyPerformance(ctx context.Context) ([]model.StrategyPerformance, error) {
	return s.primary.ListStrategyPerformance(ctx)
}

func (s *CachedStore) SaveRiskAccount(ctx context.Context, a model.RiskAccount) error {
	return s.primary.SaveRiskAccount(ctx, a)
}

func (s *CachedStore) LoadRiskAccount(ctx context.Context) (model.RiskAccount, error) {
	return s.primary.LoadRiskAccount(ctx)
}

func (s *CachedStore) InsertSystemLog(ctx context.Context, level, component, message string) error {
	return s.primary.InsertSystemLog(ctx, level, component, message)
}

func activeGamesKey() string   { return "games:active" }
func openPositionsKey() string { return "positions:open" }
