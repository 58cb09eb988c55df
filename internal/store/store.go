// Package store defines the persistence interface for the paper trading
// engine. PostgreSQL is the source of truth; Redis provides an optional
// read-through cache layer over the active-game and open-position reads.
package store

import (
	"context"

	"github.com/atmx/nbapaper/internal/model"
)

// Store is the persistence interface spanning the full schema: games,
// markets, orderbook snapshots, NBA live data, betting odds, strategies,
// simulated orders, positions, strategy performance, risk limits, and
// system logs.
type Store interface {
	// --- Games ---

	UpsertGame(ctx context.Context, g *model.Game) error
	GetGame(ctx context.Context, id string) (*model.Game, error)
	GetGameByEventTicker(ctx context.Context, ticker string) (*model.Game, error)
	ListActiveGames(ctx context.Context) ([]model.Game, error)

	// --- Kalshi markets ---

	UpsertMarket(ctx context.Context, m *model.Market) error
	GetMarketByTicker(ctx context.Context, ticker string) (*model.Market, error)
	ListMarketsByGame(ctx context.Context, gameID string) ([]model.Market, error)

	// --- Orderbook snapshots (append-only, for replay) ---

	InsertOrderbookSnapshot(ctx context.Context, ob model.OrderbookState) error

	// --- NBA live data (append-only) ---

	InsertNBALiveState(ctx context.Context, s model.NBALiveState) error

	// --- Betting odds (append-only) ---

	InsertOddsQuote(ctx context.Context, q model.OddsQuote) error

	// --- Strategy configs ---

	UpsertStrategy(ctx context.Context, s model.StrategyRecord) error
	ListStrategies(ctx context.Context) ([]model.StrategyRecord, error)

	// --- Simulated orders ---

	InsertOrder(ctx context.Context, o *model.SimulatedOrder) error
	ListOrdersByStrategy(ctx context.Context, strategyID string) ([]model.SimulatedOrder, error)

	// --- Positions ---

	UpsertPosition(ctx context.Context, p *model.Position) error
	ListOpenPositions(ctx context.Context) ([]model.Position, error)
	ListPositionsByStrategy(ctx context.Context, strategyID string) ([]model.Position, error)

	// --- Strategy performance rollups ---

	UpsertStrategyPerformance(ctx context.Context, p model.StrategyPerformance) error
	ListStrategyPerformance(ctx context.Context) ([]model.StrategyPerformance, error)

	// --- Risk accounting ---

	SaveRiskAccount(ctx context.Context, a model.RiskAccount) error
	LoadRiskAccount(ctx context.Context) (model.RiskAccount, error)

	// --- System logs ---

	InsertSystemLog(ctx context.Context, level, component, message string) error
}
