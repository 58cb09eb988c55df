// Package model defines the core domain types shared across the paper
// trading engine. All prices, probabilities, and P&L use shopspring/decimal
// — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GamePhase is the lifecycle phase of a tracked game.
type GamePhase string

const (
	PhaseScheduled GamePhase = "scheduled"
	PhaseLive      GamePhase = "live"
	PhaseFinished  GamePhase = "finished"
)

// Side is a tradable side of a binary market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// MarketKind enumerates the market types a Game can list.
type MarketKind string

const (
	MarketMoneylineHome MarketKind = "moneyline_home"
	MarketMoneylineAway MarketKind = "moneyline_away"
	MarketSpread        MarketKind = "spread"
	MarketTotal         MarketKind = "total"
)

// Game is one tracked NBA game, identified by the exchange's event ticker.
type Game struct {
	ID            string    `json:"id" db:"id"`
	EventTicker   string    `json:"event_ticker" db:"event_ticker"`
	NBAGameID     string    `json:"nba_game_id" db:"nba_game_id"`
	HomeTeam      string    `json:"home_team" db:"home_team"`
	AwayTeam      string    `json:"away_team" db:"away_team"`
	GameDate      time.Time `json:"game_date" db:"game_date"`
	Phase         GamePhase `json:"phase" db:"status"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Market is one tradable contract belonging to a Game.
type Market struct {
	ID          string          `json:"id" db:"id"`
	GameID      string          `json:"game_id" db:"game_id"`
	Ticker      string          `json:"ticker" db:"ticker"`
	Kind        MarketKind      `json:"market_type" db:"market_type"`
	StrikeValue decimal.Decimal `json:"strike_value,omitempty" db:"strike_value"`
	Side        Side            `json:"side,omitempty" db:"side"`
	Status      string          `json:"status" db:"status"` // "open", "closed", "settled"
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// OrderbookState is the latest consolidated exchange orderbook for one market.
type OrderbookState struct {
	MarketTicker string          `json:"market_ticker"`
	YesBid       decimal.Decimal `json:"yes_bid,omitempty"`
	YesAsk       decimal.Decimal `json:"yes_ask,omitempty"`
	NoBid        decimal.Decimal `json:"no_bid,omitempty"`
	NoAsk        decimal.Decimal `json:"no_ask,omitempty"`
	HasYesBid    bool            `json:"-"`
	HasYesAsk    bool            `json:"-"`
	HasNoBid     bool            `json:"-"`
	HasNoAsk     bool            `json:"-"`
	YesBidSize   int64           `json:"yes_bid_size,omitempty"`
	YesAskSize   int64           `json:"yes_ask_size,omitempty"`
	NoBidSize    int64           `json:"no_bid_size,omitempty"`
	NoAskSize    int64           `json:"no_ask_size,omitempty"`
	LastUpdate   time.Time       `json:"last_update"`
}

// Mid returns the Yes-side mid price in cents and whether it is defined.
// If only one side is present, that side is used as the mid.
func (o OrderbookState) Mid() (decimal.Decimal, bool) {
	switch {
	case o.HasYesBid && o.HasYesAsk:
		return o.YesBid.Add(o.YesAsk).Div(decimal.NewFromInt(2)), true
	case o.HasYesAsk:
		return o.YesAsk, true
	case o.HasYesBid:
		return o.YesBid, true
	default:
		return decimal.Zero, false
	}
}

// NBALiveState is the latest scoreboard snapshot for a Game.
type NBALiveState struct {
	GameID        string    `json:"game_id"`
	Period        int       `json:"period"`
	TimeRemaining string    `json:"time_remaining"` // "MM:SS" clock for the current period
	HomeScore     int       `json:"home_score"`
	AwayScore     int       `json:"away_score"`
	GameStatus    string    `json:"game_status"`
	LastUpdate    time.Time `json:"last_update"`
}

// OddsQuote is the latest sportsbook quote for one vendor on a Game.
type OddsQuote struct {
	GameID          string    `json:"game_id"`
	Vendor          string    `json:"vendor"`
	MoneylineHome   int       `json:"moneyline_home"`
	MoneylineAway   int       `json:"moneyline_away"`
	SpreadValue     decimal.Decimal `json:"spread_value"`
	SpreadHomeOdds  int       `json:"spread_home_odds"`
	SpreadAwayOdds  int       `json:"spread_away_odds"`
	TotalValue      decimal.Decimal `json:"total_value"`
	TotalOverOdds   int       `json:"total_over_odds"`
	TotalUnderOdds  int       `json:"total_under_odds"`
	LastUpdate      time.Time `json:"last_update"`
}

// GameState is the fused per-game view consumed by strategies. It is owned
// exclusively by the Aggregator; all mutation goes through its methods.
type GameState struct {
	Game       Game
	Orderbooks map[string]OrderbookState   // market ticker -> book
	Live       *NBALiveState               // nil until first NBA poll succeeds
	Odds       map[string]OddsQuote        // vendor -> quote
	LastUpdate time.Time
}

// ImpliedProbability returns the Yes-side implied probability for a market
// ticker, derived from OrderbookState.Mid.
func (g *GameState) ImpliedProbability(ticker string) (decimal.Decimal, bool) {
	ob, ok := g.Orderbooks[ticker]
	if !ok {
		return decimal.Decimal{}, false
	}
	mid, ok := ob.Mid()
	if !ok {
		return decimal.Decimal{}, false
	}
	return mid.Div(decimal.NewFromInt(100)), true
}

// ApplyOrderbook merges a fresh OrderbookState into the cache, keyed by
// market ticker. Exclusively called by the Aggregator's single-writer loop.
func (g *GameState) ApplyOrderbook(ob OrderbookState) {
	if g.Orderbooks == nil {
		g.Orderbooks = make(map[string]OrderbookState)
	}
	g.Orderbooks[ob.MarketTicker] = ob
	g.LastUpdate = ob.LastUpdate
}

// ApplyNBA replaces the live scoreboard snapshot.
func (g *GameState) ApplyNBA(live NBALiveState) {
	g.Live = &live
	g.LastUpdate = live.LastUpdate
}

// ApplyOdds merges a fresh OddsQuote into the cache, keyed by vendor.
func (g *GameState) ApplyOdds(q OddsQuote) {
	if g.Odds == nil {
		g.Odds = make(map[string]OddsQuote)
	}
	g.Odds[q.Vendor] = q
	g.LastUpdate = q.LastUpdate
}

// SetPhase transitions the Game's lifecycle phase.
func (g *GameState) SetPhase(phase GamePhase) {
	g.Game.Phase = phase
	g.Game.UpdatedAt = time.Now()
}

// Orderbook returns the current book for ticker, satisfying execution.OrderbookLookup.
func (g *GameState) Orderbook(ticker string) (OrderbookState, bool) {
	ob, ok := g.Orderbooks[ticker]
	return ob, ok
}

// TradeSignal is emitted by a Strategy when it wants to open a position.
type TradeSignal struct {
	StrategyID   string                 `json:"strategy_id"`
	StrategyKind string                 `json:"strategy_kind"`
	GameID       string                 `json:"game_id"`
	MarketTicker string                 `json:"market_ticker"`
	Side         Side                   `json:"side"`
	Quantity     int64                  `json:"quantity"`
	Confidence   decimal.Decimal        `json:"confidence"`
	Reason       string                 `json:"reason"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	EmittedAt    time.Time              `json:"emitted_at"`
}

// OrderKind distinguishes market and limit simulated orders.
type OrderKind string

const (
	OrderMarket OrderKind = "market"
	OrderLimit  OrderKind = "limit"
)

// OrderStatus is the lifecycle status of a SimulatedOrder.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderFilled    OrderStatus = "filled"
	OrderRejected  OrderStatus = "rejected"
	OrderCancelled OrderStatus = "cancelled"
)

// SimulatedOrder is a paper order routed through the ExecutionEngine.
type SimulatedOrder struct {
	ID           string                 `json:"id" db:"id"`
	GameID       string                 `json:"game_id" db:"game_id"`
	StrategyID   string                 `json:"strategy_id" db:"strategy_id"`
	MarketTicker string                 `json:"market_ticker" db:"market_ticker"`
	Kind         OrderKind              `json:"order_type" db:"order_type"`
	Side         Side                   `json:"side" db:"side"`
	Quantity     int64                  `json:"quantity" db:"quantity"`
	LimitPrice   decimal.Decimal        `json:"limit_price,omitempty" db:"limit_price"`
	FillPrice    decimal.Decimal        `json:"filled_price,omitempty" db:"filled_price"`
	Status       OrderStatus            `json:"status" db:"status"`
	RejectReason string                 `json:"reject_reason,omitempty" db:"reject_reason"`
	PlacedAt     time.Time              `json:"placed_at" db:"placed_at"`
	FilledAt     time.Time              `json:"filled_at,omitempty" db:"filled_at"`
	SignalData   map[string]interface{} `json:"signal_data,omitempty" db:"signal_data"`
}

// Position is the open-or-closed holding for (strategy, market, side).
type Position struct {
	StrategyID    string          `json:"strategy_id" db:"strategy_id"`
	GameID        string          `json:"game_id" db:"game_id"`
	MarketTicker  string          `json:"market_ticker" db:"market_ticker"`
	Side          Side            `json:"side" db:"side"`
	Quantity      int64           `json:"quantity" db:"quantity"`
	AvgPrice      decimal.Decimal `json:"avg_price" db:"avg_price"`
	CurrentPrice  decimal.Decimal `json:"current_price,omitempty" db:"current_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl,omitempty" db:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl" db:"realized_pnl"`
	IsOpen        bool            `json:"is_open" db:"is_open"`
	OpenedAt      time.Time       `json:"opened_at" db:"opened_at"`
	ClosedAt      time.Time       `json:"closed_at,omitempty" db:"closed_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Key identifies the composite key an ExecutionEngine indexes positions by.
func (p Position) Key() PositionKey {
	return PositionKey{StrategyID: p.StrategyID, MarketTicker: p.MarketTicker, Side: p.Side}
}

// PositionKey is the composite (strategy, market, side) position identity.
type PositionKey struct {
	StrategyID   string
	MarketTicker string
	Side         Side
}

// StrategyRecord is the persisted configuration for one strategy instance.
type StrategyRecord struct {
	ID        string                 `json:"id" db:"id"`
	Kind      string                 `json:"kind" db:"kind"`
	Name      string                 `json:"name" db:"name"`
	Config    map[string]interface{} `json:"config" db:"config"`
	Enabled   bool                   `json:"enabled" db:"enabled"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`
}

// StrategyPerformance is a periodic rollup of one strategy's trading
// results, recomputed after each fill/settle.
type StrategyPerformance struct {
	StrategyID    string          `json:"strategy_id" db:"strategy_id"`
	TotalTrades   int             `json:"total_trades" db:"total_trades"`
	WinningTrades int             `json:"winning_trades" db:"winning_trades"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl" db:"realized_pnl"`
	WinRate       decimal.Decimal `json:"win_rate" db:"win_rate"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// RiskAccount is the process-wide accounting state RiskGate owns exclusively.
type RiskAccount struct {
	DailyLoss         decimal.Decimal `json:"daily_loss"`
	WeeklyLoss        decimal.Decimal `json:"weekly_loss"`
	OrdersToday       int             `json:"orders_today"`
	OrdersThisHour    int             `json:"orders_this_hour"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
	CooldownUntil     time.Time       `json:"cooldown_until,omitempty"`
	DailyResetAt      time.Time       `json:"daily_reset_at"`
	WeeklyResetAt     time.Time       `json:"weekly_reset_at"`
	HourResetAt       time.Time       `json:"hour_reset_at"`
}
