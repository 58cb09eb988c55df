package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/nbapaper/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary and probability values are stored as NUMERIC for exact
// decimal precision; orderbook/NBA/odds history tables are append-only.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) UpsertGame(ctx context.Context, g *model.Game) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO games (id, event_ticker, nba_game_id, home_team, away_team, game_date, status, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status, is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at`,
		g.ID, g.EventTicker, g.NBAGameID, g.HomeTeam, g.AwayTeam, g.GameDate, g.Phase, g.IsActive, g.CreatedAt, g.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetGame(ctx context.Context, id string) (*model.Game, error) {
	var g model.Game
	err := s.pool.QueryRow(ctx,
		`SELECT id, event_ticker, nba_game_id, home_team, away_team, game_date, status, is_active, created_at, updated_at
		 FROM games WHERE id = $1`, id).
		Scan(&g.ID, &g.EventTicker, &g.NBAGameID, &g.HomeTeam, &g.AwayTeam, &g.GameDate, &g.Phase, &g.IsActive, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get game %s: %w", id, err)
	}
	return &g, nil
}

func (s *PostgresStore) GetGameByEventTicker(ctx context.Context, ticker string) (*model.Game, error) {
	var g model.Game
	err := s.pool.QueryRow(ctx,
		`SELECT id, event_ticker, nba_game_id, home_team, away_team, game_date, status, is_active, created_at, updated_at
		 FROM games WHERE event_ticker = $1`, ticker).
		Scan(&g.ID, &g.EventTicker, &g.NBAGameID, &g.HomeTeam, &g.AwayTeam, &g.GameDate, &g.Phase, &g.IsActive, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get game by ticker %s: %w", ticker, err)
	}
	return &g, nil
}

func (s *PostgresStore) ListActiveGames(ctx context.Context) ([]model.Game, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_ticker, nba_game_id, home_team, away_team, game_date, status, is_active, created_at, updated_at
		 FROM games WHERE is_active ORDER BY game_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		var g model.Game
		if err := rows.Scan(&g.ID, &g.EventTicker, &g.NBAGameID, &g.HomeTeam, &g.AwayTeam, &g.GameDate, &g.Phase, &g.IsActive, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func (s *PostgresStore) UpsertMarket(ctx context.Context, m *model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kalshi_markets (id, game_id, ticker, market_type, strike_value, side, status, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8)
		 ON CONFLICT (ticker) DO UPDATE SET status = EXCLUDED.status`,
		m.ID, m.GameID, m.Ticker, m.Kind, m.StrikeValue.String(), m.Side, m.Status, m.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetMarketByTicker(ctx context.Context, ticker string) (*model.Market, error) {
	var m model.Market
	var strike string
	err := s.pool.QueryRow(ctx,
		`SELECT id, game_id, ticker, market_type, strike_value::TEXT, side, status, created_at
		 FROM kalshi_markets WHERE ticker = $1`, ticker).
		Scan(&m.ID, &m.GameID, &m.Ticker, &m.Kind, &strike, &m.Side, &m.Status, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", ticker, err)
	}
	m.StrikeValue, _ = decimal.NewFromString(strike)
	return &m, nil
}

func (s *PostgresStore) ListMarketsByGame(ctx context.Context, gameID string) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, game_id, ticker, market_type, strike_value::TEXT, side, status, created_at
		 FROM kalshi_markets WHERE game_id = $1`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		var m model.Market
		var strike string
		if err := rows.Scan(&m.ID, &m.GameID, &m.Ticker, &m.Kind, &strike, &m.Side, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.StrikeValue, _ = decimal.NewFromString(strike)
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) InsertOrderbookSnapshot(ctx context.Context, ob model.OrderbookState) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO orderbook_snapshots (market_ticker, yes_bid, yes_ask, no_bid, no_ask, yes_bid_size, yes_ask_size, no_bid_size, no_ask_size, captured_at)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6, $7, $8, $9, $10)`,
		ob.MarketTicker, ob.YesBid.String(), ob.YesAsk.String(), ob.NoBid.String(), ob.NoAsk.String(),
		ob.YesBidSize, ob.YesAskSize, ob.NoBidSize, ob.NoAskSize, ob.LastUpdate,
	)
	return err
}

func (s *PostgresStore) InsertNBALiveState(ctx context.Context, st model.NBALiveState) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO nba_live_data (game_id, period, time_remaining, home_score, away_score, game_status, captured_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		st.GameID, st.Period, st.TimeRemaining, st.HomeScore, st.AwayScore, st.GameStatus, st.LastUpdate,
	)
	return err
}

func (s *PostgresStore) InsertOddsQuote(ctx context.Context, q model.OddsQuote) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO betting_odds (game_id, vendor, moneyline_home, moneyline_away, spread_value, spread_home_odds, spread_away_odds, total_value, total_over_odds, total_under_odds, captured_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8::NUMERIC, $9, $10, $11)`,
		q.GameID, q.Vendor, q.MoneylineHome, q.MoneylineAway, q.SpreadValue.String(), q.SpreadHomeOdds, q.SpreadAwayOdds,
		q.TotalValue.String(), q.TotalOverOdds, q.TotalUnderOdds, q.LastUpdate,
	)
	return err
}

func (s *PostgresStore) UpsertStrategy(ctx context.Context, rec model.StrategyRecord) error {
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO strategies (id, kind, name, config, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::JSONB, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET config = EXCLUDED.config, enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.Kind, rec.Name, cfg, rec.Enabled, rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) ListStrategies(ctx context.Context) ([]model.StrategyRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, name, config, enabled, created_at, updated_at FROM strategies`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StrategyRecord
	for rows.Next() {
		var rec model.StrategyRecord
		var cfg []byte
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Name, &cfg, &rec.Enabled, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if len(cfg) > 0 {
			_ = json.Unmarshal(cfg, &rec.Config)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertOrder(ctx context.Context, o *model.SimulatedOrder) error {
	signal, err := json.Marshal(o.SignalData)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO simulated_orders (id, game_id, strategy_id, market_ticker, order_type, side, quantity, limit_price, filled_price, status, reject_reason, placed_at, filled_at, signal_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9::NUMERIC, $10, $11, $12, $13, $14::JSONB)`,
		o.ID, o.GameID, o.StrategyID, o.MarketTicker, o.Kind, o.Side, o.Quantity,
		o.LimitPrice.String(), o.FillPrice.String(), o.Status, o.RejectReason, o.PlacedAt, nullableTime(o.FilledAt), signal,
	)
	return err
}

func (s *PostgresStore) ListOrdersByStrategy(ctx context.Context, strategyID string) ([]model.SimulatedOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, game_id, strategy_id, market_ticker, order_type, side, quantity, limit_price::TEXT, filled_price::TEXT, status, reject_reason, placed_at, filled_at
		 FROM simulated_orders WHERE strategy_id = $1 ORDER BY placed_at`, strategyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SimulatedOrder
	for rows.Next() {
		var o model.SimulatedOrder
		var limitP, fillP string
		if err := rows.Scan(&o.ID, &o.GameID, &o.StrategyID, &o.MarketTicker, &o.Kind, &o.Side, &o.Quantity,
			&limitP, &fillP, &o.Status, &o.RejectReason, &o.PlacedAt, &o.FilledAt); err != nil {
			return nil, err
		}
		o.LimitPrice, _ = decimal.NewFromString(limitP)
		o.FillPrice, _ = decimal.NewFromString(fillP)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertPosition(ctx context.Context, p *model.Position) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (strategy_id, game_id, market_ticker, side, quantity, avg_price, current_price, unrealized_pnl, realized_pnl, is_open, opened_at, closed_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11, $12, $13)
		 ON CONFLICT (strategy_id, market_ticker, side) DO UPDATE SET
		   quantity = EXCLUDED.quantity, avg_price = EXCLUDED.avg_price, current_price = EXCLUDED.current_price,
		   unrealized_pnl = EXCLUDED.unrealized_pnl, realized_pnl = EXCLUDED.realized_pnl,
		   is_open = EXCLUDED.is_open, closed_at = EXCLUDED.closed_at, updated_at = EXCLUDED.updated_at`,
		p.StrategyID, p.GameID, p.MarketTicker, p.Side, p.Quantity, p.AvgPrice.String(), p.CurrentPrice.String(),
		p.UnrealizedPnL.String(), p.RealizedPnL.String(), p.IsOpen, p.OpenedAt, nullableTime(p.ClosedAt), p.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) ListOpenPositions(ctx context.Context) ([]model.Position, error) {
	return s.queryPositions(ctx, `WHERE is_open`)
}

func (s *PostgresStore) ListPositionsByStrategy(ctx context.Context, strategyID string) ([]model.Position, error) {
	return s.queryPositions(ctx, `WHERE strategy_id = $1`, strategyID)
}

func (s *PostgresStore) queryPositions(ctx context.Context, where string, args ...interface{}) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT strategy_id, game_id, market_ticker, side, quantity, avg_price::TEXT, current_price::TEXT,
		        unrealized_pnl::TEXT, realized_pnl::TEXT, is_open, opened_at, closed_at, updated_at
		 FROM positions `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		var p model.Position
		var avg, cur, unreal, real string
		if err := rows.Scan(&p.StrategyID, &p.GameID, &p.MarketTicker, &p.Side, &p.Quantity, &avg, &cur, &unreal, &real,
			&p.IsOpen, &p.OpenedAt, &p.ClosedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.AvgPrice, _ = decimal.NewFromString(avg)
		p.CurrentPrice, _ = decimal.NewFromString(cur)
		p.UnrealizedPnL, _ = decimal.NewFromString(unreal)
		p.RealizedPnL, _ = decimal.NewFromString(real)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertStrategyPerformance(ctx context.Context, p model.StrategyPerformance) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO strategy_performance (strategy_id, total_trades, winning_trades, realized_pnl, win_rate, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6)
		 ON CONFLICT (strategy_id) DO UPDATE SET
		   total_trades = EXCLUDED.total_trades, winning_trades = EXCLUDED.winning_trades,
		   realized_pnl = EXCLUDED.realized_pnl, win_rate = EXCLUDED.win_rate, updated_at = EXCLUDED.updated_at`,
		p.StrategyID, p.TotalTrades, p.WinningTrades, p.RealizedPnL.String(), p.WinRate.String(), p.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) ListStrategyPerformance(ctx context.Context) ([]model.StrategyPerformance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT strategy_id, total_trades, winning_trades, realized_pnl::TEXT, win_rate::TEXT, updated_at FROM strategy_performance`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StrategyPerformance
	for rows.Next() {
		var p model.StrategyPerformance
		var pnl, winRate string
		if err := rows.Scan(&p.StrategyID, &p.TotalTrades, &p.WinningTrades, &pnl, &winRate, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.RealizedPnL, _ = decimal.NewFromString(pnl)
		p.WinRate, _ = decimal.NewFromString(winRate)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveRiskAccount(ctx context.Context, a model.RiskAccount) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO risk_limits (id, daily_loss, weekly_loss, orders_today, orders_this_hour, consecutive_losses, cooldown_until, daily_reset_at, weekly_reset_at, hour_reset_at)
		 VALUES (1, $1::NUMERIC, $2::NUMERIC, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   daily_loss = EXCLUDED.daily_loss, weekly_loss = EXCLUDED.weekly_loss,
		   orders_today = EXCLUDED.orders_today, orders_this_hour = EXCLUDED.orders_this_hour,
		   consecutive_losses = EXCLUDED.consecutive_losses, cooldown_until = EXCLUDED.cooldown_until,
		   daily_reset_at = EXCLUDED.daily_reset_at, weekly_reset_at = EXCLUDED.weekly_reset_at, hour_reset_at = EXCLUDED.hour_reset_at`,
		a.DailyLoss.String(), a.WeeklyLoss.String(), a.OrdersToday, a.OrdersThisHour, a.ConsecutiveLosses,
		nullableTime(a.CooldownUntil), a.DailyResetAt, a.WeeklyResetAt, a.HourResetAt,
	)
	return err
}

func (s *PostgresStore) LoadRiskAccount(ctx context.Context) (model.RiskAccount, error) {
	var a model.RiskAccount
	var daily, weekly string
	err := s.pool.QueryRow(ctx,
		`SELECT daily_loss::TEXT, weekly_loss::TEXT, orders_today, orders_this_hour, consecutive_losses, cooldown_until, daily_reset_at, weekly_reset_at, hour_reset_at
		 FROM risk_limits WHERE id = 1`).
		Scan(&daily, &weekly, &a.OrdersToday, &a.OrdersThisHour, &a.ConsecutiveLosses, &a.CooldownUntil, &a.DailyResetAt, &a.WeeklyResetAt, &a.HourResetAt)
	if err != nil {
		return model.RiskAccount{}, fmt.Errorf("load risk account: %w", err)
	}
	a.DailyLoss, _ = decimal.NewFromString(daily)
	a.WeeklyLoss, _ = decimal.NewFromString(weekly)
	return a, nil
}

func (s *PostgresStore) InsertSystemLog(ctx context.Context, level, component, message string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO system_logs (level, component, message, logged_at) VALUES ($1, $2, $3, NOW())`,
		level, component, message,
	)
	return err
}

func nullableTime(t interface{ IsZero() bool }) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
