// Package risk implements the pre-trade gate and post-trade accounting
// for paper positions. The stateful, typed-sentinel-error shape of the
// checks below follows a position-limiter pattern: a small struct holding
// limits, one entry point that short circuits on the first violation, and
// a distinct sentinel per violation kind instead of one generic "rejected"
// error.
package risk

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/nbapaper/internal/model"
)

var (
	ErrCooldownActive           = errors.New("risk: loss-streak cooldown active")
	ErrMaxContractsPerMarket    = errors.New("risk: max contracts per market exceeded")
	ErrMaxContractsPerGame      = errors.New("risk: max contracts per game exceeded")
	ErrMaxTotalContracts        = errors.New("risk: max total contracts exceeded")
	ErrMaxPerTradeRisk          = errors.New("risk: max per-trade risk exceeded")
	ErrMaxExposurePerGame       = errors.New("risk: max exposure per game exceeded")
	ErrMaxExposurePerStrategy   = errors.New("risk: max exposure per strategy exceeded")
	ErrMaxTotalExposure         = errors.New("risk: max total exposure exceeded")
	ErrMaxOrdersPerHour         = errors.New("risk: max orders per hour exceeded")
	ErrMaxOrdersPerDay          = errors.New("risk: max orders per day exceeded")
	ErrMaxDailyLoss             = errors.New("risk: max daily loss exceeded")
	ErrMaxWeeklyLoss            = errors.New("risk: max weekly loss exceeded")
)

// Limits holds the configurable risk policy.
type Limits struct {
	MaxContractsPerMarket  int64
	MaxContractsPerGame    int64
	MaxTotalContracts      int64
	MaxDailyLossCents      decimal.Decimal
	MaxWeeklyLossCents     decimal.Decimal
	MaxPerTradeRiskCents   decimal.Decimal
	MaxTotalExposureCents  decimal.Decimal
	MaxExposurePerGame     decimal.Decimal
	MaxExposurePerStrategy decimal.Decimal
	MaxOrdersPerDay        int
	MaxOrdersPerHour       int
	LossStreakCooldown     int
	CooldownDuration       time.Duration
}

// DefaultLimits returns the default risk policy.
func DefaultLimits() Limits {
	return Limits{
		MaxContractsPerMarket:  100,
		MaxContractsPerGame:    200,
		MaxTotalContracts:      500,
		MaxDailyLossCents:      decimal.NewFromInt(1000),
		MaxWeeklyLossCents:     decimal.NewFromInt(5000),
		MaxPerTradeRiskCents:   decimal.NewFromInt(500),
		MaxTotalExposureCents:  decimal.NewFromInt(10000),
		MaxExposurePerGame:     decimal.NewFromInt(2000),
		MaxExposurePerStrategy: decimal.NewFromInt(3000),
		MaxOrdersPerDay:        50,
		MaxOrdersPerHour:       20,
		LossStreakCooldown:     3,
		CooldownDuration:       5 * time.Minute,
	}
}

// Decision is the outcome of Gate.Check.
type Decision struct {
	Approved bool
	LimitErr error
	Current  decimal.Decimal
	Limit    decimal.Decimal
}

// PositionView is the minimal read-only view of the existing position book
// the gate needs; ExecutionEngine supplies this without exposing its
// single-writer internals.
type PositionView struct {
	MarketQty       int64
	GameQty         int64
	TotalQty        int64
	GameExposure    decimal.Decimal
	StrategyExposure decimal.Decimal
	TotalExposure   decimal.Decimal
}

// Order is the minimal proposed-order view the gate checks against.
type Order struct {
	GameID       string
	StrategyID   string
	MarketTicker string
	Quantity     int64
}

// minuteBucket counts orders placed during one wall-clock minute, used to
// build a true rolling hourly window out of fixed-size storage instead of
// an unbounded timestamp list.
type minuteBucket struct {
	minute int64
	count  int
}

// Gate owns the process-wide RiskAccount and evaluates/records trades
// against Limits. All mutation is serialized through its mutex — a
// single writer for this shared resource.
type Gate struct {
	mu      sync.Mutex
	limits  Limits
	account model.RiskAccount
	enabled bool

	// hourlyBuckets is a 60-slot ring keyed by minute%60, truncated
	// minute-by-minute, giving a rolling last-60-minutes order count
	// instead of a fixed calendar-hour bucket.
	hourlyBuckets [60]minuteBucket
}

// NewGate creates a Gate with the given limits, enabled by default.
func NewGate(limits Limits) *Gate {
	now := time.Now().UTC()
	return &Gate{
		limits:  limits,
		enabled: true,
		account: model.RiskAccount{
			DailyResetAt:  nextUTCMidnight(now),
			WeeklyResetAt: nextMonday(now),
			HourResetAt:   now.Truncate(time.Hour).Add(time.Hour),
		},
	}
}

// SetEnabled toggles the gate; while disabled, Check always approves but
// Record still accrues.
func (g *Gate) SetEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
}

// Account returns a copy of the current risk accounting snapshot.
func (g *Gate) Account() model.RiskAccount {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.account
}

// Restore replaces the accounting snapshot with a, used at startup to
// resume counters persisted by a prior process.
func (g *Gate) Restore(a model.RiskAccount) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.account = a
}

// Check evaluates order against the fixed, ordered check list,
// short-circuiting on the first violation.
func (g *Gate) Check(now time.Time, order Order, view PositionView) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollResets(now)

	if !g.enabled {
		return Decision{Approved: true}
	}

	// 1. Cooldown.
	if g.account.ConsecutiveLosses >= g.limits.LossStreakCooldown && now.Before(g.account.CooldownUntil) {
		return Decision{Approved: false, LimitErr: ErrCooldownActive}
	}

	qty := order.Quantity

	// 2. Max contracts per market.
	if view.MarketQty+qty > g.limits.MaxContractsPerMarket {
		return Decision{Approved: false, LimitErr: ErrMaxContractsPerMarket,
			Current: decimal.NewFromInt(view.MarketQty + qty), Limit: decimal.NewFromInt(g.limits.MaxContractsPerMarket)}
	}

	// 3. Max contracts per game.
	if view.GameQty+qty > g.limits.MaxContractsPerGame {
		return Decision{Approved: false, LimitErr: ErrMaxContractsPerGame,
			Current: decimal.NewFromInt(view.GameQty + qty), Limit: decimal.NewFromInt(g.limits.MaxContractsPerGame)}
	}

	// 4. Max total contracts.
	if view.TotalQty+qty > g.limits.MaxTotalContracts {
		return Decision{Approved: false, LimitErr: ErrMaxTotalContracts,
			Current: decimal.NewFromInt(view.TotalQty + qty), Limit: decimal.NewFromInt(g.limits.MaxTotalContracts)}
	}

	// 5. Max per-trade risk: worst case is 100 cents per contract.
	worstCase := decimal.NewFromInt(qty).Mul(decimal.NewFromInt(100))
	if worstCase.GreaterThan(g.limits.MaxPerTradeRiskCents) {
		return Decision{Approved: false, LimitErr: ErrMaxPerTradeRisk,
			Current: worstCase, Limit: g.limits.MaxPerTradeRiskCents}
	}

	// 6. Exposure sums.
	newGameExposure := view.GameExposure.Add(worstCase)
	if newGameExposure.GreaterThan(g.limits.MaxExposurePerGame) {
		return Decision{Approved: false, LimitErr: ErrMaxExposurePerGame,
			Current: newGameExposure, Limit: g.limits.MaxExposurePerGame}
	}
	newStrategyExposure := view.StrategyExposure.Add(worstCase)
	if newStrategyExposure.GreaterThan(g.limits.MaxExposurePerStrategy) {
		return Decision{Approved: false, LimitErr: ErrMaxExposurePerStrategy,
			Current: newStrategyExposure, Limit: g.limits.MaxExposurePerStrategy}
	}
	newTotalExposure := view.TotalExposure.Add(worstCase)
	if newTotalExposure.GreaterThan(g.limits.MaxTotalExposureCents) {
		return Decision{Approved: false, LimitErr: ErrMaxTotalExposure,
			Current: newTotalExposure, Limit: g.limits.MaxTotalExposureCents}
	}

	// 7. Order-rate counters.
	hourlyOrders := g.hourlyOrderCount(now)
	if hourlyOrders+1 > g.limits.MaxOrdersPerHour {
		return Decision{Approved: false, LimitErr: ErrMaxOrdersPerHour,
			Current: decimal.NewFromInt(int64(hourlyOrders + 1)), Limit: decimal.NewFromInt(int64(g.limits.MaxOrdersPerHour))}
	}
	if g.account.OrdersToday+1 > g.limits.MaxOrdersPerDay {
		return Decision{Approved: false, LimitErr: ErrMaxOrdersPerDay,
			Current: decimal.NewFromInt(int64(g.account.OrdersToday + 1)), Limit: decimal.NewFromInt(int64(g.limits.MaxOrdersPerDay))}
	}

	// 8. Daily/weekly loss.
	newDaily := g.account.DailyLoss.Add(worstCase)
	if newDaily.GreaterThan(g.limits.MaxDailyLossCents) {
		return Decision{Approved: false, LimitErr: ErrMaxDailyLoss,
			Current: g.account.DailyLoss, Limit: g.limits.MaxDailyLossCents}
	}
	newWeekly := g.account.WeeklyLoss.Add(worstCase)
	if newWeekly.GreaterThan(g.limits.MaxWeeklyLossCents) {
		return Decision{Approved: false, LimitErr: ErrMaxWeeklyLoss,
			Current: g.account.WeeklyLoss, Limit: g.limits.MaxWeeklyLossCents}
	}

	return Decision{Approved: true}
}

// Record accrues order counters and, on a close/settle, the realized P&L
// delta (negative = loss).
func (g *Gate) Record(now time.Time, realizedDeltaCents decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollResets(now)

	g.account.OrdersToday++
	g.recordHourlyOrder(now)
	g.account.OrdersThisHour = g.hourlyOrderCount(now)

	if realizedDeltaCents.IsZero() {
		return
	}

	if realizedDeltaCents.IsNegative() {
		loss := realizedDeltaCents.Abs()
		g.account.DailyLoss = g.account.DailyLoss.Add(loss)
		g.account.WeeklyLoss = g.account.WeeklyLoss.Add(loss)
		g.account.ConsecutiveLosses++
		if g.account.ConsecutiveLosses >= g.limits.LossStreakCooldown {
			g.account.CooldownUntil = now.Add(g.limits.CooldownDuration)
		}
	} else {
		g.account.ConsecutiveLosses = 0
	}
}

// rollResets rolls daily/weekly/hourly accumulators forward if their
// windows have elapsed. Must be called with g.mu held.
func (g *Gate) rollResets(now time.Time) {
	if !now.Before(g.account.DailyResetAt) {
		g.account.DailyLoss = decimal.Zero
		g.account.OrdersToday = 0
		g.account.DailyResetAt = nextUTCMidnight(now)
	}
	if !now.Before(g.account.WeeklyResetAt) {
		g.account.WeeklyLoss = decimal.Zero
		g.account.WeeklyResetAt = nextMonday(now)
	}
	g.account.HourResetAt = now.Add(time.Hour)
	g.account.OrdersThisHour = g.hourlyOrderCount(now)
}

// hourlyOrderCount sums the buckets still within the rolling 60-minute
// window ending at now, minute-by-minute rather than a fixed calendar hour.
func (g *Gate) hourlyOrderCount(now time.Time) int {
	cutoffMinute := now.Add(-time.Hour).Unix() / 60
	total := 0
	for _, b := range g.hourlyBuckets {
		if b.count > 0 && b.minute > cutoffMinute {
			total += b.count
		}
	}
	return total
}

// recordHourlyOrder increments the bucket for now's minute, reusing the
// ring slot from an hour-old minute once it has aged out.
func (g *Gate) recordHourlyOrder(now time.Time) {
	minute := now.Unix() / 60
	idx := int(minute % 60)
	if g.hourlyBuckets[idx].minute != minute {
		g.hourlyBuckets[idx] = minuteBucket{minute: minute}
	}
	g.hourlyBuckets[idx].count++
}

func nextUTCMidnight(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

func nextMonday(now time.Time) time.Time {
	t := now.UTC()
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	daysUntilMonday := (int(time.Monday) - int(midnight.Weekday()) + 7) % 7
	if daysUntilMonday == 0 {
		daysUntilMonday = 7
	}
	return midnight.AddDate(0, 0, daysUntilMonday)
}
