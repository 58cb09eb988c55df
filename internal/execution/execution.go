// Package execution implements the ExecutionEngine: it converts approved
// TradeSignals into SimulatedOrders, maintains the position book keyed by
// (strategy, market, side), and computes realized and unrealized P&L. The
// execution protocol follows a validate -> price -> risk-check -> fill ->
// persist -> respond shape, filling against the live orderbook ask rather
// than a cost-function curve.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/nbapaper/internal/errs"
	"github.com/atmx/nbapaper/internal/metrics"
	"github.com/atmx/nbapaper/internal/model"
	"github.com/atmx/nbapaper/internal/risk"
	"github.com/atmx/nbapaper/internal/store"
)

// OrderbookLookup resolves the current orderbook for a market ticker.
// Satisfied by the Aggregator's GameState accessors.
type OrderbookLookup interface {
	Orderbook(ticker string) (model.OrderbookState, bool)
}

// Engine owns the position book exclusively; all mutation is serialized
// through its mutex (single-writer).
type Engine struct {
	mu        sync.Mutex
	st        store.Store
	gate      *risk.Gate
	books     OrderbookLookup
	positions map[model.PositionKey]*model.Position

	// halted is set when a fill's persistence write fails. A halted engine
	// rejects every further Execute call until an operator calls Resume;
	// the in-memory position book is never ahead of what storage confirms.
	halted bool

	onFill func(model.SimulatedOrder, model.Position)
}

// NewEngine creates an Engine backed by st for persistence, gate for
// pre-trade checks, and books for current-market pricing.
func NewEngine(st store.Store, gate *risk.Gate, books OrderbookLookup) *Engine {
	return &Engine{
		st:        st,
		gate:      gate,
		books:     books,
		positions: make(map[model.PositionKey]*model.Position),
	}
}

// OnFill registers a callback that Execute invokes after a successful fill
// is persisted. ClosePosition and SettlePosition do not invoke it. Nothing
// is rolled back on the callback's account.
func (e *Engine) OnFill(fn func(model.SimulatedOrder, model.Position)) {
	e.onFill = fn
}

// Halted reports whether the engine has stopped accepting new fills after
// a persistence failure.
func (e *Engine) Halted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

// Resume clears a halt set by a prior persistence failure. Callers should
// confirm storage is healthy and the position book matches storage before
// calling this.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.halted = false
}

// Execute runs the full execution protocol (, steps 1-7) for one signal.
func (e *Engine) Execute(ctx context.Context, signal model.TradeSignal) (model.SimulatedOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted {
		return model.SimulatedOrder{}, errs.New(errs.KindInvariantViolation, "execution.Execute", fmt.Errorf("engine halted pending operator intervention"))
	}

	order := model.SimulatedOrder{
		ID:           uuid.New().String(),
		GameID:       signal.GameID,
		StrategyID:   signal.StrategyID,
		MarketTicker: signal.MarketTicker,
		Kind:         model.OrderMarket,
		Side:         signal.Side,
		Quantity:     signal.Quantity,
		Status:       model.OrderPending,
		PlacedAt:     signal.EmittedAt,
		SignalData:   signal.Metadata,
	}

	book, ok := e.books.Orderbook(signal.MarketTicker)
	if !ok {
		order.Status = model.OrderRejected
		order.RejectReason = "no market data"
		e.persist(ctx, order, nil)
		return order, errs.New(errs.KindDataUnavailable, "execution.Execute", nil)
	}

	fillPrice, ok := askPrice(book, signal.Side)
	if !ok {
		order.Status = model.OrderRejected
		order.RejectReason = "no ask on requested side"
		e.persist(ctx, order, nil)
		return order, errs.New(errs.KindDataUnavailable, "execution.Execute", nil)
	}

	view := e.riskView(signal.GameID, signal.StrategyID, signal.MarketTicker)
	decision := e.gate.Check(time.Now(), risk.Order{
		GameID:       signal.GameID,
		StrategyID:   signal.StrategyID,
		MarketTicker: signal.MarketTicker,
		Quantity:     signal.Quantity,
	}, view)

	if !decision.Approved {
		order.Status = model.OrderRejected
		order.RejectReason = decision.LimitErr.Error()
		e.persist(ctx, order, nil)
		metrics.RiskRejectionsTotal.WithLabelValues(decision.LimitErr.Error()).Inc()
		return order, errs.New(errs.KindRiskRejection, "execution.Execute", decision.LimitErr)
	}

	order.FillPrice = fillPrice
	order.FilledAt = time.Now()
	order.Status = model.OrderFilled

	pos := e.computeOpen(signal.StrategyID, signal.GameID, signal.MarketTicker, signal.Side, signal.Quantity, fillPrice)

	if err := e.persist(ctx, order, &pos); err != nil {
		e.halted = true
		order.Status = model.OrderRejected
		order.RejectReason = "persistence failure, engine halted"
		slog.Error("execution: halting, fill could not be persisted", "order_id", order.ID, "err", err)
		return order, errs.New(errs.KindInvariantViolation, "execution.Execute", err)
	}

	stored := e.commitOpen(pos)
	e.gate.Record(time.Now(), decimal.Zero)

	metrics.OrdersFilledTotal.WithLabelValues(string(signal.Side)).Inc()
	if e.onFill != nil {
		e.onFill(order, *stored)
	}
	return order, nil
}

// ClosePosition closes an open position at exitPrice (or the current bid
// if exitPrice is the zero value), realizing P&L
func (e *Engine) ClosePosition(ctx context.Context, key model.PositionKey, exitPrice decimal.Decimal) (model.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[key]
	if !ok || !pos.IsOpen {
		return model.Position{}, errs.New(errs.KindInvariantViolation, "execution.ClosePosition", fmt.Errorf("no open position for %+v", key))
	}

	if exitPrice.IsZero() {
		book, ok := e.books.Orderbook(key.MarketTicker)
		if !ok {
			return model.Position{}, errs.New(errs.KindDataUnavailable, "execution.ClosePosition", nil)
		}
		bid, ok := bidPrice(book, key.Side)
		if !ok {
			return model.Position{}, errs.New(errs.KindDataUnavailable, "execution.ClosePosition", nil)
		}
		exitPrice = bid
	}

	delta := exitPrice.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(pos.Quantity))
	pos.RealizedPnL = pos.RealizedPnL.Add(delta)
	pos.Quantity = 0
	pos.IsOpen = false
	pos.ClosedAt = time.Now()
	pos.UpdatedAt = pos.ClosedAt

	e.gate.Record(time.Now(), delta)
	e.st.UpsertPosition(ctx, pos)

	return *pos, nil
}

// SettlePosition assigns the fixed 0/100-cent payout once the market
// outcome is known and closes the position.
func (e *Engine) SettlePosition(ctx context.Context, key model.PositionKey, outcome model.Side) (model.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[key]
	if !ok || !pos.IsOpen {
		return model.Position{}, errs.New(errs.KindInvariantViolation, "execution.SettlePosition", fmt.Errorf("no open position for %+v", key))
	}

	payout := decimal.Zero
	if pos.Side == outcome {
		payout = decimal.NewFromInt(100)
	}

	delta := payout.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(pos.Quantity))
	pos.RealizedPnL = pos.RealizedPnL.Add(delta)
	pos.Quantity = 0
	pos.IsOpen = false
	pos.ClosedAt = time.Now()
	pos.UpdatedAt = pos.ClosedAt

	e.gate.Record(time.Now(), delta)
	e.st.UpsertPosition(ctx, pos)

	return *pos, nil
}

// MarkToMarket revalues all open positions against current best-exit
// prices
func (e *Engine) MarkToMarket(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, pos := range e.positions {
		if !pos.IsOpen {
			continue
		}
		book, ok := e.books.Orderbook(pos.MarketTicker)
		if !ok {
			continue
		}
		mark, ok := bidPrice(book, pos.Side)
		if !ok {
			continue
		}
		pos.CurrentPrice = mark
		pos.UnrealizedPnL = mark.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(pos.Quantity))
		pos.UpdatedAt = time.Now()
		e.st.UpsertPosition(ctx, pos)
	}
}

// Position returns a copy of the current position for key, if any.
func (e *Engine) Position(key model.PositionKey) (model.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.positions[key]
	if !ok {
		return model.Position{}, false
	}
	return *pos, true
}

// ReplayOrder reconstructs position-book state from a single persisted
// order, supporting full-ledger replay from storage. Replay must be
// invoked in placed_at order.
func (e *Engine) ReplayOrder(order model.SimulatedOrder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if order.Status != model.OrderFilled {
		return
	}
	e.applyOpen(order.StrategyID, order.GameID, order.MarketTicker, order.Side, order.Quantity, order.FillPrice)
}

// applyOpen commits an open/add-to-position mutation directly, for replay
// from already-persisted orders where there is nothing left to roll back.
func (e *Engine) applyOpen(strategyID, gameID, ticker string, side model.Side, qty int64, fill decimal.Decimal) *model.Position {
	pos := e.computeOpen(strategyID, gameID, ticker, side, qty, fill)
	return e.commitOpen(pos)
}

// computeOpen returns the prospective position resulting from opening or
// adding to a fill, without mutating the position book. The caller commits
// it with commitOpen only once the fill is durably persisted.
func (e *Engine) computeOpen(strategyID, gameID, ticker string, side model.Side, qty int64, fill decimal.Decimal) model.Position {
	key := model.PositionKey{StrategyID: strategyID, MarketTicker: ticker, Side: side}
	var pos model.Position
	if existing, ok := e.positions[key]; ok {
		pos = *existing
	} else {
		pos = model.Position{
			StrategyID:   strategyID,
			GameID:       gameID,
			MarketTicker: ticker,
			Side:         side,
			OpenedAt:     time.Now(),
		}
	}

	oldQty := decimal.NewFromInt(pos.Quantity)
	newQty := pos.Quantity + qty
	if newQty == 0 {
		pos.Quantity = 0
		pos.IsOpen = false
		return pos
	}
	pos.AvgPrice = oldQty.Mul(pos.AvgPrice).Add(decimal.NewFromInt(qty).Mul(fill)).Div(decimal.NewFromInt(newQty))
	pos.Quantity = newQty
	pos.IsOpen = true
	pos.UpdatedAt = time.Now()
	return pos
}

// commitOpen writes a position computed by computeOpen into the book.
func (e *Engine) commitOpen(pos model.Position) *model.Position {
	stored, ok := e.positions[pos.Key()]
	if !ok {
		stored = &model.Position{}
		e.positions[pos.Key()] = stored
	}
	*stored = pos
	return stored
}

func (e *Engine) riskView(gameID, strategyID, ticker string) risk.PositionView {
	var view risk.PositionView
	for key, pos := range e.positions {
		if !pos.IsOpen {
			continue
		}
		exposure := decimal.NewFromInt(pos.Quantity).Mul(decimal.NewFromInt(100))
		view.TotalQty += pos.Quantity
		view.TotalExposure = view.TotalExposure.Add(exposure)
		if pos.GameID == gameID {
			view.GameQty += pos.Quantity
			view.GameExposure = view.GameExposure.Add(exposure)
		}
		if pos.StrategyID == strategyID {
			view.StrategyExposure = view.StrategyExposure.Add(exposure)
		}
		if key.MarketTicker == ticker {
			view.MarketQty += pos.Quantity
		}
	}
	return view
}

// persist writes an order, and its resulting position if any, through to
// storage. The caller decides what a failure means: for a rejected order
// (pos == nil) the error is logged and otherwise ignored; for a fill, the
// caller halts the engine rather than commit a position storage never
// confirmed.
func (e *Engine) persist(ctx context.Context, order model.SimulatedOrder, pos *model.Position) error {
	if err := e.st.InsertOrder(ctx, &order); err != nil {
		slog.Error("execution: failed to persist order", "order_id", order.ID, "err", err)
		return err
	}
	if pos != nil {
		if err := e.st.UpsertPosition(ctx, pos); err != nil {
			slog.Error("execution: failed to persist position", "key", pos.Key(), "err", err)
			return err
		}
	}
	return nil
}

func askPrice(book model.OrderbookState, side model.Side) (decimal.Decimal, bool) {
	if side == model.SideYes {
		if book.HasYesAsk {
			return book.YesAsk, true
		}
		return decimal.Decimal{}, false
	}
	if book.HasNoAsk {
		return book.NoAsk, true
	}
	return decimal.Decimal{}, false
}

func bidPrice(book model.OrderbookState, side model.Side) (decimal.Decimal, bool) {
	if side == model.SideYes {
		if book.HasYesBid {
			return book.YesBid, true
		}
		return decimal.Decimal{}, false
	}
	if book.HasNoBid {
		return book.NoBid, true
	}
	return decimal.Decimal{}, false
}
