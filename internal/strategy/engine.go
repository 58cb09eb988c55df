// Package strategy (continued): Engine drives the five strategy kinds on
// a shared evaluation loop over every loaded, non-finished game. Its
// cadence follows the same drift-compensated tick shape as the
// aggregator's pollers, generalized from a single external poll to a
// fan-out over every (strategy, game) pair.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atmx/nbapaper/internal/errs"
	"github.com/atmx/nbapaper/internal/execution"
	"github.com/atmx/nbapaper/internal/metrics"
	"github.com/atmx/nbapaper/internal/model"
	"github.com/atmx/nbapaper/internal/store"
)

// evalSoftBudget is the per-evaluation wall-time budget. Exceeding it is
// logged, not aborted.
const evalSoftBudget = 500 * time.Millisecond

// GameSource is the read surface an Engine needs from the Aggregator.
type GameSource interface {
	ActiveGameIDs() []string
	GameState(gameID string) (model.GameState, bool)
}

// Executor routes an approved TradeSignal through the ExecutionEngine.
type Executor interface {
	Execute(ctx context.Context, signal model.TradeSignal) (model.SimulatedOrder, error)
}

// Engine evaluates every enabled strategy instance against every loaded,
// non-finished game on a fixed tick, and routes emitted signals to an
// Executor.
type Engine struct {
	st    store.Store
	games GameSource
	exec  Executor

	interval time.Duration

	mu         sync.Mutex
	strategies []Strategy

	inFlightMu sync.Mutex
	inFlight   map[string]bool
}

// New creates a StrategyEngine. interval is the evaluation tick period
// (default 2s; callers read it from the configured
// evaluation_interval).
func New(st store.Store, games GameSource, exec Executor, interval time.Duration) *Engine {
	return &Engine{
		st:       st,
		games:    games,
		exec:     exec,
		interval: interval,
		inFlight: make(map[string]bool),
	}
}

// Register adds a strategy instance. Multiple instances of the same kind
// are permitted; each keeps independent cooldown and history state.
func (e *Engine) Register(s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies = append(e.strategies, s)
}

// Strategies returns the currently registered instances.
func (e *Engine) Strategies() []Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Strategy, len(e.strategies))
	copy(out, e.strategies)
	return out
}

// Run starts the evaluation loop on a drift-compensated ticker and blocks
// until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	next := time.Now()
	for {
		next = next.Add(e.interval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}
		e.tick(ctx)
	}
}

// tick fans out one evaluation pass over every (strategy, game) pair that
// isn't already mid-evaluation. A tick that finds a pair busy skips it
// rather than queuing.
func (e *Engine) tick(ctx context.Context) {
	strategies := e.Strategies()
	gameIDs := e.games.ActiveGameIDs()

	for _, s := range strategies {
		for _, gameID := range gameIDs {
			key := s.ID() + "|" + gameID
			if !e.claim(key) {
				continue
			}
			go func(s Strategy, gameID, key string) {
				defer e.release(key)
				defer func() {
					if r := recover(); r != nil {
						err := errs.New(errs.KindInvariantViolation, "strategy.Engine.tick", fmt.Errorf("panic: %v", r))
						slog.Error("strategy: evaluation panicked, isolated to this pair", "strategy", s.ID(), "game", gameID, "err", err)
					}
				}()
				e.evaluateOne(ctx, s, gameID)
			}(s, gameID, key)
		}
	}
}

func (e *Engine) claim(key string) bool {
	e.inFlightMu.Lock()
	defer e.inFlightMu.Unlock()
	if e.inFlight[key] {
		return false
	}
	e.inFlight[key] = true
	return true
}

func (e *Engine) release(key string) {
	e.inFlightMu.Lock()
	defer e.inFlightMu.Unlock()
	delete(e.inFlight, key)
}

func (e *Engine) evaluateOne(ctx context.Context, s Strategy, gameID string) {
	gs, ok := e.games.GameState(gameID)
	if !ok || gs.Game.Phase == model.PhaseFinished {
		return
	}

	markets, err := e.st.ListMarketsByGame(ctx, gameID)
	if err != nil {
		slog.Error("strategy: failed to list markets", "game", gameID, "strategy", s.ID(), "err", err)
		return
	}

	odds := make([]model.OddsQuote, 0, len(gs.Odds))
	for _, q := range gs.Odds {
		odds = append(odds, q)
	}

	start := time.Now()
	signals := s.Evaluate(start, gs, markets, odds)
	elapsed := time.Since(start)
	metrics.StrategyEvalDuration.WithLabelValues(string(s.Kind())).Observe(elapsed.Seconds())
	if elapsed > evalSoftBudget {
		slog.Warn("strategy: evaluation exceeded soft budget", "strategy", s.ID(), "game", gameID, "elapsed", elapsed)
	}

	for _, sig := range signals {
		metrics.SignalsEmittedTotal.WithLabelValues(sig.StrategyKind, string(sig.Side)).Inc()
		if e.exec == nil {
			continue
		}
		if _, err := e.exec.Execute(ctx, sig); err != nil {
			slog.Info("strategy: signal not executed", "strategy", s.ID(), "market", sig.MarketTicker, "err", err)
		}
	}
}

var _ Executor = (*execution.Engine)(nil)
