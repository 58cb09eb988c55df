// Package aggregator implements the Aggregator: it owns the GameState
// cache, loads/unloads games as they approach and leave their live
// window, drives drift-compensated NBA/odds pollers, routes
// ExchangeStream events into the cache, and fans typed events out to
// subscribers (the StrategyEngine). The fan-out shape — a registry of
// per-subscriber buffered channels that publish writes to directly —
// keeps subscribers decoupled from a typed Event instead of raw JSON
// bytes, so the StrategyEngine doesn't unmarshal its own input.
package aggregator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/nbapaper/internal/exchange"
	"github.com/atmx/nbapaper/internal/metrics"
	"github.com/atmx/nbapaper/internal/model"
	"github.com/atmx/nbapaper/internal/sportsfeed"
	"github.com/atmx/nbapaper/internal/store"
	"github.com/atmx/nbapaper/internal/ticker"
)

// EventKind distinguishes the supplemental events the Aggregator publishes
// in addition to per-game data updates.
type EventKind string

const (
	EventGameLoaded   EventKind = "game_loaded"
	EventGameUnloaded EventKind = "game_unloaded"
	EventGameUpdated  EventKind = "game_updated"
)

// Event is published to subscribers whenever a game's cached state changes
// or a game's lifecycle transitions.
type Event struct {
	Kind   EventKind
	GameID string
	State  model.GameState
}

// EventPublisher optionally durably records Events, e.g. to Kafka. Nil is a
// valid Publisher: events are still fanned out to in-process subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers and cancels interest in exchange market tickers.
// Satisfied by *exchange.Stream; a narrow interface here so the Aggregator
// depends only on the subscription surface it actually calls.
type Subscriber interface {
	Subscribe(tickers []string) error
	Unsubscribe(tickers []string) error
}

// Aggregator owns the GameState cache exclusively; all mutation is
// serialized under mu through do, a single writer for this shared
// resource.
type Aggregator struct {
	st          store.Store
	sports      *sportsfeed.Client
	publisher   EventPublisher
	exchangeSub Subscriber

	nbaPollInterval       time.Duration
	oddsPollInterval      time.Duration
	discoveryPollInterval time.Duration

	mu          sync.RWMutex
	games       map[string]*model.GameState
	gameTickers map[string][]string // gameID -> subscribed market tickers

	subMu sync.Mutex
	subs  map[string]chan Event

	exchangeEvents <-chan exchange.Event
}

// New creates an Aggregator. exchangeEvents may be nil if no live exchange
// feed is wired yet (e.g. in tests that only exercise NBA/odds polling).
// sub may also be nil, in which case LoadGame/UnloadGame skip exchange
// subscription management entirely. A discoveryPollInterval of zero or
// less falls back to five minutes.
func New(st store.Store, sports *sportsfeed.Client, publisher EventPublisher, sub Subscriber, exchangeEvents <-chan exchange.Event, nbaPollInterval, oddsPollInterval, discoveryPollInterval time.Duration) *Aggregator {
	if discoveryPollInterval <= 0 {
		discoveryPollInterval = 5 * time.Minute
	}
	return &Aggregator{
		st:                    st,
		sports:                sports,
		publisher:             publisher,
		exchangeSub:           sub,
		nbaPollInterval:       nbaPollInterval,
		oddsPollInterval:      oddsPollInterval,
		discoveryPollInterval: discoveryPollInterval,
		games:                 make(map[string]*model.GameState),
		gameTickers:           make(map[string][]string),
		subs:                  make(map[string]chan Event),
		exchangeEvents:        exchangeEvents,
	}
}

// Subscribe registers a new buffered channel of Events and returns it along
// with an unsubscribe function. Backpressure policy: if a subscriber falls
// behind, the oldest buffered event is dropped rather than blocking the
// Aggregator's run loop.
func (a *Aggregator) Subscribe() (<-chan Event, func()) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	id := uuid.New().String()
	ch := make(chan Event, 128)
	a.subs[id] = ch
	return ch, func() {
		a.subMu.Lock()
		defer a.subMu.Unlock()
		if c, ok := a.subs[id]; ok {
			delete(a.subs, id)
			close(c)
		}
	}
}

// LoadGame hydrates a game for tracking: it caches the GameState, persists
// the game row, registers ExchangeStream subscriptions for every market
// already known for this game, and emits GameLoaded.
func (a *Aggregator) LoadGame(ctx context.Context, g model.Game) {
	markets, err := a.st.ListMarketsByGame(ctx, g.ID)
	if err != nil {
		slog.Error("aggregator: failed to list markets for game", "game", g.ID, "err", err)
	}
	tickers := make([]string, 0, len(markets))
	for _, m := range markets {
		tickers = append(tickers, m.Ticker)
	}

	a.do(func() {
		state := &model.GameState{Game: g}
		a.games[g.ID] = state
		a.gameTickers[g.ID] = tickers
		_ = a.st.UpsertGame(ctx, &g)
		metrics.ActiveGames.Set(float64(len(a.games)))
		a.publish(ctx, Event{Kind: EventGameLoaded, GameID: g.ID, State: *state})
	})

	if a.exchangeSub != nil && len(tickers) > 0 {
		if err := a.exchangeSub.Subscribe(tickers); err != nil {
			slog.Error("aggregator: exchange subscribe failed", "game", g.ID, "err", err)
		}
	}
}

// UnloadGame cancels polling interest in a game, unsubscribes its exchange
// tickers that aren't also needed by another loaded game, drops its
// GameState, and emits GameUnloaded.
func (a *Aggregator) UnloadGame(ctx context.Context, gameID string) {
	var tickers []string
	a.do(func() {
		state, ok := a.games[gameID]
		if !ok {
			return
		}
		tickers = a.gameTickers[gameID]
		delete(a.games, gameID)
		delete(a.gameTickers, gameID)
		metrics.ActiveGames.Set(float64(len(a.games)))
		a.publish(ctx, Event{Kind: EventGameUnloaded, GameID: gameID, State: *state})
	})

	if a.exchangeSub == nil || len(tickers) == 0 {
		return
	}

	a.mu.RLock()
	stillNeeded := make(map[string]bool)
	for id, ts := range a.gameTickers {
		if id == gameID {
			continue
		}
		for _, t := range ts {
			stillNeeded[t] = true
		}
	}
	a.mu.RUnlock()

	var toUnsub []string
	for _, t := range tickers {
		if !stillNeeded[t] {
			toUnsub = append(toUnsub, t)
		}
	}
	if len(toUnsub) == 0 {
		return
	}
	if err := a.exchangeSub.Unsubscribe(toUnsub); err != nil {
		slog.Error("aggregator: exchange unsubscribe failed", "game", gameID, "err", err)
	}
}

// GameState returns a copy of the cached state for gameID.
func (a *Aggregator) GameState(gameID string) (model.GameState, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.games[gameID]
	if !ok {
		return model.GameState{}, false
	}
	return *s, true
}

// Orderbook satisfies execution.OrderbookLookup by scanning loaded games
// for the requested market ticker.
func (a *Aggregator) Orderbook(marketTicker string) (model.OrderbookState, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, s := range a.games {
		if ob, ok := s.Orderbooks[marketTicker]; ok {
			return ob, true
		}
	}
	return model.OrderbookState{}, false
}

// ActiveGameIDs returns the IDs of all currently loaded games.
func (a *Aggregator) ActiveGameIDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]string, 0, len(a.games))
	for id := range a.games {
		ids = append(ids, id)
	}
	return ids
}

// Run starts the poller and exchange-routing goroutines and blocks until
// ctx is cancelled, at which point all subscriber channels are closed.
func (a *Aggregator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.pollLoop(ctx, a.nbaPollInterval, "nba", a.pollNBA)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.pollLoop(ctx, a.oddsPollInterval, "odds", a.pollOdds)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.pollLoop(ctx, a.discoveryPollInterval, "discovery", a.discoverGames)
	}()

	if a.exchangeEvents != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.routeExchangeEvents(ctx)
		}()
	}

	<-ctx.Done()
	wg.Wait()

	a.subMu.Lock()
	defer a.subMu.Unlock()
	for id, ch := range a.subs {
		close(ch)
		delete(a.subs, id)
	}
}

// do mutates the GameState cache exclusively under a.mu — a single writer
// for this shared resource. Safe to call from any goroutine, before or
// after Run has started.
func (a *Aggregator) do(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn()
}

// pollLoop runs fn on a drift-compensated ticker: each iteration's next
// deadline is computed from the loop's start time rather than accumulated
// sleep durations, so slow iterations don't compound delay.
func (a *Aggregator) pollLoop(ctx context.Context, interval time.Duration, name string, fn func(ctx context.Context)) {
	next := time.Now()
	for {
		next = next.Add(interval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}
		start := time.Now()
		fn(ctx)
		metrics.PollerLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

// discoverGames polls the sports feed's schedule for today and tomorrow,
// matches each scheduled, non-finished game to its exchange event ticker,
// and loads or unloads games so the active set tracks what's on the board.
func (a *Aggregator) discoverGames(ctx context.Context) {
	now := time.Now()
	var candidates []model.Game
	for _, d := range []time.Time{now, now.Add(24 * time.Hour)} {
		games, err := a.sports.GamesForDate(ctx, d.Format("2006-01-02"))
		if err != nil {
			slog.Error("aggregator: game discovery poll failed", "date", d.Format("2006-01-02"), "err", err)
			continue
		}
		candidates = append(candidates, games...)
	}

	wanted := make(map[string]model.Game)
	for _, g := range candidates {
		if g.Phase == model.PhaseFinished {
			continue
		}
		evtTicker, err := ticker.BuildEventTicker(g.GameDate, g.AwayTeam, g.HomeTeam)
		if err != nil {
			slog.Warn("aggregator: could not build event ticker for scheduled game", "nba_game_id", g.NBAGameID, "err", err)
			continue
		}
		matched, err := sportsfeed.MatchEventTicker(evtTicker, candidates)
		if err != nil {
			slog.Warn("aggregator: could not match scheduled game to an event ticker", "nba_game_id", g.NBAGameID, "err", err)
			continue
		}
		matched.ID = matched.NBAGameID
		wanted[matched.ID] = matched
	}

	active := make(map[string]bool)
	for _, id := range a.ActiveGameIDs() {
		active[id] = true
	}

	for id, g := range wanted {
		if !active[id] {
			a.LoadGame(ctx, g)
		}
	}
	for id := range active {
		if _, ok := wanted[id]; !ok {
			a.UnloadGame(ctx, id)
		}
	}
}

func (a *Aggregator) pollNBA(ctx context.Context) {
	for _, gameID := range a.ActiveGameIDs() {
		a.mu.RLock()
		state, ok := a.games[gameID]
		a.mu.RUnlock()
		if !ok {
			continue
		}
		live, err := a.sports.LiveBoxScore(ctx, state.Game.NBAGameID)
		if err != nil {
			slog.Error("aggregator: nba poll failed", "game", gameID, "err", err)
			continue
		}
		a.do(func() {
			s, ok := a.games[gameID]
			if !ok {
				return
			}
			s.ApplyNBA(live)
			s.SetPhase(sportsfeed.MapStatus(live.GameStatus))
			_ = a.st.InsertNBALiveState(ctx, live)
			a.publish(ctx, Event{Kind: EventGameUpdated, GameID: gameID, State: *s})
		})
	}
}

func (a *Aggregator) pollOdds(ctx context.Context) {
	for _, gameID := range a.ActiveGameIDs() {
		a.mu.RLock()
		state, ok := a.games[gameID]
		a.mu.RUnlock()
		if !ok {
			continue
		}
		quotes, err := a.sports.Odds(ctx, state.Game.NBAGameID)
		if err != nil {
			slog.Error("aggregator: odds poll failed", "game", gameID, "err", err)
			continue
		}
		a.do(func() {
			s, ok := a.games[gameID]
			if !ok {
				return
			}
			for _, q := range quotes {
				s.ApplyOdds(q)
				_ = a.st.InsertOddsQuote(ctx, q)
			}
			a.publish(ctx, Event{Kind: EventGameUpdated, GameID: gameID, State: *s})
		})
	}
}

func (a *Aggregator) routeExchangeEvents(ctx context.Context) {
	for ev := range a.exchangeEvents {
		switch ev.Kind {
		case exchange.EventSnapshot, exchange.EventDelta:
			evCopy := ev
			a.do(func() {
				gameID, ok := a.gameIDForTicker(evCopy.Orderbook.MarketTicker)
				if !ok {
					return
				}
				s := a.games[gameID]
				s.ApplyOrderbook(evCopy.Orderbook)
				_ = a.st.InsertOrderbookSnapshot(ctx, evCopy.Orderbook)
				a.publish(ctx, Event{Kind: EventGameUpdated, GameID: gameID, State: *s})
			})
		case exchange.EventTickerPrint:
			slog.Debug("aggregator: trade print", "ticker", ev.Print.MarketTicker, "price", ev.Print.Price, "qty", ev.Print.Quantity, "side", ev.Print.Side)
		case exchange.EventDisconnect:
			slog.Warn("aggregator: exchange disconnected", "err", ev.Err)
		case exchange.EventReconnected:
			slog.Info("aggregator: exchange reconnected, next snapshot is authoritative")
		}
	}
}

// gameIDForTicker resolves a market ticker to a loaded game by parsing its
// event-ticker prefix. Must be called with a.mu held.
func (a *Aggregator) gameIDForTicker(marketTicker string) (string, bool) {
	evt, _, err := ticker.SplitMarketTicker(marketTicker)
	if err != nil {
		return "", false
	}
	for id, s := range a.games {
		if s.Game.EventTicker == evt {
			return id, true
		}
	}
	return "", false
}

// publish fans e out to all subscribers, dropping the oldest buffered
// event for any subscriber that is full, and durably records it if a
// publisher is configured. Must be called with a.mu held (already the
// case from every caller inside the run loop).
func (a *Aggregator) publish(ctx context.Context, e Event) {
	if a.publisher != nil {
		if err := a.publisher.Publish(ctx, e); err != nil {
			slog.Error("aggregator: event publish failed", "err", err)
		}
	}

	a.subMu.Lock()
	defer a.subMu.Unlock()
	for _, ch := range a.subs {
		select {
		case ch <- e:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- e:
			default:
			}
		}
	}
}
