// Package exchange implements the ExchangeStream client: it maintains a
// websocket connection to the exchange, subscribes to orderbook and ticker
// channels for a set of market tickers, and emits decoded Events on a
// channel for the Aggregator to consume. The read-pump/ping goroutine
// shape is turned inside out from a typical inbound WebSocket hub —
// instead of broadcasting to many inbound browser connections, one
// outbound connection is kept alive and auto-reconnected with
// cenkalti/backoff/v4 instead of hand-rolled retry counters.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/atmx/nbapaper/internal/errs"
	"github.com/atmx/nbapaper/internal/metrics"
	"github.com/atmx/nbapaper/internal/model"
)

// EventKind distinguishes the payload carried by an Event.
type EventKind string

const (
	EventSnapshot    EventKind = "orderbook_snapshot"
	EventDelta       EventKind = "orderbook_delta"
	EventTickerPrint EventKind = "ticker_print"
	EventDisconnect  EventKind = "disconnected"
	EventReconnected EventKind = "reconnected"
)

// TickerPrint is a single executed-trade print on the exchange.
type TickerPrint struct {
	MarketTicker string
	Price        decimal.Decimal
	Quantity     int64
	Side         model.Side
	Time         time.Time
}

// Event is one unit of exchange data handed to the Aggregator.
type Event struct {
	Kind      EventKind
	Orderbook model.OrderbookState
	Print     TickerPrint
	Err       error
}

// Signer produces exchange authentication headers for the stream handshake.
// A pluggable interface since signing material and the wire format it
// produces are exchange-specific and outside this engine's scope.
type Signer interface {
	SignRequest(method, path string) (map[string]string, error)
}

// NoopSigner performs no signing, for exchanges/sandboxes that don't require it.
type NoopSigner struct{}

// SignRequest returns no headers.
func (NoopSigner) SignRequest(_, _ string) (map[string]string, error) { return nil, nil }

// rawEnvelope is decoded first, purely to dispatch on message type.
type rawEnvelope struct {
	Type string `json:"type"`
}

// rawMessage mirrors the exchange's wire envelope for orderbook channels.
type rawMessage struct {
	Type   string `json:"type"`
	Market struct {
		Ticker string `json:"market_ticker"`
		Yes    struct {
			Bid  string `json:"bid"`
			Ask  string `json:"ask"`
			Size int64  `json:"bid_size"`
		} `json:"yes"`
		No struct {
			Bid  string `json:"bid"`
			Ask  string `json:"ask"`
			Size int64  `json:"bid_size"`
		} `json:"no"`
		Seq int64 `json:"seq"`
	} `json:"msg"`
}

// rawTickerMessage mirrors the exchange's wire envelope for the ticker
// (trade print) channel.
type rawTickerMessage struct {
	Type string `json:"type"`
	Msg  struct {
		Ticker string `json:"market_ticker"`
		Price  string `json:"price"`
		Count  int64  `json:"count"`
		Side   string `json:"taker_side"`
		Ts     int64  `json:"ts"`
	} `json:"msg"`
}

// Stream owns one websocket connection to the exchange and republishes
// decoded orderbook state on Events(). Call Run to start the connect/
// reconnect loop; it blocks until ctx is cancelled.
type Stream struct {
	url    string
	signer Signer

	events chan Event

	mu      sync.Mutex
	tickers []string
	conn    *websocket.Conn
	lastSeq map[string]int64
	books   map[string]model.OrderbookState
	stale   bool

	writeMu sync.Mutex
}

// NewStream creates a Stream that will subscribe to tickers once connected.
// Tickers may also be added or removed later via Subscribe/Unsubscribe.
func NewStream(url string, signer Signer, tickers []string) *Stream {
	if signer == nil {
		signer = NoopSigner{}
	}
	return &Stream{
		url:     url,
		signer:  signer,
		tickers: append([]string(nil), tickers...),
		events:  make(chan Event, 256),
		lastSeq: make(map[string]int64),
		books:   make(map[string]model.OrderbookState),
	}
}

// Events returns the channel of decoded exchange events.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Orderbook returns the current consolidated view for ticker, and whether
// the stream's state is stale (disconnected, awaiting a fresh snapshot).
func (s *Stream) Orderbook(ticker string) (ob model.OrderbookState, ok bool, stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ob, ok = s.books[ticker]
	return ob, ok, s.stale
}

// Subscribe adds tickers to the live subscription set. Idempotent: tickers
// already subscribed are ignored. If connected, an incremental subscribe
// frame is sent immediately; otherwise the tickers are queued and sent on
// the next connect.
func (s *Stream) Subscribe(tickers []string) error {
	if len(tickers) == 0 {
		return nil
	}
	s.mu.Lock()
	var added []string
	for _, t := range tickers {
		if !containsString(s.tickers, t) {
			s.tickers = append(s.tickers, t)
			added = append(added, t)
		}
	}
	conn := s.conn
	s.mu.Unlock()

	if len(added) == 0 || conn == nil {
		return nil
	}
	return s.writeSubscribe(conn, "subscribe", added)
}

// Unsubscribe removes tickers from the live subscription set. Idempotent:
// tickers not currently subscribed are ignored. If connected, an
// unsubscribe frame is sent immediately.
func (s *Stream) Unsubscribe(tickers []string) error {
	if len(tickers) == 0 {
		return nil
	}
	remove := toStringSet(tickers)

	s.mu.Lock()
	var removed []string
	remaining := s.tickers[:0]
	for _, t := range s.tickers {
		if remove[t] {
			removed = append(removed, t)
			delete(s.books, t)
			delete(s.lastSeq, t)
			continue
		}
		remaining = append(remaining, t)
	}
	s.tickers = remaining
	conn := s.conn
	s.mu.Unlock()

	if len(removed) == 0 || conn == nil {
		return nil
	}
	return s.writeSubscribe(conn, "unsubscribe", removed)
}

// Run connects, reads, and automatically reconnects with exponential
// backoff until ctx is cancelled. Each reconnect re-subscribes the full
// current ticker set and treats the next snapshot as authoritative,
// discarding any stale sequence state.
func (s *Stream) Run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry forever; ctx cancellation is the only exit

	for {
		if ctx.Err() != nil {
			close(s.events)
			return
		}

		err := s.runOnce(ctx, bo)
		if ctx.Err() != nil {
			close(s.events)
			return
		}

		metrics.ExchangeStreamReconnects.Inc()
		s.setStale(true)
		s.emit(Event{Kind: EventDisconnect, Err: err})
		slog.Warn("exchange stream disconnected, reconnecting", "err", err)

		wait := bo.NextBackOff()

		select {
		case <-ctx.Done():
			close(s.events)
			return
		case <-time.After(wait):
		}
	}
}

func (s *Stream) runOnce(ctx context.Context, bo *backoff.ExponentialBackOff) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	headers, err := s.signer.SignRequest("GET", "/ws")
	if err != nil {
		return errs.New(errs.KindAuth, "exchange.Stream.runOnce", err)
	}
	httpHeader := make(map[string][]string, len(headers))
	for k, v := range headers {
		httpHeader[k] = []string{v}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.url, httpHeader)
	if err != nil {
		return errs.New(errs.KindTransport, "exchange.Stream.runOnce", err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	s.lastSeq = make(map[string]int64) // reset: next snapshot is authoritative
	s.books = make(map[string]model.OrderbookState)
	tickers := append([]string(nil), s.tickers...)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	if len(tickers) > 0 {
		if err := s.writeSubscribe(conn, "subscribe", tickers); err != nil {
			return err
		}
	}
	s.emit(Event{Kind: EventReconnected})
	bo.Reset()

	go s.pingLoop(ctx, conn)

	for {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return errs.New(errs.KindTransport, "exchange.Stream.runOnce", err)
		}
		if err := s.handleMessage(data); err != nil {
			slog.Error("exchange stream: malformed message", "err", err)
			continue
		}
	}
}

// writeSubscribe sends a subscribe/unsubscribe command frame for tickers
// over the ticker and orderbook_delta channels.
func (s *Stream) writeSubscribe(conn *websocket.Conn, cmd string, tickers []string) error {
	frame := map[string]interface{}{
		"cmd": cmd,
		"params": map[string]interface{}{
			"channels":       []string{"ticker", "orderbook_delta"},
			"market_tickers": tickers,
		},
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(frame); err != nil {
		return errs.New(errs.KindTransport, "exchange.Stream.writeSubscribe", err)
	}
	return nil
}

func (s *Stream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *Stream) handleMessage(data []byte) error {
	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("exchange: decode message: %w", err)
	}

	switch env.Type {
	case "orderbook_snapshot", "orderbook_delta":
		return s.handleOrderbookMessage(data, env.Type)
	case "ticker":
		return s.handleTickerMessage(data)
	default:
		// Unrecognized message types (fills, errors, heartbeats) are ignored
		// at this layer; the Aggregator only consumes orderbook/ticker state.
	}
	return nil
}

func (s *Stream) handleOrderbookMessage(data []byte, msgType string) error {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("exchange: decode orderbook message: %w", err)
	}

	ob, seq, err := decodeOrderbook(raw)
	if err != nil {
		return err
	}

	inverted := ob.HasYesBid && ob.HasYesAsk && ob.YesAsk.LessThan(ob.YesBid)

	s.mu.Lock()
	last, seen := s.lastSeq[ob.MarketTicker]
	gap := msgType == "orderbook_delta" && seen && seq != last+1 && seq != 0
	resync := gap || inverted
	s.lastSeq[ob.MarketTicker] = seq
	if resync {
		delete(s.books, ob.MarketTicker)
	} else {
		s.books[ob.MarketTicker] = ob
		if msgType == "orderbook_snapshot" {
			s.stale = false
		}
	}
	conn := s.conn
	s.mu.Unlock()

	if gap {
		slog.Warn("exchange stream: sequence gap, resubscribing", "ticker", ob.MarketTicker, "last", last, "got", seq)
	}
	if inverted {
		slog.Warn("exchange stream: inverted book (yes_ask < yes_bid), resubscribing", "ticker", ob.MarketTicker, "yes_bid", ob.YesBid, "yes_ask", ob.YesAsk)
	}
	if resync && conn != nil {
		_ = s.writeSubscribe(conn, "subscribe", []string{ob.MarketTicker})
	}
	if resync {
		return nil
	}

	kind := EventDelta
	if msgType == "orderbook_snapshot" {
		kind = EventSnapshot
	}
	s.emit(Event{Kind: kind, Orderbook: ob})
	return nil
}

func (s *Stream) handleTickerMessage(data []byte) error {
	var raw rawTickerMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("exchange: decode ticker message: %w", err)
	}
	tp := TickerPrint{
		MarketTicker: raw.Msg.Ticker,
		Quantity:     raw.Msg.Count,
		Side:         model.Side(raw.Msg.Side),
		Time:         time.Unix(raw.Msg.Ts, 0),
	}
	if raw.Msg.Price != "" {
		p, err := decimal.NewFromString(raw.Msg.Price)
		if err != nil {
			return fmt.Errorf("exchange: decode ticker price: %w", err)
		}
		tp.Price = p
	}
	s.emit(Event{Kind: EventTickerPrint, Print: tp})
	return nil
}

func decodeOrderbook(raw rawMessage) (model.OrderbookState, int64, error) {
	ob := model.OrderbookState{
		MarketTicker: raw.Market.Ticker,
		LastUpdate:   time.Now(),
	}
	var err error
	if raw.Market.Yes.Bid != "" {
		if ob.YesBid, err = decimal.NewFromString(raw.Market.Yes.Bid); err != nil {
			return ob, 0, err
		}
		ob.HasYesBid = true
	}
	if raw.Market.Yes.Ask != "" {
		if ob.YesAsk, err = decimal.NewFromString(raw.Market.Yes.Ask); err != nil {
			return ob, 0, err
		}
		ob.HasYesAsk = true
	}
	if raw.Market.No.Bid != "" {
		if ob.NoBid, err = decimal.NewFromString(raw.Market.No.Bid); err != nil {
			return ob, 0, err
		}
		ob.HasNoBid = true
	}
	if raw.Market.No.Ask != "" {
		if ob.NoAsk, err = decimal.NewFromString(raw.Market.No.Ask); err != nil {
			return ob, 0, err
		}
		ob.HasNoAsk = true
	}
	ob.YesBidSize = raw.Market.Yes.Size
	ob.NoBidSize = raw.Market.No.Size
	return ob, raw.Market.Seq, nil
}

func (s *Stream) setStale(stale bool) {
	s.mu.Lock()
	s.stale = stale
	s.mu.Unlock()
}

func (s *Stream) emit(e Event) {
	select {
	case s.events <- e:
	default:
		slog.Warn("exchange stream: event buffer full, dropping event", "kind", e.Kind)
	}
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func toStringSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
