package exchange

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDecodeOrderbook_BothSidesPresent(t *testing.T) {
	raw := rawMessage{}
	raw.Market.Ticker = "KXNBAGAME-26JAN08DALUTA-Y"
	raw.Market.Yes.Bid = "54"
	raw.Market.Yes.Ask = "56"
	raw.Market.No.Bid = "44"
	raw.Market.No.Ask = "46"
	raw.Market.Seq = 5

	ob, seq, err := decodeOrderbook(raw)
	if err != nil {
		t.Fatalf("decodeOrderbook: %v", err)
	}
	if seq != 5 {
		t.Errorf("expected seq 5, got %d", seq)
	}
	if !ob.HasYesBid || !ob.YesBid.Equal(decimal.NewFromInt(54)) {
		t.Errorf("unexpected yes bid: %+v", ob)
	}
	if !ob.HasNoAsk || !ob.NoAsk.Equal(decimal.NewFromInt(46)) {
		t.Errorf("unexpected no ask: %+v", ob)
	}
}

func TestDecodeOrderbook_OneSidedBook(t *testing.T) {
	raw := rawMessage{}
	raw.Market.Ticker = "KXNBAGAME-26JAN08DALUTA-Y"
	raw.Market.Yes.Ask = "60"

	ob, _, err := decodeOrderbook(raw)
	if err != nil {
		t.Fatalf("decodeOrderbook: %v", err)
	}
	if ob.HasYesBid {
		t.Error("expected no yes bid")
	}
	if !ob.HasYesAsk {
		t.Error("expected yes ask present")
	}
}

func TestHandleMessage_SnapshotEmitsEvent(t *testing.T) {
	s := NewStream("wss://example.invalid/ws", nil, []string{"KXNBAGAME-26JAN08DALUTA-Y"})

	msg := map[string]interface{}{
		"type": "orderbook_snapshot",
		"msg": map[string]interface{}{
			"market_ticker": "KXNBAGAME-26JAN08DALUTA-Y",
			"yes":           map[string]interface{}{"bid": "54", "ask": "56"},
			"no":            map[string]interface{}{"bid": "44", "ask": "46"},
			"seq":           1,
		},
	}
	data, _ := json.Marshal(msg)

	if err := s.handleMessage(data); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}

	select {
	case ev := <-s.events:
		if ev.Kind != EventSnapshot {
			t.Errorf("expected snapshot event, got %s", ev.Kind)
		}
		if ev.Orderbook.MarketTicker != "KXNBAGAME-26JAN08DALUTA-Y" {
			t.Errorf("unexpected ticker: %s", ev.Orderbook.MarketTicker)
		}
	default:
		t.Fatal("expected an event to be emitted")
	}
}

func TestHandleMessage_SequenceGapTriggersResubscribe(t *testing.T) {
	s := NewStream("wss://example.invalid/ws", nil, []string{"T-Y"})
	s.lastSeq["T-Y"] = 5

	msg := map[string]interface{}{
		"type": "orderbook_delta",
		"msg": map[string]interface{}{
			"market_ticker": "T-Y",
			"yes":           map[string]interface{}{"bid": "50"},
			"no":            map[string]interface{}{"bid": "48"},
			"seq":           9, // gap: expected 6
		},
	}
	data, _ := json.Marshal(msg)

	// conn is nil so resubscribe is skipped, but the gap branch must not panic.
	if err := s.handleMessage(data); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if s.lastSeq["T-Y"] != 9 {
		t.Errorf("expected lastSeq updated to 9, got %d", s.lastSeq["T-Y"])
	}
}

func TestHandleMessage_InvertedBookTriggersResubscribeWithoutPublishing(t *testing.T) {
	s := NewStream("wss://example.invalid/ws", nil, []string{"T-Y"})

	msg := map[string]interface{}{
		"type": "orderbook_snapshot",
		"msg": map[string]interface{}{
			"market_ticker": "T-Y",
			"yes":           map[string]interface{}{"bid": "60", "ask": "40"}, // inverted: ask < bid
			"seq":           1,
		},
	}
	data, _ := json.Marshal(msg)

	if err := s.handleMessage(data); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}

	if _, ok := s.books["T-Y"]; ok {
		t.Error("expected an inverted book to be discarded, not cached")
	}

	select {
	case ev := <-s.events:
		t.Errorf("expected no event published for an inverted book, got %+v", ev)
	default:
	}
}

func TestHandleMessage_UnknownTypeIgnored(t *testing.T) {
	s := NewStream("wss://example.invalid/ws", nil, nil)
	msg := map[string]interface{}{"type": "fill"}
	data, _ := json.Marshal(msg)

	if err := s.handleMessage(data); err != nil {
		t.Fatalf("handleMessage should ignore unknown types, got: %v", err)
	}
	select {
	case ev := <-s.events:
		t.Fatalf("expected no event for unknown type, got %v", ev)
	default:
	}
}
