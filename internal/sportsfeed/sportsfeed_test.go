package sportsfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atmx/nbapaper/internal/model"
)

func TestGamesForDate_ParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"games": []map[string]interface{}{
				{"id": "nba1", "home_team": "UTA", "away_team": "DAL", "date": "2026-01-08T19:00:00Z", "status": "scheduled"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	games, err := c.GamesForDate(context.Background(), "2026-01-08")
	if err != nil {
		t.Fatalf("GamesForDate: %v", err)
	}
	if len(games) != 1 || games[0].NBAGameID != "nba1" {
		t.Errorf("unexpected games: %+v", games)
	}
}

func TestGamesForDate_RetriesOn500(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"games": []map[string]interface{}{}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	if _, err := c.GamesForDate(context.Background(), "2026-01-08"); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if attempts < 2 {
		t.Errorf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestLiveBoxScore_ReturnsState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"period": 3, "time_remaining": "5:24", "home_score": 88, "away_score": 81, "status": "live",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	state, err := c.LiveBoxScore(context.Background(), "nba1")
	if err != nil {
		t.Fatalf("LiveBoxScore: %v", err)
	}
	if state.Period != 3 || state.HomeScore != 88 {
		t.Errorf("unexpected state: %+v", state)
	}
}

func TestOdds_ReturnsQuotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"odds": []map[string]interface{}{
				{"vendor": "draftkings", "moneyline_home": -150, "moneyline_away": 130},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	quotes, err := c.Odds(context.Background(), "nba1")
	if err != nil {
		t.Fatalf("Odds: %v", err)
	}
	if len(quotes) != 1 || quotes[0].Vendor != "draftkings" {
		t.Errorf("unexpected quotes: %+v", quotes)
	}
}

func TestMatchEventTicker_ResolvesUniqueMatch(t *testing.T) {
	candidates := []model.Game{
		{NBAGameID: "nba1", AwayTeam: "dal", HomeTeam: "uta"},
		{NBAGameID: "nba2", AwayTeam: "bos", HomeTeam: "mia"},
	}

	g, err := MatchEventTicker("KXNBAGAME-26JAN08DALUTA", candidates)
	if err != nil {
		t.Fatalf("MatchEventTicker: %v", err)
	}
	if g.NBAGameID != "nba1" {
		t.Errorf("expected nba1, got %s", g.NBAGameID)
	}
	if g.EventTicker != "KXNBAGAME-26JAN08DALUTA" {
		t.Errorf("expected EventTicker to be stamped onto the match, got %q", g.EventTicker)
	}
}

func TestMatchEventTicker_FailsOnNoMatch(t *testing.T) {
	candidates := []model.Game{{NBAGameID: "nba2", AwayTeam: "bos", HomeTeam: "mia"}}
	if _, err := MatchEventTicker("KXNBAGAME-26JAN08DALUTA", candidates); err == nil {
		t.Fatal("expected an error when no candidate matches")
	}
}

func TestMatchEventTicker_FailsOnAmbiguousMatch(t *testing.T) {
	candidates := []model.Game{
		{NBAGameID: "nba1", AwayTeam: "dal", HomeTeam: "uta"},
		{NBAGameID: "nba1-dup", AwayTeam: "DAL", HomeTeam: "UTA"},
	}
	if _, err := MatchEventTicker("KXNBAGAME-26JAN08DALUTA", candidates); err == nil {
		t.Fatal("expected an error when more than one candidate matches")
	}
}

func TestGamesForDate_DataUnavailableOnPersistentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	if _, err := c.GamesForDate(context.Background(), "2026-01-08"); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}
