// Package sportsfeed implements the SportsFeed client: a bounded-retry
// HTTP client over the sports-data provider's live box-score and odds
// endpoints. Built on go-resty/resty/v2, whose declarative retry
// configuration handles "a few attempts, honor Retry-After, give up and
// surface the error" without hand-rolled retry counters.
package sportsfeed

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/atmx/nbapaper/internal/errs"
	"github.com/atmx/nbapaper/internal/model"
	"github.com/atmx/nbapaper/internal/ticker"
)

const maxRetries = 3

// Client wraps a resty.Client configured against the sports-data provider.
type Client struct {
	rc *resty.Client
}

// NewClient creates a Client against baseURL, authenticating with apiKey
// and retrying transient failures up to maxRetries times honoring
// Retry-After when present.
func NewClient(baseURL, apiKey string) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
		})

	rc.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		r.ForceContentType("application/json")
		return nil
	})

	rc.SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
		if resp == nil {
			return 0, nil
		}
		if v := resp.Header().Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				return time.Duration(secs) * time.Second, nil
			}
		}
		return 0, nil
	})

	return &Client{rc: rc}
}

type gamesForDateResponse struct {
	Games []struct {
		ID       string `json:"id"`
		HomeTeam string `json:"home_team"`
		AwayTeam string `json:"away_team"`
		Date     string `json:"date"`
		Status   string `json:"status"`
	} `json:"games"`
}

// GamesForDate returns the scheduled games for the given date (YYYY-MM-DD),
// used by the Aggregator to discover candidate games to load.
func (c *Client) GamesForDate(ctx context.Context, date string) ([]model.Game, error) {
	var body gamesForDateResponse
	resp, err := c.rc.R().SetContext(ctx).SetQueryParam("date", date).SetResult(&body).Get("/games")
	if err != nil {
		return nil, errs.New(errs.KindTransport, "sportsfeed.GamesForDate", err)
	}
	if resp.IsError() {
		return nil, errs.New(errs.KindDataUnavailable, "sportsfeed.GamesForDate", fmt.Errorf("status %d", resp.StatusCode()))
	}

	games := make([]model.Game, 0, len(body.Games))
	for _, g := range body.Games {
		gameDate, _ := time.Parse(time.RFC3339, g.Date)
		games = append(games, model.Game{
			NBAGameID: g.ID,
			HomeTeam:  g.HomeTeam,
			AwayTeam:  g.AwayTeam,
			GameDate:  gameDate,
			Phase:     MapStatus(g.Status),
		})
	}
	return games, nil
}

type boxScoreResponse struct {
	Period        int    `json:"period"`
	TimeRemaining string `json:"time_remaining"`
	HomeScore     int    `json:"home_score"`
	AwayScore     int    `json:"away_score"`
	Status        string `json:"status"`
}

// LiveBoxScore fetches the current scoreboard state for nbaGameID.
func (c *Client) LiveBoxScore(ctx context.Context, nbaGameID string) (model.NBALiveState, error) {
	var body boxScoreResponse
	resp, err := c.rc.R().SetContext(ctx).SetResult(&body).Get("/games/" + nbaGameID + "/boxscore")
	if err != nil {
		return model.NBALiveState{}, errs.New(errs.KindTransport, "sportsfeed.LiveBoxScore", err)
	}
	if resp.IsError() {
		return model.NBALiveState{}, errs.New(errs.KindDataUnavailable, "sportsfeed.LiveBoxScore", fmt.Errorf("status %d", resp.StatusCode()))
	}

	return model.NBALiveState{
		GameID:        nbaGameID,
		Period:        body.Period,
		TimeRemaining: body.TimeRemaining,
		HomeScore:     body.HomeScore,
		AwayScore:     body.AwayScore,
		GameStatus:    body.Status,
		LastUpdate:    time.Now(),
	}, nil
}

type oddsResponse struct {
	Odds []struct {
		Vendor         string  `json:"vendor"`
		MoneylineHome  int     `json:"moneyline_home"`
		MoneylineAway  int     `json:"moneyline_away"`
		SpreadValue    float64 `json:"spread_value"`
		SpreadHomeOdds int     `json:"spread_home_odds"`
		SpreadAwayOdds int     `json:"spread_away_odds"`
		TotalValue     float64 `json:"total_value"`
		TotalOverOdds  int     `json:"total_over_odds"`
		TotalUnderOdds int     `json:"total_under_odds"`
	} `json:"odds"`
}

// Odds fetches the current multi-vendor odds quotes for nbaGameID.
func (c *Client) Odds(ctx context.Context, nbaGameID string) ([]model.OddsQuote, error) {
	var body oddsResponse
	resp, err := c.rc.R().SetContext(ctx).SetResult(&body).Get("/games/" + nbaGameID + "/odds")
	if err != nil {
		return nil, errs.New(errs.KindTransport, "sportsfeed.Odds", err)
	}
	if resp.IsError() {
		return nil, errs.New(errs.KindDataUnavailable, "sportsfeed.Odds", fmt.Errorf("status %d", resp.StatusCode()))
	}

	quotes := make([]model.OddsQuote, 0, len(body.Odds))
	for _, o := range body.Odds {
		quotes = append(quotes, model.OddsQuote{
			GameID:         nbaGameID,
			Vendor:         o.Vendor,
			MoneylineHome:  o.MoneylineHome,
			MoneylineAway:  o.MoneylineAway,
			SpreadValue:    decimal.NewFromFloat(o.SpreadValue),
			SpreadHomeOdds: o.SpreadHomeOdds,
			SpreadAwayOdds: o.SpreadAwayOdds,
			TotalValue:     decimal.NewFromFloat(o.TotalValue),
			TotalOverOdds:  o.TotalOverOdds,
			TotalUnderOdds: o.TotalUnderOdds,
			LastUpdate:     time.Now(),
		})
	}
	return quotes, nil
}

// MatchEventTicker resolves an exchange event ticker to the one game in
// candidates whose away and home team abbreviations case-fold match the
// ticker's encoded teams. Ambiguity (zero or more than one match) fails
// with errs.KindDataUnavailable rather than guessing.
func MatchEventTicker(eventTicker string, candidates []model.Game) (model.Game, error) {
	evt, err := ticker.ParseEvent(eventTicker)
	if err != nil {
		return model.Game{}, err
	}

	var match model.Game
	matches := 0
	for _, g := range candidates {
		if strings.EqualFold(g.AwayTeam, evt.AwayTeam) && strings.EqualFold(g.HomeTeam, evt.HomeTeam) {
			match = g
			matches++
		}
	}
	if matches != 1 {
		return model.Game{}, errs.New(errs.KindDataUnavailable, "sportsfeed.MatchEventTicker",
			fmt.Errorf("no unambiguous game for %s: %d candidates matched", evt.Ticker, matches))
	}
	match.EventTicker = evt.Ticker
	return match, nil
}

// MapStatus normalizes a provider status string to a GamePhase. Shared by
// GamesForDate's initial discovery and the Aggregator's live poller, so a
// game's phase is re-derived the same way wherever the provider's status is
// read.
func MapStatus(providerStatus string) model.GamePhase {
	switch providerStatus {
	case "in_progress", "live", "halftime":
		return model.PhaseLive
	case "final", "completed", "cancelled", "canceled":
		return model.PhaseFinished
	default:
		return model.PhaseScheduled
	}
}
