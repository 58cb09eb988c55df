package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCheck_WithinLimits(t *testing.T) {
	g := NewGate(DefaultLimits())
	d := g.Check(time.Now(), Order{Quantity: 10}, PositionView{})
	if !d.Approved {
		t.Errorf("expected approval, got %v", d.LimitErr)
	}
}

func TestCheck_MaxContractsPerMarket(t *testing.T) {
	g := NewGate(DefaultLimits())
	d := g.Check(time.Now(), Order{Quantity: 10}, PositionView{MarketQty: 95})
	if d.Approved || d.LimitErr != ErrMaxContractsPerMarket {
		t.Errorf("expected ErrMaxContractsPerMarket, got %v", d.LimitErr)
	}
}

func TestCheck_DailyLossRejection(t *testing.T) {
	// S3: max_daily_loss=1000, daily_loss already at 600, order worst-case=500.
	g := NewGate(DefaultLimits())
	g.account.DailyLoss = decimal.NewFromInt(600)

	d := g.Check(time.Now(), Order{Quantity: 5}, PositionView{})
	if d.Approved || d.LimitErr != ErrMaxDailyLoss {
		t.Errorf("expected ErrMaxDailyLoss, got %v", d.LimitErr)
	}
	if !d.Current.Equal(decimal.NewFromInt(600)) {
		t.Errorf("expected current=600, got %s", d.Current)
	}
}

func TestCheck_CooldownActive(t *testing.T) {
	g := NewGate(DefaultLimits())
	now := time.Now()
	g.account.ConsecutiveLosses = 3
	g.account.CooldownUntil = now.Add(time.Minute)

	d := g.Check(now, Order{Quantity: 1}, PositionView{})
	if d.Approved || d.LimitErr != ErrCooldownActive {
		t.Errorf("expected ErrCooldownActive, got %v", d.LimitErr)
	}
}

func TestCheck_CooldownExpired(t *testing.T) {
	g := NewGate(DefaultLimits())
	now := time.Now()
	g.account.ConsecutiveLosses = 3
	g.account.CooldownUntil = now.Add(-time.Minute)

	d := g.Check(now, Order{Quantity: 1}, PositionView{})
	if !d.Approved {
		t.Errorf("expected approval after cooldown expiry, got %v", d.LimitErr)
	}
}

func TestRecord_ConsecutiveLossesTriggerCooldown(t *testing.T) {
	g := NewGate(DefaultLimits())
	now := time.Now()

	for i := 0; i < 3; i++ {
		g.Record(now, decimal.NewFromInt(-10))
	}

	acct := g.Account()
	if acct.ConsecutiveLosses != 3 {
		t.Errorf("expected 3 consecutive losses, got %d", acct.ConsecutiveLosses)
	}
	if !acct.CooldownUntil.After(now) {
		t.Errorf("expected cooldown to be set after loss streak")
	}
}

func TestRecord_WinResetsStreak(t *testing.T) {
	g := NewGate(DefaultLimits())
	now := time.Now()
	g.Record(now, decimal.NewFromInt(-10))
	g.Record(now, decimal.NewFromInt(-10))
	g.Record(now, decimal.NewFromInt(50))

	acct := g.Account()
	if acct.ConsecutiveLosses != 0 {
		t.Errorf("expected streak reset on win, got %d", acct.ConsecutiveLosses)
	}
}

func TestCheck_DisabledAlwaysApproves(t *testing.T) {
	g := NewGate(DefaultLimits())
	g.SetEnabled(false)

	d := g.Check(time.Now(), Order{Quantity: 100000}, PositionView{MarketQty: 99999})
	if !d.Approved {
		t.Errorf("expected approval while disabled, got %v", d.LimitErr)
	}
}

func TestCheck_HourlyWindowRollsRatherThanResettingAtClockBoundary(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxOrdersPerHour = 5
	g := NewGate(limits)

	// Fill the quota just before the top of the hour.
	base := time.Date(2026, time.January, 8, 12, 59, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		g.Record(base, decimal.Zero)
	}

	d := g.Check(base, Order{Quantity: 1}, PositionView{})
	if d.Approved || d.LimitErr != ErrMaxOrdersPerHour {
		t.Fatalf("expected the quota to already be exhausted, got %v", d.LimitErr)
	}

	// One minute later (now in the next calendar hour), a true rolling
	// window still counts the 5 orders placed 60 seconds ago.
	afterHourBoundary := base.Add(time.Minute)
	d = g.Check(afterHourBoundary, Order{Quantity: 1}, PositionView{})
	if d.Approved {
		t.Error("expected the rolling hourly window to still reject, a fixed calendar-hour bucket would have reset here")
	}

	// An hour and a minute after the first order, the window has fully
	// rolled past it and capacity is available again.
	afterWindow := base.Add(time.Hour + time.Minute)
	d = g.Check(afterWindow, Order{Quantity: 1}, PositionView{})
	if !d.Approved {
		t.Errorf("expected approval once the rolling window has passed, got %v", d.LimitErr)
	}
}

func TestCheck_DisabledStillRecords(t *testing.T) {
	g := NewGate(DefaultLimits())
	g.SetEnabled(false)
	g.Record(time.Now(), decimal.NewFromInt(-10))

	acct := g.Account()
	if acct.DailyLoss.IsZero() {
		t.Error("expected Record to accrue even while disabled")
	}
}
