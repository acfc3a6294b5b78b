package model

import "testing"

// --- Buy path tests ---

func TestApplyTrade_FirstBuySetsAverage(t *testing.T) {
	pos := NewPosition("alice", "market-1", OutcomeYes, testNow)

	// 100 shares for 50 base units: average = 50*1e6/100 = 500,000.
	if err := pos.ApplyTrade(100, 50, testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.Shares != 100 {
		t.Errorf("expected 100 shares, got %d", pos.Shares)
	}
	if pos.AveragePrice != 500_000 {
		t.Errorf("expected average price 500000, got %d", pos.AveragePrice)
	}
	if pos.TotalInvested != 50 {
		t.Errorf("expected total invested 50, got %d", pos.TotalInvested)
	}
}

func TestApplyTrade_SecondBuyReweightsAverage(t *testing.T) {
	pos := NewPosition("alice", "market-1", OutcomeYes, testNow)
	if err := pos.ApplyTrade(100, 50, testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 100 more shares for 150: average = 200*1e6/200... (50+150)*1e6/200 = 1,000,000.
	if err := pos.ApplyTrade(100, 150, testNow+1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.AveragePrice != 1_000_000 {
		t.Errorf("expected average price 1000000, got %d", pos.AveragePrice)
	}
	if pos.TotalInvested != 200 {
		t.Errorf("expected total invested 200, got %d", pos.TotalInvested)
	}
}

// --- Sell path tests ---

func TestApplyTrade_PartialSellRealizesPnL(t *testing.T) {
	pos := NewPosition("alice", "market-1", OutcomeYes, testNow)
	if err := pos.ApplyTrade(100, 50, testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Sell 40 for 25: cost basis = 40*500,000/1e6 = 20, realized = +5.
	if err := pos.ApplyTrade(-40, 25, testNow+1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.Shares != 60 {
		t.Errorf("expected 60 shares, got %d", pos.Shares)
	}
	if pos.TotalInvested != 30 {
		t.Errorf("expected total invested 30, got %d", pos.TotalInvested)
	}
	if pos.RealizedPnL != 5 {
		t.Errorf("expected realized pnl +5, got %d", pos.RealizedPnL)
	}
	if pos.AveragePrice != 500_000 {
		t.Errorf("sell must not move average price, got %d", pos.AveragePrice)
	}
}

func TestApplyTrade_SellMoreThanHeld(t *testing.T) {
	pos := NewPosition("alice", "market-1", OutcomeYes, testNow)
	if err := pos.ApplyTrade(100, 50, testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := pos.ApplyTrade(-101, 60, testNow+1); err != ErrInsufficientShares {
		t.Errorf("expected ErrInsufficientShares, got %v", err)
	}
	// Position unchanged on failure.
	if pos.Shares != 100 || pos.TotalInvested != 50 || pos.RealizedPnL != 0 {
		t.Errorf("position mutated on failed sell: %+v", pos)
	}
}

func TestApplyTrade_FullCloseClearsInvested(t *testing.T) {
	pos := NewPosition("alice", "market-1", OutcomeYes, testNow)
	// Odd amounts that do not divide evenly, so proportional cost-basis
	// removal would leave a truncation remainder.
	if err := pos.ApplyTrade(7, 10, testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := pos.ApplyTrade(-7, 12, testNow+1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.Shares != 0 {
		t.Errorf("expected 0 shares, got %d", pos.Shares)
	}
	if pos.TotalInvested != 0 {
		t.Errorf("closing must clear invested, got %d", pos.TotalInvested)
	}
	// Full close realizes exactly proceeds minus total cost: 12 - 10 = 2.
	if pos.RealizedPnL != 2 {
		t.Errorf("expected realized pnl +2, got %d", pos.RealizedPnL)
	}
}

func TestApplyTrade_SellAtLoss(t *testing.T) {
	pos := NewPosition("alice", "market-1", OutcomeYes, testNow)
	if err := pos.ApplyTrade(100, 50, testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Sell 40 for 10: cost basis 20, realized -10.
	if err := pos.ApplyTrade(-40, 10, testNow+1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.RealizedPnL != -10 {
		t.Errorf("expected realized pnl -10, got %d", pos.RealizedPnL)
	}
}

// --- Mark-to-market tests ---

func TestUnrealizedPnL_EmptyPosition(t *testing.T) {
	pos := NewPosition("alice", "market-1", OutcomeYes, testNow)
	u, err := pos.UnrealizedPnL(750_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != 0 {
		t.Errorf("expected 0 for empty position, got %d", u)
	}
}

func TestUnrealizedPnL_MarksToPrice(t *testing.T) {
	pos := NewPosition("alice", "market-1", OutcomeYes, testNow)
	if err := pos.ApplyTrade(100, 50, testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// At price 0.75: value = 100*750,000/1e6 = 75, invested 50, pnl +25.
	u, err := pos.UnrealizedPnL(750_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != 25 {
		t.Errorf("expected unrealized +25, got %d", u)
	}

	// At price 0.25: value 25, pnl -25.
	u, err = pos.UnrealizedPnL(250_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != -25 {
		t.Errorf("expected unrealized -25, got %d", u)
	}
}

func TestTotalPnL_SumsRealizedAndUnrealized(t *testing.T) {
	pos := NewPosition("alice", "market-1", OutcomeYes, testNow)
	if err := pos.ApplyTrade(100, 50, testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := pos.ApplyTrade(-40, 25, testNow+1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Realized +5; 60 shares at 0.5 worth 30 against invested 30 → unrealized 0.
	total, err := pos.TotalPnL(500_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 5 {
		t.Errorf("expected total pnl +5, got %d", total)
	}
}
