package engine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/yllvar/pool-odds/internal/engine"
	"github.com/yllvar/pool-odds/internal/model"
	"github.com/yllvar/pool-odds/internal/store"
)

const (
	testNow  int64 = 1_700_000_000
	liqSeed        = uint64(10_000_000_000) // 10,000 units per pool side
	bondAmt        = model.DefaultMinBond
)

type testEnv struct {
	router chi.Router
	clock  *int64
}

// newTestEnv wires a Service against the in-memory store with a pinned,
// advanceable clock.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, store.NewMemoryStore())
}

func newTestEnvWithStore(t *testing.T, st store.Store) *testEnv {
	t.Helper()
	clock := testNow
	svc := engine.NewService(st, model.DefaultParams(), "admin", nil, nil).
		WithClock(func() int64 { return clock })

	r := chi.NewRouter()
	r.Post("/api/v1/markets", svc.CreateMarket)
	r.Get("/api/v1/markets", svc.ListMarkets)
	r.Get("/api/v1/markets/{id}", svc.GetMarket)
	r.Patch("/api/v1/markets/{id}", svc.UpdateMarket)
	r.Post("/api/v1/markets/{id}/pools", svc.CreatePools)
	r.Post("/api/v1/markets/{id}/resolve", svc.ResolveMarket)
	r.Get("/api/v1/markets/{id}/quote", svc.Quote)
	r.Post("/api/v1/trade", svc.ExecuteTrade)
	r.Post("/api/v1/liquidity/add", svc.AddLiquidity)
	r.Post("/api/v1/liquidity/remove", svc.RemoveLiquidity)
	r.Post("/api/v1/claim", svc.ClaimWinnings)
	r.Get("/api/v1/positions/{userID}", svc.GetPositions)
	r.Get("/api/v1/users/{userID}", svc.GetUser)

	return &testEnv{router: r, clock: &clock}
}

func (e *testEnv) do(t *testing.T, method, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
	return out
}

// createMarket creates a manual-resolution market and returns its ID.
func (e *testEnv) createMarket(t *testing.T) string {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/markets", map[string]any{
		"creator":           "alice",
		"title":             "Will it rain tomorrow?",
		"description":       "Resolves Yes on measurable rainfall.",
		"category":          "weather",
		"end_time":          testNow + 86_400,
		"resolution_source": "manual",
		"bond_amount":       bondAmt,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create market: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	id, _ := decodeBody(t, w)["id"].(string)
	if id == "" {
		t.Fatal("create market: empty id")
	}
	return id
}

// createMarketWithPools also seeds both pools with symmetric liquidity.
func (e *testEnv) createMarketWithPools(t *testing.T) string {
	t.Helper()
	id := e.createMarket(t)
	w := e.do(t, "POST", "/api/v1/markets/"+id+"/pools", map[string]any{
		"provider":          "lp-carol",
		"initial_liquidity": liqSeed,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create pools: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return id
}

// --- Market lifecycle tests ---

func TestCreateMarket_Validates(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/markets", map[string]any{
		"creator":           "alice",
		"title":             "",
		"description":       "d",
		"category":          "weather",
		"end_time":          testNow + 86_400,
		"resolution_source": "manual",
		"bond_amount":       bondAmt,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty title, got %d", w.Code)
	}
}

func TestCreatePools_OnlyOnce(t *testing.T) {
	env := newTestEnv(t)
	id := env.createMarketWithPools(t)

	w := env.do(t, "POST", "/api/v1/markets/"+id+"/pools", map[string]any{})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for second pool creation, got %d: %s", w.Code, w.Body.String())
	}
}

// poolCreateFailStore fails pool inserts while delegating everything else.
type poolCreateFailStore struct {
	store.Store
}

func (s *poolCreateFailStore) CreatePool(ctx context.Context, p *model.Pool) error {
	return errors.New("insert failed")
}

func TestCreatePools_PersistFailureLeavesNoLPRecord(t *testing.T) {
	mem := store.NewMemoryStore()
	env := newTestEnvWithStore(t, &poolCreateFailStore{Store: mem})
	id := env.createMarket(t)

	w := env.do(t, "POST", "/api/v1/markets/"+id+"/pools", map[string]any{
		"provider":          "lp-carol",
		"initial_liquidity": liqSeed,
	})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for failed pool insert, got %d: %s", w.Code, w.Body.String())
	}

	// Seed liquidity must not be recorded against pools that were never
	// stored.
	lps, err := mem.ListLiquidityPositionsByOwner(context.Background(), "lp-carol")
	if err != nil {
		t.Fatalf("list liquidity positions: %v", err)
	}
	if len(lps) != 0 {
		t.Errorf("expected no LP records after failed pool creation, got %d", len(lps))
	}
}

func TestGetMarket_IncludesPoolsAndPrices(t *testing.T) {
	env := newTestEnv(t)
	id := env.createMarketWithPools(t)

	w := env.do(t, "GET", "/api/v1/markets/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	for _, key := range []string{"market", "yes_pool", "no_pool", "yes_price", "no_price"} {
		if _, ok := body[key]; !ok {
			t.Errorf("response missing %q", key)
		}
	}
}

func TestUpdateMarket_FeeRate(t *testing.T) {
	env := newTestEnv(t)
	id := env.createMarket(t)

	w := env.do(t, "PATCH", "/api/v1/markets/"+id, map[string]any{
		"authority":   "alice",
		"fee_rate_bp": 100,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, "PATCH", "/api/v1/markets/"+id, map[string]any{
		"authority":   "mallory",
		"fee_rate_bp": 50,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for non-creator, got %d", w.Code)
	}

	w = env.do(t, "PATCH", "/api/v1/markets/"+id, map[string]any{
		"authority":   "admin",
		"fee_rate_bp": 2000,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for fee above ceiling, got %d", w.Code)
	}
}

// --- Trading tests ---

func TestExecuteTrade_BuyYes(t *testing.T) {
	env := newTestEnv(t)
	id := env.createMarketWithPools(t)

	w := env.do(t, "POST", "/api/v1/trade", map[string]any{
		"user_id":        "bob",
		"market_id":      id,
		"outcome":        "YES",
		"amount_in":      uint64(100_000_000),
		"min_amount_out": uint64(1),
		"is_buy":         true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["trade_id"] == "" {
		t.Error("expected non-empty trade_id")
	}
	out, _ := body["amount_out"].(float64)
	if out <= 0 {
		t.Errorf("expected positive output, got %v", body["amount_out"])
	}
	// Buying YES raises the YES price above 1.0 (base/share ratio grows).
	price, _ := body["new_price"].(float64)
	if price <= 1_000_000 {
		t.Errorf("expected price above 1000000, got %v", body["new_price"])
	}
}

func TestExecuteTrade_RoundTripRealizesPnL(t *testing.T) {
	env := newTestEnv(t)
	id := env.createMarketWithPools(t)

	w := env.do(t, "POST", "/api/v1/trade", map[string]any{
		"user_id":        "bob",
		"market_id":      id,
		"outcome":        "YES",
		"amount_in":      uint64(100_000_000),
		"min_amount_out": uint64(1),
		"is_buy":         true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("buy failed: %d: %s", w.Code, w.Body.String())
	}
	shares := uint64(decodeBody(t, w)["amount_out"].(float64))

	w = env.do(t, "POST", "/api/v1/trade", map[string]any{
		"user_id":        "bob",
		"market_id":      id,
		"outcome":        "YES",
		"amount_in":      shares,
		"min_amount_out": uint64(1),
		"is_buy":         false,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("sell failed: %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Position model.Position `json:"position"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Position.Shares != 0 {
		t.Errorf("expected flat position, got %d shares", resp.Position.Shares)
	}
	if resp.Position.TotalInvested != 0 {
		t.Errorf("closed position must have zero invested, got %d", resp.Position.TotalInvested)
	}
	// Fees on both legs make the round trip a small loss.
	if resp.Position.RealizedPnL >= 0 {
		t.Errorf("expected negative realized pnl after fee-paying round trip, got %d", resp.Position.RealizedPnL)
	}
}

func TestExecuteTrade_SlippageRejected(t *testing.T) {
	env := newTestEnv(t)
	id := env.createMarketWithPools(t)

	w := env.do(t, "POST", "/api/v1/trade", map[string]any{
		"user_id":        "bob",
		"market_id":      id,
		"outcome":        "YES",
		"amount_in":      uint64(100_000_000),
		"min_amount_out": uint64(200_000_000),
		"is_buy":         true,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for slippage, got %d: %s", w.Code, w.Body.String())
	}
}

func TestExecuteTrade_PriceImpactRejected(t *testing.T) {
	env := newTestEnv(t)
	id := env.createMarketWithPools(t)

	// 20% of the base reserve exceeds the default 10% ceiling.
	w := env.do(t, "POST", "/api/v1/trade", map[string]any{
		"user_id":        "bob",
		"market_id":      id,
		"outcome":        "YES",
		"amount_in":      liqSeed / 5,
		"min_amount_out": uint64(1),
		"is_buy":         true,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for price impact, got %d: %s", w.Code, w.Body.String())
	}
}

func TestExecuteTrade_DustBuyRejected(t *testing.T) {
	env := newTestEnv(t)
	id := env.createMarketWithPools(t)

	// Skew the pool base-heavy so a 1-unit buy quotes zero shares.
	w := env.do(t, "POST", "/api/v1/trade", map[string]any{
		"user_id":        "bob",
		"market_id":      id,
		"outcome":        "YES",
		"amount_in":      uint64(900_000_000),
		"min_amount_out": uint64(1),
		"is_buy":         true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("setup buy failed: %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, "POST", "/api/v1/trade", map[string]any{
		"user_id":   "eve",
		"market_id": id,
		"outcome":   "YES",
		"amount_in": uint64(1),
		"is_buy":    true,
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for zero-output buy, got %d: %s", w.Code, w.Body.String())
	}

	// The rejected trade must not leave a position holding invested funds
	// and no shares.
	w = env.do(t, "GET", "/api/v1/positions/eve", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("positions: expected 200, got %d", w.Code)
	}
	positions, _ := decodeBody(t, w)["positions"].([]any)
	if len(positions) != 0 {
		t.Errorf("expected no position after rejected dust buy, got %v", positions)
	}
}

func TestExecuteTrade_AfterExpiry(t *testing.T) {
	env := newTestEnv(t)
	id := env.createMarketWithPools(t)

	*env.clock = testNow + 86_400

	w := env.do(t, "POST", "/api/v1/trade", map[string]any{
		"user_id":        "bob",
		"market_id":      id,
		"outcome":        "YES",
		"amount_in":      uint64(1_000_000),
		"min_amount_out": uint64(1),
		"is_buy":         true,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 after expiry, got %d", w.Code)
	}
}

func TestQuote_PureRead(t *testing.T) {
	env := newTestEnv(t)
	id := env.createMarketWithPools(t)

	path := fmt.Sprintf("/api/v1/markets/%s/quote?outcome=YES&amount=100000000&side=buy", id)
	w := env.do(t, "GET", path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	first := decodeBody(t, w)

	// Quoting twice returns identical numbers: no state was touched.
	w = env.do(t, "GET", path, nil)
	second := decodeBody(t, w)
	if first["amount_out"] != second["amount_out"] {
		t.Errorf("quote mutated state: %v vs %v", first["amount_out"], second["amount_out"])
	}
	if accepted, _ := first["accepted"].(bool); !accepted {
		t.Error("moderate quote should be within the impact ceiling")
	}
}

// --- Liquidity tests ---

func TestAddRemoveLiquidity_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	id := env.createMarketWithPools(t)

	w := env.do(t, "POST", "/api/v1/liquidity/add", map[string]any{
		"user_id":      "dave",
		"market_id":    id,
		"outcome":      "YES",
		"base_amount":  uint64(1_000_000_000),
		"share_amount": uint64(1_000_000_000),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("add liquidity: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	minted := uint64(decodeBody(t, w)["lp_tokens_minted"].(float64))
	if minted == 0 {
		t.Fatal("expected LP tokens minted")
	}

	w = env.do(t, "POST", "/api/v1/liquidity/remove", map[string]any{
		"user_id":   "dave",
		"market_id": id,
		"outcome":   "YES",
		"lp_tokens": minted,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("remove liquidity: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	baseOut := uint64(body["base_out"].(float64))
	if baseOut == 0 {
		t.Error("expected base payout on withdrawal")
	}
}

func TestRemoveLiquidity_MoreThanHeld(t *testing.T) {
	env := newTestEnv(t)
	id := env.createMarketWithPools(t)

	w := env.do(t, "POST", "/api/v1/liquidity/remove", map[string]any{
		"user_id":   "lp-carol",
		"market_id": id,
		"outcome":   "YES",
		"lp_tokens": liqSeed * 10,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

// --- Resolution and claim tests ---

func TestResolveAndClaim_WinnerPaidOneToOne(t *testing.T) {
	env := newTestEnv(t)
	id := env.createMarketWithPools(t)

	w := env.do(t, "POST", "/api/v1/trade", map[string]any{
		"user_id":        "bob",
		"market_id":      id,
		"outcome":        "YES",
		"amount_in":      uint64(100_000_000),
		"min_amount_out": uint64(1),
		"is_buy":         true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("buy failed: %d: %s", w.Code, w.Body.String())
	}
	shares := uint64(decodeBody(t, w)["amount_out"].(float64))

	w = env.do(t, "POST", "/api/v1/markets/"+id+"/resolve", map[string]any{
		"resolver": "alice",
		"outcome":  "YES",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("resolve failed: %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, "POST", "/api/v1/claim", map[string]any{
		"user_id":   "bob",
		"market_id": id,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("claim failed: %d: %s", w.Code, w.Body.String())
	}
	payout := uint64(decodeBody(t, w)["payout"].(float64))
	if payout != shares {
		t.Errorf("expected payout %d (1:1 per share), got %d", shares, payout)
	}

	// Second claim finds nothing.
	w = env.do(t, "POST", "/api/v1/claim", map[string]any{
		"user_id":   "bob",
		"market_id": id,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 on double claim, got %d", w.Code)
	}
}

func TestResolve_UnauthorizedResolver(t *testing.T) {
	env := newTestEnv(t)
	id := env.createMarket(t)

	w := env.do(t, "POST", "/api/v1/markets/"+id+"/resolve", map[string]any{
		"resolver": "mallory",
		"outcome":  "YES",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for unauthorized resolver, got %d", w.Code)
	}
}

func TestResolve_OracleWithInlinePrice(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/markets", map[string]any{
		"creator":           "alice",
		"title":             "BTC above 50k at expiry?",
		"description":       "Resolves on the bound feed price.",
		"category":          "crypto",
		"end_time":          testNow + 7200,
		"resolution_source": "oracle",
		"oracle_account":    "feed-1",
		"target_price":      uint64(50_000),
		"bond_amount":       bondAmt,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create oracle market: %d: %s", w.Code, w.Body.String())
	}
	id := decodeBody(t, w)["id"].(string)

	// Before expiry resolution is refused regardless of price.
	w = env.do(t, "POST", "/api/v1/markets/"+id+"/resolve", map[string]any{
		"resolver": "alice",
		"oracle_price": map[string]any{
			"account":            "feed-1",
			"price":              60_000,
			"confidence":         100,
			"verification_level": "full",
			"publish_time":       testNow,
		},
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 before expiry, got %d: %s", w.Code, w.Body.String())
	}

	*env.clock = testNow + 7300

	w = env.do(t, "POST", "/api/v1/markets/"+id+"/resolve", map[string]any{
		"resolver": "alice",
		"oracle_price": map[string]any{
			"account":            "feed-1",
			"price":              60_000,
			"confidence":         100,
			"verification_level": "full",
			"publish_time":       testNow + 7250,
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("resolve failed: %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		WinningOutcome *model.Outcome `json:"winning_outcome"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.WinningOutcome == nil || *resp.WinningOutcome != model.OutcomeYes {
		t.Errorf("expected YES winner, got %v", resp.WinningOutcome)
	}
}

// --- Portfolio tests ---

func TestGetPositionsAndUser(t *testing.T) {
	env := newTestEnv(t)
	id := env.createMarketWithPools(t)

	w := env.do(t, "POST", "/api/v1/trade", map[string]any{
		"user_id":        "bob",
		"market_id":      id,
		"outcome":        "NO",
		"amount_in":      uint64(50_000_000),
		"min_amount_out": uint64(1),
		"is_buy":         true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("buy failed: %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, "GET", "/api/v1/positions/bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("positions: expected 200, got %d", w.Code)
	}
	positions, _ := decodeBody(t, w)["positions"].([]any)
	if len(positions) != 1 {
		t.Errorf("expected 1 position, got %d", len(positions))
	}

	w = env.do(t, "GET", "/api/v1/users/bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("user: expected 200, got %d", w.Code)
	}
	var userResp struct {
		User model.User `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &userResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if userResp.User.TotalTrades != 1 {
		t.Errorf("expected 1 trade recorded, got %d", userResp.User.TotalTrades)
	}
	if userResp.User.TotalVolume != 50_000_000 {
		t.Errorf("expected volume 50000000, got %d", userResp.User.TotalVolume)
	}
}
