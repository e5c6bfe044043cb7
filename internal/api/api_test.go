package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finbase/tradeledger/internal/admission"
	"github.com/finbase/tradeledger/internal/cache"
	"github.com/finbase/tradeledger/internal/config"
	"github.com/finbase/tradeledger/internal/ledger"
	"github.com/finbase/tradeledger/internal/settlement"
)

type testEnv struct {
	router *gin.Engine
	store  *ledger.Store
	cache  *cache.Memory
	queue  *settlement.MemoryQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := ledger.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	store := ledger.NewStore(db, zap.NewNop())
	require.NoError(t, store.AutoMigrate())

	mem := cache.NewMemory()
	coherence := cache.NewCoherence(mem, 1, zap.NewNop())
	queue := settlement.NewMemoryQueue(64)
	server := NewServer(store, mem, coherence, admission.NewChecker(store), queue, config.CacheConfig{
		Version:    1,
		DefaultTTL: time.Minute,
		ListingTTL: time.Minute,
		HistoryTTL: time.Minute,
	}, zap.NewNop())

	return &testEnv{router: server.Router(), store: store, cache: mem, queue: queue}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedUser(t *testing.T, username, balance string) uuid.UUID {
	t.Helper()
	account := &ledger.Account{Username: username, Balance: decimal.RequireFromString(balance)}
	require.NoError(t, e.store.CreateAccount(context.Background(), account))
	return account.ID
}

func (e *testEnv) seedInstrument(t *testing.T, ticker string, volume int64) {
	t.Helper()
	require.NoError(t, e.store.CreateInstrument(context.Background(), &ledger.Instrument{
		Ticker:     ticker,
		OpenPrice:  decimal.RequireFromString("145.00"),
		ClosePrice: decimal.RequireFromString("150.00"),
		High:       decimal.RequireFromString("155.00"),
		Low:        decimal.RequireFromString("140.00"),
		Volume:     volume,
	}))
}

func TestCreateUserAndReadThroughCache(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/users", gin.H{"username": "alice", "balance": "1000.00"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Registration primes the cache; the read must be servable from it.
	_, err := env.cache.Get(context.Background(), "alice", 1)
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/users/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")

	rec = env.do(t, http.MethodGet, "/users/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateUserValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/users", gin.H{"username": "al", "balance": "10.00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/users", gin.H{"username": "12345", "balance": "10.00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateInstrumentRejectsBadEnvelopeBeforeQueue(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/instruments", gin.H{
		"ticker":      "AAPL",
		"open_price":  "300.00",
		"close_price": "200.00",
		"high":        "250.00",
		"low":         "150.00",
		"volume":      100,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "open_price")
	assert.Equal(t, 0, env.queue.Len(), "nothing may reach the settlement queue")
}

func TestInstrumentListingCached(t *testing.T) {
	env := newTestEnv(t)
	env.seedInstrument(t, "AAPL", 100)

	rec := env.do(t, http.MethodGet, "/instruments", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := env.cache.Get(context.Background(), cache.InstrumentsKey, 1)
	assert.NoError(t, err, "listing should be cached under the aggregate key")

	rec = env.do(t, http.MethodGet, "/instruments/AAPL", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/instruments/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTradeAcceptedBeforeSettlement(t *testing.T) {
	env := newTestEnv(t)
	accountID := env.seedUser(t, "alice", "1000.00")
	env.seedInstrument(t, "AAPL", 100)

	rec := env.do(t, http.MethodPost, "/trades", gin.H{
		"account_id": accountID.String(),
		"ticker":     "AAPL",
		"side":       "BUY",
		"volume":     5,
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "trade_id")
	assert.Equal(t, 1, env.queue.Len(), "accepted trade must be enqueued")

	// Acceptance is not settlement: the balance is untouched until a worker
	// picks the task up.
	account, err := env.store.GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("1000.00")))
}

func TestCreateTradeInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	accountID := env.seedUser(t, "alice", "1000.00")
	env.seedInstrument(t, "AAPL", 100)

	rec := env.do(t, http.MethodPost, "/trades", gin.H{
		"account_id": accountID.String(),
		"ticker":     "AAPL",
		"side":       "buy",
		"volume":     7, // 1050.00 > 1000.00
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient balance")
	assert.Equal(t, 0, env.queue.Len())
}

func TestCreateTradeUnknownEntities(t *testing.T) {
	env := newTestEnv(t)
	accountID := env.seedUser(t, "alice", "1000.00")
	env.seedInstrument(t, "AAPL", 100)

	rec := env.do(t, http.MethodPost, "/trades", gin.H{
		"account_id": accountID.String(),
		"ticker":     "NOPE",
		"side":       "buy",
		"volume":     1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/trades", gin.H{
		"account_id": uuid.NewString(),
		"ticker":     "AAPL",
		"side":       "buy",
		"volume":     1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTradeShapeValidation(t *testing.T) {
	env := newTestEnv(t)
	accountID := env.seedUser(t, "alice", "1000.00")
	env.seedInstrument(t, "AAPL", 100)

	cases := []gin.H{
		{"account_id": "not-a-uuid", "ticker": "AAPL", "side": "buy", "volume": 1},
		{"account_id": accountID.String(), "ticker": "AAPL", "side": "hold", "volume": 1},
		{"account_id": accountID.String(), "ticker": "AAPL", "side": "buy", "volume": 0},
		{"account_id": accountID.String(), "ticker": "AAPL", "side": "buy", "volume": 101},
	}
	for _, body := range cases {
		rec := env.do(t, http.MethodPost, "/trades", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %v", body)
	}
	assert.Equal(t, 0, env.queue.Len())
}

func TestUserTradeHistory(t *testing.T) {
	env := newTestEnv(t)
	accountID := env.seedUser(t, "alice", "1000.00")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, env.store.Commit(context.Background(), func(tx *ledger.Txn) error {
			return tx.AppendTrade(&ledger.TradeRecord{
				ID:         uuid.New(),
				AccountID:  accountID,
				Ticker:     "AAPL",
				Side:       ledger.SideBuy,
				Volume:     int64(i + 1),
				Price:      decimal.RequireFromString("150.00"),
				ExecutedAt: base.Add(time.Duration(i) * time.Hour),
			})
		}))
	}

	rec := env.do(t, http.MethodGet, "/users/alice/trades", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var trades []ledger.TradeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	require.Len(t, trades, 3)
	assert.Equal(t, int64(3), trades[0].Volume, "newest first")

	_, err := env.cache.Get(context.Background(), cache.TransactionsKey("alice"), 1)
	assert.NoError(t, err, "history should be cached")

	// Ranged lookup uses its own best-effort key.
	start := base.Add(30 * time.Minute).Format(time.RFC3339)
	end := base.Add(3 * time.Hour).Format(time.RFC3339)
	rec = env.do(t, http.MethodGet, "/users/alice/trades?start="+start+"&end="+end, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trades = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	assert.Len(t, trades, 2)

	rec = env.do(t, http.MethodGet, "/users/alice/trades?start=bogus&end="+end, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserTradeHistoryRangeKeyCanonical(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accountID := env.seedUser(t, "alice", "1000.00")

	require.NoError(t, env.store.Commit(ctx, func(tx *ledger.Txn) error {
		return tx.AppendTrade(&ledger.TradeRecord{
			ID:         uuid.New(),
			AccountID:  accountID,
			Ticker:     "AAPL",
			Side:       ledger.SideBuy,
			Volume:     1,
			Price:      decimal.RequireFromString("150.00"),
			ExecutedAt: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
		})
	}))

	start := "2026-03-01T12:30:00Z"
	end := "2026-03-01T15:00:00Z"
	rec := env.do(t, http.MethodGet, "/users/alice/trades?start="+start+"&end="+end, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	key := cache.RangeTransactionsKey("alice", start, end)
	_, err := env.cache.Get(ctx, key, 1)
	require.NoError(t, err, "window cached under its canonical UTC key")

	// An equivalent spelling of the same instants must resolve to the same
	// key: poison the canonical entry and expect the poisoned body back.
	marker := `[{"marker":true}]`
	require.NoError(t, env.cache.Set(ctx, key, []byte(marker), 1, time.Minute))
	rec = env.do(t, http.MethodGet, "/users/alice/trades?start="+
		url.QueryEscape("2026-03-01T12:30:00+00:00")+"&end="+
		url.QueryEscape("2026-03-01T15:00:00+00:00"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, marker, rec.Body.String())

	// A single-bound request is rejected before any cache traffic, so no
	// key with an empty component is primed.
	rec = env.do(t, http.MethodGet, "/users/alice/trades?start="+start, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, err = env.cache.Get(ctx, cache.RangeTransactionsKey("alice", start, ""), 1)
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestDeleteUserInvalidatesCache(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "1000.00")

	require.NoError(t, env.cache.Set(context.Background(), "alice", []byte("cached"), 1, time.Minute))

	rec := env.do(t, http.MethodDelete, "/users/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := env.cache.Get(context.Background(), "alice", 1)
	assert.ErrorIs(t, err, cache.ErrMiss)

	rec = env.do(t, http.MethodDelete, "/users/alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
