package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbase/tradeledger/internal/cache"
	"github.com/finbase/tradeledger/internal/ledger"
)

type createUserRequest struct {
	Username string          `json:"username" binding:"required"`
	Balance  decimal.Decimal `json:"balance" binding:"required"`
}

func (s *Server) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, bindError(err))
		return
	}

	account := &ledger.Account{Username: req.Username, Balance: req.Balance}
	if err := ledger.ValidateAccount(account); err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.store.CreateAccount(c.Request.Context(), account); err != nil {
		s.respondError(c, err)
		return
	}

	s.cacheJSON(c, account.Username, account, s.cacheCfg.DefaultTTL)
	c.JSON(http.StatusCreated, gin.H{
		"message": "user created",
		"user_id": account.ID,
	})
}

func (s *Server) getUser(c *gin.Context) {
	username := c.Param("username")
	if data, err := s.cache.Get(c.Request.Context(), username, s.cacheCfg.Version); err == nil {
		c.Data(http.StatusOK, "application/json", data)
		return
	}

	account, err := s.store.GetAccountByUsername(c.Request.Context(), username)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.cacheJSON(c, username, account, s.cacheCfg.DefaultTTL)
	c.JSON(http.StatusOK, account)
}

func (s *Server) deleteUser(c *gin.Context) {
	username := c.Param("username")
	if err := s.store.DeleteAccount(c.Request.Context(), username); err != nil {
		s.respondError(c, err)
		return
	}
	s.coherence.AfterAccountChange(c.Request.Context(), username)
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

func (s *Server) listUserTrades(c *gin.Context) {
	ctx := c.Request.Context()
	username := c.Param("username")

	start, end := c.Query("start"), c.Query("end")
	ranged := start != "" || end != ""

	// Validate the window before any cache traffic so a malformed request
	// never probes or primes a key, and equivalent spellings of the same
	// instant share one entry.
	key := cache.TransactionsKey(username)
	var window tradeWindow
	if ranged {
		w, err := parseRange(start, end)
		if err != nil {
			s.respondError(c, err)
			return
		}
		window = w
		key = cache.RangeTransactionsKey(username,
			window.start.UTC().Format(time.RFC3339),
			window.end.UTC().Format(time.RFC3339))
	}

	if data, err := s.cache.Get(ctx, key, s.cacheCfg.Version); err == nil {
		c.Data(http.StatusOK, "application/json", data)
		return
	}

	account, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var trades []ledger.TradeRecord
	if ranged {
		trades, err = s.store.ListTradesInRange(ctx, account.ID, window.start, window.end)
	} else {
		trades, err = s.store.ListTrades(ctx, account.ID)
	}
	if err != nil {
		s.respondError(c, err)
		return
	}

	if len(trades) > 0 {
		s.cacheJSON(c, key, trades, s.cacheCfg.HistoryTTL)
	}
	c.JSON(http.StatusOK, trades)
}

// cacheJSON stores a marshaled value best-effort; a cache failure only logs.
func (s *Server) cacheJSON(c *gin.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.cache.Set(c.Request.Context(), key, data, s.cacheCfg.Version, ttl); err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}
