package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/finbase/tradeledger/internal/ledger"
	"github.com/finbase/tradeledger/internal/settlement"
	"github.com/finbase/tradeledger/pkg/errors"
)

type createTradeRequest struct {
	AccountID string `json:"account_id" binding:"required,uuid"`
	Ticker    string `json:"ticker" binding:"required"`
	Side      string `json:"side" binding:"required"`
	Volume    int64  `json:"volume" binding:"required,gt=0"`
}

// createTrade admits and enqueues a trade. The 202 acknowledgment means
// "accepted, settling": settlement outcome is observed through trade history,
// not this response.
func (s *Server) createTrade(c *gin.Context) {
	ctx := c.Request.Context()

	var req createTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, bindError(err))
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		s.respondError(c, errors.Validation("account_id", "must be a valid uuid"))
		return
	}
	side := ledger.Side(strings.ToLower(req.Side))

	instrument, err := s.store.GetInstrument(ctx, req.Ticker)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := ledger.ValidateTrade(side, req.Volume, instrument); err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.checker.Check(ctx, accountID, req.Ticker, side, req.Volume); err != nil {
		s.respondError(c, err)
		return
	}

	task := settlement.Task{
		TradeID:   uuid.New(),
		AccountID: accountID,
		Ticker:    req.Ticker,
		Side:      side,
		Volume:    req.Volume,
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.respondError(c, errors.Wrap(errors.KindStore, err, "enqueue trade"))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "transaction is in progress",
		"trade_id": task.TradeID,
	})
}

type tradeWindow struct {
	start time.Time
	end   time.Time
}

// parseRange parses the start/end query parameters of a ranged history
// lookup. Both bounds are required and RFC 3339 formatted.
func parseRange(start, end string) (tradeWindow, error) {
	if start == "" || end == "" {
		return tradeWindow{}, errors.Validation("range", "both start and end are required")
	}
	from, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return tradeWindow{}, errors.Validation("start", "must be an RFC 3339 timestamp")
	}
	to, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return tradeWindow{}, errors.Validation("end", "must be an RFC 3339 timestamp")
	}
	if to.Before(from) {
		return tradeWindow{}, errors.Validation("range", "end must not precede start")
	}
	return tradeWindow{start: from, end: to}, nil
}
