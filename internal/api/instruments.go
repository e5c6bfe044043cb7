package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/finbase/tradeledger/internal/cache"
	"github.com/finbase/tradeledger/internal/ledger"
)

type createInstrumentRequest struct {
	Ticker     string          `json:"ticker" binding:"required"`
	OpenPrice  decimal.Decimal `json:"open_price"`
	ClosePrice decimal.Decimal `json:"close_price"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Volume     int64           `json:"volume" binding:"min=0"`
}

func (s *Server) createInstrument(c *gin.Context) {
	var req createInstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, bindError(err))
		return
	}

	instrument := &ledger.Instrument{
		Ticker:     req.Ticker,
		OpenPrice:  req.OpenPrice,
		ClosePrice: req.ClosePrice,
		High:       req.High,
		Low:        req.Low,
		Volume:     req.Volume,
	}
	if err := ledger.ValidateInstrument(instrument); err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.store.CreateInstrument(c.Request.Context(), instrument); err != nil {
		s.respondError(c, err)
		return
	}

	s.coherence.AfterInstrumentChange(c.Request.Context(), instrument.Ticker)
	c.JSON(http.StatusCreated, gin.H{
		"message":    "instrument created",
		"instrument": instrument,
	})
}

func (s *Server) listInstruments(c *gin.Context) {
	ctx := c.Request.Context()
	if data, err := s.cache.Get(ctx, cache.InstrumentsKey, s.cacheCfg.Version); err == nil {
		c.Data(http.StatusOK, "application/json", data)
		return
	}

	instruments, err := s.store.ListInstruments(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if len(instruments) > 0 {
		s.cacheJSON(c, cache.InstrumentsKey, instruments, s.cacheCfg.ListingTTL)
	}
	c.JSON(http.StatusOK, instruments)
}

func (s *Server) getInstrument(c *gin.Context) {
	ctx := c.Request.Context()
	ticker := c.Param("ticker")
	if data, err := s.cache.Get(ctx, ticker, s.cacheCfg.Version); err == nil {
		c.Data(http.StatusOK, "application/json", data)
		return
	}

	instrument, err := s.store.GetInstrument(ctx, ticker)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.cacheJSON(c, ticker, instrument, s.cacheCfg.DefaultTTL)
	c.JSON(http.StatusOK, instrument)
}
