// Package api exposes the HTTP boundary: registration, instrument listing and
// trade acceptance. Trades are acknowledged at enqueue time; settlement
// happens off this path.
package api

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/finbase/tradeledger/internal/admission"
	"github.com/finbase/tradeledger/internal/cache"
	"github.com/finbase/tradeledger/internal/config"
	"github.com/finbase/tradeledger/internal/ledger"
	"github.com/finbase/tradeledger/internal/settlement"
	"github.com/finbase/tradeledger/pkg/errors"
)

// Server wires the handlers to the store, cache and settlement queue.
type Server struct {
	store     *ledger.Store
	cache     cache.Cache
	coherence *cache.Coherence
	checker   *admission.Checker
	queue     settlement.Queue
	cacheCfg  config.CacheConfig
	logger    *zap.Logger
}

func NewServer(
	store *ledger.Store,
	c cache.Cache,
	coherence *cache.Coherence,
	checker *admission.Checker,
	queue settlement.Queue,
	cacheCfg config.CacheConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		store:     store,
		cache:     c,
		coherence: coherence,
		checker:   checker,
		queue:     queue,
		cacheCfg:  cacheCfg,
		logger:    logger,
	}
}

// Router builds the gin engine with logging and recovery middleware.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(ginzap.Ginzap(s.logger, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(s.logger, true))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	users := r.Group("/users")
	{
		users.POST("", s.createUser)
		users.GET("/:username", s.getUser)
		users.DELETE("/:username", s.deleteUser)
		users.GET("/:username/trades", s.listUserTrades)
	}

	instruments := r.Group("/instruments")
	{
		instruments.POST("", s.createInstrument)
		instruments.GET("", s.listInstruments)
		instruments.GET("/:ticker", s.getInstrument)
	}

	r.POST("/trades", s.createTrade)

	return r
}

// respondError maps the error taxonomy onto HTTP statuses.
func (s *Server) respondError(c *gin.Context, err error) {
	var svcErr *errors.Error
	if !errors.As(err, &svcErr) {
		s.logger.Error("unclassified error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}
	switch svcErr.Kind {
	case errors.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{
			"message": svcErr.Message,
			"fields":  svcErr.Fields,
		})
	case errors.KindInsufficientFunds:
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "insufficient balance for this transaction",
		})
	case errors.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"message": svcErr.Message})
	default:
		s.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
	}
}

// bindError converts gin binding failures into field-tagged validation errors.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := errors.New(errors.KindValidation, "invalid request")
		for _, fe := range verrs {
			out = out.WithField(fe.Field(), "failed "+fe.Tag()+" validation")
		}
		return out
	}
	return errors.Wrap(errors.KindValidation, err, "malformed request body")
}
