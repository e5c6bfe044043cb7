package settlement

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbase/tradeledger/internal/cache"
	"github.com/finbase/tradeledger/internal/ledger"
	"github.com/finbase/tradeledger/pkg/errors"
)

// ExecutorConfig tunes the settlement worker pool.
type ExecutorConfig struct {
	Workers      int           `mapstructure:"workers"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

func (c *ExecutorConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 50 * time.Millisecond
	}
}

// Executor consumes the settlement queue and applies each trade to the ledger
// as one atomic unit: re-read account and instrument, apply the delta, write
// both back and append the trade record. Trades sharing an account or an
// instrument are serialized by entity locks; disjoint pairs settle in
// parallel across the worker pool.
type Executor struct {
	store     *ledger.Store
	queue     Queue
	coherence *cache.Coherence
	cfg       ExecutorConfig
	locks     *entityLocks
	clock     settleClock
	logger    *zap.Logger
	wg        sync.WaitGroup
}

func NewExecutor(store *ledger.Store, queue Queue, coherence *cache.Coherence, cfg ExecutorConfig, logger *zap.Logger) *Executor {
	cfg.applyDefaults()
	return &Executor{
		store:     store,
		queue:     queue,
		coherence: coherence,
		cfg:       cfg,
		locks:     newEntityLocks(),
		logger:    logger,
	}
}

// Start launches the worker pool. Workers exit when ctx is canceled or the
// queue is closed and drained.
func (e *Executor) Start(ctx context.Context) {
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.run(ctx)
		}()
	}
}

// Wait blocks until every worker has exited.
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) run(ctx context.Context) {
	for {
		task, ack, err := e.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || errors.Is(err, io.EOF) ||
				errors.Is(err, io.ErrClosedPipe) || ctx.Err() != nil {
				return
			}
			e.logger.Error("settlement dequeue failed", zap.Error(err))
			continue
		}
		if err := e.Process(ctx, task); err != nil {
			// Outcome not persisted; leave the task unacked so the queue
			// redelivers it.
			e.logger.Error("trade settlement failed",
				zap.String("trade_id", task.TradeID.String()),
				zap.String("ticker", task.Ticker),
				zap.Error(err))
			continue
		}
		if err := ack(); err != nil {
			e.logger.Warn("settlement ack failed, task may be redelivered",
				zap.String("trade_id", task.TradeID.String()),
				zap.Error(err))
		}
	}
}

// Process settles one task and returns nil once the outcome is durable:
// settled, already settled by an earlier delivery, or dead-lettered.
// Conflicts are retried with bounded backoff; any other failure, or retry
// exhaustion, lands in the dead-letter table rather than being dropped. A
// non-nil return means nothing was persisted and the task must be
// redelivered.
func (e *Executor) Process(ctx context.Context, task Task) error {
	unlock := e.locks.lockPair("account:"+task.AccountID.String(), "instrument:"+task.Ticker)
	defer unlock()

	if _, err := e.store.GetTrade(ctx, task.TradeID); err == nil {
		e.logger.Debug("trade already settled, skipping redelivery",
			zap.String("trade_id", task.TradeID.String()))
		return nil
	}

	var username string
	var err error
	for attempt := 0; ; attempt++ {
		username, err = e.settle(ctx, task)
		if err == nil || !errors.IsKind(err, errors.KindConflict) {
			break
		}
		if attempt >= e.cfg.MaxRetries {
			break
		}
		if !sleep(ctx, e.cfg.RetryBackoff*time.Duration(attempt+1)) {
			break
		}
	}
	if err != nil {
		if recErr := e.recordFailure(ctx, task, err); recErr != nil {
			return recErr
		}
		e.logger.Warn("trade dead-lettered",
			zap.String("trade_id", task.TradeID.String()),
			zap.String("ticker", task.Ticker),
			zap.String("reason", err.Error()))
		return nil
	}

	e.coherence.AfterSettlement(ctx, username, task.Ticker)
	e.logger.Info("trade settled",
		zap.String("trade_id", task.TradeID.String()),
		zap.String("account", username),
		zap.String("ticker", task.Ticker),
		zap.String("side", string(task.Side)),
		zap.Int64("volume", task.Volume))
	return nil
}

// settle applies the trade inside one store transaction and returns the
// account's username for cache invalidation.
func (e *Executor) settle(ctx context.Context, task Task) (string, error) {
	executedAt := e.clock.Now()
	var username string
	err := e.store.Commit(ctx, func(tx *ledger.Txn) error {
		account, err := tx.Account(task.AccountID)
		if err != nil {
			return err
		}
		instrument, err := tx.Instrument(task.Ticker)
		if err != nil {
			return err
		}

		cost := instrument.ClosePrice.Mul(decimal.NewFromInt(task.Volume))
		switch task.Side {
		case ledger.SideBuy:
			// Admission was advisory; re-check against the balance and
			// inventory actually present at commit time.
			if account.Balance.LessThan(cost) {
				return errors.Newf(errors.KindInsufficientFunds,
					"balance %s below trade cost %s at commit time", account.Balance, cost)
			}
			if instrument.Volume < task.Volume {
				return errors.Validation("volume",
					"instrument volume exhausted at commit time")
			}
			account.Balance = account.Balance.Sub(cost)
			instrument.Volume -= task.Volume
		case ledger.SideSell:
			account.Balance = account.Balance.Add(cost)
			instrument.Volume += task.Volume
		default:
			return errors.Validation("side", "must be either buy or sell")
		}

		if err := tx.SaveAccount(account); err != nil {
			return err
		}
		if err := tx.SaveInstrument(instrument); err != nil {
			return err
		}
		if err := tx.AppendTrade(&ledger.TradeRecord{
			ID:         task.TradeID,
			AccountID:  account.ID,
			Ticker:     instrument.Ticker,
			Side:       task.Side,
			Volume:     task.Volume,
			Price:      instrument.ClosePrice,
			ExecutedAt: executedAt,
		}); err != nil {
			return err
		}
		username = account.Username
		return nil
	})
	if err != nil {
		return "", err
	}
	return username, nil
}

func (e *Executor) recordFailure(ctx context.Context, task Task, cause error) error {
	failure := &ledger.SettlementFailure{
		TradeID:   task.TradeID,
		AccountID: task.AccountID,
		Ticker:    task.Ticker,
		Side:      task.Side,
		Volume:    task.Volume,
		Reason:    cause.Error(),
	}
	if err := e.store.RecordFailure(ctx, failure); err != nil {
		e.logger.Error("failed to dead-letter unsettled trade",
			zap.String("trade_id", task.TradeID.String()),
			zap.Error(err))
		return err
	}
	return nil
}

// sleep waits for d or until ctx is canceled, reporting whether the full
// backoff elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
