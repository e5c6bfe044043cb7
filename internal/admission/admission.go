// Package admission implements the synchronous pre-check run before a trade
// is queued for settlement.
package admission

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finbase/tradeledger/internal/ledger"
	"github.com/finbase/tradeledger/pkg/errors"
)

// Checker inspects balances at enqueue time. The check is advisory: it takes
// no locks and mutates nothing, so a passing trade can still find a smaller
// balance at commit time. The executor owns the commit-time guard.
type Checker struct {
	store *ledger.Store
}

func NewChecker(store *ledger.Store) *Checker {
	return &Checker{store: store}
}

// Check verifies the account can currently afford the candidate trade. A buy
// succeeds only when balance >= close price x volume; a sell always succeeds.
func (c *Checker) Check(ctx context.Context, accountID uuid.UUID, ticker string, side ledger.Side, volume int64) error {
	account, err := c.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	instrument, err := c.store.GetInstrument(ctx, ticker)
	if err != nil {
		return err
	}
	if side != ledger.SideBuy {
		return nil
	}
	cost := instrument.ClosePrice.Mul(decimal.NewFromInt(volume))
	if account.Balance.LessThan(cost) {
		return errors.Newf(errors.KindInsufficientFunds,
			"balance %s is below trade cost %s", account.Balance, cost)
	}
	return nil
}
