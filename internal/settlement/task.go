// Package settlement contains the queue and executor that apply admitted
// trades to the ledger off the request path.
package settlement

import (
	"github.com/google/uuid"

	"github.com/finbase/tradeledger/internal/ledger"
)

// Task is the queued trade payload. It is a plain value carrying no live
// references: the trade identity is generated at acceptance, everything else
// is re-read from the store at commit time.
type Task struct {
	TradeID   uuid.UUID   `json:"trade_id"`
	AccountID uuid.UUID   `json:"account_id"`
	Ticker    string      `json:"ticker"`
	Side      ledger.Side `json:"side"`
	Volume    int64       `json:"volume"`
}
