// Package ledger defines the persistent data model and the transactional
// store for accounts, instruments and trade records.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known trade side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Account is a registered participant. The balance is mutated only by the
// settlement executor.
type Account struct {
	ID        uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	Username  string          `json:"username" gorm:"type:varchar(50);uniqueIndex;not null"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:decimal(12,2);not null"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

// BeforeCreate assigns the account identity when none was supplied.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Instrument is a tracked security. Available volume is mutated only by the
// settlement executor.
type Instrument struct {
	ID         uint            `json:"-" gorm:"primaryKey"`
	Ticker     string          `json:"ticker" gorm:"type:varchar(15);uniqueIndex;not null"`
	OpenPrice  decimal.Decimal `json:"open_price" gorm:"type:decimal(12,2);not null"`
	ClosePrice decimal.Decimal `json:"close_price" gorm:"type:decimal(12,2);not null"`
	High       decimal.Decimal `json:"high" gorm:"type:decimal(12,2);not null"`
	Low        decimal.Decimal `json:"low" gorm:"type:decimal(12,2);not null"`
	Volume     int64           `json:"volume" gorm:"not null"`
	CreatedAt  time.Time       `json:"timestamp" gorm:"index"`
}

func (Instrument) TableName() string { return "instruments" }

// TradeRecord is the immutable audit entry for one settled trade. It is never
// updated; it is removed only when its owning account is deleted.
type TradeRecord struct {
	ID         uuid.UUID       `json:"trade_id" gorm:"primaryKey;type:uuid"`
	AccountID  uuid.UUID       `json:"account_id" gorm:"type:uuid;index:idx_trades_account_time;not null"`
	Account    *Account        `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Ticker     string          `json:"ticker" gorm:"type:varchar(15);not null"`
	Side       Side            `json:"side" gorm:"type:varchar(4);not null"`
	Volume     int64           `json:"volume" gorm:"not null"`
	Price      decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	ExecutedAt time.Time       `json:"executed_at" gorm:"index:idx_trades_account_time"`
}

func (TradeRecord) TableName() string { return "trade_records" }

// SettlementFailure is the dead-letter record for a trade that could not be
// settled after exhausting retries. Failed trades are recorded, never dropped.
type SettlementFailure struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	TradeID   uuid.UUID `json:"trade_id" gorm:"type:uuid;index;not null"`
	AccountID uuid.UUID `json:"account_id" gorm:"type:uuid;not null"`
	Ticker    string    `json:"ticker" gorm:"type:varchar(15);not null"`
	Side      Side      `json:"side" gorm:"type:varchar(4);not null"`
	Volume    int64     `json:"volume" gorm:"not null"`
	Reason    string    `json:"reason" gorm:"type:text;not null"`
	FailedAt  time.Time `json:"failed_at"`
}

func (SettlementFailure) TableName() string { return "settlement_failures" }
