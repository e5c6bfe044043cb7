package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/finbase/tradeledger/pkg/errors"
)

// OpenPostgres opens the production database.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

// OpenSQLite opens a sqlite database, used for tests and standalone runs.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	db.Exec("PRAGMA busy_timeout = 5000")
	return db, nil
}

// Store is the transactional ledger store backing admission reads, the
// settlement executor and the API layer.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// AutoMigrate creates or updates the ledger schema.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Account{}, &Instrument{}, &TradeRecord{}, &SettlementFailure{})
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	var a Account
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, mapStoreError(err, "account not found")
	}
	return &a, nil
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	var a Account
	if err := s.db.WithContext(ctx).First(&a, "username = ?", username).Error; err != nil {
		return nil, mapStoreError(err, "account not found")
	}
	return &a, nil
}

func (s *Store) GetInstrument(ctx context.Context, ticker string) (*Instrument, error) {
	var in Instrument
	if err := s.db.WithContext(ctx).First(&in, "ticker = ?", ticker).Error; err != nil {
		return nil, mapStoreError(err, "instrument not found")
	}
	return &in, nil
}

// ListInstruments returns every instrument, newest first.
func (s *Store) ListInstruments(ctx context.Context) ([]Instrument, error) {
	var out []Instrument
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, mapStoreError(err, "list instruments")
	}
	return out, nil
}

// ListTrades returns an account's trade records ordered by settlement
// timestamp descending.
func (s *Store) ListTrades(ctx context.Context, accountID uuid.UUID) ([]TradeRecord, error) {
	var out []TradeRecord
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("executed_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, mapStoreError(err, "list trades")
	}
	return out, nil
}

// ListTradesInRange returns an account's trade records settled within
// [start, end], newest first.
func (s *Store) ListTradesInRange(ctx context.Context, accountID uuid.UUID, start, end time.Time) ([]TradeRecord, error) {
	var out []TradeRecord
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND executed_at BETWEEN ? AND ?", accountID, start, end).
		Order("executed_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, mapStoreError(err, "list trades in range")
	}
	return out, nil
}

func (s *Store) GetTrade(ctx context.Context, id uuid.UUID) (*TradeRecord, error) {
	var t TradeRecord
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, mapStoreError(err, "trade not found")
	}
	return &t, nil
}

func (s *Store) CreateAccount(ctx context.Context, a *Account) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.Validation("username", "already taken")
		}
		return mapStoreError(err, "create account")
	}
	return nil
}

func (s *Store) CreateInstrument(ctx context.Context, in *Instrument) error {
	if err := s.db.WithContext(ctx).Create(in).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.Validation("ticker", "already listed")
		}
		return mapStoreError(err, "create instrument")
	}
	return nil
}

// DeleteAccount removes an account and cascades to its trade records in one
// transaction.
func (s *Store) DeleteAccount(ctx context.Context, username string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a Account
		if err := tx.First(&a, "username = ?", username).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", a.ID).Delete(&TradeRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(&a).Error
	})
	if err != nil {
		return mapStoreError(err, "delete account")
	}
	return nil
}

// RecordFailure appends a dead-letter entry for a trade that exhausted its
// settlement retries.
func (s *Store) RecordFailure(ctx context.Context, f *SettlementFailure) error {
	if f.FailedAt.IsZero() {
		f.FailedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(f).Error; err != nil {
		return mapStoreError(err, "record settlement failure")
	}
	return nil
}

// ListFailures returns the dead-letter entries for an account, newest first.
func (s *Store) ListFailures(ctx context.Context, accountID uuid.UUID) ([]SettlementFailure, error) {
	var out []SettlementFailure
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("failed_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, mapStoreError(err, "list settlement failures")
	}
	return out, nil
}

// Txn exposes the reads and writes available inside an atomic commit.
type Txn struct {
	db *gorm.DB
}

func (t *Txn) Account(id uuid.UUID) (*Account, error) {
	var a Account
	if err := t.db.First(&a, "id = ?", id).Error; err != nil {
		return nil, mapStoreError(err, "account not found")
	}
	return &a, nil
}

func (t *Txn) Instrument(ticker string) (*Instrument, error) {
	var in Instrument
	if err := t.db.First(&in, "ticker = ?", ticker).Error; err != nil {
		return nil, mapStoreError(err, "instrument not found")
	}
	return &in, nil
}

func (t *Txn) SaveAccount(a *Account) error {
	if err := t.db.Save(a).Error; err != nil {
		return mapStoreError(err, "save account")
	}
	return nil
}

func (t *Txn) SaveInstrument(in *Instrument) error {
	if err := t.db.Save(in).Error; err != nil {
		return mapStoreError(err, "save instrument")
	}
	return nil
}

func (t *Txn) AppendTrade(rec *TradeRecord) error {
	if err := t.db.Create(rec).Error; err != nil {
		return mapStoreError(err, "append trade record")
	}
	return nil
}

// Commit runs fn inside a single database transaction. Every read and write
// issued through the Txn commits together or not at all.
func (s *Store) Commit(ctx context.Context, fn func(tx *Txn) error) error {
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&Txn{db: db})
	})
	if err != nil {
		return mapStoreError(err, "commit")
	}
	return nil
}

// mapStoreError converts driver errors into the service taxonomy. Lock and
// serialization failures become conflicts so the executor can retry them.
func mapStoreError(err error, msg string) error {
	var svcErr *errors.Error
	if errors.As(err, &svcErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrap(errors.KindNotFound, err, msg)
	}
	if isConflict(err) {
		return errors.Wrap(errors.KindConflict, err, msg)
	}
	return errors.Wrap(errors.KindStore, err, msg)
}

func isConflict(err error) bool {
	s := err.Error()
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "database table is locked") ||
		strings.Contains(s, "SQLSTATE 40001") ||
		strings.Contains(s, "SQLSTATE 40P01")
}
