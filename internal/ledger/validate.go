package ledger

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/finbase/tradeledger/pkg/errors"
)

// ValidateAccount checks the registration shape of an account.
func ValidateAccount(a *Account) error {
	username := strings.TrimSpace(a.Username)
	if len(username) < 3 {
		return errors.Validation("username", "must be at least 3 characters long")
	}
	if allDigits(username) {
		return errors.Validation("username", "must not consist of digits only")
	}
	if a.Balance.IsNegative() {
		return errors.Validation("balance", "must not be negative")
	}
	return nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ValidateInstrument checks the price envelope of an instrument: every price
// is non-negative, low <= high, and open/close lie within [low, high].
// Violations are tagged with the offending field.
func ValidateInstrument(in *Instrument) error {
	if strings.TrimSpace(in.Ticker) == "" {
		return errors.Validation("ticker", "must not be empty")
	}
	if in.Volume < 0 {
		return errors.Validation("volume", "must not be negative")
	}
	for _, p := range []struct {
		field string
		value decimal.Decimal
	}{
		{"open_price", in.OpenPrice},
		{"close_price", in.ClosePrice},
		{"high", in.High},
		{"low", in.Low},
	} {
		if p.value.IsNegative() {
			return errors.Validation(p.field, "must not be negative")
		}
	}
	if in.Low.GreaterThan(in.High) {
		return errors.Validation("low", "must be less than or equal to the high value")
	}
	if in.OpenPrice.GreaterThan(in.High) {
		return errors.Validation("open_price", "must be less than or equal to the high value")
	}
	if in.ClosePrice.GreaterThan(in.High) {
		return errors.Validation("close_price", "must be less than or equal to the high value")
	}
	if in.OpenPrice.LessThan(in.Low) {
		return errors.Validation("open_price", "must be greater than or equal to the low value")
	}
	if in.ClosePrice.LessThan(in.Low) {
		return errors.Validation("close_price", "must be greater than or equal to the low value")
	}
	return nil
}

// ValidateTrade checks the shape of a candidate trade against the instrument
// it targets. It rejects buys larger than the instrument's available volume
// before the trade ever reaches the queue.
func ValidateTrade(side Side, volume int64, in *Instrument) error {
	if !side.Valid() {
		return errors.Validation("side", "must be either buy or sell")
	}
	if volume < 1 {
		return errors.Validation("volume", "must be a positive integer")
	}
	if side == SideBuy && volume > in.Volume {
		return errors.Validation("volume", "must be less than or equal to the instrument volume")
	}
	return nil
}
