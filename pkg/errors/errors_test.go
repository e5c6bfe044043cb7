package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(KindInsufficientFunds, "balance too low")
	assert.Equal(t, KindInsufficientFunds, KindOf(err))
	assert.True(t, IsKind(err, KindInsufficientFunds))
	assert.False(t, IsKind(err, KindNotFound))

	assert.Equal(t, KindUnknown, KindOf(fmt.Errorf("plain")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk on fire")
	err := Wrap(KindStore, cause, "commit failed")

	assert.True(t, Is(err, cause))
	assert.Contains(t, err.Error(), "commit failed")
	assert.Contains(t, err.Error(), "disk on fire")

	// Wrapping another layer still exposes the kind.
	outer := fmt.Errorf("settle: %w", err)
	assert.True(t, IsKind(outer, KindStore))
}

func TestValidationFields(t *testing.T) {
	err := Validation("open_price", "must be less than or equal to the high value")
	assert.Equal(t, KindValidation, err.Kind)
	assert.Len(t, err.Fields, 1)
	assert.Equal(t, "open_price", err.Fields[0].Field)

	err = err.WithField("close_price", "out of range")
	assert.Len(t, err.Fields, 2)
}
