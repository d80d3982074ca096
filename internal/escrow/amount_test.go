package escrow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/senyabanana/bounty-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFixedPoint(t *testing.T) {
	tests := []struct {
		amount   float64
		decimals uint8
		want     string
	}{
		{100, 18, "100000000000000000000"},
		{0.1, 6, "100000"},
		{1.0000005, 6, "1000001"},
		{1.0000004, 6, "1000000"},
		{0, 18, "0"},
		{33.33, 2, "3333"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v/%d", tt.amount, tt.decimals), func(t *testing.T) {
			got, err := ToFixedPoint(tt.amount, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}

	_, err := ToFixedPoint(-1, 18)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *models.WorkflowError
	}{
		{"deadline", context.DeadlineExceeded, models.ErrTimeout},
		{"already approved", errors.New("execution reverted: milestone already approved"), models.ErrConflict},
		{"balance", errors.New("insufficient funds for gas * price + value"), models.ErrContract},
		{"network", errors.New("dial tcp: connection refused"), models.ErrContract},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("op", "", tt.err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	reason, _ := Explain(errors.New("dial tcp: connection refused"))
	assert.Equal(t, ReasonNetwork, reason)

	// до отправки отмена - обычная сетевая ошибка, после отправки исход неизвестен
	assert.True(t, errors.Is(Classify("op", "", context.Canceled), models.ErrContract))
	sent := Classify("op", "0xabc", context.Canceled)
	assert.True(t, errors.Is(sent, models.ErrTimeout), "got %v", sent)
	assert.Equal(t, "0xabc", models.TxHashOf(sent))

	already := models.NewValidationError("op", "bad")
	assert.Same(t, already, Classify("other", "", already))
}

func TestAddresses(t *testing.T) {
	assert.True(t, ValidAddress(bidderAddr))
	assert.False(t, ValidAddress("1111111111111111111111111111111111111111"))
	assert.False(t, ValidAddress("0x123"))
	assert.True(t, SameAddress("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd", "0xABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCD"))
	assert.False(t, SameAddress(bidderAddr, techAddr))
}
