package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePhone(t *testing.T) {
	tests := []struct {
		phone string
		valid bool
	}{
		{"0241234567", true},
		{"+233241234567", true},
		{"0201234567", true},
		{"0141234567", false},
		{"024123456", false},
		{"+2330241234567", false},
		{"", false},
		{"phone", false},
	}
	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			err := ValidatePhone(tt.phone)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidPhone)
			}
		})
	}
}

func TestProviderFor(t *testing.T) {
	assert.Equal(t, ProviderMTN, ProviderFor("0241234567"))
	assert.Equal(t, ProviderMTN, ProviderFor("+233551234567"))
	assert.Equal(t, ProviderTelecel, ProviderFor("0501234567"))
	assert.Equal(t, ProviderAirtelTigo, ProviderFor("+233271234567"))
}

func TestAmount(t *testing.T) {
	a, err := NewAmount(decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.Equal(t, int64(500), a.MinorUnits())
	assert.Equal(t, 5, a.Votes())
	assert.True(t, AmountFromMinor(500).Equal(a.Decimal))

	_, err = NewAmount(decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = NewAmount(decimal.RequireFromString("2.5"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDefaultEmail(t *testing.T) {
	assert.Equal(t, "0241234567@voting.com", DefaultEmail("0241234567"))
}
