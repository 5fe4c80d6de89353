package evm

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAddress(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "checksummed", input: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", want: true},
		{name: "lowercase", input: "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", want: true},
		{name: "uppercase", input: "0xF39FD6E51AAD88F6F4CE6AB8827279CFFFB92266", want: true},
		{name: "no prefix", input: "f39fd6e51aad88f6f4ce6ab8827279cfffb92266", want: true},
		{name: "bad checksum", input: "0xF39fd6e51aad88F6F4ce6aB8827279cffFb92266", want: false},
		{name: "too short", input: "0xf39fd6e51aad88f6f4ce6ab8827279cfffb922", want: false},
		{name: "not hex", input: "not-an-address", want: false},
		{name: "empty", input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAddress(tt.input))
		})
	}
}

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int32
		want     string
		wantErr  error
	}{
		{name: "one ether", amount: "1", decimals: 18, want: "1000000000000000000"},
		{name: "fractional ether", amount: "0.015", decimals: 18, want: "15000000000000000"},
		{name: "one wei", amount: "0.000000000000000001", decimals: 18, want: "1"},
		{name: "six decimals", amount: "2.5", decimals: 6, want: "2500000"},
		{name: "sub-wei precision", amount: "0.0000000000000000001", decimals: 18, wantErr: ErrTooPrecise},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tt.amount)
			got, err := ToBaseUnits(amount, tt.decimals)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormatUnits(t *testing.T) {
	wei, ok := new(big.Int).SetString("1500000000000000000", 10)
	require.True(t, ok)

	assert.Equal(t, "1.5", FormatUnits(wei, 18))
	assert.Equal(t, "0", FormatUnits(nil, 18))
	assert.Equal(t, "0", FormatUnits(big.NewInt(0), 18))
}
