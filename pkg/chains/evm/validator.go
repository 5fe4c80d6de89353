package evm

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrTooPrecise is returned when an amount has more decimal places than the currency supports
var ErrTooPrecise = errors.New("amount has more decimal places than the currency supports")

// IsAddress reports whether s is a 20-byte hex address.
// Mixed-case input must carry a valid EIP-55 checksum.
func IsAddress(s string) bool {
	if !common.IsHexAddress(s) {
		return false
	}
	hexPart := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if hexPart == strings.ToLower(hexPart) || hexPart == strings.ToUpper(hexPart) {
		return true
	}
	return "0x"+hexPart == common.HexToAddress(s).Hex()
}

// ToBaseUnits converts a decimal amount to the smallest unit (e.g. ether to wei)
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("invalid decimals: %d", decimals)
	}
	shifted := amount.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, ErrTooPrecise
	}
	return shifted.BigInt(), nil
}

// FormatUnits renders a base-unit amount as a decimal string (e.g. wei to ether)
func FormatUnits(value *big.Int, decimals int32) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -decimals).String()
}
