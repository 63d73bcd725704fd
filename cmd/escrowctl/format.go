package main

import (
	"math/big"
	"strings"

	"StakeEscrow-Chain/internal/contracts"
)

// formatTokens renders base units as a decimal token amount without
// trailing zeros.
func formatTokens(units *big.Int) string {
	if units == nil {
		return "0"
	}
	quo, rem := new(big.Int).QuoRem(new(big.Int).Abs(units), contracts.M(), new(big.Int))
	sign := ""
	if units.Sign() < 0 {
		sign = "-"
	}
	if rem.Sign() == 0 {
		return sign + quo.String()
	}
	frac := rem.String()
	frac = strings.Repeat("0", contracts.TokenDecimals-len(frac)) + frac
	return sign + quo.String() + "." + strings.TrimRight(frac, "0")
}
