package web3

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var abiCache sync.Map // compact ABI JSON -> abi.ABI

// ParseABI parses and memoises an ABI document.
func ParseABI(abiJSON string) (abi.ABI, error) {
	key := CompactABI(abiJSON)
	if cached, ok := abiCache.Load(key); ok {
		return cached.(abi.ABI), nil
	}
	parsed, err := abi.JSON(strings.NewReader(key))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("解析 ABI 失败: %w", err)
	}
	abiCache.Store(key, parsed)
	return parsed, nil
}

// MustParseABI is ParseABI for embedded documents known to be valid.
func MustParseABI(abiJSON string) abi.ABI {
	parsed, err := ParseABI(abiJSON)
	if err != nil {
		panic(err)
	}
	return parsed
}
