package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// IsEvmAddress checks whether address is a 20 byte hex address, with or without 0x
func IsEvmAddress(address string) bool {
	address = strings.TrimSpace(address)
	if address == "" {
		return false
	}
	if !strings.HasPrefix(strings.ToLower(address), "0x") {
		address = "0x" + address
	}
	return common.IsHexAddress(address) && len(address) == 42
}

// NormalizeAddress returns the canonical lowercase 0x form of an EVM address.
// Every stored or compared address goes through here so checksummed and
// lowercase spellings of the same account are equal.
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(address), "0x") {
		address = "0x" + address
	}
	return strings.ToLower(address)
}

// SameAddress compares two EVM addresses case-insensitively
func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}
