package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsEvmAddress(t *testing.T) {
	assert.True(t, IsEvmAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"))
	assert.True(t, IsEvmAddress("70997970c51812dc3a010c7d01b50e0d17dc79c8"))
	assert.False(t, IsEvmAddress(""))
	assert.False(t, IsEvmAddress("0x1234"))
	assert.False(t, IsEvmAddress("0xZZ997970C51812dc3A010C7d01b50e0d17dc79C8"))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8", NormalizeAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"))
	assert.Equal(t, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8", NormalizeAddress(" 70997970C51812dc3A010C7d01b50e0d17dc79C8 "))
	assert.Equal(t, "", NormalizeAddress(""))

	assert.True(t, SameAddress("0xABCDEF0000000000000000000000000000000001", "0xabcdef0000000000000000000000000000000001"))
	assert.False(t, SameAddress("0xABCDEF0000000000000000000000000000000001", "0xabcdef0000000000000000000000000000000002"))
}
