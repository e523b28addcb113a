package address

import (
	"errors"
	"strings"

	"ethfolio/pkg/models"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidAddress = errors.New("invalid address: make sure you enter a valid Ethereum address")

// Valid reports whether s is a well-formed Ethereum address, with or without
// the 0x prefix. Mixed-case input must carry a correct EIP-55 checksum.
func Valid(s string) bool {
	if !common.IsHexAddress(s) {
		return false
	}
	body := strings.TrimPrefix(s, "0x")
	if len(body) != 2*common.AddressLength {
		return false
	}
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return common.HexToAddress(body).Hex()[2:] == body
}

// Normalize validates s and returns its checksummed form.
func Normalize(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !Valid(s) {
		return "", models.NewLoadError(models.FailureInput, "validate address", ErrInvalidAddress)
	}
	return common.HexToAddress(s).Hex(), nil
}

// Shorten renders an address as its first four and last four characters.
func Shorten(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}
