package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ValidWallet enforces the 0x-prefixed 20-byte hex address format.
// common.IsHexAddress alone also accepts bare hex, so the prefix is
// checked explicitly.
func ValidWallet(wallet string) bool {
	return strings.HasPrefix(wallet, "0x") && common.IsHexAddress(wallet)
}
