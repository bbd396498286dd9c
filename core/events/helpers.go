package events

import (
	"strconv"

	"github.com/holiman/uint256"
)

func formatAmount(amount *uint256.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.Dec()
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }
