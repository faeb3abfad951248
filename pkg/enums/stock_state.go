package enums

import "fmt"

// StockState is the single machine tracking whether an order currently holds
// allocated inventory. Transitions: unallocated -> allocated <-> returned.
// An order in "returned" still has its ledger rows; the physical units are back
// in their original batches.
type StockState string

const (
	StockStateUnallocated StockState = "unallocated"
	StockStateAllocated   StockState = "allocated"
	StockStateReturned    StockState = "returned"
)

var validStockStates = []StockState{
	StockStateUnallocated,
	StockStateAllocated,
	StockStateReturned,
}

// String implements fmt.Stringer.
func (s StockState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StockState.
func (s StockState) IsValid() bool {
	for _, candidate := range validStockStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// HoldsStock reports whether batches are currently depleted on this order's behalf.
func (s StockState) HoldsStock() bool {
	return s == StockStateAllocated
}

// ParseStockState converts raw input into a StockState.
func ParseStockState(value string) (StockState, error) {
	for _, candidate := range validStockStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock state %q", value)
}
