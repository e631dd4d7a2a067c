package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SplitMode selects how a cost-split breakdown divides an amount.
type SplitMode string

const (
	// SplitModeEqual divides the amount evenly between everyone involved.
	SplitModeEqual SplitMode = "equal"
	// SplitModeCustom assigns explicit amounts to each participant.
	SplitModeCustom SplitMode = "custom"
)

// ErrInvalidBreakdown is returned for malformed cost-split breakdowns.
var ErrInvalidBreakdown = errors.New("invalid split breakdown")

// SplitBreakdown describes who owes what for a shared transaction.
// It is independent of split groups.
type SplitBreakdown struct {
	CustomAmounts map[string]float64 `json:"custom_amounts,omitempty"`
	Mode          SplitMode          `json:"mode"`
	Participants  []string           `json:"participants"`
	IncludeOwner  bool               `json:"include_owner"`
}

// Clone returns a deep copy of the breakdown.
func (b SplitBreakdown) Clone() SplitBreakdown {
	c := b
	c.Participants = append([]string(nil), b.Participants...)
	if b.CustomAmounts != nil {
		c.CustomAmounts = make(map[string]float64, len(b.CustomAmounts))
		for k, v := range b.CustomAmounts {
			c.CustomAmounts[k] = v
		}
	}
	return c
}

// Validate checks the breakdown against the amount it will be applied to.
func (b SplitBreakdown) Validate(total float64) error {
	if len(b.Participants) == 0 {
		return fmt.Errorf("%w: at least one participant is required", ErrInvalidBreakdown)
	}

	seen := make(map[string]bool, len(b.Participants))
	for _, p := range b.Participants {
		name := strings.TrimSpace(p)
		if name == "" {
			return fmt.Errorf("%w: empty participant name", ErrInvalidBreakdown)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate participant %q", ErrInvalidBreakdown, name)
		}
		seen[name] = true
	}

	switch b.Mode {
	case SplitModeEqual:
		return nil
	case SplitModeCustom:
		sum := decimal.Zero
		for name, amount := range b.CustomAmounts {
			if !seen[name] {
				return fmt.Errorf("%w: custom amount for unknown participant %q", ErrInvalidBreakdown, name)
			}
			if amount < 0 {
				return fmt.Errorf("%w: negative amount for %q", ErrInvalidBreakdown, name)
			}
			sum = sum.Add(decimal.NewFromFloat(amount))
		}
		if sum.GreaterThan(decimal.NewFromFloat(total).Abs()) {
			return fmt.Errorf("%w: custom amounts %s exceed total %.2f", ErrInvalidBreakdown, sum.StringFixed(2), total)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidBreakdown, b.Mode)
	}
}

// OwnerShare returns the portion of total attributable to the record owner.
func (b SplitBreakdown) OwnerShare(total float64) float64 {
	if !b.IncludeOwner {
		return 0
	}

	amount := decimal.NewFromFloat(total).Abs()
	switch b.Mode {
	case SplitModeCustom:
		owed := decimal.Zero
		for _, v := range b.CustomAmounts {
			owed = owed.Add(decimal.NewFromFloat(v))
		}
		share, _ := amount.Sub(owed).Round(2).Float64()
		return share
	default:
		heads := decimal.NewFromInt(int64(len(b.Participants) + 1))
		share, _ := amount.DivRound(heads, 2).Float64()
		return share
	}
}
