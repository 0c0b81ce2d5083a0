package auction

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// IncrementMode selects how the minimum step between bids is computed.
type IncrementMode string

const (
	IncrementAbsolute IncrementMode = "absolute"
	IncrementPercent  IncrementMode = "percent"
)

// DefaultIncrement is the absolute step used when nothing is configured.
var DefaultIncrement = decimal.NewFromInt(10)

// IncrementPolicy decides the minimum acceptable next bid.
type IncrementPolicy struct {
	Mode   IncrementMode
	Amount decimal.Decimal
}

// DefaultPolicy returns the absolute policy with DefaultIncrement.
func DefaultPolicy() IncrementPolicy {
	return IncrementPolicy{Mode: IncrementAbsolute, Amount: DefaultIncrement}
}

// NewIncrementPolicy parses a mode and amount as they appear in configuration.
func NewIncrementPolicy(mode, amount string) (IncrementPolicy, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return IncrementPolicy{}, fmt.Errorf("parsing increment %q: %w", amount, err)
	}
	p := IncrementPolicy{Mode: IncrementMode(mode), Amount: d}
	if err := p.Validate(); err != nil {
		return IncrementPolicy{}, err
	}
	return p, nil
}

// Validate reports whether the policy can be applied.
func (p IncrementPolicy) Validate() error {
	switch p.Mode {
	case IncrementAbsolute, IncrementPercent:
	default:
		return fmt.Errorf("unknown increment mode %q: %w", p.Mode, ErrValidation)
	}
	if p.Amount.IsNegative() {
		return fmt.Errorf("increment must not be negative: %w", ErrValidation)
	}
	return nil
}

// Next returns the smallest bid that beats current. Percent steps round up
// to the cent.
func (p IncrementPolicy) Next(current decimal.Decimal) decimal.Decimal {
	if p.Mode == IncrementPercent {
		step := current.Mul(p.Amount).Div(decimal.NewFromInt(100)).RoundCeil(2)
		return current.Add(step)
	}
	return current.Add(p.Amount)
}
