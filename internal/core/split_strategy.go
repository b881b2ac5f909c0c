// This file implements the Strategy Pattern for split allocation. Each split
// type has its own strategy that validates partner configuration at rule
// construction and allocates cents at split time. Every strategy must return
// amounts that sum exactly to the input, so remainder cents are distributed
// deterministically in partner order.

package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// splitStrategy is the strategy interface behind SplitRule dispatch.
type splitStrategy interface {
	// validate checks the structural per-type requirements of the partner
	// configuration at rule construction time.
	validate(partners []PartnerConfig) error

	// allocate distributes amount across partners. Postcondition: the
	// returned amounts reconcile exactly with amount, in cents.
	allocate(partners []PartnerConfig, amount Money, incomes map[string]Money) ([]SplitResult, error)
}

// splitStrategies maps split types to their corresponding strategies.
var splitStrategies = map[SplitType]splitStrategy{
	SplitEqual:        equalSplit{},
	SplitProportional: proportionalSplit{},
	SplitFixed:        fixedSplit{},
	SplitCustom:       customSplit{},
}

// equalSplit divides the amount evenly; leftover cents go to the partners
// listed first.
type equalSplit struct{}

func (equalSplit) validate([]PartnerConfig) error { return nil }

func (equalSplit) allocate(partners []PartnerConfig, amount Money, _ map[string]Money) ([]SplitResult, error) {
	shares := distributeEvenly(amount.Cents(), len(partners))
	results := make([]SplitResult, len(partners))
	for i, p := range partners {
		share, _ := FromCents(shares[i], amount.Currency())
		results[i] = SplitResult{
			PartnerID:  p.PartnerID,
			Amount:     share,
			Percentage: roundPercent(1, int64(len(partners))),
		}
	}
	return results, nil
}

// proportionalSplit allocates by partner income share. Raw shares are
// floored to cents and the leftover cents are handed out by largest
// fractional remainder, earlier partners first on ties.
type proportionalSplit struct{}

func (proportionalSplit) validate([]PartnerConfig) error { return nil }

func (proportionalSplit) allocate(partners []PartnerConfig, amount Money, incomes map[string]Money) ([]SplitResult, error) {
	var totalIncome int64
	for _, p := range partners {
		income, ok := incomes[p.PartnerID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingIncome, p.PartnerID)
		}
		if income.Currency() != amount.Currency() {
			return nil, ErrCurrencyMismatch
		}
		if !income.IsPositive() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidIncome, p.PartnerID)
		}
		totalIncome += income.Cents()
	}
	if totalIncome == 0 {
		return nil, ErrInvalidIncome
	}

	total := decimal.NewFromInt(totalIncome)
	floors := make([]int64, len(partners))
	fracs := make([]decimal.Decimal, len(partners))
	var allocated int64
	for i, p := range partners {
		raw := decimal.NewFromInt(amount.Cents()).
			Mul(decimal.NewFromInt(incomes[p.PartnerID].Cents())).
			Div(total)
		floor := raw.Floor()
		floors[i] = floor.IntPart()
		fracs[i] = raw.Sub(floor)
		allocated += floors[i]
	}

	// Hand out the cents lost to flooring, largest remainder first.
	for leftover := amount.Cents() - allocated; leftover > 0; leftover-- {
		best := -1
		for i := range partners {
			if best == -1 || fracs[i].GreaterThan(fracs[best]) {
				best = i
			}
		}
		floors[best]++
		fracs[best] = decimal.NewFromInt(-1)
	}

	results := make([]SplitResult, len(partners))
	for i, p := range partners {
		share, _ := FromCents(floors[i], amount.Currency())
		results[i] = SplitResult{
			PartnerID:  p.PartnerID,
			Amount:     share,
			Percentage: roundPercent(incomes[p.PartnerID].Cents(), totalIncome),
		}
	}
	return results, nil
}

// fixedSplit gives each partner their configured fixed amount plus an equal
// share of whatever remains. This is fixed-plus-equal-remainder, not pure
// fixed allocation.
type fixedSplit struct{}

func (fixedSplit) validate(partners []PartnerConfig) error {
	for _, p := range partners {
		if p.FixedAmount == nil {
			return fmt.Errorf("%w: %s", ErrMissingFixedAmount, p.PartnerID)
		}
		if p.FixedAmount.IsNegative() {
			return fmt.Errorf("%w: %s", ErrNegativeFixedAmount, p.PartnerID)
		}
	}
	return nil
}

func (fixedSplit) allocate(partners []PartnerConfig, amount Money, _ map[string]Money) ([]SplitResult, error) {
	var fixedSum int64
	for _, p := range partners {
		if p.FixedAmount.Currency() != amount.Currency() {
			return nil, ErrCurrencyMismatch
		}
		fixedSum += p.FixedAmount.Cents()
	}
	if fixedSum > amount.Cents() {
		return nil, ErrFixedAmountExceeded
	}

	remainderShares := distributeEvenly(amount.Cents()-fixedSum, len(partners))
	results := make([]SplitResult, len(partners))
	for i, p := range partners {
		cents := p.FixedAmount.Cents() + remainderShares[i]
		share, _ := FromCents(cents, amount.Currency())
		results[i] = SplitResult{
			PartnerID:  p.PartnerID,
			Amount:     share,
			Percentage: roundPercent(cents, amount.Cents()),
		}
	}
	return results, nil
}

// customSplit requires the configured amounts to sum exactly to the total;
// there is no remainder to distribute.
type customSplit struct{}

func (customSplit) validate(partners []PartnerConfig) error {
	for _, p := range partners {
		if p.CustomAmount == nil {
			return fmt.Errorf("%w: %s", ErrMissingCustomAmount, p.PartnerID)
		}
	}
	return nil
}

func (customSplit) allocate(partners []PartnerConfig, amount Money, _ map[string]Money) ([]SplitResult, error) {
	var sum int64
	for _, p := range partners {
		if p.CustomAmount.Currency() != amount.Currency() {
			return nil, ErrCurrencyMismatch
		}
		sum += p.CustomAmount.Cents()
	}
	if sum != amount.Cents() {
		return nil, fmt.Errorf("%w: got %d cents, want %d", ErrCustomAmountMismatch, sum, amount.Cents())
	}

	results := make([]SplitResult, len(partners))
	for i, p := range partners {
		results[i] = SplitResult{
			PartnerID:  p.PartnerID,
			Amount:     *p.CustomAmount,
			Percentage: roundPercent(p.CustomAmount.Cents(), amount.Cents()),
		}
	}
	return results, nil
}

// distributeEvenly splits cents into n near-equal shares; the first
// cents%n shares carry one extra cent.
func distributeEvenly(cents int64, n int) []int64 {
	base := cents / int64(n)
	extra := cents % int64(n)
	shares := make([]int64, n)
	for i := range shares {
		shares[i] = base
		if int64(i) < extra {
			shares[i]++
		}
	}
	return shares
}
