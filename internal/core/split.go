package core

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// SplitType selects the allocation strategy of a SplitRule.
type SplitType string

const (
	SplitEqual        SplitType = "equal"
	SplitProportional SplitType = "proportional"
	SplitFixed        SplitType = "fixed"
	SplitCustom       SplitType = "custom"
)

// PartnerConfig is one partner's entry in a SplitRule. The optional fields
// are meaningful per split type: Percentage is informational, FixedAmount is
// required for fixed rules, CustomAmount for custom rules.
type PartnerConfig struct {
	PartnerID    string  `json:"partnerId"`
	Percentage   *float64 `json:"percentage,omitempty"`
	FixedAmount  *Money  `json:"fixedAmount,omitempty"`
	CustomAmount *Money  `json:"customAmount,omitempty"`
}

// SplitResult is one partner's allocation from a split. Percentage is the
// informational share of the total (0-100) and may carry more precision
// than the cent-rounded amount.
type SplitResult struct {
	PartnerID  string  `json:"partnerId"`
	Amount     Money   `json:"amount"`
	Percentage float64 `json:"percentage"`
}

// SplitRule is an immutable value object binding a split strategy to an
// ordered list of partners and an effective window. All structural
// validation happens at construction, not at split time.
type SplitRule struct {
	splitType      SplitType
	partners       []PartnerConfig
	effectiveFrom  time.Time
	effectiveUntil *time.Time
}

// NewSplitRule validates and builds a SplitRule.
func NewSplitRule(splitType SplitType, partners []PartnerConfig, effectiveFrom time.Time, effectiveUntil *time.Time) (*SplitRule, error) {
	if splitType == "" {
		return nil, ErrMissingSplitType
	}
	strategy, ok := splitStrategies[splitType]
	if !ok {
		return nil, fmt.Errorf("unknown split type %q", splitType)
	}
	if len(partners) == 0 {
		return nil, ErrEmptyPartners
	}
	seen := make(map[string]struct{}, len(partners))
	for _, p := range partners {
		if p.PartnerID == "" {
			return nil, ErrEmptyPartnerID
		}
		if _, dup := seen[p.PartnerID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePartner, p.PartnerID)
		}
		seen[p.PartnerID] = struct{}{}
	}
	if effectiveFrom.IsZero() {
		return nil, ErrMissingEffectiveFrom
	}
	if effectiveUntil != nil && effectiveUntil.Before(effectiveFrom) {
		return nil, ErrInvalidPeriodRange
	}
	if err := strategy.validate(partners); err != nil {
		return nil, err
	}

	rule := &SplitRule{
		splitType:     splitType,
		partners:      clonePartners(partners),
		effectiveFrom: effectiveFrom,
	}
	if effectiveUntil != nil {
		until := *effectiveUntil
		rule.effectiveUntil = &until
	}
	return rule, nil
}

// Split allocates amount across the rule's partners. The incomes map is
// only consulted by proportional rules and must cover every partner then.
// Reconciliation is a postcondition: the produced amounts always sum back
// to the input amount, in cents.
func (r *SplitRule) Split(amount Money, incomes map[string]Money) ([]SplitResult, error) {
	if amount.IsNegative() {
		return nil, ErrNegativeAmount
	}
	if amount.IsZero() {
		return nil, ErrZeroAmount
	}
	results, err := splitStrategies[r.splitType].allocate(r.partners, amount, incomes)
	if err != nil {
		return nil, err
	}
	if err := ValidateSplit(amount, results); err != nil {
		return nil, err
	}
	return results, nil
}

// ValidateSplit checks that results reconcile exactly with the split total.
func ValidateSplit(total Money, results []SplitResult) error {
	var sum int64
	for _, res := range results {
		if res.Amount.Currency() != total.Currency() {
			return ErrCurrencyMismatch
		}
		sum += res.Amount.Cents()
	}
	if sum != total.Cents() {
		return fmt.Errorf("%w: got %d cents, want %d", ErrSplitNotReconciled, sum, total.Cents())
	}
	return nil
}

// IsActiveOn reports whether date falls inside the rule's effective window.
func (r *SplitRule) IsActiveOn(date time.Time) bool {
	if date.Before(r.effectiveFrom) {
		return false
	}
	return r.effectiveUntil == nil || !date.After(*r.effectiveUntil)
}

// Type returns the rule's split type.
func (r *SplitRule) Type() SplitType { return r.splitType }

// Partners returns a copy of the partner configuration, in rule order.
func (r *SplitRule) Partners() []PartnerConfig { return clonePartners(r.partners) }

// PartnerIDs returns the partner ids in rule order.
func (r *SplitRule) PartnerIDs() []string {
	ids := make([]string, len(r.partners))
	for i, p := range r.partners {
		ids[i] = p.PartnerID
	}
	return ids
}

// EffectiveFrom returns the start of the effective window.
func (r *SplitRule) EffectiveFrom() time.Time { return r.effectiveFrom }

// EffectiveUntil returns the optional end of the effective window.
func (r *SplitRule) EffectiveUntil() *time.Time {
	if r.effectiveUntil == nil {
		return nil
	}
	until := *r.effectiveUntil
	return &until
}

func clonePartners(partners []PartnerConfig) []PartnerConfig {
	out := make([]PartnerConfig, len(partners))
	for i, p := range partners {
		cp := PartnerConfig{PartnerID: p.PartnerID}
		if p.Percentage != nil {
			v := *p.Percentage
			cp.Percentage = &v
		}
		if p.FixedAmount != nil {
			v := *p.FixedAmount
			cp.FixedAmount = &v
		}
		if p.CustomAmount != nil {
			v := *p.CustomAmount
			cp.CustomAmount = &v
		}
		out[i] = cp
	}
	return out
}

// splitRuleJSON is the canonical snapshot shape of a rule.
type splitRuleJSON struct {
	Type           SplitType       `json:"type"`
	Partners       []PartnerConfig `json:"partners"`
	EffectiveFrom  time.Time       `json:"effectiveFrom"`
	EffectiveUntil *time.Time      `json:"effectiveUntil,omitempty"`
}

func (r *SplitRule) MarshalJSON() ([]byte, error) {
	return json.Marshal(splitRuleJSON{
		Type:           r.splitType,
		Partners:       r.Partners(),
		EffectiveFrom:  r.effectiveFrom,
		EffectiveUntil: r.EffectiveUntil(),
	})
}

// UnmarshalJSON rebuilds a rule from its canonical snapshot, re-running
// construction validation.
func (r *SplitRule) UnmarshalJSON(data []byte) error {
	var raw splitRuleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rule, err := NewSplitRule(raw.Type, raw.Partners, raw.EffectiveFrom, raw.EffectiveUntil)
	if err != nil {
		return err
	}
	*r = *rule
	return nil
}

func roundPercent(share, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(share)/float64(total)*100*100) / 100
}
