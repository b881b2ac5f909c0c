package core

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// EnvelopeType classifies who a budget envelope belongs to.
type EnvelopeType string

const (
	EnvelopeShared    EnvelopeType = "shared"
	EnvelopePersonal  EnvelopeType = "personal"
	EnvelopeGoal      EnvelopeType = "goal"
	EnvelopeEmergency EnvelopeType = "emergency"
)

// BudgetPeriod is the cadence an envelope resets on. Custom periods carry an
// explicit caller-supplied date range.
type BudgetPeriod string

const (
	PeriodMonthly   BudgetPeriod = "monthly"
	PeriodQuarterly BudgetPeriod = "quarterly"
	PeriodYearly    BudgetPeriod = "yearly"
	PeriodCustom    BudgetPeriod = "custom"
)

// RolloverPolicy controls how much unspent balance carries into the next
// period. When both caps are set the effective cap is the smaller one.
type RolloverPolicy struct {
	Enabled    bool     `json:"enabled"`
	MaxAmount  *Money   `json:"maxAmount,omitempty"`
	MaxPercent *float64 `json:"maxPercent,omitempty"`
}

// AlertThresholds are the warn/critical utilization bands in percent.
// The bands are mutually exclusive: warn covers [warn, critical), critical
// covers [critical, inf).
type AlertThresholds struct {
	WarnPercent     float64 `json:"warnPercent"`
	CriticalPercent float64 `json:"criticalPercent"`
}

// BudgetEnvelope tracks a spending limit over a period. Spending accumulates
// through AddSpending/RemoveSpending; ResetForNewPeriod zeroes it, advances
// the period window and returns the rollover amount for the caller to credit
// elsewhere.
type BudgetEnvelope struct {
	id           string
	householdID  string
	name         string
	envelopeType EnvelopeType
	ownerID      string
	period       BudgetPeriod
	limit        Money
	spent        Money
	rollover     RolloverPolicy
	thresholds   AlertThresholds
	periodStart  time.Time
	periodEnd    time.Time
	createdAt    time.Time
	updatedAt    time.Time
}

// EnvelopeParams carries the constructor input for NewBudgetEnvelope.
// CustomStart/CustomEnd are required when Period is custom and ignored
// otherwise. Now defaults to the current time and anchors the first period.
type EnvelopeParams struct {
	ID          string
	HouseholdID string
	Name        string
	Type        EnvelopeType
	OwnerID     string
	Period      BudgetPeriod
	Limit       Money
	Rollover    RolloverPolicy
	Thresholds  AlertThresholds
	CustomStart time.Time
	CustomEnd   time.Time
	Now         time.Time
}

// NewBudgetEnvelope validates params and creates an envelope with zero spent
// and period boundaries derived from the period and current date.
func NewBudgetEnvelope(p EnvelopeParams) (*BudgetEnvelope, error) {
	if p.HouseholdID == "" {
		return nil, fmt.Errorf("household id is required")
	}
	if p.Name == "" {
		return nil, ErrEmptyName
	}
	switch p.Type {
	case EnvelopeShared, EnvelopePersonal, EnvelopeGoal, EnvelopeEmergency:
	default:
		return nil, fmt.Errorf("unknown envelope type %q", p.Type)
	}
	if p.Limit.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if p.Thresholds.WarnPercent <= 0 || p.Thresholds.CriticalPercent <= 0 ||
		p.Thresholds.WarnPercent >= p.Thresholds.CriticalPercent {
		return nil, ErrInvalidThresholds
	}
	if p.Rollover.MaxPercent != nil && (*p.Rollover.MaxPercent < 0 || *p.Rollover.MaxPercent > 100) {
		return nil, ErrInvalidThreshold
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var start, end time.Time
	switch p.Period {
	case PeriodMonthly, PeriodQuarterly, PeriodYearly:
		start, end = periodBounds(p.Period, now)
	case PeriodCustom:
		if p.CustomStart.IsZero() || p.CustomEnd.IsZero() || !p.CustomEnd.After(p.CustomStart) {
			return nil, ErrMissingRange
		}
		start, end = p.CustomStart, p.CustomEnd
	default:
		return nil, ErrInvalidPeriod
	}

	id := p.ID
	if id == "" {
		id = NewID()
	}
	zero, _ := Zero(p.Limit.Currency())
	return &BudgetEnvelope{
		id:           id,
		householdID:  p.HouseholdID,
		name:         p.Name,
		envelopeType: p.Type,
		ownerID:      p.OwnerID,
		period:       p.Period,
		limit:        p.Limit,
		spent:        zero,
		rollover:     cloneRollover(p.Rollover),
		thresholds:   p.Thresholds,
		periodStart:  start,
		periodEnd:    end,
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

// periodBounds computes [start, end] for the calendar period containing now.
func periodBounds(period BudgetPeriod, now time.Time) (time.Time, time.Time) {
	y, m, _ := now.Date()
	loc := now.Location()
	switch period {
	case PeriodQuarterly:
		qm := time.Month((int(m)-1)/3*3 + 1)
		start := time.Date(y, qm, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 3, -1)
	case PeriodYearly:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc),
			time.Date(y, time.December, 31, 0, 0, 0, 0, loc)
	default: // monthly
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, -1)
	}
}

func cloneRollover(r RolloverPolicy) RolloverPolicy {
	out := RolloverPolicy{Enabled: r.Enabled}
	if r.MaxAmount != nil {
		v := *r.MaxAmount
		out.MaxAmount = &v
	}
	if r.MaxPercent != nil {
		v := *r.MaxPercent
		out.MaxPercent = &v
	}
	return out
}

func (e *BudgetEnvelope) ID() string              { return e.id }
func (e *BudgetEnvelope) HouseholdID() string     { return e.householdID }
func (e *BudgetEnvelope) Name() string            { return e.name }
func (e *BudgetEnvelope) Type() EnvelopeType      { return e.envelopeType }
func (e *BudgetEnvelope) OwnerID() string         { return e.ownerID }
func (e *BudgetEnvelope) Period() BudgetPeriod    { return e.period }
func (e *BudgetEnvelope) Limit() Money            { return e.limit }
func (e *BudgetEnvelope) Spent() Money            { return e.spent }
func (e *BudgetEnvelope) PeriodStart() time.Time  { return e.periodStart }
func (e *BudgetEnvelope) PeriodEnd() time.Time    { return e.periodEnd }
func (e *BudgetEnvelope) CreatedAt() time.Time    { return e.createdAt }
func (e *BudgetEnvelope) UpdatedAt() time.Time    { return e.updatedAt }

// Rollover returns a copy of the rollover policy.
func (e *BudgetEnvelope) Rollover() RolloverPolicy { return cloneRollover(e.rollover) }

// Thresholds returns the alert bands.
func (e *BudgetEnvelope) Thresholds() AlertThresholds { return e.thresholds }

// AddSpending accumulates spending against the envelope.
func (e *BudgetEnvelope) AddSpending(amount Money) error {
	if err := e.checkSpending(amount); err != nil {
		return err
	}
	e.spent, _ = e.spent.Add(amount)
	e.updatedAt = time.Now().UTC()
	return nil
}

// RemoveSpending reverses previously recorded spending.
func (e *BudgetEnvelope) RemoveSpending(amount Money) error {
	if err := e.checkSpending(amount); err != nil {
		return err
	}
	e.spent, _ = e.spent.Subtract(amount)
	e.updatedAt = time.Now().UTC()
	return nil
}

func (e *BudgetEnvelope) checkSpending(amount Money) error {
	if amount.Currency() != e.limit.Currency() {
		return ErrCurrencyMismatch
	}
	if amount.IsNegative() {
		return ErrNegativeSpending
	}
	return nil
}

// Available returns limit minus spent. A negative result signals overage.
func (e *BudgetEnvelope) Available() Money {
	available, _ := e.limit.Subtract(e.spent)
	return available
}

// UtilizationPercent returns spent as a percentage of the limit, 0 when the
// limit is zero.
func (e *BudgetEnvelope) UtilizationPercent() float64 {
	if e.limit.IsZero() {
		return 0
	}
	return float64(e.spent.Cents()) / float64(e.limit.Cents()) * 100
}

// IsOverBudget reports whether spending exceeded the limit.
func (e *BudgetEnvelope) IsOverBudget() bool {
	return e.spent.Cents() > e.limit.Cents()
}

// ShouldWarn reports utilization inside [warn, critical).
func (e *BudgetEnvelope) ShouldWarn() bool {
	pct := e.UtilizationPercent()
	return pct >= e.thresholds.WarnPercent && pct < e.thresholds.CriticalPercent
}

// ShouldAlertCritical reports utilization at or beyond the critical band.
func (e *BudgetEnvelope) ShouldAlertCritical() bool {
	return e.UtilizationPercent() >= e.thresholds.CriticalPercent
}

// ResetForNewPeriod closes the current period: it computes the rollover
// amount, zeroes spent and advances the period window. The caller credits
// the returned amount wherever it should land, e.g. the next period's
// envelope.
func (e *BudgetEnvelope) ResetForNewPeriod(now time.Time) (Money, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	rollover, _ := Zero(e.limit.Currency())

	if e.rollover.Enabled {
		available := e.Available()
		if available.IsPositive() {
			rollover = available
			if e.rollover.MaxAmount != nil && rollover.Cents() > e.rollover.MaxAmount.Cents() {
				rollover = *e.rollover.MaxAmount
			}
			if e.rollover.MaxPercent != nil {
				capped, err := available.Multiply(*e.rollover.MaxPercent / 100)
				if err != nil {
					return rollover, err
				}
				if capped.Cents() < rollover.Cents() {
					rollover = capped
				}
			}
		}
	}

	e.spent, _ = Zero(e.limit.Currency())
	if e.period == PeriodCustom {
		// Advance the custom window by its own width.
		width := e.periodEnd.Sub(e.periodStart)
		e.periodStart = e.periodEnd
		e.periodEnd = e.periodEnd.Add(width)
	} else {
		e.periodStart, e.periodEnd = periodBounds(e.period, now)
	}
	e.updatedAt = time.Now().UTC()
	return rollover, nil
}

type envelopeJSON struct {
	ID            string          `json:"id"`
	HouseholdID   string          `json:"householdId"`
	Name          string          `json:"name"`
	Type          EnvelopeType    `json:"type"`
	OwnerID       string          `json:"ownerId,omitempty"`
	Period        BudgetPeriod    `json:"period"`
	Limit         Money           `json:"limit"`
	Spent         Money           `json:"spent"`
	Available     Money           `json:"available"`
	Utilization   float64         `json:"utilizationPercent"`
	OverBudget    bool            `json:"overBudget"`
	Rollover      RolloverPolicy  `json:"rollover"`
	Thresholds    AlertThresholds `json:"thresholds"`
	PeriodStart   time.Time       `json:"periodStart"`
	PeriodEnd     time.Time       `json:"periodEnd"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// MarshalJSON emits the canonical snapshot, derived fields included.
func (e *BudgetEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelopeJSON{
		ID:          e.id,
		HouseholdID: e.householdID,
		Name:        e.name,
		Type:        e.envelopeType,
		OwnerID:     e.ownerID,
		Period:      e.period,
		Limit:       e.limit,
		Spent:       e.spent,
		Available:   e.Available(),
		Utilization: math.Round(e.UtilizationPercent()*100) / 100,
		OverBudget:  e.IsOverBudget(),
		Rollover:    e.Rollover(),
		Thresholds:  e.thresholds,
		PeriodStart: e.periodStart,
		PeriodEnd:   e.periodEnd,
		CreatedAt:   e.createdAt,
		UpdatedAt:   e.updatedAt,
	})
}

// UnmarshalJSON rehydrates an envelope from its canonical snapshot.
func (e *BudgetEnvelope) UnmarshalJSON(data []byte) error {
	var raw envelopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = BudgetEnvelope{
		id:           raw.ID,
		householdID:  raw.HouseholdID,
		name:         raw.Name,
		envelopeType: raw.Type,
		ownerID:      raw.OwnerID,
		period:       raw.Period,
		limit:        raw.Limit,
		spent:        raw.Spent,
		rollover:     raw.Rollover,
		thresholds:   raw.Thresholds,
		periodStart:  raw.PeriodStart,
		periodEnd:    raw.PeriodEnd,
		createdAt:    raw.CreatedAt,
		updatedAt:    raw.UpdatedAt,
	}
	return nil
}
