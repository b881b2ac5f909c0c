package core

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// AgreementType classifies what category of money an agreement governs.
type AgreementType string

const (
	AgreementFixedExpenses    AgreementType = "fixed_expenses"
	AgreementVariableExpenses AgreementType = "variable_expenses"
	AgreementSavings          AgreementType = "savings"
	AgreementDebt             AgreementType = "debt"
	AgreementEmergencyFund    AgreementType = "emergency_fund"
	AgreementGoalContribution AgreementType = "goal_contribution"
)

// AgreementStatus is the lifecycle state of an agreement. Inactive is
// representable for loaded data but no transition produces it.
type AgreementStatus string

const (
	AgreementActive     AgreementStatus = "active"
	AgreementInactive   AgreementStatus = "inactive"
	AgreementSuspended  AgreementStatus = "suspended"
	AgreementTerminated AgreementStatus = "terminated"
)

// AlertConfig controls deviation alerting for an agreement.
type AlertConfig struct {
	Enabled          bool     `json:"enabled"`
	ThresholdPercent float64  `json:"thresholdPercent"`
	Channels         []string `json:"channels"`
}

// HistoryEntry records one mutation of an agreement. The log is append-only;
// entries are never edited or removed.
type HistoryEntry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	ActorID   string          `json:"actorId"`
	Change    string          `json:"change"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// Agreement binds a split rule to a household with a lifecycle, an effective
// window, alert configuration and a full change history. The owning
// household aggregate enforces at most one active agreement per type.
type Agreement struct {
	id             string
	householdID    string
	agreementType  AgreementType
	name           string
	description    string
	rule           *SplitRule
	status         AgreementStatus
	effectiveFrom  time.Time
	effectiveUntil *time.Time
	alerts         AlertConfig
	history        []HistoryEntry
	createdAt      time.Time
	updatedAt      time.Time
}

// AgreementParams carries the constructor input for NewAgreement.
type AgreementParams struct {
	ID             string
	HouseholdID    string
	Type           AgreementType
	Name           string
	Description    string
	Rule           *SplitRule
	EffectiveFrom  time.Time
	EffectiveUntil *time.Time
	Alerts         AlertConfig
	ActorID        string
}

// NewAgreement validates params and creates an active agreement with a
// "created" history entry.
func NewAgreement(p AgreementParams) (*Agreement, error) {
	if p.HouseholdID == "" {
		return nil, fmt.Errorf("%w: household id is required", ErrInvalidAgreement)
	}
	switch p.Type {
	case AgreementFixedExpenses, AgreementVariableExpenses, AgreementSavings,
		AgreementDebt, AgreementEmergencyFund, AgreementGoalContribution:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidAgreement, p.Type)
	}
	if p.Name == "" {
		return nil, ErrEmptyName
	}
	if p.Rule == nil {
		return nil, fmt.Errorf("%w: split rule is required", ErrInvalidAgreement)
	}
	if p.EffectiveFrom.IsZero() {
		return nil, ErrMissingEffectiveFrom
	}
	if p.EffectiveUntil != nil && p.EffectiveUntil.Before(p.EffectiveFrom) {
		return nil, ErrInvalidPeriodRange
	}
	if err := validateAlerts(p.Alerts); err != nil {
		return nil, err
	}

	id := p.ID
	if id == "" {
		id = NewID()
	}
	now := time.Now().UTC()
	a := &Agreement{
		id:            id,
		householdID:   p.HouseholdID,
		agreementType: p.Type,
		name:          p.Name,
		description:   p.Description,
		rule:          p.Rule,
		status:        AgreementActive,
		effectiveFrom: p.EffectiveFrom,
		alerts:        cloneAlerts(p.Alerts),
		createdAt:     now,
		updatedAt:     now,
	}
	if p.EffectiveUntil != nil {
		until := *p.EffectiveUntil
		a.effectiveUntil = &until
	}
	a.record(p.ActorID, "created", nil, a.snapshot(), "")
	return a, nil
}

func validateAlerts(cfg AlertConfig) error {
	if cfg.ThresholdPercent < 0 || cfg.ThresholdPercent > 100 {
		return ErrInvalidThreshold
	}
	return nil
}

func cloneAlerts(cfg AlertConfig) AlertConfig {
	out := cfg
	out.Channels = append([]string(nil), cfg.Channels...)
	return out
}

func (a *Agreement) ID() string                 { return a.id }
func (a *Agreement) HouseholdID() string        { return a.householdID }
func (a *Agreement) Type() AgreementType        { return a.agreementType }
func (a *Agreement) Name() string               { return a.name }
func (a *Agreement) Description() string        { return a.description }
func (a *Agreement) Status() AgreementStatus    { return a.status }
func (a *Agreement) Rule() *SplitRule           { return a.rule }
func (a *Agreement) EffectiveFrom() time.Time   { return a.effectiveFrom }
func (a *Agreement) CreatedAt() time.Time       { return a.createdAt }
func (a *Agreement) UpdatedAt() time.Time       { return a.updatedAt }

// Alerts returns a copy of the alert configuration.
func (a *Agreement) Alerts() AlertConfig { return cloneAlerts(a.alerts) }

// EffectiveUntil returns the optional end of the effective window.
func (a *Agreement) EffectiveUntil() *time.Time {
	if a.effectiveUntil == nil {
		return nil
	}
	until := *a.effectiveUntil
	return &until
}

// IsActiveOn reports whether the agreement governs splits on the given date:
// status must be active and the date inside the effective window.
func (a *Agreement) IsActiveOn(date time.Time) bool {
	if a.status != AgreementActive {
		return false
	}
	if date.Before(a.effectiveFrom) {
		return false
	}
	return a.effectiveUntil == nil || !date.After(*a.effectiveUntil)
}

// Rename updates the agreement name and records the change.
func (a *Agreement) Rename(name, actorID, reason string) error {
	if err := a.mutable(); err != nil {
		return err
	}
	if name == "" {
		return ErrEmptyName
	}
	before := a.name
	a.name = name
	a.record(actorID, "name_updated", rawJSON(before), rawJSON(name), reason)
	return nil
}

// UpdateDescription replaces the free-text description.
func (a *Agreement) UpdateDescription(description, actorID, reason string) error {
	if err := a.mutable(); err != nil {
		return err
	}
	before := a.description
	a.description = description
	a.record(actorID, "description_updated", rawJSON(before), rawJSON(description), reason)
	return nil
}

// UpdateSplitRule swaps the split rule.
func (a *Agreement) UpdateSplitRule(rule *SplitRule, actorID, reason string) error {
	if err := a.mutable(); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: split rule is required", ErrInvalidAgreement)
	}
	before := a.rule
	a.rule = rule
	a.record(actorID, "split_rule_updated", rawJSON(before), rawJSON(rule), reason)
	return nil
}

// UpdateEffectivePeriod moves the effective window.
func (a *Agreement) UpdateEffectivePeriod(from time.Time, until *time.Time, actorID, reason string) error {
	if err := a.mutable(); err != nil {
		return err
	}
	if from.IsZero() {
		return ErrMissingEffectiveFrom
	}
	if until != nil && until.Before(from) {
		return ErrInvalidPeriodRange
	}
	before := map[string]any{"effectiveFrom": a.effectiveFrom, "effectiveUntil": a.effectiveUntil}
	a.effectiveFrom = from
	if until != nil {
		u := *until
		a.effectiveUntil = &u
	} else {
		a.effectiveUntil = nil
	}
	after := map[string]any{"effectiveFrom": a.effectiveFrom, "effectiveUntil": a.effectiveUntil}
	a.record(actorID, "effective_period_updated", rawJSON(before), rawJSON(after), reason)
	return nil
}

// UpdateAlerts replaces the alert configuration.
func (a *Agreement) UpdateAlerts(cfg AlertConfig, actorID, reason string) error {
	if err := a.mutable(); err != nil {
		return err
	}
	if err := validateAlerts(cfg); err != nil {
		return err
	}
	before := a.alerts
	a.alerts = cloneAlerts(cfg)
	a.record(actorID, "alerts_updated", rawJSON(before), rawJSON(a.alerts), reason)
	return nil
}

// Suspend pauses an active agreement.
func (a *Agreement) Suspend(actorID, reason string) error {
	if a.status != AgreementActive {
		return fmt.Errorf("%w: cannot suspend from %s", ErrInvalidTransition, a.status)
	}
	a.transition(AgreementSuspended, actorID, "suspended", reason)
	return nil
}

// Resume reactivates a suspended agreement.
func (a *Agreement) Resume(actorID, reason string) error {
	if a.status != AgreementSuspended {
		return fmt.Errorf("%w: cannot resume from %s", ErrInvalidTransition, a.status)
	}
	a.transition(AgreementActive, actorID, "resumed", reason)
	return nil
}

// Terminate ends the agreement for good and closes the effective window.
// Termination is irreversible.
func (a *Agreement) Terminate(actorID, reason string) error {
	if a.status == AgreementTerminated {
		return ErrAgreementTerminated
	}
	if a.status != AgreementActive && a.status != AgreementSuspended {
		return fmt.Errorf("%w: cannot terminate from %s", ErrInvalidTransition, a.status)
	}
	now := time.Now().UTC()
	a.effectiveUntil = &now
	a.transition(AgreementTerminated, actorID, "terminated", reason)
	return nil
}

func (a *Agreement) mutable() error {
	if a.status == AgreementTerminated {
		return ErrAgreementTerminated
	}
	return nil
}

func (a *Agreement) transition(to AgreementStatus, actorID, change, reason string) {
	before := a.status
	a.status = to
	a.record(actorID, change, rawJSON(before), rawJSON(to), reason)
}

func (a *Agreement) record(actorID, change string, before, after json.RawMessage, reason string) {
	a.updatedAt = time.Now().UTC()
	a.history = append(a.history, HistoryEntry{
		ID:        NewID(),
		Timestamp: a.updatedAt,
		ActorID:   actorID,
		Change:    change,
		Before:    before,
		After:     after,
		Reason:    reason,
	})
}

func rawJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// History returns a copy of the full change log in append order.
func (a *Agreement) History() []HistoryEntry {
	return append([]HistoryEntry(nil), a.history...)
}

// HistoryBetween returns entries with from <= timestamp <= to, newest first.
// The log is appended chronologically, so newest-first is the reverse of
// append order.
func (a *Agreement) HistoryBetween(from, to time.Time) []HistoryEntry {
	var out []HistoryEntry
	for i := len(a.history) - 1; i >= 0; i-- {
		e := a.history[i]
		if e.Timestamp.Before(from) || e.Timestamp.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// RecentHistory returns the most recent n entries, newest first.
func (a *Agreement) RecentHistory(n int) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(a.history))
	for i := len(a.history) - 1; i >= 0; i-- {
		out = append(out, a.history[i])
	}
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// ShouldAlert compares actual per-partner allocations against the expected
// ones and fires when any partner deviates beyond the configured threshold.
// Partners missing from actual, or with a zero expected amount, are skipped.
// The first partner over the threshold decides; deviations are not
// aggregated.
func (a *Agreement) ShouldAlert(actual, expected map[string]Money) (bool, error) {
	if !a.alerts.Enabled {
		return false, nil
	}
	for partnerID, want := range expected {
		got, ok := actual[partnerID]
		if !ok || want.IsZero() {
			continue
		}
		diff, err := got.Subtract(want)
		if err != nil {
			return false, err
		}
		deviation := math.Abs(float64(diff.Cents())) / math.Abs(float64(want.Cents())) * 100
		if deviation > a.alerts.ThresholdPercent {
			return true, nil
		}
	}
	return false, nil
}

type agreementJSON struct {
	ID             string          `json:"id"`
	HouseholdID    string          `json:"householdId"`
	Type           AgreementType   `json:"type"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	SplitRule      *SplitRule      `json:"splitRule"`
	Status         AgreementStatus `json:"status"`
	EffectiveFrom  time.Time       `json:"effectiveFrom"`
	EffectiveUntil *time.Time      `json:"effectiveUntil,omitempty"`
	Alerts         AlertConfig     `json:"alerts"`
	History        []HistoryEntry  `json:"history"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// MarshalJSON emits the canonical snapshot other layers rely on.
func (a *Agreement) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.snapshotStruct())
}

func (a *Agreement) snapshotStruct() agreementJSON {
	return agreementJSON{
		ID:             a.id,
		HouseholdID:    a.householdID,
		Type:           a.agreementType,
		Name:           a.name,
		Description:    a.description,
		SplitRule:      a.rule,
		Status:         a.status,
		EffectiveFrom:  a.effectiveFrom,
		EffectiveUntil: a.EffectiveUntil(),
		Alerts:         a.Alerts(),
		History:        a.History(),
		CreatedAt:      a.createdAt,
		UpdatedAt:      a.updatedAt,
	}
}

func (a *Agreement) snapshot() json.RawMessage {
	s := a.snapshotStruct()
	s.History = nil // the log does not nest itself
	return rawJSON(s)
}

// UnmarshalJSON rehydrates an agreement from its canonical snapshot. Used by
// the storage layer; the stored status and history are trusted as-is.
func (a *Agreement) UnmarshalJSON(data []byte) error {
	var raw agreementJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Agreement{
		id:             raw.ID,
		householdID:    raw.HouseholdID,
		agreementType:  raw.Type,
		name:           raw.Name,
		description:    raw.Description,
		rule:           raw.SplitRule,
		status:         raw.Status,
		effectiveFrom:  raw.EffectiveFrom,
		effectiveUntil: raw.EffectiveUntil,
		alerts:         raw.Alerts,
		history:        raw.History,
		createdAt:      raw.CreatedAt,
		updatedAt:      raw.UpdatedAt,
	}
	return nil
}
