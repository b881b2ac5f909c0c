package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"conti/internal/core"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// moneyPayload is the wire form of a monetary amount, always in cents.
type moneyPayload struct {
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
}

func (p moneyPayload) toMoney() (core.Money, error) {
	return core.FromCents(p.AmountCents, p.Currency)
}

type partnerPayload struct {
	PartnerID    string        `json:"partnerId"`
	Percentage   *float64      `json:"percentage,omitempty"`
	FixedAmount  *moneyPayload `json:"fixedAmount,omitempty"`
	CustomAmount *moneyPayload `json:"customAmount,omitempty"`
}

type rulePayload struct {
	Type           string           `json:"type"`
	Partners       []partnerPayload `json:"partners"`
	EffectiveFrom  time.Time        `json:"effectiveFrom"`
	EffectiveUntil *time.Time       `json:"effectiveUntil,omitempty"`
}

func (p rulePayload) toRule() (*core.SplitRule, error) {
	partners := make([]core.PartnerConfig, 0, len(p.Partners))
	for _, pp := range p.Partners {
		cfg := core.PartnerConfig{
			PartnerID:  pp.PartnerID,
			Percentage: pp.Percentage,
		}
		if pp.FixedAmount != nil {
			m, err := pp.FixedAmount.toMoney()
			if err != nil {
				return nil, fmt.Errorf("partner %s fixed amount: %w", pp.PartnerID, err)
			}
			cfg.FixedAmount = &m
		}
		if pp.CustomAmount != nil {
			m, err := pp.CustomAmount.toMoney()
			if err != nil {
				return nil, fmt.Errorf("partner %s custom amount: %w", pp.PartnerID, err)
			}
			cfg.CustomAmount = &m
		}
		partners = append(partners, cfg)
	}
	return core.NewSplitRule(core.SplitType(p.Type), partners, p.EffectiveFrom, p.EffectiveUntil)
}

// toIncomes converts the optional per-partner income map used by
// proportional splits.
func toIncomes(payload map[string]moneyPayload) (map[string]core.Money, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	incomes := make(map[string]core.Money, len(payload))
	for partnerID, mp := range payload {
		m, err := mp.toMoney()
		if err != nil {
			return nil, fmt.Errorf("income for %s: %w", partnerID, err)
		}
		incomes[partnerID] = m
	}
	return incomes, nil
}

// householdID pulls the mandatory household_id query parameter.
func householdID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("household_id"))
	return id, id != ""
}

// parsePeriod reads the from/to query parameters as inclusive dates. Missing
// values default to the current calendar month.
func parsePeriod(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)

	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q", v)
		}
		from = parsed
	}
	if v := strings.TrimSpace(r.URL.Query().Get("to")); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q", v)
		}
		to = parsed.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to date precedes from date")
	}
	return from, to, nil
}
