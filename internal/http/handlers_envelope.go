package http

import (
	"net/http"
	"time"

	"conti/internal/core"
)

type rolloverPayload struct {
	Enabled    bool          `json:"enabled"`
	MaxAmount  *moneyPayload `json:"maxAmount,omitempty"`
	MaxPercent *float64      `json:"maxPercent,omitempty"`
}

func (p rolloverPayload) toPolicy() (core.RolloverPolicy, error) {
	policy := core.RolloverPolicy{
		Enabled:    p.Enabled,
		MaxPercent: p.MaxPercent,
	}
	if p.MaxAmount != nil {
		m, err := p.MaxAmount.toMoney()
		if err != nil {
			return core.RolloverPolicy{}, err
		}
		policy.MaxAmount = &m
	}
	return policy, nil
}

type createEnvelopeRequest struct {
	HouseholdID string               `json:"householdId"`
	Name        string               `json:"name"`
	Type        string               `json:"type"`
	OwnerID     string               `json:"ownerId,omitempty"`
	Period      string               `json:"period"`
	Limit       moneyPayload         `json:"limit"`
	Rollover    rolloverPayload      `json:"rollover"`
	Thresholds  core.AlertThresholds `json:"thresholds"`
	CustomStart time.Time            `json:"customStart,omitempty"`
	CustomEnd   time.Time            `json:"customEnd,omitempty"`
}

type envelopeResponse struct {
	ID                 string               `json:"id"`
	HouseholdID        string               `json:"householdId"`
	Name               string               `json:"name"`
	Type               string               `json:"type"`
	OwnerID            string               `json:"ownerId,omitempty"`
	Period             string               `json:"period"`
	Limit              core.Money           `json:"limit"`
	Spent              core.Money           `json:"spent"`
	Available          core.Money           `json:"available"`
	UtilizationPercent float64              `json:"utilizationPercent"`
	OverBudget         bool                 `json:"overBudget"`
	Rollover           core.RolloverPolicy  `json:"rollover"`
	Thresholds         core.AlertThresholds `json:"thresholds"`
	PeriodStart        time.Time            `json:"periodStart"`
	PeriodEnd          time.Time            `json:"periodEnd"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

func toEnvelopeResponse(e *core.BudgetEnvelope) envelopeResponse {
	return envelopeResponse{
		ID:                 e.ID(),
		HouseholdID:        e.HouseholdID(),
		Name:               e.Name(),
		Type:               string(e.Type()),
		OwnerID:            e.OwnerID(),
		Period:             string(e.Period()),
		Limit:              e.Limit(),
		Spent:              e.Spent(),
		Available:          e.Available(),
		UtilizationPercent: e.UtilizationPercent(),
		OverBudget:         e.IsOverBudget(),
		Rollover:           e.Rollover(),
		Thresholds:         e.Thresholds(),
		PeriodStart:        e.PeriodStart(),
		PeriodEnd:          e.PeriodEnd(),
		CreatedAt:          e.CreatedAt(),
		UpdatedAt:          e.UpdatedAt(),
	}
}

func (s *Server) handleCreateEnvelope(w http.ResponseWriter, r *http.Request) {
	var req createEnvelopeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := req.Limit.toMoney()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	rollover, err := req.Rollover.toPolicy()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	e, err := core.NewBudgetEnvelope(core.EnvelopeParams{
		ID:          core.NewID(),
		HouseholdID: req.HouseholdID,
		Name:        req.Name,
		Type:        core.EnvelopeType(req.Type),
		OwnerID:     req.OwnerID,
		Period:      core.BudgetPeriod(req.Period),
		Limit:       limit,
		Rollover:    rollover,
		Thresholds:  req.Thresholds,
		CustomStart: req.CustomStart,
		CustomEnd:   req.CustomEnd,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := s.repo.SaveEnvelope(r.Context(), e); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEnvelopeResponse(e))
}

func (s *Server) handleListEnvelopes(w http.ResponseWriter, r *http.Request) {
	hh, ok := householdID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "household_id is required")
		return
	}

	envelopes, err := s.repo.ListEnvelopes(r.Context(), hh)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := make([]envelopeResponse, 0, len(envelopes))
	for _, e := range envelopes {
		resp = append(resp, toEnvelopeResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetEnvelope(w http.ResponseWriter, r *http.Request) {
	e, err := s.repo.GetEnvelope(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEnvelopeResponse(e))
}

func (s *Server) handleDeleteEnvelope(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DeleteEnvelope(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type spendingRequest struct {
	Amount moneyPayload `json:"amount"`
	Refund bool         `json:"refund,omitempty"`
}

// handleEnvelopeSpending books a manual charge or refund against an
// envelope, outside the transaction flow. Threshold alerts still fire.
func (s *Server) handleEnvelopeSpending(w http.ResponseWriter, r *http.Request) {
	var req spendingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := req.Amount.toMoney()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	e, err := s.repo.GetEnvelope(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if req.Refund {
		err = e.RemoveSpending(amount)
	} else {
		err = e.AddSpending(amount)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := s.repo.SaveEnvelope(r.Context(), e); err != nil {
		writeDomainError(w, r, err)
		return
	}

	// Alerting is best-effort; the booked spending stands either way.
	_ = s.budgets.CheckThresholds(r.Context(), e.HouseholdID())

	writeJSON(w, http.StatusOK, toEnvelopeResponse(e))
}

type closeOutRequest struct {
	HouseholdID string    `json:"householdId"`
	AsOf        time.Time `json:"asOf,omitempty"`
}

// handleEnvelopeCloseOut rolls every elapsed envelope of a household into
// its next period and reports the credited rollovers.
func (s *Server) handleEnvelopeCloseOut(w http.ResponseWriter, r *http.Request) {
	var req closeOutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.HouseholdID == "" {
		writeError(w, http.StatusBadRequest, "householdId is required")
		return
	}
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	results, err := s.budgets.CloseOutPeriods(r.Context(), req.HouseholdID, asOf)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
