package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"conti/internal/core"
)

type createAgreementRequest struct {
	HouseholdID    string           `json:"householdId"`
	Type           string           `json:"type"`
	Name           string           `json:"name"`
	Description    string           `json:"description,omitempty"`
	Rule           rulePayload      `json:"rule"`
	EffectiveFrom  time.Time        `json:"effectiveFrom"`
	EffectiveUntil *time.Time       `json:"effectiveUntil,omitempty"`
	Alerts         core.AlertConfig `json:"alerts"`
	ActorID        string           `json:"actorId"`
}

type agreementResponse struct {
	ID             string           `json:"id"`
	HouseholdID    string           `json:"householdId"`
	Type           string           `json:"type"`
	Name           string           `json:"name"`
	Description    string           `json:"description,omitempty"`
	Status         string           `json:"status"`
	Rule           *core.SplitRule  `json:"rule"`
	EffectiveFrom  time.Time        `json:"effectiveFrom"`
	EffectiveUntil *time.Time       `json:"effectiveUntil,omitempty"`
	Alerts         core.AlertConfig `json:"alerts"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

func toAgreementResponse(a *core.Agreement) agreementResponse {
	return agreementResponse{
		ID:             a.ID(),
		HouseholdID:    a.HouseholdID(),
		Type:           string(a.Type()),
		Name:           a.Name(),
		Description:    a.Description(),
		Status:         string(a.Status()),
		Rule:           a.Rule(),
		EffectiveFrom:  a.EffectiveFrom(),
		EffectiveUntil: a.EffectiveUntil(),
		Alerts:         a.Alerts(),
		CreatedAt:      a.CreatedAt(),
		UpdatedAt:      a.UpdatedAt(),
	}
}

func (s *Server) handleCreateAgreement(w http.ResponseWriter, r *http.Request) {
	var req createAgreementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule, err := req.Rule.toRule()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	a, err := core.NewAgreement(core.AgreementParams{
		ID:             core.NewID(),
		HouseholdID:    req.HouseholdID,
		Type:           core.AgreementType(req.Type),
		Name:           req.Name,
		Description:    req.Description,
		Rule:           rule,
		EffectiveFrom:  req.EffectiveFrom,
		EffectiveUntil: req.EffectiveUntil,
		Alerts:         req.Alerts,
		ActorID:        req.ActorID,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := s.repo.SaveAgreement(r.Context(), a); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAgreementResponse(a))
}

func (s *Server) handleListAgreements(w http.ResponseWriter, r *http.Request) {
	hh, ok := householdID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "household_id is required")
		return
	}

	agreements, err := s.repo.ListAgreements(r.Context(), hh)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := make([]agreementResponse, 0, len(agreements))
	for _, a := range agreements {
		resp = append(resp, toAgreementResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAgreement(w http.ResponseWriter, r *http.Request) {
	a, err := s.repo.GetAgreement(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementResponse(a))
}

// updateAgreementRequest carries a partial update. Only the fields present
// are applied; each applied field lands as its own history entry.
type updateAgreementRequest struct {
	Name           *string           `json:"name,omitempty"`
	Description    *string           `json:"description,omitempty"`
	Rule           *rulePayload      `json:"rule,omitempty"`
	EffectiveFrom  *time.Time        `json:"effectiveFrom,omitempty"`
	EffectiveUntil *time.Time        `json:"effectiveUntil,omitempty"`
	Alerts         *core.AlertConfig `json:"alerts,omitempty"`
	ActorID        string            `json:"actorId"`
	Reason         string            `json:"reason,omitempty"`
}

func (s *Server) handleUpdateAgreement(w http.ResponseWriter, r *http.Request) {
	var req updateAgreementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := s.repo.GetAgreement(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if req.Name != nil {
		if err := a.Rename(*req.Name, req.ActorID, req.Reason); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	if req.Description != nil {
		if err := a.UpdateDescription(*req.Description, req.ActorID, req.Reason); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	if req.Rule != nil {
		rule, err := req.Rule.toRule()
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if err := a.UpdateSplitRule(rule, req.ActorID, req.Reason); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	if req.EffectiveFrom != nil {
		if err := a.UpdateEffectivePeriod(*req.EffectiveFrom, req.EffectiveUntil, req.ActorID, req.Reason); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	if req.Alerts != nil {
		if err := a.UpdateAlerts(*req.Alerts, req.ActorID, req.Reason); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}

	if err := s.repo.SaveAgreement(r.Context(), a); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementResponse(a))
}

func (s *Server) handleDeleteAgreement(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DeleteAgreement(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionRequest struct {
	ActorID string `json:"actorId"`
	Reason  string `json:"reason,omitempty"`
}

// handleAgreementTransition serves suspend, resume and terminate. The action
// is the last path segment.
func (s *Server) handleAgreementTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := s.repo.GetAgreement(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	action := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	switch action {
	case "suspend":
		err = a.Suspend(req.ActorID, req.Reason)
	case "resume":
		err = a.Resume(req.ActorID, req.Reason)
	case "terminate":
		err = a.Terminate(req.ActorID, req.Reason)
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := s.repo.SaveAgreement(r.Context(), a); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementResponse(a))
}

func (s *Server) handleAgreementHistory(w http.ResponseWriter, r *http.Request) {
	a, err := s.repo.GetAgreement(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if v := strings.TrimSpace(r.URL.Query().Get("recent")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "recent must be a positive integer")
			return
		}
		writeJSON(w, http.StatusOK, a.RecentHistory(n))
		return
	}

	if r.URL.Query().Get("from") != "" || r.URL.Query().Get("to") != "" {
		from, to, err := parsePeriod(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, a.HistoryBetween(from, to))
		return
	}

	writeJSON(w, http.StatusOK, a.History())
}

type deviationRequest struct {
	From    time.Time               `json:"from"`
	To      time.Time               `json:"to"`
	Incomes map[string]moneyPayload `json:"incomes,omitempty"`
}

type deviationResponse struct {
	AgreementID string    `json:"agreementId"`
	Deviated    bool      `json:"deviated"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
}

// handleAgreementDeviation compares actual spending against the agreed split
// for the period and raises an alert when it drifted past the threshold.
func (s *Server) handleAgreementDeviation(w http.ResponseWriter, r *http.Request) {
	var req deviationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	incomes, err := toIncomes(req.Incomes)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	id := r.PathValue("id")
	deviated, err := s.settlement.CheckAgreementDeviation(r.Context(), id, req.From, req.To, incomes)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deviationResponse{
		AgreementID: id,
		Deviated:    deviated,
		From:        req.From,
		To:          req.To,
	})
}
