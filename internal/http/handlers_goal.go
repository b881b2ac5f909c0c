package http

import (
	"net/http"
	"strings"
	"time"

	"conti/internal/core"
)

type autoContributionPayload struct {
	Enabled   bool          `json:"enabled"`
	Amount    *moneyPayload `json:"amount,omitempty"`
	Frequency string        `json:"frequency,omitempty"`
}

func (p autoContributionPayload) toAuto() (core.AutoContribution, error) {
	auto := core.AutoContribution{
		Enabled:   p.Enabled,
		Frequency: p.Frequency,
	}
	if p.Amount != nil {
		m, err := p.Amount.toMoney()
		if err != nil {
			return core.AutoContribution{}, err
		}
		auto.Amount = &m
	}
	return auto, nil
}

type createGoalRequest struct {
	HouseholdID string                  `json:"householdId"`
	Name        string                  `json:"name"`
	Type        string                  `json:"type,omitempty"`
	Target      moneyPayload            `json:"target"`
	TargetDate  time.Time               `json:"targetDate"`
	OwnerIDs    []string                `json:"ownerIds"`
	Auto        autoContributionPayload `json:"auto"`
}

type goalResponse struct {
	ID                  string                `json:"id"`
	HouseholdID         string                `json:"householdId"`
	Name                string                `json:"name"`
	Type                string                `json:"type,omitempty"`
	Target              core.Money            `json:"target"`
	Current             core.Money            `json:"current"`
	Remaining           core.Money            `json:"remaining"`
	ProgressPercent     float64               `json:"progressPercent"`
	Status              string                `json:"status"`
	TargetDate          time.Time             `json:"targetDate"`
	OwnerIDs            []string              `json:"ownerIds"`
	Shared              bool                  `json:"shared"`
	Auto                core.AutoContribution `json:"auto"`
	OnTrack             bool                  `json:"onTrack"`
	ProjectedCompletion *time.Time            `json:"projectedCompletion,omitempty"`
	Contributions       []core.Contribution   `json:"contributions"`
	CreatedAt           time.Time             `json:"createdAt"`
	UpdatedAt           time.Time             `json:"updatedAt"`
}

func toGoalResponse(g *core.Goal, now time.Time) goalResponse {
	return goalResponse{
		ID:                  g.ID(),
		HouseholdID:         g.HouseholdID(),
		Name:                g.Name(),
		Type:                g.Type(),
		Target:              g.Target(),
		Current:             g.Current(),
		Remaining:           g.Remaining(),
		ProgressPercent:     g.ProgressPercent(),
		Status:              string(g.Status()),
		TargetDate:          g.TargetDate(),
		OwnerIDs:            g.Owners(),
		Shared:              g.IsShared(),
		Auto:                g.Auto(),
		OnTrack:             g.IsOnTrack(now),
		ProjectedCompletion: g.ProjectedCompletion(now),
		Contributions:       g.Contributions(),
		CreatedAt:           g.CreatedAt(),
		UpdatedAt:           g.UpdatedAt(),
	}
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, err := req.Target.toMoney()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	auto, err := req.Auto.toAuto()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	g, err := core.NewGoal(core.GoalParams{
		ID:          core.NewID(),
		HouseholdID: req.HouseholdID,
		Name:        req.Name,
		Type:        req.Type,
		Target:      target,
		TargetDate:  req.TargetDate,
		OwnerIDs:    req.OwnerIDs,
		Auto:        auto,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := s.repo.SaveGoal(r.Context(), g); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGoalResponse(g, time.Now().UTC()))
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	hh, ok := householdID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "household_id is required")
		return
	}

	goals, err := s.repo.ListGoals(r.Context(), hh)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	now := time.Now().UTC()
	resp := make([]goalResponse, 0, len(goals))
	for _, g := range goals {
		resp = append(resp, toGoalResponse(g, now))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	g, err := s.repo.GetGoal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalResponse(g, time.Now().UTC()))
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DeleteGoal(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGoalTransition serves pause, resume and cancel.
func (s *Server) handleGoalTransition(w http.ResponseWriter, r *http.Request) {
	g, err := s.repo.GetGoal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	action := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	switch action {
	case "pause":
		err = g.Pause()
	case "resume":
		err = g.Resume()
	case "cancel":
		err = g.Cancel()
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := s.repo.SaveGoal(r.Context(), g); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalResponse(g, time.Now().UTC()))
}

type contributeRequest struct {
	Amount        moneyPayload `json:"amount"`
	ContributorID string       `json:"contributorId"`
	Note          string       `json:"note,omitempty"`
	At            time.Time    `json:"at,omitempty"`
}

type contributeResponse struct {
	Goal         goalResponse      `json:"goal"`
	Contribution core.Contribution `json:"contribution"`
}

func (s *Server) handleGoalContribute(w http.ResponseWriter, r *http.Request) {
	var req contributeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := req.Amount.toMoney()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	at := req.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	g, contribution, err := s.goals.Contribute(r.Context(), r.PathValue("id"), amount, req.ContributorID, req.Note, at)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, contributeResponse{
		Goal:         toGoalResponse(g, time.Now().UTC()),
		Contribution: contribution,
	})
}

func (s *Server) handleGoalWithdraw(w http.ResponseWriter, r *http.Request) {
	g, err := s.goals.Withdraw(r.Context(), r.PathValue("id"), r.PathValue("contributionId"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalResponse(g, time.Now().UTC()))
}
