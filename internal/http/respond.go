package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/services"
	"conti/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

// conflictErrors are lifecycle violations: the request was well formed but
// the aggregate cannot move that way from its current state.
var conflictErrors = []error{
	core.ErrInvalidTransition,
	core.ErrAgreementTerminated,
	core.ErrGoalClosed,
}

// validationErrors come from domain constructors and operations rejecting
// the input itself.
var validationErrors = []error{
	core.ErrInvalidCurrency,
	core.ErrInvalidAmount,
	core.ErrCurrencyMismatch,
	core.ErrInvalidOperand,
	core.ErrNegativeAmount,
	core.ErrZeroAmount,
	core.ErrMissingSplitType,
	core.ErrEmptyPartners,
	core.ErrEmptyPartnerID,
	core.ErrDuplicatePartner,
	core.ErrMissingEffectiveFrom,
	core.ErrMissingFixedAmount,
	core.ErrNegativeFixedAmount,
	core.ErrMissingCustomAmount,
	core.ErrMissingIncome,
	core.ErrInvalidIncome,
	core.ErrFixedAmountExceeded,
	core.ErrCustomAmountMismatch,
	core.ErrEmptyName,
	core.ErrInvalidAgreement,
	core.ErrInvalidThreshold,
	core.ErrInvalidPeriodRange,
	core.ErrInvalidPeriod,
	core.ErrMissingRange,
	core.ErrNegativeSpending,
	core.ErrInvalidThresholds,
	core.ErrNoOwners,
	core.ErrContributionExceedsGoal,
	core.ErrContributionNotFound,
	core.ErrInvalidTarget,
	core.ErrEmptyDescription,
	core.ErrEmptyCategory,
	services.ErrNoActiveAgreement,
}

// writeDomainError maps a service or repository error onto an HTTP status.
// Anything unrecognized is treated as an internal failure and logged.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	for _, sentinel := range conflictErrors {
		if errors.Is(err, sentinel) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
	}
	for _, sentinel := range validationErrors {
		if errors.Is(err, sentinel) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
		"method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
