package http

import (
	"net/http"
	"time"

	"conti/internal/core"
	"conti/internal/services"
)

type recordTransactionRequest struct {
	HouseholdID string                  `json:"householdId"`
	Description string                  `json:"description"`
	Amount      moneyPayload            `json:"amount"`
	Category    string                  `json:"category"`
	PayerID     string                  `json:"payerId"`
	Date        time.Time               `json:"date,omitempty"`
	AgreementID string                  `json:"agreementId,omitempty"`
	Incomes     map[string]moneyPayload `json:"incomes,omitempty"`
}

type transactionResponse struct {
	ID          string             `json:"id"`
	HouseholdID string             `json:"householdId"`
	Description string             `json:"description"`
	Amount      core.Money         `json:"amount"`
	Category    string             `json:"category"`
	PayerID     string             `json:"payerId"`
	Date        time.Time          `json:"date"`
	Split       bool               `json:"split"`
	Splits      []core.SplitResult `json:"splits,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
}

func toTransactionResponse(t *core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID(),
		HouseholdID: t.HouseholdID(),
		Description: t.Description(),
		Amount:      t.Amount(),
		Category:    t.Category(),
		PayerID:     t.PayerID(),
		Date:        t.Date(),
		Split:       t.IsSplit(),
		Splits:      t.Splits(),
		CreatedAt:   t.CreatedAt(),
	}
}

func (s *Server) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req recordTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := req.Amount.toMoney()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	incomes, err := toIncomes(req.Incomes)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	date := req.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	tx, err := s.settlement.RecordTransaction(r.Context(), services.RecordTransactionParams{
		HouseholdID: req.HouseholdID,
		Description: req.Description,
		Amount:      amount,
		Category:    req.Category,
		PayerID:     req.PayerID,
		Date:        date,
		AgreementID: req.AgreementID,
		Incomes:     incomes,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateReports(req.HouseholdID)
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	hh, ok := householdID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "household_id is required")
		return
	}
	from, to, err := parsePeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := s.repo.ListTransactions(r.Context(), hh, from, to)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, toTransactionResponse(tx))
	}
	writeJSON(w, http.StatusOK, resp)
}

type splitPreviewRequest struct {
	Rule    rulePayload             `json:"rule"`
	Amount  moneyPayload            `json:"amount"`
	Incomes map[string]moneyPayload `json:"incomes,omitempty"`
}

type splitPreviewResponse struct {
	Amount  core.Money         `json:"amount"`
	Results []core.SplitResult `json:"results"`
}

// handleSplitPreview runs a split rule against an amount without persisting
// anything, so a couple can try rules out before committing to one.
func (s *Server) handleSplitPreview(w http.ResponseWriter, r *http.Request) {
	var req splitPreviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule, err := req.Rule.toRule()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	amount, err := req.Amount.toMoney()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	incomes, err := toIncomes(req.Incomes)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	results, err := rule.Split(amount, incomes)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, splitPreviewResponse{Amount: amount, Results: results})
}

func (s *Server) handleSettlement(w http.ResponseWriter, r *http.Request) {
	hh, ok := householdID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "household_id is required")
		return
	}
	from, to, err := parsePeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := s.reportCacheKey(hh, from, to)
	if report, found := s.reportCache.Get(key); found {
		writeJSON(w, http.StatusOK, report)
		return
	}

	report, err := s.settlement.Settle(r.Context(), hh, from, to)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.reportCache.Set(key, report)
	writeJSON(w, http.StatusOK, report)
}

type exportResponse struct {
	Exported bool `json:"exported"`
}

// handleSettlementExport computes the report for the period and pushes it to
// the configured spreadsheet.
func (s *Server) handleSettlementExport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "report export is not configured")
		return
	}

	hh, ok := householdID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "household_id is required")
		return
	}
	from, to, err := parsePeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.settlement.Settle(r.Context(), hh, from, to)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := s.reports.WriteReport(r.Context(), report); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{Exported: true})
}
