package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"conti/internal/core"
	"conti/internal/services"
	"conti/internal/storage"
)

type fakeReportWriter struct {
	reports []*services.SettlementReport
}

func (f *fakeReportWriter) WriteReport(_ context.Context, report *services.SettlementReport) error {
	f.reports = append(f.reports, report)
	return nil
}

func newTestServer(t *testing.T) (*Server, *fakeReportWriter) {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "conti.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	settlement := services.NewSettlementService(repo, nil)
	goals := services.NewGoalService(repo, nil)
	budgets := services.NewBudgetService(repo, nil)
	reports := &fakeReportWriter{}

	s := NewServer(":0", repo, settlement, goals, budgets, reports)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, reports
}

func doJSON(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func equalRulePayload(partners ...string) rulePayload {
	pp := make([]partnerPayload, 0, len(partners))
	for _, id := range partners {
		pp = append(pp, partnerPayload{PartnerID: id})
	}
	return rulePayload{
		Type:          "equal",
		Partners:      pp,
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func createAgreement(t *testing.T, s *Server) agreementResponse {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/agreements", createAgreementRequest{
		HouseholdID:   "hh-1",
		Type:          "variable_expenses",
		Name:          "groceries split",
		Rule:          equalRulePayload("ana", "bruno"),
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ActorID:       "ana",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create agreement = %d, body %s", rec.Code, rec.Body.String())
	}
	return decodeBody[agreementResponse](t, rec)
}

func TestAgreementLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	created := createAgreement(t, s)
	if created.Status != "active" {
		t.Errorf("status = %q, want active", created.Status)
	}

	rec := doJSON(t, s, http.MethodGet, "/agreements/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get agreement = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/agreements/"+created.ID+"/suspend", transitionRequest{ActorID: "ana", Reason: "trial separation of budgets"})
	if rec.Code != http.StatusOK {
		t.Fatalf("suspend = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[agreementResponse](t, rec); got.Status != "suspended" {
		t.Errorf("status after suspend = %q", got.Status)
	}

	rec = doJSON(t, s, http.MethodPost, "/agreements/"+created.ID+"/resume", transitionRequest{ActorID: "ana"})
	if rec.Code != http.StatusOK {
		t.Fatalf("resume = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/agreements/"+created.ID+"/terminate", transitionRequest{ActorID: "bruno", Reason: "new agreement"})
	if rec.Code != http.StatusOK {
		t.Fatalf("terminate = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/agreements/"+created.ID+"/resume", transitionRequest{ActorID: "bruno"})
	if rec.Code != http.StatusConflict {
		t.Errorf("resume after terminate = %d, want 409", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/agreements/"+created.ID+"/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history = %d", rec.Code)
	}
	history := decodeBody[[]map[string]any](t, rec)
	// created, suspended, resumed, terminated
	if len(history) != 4 {
		t.Errorf("history entries = %d, want 4", len(history))
	}
}

func TestUpdateAgreementRecordsHistory(t *testing.T) {
	s, _ := newTestServer(t)
	created := createAgreement(t, s)

	name := "rent and groceries"
	rec := doJSON(t, s, http.MethodPatch, "/agreements/"+created.ID, updateAgreementRequest{
		Name:    &name,
		ActorID: "ana",
		Reason:  "scope grew",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[agreementResponse](t, rec); got.Name != name {
		t.Errorf("name = %q, want %q", got.Name, name)
	}

	rec = doJSON(t, s, http.MethodGet, "/agreements/"+created.ID+"/history?recent=1", nil)
	entries := decodeBody[[]map[string]any](t, rec)
	if len(entries) != 1 {
		t.Fatalf("recent entries = %d, want 1", len(entries))
	}
	if entries[0]["change"] != "name_updated" {
		t.Errorf("change = %v, want name_updated", entries[0]["change"])
	}
}

func TestListAgreementsRequiresHousehold(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/agreements", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("list without household_id = %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/agreements?household_id=hh-1", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("list = %d, want 200", rec.Code)
	}
}

func TestGetAgreementNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/agreements/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get = %d, want 404", rec.Code)
	}
}

func TestSplitPreviewProportional(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/split/preview", splitPreviewRequest{
		Rule: rulePayload{
			Type: "proportional",
			Partners: []partnerPayload{
				{PartnerID: "ana"},
				{PartnerID: "bruno"},
			},
			EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Amount: moneyPayload{AmountCents: 10000, Currency: "BRL"},
		Incomes: map[string]moneyPayload{
			"ana":   {AmountCents: 600000, Currency: "BRL"},
			"bruno": {AmountCents: 400000, Currency: "BRL"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("preview = %d, body %s", rec.Code, rec.Body.String())
	}

	preview := decodeBody[splitPreviewResponse](t, rec)
	if len(preview.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(preview.Results))
	}
	var total int64
	for _, res := range preview.Results {
		total += res.Amount.Cents()
	}
	if total != 10000 {
		t.Errorf("split total = %d, want 10000", total)
	}
}

func TestSplitPreviewRejectsBadRule(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/split/preview", splitPreviewRequest{
		Rule: rulePayload{
			Type:          "equal",
			EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Amount: moneyPayload{AmountCents: 10000, Currency: "BRL"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("preview without partners = %d, want 422", rec.Code)
	}
}

func TestRecordTransactionAndSettle(t *testing.T) {
	s, reports := newTestServer(t)
	createAgreement(t, s)

	record := func(payer string, cents int64) {
		rec := doJSON(t, s, http.MethodPost, "/transactions", recordTransactionRequest{
			HouseholdID: "hh-1",
			Description: fmt.Sprintf("paid by %s", payer),
			Amount:      moneyPayload{AmountCents: cents, Currency: "BRL"},
			Category:    "groceries",
			PayerID:     payer,
			Date:        time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("record = %d, body %s", rec.Code, rec.Body.String())
		}
		tx := decodeBody[transactionResponse](t, rec)
		if !tx.Split || len(tx.Splits) != 2 {
			t.Fatalf("transaction not split: %+v", tx)
		}
	}
	record("ana", 30000)
	record("bruno", 10000)

	rec := doJSON(t, s, http.MethodGet, "/transactions?household_id=hh-1&from=2025-03-01&to=2025-03-31", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list transactions = %d", rec.Code)
	}
	if txs := decodeBody[[]transactionResponse](t, rec); len(txs) != 2 {
		t.Errorf("transactions = %d, want 2", len(txs))
	}

	settleURL := "/settlement?household_id=hh-1&from=2025-03-01&to=2025-03-31"
	rec = doJSON(t, s, http.MethodGet, settleURL, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("settlement = %d, body %s", rec.Code, rec.Body.String())
	}
	report := decodeBody[services.SettlementReport](t, rec)
	if report.Total.Cents() != 40000 {
		t.Errorf("total = %d, want 40000", report.Total.Cents())
	}
	if len(report.Transfers) != 1 {
		t.Fatalf("transfers = %d, want 1", len(report.Transfers))
	}
	tr := report.Transfers[0]
	if tr.FromPartnerID != "bruno" || tr.ToPartnerID != "ana" || tr.Amount.Cents() != 10000 {
		t.Errorf("transfer = %+v", tr)
	}

	// Second read hits the cache and must match.
	rec = doJSON(t, s, http.MethodGet, settleURL, nil)
	if cached := decodeBody[services.SettlementReport](t, rec); cached.Total.Cents() != 40000 {
		t.Errorf("cached total = %d, want 40000", cached.Total.Cents())
	}

	// A new transaction invalidates the cached report.
	record("ana", 2000)
	rec = doJSON(t, s, http.MethodGet, settleURL, nil)
	if fresh := decodeBody[services.SettlementReport](t, rec); fresh.Total.Cents() != 42000 {
		t.Errorf("total after invalidation = %d, want 42000", fresh.Total.Cents())
	}

	rec = doJSON(t, s, http.MethodPost, "/settlement/export?household_id=hh-1&from=2025-03-01&to=2025-03-31", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(reports.reports) != 1 {
		t.Fatalf("exported reports = %d, want 1", len(reports.reports))
	}
	if reports.reports[0].Total.Cents() != 42000 {
		t.Errorf("exported total = %d", reports.reports[0].Total.Cents())
	}
}

func TestEnvelopeSpendingAndCloseOut(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/envelopes", createEnvelopeRequest{
		HouseholdID: "hh-1",
		Name:        "groceries",
		Type:        "shared",
		Period:      "monthly",
		Limit:       moneyPayload{AmountCents: 10000, Currency: "BRL"},
		Rollover:    rolloverPayload{Enabled: true},
		Thresholds:  core.AlertThresholds{WarnPercent: 75, CriticalPercent: 90},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create envelope = %d, body %s", rec.Code, rec.Body.String())
	}
	env := decodeBody[envelopeResponse](t, rec)

	rec = doJSON(t, s, http.MethodPost, "/envelopes/"+env.ID+"/spending", spendingRequest{
		Amount: moneyPayload{AmountCents: 4000, Currency: "BRL"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("spending = %d, body %s", rec.Code, rec.Body.String())
	}
	env = decodeBody[envelopeResponse](t, rec)
	if env.Spent.Cents() != 4000 || env.Available.Cents() != 6000 {
		t.Errorf("spent = %d available = %d", env.Spent.Cents(), env.Available.Cents())
	}

	rec = doJSON(t, s, http.MethodPost, "/envelopes/"+env.ID+"/spending", spendingRequest{
		Amount: moneyPayload{AmountCents: 1000, Currency: "BRL"},
		Refund: true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("refund = %d", rec.Code)
	}
	env = decodeBody[envelopeResponse](t, rec)
	if env.Spent.Cents() != 3000 {
		t.Errorf("spent after refund = %d, want 3000", env.Spent.Cents())
	}

	rec = doJSON(t, s, http.MethodPost, "/envelopes/close-out", closeOutRequest{
		HouseholdID: "hh-1",
		AsOf:        env.PeriodEnd.AddDate(0, 0, 2),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("close-out = %d, body %s", rec.Code, rec.Body.String())
	}
	results := decodeBody[[]services.RolloverResult](t, rec)
	if len(results) != 1 {
		t.Fatalf("rollover results = %d, want 1", len(results))
	}
	if results[0].Rollover.Cents() != 7000 {
		t.Errorf("rollover = %d, want 7000", results[0].Rollover.Cents())
	}
}

func TestGoalContributeAndWithdraw(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/goals", createGoalRequest{
		HouseholdID: "hh-1",
		Name:        "trip to Salvador",
		Type:        "vacation",
		Target:      moneyPayload{AmountCents: 500000, Currency: "BRL"},
		TargetDate:  time.Now().AddDate(1, 0, 0),
		OwnerIDs:    []string{"ana", "bruno"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create goal = %d, body %s", rec.Code, rec.Body.String())
	}
	goal := decodeBody[goalResponse](t, rec)
	if !goal.Shared {
		t.Error("goal with two owners should be shared")
	}

	rec = doJSON(t, s, http.MethodPost, "/goals/"+goal.ID+"/contributions", contributeRequest{
		Amount:        moneyPayload{AmountCents: 100000, Currency: "BRL"},
		ContributorID: "ana",
		Note:          "bonus",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("contribute = %d, body %s", rec.Code, rec.Body.String())
	}
	contributed := decodeBody[contributeResponse](t, rec)
	if contributed.Goal.Current.Cents() != 100000 {
		t.Errorf("current = %d, want 100000", contributed.Goal.Current.Cents())
	}
	if contributed.Goal.ProgressPercent != 20 {
		t.Errorf("progress = %v, want 20", contributed.Goal.ProgressPercent)
	}

	rec = doJSON(t, s, http.MethodDelete, "/goals/"+goal.ID+"/contributions/"+contributed.Contribution.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("withdraw = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[goalResponse](t, rec); got.Current.Cents() != 0 {
		t.Errorf("current after withdraw = %d, want 0", got.Current.Cents())
	}

	rec = doJSON(t, s, http.MethodPost, "/goals/"+goal.ID+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel = %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodPost, "/goals/"+goal.ID+"/contributions", contributeRequest{
		Amount:        moneyPayload{AmountCents: 1000, Currency: "BRL"},
		ContributorID: "ana",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("contribute to cancelled goal = %d, want 409", rec.Code)
	}
}

func TestInvalidBodyReturnsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/goals", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid body = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}
}
