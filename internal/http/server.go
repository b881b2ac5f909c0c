// Package http exposes the household finance API over JSON.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"conti/internal/cache"
	"conti/internal/services"
	"conti/internal/storage"
)

// ReportWriter pushes a settlement report to an external destination.
// The Google Sheets exporter satisfies this; tests plug in fakes.
type ReportWriter interface {
	WriteReport(ctx context.Context, report *services.SettlementReport) error
}

type Server struct {
	http.Server

	repo       *storage.SQLiteRepository
	settlement *services.SettlementService
	goals      *services.GoalService
	budgets    *services.BudgetService
	reports    ReportWriter

	rateLimiter *rateLimiter

	// Settlement reports are expensive to compute and read-heavy around
	// month end. Invalidated per household on every recorded transaction.
	reportCache  *cache.LRUCache[*services.SettlementReport]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer wires routes and returns a ready-to-run server. The reports
// writer may be nil; the export endpoint then answers 503.
func NewServer(addr string, repo *storage.SQLiteRepository, settlement *services.SettlementService, goals *services.GoalService, budgets *services.BudgetService, reports ReportWriter) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		repo:         repo,
		settlement:   settlement,
		goals:        goals,
		budgets:      budgets,
		reports:      reports,
		rateLimiter:  newRateLimiter(60),
		reportCache:  cache.NewLRUCache[*services.SettlementReport](100, 5*time.Minute),
		cacheManager: cache.NewManager(),
	}

	s.cacheManager.Register(s.reportCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.HandleFunc("POST /agreements", s.guard(s.handleCreateAgreement))
	mux.HandleFunc("GET /agreements", s.guard(s.handleListAgreements))
	mux.HandleFunc("GET /agreements/{id}", s.guard(s.handleGetAgreement))
	mux.HandleFunc("PATCH /agreements/{id}", s.guard(s.handleUpdateAgreement))
	mux.HandleFunc("DELETE /agreements/{id}", s.guard(s.handleDeleteAgreement))
	mux.HandleFunc("POST /agreements/{id}/suspend", s.guard(s.handleAgreementTransition))
	mux.HandleFunc("POST /agreements/{id}/resume", s.guard(s.handleAgreementTransition))
	mux.HandleFunc("POST /agreements/{id}/terminate", s.guard(s.handleAgreementTransition))
	mux.HandleFunc("GET /agreements/{id}/history", s.guard(s.handleAgreementHistory))
	mux.HandleFunc("POST /agreements/{id}/deviation", s.guard(s.handleAgreementDeviation))

	mux.HandleFunc("POST /envelopes", s.guard(s.handleCreateEnvelope))
	mux.HandleFunc("GET /envelopes", s.guard(s.handleListEnvelopes))
	mux.HandleFunc("GET /envelopes/{id}", s.guard(s.handleGetEnvelope))
	mux.HandleFunc("DELETE /envelopes/{id}", s.guard(s.handleDeleteEnvelope))
	mux.HandleFunc("POST /envelopes/{id}/spending", s.guard(s.handleEnvelopeSpending))
	mux.HandleFunc("POST /envelopes/close-out", s.guard(s.handleEnvelopeCloseOut))

	mux.HandleFunc("POST /goals", s.guard(s.handleCreateGoal))
	mux.HandleFunc("GET /goals", s.guard(s.handleListGoals))
	mux.HandleFunc("GET /goals/{id}", s.guard(s.handleGetGoal))
	mux.HandleFunc("DELETE /goals/{id}", s.guard(s.handleDeleteGoal))
	mux.HandleFunc("POST /goals/{id}/pause", s.guard(s.handleGoalTransition))
	mux.HandleFunc("POST /goals/{id}/resume", s.guard(s.handleGoalTransition))
	mux.HandleFunc("POST /goals/{id}/cancel", s.guard(s.handleGoalTransition))
	mux.HandleFunc("POST /goals/{id}/contributions", s.guard(s.handleGoalContribute))
	mux.HandleFunc("DELETE /goals/{id}/contributions/{contributionId}", s.guard(s.handleGoalWithdraw))

	mux.HandleFunc("POST /transactions", s.guard(s.handleRecordTransaction))
	mux.HandleFunc("GET /transactions", s.guard(s.handleListTransactions))

	mux.HandleFunc("POST /split/preview", s.guard(s.handleSplitPreview))

	mux.HandleFunc("GET /settlement", s.guard(s.handleSettlement))
	mux.HandleFunc("POST /settlement/export", s.guard(s.handleSettlementExport))

	return s
}

// Shutdown stops background routines before draining the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) reportCacheKey(householdID string, from, to time.Time) string {
	return householdID + "|" + from.Format("2006-01-02") + "|" + to.Format("2006-01-02")
}

// invalidateReports drops every cached report for a household. Keys carry the
// period, so this walks the small cache rather than tracking reverse indexes.
func (s *Server) invalidateReports(householdID string) {
	s.reportCache.DeletePrefix(householdID + "|")
}
