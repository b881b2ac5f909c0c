package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"conti/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Alert delivery states.
const (
	AlertPending   = "pending"
	AlertDelivered = "delivered"
	AlertFailed    = "failed"
)

// PendingAlert is the minimal row the worker needs to build a queue message.
type PendingAlert struct {
	ID          string
	HouseholdID string
	Kind        string
	SubjectID   string
	Attempts    int64
	CreatedAt   time.Time
}

// SQLiteRepository persists aggregates as JSON snapshots with a few indexed
// columns for querying. Snapshots round-trip through the aggregates' own
// MarshalJSON and UnmarshalJSON, so invariants are re-checked on load.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Ping checks database liveness for readiness probes.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- Agreements ---

func (r *SQLiteRepository) SaveAgreement(ctx context.Context, a *core.Agreement) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal agreement: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO agreements (id, household_id, name, status, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		a.ID(), a.HouseholdID(), a.Name(), string(a.Status()), string(data), a.UpdatedAt())
	if err != nil {
		return fmt.Errorf("save agreement: %w", err)
	}

	slog.DebugContext(ctx, "Agreement saved",
		"agreement_id", a.ID(),
		"household_id", a.HouseholdID(),
		"status", a.Status())
	return nil
}

func (r *SQLiteRepository) GetAgreement(ctx context.Context, id string) (*core.Agreement, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM agreements WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agreement: %w", err)
	}

	var a core.Agreement
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("unmarshal agreement %s: %w", id, err)
	}
	return &a, nil
}

func (r *SQLiteRepository) ListAgreements(ctx context.Context, householdID string) ([]*core.Agreement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT data FROM agreements WHERE household_id = ? ORDER BY name`, householdID)
	if err != nil {
		return nil, fmt.Errorf("list agreements: %w", err)
	}
	defer rows.Close()

	var agreements []*core.Agreement
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan agreement: %w", err)
		}
		var a core.Agreement
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, fmt.Errorf("unmarshal agreement: %w", err)
		}
		agreements = append(agreements, &a)
	}
	return agreements, rows.Err()
}

func (r *SQLiteRepository) DeleteAgreement(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM agreements WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete agreement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Envelopes ---

func (r *SQLiteRepository) SaveEnvelope(ctx context.Context, e *core.BudgetEnvelope) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO envelopes (id, household_id, name, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		e.ID(), e.HouseholdID(), e.Name(), string(data), e.UpdatedAt())
	if err != nil {
		return fmt.Errorf("save envelope: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetEnvelope(ctx context.Context, id string) (*core.BudgetEnvelope, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM envelopes WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get envelope: %w", err)
	}

	var e core.BudgetEnvelope
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("unmarshal envelope %s: %w", id, err)
	}
	return &e, nil
}

func (r *SQLiteRepository) GetEnvelopeByName(ctx context.Context, householdID, name string) (*core.BudgetEnvelope, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM envelopes WHERE household_id = ? AND name = ?`, householdID, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get envelope by name: %w", err)
	}

	var e core.BudgetEnvelope
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("unmarshal envelope %s: %w", name, err)
	}
	return &e, nil
}

func (r *SQLiteRepository) ListEnvelopes(ctx context.Context, householdID string) ([]*core.BudgetEnvelope, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT data FROM envelopes WHERE household_id = ? ORDER BY name`, householdID)
	if err != nil {
		return nil, fmt.Errorf("list envelopes: %w", err)
	}
	defer rows.Close()

	var envelopes []*core.BudgetEnvelope
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan envelope: %w", err)
		}
		var e core.BudgetEnvelope
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("unmarshal envelope: %w", err)
		}
		envelopes = append(envelopes, &e)
	}
	return envelopes, rows.Err()
}

func (r *SQLiteRepository) DeleteEnvelope(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM envelopes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete envelope: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Goals ---

func (r *SQLiteRepository) SaveGoal(ctx context.Context, g *core.Goal) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal goal: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO goals (id, household_id, name, status, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		g.ID(), g.HouseholdID(), g.Name(), string(g.Status()), string(data), g.UpdatedAt())
	if err != nil {
		return fmt.Errorf("save goal: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, id string) (*core.Goal, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM goals WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}

	var g core.Goal
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return nil, fmt.Errorf("unmarshal goal %s: %w", id, err)
	}
	return &g, nil
}

func (r *SQLiteRepository) ListGoals(ctx context.Context, householdID string) ([]*core.Goal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT data FROM goals WHERE household_id = ? ORDER BY name`, householdID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []*core.Goal
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		var g core.Goal
		if err := json.Unmarshal([]byte(data), &g); err != nil {
			return nil, fmt.Errorf("unmarshal goal: %w", err)
		}
		goals = append(goals, &g)
	}
	return goals, rows.Err()
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Transactions ---

func (r *SQLiteRepository) SaveTransaction(ctx context.Context, t *core.Transaction) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, household_id, category, occurred_on, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			occurred_on = excluded.occurred_on,
			data = excluded.data`,
		t.ID(), t.HouseholdID(), t.Category(), t.Date(), string(data))
	if err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved",
		"transaction_id", t.ID(),
		"household_id", t.HouseholdID(),
		"amount_cents", t.Amount().Cents())
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM transactions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	var t core.Transaction
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("unmarshal transaction %s: %w", id, err)
	}
	return &t, nil
}

// ListTransactions returns the household's transactions inside [from, to],
// newest first. Zero bounds are ignored.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, householdID string, from, to time.Time) ([]*core.Transaction, error) {
	query := `SELECT data FROM transactions WHERE household_id = ?`
	args := []any{householdID}
	if !from.IsZero() {
		query += ` AND occurred_on >= ?`
		args = append(args, from)
	}
	if !to.IsZero() {
		query += ` AND occurred_on <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY occurred_on DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*core.Transaction
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		var t core.Transaction
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("unmarshal transaction: %w", err)
		}
		txs = append(txs, &t)
	}
	return txs, rows.Err()
}

// --- Alert queue ---

// EnqueueAlert records an alert for later delivery by the worker.
func (r *SQLiteRepository) EnqueueAlert(ctx context.Context, id, householdID, kind, subjectID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, household_id, kind, subject_id, status)
		VALUES (?, ?, ?, ?, ?)`,
		id, householdID, kind, subjectID, AlertPending)
	if err != nil {
		return fmt.Errorf("enqueue alert: %w", err)
	}

	slog.InfoContext(ctx, "Alert enqueued",
		"alert_id", id,
		"household_id", householdID,
		"kind", kind,
		"subject_id", subjectID)
	return nil
}

// GetPendingAlerts returns up to limit alerts awaiting delivery, oldest first.
func (r *SQLiteRepository) GetPendingAlerts(ctx context.Context, limit int) ([]PendingAlert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, household_id, kind, subject_id, attempts, created_at
		FROM alerts
		WHERE status = ?
		ORDER BY created_at
		LIMIT ?`, AlertPending, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending alerts: %w", err)
	}
	defer rows.Close()

	var alerts []PendingAlert
	for rows.Next() {
		var a PendingAlert
		if err := rows.Scan(&a.ID, &a.HouseholdID, &a.Kind, &a.SubjectID, &a.Attempts, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// MarkAlertDelivered marks an alert as successfully delivered.
func (r *SQLiteRepository) MarkAlertDelivered(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET status = ?, delivered_at = CURRENT_TIMESTAMP WHERE id = ?`,
		AlertDelivered, id)
	if err != nil {
		return fmt.Errorf("mark alert delivered: %w", err)
	}

	slog.InfoContext(ctx, "Alert marked as delivered", "alert_id", id)
	return nil
}

// MarkAlertError bumps the attempt counter; after three failed attempts the
// alert is parked as failed instead of being retried forever.
func (r *SQLiteRepository) MarkAlertError(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET
			attempts = attempts + 1,
			status = CASE WHEN attempts + 1 >= 3 THEN ? ELSE ? END
		WHERE id = ?`,
		AlertFailed, AlertPending, id)
	if err != nil {
		return fmt.Errorf("mark alert error: %w", err)
	}

	slog.WarnContext(ctx, "Alert marked with delivery error", "alert_id", id)
	return nil
}
