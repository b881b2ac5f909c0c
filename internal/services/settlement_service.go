// Package services provides business logic and orchestration on top of the
// storage and messaging layers.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/lo"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/storage"
)

// ErrNoActiveAgreement is returned when a split was requested but no
// agreement covers the transaction date.
var ErrNoActiveAgreement = errors.New("no active agreement for date")

// SettlementService orchestrates shared-expense bookkeeping: it records
// transactions, applies the household's split agreement, keeps budget
// envelopes current and raises alerts when thresholds trip.
type SettlementService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewSettlementService(storage *storage.SQLiteRepository, amqpClient *amqp.Client) *SettlementService {
	return &SettlementService{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// RecordTransactionParams carries the input for a new shared expense.
// AgreementID may be empty, in which case the first agreement active on the
// transaction date is used. Incomes are only needed for proportional splits.
type RecordTransactionParams struct {
	HouseholdID string
	Description string
	Amount      core.Money
	Category    string
	PayerID     string
	Date        time.Time
	AgreementID string
	Incomes     map[string]core.Money
}

// RecordTransaction saves the transaction with its split locally first, then
// updates the matching envelope. Envelope bookkeeping failures never fail the
// request: the transaction is already durable.
func (s *SettlementService) RecordTransaction(ctx context.Context, p RecordTransactionParams) (*core.Transaction, error) {
	tx, err := core.NewTransaction(core.TransactionParams{
		HouseholdID: p.HouseholdID,
		Description: p.Description,
		Amount:      p.Amount,
		Category:    p.Category,
		PayerID:     p.PayerID,
		Date:        p.Date,
	})
	if err != nil {
		return nil, err
	}

	agreement, err := s.agreementFor(ctx, p)
	if err != nil {
		return nil, err
	}
	if agreement != nil {
		results, err := agreement.Rule().Split(p.Amount, p.Incomes)
		if err != nil {
			return nil, fmt.Errorf("split transaction: %w", err)
		}
		if err := tx.ApplySplitResults(results); err != nil {
			return nil, fmt.Errorf("apply split: %w", err)
		}
	}

	if err := s.storage.SaveTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("save transaction: %w", err)
	}

	s.applyToEnvelope(ctx, tx)

	slog.InfoContext(ctx, "Transaction recorded",
		"transaction_id", tx.ID(),
		"household_id", tx.HouseholdID(),
		"amount_cents", tx.Amount().Cents(),
		"split", tx.IsSplit())

	return tx, nil
}

// agreementFor resolves the agreement to split by. An explicit ID must exist
// and be active on the transaction date; otherwise the first active agreement
// is picked, and nil means the transaction stays unsplit.
func (s *SettlementService) agreementFor(ctx context.Context, p RecordTransactionParams) (*core.Agreement, error) {
	if p.AgreementID != "" {
		agreement, err := s.storage.GetAgreement(ctx, p.AgreementID)
		if err != nil {
			return nil, fmt.Errorf("get agreement: %w", err)
		}
		if !agreement.IsActiveOn(p.Date) {
			return nil, ErrNoActiveAgreement
		}
		return agreement, nil
	}

	agreements, err := s.storage.ListAgreements(ctx, p.HouseholdID)
	if err != nil {
		return nil, fmt.Errorf("list agreements: %w", err)
	}
	for _, a := range agreements {
		if a.IsActiveOn(p.Date) {
			return a, nil
		}
	}
	return nil, nil
}

// applyToEnvelope charges the envelope named after the transaction category,
// if the household has one, and raises threshold alerts.
func (s *SettlementService) applyToEnvelope(ctx context.Context, tx *core.Transaction) {
	envelope, err := s.storage.GetEnvelopeByName(ctx, tx.HouseholdID(), tx.Category())
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load envelope for transaction",
			"transaction_id", tx.ID(),
			"category", tx.Category(),
			"error", err)
		return
	}

	if err := envelope.AddSpending(tx.Amount()); err != nil {
		slog.WarnContext(ctx, "Envelope not charged",
			"envelope_id", envelope.ID(),
			"transaction_id", tx.ID(),
			"error", err)
		return
	}
	if err := s.storage.SaveEnvelope(ctx, envelope); err != nil {
		slog.ErrorContext(ctx, "Failed to save envelope",
			"envelope_id", envelope.ID(),
			"error", err)
		return
	}

	switch {
	case envelope.ShouldAlertCritical():
		raiseAlert(ctx, s.storage, s.amqpClient, envelope.HouseholdID(), amqp.AlertEnvelopeCritical, envelope.ID())
	case envelope.ShouldWarn():
		raiseAlert(ctx, s.storage, s.amqpClient, envelope.HouseholdID(), amqp.AlertEnvelopeWarn, envelope.ID())
	}
}

// PartnerBalance summarizes one partner's position over a period.
type PartnerBalance struct {
	PartnerID string     `json:"partnerId"`
	Paid      core.Money `json:"paid"`
	Owed      core.Money `json:"owed"`
	Net       core.Money `json:"net"`
}

// Transfer is a suggested payment that settles part of the imbalance.
type Transfer struct {
	FromPartnerID string     `json:"fromPartnerId"`
	ToPartnerID   string     `json:"toPartnerId"`
	Amount        core.Money `json:"amount"`
}

// SettlementReport is the period summary exposed by Settle.
type SettlementReport struct {
	HouseholdID string           `json:"householdId"`
	From        time.Time        `json:"from"`
	To          time.Time        `json:"to"`
	Total       core.Money       `json:"total"`
	Balances    []PartnerBalance `json:"balances"`
	Transfers   []Transfer       `json:"transfers"`
}

// Settle computes who owes whom for the split transactions in [from, to].
// Paid is what each partner fronted, owed is their share per the splits, and
// the transfer list settles the nets with the fewest payments a greedy
// matching gives.
func (s *SettlementService) Settle(ctx context.Context, householdID string, from, to time.Time) (*SettlementReport, error) {
	txs, err := s.storage.ListTransactions(ctx, householdID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	split := lo.Filter(txs, func(tx *core.Transaction, _ int) bool { return tx.IsSplit() })

	report := &SettlementReport{
		HouseholdID: householdID,
		From:        from,
		To:          to,
	}
	if len(split) == 0 {
		return report, nil
	}

	currency := split[0].Amount().Currency()
	paid := map[string]int64{}
	owed := map[string]int64{}
	var total int64
	for _, tx := range split {
		if tx.Amount().Currency() != currency {
			return nil, fmt.Errorf("%w: %s vs %s", core.ErrCurrencyMismatch, currency, tx.Amount().Currency())
		}
		total += tx.Amount().Cents()
		paid[tx.PayerID()] += tx.Amount().Cents()
		for _, share := range tx.Splits() {
			owed[share.PartnerID] += share.Amount.Cents()
		}
	}

	partners := lo.Uniq(append(lo.Keys(paid), lo.Keys(owed)...))
	sort.Strings(partners)

	report.Total, err = core.FromCents(total, currency)
	if err != nil {
		return nil, err
	}
	for _, id := range partners {
		balance, err := partnerBalance(id, paid[id], owed[id], currency)
		if err != nil {
			return nil, err
		}
		report.Balances = append(report.Balances, balance)
	}

	report.Transfers, err = settleTransfers(report.Balances, currency)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func partnerBalance(id string, paidCents, owedCents int64, currency string) (PartnerBalance, error) {
	paid, err := core.FromCents(paidCents, currency)
	if err != nil {
		return PartnerBalance{}, err
	}
	owed, err := core.FromCents(owedCents, currency)
	if err != nil {
		return PartnerBalance{}, err
	}
	net, err := core.FromCents(paidCents-owedCents, currency)
	if err != nil {
		return PartnerBalance{}, err
	}
	return PartnerBalance{PartnerID: id, Paid: paid, Owed: owed, Net: net}, nil
}

// settleTransfers greedily matches the largest debtor with the largest
// creditor until every net is zero.
func settleTransfers(balances []PartnerBalance, currency string) ([]Transfer, error) {
	type position struct {
		id    string
		cents int64
	}
	var debtors, creditors []position
	for _, b := range balances {
		switch {
		case b.Net.IsNegative():
			debtors = append(debtors, position{b.PartnerID, -b.Net.Cents()})
		case b.Net.IsPositive():
			creditors = append(creditors, position{b.PartnerID, b.Net.Cents()})
		}
	}
	sort.Slice(debtors, func(i, j int) bool { return debtors[i].cents > debtors[j].cents })
	sort.Slice(creditors, func(i, j int) bool { return creditors[i].cents > creditors[j].cents })

	var transfers []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := debtors[i].cents
		if creditors[j].cents < amount {
			amount = creditors[j].cents
		}
		m, err := core.FromCents(amount, currency)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, Transfer{
			FromPartnerID: debtors[i].id,
			ToPartnerID:   creditors[j].id,
			Amount:        m,
		})
		debtors[i].cents -= amount
		creditors[j].cents -= amount
		if debtors[i].cents == 0 {
			i++
		}
		if creditors[j].cents == 0 {
			j++
		}
	}
	return transfers, nil
}

// CheckAgreementDeviation compares how spending actually landed against the
// agreement's expected split for the period and raises an alert when the
// deviation exceeds the agreement's threshold.
func (s *SettlementService) CheckAgreementDeviation(ctx context.Context, agreementID string, from, to time.Time, incomes map[string]core.Money) (bool, error) {
	agreement, err := s.storage.GetAgreement(ctx, agreementID)
	if err != nil {
		return false, fmt.Errorf("get agreement: %w", err)
	}

	report, err := s.Settle(ctx, agreement.HouseholdID(), from, to)
	if err != nil {
		return false, err
	}
	if report.Total.IsZero() {
		return false, nil
	}

	expected, err := agreement.Rule().Split(report.Total, incomes)
	if err != nil {
		return false, fmt.Errorf("expected split: %w", err)
	}

	actualByPartner := map[string]core.Money{}
	for _, b := range report.Balances {
		actualByPartner[b.PartnerID] = b.Paid
	}
	expectedByPartner := map[string]core.Money{}
	for _, share := range expected {
		expectedByPartner[share.PartnerID] = share.Amount
	}

	deviated, err := agreement.ShouldAlert(actualByPartner, expectedByPartner)
	if err != nil {
		return false, err
	}
	if deviated {
		raiseAlert(ctx, s.storage, s.amqpClient, agreement.HouseholdID(), amqp.AlertAgreementDeviation, agreement.ID())
	}
	return deviated, nil
}

// Close closes both storage and AMQP connections
func (s *SettlementService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close settlement service: %v", errs)
	}

	return nil
}
