package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Transaction is a single household expense or transfer. The settlement
// layer writes per-partner split results back onto it after applying the
// active agreement's rule.
type Transaction struct {
	id          string
	householdID string
	description string
	amount      Money
	category    string
	payerID     string
	date        time.Time
	splits      []SplitResult
	createdAt   time.Time
}

// TransactionParams carries the constructor input for NewTransaction.
type TransactionParams struct {
	ID          string
	HouseholdID string
	Description string
	Amount      Money
	Category    string
	PayerID     string
	Date        time.Time
}

// NewTransaction validates params and creates an unsplit transaction.
func NewTransaction(p TransactionParams) (*Transaction, error) {
	if p.HouseholdID == "" {
		return nil, errors.New("household id is required")
	}
	desc := strings.TrimSpace(p.Description)
	if desc == "" {
		return nil, ErrEmptyDescription
	}
	if len(desc) > 200 {
		return nil, errors.New("description too long (max 200 characters)")
	}
	if !p.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(p.Category) == "" {
		return nil, ErrEmptyCategory
	}
	date := p.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	id := p.ID
	if id == "" {
		id = NewID()
	}
	return &Transaction{
		id:          id,
		householdID: p.HouseholdID,
		description: desc,
		amount:      p.Amount,
		category:    p.Category,
		payerID:     p.PayerID,
		date:        date,
		createdAt:   time.Now().UTC(),
	}, nil
}

func (t *Transaction) ID() string          { return t.id }
func (t *Transaction) HouseholdID() string { return t.householdID }
func (t *Transaction) Description() string { return t.description }
func (t *Transaction) Amount() Money       { return t.amount }
func (t *Transaction) Category() string    { return t.category }
func (t *Transaction) PayerID() string     { return t.payerID }
func (t *Transaction) Date() time.Time     { return t.date }
func (t *Transaction) CreatedAt() time.Time { return t.createdAt }

// ApplySplitResults stores the per-partner allocations after verifying they
// reconcile with the transaction amount.
func (t *Transaction) ApplySplitResults(results []SplitResult) error {
	if err := ValidateSplit(t.amount, results); err != nil {
		return err
	}
	t.splits = append([]SplitResult(nil), results...)
	return nil
}

// Splits returns a copy of the applied split results, nil if unsplit.
func (t *Transaction) Splits() []SplitResult {
	if t.splits == nil {
		return nil
	}
	return append([]SplitResult(nil), t.splits...)
}

// IsSplit reports whether split results were applied.
func (t *Transaction) IsSplit() bool { return len(t.splits) > 0 }

type transactionJSON struct {
	ID          string        `json:"id"`
	HouseholdID string        `json:"householdId"`
	Description string        `json:"description"`
	Amount      Money         `json:"amount"`
	Category    string        `json:"category"`
	PayerID     string        `json:"payerId,omitempty"`
	Date        time.Time     `json:"date"`
	Splits      []SplitResult `json:"splits,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

func (t *Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionJSON{
		ID:          t.id,
		HouseholdID: t.householdID,
		Description: t.description,
		Amount:      t.amount,
		Category:    t.category,
		PayerID:     t.payerID,
		Date:        t.date,
		Splits:      t.Splits(),
		CreatedAt:   t.createdAt,
	})
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	var raw transactionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Transaction{
		id:          raw.ID,
		householdID: raw.HouseholdID,
		description: raw.Description,
		amount:      raw.Amount,
		category:    raw.Category,
		payerID:     raw.PayerID,
		date:        raw.Date,
		splits:      raw.Splits,
		createdAt:   raw.CreatedAt,
	}
	return nil
}
