package core

import "errors"

var (
	// Money
	ErrInvalidCurrency  = errors.New("currency must be a 3-letter code")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrInvalidOperand   = errors.New("operand must be finite and non-zero")

	// Split rules
	ErrNegativeAmount       = errors.New("amount to split cannot be negative")
	ErrZeroAmount           = errors.New("amount to split cannot be zero")
	ErrMissingSplitType     = errors.New("split type is required")
	ErrEmptyPartners        = errors.New("at least one partner is required")
	ErrEmptyPartnerID       = errors.New("partner id cannot be empty")
	ErrDuplicatePartner     = errors.New("duplicate partner id")
	ErrMissingEffectiveFrom = errors.New("effective from date is required")
	ErrMissingFixedAmount   = errors.New("fixed amount is required for every partner")
	ErrNegativeFixedAmount  = errors.New("fixed amount cannot be negative")
	ErrMissingCustomAmount  = errors.New("custom amount is required for every partner")
	ErrMissingIncome        = errors.New("income is required for every partner")
	ErrInvalidIncome        = errors.New("partner income must be positive")
	ErrFixedAmountExceeded  = errors.New("fixed amounts exceed the total")
	ErrCustomAmountMismatch = errors.New("custom amounts must sum exactly to the total")
	ErrSplitNotReconciled   = errors.New("split results do not sum to the original amount")

	// Agreements
	ErrEmptyName           = errors.New("name cannot be empty")
	ErrInvalidAgreement    = errors.New("invalid agreement")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrAgreementTerminated = errors.New("agreement is terminated")
	ErrInvalidThreshold    = errors.New("alert threshold must be between 0 and 100")
	ErrInvalidPeriodRange  = errors.New("effective until must not precede effective from")

	// Envelopes
	ErrInvalidPeriod     = errors.New("invalid budget period")
	ErrMissingRange      = errors.New("custom period requires an explicit date range")
	ErrNegativeSpending  = errors.New("spending amount cannot be negative")
	ErrInvalidThresholds = errors.New("warn threshold must be below critical threshold")

	// Goals
	ErrNoOwners                  = errors.New("goal requires at least one owner")
	ErrGoalClosed                = errors.New("goal is completed or cancelled")
	ErrContributionExceedsGoal   = errors.New("contribution exceeds the remaining goal amount")
	ErrContributionNotFound      = errors.New("contribution not found")
	ErrInvalidTarget             = errors.New("goal target must be positive")

	// Transactions
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
)
