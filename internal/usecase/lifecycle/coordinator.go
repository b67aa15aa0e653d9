package lifecycle

import (
	"fmt"
	"time"

	"github.com/simaogato/cardguard-backend/internal/domain"
)

// Decision is the outcome of a transaction attempt
type Decision string

const (
	DecisionAccepted Decision = "ACCEPTED"
	DecisionDeclined Decision = "DECLINED"
)

// Outcome is the result of AttemptTransaction.
// Transitions holds the status changes applied to the transaction, in order.
type Outcome struct {
	Decision    Decision
	Transaction *domain.Transaction
	Violations  []domain.ViolationReason
	Transitions []domain.TransitionRecord
	CardUpdated bool
}

// Coordinator decides accept/decline for a transaction attempt and applies the
// resulting state to the card and the new transaction. It performs no I/O and
// never reads the wall clock.
type Coordinator struct {
	// NewID generates transaction identifiers
	NewID func(date time.Time) domain.TransactionID
}

// NewCoordinator creates a Coordinator using domain.NewTransactionID
func NewCoordinator() *Coordinator {
	return &Coordinator{NewID: domain.NewTransactionID}
}

// AttemptTransaction runs the attempt:
//  1. A card that cannot transact declines with CARD_NOT_TRANSACTABLE
//  2. Otherwise the policy validates the draft
//  3. Violations decline; the transaction is created directly in DECLINED
//  4. A clean validation creates the transaction in PENDING, approves it and
//     refreshes the card's last-transaction cache
//
// Only card and the returned transaction are mutated; policy is read only.
func (c *Coordinator) AttemptTransaction(card *domain.Card, policy *domain.ControlPolicy, draft domain.TransactionDraft, now time.Time) (*Outcome, error) {
	if policy.CardID != card.ID {
		return nil, fmt.Errorf("%w: policy %s is owned by card %s, not %s", domain.ErrPolicyMismatch, policy.ID, policy.CardID, card.ID)
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	date := draft.Date
	if date.IsZero() {
		date = now
	}
	id := c.NewID(date)

	// 1. Card gate
	if !card.CanTransact(now) {
		return c.decline(id, card, draft, []domain.ViolationReason{domain.ViolationCardNotTransactable}, now)
	}

	// 2. Policy gate
	result := policy.Validate(draft.Amount, draft.Location.Country, draft.Channel, now)

	// 3. Declined on policy
	if !result.Valid {
		return c.decline(id, card, draft, result.Violations, now)
	}

	// 4. Approved
	tx, err := domain.NewTransaction(id, card.ID, card.CustomerID, draft, domain.TransactionStatusPending, now)
	if err != nil {
		return nil, err
	}

	record, err := tx.TransitionStatus(domain.TransactionStatusApproved, "controls passed", now)
	if err != nil {
		return nil, err
	}

	if err := card.RecordTransaction(tx.Amount(), tx.Date, now); err != nil {
		return nil, err
	}

	return &Outcome{
		Decision:    DecisionAccepted,
		Transaction: tx,
		Violations:  []domain.ViolationReason{},
		Transitions: []domain.TransitionRecord{record},
		CardUpdated: true,
	}, nil
}

func (c *Coordinator) decline(id domain.TransactionID, card *domain.Card, draft domain.TransactionDraft, violations []domain.ViolationReason, now time.Time) (*Outcome, error) {
	tx, err := domain.NewTransaction(id, card.ID, card.CustomerID, draft, domain.TransactionStatusDeclined, now)
	if err != nil {
		return nil, err
	}
	tx.DeclineReasons = violations

	return &Outcome{
		Decision:    DecisionDeclined,
		Transaction: tx,
		Violations:  violations,
		Transitions: []domain.TransitionRecord{},
	}, nil
}
