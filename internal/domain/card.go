package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CardType represents the funding type of a card
type CardType string

const (
	CardTypeDebit   CardType = "DEBIT"
	CardTypeCredit  CardType = "CREDIT"
	CardTypePrepaid CardType = "PREPAID"
)

// IsValid reports whether t is a known card type
func (t CardType) IsValid() bool {
	switch t {
	case CardTypeDebit, CardTypeCredit, CardTypePrepaid:
		return true
	}
	return false
}

// CardStatus represents the lifecycle status of a card
type CardStatus string

const (
	CardStatusPending CardStatus = "PENDING"
	CardStatusActive  CardStatus = "ACTIVE"
	CardStatusLocked  CardStatus = "LOCKED"
	CardStatusClosed  CardStatus = "CLOSED"
	CardStatusExpired CardStatus = "EXPIRED"
)

// cardTransitions lists, per current status, the statuses a card may move to.
// PENDING is issuance-only and CLOSED is terminal.
var cardTransitions = map[CardStatus][]CardStatus{
	CardStatusPending: {CardStatusActive, CardStatusLocked, CardStatusExpired, CardStatusClosed},
	CardStatusActive:  {CardStatusLocked, CardStatusExpired, CardStatusClosed},
	CardStatusLocked:  {CardStatusActive, CardStatusExpired, CardStatusClosed},
	CardStatusExpired: {CardStatusActive, CardStatusLocked, CardStatusClosed},
	CardStatusClosed:  {},
}

// IsValid reports whether s is a known card status
func (s CardStatus) IsValid() bool {
	_, ok := cardTransitions[s]
	return ok
}

// IsTerminal reports whether no further transition is permitted from s
func (s CardStatus) IsTerminal() bool {
	return s == CardStatusClosed
}

// CanTransitionCard checks if a card may move from one status to another
func CanTransitionCard(from, to CardStatus) bool {
	for _, allowed := range cardTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Card represents one physical or virtual card instrument.
// The full PAN is never held; only the masked form is kept.
type Card struct {
	ID           uuid.UUID
	CustomerID   uuid.UUID
	MaskedNumber string // "**** **** **** 1234"
	CardType     CardType
	Brand        string
	Status       CardStatus
	ExpiryDate   time.Time        // Calendar date; the card is usable through the whole day
	CreditLimit  *decimal.Decimal // NOT NULL only for CREDIT cards
	IssueDate    time.Time
	UpdatedAt    time.Time

	// Denormalized cache of the most recent approved transaction
	LastTransactionAmount *decimal.Decimal
	LastTransactionDate   *time.Time
}

// Validate ensures the card adheres to domain rules
func (c *Card) Validate() error {
	if c.ID == uuid.Nil {
		return fmt.Errorf("%w: card id is required", ErrInvalidField)
	}
	if c.CustomerID == uuid.Nil {
		return fmt.Errorf("%w: customer id is required", ErrInvalidField)
	}
	if c.MaskedNumber == "" {
		return fmt.Errorf("%w: masked card number is required", ErrInvalidField)
	}
	if !c.CardType.IsValid() {
		return fmt.Errorf("%w: unknown card type %q", ErrInvalidField, c.CardType)
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("%w: unknown card status %q", ErrInvalidField, c.Status)
	}
	if c.ExpiryDate.IsZero() {
		return fmt.Errorf("%w: expiry date is required", ErrInvalidField)
	}

	// Credit limit is a CREDIT-only attribute
	if c.CardType == CardTypeCredit {
		if c.CreditLimit == nil {
			return fmt.Errorf("%w: credit card must have a credit limit", ErrInvalidField)
		}
		if c.CreditLimit.IsNegative() {
			return fmt.Errorf("%w: credit limit must not be negative", ErrInvalidField)
		}
		if err := checkScale("credit limit", *c.CreditLimit); err != nil {
			return err
		}
	} else if c.CreditLimit != nil {
		return fmt.Errorf("%w: credit limit is only allowed on CREDIT cards", ErrInvalidField)
	}

	return nil
}

// LastFour returns the last four digits retained from the card number
func (c *Card) LastFour() string {
	if len(c.MaskedNumber) < 4 {
		return c.MaskedNumber
	}
	return c.MaskedNumber[len(c.MaskedNumber)-4:]
}

// IsExpired reports whether the expiry date lies strictly before the calendar date of now
func (c *Card) IsExpired(now time.Time) bool {
	return calendarDate(c.ExpiryDate).Before(calendarDate(now))
}

// CanTransact reports whether the card is ACTIVE and not expired at now
func (c *Card) CanTransact(now time.Time) bool {
	return c.Status == CardStatusActive && !c.IsExpired(now)
}

// EffectiveStatus returns the stored status, except that an ACTIVE card past its
// expiry date reads as EXPIRED. Nothing is written.
func (c *Card) EffectiveStatus(now time.Time) CardStatus {
	if c.Status == CardStatusActive && c.IsExpired(now) {
		return CardStatusExpired
	}
	return c.Status
}

// TransitionStatus moves the card to newStatus and returns the record of the change
func (c *Card) TransitionStatus(newStatus CardStatus, reason string, now time.Time) (TransitionRecord, error) {
	if c.Status.IsTerminal() {
		return TransitionRecord{}, fmt.Errorf("%w: card %s is %s", ErrInvalidTransition, c.ID, c.Status)
	}
	if !newStatus.IsValid() {
		return TransitionRecord{}, fmt.Errorf("%w: unknown card status %q", ErrInvalidTransition, newStatus)
	}
	if !CanTransitionCard(c.Status, newStatus) {
		return TransitionRecord{}, fmt.Errorf("%w: card %s cannot move from %s to %s", ErrInvalidTransition, c.ID, c.Status, newStatus)
	}

	record := TransitionRecord{
		Kind:           EntityKindCard,
		EntityID:       c.ID.String(),
		PreviousStatus: string(c.Status),
		NewStatus:      string(newStatus),
		Reason:         reason,
		Timestamp:      now,
	}

	c.Status = newStatus
	c.UpdatedAt = now

	return record, nil
}

// RecordTransaction refreshes the last-transaction cache
func (c *Card) RecordTransaction(amount decimal.Decimal, at time.Time, now time.Time) error {
	if c.Status.IsTerminal() {
		return fmt.Errorf("%w: card %s is %s", ErrInvalidTransition, c.ID, c.Status)
	}

	c.LastTransactionAmount = &amount
	c.LastTransactionDate = &at
	c.UpdatedAt = now

	return nil
}

// MaskCardNumber reduces a card number to its masked form, keeping only the last four digits
func MaskCardNumber(number string) (string, error) {
	var digits strings.Builder
	for _, r := range number {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ' || r == '-':
			// separators are dropped
		default:
			return "", fmt.Errorf("%w: card number contains %q", ErrInvalidField, r)
		}
	}

	d := digits.String()
	if len(d) < 12 || len(d) > 19 {
		return "", fmt.Errorf("%w: card number must have 12 to 19 digits", ErrInvalidField)
	}

	return "**** **** **** " + d[len(d)-4:], nil
}

// calendarDate truncates t to midnight UTC of its UTC calendar day
func calendarDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
