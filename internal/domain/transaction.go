package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus represents the authorization/settlement status of a transaction
type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "PENDING"
	TransactionStatusApproved TransactionStatus = "APPROVED"
	TransactionStatusDeclined TransactionStatus = "DECLINED"
	TransactionStatusReversed TransactionStatus = "REVERSED"
)

// transactionTransitions lists, per current status, the statuses a transaction may move to.
// Disputes are a flag, not a status, so the settlement outcome is never lost.
var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:  {TransactionStatusApproved, TransactionStatusDeclined},
	TransactionStatusApproved: {TransactionStatusReversed},
	TransactionStatusDeclined: {},
	TransactionStatusReversed: {},
}

// IsValid reports whether s is a known transaction status
func (s TransactionStatus) IsValid() bool {
	_, ok := transactionTransitions[s]
	return ok
}

// IsTerminal reports whether s is a settled outcome. Settlement fields of a
// transaction in a terminal status can no longer change.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusApproved || s == TransactionStatusDeclined || s == TransactionStatusReversed
}

// CanTransitionTransaction checks if a transaction may move from one status to another
func CanTransitionTransaction(from, to TransactionStatus) bool {
	for _, allowed := range transactionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransactionType represents the nature of the transaction
type TransactionType string

const (
	TransactionTypePurchase   TransactionType = "PURCHASE"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeRefund     TransactionType = "REFUND"
	TransactionTypeFee        TransactionType = "FEE"
)

// IsValid reports whether t is a known transaction type
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypePurchase, TransactionTypeWithdrawal, TransactionTypeRefund, TransactionTypeFee:
		return true
	}
	return false
}

// RiskTier is the fraud risk classification derived from a fraud score
type RiskTier string

const (
	RiskTierMinimal RiskTier = "MINIMAL"
	RiskTierLow     RiskTier = "LOW"
	RiskTierMedium  RiskTier = "MEDIUM"
	RiskTierHigh    RiskTier = "HIGH"
)

const (
	recentWindow  = 30 * 24 * time.Hour
	disputeWindow = 60 * 24 * time.Hour
)

// TransactionID is a time-ordered identifier: TXN-YYYYMMDD-XXXXXXXX
type TransactionID string

// NewTransactionID generates an identifier embedding the UTC date of the transaction
func NewTransactionID(date time.Time) TransactionID {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return TransactionID(fmt.Sprintf("TXN-%s-%s", date.UTC().Format("20060102"), suffix))
}

// NewDisputeID generates a dispute identifier
func NewDisputeID() string {
	return "DSP-" + uuid.NewString()
}

// Merchant describes where the transaction took place
type Merchant struct {
	Name         string
	Category     string
	CategoryCode string // MCC
	ID           string // Optional
}

// Location is the geographic origin of the transaction
type Location struct {
	City      string
	State     string
	Country   string // ISO 3166-1 alpha-2
	Latitude  *float64
	Longitude *float64
}

// Settlement groups the fields frozen once a transaction reaches a terminal status
type Settlement struct {
	Amount   decimal.Decimal // Non-negative
	Currency string          // ISO 4217
	Merchant Merchant
	Location Location
}

// TransactionDraft is the caller-supplied description of a transaction attempt
type TransactionDraft struct {
	Type        TransactionType
	Channel     Channel
	Amount      decimal.Decimal
	Currency    string
	Merchant    Merchant
	Location    Location
	FraudScore  float64
	Description string
	Category    string
	Date        time.Time // Zero means the attempt time
}

// Validate ensures the draft is structurally usable
func (d TransactionDraft) Validate() error {
	if !d.Type.IsValid() {
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidField, d.Type)
	}
	if !d.Channel.IsValid() {
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidField, d.Channel)
	}
	if d.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidField)
	}
	if err := checkScale("amount", d.Amount); err != nil {
		return err
	}
	if len(d.Currency) != 3 {
		return fmt.Errorf("%w: currency must be an ISO 4217 code", ErrInvalidField)
	}
	if !isCountryCode(normalizeCountry(d.Location.Country)) {
		return fmt.Errorf("%w: location country %q is not an ISO alpha-2 code", ErrInvalidField, d.Location.Country)
	}
	if err := checkFraudScore(d.FraudScore); err != nil {
		return err
	}
	return nil
}

// Transaction represents one authorization/settlement record.
// It refers to its card by identifier only.
type Transaction struct {
	ID             TransactionID
	CardID         uuid.UUID
	CustomerID     uuid.UUID
	Date           time.Time
	Status         TransactionStatus
	Type           TransactionType
	Channel        Channel
	Description    string
	Category       string
	DeclineReasons []ViolationReason
	UpdatedAt      time.Time

	settlement Settlement
	fraudScore float64
	disputeID  *string
}

// NewTransaction creates a transaction from a draft in PENDING or, for attempts
// refused up front, directly in DECLINED.
func NewTransaction(id TransactionID, cardID, customerID uuid.UUID, draft TransactionDraft, status TransactionStatus, now time.Time) (*Transaction, error) {
	if status != TransactionStatusPending && status != TransactionStatusDeclined {
		return nil, fmt.Errorf("%w: transaction cannot be created in %s", ErrInvalidTransition, status)
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	date := draft.Date
	if date.IsZero() {
		date = now
	}

	location := draft.Location
	location.Country = normalizeCountry(location.Country)

	return &Transaction{
		ID:          id,
		CardID:      cardID,
		CustomerID:  customerID,
		Date:        date,
		Status:      status,
		Type:        draft.Type,
		Channel:     draft.Channel,
		Description: draft.Description,
		Category:    draft.Category,
		UpdatedAt:   now,
		settlement: Settlement{
			Amount:   draft.Amount,
			Currency: strings.ToUpper(draft.Currency),
			Merchant: draft.Merchant,
			Location: location,
		},
		fraudScore: draft.FraudScore,
	}, nil
}

// RestoreTransaction rebuilds a transaction from persisted state
func RestoreTransaction(header Transaction, settlement Settlement, fraudScore float64, disputeID *string) *Transaction {
	t := header
	t.settlement = settlement
	t.fraudScore = fraudScore
	t.disputeID = disputeID
	return &t
}

// Settlement returns the amount, currency, merchant and location
func (t *Transaction) Settlement() Settlement { return t.settlement }

// Amount returns the monetary amount
func (t *Transaction) Amount() decimal.Decimal { return t.settlement.Amount }

// Currency returns the ISO 4217 currency code
func (t *Transaction) Currency() string { return t.settlement.Currency }

// Merchant returns the merchant descriptor
func (t *Transaction) Merchant() Merchant { return t.settlement.Merchant }

// Location returns the transaction location
func (t *Transaction) Location() Location { return t.settlement.Location }

// FraudScore returns the externally supplied fraud score in [0, 1]
func (t *Transaction) FraudScore() float64 { return t.fraudScore }

// IsDisputed reports whether a dispute has been opened
func (t *Transaction) IsDisputed() bool { return t.disputeID != nil }

// DisputeID returns the dispute identifier, or "" when not disputed
func (t *Transaction) DisputeID() string {
	if t.disputeID == nil {
		return ""
	}
	return *t.disputeID
}

// FraudRiskTier classifies the fraud score. Each tier includes its lower bound.
func (t *Transaction) FraudRiskTier() RiskTier {
	switch {
	case t.fraudScore >= 0.8:
		return RiskTierHigh
	case t.fraudScore >= 0.5:
		return RiskTierMedium
	case t.fraudScore >= 0.2:
		return RiskTierLow
	default:
		return RiskTierMinimal
	}
}

// IsRecent reports whether the transaction is less than 30 days old at now
func (t *Transaction) IsRecent(now time.Time) bool {
	return withinTrailing(t.Date, now, recentWindow)
}

// CanBeDisputed reports whether an APPROVED, undisputed transaction is still
// inside the 60 day dispute window at now
func (t *Transaction) CanBeDisputed(now time.Time) bool {
	return t.Status == TransactionStatusApproved &&
		!t.IsDisputed() &&
		withinTrailing(t.Date, now, disputeWindow)
}

// MarkDisputed links the transaction to a dispute. The flag and the identifier
// are always set together.
func (t *Transaction) MarkDisputed(disputeID string, now time.Time) error {
	if t.IsDisputed() {
		return fmt.Errorf("%w: transaction %s is linked to dispute %s", ErrAlreadyDisputed, t.ID, *t.disputeID)
	}
	if disputeID == "" {
		return fmt.Errorf("%w: dispute id is required", ErrInvalidField)
	}

	t.disputeID = &disputeID
	t.UpdatedAt = now

	return nil
}

// TransitionStatus moves the transaction to newStatus and returns the record of the change
func (t *Transaction) TransitionStatus(newStatus TransactionStatus, reason string, now time.Time) (TransitionRecord, error) {
	if !newStatus.IsValid() {
		return TransitionRecord{}, fmt.Errorf("%w: unknown transaction status %q", ErrInvalidTransition, newStatus)
	}
	if !CanTransitionTransaction(t.Status, newStatus) {
		return TransitionRecord{}, fmt.Errorf("%w: transaction %s cannot move from %s to %s", ErrInvalidTransition, t.ID, t.Status, newStatus)
	}

	record := TransitionRecord{
		Kind:           EntityKindTransaction,
		EntityID:       string(t.ID),
		PreviousStatus: string(t.Status),
		NewStatus:      string(newStatus),
		Reason:         reason,
		Timestamp:      now,
	}

	t.Status = newStatus
	t.UpdatedAt = now

	return record, nil
}

// ReviseSettlement replaces amount, currency, merchant and location.
// Refused once the transaction is in a terminal status.
func (t *Transaction) ReviseSettlement(s Settlement, now time.Time) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: transaction %s is %s", ErrImmutableFieldViolation, t.ID, t.Status)
	}
	if s.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidField)
	}
	if err := checkScale("amount", s.Amount); err != nil {
		return err
	}

	s.Location.Country = normalizeCountry(s.Location.Country)
	t.settlement = s
	t.UpdatedAt = now

	return nil
}

// SetFraudScore replaces the fraud score; allowed in any status
func (t *Transaction) SetFraudScore(score float64, now time.Time) error {
	if err := checkFraudScore(score); err != nil {
		return err
	}

	t.fraudScore = score
	t.UpdatedAt = now

	return nil
}

func checkFraudScore(score float64) error {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return fmt.Errorf("%w: fraud score %v is outside [0, 1]", ErrInvalidField, score)
	}
	return nil
}

// MoneyScale is the number of fractional digits kept for amounts and limits
const MoneyScale = 2

// checkScale rejects values that storage would have to round
func checkScale(field string, d decimal.Decimal) error {
	if !d.Equal(d.Truncate(MoneyScale)) {
		return fmt.Errorf("%w: %s %s has more than %d decimal places", ErrInvalidField, field, d, MoneyScale)
	}
	return nil
}

// withinTrailing reports whether at lies in the window (now-window, now]
func withinTrailing(at, now time.Time, window time.Duration) bool {
	age := now.Sub(at)
	return age >= 0 && age < window
}
