package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Channel represents the method used to present a transaction
type Channel string

const (
	ChannelContactless Channel = "CONTACTLESS"
	ChannelOnline      Channel = "ONLINE"
	ChannelATM         Channel = "ATM"
	ChannelInStore     Channel = "IN_STORE" // chip or swipe at a terminal; not toggled by any control
)

// IsValid reports whether c is a known channel
func (c Channel) IsValid() bool {
	switch c {
	case ChannelContactless, ChannelOnline, ChannelATM, ChannelInStore:
		return true
	}
	return false
}

// ViolationReason is a structured reason a transaction attempt was refused
type ViolationReason string

const (
	ViolationPolicyNotEffective          ViolationReason = "POLICY_NOT_EFFECTIVE"
	ViolationDailyLimitExceeded          ViolationReason = "DAILY_LIMIT_EXCEEDED"
	ViolationPerTransactionLimitExceeded ViolationReason = "PER_TRANSACTION_LIMIT_EXCEEDED"
	ViolationInternationalDisabled       ViolationReason = "INTERNATIONAL_DISABLED"
	ViolationCountryNotAllowed           ViolationReason = "COUNTRY_NOT_ALLOWED"
	ViolationContactlessDisabled         ViolationReason = "CONTACTLESS_DISABLED"
	ViolationOnlineDisabled              ViolationReason = "ONLINE_DISABLED"
	ViolationATMDisabled                 ViolationReason = "ATM_DISABLED"
	ViolationCardNotTransactable         ViolationReason = "CARD_NOT_TRANSACTABLE"
)

// ValidationResult is the outcome of checking a transaction attempt against a ControlPolicy.
// Violations are ordered by the fixed check order.
type ValidationResult struct {
	Valid      bool
	Violations []ViolationReason
}

// ControlPolicy represents the enforcement rules attached to a card.
// A nil limit means unlimited.
type ControlPolicy struct {
	ID                   uuid.UUID
	CardID               uuid.UUID
	HomeCountry          string // ISO 3166-1 alpha-2
	DailyLimit           *decimal.Decimal
	PerTransactionLimit  *decimal.Decimal
	ContactlessEnabled   bool
	InternationalEnabled bool
	OnlineEnabled        bool
	ATMEnabled           bool
	AllowedCountries     []string
	EffectiveDate        time.Time
	ExpiryDate           *time.Time // NULL means open-ended
	UpdatedAt            time.Time
}

// NewDefaultControlPolicy creates the permissive policy issued alongside a card:
// every channel enabled, no limits, only the home country allowed.
func NewDefaultControlPolicy(cardID uuid.UUID, homeCountry string, now time.Time) *ControlPolicy {
	home := normalizeCountry(homeCountry)
	return &ControlPolicy{
		ID:                   uuid.New(),
		CardID:               cardID,
		HomeCountry:          home,
		ContactlessEnabled:   true,
		InternationalEnabled: true,
		OnlineEnabled:        true,
		ATMEnabled:           true,
		AllowedCountries:     []string{home},
		EffectiveDate:        now,
		UpdatedAt:            now,
	}
}

// IsEffective reports whether now falls inside the policy window [EffectiveDate, ExpiryDate)
func (p *ControlPolicy) IsEffective(now time.Time) bool {
	if p.EffectiveDate.After(now) {
		return false
	}
	return p.ExpiryDate == nil || p.ExpiryDate.After(now)
}

// Validate checks a transaction attempt against the policy without mutating it.
// Checks run in a fixed order so the violation list is reproducible. The daily
// limit is compared with the single amount only; cumulative same-day spend is
// not consulted.
func (p *ControlPolicy) Validate(amount decimal.Decimal, country string, channel Channel, now time.Time) ValidationResult {
	if !p.IsEffective(now) {
		return ValidationResult{
			Valid:      false,
			Violations: []ViolationReason{ViolationPolicyNotEffective},
		}
	}

	violations := make([]ViolationReason, 0)

	if p.DailyLimit != nil && amount.GreaterThan(*p.DailyLimit) {
		violations = append(violations, ViolationDailyLimitExceeded)
	}

	if p.PerTransactionLimit != nil && amount.GreaterThan(*p.PerTransactionLimit) {
		violations = append(violations, ViolationPerTransactionLimitExceeded)
	}

	country = normalizeCountry(country)
	if country != p.HomeCountry && !p.InternationalEnabled {
		violations = append(violations, ViolationInternationalDisabled)
	}

	if !slices.Contains(p.AllowedCountries, country) {
		violations = append(violations, ViolationCountryNotAllowed)
	}

	switch channel {
	case ChannelContactless:
		if !p.ContactlessEnabled {
			violations = append(violations, ViolationContactlessDisabled)
		}
	case ChannelOnline:
		if !p.OnlineEnabled {
			violations = append(violations, ViolationOnlineDisabled)
		}
	case ChannelATM:
		if !p.ATMEnabled {
			violations = append(violations, ViolationATMDisabled)
		}
	}

	return ValidationResult{
		Valid:      len(violations) == 0,
		Violations: violations,
	}
}

// Update applies a partial update given as raw field names.
// Unknown names are rejected with ErrInvalidField.
func (p *ControlPolicy) Update(fields map[string]any, now time.Time) error {
	update, err := ParseControlPolicyUpdate(fields)
	if err != nil {
		return err
	}
	return p.Apply(update, now)
}

// Apply overwrites only the fields set in update. On error the policy is left untouched.
func (p *ControlPolicy) Apply(update ControlPolicyUpdate, now time.Time) error {
	next := *p
	next.AllowedCountries = slices.Clone(p.AllowedCountries)

	if update.DailyLimit.Set {
		next.DailyLimit = update.DailyLimit.Value
	}
	if update.PerTransactionLimit.Set {
		next.PerTransactionLimit = update.PerTransactionLimit.Value
	}
	if update.ContactlessEnabled.Set {
		next.ContactlessEnabled = update.ContactlessEnabled.Value
	}
	if update.InternationalEnabled.Set {
		next.InternationalEnabled = update.InternationalEnabled.Value
	}
	if update.OnlineEnabled.Set {
		next.OnlineEnabled = update.OnlineEnabled.Value
	}
	if update.ATMEnabled.Set {
		next.ATMEnabled = update.ATMEnabled.Value
	}
	if update.AllowedCountries.Set {
		next.AllowedCountries = make([]string, 0, len(update.AllowedCountries.Value))
		for _, c := range update.AllowedCountries.Value {
			next.AllowedCountries = append(next.AllowedCountries, normalizeCountry(c))
		}
	}
	if update.EffectiveDate.Set {
		next.EffectiveDate = update.EffectiveDate.Value
	}
	if update.ExpiryDate.Set {
		next.ExpiryDate = update.ExpiryDate.Value
	}

	if err := next.ValidateFields(); err != nil {
		return err
	}

	next.UpdatedAt = now
	*p = next

	return nil
}

// Revoke ends the policy window at now. Used when the owning card is closed.
func (p *ControlPolicy) Revoke(now time.Time) {
	if p.ExpiryDate != nil && !p.ExpiryDate.After(now) {
		return
	}
	p.ExpiryDate = &now
	p.UpdatedAt = now
}

// ValidateFields ensures the structural integrity of the policy
func (p *ControlPolicy) ValidateFields() error {
	if !isCountryCode(p.HomeCountry) {
		return fmt.Errorf("%w: home country %q is not an ISO alpha-2 code", ErrInvalidField, p.HomeCountry)
	}
	for _, c := range p.AllowedCountries {
		if !isCountryCode(c) {
			return fmt.Errorf("%w: allowed country %q is not an ISO alpha-2 code", ErrInvalidField, c)
		}
	}
	if p.DailyLimit != nil && p.DailyLimit.IsNegative() {
		return fmt.Errorf("%w: daily limit must not be negative", ErrInvalidField)
	}
	if p.PerTransactionLimit != nil && p.PerTransactionLimit.IsNegative() {
		return fmt.Errorf("%w: per-transaction limit must not be negative", ErrInvalidField)
	}
	if p.DailyLimit != nil {
		if err := checkScale("daily limit", *p.DailyLimit); err != nil {
			return err
		}
	}
	if p.PerTransactionLimit != nil {
		if err := checkScale("per-transaction limit", *p.PerTransactionLimit); err != nil {
			return err
		}
	}
	if p.EffectiveDate.IsZero() {
		return fmt.Errorf("%w: effective date is required", ErrInvalidField)
	}
	if p.ExpiryDate != nil && !p.ExpiryDate.After(p.EffectiveDate) {
		return fmt.Errorf("%w: expiry date must be after effective date", ErrInvalidField)
	}
	return nil
}

func normalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func isCountryCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
