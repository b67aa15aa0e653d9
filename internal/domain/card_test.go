package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestCard(status CardStatus) *Card {
	return &Card{
		ID:           uuid.New(),
		CustomerID:   uuid.New(),
		MaskedNumber: "**** **** **** 1234",
		CardType:     CardTypeDebit,
		Brand:        "VISA",
		Status:       status,
		ExpiryDate:   date(2027, time.December, 31),
		IssueDate:    testNow.AddDate(-1, 0, 0),
		UpdatedAt:    testNow.AddDate(-1, 0, 0),
	}
}

func TestCard_Validate(t *testing.T) {
	limit := decimal.NewFromInt(5000)
	negative := decimal.NewFromInt(-1)
	subCent := decimal.RequireFromString("5000.001")

	tests := []struct {
		name    string
		mutate  func(c *Card)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "Debit card without credit limit should pass",
			mutate:  func(c *Card) {},
			wantErr: false,
		},
		{
			name: "Credit card with credit limit should pass",
			mutate: func(c *Card) {
				c.CardType = CardTypeCredit
				c.CreditLimit = &limit
			},
			wantErr: false,
		},
		{
			name:    "Credit card without credit limit should fail",
			mutate:  func(c *Card) { c.CardType = CardTypeCredit },
			wantErr: true,
			errMsg:  "credit card must have a credit limit",
		},
		{
			name: "Credit card with negative limit should fail",
			mutate: func(c *Card) {
				c.CardType = CardTypeCredit
				c.CreditLimit = &negative
			},
			wantErr: true,
			errMsg:  "credit limit must not be negative",
		},
		{
			name: "Credit limit finer than cents should fail",
			mutate: func(c *Card) {
				c.CardType = CardTypeCredit
				c.CreditLimit = &subCent
			},
			wantErr: true,
			errMsg:  "more than 2 decimal places",
		},
		{
			name:    "Prepaid card with credit limit should fail",
			mutate:  func(c *Card) { c.CardType = CardTypePrepaid; c.CreditLimit = &limit },
			wantErr: true,
			errMsg:  "only allowed on CREDIT cards",
		},
		{
			name:    "Unknown card type should fail",
			mutate:  func(c *Card) { c.CardType = "CHARGE" },
			wantErr: true,
			errMsg:  "unknown card type",
		},
		{
			name:    "Unknown status should fail",
			mutate:  func(c *Card) { c.Status = "SUSPENDED" },
			wantErr: true,
			errMsg:  "unknown card status",
		},
		{
			name:    "Missing customer should fail",
			mutate:  func(c *Card) { c.CustomerID = uuid.Nil },
			wantErr: true,
			errMsg:  "customer id is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := newTestCard(CardStatusActive)
			tt.mutate(card)

			err := card.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidField))
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCard_IsExpired(t *testing.T) {
	tests := []struct {
		name     string
		expiry   time.Time
		now      time.Time
		expected bool
	}{
		{"Expiry in the future", date(2024, time.June, 16), testNow, false},
		{"Expiry on the same day is still valid", date(2024, time.June, 15), time.Date(2024, 6, 15, 23, 59, 59, 0, time.UTC), false},
		{"Expiry the day before", date(2024, time.June, 14), testNow, true},
		{"Expiry compared by UTC calendar date", date(2024, time.June, 15), time.Date(2024, 6, 16, 0, 0, 1, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := newTestCard(CardStatusActive)
			card.ExpiryDate = tt.expiry
			assert.Equal(t, tt.expected, card.IsExpired(tt.now))
		})
	}
}

func TestCard_CanTransact(t *testing.T) {
	for _, status := range []CardStatus{CardStatusPending, CardStatusActive, CardStatusLocked, CardStatusClosed, CardStatusExpired} {
		t.Run(string(status), func(t *testing.T) {
			card := newTestCard(status)
			assert.Equal(t, status == CardStatusActive, card.CanTransact(testNow))
		})
	}

	t.Run("ACTIVE but past expiry", func(t *testing.T) {
		card := newTestCard(CardStatusActive)
		card.ExpiryDate = date(2024, time.May, 31)

		assert.False(t, card.CanTransact(testNow))
		assert.Equal(t, CardStatusExpired, card.EffectiveStatus(testNow))
		assert.Equal(t, CardStatusActive, card.Status, "reading must not change the stored status")
	})
}

func TestCard_TransitionStatus(t *testing.T) {
	tests := []struct {
		name    string
		from    CardStatus
		to      CardStatus
		wantErr bool
	}{
		{"PENDING to ACTIVE", CardStatusPending, CardStatusActive, false},
		{"ACTIVE to LOCKED", CardStatusActive, CardStatusLocked, false},
		{"LOCKED to ACTIVE", CardStatusLocked, CardStatusActive, false},
		{"ACTIVE to EXPIRED", CardStatusActive, CardStatusExpired, false},
		{"EXPIRED to ACTIVE", CardStatusExpired, CardStatusActive, false},
		{"LOCKED to CLOSED", CardStatusLocked, CardStatusClosed, false},
		{"ACTIVE to PENDING", CardStatusActive, CardStatusPending, true},
		{"ACTIVE to ACTIVE", CardStatusActive, CardStatusActive, true},
		{"CLOSED to ACTIVE", CardStatusClosed, CardStatusActive, true},
		{"CLOSED to CLOSED", CardStatusClosed, CardStatusClosed, true},
		{"CLOSED to PENDING", CardStatusClosed, CardStatusPending, true},
		{"CLOSED to LOCKED", CardStatusClosed, CardStatusLocked, true},
		{"CLOSED to EXPIRED", CardStatusClosed, CardStatusExpired, true},
		{"Unknown target", CardStatusActive, "FROZEN", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := newTestCard(tt.from)

			record, err := card.TransitionStatus(tt.to, "test", testNow)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidTransition))
				assert.Equal(t, tt.from, card.Status)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.to, card.Status)
			assert.Equal(t, testNow, card.UpdatedAt)
			assert.Equal(t, TransitionRecord{
				Kind:           EntityKindCard,
				EntityID:       card.ID.String(),
				PreviousStatus: string(tt.from),
				NewStatus:      string(tt.to),
				Reason:         "test",
				Timestamp:      testNow,
			}, record)
		})
	}
}

func TestCard_RecordTransaction(t *testing.T) {
	card := newTestCard(CardStatusActive)
	at := testNow.Add(-time.Minute)

	require.NoError(t, card.RecordTransaction(decimal.RequireFromString("12.34"), at, testNow))
	assert.True(t, decimal.RequireFromString("12.34").Equal(*card.LastTransactionAmount))
	assert.Equal(t, at, *card.LastTransactionDate)

	closed := newTestCard(CardStatusClosed)
	err := closed.RecordTransaction(decimal.NewFromInt(1), at, testNow)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Nil(t, closed.LastTransactionAmount)
}

func TestMaskCardNumber(t *testing.T) {
	tests := []struct {
		name     string
		number   string
		expected string
		wantErr  bool
	}{
		{"Plain 16 digits", "4111111111111234", "**** **** **** 1234", false},
		{"Spaces", "4111 1111 1111 5678", "**** **** **** 5678", false},
		{"Dashes", "4111-1111-1111-9012", "**** **** **** 9012", false},
		{"19 digits", "6011000990139424123", "**** **** **** 4123", false},
		{"Too short", "41111111111", "", true},
		{"Too long", "41111111111111111111", "", true},
		{"Letters", "4111x11111111234", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			masked, err := MaskCardNumber(tt.number)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidField))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, masked)
		})
	}
}

func TestCard_LastFour(t *testing.T) {
	card := newTestCard(CardStatusActive)
	assert.Equal(t, "1234", card.LastFour())
}
