package seeder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/cardguard-backend/internal/domain"
)

// Fixed UUIDs for the demo cards so repeated seeding is a no-op
var (
	DemoDebitCardID  = uuid.MustParse("00000000-0000-0000-0000-00000000d001")
	DemoCreditCardID = uuid.MustParse("00000000-0000-0000-0000-00000000c001")
	DemoLockedCardID = uuid.MustParse("00000000-0000-0000-0000-00000000a001")
	DemoCustomerID   = uuid.MustParse("00000000-0000-0000-0000-0000000000c5")
)

// DemoCard defines a card to be seeded with its starting controls
type DemoCard struct {
	ID          uuid.UUID
	CardType    domain.CardType
	Status      domain.CardStatus
	LastFour    string
	CreditLimit *decimal.Decimal
	HomeCountry string
	Controls    map[string]any // applied on top of the default policy
}

// DemoSeeder populates a development environment with a few cards
type DemoSeeder struct {
	cards domain.CardRepository
	tx    domain.UnitOfWork
	clock func() time.Time
}

// NewDemoSeeder creates a new DemoSeeder instance
func NewDemoSeeder(cards domain.CardRepository, tx domain.UnitOfWork) *DemoSeeder {
	return &DemoSeeder{
		cards: cards,
		tx:    tx,
		clock: time.Now,
	}
}

// DemoCards returns the cards Seed creates
func DemoCards() []DemoCard {
	creditLimit := decimal.NewFromInt(5000)
	return []DemoCard{
		{
			ID:          DemoDebitCardID,
			CardType:    domain.CardTypeDebit,
			Status:      domain.CardStatusActive,
			LastFour:    "0001",
			HomeCountry: "US",
		},
		{
			ID:          DemoCreditCardID,
			CardType:    domain.CardTypeCredit,
			Status:      domain.CardStatusActive,
			LastFour:    "0002",
			CreditLimit: &creditLimit,
			HomeCountry: "US",
			Controls: map[string]any{
				domain.FieldDailyLimit:           "1000",
				domain.FieldPerTransactionLimit:  "500",
				domain.FieldInternationalEnabled: false,
			},
		},
		{
			ID:          DemoLockedCardID,
			CardType:    domain.CardTypePrepaid,
			Status:      domain.CardStatusLocked,
			LastFour:    "0003",
			HomeCountry: "GB",
		},
	}
}

// Seed ensures every demo card and its policy exist.
// Existing cards are left untouched.
func (s *DemoSeeder) Seed(ctx context.Context) (int, error) {
	now := s.clock()
	created := 0

	for _, demo := range DemoCards() {
		_, err := s.cards.GetByID(ctx, demo.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return created, err
		}

		card := &domain.Card{
			ID:           demo.ID,
			CustomerID:   DemoCustomerID,
			MaskedNumber: "**** **** **** " + demo.LastFour,
			CardType:     demo.CardType,
			Brand:        "DEMO",
			Status:       demo.Status,
			ExpiryDate:   time.Date(now.Year()+3, now.Month(), 1, 0, 0, 0, 0, time.UTC),
			CreditLimit:  demo.CreditLimit,
			IssueDate:    now,
			UpdatedAt:    now,
		}
		if err := card.Validate(); err != nil {
			return created, err
		}

		policy := domain.NewDefaultControlPolicy(card.ID, demo.HomeCountry, now)
		if len(demo.Controls) > 0 {
			if err := policy.Update(demo.Controls, now); err != nil {
				return created, err
			}
		}

		err = s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
			if err := repos.Cards.Create(ctx, card); err != nil {
				return err
			}
			return repos.Policies.Create(ctx, policy)
		})
		if err != nil {
			return created, err
		}
		created++
	}

	return created, nil
}
