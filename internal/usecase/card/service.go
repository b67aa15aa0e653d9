package card

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/simaogato/cardguard-backend/internal/domain"
	"github.com/simaogato/cardguard-backend/internal/metrics"
)

// IssueCardInput represents the input for issuing a card
type IssueCardInput struct {
	CustomerID  uuid.UUID
	CardNumber  string // Full PAN; masked before anything is stored
	CardType    domain.CardType
	Brand       string
	ExpiryDate  time.Time
	CreditLimit *decimal.Decimal // Required for CREDIT, rejected otherwise
	HomeCountry string
	Activate    bool // ACTIVE when true, PENDING otherwise
}

// CardService handles card issuance, status changes and controls
type CardService struct {
	CardRepo   domain.CardRepository
	PolicyRepo domain.ControlPolicyRepository
	Tx         domain.UnitOfWork
	Locker     domain.CardLocker
	Publisher  domain.EventPublisher
	Metrics    *metrics.Collector
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewCardService creates a new CardService instance
func NewCardService(
	cardRepo domain.CardRepository,
	policyRepo domain.ControlPolicyRepository,
	tx domain.UnitOfWork,
	locker domain.CardLocker,
	publisher domain.EventPublisher,
	collector *metrics.Collector,
	logger *zap.Logger,
) *CardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CardService{
		CardRepo:   cardRepo,
		PolicyRepo: policyRepo,
		Tx:         tx,
		Locker:     locker,
		Publisher:  publisher,
		Metrics:    collector,
		Logger:     logger,
		Clock:      time.Now,
	}
}

// IssueCard creates a card and its default-permissive control policy
func (s *CardService) IssueCard(ctx context.Context, input IssueCardInput) (*domain.Card, *domain.ControlPolicy, error) {
	masked, err := domain.MaskCardNumber(input.CardNumber)
	if err != nil {
		return nil, nil, err
	}

	now := s.Clock()
	status := domain.CardStatusPending
	if input.Activate {
		status = domain.CardStatusActive
	}

	y, m, d := input.ExpiryDate.Date()
	card := &domain.Card{
		ID:           uuid.New(),
		CustomerID:   input.CustomerID,
		MaskedNumber: masked,
		CardType:     input.CardType,
		Brand:        input.Brand,
		Status:       status,
		ExpiryDate:   time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		CreditLimit:  input.CreditLimit,
		IssueDate:    now,
		UpdatedAt:    now,
	}

	if err := card.Validate(); err != nil {
		return nil, nil, err
	}
	if card.IsExpired(now) {
		return nil, nil, fmt.Errorf("%w: expiry date is in the past", domain.ErrInvalidField)
	}

	policy := domain.NewDefaultControlPolicy(card.ID, input.HomeCountry, now)
	if err := policy.ValidateFields(); err != nil {
		return nil, nil, err
	}

	// The card never exists without its policy
	err = s.Tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Cards.Create(ctx, card); err != nil {
			return err
		}
		return repos.Policies.Create(ctx, policy)
	})
	if err != nil {
		return nil, nil, err
	}

	s.Logger.Info("card issued",
		zap.String("card_id", card.ID.String()),
		zap.String("customer_id", card.CustomerID.String()),
		zap.String("status", string(card.Status)))

	return card, policy, nil
}

// GetCard retrieves a card and its control policy
func (s *CardService) GetCard(ctx context.Context, cardID uuid.UUID) (*domain.Card, *domain.ControlPolicy, error) {
	card, err := s.CardRepo.GetByID(ctx, cardID)
	if err != nil {
		return nil, nil, err
	}

	policy, err := s.PolicyRepo.GetByCardID(ctx, cardID)
	if err != nil {
		return nil, nil, err
	}

	return card, policy, nil
}

// TransitionStatus changes a card's status. Closing a card revokes its policy.
func (s *CardService) TransitionStatus(ctx context.Context, cardID uuid.UUID, newStatus domain.CardStatus, reason string) (*domain.TransitionRecord, error) {
	unlock, err := s.Locker.Lock(ctx, cardID)
	if err != nil {
		s.Metrics.LockFailed()
		return nil, err
	}
	defer unlock()

	card, err := s.CardRepo.GetByID(ctx, cardID)
	if err != nil {
		return nil, err
	}

	now := s.Clock()
	record, err := card.TransitionStatus(newStatus, reason, now)
	if err != nil {
		return nil, err
	}

	err = s.Tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		// Closing cascades to the owned policy
		if newStatus == domain.CardStatusClosed {
			policy, err := repos.Policies.GetByCardID(ctx, cardID)
			if err != nil {
				return err
			}
			policy.Revoke(now)
			if err := repos.Policies.Update(ctx, policy); err != nil {
				return fmt.Errorf("failed to revoke control policy: %w", err)
			}
		}

		if err := repos.Cards.Update(ctx, card); err != nil {
			return fmt.Errorf("failed to save card: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.ObserveTransition(string(record.Kind), record.NewStatus)
	s.publish(ctx, record)

	s.Logger.Info("card status changed",
		zap.String("card_id", cardID.String()),
		zap.String("from", record.PreviousStatus),
		zap.String("to", record.NewStatus),
		zap.String("reason", reason))

	return &record, nil
}

// UpdateControls applies a partial update to the card's control policy.
// Unknown field names fail with domain.ErrInvalidField.
func (s *CardService) UpdateControls(ctx context.Context, cardID uuid.UUID, fields map[string]any) (*domain.ControlPolicy, error) {
	update, err := domain.ParseControlPolicyUpdate(fields)
	if err != nil {
		return nil, err
	}

	unlock, err := s.Locker.Lock(ctx, cardID)
	if err != nil {
		s.Metrics.LockFailed()
		return nil, err
	}
	defer unlock()

	card, err := s.CardRepo.GetByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: controls of card %s cannot change once %s", domain.ErrInvalidTransition, cardID, card.Status)
	}

	policy, err := s.PolicyRepo.GetByCardID(ctx, cardID)
	if err != nil {
		return nil, err
	}

	if err := policy.Apply(update, s.Clock()); err != nil {
		return nil, err
	}

	if err := s.PolicyRepo.Update(ctx, policy); err != nil {
		return nil, fmt.Errorf("failed to save control policy: %w", err)
	}

	s.Logger.Info("card controls updated",
		zap.String("card_id", cardID.String()),
		zap.Int("fields", len(fields)))

	return policy, nil
}

func (s *CardService) publish(ctx context.Context, records ...domain.TransitionRecord) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(ctx, records...); err != nil {
		s.Metrics.PublishFailed()
		s.Logger.Error("failed to publish card transitions", zap.Error(err))
	}
}
