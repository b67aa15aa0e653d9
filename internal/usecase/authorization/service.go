package authorization

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simaogato/cardguard-backend/internal/domain"
	"github.com/simaogato/cardguard-backend/internal/metrics"
	"github.com/simaogato/cardguard-backend/internal/usecase/lifecycle"
)

// AuthorizeInput represents the input for a transaction attempt
type AuthorizeInput struct {
	CardID uuid.UUID
	Draft  domain.TransactionDraft
}

// AuthorizationService runs transaction attempts against stored cards and policies
type AuthorizationService struct {
	CardRepo        domain.CardRepository
	PolicyRepo      domain.ControlPolicyRepository
	TransactionRepo domain.TransactionRepository
	Tx              domain.UnitOfWork
	Locker          domain.CardLocker
	Publisher       domain.EventPublisher
	Coordinator     *lifecycle.Coordinator
	Metrics         *metrics.Collector
	Logger          *zap.Logger
	Clock           func() time.Time
}

// NewAuthorizationService creates a new AuthorizationService instance
func NewAuthorizationService(
	cardRepo domain.CardRepository,
	policyRepo domain.ControlPolicyRepository,
	transactionRepo domain.TransactionRepository,
	tx domain.UnitOfWork,
	locker domain.CardLocker,
	publisher domain.EventPublisher,
	collector *metrics.Collector,
	logger *zap.Logger,
) *AuthorizationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthorizationService{
		CardRepo:        cardRepo,
		PolicyRepo:      policyRepo,
		TransactionRepo: transactionRepo,
		Tx:              tx,
		Locker:          locker,
		Publisher:       publisher,
		Coordinator:     lifecycle.NewCoordinator(),
		Metrics:         collector,
		Logger:          logger,
		Clock:           time.Now,
	}
}

// Authorize decides a transaction attempt and persists the result
// Logic:
//  1. Acquire the card lock so decisions on one card are serialized
//  2. Load card and its control policy
//  3. Run the lifecycle coordinator
//  4. Save the transaction, and the card when its cache changed, in one unit of work
//  5. Publish the transition records (best effort)
func (s *AuthorizationService) Authorize(ctx context.Context, input AuthorizeInput) (*lifecycle.Outcome, error) {
	started := time.Now()

	// 1. Serialize per card
	unlock, err := s.Locker.Lock(ctx, input.CardID)
	if err != nil {
		s.Metrics.LockFailed()
		s.Logger.Warn("card lock not acquired", zap.String("card_id", input.CardID.String()), zap.Error(err))
		return nil, err
	}
	defer unlock()

	// 2. Load state
	card, err := s.CardRepo.GetByID(ctx, input.CardID)
	if err != nil {
		return nil, err
	}

	policy, err := s.PolicyRepo.GetByCardID(ctx, input.CardID)
	if err != nil {
		return nil, err
	}

	// 3. Decide
	now := s.Clock()
	outcome, err := s.Coordinator.AttemptTransaction(card, policy, input.Draft, now)
	if err != nil {
		return nil, err
	}

	// 4. Persist
	err = s.Tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Transactions.Create(ctx, outcome.Transaction); err != nil {
			return fmt.Errorf("failed to save transaction: %w", err)
		}
		if outcome.CardUpdated {
			if err := repos.Cards.Update(ctx, card); err != nil {
				return fmt.Errorf("failed to save card: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 5. Publish
	if len(outcome.Transitions) > 0 && s.Publisher != nil {
		if err := s.Publisher.Publish(ctx, outcome.Transitions...); err != nil {
			s.Metrics.PublishFailed()
			s.Logger.Error("failed to publish transaction transitions",
				zap.String("transaction_id", string(outcome.Transaction.ID)),
				zap.Error(err))
		}
	}

	violations := make([]string, 0, len(outcome.Violations))
	for _, v := range outcome.Violations {
		violations = append(violations, string(v))
	}
	for _, r := range outcome.Transitions {
		s.Metrics.ObserveTransition(string(r.Kind), r.NewStatus)
	}
	s.Metrics.ObserveDecision(string(outcome.Decision), violations, time.Since(started))

	s.Logger.Info("transaction attempt decided",
		zap.String("card_id", card.ID.String()),
		zap.String("transaction_id", string(outcome.Transaction.ID)),
		zap.String("decision", string(outcome.Decision)),
		zap.Strings("violations", violations),
		zap.String("amount", outcome.Transaction.Amount().String()),
		zap.String("currency", outcome.Transaction.Currency()))

	return outcome, nil
}
