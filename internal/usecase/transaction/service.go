package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simaogato/cardguard-backend/internal/domain"
	"github.com/simaogato/cardguard-backend/internal/metrics"
)

// View is a transaction with its read-time derived attributes.
// Derived values are computed on every read and never stored.
type View struct {
	Transaction   *domain.Transaction
	RiskTier      domain.RiskTier
	IsRecent      bool
	CanBeDisputed bool
}

// TransactionService handles post-authorization operations on transactions
type TransactionService struct {
	TransactionRepo domain.TransactionRepository
	Locker          domain.CardLocker
	Publisher       domain.EventPublisher
	Metrics         *metrics.Collector
	Logger          *zap.Logger
	Clock           func() time.Time
	NewDisputeID    func() string
}

// NewTransactionService creates a new TransactionService instance
func NewTransactionService(
	transactionRepo domain.TransactionRepository,
	locker domain.CardLocker,
	publisher domain.EventPublisher,
	collector *metrics.Collector,
	logger *zap.Logger,
) *TransactionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionService{
		TransactionRepo: transactionRepo,
		Locker:          locker,
		Publisher:       publisher,
		Metrics:         collector,
		Logger:          logger,
		Clock:           time.Now,
		NewDisputeID:    domain.NewDisputeID,
	}
}

// Get retrieves a transaction with its derived attributes
func (s *TransactionService) Get(ctx context.Context, id domain.TransactionID) (*View, error) {
	tx, err := s.TransactionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(tx, s.Clock()), nil
}

// MaxPageSize bounds how many transactions one ListByCard call returns
const MaxPageSize = 500

// ListByCard retrieves a page of a card's transactions, newest first
func (s *TransactionService) ListByCard(ctx context.Context, cardID uuid.UUID, limit, offset int) ([]*View, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidField)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must be non-negative", domain.ErrInvalidField)
	}
	limit = min(limit, MaxPageSize)

	txs, err := s.TransactionRepo.ListByCard(ctx, cardID, limit, offset)
	if err != nil {
		return nil, err
	}

	now := s.Clock()
	views := make([]*View, 0, len(txs))
	for _, tx := range txs {
		views = append(views, s.view(tx, now))
	}
	return views, nil
}

// OpenDispute links an eligible transaction to a new dispute
func (s *TransactionService) OpenDispute(ctx context.Context, id domain.TransactionID) (*domain.Transaction, error) {
	var disputed *domain.Transaction

	err := s.withTransaction(ctx, id, func(tx *domain.Transaction, now time.Time) error {
		if tx.IsDisputed() {
			return fmt.Errorf("%w: transaction %s", domain.ErrAlreadyDisputed, tx.ID)
		}
		if !tx.CanBeDisputed(now) {
			return fmt.Errorf("%w: transaction %s is %s and dated %s", domain.ErrNotDisputable, tx.ID, tx.Status, tx.Date.Format(time.DateOnly))
		}
		if err := tx.MarkDisputed(s.NewDisputeID(), now); err != nil {
			return err
		}
		disputed = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("dispute opened",
		zap.String("transaction_id", string(disputed.ID)),
		zap.String("dispute_id", disputed.DisputeID()))

	return disputed, nil
}

// Reverse moves an APPROVED transaction to REVERSED
func (s *TransactionService) Reverse(ctx context.Context, id domain.TransactionID, reason string) (*domain.TransitionRecord, error) {
	var record domain.TransitionRecord

	err := s.withTransaction(ctx, id, func(tx *domain.Transaction, now time.Time) error {
		var err error
		record, err = tx.TransitionStatus(domain.TransactionStatusReversed, reason, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.ObserveTransition(string(record.Kind), record.NewStatus)
	if s.Publisher != nil {
		if err := s.Publisher.Publish(ctx, record); err != nil {
			s.Metrics.PublishFailed()
			s.Logger.Error("failed to publish reversal", zap.String("transaction_id", string(id)), zap.Error(err))
		}
	}

	s.Logger.Info("transaction reversed", zap.String("transaction_id", string(id)), zap.String("reason", reason))

	return &record, nil
}

// UpdateFraudScore replaces the externally supplied fraud score
func (s *TransactionService) UpdateFraudScore(ctx context.Context, id domain.TransactionID, score float64) (*View, error) {
	var view *View

	err := s.withTransaction(ctx, id, func(tx *domain.Transaction, now time.Time) error {
		if err := tx.SetFraudScore(score, now); err != nil {
			return err
		}
		view = s.view(tx, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return view, nil
}

// withTransaction loads the transaction under its card's lock, applies fn and saves the result
func (s *TransactionService) withTransaction(ctx context.Context, id domain.TransactionID, fn func(tx *domain.Transaction, now time.Time) error) error {
	// The card id is only known after a first read
	tx, err := s.TransactionRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	unlock, err := s.Locker.Lock(ctx, tx.CardID)
	if err != nil {
		s.Metrics.LockFailed()
		return err
	}
	defer unlock()

	// Re-read under the lock
	tx, err = s.TransactionRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := fn(tx, s.Clock()); err != nil {
		return err
	}

	if err := s.TransactionRepo.Update(ctx, tx); err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	return nil
}

func (s *TransactionService) view(tx *domain.Transaction, now time.Time) *View {
	return &View{
		Transaction:   tx,
		RiskTier:      tx.FraudRiskTier(),
		IsRecent:      tx.IsRecent(now),
		CanBeDisputed: tx.CanBeDisputed(now),
	}
}
