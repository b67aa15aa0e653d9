package domain

import (
	"context"

	"github.com/google/uuid"
)

// CardRepository defines the interface for card persistence operations
type CardRepository interface {
	// GetByID retrieves a card by its ID; wraps ErrNotFound when absent
	GetByID(ctx context.Context, id uuid.UUID) (*Card, error)

	// Create creates a new card
	Create(ctx context.Context, card *Card) error

	// Update persists the mutable fields of a card (status, last-transaction cache)
	Update(ctx context.Context, card *Card) error
}

// ControlPolicyRepository defines the interface for control policy persistence operations
type ControlPolicyRepository interface {
	// GetByCardID retrieves the policy owned by a card; wraps ErrNotFound when absent
	GetByCardID(ctx context.Context, cardID uuid.UUID) (*ControlPolicy, error)

	// Create creates a new policy
	Create(ctx context.Context, policy *ControlPolicy) error

	// Update overwrites the stored policy in place
	Update(ctx context.Context, policy *ControlPolicy) error
}

// TransactionRepository defines the interface for transaction persistence operations
type TransactionRepository interface {
	// GetByID retrieves a transaction by its ID; wraps ErrNotFound when absent
	GetByID(ctx context.Context, id TransactionID) (*Transaction, error)

	// Create creates a new transaction
	Create(ctx context.Context, tx *Transaction) error

	// Update persists status, dispute linkage and fraud score
	Update(ctx context.Context, tx *Transaction) error

	// ListByCard retrieves a card's transactions, newest first
	ListByCard(ctx context.Context, cardID uuid.UUID, limit, offset int) ([]*Transaction, error)
}

// Repositories groups the repositories handed to a unit of work
type Repositories struct {
	Cards        CardRepository
	Policies     ControlPolicyRepository
	Transactions TransactionRepository
}

// UnitOfWork runs writes that span repositories atomically.
// Nothing written through repos is kept when fn returns an error.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// CardLocker serializes mutating operations per card
type CardLocker interface {
	// Lock blocks until the card's lock is held or ctx ends.
	// The returned function releases the lock.
	Lock(ctx context.Context, cardID uuid.UUID) (unlock func(), err error)
}

// EventPublisher delivers transition records to downstream consumers
type EventPublisher interface {
	Publish(ctx context.Context, records ...TransitionRecord) error
}
