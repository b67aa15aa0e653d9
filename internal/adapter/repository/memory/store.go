package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/simaogato/cardguard-backend/internal/domain"
)

// Store is an in-memory backing for the card, policy and transaction
// repositories. It is used by tests and by the server when no database is configured.
// Values are copied on the way in and out so callers never share state with the store.
type Store struct {
	mu           sync.RWMutex
	cards        map[uuid.UUID]domain.Card
	policies     map[uuid.UUID]domain.ControlPolicy // keyed by card id
	transactions map[domain.TransactionID]domain.Transaction
}

var _ domain.UnitOfWork = (*Store)(nil)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		cards:        make(map[uuid.UUID]domain.Card),
		policies:     make(map[uuid.UUID]domain.ControlPolicy),
		transactions: make(map[domain.TransactionID]domain.Transaction),
	}
}

// Cards returns the store's domain.CardRepository
func (s *Store) Cards() domain.CardRepository { return cardRepository{s: s} }

// Policies returns the store's domain.ControlPolicyRepository
func (s *Store) Policies() domain.ControlPolicyRepository { return policyRepository{s: s} }

// Transactions returns the store's domain.TransactionRepository
func (s *Store) Transactions() domain.TransactionRepository { return transactionRepository{s: s} }

// WithinTx runs fn while holding the store's write lock for its whole duration.
// When fn fails the maps are restored to their state before the call.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cards := maps.Clone(s.cards)
	policies := maps.Clone(s.policies)
	transactions := maps.Clone(s.transactions)

	repos := domain.Repositories{
		Cards:        cardRepository{s: s, held: true},
		Policies:     policyRepository{s: s, held: true},
		Transactions: transactionRepository{s: s, held: true},
	}
	if err := fn(ctx, repos); err != nil {
		s.cards = cards
		s.policies = policies
		s.transactions = transactions
		return err
	}
	return nil
}

// read and write take the lock unless the caller runs inside WithinTx
func (s *Store) read(held bool) func() {
	if held {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) write(held bool) func() {
	if held {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type cardRepository struct {
	s    *Store
	held bool
}

func (r cardRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Card, error) {
	defer r.s.read(r.held)()

	card, ok := r.s.cards[id]
	if !ok {
		return nil, fmt.Errorf("card %s %w", id, domain.ErrNotFound)
	}
	return &card, nil
}

func (r cardRepository) Create(_ context.Context, card *domain.Card) error {
	defer r.s.write(r.held)()

	if _, exists := r.s.cards[card.ID]; exists {
		return fmt.Errorf("card %s already exists", card.ID)
	}
	r.s.cards[card.ID] = *card
	return nil
}

func (r cardRepository) Update(_ context.Context, card *domain.Card) error {
	defer r.s.write(r.held)()

	if _, exists := r.s.cards[card.ID]; !exists {
		return fmt.Errorf("card %s %w", card.ID, domain.ErrNotFound)
	}
	r.s.cards[card.ID] = *card
	return nil
}

type policyRepository struct {
	s    *Store
	held bool
}

func (r policyRepository) GetByCardID(_ context.Context, cardID uuid.UUID) (*domain.ControlPolicy, error) {
	defer r.s.read(r.held)()

	policy, ok := r.s.policies[cardID]
	if !ok {
		return nil, fmt.Errorf("control policy for card %s %w", cardID, domain.ErrNotFound)
	}
	policy.AllowedCountries = slices.Clone(policy.AllowedCountries)
	return &policy, nil
}

func (r policyRepository) Create(_ context.Context, policy *domain.ControlPolicy) error {
	defer r.s.write(r.held)()

	if _, exists := r.s.cards[policy.CardID]; !exists {
		return fmt.Errorf("card %s %w", policy.CardID, domain.ErrNotFound)
	}
	if _, exists := r.s.policies[policy.CardID]; exists {
		return fmt.Errorf("card %s already has a control policy", policy.CardID)
	}

	stored := *policy
	stored.AllowedCountries = slices.Clone(policy.AllowedCountries)
	r.s.policies[policy.CardID] = stored
	return nil
}

func (r policyRepository) Update(_ context.Context, policy *domain.ControlPolicy) error {
	defer r.s.write(r.held)()

	current, exists := r.s.policies[policy.CardID]
	if !exists || current.ID != policy.ID {
		return fmt.Errorf("control policy %s %w", policy.ID, domain.ErrNotFound)
	}

	stored := *policy
	stored.AllowedCountries = slices.Clone(policy.AllowedCountries)
	r.s.policies[policy.CardID] = stored
	return nil
}

type transactionRepository struct {
	s    *Store
	held bool
}

func (r transactionRepository) GetByID(_ context.Context, id domain.TransactionID) (*domain.Transaction, error) {
	defer r.s.read(r.held)()

	tx, ok := r.s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s %w", id, domain.ErrNotFound)
	}
	return cloneTransaction(tx), nil
}

func (r transactionRepository) Create(_ context.Context, tx *domain.Transaction) error {
	defer r.s.write(r.held)()

	if _, exists := r.s.transactions[tx.ID]; exists {
		return fmt.Errorf("transaction %s already exists", tx.ID)
	}
	r.s.transactions[tx.ID] = *cloneTransaction(*tx)
	return nil
}

// Update stores the mutable fields only; settlement stays as created
func (r transactionRepository) Update(_ context.Context, tx *domain.Transaction) error {
	defer r.s.write(r.held)()

	current, exists := r.s.transactions[tx.ID]
	if !exists {
		return fmt.Errorf("transaction %s %w", tx.ID, domain.ErrNotFound)
	}

	var disputeID *string
	if tx.IsDisputed() {
		id := tx.DisputeID()
		disputeID = &id
	}

	header := current
	header.Status = tx.Status
	header.UpdatedAt = tx.UpdatedAt
	r.s.transactions[tx.ID] = *domain.RestoreTransaction(header, current.Settlement(), tx.FraudScore(), disputeID)
	return nil
}

func (r transactionRepository) ListByCard(_ context.Context, cardID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	defer r.s.read(r.held)()

	matched := make([]*domain.Transaction, 0)
	for _, tx := range r.s.transactions {
		if tx.CardID == cardID {
			matched = append(matched, cloneTransaction(tx))
		}
	}

	// Newest first, same order as the SQL repository
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].ID > matched[j].ID
	})

	if offset < 0 || offset >= len(matched) {
		return []*domain.Transaction{}, nil
	}
	remaining := len(matched) - offset
	if limit <= 0 || limit > remaining {
		limit = remaining
	}
	return matched[offset : offset+limit], nil
}

func cloneTransaction(tx domain.Transaction) *domain.Transaction {
	c := tx
	c.DeclineReasons = slices.Clone(tx.DeclineReasons)
	return &c
}
