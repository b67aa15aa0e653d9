package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/cardguard-backend/internal/domain"
)

// cardRepository implements domain.CardRepository
type cardRepository struct {
	db querier
}

// NewCardRepository creates a new card repository
func NewCardRepository(db *DB) domain.CardRepository {
	return &cardRepository{db: db}
}

// GetByID retrieves a card by its ID
func (r *cardRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	query := `
		SELECT id, customer_id, masked_number, card_type, brand, status, expiry_date,
		       credit_limit, issue_date, last_transaction_amount, last_transaction_date, updated_at
		FROM cards
		WHERE id = $1
	`

	var card domain.Card
	var creditLimit, lastAmount sql.NullString
	var lastDate sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&card.ID,
		&card.CustomerID,
		&card.MaskedNumber,
		&card.CardType,
		&card.Brand,
		&card.Status,
		&card.ExpiryDate,
		&creditLimit,
		&card.IssueDate,
		&lastAmount,
		&lastDate,
		&card.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("card %s %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get card by ID: %w", err)
	}

	if card.CreditLimit, err = parseNullDecimal(creditLimit); err != nil {
		return nil, fmt.Errorf("failed to parse credit_limit: %w", err)
	}
	if card.LastTransactionAmount, err = parseNullDecimal(lastAmount); err != nil {
		return nil, fmt.Errorf("failed to parse last_transaction_amount: %w", err)
	}
	if lastDate.Valid {
		card.LastTransactionDate = &lastDate.Time
	}

	return &card, nil
}

// Create creates a new card
func (r *cardRepository) Create(ctx context.Context, card *domain.Card) error {
	query := `
		INSERT INTO cards (id, customer_id, masked_number, card_type, brand, status, expiry_date,
		                   credit_limit, issue_date, last_transaction_amount, last_transaction_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		card.ID,
		card.CustomerID,
		card.MaskedNumber,
		string(card.CardType),
		card.Brand,
		string(card.Status),
		card.ExpiryDate,
		decimalArg(card.CreditLimit),
		card.IssueDate,
		decimalArg(card.LastTransactionAmount),
		card.LastTransactionDate,
		card.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}

	return nil
}

// Update persists status and the last-transaction cache
func (r *cardRepository) Update(ctx context.Context, card *domain.Card) error {
	query := `
		UPDATE cards
		SET status = $2, last_transaction_amount = $3, last_transaction_date = $4, updated_at = $5
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		card.ID,
		string(card.Status),
		decimalArg(card.LastTransactionAmount),
		card.LastTransactionDate,
		card.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}

	return expectOneRow(res, "card", card.ID.String())
}

// parseNullDecimal parses a nullable DECIMAL column
func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// decimalArg renders a nullable decimal as a query argument
func decimalArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func expectOneRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s %w", entity, id, domain.ErrNotFound)
	}
	return nil
}
