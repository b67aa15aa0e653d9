package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/simaogato/cardguard-backend/internal/domain"
)

const transactionColumns = `
	id, card_id, customer_id, transaction_date, status, type, channel,
	amount, currency, merchant_name, merchant_category, merchant_category_code, merchant_id,
	city, state, country, latitude, longitude,
	fraud_score, dispute_id, description, category, decline_reasons, updated_at
`

// transactionRepository implements domain.TransactionRepository
type transactionRepository struct {
	db querier
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *DB) domain.TransactionRepository {
	return &transactionRepository{db: db}
}

// GetByID retrieves a transaction by its ID
func (r *transactionRepository) GetByID(ctx context.Context, id domain.TransactionID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, string(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction by ID: %w", err)
	}

	return tx, nil
}

// Create creates a new transaction
func (r *transactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `, is_disputed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
		        $19, $20, $21, $22, $23, $24, $25)
	`

	s := tx.Settlement()
	_, err := r.db.ExecContext(ctx, query,
		string(tx.ID),
		tx.CardID,
		tx.CustomerID,
		tx.Date,
		string(tx.Status),
		string(tx.Type),
		string(tx.Channel),
		s.Amount.String(),
		s.Currency,
		s.Merchant.Name,
		s.Merchant.Category,
		s.Merchant.CategoryCode,
		nullString(s.Merchant.ID),
		s.Location.City,
		s.Location.State,
		s.Location.Country,
		s.Location.Latitude,
		s.Location.Longitude,
		tx.FraudScore(),
		nullString(tx.DisputeID()),
		tx.Description,
		tx.Category,
		pq.Array(violationStrings(tx.DeclineReasons)),
		tx.UpdatedAt,
		tx.IsDisputed(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// Update persists the fields that may change after creation:
// status, dispute linkage and fraud score. Settlement columns are never rewritten.
func (r *transactionRepository) Update(ctx context.Context, tx *domain.Transaction) error {
	query := `
		UPDATE transactions
		SET status = $2, is_disputed = $3, dispute_id = $4, fraud_score = $5, updated_at = $6
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		string(tx.ID),
		string(tx.Status),
		tx.IsDisputed(),
		nullString(tx.DisputeID()),
		tx.FraudScore(),
		tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	return expectOneRow(res, "transaction", string(tx.ID))
}

// ListByCard retrieves a card's transactions, newest first
func (r *transactionRepository) ListByCard(ctx context.Context, cardID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE card_id = $1
		ORDER BY transaction_date DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, cardID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]*domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txs, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var header domain.Transaction
	var id, amount string
	var s domain.Settlement
	var merchantID, disputeID sql.NullString
	var lat, lng sql.NullFloat64
	var fraudScore float64
	var reasons []string

	err := row.Scan(
		&id,
		&header.CardID,
		&header.CustomerID,
		&header.Date,
		&header.Status,
		&header.Type,
		&header.Channel,
		&amount,
		&s.Currency,
		&s.Merchant.Name,
		&s.Merchant.Category,
		&s.Merchant.CategoryCode,
		&merchantID,
		&s.Location.City,
		&s.Location.State,
		&s.Location.Country,
		&lat,
		&lng,
		&fraudScore,
		&disputeID,
		&header.Description,
		&header.Category,
		pq.Array(&reasons),
		&header.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	header.ID = domain.TransactionID(id)

	s.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	s.Merchant.ID = merchantID.String
	if lat.Valid {
		s.Location.Latitude = &lat.Float64
	}
	if lng.Valid {
		s.Location.Longitude = &lng.Float64
	}

	header.DeclineReasons = make([]domain.ViolationReason, 0, len(reasons))
	for _, reason := range reasons {
		header.DeclineReasons = append(header.DeclineReasons, domain.ViolationReason(reason))
	}

	var dispute *string
	if disputeID.Valid {
		dispute = &disputeID.String
	}

	return domain.RestoreTransaction(header, s, fraudScore, dispute), nil
}

func violationStrings(reasons []domain.ViolationReason) []string {
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, string(r))
	}
	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
