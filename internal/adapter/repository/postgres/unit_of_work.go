package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/simaogato/cardguard-backend/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// unitOfWork implements domain.UnitOfWork on database transactions
type unitOfWork struct {
	db *DB
}

// NewUnitOfWork creates a unit of work backed by db
func NewUnitOfWork(db *DB) domain.UnitOfWork {
	return &unitOfWork{db: db}
}

// WithinTx runs fn against repositories bound to one database transaction.
// The transaction commits only when fn returns nil.
func (u *unitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	dbTx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	repos := domain.Repositories{
		Cards:        &cardRepository{db: dbTx},
		Policies:     &controlPolicyRepository{db: dbTx},
		Transactions: &transactionRepository{db: dbTx},
	}
	if err := fn(ctx, repos); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
