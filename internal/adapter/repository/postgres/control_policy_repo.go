package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/simaogato/cardguard-backend/internal/domain"
)

// controlPolicyRepository implements domain.ControlPolicyRepository
type controlPolicyRepository struct {
	db querier
}

// NewControlPolicyRepository creates a new control policy repository
func NewControlPolicyRepository(db *DB) domain.ControlPolicyRepository {
	return &controlPolicyRepository{db: db}
}

// GetByCardID retrieves the policy owned by a card
func (r *controlPolicyRepository) GetByCardID(ctx context.Context, cardID uuid.UUID) (*domain.ControlPolicy, error) {
	query := `
		SELECT id, card_id, home_country, daily_limit, per_transaction_limit,
		       contactless_enabled, international_enabled, online_enabled, atm_enabled,
		       allowed_countries, effective_date, expiry_date, updated_at
		FROM control_policies
		WHERE card_id = $1
	`

	var policy domain.ControlPolicy
	var dailyLimit, perTxLimit sql.NullString
	var expiry sql.NullTime

	err := r.db.QueryRowContext(ctx, query, cardID).Scan(
		&policy.ID,
		&policy.CardID,
		&policy.HomeCountry,
		&dailyLimit,
		&perTxLimit,
		&policy.ContactlessEnabled,
		&policy.InternationalEnabled,
		&policy.OnlineEnabled,
		&policy.ATMEnabled,
		pq.Array(&policy.AllowedCountries),
		&policy.EffectiveDate,
		&expiry,
		&policy.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("control policy for card %s %w", cardID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get control policy: %w", err)
	}

	if policy.DailyLimit, err = parseNullDecimal(dailyLimit); err != nil {
		return nil, fmt.Errorf("failed to parse daily_limit: %w", err)
	}
	if policy.PerTransactionLimit, err = parseNullDecimal(perTxLimit); err != nil {
		return nil, fmt.Errorf("failed to parse per_transaction_limit: %w", err)
	}
	if expiry.Valid {
		policy.ExpiryDate = &expiry.Time
	}

	return &policy, nil
}

// Create creates a new policy
func (r *controlPolicyRepository) Create(ctx context.Context, policy *domain.ControlPolicy) error {
	query := `
		INSERT INTO control_policies (id, card_id, home_country, daily_limit, per_transaction_limit,
		                              contactless_enabled, international_enabled, online_enabled, atm_enabled,
		                              allowed_countries, effective_date, expiry_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		policy.ID,
		policy.CardID,
		policy.HomeCountry,
		decimalArg(policy.DailyLimit),
		decimalArg(policy.PerTransactionLimit),
		policy.ContactlessEnabled,
		policy.InternationalEnabled,
		policy.OnlineEnabled,
		policy.ATMEnabled,
		pq.Array(policy.AllowedCountries),
		policy.EffectiveDate,
		policy.ExpiryDate,
		policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create control policy: %w", err)
	}

	return nil
}

// Update overwrites the stored policy
func (r *controlPolicyRepository) Update(ctx context.Context, policy *domain.ControlPolicy) error {
	query := `
		UPDATE control_policies
		SET daily_limit = $2, per_transaction_limit = $3,
		    contactless_enabled = $4, international_enabled = $5, online_enabled = $6, atm_enabled = $7,
		    allowed_countries = $8, effective_date = $9, expiry_date = $10, updated_at = $11
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		policy.ID,
		decimalArg(policy.DailyLimit),
		decimalArg(policy.PerTransactionLimit),
		policy.ContactlessEnabled,
		policy.InternationalEnabled,
		policy.OnlineEnabled,
		policy.ATMEnabled,
		pq.Array(policy.AllowedCountries),
		policy.EffectiveDate,
		policy.ExpiryDate,
		policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update control policy: %w", err)
	}

	return expectOneRow(res, "control policy", policy.ID.String())
}
