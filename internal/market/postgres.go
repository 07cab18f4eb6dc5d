package market

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores listings and supported payment tokens in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// PutListing upserts the listing under its key.
func (r *PostgresRepository) PutListing(ctx context.Context, listing Listing) (bool, error) {
	row := r.db.QueryRow(ctx, `
        INSERT INTO market_listings
            (asset_contract_id, token_id, approval_id, lister_id, beneficiary_id, ft_token_id, price)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (asset_contract_id, token_id) DO UPDATE
        SET approval_id = EXCLUDED.approval_id,
            lister_id = EXCLUDED.lister_id,
            beneficiary_id = EXCLUDED.beneficiary_id,
            ft_token_id = EXCLUDED.ft_token_id,
            price = EXCLUDED.price
        RETURNING (xmax <> 0)`,
		listing.AssetContractID, listing.TokenID, listing.ApprovalID,
		listing.ListerID, listing.BeneficiaryID, listing.PaymentTokenID, listing.Price)
	var replaced bool
	if err := row.Scan(&replaced); err != nil {
		return false, err
	}
	return replaced, nil
}

// GetListing fetches a listing by key.
func (r *PostgresRepository) GetListing(ctx context.Context, key ListingKey) (Listing, bool, error) {
	row := r.db.QueryRow(ctx, `
        SELECT approval_id, lister_id, beneficiary_id, ft_token_id, price
        FROM market_listings
        WHERE asset_contract_id = $1 AND token_id = $2`,
		key.AssetContractID, key.TokenID)
	l := Listing{AssetContractID: key.AssetContractID, TokenID: key.TokenID}
	if err := row.Scan(&l.ApprovalID, &l.ListerID, &l.BeneficiaryID, &l.PaymentTokenID, &l.Price); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, false, nil
		}
		return Listing{}, false, err
	}
	return l, true, nil
}

// DeleteListing removes a listing by key.
func (r *PostgresRepository) DeleteListing(ctx context.Context, key ListingKey) error {
	_, err := r.db.Exec(ctx, `
        DELETE FROM market_listings WHERE asset_contract_id = $1 AND token_id = $2`,
		key.AssetContractID, key.TokenID)
	return err
}

// AddPaymentToken adds the token id to the supported set.
func (r *PostgresRepository) AddPaymentToken(ctx context.Context, paymentTokenID string) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO market_payment_tokens (ft_token_id) VALUES ($1)
        ON CONFLICT (ft_token_id) DO NOTHING`, paymentTokenID)
	return err
}

// SupportsPaymentToken reports membership in the supported set.
func (r *PostgresRepository) SupportsPaymentToken(ctx context.Context, paymentTokenID string) (bool, error) {
	var id string
	err := r.db.QueryRow(ctx, `
        SELECT ft_token_id FROM market_payment_tokens WHERE ft_token_id = $1`, paymentTokenID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
