package registry

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores tokens and approvals in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateToken inserts a token record.
func (r *PostgresRepository) CreateToken(ctx context.Context, token Token) error {
	tag, err := r.db.Exec(ctx, `
        INSERT INTO nft_tokens (token_id, owner_id, media, description)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (token_id) DO NOTHING`,
		token.ID, token.OwnerID, token.Metadata.Media, token.Metadata.Description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateToken
	}
	return nil
}

// Token fetches a token by id.
func (r *PostgresRepository) Token(ctx context.Context, tokenID string) (Token, error) {
	row := r.db.QueryRow(ctx, `
        SELECT token_id, owner_id, media, description
        FROM nft_tokens WHERE token_id = $1`, tokenID)
	var t Token
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Metadata.Media, &t.Metadata.Description); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, ErrTokenNotFound
		}
		return Token{}, err
	}
	return t, nil
}

// SetOwner updates the token's owner.
func (r *PostgresRepository) SetOwner(ctx context.Context, tokenID, ownerID string) error {
	tag, err := r.db.Exec(ctx, `UPDATE nft_tokens SET owner_id = $2 WHERE token_id = $1`, tokenID, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// PutApproval upserts the approval for (token, account).
func (r *PostgresRepository) PutApproval(ctx context.Context, approval Approval) (bool, error) {
	var beneficiary, paymentTokenID *string
	var price *int64
	if approval.Terms != nil {
		beneficiary = &approval.Terms.BeneficiaryID
		paymentTokenID = &approval.Terms.PaymentTokenID
		price = &approval.Terms.Price
	}
	row := r.db.QueryRow(ctx, `
        INSERT INTO nft_approvals (token_id, account_id, approval_id, beneficiary, ft_token_id, price)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (token_id, account_id) DO UPDATE
        SET approval_id = EXCLUDED.approval_id,
            beneficiary = EXCLUDED.beneficiary,
            ft_token_id = EXCLUDED.ft_token_id,
            price = EXCLUDED.price
        RETURNING (xmax <> 0)`,
		approval.TokenID, approval.AccountID, approval.ApprovalID, beneficiary, paymentTokenID, price)
	var replaced bool
	if err := row.Scan(&replaced); err != nil {
		return false, err
	}
	return replaced, nil
}

// ApprovalFor fetches the approval granted on the token to the account.
func (r *PostgresRepository) ApprovalFor(ctx context.Context, tokenID, accountID string) (Approval, bool, error) {
	row := r.db.QueryRow(ctx, `
        SELECT approval_id, beneficiary, ft_token_id, price
        FROM nft_approvals WHERE token_id = $1 AND account_id = $2`, tokenID, accountID)
	a := Approval{TokenID: tokenID, AccountID: accountID}
	var beneficiary, paymentTokenID *string
	var price *int64
	if err := row.Scan(&a.ApprovalID, &beneficiary, &paymentTokenID, &price); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Approval{}, false, nil
		}
		return Approval{}, false, err
	}
	if beneficiary != nil && paymentTokenID != nil && price != nil {
		a.Terms = &SaleTerms{BeneficiaryID: *beneficiary, PaymentTokenID: *paymentTokenID, Price: *price}
	}
	return a, true, nil
}

// ClearApprovals removes and returns every approval on the token.
func (r *PostgresRepository) ClearApprovals(ctx context.Context, tokenID string) ([]Approval, error) {
	rows, err := r.db.Query(ctx, `
        DELETE FROM nft_approvals WHERE token_id = $1
        RETURNING account_id, approval_id, beneficiary, ft_token_id, price`, tokenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var removed []Approval
	for rows.Next() {
		a := Approval{TokenID: tokenID}
		var beneficiary, paymentTokenID *string
		var price *int64
		if err := rows.Scan(&a.AccountID, &a.ApprovalID, &beneficiary, &paymentTokenID, &price); err != nil {
			return nil, err
		}
		if beneficiary != nil && paymentTokenID != nil && price != nil {
			a.Terms = &SaleTerms{BeneficiaryID: *beneficiary, PaymentTokenID: *paymentTokenID, Price: *price}
		}
		removed = append(removed, a)
	}
	return removed, rows.Err()
}

// NextApprovalID issues the next value of the registry-wide approval sequence.
func (r *PostgresRepository) NextApprovalID(ctx context.Context) (uint64, error) {
	var id uint64
	if err := r.db.QueryRow(ctx, `SELECT nextval('nft_approval_id_seq')`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
