package storagecredit

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists storage credits in PostgreSQL. Each hosting component
// gets its own namespace so the ledger's credits never mix with the market's.
type PostgresStore struct {
	db        *pgxpool.Pool
	namespace string
}

// NewPostgresStore builds a credit store scoped to the given component namespace.
func NewPostgresStore(db *pgxpool.Pool, namespace string) *PostgresStore {
	return &PostgresStore{db: db, namespace: namespace}
}

// Deposit increases the account's deposited credit, creating the row on first use.
func (s *PostgresStore) Deposit(ctx context.Context, accountID string, amount int64) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO storage_credits (namespace, account_id, deposited, used)
        VALUES ($1, $2, $3, 0)
        ON CONFLICT (namespace, account_id)
        DO UPDATE SET deposited = storage_credits.deposited + EXCLUDED.deposited`,
		s.namespace, accountID, amount)
	return err
}

// Reserve atomically increases usage when deposited credit covers it.
func (s *PostgresStore) Reserve(ctx context.Context, accountID string, amount int64) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE storage_credits
        SET used = used + $3
        WHERE namespace = $1 AND account_id = $2 AND used + $3 <= deposited`,
		s.namespace, accountID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientDeposit
	}
	return nil
}

// Release atomically decreases usage; failing the guard is a caller bug.
func (s *PostgresStore) Release(ctx context.Context, accountID string, amount int64) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE storage_credits
        SET used = used - $3
        WHERE namespace = $1 AND account_id = $2 AND used >= $3`,
		s.namespace, accountID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReleaseUnderflow
	}
	return nil
}

// CreditOf fetches the account's credit row; unknown accounts report zero.
func (s *PostgresStore) CreditOf(ctx context.Context, accountID string) (Credit, error) {
	row := s.db.QueryRow(ctx, `
        SELECT deposited, used FROM storage_credits
        WHERE namespace = $1 AND account_id = $2`,
		s.namespace, accountID)
	c := Credit{AccountID: accountID}
	if err := row.Scan(&c.Deposited, &c.Used); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, nil
		}
		return Credit{}, err
	}
	return c, nil
}
