package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists balance entries in PostgreSQL as double-entry
// postings: an account's balance is the sum of its posting legs.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed balance store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create adds a zero-balance entry for the account.
func (s *PostgresStore) Create(ctx context.Context, accountID string) error {
	tag, err := s.db.Exec(ctx, `
        INSERT INTO ft_accounts (id, account_id) VALUES ($1, $2)
        ON CONFLICT (account_id) DO NOTHING`, uuid.New(), accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyRegistered
	}
	return nil
}

// Exists reports whether the account has a balance entry.
func (s *PostgresStore) Exists(ctx context.Context, accountID string) (bool, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM ft_accounts WHERE account_id = $1`, accountID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Balance returns the summed postings for the account, zero when unknown.
func (s *PostgresStore) Balance(ctx context.Context, accountID string) (int64, error) {
	const query = `
        SELECT COALESCE(SUM(e.amount), 0)
        FROM ft_entries e
        INNER JOIN ft_accounts a ON a.id = e.account_id
        WHERE a.account_id = $1`
	var balance int64
	if err := s.db.QueryRow(ctx, query, accountID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

// Move records a balanced posting pair between two accounts.
func (s *PostgresStore) Move(ctx context.Context, fromID, toID string, amount int64, kind string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	fromAccountID, err := accountRowID(ctx, tx, fromID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSenderNotRegistered
		}
		return err
	}
	toAccountID, err := accountRowID(ctx, tx, toID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrReceiverNotRegistered
		}
		return err
	}

	fromBalance, err := balanceForAccount(ctx, tx, fromAccountID)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return ErrInsufficientBalance
	}

	txID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO ft_transactions (id, kind) VALUES ($1, $2)`, txID, kind); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO ft_entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`,
		uuid.New(), txID, fromAccountID, -amount); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO ft_entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`,
		uuid.New(), txID, toAccountID, amount); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Mint records a single-leg supply issuance posting. It is the one unbalanced
// posting kind; TotalBalance over user accounts therefore equals issued supply.
func (s *PostgresStore) Mint(ctx context.Context, accountID string, amount int64) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	rowID, err := accountRowID(ctx, tx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrReceiverNotRegistered
		}
		return err
	}

	txID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO ft_transactions (id, kind) VALUES ($1, 'mint')`, txID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO ft_entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`,
		uuid.New(), txID, rowID, amount); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// TotalBalance sums every posting leg across all accounts.
func (s *PostgresStore) TotalBalance(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM ft_entries`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func accountRowID(ctx context.Context, tx pgx.Tx, accountID string) (uuid.UUID, error) {
	const query = `SELECT id FROM ft_accounts WHERE account_id = $1 FOR UPDATE`
	var id uuid.UUID
	if err := tx.QueryRow(ctx, query, accountID).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func balanceForAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM ft_entries WHERE account_id = $1`
	var balance int64
	if err := tx.QueryRow(ctx, query, accountID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}
