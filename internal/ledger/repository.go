package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/famvault/famvault/internal/domain"
)

// Adjustment is a signed balance delta against one account.
type Adjustment struct {
	AccountID string
	Delta     int64
}

// Repository persists accounts. Balance adjustments are atomic: AdjustPair
// applies both deltas or neither, and every adjustment enforces the
// account's minimum-balance floor at commit time.
type Repository interface {
	Create(ctx context.Context, account Account) error
	Get(ctx context.Context, id string) (Account, error)
	ListByFamily(ctx context.Context, familyID string) ([]Account, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Account, error)
	// UpdateStatus moves the lifecycle status only if the account is still
	// in the expected source status, otherwise ConcurrentModification.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
	// Adjust applies a single signed delta and returns the new balance.
	Adjust(ctx context.Context, adj Adjustment) (int64, error)
	// AdjustPair applies two deltas as one atomic unit.
	AdjustPair(ctx context.Context, debit, credit Adjustment) error
}

// PostgresRepository stores accounts in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed account repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, family_id, owner_id, name, kind, balance, min_balance, status, created_at, updated_at`

// Create inserts an account record.
func (r *PostgresRepository) Create(ctx context.Context, account Account) error {
	id, err := uuid.Parse(account.ID)
	if err != nil {
		return domain.Errf(domain.ErrValidation, "ACCOUNT", "invalid account id %q", account.ID)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO accounts (`+accountColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, account.FamilyID, account.OwnerID, account.Name, string(account.Kind),
		account.Balance, account.MinBalance, string(account.Status),
		account.CreatedAt.UTC(), account.UpdatedAt.UTC())
	if err != nil {
		return domain.Persistence("ACCOUNT", err)
	}
	return nil
}

// Get fetches an account by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, domain.Errf(domain.ErrNotFound, "ACCOUNT", "account %s not found", id)
		}
		return Account{}, domain.Persistence("ACCOUNT", err)
	}
	return account, nil
}

// ListByFamily returns every account belonging to the family.
func (r *PostgresRepository) ListByFamily(ctx context.Context, familyID string) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts
        WHERE family_id = $1 ORDER BY created_at`, familyID)
	if err != nil {
		return nil, domain.Persistence("ACCOUNT", err)
	}
	defer rows.Close()
	return collectAccounts(rows)
}

// ListByOwner returns every account owned by the member.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts
        WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, domain.Persistence("ACCOUNT", err)
	}
	defer rows.Close()
	return collectAccounts(rows)
}

// UpdateStatus performs a compare-and-swap on the lifecycle status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET status = $1, updated_at = $2
        WHERE id = $3 AND status = $4`, string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return domain.Persistence("ACCOUNT", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.Errf(domain.ErrConcurrentModification, "ACCOUNT",
			"account %s no longer in status %s", id, from)
	}
	return nil
}

// Adjust applies one signed balance delta inside a transaction, enforcing
// the account floor under a row lock.
func (r *PostgresRepository) Adjust(ctx context.Context, adj Adjustment) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, domain.Persistence("ACCOUNT", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	balance, err := adjustLocked(ctx, tx, adj)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, domain.Persistence("ACCOUNT", err)
	}
	return balance, nil
}

// AdjustPair applies the debit and credit deltas as one database
// transaction. Rows are locked in ascending account id order so two
// opposite-direction settlements between the same accounts cannot deadlock.
func (r *PostgresRepository) AdjustPair(ctx context.Context, debit, credit Adjustment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Persistence("ACCOUNT", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	first, second := debit, credit
	if second.AccountID < first.AccountID {
		first, second = second, first
	}
	if _, err := adjustLocked(ctx, tx, first); err != nil {
		return err
	}
	if _, err := adjustLocked(ctx, tx, second); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Persistence("ACCOUNT", err)
	}
	return nil
}

func adjustLocked(ctx context.Context, tx pgx.Tx, adj Adjustment) (int64, error) {
	var (
		balance    int64
		minBalance int64
		kind       string
	)
	err := tx.QueryRow(ctx, `SELECT balance, min_balance, kind FROM accounts
        WHERE id = $1 FOR UPDATE`, adj.AccountID).Scan(&balance, &minBalance, &kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.Errf(domain.ErrNotFound, "ACCOUNT", "account %s not found", adj.AccountID)
		}
		return 0, domain.Persistence("ACCOUNT", err)
	}

	floor := int64(0)
	if Kind(kind) == KindAllowance {
		floor = minBalance
	}
	next := balance + adj.Delta
	if adj.Delta < 0 && next < floor {
		return 0, domain.Errf(domain.ErrInsufficientFunds, "ACCOUNT",
			"available %d, required %d, floor %d", balance, -adj.Delta, floor).
			WithDetails(map[string]any{
				"account_id": adj.AccountID,
				"available":  balance,
				"required":   -adj.Delta,
				"floor":      floor,
			})
	}

	_, err = tx.Exec(ctx, `UPDATE accounts SET balance = $1, updated_at = $2 WHERE id = $3`,
		next, time.Now().UTC(), adj.AccountID)
	if err != nil {
		return 0, domain.Persistence("ACCOUNT", err)
	}
	return next, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a          Account
		id         uuid.UUID
		kind       string
		status     string
		createdAt  time.Time
		updatedAt  time.Time
	)
	if err := row.Scan(&id, &a.FamilyID, &a.OwnerID, &a.Name, &kind,
		&a.Balance, &a.MinBalance, &status, &createdAt, &updatedAt); err != nil {
		return Account{}, err
	}
	a.ID = id.String()
	a.Kind = Kind(kind)
	a.Status = Status(status)
	a.CreatedAt = createdAt.UTC()
	a.UpdatedAt = updatedAt.UTC()
	return a, nil
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	var out []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, domain.Persistence("ACCOUNT", err)
		}
		out = append(out, account)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("ACCOUNT", err)
	}
	return out, nil
}
