package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/famvault/famvault/internal/approval"
	"github.com/famvault/famvault/internal/domain"
)

// Repository persists transfers. UpdateStatus has compare-and-swap
// semantics: the write lands only if the record is still in the expected
// source status, otherwise ConcurrentModification.
type Repository interface {
	Create(ctx context.Context, t Transfer) error
	Get(ctx context.Context, id string) (Transfer, error)
	ListByFamily(ctx context.Context, familyID string) ([]Transfer, error)
	ListByAccount(ctx context.Context, accountID string) ([]Transfer, error)
	UpdateStatus(ctx context.Context, id string, from, to approval.Status, notes string) (Transfer, error)
}

// PostgresRepository stores transfers in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed transfer repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const transferColumns = `id, family_id, from_account_id, to_account_id, amount, category, memo, requester_id, status, approver_notes, created_at, updated_at`

// Create inserts a transfer record.
func (r *PostgresRepository) Create(ctx context.Context, t Transfer) error {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return domain.Errf(domain.ErrValidation, "TRANSFER", "invalid transfer id %q", t.ID)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO transfers (`+transferColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id, t.FamilyID, t.FromAccountID, t.ToAccountID, t.Amount, t.Category,
		t.Memo, t.RequesterID, string(t.Status), t.ApproverNotes,
		t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return domain.Persistence("TRANSFER", err)
	}
	return nil
}

// Get fetches a transfer by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Transfer, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1`, id)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, domain.Errf(domain.ErrNotFound, "TRANSFER", "transfer %s not found", id)
		}
		return Transfer{}, domain.Persistence("TRANSFER", err)
	}
	return t, nil
}

// ListByFamily returns the family's transfers, newest first.
func (r *PostgresRepository) ListByFamily(ctx context.Context, familyID string) ([]Transfer, error) {
	rows, err := r.db.Query(ctx, `SELECT `+transferColumns+` FROM transfers
        WHERE family_id = $1 ORDER BY created_at DESC`, familyID)
	if err != nil {
		return nil, domain.Persistence("TRANSFER", err)
	}
	defer rows.Close()
	return collectTransfers(rows)
}

// ListByAccount returns transfers touching the account on either side.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]Transfer, error) {
	rows, err := r.db.Query(ctx, `SELECT `+transferColumns+` FROM transfers
        WHERE from_account_id = $1 OR to_account_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, domain.Persistence("TRANSFER", err)
	}
	defer rows.Close()
	return collectTransfers(rows)
}

// UpdateStatus compare-and-swaps the status field and appends notes.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, from, to approval.Status, notes string) (Transfer, error) {
	row := r.db.QueryRow(ctx, `UPDATE transfers
        SET status = $1,
            approver_notes = CASE WHEN $2 = '' THEN approver_notes ELSE $2 END,
            updated_at = $3
        WHERE id = $4 AND status = $5
        RETURNING `+transferColumns,
		string(to), notes, time.Now().UTC(), id, string(from))
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, domain.Errf(domain.ErrConcurrentModification, "TRANSFER",
				"transfer %s no longer in status %s", id, from)
		}
		return Transfer{}, domain.Persistence("TRANSFER", err)
	}
	return t, nil
}

func scanTransfer(row pgx.Row) (Transfer, error) {
	var (
		t         Transfer
		id        uuid.UUID
		status    string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&id, &t.FamilyID, &t.FromAccountID, &t.ToAccountID, &t.Amount,
		&t.Category, &t.Memo, &t.RequesterID, &status, &t.ApproverNotes,
		&createdAt, &updatedAt); err != nil {
		return Transfer{}, err
	}
	t.ID = id.String()
	t.Status = approval.Status(status)
	t.CreatedAt = createdAt.UTC()
	t.UpdatedAt = updatedAt.UTC()
	return t, nil
}

func collectTransfers(rows pgx.Rows) ([]Transfer, error) {
	var out []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, domain.Persistence("TRANSFER", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("TRANSFER", err)
	}
	return out, nil
}
