package loan

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/famvault/famvault/internal/domain"
)

// Repository persists loans. Update carries compare-and-swap semantics on
// the status field: the write lands only if the stored loan is still in
// fromStatus.
type Repository interface {
	Create(ctx context.Context, l Loan) error
	Get(ctx context.Context, id string) (Loan, error)
	ListByFamily(ctx context.Context, familyID string) ([]Loan, error)
	Update(ctx context.Context, l Loan, fromStatus Status) error
}

// PostgresRepository stores loans in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed loan repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const loanColumns = `id, family_id, borrower_id, lender_id, borrower_account_id, lender_account_id,
    principal, interest_rate, term_days, purpose, schedule, status, disbursement_id, amount_repaid,
    created_at, updated_at`

// Create inserts a loan record.
func (r *PostgresRepository) Create(ctx context.Context, l Loan) error {
	id, err := uuid.Parse(l.ID)
	if err != nil {
		return domain.Errf(domain.ErrValidation, "LOAN", "invalid loan id %q", l.ID)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO loans (`+loanColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		id, l.FamilyID, l.BorrowerID, l.LenderID, l.BorrowerAccountID, l.LenderAccountID,
		l.Principal, l.InterestRate.String(), l.TermDays, l.Purpose, string(l.Schedule),
		string(l.Status), l.DisbursementID, l.AmountRepaid, l.CreatedAt.UTC(), l.UpdatedAt.UTC())
	if err != nil {
		return domain.Persistence("LOAN", err)
	}
	return nil
}

// Get fetches a loan by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Loan, error) {
	row := r.db.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
	l, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Loan{}, domain.Errf(domain.ErrNotFound, "LOAN", "loan %s not found", id)
		}
		return Loan{}, domain.Persistence("LOAN", err)
	}
	return l, nil
}

// ListByFamily returns the family's loans, newest first.
func (r *PostgresRepository) ListByFamily(ctx context.Context, familyID string) ([]Loan, error) {
	rows, err := r.db.Query(ctx, `SELECT `+loanColumns+` FROM loans
        WHERE family_id = $1 ORDER BY created_at DESC`, familyID)
	if err != nil {
		return nil, domain.Persistence("LOAN", err)
	}
	defer rows.Close()

	var out []Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, domain.Persistence("LOAN", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("LOAN", err)
	}
	return out, nil
}

// Update writes the loan back, compare-and-swapping on the status column.
func (r *PostgresRepository) Update(ctx context.Context, l Loan, fromStatus Status) error {
	cmd, err := r.db.Exec(ctx, `UPDATE loans
        SET interest_rate = $1, term_days = $2, status = $3, disbursement_id = $4,
            amount_repaid = $5, updated_at = $6
        WHERE id = $7 AND status = $8`,
		l.InterestRate.String(), l.TermDays, string(l.Status), l.DisbursementID,
		l.AmountRepaid, time.Now().UTC(), l.ID, string(fromStatus))
	if err != nil {
		return domain.Persistence("LOAN", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.Errf(domain.ErrConcurrentModification, "LOAN",
			"loan %s no longer in status %s", l.ID, fromStatus)
	}
	return nil
}

func scanLoan(row pgx.Row) (Loan, error) {
	var (
		l         Loan
		id        uuid.UUID
		rate      string
		schedule  string
		status    string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&id, &l.FamilyID, &l.BorrowerID, &l.LenderID,
		&l.BorrowerAccountID, &l.LenderAccountID, &l.Principal, &rate, &l.TermDays,
		&l.Purpose, &schedule, &status, &l.DisbursementID, &l.AmountRepaid,
		&createdAt, &updatedAt); err != nil {
		return Loan{}, err
	}
	parsed, err := decimal.NewFromString(rate)
	if err != nil {
		return Loan{}, err
	}
	l.ID = id.String()
	l.InterestRate = parsed
	l.Schedule = Schedule(schedule)
	l.Status = Status(status)
	l.CreatedAt = createdAt.UTC()
	l.UpdatedAt = updatedAt.UTC()
	return l, nil
}
