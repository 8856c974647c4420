package family

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/famvault/famvault/internal/domain"
)

// Repository persists families and their members.
type Repository interface {
	CreateFamily(ctx context.Context, f Family) error
	GetFamily(ctx context.Context, id string) (Family, error)
	CreateMember(ctx context.Context, m Member) error
	GetMember(ctx context.Context, id string) (Member, error)
	FindMemberByUsername(ctx context.Context, username string) (Member, error)
	ListMembers(ctx context.Context, familyID string) ([]Member, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed family repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateFamily(ctx context.Context, f Family) error {
	_, err := r.db.Exec(ctx, `INSERT INTO families (id, name, created_at)
        VALUES ($1, $2, $3)`, f.ID, f.Name, f.CreatedAt.UTC())
	if err != nil {
		return domain.Persistence("FAMILY", err)
	}
	return nil
}

func (r *PostgresRepository) GetFamily(ctx context.Context, id string) (Family, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, created_at FROM families WHERE id = $1`, id)
	var f Family
	if err := row.Scan(&f.ID, &f.Name, &f.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Family{}, domain.Errf(domain.ErrNotFound, "FAMILY", "family %s not found", id)
		}
		return Family{}, domain.Persistence("FAMILY", err)
	}
	return f, nil
}

func (r *PostgresRepository) CreateMember(ctx context.Context, m Member) error {
	_, err := r.db.Exec(ctx, `INSERT INTO members (id, family_id, username, name, role, pin_hash, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.FamilyID, m.Username, m.Name, string(m.Role), m.PINHash, m.CreatedAt.UTC())
	if err != nil {
		return domain.Persistence("MEMBER", err)
	}
	return nil
}

func (r *PostgresRepository) GetMember(ctx context.Context, id string) (Member, error) {
	return r.scanMember(r.db.QueryRow(ctx, `SELECT id, family_id, username, name, role, pin_hash, created_at
        FROM members WHERE id = $1`, id), id)
}

func (r *PostgresRepository) FindMemberByUsername(ctx context.Context, username string) (Member, error) {
	return r.scanMember(r.db.QueryRow(ctx, `SELECT id, family_id, username, name, role, pin_hash, created_at
        FROM members WHERE username = $1`, username), username)
}

func (r *PostgresRepository) ListMembers(ctx context.Context, familyID string) ([]Member, error) {
	rows, err := r.db.Query(ctx, `SELECT id, family_id, username, name, role, pin_hash, created_at
        FROM members WHERE family_id = $1 ORDER BY created_at`, familyID)
	if err != nil {
		return nil, domain.Persistence("MEMBER", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		var role string
		if err := rows.Scan(&m.ID, &m.FamilyID, &m.Username, &m.Name, &role, &m.PINHash, &m.CreatedAt); err != nil {
			return nil, domain.Persistence("MEMBER", err)
		}
		m.Role = domain.Role(role)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("MEMBER", err)
	}
	return members, nil
}

func (r *PostgresRepository) scanMember(row pgx.Row, key string) (Member, error) {
	var m Member
	var role string
	if err := row.Scan(&m.ID, &m.FamilyID, &m.Username, &m.Name, &role, &m.PINHash, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, domain.Errf(domain.ErrNotFound, "MEMBER", "member %s not found", key)
		}
		return Member{}, domain.Persistence("MEMBER", err)
	}
	m.Role = domain.Role(role)
	return m, nil
}
