package market

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/famvault/famvault/internal/domain"
)

// Repository persists listings and purchases. Status updates have
// compare-and-swap semantics.
type Repository interface {
	CreateListing(ctx context.Context, l Listing) error
	GetListing(ctx context.Context, id string) (Listing, error)
	ListListings(ctx context.Context, familyID string) ([]Listing, error)
	UpdateListingStatus(ctx context.Context, id string, from, to ListingStatus) (Listing, error)

	CreatePurchase(ctx context.Context, p Purchase) error
	GetPurchase(ctx context.Context, id string) (Purchase, error)
	UpdatePurchase(ctx context.Context, p Purchase, fromStatus PurchaseStatus) error
}

// PostgresRepository stores marketplace records in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed marketplace repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const listingColumns = `id, family_id, seller_id, seller_account_id, title, description, price, condition, status, created_at, updated_at`

// CreateListing inserts a listing record.
func (r *PostgresRepository) CreateListing(ctx context.Context, l Listing) error {
	id, err := uuid.Parse(l.ID)
	if err != nil {
		return domain.Errf(domain.ErrValidation, "LISTING", "invalid listing id %q", l.ID)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO listings (`+listingColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id, l.FamilyID, l.SellerID, l.SellerAccountID, l.Title, l.Description,
		l.Price, l.Condition, string(l.Status), l.CreatedAt.UTC(), l.UpdatedAt.UTC())
	if err != nil {
		return domain.Persistence("LISTING", err)
	}
	return nil
}

// GetListing fetches a listing by identifier.
func (r *PostgresRepository) GetListing(ctx context.Context, id string) (Listing, error) {
	row := r.db.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, domain.Errf(domain.ErrNotFound, "LISTING", "listing %s not found", id)
		}
		return Listing{}, domain.Persistence("LISTING", err)
	}
	return l, nil
}

// ListListings returns the family's listings, newest first.
func (r *PostgresRepository) ListListings(ctx context.Context, familyID string) ([]Listing, error) {
	rows, err := r.db.Query(ctx, `SELECT `+listingColumns+` FROM listings
        WHERE family_id = $1 ORDER BY created_at DESC`, familyID)
	if err != nil {
		return nil, domain.Persistence("LISTING", err)
	}
	defer rows.Close()

	var out []Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, domain.Persistence("LISTING", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("LISTING", err)
	}
	return out, nil
}

// UpdateListingStatus compare-and-swaps the listing status.
func (r *PostgresRepository) UpdateListingStatus(ctx context.Context, id string, from, to ListingStatus) (Listing, error) {
	row := r.db.QueryRow(ctx, `UPDATE listings SET status = $1, updated_at = $2
        WHERE id = $3 AND status = $4 RETURNING `+listingColumns,
		string(to), time.Now().UTC(), id, string(from))
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, domain.Errf(domain.ErrConcurrentModification, "LISTING",
				"listing %s no longer in status %s", id, from)
		}
		return Listing{}, domain.Persistence("LISTING", err)
	}
	return l, nil
}

const purchaseColumns = `id, listing_id, family_id, buyer_id, buyer_account_id, price, message, notes, status, transfer_id, created_at, updated_at`

// CreatePurchase inserts a purchase record.
func (r *PostgresRepository) CreatePurchase(ctx context.Context, p Purchase) error {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return domain.Errf(domain.ErrValidation, "PURCHASE", "invalid purchase id %q", p.ID)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO purchases (`+purchaseColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id, p.ListingID, p.FamilyID, p.BuyerID, p.BuyerAccountID, p.Price,
		p.Message, p.Notes, string(p.Status), p.TransferID, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		return domain.Persistence("PURCHASE", err)
	}
	return nil
}

// GetPurchase fetches a purchase by identifier.
func (r *PostgresRepository) GetPurchase(ctx context.Context, id string) (Purchase, error) {
	row := r.db.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id)
	p, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, domain.Errf(domain.ErrNotFound, "PURCHASE", "purchase %s not found", id)
		}
		return Purchase{}, domain.Persistence("PURCHASE", err)
	}
	return p, nil
}

// UpdatePurchase writes the purchase back, compare-and-swapping on status.
func (r *PostgresRepository) UpdatePurchase(ctx context.Context, p Purchase, fromStatus PurchaseStatus) error {
	cmd, err := r.db.Exec(ctx, `UPDATE purchases
        SET status = $1, notes = $2, transfer_id = $3, updated_at = $4
        WHERE id = $5 AND status = $6`,
		string(p.Status), p.Notes, p.TransferID, time.Now().UTC(), p.ID, string(fromStatus))
	if err != nil {
		return domain.Persistence("PURCHASE", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.Errf(domain.ErrConcurrentModification, "PURCHASE",
			"purchase %s no longer in status %s", p.ID, fromStatus)
	}
	return nil
}

func scanListing(row pgx.Row) (Listing, error) {
	var (
		l         Listing
		id        uuid.UUID
		status    string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&id, &l.FamilyID, &l.SellerID, &l.SellerAccountID, &l.Title,
		&l.Description, &l.Price, &l.Condition, &status, &createdAt, &updatedAt); err != nil {
		return Listing{}, err
	}
	l.ID = id.String()
	l.Status = ListingStatus(status)
	l.CreatedAt = createdAt.UTC()
	l.UpdatedAt = updatedAt.UTC()
	return l, nil
}

func scanPurchase(row pgx.Row) (Purchase, error) {
	var (
		p         Purchase
		id        uuid.UUID
		status    string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&id, &p.ListingID, &p.FamilyID, &p.BuyerID, &p.BuyerAccountID,
		&p.Price, &p.Message, &p.Notes, &status, &p.TransferID, &createdAt, &updatedAt); err != nil {
		return Purchase{}, err
	}
	p.ID = id.String()
	p.Status = PurchaseStatus(status)
	p.CreatedAt = createdAt.UTC()
	p.UpdatedAt = updatedAt.UTC()
	return p, nil
}
