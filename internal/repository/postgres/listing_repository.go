package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/honeynil/p2p-marketplace/internal/models"
	pkgerrors "github.com/honeynil/p2p-marketplace/pkg/errors"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

const listingTracer = "listing-repository"

type ListingRepository struct {
	db *sql.DB
}

func NewListingRepository(db *sql.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

func (r *ListingRepository) Create(ctx context.Context, l *models.Listing) (err error) {
	ctx, done := instrument(ctx, listingTracer, "CreateListing")
	defer func() { done(err) }()

	if l == nil {
		return fmt.Errorf("%w: listing is nil", pkgerrors.ErrInvalidInput)
	}
	if l.Images == nil {
		l.Images = []string{}
	}

	query := `INSERT INTO listings (id, seller_id, title, description, price, category, condition, images, status) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query,
		l.ID, l.SellerID, l.Title, l.Description, l.Price, l.Category, l.Condition, pq.Array(l.Images), l.Status,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		slog.Error("failed to create listing", "method", "Create", "seller_id", l.SellerID, "error", err)
		return fmt.Errorf("failed to create listing: %w", err)
	}

	slog.Info("listing created", "method", "Create", "listing_id", l.ID, "seller_id", l.SellerID)
	return nil
}

func (r *ListingRepository) GetByID(ctx context.Context, id string) (_ *models.Listing, err error) {
	ctx, done := instrument(ctx, listingTracer, "GetListingByID", attribute.String("listing_id", id))
	defer func() { done(err) }()

	query := `SELECT ` + listingColumns + `, COALESCE(u.id, ''), COALESCE(u.name, ''), COALESCE(u.email, '') FROM listings l LEFT JOIN users u ON u.id = l.seller_id WHERE l.id = $1`

	var l models.Listing
	var seller userDest
	err = r.db.QueryRowContext(ctx, query, id).Scan(append(listingDest(&l), seller.dest()...)...)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrListingNotFound
	}
	if err != nil {
		slog.Error("failed to get listing by id", "method", "GetByID", "listing_id", id, "error", err)
		return nil, fmt.Errorf("failed to get listing by id: %w", err)
	}
	l.Seller = seller.summary()
	return &l, nil
}

func (r *ListingRepository) List(ctx context.Context, filter models.ListingFilter) (_ []models.Listing, err error) {
	ctx, done := instrument(ctx, listingTracer, "ListListings")
	defer func() { done(err) }()

	query, args := buildListingQuery(filter.Normalize())
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("failed to list listings", "method", "List", "error", err)
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	listings := []models.Listing{}
	for rows.Next() {
		var l models.Listing
		var seller userDest
		if err = rows.Scan(append(listingDest(&l), seller.dest()...)...); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		l.Seller = seller.summary()
		listings = append(listings, l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	return listings, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// buildListingQuery renders filter as a keyset-paginated SELECT. The cursor is
// the id of the last listing of the previous page.
func buildListingQuery(f models.ListingFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		conds = append(conds, "l.status = "+arg(f.Status))
	}
	if f.SellerID != "" {
		conds = append(conds, "l.seller_id = "+arg(f.SellerID))
	}
	if f.ExcludeSellerID != "" {
		conds = append(conds, "l.seller_id <> "+arg(f.ExcludeSellerID))
	}
	if f.Category != "" {
		conds = append(conds, "l.category = "+arg(f.Category))
	}
	if f.Search != "" {
		p := arg("%" + likeEscaper.Replace(f.Search) + "%")
		conds = append(conds, "(l.title ILIKE "+p+" OR l.description ILIKE "+p+")")
	}
	if f.MinPrice != nil {
		conds = append(conds, "l.price >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		conds = append(conds, "l.price <= "+arg(*f.MaxPrice))
	}

	var orderBy string
	switch f.Sort {
	case models.SortPriceAsc:
		orderBy = "l.price ASC, l.id ASC"
		if f.Cursor != "" {
			conds = append(conds, "(l.price, l.id) > (SELECT price, id FROM listings WHERE id = "+arg(f.Cursor)+")")
		}
	case models.SortPriceDesc:
		orderBy = "l.price DESC, l.id DESC"
		if f.Cursor != "" {
			conds = append(conds, "(l.price, l.id) < (SELECT price, id FROM listings WHERE id = "+arg(f.Cursor)+")")
		}
	default:
		orderBy = "l.created_at DESC, l.id DESC"
		if f.Cursor != "" {
			conds = append(conds, "(l.created_at, l.id) < (SELECT created_at, id FROM listings WHERE id = "+arg(f.Cursor)+")")
		}
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + listingColumns + `, COALESCE(u.id, ''), COALESCE(u.name, ''), COALESCE(u.email, '') FROM listings l LEFT JOIN users u ON u.id = l.seller_id`)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY " + orderBy)
	b.WriteString(" LIMIT " + arg(f.Take))
	return b.String(), args
}

func (r *ListingRepository) Update(ctx context.Context, l *models.Listing) (err error) {
	ctx, done := instrument(ctx, listingTracer, "UpdateListing", attribute.String("listing_id", l.ID))
	defer func() { done(err) }()

	if l.Images == nil {
		l.Images = []string{}
	}

	query := `UPDATE listings SET title = $2, description = $3, price = $4, category = $5, condition = $6, images = $7, status = $8, updated_at = NOW() WHERE id = $1 AND status <> 'SOLD' RETURNING updated_at`
	err = r.db.QueryRowContext(ctx, query,
		l.ID, l.Title, l.Description, l.Price, l.Category, l.Condition, pq.Array(l.Images), l.Status,
	).Scan(&l.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return r.missingOrSold(ctx, "Update", l.ID)
	}
	if err != nil {
		slog.Error("failed to update listing", "method", "Update", "listing_id", l.ID, "error", err)
		return fmt.Errorf("failed to update listing: %w", err)
	}

	slog.Info("listing updated", "method", "Update", "listing_id", l.ID, "status", l.Status)
	return nil
}

func (r *ListingRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, done := instrument(ctx, listingTracer, "DeleteListing", attribute.String("listing_id", id))
	defer func() { done(err) }()

	res, err := r.db.ExecContext(ctx, `DELETE FROM listings WHERE id = $1 AND status <> 'SOLD'`, id)
	if err != nil {
		slog.Error("failed to delete listing", "method", "Delete", "listing_id", id, "error", err)
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	if n == 0 {
		return r.missingOrSold(ctx, "Delete", id)
	}

	slog.Info("listing deleted", "method", "Delete", "listing_id", id)
	return nil
}

// missingOrSold explains why a guarded write on listing id matched no row.
func (r *ListingRepository) missingOrSold(ctx context.Context, method, id string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, id).Scan(&exists); err != nil {
		slog.Error("failed to check listing existence", "method", method, "listing_id", id, "error", err)
		return fmt.Errorf("failed to check listing existence: %w", err)
	}
	if !exists {
		return pkgerrors.ErrListingNotFound
	}
	slog.Warn("listing is sold", "method", method, "listing_id", id)
	return pkgerrors.ErrListingSold
}
