// Package postgres implements the repositories on top of database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/p2p-marketplace/internal/infrastructure/observability"
	"github.com/honeynil/p2p-marketplace/internal/models"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed schema.sql
var schema string

// Migrate creates the tables and indexes if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	slog.Info("database schema applied")
	return nil
}

// instrument opens a span for a repository method and returns the function
// that records its outcome in the span and in the repository metrics.
func instrument(ctx context.Context, tracerName, method string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, method)
	span.SetAttributes(attrs...)
	start := time.Now()

	return ctx, func(err error) {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues(method, status).Inc()
		observability.RepositoryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		span.End()
	}
}

func rollback(tx *sql.Tx, method string, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil {
		slog.Error("rollback failed", "method", method, "error", rbErr)
		return fmt.Errorf("rollback failed: %v; original error: %w", rbErr, err)
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

const listingColumns = `l.id, l.seller_id, l.title, l.description, l.price, l.category, l.condition, l.images, l.status, l.created_at, l.updated_at`

const offerColumns = `o.id, o.listing_id, o.buyer_id, o.amount, o.message, o.status, o.created_at, o.updated_at`

func listingDest(l *models.Listing) []any {
	return []any{
		&l.ID, &l.SellerID, &l.Title, &l.Description, &l.Price, &l.Category,
		&l.Condition, pq.Array(&l.Images), &l.Status, &l.CreatedAt, &l.UpdatedAt,
	}
}

func offerDest(o *models.Offer) []any {
	return []any{
		&o.ID, &o.ListingID, &o.BuyerID, &o.Amount, &o.Message, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	}
}

// userDest scans a LEFT JOINed user as COALESCEd id, name, email.
type userDest struct {
	id, name, email string
}

func (u *userDest) dest() []any {
	return []any{&u.id, &u.name, &u.email}
}

func (u *userDest) summary() *models.UserSummary {
	if u.id == "" {
		return nil
	}
	return &models.UserSummary{ID: u.id, Name: u.name, Email: u.email}
}
