package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/honeynil/p2p-marketplace/internal/models"
	pkgerrors "github.com/honeynil/p2p-marketplace/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const offerTracer = "offer-repository"

type OfferRepository struct {
	db *sql.DB
}

func NewOfferRepository(db *sql.DB) *OfferRepository {
	return &OfferRepository{db: db}
}

func (r *OfferRepository) Create(ctx context.Context, o *models.Offer) (err error) {
	ctx, done := instrument(ctx, offerTracer, "CreateOffer",
		attribute.String("listing_id", o.ListingID),
		attribute.Int64("amount", o.Amount),
	)
	defer func() { done(err) }()

	// The listing row is share-locked, so the insert either waits for a
	// concurrent Accept and then sees SOLD, or commits first and is declined by it.
	query := `INSERT INTO offers (id, listing_id, buyer_id, amount, message, status)
SELECT $1::text, l.id, $3::text, $4::bigint, $5::text, $6::text FROM listings l WHERE l.id = $2 AND l.status = 'ACTIVE' AND l.seller_id <> $3 FOR SHARE
RETURNING created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query, o.ID, o.ListingID, o.BuyerID, o.Amount, o.Message, o.Status).Scan(&o.CreatedAt, &o.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Warn("listing not open for offers", "method", "Create", "listing_id", o.ListingID, "buyer_id", o.BuyerID)
		return pkgerrors.ErrListingNotActive
	}
	if err != nil {
		slog.Error("failed to create offer", "method", "Create", "listing_id", o.ListingID, "buyer_id", o.BuyerID, "error", err)
		return fmt.Errorf("failed to create offer: %w", err)
	}

	slog.Info("offer created", "method", "Create", "offer_id", o.ID, "listing_id", o.ListingID, "buyer_id", o.BuyerID)
	return nil
}

const offerViewQuery = `SELECT ` + offerColumns + `, ` + listingColumns + `, COALESCE(u.id, ''), COALESCE(u.name, ''), COALESCE(u.email, '') FROM offers o JOIN listings l ON l.id = o.listing_id LEFT JOIN users u ON u.id = o.buyer_id`

func scanOfferView(s scanner) (*models.Offer, error) {
	var o models.Offer
	var l models.Listing
	var buyer userDest
	dest := append(offerDest(&o), listingDest(&l)...)
	if err := s.Scan(append(dest, buyer.dest()...)...); err != nil {
		return nil, err
	}
	o.Listing = &l
	o.Buyer = buyer.summary()
	return &o, nil
}

func (r *OfferRepository) GetByID(ctx context.Context, id string) (_ *models.Offer, err error) {
	ctx, done := instrument(ctx, offerTracer, "GetOfferByID", attribute.String("offer_id", id))
	defer func() { done(err) }()

	o, err := scanOfferView(r.db.QueryRowContext(ctx, offerViewQuery+` WHERE o.id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrOfferNotFound
	}
	if err != nil {
		slog.Error("failed to get offer by id", "method", "GetByID", "offer_id", id, "error", err)
		return nil, fmt.Errorf("failed to get offer by id: %w", err)
	}
	return o, nil
}

func (r *OfferRepository) UpdateStatus(ctx context.Context, id string, from, to models.OfferStatus) (_ *models.Offer, err error) {
	ctx, done := instrument(ctx, offerTracer, "UpdateOfferStatus",
		attribute.String("offer_id", id),
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	)
	defer func() { done(err) }()

	query := `UPDATE offers o SET status = $3, updated_at = NOW() WHERE o.id = $1 AND o.status = $2 RETURNING ` + offerColumns
	var o models.Offer
	err = r.db.QueryRowContext(ctx, query, id, from, to).Scan(offerDest(&o)...)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrOfferNotPending
	}
	if err != nil {
		slog.Error("failed to update offer status", "method", "UpdateStatus", "offer_id", id, "error", err)
		return nil, fmt.Errorf("failed to update offer status: %w", err)
	}

	slog.Info("offer status updated", "method", "UpdateStatus", "offer_id", id, "from", from, "to", to)
	return &o, nil
}

// Accept locks the listing row and then the offer row, in that order for every
// caller, so concurrent acceptances on one listing queue up and the loser sees
// the winner's committed state.
func (r *OfferRepository) Accept(ctx context.Context, offerID string, txn *models.Transaction) (_ *models.AcceptOutcome, err error) {
	ctx, done := instrument(ctx, offerTracer, "AcceptOffer",
		attribute.String("offer_id", offerID),
		attribute.String("transaction_id", txn.ID),
	)
	defer func() { done(err) }()

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "Accept", "error", err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	var listingID string
	err = dbTx.QueryRowContext(ctx, `SELECT listing_id FROM offers WHERE id = $1`, offerID).Scan(&listingID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, rollback(dbTx, "Accept", pkgerrors.ErrOfferNotFound)
	}
	if err != nil {
		return nil, rollback(dbTx, "Accept", fmt.Errorf("failed to read offer: %w", err))
	}

	var listingStatus models.ListingStatus
	err = dbTx.QueryRowContext(ctx, `SELECT status FROM listings WHERE id = $1 FOR UPDATE`, listingID).Scan(&listingStatus)
	if err != nil {
		return nil, rollback(dbTx, "Accept", fmt.Errorf("failed to lock listing: %w", err))
	}

	var offerStatus models.OfferStatus
	err = dbTx.QueryRowContext(ctx, `SELECT status FROM offers WHERE id = $1 FOR UPDATE`, offerID).Scan(&offerStatus)
	if err != nil {
		return nil, rollback(dbTx, "Accept", fmt.Errorf("failed to lock offer: %w", err))
	}

	if offerStatus != models.OfferPending {
		slog.Warn("offer is no longer pending", "method", "Accept", "offer_id", offerID, "status", offerStatus)
		return nil, rollback(dbTx, "Accept", pkgerrors.ErrOfferNotPending)
	}
	if listingStatus == models.ListingSold {
		slog.Warn("listing already sold", "method", "Accept", "listing_id", listingID)
		return nil, rollback(dbTx, "Accept", pkgerrors.ErrListingSold)
	}

	var accepted models.Offer
	err = dbTx.QueryRowContext(ctx,
		`UPDATE offers o SET status = 'ACCEPTED', updated_at = NOW() WHERE o.id = $1 RETURNING `+offerColumns,
		offerID,
	).Scan(offerDest(&accepted)...)
	if err != nil {
		return nil, rollback(dbTx, "Accept", fmt.Errorf("failed to accept offer: %w", err))
	}

	if _, err = dbTx.ExecContext(ctx, `UPDATE listings SET status = 'SOLD', updated_at = NOW() WHERE id = $1`, listingID); err != nil {
		return nil, rollback(dbTx, "Accept", fmt.Errorf("failed to mark listing sold: %w", err))
	}

	rows, err := dbTx.QueryContext(ctx,
		`UPDATE offers SET status = 'DECLINED', updated_at = NOW() WHERE listing_id = $1 AND id <> $2 AND status = 'PENDING' RETURNING id`,
		listingID, offerID,
	)
	if err != nil {
		return nil, rollback(dbTx, "Accept", fmt.Errorf("failed to decline competing offers: %w", err))
	}
	declined := []string{}
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			rows.Close()
			return nil, rollback(dbTx, "Accept", fmt.Errorf("failed to decline competing offers: %w", err))
		}
		declined = append(declined, id)
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return nil, rollback(dbTx, "Accept", fmt.Errorf("failed to decline competing offers: %w", err))
	}
	rows.Close()

	txn.OfferID = accepted.ID
	txn.BuyerID = accepted.BuyerID
	txn.Status = models.StatusOfferAccepted
	err = dbTx.QueryRowContext(ctx,
		`INSERT INTO transactions (id, offer_id, buyer_id, seller_id, status) VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`,
		txn.ID, txn.OfferID, txn.BuyerID, txn.SellerID, txn.Status,
	).Scan(&txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return nil, rollback(dbTx, "Accept", fmt.Errorf("failed to create transaction: %w", err))
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "Accept", "error", err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("offer accepted",
		"method", "Accept",
		"offer_id", offerID,
		"listing_id", listingID,
		"transaction_id", txn.ID,
		"declined", len(declined))
	return &models.AcceptOutcome{Offer: &accepted, Transaction: txn, DeclinedOfferIDs: declined}, nil
}

func (r *OfferRepository) ListByListing(ctx context.Context, listingID string) ([]models.Offer, error) {
	return r.list(ctx, "ListOffersByListing", `o.listing_id = $1`, listingID)
}

func (r *OfferRepository) ListByBuyer(ctx context.Context, buyerID string) ([]models.Offer, error) {
	return r.list(ctx, "ListOffersByBuyer", `o.buyer_id = $1`, buyerID)
}

func (r *OfferRepository) ListBySeller(ctx context.Context, sellerID string) ([]models.Offer, error) {
	return r.list(ctx, "ListOffersBySeller", `l.seller_id = $1`, sellerID)
}

func (r *OfferRepository) list(ctx context.Context, method, where string, arg string) (_ []models.Offer, err error) {
	ctx, done := instrument(ctx, offerTracer, method)
	defer func() { done(err) }()

	rows, err := r.db.QueryContext(ctx, offerViewQuery+` WHERE `+where+` ORDER BY o.created_at DESC, o.id DESC`, arg)
	if err != nil {
		slog.Error("failed to list offers", "method", method, "error", err)
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	defer rows.Close()

	offers := []models.Offer{}
	for rows.Next() {
		o, scanErr := scanOfferView(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan offer: %w", scanErr)
			return nil, err
		}
		offers = append(offers, *o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	return offers, nil
}
