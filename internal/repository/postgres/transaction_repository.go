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

const transactionTracer = "transaction-repository"

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `t.id, t.offer_id, t.buyer_id, t.seller_id, t.status, t.created_at, t.updated_at`

const transactionViewQuery = `SELECT ` + transactionColumns + `, ` + offerColumns + `, ` + listingColumns + `,
	COALESCE(b.id, ''), COALESCE(b.name, ''), COALESCE(b.email, ''),
	COALESCE(s.id, ''), COALESCE(s.name, ''), COALESCE(s.email, '')
FROM transactions t
JOIN offers o ON o.id = t.offer_id
JOIN listings l ON l.id = o.listing_id
LEFT JOIN users b ON b.id = t.buyer_id
LEFT JOIN users s ON s.id = t.seller_id`

func transactionDest(t *models.Transaction) []any {
	return []any{&t.ID, &t.OfferID, &t.BuyerID, &t.SellerID, &t.Status, &t.CreatedAt, &t.UpdatedAt}
}

func scanTransactionView(s scanner) (*models.Transaction, error) {
	var (
		t             models.Transaction
		o             models.Offer
		l             models.Listing
		buyer, seller userDest
	)
	dest := transactionDest(&t)
	dest = append(dest, offerDest(&o)...)
	dest = append(dest, listingDest(&l)...)
	dest = append(dest, buyer.dest()...)
	dest = append(dest, seller.dest()...)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	o.Listing = &l
	t.Offer = &o
	t.Buyer = buyer.summary()
	t.Seller = seller.summary()
	return &t, nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (_ *models.Transaction, err error) {
	ctx, done := instrument(ctx, transactionTracer, "GetTransactionByID", attribute.String("transaction_id", id))
	defer func() { done(err) }()

	t, err := scanTransactionView(r.db.QueryRowContext(ctx, transactionViewQuery+` WHERE t.id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Warn("transaction not found", "method", "GetByID", "transaction_id", id)
		return nil, pkgerrors.ErrTransactionNotFound
	}
	if err != nil {
		slog.Error("failed to get transaction by id", "method", "GetByID", "transaction_id", id, "error", err)
		return nil, fmt.Errorf("failed to get transaction by id: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) ListByParticipant(ctx context.Context, userID string) (_ []models.Transaction, err error) {
	ctx, done := instrument(ctx, transactionTracer, "ListTransactionsByParticipant", attribute.String("user_id", userID))
	defer func() { done(err) }()

	rows, err := r.db.QueryContext(ctx,
		transactionViewQuery+` WHERE t.buyer_id = $1 OR t.seller_id = $1 ORDER BY t.updated_at DESC, t.id DESC`,
		userID,
	)
	if err != nil {
		slog.Error("failed to list transactions", "method", "ListByParticipant", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		t, scanErr := scanTransactionView(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan transaction: %w", scanErr)
			return nil, err
		}
		transactions = append(transactions, *t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	slog.Info("transactions retrieved", "method", "ListByParticipant", "user_id", userID, "count", len(transactions))
	return transactions, nil
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, id string, from, to models.TransactionStatus) (_ *models.Transaction, err error) {
	ctx, done := instrument(ctx, transactionTracer, "UpdateTransactionStatus",
		attribute.String("transaction_id", id),
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	)
	defer func() { done(err) }()

	query := `UPDATE transactions t SET status = $3, updated_at = NOW() WHERE t.id = $1 AND t.status = $2 RETURNING ` + transactionColumns
	var t models.Transaction
	err = r.db.QueryRowContext(ctx, query, id, from, to).Scan(transactionDest(&t)...)
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Warn("transaction status changed concurrently", "method", "UpdateStatus", "transaction_id", id, "expected", from)
		return nil, pkgerrors.TransitionError(string(from), string(to))
	}
	if err != nil {
		slog.Error("failed to update transaction status", "method", "UpdateStatus", "transaction_id", id, "error", err)
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}

	slog.Info("transaction status updated", "method", "UpdateStatus", "transaction_id", id, "from", from, "to", to)
	return &t, nil
}
