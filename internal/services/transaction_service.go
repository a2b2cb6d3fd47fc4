package service

import (
	"context"
	"log/slog"

	"github.com/honeynil/p2p-marketplace/internal/infrastructure/observability"
	"github.com/honeynil/p2p-marketplace/internal/models"
	"github.com/honeynil/p2p-marketplace/internal/notify"
	"github.com/honeynil/p2p-marketplace/internal/repository"
	pkgerrors "github.com/honeynil/p2p-marketplace/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type TransactionService interface {
	Get(ctx context.Context, id, callerID string) (*models.Transaction, error)
	ListMine(ctx context.Context, callerID string) ([]models.Transaction, error)
	UpdateStatus(ctx context.Context, id, callerID string, target models.TransactionStatus) (*models.Transaction, error)
}

type transactionService struct {
	transactionRepo repository.TransactionRepository
	notifier        notify.Notifier
}

func NewTransactionService(transactionRepo repository.TransactionRepository, notifier notify.Notifier) *transactionService {
	return &transactionService{
		transactionRepo: transactionRepo,
		notifier:        notifier,
	}
}

func (s *transactionService) Get(ctx context.Context, id, callerID string) (*models.Transaction, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "GetTransaction", trace.WithAttributes(attribute.String("transaction_id", id)))
	defer span.End()

	t, err := s.transactionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, spanFail(span, err, "transaction lookup failed")
	}
	if roleOf(t, callerID) == "" {
		slog.Warn("transaction read by outsider", "transaction_id", id, "caller_id", callerID)
		return nil, spanFail(span, pkgerrors.ErrNotTransactionParty, "not a party")
	}
	return withAllowedStatuses(t, callerID), nil
}

// ListMine returns the caller's purchases and sales, most recently updated first.
func (s *transactionService) ListMine(ctx context.Context, callerID string) ([]models.Transaction, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "ListMyTransactions")
	defer span.End()

	transactions, err := s.transactionRepo.ListByParticipant(ctx, callerID)
	if err != nil {
		slog.Error("failed to list transactions", "user_id", callerID, "error", err)
		return nil, spanFail(span, err, "transaction query failed")
	}
	for i := range transactions {
		withAllowedStatuses(&transactions[i], callerID)
	}
	return transactions, nil
}

func (s *transactionService) UpdateStatus(ctx context.Context, id, callerID string, target models.TransactionStatus) (*models.Transaction, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "UpdateTransactionStatus", trace.WithAttributes(
		attribute.String("transaction_id", id),
		attribute.String("target", string(target)),
	))
	defer span.End()

	if !target.Valid() {
		return nil, spanFail(span, pkgerrors.ErrInvalidStatus, "unknown status")
	}

	t, err := s.transactionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, spanFail(span, err, "transaction lookup failed")
	}
	role := roleOf(t, callerID)
	if role == "" {
		return nil, spanFail(span, pkgerrors.ErrNotTransactionParty, "not a party")
	}

	from := t.Status
	if !CanTransition(role, from, target) {
		slog.Warn("rejected status transition",
			"transaction_id", id,
			"role", role,
			"from", from,
			"to", target)
		return nil, spanFail(span, pkgerrors.TransitionError(string(from), string(target)), "transition not allowed")
	}

	updated, err := s.transactionRepo.UpdateStatus(ctx, id, from, target)
	if err != nil {
		return nil, spanFail(span, err, "status update failed")
	}
	updated.Offer, updated.Buyer, updated.Seller = t.Offer, t.Buyer, t.Seller
	withAllowedStatuses(updated, callerID)
	observability.TransactionTransitions.WithLabelValues(string(from), string(target)).Inc()

	counterparty := updated.SellerID
	if role == RoleSeller {
		counterparty = updated.BuyerID
	}
	deliver(ctx, s.notifier, counterparty, notify.TransactionUpdate(updated, target))

	slog.Info("transaction status updated",
		"transaction_id", id,
		"role", role,
		"from", from,
		"to", target)
	return updated, nil
}
