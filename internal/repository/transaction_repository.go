package repository

import (
	"context"

	"github.com/honeynil/p2p-marketplace/internal/models"
)

type TransactionRepository interface {
	// GetByID returns the transaction with offer, listing and party summaries loaded.
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	// ListByParticipant returns transactions where userID is buyer or seller,
	// most recently updated first.
	ListByParticipant(ctx context.Context, userID string) ([]models.Transaction, error)
	// UpdateStatus is a compare-and-set on the stored status.
	UpdateStatus(ctx context.Context, id string, from, to models.TransactionStatus) (*models.Transaction, error)
}
