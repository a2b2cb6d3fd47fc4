package repository

import (
	"context"

	"github.com/honeynil/p2p-marketplace/internal/models"
)

type OfferRepository interface {
	Create(ctx context.Context, offer *models.Offer) error
	// GetByID returns the offer with its Listing loaded.
	GetByID(ctx context.Context, id string) (*models.Offer, error)
	// UpdateStatus moves the offer from one status to another and fails with
	// ErrOfferNotPending-class errors when the stored status is not from.
	UpdateStatus(ctx context.Context, id string, from, to models.OfferStatus) (*models.Offer, error)
	// Accept runs the acceptance unit: offer ACCEPTED, listing SOLD, sibling
	// pending offers DECLINED and tx inserted, all or nothing.
	Accept(ctx context.Context, offerID string, tx *models.Transaction) (*models.AcceptOutcome, error)
	ListByListing(ctx context.Context, listingID string) ([]models.Offer, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]models.Offer, error)
	ListBySeller(ctx context.Context, sellerID string) ([]models.Offer, error)
}
