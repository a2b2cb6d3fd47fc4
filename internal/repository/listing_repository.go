package repository

import (
	"context"

	"github.com/honeynil/p2p-marketplace/internal/models"
)

type ListingRepository interface {
	Create(ctx context.Context, listing *models.Listing) error
	GetByID(ctx context.Context, id string) (*models.Listing, error)
	List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error)
	Update(ctx context.Context, listing *models.Listing) error
	Delete(ctx context.Context, id string) error
}
