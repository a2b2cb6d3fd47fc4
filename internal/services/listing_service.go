package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/honeynil/p2p-marketplace/internal/infrastructure/redis"
	"github.com/honeynil/p2p-marketplace/internal/models"
	"github.com/honeynil/p2p-marketplace/internal/repository"
	pkgerrors "github.com/honeynil/p2p-marketplace/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ListingService interface {
	Create(ctx context.Context, sellerID string, in models.CreateListingInput) (*models.Listing, error)
	Get(ctx context.Context, id string) (*models.Listing, error)
	List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error)
	ListBySeller(ctx context.Context, sellerID string) ([]models.Listing, error)
	Update(ctx context.Context, id, callerID string, patch models.ListingUpdate) (*models.Listing, error)
	Delete(ctx context.Context, id, callerID string) error
}

type listingService struct {
	listingRepo repository.ListingRepository
	cache       listingCache
}

func NewListingService(listingRepo repository.ListingRepository, redisClient redis.RedisClient) *listingService {
	return &listingService{
		listingRepo: listingRepo,
		cache:       listingCache{redis: redisClient},
	}
}

func spanFail(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return err
}

func validateListing(l *models.Listing) error {
	switch {
	case strings.TrimSpace(l.Title) == "":
		return fmt.Errorf("%w: title is required", pkgerrors.ErrInvalidArgument)
	case strings.TrimSpace(l.Description) == "":
		return fmt.Errorf("%w: description is required", pkgerrors.ErrInvalidArgument)
	case strings.TrimSpace(l.Category) == "":
		return fmt.Errorf("%w: category is required", pkgerrors.ErrInvalidArgument)
	case l.Price < 0:
		return pkgerrors.ErrNegativePrice
	case !l.Condition.Valid():
		return pkgerrors.ErrInvalidCondition
	}
	return nil
}

func (s *listingService) Create(ctx context.Context, sellerID string, in models.CreateListingInput) (*models.Listing, error) {
	tracer := otel.Tracer("listing-service")
	ctx, span := tracer.Start(ctx, "CreateListing")
	defer span.End()

	if sellerID == "" {
		return nil, spanFail(span, pkgerrors.ErrUnauthenticated, "no seller")
	}

	listing := &models.Listing{
		ID:          uuid.NewString(),
		SellerID:    sellerID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Price:       in.Price,
		Category:    strings.TrimSpace(in.Category),
		Condition:   in.Condition,
		Images:      in.Images,
		Status:      models.ListingActive,
	}
	if err := validateListing(listing); err != nil {
		slog.Warn("invalid listing", "seller_id", sellerID, "error", err)
		return nil, spanFail(span, err, "validation failed")
	}

	if err := s.listingRepo.Create(ctx, listing); err != nil {
		slog.Error("failed to create listing", "seller_id", sellerID, "error", err)
		return nil, spanFail(span, err, "listing creation failed")
	}

	span.SetAttributes(attribute.String("listing_id", listing.ID))
	slog.Info("listing created", "listing_id", listing.ID, "seller_id", sellerID, "price", listing.Price)
	return listing, nil
}

func (s *listingService) Get(ctx context.Context, id string) (*models.Listing, error) {
	tracer := otel.Tracer("listing-service")
	ctx, span := tracer.Start(ctx, "GetListing", trace.WithAttributes(attribute.String("listing_id", id)))
	defer span.End()

	if cached, ok := s.cache.get(ctx, id); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached, nil
	}

	listing, err := s.listingRepo.GetByID(ctx, id)
	if err != nil {
		return nil, spanFail(span, err, "listing lookup failed")
	}
	s.cache.put(ctx, listing)
	return listing, nil
}

func (s *listingService) List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	tracer := otel.Tracer("listing-service")
	ctx, span := tracer.Start(ctx, "ListListings")
	defer span.End()

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, spanFail(span, pkgerrors.ErrInvalidStatus, "bad status filter")
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && *filter.MinPrice > *filter.MaxPrice {
		return nil, spanFail(span, fmt.Errorf("%w: min price exceeds max price", pkgerrors.ErrInvalidArgument), "bad price range")
	}

	listings, err := s.listingRepo.List(ctx, filter.Normalize())
	if err != nil {
		slog.Error("failed to list listings", "error", err)
		return nil, spanFail(span, err, "listing query failed")
	}
	return listings, nil
}

// ListBySeller returns every listing of the seller in any status, newest first.
func (s *listingService) ListBySeller(ctx context.Context, sellerID string) ([]models.Listing, error) {
	tracer := otel.Tracer("listing-service")
	ctx, span := tracer.Start(ctx, "ListListingsBySeller", trace.WithAttributes(attribute.String("seller_id", sellerID)))
	defer span.End()

	filter := models.ListingFilter{SellerID: sellerID, Take: models.MaxListingPage, Sort: models.SortNewest}
	all := []models.Listing{}
	for {
		page, err := s.listingRepo.List(ctx, filter)
		if err != nil {
			slog.Error("failed to list seller listings", "seller_id", sellerID, "error", err)
			return nil, spanFail(span, err, "listing query failed")
		}
		all = append(all, page...)
		if len(page) < filter.Take {
			return all, nil
		}
		filter.Cursor = page[len(page)-1].ID
	}
}

func (s *listingService) Update(ctx context.Context, id, callerID string, patch models.ListingUpdate) (*models.Listing, error) {
	tracer := otel.Tracer("listing-service")
	ctx, span := tracer.Start(ctx, "UpdateListing", trace.WithAttributes(attribute.String("listing_id", id)))
	defer span.End()

	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, spanFail(span, pkgerrors.ErrInvalidStatus, "bad status")
		}
		if *patch.Status == models.ListingSold {
			return nil, spanFail(span, pkgerrors.ErrSoldOnlyByAccept, "sold via update")
		}
	}

	listing, err := s.listingRepo.GetByID(ctx, id)
	if err != nil {
		return nil, spanFail(span, err, "listing lookup failed")
	}
	if listing.SellerID != callerID {
		slog.Warn("listing update by non-owner", "listing_id", id, "caller_id", callerID)
		return nil, spanFail(span, pkgerrors.ErrNotListingOwner, "not owner")
	}
	if listing.Status == models.ListingSold {
		return nil, spanFail(span, pkgerrors.ErrListingSold, "listing sold")
	}

	patch.Apply(listing)
	if err := validateListing(listing); err != nil {
		return nil, spanFail(span, err, "validation failed")
	}

	if err := s.listingRepo.Update(ctx, listing); err != nil {
		slog.Error("failed to update listing", "listing_id", id, "error", err)
		return nil, spanFail(span, err, "listing update failed")
	}
	s.cache.invalidate(ctx, id)

	slog.Info("listing updated", "listing_id", id, "status", listing.Status)
	return listing, nil
}

func (s *listingService) Delete(ctx context.Context, id, callerID string) error {
	tracer := otel.Tracer("listing-service")
	ctx, span := tracer.Start(ctx, "DeleteListing", trace.WithAttributes(attribute.String("listing_id", id)))
	defer span.End()

	listing, err := s.listingRepo.GetByID(ctx, id)
	if err != nil {
		return spanFail(span, err, "listing lookup failed")
	}
	if listing.SellerID != callerID {
		return spanFail(span, pkgerrors.ErrNotListingOwner, "not owner")
	}
	if listing.Status == models.ListingSold {
		return spanFail(span, pkgerrors.ErrListingSold, "listing sold")
	}

	if err := s.listingRepo.Delete(ctx, id); err != nil {
		slog.Error("failed to delete listing", "listing_id", id, "error", err)
		return spanFail(span, err, "listing delete failed")
	}
	s.cache.invalidate(ctx, id)

	slog.Info("listing deleted", "listing_id", id, "seller_id", callerID)
	return nil
}
