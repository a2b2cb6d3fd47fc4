package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/honeynil/p2p-marketplace/internal/infrastructure/observability"
	"github.com/honeynil/p2p-marketplace/internal/infrastructure/redis"
	"github.com/honeynil/p2p-marketplace/internal/models"
	"github.com/honeynil/p2p-marketplace/internal/notify"
	"github.com/honeynil/p2p-marketplace/internal/repository"
	pkgerrors "github.com/honeynil/p2p-marketplace/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type OfferService interface {
	Create(ctx context.Context, buyerID string, in models.CreateOfferInput) (*models.Offer, error)
	Accept(ctx context.Context, offerID, callerID string) (*models.AcceptResult, error)
	Decline(ctx context.Context, offerID, callerID string) (*models.Offer, error)
	Withdraw(ctx context.Context, offerID, callerID string) (*models.Offer, error)
	ListByListing(ctx context.Context, listingID string) ([]models.Offer, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]models.Offer, error)
	ListBySeller(ctx context.Context, sellerID string) ([]models.Offer, error)
}

type offerService struct {
	listingRepo repository.ListingRepository
	offerRepo   repository.OfferRepository
	cache       listingCache
	notifier    notify.Notifier
}

func NewOfferService(
	listingRepo repository.ListingRepository,
	offerRepo repository.OfferRepository,
	redisClient redis.RedisClient,
	notifier notify.Notifier,
) *offerService {
	return &offerService{
		listingRepo: listingRepo,
		offerRepo:   offerRepo,
		cache:       listingCache{redis: redisClient},
		notifier:    notifier,
	}
}

func recordOfferAction(action string, err error) {
	result := "ok"
	if err != nil {
		result = pkgerrors.Code(err)
	}
	observability.OfferActions.WithLabelValues(action, result).Inc()
}

func (s *offerService) Create(ctx context.Context, buyerID string, in models.CreateOfferInput) (_ *models.Offer, err error) {
	tracer := otel.Tracer("offer-service")
	ctx, span := tracer.Start(ctx, "CreateOffer", trace.WithAttributes(attribute.String("listing_id", in.ListingID)))
	defer span.End()
	defer func() { recordOfferAction("create", err) }()

	if in.ListingID == "" {
		return nil, spanFail(span, pkgerrors.ErrMissingListingID, "missing listing id")
	}
	if in.Amount < 0 {
		return nil, spanFail(span, pkgerrors.ErrNegativeAmount, "negative amount")
	}

	listing, err := s.listingRepo.GetByID(ctx, in.ListingID)
	if err != nil {
		return nil, spanFail(span, err, "listing lookup failed")
	}
	if listing.Status != models.ListingActive {
		slog.Warn("offer on inactive listing", "listing_id", listing.ID, "status", listing.Status, "buyer_id", buyerID)
		return nil, spanFail(span, pkgerrors.ErrListingNotActive, "listing not active")
	}
	if listing.SellerID == buyerID {
		return nil, spanFail(span, pkgerrors.ErrOwnListing, "own listing")
	}

	offer := &models.Offer{
		ID:        uuid.NewString(),
		ListingID: listing.ID,
		BuyerID:   buyerID,
		Amount:    in.Amount,
		Message:   in.Message,
		Status:    models.OfferPending,
	}
	if err = s.offerRepo.Create(ctx, offer); err != nil {
		slog.Error("failed to create offer", "listing_id", listing.ID, "buyer_id", buyerID, "error", err)
		return nil, spanFail(span, err, "offer creation failed")
	}
	offer.Listing = listing

	deliver(ctx, s.notifier, listing.SellerID, notify.NewOffer(listing, offer))

	slog.Info("offer created",
		"offer_id", offer.ID,
		"listing_id", listing.ID,
		"buyer_id", buyerID,
		"amount", offer.Amount)
	return offer, nil
}

// Accept sells the listing to the offer's buyer. Competing pending offers are
// declined in the same unit; their buyers are not notified.
func (s *offerService) Accept(ctx context.Context, offerID, callerID string) (_ *models.AcceptResult, err error) {
	tracer := otel.Tracer("offer-service")
	ctx, span := tracer.Start(ctx, "AcceptOffer", trace.WithAttributes(attribute.String("offer_id", offerID)))
	defer span.End()
	defer func() { recordOfferAction("accept", err) }()

	offer, err := s.offerRepo.GetByID(ctx, offerID)
	if err != nil {
		return nil, spanFail(span, err, "offer lookup failed")
	}
	listing := offer.Listing
	if listing == nil || listing.SellerID != callerID {
		slog.Warn("offer accept by non-owner", "offer_id", offerID, "caller_id", callerID)
		return nil, spanFail(span, pkgerrors.ErrNotListingOwner, "not owner")
	}
	if offer.Status != models.OfferPending {
		return nil, spanFail(span, pkgerrors.ErrOfferNotPending, "offer not pending")
	}

	txn := &models.Transaction{
		ID:       uuid.NewString(),
		SellerID: callerID,
	}
	outcome, err := s.offerRepo.Accept(ctx, offerID, txn)
	if err != nil {
		observability.WithContext(ctx).Warn("offer acceptance failed", "offer_id", offerID, "error", err)
		return nil, spanFail(span, err, "accept failed")
	}
	s.cache.invalidate(ctx, listing.ID)

	listing.Status = models.ListingSold
	accepted := *outcome.Offer
	accepted.Listing = listing
	accepted.Buyer = offer.Buyer

	deliver(ctx, s.notifier, accepted.BuyerID, notify.OfferAccepted(listing, outcome.Transaction.ID))

	span.SetAttributes(attribute.String("transaction_id", outcome.Transaction.ID))
	slog.Info("offer accepted",
		"offer_id", offerID,
		"listing_id", listing.ID,
		"transaction_id", outcome.Transaction.ID,
		"declined_offers", len(outcome.DeclinedOfferIDs))
	return &models.AcceptResult{Offer: accepted, TransactionID: outcome.Transaction.ID}, nil
}

func (s *offerService) Decline(ctx context.Context, offerID, callerID string) (_ *models.Offer, err error) {
	tracer := otel.Tracer("offer-service")
	ctx, span := tracer.Start(ctx, "DeclineOffer", trace.WithAttributes(attribute.String("offer_id", offerID)))
	defer span.End()
	defer func() { recordOfferAction("decline", err) }()

	offer, err := s.offerRepo.GetByID(ctx, offerID)
	if err != nil {
		return nil, spanFail(span, err, "offer lookup failed")
	}
	listing := offer.Listing
	if listing == nil || listing.SellerID != callerID {
		return nil, spanFail(span, pkgerrors.ErrNotListingOwner, "not owner")
	}
	if offer.Status != models.OfferPending {
		return nil, spanFail(span, pkgerrors.ErrOfferNotPending, "offer not pending")
	}

	declined, err := s.offerRepo.UpdateStatus(ctx, offerID, models.OfferPending, models.OfferDeclined)
	if err != nil {
		return nil, spanFail(span, err, "decline failed")
	}
	declined.Listing = listing
	declined.Buyer = offer.Buyer

	deliver(ctx, s.notifier, declined.BuyerID, notify.OfferDeclined(listing, declined))

	slog.Info("offer declined", "offer_id", offerID, "listing_id", listing.ID)
	return declined, nil
}

func (s *offerService) Withdraw(ctx context.Context, offerID, callerID string) (_ *models.Offer, err error) {
	tracer := otel.Tracer("offer-service")
	ctx, span := tracer.Start(ctx, "WithdrawOffer", trace.WithAttributes(attribute.String("offer_id", offerID)))
	defer span.End()
	defer func() { recordOfferAction("withdraw", err) }()

	offer, err := s.offerRepo.GetByID(ctx, offerID)
	if err != nil {
		return nil, spanFail(span, err, "offer lookup failed")
	}
	if offer.BuyerID != callerID {
		return nil, spanFail(span, pkgerrors.ErrNotOfferOwner, "not offer owner")
	}
	if offer.Status != models.OfferPending {
		return nil, spanFail(span, pkgerrors.ErrOfferNotPending, "offer not pending")
	}

	withdrawn, err := s.offerRepo.UpdateStatus(ctx, offerID, models.OfferPending, models.OfferWithdrawn)
	if err != nil {
		return nil, spanFail(span, err, "withdraw failed")
	}
	withdrawn.Listing = offer.Listing
	withdrawn.Buyer = offer.Buyer

	if offer.Listing != nil {
		deliver(ctx, s.notifier, offer.Listing.SellerID, notify.OfferWithdrawn(offer.Listing, withdrawn))
	}

	slog.Info("offer withdrawn", "offer_id", offerID, "listing_id", offer.ListingID)
	return withdrawn, nil
}

func (s *offerService) ListByListing(ctx context.Context, listingID string) ([]models.Offer, error) {
	tracer := otel.Tracer("offer-service")
	ctx, span := tracer.Start(ctx, "ListOffersByListing", trace.WithAttributes(attribute.String("listing_id", listingID)))
	defer span.End()

	if _, err := s.listingRepo.GetByID(ctx, listingID); err != nil {
		return nil, spanFail(span, err, "listing lookup failed")
	}
	offers, err := s.offerRepo.ListByListing(ctx, listingID)
	if err != nil {
		return nil, spanFail(span, err, "offer query failed")
	}
	return offers, nil
}

func (s *offerService) ListByBuyer(ctx context.Context, buyerID string) ([]models.Offer, error) {
	tracer := otel.Tracer("offer-service")
	ctx, span := tracer.Start(ctx, "ListOffersByBuyer")
	defer span.End()

	offers, err := s.offerRepo.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, spanFail(span, err, "offer query failed")
	}
	return offers, nil
}

func (s *offerService) ListBySeller(ctx context.Context, sellerID string) ([]models.Offer, error) {
	tracer := otel.Tracer("offer-service")
	ctx, span := tracer.Start(ctx, "ListOffersBySeller")
	defer span.End()

	offers, err := s.offerRepo.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, spanFail(span, err, "offer query failed")
	}
	return offers, nil
}
