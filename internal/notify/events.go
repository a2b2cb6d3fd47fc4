package notify

import (
	"fmt"
	"time"

	"github.com/honeynil/p2p-marketplace/internal/models"
)

var now = func() time.Time { return time.Now().UTC() }

// NewOffer is sent to the seller when a buyer bids on their listing.
func NewOffer(listing *models.Listing, offer *models.Offer) models.Notification {
	return models.Notification{
		Type:      models.NotificationNewOffer,
		Message:   fmt.Sprintf("New offer of %s for %s", models.FormatAmount(offer.Amount), listing.Title),
		ListingID: listing.ID,
		OfferID:   offer.ID,
		Amount:    offer.Amount,
		CreatedAt: now(),
	}
}

// OfferAccepted is sent to the buyer whose offer won.
func OfferAccepted(listing *models.Listing, transactionID string) models.Notification {
	return models.Notification{
		Type:          models.NotificationOfferAccepted,
		Message:       fmt.Sprintf("Your offer for %s was accepted!", listing.Title),
		ListingID:     listing.ID,
		TransactionID: transactionID,
		CreatedAt:     now(),
	}
}

func OfferDeclined(listing *models.Listing, offer *models.Offer) models.Notification {
	return models.Notification{
		Type:      models.NotificationOfferDeclined,
		Message:   fmt.Sprintf("Your offer for %s was declined.", listing.Title),
		ListingID: listing.ID,
		OfferID:   offer.ID,
		CreatedAt: now(),
	}
}

func OfferWithdrawn(listing *models.Listing, offer *models.Offer) models.Notification {
	return models.Notification{
		Type:      models.NotificationOfferWithdrawn,
		Message:   fmt.Sprintf("Offer for %s was withdrawn by the buyer.", listing.Title),
		ListingID: listing.ID,
		OfferID:   offer.ID,
		CreatedAt: now(),
	}
}

// TransactionUpdate is sent to the counterparty of whoever moved the transaction.
func TransactionUpdate(tx *models.Transaction, status models.TransactionStatus) models.Notification {
	return models.Notification{
		Type:          models.NotificationTransactionUpdate,
		Message:       fmt.Sprintf("Transaction for %s is now %s", tx.ListingTitle(), status),
		ListingID:     tx.ListingID(),
		TransactionID: tx.ID,
		Status:        status,
		CreatedAt:     now(),
	}
}
