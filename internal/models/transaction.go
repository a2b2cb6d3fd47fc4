package models

import "time"

type TransactionStatus string

const (
	StatusOfferAccepted  TransactionStatus = "OFFER_ACCEPTED"
	StatusPaymentPending TransactionStatus = "PAYMENT_PENDING"
	StatusPaid           TransactionStatus = "PAID"
	StatusShipped        TransactionStatus = "SHIPPED"
	StatusDelivered      TransactionStatus = "DELIVERED"
	StatusCompleted      TransactionStatus = "COMPLETED"
	StatusDisputed       TransactionStatus = "DISPUTED"
	StatusCancelled      TransactionStatus = "CANCELLED"
)

var TransactionStatuses = []TransactionStatus{
	StatusOfferAccepted,
	StatusPaymentPending,
	StatusPaid,
	StatusShipped,
	StatusDelivered,
	StatusCompleted,
	StatusDisputed,
	StatusCancelled,
}

func (s TransactionStatus) Valid() bool {
	for _, v := range TransactionStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether the status accepts no further transitions.
// DISPUTED is resolved outside the service and counts as terminal here.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusDisputed
}

// Transaction tracks fulfillment of an accepted offer.
type Transaction struct {
	ID        string            `json:"id"`
	OfferID   string            `json:"offer_id"`
	BuyerID   string            `json:"buyer_id"`
	SellerID  string            `json:"seller_id"`
	Status    TransactionStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`

	Offer  *Offer       `json:"offer,omitempty"`
	Buyer  *UserSummary `json:"buyer,omitempty"`
	Seller *UserSummary `json:"seller,omitempty"`

	// AllowedStatuses are the targets the requesting party may move to next.
	AllowedStatuses []TransactionStatus `json:"allowed_statuses,omitempty"`
}

// ListingTitle returns the title of the listing behind the transaction, if loaded.
func (t *Transaction) ListingTitle() string {
	if t.Offer == nil || t.Offer.Listing == nil {
		return ""
	}
	return t.Offer.Listing.Title
}

// ListingID returns the id of the listing behind the transaction, if loaded.
func (t *Transaction) ListingID() string {
	if t.Offer == nil {
		return ""
	}
	return t.Offer.ListingID
}
