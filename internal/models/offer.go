package models

import "time"

type OfferStatus string

const (
	OfferPending   OfferStatus = "PENDING"
	OfferAccepted  OfferStatus = "ACCEPTED"
	OfferDeclined  OfferStatus = "DECLINED"
	OfferWithdrawn OfferStatus = "WITHDRAWN"
)

// Terminal reports whether no further status change is allowed.
func (s OfferStatus) Terminal() bool {
	return s == OfferAccepted || s == OfferDeclined || s == OfferWithdrawn
}

// Offer is a buyer's bid on a listing. Amount is in minor currency units.
type Offer struct {
	ID        string      `json:"id"`
	ListingID string      `json:"listing_id"`
	BuyerID   string      `json:"buyer_id"`
	Amount    int64       `json:"amount"`
	Message   string      `json:"message,omitempty"`
	Status    OfferStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`

	Listing *Listing     `json:"listing,omitempty"`
	Buyer   *UserSummary `json:"buyer,omitempty"`
}

type CreateOfferInput struct {
	ListingID string `json:"listing_id"`
	Amount    int64  `json:"amount"`
	Message   string `json:"message"`
}

// AcceptOutcome is everything the atomic accept unit wrote.
type AcceptOutcome struct {
	Offer            *Offer
	Transaction      *Transaction
	DeclinedOfferIDs []string
}

// AcceptResult is returned to the seller who accepted an offer.
type AcceptResult struct {
	Offer
	TransactionID string `json:"transaction_id"`
}
