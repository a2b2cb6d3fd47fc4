package models

import (
	"fmt"
	"time"
)

type NotificationType string

const (
	NotificationNewOffer          NotificationType = "NEW_OFFER"
	NotificationOfferAccepted     NotificationType = "OFFER_ACCEPTED"
	NotificationOfferDeclined     NotificationType = "OFFER_DECLINED"
	NotificationOfferWithdrawn    NotificationType = "OFFER_WITHDRAWN"
	NotificationTransactionUpdate NotificationType = "TRANSACTION_UPDATE"
)

type Notification struct {
	Type          NotificationType  `json:"type"`
	Message       string            `json:"message"`
	ListingID     string            `json:"listing_id"`
	OfferID       string            `json:"offer_id,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Status        TransactionStatus `json:"status,omitempty"`
	Amount        int64             `json:"amount,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// FormatAmount renders minor units as a dollar string, e.g. 95000 -> "$950.00".
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s$%d.%02d", sign, minor/100, minor%100)
}
