package service

import "github.com/honeynil/p2p-marketplace/internal/models"

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

type transition struct {
	role     Role
	from, to models.TransactionStatus
}

// Fulfillment steps. DISPUTED and CANCELLED are reachable from every
// non-terminal status and are handled in CanTransition.
var transitions = map[transition]struct{}{
	{RoleBuyer, models.StatusOfferAccepted, models.StatusPaid}:  {},
	{RoleBuyer, models.StatusShipped, models.StatusDelivered}:   {},
	{RoleBuyer, models.StatusDelivered, models.StatusCompleted}: {},
	{RoleSeller, models.StatusPaid, models.StatusShipped}:       {},
}

// CanTransition reports whether role may move a transaction from one status to another.
func CanTransition(role Role, from, to models.TransactionStatus) bool {
	if from.Terminal() || !from.Valid() {
		return false
	}
	switch {
	case role == RoleBuyer && to == models.StatusDisputed:
		return true
	case role == RoleSeller && to == models.StatusCancelled:
		return true
	}
	_, ok := transitions[transition{role, from, to}]
	return ok
}

// NextStatuses lists the targets role may choose from status from, in
// declaration order of the status enum.
func NextStatuses(role Role, from models.TransactionStatus) []models.TransactionStatus {
	out := []models.TransactionStatus{}
	for _, to := range models.TransactionStatuses {
		if CanTransition(role, from, to) {
			out = append(out, to)
		}
	}
	return out
}

// roleOf returns the caller's role in t, or "" if they are not a party.
func roleOf(t *models.Transaction, userID string) Role {
	switch userID {
	case "":
		return ""
	case t.BuyerID:
		return RoleBuyer
	case t.SellerID:
		return RoleSeller
	}
	return ""
}

// withAllowedStatuses fills the caller-specific next steps of t.
func withAllowedStatuses(t *models.Transaction, callerID string) *models.Transaction {
	if role := roleOf(t, callerID); role != "" {
		t.AllowedStatuses = NextStatuses(role, t.Status)
	}
	return t
}
