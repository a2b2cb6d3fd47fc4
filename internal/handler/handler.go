package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/honeynil/p2p-marketplace/internal/infrastructure/auth"
	"github.com/honeynil/p2p-marketplace/internal/infrastructure/redis"
	"github.com/honeynil/p2p-marketplace/internal/models"
	service "github.com/honeynil/p2p-marketplace/internal/services"
	pkgerrors "github.com/honeynil/p2p-marketplace/pkg/errors"
)

// NotificationReader serves a user's recent notifications.
type NotificationReader interface {
	Recent(ctx context.Context, userID string, limit int) ([]models.Notification, error)
}

type Handler struct {
	listings     service.ListingService
	offers       service.OfferService
	transactions service.TransactionService
	inbox        NotificationReader
	redis        redis.RedisClient
}

func NewHandler(
	listings service.ListingService,
	offers service.OfferService,
	transactions service.TransactionService,
	inbox NotificationReader,
	redisClient redis.RedisClient,
) *Handler {
	return &Handler{
		listings:     listings,
		offers:       offers,
		transactions: transactions,
		inbox:        inbox,
		redis:        redisClient,
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func statusFor(code string) int {
	switch code {
	case pkgerrors.CodeNotFound:
		return http.StatusNotFound
	case pkgerrors.CodeForbidden:
		return http.StatusForbidden
	case pkgerrors.CodeInvalidState:
		return http.StatusConflict
	case pkgerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case pkgerrors.CodeInvalidStateTransition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := pkgerrors.Code(err)
	status := statusFor(code)
	msg := err.Error()
	switch {
	case errors.Is(err, pkgerrors.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case status == http.StatusInternalServerError:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}

	h.writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrInvalidInput, err)
	}
	return nil
}

func callerID(r *http.Request) (string, error) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return "", pkgerrors.ErrUnauthenticated
	}
	return id, nil
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/listings", h.ListListings).Methods(http.MethodGet)
	r.HandleFunc("/listings/{id}", h.GetListing).Methods(http.MethodGet)
	r.HandleFunc("/listings/{id}/offers", h.ListListingOffers).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/listings", h.ListUserListings).Methods(http.MethodGet)
}

// RegisterProtectedRoutes mounts the routes that need a caller; protect is
// normally auth.AuthMiddleware.
func (h *Handler) RegisterProtectedRoutes(r *mux.Router, protect func(http.Handler) http.Handler) {
	handle := func(path string, fn http.HandlerFunc, method string) {
		r.Handle(path, protect(fn)).Methods(method)
	}

	handle("/listings", h.CreateListing, http.MethodPost)
	handle("/listings/{id}", h.UpdateListing, http.MethodPatch)
	handle("/listings/{id}", h.DeleteListing, http.MethodDelete)

	handle("/offers", h.CreateOffer, http.MethodPost)
	handle("/offers/mine", h.ListMyOffers, http.MethodGet)
	handle("/offers/incoming", h.ListIncomingOffers, http.MethodGet)
	handle("/offers/{id}/accept", h.AcceptOffer, http.MethodPatch)
	handle("/offers/{id}/decline", h.DeclineOffer, http.MethodPatch)
	handle("/offers/{id}/withdraw", h.WithdrawOffer, http.MethodPatch)

	// /transactions/mine must be registered before /transactions/{id}.
	handle("/transactions/mine", h.ListMyTransactions, http.MethodGet)
	handle("/transactions/{id}", h.GetTransaction, http.MethodGet)
	handle("/transactions/{id}/status", h.UpdateTransactionStatus, http.MethodPatch)

	handle("/notifications", h.ListNotifications, http.MethodGet)
	handle("/logout", h.Logout, http.MethodPost)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, pkgerrors.ErrUnauthenticated)
		return
	}
	if err := auth.Revoke(r.Context(), h.redis, claims); err != nil {
		h.writeError(w, r, fmt.Errorf("failed to revoke token: %w", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
