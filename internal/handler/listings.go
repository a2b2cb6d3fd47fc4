package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/honeynil/p2p-marketplace/internal/models"
	pkgerrors "github.com/honeynil/p2p-marketplace/pkg/errors"
)

// listingFilter reads the query string of GET /listings. The public catalogue
// shows ACTIVE listings unless status=ALL or another status is asked for.
func listingFilter(q url.Values) (models.ListingFilter, error) {
	f := models.ListingFilter{
		Status:          models.ListingActive,
		SellerID:        q.Get("sellerId"),
		ExcludeSellerID: q.Get("excludeSellerId"),
		Category:        q.Get("category"),
		Search:          strings.TrimSpace(q.Get("search")),
		Cursor:          q.Get("cursor"),
		Sort:            models.ListingSort(q.Get("sort")),
	}
	switch s := strings.ToUpper(q.Get("status")); s {
	case "":
	case "ALL":
		f.Status = ""
	default:
		f.Status = models.ListingStatus(s)
	}

	var err error
	if f.MinPrice, err = optionalInt(q, "minPrice"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = optionalInt(q, "maxPrice"); err != nil {
		return f, err
	}
	if take := q.Get("take"); take != "" {
		n, err := strconv.Atoi(take)
		if err != nil {
			return f, fmt.Errorf("%w: take must be a number", pkgerrors.ErrInvalidArgument)
		}
		f.Take = n
	}
	return f, nil
}

func optionalInt(q url.Values, key string) (*int64, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer amount in minor units", pkgerrors.ErrInvalidArgument, key)
	}
	return &n, nil
}

type listingPage struct {
	Items      []models.Listing `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

func (h *Handler) ListListings(w http.ResponseWriter, r *http.Request) {
	filter, err := listingFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	listings, err := h.listings.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	page := listingPage{Items: listings}
	if n := len(listings); n > 0 && n == filter.Normalize().Take {
		page.NextCursor = listings[n-1].ID
	}
	h.writeJSON(w, http.StatusOK, page)
}

func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	listing, err := h.listings.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listing)
}

func (h *Handler) ListUserListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.listings.ListBySeller(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listings)
}

func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req models.CreateListingInput
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	listing, err := h.listings.Create(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, listing)
}

func (h *Handler) UpdateListing(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var patch models.ListingUpdate
	if err := decode(r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}

	listing, err := h.listings.Update(r.Context(), mux.Vars(r)["id"], userID, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listing)
}

func (h *Handler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.listings.Delete(r.Context(), mux.Vars(r)["id"], userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
