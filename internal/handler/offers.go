package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/honeynil/p2p-marketplace/internal/models"
)

func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req models.CreateOfferInput
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	offer, err := h.offers.Create(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, offer)
}

func (h *Handler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.offers.Accept(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) DeclineOffer(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	offer, err := h.offers.Decline(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offer)
}

func (h *Handler) WithdrawOffer(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	offer, err := h.offers.Withdraw(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offer)
}

func (h *Handler) ListListingOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.offers.ListByListing(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offers)
}

func (h *Handler) ListMyOffers(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	offers, err := h.offers.ListByBuyer(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offers)
}

func (h *Handler) ListIncomingOffers(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	offers, err := h.offers.ListBySeller(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offers)
}
