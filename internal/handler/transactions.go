package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/honeynil/p2p-marketplace/internal/models"
)

func (h *Handler) ListMyTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	transactions, err := h.transactions.ListMine(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transactions)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	tx, err := h.transactions.Get(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) UpdateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req struct {
		Status models.TransactionStatus `json:"status"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	tx, err := h.transactions.UpdateStatus(r.Context(), mux.Vars(r)["id"], userID, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	notifications, err := h.inbox.Recent(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, notifications)
}
