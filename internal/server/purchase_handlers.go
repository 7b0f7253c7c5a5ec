package server

import (
	"errors"
	"io"
	"net/http"

	"bookmarket/pkg/domain"
)

type initiatePurchaseRequest struct {
	ListingID string `json:"listingId"`
}

type settleRequest struct {
	SignedTx string `json:"signedTx"`
}

type confirmRequest struct {
	TransactionID string `json:"transactionId"`
}

func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request, account domain.Account) {
	offset, limit := pagination(r)
	items, total, err := s.app.Purchases(account, offset, limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listPage[domain.Purchase]{Items: items, Total: total})
}

func (s *Server) handleInitiatePurchase(w http.ResponseWriter, r *http.Request, account domain.Account) {
	var req initiatePurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ListingID == "" {
		writeError(w, http.StatusBadRequest, "listingId is required")
		return
	}
	purchase, err := s.app.InitiatePurchase(account, req.ListingID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, purchase)
}

func (s *Server) handleGetPurchase(w http.ResponseWriter, r *http.Request, account domain.Account) {
	purchase, err := s.app.GetPurchase(account, r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, purchase)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request, account domain.Account) {
	var req settleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	purchase, err := s.app.SubmitSettlement(r.Context(), account, r.PathValue("id"), req.SignedTx)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "settlement_submit", "success", "purchase_id", purchase.ID, "tx_id", purchase.TxID)
	writeJSON(w, http.StatusOK, purchase)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request, account domain.Account) {
	// The body is optional: a purchase that already carries its tx id
	// needs no transactionId from the caller.
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	purchase, err := s.app.ConfirmPurchase(r.Context(), account, r.PathValue("id"), req.TransactionID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "settlement_confirm", "success",
		"purchase_id", purchase.ID, "status", string(purchase.Status))
	writeJSON(w, http.StatusOK, purchase)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request, account domain.Account) {
	address, err := s.app.AccessArtifact(account, r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"contentAddress": address})
}
