package server

import (
	"net/http"

	"bookmarket/pkg/domain"
)

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type challengeRequest struct {
	Address string `json:"address"`
}

type walletVerifyRequest struct {
	Address   string `json:"address"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

type authResponse struct {
	Token   string         `json:"token"`
	Account domain.Account `json:"account"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" || req.Role == "" {
		writeError(w, http.StatusBadRequest, "username, password and role are required")
		return
	}
	account, err := s.app.Register(req.Username, req.Password, req.Role)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "register", "success", "account_id", account.ID, "role", string(account.Role))
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account, token, err := s.app.Login(req.Username, req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "login", "success", "account_id", account.ID)
	writeJSON(w, http.StatusOK, authResponse{Token: token, Account: account})
}

func (s *Server) handleWalletChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	message, nonce, err := s.app.WalletChallenge(r.Context(), req.Address)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": message, "nonce": nonce})
}

func (s *Server) handleWalletVerify(w http.ResponseWriter, r *http.Request) {
	var req walletVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account, token, err := s.app.WalletLogin(r.Context(), req.Address, req.Nonce, req.Signature)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "wallet_login", "success", "account_id", account.ID)
	writeJSON(w, http.StatusOK, authResponse{Token: token, Account: account})
}
