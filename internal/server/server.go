package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"bookmarket/internal/app"
	"bookmarket/internal/ratelimit"
	"bookmarket/internal/util"
	"bookmarket/pkg/auth"
	"bookmarket/pkg/domain"
	"bookmarket/pkg/session"
	"bookmarket/pkg/wallet"
)

const defaultMaxUploadBytes = 50 * 1024 * 1024

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	AuthLimiter    *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
	CORSOrigin     string
	MaxUploadBytes int64
}

// Server exposes the marketplace HTTP API.
type Server struct {
	app            *app.App
	authLimiter    *ratelimit.FixedWindowLimiter
	trusted        *util.TrustedProxies
	corsOrigin     string
	maxUploadBytes int64
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		app:            cfg.App,
		authLimiter:    cfg.AuthLimiter,
		trusted:        cfg.TrustedProxies,
		corsOrigin:     cfg.CORSOrigin,
		maxUploadBytes: maxUploadBytes,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the shared middleware
// stack.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithRequestLog(s.trusted,
			util.WithSecurityHeaders(
				util.WithCORS(s.corsOrigin, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.Handle("POST /api/auth/register", s.rateLimited(s.handleRegister))
	s.mux.Handle("POST /api/auth/login", s.rateLimited(s.handleLogin))
	s.mux.Handle("POST /api/auth/wallet/challenge", s.rateLimited(s.handleWalletChallenge))
	s.mux.Handle("POST /api/auth/wallet/verify", s.rateLimited(s.handleWalletVerify))

	s.mux.HandleFunc("GET /api/listings", s.handleListings)
	s.mux.HandleFunc("GET /api/listings/{id}", s.handleGetListing)
	s.mux.Handle("POST /api/listings", s.authenticated(s.handleCreateListing))
	s.mux.Handle("PATCH /api/listings/{id}", s.authenticated(s.handleUpdateListing))
	s.mux.Handle("DELETE /api/listings/{id}", s.authenticated(s.handleDeleteListing))
	s.mux.Handle("POST /api/listings/{id}/resell", s.authenticated(s.handleResell))

	s.mux.Handle("GET /api/purchases", s.authenticated(s.handlePurchases))
	s.mux.Handle("POST /api/purchases", s.authenticated(s.handleInitiatePurchase))
	s.mux.Handle("GET /api/purchases/{id}", s.authenticated(s.handleGetPurchase))
	s.mux.Handle("POST /api/purchases/{id}/settle", s.authenticated(s.handleSettle))
	s.mux.Handle("POST /api/purchases/{id}/confirm", s.authenticated(s.handleConfirm))
	s.mux.Handle("GET /api/purchases/{id}/artifact", s.authenticated(s.handleArtifact))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.Account)

// authenticated validates the bearer token and loads the authoritative
// account record; the token's role claim is never trusted on its own.
func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "auth", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		accountID, _, err := s.app.Sessions().Validate(token)
		if err != nil {
			outcome := "invalid_token"
			if errors.Is(err, session.ErrExpired) {
				outcome = "expired_token"
			}
			s.audit(r, "auth", outcome)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		account, ok := s.app.AccountByID(accountID)
		if !ok {
			s.audit(r, "auth", "unknown_account")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, account)
	})
}

func (s *Server) rateLimited(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authLimiter != nil {
			key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
			if !s.authLimiter.Allow(key) {
				s.audit(r, "rate_limit", "blocked")
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
		}
		next(w, r)
	})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
		"request_id", util.RequestID(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

// writeAppError maps application sentinels onto HTTP statuses. Upstream
// failures are logged in detail but reported generically.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidRole),
		errors.Is(err, app.ErrInvalidPrice),
		errors.Is(err, app.ErrTitleRequired),
		errors.Is(err, app.ErrSignedTxRequired),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, wallet.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials),
		errors.Is(err, app.ErrInvalidNonce),
		errors.Is(err, wallet.ErrInvalidSignature):
		s.audit(r, "login", "denied", "reason", err.Error())
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrWrongRole),
		errors.Is(err, app.ErrNotOwner):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrListingNotFound),
		errors.Is(err, app.ErrPurchaseNotFound),
		errors.Is(err, app.ErrSettlementNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrUsernameTaken),
		errors.Is(err, app.ErrAlreadyListed),
		errors.Is(err, app.ErrListingUnavailable),
		errors.Is(err, app.ErrAlreadyFinalized),
		errors.Is(err, app.ErrAlreadySubmitted),
		errors.Is(err, app.ErrNotCompleted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrSettlementPending):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "settlement still pending, retry later")
	case errors.Is(err, app.ErrContentUpload),
		errors.Is(err, app.ErrSettlementSubmission),
		errors.Is(err, app.ErrSettlementUnavailable):
		util.LoggerFromContext(r.Context()).Error("upstream failure", "error", err)
		writeError(w, http.StatusBadGateway, "upstream service failure, try again later")
	default:
		util.LoggerFromContext(r.Context()).Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

func pagination(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return offset, limit
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
