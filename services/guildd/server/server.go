package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coreerrors "guildhall/core/errors"
	"guildhall/crypto"
	"guildhall/native/adapters"
	"guildhall/services/guildd/archive"
	"guildhall/services/guildd/middleware"
	"guildhall/services/guildd/node"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Node      *node.Node
	Auth      middleware.AuthConfig
	RateLimit middleware.RateLimit
	Logger    *slog.Logger
}

// Server exposes one organization over HTTP.
type Server struct {
	node   *node.Node
	logger *slog.Logger
	router http.Handler
}

// New constructs the router with caller resolution, rate limiting and
// request metrics.
func New(cfg Config) (*Server, error) {
	if cfg.Node == nil || cfg.Node.Org == nil {
		return nil, errors.New("server: node required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{node: cfg.Node, logger: logger}
	s.router = s.buildRouter(cfg)
	return s, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter(cfg Config) http.Handler {
	authn := middleware.NewAuthenticator(cfg.Auth, s.logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimit, s.logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Observe(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(authn.Middleware)
		api.Use(limiter.Middleware("v1"))

		api.Get("/members", s.handleMembers)
		api.Get("/members/{account}/loot", s.handleLoot)
		api.Get("/balances/{account}", s.handleBalance)
		api.Get("/treasury/{asset}", s.handleTotals)
		api.Get("/proposals", s.handleListProposals)
		api.Get("/proposals/{id}", s.handleGetProposal)
		api.Get("/events", s.handleEvents)
		api.Get("/tokens/{token}/balances/{account}", s.handleTokenBalance)

		api.Group(func(caller chi.Router) {
			caller.Use(middleware.RequireCaller)
			caller.Post("/onboard", s.handleOnboard)
			caller.Post("/proposals/{id}/sponsor", s.handleSponsor)
			caller.Post("/proposals/{id}/votes", s.handleVote)
			caller.Post("/proposals/{id}/process", s.handleProcess)
			caller.Post("/tokens/{token}/approve", s.handleApprove)
			caller.Put("/pauses/{module}", s.handlePause)
		})
	})
	return r
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusFor(code string) int {
	switch code {
	case coreerrors.CodeInvalidAmount, coreerrors.CodeOverflow:
		return http.StatusBadRequest
	case coreerrors.CodeTransferNotAuthorized, coreerrors.CodeNotMember:
		return http.StatusForbidden
	case coreerrors.CodeNotFound:
		return http.StatusNotFound
	case coreerrors.CodeLimitExceeded, coreerrors.CodeInvalidState, coreerrors.CodeVotingNotConcluded,
		coreerrors.CodeInsufficientBalance, coreerrors.CodeAlreadyVoted:
		return http.StatusConflict
	case coreerrors.CodeModulePaused:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	code := coreerrors.Code(err)
	status := statusFor(code)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		message = "internal error"
	}
	writeError(w, status, code, message)
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func parseAmount(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	return uint256.FromDecimal(raw)
}

func pathAddress(r *http.Request, name string) (crypto.Address, error) {
	return crypto.DecodeAddress(chi.URLParam(r, name))
}

func pathID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
}

func callerOf(ctx context.Context) adapters.Call {
	caller, _ := middleware.CallerFrom(ctx)
	return adapters.Call{Caller: caller}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	root, err := s.node.Org.Root()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"org":       s.node.Org.Address().String(),
		"stateRoot": root.Hex(),
	})
}

func (s *Server) archive() *archive.Archive { return s.node.Archive }
