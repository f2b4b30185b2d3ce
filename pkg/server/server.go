package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"pkt.systems/pslog"

	"github.com/swamireddy/ceph-lcm/pkg/lockstore"
)

type Config struct {
	Addr string
	// AuthToken guards the /v1/locks tree when set
	AuthToken string
}

// Server exposes a lock store over HTTP/JSON. Every conditional
// operation is a single request, the store performs it atomically.
type Server struct {
	httpServer *http.Server
	store      lockstore.Store
	logger     pslog.Logger
	authToken  string
}

func New(cfg Config, store lockstore.Store, logger pslog.Logger) *Server {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	s := &Server{
		store:     store,
		logger:    logger,
		authToken: cfg.AuthToken,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/locks/{name}/claim", s.requireAuth(s.handleClaim))
	mux.HandleFunc("POST /v1/locks/{name}/release", s.requireAuth(s.handleRelease))
	mux.HandleFunc("POST /v1/locks/{name}/prolong", s.requireAuth(s.handleProlong))
	mux.HandleFunc("GET /v1/locks/{name}", s.requireAuth(s.handleGet))

	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// Handler returns the route table without the listener, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.logger.Info("server.listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server.stopping")
	return s.httpServer.Shutdown(ctx)
}

type claimRequest struct {
	Owner     string `json:"owner"`
	Now       int64  `json:"now"`
	ExpiredAt int64  `json:"expired_at"`
	Force     bool   `json:"force"`
}

type releaseRequest struct {
	Owner string `json:"owner"`
	Force bool   `json:"force"`
}

type prolongRequest struct {
	Owner     string `json:"owner"`
	ExpiredAt int64  `json:"expired_at"`
	Force     bool   `json:"force"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Owner == "" || req.ExpiredAt <= 0 {
		writeError(w, http.StatusBadRequest, "owner and expired_at are required")
		return
	}

	var (
		ok  bool
		err error
	)
	if req.Force {
		ok = true
		err = s.store.ForceClaim(r.Context(), name, req.Owner, req.ExpiredAt)
	} else {
		ok, err = s.store.TryClaim(r.Context(), name, req.Owner, req.Now, req.ExpiredAt)
	}
	if err != nil {
		s.storeError(w, "claim", name, err)
		return
	}
	s.logger.Debug("server.claim", "lock", name, "owner", req.Owner, "force", req.Force, "ok", ok)
	writeJSON(w, http.StatusOK, okResponse{OK: ok})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Force && req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	var (
		ok  bool
		err error
	)
	if req.Force {
		ok = true
		err = s.store.ForceRelease(r.Context(), name)
	} else {
		ok, err = s.store.TryRelease(r.Context(), name, req.Owner)
	}
	if err != nil {
		s.storeError(w, "release", name, err)
		return
	}
	s.logger.Debug("server.release", "lock", name, "force", req.Force, "ok", ok)
	writeJSON(w, http.StatusOK, okResponse{OK: ok})
}

func (s *Server) handleProlong(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req prolongRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Owner == "" || req.ExpiredAt <= 0 {
		writeError(w, http.StatusBadRequest, "owner and expired_at are required")
		return
	}

	var (
		ok  bool
		err error
	)
	if req.Force {
		ok = true
		err = s.store.ForceProlong(r.Context(), name, req.Owner, req.ExpiredAt)
	} else {
		ok, err = s.store.TryProlong(r.Context(), name, req.Owner, req.ExpiredAt)
	}
	if err != nil {
		s.storeError(w, "prolong", name, err)
		return
	}
	s.logger.Debug("server.prolong", "lock", name, "owner", req.Owner, "force", req.Force, "ok", ok)
	writeJSON(w, http.StatusOK, okResponse{OK: ok})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	rec, err := s.store.Get(r.Context(), name)
	if err != nil {
		s.storeError(w, "get", name, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
