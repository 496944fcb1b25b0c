// Package api exposes the management surface over HTTP: user signup and
// login, platform account management, and training-data ingestion. The
// engagement engine itself runs out of band; this API only feeds it.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"instaflow/internal/store"
	"instaflow/internal/training"
)

// Server routes API requests. It implements http.Handler.
type Server struct {
	store    *store.Store
	training *training.Service
	secret   []byte
	log      *zap.Logger
	router   *mux.Router
}

// NewServer wires all routes.
func NewServer(st *store.Store, tr *training.Service, jwtSecret string, log *zap.Logger) *Server {
	s := &Server{
		store:    st,
		training: tr,
		secret:   []byte(jwtSecret),
		log:      log,
		router:   mux.NewRouter(),
	}

	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/auth/register", s.handleRegister).Methods(http.MethodPost)
	s.router.HandleFunc("/api/auth/login", s.handleLogin).Methods(http.MethodPost)

	authed := s.router.PathPrefix("/api").Subrouter()
	authed.Use(s.requireAuth)
	authed.HandleFunc("/instagram/accounts", s.handleAddAccount).Methods(http.MethodPost)
	authed.HandleFunc("/instagram/accounts", s.handleListAccounts).Methods(http.MethodGet)
	authed.HandleFunc("/instagram/accounts/{username}/toggle", s.handleToggleAccount).Methods(http.MethodPut)
	authed.HandleFunc("/training/text", s.handleAddText).Methods(http.MethodPost)
	authed.HandleFunc("/training/website", s.handleAddWebsite).Methods(http.MethodPost)
	authed.HandleFunc("/training/data", s.handleListTraining).Methods(http.MethodGet)
	authed.HandleFunc("/training/data/{id}", s.handleDeleteTraining).Methods(http.MethodDelete)
	authed.HandleFunc("/training/stats", s.handleTrainingStats).Methods(http.MethodGet)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response encode failed", zap.Error(err))
	}
}

// writeError maps domain sentinels onto HTTP status codes. Unclassified
// errors are logged server side and reported generically.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	msg := err.Error()
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate):
		status = http.StatusConflict
	case errors.Is(err, store.ErrBadCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, training.ErrEmptyContent), errors.Is(err, training.ErrInvalidURL):
		status = http.StatusBadRequest
	case errors.Is(err, training.ErrFetchFailed):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
		s.log.Error("request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	}
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
