package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"instaflow/internal/store"
)

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Token    string `json:"token"`
}

type accountResponse struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	IsActive   bool       `json:"is_active"`
	LastActive *time.Time `json:"last_active,omitempty"`
}

type trainingResponse struct {
	ID              string    `json:"id"`
	AccountUsername string    `json:"account_username"`
	DataType        string    `json:"data_type"`
	Content         string    `json:"content"`
	Source          string    `json:"source"`
	CreatedAt       time.Time `json:"created_at"`
}

func toAccountResponse(a store.Account) accountResponse {
	return accountResponse{
		ID:         a.ID,
		Username:   a.Username,
		IsActive:   a.IsActive,
		LastActive: a.LastActive,
	}
}

func toTrainingResponse(i store.TrainingItem) trainingResponse {
	return trainingResponse{
		ID:              i.ID,
		AccountUsername: i.AccountUsername,
		DataType:        i.DataType,
		Content:         i.Content,
		Source:          i.Source,
		CreatedAt:       i.CreatedAt,
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed json body")
		return
	}
	if req.Username == "" || req.Password == "" {
		s.badRequest(w, "username and password are required")
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := s.issueToken(user.ID, time.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, userResponse{
		ID: user.ID, Username: user.Username, Email: user.Email, Token: token,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed json body")
		return
	}

	user, err := s.store.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := s.issueToken(user.ID, time.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, userResponse{
		ID: user.ID, Username: user.Username, Email: user.Email, Token: token,
	})
}

func (s *Server) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed json body")
		return
	}
	if req.Username == "" || req.Password == "" {
		s.badRequest(w, "username and password are required")
		return
	}

	acct, err := s.store.AddAccount(r.Context(), userIDFrom(r.Context()), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toAccountResponse(*acct))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleToggleAccount(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	active, err := s.store.ToggleAccount(r.Context(), userIDFrom(r.Context()), username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"username": username, "is_active": active,
	})
}

func (s *Server) handleAddText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountUsername string `json:"account_username"`
		Content         string `json:"content"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed json body")
		return
	}
	if req.AccountUsername == "" {
		s.badRequest(w, "account_username is required")
		return
	}

	item, err := s.training.AddText(r.Context(), userIDFrom(r.Context()), req.AccountUsername, req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toTrainingResponse(*item))
}

func (s *Server) handleAddWebsite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountUsername string `json:"account_username"`
		URL             string `json:"url"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed json body")
		return
	}
	if req.AccountUsername == "" {
		s.badRequest(w, "account_username is required")
		return
	}

	item, err := s.training.AddWebsite(r.Context(), userIDFrom(r.Context()), req.AccountUsername, req.URL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toTrainingResponse(*item))
}

func (s *Server) handleListTraining(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	items, err := s.store.ListTrainingItems(r.Context(), userIDFrom(r.Context()), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]trainingResponse, 0, len(items))
	for _, i := range items {
		out = append(out, toTrainingResponse(i))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteTraining(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.store.DeleteTrainingItem(r.Context(), userIDFrom(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrainingStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.TrainingStats(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}
