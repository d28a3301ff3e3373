package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"mindquake-service/internal/domain"
)

type errorBody struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		message = "internal error"
	}
	respondJSON(w, status, errorBody{Error: message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidDifficulty), errors.Is(err, domain.ErrInvalidQuizConfig):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionClosed), errors.Is(err, domain.ErrAnswerInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

var errBadBody = errors.New("malformed request body")

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

type startRequest struct {
	UserID string `json:"userId"`
	domain.QuizConfig
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: errBadBody.Error()})
		return
	}
	if req.UserID == "" {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "userId is required"})
		return
	}
	view, err := s.quiz.Start(r.Context(), req.UserID, req.QuizConfig)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.quiz.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

type answerRequest struct {
	Answer string `json:"answer"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: errBadBody.Error()})
		return
	}
	outcome, err := s.quiz.Answer(r.Context(), chi.URLParam(r, "id"), req.Answer)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleAbortSession(w http.ResponseWriter, r *http.Request) {
	if err := s.quiz.Abort(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.profiles.Profile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	list, err := s.profiles.Achievements(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			respondJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be between 1 and 100"})
			return
		}
		limit = n
	}
	lb, err := s.profiles.Leaderboard(r.Context(), r.URL.Query().Get("userId"), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, lb)
}
