package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/QuinnsCode/qbear3-sub004/internal/cards"
	"github.com/QuinnsCode/qbear3-sub004/internal/game"
	"github.com/QuinnsCode/qbear3-sub004/internal/matchmaking"
	"github.com/QuinnsCode/qbear3-sub004/internal/session"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const requestTimeout = 5 * time.Second

type createSessionRequest struct {
	ID string `json:"id"`
}

type checksumResponse struct {
	ID       string `json:"id"`
	Checksum string `json:"checksum"`
	Actions  int    `json:"actions"`
}

type templateResponse struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			respondError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Sessions.List())
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	sess, err := s.deps.Sessions.Create(ctx, req.ID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess.Summary())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	sess, err := s.deps.Sessions.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Coordinator.Snapshot())
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.deps.Sessions.Teardown(ctx, chi.URLParam(r, "id")); err != nil {
		s.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sessionChecksum(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	sess, err := s.deps.Sessions.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	state := sess.Coordinator.Snapshot()
	respondJSON(w, http.StatusOK, checksumResponse{
		ID:       state.ID,
		Checksum: game.Checksum(state),
		Actions:  len(state.Actions),
	})
}

func (s *Server) putDeck(w http.ResponseWriter, r *http.Request) {
	var deck cards.StoredDeck
	if err := json.NewDecoder(r.Body).Decode(&deck); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	deck.ID = chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.deps.Decks.Put(ctx, deck); err != nil {
		s.logger.Info("deck rejected", zap.String("deck_id", deck.ID), zap.Error(err))
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	stored, err := s.deps.Decks.Get(ctx, deck.ID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stored)
}

func (s *Server) getDeck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	deck, err := s.deps.Decks.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, deck)
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	list := s.deps.Templates.List()
	out := make([]templateResponse, 0, len(list))
	for i, t := range list {
		out = append(out, templateResponse{Index: i, Name: t.Name, Description: t.Description})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) listRegions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Matchmaking.Regions())
}

func (s *Server) queueStatus(w http.ResponseWriter, r *http.Request) {
	q, err := s.deps.Matchmaking.Queue(chi.URLParam(r, "region"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, q.Status(r.URL.Query().Get("userId")))
}

// respondServiceError maps domain errors onto HTTP statuses.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidID):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, cards.ErrDeckNotFound),
		errors.Is(err, matchmaking.ErrUnknownRegion):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrSessionExists):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrChecksumMismatch), errors.Is(err, game.ErrSnapshotVersion):
		s.logger.Error("unreadable session snapshot", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "session snapshot is unreadable")
	default:
		s.logger.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
