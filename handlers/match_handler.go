package handlers

import (
	"net/http"
	"strconv"

	"github.com/chessarena/tournament-service/services"
	"github.com/go-chi/chi/v5"
)

type MatchHandler struct {
	orchestrator services.BracketOrchestrator
}

func NewMatchHandler(orchestrator services.BracketOrchestrator) *MatchHandler {
	return &MatchHandler{orchestrator: orchestrator}
}

// Start claims the match and returns its game. Both players hit this when
// they sit down; the orchestrator guarantees they share one game.
func (h *MatchHandler) Start(w http.ResponseWriter, r *http.Request) {
	matchID, err := strconv.Atoi(chi.URLParam(r, "matchID"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid match id"})
		return
	}

	game, err := h.orchestrator.StartMatch(r.Context(), matchID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, game)
}
