package handlers

import (
	"net/http"
	"strconv"

	"github.com/chessarena/tournament-service/services"
	"github.com/go-chi/chi/v5"
)

type TournamentHandler struct {
	orchestrator services.BracketOrchestrator
}

func NewTournamentHandler(orchestrator services.BracketOrchestrator) *TournamentHandler {
	return &TournamentHandler{orchestrator: orchestrator}
}

// GetBracket returns the authoritative tournament state: the bracket with
// all matches and the participant list. Reconnecting clients call this
// instead of relying on replayed broadcasts.
func (h *TournamentHandler) GetBracket(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := strconv.Atoi(chi.URLParam(r, "tournamentID"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid tournament id"})
		return
	}

	state, err := h.orchestrator.GetTournamentState(r.Context(), tournamentID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}
