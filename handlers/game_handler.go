package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/chessarena/tournament-service/services"
	"github.com/go-chi/chi/v5"
)

type GameHandler struct {
	gameService services.GameService
}

func NewGameHandler(gameService services.GameService) *GameHandler {
	return &GameHandler{gameService: gameService}
}

type gameResultRequest struct {
	WinnerID *int `json:"winner_id"`
}

// ReportResult is where the game engine delivers a terminal outcome. The
// bracket mutation happens later, on the queue worker, so this returns as
// soon as the result is stored and the job enqueued.
func (h *GameHandler) ReportResult(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	if gameID == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "missing game id"})
		return
	}

	var req gameResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := h.gameService.RecordResult(r.Context(), gameID, req.WinnerID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, nil)
}
