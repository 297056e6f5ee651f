package handlers

import (
	"log"
	"net/http"

	"github.com/chessarena/tournament-service/brackets"
	"github.com/chessarena/tournament-service/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks belong to the reverse proxy in this deployment.
		return true
	},
}

type WebSocketHandler struct {
	hub *brackets.Hub
}

func NewWebSocketHandler(hub *brackets.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// ServeTournament attaches a spectator connection to a tournament room.
func (h *WebSocketHandler) ServeTournament(w http.ResponseWriter, r *http.Request) {
	tournamentID := chi.URLParam(r, "tournamentID")
	if tournamentID == "" {
		http.Error(w, "missing tournament id", http.StatusBadRequest)
		return
	}
	h.serve(w, r, "tournament:"+tournamentID)
}

// ServeGame attaches a connection to a game room for live move relay.
func (h *WebSocketHandler) ServeGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}
	h.serve(w, r, brackets.GameRoom(gameID))
}

func (h *WebSocketHandler) serve(w http.ResponseWriter, r *http.Request, roomID string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Printf("failed to upgrade connection for room %s: %v", roomID, err)
		return
	}

	conn := brackets.NewConn(ws, roomID)
	h.hub.Join(roomID, conn, middleware.UserIDFromContext(r.Context()))

	go conn.WritePump()
	go conn.ReadPump(h.hub)
}
