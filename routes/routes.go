package routes

import (
	"net/http"

	"github.com/chessarena/tournament-service/handlers"
	"github.com/chessarena/tournament-service/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Tournament *handlers.TournamentHandler
	Match      *handlers.MatchHandler
	Game       *handlers.GameHandler
	WebSocket  *handlers.WebSocketHandler
}

func NewRouter(h Handlers, jwtSecret []byte) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.Identity(jwtSecret))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/tournaments/{tournamentID}/bracket", h.Tournament.GetBracket)
		r.Post("/matches/{matchID}/start", h.Match.Start)
		r.Post("/games/{gameID}/result", h.Game.ReportResult)
	})

	r.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeTournament)
	r.Get("/ws/games/{gameID}", h.WebSocket.ServeGame)

	return r
}
