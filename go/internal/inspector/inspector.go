package inspector

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mcdev12/roast-arena/go/internal/archive"
	"github.com/mcdev12/roast-arena/go/internal/arena/events"
	"github.com/mcdev12/roast-arena/go/internal/arena/orchestrator"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const maxBodyBytes = 16 * 1024

// Game is the slice of the orchestrator the inspector drives
type Game interface {
	View() orchestrator.View
	JoinRound(ctx context.Context, roastText string) bool
	CastVote(ctx context.Context, characterID string) bool
	ClearError()
}

// Winners lists recent payouts from the arena API
type Winners interface {
	RecentWinners(ctx context.Context, limit int) ([]events.RecentWinner, error)
}

// Archive lists rounds this client has archived
type Archive interface {
	List(ctx context.Context, limit int) ([]archive.Record, error)
}

// Handler serves the local inspector API
type Handler struct {
	game    Game
	winners Winners
	archive Archive
}

// NewHandler builds the inspector. winners and archive may be nil.
func NewHandler(game Game, winners Winners, archive Archive) *Handler {
	return &Handler{game: game, winners: winners, archive: archive}
}

type joinRequest struct {
	Roast string `json:"roast"`
}

type voteRequest struct {
	CharacterID string `json:"characterId"`
}

// ActionResponse reports whether an action was accepted and the state after it
type ActionResponse struct {
	Accepted bool              `json:"accepted"`
	State    orchestrator.View `json:"state"`
}

// Routes registers every inspector endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/state", h.handleState)
	mux.HandleFunc("/actions/join", h.handleJoin)
	mux.HandleFunc("/actions/vote", h.handleVote)
	mux.HandleFunc("/actions/clear-error", h.handleClearError)
	mux.HandleFunc("/api/recent-winners", h.handleRecentWinners)
	mux.HandleFunc("/api/archive", h.handleArchive)
	return mux
}

// NewServer wraps the inspector routes with CORS and h2c.
func NewServer(addr string, h *Handler) *http.Server {
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(c.Handler(h.Routes()), &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

// handleState handles GET /state
func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.game.View())
}

// handleJoin handles POST /actions/join
func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req joinRequest
	if !readJSON(w, r, &req) {
		return
	}
	accepted := h.game.JoinRound(r.Context(), req.Roast)
	h.writeAction(w, accepted)
}

// handleVote handles POST /actions/vote
func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req voteRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.CharacterID == "" {
		http.Error(w, "characterId is required", http.StatusBadRequest)
		return
	}
	accepted := h.game.CastVote(r.Context(), req.CharacterID)
	h.writeAction(w, accepted)
}

// handleClearError handles POST /actions/clear-error
func (h *Handler) handleClearError(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.game.ClearError()
	h.writeAction(w, true)
}

// handleRecentWinners handles GET /api/recent-winners?limit=
func (h *Handler) handleRecentWinners(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.winners == nil {
		http.Error(w, "Recent winners unavailable", http.StatusServiceUnavailable)
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	winners, err := h.winners.RecentWinners(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Int("limit", limit).Msg("failed to get recent winners")
		http.Error(w, "Failed to get recent winners", http.StatusBadGateway)
		return
	}
	if winners == nil {
		winners = []events.RecentWinner{}
	}
	writeJSON(w, http.StatusOK, winners)
}

// handleArchive handles GET /api/archive?limit=
func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.archive == nil {
		http.Error(w, "Archive disabled", http.StatusServiceUnavailable)
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	records, err := h.archive.List(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Int("limit", limit).Msg("failed to list archived rounds")
		http.Error(w, "Failed to list archived rounds", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []archive.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) writeAction(w http.ResponseWriter, accepted bool) {
	status := http.StatusAccepted
	if !accepted {
		status = http.StatusConflict
	}
	writeJSON(w, status, ActionResponse{Accepted: accepted, State: h.game.View()})
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		http.Error(w, "Invalid limit", http.StatusBadRequest)
		return 0, false
	}
	return limit, true
}

func readJSON(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(out); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
