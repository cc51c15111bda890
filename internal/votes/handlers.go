package votes

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/EmpoweredVote/EV-Globe/internal/geo/resolver"
	"github.com/EmpoweredVote/EV-Globe/internal/utils"
	"github.com/go-chi/chi/v5"
)

// Resolver is satisfied by *resolver.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, lat, lon float64) resolver.Result
}

type Handler struct {
	store    Store
	resolver Resolver
}

func NewHandler(s Store, res Resolver) *Handler {
	return &Handler{store: s, resolver: res}
}

type castVoteRequest struct {
	OptionID  uint     `json:"option_id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type castVoteResponse struct {
	Vote     Vote            `json:"vote"`
	Location resolver.Result `json:"location"`
}

// CastVote handles POST /{pollID}/votes. The vote is linked to the
// subdivision the coordinates resolve to, or left unlinked for the
// reconciler to retry.
func (h *Handler) CastVote(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user ID", http.StatusUnauthorized)
		return
	}

	var body castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.OptionID == 0 {
		http.Error(w, "option_id is required", http.StatusBadRequest)
		return
	}
	if body.Latitude == nil || body.Longitude == nil {
		http.Error(w, "latitude and longitude are required", http.StatusBadRequest)
		return
	}
	if !resolver.ValidCoordinates(*body.Latitude, *body.Longitude) {
		http.Error(w, "Coordinates out of range", http.StatusBadRequest)
		return
	}

	res := h.resolver.Resolve(r.Context(), *body.Latitude, *body.Longitude)
	vote := Vote{
		PollID:        pollID,
		UserID:        userID,
		OptionID:      body.OptionID,
		Latitude:      *body.Latitude,
		Longitude:     *body.Longitude,
		SubdivisionID: res.SubdivisionID,
	}
	if !res.Found {
		log.Printf("[votes] poll=%d user=%s unresolved (%s); stored without subdivision", pollID, userID, res.Reason)
	}

	if err := h.store.Upsert(r.Context(), &vote); err != nil {
		log.Printf("[votes] poll=%d user=%s save failed: %v", pollID, userID, err)
		http.Error(w, "Failed to save vote", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(castVoteResponse{Vote: vote, Location: res})
}

// BySubdivision handles GET /{pollID}/votes/by-subdivision[?country=]
func (h *Handler) BySubdivision(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pollIDParam(w, r)
	if !ok {
		return
	}

	rows, unresolved, err := h.store.Tally(r.Context(), pollID, r.URL.Query().Get("country"))
	if err != nil {
		log.Printf("[votes] poll=%d tally failed: %v", pollID, err)
		http.Error(w, "Failed to tally votes", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []SubdivisionTally{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"poll_id":      pollID,
		"subdivisions": rows,
		"unresolved":   unresolved,
	})
}

func pollIDParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "pollID"), 10, 64)
	if err != nil || id == 0 {
		http.Error(w, "Invalid poll id", http.StatusBadRequest)
		return 0, false
	}
	return uint(id), true
}
