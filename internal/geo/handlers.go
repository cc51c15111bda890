package geo

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/EmpoweredVote/EV-Globe/internal/geo/geometry"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/reconcile"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/resolver"
	"github.com/EmpoweredVote/EV-Globe/internal/iplocate"
	"github.com/EmpoweredVote/EV-Globe/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Service holds everything the /geo routes need.
type Service struct {
	Resolver   *resolver.Resolver
	IP         *iplocate.Locator
	Votes      reconcile.VoteStore
	Jobs       *JobManager
	AdminToken string
	Limiter    *middleware.RateLimiter
	ChunkSize  int
	Workers    int
}

func (s *Service) newReconciler(dryRun bool) *reconcile.Reconciler {
	rec := reconcile.New(s.Resolver, s.Votes)
	rec.ChunkSize = s.ChunkSize
	rec.Workers = s.Workers
	rec.DryRun = dryRun
	return rec
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[geo] encode response: %v", err)
	}
}

// Geocode handles GET /geocode?lat=&lon=
func (s *Service) Geocode(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil {
		http.Error(w, "lat and lon must be numbers", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.Resolver.Resolve(r.Context(), lat, lon))
}

// GeocodeIP handles GET /geocode/ip[?ip=]
func (s *Service) GeocodeIP(w http.ResponseWriter, r *http.Request) {
	ip := strings.TrimSpace(r.URL.Query().Get("ip"))
	if ip == "" {
		ip = middleware.ClientIP(r)
	}

	loc, err := s.IP.Lookup(ip)
	switch {
	case errors.Is(err, iplocate.ErrDisabled):
		http.Error(w, "IP geolocation is not configured", http.StatusServiceUnavailable)
		return
	case errors.Is(err, iplocate.ErrInvalidIP):
		http.Error(w, "Invalid IP address", http.StatusBadRequest)
		return
	case errors.Is(err, iplocate.ErrNoLocation):
		http.Error(w, "No location for IP address", http.StatusNotFound)
		return
	case err != nil:
		log.Printf("[geo] IP lookup failed for %s: %v", ip, err)
		http.Error(w, "IP lookup failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("X-Location-Accuracy-Km", strconv.Itoa(loc.AccuracyKm))
	writeJSON(w, http.StatusOK, s.Resolver.Resolve(r.Context(), loc.Latitude, loc.Longitude))
}

// CheckLowest handles GET /subdivisions/check-lowest?id=
func (s *Service) CheckLowest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		http.Error(w, "id must be a positive integer", http.StatusBadRequest)
		return
	}
	lowest, err := s.Resolver.Repository().IsLowest(r.Context(), uint(id))
	if err != nil {
		log.Printf("[geo] check-lowest %d: %v", id, err)
		http.Error(w, "Failed to look up subdivision", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isLowestLevel": lowest})
}

// SearchSubdivisions handles GET /subdivisions/search?q=&limit=
func (s *Service) SearchSubdivisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := s.Resolver.Repository().Search(r.Context(), q, limit)
	if err != nil {
		log.Printf("[geo] search %q: %v", q, err)
		http.Error(w, "Search failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// InvalidateGeometry handles POST /admin/geometry/invalidate?key=
func (s *Service) InvalidateGeometry(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if !geometry.ValidKey(key) {
		http.Error(w, "key must be @world, an ISO3 code or a region id", http.StatusBadRequest)
		return
	}
	s.Resolver.InvalidateGeometry(r.Context(), key)
	writeJSON(w, http.StatusOK, map[string]string{"invalidated": key})
}

// Integrity handles GET /admin/integrity?top=
func (s *Service) Integrity(w http.ResponseWriter, r *http.Request) {
	top, _ := strconv.Atoi(r.URL.Query().Get("top"))

	votes, err := s.Votes.Integrity(r.Context(), top)
	if err != nil {
		log.Printf("[geo] integrity: %v", err)
		http.Error(w, "Failed to compute vote integrity", http.StatusInternalServerError)
		return
	}
	levels, err := s.Resolver.Repository().Stats(r.Context())
	if err != nil {
		log.Printf("[geo] subdivision stats: %v", err)
		http.Error(w, "Failed to compute subdivision stats", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"votes":        votes,
		"subdivisions": levels,
	})
}

// MarkLowestLevels handles POST /admin/lowest-level
func (s *Service) MarkLowestLevels(w http.ResponseWriter, r *http.Request) {
	n, err := s.Resolver.Repository().MarkLowestLevels(r.Context())
	if err != nil {
		log.Printf("[geo] mark lowest levels: %v", err)
		http.Error(w, "Failed to mark lowest levels", http.StatusInternalServerError)
		return
	}
	s.Resolver.FlushCache(r.Context())
	log.Printf("[geo] Lowest-level flags recomputed, %d rows changed", n)
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// StartReconcile handles POST /admin/reconcile
// Accepts {"mode": "wrong-level", "country": "ESP", "poll_id": 3,
// "skip_zero_coordinates": true, "max_records": 0, "resume_after": 0, "dry_run": false}
func (s *Service) StartReconcile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode                string `json:"mode"`
		Country             string `json:"country"`
		PollID              uint   `json:"poll_id"`
		SkipZeroCoordinates bool   `json:"skip_zero_coordinates"`
		MaxRecords          int    `json:"max_records"`
		ResumeAfter         uint   `json:"resume_after"`
		DryRun              bool   `json:"dry_run"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	mode, err := reconcile.ParseMode(body.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.MaxRecords < 0 {
		http.Error(w, "max_records must be >= 0", http.StatusBadRequest)
		return
	}

	job := s.Jobs.Start(reconcile.Filter{
		Mode:                mode,
		Country:             strings.ToUpper(strings.TrimSpace(body.Country)),
		PollID:              body.PollID,
		SkipZeroCoordinates: body.SkipZeroCoordinates,
		MaxRecords:          body.MaxRecords,
	}, body.ResumeAfter, body.DryRun)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// GetReconcileJob handles GET /admin/reconcile/{jobID}
func (s *Service) GetReconcileJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.Jobs.Get(chi.URLParam(r, "jobID"))
	if !ok {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ListReconcileJobs handles GET /admin/reconcile
func (s *Service) ListReconcileJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Jobs.List())
}

// CancelReconcileJob handles DELETE /admin/reconcile/{jobID}
func (s *Service) CancelReconcileJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.Jobs.Cancel(chi.URLParam(r, "jobID"))
	if !ok {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": "cancelling",
	})
}
