package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nnikhil6/greenwave/internal/corridor"
	"github.com/nnikhil6/greenwave/internal/security"
	"github.com/nnikhil6/greenwave/internal/units"
	"github.com/nnikhil6/greenwave/internal/version"
)

// intersectionView decorates the raw snapshot with the approach speed in
// the configured display units. The m/s field stays for machine readers.
type intersectionView struct {
	corridor.IntersectionState
	AvgSpeed float64 `json:"avg_speed"`
}

type corridorState struct {
	Name            string             `json:"name"`
	Units           string             `json:"units"`
	ActiveIncidents int                `json:"active_incidents"`
	Intersections   []intersectionView `json:"intersections"`
}

func (s *Server) showCorridor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	states := s.coord.Corridor().Snapshot()
	views := make([]intersectionView, len(states))
	for i, st := range states {
		views[i] = intersectionView{
			IntersectionState: st,
			AvgSpeed:          units.ConvertSpeed(st.AvgSpeedMPS, s.units),
		}
	}

	s.writeJSON(w, corridorState{
		Name:            s.coord.Corridor().Name,
		Units:           s.units,
		ActiveIncidents: s.coord.Incidents().ActiveCount(),
		Intersections:   views,
	})
}

func (s *Server) listDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.journal == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	rows, err := s.journal.RecentDecisions(limit)
	if err != nil {
		log.Printf("api: decision query failed: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to retrieve decisions")
		return
	}
	s.writeJSON(w, rows)
}

// listSummaries serves the pre-aggregated window rollups. Rows only exist
// once the summary worker has run at least one window.
func (s *Server) listSummaries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.journal == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	rows, err := s.journal.RecentSummaries(limit)
	if err != nil {
		log.Printf("api: summary query failed: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to retrieve summaries")
		return
	}
	s.writeJSON(w, rows)
}

// handleIncidents serves GET (list) and POST (manual signal) on
// /api/incidents. Posted signals travel through the inbox and take effect
// on the next tick, so a successful POST is an acceptance, not an event.
func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listIncidents(w, r)
	case http.MethodPost:
		s.postIncident(w, r)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) listIncidents(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("archived") != "" {
		if s.journal == nil {
			s.writeJSONError(w, http.StatusServiceUnavailable, "journal not configured")
			return
		}
		limit := 0
		if l := r.URL.Query().Get("limit"); l != "" {
			parsed, err := strconv.Atoi(l)
			if err != nil || parsed < 1 {
				s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
				return
			}
			limit = parsed
		}
		rows, err := s.journal.RecentIncidents(limit)
		if err != nil {
			log.Printf("api: incident query failed: %v", err)
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to retrieve incidents")
			return
		}
		s.writeJSON(w, rows)
		return
	}

	s.writeJSON(w, s.coord.Incidents().Incidents())
}

func (s *Server) postIncident(w http.ResponseWriter, r *http.Request) {
	var sig corridor.IncidentSignal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := sig.Validate(); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.knownIntersection(sig.Intersection) {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown intersection %q", sig.Intersection))
		return
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now()
	}

	if err := s.inbox.PostIncident(sig); err != nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "intake queue full")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"status":       "queued",
		"intersection": sig.Intersection,
	})
}

// handleIncidentClear serves POST /api/incidents/{id}/clear. The existence
// check is advisory; the clear itself applies on the next tick.
func (s *Server) handleIncidentClear(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/incidents/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "clear" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id := parts[0]

	active := false
	for _, ev := range s.coord.Incidents().Incidents() {
		if ev.ID == id && ev.State == corridor.IncidentActive {
			active = true
			break
		}
	}
	if !active {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no active incident with id %s", id))
		return
	}

	if err := s.inbox.PostClear(corridor.ClearRequest{IncidentID: id, At: time.Now()}); err != nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "intake queue full")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"status":      "queued",
		"incident_id": id,
	})
}

type statsResponse struct {
	Corridor        string               `json:"corridor"`
	Intersections   int                  `json:"intersections"`
	ActiveIncidents int                  `json:"active_incidents"`
	QueuedRecords   int                  `json:"queued_records"`
	UptimeSeconds   int64                `json:"uptime_seconds"`
	Totals          corridor.StatsTotals `json:"totals"`
	Version         string               `json:"version"`
	GitSHA          string               `json:"git_sha"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, statsResponse{
		Corridor:        s.coord.Corridor().Name,
		Intersections:   s.coord.Corridor().Len(),
		ActiveIncidents: s.coord.Incidents().ActiveCount(),
		QueuedRecords:   s.inbox.Queued(),
		UptimeSeconds:   int64(time.Since(s.started).Seconds()),
		Totals:          s.coord.Stats().Totals(),
		Version:         version.Version,
		GitSHA:          version.GitSHA,
	})
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, s.cfg)
}

func (s *Server) exportDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.journal == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}

	format := r.URL.Query().Get("format")
	if format != "" && format != "csv" {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
		return
	}

	end := time.Now()
	if e := r.URL.Query().Get("end"); e != "" {
		parsed, err := time.Parse(time.RFC3339, e)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'end' parameter, want RFC3339")
			return
		}
		end = parsed
	}
	start := end.Add(-24 * time.Hour)
	if st := r.URL.Query().Get("start"); st != "" {
		parsed, err := time.Parse(time.RFC3339, st)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'start' parameter, want RFC3339")
			return
		}
		start = parsed
	}
	if !start.Before(end) {
		s.writeJSONError(w, http.StatusBadRequest, "'start' must precede 'end'")
		return
	}

	filename := fmt.Sprintf("%s-decisions-%s-%s.csv",
		security.SanitizeFilename(s.coord.Corridor().Name),
		start.UTC().Format("20060102T150405Z"),
		end.UTC().Format("20060102T150405Z"))

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := s.journal.WriteDecisionsCSV(w, start, end); err != nil {
		// Headers are already out; all that is left is the log.
		log.Printf("api: decision export failed: %v", err)
	}
}

func (s *Server) knownIntersection(id string) bool {
	for _, known := range s.coord.Corridor().IDs() {
		if known == id {
			return true
		}
	}
	return false
}
