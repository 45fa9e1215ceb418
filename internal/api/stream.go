package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nnikhil6/greenwave/internal/corridor"
)

// DecisionStream fans each tick's phase decisions out to SSE subscribers.
// It satisfies corridor.DecisionSink, so the control loop pushes batches
// into it directly. Delivery is non-blocking; a subscriber that cannot
// keep up misses batches rather than stalling the loop.
type DecisionStream struct {
	mu   sync.Mutex
	subs map[string]chan []corridor.PhaseDecision
}

func NewDecisionStream() *DecisionStream {
	return &DecisionStream{subs: make(map[string]chan []corridor.PhaseDecision)}
}

// EmitDecisions implements corridor.DecisionSink. The batch is copied
// because the loop reuses its slice between ticks.
func (ds *DecisionStream) EmitDecisions(decisions []corridor.PhaseDecision) {
	if len(decisions) == 0 {
		return
	}
	batch := make([]corridor.PhaseDecision, len(decisions))
	copy(batch, decisions)

	ds.mu.Lock()
	defer ds.mu.Unlock()
	for _, ch := range ds.subs {
		select {
		case ch <- batch:
		default:
		}
	}
}

func (ds *DecisionStream) subscribe() (string, chan []corridor.PhaseDecision) {
	id := uuid.NewString()
	ch := make(chan []corridor.PhaseDecision, 8)
	ds.mu.Lock()
	ds.subs[id] = ch
	ds.mu.Unlock()
	return id, ch
}

func (ds *DecisionStream) unsubscribe(id string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ch, ok := ds.subs[id]; ok {
		close(ch)
		delete(ds.subs, id)
	}
}

// decisionEvent is the stream's wire form of one decision, matching the
// row shape /api/decisions serves so consumers share one schema.
type decisionEvent struct {
	Tick         uint64          `json:"tick"`
	Intersection string          `json:"intersection"`
	Phase        corridor.Phase  `json:"phase"`
	DurationMS   int64           `json:"duration_ms"`
	Reason       corridor.Reason `json:"reason"`
	Changed      bool            `json:"changed"`
	Density      float64         `json:"density"`
	DecidedAt    time.Time       `json:"decided_at"`
}

// streamDecisions serves GET /api/decisions/stream as server-sent events.
// Each event is one tick's decision batch encoded as a JSON array.
func (s *Server) streamDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, ch := s.stream.subscribe()
	defer s.stream.unsubscribe(id)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case batch, ok := <-ch:
			if !ok {
				return
			}
			events := make([]decisionEvent, len(batch))
			for i, d := range batch {
				events[i] = decisionEvent{
					Tick:         d.Tick,
					Intersection: d.Intersection,
					Phase:        d.Phase,
					DurationMS:   d.Duration.Milliseconds(),
					Reason:       d.Reason,
					Changed:      d.Changed,
					Density:      d.Density,
					DecidedAt:    d.DecidedAt,
				}
			}
			payload, err := json.Marshal(events)
			if err != nil {
				log.Printf("api: encode decision batch: %v", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
