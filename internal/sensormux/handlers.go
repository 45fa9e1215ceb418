package sensormux

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nnikhil6/greenwave/internal/corridor"
	"github.com/nnikhil6/greenwave/internal/journal"
)

// LineHandler routes classified station lines into the corridor intake.
// Raw lines are mirrored into the journal when one is attached, so the
// wire traffic survives for postmortems even when a line is rejected.
type LineHandler struct {
	Station string
	Inbox   *corridor.Inbox
	Journal *journal.Journal    // optional
	Stats   *corridor.LoopStats // optional

	stateMu sync.Mutex
	state   map[string]any
}

// NewLineHandler wires a handler for one station. Journal and Stats may
// be nil.
func NewLineHandler(station string, inbox *corridor.Inbox, j *journal.Journal, stats *corridor.LoopStats) *LineHandler {
	return &LineHandler{
		Station: station,
		Inbox:   inbox,
		Journal: j,
		Stats:   stats,
		state:   make(map[string]any),
	}
}

// HandleLine classifies one raw line and dispatches it. Malformed lines
// are counted and dropped, never fatal; the monitor loop keeps going.
func (h *LineHandler) HandleLine(payload string) {
	kind := ClassifyPayload(payload)

	if h.Journal != nil {
		if err := h.Journal.RecordSensorLine(h.Station, string(kind), payload, time.Now()); err != nil {
			corridor.Diagf("station %s: journal write failed: %v", h.Station, err)
		}
	}

	switch kind {
	case LineTypeReading:
		h.handleReading(payload)
	case LineTypeIncident:
		h.handleIncident(payload)
	case LineTypeConfig:
		h.handleConfig(payload)
	default:
		corridor.Tracef("station %s: unclassified line: %s", h.Station, payload)
	}
}

func (h *LineHandler) handleReading(payload string) {
	var reading corridor.SensorReading
	if err := json.Unmarshal([]byte(payload), &reading); err != nil {
		corridor.Tracef("station %s: reading dropped: %v", h.Station, err)
		h.dropped(1)
		return
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now()
	}
	// Flagged incidents ride along on the reading; the coordinator feeds
	// them to the incident manager when the reading is applied.
	if err := h.Inbox.PostReading(reading); err != nil {
		corridor.Diagf("station %s: reading dropped: %v", h.Station, err)
		h.dropped(1)
	}
}

func (h *LineHandler) handleIncident(payload string) {
	sig, err := ParseIncidentLine(payload)
	if err != nil {
		corridor.Tracef("station %s: incident dropped: %v", h.Station, err)
		h.dropped(1)
		return
	}
	if err := h.Inbox.PostIncident(sig); err != nil {
		corridor.Diagf("station %s: incident dropped: %v", h.Station, err)
		h.dropped(1)
	}
}

// handleConfig merges a station config echo into the tracked state.
// Stations echo their full or partial config as a JSON object after
// each accepted command.
func (h *LineHandler) handleConfig(payload string) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		corridor.Tracef("station %s: config echo dropped: %v", h.Station, err)
		return
	}

	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	for k, v := range fields {
		h.state[k] = v
	}
}

// State returns a snapshot of the station config fields seen so far.
func (h *LineHandler) State() map[string]any {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	out := make(map[string]any, len(h.state))
	for k, v := range h.state {
		out[k] = v
	}
	return out
}

func (h *LineHandler) dropped(n int) {
	if h.Stats != nil {
		h.Stats.AddDropped(n)
	}
}

// Consume subscribes to the mux and handles lines until the channel
// closes. Run it on its own goroutine alongside Monitor.
func (h *LineHandler) Consume(mux SensorMuxInterface) {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)
	for line := range lines {
		h.HandleLine(line)
	}
}
