package corridor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/nnikhil6/greenwave/internal/httputil"
)

// DefaultNotifierQueue bounds how many decision batches wait for delivery
// before the oldest is dropped.
const DefaultNotifierQueue = 32

// decisionWire is the gateway payload shape for one decision. Durations go
// out in milliseconds.
type decisionWire struct {
	Intersection string    `json:"intersection"`
	Tick         uint64    `json:"tick"`
	Phase        Phase     `json:"phase"`
	DurationMS   int64     `json:"duration_ms"`
	Reason       Reason    `json:"reason"`
	Density      float64   `json:"density"`
	DecidedAt    time.Time `json:"decided_at"`
}

type decisionBatch struct {
	Corridor  string         `json:"corridor"`
	Tick      uint64         `json:"tick"`
	Decisions []decisionWire `json:"decisions"`
}

// Notifier pushes phase-change commands to a controller gateway over HTTP.
// It implements DecisionSink: EmitDecisions enqueues without blocking the
// tick goroutine and a delivery goroutine does the actual POSTs. Only
// decisions with Changed set are pushed; holds are not actuation events.
type Notifier struct {
	corridorName string
	url          string
	client       httputil.HTTPClient
	queue        chan decisionBatch
	stats        *LoopStats
}

// NewNotifier creates a gateway notifier. A nil client selects the standard
// HTTP client.
func NewNotifier(corridorName, url string, client httputil.HTTPClient, stats *LoopStats) *Notifier {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &Notifier{
		corridorName: corridorName,
		url:          url,
		client:       client,
		queue:        make(chan decisionBatch, DefaultNotifierQueue),
		stats:        stats,
	}
}

// EmitDecisions queues the tick's phase-change commands for delivery. When
// the delivery queue is full the oldest batch is dropped: the gateway only
// ever wants the freshest state.
func (n *Notifier) EmitDecisions(decisions []PhaseDecision) {
	changed := make([]decisionWire, 0, len(decisions))
	var tick uint64
	for _, d := range decisions {
		tick = d.Tick
		if !d.Changed {
			continue
		}
		changed = append(changed, decisionWire{
			Intersection: d.Intersection,
			Tick:         d.Tick,
			Phase:        d.Phase,
			DurationMS:   d.Duration.Milliseconds(),
			Reason:       d.Reason,
			Density:      d.Density,
			DecidedAt:    d.DecidedAt,
		})
	}
	if len(changed) == 0 {
		return
	}

	batch := decisionBatch{Corridor: n.corridorName, Tick: tick, Decisions: changed}
	for {
		select {
		case n.queue <- batch:
			return
		default:
			select {
			case stale := <-n.queue:
				Diagf("gateway queue full, dropped tick %d batch", stale.Tick)
				if n.stats != nil {
					n.stats.AddDropped(1)
				}
			default:
			}
		}
	}
}

// Run delivers queued batches until the context is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	Opsf("gateway notifier started: %s", n.url)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch := <-n.queue:
			n.deliver(batch)
		}
	}
}

// deliver POSTs one batch. Failures are logged and counted; the loop is
// never blocked or aborted by a flaky gateway.
func (n *Notifier) deliver(batch decisionBatch) {
	body, err := json.Marshal(batch)
	if err != nil {
		Opsf("gateway marshal failed: %v", err)
		return
	}

	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(body))
	if err != nil {
		Opsf("gateway push failed for tick %d: %v", batch.Tick, err)
		if n.stats != nil {
			n.stats.AddDropped(1)
		}
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		Opsf("gateway rejected tick %d: status %d", batch.Tick, resp.StatusCode)
		if n.stats != nil {
			n.stats.AddDropped(1)
		}
		return
	}
	Tracef("gateway accepted tick %d: %d commands", batch.Tick, len(batch.Decisions))
}
