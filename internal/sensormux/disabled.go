package sensormux

import (
	"context"
	"net/http"
	"sync"
)

// DisabledSensorMux stands in for the real mux when the daemon runs
// without a station attached. It produces no lines, accepts and
// discards commands, and keeps subscription semantics intact so
// consumers shut down cleanly.
type DisabledSensorMux struct {
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// NewDisabledSensorMux returns a mux with no station behind it.
func NewDisabledSensorMux() *DisabledSensorMux {
	return &DisabledSensorMux{
		subscribers: make(map[string]chan string),
	}
}

// Subscribe hands out a channel that will never carry lines. After
// Close it returns an already-closed channel so consumers exit their
// receive loops.
func (m *DisabledSensorMux) Subscribe() (string, chan string) {
	m.closingMu.Lock()
	closing := m.closing
	m.closingMu.Unlock()

	ch := make(chan string)
	if closing {
		close(ch)
		return randomID(), ch
	}

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	id := randomID()
	m.subscribers[id] = ch
	return id, ch
}

func (m *DisabledSensorMux) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// SendCommand discards the command. There is no station to receive it.
func (m *DisabledSensorMux) SendCommand(cmd string) error {
	return nil
}

// Monitor blocks until the context ends. No lines ever arrive.
func (m *DisabledSensorMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Initialize does nothing; there is no station to configure.
func (m *DisabledSensorMux) Initialize() error {
	return nil
}

func (m *DisabledSensorMux) Close() error {
	m.closingMu.Lock()
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.subscriberMu.Unlock()
	return nil
}

// AttachAdminRoutes registers nothing. The debug pages only make sense
// with a live station.
func (m *DisabledSensorMux) AttachAdminRoutes(mux *http.ServeMux) {}
