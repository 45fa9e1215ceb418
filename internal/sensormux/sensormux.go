// Package sensormux multiplexes the line stream of a serial-attached
// detector station to any number of subscribers, and funnels commands
// back to the station over the same port.
//
// Roadside detector stations speak a newline-delimited protocol: each
// line is either a JSON traffic reading, an incident flag, or a config
// echo. One goroutine owns the port reads; everything else subscribes.
package sensormux

import (
	"bufio"
	"context"
	"crypto/rand"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"tailscale.com/tsweb"
)

//go:embed templates/*
var templatesFS embed.FS

var (
	// ErrWriteFailed indicates a short write to the station port.
	ErrWriteFailed = errors.New("failed to write complete command")
)

// SensorMuxInterface is what the daemon wires against, so a disabled
// stand-in can take the real mux's place when no station is attached.
type SensorMuxInterface interface {
	Subscribe() (string, chan string)
	Unsubscribe(id string)
	SendCommand(cmd string) error
	Monitor(ctx context.Context) error
	Initialize() error
	Close() error
	AttachAdminRoutes(mux *http.ServeMux)
}

// SensorMux fans one station's line stream out to subscribers. Writes
// are serialized; reads happen on a single Monitor goroutine.
type SensorMux[T SensorPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// NewSensorMux wraps an open station port.
func NewSensorMux[T SensorPorter](port T) *SensorMux[T] {
	return &SensorMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

func randomID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the platform entropy source is broken
		panic(fmt.Sprintf("sensormux: random id: %v", err))
	}
	return hex.EncodeToString(b)
}

// Subscribe registers a new consumer of station lines. The channel is
// unbuffered; slow consumers miss lines rather than stalling the port.
func (m *SensorMux[T]) Subscribe() (string, chan string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()

	id := randomID()
	ch := make(chan string)
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a consumer and closes its channel.
func (m *SensorMux[T]) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()

	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// SendCommand writes one command line to the station. A trailing
// newline is appended if missing.
func (m *SensorMux[T]) SendCommand(cmd string) error {
	m.commandMu.Lock()
	defer m.commandMu.Unlock()

	if !strings.HasSuffix(cmd, "\n") {
		cmd += "\n"
	}
	n, err := m.port.Write([]byte(cmd))
	if err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	if n != len(cmd) {
		return ErrWriteFailed
	}
	return nil
}

// Initialize pushes the protocol settings a fresh station needs before
// its stream is useful: a clock sync so readings carry corridor time,
// then JSON output with queue counts, approach counts, speeds, and
// incident flags enabled.
func (m *SensorMux[T]) Initialize() error {
	commands := []string{
		fmt.Sprintf("T=%d", time.Now().Unix()), // clock sync
		"FMT JSON",
		"RPT Q ON", // queue counts
		"RPT A ON", // approaching counts
		"RPT S ON", // mean approach speed
		"RPT I ON", // incident flags
	}
	for _, cmd := range commands {
		if err := m.SendCommand(cmd); err != nil {
			return fmt.Errorf("initialize command %q: %w", cmd, err)
		}
	}
	return nil
}

// Monitor reads station lines until the context is cancelled, the port
// closes, or a read fails. Each line is offered to every subscriber
// without blocking.
func (m *SensorMux[T]) Monitor(ctx context.Context) error {
	scanner := bufio.NewScanner(m.port)
	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	go func() {
		for scanner.Scan() {
			select {
			case lineChan <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErrChan <- err
		}
		close(lineChan)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErrChan:
			return fmt.Errorf("station read: %w", err)
		case line, ok := <-lineChan:
			if !ok {
				return nil
			}

			m.closingMu.Lock()
			closing := m.closing
			m.closingMu.Unlock()
			if closing {
				return nil
			}

			m.subscriberMu.Lock()
			for _, ch := range m.subscribers {
				select {
				case ch <- line:
				default:
					// subscriber not ready, line dropped for them
				}
			}
			m.subscriberMu.Unlock()
		}
	}
}

// Close tears down all subscriptions and closes the port. Monitor
// returns once it observes the closing flag.
func (m *SensorMux[T]) Close() error {
	m.closingMu.Lock()
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.subscriberMu.Unlock()

	return m.port.Close()
}

// AttachAdminRoutes exposes the station on the debug mux: a command
// console, a JSON command endpoint, and a live line tail over SSE.
func (m *SensorMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	sendTmpl := template.Must(template.ParseFS(templatesFS, "templates/send-command.html.tmpl"))
	debug.Handle("send-command", "Station command console", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := sendTmpl.Execute(w, nil); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))

	mux.HandleFunc("/debug/send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		cmd := r.FormValue("command")
		if cmd == "" {
			http.Error(w, "missing command", http.StatusBadRequest)
			return
		}
		if err := m.SendCommand(cmd); err != nil {
			http.Error(w, fmt.Sprintf("send failed: %v", err), http.StatusInternalServerError)
			return
		}
		fmt.Fprintln(w, "ok")
	})

	debug.Handle("tail", "Live station line stream", http.HandlerFunc(m.handleTail))

	mux.HandleFunc("/debug/tail.js", func(w http.ResponseWriter, r *http.Request) {
		data, err := templatesFS.ReadFile("templates/tail.js")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		w.Write(data)
	})
}

func (m *SensorMux[T]) handleTail(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, lines := m.Subscribe()
	defer m.Unsubscribe(id)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", line)
			flusher.Flush()
		}
	}
}
