package sensormux

import (
	"io"
	"strings"
	"sync"
)

// ScriptedPort is an in-memory SensorPorter for tests. Reads block
// until a line is queued, an error is armed, or the port closes, which
// matches how a real station port behaves between reports.
type ScriptedPort struct {
	mu         sync.Mutex
	readCond   *sync.Cond
	pending    []byte
	written    []byte
	readErr    error
	writeErr   error
	closeErr   error
	closed     bool
	shortWrite bool
}

// NewScriptedPort returns an empty port. Queue lines with AddLine.
func NewScriptedPort() *ScriptedPort {
	p := &ScriptedPort{}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// AddLine queues one station line for readers. The newline is added.
func (p *ScriptedPort) AddLine(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, line...)
	p.pending = append(p.pending, '\n')
	p.readCond.Broadcast()
}

// FailReads arms a read error. Queued data drains first.
func (p *ScriptedPort) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
	p.readCond.Broadcast()
}

// FailWrites arms a write error for all subsequent writes.
func (p *ScriptedPort) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// FailClose arms the error Close will return.
func (p *ScriptedPort) FailClose(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeErr = err
}

// ShortWrites makes every write drop its final byte.
func (p *ScriptedPort) ShortWrites() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shortWrite = true
}

// Written returns everything written to the port so far.
func (p *ScriptedPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.written)
}

// WrittenLines splits the written bytes into commands, one per line.
func (p *ScriptedPort) WrittenLines() []string {
	raw := strings.TrimSuffix(p.Written(), "\n")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}

func (p *ScriptedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.pending) == 0 && p.readErr == nil && !p.closed {
		p.readCond.Wait()
	}
	if len(p.pending) == 0 {
		if p.readErr != nil {
			return 0, p.readErr
		}
		return 0, io.EOF
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *ScriptedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeErr != nil {
		return 0, p.writeErr
	}
	if p.shortWrite && len(b) > 0 {
		p.written = append(p.written, b[:len(b)-1]...)
		return len(b) - 1, nil
	}
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *ScriptedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.readCond.Broadcast()
	return p.closeErr
}
