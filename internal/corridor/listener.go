package corridor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"time"
)

// UDPListener receives detector-station datagrams and posts them into the
// corridor inbox. One datagram carries one JSON SensorReading; stations that
// detect an incident set the incident flag and severity on the reading.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	buffer      []byte
	inbox       *Inbox
	stats       *LoopStats
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Inbox       *Inbox
	Stats       *LoopStats
}

// NewUDPListener creates a new UDP listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	logInterval := config.LogInterval
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		buffer:      make([]byte, 2048), // Detector reports are small JSON documents
		inbox:       config.Inbox,
		stats:       config.Stats,
	}
}

// Start begins receiving datagrams until the context is cancelled or an
// unrecoverable socket error occurs.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %v", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %v", err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			log.Printf("Warning: failed to set UDP receive buffer to %d bytes: %v", l.rcvBuf, err)
		}
	}

	log.Printf("Listening for detector reports on %s", l.address)

	go l.startStatsLogging(ctx)

	timeoutCount := 0
	for {
		select {
		case <-ctx.Done():
			log.Println("Detector listener shutting down")
			return ctx.Err()
		default:
			// Read with a deadline so context cancellation is noticed.
			if err := conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
				log.Printf("Error setting read deadline: %v", err)
				continue
			}

			n, _, err := conn.ReadFromUDP(l.buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					timeoutCount++
					if timeoutCount%60 == 0 {
						log.Printf("No detector reports for %d seconds", timeoutCount)
					}
					continue
				}
				log.Printf("Error reading detector datagram: %v", err)
				continue
			}

			timeoutCount = 0
			l.handleDatagram(l.buffer[:n])
		}
	}
}

// handleDatagram parses one datagram and hands it to the inbox. Malformed
// payloads are counted and dropped, never fatal.
func (l *UDPListener) handleDatagram(payload []byte) {
	var reading SensorReading
	if err := json.Unmarshal(payload, &reading); err != nil {
		Tracef("datagram dropped: %v", err)
		l.stats.AddDropped(1)
		return
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now()
	}
	// Flagged incidents ride along on the reading; the coordinator feeds
	// them to the incident manager when the reading is applied.
	if err := l.inbox.PostReading(reading); err != nil {
		Diagf("datagram dropped: %v", err)
		l.stats.AddDropped(1)
	}
}

// startStatsLogging logs loop statistics at regular intervals.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}
