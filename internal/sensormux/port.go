package sensormux

import (
	"io"
	"time"
)

// SensorPorter is the minimal interface the mux needs from a detector
// station link. Real links are serial ports; tests substitute scripted
// in-memory ports.
type SensorPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSensorPorter extends SensorPorter with a read timeout. Optional;
// the mux uses it when the underlying port supports it.
type TimeoutSensorPorter interface {
	SensorPorter
	SetReadTimeout(timeout time.Duration) error
}
