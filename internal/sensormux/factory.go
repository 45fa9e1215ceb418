package sensormux

import (
	"fmt"

	"go.bug.st/serial"
)

// NewStationMux opens the serial link to a detector station and wraps
// it in a mux. The config is normalized before the port opens, so a
// zero PortConfig gets the station defaults.
func NewStationMux(portPath string, cfg PortConfig) (*SensorMux[serial.Port], error) {
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("port config: %w", err)
	}
	port, err := serial.Open(portPath, cfg.Mode())
	if err != nil {
		return nil, fmt.Errorf("open station port %s: %w", portPath, err)
	}
	return NewSensorMux(port), nil
}
