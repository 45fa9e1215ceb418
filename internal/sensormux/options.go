package sensormux

import (
	"fmt"

	"go.bug.st/serial"
)

// PortConfig describes the serial link to a detector station.
type PortConfig struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits string `json:"stop_bits"` // "1", "1.5", or "2"
	Parity   string `json:"parity"`    // "N", "O", or "E"
}

// Normalize fills zero values with station defaults and validates the rest.
// Stations ship configured for 115200 8N1.
func (c *PortConfig) Normalize() error {
	if c.BaudRate == 0 {
		c.BaudRate = 115200
	}
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.StopBits == "" {
		c.StopBits = "1"
	}
	if c.Parity == "" {
		c.Parity = "N"
	}

	if c.BaudRate < 0 {
		return fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	switch c.DataBits {
	case 5, 6, 7, 8:
	default:
		return fmt.Errorf("invalid data bits %d", c.DataBits)
	}
	switch c.StopBits {
	case "1", "1.5", "2":
	default:
		return fmt.Errorf("invalid stop bits %q", c.StopBits)
	}
	switch c.Parity {
	case "N", "O", "E":
	default:
		return fmt.Errorf("invalid parity %q", c.Parity)
	}
	return nil
}

// Mode converts the config into the mode structure the serial driver wants.
// Call Normalize first; Mode assumes the fields are valid.
func (c *PortConfig) Mode() *serial.Mode {
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
	}
	switch c.StopBits {
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}
	switch c.Parity {
	case "O":
		mode.Parity = serial.OddParity
	case "E":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode
}
