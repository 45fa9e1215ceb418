package sensormux

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortConfigDefaults(t *testing.T) {
	var cfg PortConfig
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if cfg.BaudRate != 115200 || cfg.DataBits != 8 || cfg.StopBits != "1" || cfg.Parity != "N" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestPortConfigValidation(t *testing.T) {
	cases := []PortConfig{
		{BaudRate: -1},
		{DataBits: 9},
		{StopBits: "3"},
		{Parity: "X"},
	}
	for _, cfg := range cases {
		if err := cfg.Normalize(); err == nil {
			t.Errorf("Normalize(%+v) succeeded, want error", cfg)
		}
	}
}

func TestPortConfigMode(t *testing.T) {
	cfg := PortConfig{BaudRate: 19200, DataBits: 7, StopBits: "1.5", Parity: "E"}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	mode := cfg.Mode()
	if mode.BaudRate != 19200 || mode.DataBits != 7 {
		t.Errorf("unexpected mode: %+v", mode)
	}
	if mode.StopBits != serial.OnePointFiveStopBits {
		t.Errorf("stop bits = %v, want OnePointFiveStopBits", mode.StopBits)
	}
	if mode.Parity != serial.EvenParity {
		t.Errorf("parity = %v, want EvenParity", mode.Parity)
	}

	var def PortConfig
	def.Normalize()
	mode = def.Mode()
	if mode.StopBits != serial.OneStopBit || mode.Parity != serial.NoParity {
		t.Errorf("unexpected default mode: %+v", mode)
	}
}
