// Command gen-readings sends synthetic detector traffic at a running daemon.
// Queue counts are Poisson-sampled per intersection so the corridor sees
// plausible load; -incident-rate occasionally flags an incident on a reading.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/nnikhil6/greenwave/internal/config"
	"github.com/nnikhil6/greenwave/internal/corridor"
	"github.com/nnikhil6/greenwave/internal/units"
)

func main() {
	configPath := flag.String("config", "", "corridor layout file (readings target its intersections)")
	target := flag.String("target", "127.0.0.1:2468", "daemon UDP address")
	interval := flag.Duration("interval", 500*time.Millisecond, "time between reading bursts")
	duration := flag.Duration("duration", 30*time.Second, "how long to send (0 = until killed)")
	load := flag.Float64("load", 0.4, "demand as a fraction of intersection capacity")
	speed := flag.Float64("speed", 40.0, "mean approach speed")
	speedUnits := flag.String("units", units.KPH, "units for -speed: "+units.GetValidUnitsString())
	incidentRate := flag.Float64("incident-rate", 0.0, "per-reading probability of flagging an incident")
	seed := flag.Int64("seed", 0, "random seed (0 = time-based)")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("-config is required")
	}
	cfg, err := config.LoadCorridorConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load corridor layout: %v", err)
	}
	if len(cfg.Intersections) == 0 {
		log.Fatal("Corridor layout has no intersections to target")
	}
	if !units.IsValid(*speedUnits) {
		log.Fatalf("Invalid units %q (valid: %s)", *speedUnits, units.GetValidUnitsString())
	}
	meanSpeedMPS := units.ConvertToMPS(*speed, *speedUnits)

	raddr, err := net.ResolveUDPAddr("udp", *target)
	if err != nil {
		log.Fatalf("Failed to resolve %s: %v", *target, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		log.Fatalf("Failed to dial %s: %v", *target, err)
	}
	defer conn.Close()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	log.Printf("Sending detector reports for %s (%d intersections) to %s",
		cfg.GetName(), len(cfg.Intersections), *target)

	sent := 0
	start := time.Now()
	lastProgress := start
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for now := range ticker.C {
		for _, spec := range cfg.Intersections {
			reading := corridor.SensorReading{
				Intersection: spec.ID,
				Count:        poisson(rng, *load*spec.GetCapacity()),
				Approaching:  poisson(rng, *load*spec.GetCapacity()/3),
				AvgSpeedMPS:  math.Max(0, meanSpeedMPS+rng.NormFloat64()*meanSpeedMPS/8),
				Timestamp:    now,
			}
			if *incidentRate > 0 && rng.Float64() < *incidentRate {
				reading.Incident = true
				reading.Severity = 0.5 + rng.Float64()*0.5
			}

			payload, err := json.Marshal(reading)
			if err != nil {
				log.Fatalf("Failed to marshal reading: %v", err)
			}
			if _, err := conn.Write(payload); err != nil {
				log.Printf("Send failed: %v", err)
				continue
			}
			sent++
		}

		if time.Since(lastProgress) >= 5*time.Second {
			log.Printf("%d readings sent", sent)
			lastProgress = time.Now()
		}
		if *duration > 0 && time.Since(start) >= *duration {
			break
		}
	}

	log.Printf("✓ Sent %d readings to %s in %v", sent, *target, time.Since(start).Round(time.Millisecond))
}

// poisson draws from a Poisson distribution with Knuth's method, which is
// fine for the small means used here.
func poisson(rng *rand.Rand, lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	l := math.Exp(-lambda)
	k := 0
	p := 1.0
	for p > l {
		k++
		p *= rng.Float64()
	}
	return k - 1
}
