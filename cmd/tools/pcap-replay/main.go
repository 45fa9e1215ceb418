//go:build pcap
// +build pcap

// Package main replays captured detector datagrams against a live daemon.
// It reads a pcap file, filters UDP traffic on the detector port, and
// re-sends each payload to the daemon at original or accelerated pacing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// Config holds configuration for the replay run.
type Config struct {
	PCAPFile string
	Port     int
	Target   string
	Speed    float64
	Limit    int
}

func main() {
	config := parseFlags()

	if config.PCAPFile == "" {
		fmt.Fprintln(os.Stderr, "Error: PCAP file is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(config.PCAPFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: PCAP file not found: %s\n", config.PCAPFile)
		os.Exit(1)
	}
	if config.Speed <= 0 {
		config.Speed = 1.0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := replay(ctx, config); err != nil && ctx.Err() == nil {
		log.Fatalf("Replay failed: %v", err)
	}
}

func parseFlags() Config {
	config := Config{}

	flag.StringVar(&config.PCAPFile, "pcap", "", "Path to PCAP file (required)")
	flag.IntVar(&config.Port, "port", 2468, "UDP port filter for captured detector traffic")
	flag.StringVar(&config.Target, "target", "127.0.0.1:2468", "Daemon address to replay into")
	flag.Float64Var(&config.Speed, "speed", 1.0, "Replay speed (1.0 = original pacing, 10.0 = 10x)")
	flag.IntVar(&config.Limit, "limit", 0, "Stop after this many packets (0 = replay all)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Detector Capture Replay\n\n")
		fmt.Fprintf(os.Stderr, "Replays detector UDP datagrams from a capture file into a running\n")
		fmt.Fprintf(os.Stderr, "daemon, preserving inter-packet timing scaled by -speed.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -pcap corridor.pcap\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -pcap corridor.pcap -target 10.0.0.5:2468 -speed 20\n", os.Args[0])
	}

	flag.Parse()
	return config
}

func replay(ctx context.Context, config Config) error {
	raddr, err := net.ResolveUDPAddr("udp", config.Target)
	if err != nil {
		return fmt.Errorf("resolve target %s: %w", config.Target, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("dial target %s: %w", config.Target, err)
	}
	defer conn.Close()

	handle, err := pcap.OpenOffline(config.PCAPFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", config.PCAPFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", config.Port)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}
	log.Printf("Replaying %s -> %s (filter: %s, speed: %.1fx)",
		config.PCAPFile, config.Target, filterStr, config.Speed)

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	sentBytes := 0
	replayStart := time.Now()

	var firstPacketTime time.Time
	var lastPacketTime time.Time

	for {
		select {
		case <-ctx.Done():
			log.Printf("Replay stopping on signal (%d packets sent)", packetCount)
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				// End of capture
				elapsed := time.Since(replayStart)
				log.Printf("✓ Replay complete: %d packets, %d bytes in %v (speed: %.1fx)",
					packetCount, sentBytes, elapsed, config.Speed)
				return nil
			}

			captureTime := packet.Metadata().Timestamp
			if firstPacketTime.IsZero() {
				firstPacketTime = captureTime
				lastPacketTime = captureTime
			} else {
				// Delay since the previous packet, scaled by replay speed
				delay := captureTime.Sub(lastPacketTime)
				scaledDelay := time.Duration(float64(delay) / config.Speed)
				if scaledDelay > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(scaledDelay):
					}
				}
				lastPacketTime = captureTime
			}

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok {
				continue
			}
			payload := udp.Payload
			if len(payload) == 0 {
				continue
			}

			if _, err := conn.Write(payload); err != nil {
				return fmt.Errorf("send packet %d: %w", packetCount+1, err)
			}
			packetCount++
			sentBytes += len(payload)

			if packetCount%1000 == 0 {
				elapsed := time.Since(replayStart)
				originalDuration := captureTime.Sub(firstPacketTime)
				log.Printf("Replay progress: packets=%d, elapsed=%v, original_duration=%v",
					packetCount, elapsed, originalDuration)
			}

			if config.Limit > 0 && packetCount >= config.Limit {
				log.Printf("✓ Replay stopped at limit: %d packets", packetCount)
				return nil
			}
		}
	}
}
