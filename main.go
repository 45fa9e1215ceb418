package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nnikhil6/greenwave/internal/api"
	"github.com/nnikhil6/greenwave/internal/config"
	"github.com/nnikhil6/greenwave/internal/corridor"
	"github.com/nnikhil6/greenwave/internal/journal"
	"github.com/nnikhil6/greenwave/internal/sensormux"
	"github.com/nnikhil6/greenwave/internal/timeutil"
	"github.com/nnikhil6/greenwave/internal/units"
	"github.com/nnikhil6/greenwave/internal/version"
)

var (
	listen       = flag.String("listen", ":8080", "HTTP listen address")
	configPath   = flag.String("config", "", "Corridor layout JSON file (required)")
	dbFile       = flag.String("db", "greenwave.db", "Path to the sqlite journal file")
	udpPort      = flag.Int("udp-port", 2468, "UDP port for detector datagrams")
	udpAddress   = flag.String("udp-addr", "", "UDP bind address (default: listen on all interfaces)")
	rcvBuf       = flag.Int("rcvbuf", 1<<20, "UDP receive buffer size in bytes")
	serialPort   = flag.String("serial-port", "", "Detector station serial device (empty: no station attached)")
	stationID    = flag.String("station-id", "station-1", "Identifier journaled with raw station lines")
	displayUnits = flag.String("units", units.MPS, "Display units for approach speeds (mps, mph, kmph, kph)")
	debugStreams = flag.String("debug", "corridor", "Comma-separated corridor log streams (corridor,corridor-diag,corridor-trace)")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

// corridorLogWriters maps the -debug selectors onto the engine's three
// logging streams. Unselected streams stay nil and log nothing.
func corridorLogWriters(streams string) corridor.LogWriters {
	var w corridor.LogWriters
	for _, name := range strings.Split(streams, ",") {
		switch strings.TrimSpace(name) {
		case "":
		case "corridor":
			w.Ops = os.Stderr
		case "corridor-diag":
			w.Diag = os.Stderr
		case "corridor-trace":
			w.Trace = os.Stderr
		default:
			log.Printf("Unknown debug stream %q (want corridor, corridor-diag, corridor-trace)", name)
		}
	}
	return w
}

// buildCorridor turns the layout file into the live intersection sequence.
func buildCorridor(cfg *config.CorridorConfig) (*corridor.Corridor, error) {
	defs := make([]corridor.IntersectionDef, len(cfg.Intersections))
	for i, spec := range cfg.Intersections {
		defs[i] = corridor.IntersectionDef{
			ID:       spec.ID,
			Position: spec.GetPosition(i),
			Capacity: spec.GetCapacity(),
		}
	}
	timing := corridor.TimingConfig{
		SmoothingAlpha:    cfg.GetSmoothingAlpha(),
		MinGreen:          cfg.GetMinGreen(),
		MaxGreen:          cfg.GetMaxGreen(),
		Yellow:            cfg.GetYellow(),
		HeadroomThreshold: cfg.GetHeadroomThreshold(),
		ApproachGain:      cfg.GetApproachGain(),
		ApproachCap:       cfg.GetApproachCap(),
	}
	return corridor.NewCorridor(cfg.GetName(), defs, timing)
}

// Main
func main() {
	flag.Parse()

	// Handle the migrate subcommand before any daemon wiring
	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		journal.RunMigrateCommand(args[1:], *dbFile)
		return
	}

	if *showVersion {
		fmt.Printf("greenwave %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}
	if *configPath == "" {
		log.Fatal("Corridor layout config is required (-config)")
	}
	if !units.IsValid(*displayUnits) {
		log.Fatalf("Invalid units %q (valid: %s)", *displayUnits, units.GetValidUnitsString())
	}

	corridor.SetLogWriters(corridorLogWriters(*debugStreams))

	cfg, err := config.LoadCorridorConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load corridor config: %v", err)
	}

	corr, err := buildCorridor(cfg)
	if err != nil {
		log.Fatalf("Failed to build corridor: %v", err)
	}

	j, err := journal.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()

	stats := corridor.NewLoopStats()

	archive := func(ev corridor.IncidentEvent) {
		if err := j.ArchiveIncident(ev); err != nil {
			log.Printf("Failed to archive incident %s: %v", ev.ID, err)
		}
	}
	im, err := corridor.NewIncidentManager(corridor.IncidentConfig{
		SeverityThreshold: cfg.GetIncidentSeverityThreshold(),
		Timeout:           cfg.GetIncidentTimeout(),
	}, corr.IDs(), archive)
	if err != nil {
		log.Fatalf("Failed to build incident manager: %v", err)
	}

	coord := corridor.NewCoordinator(corr, im, stats)
	inbox := corridor.NewInbox(cfg.GetInboxCapacity())

	// Detector station: real serial mux when a port is configured, the
	// disabled stand-in otherwise so the rest of the wiring is identical.
	var m sensormux.SensorMuxInterface
	if *serialPort != "" {
		m, err = sensormux.NewStationMux(*serialPort, sensormux.PortConfig{})
		if err != nil {
			log.Fatalf("Failed to open detector station %s: %v", *serialPort, err)
		}
		if err := m.Initialize(); err != nil {
			log.Printf("Failed to initialize detector station: %v", err)
		}
	} else {
		m = sensormux.NewDisabledSensorMux()
		log.Println("Detector station disabled (use -serial-port to attach one)")
	}
	defer m.Close()

	srv := api.NewServer(coord, inbox, j, cfg, *displayUnits)

	writer := journal.NewDecisionWriter(j, 0)
	writer.Start()

	sinks := []corridor.DecisionSink{writer, srv.Stream()}

	var notifier *corridor.Notifier
	if url := cfg.GetGatewayURL(); url != "" {
		notifier = corridor.NewNotifier(cfg.GetName(), url, nil, stats)
		sinks = append(sinks, notifier)
		log.Printf("Pushing phase changes to gateway %s", url)
	}

	loop := corridor.NewLoop(cfg.GetTickInterval(), coord, inbox, timeutil.RealClock{}, sinks...)

	summaries := journal.NewSummaryWorker(j)
	summaries.Start()

	// Create a wait group for the control loop, intake, and server routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Control loop routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("Control loop error: %v", err)
		}
		log.Print("control loop terminated")
	}()

	// UDP intake routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		var addr string
		if *udpAddress == "" {
			addr = fmt.Sprintf(":%d", *udpPort)
		} else {
			addr = fmt.Sprintf("%s:%d", *udpAddress, *udpPort)
		}
		listener := corridor.NewUDPListener(corridor.UDPListenerConfig{
			Address: addr,
			RcvBuf:  *rcvBuf,
			Inbox:   inbox,
			Stats:   stats,
		})
		if err := listener.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("UDP listener error: %v", err)
		}
		log.Print("UDP listener routine terminated")
	}()

	// Gateway delivery routine
	if notifier != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := notifier.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("Gateway notifier error: %v", err)
			}
			log.Print("gateway notifier routine terminated")
		}()
	}

	// run the monitor routine to manage IO on the station port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("Failed to monitor detector station: %v", err)
		}
		log.Print("station monitor routine terminated")
	}()

	// subscribe to the station lines and pass them to the line handler
	handler := sensormux.NewLineHandler(*stationID, inbox, j, stats)
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := m.Subscribe()
		defer m.Unsubscribe(id)
		for {
			select {
			case payload, ok := <-c:
				if !ok {
					log.Print("station subscription closed")
					return
				}
				handler.HandleLine(payload)
			case <-ctx.Done():
				log.Print("station line routine terminated")
				return
			}
		}
	}()

	// HTTP server routine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes
		j.AttachAdminRoutes(mux)
		m.AttachAdminRoutes(mux)

		// the API mux registers full paths, so it mounts without stripping
		apiMux := srv.ServeMux()
		mux.Handle("/api/", apiMux)
		mux.Handle("/monitor/", apiMux)

		// Health check endpoint
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status": "ok", "service": "greenwave", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
		})

		// Basic info endpoint
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "text/html")

			stationStatus := "disabled"
			if *serialPort != "" {
				stationStatus = fmt.Sprintf("attached (%s)", *serialPort)
			}

			fmt.Fprintf(w, `
<!DOCTYPE html>
<html>
<head><title>greenwave</title></head>
<body>
	<h1>greenwave corridor controller</h1>
	<p>Corridor: %s (%d intersections)</p>
	<p>Detector datagrams on UDP port %d</p>
	<p>Detector station: %s</p>
	<ul>
		<li><a href="/health">Health check</a></li>
		<li><a href="/api/corridor">Corridor state</a></li>
		<li><a href="/api/stats">Loop stats</a></li>
		<li><a href="/monitor/timing">Timing chart</a></li>
		<li><a href="/monitor/density">Density chart</a></li>
		<li><a href="/debug/">Debug</a></li>
	</ul>
</body>
</html>`, cfg.GetName(), corr.Len(), *udpPort, stationStatus)
		})

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Open SSE streams hold Shutdown past the deadline; close them
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	log.Printf("Coordinating %s: %d intersections, tick interval %s", cfg.GetName(), corr.Len(), cfg.GetTickInterval())

	// Wait for all goroutines to finish, then flush the journal workers
	wg.Wait()
	summaries.Stop()
	writer.Stop()
	log.Printf("Graceful shutdown complete")
}
