// Command sensorhub runs the sensor adapter runtime: it registers the
// adapters declared in the sensor manifest, supervises their acquisition
// loops, and serves the HTTP/WebSocket request layer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/sensorhub/internal/adapters/serialline"
	"github.com/banshee-data/sensorhub/internal/adapters/sim"
	"github.com/banshee-data/sensorhub/internal/api"
	"github.com/banshee-data/sensorhub/internal/bridge"
	"github.com/banshee-data/sensorhub/internal/config"
	"github.com/banshee-data/sensorhub/internal/hub"
	"github.com/banshee-data/sensorhub/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	manifest    = flag.String("manifest", "", "Path to the sensor manifest YAML")
	devMode     = flag.Bool("dev", false, "Register a simulated sensor (sim1 @ 20 Hz) when no manifest is given")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("sensorhub %s (commit %s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		os.Exit(0)
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	registry := hub.NewRegistry()

	var lidarBridge *bridge.Bridge
	if *manifest != "" {
		m, err := config.LoadManifest(*manifest)
		if err != nil {
			log.Fatalf("Failed to load sensor manifest: %v", err)
		}
		for _, entry := range m.Sensors {
			adapter, b, err := buildAdapter(entry)
			if err != nil {
				log.Fatalf("Failed to build sensor %q: %v", entry.ID, err)
			}
			if b != nil {
				if lidarBridge != nil {
					log.Fatalf("Only one bridge-backed sensor is supported per process (second: %q)", entry.ID)
				}
				lidarBridge = b
			}
			if err := registry.Register(adapter); err != nil {
				log.Fatalf("Failed to register sensor %q: %v", entry.ID, err)
			}
			log.Printf("Registered sensor %s (kind=%s)", entry.ID, entry.Kind)
		}
	} else if *devMode {
		if err := registry.Register(sim.New("sim1", "sim", 20)); err != nil {
			log.Fatalf("Failed to register sim sensor: %v", err)
		}
		log.Print("Dev mode: registered sim1 @ 20 Hz")
	} else {
		log.Fatal("Either -manifest or -dev is required")
	}

	server := api.NewServer(registry, lidarBridge)
	mux := server.ServeMux()
	server.AttachDebugRoutes(mux)

	httpServer := &http.Server{
		Addr:    *listen,
		Handler: mux,
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("sensorhub %s serving on %s", version.Version, *listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Print("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	registry.StopAll()
	wg.Wait()
	log.Print("All adapters stopped")
}

// buildAdapter constructs the adapter for one manifest entry. For
// bridge-backed kinds the bridge is also returned so the request layer
// can expose its control surface.
func buildAdapter(entry config.SensorEntry) (hub.Adapter, *bridge.Bridge, error) {
	switch entry.Kind {
	case "sim":
		return sim.New(entry.ID, entry.Kind, entry.Float("hz", sim.DefaultHz)), nil, nil

	case "imu":
		port := entry.String("port", "/dev/ttyUSB0")
		baud := entry.Int("baud", 115200)
		return serialline.NewIMU(entry.ID, serialline.OpenSerial(port, baud)).Reconnecting(), nil, nil

	case "gps":
		port := entry.String("port", "/dev/ttyACM0")
		baud := entry.Int("baud", 9600)
		return serialline.NewGPS(entry.ID, serialline.OpenSerial(port, baud)).Reconnecting(), nil, nil

	case "lidar3d":
		b, err := bridge.New(bridge.Options{
			SensorID:      entry.ID,
			Kind:          entry.Kind,
			Exe:           entry.String("bridge_exe", ""),
			ConfigPath:    entry.String("config_path", ""),
			UseUDP:        entry.Bool("use_udp", true),
			UDPListenPort: entry.Int("udp_listen_port", bridge.DefaultUDPListenPort),
			MaxFrames:     entry.Int("max_frames", bridge.DefaultMaxFrames),
			MaxStats:      entry.Int("max_stats", bridge.DefaultMaxStats),
		})
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil

	case "camera":
		// Vendor capture stacks are wired by embedding programs through the
		// capture package; the stock binary has no device backend.
		return nil, nil, fmt.Errorf("camera sensors require an embedding program to supply a capture source")

	default:
		return nil, nil, fmt.Errorf("unknown sensor kind %q", entry.Kind)
	}
}
