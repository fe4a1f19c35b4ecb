// Command tofview streams a depth camera to a browser and gRPC viewers,
// pausing the camera whenever the device has been still for too long.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/tofview/internal/camera"
	"github.com/banshee-data/tofview/internal/config"
	"github.com/banshee-data/tofview/internal/display"
	"github.com/banshee-data/tofview/internal/imu"
	"github.com/banshee-data/tofview/internal/journal"
	"github.com/banshee-data/tofview/internal/pipeline"
	"github.com/banshee-data/tofview/internal/session"
	"github.com/banshee-data/tofview/internal/timeutil"
	"github.com/banshee-data/tofview/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", "localhost:50061", "gRPC Watch listen address (empty disables)")
	configPath  = flag.String("config", "", "Path to a tuning JSON file (defaults built in)")
	devMode     = flag.Bool("dev", false, "Use the synthetic camera and a simulated IMU")
	cameraKind  = flag.String("camera", "udp", "Camera source: synthetic, udp or pcap")
	udpAddr     = flag.String("udp-addr", ":7600", "UDP address for DEPTH16 fragments")
	pcapFile    = flag.String("pcap", "", "pcap file to replay when -camera=pcap")
	pcapLoop    = flag.Bool("pcap-loop", true, "Restart the pcap replay at end of file")
	imuPort     = flag.String("imu-port", "", "Serial port of the accelerometer (empty simulates one)")
	dbPath      = flag.String("db", "", "SQLite journal path (empty disables the journal)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

// newOpener selects the camera backend.
func newOpener(kind string, dev bool) (session.Opener, error) {
	if dev {
		kind = "synthetic"
	}
	switch kind {
	case "synthetic":
		return camera.NewSynthetic(), nil
	case "udp":
		return camera.NewNetwork(camera.NetworkConfig{Address: *udpAddr}), nil
	case "pcap":
		if *pcapFile == "" {
			return nil, errors.New("-pcap is required with -camera=pcap")
		}
		port, err := udpPort(*udpAddr)
		if err != nil {
			return nil, err
		}
		return camera.NewReplay(camera.ReplayConfig{Path: *pcapFile, UDPPort: port, Loop: *pcapLoop}), nil
	default:
		return nil, fmt.Errorf("unknown camera %q", kind)
	}
}

// udpPort extracts the port of a host:port address. An empty address
// yields 0, which accepts every port.
func udpPort(addr string) (int, error) {
	if addr == "" {
		return 0, nil
	}
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("invalid -udp-addr %q: %w", addr, err)
	}
	return strconv.Atoi(p)
}

func newIMU(tc *config.TuningConfig, port string, dev bool) (*imu.Source, error) {
	if dev || port == "" {
		return imu.NewSimulatedSource(timeutil.RealClock{}, 50*time.Millisecond), nil
	}
	return imu.NewSerialSource(port, imu.PortOptionsFromTuning(tc))
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	log.Printf("starting %s", version.String())

	tc, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg, err := pipeline.ConfigFromTuning(tc)
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	opener, err := newOpener(*cameraKind, *devMode)
	if err != nil {
		log.Fatalf("failed to create camera: %v", err)
	}

	source, err := newIMU(tc, *imuPort, *devMode)
	if err != nil {
		log.Fatalf("failed to open IMU: %v", err)
	}
	defer source.Close()

	var opts []pipeline.Option
	var j *journal.Journal
	if *dbPath != "" {
		j, err = journal.Open(*dbPath, journal.WithFrameInterval(tc.GetJournalFrameInterval()))
		if err != nil {
			log.Fatalf("failed to open journal: %v", err)
		}
		defer j.Close()
		opts = append(opts, pipeline.WithJournal(j))
	}

	surface := display.NewSurface(tc.GetViewWidth(), tc.GetViewHeight())
	rt := pipeline.NewRuntime(cfg, opener, surface, opts...)
	defer rt.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the IMU port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := source.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor IMU: %v", err)
		}
		log.Print("IMU monitor routine terminated")
	}()

	// feed IMU samples to the idle monitor
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, samples := source.Subscribe()
		defer source.Unsubscribe(id)
		if err := rt.Run(ctx, samples); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("motion routine failed: %v", err)
		}
		log.Print("motion routine terminated")
	}()

	// SIGUSR1 backgrounds the app and SIGUSR2 brings it back.
	wg.Add(1)
	go func() {
		defer wg.Done()
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				switch sig {
				case syscall.SIGUSR1:
					log.Print("backgrounding")
					rt.Background()
				case syscall.SIGUSR2:
					log.Print("foregrounding")
					if err := rt.Foreground(ctx); err != nil {
						log.Printf("foreground failed: %v", err)
					}
				}
			}
		}
	}()

	if *grpcListen != "" {
		pcfg := display.DefaultPublisherConfig()
		pcfg.ListenAddr = *grpcListen
		pub := display.NewPublisher(pcfg, surface)
		if err := pub.Start(); err != nil {
			log.Fatalf("failed to start gRPC publisher: %v", err)
		}
		defer pub.Stop()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		display.NewAPI(surface, rt).RegisterRoutes(mux)
		rt.Diagnostics.AttachAdminRoutes(mux)
		source.AttachAdminRoutes(mux)
		if j != nil {
			if err := j.AttachAdminRoutes(mux); err != nil {
				log.Printf("journal admin routes disabled: %v", err)
			}
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	// The app starts in the foreground, as if just launched.
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := rt.Foreground(openCtx); err != nil {
		log.Printf("camera did not start: %v", err)
	}
	cancel()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
