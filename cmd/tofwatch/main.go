// Command tofwatch follows a running tofview over gRPC, printing status
// and range changes and optionally saving every rendered view as PNG.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/banshee-data/tofview/internal/display"
)

var (
	addr       = flag.String("addr", "localhost:50061", "tofview gRPC address")
	pngDir     = flag.String("png-dir", "", "Directory to save rendered views into (empty disables)")
	includePNG = flag.Bool("include-png", false, "Request encoded views even when -png-dir is empty")
	quiet      = flag.Bool("quiet", false, "Do not print frame events")
)

// printer writes one line per message and saves attached views.
type printer struct {
	out    io.Writer
	dir    string
	quiet  bool
	frames int
}

func (p *printer) handle(m display.WatchMessage) error {
	switch m.Kind {
	case display.EventStatus:
		status := m.Status
		if status == "" {
			status = "(cleared)"
		}
		fmt.Fprintf(p.out, "%s status %s\n", m.Time.Format("15:04:05.000"), status)
	case display.EventRange:
		fmt.Fprintf(p.out, "%s %s [%s]\n", m.Time.Format("15:04:05.000"), m.RangeText, m.Policy)
	case display.EventBlank:
		fmt.Fprintf(p.out, "%s blank\n", m.Time.Format("15:04:05.000"))
	case display.EventFrame:
		p.frames++
		if !p.quiet {
			fmt.Fprintf(p.out, "%s frame #%d seq=%d\n", m.Time.Format("15:04:05.000"), p.frames, m.Seq)
		}
	}

	if p.dir != "" && len(m.PNG) > 0 {
		name := filepath.Join(p.dir, fmt.Sprintf("view-%08d.png", m.Seq))
		if err := os.WriteFile(name, m.PNG, 0o644); err != nil {
			return fmt.Errorf("save view: %w", err)
		}
	}
	return nil
}

func main() {
	flag.Parse()

	if *pngDir != "" {
		if err := os.MkdirAll(*pngDir, 0o755); err != nil {
			log.Fatalf("failed to create %s: %v", *pngDir, err)
		}
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *addr, err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := &printer{out: os.Stdout, dir: *pngDir, quiet: *quiet}
	req := display.WatchRequest{IncludePNG: *includePNG || *pngDir != ""}
	if err := display.Watch(ctx, conn, req, p.handle); err != nil && ctx.Err() == nil {
		log.Fatalf("watch failed: %v", err)
	}
	log.Printf("watched %d frames", p.frames)
}
