// Command telxtuner follows one DVB Teletext subtitle page from a live
// RTP-encapsulated MPEG-2 Transport Stream multicast feed and prints a
// tab-delimited subtitle frame line (show-ms, hide-ms, then each
// rendered row) for every displayable subtitle instance.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snapetech/telxtuner/internal/config"
	"github.com/snapetech/telxtuner/internal/decoder"
	"github.com/snapetech/telxtuner/internal/health"
	"github.com/snapetech/telxtuner/internal/ingest"
	"github.com/snapetech/telxtuner/internal/metrics"
)

func main() {
	cfg := config.Load()

	verbose := flag.Bool("verbose", cfg.Verbose, "log recoverable stream errors")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "address to serve /metrics and /healthz on (empty disables)")
	statsInterval := flag.Duration("stats-interval", cfg.StatsInterval, "interval whose tenfold sets when /healthz reports the feed stale")
	flag.Parse()

	args := flag.Args()
	if len(args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: telxtuner <pid> <page> <multicast-addr> <port>")
		os.Exit(1)
	}
	if err := cfg.ParsePositional(args[0], args[1], args[2], args[3]); err != nil {
		fmt.Fprintf(os.Stderr, "telxtuner: %v\n", err)
		os.Exit(1)
	}
	cfg.Verbose = *verbose
	cfg.MetricsAddr = *metricsAddr
	cfg.StatsInterval = *statsInterval

	var collectors *metrics.Collectors
	tracker := health.NewTracker(10 * cfg.StatsInterval)
	if cfg.MetricsAddr != "" {
		collectors = metrics.New()
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr, collectors, tracker); err != nil {
				log.Printf("telxtuner: metrics server stopped: %v", err)
			}
		}()
	}

	recv, err := ingest.Join(cfg.Addr, cfg.Port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telxtuner: %v\n", err)
		os.Exit(1)
	}
	defer recv.Close()
	recv.Verbose = cfg.Verbose

	dec := decoder.New(uint16(cfg.PID), cfg.Page, collectors)
	dec.Verbose = cfg.Verbose
	dec.Emit = func(line string) {
		fmt.Print(line)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- recv.Run(func(tsPacket []byte) {
			tracker.Touch(time.Now())
			dec.FeedTSPacket(tsPacket)
		})
	}()

	select {
	case <-sig:
		log.Print("telxtuner: shutting down")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "telxtuner: %v\n", err)
		os.Exit(1)
	}
}
