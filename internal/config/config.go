package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the decoder's CLI/env-derived settings: which PID/page to
// follow, where to join the multicast feed, and how chatty/observable the
// run should be.
type Config struct {
	PID  int // TS PID carrying the VBI PES
	Page int // target Teletext page in BCD, e.g. decimal 888 -> 0x888; 0 = auto-select

	Addr string // multicast group, e.g. 239.1.1.1
	Port int

	Verbose bool

	MetricsAddr   string        // "" disables the /metrics and /healthz HTTP server
	StatsInterval time.Duration // /healthz goes stale after ten of these; no summary is logged
}

// Load reads defaults from TELXTUNER_* environment variables. CLI flags
// (wired in cmd/telxtuner) override whatever Load returns. TELXTUNER_PAGE
// is stored as given, without BCD conversion; ParsePositional sets Page in
// BCD.
func Load() *Config {
	c := &Config{
		PID:           getEnvInt("TELXTUNER_PID", 0),
		Page:          getEnvInt("TELXTUNER_PAGE", 0),
		Addr:          getEnv("TELXTUNER_ADDR", ""),
		Port:          getEnvInt("TELXTUNER_PORT", 0),
		Verbose:       getEnvBool("TELXTUNER_VERBOSE", false),
		MetricsAddr:   getEnv("TELXTUNER_METRICS_ADDR", ""),
		StatsInterval: getEnvDuration("TELXTUNER_STATS_INTERVAL", 30*time.Second),
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = 30 * time.Second
	}
	return c
}

// PageToBCD converts a decimal Teletext page number (0..899) to the BCD
// encoding the decoder compares against on the wire.
func PageToBCD(decimal int) int {
	return ((decimal / 100) << 8) | (((decimal / 10) % 10) << 4) | (decimal % 10)
}

// ParsePositional fills in PID, Page (converted to BCD), Addr and Port from
// the four CLI positional arguments telxtuner takes, mirroring the original
// tool's argc==5 usage.
func (c *Config) ParsePositional(pidArg, pageArg, addrArg, portArg string) error {
	pid, err := strconv.Atoi(pidArg)
	if err != nil {
		return fmt.Errorf("invalid pid %q: %w", pidArg, err)
	}
	page, err := strconv.Atoi(pageArg)
	if err != nil {
		return fmt.Errorf("invalid page %q: %w", pageArg, err)
	}
	port, err := strconv.Atoi(portArg)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", portArg, err)
	}
	if strings.TrimSpace(addrArg) == "" {
		return fmt.Errorf("invalid addr %q", addrArg)
	}
	c.PID = pid
	c.Page = PageToBCD(page)
	c.Addr = addrArg
	c.Port = port
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
