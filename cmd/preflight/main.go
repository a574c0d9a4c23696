// cmd/preflight/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/hamed0406/endpointmonitor/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	flag.Parse()

	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err.Error())
	}
	if err := cfg.Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintln(os.Stderr, "✖", line)
		}
		os.Exit(1)
	}

	ok("API_ADDR=" + cfg.Addr)
	ok("STORE_DRIVER=" + cfg.StoreDriver)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		warn("in-memory store: endpoints and history are lost on restart.")
	case config.DriverPostgres:
		ok("DATABASE_URL present")
	case config.DriverRedis:
		ok("REDIS_URL present")
	case config.DriverSQLite:
		ok("SQLITE_PATH=" + cfg.SQLitePath)
	}

	if cfg.CheckInterval == 0 {
		warn("CHECK_INTERVAL_MS=0; scheduled checks are disabled, only manual checks will run.")
	} else {
		ok("check interval " + cfg.CheckInterval.String())
	}
	if cfg.ProbeTimeout > cfg.CheckInterval && cfg.CheckInterval > 0 {
		warn("PROBE_TIMEOUT_MS exceeds CHECK_INTERVAL_MS; slow endpoints will skip ticks.")
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; any origin may call the API.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	ok("preflight passed")
}
