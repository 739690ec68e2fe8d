package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"intersection/server"
	servernet "intersection/server/internal/net"
	"intersection/server/internal/tuning"
	"intersection/server/logging"
	loggingSinks "intersection/server/logging/sinks"
)

// Config carries the process-level settings an operator controls through
// the environment. Everything has a default; nothing is required.
type Config struct {
	Host           string
	Port           string
	WSPath         string
	AllowedOrigins []string
	TuningFile     string
	JournalDir     string
	Hub            server.Config
}

// FromEnv builds the process config from the environment, logging and
// ignoring invalid values rather than failing startup.
func FromEnv(logger *log.Logger) Config {
	cfg := Config{
		Host:   getenvDefault("HOST", ""),
		Port:   getenvDefault("PORT", "8080"),
		WSPath: getenvDefault("WS_PATH", "/ws"),
		Hub:    server.DefaultConfig(),
	}

	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	cfg.TuningFile = os.Getenv("TUNING_FILE")
	cfg.JournalDir = os.Getenv("JOURNAL_DIR")

	envInt(logger, "TICK_HZ", &cfg.Hub.TickRate)
	envInt(logger, "BROADCAST_HZ", &cfg.Hub.BroadcastRate)
	envInt(logger, "FASTPATH_HZ", &cfg.Hub.FastPathRate)
	envFloat(logger, "WORLD_WIDTH", &cfg.Hub.WorldWidth)
	envFloat(logger, "WORLD_HEIGHT", &cfg.Hub.WorldHeight)
	envMillis(logger, "HEARTBEAT_TIMEOUT_MS", &cfg.Hub.HeartbeatTimeout)

	return cfg
}

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(logger *log.Logger, key string, dst *int) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		logger.Printf("invalid %s=%q: %v", key, raw, err)
		return
	}
	*dst = value
}

func envFloat(logger *log.Logger, key string, dst *float64) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value <= 0 {
		logger.Printf("invalid %s=%q: %v", key, raw, err)
		return
	}
	*dst = value
}

func envMillis(logger *log.Logger, key string, dst *time.Duration) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		logger.Printf("invalid %s=%q: %v", key, raw, err)
		return
	}
	*dst = time.Duration(value) * time.Millisecond
}

// Run wires the hub, its three scheduler loops, and the HTTP surface, then
// serves until the listener fails. Steady-state per-connection errors never
// reach this level; the only fatal error is failing to bind.
func Run(ctx context.Context) error {
	logger := log.Default()
	cfg := FromEnv(logger)

	if cfg.TuningFile != "" {
		t, err := tuning.Load(cfg.TuningFile)
		if err != nil {
			logger.Printf("ignoring tuning file: %v", err)
		} else {
			cfg.Hub = t.Apply(cfg.Hub)
		}
	}

	logConfig := logging.DefaultConfig()
	sinks := map[string]logging.Sink{
		"console": loggingSinks.NewConsoleSink(os.Stdout, logConfig.Console),
	}
	if cfg.JournalDir != "" {
		logConfig.Journal.Dir = cfg.JournalDir
		logConfig.EnabledSinks = append(logConfig.EnabledSinks, "journal")
		sinks["journal"] = loggingSinks.NewJournalSink(logConfig.Journal)
	}

	router, err := logging.NewRouter(logConfig, logging.SystemClock{}, logger, sinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			logger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	hub := server.NewHub(cfg.Hub, router)
	stop := make(chan struct{})
	go hub.RunSimulation(stop)
	go hub.RunBroadcast(stop)
	go hub.RunFastPath(stop)
	defer close(stop)

	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		WSPath:         cfg.WSPath,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{Addr: cfg.Host + ":" + cfg.Port, Handler: handler}
	logger.Printf("server listening on %s", srv.Addr)

	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
