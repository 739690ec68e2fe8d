package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"time"

	"intersection/server"
	"intersection/server/internal/net/ws"
)

type HTTPHandlerConfig struct {
	// WSPath is the websocket mount point, "/ws" by default.
	WSPath         string
	AllowedOrigins []string
	Logger         *log.Logger
}

// NewHTTPHandler assembles the server's HTTP surface: health, diagnostics,
// and the websocket endpoint.
func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	wsPath := cfg.WSPath
	if wsPath == "" {
		wsPath = "/ws"
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string                   `json:"status"`
			ServerTime int64                    `json:"serverTime"`
			TickRate   int                      `json:"tickRate"`
			Heartbeat  int64                    `json:"heartbeatTimeoutMillis"`
			Hub        server.DiagnosticsReport `json:"hub"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			TickRate:   hub.Config().TickRate,
			Heartbeat:  hub.Config().HeartbeatTimeout.Milliseconds(),
			Hub:        hub.DiagnosticsSnapshot(),
		}

		data, err := json.Marshal(payload)
		if err != nil {
			nethttp.Error(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	wsHandler := ws.NewHandler(hub, ws.HandlerConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})
	mux.HandleFunc(wsPath, wsHandler.Handle)

	return mux
}
