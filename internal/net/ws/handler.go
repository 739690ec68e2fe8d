package ws

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	"intersection/server"
)

// defaultAllowedOrigins always pass the origin check; deployment-specific
// origins from the environment are merged on top.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
}

type HandlerConfig struct {
	AllowedOrigins []string
	Logger         *log.Logger
}

type Handler struct {
	hub      *server.Hub
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *server.Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	allowed := make(map[string]bool, len(defaultAllowedOrigins)+len(cfg.AllowedOrigins))
	for _, origin := range defaultAllowedOrigins {
		allowed[origin] = true
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin != "" {
			allowed[origin] = true
		}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients send no Origin header.
				return true
			}
			return allowed[origin]
		},
	}

	return &Handler{hub: hub, logger: logger, upgrader: upgrader}
}

// Handle upgrades the connection, fixes its role from the query string, and
// runs the read loop until the client goes away. Every inbound event is a
// call into the hub; malformed payloads are discarded without surfacing an
// error to the sender.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	role := server.ParseRole(r.URL.Query().Get("role"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed: %v", err)
		return
	}

	sess, init := h.hub.Connect(role, conn)
	if err := sess.WriteJSON(init); err != nil {
		h.hub.Disconnect(sess.ID())
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.hub.Disconnect(sess.ID())
			return
		}

		var msg server.ClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logger.Printf("discarding malformed message from %s: %v", sess.ID(), err)
			continue
		}

		switch msg.Type {
		case "respawn":
			welcome, ok := h.hub.Respawn(sess.ID())
			if !ok {
				h.logger.Printf("respawn ignored for %s role=%s", sess.ID(), sess.Role())
				continue
			}
			if err := sess.WriteJSON(welcome); err != nil {
				h.hub.Disconnect(sess.ID())
				return
			}
		case "gotit":
			if !h.hub.SetDisplay(sess.ID(), msg.Name, msg.ScreenWidth, msg.ScreenHeight) {
				h.logger.Printf("gotit ignored for %s: no entity", sess.ID())
			}
		case "windowResized":
			h.hub.Resize(sess.ID(), msg.ScreenWidth, msg.ScreenHeight)
		case "move":
			h.hub.UpdateIntent(sess.ID(), msg.VX, msg.VY)
		case "heartbeat":
			now := time.Now()
			rtt, ok := h.hub.UpdateHeartbeat(sess.ID(), now, msg.SentAt)
			if !ok {
				continue
			}
			ack := server.HeartbeatAckMessage{
				Ver:        server.ProtocolVersion,
				Type:       server.TypeHeartbeat,
				ServerTime: now.UnixMilli(),
				ClientTime: msg.SentAt,
				RTTMillis:  rtt.Milliseconds(),
			}
			if err := sess.WriteJSON(ack); err != nil {
				h.hub.Disconnect(sess.ID())
				return
			}
		case "param":
			h.hub.BroadcastParam(msg.Value)
		case "noiseSlots:set":
			if msg.Slot == nil {
				continue
			}
			if slots, ok := h.hub.SetNoiseSlot(sess.ID(), *msg.Slot, msg.NodeIDs); ok {
				h.hub.BroadcastNoiseSlots(slots)
			}
		case "noiseSlots:clear":
			if msg.Slot == nil {
				continue
			}
			if slots, ok := h.hub.ClearNoiseSlot(sess.ID(), *msg.Slot); ok {
				h.hub.BroadcastNoiseSlots(slots)
			}
		default:
			h.logger.Printf("unknown message type %q from %s", msg.Type, sess.ID())
		}
	}
}
