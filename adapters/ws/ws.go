// Package ws provides the websocket endpoint for realtime subscriptions.
package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rowbase/rowbase/adapters/auth"
	"github.com/rowbase/rowbase/app"
	"github.com/rowbase/rowbase/domain/realtime"
	"github.com/rowbase/rowbase/pkg/respond"
	"github.com/rowbase/rowbase/ports"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// Client frames are tiny subscription commands; anything larger is abuse.
	maxFrameSize = 512
)

// Handler upgrades authenticated connections and bridges them to the
// fan-out service.
type Handler struct {
	tokens   *auth.TokenService
	hub      *app.RealtimeService
	ids      ports.IDGenerator
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the websocket handler.
func NewHandler(tokens *auth.TokenService, hub *app.RealtimeService, ids ports.IDGenerator, logger zerolog.Logger) *Handler {
	return &Handler{
		tokens: tokens,
		hub:    hub,
		ids:    ids,
		logger: logger.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Token auth, not cookie auth, so origin checks add nothing here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP authenticates via the token query parameter and upgrades. The
// connection starts with no subscriptions; the client sends subscribe
// frames to receive events.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.tokens.Decode(r.URL.Query().Get("token"))
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "invalid_token", "a valid access token is required")
		return
	}

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response.
		h.logger.Debug().Err(err).Msg("upgrade failed")
		return
	}

	c := newClient(h.ids.New(), sock)
	h.hub.Register(c, identity)
	h.logger.Debug().Str("subscriber", c.ID()).Str("sub", identity.Subject).Msg("connection opened")

	go c.writePump()
	h.readPump(c)
}

// clientFrame is a subscription command from the client.
type clientFrame struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// readPump owns the read side until the connection dies, then removes the
// connection from the hub.
func (h *Handler) readPump(c *client) {
	defer func() {
		h.hub.Unregister(c.ID())
		c.close()
		h.logger.Debug().Str("subscriber", c.ID()).Msg("connection closed")
	}()

	c.sock.SetReadLimit(maxFrameSize)
	c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame clientFrame
		if err := c.sock.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("subscriber", c.ID()).Msg("read error")
			}
			return
		}
		h.handleFrame(c, frame)
	}
}

func (h *Handler) handleFrame(c *client, frame clientFrame) {
	table, ok := realtime.TableForChannel(frame.Channel)
	if !ok {
		c.sendError("invalid_channel", "channel must be table:<name>")
		return
	}
	switch frame.Action {
	case "subscribe":
		h.hub.Subscribe(c.ID(), table)
	case "unsubscribe":
		h.hub.Unsubscribe(c.ID(), table)
	default:
		c.sendError("invalid_action", "action must be subscribe or unsubscribe")
	}
}
