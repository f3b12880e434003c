package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"linknote-server/internal/logging"
	"linknote-server/internal/middleware"
	"linknote-server/internal/websocket"
)

type WebSocketHandler struct {
	manager  *websocket.Manager
	upgrader ws.Upgrader
	logger   logging.Logger
}

// NewWebSocketHandler serves the admin change feed. Cross-origin upgrades are
// accepted only from allowedOrigins; "*" accepts any.
func NewWebSocketHandler(manager *websocket.Manager, readBuf, writeBuf int, allowedOrigins []string, logger logging.Logger) *WebSocketHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &WebSocketHandler{
		manager: manager,
		logger:  logger,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || origins["*"] || origins[origin] {
					return true
				}
				return origin == "http://"+r.Host || origin == "https://"+r.Host
			},
		},
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetAdminIdentity(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "identity", identity, "error", err)
		return
	}

	client := websocket.NewClient(uuid.NewString(), identity, conn, h.manager)
	if err := h.manager.Register(client); err != nil {
		code := ws.CloseInternalServerErr
		if errors.Is(err, websocket.ErrTooManyConnections) {
			code = ws.ClosePolicyViolation
		}
		conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(code, err.Error()))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
