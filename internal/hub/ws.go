package hub

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kitemc/verifyd/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Allow same-origin requests and explicit localhost development.
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		originHost := hostWithoutPort(origin)
		requestHost := hostWithoutPort(r.Host)
		return originHost == requestHost || isLoopback(originHost)
	},
}

// ServeWS upgrades the HTTP connection, subscribes it to the hub, and pumps
// events until the client disconnects or falls behind.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithModule("hub").Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := h.Subscribe()
	go writeLoop(conn, session)
	readLoop(conn, h, session)
}

// readLoop discards inbound frames; its job is pong handling and detecting
// the disconnect so the session gets unsubscribed promptly.
func readLoop(conn *websocket.Conn, h *Hub, session *Session) {
	defer func() {
		h.Unsubscribe(session)
		_ = conn.Close()
	}()

	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithModule("hub").Debug("unexpected close",
					zap.String("session_id", session.ID()), zap.Error(err))
			}
			return
		}
	}
}

func writeLoop(conn *websocket.Conn, session *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case event, ok := <-session.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
