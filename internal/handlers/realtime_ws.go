package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/realtime"
	"golang.org/x/net/websocket"
)

const wsPingInterval = 30 * time.Second

func isLocalhostRemoteAddr(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil && h != "" {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

// internalWSAllowed reports whether a proxy may open a stream on behalf of
// ?userId. Loopback is always allowed; other callers need the shared secret
// in X-Internal-WS-Secret.
func (h *Handler) internalWSAllowed(r *http.Request) bool {
	if isLocalhostRemoteAddr(r.RemoteAddr) {
		return true
	}
	sec := strings.TrimSpace(h.InternalWSSecret)
	if sec == "" {
		return false
	}
	return strings.TrimSpace(r.Header.Get("X-Internal-WS-Secret")) == sec
}

// streamTarget picks whose events a websocket receives: the signed-in user
// for their own browser context, or ?userId for an allowed internal caller.
func (h *Handler) streamTarget(r *http.Request) (userID, ctxID string, ok bool) {
	if sess := currentSession(r); sess != nil {
		return sess.UserID, sess.ContextID, true
	}
	if !h.internalWSAllowed(r) {
		return "", "", false
	}
	userID = strings.TrimSpace(r.URL.Query().Get("userId"))
	return userID, strings.TrimSpace(r.URL.Query().Get("contextId")), userID != ""
}

// EventsWebSocket streams realtime events for one user.
//
// URL: /api/events/ws
// Auth: the session cookie, or X-Internal-WS-Secret with ?userId=...
func (h *Handler) EventsWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ctxID, ok := h.streamTarget(r)
	if !ok {
		h.log.Warn().Str("remote", r.RemoteAddr).Msg("realtime stream forbidden")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// x/net/websocket rejects an Origin that differs from Host by default;
	// auth is handled above.
	wsServer := websocket.Server{
		Handshake: func(cfg *websocket.Config, req *http.Request) error {
			return nil
		},
		Handler: func(c *websocket.Conn) {
			log := h.log.With().Str("userId", userID).Str("contextId", ctxID).Str("remote", r.RemoteAddr).Logger()
			log.Info().Msg("realtime connect")
			h.Hub.Add(userID, ctxID, c)
			defer h.Hub.Remove(userID, c)
			defer log.Info().Msg("realtime disconnect")

			// Send a hello so clients can confirm the channel.
			hello := realtime.Event{Type: realtime.EventHello, UserID: userID, At: time.Now().UTC().Format(time.RFC3339)}
			_ = websocket.JSON.Send(c, hello)

			done := make(chan struct{})
			var doneOnce sync.Once
			closeDone := func() { doneOnce.Do(func() { close(done) }) }
			go func() {
				ticker := time.NewTicker(wsPingInterval)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := websocket.Message.Send(c, `{"type":"ping"}`); err != nil {
							closeDone()
							return
						}
					}
				}
			}()

			// Read loop keeps the connection open and detects disconnects.
			for {
				var ignored string
				if err := websocket.Message.Receive(c, &ignored); err != nil {
					closeDone()
					break
				}
			}
		},
	}

	wsServer.ServeHTTP(w, r)
}
