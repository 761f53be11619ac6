// Package proxy relays DevTools websocket traffic between a client and the
// browser that backs a live session.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shehryarbajwa/giftcard-mini/internal/browser"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	dialTimeout   = 10 * time.Second
	liveCheckTick = 500 * time.Millisecond
)

// Sessions reports whether a session is still live and which page target it
// owns.
type Sessions interface {
	Has(id string) bool
	DebugTarget(id string) (string, bool)
}

// Server proxies /devtools connections.
type Server struct {
	sessions Sessions
	endpoint func() string
	resolver *browser.EndpointResolver
	logger   *slog.Logger
}

// NewServer creates a proxy. endpoint returns the browser's DevTools URL, or
// "" when the browser exposes none.
func NewServer(sessions Sessions, endpoint func() string, resolver *browser.EndpointResolver, logger *slog.Logger) *Server {
	if resolver == nil {
		resolver = browser.NewEndpointResolver(5 * time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		sessions: sessions,
		endpoint: endpoint,
		resolver: resolver,
		logger:   logger,
	}
}

// HandleDebugConnection upgrades the request and relays frames to the
// session's own page target until either side closes or the session ends.
func (s *Server) HandleDebugConnection(w http.ResponseWriter, r *http.Request, sessionID string) {
	target, ok := s.sessions.DebugTarget(sessionID)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if target == "" {
		http.Error(w, "Session page has no DevTools target", http.StatusServiceUnavailable)
		return
	}

	endpoint := s.endpoint()
	if endpoint == "" {
		http.Error(w, "Browser does not expose a DevTools endpoint", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dialTimeout)
	defer cancel()

	browserURL := endpoint
	if strings.HasPrefix(endpoint, "http") {
		resolved, err := s.resolver.WebSocketURL(ctx, endpoint)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to resolve DevTools endpoint", "session_id", sessionID, "error", err)
			http.Error(w, "Browser unavailable", http.StatusBadGateway)
			return
		}
		browserURL = resolved
	}

	pageURL, err := pageEndpoint(browserURL, target)
	if err != nil {
		s.logger.WarnContext(ctx, "bad DevTools endpoint", "session_id", sessionID, "error", err)
		http.Error(w, "Browser unavailable", http.StatusBadGateway)
		return
	}

	browserConn, _, err := websocket.DefaultDialer.DialContext(ctx, pageURL, nil)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to connect to browser", "session_id", sessionID, "error", err)
		http.Error(w, "Browser unavailable", http.StatusBadGateway)
		return
	}
	defer browserConn.Close()

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "failed to upgrade connection", "error", err)
		return
	}
	defer clientConn.Close()

	s.logger.InfoContext(r.Context(), "devtools client connected", "session_id", sessionID)

	errChan := make(chan error, 2)
	go func() {
		errChan <- s.proxyMessages(clientConn, browserConn, "client->browser")
	}()
	go func() {
		errChan <- s.proxyMessages(browserConn, clientConn, "browser->client")
	}()

	ticker := time.NewTicker(liveCheckTick)
	defer ticker.Stop()

	running := 2
	for running == 2 {
		select {
		case err := <-errChan:
			running--
			if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.DebugContext(r.Context(), "devtools proxy stopped", "session_id", sessionID, "error", err)
			}
		case <-ticker.C:
			if !s.sessions.Has(sessionID) {
				_ = clientConn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					time.Now().Add(time.Second))
				_ = clientConn.Close()
				_ = browserConn.Close()
			}
		}
	}

	// Closing both ends unblocks the remaining reader.
	_ = clientConn.Close()
	_ = browserConn.Close()
	<-errChan

	s.logger.InfoContext(r.Context(), "devtools client disconnected", "session_id", sessionID)
}

// pageEndpoint points a browser DevTools websocket URL at one page target.
// Host and query (auth tokens) are kept.
func pageEndpoint(browserURL, target string) (string, error) {
	if strings.ContainsAny(target, "/?#") {
		return "", fmt.Errorf("malformed target id %q", target)
	}
	u, err := url.Parse(browserURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("not a websocket URL: %s", browserURL)
	}
	u.Path = "/devtools/page/" + target
	u.RawPath = ""
	return u.String(), nil
}

func (s *Server) proxyMessages(src, dst *websocket.Conn, direction string) error {
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) &&
				!errors.Is(err, net.ErrClosed) {
				s.logger.Debug("websocket read error", "direction", direction, "error", err)
			}
			return err
		}

		if err := dst.WriteMessage(messageType, message); err != nil {
			return err
		}
	}
}
