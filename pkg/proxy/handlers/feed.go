package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"mercator-hq/eventgate/pkg/proxy"
	"mercator-hq/eventgate/pkg/usage"
)

const (
	feedPingInterval = 25 * time.Second
	feedReadTimeout  = 60 * time.Second
	feedWriteTimeout = 5 * time.Second
)

// FeedHandler streams metered usage records over a WebSocket. An optional
// ?event= parameter limits the stream to one event.
type FeedHandler struct {
	feed     *usage.Feed
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewFeedHandler creates the live usage feed handler.
func NewFeedHandler(feed *usage.Feed) *FeedHandler {
	return &FeedHandler{
		feed:     feed,
		upgrader: websocket.Upgrader{CheckOrigin: sameOrigin},
		logger:   slog.Default().With("component", "usage.feed"),
	}
}

// sameOrigin accepts non-browser clients and same-host browser pages.
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// ServeHTTP upgrades the connection and relays records until either side
// closes.
func (h *FeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	proxy.SetDialect(r.Context(), "admin")
	eventID := r.URL.Query().Get("event")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.DebugContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.feed.Subscribe()
	defer h.feed.Unsubscribe(sub)

	_ = conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
	})

	// the read loop only services control frames and detects close
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(feedPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(feedWriteTimeout)); err != nil {
				return
			}
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			if eventID != "" && gjson.GetBytes(msg, "event_id").Str != eventID {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}
