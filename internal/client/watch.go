package client

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/PortNumber53/tubeshelf/backend/internal/middleware"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/PortNumber53/tubeshelf/backend/internal/realtime"
	"github.com/PortNumber53/tubeshelf/backend/internal/videos"
	"golang.org/x/net/websocket"
)

// WatchHandler receives realtime updates. Nil callbacks are skipped.
type WatchHandler struct {
	// OnVideos gets the whole list after each merged change.
	OnVideos   func(list []models.Video)
	OnCategory func(change models.ChangeType, c models.Category)
	// OnNavigate is called when the server moves this context, e.g. after a
	// sign-out elsewhere.
	OnNavigate func(path string)
}

func (c *Client) wsConfig() (*websocket.Config, error) {
	wsURL := *c.base
	wsURL.Scheme = "ws"
	if c.base.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	wsURL.Path = wsURL.Path + "/api/events/ws"
	origin := c.base.Scheme + "://" + c.base.Host
	cfg, err := websocket.NewConfig(wsURL.String(), origin)
	if err != nil {
		return nil, err
	}
	if c.contextID != "" {
		cfg.Header = http.Header{}
		cfg.Header.Set("Cookie", (&http.Cookie{Name: middleware.SessionCookie, Value: c.contextID}).String())
	}
	return cfg, nil
}

// Watch streams changes into list until ctx is done or the server closes the
// connection. Once ctx is cancelled no callback runs, even for a message
// already in flight.
func (c *Client) Watch(ctx context.Context, list []models.Video, h WatchHandler) error {
	cfg, err := c.wsConfig()
	if err != nil {
		return err
	}
	conn, err := websocket.DialConfig(cfg)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
	}()

	for {
		var ev realtime.Event
		if err := websocket.JSON.Receive(conn, &ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		list = apply(list, ev, h)
	}
}

func apply(list []models.Video, ev realtime.Event, h WatchHandler) []models.Video {
	switch ev.Type {
	case realtime.EventVideo:
		if ev.Video == nil {
			return list
		}
		list = videos.Merge(list, models.VideoChange{Type: ev.Change, Video: *ev.Video})
		if h.OnVideos != nil {
			h.OnVideos(list)
		}
	case realtime.EventCategory:
		if ev.Category != nil && h.OnCategory != nil {
			h.OnCategory(ev.Change, *ev.Category)
		}
	case realtime.EventNavigate:
		if h.OnNavigate != nil {
			h.OnNavigate(ev.Path)
		}
	}
	return list
}
