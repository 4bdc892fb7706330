package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/logging"
	"github.com/PortNumber53/tubeshelf/backend/internal/metrics"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Notification is one row change published by the database triggers.
type Notification struct {
	Table     string            `json:"table"`
	Type      models.ChangeType `json:"type"`
	Record    json.RawMessage   `json:"record"`
	OldRecord json.RawMessage   `json:"old_record"`
	// Partial rows carry only id and user_id; the full row was too large
	// for a NOTIFY payload.
	Partial bool `json:"partial"`
}

// Row returns the record that describes the change: the new row, or the old
// one for deletes.
func (n Notification) Row() json.RawMessage {
	if n.Type == models.ChangeDelete || len(n.Record) == 0 || string(n.Record) == "null" {
		return n.OldRecord
	}
	return n.Record
}

// Filter selects notifications. An empty Table matches every table.
type Filter struct {
	Table string
	Event models.ChangeType
}

func (f Filter) matches(n Notification) bool {
	if f.Table != "" && f.Table != n.Table {
		return false
	}
	return f.Event == "" || f.Event == models.ChangeAny || f.Event == n.Type
}

type HandlerFunc func(ctx context.Context, n Notification)

type source interface {
	Notifications() <-chan *pq.Notification
	Ping() error
	Close() error
}

type pqSource struct{ l *pq.Listener }

func (s pqSource) Notifications() <-chan *pq.Notification { return s.l.Notify }
func (s pqSource) Ping() error                            { return s.l.Ping() }
func (s pqSource) Close() error                           { return s.l.Close() }

type subscription struct {
	filter  Filter
	handler HandlerFunc
}

// Feed delivers database change notifications to subscribers in the order
// the database emitted them.
type Feed struct {
	src          source
	pingInterval time.Duration
	log          zerolog.Logger

	mu    sync.Mutex
	next  int
	order []int
	subs  map[int]subscription
}

// Listen opens a dedicated LISTEN connection on channel.
func Listen(dsn, channel string, minReconnect, maxReconnect time.Duration) (*Feed, error) {
	log := logging.Component("realtime")
	l := pq.NewListener(dsn, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn().Err(err).Int("event", int(ev)).Msg("change feed listener event")
		}
	})
	if err := l.Listen(channel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}
	return newFeed(pqSource{l: l}), nil
}

func newFeed(src source) *Feed {
	return &Feed{
		src:          src,
		pingInterval: 90 * time.Second,
		log:          logging.Component("realtime"),
		subs:         make(map[int]subscription),
	}
}

// Subscribe registers h for notifications matching f.
func (f *Feed) Subscribe(filter Filter, h HandlerFunc) (unsubscribe func()) {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = subscription{filter: filter, handler: h}
	f.order = append(f.order, id)
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
			for i, v := range f.order {
				if v == id {
					f.order = append(f.order[:i], f.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Run dispatches notifications until ctx is done or the source closes.
func (f *Feed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()
	ch := f.src.Notifications()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go func() {
				if err := f.src.Ping(); err != nil {
					f.log.Warn().Err(err).Msg("change feed ping failed")
				}
			}()
		case pn, ok := <-ch:
			if !ok {
				f.log.Warn().Msg("change feed closed")
				return
			}
			if pn == nil {
				// pq delivers nil after re-establishing the connection.
				f.log.Warn().Msg("change feed reconnected; changes during the outage were not delivered")
				continue
			}
			f.dispatch(ctx, pn.Extra)
		}
	}
}

func (f *Feed) Close() error {
	return f.src.Close()
}

func (f *Feed) dispatch(ctx context.Context, payload string) {
	var n Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		f.log.Error().Err(err).Msg("undecodable change notification")
		return
	}
	metrics.ChangeEventsTotal.WithLabelValues(n.Table, string(n.Type)).Inc()

	f.mu.Lock()
	hs := make([]HandlerFunc, 0, len(f.order))
	for _, id := range f.order {
		if s := f.subs[id]; s.filter.matches(n) {
			hs = append(hs, s.handler)
		}
	}
	f.mu.Unlock()

	for _, h := range hs {
		h(ctx, n)
	}
}
