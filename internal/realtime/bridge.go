package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/logging"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/rs/zerolog"
)

// ListApplier merges a change into a user's cached video list.
type ListApplier interface {
	Apply(ctx context.Context, userID string, ch models.VideoChange) error
}

// VideoLoader re-reads a video whose change arrived as a partial row.
type VideoLoader interface {
	GetByID(ctx context.Context, userID, id string) (models.Video, error)
}

type Broadcaster interface {
	Broadcast(userID string, ev Event)
}

// Bridge keeps cached lists and connected clients in step with the feed.
type Bridge struct {
	lists  ListApplier
	hub    Broadcaster
	loader VideoLoader
	log    zerolog.Logger
}

func NewBridge(lists ListApplier, hub Broadcaster, loader VideoLoader) *Bridge {
	return &Bridge{lists: lists, hub: hub, loader: loader, log: logging.Component("realtime")}
}

// Attach subscribes the bridge to videos and categories changes.
func (b *Bridge) Attach(f *Feed) (detach func()) {
	unVideos := f.Subscribe(Filter{Table: "videos", Event: models.ChangeAny}, b.HandleVideo)
	unCategories := f.Subscribe(Filter{Table: "categories", Event: models.ChangeAny}, b.HandleCategory)
	return func() {
		unVideos()
		unCategories()
	}
}

func (b *Bridge) HandleVideo(ctx context.Context, n Notification) {
	v, err := decodeVideo(n.Row())
	if err != nil {
		b.log.Error().Err(err).Str("type", string(n.Type)).Msg("undecodable video change")
		return
	}
	if n.Partial && n.Type != models.ChangeDelete {
		if b.loader == nil {
			b.log.Warn().Str("videoId", v.ID).Msg("partial video change dropped, no loader")
			return
		}
		full, err := b.loader.GetByID(ctx, v.UserID, v.ID)
		if err != nil {
			b.log.Warn().Err(err).Str("videoId", v.ID).Msg("reload of partial video change failed")
			return
		}
		v = full
	}
	ch := models.VideoChange{Type: n.Type, Video: v}
	if b.lists != nil {
		if err := b.lists.Apply(ctx, v.UserID, ch); err != nil {
			b.log.Warn().Err(err).Str("userId", v.UserID).Str("videoId", v.ID).Msg("list cache apply failed")
		}
	}
	if b.hub != nil {
		b.hub.Broadcast(v.UserID, Event{Type: EventVideo, Change: n.Type, Video: &v})
	}
}

func (b *Bridge) HandleCategory(_ context.Context, n Notification) {
	c, err := decodeCategory(n.Row())
	if err != nil {
		b.log.Error().Err(err).Str("type", string(n.Type)).Msg("undecodable category change")
		return
	}
	if n.Partial && n.Type != models.ChangeDelete {
		b.log.Warn().Str("categoryId", c.ID).Msg("partial category change dropped")
		return
	}
	if b.hub != nil {
		b.hub.Broadcast(c.UserID, Event{Type: EventCategory, Change: n.Type, Category: &c})
	}
}

type videoRow struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	Title              string    `json:"title"`
	Description        *string   `json:"description"`
	VideoURL           string    `json:"video_url"`
	ThumbnailURL       *string   `json:"thumbnail_url"`
	Category           string    `json:"category"`
	UploadDate         time.Time `json:"upload_date"`
	IsFavorite         bool      `json:"is_favorite"`
	LastPlayedPosition int       `json:"last_played_position"`
}

func decodeVideo(raw json.RawMessage) (models.Video, error) {
	var r videoRow
	if err := json.Unmarshal(raw, &r); err != nil {
		return models.Video{}, err
	}
	if r.ID == "" || r.UserID == "" {
		return models.Video{}, fmt.Errorf("video row missing id or user_id")
	}
	return models.Video{
		ID:                 r.ID,
		UserID:             r.UserID,
		Title:              r.Title,
		Description:        r.Description,
		VideoURL:           r.VideoURL,
		ThumbnailURL:       r.ThumbnailURL,
		Category:           r.Category,
		UploadDate:         r.UploadDate,
		IsFavorite:         r.IsFavorite,
		LastPlayedPosition: r.LastPlayedPosition,
	}, nil
}

type categoryRow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	UserID      string    `json:"user_id"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func decodeCategory(raw json.RawMessage) (models.Category, error) {
	var r categoryRow
	if err := json.Unmarshal(raw, &r); err != nil {
		return models.Category{}, err
	}
	if r.ID == "" || r.UserID == "" {
		return models.Category{}, fmt.Errorf("category row missing id or user_id")
	}
	return models.Category{ID: r.ID, Name: r.Name, UserID: r.UserID, Description: r.Description, CreatedAt: r.CreatedAt}, nil
}
