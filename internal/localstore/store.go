// Package localstore is the client-side key/value storage of one browser
// context: the last visited path, cookie consent, form drafts and comments.
// Values are plain JSON.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/dgraph-io/badger"
	"github.com/google/uuid"
)

const (
	KeyLastPath      = "last_path"
	KeyCookieConsent = "cookie_consent"
	KeyUploadDraft   = "upload_draft"
	KeyComments      = "comments"
	// KeyContextID holds the browser context id sent as the session cookie.
	KeyContextID = "context_id"

	editDraftPrefix = "edit_draft:"
)

var ErrNotFound = errors.New("localstore: key not found")

// Draft is an unsaved upload or edit form.
type Draft struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	VideoURL    string `json:"videoUrl"`
	Category    string `json:"category,omitempty"`
	NewCategory string `json:"newCategory,omitempty"`
}

// Consent is the user's answer to the cookie banner.
type Consent struct {
	Accepted bool      `json:"accepted"`
	At       time.Time `json:"at"`
}

type Store struct {
	db  *badger.DB
	now func() time.Time
}

// Open opens (creating if needed) the store in dir.
func Open(dir string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("while opening local store %q: %w", dir, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func EditDraftKey(videoID string) string {
	return editDraftPrefix + videoID
}

func (s *Store) GetString(key string) (string, error) {
	var out string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		out = string(v)
		return err
	})
	return out, err
}

func (s *Store) SetString(key, value string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// GetJSON decodes the value at key into v.
func (s *Store) GetJSON(key string, v any) error {
	raw, err := s.GetString(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("while decoding %s: %w", key, err)
	}
	return nil
}

func (s *Store) SetJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.SetString(key, string(b))
}

// ContextID returns this client's browser context id, minting one on first use.
func (s *Store) ContextID() (string, error) {
	id, err := s.GetString(KeyContextID)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	id = uuid.NewString()
	return id, s.SetString(KeyContextID, id)
}

// LastPath is the last rendered page, "/" when none was stored.
func (s *Store) LastPath() string {
	p, err := s.GetString(KeyLastPath)
	if err != nil || !strings.HasPrefix(p, "/") {
		return "/"
	}
	return p
}

func (s *Store) SetLastPath(path string) error {
	if path == "" {
		return nil
	}
	return s.SetString(KeyLastPath, path)
}

// CookieConsent reports the stored consent; ok is false when never answered.
func (s *Store) CookieConsent() (c Consent, ok bool) {
	if err := s.GetJSON(KeyCookieConsent, &c); err != nil {
		return Consent{}, false
	}
	return c, true
}

func (s *Store) SetCookieConsent(accepted bool) error {
	return s.SetJSON(KeyCookieConsent, Consent{Accepted: accepted, At: s.now().UTC()})
}

// Comments returns the comments on videoID, newest first.
func (s *Store) Comments(videoID string) ([]models.Comment, error) {
	all, err := s.allComments()
	if err != nil {
		return nil, err
	}
	out := make([]models.Comment, 0, len(all))
	for _, c := range all {
		if c.VideoID == videoID {
			out = append(out, c)
		}
	}
	return out, nil
}

// AddComment stores a new comment and returns it.
func (s *Store) AddComment(videoID, author, text string) (models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Comment{}, errors.New("comment text is empty")
	}
	if strings.TrimSpace(author) == "" {
		author = "Anonymous"
	}
	c := models.Comment{
		ID:        uuid.NewString(),
		Text:      text,
		Author:    author,
		Timestamp: s.now().UTC(),
		VideoID:   videoID,
	}
	all, err := s.allComments()
	if err != nil {
		return models.Comment{}, err
	}
	all = append([]models.Comment{c}, all...)
	return c, s.SetJSON(KeyComments, all)
}

func (s *Store) allComments() ([]models.Comment, error) {
	var all []models.Comment
	err := s.GetJSON(KeyComments, &all)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })
	return all, nil
}
