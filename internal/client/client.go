// Package client talks to the TubeShelf API as one browser context: the
// context id travels as the session cookie, exactly as a browser tab's would.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/middleware"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("%d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == code
}

type Client struct {
	base      *url.URL
	contextID string
	http      *http.Client
}

// New returns a client for the API at baseURL. A nil httpClient gets a
// default with a 30s timeout.
func New(baseURL, contextID string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: u, contextID: contextID, http: httpClient}, nil
}

func (c *Client) ContextID() string { return c.contextID }

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Origin", c.base.Scheme+"://"+c.base.Host)
	if c.contextID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: c.contextID})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		ae := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(raw, ae); err != nil {
			ae.Message = strings.TrimSpace(string(raw))
		}
		return ae
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// AuthResult is the answer to sign-in and sign-up.
type AuthResult struct {
	Session     *models.Session `json:"session"`
	RedirectURL string          `json:"redirectUrl"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Plan     string `json:"plan,omitempty"`
	Next     string `json:"next,omitempty"`
}

func (c *Client) SignIn(ctx context.Context, email, password, plan, next string) (AuthResult, error) {
	var out AuthResult
	err := c.do(ctx, http.MethodPost, "/api/auth/sign-in", credentials{email, password, plan, next}, &out)
	return out, err
}

func (c *Client) SignUp(ctx context.Context, email, password, plan string) (AuthResult, error) {
	var out AuthResult
	err := c.do(ctx, http.MethodPost, "/api/auth/sign-up", credentials{Email: email, Password: password, Plan: plan}, &out)
	return out, err
}

func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/sign-out", nil, nil)
}

// Session returns the current session, nil when signed out.
func (c *Client) Session(ctx context.Context) (*models.Session, error) {
	var out struct {
		Session *models.Session `json:"session"`
	}
	err := c.do(ctx, http.MethodGet, "/api/auth/session", nil, &out)
	return out.Session, err
}

// ListFilter narrows ListVideos. Zero values mean no filter.
type ListFilter struct {
	Query     string
	Category  string
	Favorites bool
}

func (c *Client) ListVideos(ctx context.Context, f ListFilter) ([]models.Video, error) {
	q := url.Values{}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Favorites {
		q.Set("favorites", "true")
	}
	path := "/api/videos"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []models.Video
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) GetVideo(ctx context.Context, id string) (models.Video, error) {
	var out models.Video
	err := c.do(ctx, http.MethodGet, "/api/videos/"+url.PathEscape(id), nil, &out)
	return out, err
}

// NewVideo is the upload form.
type NewVideo struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	VideoURL    string  `json:"videoUrl"`
	Category    string  `json:"category,omitempty"`
	NewCategory string  `json:"newCategory,omitempty"`
}

func (c *Client) CreateVideo(ctx context.Context, v NewVideo) (models.Video, error) {
	var out models.Video
	err := c.do(ctx, http.MethodPost, "/api/videos", v, &out)
	return out, err
}

func (c *Client) UpdateVideo(ctx context.Context, v models.Video) (models.Video, error) {
	var out models.Video
	err := c.do(ctx, http.MethodPut, "/api/videos/"+url.PathEscape(v.ID), v, &out)
	return out, err
}

func (c *Client) DeleteVideo(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/videos/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ToggleFavorite(ctx context.Context, id string) (models.Video, error) {
	var out models.Video
	err := c.do(ctx, http.MethodPost, "/api/videos/"+url.PathEscape(id)+"/favorite", nil, &out)
	return out, err
}

func (c *Client) ListCategories(ctx context.Context) ([]string, error) {
	var out []string
	err := c.do(ctx, http.MethodGet, "/api/categories", nil, &out)
	return out, err
}

func (c *Client) AddCategory(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/api/categories", map[string]string{"name": name}, nil)
}

// DeleteCategory returns how many videos moved to Uncategorized.
func (c *Client) DeleteCategory(ctx context.Context, name string) (int64, error) {
	var out struct {
		Reassigned int64 `json:"reassigned"`
	}
	err := c.do(ctx, http.MethodDelete, "/api/categories/"+url.PathEscape(name), nil, &out)
	return out.Reassigned, err
}

// Profile is the caller's plan and usage.
type Profile struct {
	Profile          *models.Profile `json:"profile"`
	RemainingUploads int             `json:"remainingUploads"`
	Unlimited        bool            `json:"unlimited"`
}

func (c *Client) Profile(ctx context.Context) (Profile, error) {
	var out Profile
	err := c.do(ctx, http.MethodGet, "/api/profile", nil, &out)
	return out, err
}

// PlanSelection is the answer to SelectPlan: kind is auth_required,
// plan_updated or checkout_redirect.
type PlanSelection struct {
	Kind        string          `json:"kind"`
	Plan        models.PlanType `json:"plan"`
	RedirectURL string          `json:"redirectUrl"`
}

func (c *Client) SelectPlan(ctx context.Context, plan string) (PlanSelection, error) {
	var out PlanSelection
	err := c.do(ctx, http.MethodPost, "/api/billing/select-plan", map[string]string{"plan": plan}, &out)
	return out, err
}

func (c *Client) Plans(ctx context.Context) ([]models.PlanTier, error) {
	var out []models.PlanTier
	err := c.do(ctx, http.MethodGet, "/api/billing/plans", nil, &out)
	return out, err
}
