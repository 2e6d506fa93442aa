// Package remote is a client for the StorySage content and progress API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"storysage/internal/errs"
	"storysage/internal/logging"
	"storysage/internal/models"
)

// StatusSuccess is the envelope status of a successful response.
const StatusSuccess = "success"

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 4096

// Envelope wraps every API response.
type Envelope[T any] struct {
	Status  string    `json:"status"`
	Data    T         `json:"data,omitempty"`
	Message string    `json:"message,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// IsSuccess reports whether the envelope carries a successful result.
func (e Envelope[T]) IsSuccess() bool {
	return e.Status == StatusSuccess
}

// APIError is the error object of a failed envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StatusError is returned for any non-2xx response. Body holds the raw
// response text for diagnostics.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("remote returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("remote returned HTTP %d: %s", e.StatusCode, body)
}

func (e *StatusError) Unwrap() error { return errs.ErrNetwork }

// Retryable reports whether a request that failed with this status may
// succeed when repeated.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client talks to the remote API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClientCredentials authenticates requests with an OAuth2
// client-credentials token obtained from tokenURL.
func WithClientCredentials(clientID, clientSecret, tokenURL string, timeout time.Duration) Option {
	return func(c *Client) {
		if clientID == "" || tokenURL == "" {
			return
		}
		cc := &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
		}
		httpClient := cc.Client(context.Background())
		httpClient.Timeout = timeout
		c.httpClient = httpClient
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logging.OrNop(logger)
	}
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("remote base url required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse remote base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// HTTPClient returns the underlying HTTP client, for audio downloads.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Categories fetches every category row.
func (c *Client) Categories(ctx context.Context) ([]models.Category, error) {
	return do[[]models.Category](ctx, c, http.MethodGet, "/api/categories", nil, nil)
}

// Stories fetches stories, optionally filtered by category and grade.
func (c *Client) Stories(ctx context.Context, categoryID string, grade models.GradeLevel) ([]models.Story, error) {
	params := url.Values{}
	if categoryID != "" {
		params.Set("category", categoryID)
	}
	if grade != "" {
		params.Set("grade_level", string(grade))
	}
	return do[[]models.Story](ctx, c, http.MethodGet, "/api/stories", params, nil)
}

// Story fetches one story.
func (c *Client) Story(ctx context.Context, id string) (models.Story, error) {
	return do[models.Story](ctx, c, http.MethodGet, "/api/stories/"+url.PathEscape(id), nil, nil)
}

// Progress fetches a user's progress summary.
func (c *Client) Progress(ctx context.Context, userID string) (*models.UserProgress, error) {
	p, err := do[models.UserProgress](ctx, c, http.MethodGet, "/api/progress/"+url.PathEscape(userID), nil, nil)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type progressBody struct {
	PlaybackPosition int       `json:"playback_position"`
	IsCompleted      bool      `json:"is_completed"`
	Timestamp        time.Time `json:"timestamp"`
}

// UpdateProgress pushes one progress update. Positions are sent as whole
// seconds.
func (c *Client) UpdateProgress(ctx context.Context, userID, storyID string, u models.ProgressUpdate) error {
	body := progressBody{
		PlaybackPosition: int(math.Round(u.PlaybackPosition)),
		IsCompleted:      u.IsCompleted,
		Timestamp:        u.Timestamp.UTC(),
	}
	path := "/api/progress/" + url.PathEscape(userID) + "/" + url.PathEscape(storyID)
	_, err := do[json.RawMessage](ctx, c, http.MethodPost, path, nil, body)
	return err
}

// Health probes the content service.
func (c *Client) Health(ctx context.Context) error {
	_, err := do[json.RawMessage](ctx, c, http.MethodGet, "/api/health", nil, nil)
	return err
}

// AudioHealth probes the audio service.
func (c *Client) AudioHealth(ctx context.Context) error {
	_, err := do[json.RawMessage](ctx, c, http.MethodGet, "/api/health/audio", nil, nil)
	return err
}

func do[T any](ctx context.Context, c *Client, method, path string, params url.Values, body any) (T, error) {
	var zero T
	op := "remote " + method + " " + path

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return zero, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return zero, errs.Network(op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("remote request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", latency))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return zero, errs.E(errs.ErrNetwork, op, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)})
	}

	var env Envelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return zero, errs.Malformed(op, err)
	}
	if !env.IsSuccess() {
		if env.Error != nil {
			return zero, errs.E(errs.ErrNetwork, op, env.Error)
		}
		return zero, errs.E(errs.ErrNetwork, op, fmt.Errorf("unexpected status %q: %s", env.Status, env.Message))
	}
	return env.Data, nil
}
