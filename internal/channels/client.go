// Package channels is the HTTP client for the TTS server's output channel
// and audio endpoints. It implements playback.ChannelResolver and
// playback.AudioFetcher.
package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/voxplay/voxplay/playback"
)

const (
	apiChannels        = "/channels"
	apiProfileChannels = "/profiles/%s/channels"
	apiHealth          = "/health"
)

// maxAudioBytes bounds a single audio download.
const maxAudioBytes = 256 << 20

var (
	// ErrEmptyProfile is returned when no profile id is given.
	ErrEmptyProfile = errors.New("profile id cannot be empty")

	// ErrEmptyAudio is returned when a resource has no content.
	ErrEmptyAudio = errors.New("received empty audio data")

	// ErrAudioTooLarge is returned when a download exceeds the size limit.
	ErrAudioTooLarge = errors.New("audio exceeds maximum size")
)

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	StatusCode int
	Status     string
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server error (%s): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("server returned non-OK status: %s", e.Status)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Client talks to the TTS server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the server at baseURL. Requests are
// limited to rps per second with the given burst; rps <= 0 disables
// limiting.
func NewClient(baseURL string, timeout time.Duration, rps float64, burst int, opts ...Option) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Default().WithPrefix("channels")
	}
	return c
}

// FromConfig creates a client from playback configuration.
func FromConfig(cfg playback.Config, opts ...Option) *Client {
	return NewClient(cfg.ServerURL, cfg.RequestTimeout, cfg.RateLimit, cfg.RateBurst, opts...)
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type profileChannelsResponse struct {
	ChannelIDs []string `json:"channel_ids"`
}

// GetProfileChannels returns the channel ids assigned to a voice profile.
func (c *Client) GetProfileChannels(ctx context.Context, profileID string) ([]string, error) {
	if profileID == "" {
		return nil, ErrEmptyProfile
	}

	var resp profileChannelsResponse
	path := fmt.Sprintf(apiProfileChannels, url.PathEscape(profileID))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to get channels of profile %s: %w", profileID, err)
	}

	c.logger.Debug("Profile channels", "profile", profileID, "channels", len(resp.ChannelIDs))
	return resp.ChannelIDs, nil
}

// ListChannels returns every configured output channel.
func (c *Client) ListChannels(ctx context.Context) ([]playback.Channel, error) {
	var list []playback.Channel
	if err := c.getJSON(ctx, apiChannels, &list); err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return list, nil
}

// HealthCheck verifies the server is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.do(ctx, c.baseURL+apiHealth)
	if err != nil {
		return fmt.Errorf("health check failed for %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// FetchAudio returns the bytes of an audio resource. Local paths and
// file:// URLs are read from disk; paths starting with "/" that do not
// exist locally are resolved against the server.
func (c *Client) FetchAudio(ctx context.Context, locator string) ([]byte, error) {
	if locator == "" {
		return nil, ErrEmptyAudio
	}

	target, local := c.resolve(locator)
	if local {
		data, err := os.ReadFile(target)
		if err != nil {
			return nil, fmt.Errorf("failed to read audio file: %w", err)
		}
		if len(data) == 0 {
			return nil, ErrEmptyAudio
		}
		return data, nil
	}

	resp, err := c.do(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audio: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}
	if len(data) > maxAudioBytes {
		return nil, ErrAudioTooLarge
	}
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}

	c.logger.Debug("Fetched audio", "url", target, "bytes", len(data))
	return data, nil
}

// resolve maps a locator to a URL or a local path.
func (c *Client) resolve(locator string) (string, bool) {
	u, err := url.Parse(locator)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return locator, false
		case "file":
			return u.Path, true
		}
	}
	if strings.HasPrefix(locator, "/") {
		if _, err := os.Stat(locator); err != nil {
			return c.baseURL + locator, false
		}
	}
	return locator, true
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, c.baseURL+path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do performs a rate-limited GET and returns a 2xx response.
func (c *Client) do(ctx context.Context, target string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, audio/wav")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, parseErrorResponse(resp)
	}
	return resp, nil
}

// parseErrorResponse reads a {"detail": ...} body, falling back to the
// raw text.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	se := &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}

	var detail struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(body, &detail) == nil && detail.Detail != nil {
		if s, ok := detail.Detail.(string); ok {
			se.Detail = s
		} else {
			b, _ := json.Marshal(detail.Detail)
			se.Detail = string(b)
		}
	} else {
		se.Detail = strings.TrimSpace(string(body))
	}
	return se
}

var (
	_ playback.ChannelResolver = (*Client)(nil)
	_ playback.AudioFetcher    = (*Client)(nil)
)
