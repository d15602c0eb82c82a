// Package timetable talks to the timetable backend. It owns the network
// call the page cache delegates to, plus the generic request function the
// rest of the application uses for one-off calls.
package timetable

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const dateFormat = "2006-01-02"

type Config struct {
	// BaseURL of the timetable backend, without a trailing slash.
	BaseURL string
	// Token is the default bearer token. It can be overridden per request
	// with WithToken.
	Token string
	// HTTPClient to use. http.DefaultClient is used if nil. Request
	// timeouts are entirely this client's concern.
	HTTPClient *http.Client
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(config Config) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	return &Client{
		baseURL:    config.BaseURL,
		token:      config.Token,
		httpClient: httpClient,
		log:        logger.With().Str("component", "timetable").Logger(),
	}
}

// StatusError is returned for non-2xx backend responses. RetryAfter carries
// the backend's Retry-After hint, if any, so callers can honor it in their
// own retry policy; the client itself never retries.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("timetable backend returned status %d", e.StatusCode)
}

// FetchPage retrieves one subject's schedule for one calendar window as a
// raw JSON payload.
func (c *Client) FetchPage(ctx context.Context, subjectID string, windowStart, windowEnd time.Time, viewingAsSelf bool) ([]byte, error) {
	query := url.Values{}
	query.Set("user", subjectID)
	query.Set("from", windowStart.Format(dateFormat))
	query.Set("to", windowEnd.Format(dateFormat))
	query.Set("self", strconv.FormatBool(viewingAsSelf))
	return c.Do(ctx, http.MethodGet, "/api/timetable", query, nil)
}

// Do executes one request against the backend and returns the response body.
// Non-2xx responses are returned as a StatusError.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body io.Reader) ([]byte, error) {
	uri := c.baseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, uri, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if token := requestToken(ctx, c.token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.log.Trace().Str("method", method).Str("url", uri).Msg("Requesting from backend")
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &StatusError{
			StatusCode: res.StatusCode,
			RetryAfter: retryAfter(res.Header),
		}
	}
	return io.ReadAll(res.Body)
}

// retryAfter parses a delay-seconds Retry-After header. HTTP-date values are
// ignored.
func retryAfter(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

type tokenContextKey struct{}

// WithToken returns a context that makes requests authenticate with the
// given bearer token instead of the client's default.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, token)
}

func requestToken(ctx context.Context, fallback string) string {
	if token, ok := ctx.Value(tokenContextKey{}).(string); ok && token != "" {
		return token
	}
	return fallback
}
