package amber

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/jgoulah/amberbalance/pkg/models"
)

const (
	// DefaultBaseURL is the public Amber Electric API
	DefaultBaseURL = "https://api.amber.com.au/v1"

	// DefaultTimeout bounds every HTTP call
	DefaultTimeout = 30 * time.Second

	// maxChunkDays is the widest usage window the API accepts per request
	maxChunkDays = 7

	userAgent = "amberbalance/0.3"
)

var tracer = otel.Tracer("github.com/jgoulah/amberbalance/internal/amber")

// AuthError represents an authentication failure
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return e.Message
}

// StatusError is returned for any other non-200 response
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string // First 200 bytes
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s -> %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Client talks to the Amber REST API with a bearer token
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL points the client at a different API root
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger attaches a logger for request tracing
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a new API client
func New(token string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		http:    &http.Client{Timeout: DefaultTimeout},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DiscoverSites lists the site ids visible to the token
func (c *Client) DiscoverSites(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, "/sites")
	if err != nil {
		return nil, err
	}
	return parseSites(body)
}

// FetchUsage returns usage records for the inclusive range [start, end],
// splitting the request into windows the API accepts
func (c *Client) FetchUsage(ctx context.Context, siteID string, start, end time.Time) ([]models.UsageRecord, error) {
	start = models.CivilDate(start)
	end = models.CivilDate(end)

	var records []models.UsageRecord
	for cur := start; !cur.After(end); {
		chunkEnd := cur.AddDate(0, 0, maxChunkDays-1)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		params := url.Values{}
		params.Set("startDate", cur.Format(models.DateLayout))
		params.Set("endDate", chunkEnd.Format(models.DateLayout))
		path := fmt.Sprintf("/sites/%s/usage?%s", url.PathEscape(siteID), params.Encode())

		body, err := c.get(ctx, path)
		if err != nil {
			return nil, err
		}
		chunk, dropped, err := parseUsage(body)
		if err != nil {
			return nil, fmt.Errorf("parsing usage response for %s..%s: %w",
				cur.Format(models.DateLayout), chunkEnd.Format(models.DateLayout), err)
		}
		if dropped > 0 {
			c.log.Debug("dropped malformed usage records",
				zap.String("site_id", siteID),
				zap.Int("dropped", dropped))
		}
		records = append(records, chunk...)

		cur = chunkEnd.AddDate(0, 0, 1)
	}

	return records, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	reqURL := c.baseURL + path

	ctx, span := tracer.Start(ctx, "amber.get")
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", http.MethodGet),
		attribute.String("http.url", reqURL),
	)

	body, err := c.do(ctx, reqURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.log.Debug("api request", zap.String("url", reqURL))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", reqURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("authentication failed (status %d): %s", resp.StatusCode, truncate(body)),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			Method:     http.MethodGet,
			URL:        reqURL,
			StatusCode: resp.StatusCode,
			Body:       truncate(body),
		}
	}

	return body, nil
}

func truncate(body []byte) string {
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

// Source binds a client to one site
type Source struct {
	client *Client
	siteID string
}

// Site returns a usage source for siteID
func (c *Client) Site(siteID string) *Source {
	return &Source{client: c, siteID: siteID}
}

// SiteID returns the bound site
func (s *Source) SiteID() string {
	return s.siteID
}

// Fetch satisfies usage.FetchFunc
func (s *Source) Fetch(ctx context.Context, start, end time.Time) ([]models.UsageRecord, error) {
	return s.client.FetchUsage(ctx, s.siteID, start, end)
}
