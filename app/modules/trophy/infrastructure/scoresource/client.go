package scoresource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/attr"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// Source returns the current score of a tag.
type Source interface {
	GetScore(ctx context.Context, tag trophydomain.Tag) (trophydomain.Observation, error)
}

// Config configures a Client.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
}

// Client polls the score proxy over HTTP: GET {base}/player/%23{TAG}.
type Client struct {
	baseURL   string
	timeout   time.Duration
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
}

var _ Source = (*Client)(nil)

// NewClient creates a Client. A zero RequestsPerSecond disables rate limiting.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("score source base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		http:      httpClient,
		limiter:   limiter,
		logger:    logger,
	}, nil
}

// GetScore fetches one tag. Every failure is a *trophydomain.SourceError
// whose Kind is ErrSourceUnavailable or ErrMalformedPayload.
func (c *Client) GetScore(ctx context.Context, tag trophydomain.Tag) (trophydomain.Observation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return trophydomain.Observation{}, c.unavailable(tag, 0, fmt.Errorf("rate limiter: %w", err))
	}

	url := c.baseURL + "/player/" + tag.PathSegment()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return trophydomain.Observation{}, c.unavailable(tag, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return trophydomain.Observation{}, c.unavailable(tag, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return trophydomain.Observation{}, c.unavailable(tag, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return trophydomain.Observation{}, c.unavailable(tag, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}

	obs, err := parsePlayer(body)
	if err != nil {
		c.logger.DebugContext(ctx, "Malformed score payload", attr.Tag(tag), attr.Error(err))
		return trophydomain.Observation{}, &trophydomain.SourceError{
			Tag:        tag,
			Kind:       trophydomain.ErrMalformedPayload,
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}
	return obs, nil
}

func (c *Client) unavailable(tag trophydomain.Tag, status int, err error) error {
	return &trophydomain.SourceError{
		Tag:        tag,
		Kind:       trophydomain.ErrSourceUnavailable,
		StatusCode: status,
		Err:        err,
	}
}

// parsePlayer validates the proxy payload. name and trophies are required;
// rank defaults to 0 and the logs only contribute their lengths.
func parsePlayer(body []byte) (trophydomain.Observation, error) {
	if !gjson.ValidBytes(body) {
		return trophydomain.Observation{}, errors.New("invalid JSON")
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return trophydomain.Observation{}, errors.New("payload is not an object")
	}

	name := doc.Get("name")
	if !name.Exists() || name.Type != gjson.String {
		return trophydomain.Observation{}, errors.New("missing name")
	}
	trophies := doc.Get("trophies")
	if !trophies.Exists() || trophies.Type != gjson.Number {
		return trophydomain.Observation{}, errors.New("missing trophies")
	}

	obs := trophydomain.Observation{
		DisplayName: name.String(),
		Score:       int(trophies.Int()),
	}
	if rank := doc.Get("rank"); rank.Type == gjson.Number {
		obs.Rank = int(rank.Int())
	}
	if logs := doc.Get("attackLog"); logs.IsArray() {
		obs.AttackLogLength = int(doc.Get("attackLog.#").Int())
	}
	if logs := doc.Get("defenseLog"); logs.IsArray() {
		obs.DefenseLogLength = int(doc.Get("defenseLog.#").Int())
	}
	return obs, nil
}
