package garmin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bernardmuller/pulse/internal/log"
	"github.com/bernardmuller/pulse/internal/metrics"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "com.garmin.android.apps.connectmobile"
	maxErrorBody     = 256
)

// Options tunes the client; zero values fall back to defaults.
type Options struct {
	Timeout          time.Duration
	Rate             float64 // upstream requests per second
	Burst            int
	BreakerThreshold int
	BreakerReset     time.Duration
	Consumer         Consumer // OAuth1 consumer used for token exchange
	HTTPClient       *http.Client
}

// Client is an authenticated Garmin Connect API client. All requests are
// rate limited client-side and guarded by a circuit breaker.
type Client struct {
	urls     *URLs
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *CircuitBreaker
	store    TokenStore
	consumer Consumer

	refreshMu sync.Mutex // serializes token refresh
	now       func() time.Time
}

// New creates a client for the given domain backed by a token store.
func New(domain Domain, store TokenStore, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Rate <= 0 {
		opts.Rate = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = 5
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		urls:     NewURLs(domain),
		http:     hc,
		limiter:  rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst),
		breaker:  NewCircuitBreaker(opts.BreakerThreshold, opts.BreakerReset),
		store:    store,
		consumer: opts.Consumer,
		now:      time.Now,
	}
}

// URLs exposes the endpoint map (used by the auth flow and tests).
func (c *Client) URLs() *URLs { return c.urls }

// BreakerState reports the circuit breaker state as a label, for health
// checks.
func (c *Client) BreakerState() string { return stateLabel(c.breaker.State()) }

// Profile fetches the social profile of the logged-in user.
func (c *Client) Profile(ctx context.Context) (SocialProfile, error) {
	var p SocialProfile
	err := c.getJSON(ctx, "profile", c.urls.UserProfile(), &p)
	return p, err
}

// DailySleep fetches one night of sleep data for the given user and date.
func (c *Client) DailySleep(ctx context.Context, displayName string, date time.Time) (SleepData, error) {
	var s SleepData
	u := fmt.Sprintf("%s/%s?date=%s&nonSleepBufferMinutes=60",
		c.urls.DailySleep(), url.PathEscape(displayName), date.Format("2006-01-02"))
	err := c.getJSON(ctx, "sleep", u, &s)
	return s, err
}

// DailyHRV fetches the overnight HRV summary for a date.
func (c *Client) DailyHRV(ctx context.Context, date time.Time) (HRVData, error) {
	var h HRVData
	u := fmt.Sprintf("%s/%s", c.urls.DailyHRV(), date.Format("2006-01-02"))
	err := c.getJSON(ctx, "hrv", u, &h)
	return h, err
}

// DailySteps fetches daily step totals for an inclusive date range.
func (c *Client) DailySteps(ctx context.Context, start, end time.Time) ([]DailyStepsEntry, error) {
	var entries []DailyStepsEntry
	u := fmt.Sprintf("%s%s/%s", c.urls.DailySteps(),
		start.Format("2006-01-02"), end.Format("2006-01-02"))
	err := c.getJSON(ctx, "steps", u, &entries)
	return entries, err
}

// Activities fetches a page of the activity list, newest first.
func (c *Client) Activities(ctx context.Context, start, limit int) ([]Activity, error) {
	var acts []Activity
	u := fmt.Sprintf("%s?start=%d&limit=%d", c.urls.Activities(), start, limit)
	err := c.getJSON(ctx, "activities", u, &acts)
	return acts, err
}

// getJSON performs a rate-limited, breaker-guarded authenticated GET and
// decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, op, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &APIError{Sentinel: ErrTimeout, Operation: op, Err: err}
	}

	token, err := c.ensureAccess(ctx)
	if err != nil {
		return err
	}

	started := c.now()
	err = c.breaker.Execute(func() error {
		return c.doGet(ctx, op, rawURL, token, out)
	})
	metrics.ObserveUpstreamDuration(op, c.now().Sub(started).Seconds())
	return err
}

func (c *Client) doGet(ctx context.Context, op, rawURL, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		metrics.IncUpstreamRequest(op, "transport")
		if errors.Is(err, context.DeadlineExceeded) {
			return &APIError{Sentinel: ErrTimeout, Operation: op, Err: err}
		}
		return &APIError{Sentinel: ErrUnavailable, Operation: op, Err: err}
	}
	defer func() {
		if cerr := res.Body.Close(); cerr != nil {
			logger := log.WithComponentFromContext(ctx, "garmin")
			logger.Debug().Err(cerr).Msg("close response body")
		}
	}()

	metrics.IncUpstreamRequest(op, statusClass(res.StatusCode))

	if sentinel := sentinelForStatus(res.StatusCode); sentinel != nil {
		return &APIError{
			Sentinel:   sentinel,
			Operation:  op,
			Status:     res.StatusCode,
			Body:       readErrorBody(res.Body),
			RetryAfter: retryAfter(res.Header.Get("Retry-After")),
		}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Status: res.StatusCode, Err: err}
	}
	return nil
}

// ensureAccess returns a valid OAuth2 access token, refreshing through the
// exchange endpoint when the stored one is about to expire. Refreshed tokens
// are persisted back to the store.
func (c *Client) ensureAccess(ctx context.Context) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	tokens, err := c.store.Tokens()
	if err != nil {
		return "", fmt.Errorf("garmin: load tokens: %w", err)
	}

	now := c.now()
	if tokens.AccessValid(now) {
		return tokens.AccessToken, nil
	}
	if !tokens.RefreshValid(now) {
		return "", ErrNoRefreshToken
	}

	logger := log.WithComponentFromContext(ctx, "garmin")
	logger.Info().Str("event", "token.refresh").Msg("access token expiring, exchanging")

	refreshed, err := exchangeTokens(ctx, c.http, c.urls, c.consumer, tokens)
	if err != nil {
		metrics.IncTokenRefresh("failure")
		return "", err
	}
	metrics.IncTokenRefresh("success")

	if err := c.store.Persist(refreshed); err != nil {
		// The fresh token is still usable for this run.
		logger.Warn().Err(err).Msg("failed to persist refreshed tokens")
	}
	return refreshed.AccessToken, nil
}

func sentinelForStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests:
		return ErrThrottled
	case status >= 500:
		return ErrUpstreamError
	default:
		return ErrBadResponse
	}
}

func statusClass(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// retryAfter parses a Retry-After header in delta-seconds form. HTTP-date
// form is rare on this API and is ignored.
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func readErrorBody(r io.Reader) string {
	buf, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(buf))
}
