package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/harmonium-app/harmonium/internal/shared"
)

// Class identifies a downstream endpoint family with its own circuit breaker.
type Class string

const (
	ClassAccounts        Class = "accounts"
	ClassProfile         Class = "profile"
	ClassTracks          Class = "tracks"
	ClassArtists         Class = "artists"
	ClassPlaylists       Class = "playlists"
	ClassRecommendations Class = "recommendations"
	ClassSearch          Class = "search"
)

// Request describes an outbound call with a rebuildable body, safe to repeat across retries.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully-read upstream response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// UpstreamError describes a non-2xx upstream response.
type UpstreamError struct {
	StatusCode int
	Body       []byte
	RetryAfter time.Duration // provider hint from a 429, zero otherwise
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d", e.StatusCode)
}

// Transient reports whether the failure is worth retrying.
func (e *UpstreamError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Options configures a [Client].
type Options struct {
	MaxRetries        int           // retries after the first attempt (default 3)
	InitialBackoff    time.Duration // first retry delay (default 250ms)
	MaxBackoff        time.Duration // backoff ceiling (default 5s)
	FailureThreshold  uint32        // consecutive failures before a breaker opens (default 5)
	Cooldown          time.Duration // open-state duration before a trial call (default 60s)
	RequestsPerSecond float64       // client-side rate limit, 0 disables (default 5)
	RequestTimeout    time.Duration // per-attempt timeout (default 10s)
	HTTPClient        *http.Client
	Logger            *log.Logger
}

// OptionsFromConfig builds Options from the resilience config section.
func OptionsFromConfig(cfg shared.ResilienceConfig, logger *log.Logger) Options {
	return Options{
		MaxRetries:        cfg.MaxRetries,
		InitialBackoff:    time.Duration(cfg.InitialBackoffMillis) * time.Millisecond,
		MaxBackoff:        time.Duration(cfg.MaxBackoffMillis) * time.Millisecond,
		FailureThreshold:  uint32(cfg.FailureThreshold),
		Cooldown:          time.Duration(cfg.CooldownSeconds) * time.Second,
		RequestsPerSecond: cfg.RequestsPerSecond,
		RequestTimeout:    time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		Logger:            logger,
	}
}

func (o *Options) fillDefaults() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 250 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Second
	}
	if o.FailureThreshold == 0 {
		o.FailureThreshold = 5
	}
	if o.Cooldown <= 0 {
		o.Cooldown = time.Minute
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Logger == nil {
		o.Logger = shared.NewLogger(nil)
	}
}

// Client executes upstream calls under the retry, rate-limit, and circuit breaker policies.
//
// Safe for concurrent use: breakers and the limiter synchronize internally,
// and the breaker map is guarded by a mutex.
type Client struct {
	opts    Options
	limiter *rate.Limiter
	logger  *log.Logger

	mu       sync.Mutex
	breakers map[Class]*gobreaker.CircuitBreaker[*Response]
}

// NewClient creates a Client with per-class circuit breakers created on first use.
func NewClient(opts Options) *Client {
	opts.fillDefaults()

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		opts:     opts,
		limiter:  limiter,
		logger:   opts.Logger,
		breakers: make(map[Class]*gobreaker.CircuitBreaker[*Response]),
	}
}

// breaker returns the circuit breaker for class, creating it if needed.
func (c *Client) breaker(class Class) *gobreaker.CircuitBreaker[*Response] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if br, ok := c.breakers[class]; ok {
		return br
	}

	threshold := c.opts.FailureThreshold
	br := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        string(class),
		MaxRequests: 1, // a single trial call in half-open
		Timeout:     c.opts.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change", "endpoint", name, "from", from.String(), "to", to.String())
		},
	})
	c.breakers[class] = br
	return br
}

// Do executes the request against the class's breaker with retries.
//
// Returned errors are one of: [shared.ErrCircuitOpen] (breaker rejected the
// call), [shared.ErrUpstreamRejected] (non-retryable 4xx), or
// [shared.ErrAPIRequest] wrapping the last transient failure once the retry
// budget is exhausted.
func (c *Client) Do(ctx context.Context, class Class, req Request) (*Response, error) {
	br := c.breaker(class)

	var hint time.Duration
	var resp *Response

	operation := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		result, err := br.Execute(func() (*Response, error) {
			return c.attempt(ctx, req)
		})
		if err == nil {
			resp = result
			return nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("%w: %s", shared.ErrCircuitOpen, class))
		}

		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			if !upstream.Transient() {
				return backoff.Permanent(fmt.Errorf("%w: %w", shared.ErrUpstreamRejected, upstream))
			}
			if upstream.RetryAfter > 0 {
				hint = upstream.RetryAfter
			}
			c.logger.Debug("transient upstream failure", "endpoint", class, "status", upstream.StatusCode)
			return err
		}

		c.logger.Debug("transient network failure", "endpoint", class, "error", err)
		return err
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.opts.InitialBackoff
	exp.MaxInterval = c.opts.MaxBackoff
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&hintedBackOff{BackOff: exp, hint: &hint}, uint64(c.opts.MaxRetries)),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		if errors.Is(err, shared.ErrCircuitOpen) || errors.Is(err, shared.ErrUpstreamRejected) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}

	return resp, nil
}

// attempt performs a single HTTP round trip and classifies the outcome.
func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	httpResp, err := c.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return &Response{
			StatusCode: httpResp.StatusCode,
			Headers:    httpResp.Header,
			Body:       respBody,
		}, nil
	}

	upstream := &UpstreamError{StatusCode: httpResp.StatusCode, Body: respBody}
	if httpResp.StatusCode == http.StatusTooManyRequests {
		upstream.RetryAfter = parseRetryAfter(httpResp.Header.Get("Retry-After"))
	}
	return nil, upstream
}

// BreakerStatus is a point-in-time view of one endpoint class's breaker.
type BreakerStatus struct {
	State               string `json:"state"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

// Snapshot reports the current state of every breaker created so far.
func (c *Client) Snapshot() map[Class]BreakerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[Class]BreakerStatus, len(c.breakers))
	for class, br := range c.breakers {
		snapshot[class] = BreakerStatus{
			State:               br.State().String(),
			ConsecutiveFailures: br.Counts().ConsecutiveFailures,
		}
	}
	return snapshot
}

// hintedBackOff overrides the next computed delay with a provider-supplied
// Retry-After hint when one is pending.
type hintedBackOff struct {
	backoff.BackOff
	hint *time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	computed := b.BackOff.NextBackOff()
	if *b.hint > 0 {
		hinted := *b.hint
		*b.hint = 0
		return hinted
	}
	return computed
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
