package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

const (
	defaultBackoffBase = 250 * time.Millisecond
	defaultBackoffCap  = 5 * time.Second
	jitterPercent      = 20
	defaultHostKey     = "_default_"
)

// Clock abstracts sleeping so retry timing is deterministic in tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Limit is a token bucket: RPS with a burst capacity.
type Limit struct {
	RPS   float64
	Burst int
}

// Metrics receives per-attempt counters. *metrics.HTTPClientMetrics satisfies it.
type Metrics interface {
	IncRequest(host, method string)
	IncStatus(code int)
	IncRetry(host string)
	AddBackoff(d time.Duration)
}

// Options configures RetryingTransport.
type Options struct {
	RetryMax     int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	NoJitter     bool
	Clock        Clock
	Metrics      Metrics
	DefaultLimit Limit
	HostLimits   map[string]Limit
}

// RetryingTransport rate limits per host and retries 429, 502, 503, 504 and
// transient network failures. Retry-After is honored up to BackoffCap.
type RetryingTransport struct {
	Base http.RoundTripper

	opts     Options
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRetryingTransport wraps base (http.DefaultTransport when nil).
func NewRetryingTransport(base http.RoundTripper, opts Options) *RetryingTransport {
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = defaultBackoffCap
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.DefaultLimit.RPS <= 0 {
		opts.DefaultLimit = Limit{RPS: 10, Burst: 10}
	}
	return &RetryingTransport{Base: base, opts: opts, limiters: make(map[string]*rate.Limiter)}
}

func (t *RetryingTransport) limiter(host string) *rate.Limiter {
	if host == "" {
		host = defaultHostKey
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if lim, ok := t.limiters[host]; ok {
		return lim
	}
	cfg := t.opts.DefaultLimit
	if v, ok := t.opts.HostLimits[host]; ok && v.RPS > 0 {
		cfg = v
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	t.limiters[host] = lim
	return lim
}

func (t *RetryingTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper. Attempts run on a clone of req.
func (t *RetryingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	out := req.Clone(ctx)
	if err := bufferBody(out); err != nil {
		return nil, err
	}
	host := out.URL.Host
	lim := t.limiter(host)

	var retryAfter time.Duration
	backoff := t.backoff(&retryAfter)
	for attempt := 0; ; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
		if attempt > 0 && out.GetBody != nil {
			body, err := out.GetBody()
			if err != nil {
				return nil, err
			}
			out.Body = body
		}
		if t.opts.Metrics != nil {
			t.opts.Metrics.IncRequest(host, out.Method)
		}

		resp, err := t.base().RoundTrip(out)
		if err != nil {
			if !isTransientNetErr(err) || ctx.Err() != nil {
				return nil, err
			}
			delay, stop := backoff.Next()
			if stop {
				return nil, err
			}
			if err := t.wait(ctx, host, delay); err != nil {
				return nil, err
			}
			continue
		}
		if t.opts.Metrics != nil {
			t.opts.Metrics.IncStatus(resp.StatusCode)
		}
		if !shouldRetryStatus(resp.StatusCode) {
			return resp, nil
		}

		retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), t.opts.Clock.Now())
		delay, stop := backoff.Next()
		if stop {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if err := t.wait(ctx, host, delay); err != nil {
			return nil, err
		}
	}
}

func (t *RetryingTransport) wait(ctx context.Context, host string, d time.Duration) error {
	if t.opts.Metrics != nil {
		t.opts.Metrics.IncRetry(host)
		t.opts.Metrics.AddBackoff(d)
	}
	return t.opts.Clock.Sleep(ctx, d)
}

// backoff yields capped exponential delays for RetryMax retries. A positive
// *retryAfter replaces the next delay, still capped, and is then cleared.
func (t *RetryingTransport) backoff(retryAfter *time.Duration) retry.Backoff {
	b := retry.NewExponential(t.opts.BackoffBase)
	if !t.opts.NoJitter {
		b = retry.WithJitterPercent(jitterPercent, b)
	}
	b = retry.WithCappedDuration(t.opts.BackoffCap, b)
	b = retry.WithMaxRetries(uint64(max(t.opts.RetryMax, 0)), b)
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := b.Next()
		if stop {
			return 0, true
		}
		if hint := *retryAfter; hint > 0 {
			*retryAfter = 0
			d = min(hint, t.opts.BackoffCap)
		}
		return d, false
	})
}

// bufferBody makes the body of a cloned request replayable. The caller's
// request keeps its own Body and GetBody.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	buf, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return err
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	req.Body = io.NopCloser(bytes.NewReader(buf))
	return nil
}

func isTransientNetErr(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused")
}

func shouldRetryStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

func parseRetryAfter(h string, now time.Time) time.Duration {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(h); err == nil {
		if d := when.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
