package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	maxErrorBody = 512

	// Consecutive failed calls, retries included, that open the breaker.
	breakerTrip    = 5
	breakerTimeout = 30 * time.Second
)

// ErrUnavailable is returned without a network call while the breaker is open.
var ErrUnavailable = errors.New("embedding service unavailable")

// StatusError is a non-200 answer from the embedding service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Sprintf("authentication failed (status %d): %s", e.Code, e.Body)
	case http.StatusTooManyRequests:
		return fmt.Sprintf("rate limited (status %d): %s", e.Code, e.Body)
	default:
		return fmt.Sprintf("embedding service status %d: %s", e.Code, e.Body)
	}
}

// Retryable reports whether a retry may succeed.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// transport posts JSON with bounded exponential retry on transient failures.
// Repeated failures open a circuit breaker that fails calls fast until the
// service recovers.
type transport struct {
	client     *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	initial    time.Duration
}

func newTransport(opts Options) *transport {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	t := &transport{
		client:     &http.Client{Timeout: timeout},
		maxRetries: opts.MaxRetries,
		initial:    500 * time.Millisecond,
	}
	t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "embedding-" + opts.Kind,
		Timeout: breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrip
		},
		IsSuccessful: healthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("embedding: circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	if opts.RequestsPerSecond > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return t
}

// healthy reports whether err says nothing bad about the service itself.
// Rejected requests and the caller's own cancellation or deadline do not count
// toward tripping; a client timeout while talking to the service does.
func healthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var ue *url.Error
	if errors.Is(err, context.DeadlineExceeded) && !errors.As(err, &ue) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && !se.Retryable()
}

func (t *transport) postJSON(ctx context.Context, url string, header http.Header, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	_, err = t.breaker.Execute(func() (interface{}, error) {
		return nil, t.retry(ctx, url, header, payload, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func (t *transport) retry(ctx context.Context, url string, header http.Header, payload []byte, out any) error {
	op := func() error {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range header {
			req.Header[k] = v
		}

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			se := &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
			if se.Retryable() {
				return se
			}
			return backoff.Permanent(se)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = t.initial
	eb.Multiplier = 2
	eb.MaxInterval = 10 * time.Second
	eb.MaxElapsedTime = 0

	retries := t.maxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
	return backoff.Retry(op, policy)
}
