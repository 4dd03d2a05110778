package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/sunsavvy/internal/solar"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Limiter paces outbound requests. *ratelimit.Gate satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
	// Limiter, when set, is waited on before every attempt including retries.
	Limiter Limiter
}

// DefaultBackoff is used when a provider is built without explicit settings.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		MaxRetries:      2,
		InitialInterval: 300 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
	errMissingAPIKey = errors.New("api key not configured")
)

func (b BackoffConfig) validate() error {
	if b.MaxRetries < 0 || b.InitialInterval <= 0 {
		return errInvalidConfig
	}
	return nil
}

// delay is the wait before retry number attempt+1, doubling from
// InitialInterval and capped at MaxInterval when that is set.
func (b BackoffConfig) delay(attempt int) time.Duration {
	d := b.InitialInterval << min(attempt, 16)
	if b.MaxInterval > 0 && d > b.MaxInterval {
		return b.MaxInterval
	}
	return d
}

// newCircuit opens after five consecutive failures. 4xx answers are the
// caller's fault and do not count against the upstream.
func newCircuit(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errUnexpected)
		},
	})
}

// unavailable marks err so the resolver chains treat it as a provider miss.
func unavailable(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", solar.ErrProviderUnavailable, provider, err)
}

// doRequestWithResilience sends the request built by buildRequest through the
// circuit breaker, retrying rate limits, 5xx answers and transport errors with
// exponential backoff. The limiter, if any, gates every attempt.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if err := cfg.Backoff.validate(); err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cfg.Limiter != nil {
			if err := cfg.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}

		resp, err := send(cb, cfg.Client, req.WithContext(ctx))
		switch {
		case err == nil:
			return resp, nil
		case errors.Is(err, errCircuitOpen), errors.Is(err, errUnexpected):
			return nil, err
		case attempt >= cfg.Backoff.MaxRetries:
			return nil, err
		}

		if err := sleep(ctx, cfg.Backoff.delay(attempt)); err != nil {
			return nil, err
		}
	}
}

func send(cb *gobreaker.CircuitBreaker, client *http.Client, req *http.Request) (*http.Response, error) {
	out, err := cb.Execute(func() (interface{}, error) {
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if err := checkStatus(resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", errCircuitOpen, cb.Name())
	}
	if err != nil {
		return nil, err
	}
	return out.(*http.Response), nil
}

// checkStatus maps non-2xx responses to sentinel errors, draining and closing
// the body when it does.
func checkStatus(resp *http.Response) error {
	var err error
	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		err = errRateLimited
	case code >= 500:
		err = fmt.Errorf("%w: %d", errServerError, code)
	default:
		err = fmt.Errorf("%w: %d", errUnexpected, code)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
