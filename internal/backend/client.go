package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/valpere/news2docx/internal/ratelimit"
)

const (
	DefaultTimeout  = 20 * time.Second
	DefaultAttempts = 4
)

// ClientConfig bounds a single logical call.
type ClientConfig struct {
	Timeout        time.Duration
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Attempts <= 0 {
		c.Attempts = DefaultAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	return c
}

// Client issues calls against backend identities. It is safe for
// concurrent use.
type Client struct {
	cfg        ClientConfig
	limiter    *ratelimit.Limiter
	transports map[Kind]Transport
	logger     *slog.Logger
}

// NewClient returns a client with the chat and Google transports
// registered. A nil limiter disables rate spacing.
func NewClient(cfg ClientConfig, limiter *ratelimit.Limiter, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:     cfg.withDefaults(),
		limiter: limiter,
		transports: map[Kind]Transport{
			KindChat:   NewChatTransport(nil),
			KindGoogle: NewGoogleTransport(),
		},
		logger: logger,
	}
}

// Register replaces the transport used for kind.
func (c *Client) Register(kind Kind, t Transport) {
	c.transports[kind] = t
}

// Call performs one logical call. Every attempt first acquires the
// identity's rate bucket and then runs under the per-call timeout. Transient
// failures are retried up to the configured attempt count; terminal failures
// and cancellation of ctx stop immediately.
func (c *Client) Call(ctx context.Context, id Identity, req Request) (*Response, error) {
	t, ok := c.transports[id.Kind]
	if !ok {
		return nil, &AttemptError{Identity: id, Err: fmt.Errorf("%w: kind %q", ErrUnsupported, id.Kind)}
	}

	var (
		resp     *Response
		attempts int
	)

	op := func() error {
		attempts++
		if c.limiter != nil {
			if err := c.limiter.Acquire(ctx, id.Bucket()); err != nil {
				return backoff.Permanent(err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		start := time.Now()
		r, err := t.Do(attemptCtx, id, req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w after %v: %v", ErrTimeout, c.cfg.Timeout, err)
			}
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		r.Identity = id
		r.Latency = time.Since(start)
		resp = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying backend call",
			"backend", id.Name, "stage", req.Stage, "attempt", attempts, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, c.newBackOff(ctx), notify); err != nil {
		return nil, &AttemptError{Identity: id, Attempts: attempts, Err: err}
	}

	resp.Attempts = attempts
	c.logger.Debug("backend call succeeded",
		"backend", id.Name, "stage", req.Stage, "attempts", attempts, "latency", resp.Latency)
	return resp, nil
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.InitialBackoff
	exp.MaxInterval = c.cfg.MaxBackoff
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.cfg.Attempts-1)), ctx)
}
