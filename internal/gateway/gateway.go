package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"noesis-backend/internal/infrastructure/cache"
	apperrors "noesis-backend/pkg/errors"
	"noesis-backend/pkg/observability"
)

// Response is the opaque structured payload returned by the reasoning
// service. The gateway never interprets it; the transform engine does.
type Response map[string]any

// Provider issues a single reasoning request over the wire. Prompt phrasing
// is the provider's concern; the gateway only supplies structured fields.
type Provider interface {
	Send(ctx context.Context, kind RequestKind, payload map[string]any) (Response, error)
	Name() string
}

// Fallback produces a degraded response when the circuit is open. Whether a
// call site configures one is per-call-site policy, not a gateway default.
type Fallback func(req Request) (Response, error)

// Config tunes the circuit breaker and the response cache.
type Config struct {
	// ConsecutiveFailures trips the breaker from Closed to Open.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays Open before permitting a
	// single Half-Open trial request.
	OpenTimeout time.Duration
	// HalfOpenRequests bounds concurrent trial requests while Half-Open.
	HalfOpenRequests uint32
	// CacheTTL bounds how long successful responses are reused.
	CacheTTL time.Duration
}

// DefaultConfig returns the documented defaults: trip after 5 consecutive
// failures, 30s open window, one trial request, 5 minute response TTL.
func DefaultConfig() Config {
	return Config{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
		CacheTTL:            5 * time.Minute,
	}
}

// Gateway mediates all calls to the external reasoning service behind a
// circuit breaker. Breaker state is process-wide across all callers since
// it represents a judgment about the external service's health, but it is
// owned by this instance rather than a package-level singleton.
type Gateway struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
	cache    *cache.MemoryCache
	ttl      time.Duration
	metrics  *observability.Collector
	logger   *zap.Logger
}

// New creates a gateway around a provider.
func New(provider Provider, responseCache *cache.MemoryCache, cfg Config, metrics *observability.Collector, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "reasoning-service",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("reasoning circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.RecordBreakerTransition(from.String(), to.String())
		},
	})

	return &Gateway{
		provider: provider,
		breaker:  breaker,
		cache:    responseCache,
		ttl:      cfg.CacheTTL,
		metrics:  metrics,
		logger:   logger,
	}
}

// SendOption configures a single Send call.
type SendOption func(*sendOptions)

type sendOptions struct {
	fallback Fallback
}

// WithFallback resolves a CircuitOpen error through a degraded response
// instead of surfacing it.
func WithFallback(fb Fallback) SendOption {
	return func(o *sendOptions) { o.fallback = fb }
}

// Send issues a reasoning request. Successful responses are cached by the
// request's deterministic key, so identical payloads within the TTL result
// in exactly one call reaching the external service. While the breaker is
// Open, Send fails immediately with CircuitOpen (or the configured
// fallback) without attempting network I/O.
func (g *Gateway) Send(ctx context.Context, req Request, opts ...SendOption) (Response, error) {
	var options sendOptions
	for _, opt := range opts {
		opt(&options)
	}

	key := req.CacheKey()
	if g.cache != nil {
		if data, ok := g.cache.Get(ctx, key); ok {
			var cached Response
			if err := json.Unmarshal(data, &cached); err == nil {
				g.metrics.RecordCacheHit()
				g.logger.Debug("reasoning response served from cache",
					zap.String("kind", string(req.Kind)),
				)
				return cached, nil
			}
			g.cache.Delete(ctx, key)
		}
		g.metrics.RecordCacheMiss()
	}

	result, err := g.breaker.Execute(func() (any, error) {
		return g.provider.Send(ctx, req.Kind, req.Payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			g.metrics.RecordReasoningCall(string(req.Kind), "circuit_open")
			if options.fallback != nil {
				g.logger.Info("circuit open, resolving through fallback",
					zap.String("kind", string(req.Kind)),
				)
				return options.fallback(req)
			}
			return nil, apperrors.NewCircuitOpen("reasoning service temporarily degraded")
		}

		g.metrics.RecordReasoningCall(string(req.Kind), "error")
		if apperrors.KindOf(err) != apperrors.KindInternal {
			return nil, err
		}
		return nil, apperrors.NewUnavailable("reasoning service call failed", err)
	}

	resp, ok := result.(Response)
	if !ok || resp == nil {
		g.metrics.RecordReasoningCall(string(req.Kind), "error")
		return nil, apperrors.NewUnavailable("reasoning service returned an empty response", nil)
	}

	g.metrics.RecordReasoningCall(string(req.Kind), "success")
	if g.cache != nil {
		if data, err := json.Marshal(resp); err == nil {
			g.cache.Set(ctx, key, data, g.ttl)
		}
	}

	return resp, nil
}

// State exposes the current breaker state, mainly for health reporting.
func (g *Gateway) State() string {
	return g.breaker.State().String()
}
