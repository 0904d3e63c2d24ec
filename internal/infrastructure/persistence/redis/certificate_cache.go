package redis

import (
	"context"
	"errors"
	"log/slog"

	"github.com/skillforge/skillforge-lms/internal/domain/certificate"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
	"github.com/skillforge/skillforge-lms/pkg/circuitbreaker"
)

// CertificateCache stores certificates keyed by their public number, backing
// the verification endpoint. Like the progress cache it fails open: a cache
// outage degrades every lookup to the database, never to an error. Revoke and
// restore invalidate the number synchronously so a cached entry can not keep
// validating a revoked certificate; the TTL bounds staleness after a missed
// invalidation.
type CertificateCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewCertificateCache creates a CertificateCache around an existing cache client.
func NewCertificateCache(cache *Cache, logger *slog.Logger) *CertificateCache {
	if logger == nil {
		logger = slog.Default()
	}

	breaker := circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
		logger.Warn("cache circuit state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	})

	return &CertificateCache{
		cache:   cache,
		breaker: breaker,
		logger:  logger,
	}
}

// GetByNumber returns the cached certificate for a public number.
// Returns shared.ErrNotFound on a miss and shared.ErrCacheUnavailable when
// the backend is unreachable or the circuit is open.
func (c *CertificateCache) GetByNumber(ctx context.Context, number string) (*certificate.Certificate, error) {
	var cert certificate.Certificate
	var missed bool

	err := c.execute(ctx, func(ctx context.Context) error {
		err := c.cache.Get(ctx, CertificateKey(number), &cert)
		if errors.Is(err, ErrCacheMiss) {
			missed = true
			return nil
		}
		return err
	})
	if err != nil {
		c.logWrite("verification lookup read", err)
		return nil, err
	}
	if missed {
		return nil, shared.ErrNotFound
	}
	return &cert, nil
}

// SetByNumber stores a certificate under its public number. Failures are
// logged and swallowed; the next lookup simply goes to the database again.
func (c *CertificateCache) SetByNumber(ctx context.Context, cert *certificate.Certificate) {
	err := c.execute(ctx, func(ctx context.Context) error {
		return c.cache.Set(ctx, CertificateKey(cert.Number), cert, TTLCertificateLookup)
	})
	if err != nil {
		c.logWrite("verification lookup write", err)
	}
}

// InvalidateNumber drops the cached entry for a public number. Called on
// revoke and restore; failures are logged and swallowed because the entry
// TTL bounds the staleness.
func (c *CertificateCache) InvalidateNumber(ctx context.Context, number string) {
	err := c.execute(ctx, func(ctx context.Context) error {
		return c.cache.Delete(ctx, CertificateKey(number))
	})
	if err != nil {
		c.logWrite("verification lookup invalidation", err)
	}
}

func (c *CertificateCache) execute(ctx context.Context, fn func(context.Context) error) error {
	err := c.breaker.Execute(ctx, fn)
	if err == nil {
		return nil
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return shared.ErrCacheUnavailable
	}
	return shared.WrapError("certificate", "Cache", shared.ErrCacheUnavailable, "cache operation failed", err)
}

func (c *CertificateCache) logWrite(op string, err error) {
	c.logger.Warn("certificate cache degraded", "op", op, "error", err)
}
