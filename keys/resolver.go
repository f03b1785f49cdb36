// Package keys resolves the verification key set for a rule's issuer: inline
// JWKS or PEM material, a remote jwks_uri, or OpenID discovery with a
// service-account heuristic fallback. Resolved sets are cached process-wide
// and shared across concurrent request evaluations.
package keys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/eapache/go-resiliency/retrier"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/jwtgate/config"
	"github.com/open-rails/jwtgate/rule"
)

// ErrKeyResolution marks an issuer whose key material could not be obtained.
// Requests under that rule cannot be verified; the engine itself is fine.
var ErrKeyResolution = errors.New("jwtgate: key resolution failed")

// DocCache shares raw JWKS documents across engine instances (e.g. backed by
// redis). Misses are not errors; a nil DocCache disables sharing.
type DocCache interface {
	Get(ctx context.Context, url string) ([]byte, bool, error)
	Put(ctx context.Context, url string, doc []byte) error
}

// Resolver turns a rule's key source into a jwk.Set, caching results.
type Resolver struct {
	cfg      config.Config
	cache    *Cache
	docs     DocCache
	throttle *fetchThrottle
	client   *http.Client
	log      logrus.FieldLogger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient overrides the client used for JWKS and discovery fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithDocCache attaches a shared JWKS document cache.
func WithDocCache(d DocCache) Option {
	return func(r *Resolver) { r.docs = d }
}

// WithLogger overrides the resolver's logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Resolver) { r.log = l }
}

// NewResolver builds a resolver with its own key-set cache and fetch
// throttle.
func NewResolver(cfg config.Config, opts ...Option) *Resolver {
	r := &Resolver{
		cfg:      cfg,
		cache:    NewCache(cfg.CacheTTL),
		throttle: newFetchThrottle(cfg.FetchLimit, cfg.FetchWindow),
		client:   http.DefaultClient,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache exposes the resolver's key-set cache, e.g. to start a sweeper.
func (r *Resolver) Cache() *Cache { return r.cache }

// Resolve returns the current key set for the rule's issuer, from cache when
// possible. Failures wrap ErrKeyResolution.
func (r *Resolver) Resolve(ctx context.Context, jr *rule.JWTRule) (jwk.Set, error) {
	src := jr.KeySource()
	key := src.CacheKey()

	if set, ok := r.cache.Get(key); ok {
		return set, nil
	}

	set, err := r.resolve(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("%w: issuer %q: %v", ErrKeyResolution, src.Issuer, err)
	}
	r.cache.Put(key, set)
	return set, nil
}

func (r *Resolver) resolve(ctx context.Context, src rule.KeySource) (jwk.Set, error) {
	switch src.Kind {
	case rule.LocalKeys:
		return parseInline(src.Inline)
	case rule.RemoteKeys:
		return r.fetchSet(ctx, src.CacheKey(), src.URI)
	default:
		return r.resolveDiscovered(ctx, src)
	}
}

func (r *Resolver) resolveDiscovered(ctx context.Context, src rule.KeySource) (jwk.Set, error) {
	dctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	uri, err := discoverJWKSURL(dctx, r.client, src.Issuer)
	cancel()
	if err != nil {
		heuristic, ok := serviceAccountJWKSURL(src.Issuer)
		if !ok {
			return nil, fmt.Errorf("openid discovery: %w", err)
		}
		r.log.WithFields(logrus.Fields{
			"issuer":   src.Issuer,
			"jwks_uri": heuristic,
		}).Warn("openid discovery failed, trying service-account key endpoint")
		uri = heuristic
	}
	return r.fetchSet(ctx, src.CacheKey(), uri)
}

// parseInline accepts a JWKS JSON document or a PEM public key block.
func parseInline(material string) (jwk.Set, error) {
	set, jwksErr := jwk.Parse([]byte(material))
	if jwksErr == nil {
		return set, nil
	}
	if strings.Contains(material, "-----BEGIN") {
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(material))
		if err != nil {
			return nil, fmt.Errorf("inline pem: %w", err)
		}
		key, err := jwk.FromRaw(pub)
		if err != nil {
			return nil, fmt.Errorf("inline pem: %w", err)
		}
		set = jwk.NewSet()
		if err := set.AddKey(key); err != nil {
			return nil, fmt.Errorf("inline pem: %w", err)
		}
		return set, nil
	}
	return nil, fmt.Errorf("inline jwks: %w", jwksErr)
}

func (r *Resolver) fetchSet(ctx context.Context, throttleKey, url string) (jwk.Set, error) {
	// Shared document cache first: another instance may have fetched this
	// source already.
	if r.docs != nil {
		doc, ok, err := r.docs.Get(ctx, url)
		if err != nil {
			r.log.WithError(err).WithField("jwks_uri", url).Warn("jwks document cache read failed")
		} else if ok {
			if set, perr := jwk.Parse(doc); perr == nil {
				return set, nil
			}
			// Corrupt cached document: fall through to a fresh fetch.
		}
	}

	if !r.throttle.allow(throttleKey) {
		return nil, fmt.Errorf("fetch attempts for %s throttled", url)
	}

	var body []byte
	retry := retrier.New(retrier.ExponentialBackoff(r.cfg.FetchRetries, r.cfg.FetchRetryBase), nil)
	err := retry.RunCtx(ctx, func(ctx context.Context) error {
		fctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
		defer cancel()
		b, err := r.get(fctx, url)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse jwks from %s: %w", url, err)
	}

	if r.docs != nil {
		if err := r.docs.Put(ctx, url, body); err != nil {
			r.log.WithError(err).WithField("jwks_uri", url).Warn("jwks document cache write failed")
		}
	}
	return set, nil
}

func (r *Resolver) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
