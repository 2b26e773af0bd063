// Package proxy fronts sandboxed app previews. It resolves a preview host to
// its sandbox upstream, scrubs frame-blocking headers so the preview can be
// embedded in the builder, and passes WebSocket traffic through for HMR.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"apex-client/internal/logging"
	"apex-client/internal/metrics"
)

// ErrNoRoute is returned when a preview host maps to nothing.
var ErrNoRoute = errors.New("proxy: no route for host")

// Route maps one preview host to its sandbox upstream.
type Route struct {
	ProjectID    string `json:"project_id"`
	Upstream     string `json:"upstream"` // e.g. https://3000-sb-abc.sandbox.apex.build
	PreviewToken string `json:"preview_token,omitempty"`
}

// Source resolves a preview host on cache miss, typically against the
// platform API.
type Source interface {
	Lookup(ctx context.Context, host string) (*Route, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, host string) (*Route, error)

func (f SourceFunc) Lookup(ctx context.Context, host string) (*Route, error) {
	return f(ctx, host)
}

type memEntry struct {
	route     *Route
	expiresAt time.Time
}

// Resolver caches host routes in redis with an in-memory layer in front.
// Redis is optional; without it the resolver degrades to memory-only, so a
// single edge instance still works in development.
type Resolver struct {
	src Source
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger

	mu  sync.RWMutex
	mem map[string]memEntry
}

// NewResolver builds a Resolver. rdb may be nil.
func NewResolver(src Source, rdb *redis.Client, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Resolver{
		src: src,
		rdb: rdb,
		ttl: ttl,
		log: logging.Named("proxy.routes"),
		mem: make(map[string]memEntry),
	}
}

func routeKey(host string) string { return "preview:route:" + host }

// Resolve returns the route for a preview host, consulting memory, then
// redis, then the source.
func (r *Resolver) Resolve(ctx context.Context, host string) (*Route, error) {
	m := metrics.Get()

	r.mu.RLock()
	e, ok := r.mem[host]
	r.mu.RUnlock()
	if ok && time.Now().Before(e.expiresAt) {
		m.ProxyRouteLookups.WithLabelValues("mem_hit").Inc()
		return e.route, nil
	}

	if r.rdb != nil {
		raw, err := r.rdb.Get(ctx, routeKey(host)).Result()
		switch {
		case err == nil:
			var rt Route
			if json.Unmarshal([]byte(raw), &rt) == nil {
				m.ProxyRouteLookups.WithLabelValues("redis_hit").Inc()
				r.remember(host, &rt)
				return &rt, nil
			}
		case !errors.Is(err, redis.Nil):
			// Redis being down must not take previews down with it.
			r.log.Warn("redis lookup failed", zap.String("host", host), zap.Error(err))
		}
	}

	rt, err := r.src.Lookup(ctx, host)
	if err != nil {
		m.ProxyRouteLookups.WithLabelValues("miss").Inc()
		return nil, fmt.Errorf("proxy: resolving %s: %w", host, err)
	}
	m.ProxyRouteLookups.WithLabelValues("source").Inc()

	r.remember(host, rt)
	if r.rdb != nil {
		if raw, err := json.Marshal(rt); err == nil {
			if err := r.rdb.Set(ctx, routeKey(host), raw, r.ttl).Err(); err != nil {
				r.log.Warn("redis store failed", zap.String("host", host), zap.Error(err))
			}
		}
	}
	return rt, nil
}

// Invalidate drops a host from both cache layers, e.g. after a sandbox
// restart changed the upstream.
func (r *Resolver) Invalidate(ctx context.Context, host string) {
	r.mu.Lock()
	delete(r.mem, host)
	r.mu.Unlock()
	if r.rdb != nil {
		if err := r.rdb.Del(ctx, routeKey(host)).Err(); err != nil {
			r.log.Warn("redis invalidate failed", zap.String("host", host), zap.Error(err))
		}
	}
}

func (r *Resolver) remember(host string, rt *Route) {
	r.mu.Lock()
	r.mem[host] = memEntry{route: rt, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()
}
