// File: resolver/resolver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package resolver

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/control"
	"github.com/momentics/hioload-net/internal/logging"
)

type entry struct {
	expires time.Time
	addr    *Address
}

// Resolver caches resolutions by Query.Key for the configured TTL.
type Resolver struct {
	mu    sync.Mutex
	cache *lru.Cache[string, entry]

	ttl            time.Duration
	connectTimeout time.Duration
	clock          clock.Clock
	lookup         LookupFunc
	log            *zap.Logger
	metrics        *control.Metrics
}

// New builds a Resolver. Without WithLookup or WithNameservers the platform
// resolver is used.
func New(opts ...Option) (*Resolver, error) {
	o := options{
		ttl:            DefaultTTL,
		connectTimeout: DefaultConnectTimeout,
		cacheSize:      DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.log == nil {
		o.log = logging.Logger("resolver")
	}
	switch {
	case o.lookup != nil:
	case len(o.nameservers) > 0:
		o.lookup = NameserverLookup(o.nameservers, o.connectTimeout)
	default:
		o.lookup = SystemLookup
	}
	cache, err := lru.New[string, entry](o.cacheSize)
	if err != nil {
		return nil, api.NewError(api.ErrCodeConfig, "resolver cache").Wrap(err)
	}
	return &Resolver{
		cache:          cache,
		ttl:            o.ttl,
		connectTimeout: o.connectTimeout,
		clock:          o.clock,
		lookup:         o.lookup,
		log:            o.log,
		metrics:        o.metrics,
	}, nil
}

// Resolve returns the cached Address for q or performs a fresh resolution.
// Connect mode may block for up to twice the connect timeout; run it as a
// background task (see ResolveAsync).
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Address, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	key := q.Key()
	if addr, ok := r.cached(key); ok {
		r.metrics.ResolverHit()
		return addr, nil
	}
	r.metrics.ResolverMiss()

	addr, err := r.resolve(ctx, q)
	if err != nil {
		r.metrics.ResolverFailure()
		r.log.Debug("resolve failed", zap.String("query", key), zap.Error(err))
		return nil, api.NewError(api.ErrCodeResolve, "resolve "+key).WithContext("mode", q.Mode.String()).Wrap(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.cache.Get(key); ok && r.clock.Now().Before(e.expires) {
		// a concurrent resolution stored first; keep its result
		return e.addr, nil
	}
	r.cache.Add(key, entry{expires: r.clock.Now().Add(r.ttl), addr: addr})
	return addr, nil
}

// ResolveAsync runs Resolve on sched and passes the outcome to cb.
func (r *Resolver) ResolveAsync(sched api.Scheduler, q Query, cb func(*Address, error)) error {
	return sched.Submit(func() {
		cb(r.Resolve(context.Background(), q))
	})
}

func (r *Resolver) cached(key string) (*Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.cache.Get(key)
	if !ok {
		return nil, false
	}
	if !r.clock.Now().Before(e.expires) {
		r.cache.Remove(key)
		return nil, false
	}
	return e.addr, true
}

func (r *Resolver) resolve(ctx context.Context, q Query) (*Address, error) {
	sotype, err := q.socketType()
	if err != nil {
		return nil, err
	}
	proto, err := q.protocol()
	if err != nil {
		return nil, err
	}
	cands, err := r.candidates(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, ErrNoAddress
	}

	addr := &Address{candidates: cands, usable: -1, sotype: sotype, proto: proto}
	if q.Mode == ModeListen {
		addr.usable, err = probeListen(cands, sotype, proto)
	} else {
		addr.usable, err = raceConnect(cands, sotype, proto, r.connectTimeout)
	}
	if err != nil {
		return nil, err
	}
	return addr, nil
}

// candidates skips the lookup for literal addresses.
func (r *Resolver) candidates(ctx context.Context, q Query) ([]netip.AddrPort, error) {
	if ip, err := netip.ParseAddr(q.Host); err == nil {
		port, err := lookupPort(ctx, q.network(), q.Service)
		if err != nil {
			return nil, err
		}
		return []netip.AddrPort{netip.AddrPortFrom(ip.Unmap(), port)}, nil
	}
	return r.lookup(ctx, q.network(), q.Host, q.Service)
}

// Flush drops every cached resolution.
func (r *Resolver) Flush() {
	r.mu.Lock()
	r.cache.Purge()
	r.mu.Unlock()
}

// Len is the number of cached keys.
func (r *Resolver) Len() int {
	return r.cache.Len()
}
