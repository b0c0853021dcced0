// Package httpclient provides a shared backend HTTP client pool.
//
// The proxy forwards every inbound request to a single configured backend
// origin. Per §9 of the design notes, a thread-local "one client per worker"
// cache is replaced here by a pool abstraction keyed by origin: callers ask
// for the client for an origin, and on a transport error they call Drop so
// the next request rebuilds a fresh connection instead of reusing a broken
// one. Because net/http.Transport already pools and reuses TCP/TLS
// connections safely across goroutines, one *http.Client per origin is
// shared by every request worker rather than duplicated per-goroutine.
package httpclient

import (
	"net/http"
	"sync"
	"time"
)

// Options configures the pooled client for one backend origin.
type Options struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second
)

// Pool hands out one persistent *http.Client per origin key, rebuilding it
// from scratch whenever a caller reports the cached connection as broken.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*http.Client
	opts    Options
}

func NewPool(opts Options) *Pool {
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = defaultMaxIdleConns
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = defaultMaxIdleConnsPerHost
	}
	if opts.IdleConnTimeout <= 0 {
		opts.IdleConnTimeout = defaultIdleConnTimeout
	}
	return &Pool{clients: make(map[string]*http.Client), opts: opts}
}

// Get returns the client cached for origin, building one on first use.
func (p *Pool) Get(origin string) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[origin]; ok {
		return c
	}
	c := p.build()
	p.clients[origin] = c
	return c
}

// Drop discards the cached client for origin. The next Get rebuilds a fresh
// transport, closing over any connections left in the old pool.
func (p *Pool) Drop(origin string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, origin)
}

func (p *Pool) build() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        p.opts.MaxIdleConns,
		MaxIdleConnsPerHost: p.opts.MaxIdleConnsPerHost,
		IdleConnTimeout:     p.opts.IdleConnTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   p.opts.Timeout,
		// The proxy translates backend timeouts itself; redirects would
		// desync the caller-visible status code from what was observed.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
