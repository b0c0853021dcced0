package httpclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolReusesClientPerOrigin(t *testing.T) {
	p := NewPool(Options{Timeout: time.Second})

	a1 := p.Get("http://backend:4242")
	a2 := p.Get("http://backend:4242")
	assert.Same(t, a1, a2, "same origin should reuse the cached client")

	b1 := p.Get("http://other:80")
	assert.NotSame(t, a1, b1, "different origins get distinct clients")
}

func TestPoolDropRebuildsClient(t *testing.T) {
	p := NewPool(Options{Timeout: time.Second})

	first := p.Get("http://backend:4242")
	p.Drop("http://backend:4242")
	second := p.Get("http://backend:4242")

	assert.NotSame(t, first, second, "Drop should force a fresh client on next Get")
}
