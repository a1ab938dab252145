package identity

import (
	"context"
	"sync"

	"github.com/bh-premnath-git/bhadminui/internal/config"
)

// Lazy constructs the Client on first use. Every caller gets the same
// instance. A failed construction is not cached, so a later call retries
// discovery.
type Lazy struct {
	cfg  config.IdentityConfig
	opts []Option

	mu     sync.Mutex
	client *Client
}

func NewLazy(cfg config.IdentityConfig, opts ...Option) *Lazy {
	return &Lazy{cfg: cfg, opts: opts}
}

func (l *Lazy) Get(ctx context.Context) (*Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client, nil
	}
	c, err := New(ctx, l.cfg, l.opts...)
	if err != nil {
		return nil, err
	}
	l.client = c
	return c, nil
}
