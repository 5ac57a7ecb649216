package redis

import (
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Provider hands out one client per distinct connection config.
// Clients dial lazily, so GetConnection never waits for the network.
type Provider struct {
	mu      sync.Mutex
	clients map[connKey]*redis.Client
	closed  bool
}

// NewProvider creates an empty connection provider.
func NewProvider() *Provider {
	return &Provider{clients: make(map[connKey]*redis.Client)}
}

// GetConnection returns the client for cfg, creating it on first use.
// Calls with an equivalent config return the same client.
func (p *Provider) GetConnection(cfg Config) (*redis.Client, error) {
	key := cfg.key()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrProviderClosed
	}
	if c, ok := p.clients[key]; ok {
		return c, nil
	}

	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}

	c := redis.NewClient(opts)
	p.clients[key] = c
	return c, nil
}

// Len returns the number of cached clients.
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Close closes every cached client. Further GetConnection calls fail.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for key, c := range p.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.clients, key)
	}
	return errors.Join(errs...)
}
