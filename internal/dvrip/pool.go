package dvrip

import (
	"context"
	"sync"
	"time"
)

// Pool hands out authenticated sessions to pipeline workers. The camera
// serializes requests per connection, so a small pool is how concurrent
// event resolution avoids head-of-line blocking. Dead sessions are dropped
// on Put and replaced lazily on the next Get.
type Pool struct {
	cfg      Config
	max      int
	attempts int
	backoff  time.Duration

	mu     sync.Mutex
	idle   []*Session
	closed bool
}

func NewPool(cfg Config, max int) *Pool {
	if max <= 0 {
		max = 2
	}
	return &Pool{
		cfg:      cfg,
		max:      max,
		attempts: 3,
		backoff:  time.Second,
	}
}

// Get returns an idle live session or connects a new one.
func (p *Pool) Get(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	for len(p.idle) > 0 {
		s := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if !s.Dead() {
			p.mu.Unlock()
			return s, nil
		}
		s.Close()
	}
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return nil, ErrSessionClosed
	}
	return ConnectWithRetry(ctx, p.cfg, p.attempts, p.backoff)
}

// Put returns a session for reuse. Dead or surplus sessions are closed.
func (p *Pool) Put(s *Session) {
	if s == nil {
		return
	}
	if s.Dead() {
		s.Close()
		return
	}
	p.mu.Lock()
	if p.closed || len(p.idle) >= p.max {
		p.mu.Unlock()
		s.Close()
		return
	}
	p.idle = append(p.idle, s)
	p.mu.Unlock()
}

func (p *Pool) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()
	for _, s := range idle {
		s.Close()
	}
}
