package dvrip

import (
	"context"
	"fmt"
	"time"
)

// Client is the pool-backed entry point the resolution pipeline talks to.
// Each operation borrows one session, so concurrent callers never share a
// connection mid-request. Transient failures burn the session and retry on
// a fresh one, within a hard attempt ceiling.
type Client struct {
	pool *Pool

	// DownloadTimeout bounds one download attempt.
	DownloadTimeout time.Duration
	// DownloadRetries is the number of extra attempts after the first.
	// Kept low: retrying a genuinely empty placeholder wastes time.
	DownloadRetries int
}

func NewClient(cfg Config, poolSize int) *Client {
	return &Client{
		pool:            NewPool(cfg, poolSize),
		DownloadTimeout: 30 * time.Second,
		DownloadRetries: 1,
	}
}

func (c *Client) Close() { c.pool.Close() }

func (c *Client) QueryFiles(ctx context.Context, q QueryParams) ([]FileDescriptor, error) {
	s, err := c.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer c.pool.Put(s)
	return s.QueryFiles(ctx, q)
}

func (c *Client) RecentMarkers(ctx context.Context, end time.Time, want int, lookback time.Duration) ([]FileDescriptor, error) {
	s, err := c.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer c.pool.Put(s)
	return s.RecentMarkers(ctx, end, want, lookback)
}

// Download fetches the raw transport stream for fd with a hard per-attempt
// timeout and bounded retries.
func (c *Client) Download(ctx context.Context, fd FileDescriptor) ([]byte, error) {
	attempts := c.DownloadRetries + 1
	var lastErr error

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.DownloadTimeout)
		data, err := c.downloadOnce(attemptCtx, fd)
		cancel()
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("download %s: %w", fd.Path, lastErr)
}

func (c *Client) downloadOnce(ctx context.Context, fd FileDescriptor) ([]byte, error) {
	s, err := c.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer c.pool.Put(s)
	return s.Download(ctx, fd)
}
