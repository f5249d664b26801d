package supervisor_test

import (
	"context"
	"sync"

	"flowpool/internal/queue"
)

// fakeClient serves scripted FindReady results and records mutations.
type fakeClient struct {
	mu      sync.Mutex
	ready   [][]*queue.Chain
	findErr error
	deleted []int64
	updates map[int64]queue.Status
	closed  bool
}

func (c *fakeClient) Open(context.Context) error { return nil }

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) FindReady(_ context.Context, n int) ([]*queue.Chain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.findErr != nil {
		return nil, c.findErr
	}
	if n <= 0 || len(c.ready) == 0 {
		return nil, nil
	}
	batch := c.ready[0]
	c.ready = c.ready[1:]
	if len(batch) > n {
		batch = batch[:n]
	}
	return batch, nil
}

func (c *fakeClient) Delete(_ context.Context, chain *queue.Chain) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, chain.ID)
	return nil
}

func (c *fakeClient) UpdateStatus(_ context.Context, chain *queue.Chain, status queue.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.updates == nil {
		c.updates = make(map[int64]queue.Status)
	}
	c.updates[chain.ID] = status
	return nil
}
