// Package mock provides an in-memory cache.Cache for tests.
package mock

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/kiranshivaraju/newsanalyzer/internal/cache"
	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
)

// Cache satisfies cache.Cache with a map. Expiry is evaluated lazily against Now.
type Cache struct {
	// Err, when set, is returned from every call except Ping.
	Err     error
	PingErr error

	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

type entry struct {
	value    []byte
	deadline time.Time
}

func NewCache() *Cache {
	return &Cache{entries: map[string]entry{}, now: time.Now}
}

var _ cache.Cache = (*Cache)(nil)

// SetClock replaces the time source used to expire entries.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Has reports whether key is present and unexpired.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lookup(key)
	return ok
}

func (c *Cache) lookup(key string) (entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.deadline.IsZero() && !c.now().Before(e.deadline) {
		delete(c.entries, key)
		return entry{}, false
	}
	return e, true
}

func (c *Cache) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (c *Cache) Ping(_ context.Context) error { return c.PingErr }

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: append([]byte(nil), value...), deadline: c.deadline(ttl)}
	return nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if c.Err != nil {
		return nil, false, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *Cache) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if c.Err != nil {
		return false, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(key)
	if !ok {
		return false, nil
	}
	e.deadline = c.deadline(ttl)
	c.entries[key] = e
	return true, nil
}

func (c *Cache) SetJob(ctx context.Context, job *models.Job, ttl time.Duration) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return c.Set(ctx, cache.JobKey(job.ID), b, ttl)
}

func (c *Cache) GetJob(ctx context.Context, id int32) (*models.Job, bool, error) {
	b, found, err := c.Get(ctx, cache.JobKey(id))
	if err != nil || !found {
		return nil, false, err
	}
	var j models.Job
	if err := json.Unmarshal(b, &j); err != nil {
		return nil, false, err
	}
	return &j, true, nil
}

func (c *Cache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	if c.Err != nil {
		return 0, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	if e, ok := c.lookup(key); ok {
		n, _ = strconv.ParseInt(string(e.value), 10, 64)
	}
	n++
	c.entries[key] = entry{value: []byte(strconv.FormatInt(n, 10)), deadline: c.deadline(expiry)}
	return n, nil
}
