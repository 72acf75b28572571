// Package storage keeps durable session records so that a session id can be
// resumed after its in-memory state has been forgotten or the relay has
// restarted. Rooms are never persisted.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/coocood/freecache"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// ErrNotFound is returned by Load when no record exists for an id.
var ErrNotFound = errors.New("session record not found")

// Record is the persisted part of a session.
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	RoomID    string    `json:"roomId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Store interface {
	Load(ctx context.Context, id string) (*Record, error)
	Save(ctx context.Context, record *Record) error
	Delete(ctx context.Context, id string) error
}

const bytesPerKb = 1024

// Cached is a read-through cache in front of another Store.
type Cached struct {
	next  Store
	cache *freecache.Cache
	ttl   int
}

// NewCached wraps next with an in-process cache of sizeKB kilobytes. Entries
// expire after ttl; zero keeps them until evicted.
func NewCached(next Store, sizeKB int, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: freecache.NewCache(sizeKB * bytesPerKb),
		ttl:   int(ttl.Seconds()),
	}
}

func (c *Cached) Load(ctx context.Context, id string) (*Record, error) {
	data, err := c.cache.Get([]byte(id))
	if err == nil {
		var record Record
		if err := json.Unmarshal(data, &record); err == nil {
			return &record, nil
		}
		c.cache.Del([]byte(id))
	} else if !errors.Is(err, freecache.ErrNotFound) {
		return nil, eris.Wrap(err, "failed to read session cache")
	}

	record, err := c.next.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	c.remember(record)
	return record, nil
}

func (c *Cached) Save(ctx context.Context, record *Record) error {
	if err := c.next.Save(ctx, record); err != nil {
		c.cache.Del([]byte(record.ID))
		return err
	}
	c.remember(record)
	return nil
}

func (c *Cached) Delete(ctx context.Context, id string) error {
	c.cache.Del([]byte(id))
	return c.next.Delete(ctx, id)
}

func (c *Cached) remember(record *Record) {
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	// A failed set only means the next load goes to the backing store.
	_ = c.cache.Set([]byte(record.ID), data, c.ttl)
}
