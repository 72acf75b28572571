package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/MikeDev101/coopstack/server/pkg/storage"
)

type Options = redis.Options

// Store persists session records as JSON strings with a sliding TTL.
type Store struct {
	Namespace string
	Client    *redis.Client
	TTL       time.Duration
}

var _ storage.Store = (*Store)(nil)

func NewStore(options Options, namespace string, ttl time.Duration) *Store {
	return &Store{
		Namespace: namespace,
		Client:    redis.NewClient(&options),
		TTL:       ttl,
	}
}

func (s *Store) key(id string) string {
	return fmt.Sprintf("%s:session:%s", s.Namespace, id)
}

// Ping checks that the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.Client.Ping(ctx).Err(); err != nil {
		return eris.Wrap(err, "failed to reach redis")
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*storage.Record, error) {
	data, err := s.Client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to load session %q", id)
	}

	var record storage.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, eris.Wrapf(err, "failed to decode session %q", id)
	}
	return &record, nil
}

func (s *Store) Save(ctx context.Context, record *storage.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return eris.Wrap(err, "failed to encode session record")
	}
	if err := s.Client.Set(ctx, s.key(record.ID), data, s.TTL).Err(); err != nil {
		return eris.Wrapf(err, "failed to save session %q", record.ID)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.Client.Del(ctx, s.key(id)).Err(); err != nil {
		return eris.Wrapf(err, "failed to delete session %q", id)
	}
	return nil
}

func (s *Store) Close() error {
	return s.Client.Close()
}
