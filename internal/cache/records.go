package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/five82/fiscal/internal/api"
)

// Cache translates between API records and store partitions.
type Cache struct {
	store Partitions
	log   zerolog.Logger
}

// New wraps store. A nil store behaves as Disabled.
func New(store Partitions, logger zerolog.Logger) *Cache {
	if store == nil {
		store = Disabled{}
	}
	return &Cache{store: store, log: logger}
}

// Available reports whether writes can succeed.
func (c *Cache) Available() bool {
	_, disabled := c.store.(Disabled)
	return !disabled
}

// SaveUsers upserts each user by id. Writes are independent; an error stops
// at the failing record and earlier records stay written.
func (c *Cache) SaveUsers(ctx context.Context, users []api.User) error {
	for _, u := range users {
		if err := c.put(ctx, PartitionUsers, u.ID, u); err != nil {
			return err
		}
	}
	return nil
}

// SaveTargets upserts each target by id.
func (c *Cache) SaveTargets(ctx context.Context, targets []api.Target) error {
	for _, t := range targets {
		if err := c.put(ctx, PartitionTargets, t.ID, t); err != nil {
			return err
		}
	}
	return nil
}

// LoadAllUsers returns every cached user, empty when none were saved.
func (c *Cache) LoadAllUsers(ctx context.Context) ([]api.User, error) {
	return loadAll[api.User](ctx, c, PartitionUsers)
}

// LoadAllTargets returns every cached target, empty when none were saved.
func (c *Cache) LoadAllTargets(ctx context.Context) ([]api.Target, error) {
	return loadAll[api.Target](ctx, c, PartitionTargets)
}

// ClearTargets empties the targets partition.
func (c *Cache) ClearTargets(ctx context.Context) error {
	return c.store.Clear(ctx, PartitionTargets)
}

// Stats reports record counts per partition.
func (c *Cache) Stats(ctx context.Context) (map[Partition]int, error) {
	out := make(map[Partition]int, len(migrations))
	for _, m := range migrations {
		n, err := c.store.Count(ctx, m.partition)
		if err != nil {
			return nil, err
		}
		out[m.partition] = n
	}
	return out, nil
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

func (c *Cache) put(ctx context.Context, p Partition, id int64, record any) error {
	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s/%d: %w", p, id, err)
	}
	return c.store.Put(ctx, p, id, doc)
}

func loadAll[T any](ctx context.Context, c *Cache, p Partition) ([]T, error) {
	docs, err := c.store.GetAll(ctx, p)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return []T{}, nil
		}
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var rec T
		if err := json.Unmarshal(doc, &rec); err != nil {
			c.log.Warn().Err(err).Str("partition", string(p)).Msg("skipping undecodable cached record")
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
