package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// SchemaVersion is stamped into KeySchemaVersion on first use. A store
// opened against data stamped with a different version refuses to start
// (spec.md §6's persisted-state-layout requirement), mirroring
// original_source/src/db.rs::init's "safe to run concurrently, does
// nothing if already initialized" bootstrap, generalized to a version
// check since this store's schema isn't a fixed SQL table set.
const SchemaVersion = 1

// ensureSchema stamps KeySchemaVersion if absent, or fails fast if the
// stamped version doesn't match what this binary understands.
func (s *Store) ensureSchema(ctx context.Context) error {
	set, err := s.client.SetNX(ctx, KeySchemaVersion, SchemaVersion, 0).Result()
	if err != nil {
		return fmt.Errorf("redis store: stamping schema version: %w", err)
	}
	if set {
		return nil
	}

	existing, err := s.client.Get(ctx, KeySchemaVersion).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis store: schema version key disappeared during startup race")
		}
		return fmt.Errorf("redis store: reading schema version: %w", err)
	}
	if existing != SchemaVersion {
		return fmt.Errorf("redis store: data stamped with schema version %d, this binary understands %d; refusing to start", existing, SchemaVersion)
	}
	return nil
}
