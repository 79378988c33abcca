package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"campus-events/internal/status"
	"campus-events/models"
)

var _ Store = (*RedisStore)(nil)

const (
	redisEventsKey    = "campus:events"
	redisResourcesKey = "campus:resources"
)

func redisEventKey(id string) string {
	return "campus:event:" + id
}

func redisResourceKey(id string) string {
	return "campus:resource:" + id
}

// RedisStore keeps each entity as a JSON document and commits updates with
// WATCH/MULTI/EXEC, retrying up to Options.MaxRetries times when another
// client modifies the key first.
type RedisStore struct {
	client *redis.Client
	opts   Options
}

func NewRedisStore(client *redis.Client, opts Options) *RedisStore {
	return &RedisStore{client: client, opts: opts.withDefaults()}
}

func (s *RedisStore) CreateEvent(ctx context.Context, ev models.Event) (models.Event, error) {
	if ev.ID == "" {
		return models.Event{}, status.Validation("event id is required")
	}
	ev = stampNewEvent(ev, s.opts.Now())
	if err := s.create(ctx, "event", ev.ID, redisEventKey(ev.ID), redisEventsKey, ev); err != nil {
		return models.Event{}, err
	}
	return ev, nil
}

func (s *RedisStore) GetEvent(ctx context.Context, id string) (models.Event, error) {
	var ev models.Event
	if err := s.get(ctx, s.client, redisEventKey(id), &ev); err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Event{}, eventNotFound(id)
		}
		return models.Event{}, err
	}
	return ev, nil
}

func (s *RedisStore) ListEvents(ctx context.Context, q EventQuery) ([]models.Event, error) {
	docs, err := s.list(ctx, redisEventsKey, redisEventKey)
	if err != nil {
		return nil, err
	}
	out := make([]models.Event, 0, len(docs))
	for _, doc := range docs {
		var ev models.Event
		if err := json.Unmarshal(doc, &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		if q.Match(ev) {
			out = append(out, ev)
		}
	}
	sortEvents(out)
	return out, nil
}

func (s *RedisStore) UpdateEvent(ctx context.Context, id string, fn EventMutation) (models.Event, error) {
	key := redisEventKey(id)
	var updated models.Event
	err := s.cas(ctx, "event", id, key, func(tx *redis.Tx) error {
		var current models.Event
		if err := s.get(ctx, tx, key, &current); err != nil {
			if errors.Is(err, redis.Nil) {
				return eventNotFound(id)
			}
			return err
		}
		next, err := applyEvent(current, fn, s.opts.Now())
		if err != nil {
			return err
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return models.Event{}, err
	}
	return updated, nil
}

func (s *RedisStore) DeleteEvent(ctx context.Context, id string, guard EventGuard) error {
	key := redisEventKey(id)
	return s.cas(ctx, "event", id, key, func(tx *redis.Tx) error {
		var current models.Event
		if err := s.get(ctx, tx, key, &current); err != nil {
			if errors.Is(err, redis.Nil) {
				return eventNotFound(id)
			}
			return err
		}
		if guard != nil {
			if err := guard(current); err != nil {
				return err
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, redisEventsKey, id)
			return nil
		})
		return err
	})
}

func (s *RedisStore) CreateResource(ctx context.Context, r models.Resource) (models.Resource, error) {
	if r.ID == "" {
		return models.Resource{}, status.Validation("resource id is required")
	}
	r = stampNewResource(r, s.opts.Now())
	if err := s.create(ctx, "resource", r.ID, redisResourceKey(r.ID), redisResourcesKey, r); err != nil {
		return models.Resource{}, err
	}
	return r, nil
}

func (s *RedisStore) GetResource(ctx context.Context, id string) (models.Resource, error) {
	var r models.Resource
	if err := s.get(ctx, s.client, redisResourceKey(id), &r); err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Resource{}, resourceNotFound(id)
		}
		return models.Resource{}, err
	}
	return r, nil
}

func (s *RedisStore) ListResources(ctx context.Context) ([]models.Resource, error) {
	docs, err := s.list(ctx, redisResourcesKey, redisResourceKey)
	if err != nil {
		return nil, err
	}
	out := make([]models.Resource, 0, len(docs))
	for _, doc := range docs {
		var r models.Resource
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, fmt.Errorf("decode resource: %w", err)
		}
		out = append(out, r)
	}
	sortResources(out)
	return out, nil
}

func (s *RedisStore) UpdateResource(ctx context.Context, id string, fn ResourceMutation) (models.Resource, error) {
	key := redisResourceKey(id)
	var updated models.Resource
	err := s.cas(ctx, "resource", id, key, func(tx *redis.Tx) error {
		var current models.Resource
		if err := s.get(ctx, tx, key, &current); err != nil {
			if errors.Is(err, redis.Nil) {
				return resourceNotFound(id)
			}
			return err
		}
		next, err := applyResource(current, fn, s.opts.Now())
		if err != nil {
			return err
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode resource: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return models.Resource{}, err
	}
	return updated, nil
}

func (s *RedisStore) create(ctx context.Context, entity, id, key, setKey string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", entity, err)
	}
	ok, err := s.client.SetNX(ctx, key, payload, 0).Result()
	if err != nil {
		return fmt.Errorf("create %s %s: %w", entity, id, err)
	}
	if !ok {
		return status.New(status.KindDuplicate, "%s %s already exists", entity, id)
	}
	if err := s.client.SAdd(ctx, setKey, id).Err(); err != nil {
		return fmt.Errorf("index %s %s: %w", entity, id, err)
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, c redis.Cmdable, key string, dst any) error {
	raw, err := c.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) list(ctx context.Context, setKey string, keyFor func(string) string) ([][]byte, error) {
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", setKey, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyFor(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", setKey, err)
	}
	docs := make([][]byte, 0, len(values))
	for _, v := range values {
		// Entries deleted between SMEMBERS and MGET come back nil.
		if str, ok := v.(string); ok {
			docs = append(docs, []byte(str))
		}
	}
	return docs, nil
}

func (s *RedisStore) cas(ctx context.Context, entity, id, key string, txf func(tx *redis.Tx) error) error {
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		slog.Debug("Optimistic update lost race, retrying", "entity", entity, "id", id, "attempt", attempt)
	}
	slog.Warn("Optimistic update retry budget exhausted", "entity", entity, "id", id)
	return retriesExhausted(entity, id, s.opts.MaxRetries)
}
