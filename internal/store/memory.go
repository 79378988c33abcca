package store

import (
	"context"
	"sync"
	"time"

	"campus-events/internal/status"
	"campus-events/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps entities in maps and serializes writers with one lock per
// entity id. Lock waits are bounded by Options.LockTimeout.
type MemoryStore struct {
	opts Options

	mu        sync.RWMutex
	events    map[string]models.Event
	resources map[string]models.Resource

	locks *keyedLocks
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:      opts.withDefaults(),
		events:    make(map[string]models.Event),
		resources: make(map[string]models.Resource),
		locks:     newKeyedLocks(),
	}
}

func (s *MemoryStore) CreateEvent(_ context.Context, ev models.Event) (models.Event, error) {
	if ev.ID == "" {
		return models.Event{}, status.Validation("event id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.ID]; ok {
		return models.Event{}, status.New(status.KindDuplicate, "event %s already exists", ev.ID)
	}
	ev = stampNewEvent(ev, s.opts.Now())
	s.events[ev.ID] = ev
	return ev.Clone(), nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id string) (models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return models.Event{}, eventNotFound(id)
	}
	return ev.Clone(), nil
}

func (s *MemoryStore) ListEvents(_ context.Context, q EventQuery) ([]models.Event, error) {
	s.mu.RLock()
	out := make([]models.Event, 0)
	for _, ev := range s.events {
		if q.Match(ev) {
			out = append(out, ev.Clone())
		}
	}
	s.mu.RUnlock()
	sortEvents(out)
	return out, nil
}

func (s *MemoryStore) UpdateEvent(ctx context.Context, id string, fn EventMutation) (models.Event, error) {
	release, err := s.locks.acquire(ctx, "event:"+id, s.opts.LockTimeout)
	if err != nil {
		return models.Event{}, err
	}
	defer release()

	current, err := s.GetEvent(ctx, id)
	if err != nil {
		return models.Event{}, err
	}
	next, err := applyEvent(current, fn, s.opts.Now())
	if err != nil {
		return models.Event{}, err
	}

	s.mu.Lock()
	s.events[id] = next
	s.mu.Unlock()
	return next.Clone(), nil
}

func (s *MemoryStore) DeleteEvent(ctx context.Context, id string, guard EventGuard) error {
	release, err := s.locks.acquire(ctx, "event:"+id, s.opts.LockTimeout)
	if err != nil {
		return err
	}
	defer release()

	current, err := s.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if guard != nil {
		if err := guard(current); err != nil {
			return err
		}
	}

	s.mu.Lock()
	delete(s.events, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) CreateResource(_ context.Context, r models.Resource) (models.Resource, error) {
	if r.ID == "" {
		return models.Resource{}, status.Validation("resource id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[r.ID]; ok {
		return models.Resource{}, status.New(status.KindDuplicate, "resource %s already exists", r.ID)
	}
	r = stampNewResource(r, s.opts.Now())
	s.resources[r.ID] = r
	return r.Clone(), nil
}

func (s *MemoryStore) GetResource(_ context.Context, id string) (models.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	if !ok {
		return models.Resource{}, resourceNotFound(id)
	}
	return r.Clone(), nil
}

func (s *MemoryStore) ListResources(_ context.Context) ([]models.Resource, error) {
	s.mu.RLock()
	out := make([]models.Resource, 0, len(s.resources))
	for _, r := range s.resources {
		out = append(out, r.Clone())
	}
	s.mu.RUnlock()
	sortResources(out)
	return out, nil
}

func (s *MemoryStore) UpdateResource(ctx context.Context, id string, fn ResourceMutation) (models.Resource, error) {
	release, err := s.locks.acquire(ctx, "resource:"+id, s.opts.LockTimeout)
	if err != nil {
		return models.Resource{}, err
	}
	defer release()

	current, err := s.GetResource(ctx, id)
	if err != nil {
		return models.Resource{}, err
	}
	next, err := applyResource(current, fn, s.opts.Now())
	if err != nil {
		return models.Resource{}, err
	}

	s.mu.Lock()
	s.resources[id] = next
	s.mu.Unlock()
	return next.Clone(), nil
}

// keyedLocks hands out one single-slot channel per key; holding the slot is
// holding the lock. A slot lives only while someone holds or waits on it.
type keyedLocks struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{slots: make(map[string]*lockSlot)}
}

func (k *keyedLocks) slot(key string) *lockSlot {
	k.mu.Lock()
	defer k.mu.Unlock()
	sl, ok := k.slots[key]
	if !ok {
		sl = &lockSlot{ch: make(chan struct{}, 1)}
		k.slots[key] = sl
	}
	sl.refs++
	return sl
}

func (k *keyedLocks) unref(key string, sl *lockSlot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(k.slots, key)
	}
}

func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

func (k *keyedLocks) acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	sl := k.slot(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sl.ch <- struct{}{}:
		return func() {
			<-sl.ch
			k.unref(key, sl)
		}, nil
	case <-timer.C:
		k.unref(key, sl)
		return nil, status.WithMetadata(status.KindTransientConflict, "timed out waiting for entity lock", map[string]string{
			"key": key,
		})
	case <-ctx.Done():
		k.unref(key, sl)
		return nil, status.Wrap(status.KindTransientConflict, "gave up waiting for entity lock", ctx.Err())
	}
}
