// Package cache provides short-lived in-process caching of read-mostly
// lookups. Capacity and stock counters are never cached.
package cache

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Shivanand-hulikatti/race-registration/internal/model"
	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
)

const DefaultCleanupInterval = 5 * time.Minute

// EventCachingStore serves GetEvent from memory and delegates everything else.
type EventCachingStore struct {
	ports.Store
	events *gocache.Cache
}

// WithEventCache wraps store so event lookups are cached for ttl.
// A non-positive ttl returns store unchanged.
func WithEventCache(store ports.Store, ttl time.Duration) ports.Store {
	if ttl <= 0 {
		return store
	}
	return &EventCachingStore{
		Store:  store,
		events: gocache.New(ttl, DefaultCleanupInterval),
	}
}

// GetEvent returns a copy of the cached event, loading it on a miss.
// The status is re-read on every hit so an unpublished or cancelled event
// stops taking registrations immediately; questions, window and date may
// lag by up to the TTL. Not-found results are not cached.
func (s *EventCachingStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if v, ok := s.events.Get(id); ok {
		if e, ok := v.(model.Event); ok {
			status, err := s.Store.GetEventStatus(ctx, id)
			if err != nil {
				if errors.Is(err, model.ErrEventNotFound) {
					s.events.Delete(id)
				}
				return nil, err
			}
			e.Status = status
			e.Questions = append([]model.Question(nil), e.Questions...)
			return &e, nil
		}
	}
	e, err := s.Store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	cp := *e
	cp.Questions = append([]model.Question(nil), e.Questions...)
	s.events.SetDefault(id, cp)
	return e, nil
}
