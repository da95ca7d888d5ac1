package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/utils/logging"
)

// Publisher receives a change record after each successful write. feed.Memory
// implements it so the in-memory store produces a change feed like Firestore does.
type Publisher interface {
	Publish(ctx context.Context, change *model.EntryChange)
}

// Memory is an in-process Repository for tests and local runs
type Memory struct {
	mu        sync.RWMutex
	entries   map[model.EntryID]*model.Entry
	publisher Publisher
	now       func() time.Time
}

type MemoryOption func(*Memory)

// WithPublisher emits INSERT, MODIFY and REMOVE records to p
func WithPublisher(p Publisher) MemoryOption {
	return func(r *Memory) {
		r.publisher = p
	}
}

// WithClock replaces the clock used for CreatedAt and UpdatedAt
func WithClock(now func() time.Time) MemoryOption {
	return func(r *Memory) {
		r.now = now
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	r := &Memory{
		entries: make(map[model.EntryID]*model.Entry),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Memory) publish(ctx context.Context, kind model.ChangeKind, entry *model.Entry) {
	if r.publisher == nil {
		return
	}
	r.publisher.Publish(ctx, &model.EntryChange{Kind: kind, Entry: entry.Copy()})
}

func (r *Memory) CreateTable(ctx context.Context) error {
	return nil
}

func (r *Memory) AddEntry(ctx context.Context, entry *model.Entry) (*model.Entry, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	stored := entry.Copy()
	if stored.ID == "" {
		stored.ID = model.NewEntryID()
	}
	stored.CreatedAt = r.now()
	stored.UpdatedAt = time.Time{}

	r.mu.Lock()
	_, exists := r.entries[stored.ID]
	r.entries[stored.ID] = stored
	r.mu.Unlock()

	kind := model.ChangeInsert
	if exists {
		kind = model.ChangeModify
	}
	r.publish(ctx, kind, stored)

	logging.From(ctx).Debug("added entry", "id", stored.ID)
	return stored.Copy(), nil
}

func (r *Memory) GetEntry(ctx context.Context, id model.EntryID) (*model.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.entries[id].Copy(), nil
}

func (r *Memory) UpdateEntry(ctx context.Context, id model.EntryID, update *model.EntryUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	entry, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return goerr.Wrap(model.ErrEntryNotFound, "failed to update entry", goerr.V("id", id))
	}
	update.Apply(entry, r.now())
	updated := entry.Copy()
	r.mu.Unlock()

	r.publish(ctx, model.ChangeModify, updated)
	return nil
}

func (r *Memory) DeleteEntry(ctx context.Context, id model.EntryID) error {
	r.mu.Lock()
	entry, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok {
		r.publish(ctx, model.ChangeRemove, entry)
	}
	return nil
}

func (r *Memory) ListAllEntries(ctx context.Context, limit int) ([]*model.Entry, error) {
	entries := r.sorted(nil)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r *Memory) ListEntries(ctx context.Context, filters ...Filter) ([]*model.Entry, error) {
	return r.sorted(filters), nil
}

func (r *Memory) sorted(filters []Filter) []*model.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*model.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if matchAll(e, filters) {
			entries = append(entries, e.Copy())
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
	return entries
}
