package repository

import (
	"context"

	"github.com/m-mizutani/omoide/pkg/model"
)

// Filter selects entries during a full scan
type Filter func(*model.Entry) bool

// Repository is the Primary Store: the durable source of truth for memory entries.
// Lookups other than by ID are full scans with an in-process filter; indexed search
// belongs to the search index.
//
// Backend failures are logged by the implementation and returned tagged with
// model.ErrTagBackend. Absent entries are reported as nil, never as an error.
type Repository interface {
	// CreateTable provisions storage. Calling it on provisioned storage succeeds.
	CreateTable(ctx context.Context) error

	// AddEntry writes entry unconditionally. An empty ID is replaced with
	// model.NewEntryID() and CreatedAt is set by the store.
	AddEntry(ctx context.Context, entry *model.Entry) (*model.Entry, error)

	// GetEntry returns nil when the entry does not exist
	GetEntry(ctx context.Context, id model.EntryID) (*model.Entry, error)

	// UpdateEntry merges update into an existing entry and refreshes UpdatedAt.
	// Unknown IDs fail with model.ErrEntryNotFound.
	UpdateEntry(ctx context.Context, id model.EntryID, update *model.EntryUpdate) error

	DeleteEntry(ctx context.Context, id model.EntryID) error

	// ListAllEntries returns entries ordered by ID. limit <= 0 means no limit.
	ListAllEntries(ctx context.Context, limit int) ([]*model.Entry, error)

	// ListEntries scans every entry and keeps those accepted by all filters
	ListEntries(ctx context.Context, filters ...Filter) ([]*model.Entry, error)
}

// ByLocation matches entries whose location equals location exactly
func ByLocation(location string) Filter {
	return func(e *model.Entry) bool {
		return e.Location == location
	}
}

// ByTimeRange matches entries with start <= time <= end. ISO-8601 strings in the same
// layout compare correctly as strings.
func ByTimeRange(start, end string) Filter {
	return func(e *model.Entry) bool {
		return e.Time >= start && e.Time <= end
	}
}

// GetEntriesByLocation is a full scan for entries at location
func GetEntriesByLocation(ctx context.Context, repo Repository, location string) ([]*model.Entry, error) {
	return repo.ListEntries(ctx, ByLocation(location))
}

// GetEntriesByTimeRange is a full scan for entries between start and end, inclusive
func GetEntriesByTimeRange(ctx context.Context, repo Repository, start, end string) ([]*model.Entry, error) {
	return repo.ListEntries(ctx, ByTimeRange(start, end))
}

func matchAll(entry *model.Entry, filters []Filter) bool {
	for _, f := range filters {
		if !f(entry) {
			return false
		}
	}
	return true
}
