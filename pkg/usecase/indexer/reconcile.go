package indexer

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/utils/logging"
)

// EntryLister is the part of the Primary Store that reconciliation reads
type EntryLister interface {
	ListAllEntries(ctx context.Context, limit int) ([]*model.Entry, error)
}

// ReconcileOptions selects what reconciliation replays
type ReconcileOptions struct {
	// Force reindexes every entry, not only missing or stale ones
	Force bool
	// Prune deletes documents whose entry no longer exists
	Prune bool
	// BatchSize is the number of records handed to HandleBatch at once
	BatchSize int
}

// ReconcileReport summarizes one reconciliation pass
type ReconcileReport struct {
	Entries   int
	Documents int
	Missing   int
	Stale     int
	Orphaned  int
	Indexed   int
	Deleted   int
	Dropped   int
	Failed    int
}

// Reconcile replays the Primary Store into the search index. Entries without a document
// or whose document carries other fields are reindexed. It restores the invariant that
// every entry has exactly one document when change records were lost or dropped.
func (x *Indexer) Reconcile(ctx context.Context, store EntryLister, opts ReconcileOptions) (*ReconcileReport, error) {
	// Documents are read before entries. An entry indexed between the two reads is then
	// seen as missing and reindexed, never as an orphan to prune.
	docs, err := x.index.GetAllDocuments(ctx, 0)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list documents for reconcile")
	}
	entries, err := store.ListAllEntries(ctx, 0)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list entries for reconcile")
	}

	report := &ReconcileReport{
		Entries:   len(entries),
		Documents: len(docs),
	}

	byID := make(map[model.EntryID]*model.SearchDocument, len(docs))
	for _, d := range docs {
		byID[d.EntryID] = d
	}

	var changes []*model.EntryChange
	for _, e := range entries {
		doc, ok := byID[e.ID]
		delete(byID, e.ID)

		switch {
		case !ok:
			report.Missing++
		case !doc.Matches(e):
			report.Stale++
		case !opts.Force:
			continue
		}
		changes = append(changes, &model.EntryChange{Kind: model.ChangeModify, Entry: e})
	}

	// byID now holds only documents without an entry
	report.Orphaned = len(byID)
	if opts.Prune {
		for id := range byID {
			changes = append(changes, &model.EntryChange{Kind: model.ChangeRemove, Entry: &model.Entry{ID: id}})
		}
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	for start := 0; start < len(changes); start += batchSize {
		end := min(start+batchSize, len(changes))
		result, err := x.process(ctx, changes[start:end])
		if err != nil {
			return report, err
		}
		report.Indexed += result.Count(OutcomeIndexed)
		report.Deleted += result.Count(OutcomeDeleted)
		report.Dropped += result.Count(OutcomeDropped) + result.Count(OutcomeFiltered)
		report.Failed += result.Count(OutcomeFailed)
	}

	logging.From(ctx).Info("reconciled search index",
		"entries", report.Entries,
		"documents", report.Documents,
		"missing", report.Missing,
		"stale", report.Stale,
		"orphaned", report.Orphaned,
		"indexed", report.Indexed,
		"deleted", report.Deleted,
		"failed", report.Failed,
	)
	return report, nil
}
