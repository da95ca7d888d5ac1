// Package indexer is the change-data-capture consumer that keeps the search index in
// step with the Primary Store.
package indexer

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/feed"
	"github.com/m-mizutani/omoide/pkg/interfaces"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/policy"
	"github.com/m-mizutani/omoide/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// Outcome is what happened to one change record
type Outcome string

const (
	OutcomeIndexed    Outcome = "indexed"
	OutcomeDeleted    Outcome = "deleted"
	OutcomeFiltered   Outcome = "filtered"
	OutcomeSuperseded Outcome = "superseded"
	OutcomeDropped    Outcome = "dropped"
	OutcomeFailed     Outcome = "failed"
	OutcomeInvalid    Outcome = "invalid"
)

const DefaultWorkers = 4

// Indexer embeds entries and upserts their search documents. It keeps no state between
// records, so restarting it or redelivering a record is safe.
type Indexer struct {
	embedder      interfaces.Embedder
	index         interfaces.DocumentWriter
	gate          *policy.Gate
	workers       int
	recordTimeout time.Duration
	metrics       *Metrics
}

type Option func(*Indexer)

// WithPolicy filters records through the Rego ingest policy before embedding
func WithPolicy(g *policy.Gate) Option {
	return func(x *Indexer) {
		x.gate = g
	}
}

// WithWorkers bounds how many records of a batch are processed at once
func WithWorkers(n int) Option {
	return func(x *Indexer) {
		if n > 0 {
			x.workers = n
		}
	}
}

// WithRecordTimeout bounds the time spent on one record, embedding included
func WithRecordTimeout(d time.Duration) Option {
	return func(x *Indexer) {
		x.recordTimeout = d
	}
}

func WithMetrics(m *Metrics) Option {
	return func(x *Indexer) {
		x.metrics = m
	}
}

func New(embedder interfaces.Embedder, index interfaces.DocumentWriter, opts ...Option) *Indexer {
	x := &Indexer{
		embedder: embedder,
		index:    index,
		workers:  DefaultWorkers,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Run consumes f until it is exhausted or ctx is cancelled
func (x *Indexer) Run(ctx context.Context, f feed.Feed) error {
	logging.From(ctx).Info("indexer started", "workers", x.workers)
	if err := f.Listen(ctx, x.HandleBatch); err != nil {
		return goerr.Wrap(err, "change feed stopped")
	}
	logging.From(ctx).Info("indexer stopped")
	return nil
}

// HandleBatch processes one batch and returns once every record is indexed, deleted or
// deliberately dropped. Record failures are logged and counted, never retried, so the
// batch is always acknowledged unless ctx is cancelled.
func (x *Indexer) HandleBatch(ctx context.Context, changes []*model.EntryChange) error {
	_, err := x.process(ctx, changes)
	return err
}

// BatchResult counts outcomes of one batch
type BatchResult struct {
	mu     sync.Mutex
	counts map[Outcome]int
}

func (r *BatchResult) add(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[o]++
}

// Count returns how many records ended with o
func (r *BatchResult) Count(o Outcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[o]
}

func (x *Indexer) process(ctx context.Context, changes []*model.EntryChange) (*BatchResult, error) {
	result := &BatchResult{counts: make(map[Outcome]int)}
	x.metrics.observeBatch(len(changes))

	latest, superseded := collapse(changes)
	for range superseded {
		result.add(OutcomeSuperseded)
		x.metrics.observe(OutcomeSuperseded)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(x.workers)
	for _, change := range latest {
		eg.Go(func() error {
			o := x.handleRecord(egCtx, change)
			result.add(o)
			x.metrics.observe(o)
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return result, goerr.Wrap(err, "batch interrupted", goerr.V("size", len(changes)))
	}
	return result, nil
}

// collapse keeps the last change of each entry in delivery order. Earlier changes of
// the same entry in one batch would be overwritten anyway, and dropping them keeps
// the last change winning under concurrent processing.
func collapse(changes []*model.EntryChange) (latest []*model.EntryChange, superseded []*model.EntryChange) {
	last := make(map[model.EntryID]int, len(changes))
	for i, c := range changes {
		if c == nil || c.Entry == nil {
			continue
		}
		last[c.Entry.ID] = i
	}

	for i, c := range changes {
		if c == nil || c.Entry == nil {
			latest = append(latest, c)
			continue
		}
		if last[c.Entry.ID] == i {
			latest = append(latest, c)
		} else {
			superseded = append(superseded, c)
		}
	}
	return latest, superseded
}

func (x *Indexer) handleRecord(ctx context.Context, change *model.EntryChange) Outcome {
	if x.recordTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.recordTimeout)
		defer cancel()
	}

	logger := logging.From(ctx)
	if change == nil {
		logger.Warn("skipped empty change record")
		return OutcomeInvalid
	}
	if err := change.Validate(); err != nil {
		logger.Warn("skipped invalid change record", "error", err, "sequence", change.Sequence)
		return OutcomeInvalid
	}

	entry := change.Entry
	logger = logger.With("entry_id", entry.ID, "event", change.Kind, "sequence", change.Sequence)

	if change.Kind == model.ChangeRemove {
		if err := x.index.DeleteDocument(ctx, entry.ID); err != nil {
			logger.Error("failed to delete document", "error", err)
			return OutcomeFailed
		}
		logger.Debug("deleted document")
		return OutcomeDeleted
	}

	decision, err := x.gate.Evaluate(ctx, change)
	if err != nil {
		logger.Error("failed to evaluate ingest policy", "error", err)
		return OutcomeFailed
	}
	if decision.Drop {
		logger.Info("record filtered by ingest policy", "reason", decision.Reason)
		return OutcomeFiltered
	}

	if entry.Description == "" {
		logger.Warn("skipped entry without description")
		return OutcomeInvalid
	}

	started := time.Now()
	embedding, err := x.embedder.Embed(ctx, entry.Description)
	x.metrics.observeEmbed(time.Since(started).Seconds())
	if err != nil {
		logger.Warn("dropped record after embedding failure", "error", err)
		return OutcomeDropped
	}
	if len(embedding) != x.embedder.Dimension() {
		logger.Warn("dropped record with malformed embedding",
			"expected", x.embedder.Dimension(),
			"actual", len(embedding))
		return OutcomeDropped
	}

	if err := x.index.IndexDocument(ctx, model.NewSearchDocument(entry, embedding)); err != nil {
		logger.Error("failed to index document", "error", err)
		return OutcomeFailed
	}

	logger.Debug("indexed document")
	return OutcomeIndexed
}
