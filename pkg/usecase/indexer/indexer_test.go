package indexer_test

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/omoide/pkg/adapter"
	"github.com/m-mizutani/omoide/pkg/feed"
	"github.com/m-mizutani/omoide/pkg/index"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/policy"
	"github.com/m-mizutani/omoide/pkg/usecase/indexer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const testDim = 32

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
	calls   atomic.Int32
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	return m.embedFn(ctx, text)
}

func (m *mockEmbedder) Dimension() int { return testDim }

// hashing embedder that fails for descriptions containing "fail"
func newMockEmbedder(t *testing.T) *mockEmbedder {
	h, err := adapter.NewHashEmbedder(testDim)
	gt.NoError(t, err)
	return &mockEmbedder{
		embedFn: func(ctx context.Context, text string) ([]float32, error) {
			if strings.Contains(text, "fail") {
				return nil, goerr.New("quota exceeded", goerr.T(model.ErrTagEmbedding))
			}
			return h.Embed(ctx, text)
		},
	}
}

type mockWriter struct {
	indexFn  func(ctx context.Context, doc *model.SearchDocument) error
	deleteFn func(ctx context.Context, id model.EntryID) error
}

func (m *mockWriter) IndexDocument(ctx context.Context, doc *model.SearchDocument) error {
	return m.indexFn(ctx, doc)
}

func (m *mockWriter) DeleteDocument(ctx context.Context, id model.EntryID) error {
	return m.deleteFn(ctx, id)
}

func (m *mockWriter) GetAllDocuments(ctx context.Context, limit int) ([]*model.SearchDocument, error) {
	return nil, nil
}

func openIndex(t *testing.T) *index.SQLite {
	idx, err := index.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"), testDim)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func insert(id, description string) *model.EntryChange {
	return &model.EntryChange{
		Kind: model.ChangeInsert,
		Entry: &model.Entry{
			ID:          model.EntryID(id),
			Time:        "2024-01-01T10:00:00",
			Location:    "New York",
			Description: description,
		},
	}
}

func count(t *testing.T, idx *index.SQLite) int {
	n, err := idx.CountDocuments(context.Background())
	gt.NoError(t, err)
	return n
}

func TestRedeliveryLeavesOneDocument(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t)
	ix := indexer.New(newMockEmbedder(t), idx)

	change := insert("entry_1", "Met with client about project")
	for range 5 {
		gt.NoError(t, ix.HandleBatch(ctx, []*model.EntryChange{change}))
	}

	gt.Equal(t, count(t, idx), 1)

	hits, err := idx.SearchByText(ctx, "client", 10)
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
	gt.Equal(t, hits[0].EntryID, model.EntryID("entry_1"))
}

func TestEmbeddingFailureDropsRecord(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t)
	reg := prometheus.NewRegistry()
	metrics := indexer.NewMetrics(reg)
	ix := indexer.New(newMockEmbedder(t), idx, indexer.WithMetrics(metrics))

	gt.NoError(t, ix.HandleBatch(ctx, []*model.EntryChange{
		insert("entry_ok", "Bought coffee"),
		insert("entry_bad", "this will fail"),
	}))

	gt.Equal(t, count(t, idx), 1)
	gt.Equal(t, testutil.ToFloat64(metrics.Records(indexer.OutcomeIndexed)), 1.0)
	gt.Equal(t, testutil.ToFloat64(metrics.Records(indexer.OutcomeDropped)), 1.0)

	summary, err := indexer.Summary(reg)
	gt.NoError(t, err)
	gt.S(t, summary).Contains("indexed=1")
	gt.S(t, summary).Contains("dropped=1")
	gt.S(t, summary).Contains("failed=0")

	docs, err := idx.GetAllDocuments(ctx, 0)
	gt.NoError(t, err)
	gt.Equal(t, docs[0].EntryID, model.EntryID("entry_ok"))
}

func TestMalformedEmbeddingIsDropped(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t)
	emb := &mockEmbedder{
		embedFn: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{1, 2, 3}, nil
		},
	}
	ix := indexer.New(emb, idx)

	gt.NoError(t, ix.HandleBatch(ctx, []*model.EntryChange{insert("entry_1", "short vector")}))
	gt.Equal(t, count(t, idx), 0)
}

func TestRemoveDeletesDocument(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t)
	ix := indexer.New(newMockEmbedder(t), idx)

	gt.NoError(t, ix.HandleBatch(ctx, []*model.EntryChange{insert("entry_1", "Fed the cat")}))
	gt.Equal(t, count(t, idx), 1)

	gt.NoError(t, ix.HandleBatch(ctx, []*model.EntryChange{
		{Kind: model.ChangeRemove, Entry: &model.Entry{ID: "entry_1"}},
	}))
	gt.Equal(t, count(t, idx), 0)
}

func TestLastChangeInBatchWins(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t)
	reg := prometheus.NewRegistry()
	metrics := indexer.NewMetrics(reg)
	emb := newMockEmbedder(t)
	ix := indexer.New(emb, idx, indexer.WithMetrics(metrics))

	modified := insert("entry_1", "Dinner at an Italian place")
	modified.Kind = model.ChangeModify
	gt.NoError(t, ix.HandleBatch(ctx, []*model.EntryChange{
		insert("entry_1", "Dinner plans"),
		insert("entry_2", "Morning run"),
		modified,
	}))

	gt.Equal(t, count(t, idx), 2)
	gt.Equal(t, emb.calls.Load(), int32(2))
	gt.Equal(t, testutil.ToFloat64(metrics.Records(indexer.OutcomeSuperseded)), 1.0)

	hits, err := idx.SearchByText(ctx, "italian", 3)
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
}

func TestPolicyFiltersRecord(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t)
	gate, err := policy.NewFromSource(ctx, "ingest.rego", `package ingest

drop if {
	contains(input.entry.description, "secret")
}

reason := "private" if { drop }
`)
	gt.NoError(t, err)

	emb := newMockEmbedder(t)
	ix := indexer.New(emb, idx, indexer.WithPolicy(gate))

	gt.NoError(t, ix.HandleBatch(ctx, []*model.EntryChange{
		insert("entry_1", "my secret diary"),
		insert("entry_2", "public note"),
	}))
	gt.Equal(t, count(t, idx), 1)
	gt.Equal(t, emb.calls.Load(), int32(1))
}

func TestIndexFailureIsAcknowledged(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := indexer.NewMetrics(reg)
	w := &mockWriter{
		indexFn: func(ctx context.Context, doc *model.SearchDocument) error {
			return goerr.New("disk full", goerr.T(model.ErrTagBackend))
		},
		deleteFn: func(ctx context.Context, id model.EntryID) error { return nil },
	}
	ix := indexer.New(newMockEmbedder(t), w, indexer.WithMetrics(metrics))

	gt.NoError(t, ix.HandleBatch(ctx, []*model.EntryChange{insert("entry_1", "Planted tomatoes")}))
	gt.Equal(t, testutil.ToFloat64(metrics.Records(indexer.OutcomeFailed)), 1.0)
}

func TestInvalidRecordIsSkipped(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t)
	reg := prometheus.NewRegistry()
	metrics := indexer.NewMetrics(reg)
	ix := indexer.New(newMockEmbedder(t), idx, indexer.WithMetrics(metrics))

	gt.NoError(t, ix.HandleBatch(ctx, []*model.EntryChange{
		nil,
		{Kind: model.ChangeInsert},
		{Kind: "UPSERT", Entry: &model.Entry{ID: "entry_x", Description: "x"}},
		insert("entry_1", "Valid one"),
	}))
	gt.Equal(t, count(t, idx), 1)
	gt.Equal(t, testutil.ToFloat64(metrics.Records(indexer.OutcomeInvalid)), 3.0)
}

func TestRecordTimeoutBoundsSlowEmbedding(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t)
	fast := newMockEmbedder(t)
	emb := &mockEmbedder{
		embedFn: func(ctx context.Context, text string) ([]float32, error) {
			if text == "slow" {
				<-ctx.Done()
				return nil, goerr.Wrap(ctx.Err(), "embedding cancelled", goerr.T(model.ErrTagEmbedding))
			}
			return fast.embedFn(ctx, text)
		},
	}
	ix := indexer.New(emb, idx, indexer.WithRecordTimeout(50*time.Millisecond), indexer.WithWorkers(2))

	started := time.Now()
	gt.NoError(t, ix.HandleBatch(ctx, []*model.EntryChange{
		insert("entry_slow", "slow"),
		insert("entry_fast", "fast record"),
	}))
	gt.True(t, time.Since(started) < 5*time.Second)
	gt.Equal(t, count(t, idx), 1)
}

func TestCancelledBatchIsNotAcknowledged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ix := indexer.New(newMockEmbedder(t), openIndex(t))
	err := ix.HandleBatch(ctx, []*model.EntryChange{insert("entry_1", "anything")})
	gt.Error(t, err)
}

func TestRunConsumesFeed(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t)
	ix := indexer.New(newMockEmbedder(t), idx)

	f := feed.NewMemory(feed.WithMemoryBatchSize(2))
	for _, id := range []string{"entry_1", "entry_2", "entry_3"} {
		f.Publish(ctx, insert(id, "record "+id))
	}
	f.Close()

	gt.NoError(t, ix.Run(ctx, f))
	gt.Equal(t, count(t, idx), 3)
}
