package feed

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/utils/logging"
	"google.golang.org/api/iterator"
)

// Firestore turns snapshot listener updates of the entry collection into change records.
// The first snapshot reports every existing document as added, so a fresh listener
// replays the whole collection unless WithSkipExisting is set.
type Firestore struct {
	client       *firestore.Client
	collection   string
	skipExisting bool
}

type FirestoreOption func(*Firestore)

// WithSkipExisting ignores documents present when the listener starts
func WithSkipExisting() FirestoreOption {
	return func(f *Firestore) {
		f.skipExisting = true
	}
}

func NewFirestore(client *firestore.Client, collection string, opts ...FirestoreOption) *Firestore {
	f := &Firestore{
		client:     client,
		collection: collection,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Firestore) Listen(ctx context.Context, h Handler) error {
	iter := f.client.Collection(f.collection).Snapshots(ctx)
	defer iter.Stop()

	var seq int64
	initial := true
	for {
		snap, err := iter.Next()
		if ctx.Err() != nil || err == iterator.Done {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to receive entry snapshot",
				goerr.V("collection", f.collection),
				goerr.T(model.ErrTagBackend))
		}

		if initial {
			initial = false
			if f.skipExisting {
				logging.From(ctx).Info("skipped existing entries", "count", len(snap.Changes))
				continue
			}
		}

		changes := make([]*model.EntryChange, 0, len(snap.Changes))
		for _, dc := range snap.Changes {
			change, err := toChange(dc)
			if err != nil {
				logging.From(ctx).Warn("skipped undecodable entry document", "error", err, "doc_id", dc.Doc.Ref.ID)
				continue
			}
			seq++
			change.Sequence = seq
			changes = append(changes, change)
		}
		if len(changes) == 0 {
			continue
		}

		if err := h(ctx, changes); err != nil {
			return err
		}
	}
}

func toChange(dc firestore.DocumentChange) (*model.EntryChange, error) {
	var kind model.ChangeKind
	switch dc.Kind {
	case firestore.DocumentAdded:
		kind = model.ChangeInsert
	case firestore.DocumentModified:
		kind = model.ChangeModify
	case firestore.DocumentRemoved:
		kind = model.ChangeRemove
	default:
		return nil, goerr.New("unknown document change kind", goerr.V("kind", dc.Kind))
	}

	var entry model.Entry
	if err := dc.Doc.DataTo(&entry); err != nil {
		return nil, goerr.Wrap(err, "failed to decode entry document")
	}
	entry.ID = model.EntryID(dc.Doc.Ref.ID)

	return &model.EntryChange{Kind: kind, Entry: &entry}, nil
}
