package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/utils/logging"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	DefaultCollection = "entries"
	schemaCollection  = "_schema"
	schemaVersion     = 1
)

// Firestore implements Repository using a Firestore collection keyed by entry ID
type Firestore struct {
	client     *firestore.Client
	collection string
	clientOpts []option.ClientOption
	now        func() time.Time
}

type FirestoreOption func(*Firestore)

// WithCollection sets the collection that holds entries
func WithCollection(name string) FirestoreOption {
	return func(r *Firestore) {
		r.collection = name
	}
}

// WithClientOptions passes options such as credentials to the Firestore client
func WithClientOptions(opts ...option.ClientOption) FirestoreOption {
	return func(r *Firestore) {
		r.clientOpts = append(r.clientOpts, opts...)
	}
}

// NewFirestore creates a new Firestore repository
func NewFirestore(ctx context.Context, projectID, databaseID string, opts ...FirestoreOption) (*Firestore, error) {
	r := &Firestore{
		collection: DefaultCollection,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID, r.clientOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID),
			goerr.T(model.ErrTagConfig))
	}
	r.client = client

	return r, nil
}

// Client returns the underlying client so a change feed can share the connection
func (r *Firestore) Client() *firestore.Client {
	return r.client
}

// Collection returns the entry collection name
func (r *Firestore) Collection() string {
	return r.collection
}

func (r *Firestore) Close() error {
	if err := r.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close firestore client")
	}
	return nil
}

func (r *Firestore) entries() *firestore.CollectionRef {
	return r.client.Collection(r.collection)
}

// backendError logs a failed Firestore call and tags it as a backend failure
func backendError(ctx context.Context, err error, msg string, opts ...goerr.Option) error {
	opts = append(opts, goerr.T(model.ErrTagBackend))
	wrapped := goerr.Wrap(err, msg, opts...)
	logging.From(ctx).Error(msg, "error", wrapped)
	return wrapped
}

// CreateTable writes a schema marker for the collection. Firestore creates collections
// implicitly, so the marker is the only provisioned state.
func (r *Firestore) CreateTable(ctx context.Context) error {
	marker := map[string]any{
		"collection":     r.collection,
		"key":            "id",
		"schema_version": schemaVersion,
		"created_at":     r.now(),
	}

	_, err := r.client.Collection(schemaCollection).Doc(r.collection).Create(ctx, marker)
	if status.Code(err) == codes.AlreadyExists {
		logging.From(ctx).Info("entry collection already provisioned", "collection", r.collection)
		return nil
	}
	if err != nil {
		return backendError(ctx, err, "failed to provision entry collection", goerr.V("collection", r.collection))
	}

	logging.From(ctx).Info("entry collection provisioned", "collection", r.collection)
	return nil
}

func (r *Firestore) AddEntry(ctx context.Context, entry *model.Entry) (*model.Entry, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	stored := entry.Copy()
	if stored.ID == "" {
		stored.ID = model.NewEntryID()
	}
	stored.CreatedAt = r.now()
	stored.UpdatedAt = time.Time{}

	if _, err := r.entries().Doc(stored.ID.String()).Set(ctx, stored); err != nil {
		return nil, backendError(ctx, err, "failed to add entry", goerr.V("id", stored.ID))
	}

	logging.From(ctx).Info("added entry", "id", stored.ID)
	return stored, nil
}

func (r *Firestore) GetEntry(ctx context.Context, id model.EntryID) (*model.Entry, error) {
	snap, err := r.entries().Doc(id.String()).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, backendError(ctx, err, "failed to get entry", goerr.V("id", id))
	}

	var entry model.Entry
	if err := snap.DataTo(&entry); err != nil {
		return nil, backendError(ctx, err, "failed to decode entry", goerr.V("id", id))
	}
	entry.ID = id

	return &entry, nil
}

func (r *Firestore) UpdateEntry(ctx context.Context, id model.EntryID, update *model.EntryUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	var updates []firestore.Update
	if update.Time != nil {
		updates = append(updates, firestore.Update{Path: "time", Value: *update.Time})
	}
	if update.Location != nil {
		updates = append(updates, firestore.Update{Path: "location", Value: *update.Location})
	}
	if update.Description != nil {
		updates = append(updates, firestore.Update{Path: "description", Value: *update.Description})
	}
	updates = append(updates, firestore.Update{Path: "updated_at", Value: r.now()})

	// Update fails with NotFound instead of creating the document
	_, err := r.entries().Doc(id.String()).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		logging.From(ctx).Warn("update of unknown entry", "id", id)
		return goerr.Wrap(model.ErrEntryNotFound, "failed to update entry", goerr.V("id", id))
	}
	if err != nil {
		return backendError(ctx, err, "failed to update entry", goerr.V("id", id))
	}

	logging.From(ctx).Info("updated entry", "id", id)
	return nil
}

func (r *Firestore) DeleteEntry(ctx context.Context, id model.EntryID) error {
	if _, err := r.entries().Doc(id.String()).Delete(ctx); err != nil {
		return backendError(ctx, err, "failed to delete entry", goerr.V("id", id))
	}

	logging.From(ctx).Info("deleted entry", "id", id)
	return nil
}

func (r *Firestore) ListAllEntries(ctx context.Context, limit int) ([]*model.Entry, error) {
	q := r.entries().OrderBy(firestore.DocumentID, firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.scan(ctx, q, nil)
}

func (r *Firestore) ListEntries(ctx context.Context, filters ...Filter) ([]*model.Entry, error) {
	return r.scan(ctx, r.entries().OrderBy(firestore.DocumentID, firestore.Asc), filters)
}

func (r *Firestore) scan(ctx context.Context, q firestore.Query, filters []Filter) ([]*model.Entry, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	entries := make([]*model.Entry, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, backendError(ctx, err, "failed to scan entries", goerr.V("collection", r.collection))
		}

		var entry model.Entry
		if err := snap.DataTo(&entry); err != nil {
			return nil, backendError(ctx, err, "failed to decode entry", goerr.V("doc_id", snap.Ref.ID))
		}
		entry.ID = model.EntryID(snap.Ref.ID)

		if matchAll(&entry, filters) {
			entries = append(entries, &entry)
		}
	}

	return entries, nil
}
