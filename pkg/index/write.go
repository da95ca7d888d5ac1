package index

import (
	"context"
	"database/sql"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/utils/logging"
)

// IndexDocument upserts doc keyed by its EntryID
func (x *SQLite) IndexDocument(ctx context.Context, doc *model.SearchDocument) error {
	return x.BulkIndex(ctx, []*model.SearchDocument{doc})
}

// BulkIndex upserts all docs in one transaction. Either every document is written or
// none is.
func (x *SQLite) BulkIndex(ctx context.Context, docs []*model.SearchDocument) error {
	if len(docs) == 0 {
		return nil
	}

	for _, doc := range docs {
		if len(doc.Embedding) != x.dimension {
			return goerr.Wrap(model.ErrDimensionMismatch, "document embedding has wrong length",
				goerr.V("entry_id", doc.EntryID),
				goerr.V("expected", x.dimension),
				goerr.V("actual", len(doc.Embedding)),
				goerr.T(model.ErrTagEmbedding))
		}
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return backendError(ctx, err, "failed to begin index transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, doc := range docs {
		if err := upsert(ctx, tx, doc); err != nil {
			return backendError(ctx, err, "failed to index document", goerr.V("entry_id", doc.EntryID))
		}
	}

	if err := tx.Commit(); err != nil {
		return backendError(ctx, err, "failed to commit index transaction", goerr.V("count", len(docs)))
	}

	logging.From(ctx).Debug("indexed documents", "count", len(docs))
	return nil
}

// upsert replaces the document for doc.EntryID. vec0 has no ON CONFLICT clause, so the
// old rows are deleted before the new ones are inserted.
func upsert(ctx context.Context, tx *sql.Tx, doc *model.SearchDocument) error {
	if err := deleteByEntryID(ctx, tx, doc.EntryID); err != nil {
		return err
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO documents(entry_id, description, location, time, created_at) VALUES (?, ?, ?, ?, ?)`,
		doc.EntryID.String(), doc.Description, doc.Location, doc.Time, createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return goerr.Wrap(err, "failed to insert document")
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return goerr.Wrap(err, "failed to get document row id")
	}

	blob, err := sqlite_vec.SerializeFloat32(normalize(doc.Embedding))
	if err != nil {
		return goerr.Wrap(err, "failed to serialize embedding")
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO vec_documents(doc_id, embedding) VALUES (?, ?)`, rowID, blob); err != nil {
		return goerr.Wrap(err, "failed to insert embedding")
	}

	return nil
}

func deleteByEntryID(ctx context.Context, tx *sql.Tx, entryID model.EntryID) error {
	var rowID int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE entry_id = ?`, entryID.String()).Scan(&rowID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return goerr.Wrap(err, "failed to look up document")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM vec_documents WHERE doc_id = ?`, rowID); err != nil {
		return goerr.Wrap(err, "failed to delete embedding")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, rowID); err != nil {
		return goerr.Wrap(err, "failed to delete document")
	}
	return nil
}

// DeleteDocument removes the document of entryID. A missing document is not an error.
func (x *SQLite) DeleteDocument(ctx context.Context, entryID model.EntryID) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return backendError(ctx, err, "failed to begin index transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteByEntryID(ctx, tx, entryID); err != nil {
		return backendError(ctx, err, "failed to delete document", goerr.V("entry_id", entryID))
	}
	if err := tx.Commit(); err != nil {
		return backendError(ctx, err, "failed to commit index transaction", goerr.V("entry_id", entryID))
	}

	logging.From(ctx).Debug("deleted document", "entry_id", entryID)
	return nil
}

func (x *SQLite) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, `SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, backendError(ctx, err, "failed to count documents")
	}
	return n, nil
}

// GetAllDocuments returns documents ordered by EntryID without their embeddings.
// limit <= 0 means no limit.
func (x *SQLite) GetAllDocuments(ctx context.Context, limit int) ([]*model.SearchDocument, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := x.db.QueryContext(ctx,
		`SELECT entry_id, description, location, time, created_at FROM documents ORDER BY entry_id LIMIT ?`, limit)
	if err != nil {
		return nil, backendError(ctx, err, "failed to list documents")
	}
	defer rows.Close()

	docs := make([]*model.SearchDocument, 0)
	for rows.Next() {
		var (
			doc       model.SearchDocument
			entryID   string
			createdAt string
		)
		if err := rows.Scan(&entryID, &doc.Description, &doc.Location, &doc.Time, &createdAt); err != nil {
			return nil, backendError(ctx, err, "failed to scan document")
		}
		doc.EntryID = model.EntryID(entryID)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			doc.CreatedAt = t
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, backendError(ctx, err, "failed to list documents")
	}

	return docs, nil
}
