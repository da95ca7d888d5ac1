package index

import "fmt"

const schema = `
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	entry_id    TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL,
	location    TEXT NOT NULL DEFAULT '',
	time        TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
	description,
	location,
	content='documents',
	content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
	INSERT INTO documents_fts(rowid, description, location)
	VALUES (new.id, new.description, new.location);
END;

CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
	INSERT INTO documents_fts(documents_fts, rowid, description, location)
	VALUES ('delete', old.id, old.description, old.location);
END;
`

// vec0 takes the dimension as part of the column type, so it cannot be a bound parameter
func vecSchema(dimension int) string {
	return fmt.Sprintf(`
CREATE VIRTUAL TABLE IF NOT EXISTS vec_documents USING vec0(
	doc_id    INTEGER PRIMARY KEY,
	embedding float[%d]
);`, dimension)
}

const (
	metaDimension = "dimension"
	metaMetric    = "metric"
	metricCosine  = "cosine"
)
