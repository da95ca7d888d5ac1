// Package index is the search index: a SQLite database holding the searchable
// projection of entries, with FTS5 for lexical search and sqlite-vec for KNN.
package index

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/utils/logging"
	_ "github.com/ncruces/go-sqlite3/driver"
)

// DefaultK is the number of hits returned when k <= 0
const DefaultK = 3

// SQLite is the search index. It is safe for concurrent use; the single connection
// serializes access.
type SQLite struct {
	db          *sql.DB
	path        string
	dimension   int
	busyTimeout time.Duration
}

type Option func(*SQLite)

// WithBusyTimeout makes writers wait for locks held by another process, such as
// `index rebuild` running next to `index watch`
func WithBusyTimeout(d time.Duration) Option {
	return func(x *SQLite) {
		x.busyTimeout = d
	}
}

// Open opens or creates the index at path. The dimension is recorded on first open and
// a later open with another dimension fails with model.ErrDimensionMismatch, since
// vectors of different lengths cannot share one KNN table.
func Open(ctx context.Context, path string, dimension int, opts ...Option) (*SQLite, error) {
	if dimension <= 0 {
		return nil, goerr.New("embedding dimension must be positive",
			goerr.V("dimension", dimension),
			goerr.T(model.ErrTagConfig))
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open search index", goerr.V("path", path), goerr.T(model.ErrTagConfig))
	}
	db.SetMaxOpenConns(1)

	idx := &SQLite{
		db:        db,
		path:      path,
		dimension: dimension,
	}
	for _, opt := range opts {
		opt(idx)
	}

	if err := idx.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.From(ctx).Debug("opened search index", "path", path, "dimension", dimension)
	return idx, nil
}

func (x *SQLite) migrate(ctx context.Context) error {
	if x.path != ":memory:" {
		if _, err := x.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return goerr.Wrap(err, "failed to set journal mode", goerr.V("path", x.path), goerr.T(model.ErrTagBackend))
		}
	}

	if x.busyTimeout > 0 {
		pragma := "PRAGMA busy_timeout=" + strconv.FormatInt(x.busyTimeout.Milliseconds(), 10)
		if _, err := x.db.ExecContext(ctx, pragma); err != nil {
			return goerr.Wrap(err, "failed to set busy timeout", goerr.V("path", x.path), goerr.T(model.ErrTagBackend))
		}
	}

	if _, err := x.db.ExecContext(ctx, schema); err != nil {
		return goerr.Wrap(err, "failed to create index schema", goerr.V("path", x.path), goerr.T(model.ErrTagBackend))
	}

	var stored string
	err := x.db.QueryRowContext(ctx, "SELECT value FROM index_meta WHERE key = ?", metaDimension).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		if _, err := x.db.ExecContext(ctx,
			"INSERT INTO index_meta(key, value) VALUES (?, ?), (?, ?)",
			metaDimension, strconv.Itoa(x.dimension), metaMetric, metricCosine); err != nil {
			return goerr.Wrap(err, "failed to record index dimension", goerr.T(model.ErrTagBackend))
		}

	case err != nil:
		return goerr.Wrap(err, "failed to read index dimension", goerr.T(model.ErrTagBackend))

	default:
		if stored != strconv.Itoa(x.dimension) {
			return goerr.Wrap(model.ErrDimensionMismatch, "index was created with another embedding dimension",
				goerr.V("path", x.path),
				goerr.V("stored", stored),
				goerr.V("requested", x.dimension))
		}
	}

	if _, err := x.db.ExecContext(ctx, vecSchema(x.dimension)); err != nil {
		return goerr.Wrap(err, "failed to create vector table", goerr.V("dimension", x.dimension), goerr.T(model.ErrTagBackend))
	}

	return nil
}

// Dimension is the embedding length the index was created with
func (x *SQLite) Dimension() int {
	return x.dimension
}

func (x *SQLite) Close() error {
	if err := x.db.Close(); err != nil {
		return goerr.Wrap(err, "failed to close search index", goerr.V("path", x.path))
	}
	return nil
}

// backendError logs a failed index call and tags it as a backend failure
func backendError(ctx context.Context, err error, msg string, opts ...goerr.Option) error {
	opts = append(opts, goerr.T(model.ErrTagBackend))
	wrapped := goerr.Wrap(err, msg, opts...)
	logging.From(ctx).Error(msg, "error", wrapped)
	return wrapped
}
