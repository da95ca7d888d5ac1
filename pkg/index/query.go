package index

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"unicode"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/model"
)

const (
	// rrfK dampens the weight of top ranks in reciprocal rank fusion
	rrfK = 60
	// hybridCandidates is how many hits per retriever are fused for each requested hit
	hybridCandidates = 4
)

// SearchByText ranks documents by BM25 over description and location. Any query term
// may match. A query without letters or digits returns no hits.
func (x *SQLite) SearchByText(ctx context.Context, query string, k int) ([]*model.Hit, error) {
	if k <= 0 {
		k = DefaultK
	}

	match := ftsQuery(query)
	if match == "" {
		return []*model.Hit{}, nil
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT d.entry_id, d.description, d.location, d.time, bm25(documents_fts) AS rank
		FROM documents_fts
		JOIN documents d ON d.id = documents_fts.rowid
		WHERE documents_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, match, k)
	if err != nil {
		return nil, backendError(ctx, err, "failed to search documents by text", goerr.V("query", query))
	}
	defer rows.Close()

	// bm25() is lower for better matches
	return scanHits(ctx, rows, func(rank float64) float64 { return -rank })
}

// SearchByVector returns the k nearest documents by cosine similarity
func (x *SQLite) SearchByVector(ctx context.Context, vector []float32, k int) ([]*model.Hit, error) {
	if k <= 0 {
		k = DefaultK
	}
	if len(vector) == 0 {
		return []*model.Hit{}, nil
	}
	if len(vector) != x.dimension {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "query vector has wrong length",
			goerr.V("expected", x.dimension),
			goerr.V("actual", len(vector)),
			goerr.T(model.ErrTagEmbedding))
	}

	blob, err := sqlite_vec.SerializeFloat32(normalize(vector))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to serialize query vector", goerr.T(model.ErrTagEmbedding))
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT d.entry_id, d.description, d.location, d.time, v.distance
		FROM vec_documents v
		JOIN documents d ON d.id = v.doc_id
		WHERE v.embedding MATCH ?
		  AND k = ?
		ORDER BY v.distance`, blob, k)
	if err != nil {
		return nil, backendError(ctx, err, "failed to search documents by vector")
	}
	defer rows.Close()

	return scanHits(ctx, rows, cosineFromL2)
}

// SearchHybrid fuses text and vector rankings with reciprocal rank fusion. Hit scores
// are the fused scores. An empty vector falls back to text ranking alone.
func (x *SQLite) SearchHybrid(ctx context.Context, query string, vector []float32, k int) ([]*model.Hit, error) {
	if k <= 0 {
		k = DefaultK
	}

	textHits, err := x.SearchByText(ctx, query, k*hybridCandidates)
	if err != nil {
		return nil, err
	}
	vectorHits, err := x.SearchByVector(ctx, vector, k*hybridCandidates)
	if err != nil {
		return nil, err
	}

	return fuse(k, textHits, vectorHits), nil
}

func scanHits(ctx context.Context, rows *sql.Rows, score func(float64) float64) ([]*model.Hit, error) {
	hits := make([]*model.Hit, 0)
	for rows.Next() {
		var (
			hit     model.Hit
			entryID string
			raw     float64
		)
		if err := rows.Scan(&entryID, &hit.Description, &hit.Location, &hit.Time, &raw); err != nil {
			return nil, backendError(ctx, err, "failed to scan hit")
		}
		hit.EntryID = model.EntryID(entryID)
		hit.Score = score(raw)
		hits = append(hits, &hit)
	}
	if err := rows.Err(); err != nil {
		return nil, backendError(ctx, err, "failed to read hits")
	}
	return hits, nil
}

// ftsQuery turns free text into an FTS5 expression that ORs its terms. Each term is
// quoted so FTS5 operators in user input are matched literally.
func ftsQuery(query string) string {
	terms := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(terms) == 0 {
		return ""
	}

	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

// fuse merges ranked lists by reciprocal rank fusion and keeps the top k
func fuse(k int, lists ...[]*model.Hit) []*model.Hit {
	scores := make(map[model.EntryID]float64)
	seen := make(map[model.EntryID]*model.Hit)
	var order []model.EntryID

	for _, list := range lists {
		for rank, hit := range list {
			if _, ok := seen[hit.EntryID]; !ok {
				seen[hit.EntryID] = hit
				order = append(order, hit.EntryID)
			}
			scores[hit.EntryID] += 1.0 / float64(rrfK+rank+1)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	if len(order) > k {
		order = order[:k]
	}

	hits := make([]*model.Hit, 0, len(order))
	for _, id := range order {
		h := *seen[id]
		h.Score = scores[id]
		hits = append(hits, &h)
	}
	return hits
}
