package memory

import (
	"context"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/feed"
	"github.com/m-mizutani/omoide/pkg/model"
)

// Export writes every stored entry as an INSERT change record, one JSON object per
// line. The output can be replayed into an index with feed.JSONL.
func (u *UseCase) Export(ctx context.Context, w io.Writer) (int, error) {
	entries, err := u.repo.ListAllEntries(ctx, 0)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list entries for export")
	}

	enc := feed.NewEncoder(w)
	for i, e := range entries {
		if err := enc.Encode(&model.EntryChange{Kind: model.ChangeInsert, Entry: e}); err != nil {
			return i, err
		}
	}

	return len(entries), nil
}
