package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/utils/logging"
)

const maxLineSize = 1024 * 1024

// JSONL reads change records, one JSON object per line:
//
//	{"event":"INSERT","entry":{"id":"entry_...","time":"...","location":"...","description":"..."}}
//
// Malformed lines are logged and skipped. Listen returns at end of input.
type JSONL struct {
	r         io.Reader
	batchSize int
}

type JSONLOption func(*JSONL)

func WithJSONLBatchSize(n int) JSONLOption {
	return func(f *JSONL) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

func NewJSONL(r io.Reader, opts ...JSONLOption) *JSONL {
	f := &JSONL{
		r:         r,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *JSONL) Listen(ctx context.Context, h Handler) error {
	scanner := bufio.NewScanner(f.r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var (
		seq    int64
		lineNo int
		batch  []*model.EntryChange
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := h(ctx, batch)
		batch = nil
		return err
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		lineNo++

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var change model.EntryChange
		if err := json.Unmarshal(line, &change); err != nil {
			logging.From(ctx).Warn("skipped malformed change record", "error", err, "line", lineNo)
			continue
		}
		if err := change.Validate(); err != nil {
			logging.From(ctx).Warn("skipped invalid change record", "error", err, "line", lineNo)
			continue
		}

		seq++
		change.Sequence = seq
		batch = append(batch, &change)

		if len(batch) >= f.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return goerr.Wrap(err, "failed to read change stream", goerr.V("line", lineNo))
	}

	return flush()
}

// Encoder writes change records in the format JSONL reads
type Encoder struct {
	enc *json.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

func (x *Encoder) Encode(change *model.EntryChange) error {
	if err := x.enc.Encode(change); err != nil {
		return goerr.Wrap(err, "failed to encode change record", goerr.V("id", change.Entry.ID))
	}
	return nil
}
