// Package answer turns a question into a retrieval-augmented answer.
package answer

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/interfaces"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/utils/logging"
)

//go:embed prompt/system.md
var systemPrompt string

//go:embed prompt/question.md
var questionPromptRaw string

var questionPromptTmpl = template.Must(template.New("question").Parse(questionPromptRaw))

// State is the progress of one question. Every question ends in StateAnswered or
// StateFailed.
type State string

const (
	StateReceived     State = "RECEIVED"
	StateSearched     State = "SEARCHED"
	StateContextBuilt State = "CONTEXT_BUILT"
	StateAnswered     State = "ANSWERED"
	StateFailed       State = "FAILED"
)

// Mode selects the retrieval used for context
type Mode string

const (
	ModeText   Mode = "text"
	ModeVector Mode = "vector"
	ModeHybrid Mode = "hybrid"
)

func (x Mode) Validate() error {
	switch x {
	case ModeText, ModeVector, ModeHybrid:
		return nil
	default:
		return goerr.New("invalid retrieval mode", goerr.V("mode", x), goerr.T(model.ErrTagConfig))
	}
}

// Result is the outcome of Ask. Answer is always set: the model's text when State is
// StateAnswered, otherwise an "Error ..." message.
type Result struct {
	Answer string
	Hits   []*model.Hit
	State  State
	// Context is the block sent to the model, empty if retrieval failed
	Context string
}

type Answerer struct {
	searcher interfaces.Searcher
	llm      interfaces.LLM
	embedder interfaces.Embedder
	mode     Mode
	k        int
}

type Option func(*Answerer)

// WithMode switches retrieval. ModeVector and ModeHybrid need WithEmbedder.
func WithMode(m Mode) Option {
	return func(x *Answerer) {
		x.mode = m
	}
}

func WithEmbedder(e interfaces.Embedder) Option {
	return func(x *Answerer) {
		x.embedder = e
	}
}

// WithK sets the number of hits used as context. k <= 0 uses the index default.
func WithK(k int) Option {
	return func(x *Answerer) {
		x.k = k
	}
}

func New(searcher interfaces.Searcher, llm interfaces.LLM, opts ...Option) (*Answerer, error) {
	x := &Answerer{
		searcher: searcher,
		llm:      llm,
		mode:     ModeText,
	}
	for _, opt := range opts {
		opt(x)
	}

	if err := x.mode.Validate(); err != nil {
		return nil, err
	}
	if x.mode != ModeText && x.embedder == nil {
		return nil, goerr.New("retrieval mode needs an embedder", goerr.V("mode", x.mode), goerr.T(model.ErrTagConfig))
	}

	return x, nil
}

// Ask answers question from retrieved memories. It never returns an error: failures of
// retrieval or generation become an "Error <step>: <cause>" answer.
func (x *Answerer) Ask(ctx context.Context, question string) *Result {
	logger := logging.From(ctx).With("mode", x.mode)
	result := &Result{State: StateReceived}

	fail := func(step string, err error) *Result {
		logger.Error("failed to answer question", "step", step, "error", err)
		result.State = StateFailed
		result.Answer = fmt.Sprintf("Error %s: %s", step, err.Error())
		return result
	}

	hits, step, err := x.search(ctx, question)
	if err != nil {
		return fail(step, err)
	}
	result.Hits = hits
	result.State = StateSearched
	logger.Debug("retrieved context", "hits", len(hits))

	result.Context = FormatContext(hits)
	var prompt bytes.Buffer
	if err := questionPromptTmpl.Execute(&prompt, map[string]string{
		"Context":  result.Context,
		"Question": question,
	}); err != nil {
		return fail("building context", goerr.Wrap(err, "failed to render prompt"))
	}
	result.State = StateContextBuilt

	answer, err := x.llm.Generate(ctx, systemPrompt, prompt.String())
	if err != nil {
		return fail("generating answer", err)
	}

	result.Answer = answer
	result.State = StateAnswered
	return result
}

func (x *Answerer) search(ctx context.Context, question string) ([]*model.Hit, string, error) {
	if x.mode == ModeText {
		hits, err := x.searcher.SearchByText(ctx, question, x.k)
		return hits, "searching memories", err
	}

	vector, err := x.embedder.Embed(ctx, question)
	if err != nil {
		return nil, "embedding question", err
	}

	var hits []*model.Hit
	if x.mode == ModeVector {
		hits, err = x.searcher.SearchByVector(ctx, vector, x.k)
	} else {
		hits, err = x.searcher.SearchHybrid(ctx, question, vector, x.k)
	}
	return hits, "searching memories", err
}
