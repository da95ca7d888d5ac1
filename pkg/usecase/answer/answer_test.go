package answer_test

import (
	"context"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/usecase/answer"
)

type mockSearcher struct {
	textFn   func(ctx context.Context, query string, k int) ([]*model.Hit, error)
	vectorFn func(ctx context.Context, vector []float32, k int) ([]*model.Hit, error)
	hybridFn func(ctx context.Context, query string, vector []float32, k int) ([]*model.Hit, error)
}

func (m *mockSearcher) SearchByText(ctx context.Context, query string, k int) ([]*model.Hit, error) {
	return m.textFn(ctx, query, k)
}

func (m *mockSearcher) SearchByVector(ctx context.Context, vector []float32, k int) ([]*model.Hit, error) {
	return m.vectorFn(ctx, vector, k)
}

func (m *mockSearcher) SearchHybrid(ctx context.Context, query string, vector []float32, k int) ([]*model.Hit, error) {
	return m.hybridFn(ctx, query, vector, k)
}

type mockLLM struct {
	generateFn func(ctx context.Context, instruction, prompt string) (string, error)
}

func (m *mockLLM) Generate(ctx context.Context, instruction, prompt string) (string, error) {
	return m.generateFn(ctx, instruction, prompt)
}

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.embedFn(ctx, text)
}

func (m *mockEmbedder) Dimension() int { return 2 }

var meetingHit = &model.Hit{
	EntryID:     "entry_1",
	Score:       1.5,
	Time:        "2025-01-15T10:30:00",
	Location:    "New York, NY",
	Description: "Meeting with client",
}

func textOnly(hits []*model.Hit, err error) *mockSearcher {
	return &mockSearcher{
		textFn: func(ctx context.Context, query string, k int) ([]*model.Hit, error) {
			return hits, err
		},
	}
}

func echoLLM() *mockLLM {
	return &mockLLM{
		generateFn: func(ctx context.Context, instruction, prompt string) (string, error) {
			return prompt, nil
		},
	}
}

func TestFormatContext(t *testing.T) {
	gt.Equal(t, answer.FormatContext([]*model.Hit{
		{Time: "T1", Location: "L1", Description: "D1"},
	}), "At T1, in L1, D1")

	gt.Equal(t, answer.FormatContext([]*model.Hit{
		{Time: "T1", Location: "L1", Description: "D1"},
		{Time: "T2", Location: "L2", Description: "D2"},
	}), "At T1, in L1, D1\nAt T2, in L2, D2")

	gt.Equal(t, answer.FormatContext(nil), answer.NoContextMarker)
	gt.Equal(t, answer.FormatContext([]*model.Hit{}), "No context available.")
}

func TestAskAnswersFromContext(t *testing.T) {
	ctx := context.Background()
	var gotInstruction, gotPrompt string
	llm := &mockLLM{
		generateFn: func(ctx context.Context, instruction, prompt string) (string, error) {
			gotInstruction, gotPrompt = instruction, prompt
			return "You met a client in New York.", nil
		},
	}

	a, err := answer.New(textOnly([]*model.Hit{meetingHit}, nil), llm)
	gt.NoError(t, err)

	result := a.Ask(ctx, "what happened at the client meeting")
	gt.Equal(t, result.State, answer.StateAnswered)
	gt.Equal(t, result.Answer, "You met a client in New York.")
	gt.A(t, result.Hits).Length(1)
	gt.Equal(t, result.Context, "At 2025-01-15T10:30:00, in New York, NY, Meeting with client")

	gt.S(t, gotInstruction).Contains("only the given context")
	gt.S(t, gotPrompt).Contains("At 2025-01-15T10:30:00, in New York, NY, Meeting with client")
	gt.S(t, gotPrompt).Contains("Question: what happened at the client meeting")
}

func TestAskWithoutHitsSendsMarker(t *testing.T) {
	a, err := answer.New(textOnly([]*model.Hit{}, nil), echoLLM())
	gt.NoError(t, err)

	result := a.Ask(context.Background(), "where are my keys")
	gt.Equal(t, result.State, answer.StateAnswered)
	gt.S(t, result.Answer).Contains(answer.NoContextMarker)
}

func TestAskLLMFailure(t *testing.T) {
	llm := &mockLLM{
		generateFn: func(ctx context.Context, instruction, prompt string) (string, error) {
			return "", goerr.New("rate limited", goerr.T(model.ErrTagGeneration))
		},
	}
	a, err := answer.New(textOnly([]*model.Hit{meetingHit}, nil), llm)
	gt.NoError(t, err)

	result := a.Ask(context.Background(), "x")
	gt.Equal(t, result.State, answer.StateFailed)
	gt.True(t, strings.HasPrefix(result.Answer, "Error"))
	gt.S(t, result.Answer).Contains("Error generating answer: rate limited")
	gt.A(t, result.Hits).Length(1)
}

func TestAskSearchFailure(t *testing.T) {
	called := false
	llm := &mockLLM{
		generateFn: func(ctx context.Context, instruction, prompt string) (string, error) {
			called = true
			return "", nil
		},
	}
	a, err := answer.New(textOnly(nil, goerr.New("index unavailable")), llm)
	gt.NoError(t, err)

	result := a.Ask(context.Background(), "x")
	gt.Equal(t, result.State, answer.StateFailed)
	gt.Equal(t, result.Answer, "Error searching memories: index unavailable")
	gt.False(t, called)
}

func TestAskVectorMode(t *testing.T) {
	var gotVector []float32
	searcher := &mockSearcher{
		vectorFn: func(ctx context.Context, vector []float32, k int) ([]*model.Hit, error) {
			gotVector = vector
			gt.Equal(t, k, 5)
			return []*model.Hit{meetingHit}, nil
		},
	}
	emb := &mockEmbedder{
		embedFn: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{0.6, 0.8}, nil
		},
	}

	a, err := answer.New(searcher, echoLLM(),
		answer.WithMode(answer.ModeVector),
		answer.WithEmbedder(emb),
		answer.WithK(5))
	gt.NoError(t, err)

	result := a.Ask(context.Background(), "client")
	gt.Equal(t, result.State, answer.StateAnswered)
	gt.A(t, gotVector).Length(2)
	gt.S(t, result.Answer).Contains("New York")
}

func TestAskHybridEmbeddingFailure(t *testing.T) {
	searcher := &mockSearcher{
		hybridFn: func(ctx context.Context, query string, vector []float32, k int) ([]*model.Hit, error) {
			t.Fatal("search must not run without a vector")
			return nil, nil
		},
	}
	emb := &mockEmbedder{
		embedFn: func(ctx context.Context, text string) ([]float32, error) {
			return nil, goerr.New("quota exceeded", goerr.T(model.ErrTagEmbedding))
		},
	}

	a, err := answer.New(searcher, echoLLM(), answer.WithMode(answer.ModeHybrid), answer.WithEmbedder(emb))
	gt.NoError(t, err)

	result := a.Ask(context.Background(), "client")
	gt.Equal(t, result.State, answer.StateFailed)
	gt.Equal(t, result.Answer, "Error embedding question: quota exceeded")
}

func TestNewValidatesMode(t *testing.T) {
	_, err := answer.New(textOnly(nil, nil), echoLLM(), answer.WithMode("fuzzy"))
	gt.Error(t, err)

	_, err = answer.New(textOnly(nil, nil), echoLLM(), answer.WithMode(answer.ModeHybrid))
	gt.Error(t, err)
}
