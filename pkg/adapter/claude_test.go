package adapter_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/omoide/pkg/adapter"
	"github.com/m-mizutani/omoide/pkg/model"
)

func TestClaudeGenerate(t *testing.T) {
	apiKey := os.Getenv("TEST_ANTHROPIC_API_KEY")
	if apiKey == "" {
		t.Skip("TEST_ANTHROPIC_API_KEY is not set")
	}

	client, err := adapter.NewClaude(apiKey, adapter.WithClaudeMaxTokens(100))
	gt.NoError(t, err)

	answer, err := client.Generate(context.Background(),
		"Answer using only the given context.",
		"Context:\nAt 2024-01-01T10:00:00, in Paris, Visited the Louvre\n\nQuestion: Which museum did I visit?")
	gt.NoError(t, err)
	gt.S(t, answer).Contains("Louvre")
}

func TestNewClaudeRequiresKey(t *testing.T) {
	_, err := adapter.NewClaude("")
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, model.ErrTagConfig))
}
