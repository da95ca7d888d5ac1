package adapter_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/omoide/pkg/adapter"
)

func setupGemini(t *testing.T, opts ...adapter.GeminiOption) *adapter.Gemini {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}

	location := os.Getenv("TEST_GEMINI_LOCATION")
	if location == "" {
		location = "us-central1"
	}

	client, err := adapter.NewGemini(context.Background(), projectID, location, opts...)
	gt.NoError(t, err)
	return client
}

func TestGeminiEmbed(t *testing.T) {
	client := setupGemini(t, adapter.WithDimension(256))

	vec, err := client.Embed(context.Background(), "Met with client about project")
	gt.NoError(t, err)
	gt.A(t, vec).Length(256)
	gt.Equal(t, client.Dimension(), 256)
}

func TestGeminiGenerate(t *testing.T) {
	client := setupGemini(t)

	answer, err := client.Generate(context.Background(),
		"Answer using only the given context.",
		"Context:\nAt 2024-01-01T10:00:00, in New York, Met with client about project\n\nQuestion: Where did I meet the client?")
	gt.NoError(t, err)
	gt.S(t, answer).Contains("New York")
}

func TestNewGeminiRequiresProject(t *testing.T) {
	_, err := adapter.NewGemini(context.Background(), "", "us-central1")
	gt.Error(t, err)
}
