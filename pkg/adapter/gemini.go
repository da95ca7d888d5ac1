package adapter

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/model"
	"google.golang.org/genai"
)

const (
	DefaultGenerativeModel = "gemini-2.5-flash"
	DefaultEmbeddingModel  = "gemini-embedding-001"
	DefaultDimension       = 768
	DefaultTemperature     = 0.3
	DefaultMaxTokens       = 500
)

// Gemini serves both as the embedding provider and the language model on Vertex AI
type Gemini struct {
	client          *genai.Client
	generativeModel string
	embeddingModel  string
	dimension       int
	temperature     float32
	maxTokens       int32
}

type GeminiOption func(*Gemini)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *Gemini) {
		g.generativeModel = model
	}
}

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *Gemini) {
		g.embeddingModel = model
	}
}

// WithDimension sets the output dimensionality requested from the embedding model
func WithDimension(dim int) GeminiOption {
	return func(g *Gemini) {
		g.dimension = dim
	}
}

func WithTemperature(t float32) GeminiOption {
	return func(g *Gemini) {
		g.temperature = t
	}
}

func WithMaxTokens(n int32) GeminiOption {
	return func(g *Gemini) {
		g.maxTokens = n
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*Gemini, error) {
	if projectID == "" {
		return nil, goerr.New("gemini project ID is required", goerr.T(model.ErrTagConfig))
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client",
			goerr.V("project_id", projectID),
			goerr.V("location", location),
			goerr.T(model.ErrTagConfig))
	}

	g := &Gemini{
		client:          client,
		generativeModel: DefaultGenerativeModel,
		embeddingModel:  DefaultEmbeddingModel,
		dimension:       DefaultDimension,
		temperature:     DefaultTemperature,
		maxTokens:       DefaultMaxTokens,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *Gemini) Dimension() int {
	return g.dimension
}

// Embed returns the embedding of text. An empty or wrongly sized response is an error,
// so a malformed vector never reaches the index.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := int32(g.dimension)
	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content",
			goerr.V("model", g.embeddingModel),
			goerr.T(model.ErrTagEmbedding))
	}

	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, goerr.New("embedding response is empty",
			goerr.V("model", g.embeddingModel),
			goerr.T(model.ErrTagEmbedding))
	}

	values := resp.Embeddings[0].Values
	if len(values) != g.dimension {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "embedding has unexpected length",
			goerr.V("model", g.embeddingModel),
			goerr.V("expected", g.dimension),
			goerr.V("actual", len(values)),
			goerr.T(model.ErrTagEmbedding))
	}

	return values, nil
}

// Generate runs a single-turn completion with instruction as the system prompt
func (g *Gemini) Generate(ctx context.Context, instruction, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, ""),
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   g.maxTokens,
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content",
			goerr.V("model", g.generativeModel),
			goerr.T(model.ErrTagGeneration))
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", goerr.New("no candidate in response",
			goerr.V("model", g.generativeModel),
			goerr.T(model.ErrTagGeneration))
	}

	var texts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}

	return strings.Join(texts, ""), nil
}
