package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/interfaces"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/usecase/answer"
	"github.com/m-mizutani/omoide/pkg/utils/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Memory is the capture and query side exposed as tools
type Memory interface {
	AddToDB(ctx context.Context, description string) (*model.Entry, bool)
	Ask(ctx context.Context, question string) *answer.Result
}

// Server exposes memory capture, question answering and search as MCP tools
type Server struct {
	memory   Memory
	searcher interfaces.Searcher
	server   *mcp.Server
}

type rememberParams struct {
	Description string `json:"description" jsonschema:"What happened, as a short description of the scene"`
}

type askParams struct {
	Question string `json:"question" jsonschema:"A question about past memories"`
}

type searchParams struct {
	Query string `json:"query" jsonschema:"Keywords to search memories for"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of memories to return (default 3)"`
}

// NewServer creates an MCP server. searcher may be nil to omit search_memories.
func NewServer(memory Memory, searcher interfaces.Searcher, version string) *Server {
	s := &Server{
		memory:   memory,
		searcher: searcher,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "omoide",
			Version: version,
		}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "remember",
		Description: "Store a new memory with the current time and location",
	}, s.remember)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from stored memories",
	}, s.ask)

	if searcher != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "search_memories",
			Description: "Full-text search over indexed memories, best match first",
		}, s.search)
	}

	return s
}

// RunStdio serves over stdin and stdout until ctx is cancelled or the client disconnects
func (s *Server) RunStdio(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp server stopped")
	}
	return nil
}

// HTTPHandler serves the streamable HTTP transport
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.server
	}, nil)
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: isError,
	}
}

func (s *Server) remember(ctx context.Context, req *mcp.CallToolRequest, params *rememberParams) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(params.Description) == "" {
		return nil, nil, goerr.New("description is required")
	}

	entry, ok := s.memory.AddToDB(ctx, params.Description)
	if !ok {
		return textResult("Failed to store the memory.", true), nil, nil
	}

	logging.From(ctx).Info("remembered via mcp", "id", entry.ID)
	return textResult(fmt.Sprintf("Stored memory %s at %s, in %s.", entry.ID, entry.Time, entry.Location), false), nil, nil
}

func (s *Server) ask(ctx context.Context, req *mcp.CallToolRequest, params *askParams) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(params.Question) == "" {
		return nil, nil, goerr.New("question is required")
	}

	result := s.memory.Ask(ctx, params.Question)
	return textResult(result.Answer, result.State == answer.StateFailed), nil, nil
}

func (s *Server) search(ctx context.Context, req *mcp.CallToolRequest, params *searchParams) (*mcp.CallToolResult, any, error) {
	hits, err := s.searcher.SearchByText(ctx, params.Query, params.Limit)
	if err != nil {
		return textResult("Error searching memories: "+err.Error(), true), nil, nil
	}
	if len(hits) == 0 {
		return textResult(fmt.Sprintf("No memories found for: %s", params.Query), false), nil, nil
	}

	lines := make([]string, 0, len(hits))
	for i, h := range hits {
		lines = append(lines, fmt.Sprintf("%d. %s (id=%s, score=%.3f)", i+1, h.Line(), h.EntryID, h.Score))
	}
	return textResult(fmt.Sprintf("Found %d memories:\n%s", len(hits), strings.Join(lines, "\n")), false), nil, nil
}
