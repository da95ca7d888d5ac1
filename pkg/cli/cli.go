package cli

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

// Version is reported by the MCP server
var Version = "dev"

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	// .env is optional
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "omoide",
		Usage: "Personal memory store with retrieval-augmented recall",
		Commands: []*cli.Command{
			initCommand(),
			addCommand(),
			getCommand(),
			listCommand(),
			findCommand(),
			updateCommand(),
			deleteCommand(),
			askCommand(),
			searchCommand(),
			indexCommand(),
			exportCommand(),
			seedCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
