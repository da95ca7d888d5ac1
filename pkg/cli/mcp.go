package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/service/mcp"
	"github.com/m-mizutani/omoide/pkg/usecase/answer"
	"github.com/m-mizutani/omoide/pkg/usecase/memory"
	"github.com/m-mizutani/omoide/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var (
		cfg   config
		mode  string
		limit int64
		addr  string
	)

	flags := []cli.Flag{
		modeFlag(&mode),
		limitFlag(&limit),
		&cli.StringFlag{
			Name:        "http",
			Usage:       "Serve streamable HTTP on this address instead of stdio",
			Sources:     cli.EnvVars("OMOIDE_MCP_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, indexFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Run an MCP server with remember, ask and search_memories tools",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			// stdout carries the protocol, so logs go to stderr only
			ctx = cfg.withLogger(ctx)

			m := answer.Mode(mode)
			if err := m.Validate(); err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			idx, err := cfg.openIndex(ctx)
			if err != nil {
				return err
			}
			defer idx.Close()

			answerer, err := cfg.newAnswerer(ctx, idx, m, int(limit))
			if err != nil {
				return err
			}

			uc := memory.New(repo,
				memory.WithAsker(answerer),
				memory.WithLocator(cfg.newLocator()),
			)
			server := mcp.NewServer(uc, idx, Version)

			if addr == "" {
				return server.RunStdio(ctx)
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           server.HTTPHandler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			logging.From(ctx).Info("serving mcp", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return goerr.Wrap(err, "mcp http server failed", goerr.V("addr", addr))
			}
			return nil
		},
	}
}
