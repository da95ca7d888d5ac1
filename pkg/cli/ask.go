package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/usecase/answer"
	"github.com/urfave/cli/v3"
)

func modeFlag(mode *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "mode",
		Aliases:     []string{"m"},
		Usage:       "Retrieval mode (text, vector, hybrid)",
		Value:       string(answer.ModeText),
		Sources:     cli.EnvVars("OMOIDE_SEARCH_MODE"),
		Destination: mode,
	}
}

func limitFlag(limit *int64) cli.Flag {
	return &cli.IntFlag{
		Name:        "limit",
		Aliases:     []string{"k"},
		Usage:       "Number of memories to retrieve",
		Value:       3,
		Sources:     cli.EnvVars("OMOIDE_SEARCH_LIMIT"),
		Destination: limit,
	}
}

func newSpinner(suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + suffix
	return s
}

func askCommand() *cli.Command {
	var (
		cfg   config
		mode  string
		limit int64
	)

	flags := []cli.Flag{
		modeFlag(&mode),
		limitFlag(&limit),
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, indexFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer questions from memories; interactive when no question is given",
		ArgsUsage: "[question]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			m := answer.Mode(mode)
			if err := m.Validate(); err != nil {
				return err
			}

			idx, err := cfg.openIndex(ctx)
			if err != nil {
				return err
			}
			defer idx.Close()

			answerer, err := cfg.newAnswerer(ctx, idx, m, int(limit))
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if c.Args().Len() > 0 {
				askOnce(ctx, w, answerer, strings.Join(c.Args().Slice(), " "))
				return nil
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				HistoryFile:     filepath.Join(os.TempDir(), ".omoide_history"),
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return goerr.Wrap(err, "failed to start readline")
			}
			defer rl.Close()

			fmt.Fprintf(w, "Ask about your memories. Type 'exit' to quit.\n")
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						break
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				question := strings.TrimSpace(line)
				if question == "exit" {
					break
				}
				if question == "" {
					continue
				}

				askOnce(ctx, w, answerer, question)
			}

			fmt.Fprintf(w, "\nBye\n")
			return nil
		},
	}
}

func askOnce(ctx context.Context, w io.Writer, answerer *answer.Answerer, question string) {
	s := newSpinner("recalling...")
	s.Start()
	result := answerer.Ask(ctx, question)
	s.Stop()

	fmt.Fprintf(w, "%s\n", result.Answer)
}

func searchCommand() *cli.Command {
	var (
		cfg   config
		mode  string
		limit int64
	)

	flags := []cli.Flag{
		modeFlag(&mode),
		limitFlag(&limit),
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, indexFlags(&cfg)...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Search memories and print ranked hits",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return goerr.New("query is required")
			}
			m := answer.Mode(mode)
			if err := m.Validate(); err != nil {
				return err
			}

			idx, err := cfg.openIndex(ctx)
			if err != nil {
				return err
			}
			defer idx.Close()

			var vector []float32
			if m != answer.ModeText {
				embedder, err := cfg.newEmbedder(ctx)
				if err != nil {
					return err
				}
				if vector, err = embedder.Embed(ctx, query); err != nil {
					return goerr.Wrap(err, "failed to embed query")
				}
			}

			var hits []*model.Hit
			switch m {
			case answer.ModeText:
				hits, err = idx.SearchByText(ctx, query, int(limit))
			case answer.ModeVector:
				hits, err = idx.SearchByVector(ctx, vector, int(limit))
			case answer.ModeHybrid:
				hits, err = idx.SearchHybrid(ctx, query, vector, int(limit))
			}
			if err != nil {
				return goerr.Wrap(err, "failed to search", goerr.V("mode", m))
			}

			for i, h := range hits {
				fmt.Fprintf(c.Root().Writer, "%d\t%.4f\t%s\t%s\n", i+1, h.Score, h.EntryID, h.Line())
			}
			return nil
		},
	}
}
