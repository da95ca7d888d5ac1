package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/repository"
	"github.com/m-mizutani/omoide/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func printEntry(w io.Writer, e *model.Entry) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Time, e.Location, e.Description)
}

func initCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, indexFlags(&cfg)...)

	return &cli.Command{
		Name:  "init",
		Usage: "Provision the entry store and the search index",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.CreateTable(ctx); err != nil {
				return goerr.Wrap(err, "failed to provision store")
			}

			idx, err := cfg.openIndex(ctx)
			if err != nil {
				return err
			}
			defer idx.Close()

			fmt.Fprintf(c.Root().Writer, "Store %s and index %s (dimension %d) are ready\n",
				repo.Collection(), cfg.indexPath, idx.Dimension())
			return nil
		},
	}
}

func addCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "add",
		Usage:     "Record what is happening now",
		ArgsUsage: "<description>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			description := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(description) == "" {
				return goerr.New("description is required")
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			uc := memory.New(repo, memory.WithLocator(cfg.newLocator()))
			entry, ok := uc.AddToDB(ctx, description)
			if !ok {
				return goerr.New("failed to add entry")
			}

			fmt.Fprintf(c.Root().Writer, "Entry created: %s\n", entry.ID)
			return nil
		},
	}
}

func getCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "get",
		Usage:     "Show one entry",
		ArgsUsage: "<entry-id>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			id := model.EntryID(c.Args().First())
			if id == "" {
				return goerr.New("entry id is required")
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			entry, err := repo.GetEntry(ctx, id)
			if err != nil {
				return err
			}
			if entry == nil {
				return goerr.New("entry not found", goerr.V("id", id), goerr.T(model.ErrTagNotFound))
			}

			printEntry(c.Root().Writer, entry)
			return nil
		},
	}
}

func listCommand() *cli.Command {
	var (
		cfg   config
		limit int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Usage:       "Maximum number of entries to list (0 for all)",
			Value:       100,
			Sources:     cli.EnvVars("OMOIDE_LIST_LIMIT"),
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List entries ordered by ID",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			entries, err := repo.ListAllEntries(ctx, int(limit))
			if err != nil {
				return goerr.Wrap(err, "failed to list entries")
			}

			for _, e := range entries {
				printEntry(c.Root().Writer, e)
			}
			return nil
		},
	}
}

func findCommand() *cli.Command {
	var (
		cfg      config
		location string
		start    string
		end      string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "location",
			Aliases:     []string{"l"},
			Usage:       "Exact location to match",
			Destination: &location,
		},
		&cli.StringFlag{
			Name:        "start",
			Usage:       "Earliest time (inclusive, RFC 3339)",
			Destination: &start,
		},
		&cli.StringFlag{
			Name:        "end",
			Usage:       "Latest time (inclusive, RFC 3339)",
			Destination: &end,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "find",
		Usage: "Find entries by exact location or time range",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			var filters []repository.Filter
			if location != "" {
				filters = append(filters, repository.ByLocation(location))
			}
			if start != "" || end != "" {
				if start == "" || end == "" {
					return goerr.New("both start and end are required for a time range")
				}
				filters = append(filters, repository.ByTimeRange(start, end))
			}
			if len(filters) == 0 {
				return goerr.New("location or time range is required")
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			entries, err := repo.ListEntries(ctx, filters...)
			if err != nil {
				return goerr.Wrap(err, "failed to find entries")
			}

			for _, e := range entries {
				printEntry(c.Root().Writer, e)
			}
			return nil
		},
	}
}

func updateCommand() *cli.Command {
	var (
		cfg         config
		newTime     string
		location    string
		description string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "time",
			Usage:       "New time (RFC 3339)",
			Destination: &newTime,
		},
		&cli.StringFlag{
			Name:        "location",
			Usage:       "New location",
			Destination: &location,
		},
		&cli.StringFlag{
			Name:        "description",
			Usage:       "New description",
			Destination: &description,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "update",
		Usage:     "Update fields of an entry",
		ArgsUsage: "<entry-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			id := model.EntryID(c.Args().First())
			if id == "" {
				return goerr.New("entry id is required")
			}

			var update model.EntryUpdate
			if c.IsSet("time") {
				update.Time = &newTime
			}
			if c.IsSet("location") {
				update.Location = &location
			}
			if c.IsSet("description") {
				update.Description = &description
			}
			if err := update.Validate(); err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.UpdateEntry(ctx, id, &update); err != nil {
				return goerr.Wrap(err, "failed to update entry")
			}

			fmt.Fprintf(c.Root().Writer, "Entry updated: %s\n", id)
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete an entry",
		ArgsUsage: "<entry-id>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			id := model.EntryID(c.Args().First())
			if id == "" {
				return goerr.New("entry id is required")
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.DeleteEntry(ctx, id); err != nil {
				return goerr.Wrap(err, "failed to delete entry")
			}

			fmt.Fprintf(c.Root().Writer, "Entry deleted: %s\n", id)
			return nil
		},
	}
}
