package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/usecase/memory"
	"github.com/m-mizutani/omoide/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func exportCommand() *cli.Command {
	var (
		cfg    config
		bucket string
		object string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket to write to; stdout when empty",
			Sources:     cli.EnvVars("OMOIDE_BUCKET"),
			Destination: &bucket,
		},
		&cli.StringFlag{
			Name:        "object",
			Usage:       "Object key in the bucket (default exports/<timestamp>.jsonl)",
			Destination: &object,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "export",
		Usage: "Write all entries as a JSONL change stream",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()
			uc := memory.New(repo)

			if bucket == "" {
				_, err := uc.Export(ctx, c.Root().Writer)
				return err
			}

			if object == "" {
				object = fmt.Sprintf("exports/%s.jsonl", time.Now().UTC().Format("20060102T150405Z"))
			}

			storage, err := cfg.newStorage(ctx, bucket)
			if err != nil {
				return err
			}
			w, err := storage.Put(ctx, object)
			if err != nil {
				return err
			}

			n, err := uc.Export(ctx, w)
			if err != nil {
				_ = w.Close()
				return err
			}
			if err := w.Close(); err != nil {
				return goerr.Wrap(err, "failed to commit export", goerr.V("bucket", bucket), goerr.V("object", object))
			}

			logging.From(ctx).Info("exported entries", "count", n, "bucket", bucket, "object", object)
			fmt.Fprintf(c.Root().Writer, "Exported %d entries to gs://%s/%s\n", n, bucket, object)
			return nil
		},
	}
}

func seedCommand() *cli.Command {
	var (
		cfg   config
		input string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "YAML seed file; '-' reads stdin",
			Required:    true,
			Destination: &input,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "seed",
		Usage: "Load entries from a YAML seed file into the store",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			var r io.Reader = os.Stdin
			if input != "-" {
				fd, err := os.Open(input)
				if err != nil {
					return goerr.Wrap(err, "failed to open seed file", goerr.V("path", input))
				}
				defer fd.Close()
				r = fd
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			n, err := memory.New(repo).Seed(ctx, r)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Seeded %d entries\n", n)
			return nil
		},
	}
}
