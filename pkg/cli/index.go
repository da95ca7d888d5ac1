package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/feed"
	"github.com/m-mizutani/omoide/pkg/usecase/indexer"
	"github.com/m-mizutani/omoide/pkg/utils/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"
)

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Maintain the search index",
		Commands: []*cli.Command{
			indexWatchCommand(),
			indexReplayCommand(),
			indexRebuildCommand(),
			indexStatsCommand(),
		},
	}
}

func pipelineFlags(workers *int64, timeout *time.Duration) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "workers",
			Usage:       "Records embedded concurrently within a batch",
			Value:       indexer.DefaultWorkers,
			Sources:     cli.EnvVars("OMOIDE_INDEX_WORKERS"),
			Destination: workers,
		},
		&cli.DurationFlag{
			Name:        "record-timeout",
			Usage:       "Time limit for indexing one record (0 for none)",
			Sources:     cli.EnvVars("OMOIDE_RECORD_TIMEOUT"),
			Destination: timeout,
		},
	}
}

func printReport(w io.Writer, r *indexer.ReconcileReport) {
	fmt.Fprintf(w, "entries=%d documents=%d missing=%d stale=%d orphaned=%d indexed=%d deleted=%d dropped=%d failed=%d\n",
		r.Entries, r.Documents, r.Missing, r.Stale, r.Orphaned, r.Indexed, r.Deleted, r.Dropped, r.Failed)
}

// serveMetrics exposes reg on addr until ctx is done
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		logging.From(ctx).Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.From(ctx).Error("metrics server failed", "error", err)
		}
	}()
}

func indexWatchCommand() *cli.Command {
	var (
		cfg          config
		workers      int64
		timeout      time.Duration
		skipExisting bool
		metricsAddr  string
		schedule     string
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "skip-existing",
			Usage:       "Ignore entries present when the listener starts",
			Sources:     cli.EnvVars("OMOIDE_SKIP_EXISTING"),
			Destination: &skipExisting,
		},
		&cli.StringFlag{
			Name:        "metrics-addr",
			Usage:       "Address for the prometheus /metrics endpoint (disabled when empty)",
			Sources:     cli.EnvVars("OMOIDE_METRICS_ADDR"),
			Destination: &metricsAddr,
		},
		&cli.StringFlag{
			Name:        "reconcile-schedule",
			Usage:       "Cron schedule for reconciling the store into the index (disabled when empty)",
			Sources:     cli.EnvVars("OMOIDE_RECONCILE_SCHEDULE"),
			Destination: &schedule,
		},
	}
	flags = append(flags, pipelineFlags(&workers, &timeout)...)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, indexFlags(&cfg)...)

	return &cli.Command{
		Name:  "watch",
		Usage: "Index entries as the Firestore change feed delivers them",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

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

			opts := []indexer.Option{
				indexer.WithWorkers(int(workers)),
				indexer.WithRecordTimeout(timeout),
			}
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				opts = append(opts, indexer.WithMetrics(indexer.NewMetrics(reg)))
				serveMetrics(ctx, metricsAddr, reg)
			}

			ix, err := cfg.newIndexer(ctx, idx, opts...)
			if err != nil {
				return err
			}

			if schedule != "" {
				scheduler := cron.New()
				_, err := scheduler.AddFunc(schedule, func() {
					report, err := ix.Reconcile(ctx, repo, indexer.ReconcileOptions{Prune: true})
					if err != nil {
						logging.From(ctx).Error("scheduled reconcile failed", "error", err)
						return
					}
					logging.From(ctx).Info("scheduled reconcile done",
						"missing", report.Missing,
						"stale", report.Stale,
						"orphaned", report.Orphaned,
						"failed", report.Failed)
				})
				if err != nil {
					return goerr.Wrap(err, "invalid reconcile schedule", goerr.V("schedule", schedule))
				}
				scheduler.Start()
				defer scheduler.Stop()
			}

			var feedOpts []feed.FirestoreOption
			if skipExisting {
				feedOpts = append(feedOpts, feed.WithSkipExisting())
			}
			f := feed.NewFirestore(repo.Client(), repo.Collection(), feedOpts...)

			logging.From(ctx).Info("watching entries", "collection", repo.Collection(), "index", cfg.indexPath)
			if err := ix.Run(ctx, f); err != nil {
				return goerr.Wrap(err, "indexer stopped")
			}
			return nil
		},
	}
}

func indexReplayCommand() *cli.Command {
	var (
		cfg     config
		workers int64
		timeout time.Duration
		input   string
		bucket  string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "JSONL change stream; '-' reads stdin, an object key when --bucket is set",
			Value:       "-",
			Destination: &input,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket holding the change stream",
			Sources:     cli.EnvVars("OMOIDE_BUCKET"),
			Destination: &bucket,
		},
	}
	flags = append(flags, pipelineFlags(&workers, &timeout)...)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, indexFlags(&cfg)...)

	return &cli.Command{
		Name:  "replay",
		Usage: "Index a JSONL change stream from a file, stdin, or Cloud Storage",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			var r io.Reader
			switch {
			case bucket != "":
				storage, err := cfg.newStorage(ctx, bucket)
				if err != nil {
					return err
				}
				rc, err := storage.Get(ctx, input)
				if err != nil {
					return err
				}
				defer rc.Close()
				r = rc
			case input == "-":
				r = os.Stdin
			default:
				fd, err := os.Open(input)
				if err != nil {
					return goerr.Wrap(err, "failed to open change stream", goerr.V("path", input))
				}
				defer fd.Close()
				r = fd
			}

			idx, err := cfg.openIndex(ctx)
			if err != nil {
				return err
			}
			defer idx.Close()

			reg := prometheus.NewRegistry()
			metrics := indexer.NewMetrics(reg)
			ix, err := cfg.newIndexer(ctx, idx,
				indexer.WithWorkers(int(workers)),
				indexer.WithRecordTimeout(timeout),
				indexer.WithMetrics(metrics))
			if err != nil {
				return err
			}

			if err := ix.Run(ctx, feed.NewJSONL(r)); err != nil {
				return goerr.Wrap(err, "replay failed")
			}

			summary, err := indexer.Summary(reg)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "%s\n", summary)
			return nil
		},
	}
}

func indexRebuildCommand() *cli.Command {
	var (
		cfg     config
		workers int64
		timeout time.Duration
		force   bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "force",
			Usage:       "Reindex every entry, not only missing or stale ones",
			Destination: &force,
		},
	}
	flags = append(flags, pipelineFlags(&workers, &timeout)...)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, indexFlags(&cfg)...)

	return &cli.Command{
		Name:  "rebuild",
		Usage: "Replay all entries from the store into the index",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

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

			ix, err := cfg.newIndexer(ctx, idx,
				indexer.WithWorkers(int(workers)),
				indexer.WithRecordTimeout(timeout))
			if err != nil {
				return err
			}

			s := newSpinner("rebuilding index...")
			s.Start()
			report, err := ix.Reconcile(ctx, repo, indexer.ReconcileOptions{Force: force, Prune: true})
			s.Stop()
			if err != nil {
				return goerr.Wrap(err, "rebuild failed")
			}

			printReport(c.Root().Writer, report)
			return nil
		},
	}
}

func indexStatsCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "stats",
		Usage: "Show search index statistics",
		Flags: indexFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			idx, err := cfg.openIndex(ctx)
			if err != nil {
				return err
			}
			defer idx.Close()

			count, err := idx.CountDocuments(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "path=%s dimension=%d documents=%d\n", cfg.indexPath, idx.Dimension(), count)
			return nil
		},
	}
}
