package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"mrsync/pkg/auth"
	"mrsync/pkg/checkpoint"
	"mrsync/pkg/config"
	"mrsync/pkg/enrich"
	"mrsync/pkg/errors"
	"mrsync/pkg/fetcher"
	"mrsync/pkg/gitlab"
	"mrsync/pkg/logger"
	"mrsync/pkg/ratelimit"
	"mrsync/pkg/report"
	"mrsync/pkg/retry"
	"mrsync/pkg/storage"
	"mrsync/pkg/storage/postgres"
)

// app wires configuration, stores and clients for one command invocation
type app struct {
	cfg       *config.Config
	log       logger.Logger
	props     checkpoint.Store
	snapshots storage.SnapshotStore
	locker    checkpoint.Locker
	pool      *pgxpool.Pool
}

func newApp(ctx context.Context, flags map[string]interface{}) (*app, error) {
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if quiet && cfg.Logging.Level == "info" {
		cfg.Logging.Level = "warn"
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	a := &app{cfg: cfg, log: log}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := a.db(ctx)
		if err != nil {
			return nil, err
		}
		a.props = postgres.NewPropertyStore(pool)
		a.snapshots = postgres.NewSnapshotStore(pool)
		a.locker = postgres.NewAdvisoryLock(pool, "mrsync:"+cfg.GitLab.Group)
	default:
		props, err := checkpoint.NewFileStore(cfg.Storage.Directory, log)
		if err != nil {
			return nil, err
		}
		snapshots, err := storage.NewFileStore(cfg.Storage.Directory)
		if err != nil {
			return nil, err
		}
		a.props = props
		a.snapshots = snapshots
		a.locker = checkpoint.NewFileLock(cfg.Storage.Directory, cfg.Storage.LockTTL, log)
	}

	log.DebugWithFields("Configuration loaded", map[string]interface{}{
		"backend": cfg.Storage.Backend,
		"group":   cfg.GitLab.Group,
		"sink":    cfg.Reports.Sink,
	})
	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *app) db(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	pool, err := postgres.Connect(ctx, a.cfg.Storage.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	return pool, nil
}

// resolveToken falls back to the credential manager when no token is configured
func (a *app) resolveToken() error {
	if a.cfg.GitLab.Token == "" {
		if manager, err := auth.NewManager(); err == nil {
			if token, err := manager.Token(a.cfg.GitLab.URL); err == nil {
				a.cfg.GitLab.Token = token
			}
		} else {
			a.log.WithError(err).Debug("Credential manager unavailable")
		}
	}
	if err := a.cfg.RequireSource(); err != nil {
		return errors.Configf("%v; run 'mrsync auth login' or set MRSYNC_GITLAB_TOKEN", err)
	}
	return nil
}

func (a *app) source() (*gitlab.Client, error) {
	if err := a.resolveToken(); err != nil {
		return nil, err
	}
	return gitlab.NewClient(a.cfg.GitLab,
		gitlab.WithLimiter(ratelimit.PerMinute(a.cfg.RateLimit.RequestsPerMinute)),
		gitlab.WithRetry(retry.FromSettings(a.cfg.Retry, a.log)),
		gitlab.WithLogger(a.log),
	), nil
}

func (a *app) newFetcher(src fetcher.Source, opts ...fetcher.Option) (*fetcher.Fetcher, error) {
	names, err := enrich.LoadDictionary(a.cfg.Users)
	if err != nil {
		return nil, err
	}

	base := []fetcher.Option{
		fetcher.WithGroup(a.cfg.GitLab.Group),
		fetcher.WithPageSize(a.cfg.Sync.PageSize),
		fetcher.WithMaxItemsPerRun(a.cfg.Sync.MaxItemsPerRun),
		fetcher.WithLocker(a.locker),
		fetcher.WithSquads(func(ctx context.Context) (enrich.SquadMap, error) {
			return enrich.LoadSquads(a.cfg.Squads)
		}),
		fetcher.WithDictionary(names),
		fetcher.WithPruneSnapshots(a.cfg.Storage.PruneSnapshots),
		fetcher.WithLogger(a.log),
	}
	if a.cfg.Sync.OnComplete == config.OnCompleteReports {
		base = append(base, fetcher.WithCompletion(func(ctx context.Context) error {
			w, err := a.reportWriter(ctx)
			if err != nil {
				return err
			}
			return w.WriteAll(ctx)
		}))
	}
	return fetcher.New(src, a.props, a.snapshots, append(base, opts...)...), nil
}

func (a *app) reportSink(ctx context.Context) (report.Sink, error) {
	switch a.cfg.Reports.Sink {
	case config.SinkPostgres:
		pool, err := a.db(ctx)
		if err != nil {
			return nil, err
		}
		return report.NewPostgresSink(pool), nil
	default:
		return report.NewCSVSink(a.cfg.Reports.OutputDir, a.cfg.Reports.DateFormat)
	}
}

func (a *app) reportWriter(ctx context.Context) (*report.Writer, error) {
	sink, err := a.reportSink(ctx)
	if err != nil {
		return nil, err
	}
	return report.NewWriter(a.props, a.snapshots, sink, a.cfg.Reports, a.log), nil
}

// reportPaths lists the CSV files written by the csv sink
func (a *app) reportPaths() []string {
	if a.cfg.Reports.Sink == config.SinkPostgres {
		return nil
	}
	t := a.cfg.Reports.Tables
	var out []string
	for _, name := range []string{t.WIP, t.Changelog, t.Projects} {
		out = append(out, filepath.Join(a.cfg.Reports.OutputDir, name+".csv"))
	}
	return out
}

func exitCode(err error) int {
	switch {
	case errors.IsKind(err, errors.KindLocked):
		return 3
	case errors.IsKind(err, errors.KindConfig):
		return 2
	default:
		return 1
	}
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
