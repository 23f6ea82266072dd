package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stillon/choremane/internal/api"
	"github.com/stillon/choremane/internal/appcache"
	"github.com/stillon/choremane/internal/backup"
	"github.com/stillon/choremane/internal/bucket"
	"github.com/stillon/choremane/internal/config"
	"github.com/stillon/choremane/internal/localstore"
	"github.com/stillon/choremane/internal/logging"
	"github.com/stillon/choremane/internal/model"
	"github.com/stillon/choremane/internal/notify"
	"github.com/stillon/choremane/internal/state"
	"github.com/stillon/choremane/internal/updates"
)

type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *localstore.Store
	session *state.SessionStore
	client  *api.Client
	logs    *state.LogStore
	chores  *state.ChoreStore
}

var cli struct {
	Run     runCmd     `cmd:"" help:"Run the sync daemon: periodic sync, reminders, and update watching."`
	Summary summaryCmd `cmd:"" help:"Print the chore buckets and household health score."`
	Export  exportCmd  `cmd:"" help:"Upload an encrypted dataset snapshot to S3 storage."`
	Restore restoreCmd `cmd:"" help:"Restore a snapshot through the import endpoint."`
	Status  statusCmd  `cmd:"" help:"Check backend health."`
	Version versionCmd `cmd:"" help:"Show backend deployment metadata."`
	Login   loginCmd   `cmd:"" help:"Store a token triple from the auth callback."`
	Logout  logoutCmd  `cmd:"" help:"Clear the stored session."`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	store, err := localstore.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open local store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	session := state.NewSessionStore(store, logger)
	client := api.New(api.Config{
		BaseURL:    cfg.APIBaseURL,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Timeout:    cfg.HTTPTimeout,
	}, session, logger)
	logs := state.NewLogStore(client, store, logger)
	chores := state.NewChoreStore(client, session, logs, logger)

	ktx := kong.Parse(&cli,
		kong.Name("choremane"),
		kong.Description("Household chore tracker client."),
		kong.UsageOnError(),
		kong.Bind(&app{
			cfg:     cfg,
			logger:  logger,
			store:   store,
			session: session,
			client:  client,
			logs:    logs,
			chores:  chores,
		}),
	)
	if err := ktx.Run(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

type runCmd struct{}

func (c *runCmd) Run(a *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.sync(ctx)

	cache := appcache.NewManager(a.cfg.CacheDir, a.client, a.store, a.logger,
		appcache.DevContext(a.cfg.APIBaseURL))
	events := cache.Subscribe()
	defer cache.Unsubscribe(events)
	go func() {
		for ev := range events {
			if ev.Type == appcache.EventUpdateAvailable {
				a.logger.Info("new version available, restart to pick it up",
					"version", ev.Version.VersionTag)
			}
		}
	}()

	watcher := updates.NewWatcher(a.client, cache, a.logger, a.cfg.VersionPollInterval)
	if _, err := watcher.Check(ctx); err != nil {
		a.logger.Warn("initial version check failed", "error", err)
	}
	watcher.Start(ctx)
	defer watcher.Stop()

	realtime := updates.NewRealtime(a.cfg.APIBaseURL, cache, a.logger)
	realtime.Start(ctx)
	defer realtime.Stop()

	svc := notify.NewService(a.cfg.VAPIDPublicKey, a.cfg.VAPIDPrivateKey, a.cfg.VAPIDSubscriber)
	scheduler := notify.NewScheduler(svc, a.store, a.chores, a.logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if a.cfg.MetricsAddr != "" {
		metricsSrv := &http.Server{
			Addr:         a.cfg.MetricsAddr,
			Handler:      promhttp.Handler(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			a.logger.Info("metrics listening", "addr", a.cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	a.logger.Info("daemon running",
		"backend", a.cfg.APIBaseURL,
		"sync_interval", a.cfg.SyncInterval,
	)

	ticker := time.NewTicker(a.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("shutting down")
			return nil
		case <-ticker.C:
			a.sync(ctx)
		}
	}
}

// sync refreshes the chore collections, counts, and activity feed. Failures
// are logged by the stores; the next tick retries.
func (a *app) sync(ctx context.Context) {
	_ = a.chores.FetchChores(ctx, 1)
	_ = a.chores.FetchCounts(ctx)
	_ = a.logs.Fetch(ctx)
}

type summaryCmd struct{}

func (c *summaryCmd) Run(a *app) error {
	ctx := context.Background()
	if err := a.chores.FetchChores(ctx, 1); err != nil {
		return fmt.Errorf("%s", a.chores.ErrorMessage())
	}

	now := time.Now()
	res := a.chores.Buckets(now)
	for _, name := range []bucket.Name{bucket.Overdue, bucket.Today, bucket.Tomorrow, bucket.ThisWeek, bucket.Upcoming} {
		for _, chore := range res.Buckets[name] {
			fmt.Printf("%-10s %s (due %s)\n", name, chore.Name, chore.DueDate)
		}
	}
	fmt.Printf("\n%d chores, household health %d/100\n", res.Counts.All, a.chores.HouseholdHealth(now))
	return nil
}

func (a *app) backupManager() *backup.Manager {
	return backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  a.cfg.S3Endpoint,
			Bucket:    a.cfg.S3Bucket,
			Region:    a.cfg.S3Region,
			AccessKey: a.cfg.S3AccessKey,
			SecretKey: a.cfg.S3SecretKey,
		},
		Passphrase: a.cfg.BackupPassphrase,
	}, a.client, a.store, a.logger)
}

type exportCmd struct{}

func (c *exportCmd) Run(a *app) error {
	m := a.backupManager()
	key, err := m.ExportNow(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("snapshot uploaded: %s\n", key)
	return m.Cleanup(context.Background(), a.cfg.BackupRetentionDays)
}

type restoreCmd struct {
	Key string `arg:"" optional:"" help:"Snapshot object key. Defaults to the most recent."`
}

func (c *restoreCmd) Run(a *app) error {
	result, err := a.backupManager().Restore(context.Background(), c.Key)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d chores, %d log entries\n", result.Message, result.ImportedChores, result.ImportedLogs)
	return nil
}

type statusCmd struct{}

func (c *statusCmd) Run(a *app) error {
	status, err := a.client.Status(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("backend status: %s\n", status)
	return nil
}

type versionCmd struct{}

func (c *versionCmd) Run(a *app) error {
	info, err := a.client.Version(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("version:  %s\nbackend:  %s\nfrontend: %s\n",
		info.VersionTag, info.BackendImage, info.FrontendImage)
	return nil
}

type loginCmd struct {
	AccessToken  string `required:"" help:"OAuth access token."`
	RefreshToken string `help:"OAuth refresh token."`
	IDToken      string `help:"OIDC ID token carrying the display profile."`
	ExpiresIn    int64  `default:"3600" help:"Access token lifetime in seconds."`
}

func (c *loginCmd) Run(a *app) error {
	a.session.Login(model.TokenResponse{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		IDToken:      c.IDToken,
		ExpiresIn:    c.ExpiresIn,
	})
	if name := a.session.DisplayName(); name != "" {
		fmt.Printf("logged in as %s\n", name)
	} else {
		fmt.Println("logged in")
	}
	return nil
}

type logoutCmd struct{}

func (c *logoutCmd) Run(a *app) error {
	a.session.Logout()
	fmt.Println("logged out")
	return nil
}
