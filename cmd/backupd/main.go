package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/pgbackup/internal/api"
	mw "github.com/edvin/pgbackup/internal/api/middleware"
	"github.com/edvin/pgbackup/internal/backup"
	"github.com/edvin/pgbackup/internal/capacity"
	"github.com/edvin/pgbackup/internal/config"
	"github.com/edvin/pgbackup/internal/crypto"
	"github.com/edvin/pgbackup/internal/db"
	"github.com/edvin/pgbackup/internal/logging"
	"github.com/edvin/pgbackup/internal/metrics"
	"github.com/edvin/pgbackup/internal/programs"
	"github.com/edvin/pgbackup/internal/scheduler"
	"github.com/edvin/pgbackup/internal/storage"
	"github.com/edvin/pgbackup/internal/store"
	"github.com/edvin/pgbackup/internal/targetdb"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "create-api-key":
			createAPIKey(os.Args[2:])
			return
		case "generate-secrets-key":
			key, err := crypto.GenerateKey()
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(base64.StdEncoding.EncodeToString(key))
			return
		}
	}

	migrateFlag := flag.Bool("migrate", true, "Run state database migrations before starting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate("backupd"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *migrateFlag); err != nil {
		logger.Fatal().Err(err).Msg("backupd failed")
	}
	logger.Info().Msg("backupd stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, migrate bool) error {
	pool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to state database: %w", err)
	}
	defer pool.Close()

	if migrate {
		version, err := db.Migrate(ctx, cfg.CoreDatabaseURL, logger)
		if err != nil {
			return err
		}
		logger.Info().Int64("schema_version", version).Msg("state database migrated")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterPgxPoolMetrics(reg, pool)

	sealer, err := newSealer(cfg.SecretsKey)
	if err != nil {
		return err
	}
	if sealer == nil {
		logger.Warn().Msg("SECRETS_KEY not set, connection passwords are stored unencrypted")
	}

	jobs := store.NewJobs(pool)
	conns := store.NewConnections(pool, sealer)
	creds := store.NewCredentials(pool, sealer)
	policies := store.NewPolicies(pool)
	keys := store.NewAPIKeys(pool)
	auditLogs := store.NewAudit(pool)
	audit := mw.NewAuditLogger(auditLogs, logging.Component(logger, "audit"))

	local, err := storage.NewLocal(cfg.BackupRootDir)
	if err != nil {
		return fmt.Errorf("open local storage: %w", err)
	}
	admin := targetdb.NewAdmin(cfg.CertDir)

	manager := backup.NewManager(backup.Deps{
		Jobs:        jobs,
		Connections: conns,
		Storage:     storage.NewResolver(local, creds, cfg.S3Endpoint),
		Target:      admin,
		Programs:    programs.NewDetector(cfg.PGBinDir, dataDirOf(conns, admin)),
		Capacity:    capacity.NewChecker(local.Dir(), cfg.MinFreeBytes),
		Metrics:     metrics.NewJobs(reg),
		Logger:      logger,
	}, backup.SettingsFrom(cfg))
	if err := manager.Recover(ctx); err != nil {
		return err
	}

	tlsConfig, err := cfg.ServerTLS()
	if err != nil {
		return fmt.Errorf("configure API TLS: %w", err)
	}
	apiServer := &http.Server{
		Addr: cfg.HTTPListenAddr,
		Handler: api.NewServer(logger, api.Deps{
			Backups:     manager,
			Policies:    policies,
			Connections: conns,
			Credentials: creds,
			Keys:        keys,
			Audit:       audit,
			AuditLogs:   auditLogs,
			Ready:       pool.Ping,
			Registerer:  reg,
			Gatherer:    reg,

			OriginPatterns: cfg.WSOriginPatterns,
		}),
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	metricsServer := metrics.NewServer(cfg.MetricsListenAddr, reg, pool.Ping)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Bool("tls", tlsConfig != nil).Msg("starting API server")
		var err error
		if tlsConfig != nil {
			err = apiServer.ListenAndServeTLS("", "")
		} else {
			err = apiServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("starting metrics server")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return manager.Run(gctx) })
	if cfg.SchedulerEnabled {
		sched := scheduler.New(policies, jobs, manager, cfg.SchedulerInterval, logger, reg)
		g.Go(func() error { return sched.Run(gctx) })
	} else {
		logger.Info().Msg("automatic backups disabled")
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = apiServer.Shutdown(shutdownCtx)
		audit.Close()
		_ = metricsServer.Shutdown(shutdownCtx)
		return manager.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// dataDirOf asks the first registered connection's server for its data
// directory; the program detector only needs it when the tools are not on
// the search path.
func dataDirOf(conns *store.Connections, admin *targetdb.Admin) programs.DataDirFunc {
	return func(ctx context.Context) (string, error) {
		list, err := conns.List(ctx)
		if err != nil {
			return "", err
		}
		if len(list) == 0 {
			return "", errors.New("no connections registered")
		}
		return admin.DataDirectory(ctx, list[0])
	}
}

func createAPIKey(args []string) {
	fs := flag.NewFlagSet("create-api-key", flag.ExitOnError)
	name := fs.String("name", "", "Name for the API key (required)")
	scopes := fs.String("scopes", "*", "Comma separated scopes")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "error: --name is required")
		fmt.Fprintln(os.Stderr, "usage: backupd create-api-key --name <name> [--scopes backups:admin]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate("migrate"); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	key, rawKey, err := store.NewAPIKeys(pool).Create(ctx, *name, strings.Split(*scopes, ","))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to create API key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("API key created.\n\n")
	fmt.Printf("  Name:   %s\n", key.Name)
	fmt.Printf("  ID:     %s\n", key.ID)
	fmt.Printf("  Scopes: %s\n", strings.Join(key.Scopes, ", "))
	fmt.Printf("  Key:    %s\n\n", rawKey)
	fmt.Printf("Save this key, it will not be shown again.\n")
}

func newSealer(key string) (*crypto.Sealer, error) {
	if key == "" {
		return nil, nil
	}
	raw, err := crypto.ParseKey(key)
	if err != nil {
		return nil, err
	}
	return crypto.NewSealer(raw)
}
