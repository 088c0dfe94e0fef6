package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prasenjit/antbee/internal/api"
	"github.com/prasenjit/antbee/internal/audit"
	"github.com/prasenjit/antbee/internal/config"
	"github.com/prasenjit/antbee/internal/logging"
	"github.com/prasenjit/antbee/internal/metrics"
	"github.com/prasenjit/antbee/internal/proxy"
	"github.com/prasenjit/antbee/internal/stats"
	"github.com/prasenjit/antbee/internal/storage"
	"github.com/prasenjit/antbee/internal/tlsutil"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the AntBee server",
	Long: `Starts the AntBee mock server.

The server will:
  - Expose the Admin API at /_api/
  - Serve every other request from the configured mock endpoints
  - Record each mock request to the configured audit sinks

Configuration is loaded from config.yaml in the current directory,
or specify a custom config file with the --config flag.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "Override server port")
	serveCmd.Flags().Bool("tls", false, "Enable TLS (overrides config)")
	serveCmd.Flags().String("storage", "", "Override storage type (memory, file, sqlite, postgres)")
	serveCmd.Flags().String("log-level", "", "Override log level")

	bindFlag("server.port", "port")
	bindFlag("server.tls.enabled", "tls")
	bindFlag("storage.type", "storage")
	bindFlag("logging.level", "log-level")
}

func bindFlag(key, name string) {
	if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
		panic(err)
	}
}

// closer is released in reverse order on shutdown
type closer struct {
	name string
	fn   func() error
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].fn(); err != nil {
				logger.Warn("shutdown step failed", "step", closers[i].name, "error", err)
			}
		}
	}()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	closers = append(closers, closer{"storage", store.Close})

	var metricsCollector *metrics.Collector
	if cfg.Metrics.Enabled {
		metricsCollector = metrics.NewCollector(nil)
	}
	statsCollector := stats.NewCollector()

	sinks, memorySink, reader, err := openSinks(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	for _, s := range sinks {
		if c, ok := s.Sink.(io.Closer); ok && s.Name == config.SinkRedis {
			closers = append(closers, closer{"redis", c.Close})
		}
	}

	recorder := audit.NewRecorder(sinks, audit.RecorderOptions{
		WriteTimeout: cfg.Audit.WriteTimeout,
		Logger:       logger,
		Metrics:      metricsCollector,
		Observers:    []audit.Observer{statsCollector},
	})
	closers = append(closers, closer{"recorder", func() error { recorder.Close(); return nil }})

	retention := audit.NewRetention(sinks, cfg.Audit.Retention, cfg.Audit.PruneSchedule, logger)
	if err := retention.Start(ctx); err != nil {
		return err
	}
	closers = append(closers, closer{"retention", func() error { retention.Stop(); return nil }})

	engine := proxy.NewEngine(store, proxy.Options{
		PathPrefix:   cfg.Mock.PathPrefix,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Recorder:     recorder,
		Metrics:      metricsCollector,
		Logger:       logger,
	})

	routerOpts := api.RouterOptions{
		Logs:        reader,
		Stats:       statsCollector,
		Metrics:     metricsCollector,
		MetricsPath: cfg.Metrics.Path,
		MockPrefix:  cfg.Mock.PathPrefix,
		Logger:      logger,
	}
	if memorySink != nil {
		routerOpts.Stream = audit.NewStreamHandler(memorySink, logger)
	}
	router := api.NewRouter(store, engine, routerOpts)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	if cfg.Server.TLS.Enabled {
		certs := tlsutil.NewManager(cfg.Server.TLS, filepath.Join(dataDir(cfg), "certs"), logger)
		tlsConfig, err := certs.ServerConfig()
		if err != nil {
			return fmt.Errorf("failed to prepare TLS certificate: %w", err)
		}
		server.TLSConfig = tlsConfig

		certPath, _ := certs.Paths()
		logger.Info("TLS enabled", "certificate", certPath)
	}

	errCh := make(chan error, 1)
	go func() {
		scheme := "http"
		if server.TLSConfig != nil {
			scheme = "https"
		}
		logger.Info("starting AntBee server",
			"addr", server.Addr,
			"admin_api", fmt.Sprintf("%s://%s%s/", scheme, server.Addr, api.AdminPrefix),
			"storage", cfg.Storage.Type,
			"audit_sinks", cfg.Audit.Sinks,
		)

		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

// dataDir returns the directory holding on-disk state
func dataDir(cfg *config.Config) string {
	dir := cfg.Storage.Path
	if cfg.Storage.Type == config.StorageSQLite {
		dir = filepath.Dir(dir)
	}
	if dir == "" {
		dir = "."
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// openStorage opens the configuration store selected by storage.type
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.Storage.Type {
	case config.StorageFile:
		path, err := filepath.Abs(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve storage path: %w", err)
		}
		logger.Info("using file storage", "path", path)

		fs, err := storage.NewFileStorage(path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file storage: %w", err)
		}

		if cfg.Storage.Watch {
			watcher, err := storage.NewWatcher(fs, 0, logger)
			if err != nil {
				return nil, err
			}
			go func() {
				if err := watcher.Run(ctx); err != nil {
					logger.Error("storage watcher stopped", "error", err)
				}
			}()
		}
		return fs, nil

	case config.StorageSQLite:
		if dir := filepath.Dir(cfg.Storage.Path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		store, err := storage.NewSQLiteStorage(cfg.Storage.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite storage: %w", err)
		}
		return store, nil

	case config.StoragePostgres:
		store, err := storage.NewPostgresStorage(cfg.Storage.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres storage: %w", err)
		}
		return store, nil
	}

	logger.Info("using in-memory storage, configuration is lost on restart")
	return storage.NewMemoryStorage(), nil
}

// openSinks builds the audit sinks. The returned reader serves the admin
// log routes and prefers durable sinks over the memory ring.
func openSinks(ctx context.Context, cfg *config.Config, store storage.Storage, logger *slog.Logger) (audit.MultiSink, *audit.MemorySink, audit.Reader, error) {
	var (
		sinks      audit.MultiSink
		memorySink *audit.MemorySink
		memory     audit.Reader
		durable    audit.Reader
	)

	for _, name := range cfg.Audit.Sinks {
		switch name {
		case config.SinkMemory:
			memorySink = audit.NewMemorySink(cfg.Audit.MaxLogs)
			memory = memorySink
			sinks = append(sinks, audit.NamedSink{Name: name, Sink: memorySink})

		case config.SinkStore:
			sqlStore, ok := store.(*storage.SQLStorage)
			if !ok {
				return nil, nil, nil, fmt.Errorf("audit sink %q requires sqlite or postgres storage", name)
			}
			durable = sqlStore
			sinks = append(sinks, audit.NamedSink{Name: name, Sink: sqlStore})

		case config.SinkRedis:
			rdb, err := audit.DialRedis(ctx, cfg.Audit.Redis)
			if err != nil {
				return nil, nil, nil, err
			}
			redisSink := audit.NewRedisSink(rdb, cfg.Audit.Redis.Key)
			if durable == nil {
				durable = redisSink
			}
			sinks = append(sinks, audit.NamedSink{Name: name, Sink: redisSink})
			logger.Info("recording request logs to redis", "address", cfg.Audit.Redis.Address)
		}
	}

	if durable != nil {
		return sinks, memorySink, durable, nil
	}
	return sinks, memorySink, memory, nil
}
