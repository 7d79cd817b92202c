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
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"qaoa/internal/config"
	"qaoa/internal/storage"
	"qaoa/internal/telemetry"
	"qaoa/pkg/qaoa"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	return execute(ctx, &app{stdout: os.Stdout, stderr: os.Stderr}, args)
}

func execute(ctx context.Context, a *app, args []string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if cerr := a.teardown(ctx); err == nil {
		err = cerr
	}
	return err
}

// app carries the global flags and the state built from them before a
// subcommand runs.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath  string
	logLevel    string
	logFormat   string
	storeKind   string
	dbPath      string
	metricsAddr string
	layers      int
	jsonOut     bool

	cfg     config.Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	client  *qaoa.Client
	server  *http.Server
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "qaoactl",
		Short:         "Evaluate, sample and optimise parameterised QAOA circuits",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "run config file (YAML)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text|json")
	flags.StringVar(&a.storeKind, "store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	flags.StringVar(&a.dbPath, "db-path", "qaoa.db", "sqlite database path")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	flags.IntVar(&a.layers, "layers", 0, "override circuit.layers")
	flags.BoolVar(&a.jsonOut, "json", false, "emit JSON instead of tables")

	root.AddCommand(
		newEvaluateCmd(a, "value", "Print the objective value"),
		newEvaluateCmd(a, "gradient", "Print the objective gradient"),
		newEvaluateCmd(a, "hessian", "Print the Hessian and its eigenvalues"),
		newCheckCmd(a),
		newSampleCmd(a),
		newOptimizeCmd(a),
		newContinueCmd(a),
		newLandscapeCmd(a),
		newRunsCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") || cfg.Logging.Level == "" {
		cfg.Logging.Level = a.logLevel
	}
	if flags.Changed("log-format") || cfg.Logging.Format == "" {
		cfg.Logging.Format = a.logFormat
	}
	if flags.Changed("store") || cfg.Storage.Kind == "" {
		cfg.Storage.Kind = a.storeKind
	}
	if flags.Changed("db-path") || cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = a.dbPath
	}
	if flags.Changed("layers") {
		cfg.Circuit.Layers = a.layers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := newLogger(a.stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	a.logger = logger
	a.metrics = telemetry.New()

	client, err := qaoa.New(qaoa.Options{
		StoreKind: cfg.Storage.Kind,
		DBPath:    cfg.Storage.DBPath,
		Logger:    logger,
		Metrics:   a.metrics,
	})
	if err != nil {
		return err
	}
	if err := client.Init(cmd.Context()); err != nil {
		_ = client.Close()
		return err
	}
	a.client = client

	if a.metricsAddr != "" {
		a.server = &http.Server{
			Addr:              a.metricsAddr,
			Handler:           a.metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
		logger.Info("serving metrics", slog.String("addr", a.metricsAddr))
	}
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
	}
	if a.client != nil {
		err := a.client.Close()
		a.client = nil
		return err
	}
	return nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}
