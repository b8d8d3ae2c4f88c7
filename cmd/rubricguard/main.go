// Package main provides the rubricguard binary entry point.
// RubricGuard is an assisted-grading workspace: graders score submissions
// against a rubric while an AI judgment service validates, asynchronously,
// whether each written justification is supported by the submission text.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	// Register judgment providers via init()
	_ "github.com/rubricguard/rubricguard/judge/providers"

	"github.com/spf13/cobra"

	"github.com/rubricguard/rubricguard/analytics"
	"github.com/rubricguard/rubricguard/api"
	"github.com/rubricguard/rubricguard/catalog"
	"github.com/rubricguard/rubricguard/config"
	"github.com/rubricguard/rubricguard/dispatch"
	"github.com/rubricguard/rubricguard/judge"
	"github.com/rubricguard/rubricguard/workspace"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "rubricguard"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath  string
		catalogPath string
		listenAddr  string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "rubricguard",
		Short: "Assisted-grading workspace with AI justification validation",
		Long: `RubricGuard serves a grading workspace over HTTP.

A grader scores student submissions against a fixed rubric and writes a
justification per criterion. Each edit is debounced and sent to an AI
judgment service, which reports whether the justification is textually
supported by the submission. Live consistency alerts and session analytics
flag outlier scores and high-risk decisions as grading proceeds.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, catalogPath, listenAddr, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Catalog file path (YAML, default: built-in seed catalog)")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	cmd.AddCommand(catalogCmd())

	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Catalog utilities",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Run catalog integrity checks against a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.LoadFromFile(args[0])
			if err != nil {
				return err
			}
			assignments := cat.Assignments()
			fmt.Printf("%s: ok (%d assignments", args[0], len(assignments))
			for _, a := range assignments {
				fmt.Printf("; %s: %d criteria, %d submissions",
					a.ID, len(cat.CriteriaFor(a.ID)), len(cat.SubmissionsFor(a.ID)))
			}
			fmt.Println(")")
			return nil
		},
	})

	return cmd
}

func run(configPath, catalogPath, listenAddr, logLevel string) error {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load configuration: defaults, then layered files, then an explicit
	// config file, then flags.
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
		if err != nil {
			return err
		}
	} else {
		cfg, err = config.NewLoader(logger).Load()
		if err != nil {
			return err
		}
	}
	if catalogPath != "" {
		cfg.Catalog.Path = catalogPath
	}
	if listenAddr != "" {
		cfg.HTTP.Addr = listenAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Catalog: file-backed (optionally hot-reloaded) or the built-in seed.
	var source api.Source
	if cfg.Catalog.Path != "" {
		cat, err := catalog.LoadFromFile(cfg.Catalog.Path)
		if err != nil {
			return err
		}
		if cfg.Catalog.Watch {
			watcher, err := catalog.NewWatcher(catalog.WatcherConfig{
				Path:   cfg.Catalog.Path,
				Logger: logger,
			}, cat)
			if err != nil {
				return fmt.Errorf("catalog watcher: %w", err)
			}
			if err := watcher.Start(ctx); err != nil {
				return fmt.Errorf("catalog watcher: %w", err)
			}
			defer watcher.Stop()
			source = watcher
		} else {
			source = api.StaticSource{Catalog: cat}
		}
	} else {
		logger.Info("No catalog file configured, using built-in seed catalog")
		source = api.StaticSource{Catalog: catalog.Seed()}
	}

	judgeSvc := buildJudge(cfg, logger)

	wsConfig := workspace.Config{
		Dispatch: dispatch.Config{
			DebounceWindow:       cfg.Validation.DebounceWindow,
			MinExplanationLength: cfg.Validation.MinExplanationLength,
		},
		Risk:   analytics.RiskPolicy{PartialDeviation: cfg.Validation.PartialDeviation},
		Logger: logger,
	}

	server := api.NewServer(source, judgeSvc, wsConfig, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: server.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			"addr", cfg.HTTP.Addr,
			"judge_provider", cfg.Judge.Provider)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildJudge constructs the judgment service from config. The stub keeps
// the whole pipeline working in environments without live model access.
func buildJudge(cfg *config.Config, logger *slog.Logger) judge.Interface {
	if cfg.Judge.Provider == "stub" {
		logger.Info("Using deterministic judgment stub")
		return &judge.Stub{Latency: 800 * time.Millisecond}
	}

	opts := []judge.ClientOption{
		judge.WithLogger(logger),
		judge.WithTemperature(cfg.Judge.Temperature),
	}
	if cfg.Judge.Timeout > 0 {
		opts = append(opts, judge.WithHTTPClient(&http.Client{Timeout: cfg.Judge.Timeout}))
	}
	return judge.NewClient(cfg.Judge.Provider, cfg.Judge.Endpoint, cfg.Judge.Model, opts...)
}
