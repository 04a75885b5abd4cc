package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	apihttp "github.com/shiguredo/hisui-sub000/internal/api/http"
	"github.com/shiguredo/hisui-sub000/internal/app"
	"github.com/shiguredo/hisui-sub000/internal/domain"
	"github.com/shiguredo/hisui-sub000/internal/layout"
	"github.com/shiguredo/hisui-sub000/internal/metrics"
	"github.com/shiguredo/hisui-sub000/internal/reader"
	"github.com/shiguredo/hisui-sub000/internal/scheduler"
	"github.com/shiguredo/hisui-sub000/internal/telemetry"
)

var errComposeArgs = errors.New("expected exactly one argument: root directory")

func composeCommand() *cli.Command {
	return &cli.Command{
		Name:      "compose",
		Usage:     "Composite a recording's sources into one output file per a layout",
		ArgsUsage: "ROOT_DIR",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "layout-file", Usage: "layout JSON path (default ROOT_DIR/layout.json)"},
			&cli.StringFlag{Name: "output-file", Usage: "output container path"},
			&cli.StringFlag{Name: "stats-file", Usage: "write run stats as JSON to this path"},
			&cli.BoolFlag{Name: "no-progress-bar", Usage: "suppress progress log lines"},
			&cli.IntFlag{Name: "max-cpu-cores", Usage: "cap concurrently-scheduled CPU-intensive processors"},
			&cli.BoolFlag{Name: "watch", Usage: "serve the monitoring/progress HTTP server for the run's duration"},
		},
		Action: runCompose,
	}
}

func runCompose(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("%w: got %d", errComposeArgs, cmd.NArg())
	}
	rootDir := cmd.Args().First()

	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(ctx, "hisui-sub000-compose")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	layoutFile := cmd.String("layout-file")
	if layoutFile == "" {
		layoutFile = filepath.Join(rootDir, "layout.json")
	}
	outputFile := cmd.String("output-file")
	if outputFile == "" {
		outputFile = cfg.OutputFile
	}
	statsFile := cmd.String("stats-file")
	if statsFile == "" {
		statsFile = cfg.StatsFile
	}
	maxCPUCores := int(cmd.Int("max-cpu-cores"))
	if maxCPUCores <= 0 {
		maxCPUCores = cfg.CPUCoreLimit
	}
	if maxCPUCores > 0 {
		runtime.GOMAXPROCS(maxCPUCores)
	}

	raw, err := layout.ParseFile(layoutFile)
	if err != nil {
		return fmt.Errorf("parsing layout: %w", err)
	}
	lay, err := raw.Build(rootDir, reader.Probe)
	if err != nil {
		return fmt.Errorf("resolving layout: %w", err)
	}
	metrics.SourcesResolvedTotal.Set(float64(len(lay.Sources)))
	metrics.TrimmedDurationSeconds.Set(lay.TrimSpans.TotalDuration().Seconds())

	var monitor *apihttp.Server
	if cmd.Bool("watch") && cfg.WatchAddr != "" {
		monitor = apihttp.NewServer(logger)
		srv := &http.Server{Addr: cfg.WatchAddr, Handler: monitor, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("monitor server error", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			monitor.Close()
		}()
		logger.Info("monitoring server started", slog.String("addr", cfg.WatchAddr))
	}

	processors, err := buildPipeline(lay, outputFile, logger)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	graph, err := scheduler.Build(processors, cfg.QueueCapacity)
	if err != nil {
		return fmt.Errorf("building schedule: %w", err)
	}

	noProgressBar := cmd.Bool("no-progress-bar")
	opts := scheduler.Options{
		CPUCoreLimit: maxCPUCores,
		Logger:       logger,
		OnProgress: func(update domain.ProgressUpdate) {
			if monitor != nil {
				monitor.BroadcastProgress(update)
			}
			if !noProgressBar {
				logger.Info("progress", slog.Duration("max_timestamp", update.MaxTimestamp), slog.Bool("done", update.Done))
			}
		},
	}

	runStart := time.Now()
	stats, err := scheduler.Run(ctx, graph, opts)
	metrics.CompositionDuration.Observe(time.Since(runStart).Seconds())
	if err != nil {
		outcome := "failure"
		if errors.Is(err, context.Canceled) {
			outcome = "cancelled"
		}
		metrics.CompositionsTotal.WithLabelValues(outcome).Inc()
		return fmt.Errorf("running schedule: %w", err)
	}
	metrics.CompositionsTotal.WithLabelValues("success").Inc()
	metrics.OutputDurationSeconds.Set(maxSourceStop(lay).Seconds())

	logger.Info("composition finished", slog.String("output", outputFile))

	if statsFile != "" {
		if err := writeStatsFile(statsFile, stats); err != nil {
			logger.Warn("writing stats file failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func writeStatsFile(path string, stats scheduler.RunStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
