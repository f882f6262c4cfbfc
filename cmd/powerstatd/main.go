package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/powerstatd/internal/aggregator"
	"codeberg.org/mutker/powerstatd/internal/config"
	"codeberg.org/mutker/powerstatd/internal/errors"
	"codeberg.org/mutker/powerstatd/internal/logger"
	"codeberg.org/mutker/powerstatd/internal/metrics"
	"codeberg.org/mutker/powerstatd/internal/pid"
	"codeberg.org/mutker/powerstatd/internal/sysfs"
	"codeberg.org/mutker/powerstatd/internal/telemetry"
	"github.com/spf13/pflag"
)

// sinkTimeout bounds a single report write to either sink.
const sinkTimeout = 10 * time.Second

type sinks struct {
	recorder metrics.ReportRecorder
	exporter telemetry.Exporter
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	if level, ok := logger.ParseLevel(cfg.LogLevel); ok && !cfg.Debug && !cfg.Verbose {
		logger.SetLogLevel(level)
	}
	logger.Debug().Msg("Config loaded")

	pidFile := pid.New(cfg.PIDFile)
	if err := pidFile.Write(); err != nil {
		logger.Fatal().Err(err).Str("path", pidFile.Path()).Msg("failed to write pid file")
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			logger.Error().Err(err).Msg("failed to remove pid file")
		}
	}()

	out, err := openSinks(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open report sinks")
		return
	}
	defer out.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	agg := aggregator.New(ctx, sysfs.NewFS(cfg.SysfsRoot), aggregatorOptions(cfg)...)
	defer func() {
		if err := agg.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to stop aggregator")
		}
	}()

	if err := loop(ctx, cfg, agg, out); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}
	logger.Info().Msg("Exiting...")
}

func aggregatorOptions(cfg *config.Config) []aggregator.Option {
	opts := []aggregator.Option{
		aggregator.WithDiskPollInterval(cfg.DiskPollDuration()),
	}

	if len(cfg.CPUs) > 0 {
		opts = append(opts, aggregator.WithCPUs(cfg.CPUs))
	}
	if cfg.Arch != "" {
		opts = append(opts, aggregator.WithArch(cfg.Arch))
	}
	if cfg.NoDisk {
		opts = append(opts, aggregator.WithoutDisk())
	} else if cfg.DiskDevice != "" {
		opts = append(opts, aggregator.WithDiskDevice(cfg.DiskDevice))
	}

	return opts
}

func openSinks(cfg *config.Config) (*sinks, error) {
	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.Metrics
	metricsCfg.DBPath = cfg.MetricsDB

	recorder, err := metrics.NewService(metricsCfg)
	if err != nil {
		return nil, err
	}

	textfileCfg := telemetry.DefaultConfig()
	textfileCfg.Enabled = cfg.Textfile != ""
	if textfileCfg.Enabled {
		textfileCfg.Path = cfg.Textfile
	}

	exporter, err := telemetry.NewExporter(textfileCfg)
	if err != nil {
		_ = recorder.Close()
		return nil, err
	}

	if cfg.Metrics {
		logger.Info().Str("session", recorder.Session()).Str("db", cfg.MetricsDB).Msg("Recording reports")
	}

	return &sinks{recorder: recorder, exporter: exporter}, nil
}

func (s *sinks) write(ctx context.Context, report *aggregator.Report) {
	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	if err := s.recorder.Record(ctx, report); err != nil {
		logger.Warn().Err(err).Msg("failed to record report")
	}
	if err := s.exporter.Export(ctx, report); err != nil {
		logger.Warn().Err(err).Msg("failed to export report")
	}
}

func (s *sinks) close() {
	if err := s.exporter.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close textfile exporter")
	}
	if err := s.recorder.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close report recorder")
	}
}

func loop(ctx context.Context, cfg *config.Config, agg *aggregator.Aggregator, out *sinks) error {
	ticker := time.NewTicker(cfg.IntervalDuration())
	defer ticker.Stop()

	logger.Info().
		Int("interval", cfg.Interval).
		Bool("once", cfg.Once).
		Msg("Publishing reports")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report := agg.Publish()
			out.write(ctx, &report)

			if cfg.Once {
				printReport(&report)
				return nil
			}

			logger.Debug().
				Float64("elapsed", report.Elapsed).
				Int("values", len(report.Values)).
				Int("fields", len(report.Fields)).
				Msg("Report published")
		}
	}
}

func printReport(report *aggregator.Report) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error().Err(err).Msg("failed to print report")
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
