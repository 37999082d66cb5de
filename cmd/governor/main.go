// Command governor runs the Cyan Skillfish adaptive frequency governor as
// a standalone daemon: either the continuous ramp policy or the
// per-process learning policy, selected with -mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kwazou/cyan-governor/pkg/actuator"
	"github.com/kwazou/cyan-governor/pkg/config"
	"github.com/kwazou/cyan-governor/pkg/device"
	"github.com/kwazou/cyan-governor/pkg/govlog"
	"github.com/kwazou/cyan-governor/pkg/gpuproc"
	"github.com/kwazou/cyan-governor/pkg/history"
	"github.com/kwazou/cyan-governor/pkg/metrics"
	"github.com/kwazou/cyan-governor/pkg/procgov"
	"github.com/kwazou/cyan-governor/pkg/profilestore"
	"github.com/kwazou/cyan-governor/pkg/ramp"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("governor", flag.ContinueOnError)
	mode := fs.String("mode", "ramp", "governor policy: \"ramp\" or \"process\"")
	configPath := fs.String("config", "/etc/cyan-governor/config.yaml", "path to the YAML config file")
	logFile := fs.String("log-file", "", "log file path (rotated via lumberjack); empty logs to stderr")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	metricsAddr := fs.String("metrics-address", ":9108", "address to serve /metrics on")
	dumpProfiles := fs.Bool("dump-profiles", false, "print the learned process profile table and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *dumpProfiles {
		store, err := profilestore.Open()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		store.RenderTable(os.Stdout)
		return 0
	}

	zapLvl, err := govlog.ParseLogLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := govlog.CreateLogger(zapLvl, *logFile)
	govlog.Logger = logger

	cfg, err := config.Load(*configPath, config.NewLogger(logger.SugaredLogger))
	if err != nil {
		logger.Errorw("config load failed", "error", err)
		return 1
	}

	handle, err := device.Open(device.DefaultLocation)
	if err != nil {
		logger.Errorw("device open failed", "error", err)
		return 1
	}
	defer handle.Close()

	table, err := actuator.NewTable(cfg.SafePoints)
	if err != nil {
		logger.Errorw("safe-point table invalid", "error", err)
		return 1
	}
	writer, err := actuator.OpenWriter(handle.SysfsPath())
	if err != nil {
		logger.Errorw("actuator writer open failed", "error", err)
		return 1
	}
	defer writer.Close()

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		logger.Errorw("metrics registration failed", "error", err)
		return 1
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: *metricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorw("metrics server stopped", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		logger.Infof("shutdown signal received")
		cancel()
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	switch *mode {
	case "ramp":
		err = runRamp(ctx, handle, table, writer, logger, cfg)
	case "process":
		err = runProcess(ctx, handle, table, writer, logger, cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown -mode %q (want \"ramp\" or \"process\")\n", *mode)
		return 2
	}
	if err != nil {
		logger.Errorw("governor exited with error", "error", err)
		return 1
	}
	return 0
}

func runRamp(ctx context.Context, handle *device.Handle, table *actuator.Table, writer *actuator.Writer, logger ramp.Logger, cfg *config.Config) error {
	params := ramp.Params{
		UpThreshPercent:         cfg.UpperLoadTargetPercent,
		DownThreshPercent:       cfg.LowerLoadTargetPercent,
		RampRateNormalMHzPerMS:  cfg.RampRateNormalMHzPerMS,
		RampRateBurstMHzPerMS:   cfg.RampRateBurstMHzPerMS,
		SampleInterval:          time.Duration(cfg.SampleIntervalUS) * time.Microsecond,
		AdjustInterval:          time.Duration(cfg.AdjustIntervalUS) * time.Microsecond,
		FinetuneInterval:        time.Duration(cfg.FinetuneIntervalUS) * time.Microsecond,
		LogInterval:             time.Duration(cfg.LogIntervalS) * time.Second,
		OptimizeInterval:        time.Duration(cfg.OptimizeIntervalUS) * time.Microsecond,
		FinetuneThresholdMHz:    float64(cfg.FinetuneThresholdMHz),
		SignificantThresholdMHz: float64(cfg.AdjustThresholdMHz),
		MinFreqMHz:              table.MinFrequencyMHz(),
		MaxFreqMHz:              table.MaxFrequencyMHz(),
	}
	gov := ramp.New(handle, table, writer, logger, params, cfg.WindowSamples, cfg.BurstSamples)
	return gov.Run(ctx)
}

func runProcess(ctx context.Context, handle *device.Handle, table *actuator.Table, writer *actuator.Writer, logger procgov.Logger, cfg *config.Config) error {
	scanner, err := gpuproc.NewScanner()
	if err != nil {
		return fmt.Errorf("gpuproc scanner: %w", err)
	}
	resolver := gpuproc.NewResolver(2 * time.Second)
	source := processSource{scanner: scanner, resolver: resolver}

	store, err := profilestore.Open()
	if err != nil {
		return fmt.Errorf("profile store: %w", err)
	}

	var hist procgov.HistoryRecorder
	if err := os.MkdirAll(profilestore.CacheDir(), 0o755); err != nil {
		logger.Errorw("history cache dir create failed", "error", err)
	} else {
		dbPath := filepath.Join(profilestore.CacheDir(), "events.db")
		db, err := history.Open(dbPath)
		if err != nil {
			logger.Errorw("history store open failed", "error", err)
		} else {
			defer db.Close()
			hist = history.NewStore(db)
		}
	}

	monitor := procgov.NewProcessMonitor(source, time.Second, 5.0, 2.0, 10*time.Second)
	govParams := procgov.Params{
		MinFreqMHz:               table.MinFrequencyMHz(),
		MaxFreqMHz:               table.MaxFrequencyMHz(),
		FreqStepMHz:              50,
		LearningHistorySize:      200,
		SaturationHistorySize:    6000,
		HighLoadThresholdPercent: 90,
		LowLoadThresholdPercent:  50,
		MinChangeInterval:        2 * time.Second,
		LearningDuration:         120 * time.Second,
	}
	gov := procgov.NewGovernor(govParams)

	runner := procgov.NewRunner(handle, monitor, gov, store, table, writer, logger, hist, cfg.WindowSamples, 10*time.Millisecond)
	return runner.Run(ctx)
}

// processSource joins gpuproc's Scanner and Resolver into the single type
// procgov.GPUProcessSource requires.
type processSource struct {
	scanner  *gpuproc.Scanner
	resolver *gpuproc.Resolver
}

func (p processSource) Scan() ([]gpuproc.Sample, error) { return p.scanner.Scan() }
func (p processSource) Name(pid int) (string, error)    { return p.resolver.Name(pid) }
