// Package main 提供 gpuproc 命令行入口
//
// gpuproc lists the GPUs under /dev/dri and the processes that hold them
// open.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/AnalyseDeCircuit/gpuproc/internal/config"
	"github.com/AnalyseDeCircuit/gpuproc/internal/correlate"
	"github.com/AnalyseDeCircuit/gpuproc/internal/gpu"
	"github.com/AnalyseDeCircuit/gpuproc/internal/metrics"
	"github.com/AnalyseDeCircuit/gpuproc/internal/nvidia"
	"github.com/AnalyseDeCircuit/gpuproc/internal/pciids"
	"github.com/AnalyseDeCircuit/gpuproc/internal/process"
	"github.com/AnalyseDeCircuit/gpuproc/internal/report"
)

func main() {
	cfg := config.Load()
	if err := parseFlags(os.Args[1:], cfg); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(os.Stderr, cfg.LogLevel)
	if cfg.HostFS != "" {
		logger.Debug("using host filesystem", "root", cfg.HostFS)
	}
	// gopsutil reads the same roots from the environment.
	os.Setenv("HOST_PROC", cfg.HostProc)
	os.Setenv("HOST_SYS", cfg.HostSys)

	if err := run(context.Background(), cfg, os.Stdout, logger); err != nil {
		logger.Error("gpuproc failed", "error", err)
		os.Exit(1)
	}
}

// parseFlags applies command-line flags on top of the environment.
func parseFlags(args []string, cfg *config.Config) error {
	flags := pflag.NewFlagSet("gpuproc", pflag.ContinueOnError)
	flags.StringVarP(&cfg.Output, "output", "o", cfg.Output, "output format: text, json or yaml")
	flags.StringVar(&cfg.PCIIDs, "pci-ids", cfg.PCIIDs, "identity database to try before the default locations")
	flags.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "also write a Prometheus textfile to this path")
	flags.BoolVar(&cfg.EnableNVML, "nvml", cfg.EnableNVML, "add per-process GPU memory from NVML (NVIDIA only)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "show process owner and GPU memory in text output")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	flags.StringVar(&cfg.HostProc, "proc", cfg.HostProc, "process filesystem root")
	flags.StringVar(&cfg.HostSys, "sys", cfg.HostSys, "sysfs root")
	flags.StringVar(&cfg.HostDev, "dev", cfg.HostDev, "device directory root")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", flags.Args())
	}
	return cfg.Validate()
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// run performs one discovery and correlation pass and writes the
// report to stdout.
func run(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *slog.Logger) error {
	db, err := pciids.Open(cfg.PCIIDsPaths(), logger)
	if err != nil {
		return err
	}

	registry, err := gpu.Discover(gpu.Options{
		DevDir:      cfg.DRIDir(),
		SysClassDir: cfg.DRMClassDir(),
		NodeDir:     gpu.DefaultNodeDir,
	}, db, logger)
	if err != nil {
		return fmt.Errorf("discover GPUs: %w", err)
	}

	procs, err := process.List(cfg.HostProc)
	if err != nil {
		return fmt.Errorf("snapshot processes: %w", err)
	}
	logger.Debug("snapshot complete", "gpus", len(registry), "processes", len(procs))

	result := correlate.Correlate(registry, procs)

	var opts report.Options
	if cfg.Verbose || cfg.Output != config.FormatText {
		opts.Owner = process.Owner
		opts.Host = report.HostInfo
	}
	if cfg.EnableNVML {
		if usage := nvidia.ProcessMemory(logger); usage != nil {
			opts.Memory = usage.Memory
		}
	}

	rep := report.Build(ctx, result, opts)
	if err := report.Write(stdout, rep, cfg.Output, cfg.Verbose); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile, rep); err != nil {
			return fmt.Errorf("write metrics file: %w", err)
		}
		logger.Debug("metrics written", "path", cfg.MetricsFile)
	}
	return nil
}
