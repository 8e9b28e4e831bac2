// Package report 格式化 GPU 使用情况输出
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"gopkg.in/yaml.v3"

	"github.com/AnalyseDeCircuit/gpuproc/internal/config"
	"github.com/AnalyseDeCircuit/gpuproc/internal/correlate"
	"github.com/AnalyseDeCircuit/gpuproc/pkg/types"
)

// MemoryFunc returns the GPU memory pid uses on the GPU at busPath.
type MemoryFunc func(busPath string, pid int) (uint64, bool)

// Options controls what Build adds beyond the correlation itself. Nil
// functions are skipped.
type Options struct {
	Owner  func(ctx context.Context, pid int) string
	Memory MemoryFunc
	// Host fills the report header; nil leaves it empty.
	Host func(ctx context.Context) types.HostInfo
}

// Build turns a correlation result into a report.
func Build(ctx context.Context, result correlate.Result, opts Options) types.Report {
	rep := types.Report{GPUs: make([]types.GPUReport, 0, len(result.Buckets))}
	if opts.Host != nil {
		rep.Host = opts.Host(ctx)
	}

	for i, bucket := range result.Buckets {
		gpu := types.GPUReport{
			BusAddress: DisplayBusPath(bucket.Device.BusPath),
			Identity:   bucket.Device.Identity,
			Nodes:      bucket.Device.Nodes,
			Processes:  make([]types.ProcessReport, 0, len(bucket.Processes)),
		}
		for _, proc := range result.Users(i) {
			entry := types.ProcessReport{PID: proc.PID, Name: proc.Name}
			if opts.Owner != nil {
				entry.User = opts.Owner(ctx, proc.PID)
			}
			if opts.Memory != nil {
				if used, ok := opts.Memory(bucket.Device.BusPath, proc.PID); ok {
					entry.GPUMemory = formatBytes(used)
				}
			}
			gpu.Processes = append(gpu.Processes, entry)
		}
		rep.GPUs = append(rep.GPUs, gpu)
	}
	return rep
}

// HostInfo reads the report header from gopsutil. Fields it cannot read
// stay empty.
func HostInfo(ctx context.Context) types.HostInfo {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return types.HostInfo{}
	}
	return types.HostInfo{
		Hostname: info.Hostname,
		Kernel:   info.KernelVersion,
		Platform: strings.TrimSpace(info.Platform + " " + info.PlatformVersion),
	}
}

// DisplayBusPath strips the parent-directory markers from a sysfs link
// target: "../../../0000:03:00.0" becomes "0000:03:00.0".
func DisplayBusPath(busPath string) string {
	return strings.ReplaceAll(busPath, "../", "")
}

// Write renders rep in the given format.
func Write(w io.Writer, rep types.Report, format string, verbose bool) error {
	switch format {
	case config.FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rep)
	case config.FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(rep); err != nil {
			return err
		}
		return encoder.Close()
	case config.FormatText, "":
		return writeText(w, rep, verbose)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeText(w io.Writer, rep types.Report, verbose bool) error {
	for _, gpu := range rep.GPUs {
		_, err := fmt.Fprintf(w, "GPU %s %s (%s:%s) [%s] is used by:\n",
			gpu.Identity.VendorLabel(),
			gpu.Identity.DeviceLabel(),
			gpu.Identity.VendorID,
			gpu.Identity.DeviceID,
			gpu.BusAddress,
		)
		if err != nil {
			return err
		}
		for _, proc := range gpu.Processes {
			line := fmt.Sprintf("(%d) %s", proc.PID, proc.Name)
			if verbose {
				if proc.User != "" {
					line += " user=" + proc.User
				}
				if proc.GPUMemory != "" {
					line += " gpu_memory=" + proc.GPUMemory
				}
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

// formatBytes formats bytes to human-readable string (MiB/GiB)
func formatBytes(bytes uint64) string {
	const (
		MiB = 1024 * 1024
		GiB = 1024 * 1024 * 1024
	)
	if bytes >= GiB {
		return fmt.Sprintf("%.1f GiB", float64(bytes)/GiB)
	}
	return fmt.Sprintf("%.0f MiB", float64(bytes)/MiB)
}
