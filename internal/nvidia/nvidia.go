// Package nvidia 通过 NVML 获取 NVIDIA GPU 上各进程的显存占用
package nvidia

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// Usage maps a normalised PCI bus ID to per-PID GPU memory in bytes.
type Usage map[string]map[int]uint64

// Memory returns the memory pid uses on the GPU at busPath. busPath may
// be an NVML bus ID or a sysfs link target.
func (u Usage) Memory(busPath string, pid int) (uint64, bool) {
	procs, ok := u[NormalizeBusID(busPath)]
	if !ok {
		return 0, false
	}
	used, ok := procs[pid]
	return used, ok
}

// ProcessMemory asks the NVIDIA driver for the compute and graphics
// processes of every GPU. It returns nil when NVML is not available.
func ProcessMemory(logger *slog.Logger) Usage {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		logger.Warn("NVML unavailable, no GPU memory figures", "error", nvml.ErrorString(ret))
		return nil
	}
	defer nvml.Shutdown()

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		logger.Warn("NVML device count failed", "error", nvml.ErrorString(ret))
		return nil
	}

	usage := make(Usage, count)
	for i := 0; i < count; i++ {
		device, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			continue
		}
		pciInfo, ret := device.GetPciInfo()
		if ret != nvml.SUCCESS {
			continue
		}
		busID := NormalizeBusID(cString(pciInfo.BusId[:]))
		procs := make(map[int]uint64)

		compute, ret := device.GetComputeRunningProcesses()
		if ret == nvml.SUCCESS {
			for _, p := range compute {
				procs[int(p.Pid)] += p.UsedGpuMemory
			}
		}
		// A process using both engines is reported twice with the same
		// allocation; keep the compute figure.
		graphics, ret := device.GetGraphicsRunningProcesses()
		if ret == nvml.SUCCESS {
			for _, p := range graphics {
				if _, exists := procs[int(p.Pid)]; !exists {
					procs[int(p.Pid)] = p.UsedGpuMemory
				}
			}
		}

		usage[busID] = procs
		logger.Debug("NVML device", "bus_id", busID, "processes", len(procs))
	}
	return usage
}

// NormalizeBusID maps "00000000:01:00.0" (NVML) and
// "../../../0000:01:00.0" (sysfs) to "0000:01:00.0".
func NormalizeBusID(id string) string {
	id = strings.ToLower(filepath.Base(strings.TrimSpace(id)))
	if strings.Count(id, ":") != 2 {
		return id
	}
	domain, rest, _ := strings.Cut(id, ":")
	value, err := strconv.ParseUint(domain, 16, 32)
	if err != nil {
		return id
	}
	return fmt.Sprintf("%04x:%s", value, rest)
}

// cString converts a NUL-terminated C char array to a string. go-nvml
// has declared these arrays as both int8 and uint8.
func cString[T ~int8 | ~uint8](b []T) string {
	buf := make([]byte, 0, len(b))
	for _, c := range b {
		if c == 0 {
			break
		}
		buf = append(buf, byte(c))
	}
	return string(buf)
}
