// Package gpu 提供 GPU 设备发现功能
//
// Every node under /dev/dri (card0, renderD128, ...) is mapped back to
// its PCI device through /sys/class/drm/<node>/device. Nodes sharing a
// PCI device are grouped into one GPU.
package gpu

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AnalyseDeCircuit/gpuproc/pkg/types"
)

// DefaultNodeDir is the prefix recorded for node paths. Descriptor
// targets in /proc are reported in the host's namespace, so this stays
// "/dev/dri" even when DevDir points into a mounted host root.
const DefaultNodeDir = "/dev/dri"

// Resolver turns a vendor/device ID pair into names.
type Resolver interface {
	Lookup(vendor, device string) types.Identity
}

// Options locates the directories Discover reads.
type Options struct {
	// DevDir is listed for device nodes, e.g. /dev/dri.
	DevDir string
	// SysClassDir holds the sysfs node entries, e.g. /sys/class/drm.
	SysClassDir string
	// NodeDir is joined with each node name to form its path.
	NodeDir string
}

// Discover builds the GPU registry. Nodes without PCI vendor attributes
// are skipped; any other read error, including a missing DevDir, aborts
// discovery. An empty DevDir gives an empty registry.
func Discover(opts Options, resolver Resolver, logger *slog.Logger) (types.Registry, error) {
	if opts.NodeDir == "" {
		opts.NodeDir = DefaultNodeDir
	}

	registry := make(types.Registry)

	entries, err := os.ReadDir(opts.DevDir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", opts.DevDir, err)
	}

	for _, entry := range entries {
		name := entry.Name()

		// Follow symlinks so only real node files count (skips by-path/).
		info, err := os.Stat(filepath.Join(opts.DevDir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		if info.IsDir() {
			continue
		}

		devicePath := filepath.Join(opts.SysClassDir, name, "device")

		vendor, err := readID(filepath.Join(devicePath, "vendor"))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Warn("skipping node without PCI vendor", "node", name)
				continue
			}
			return nil, err
		}
		device, err := readID(filepath.Join(devicePath, "device"))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Warn("skipping node without PCI device id", "node", name)
				continue
			}
			return nil, err
		}
		logger.Info("Found GPU", "node", name, "vendor", vendor, "device", device)

		// The PCI path links card and render nodes of one GPU together.
		busPath, err := os.Readlink(devicePath)
		if err != nil {
			return nil, fmt.Errorf("read PCI link for %s: %w", name, err)
		}

		nodePath := filepath.Join(opts.NodeDir, name)
		if gpu, ok := registry[busPath]; ok {
			gpu.Nodes = append(gpu.Nodes, nodePath)
			continue
		}
		registry[busPath] = &types.GPUDevice{
			BusPath:  busPath,
			Identity: resolver.Lookup(vendor, device),
			Nodes:    []string{nodePath},
		}
	}

	return registry, nil
}

// readID reads a sysfs ID attribute such as "0x1002\n" and returns
// "1002".
func readID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	id := strings.ToLower(strings.TrimSpace(string(data)))
	return strings.TrimPrefix(id, "0x"), nil
}
