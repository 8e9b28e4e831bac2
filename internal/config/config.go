package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Output formats accepted by --output.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config 全局配置结构体
type Config struct {
	// HostFS 是宿主机文件系统的挂载点
	// 在容器中通常是 "/hostfs"，在宿主机直接运行时为空 ""
	HostFS string

	// HostProc 是宿主机 /proc 目录的路径
	HostProc string

	// HostSys 是宿主机 /sys 目录的路径
	HostSys string

	// HostDev 是宿主机 /dev 目录的路径
	HostDev string

	// PCIIDs is an extra identity database tried before the defaults.
	PCIIDs string

	Output      string
	MetricsFile string
	EnableNVML  bool
	Verbose     bool
	LogLevel    string
}

// DefaultPCIIDsPaths returns the identity database candidates in lookup
// order. The final entry is relative to the working directory.
func DefaultPCIIDsPaths() []string {
	return []string{
		"/usr/share/hwdata/pci.ids", // Arch, Fedora
		"/usr/share/misc/pci.ids",   // Debian
		"/usr/share/pci.ids",
		"/usr/share/hwdata/pci.ids.gz",
		"/usr/share/misc/pci.ids.gz",
		"/usr/share/pci.ids.gz",
		"pci.ids",
	}
}

// Load 从环境变量加载配置
func Load() *Config {
	cfg := &Config{
		HostFS:   getEnv("HOST_FS", ""),
		PCIIDs:   getEnv("PCI_IDS", ""),
		Output:   FormatText,
		LogLevel: "info",
	}

	// 如果 HOST_FS 为空（Bare Metal 模式），使用本机路径
	// 但如果用户显式设置了 HOST_PROC 等，则以用户设置为准
	cfg.HostProc = getEnv("HOST_PROC", cfg.HostPath("/proc"))
	cfg.HostSys = getEnv("HOST_SYS", cfg.HostPath("/sys"))
	cfg.HostDev = getEnv("HOST_DEV", cfg.HostPath("/dev"))
	return cfg
}

// HostPath 将绝对路径转换为宿主机挂载路径
// 例如: HostPath("/usr/share/misc/pci.ids") -> "/hostfs/usr/share/misc/pci.ids"
func (c *Config) HostPath(path string) string {
	if c.HostFS == "" {
		return path
	}
	if strings.HasPrefix(path, c.HostFS) {
		return path
	}
	return filepath.Join(c.HostFS, path)
}

// DRIDir is the render-device directory to list.
func (c *Config) DRIDir() string {
	return filepath.Join(c.HostDev, "dri")
}

// DRMClassDir is the sysfs class directory holding one entry per node.
func (c *Config) DRMClassDir() string {
	return filepath.Join(c.HostSys, "class", "drm")
}

// PCIIDsPaths returns the candidates for this configuration. An explicit
// path comes first; with a host root, host copies are tried before the
// local ones.
func (c *Config) PCIIDsPaths() []string {
	var paths []string
	if c.PCIIDs != "" {
		paths = append(paths, c.PCIIDs)
	}
	for _, path := range DefaultPCIIDsPaths() {
		if c.HostFS != "" && filepath.IsAbs(path) {
			paths = append(paths, c.HostPath(path))
		}
		paths = append(paths, path)
	}
	return paths
}

// Validate checks values that came from flags.
func (c *Config) Validate() error {
	switch c.Output {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", c.Output)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.HostProc == "" || c.HostSys == "" || c.HostDev == "" {
		return fmt.Errorf("host paths must not be empty")
	}
	return nil
}

// getEnv 获取环境变量，如果为空则返回默认值
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
