// Package types 定义整个项目中使用的公共类型
package types

import "sort"

// Placeholders shown when the identity database has no entry.
const (
	UnknownVendor = "Unknown Manufacturer"
	UnknownDevice = "Unknown Device"
)

// --- GPU 身份与设备 ---

// Identity is the resolved name pair for one PCI vendor/device ID.
// VendorID and DeviceID are always set; the names are nil when the
// lookup did not find them.
type Identity struct {
	VendorID   string  `json:"vendor_id" yaml:"vendor_id"`
	VendorName *string `json:"vendor_name" yaml:"vendor_name"`
	DeviceID   string  `json:"device_id" yaml:"device_id"`
	DeviceName *string `json:"device_name" yaml:"device_name"`
}

// VendorLabel 返回厂商名称，未知时返回占位符
func (i Identity) VendorLabel() string {
	if i.VendorName == nil {
		return UnknownVendor
	}
	return *i.VendorName
}

// DeviceLabel 返回设备名称，未知时返回占位符
func (i Identity) DeviceLabel() string {
	if i.DeviceName == nil {
		return UnknownDevice
	}
	return *i.DeviceName
}

// GPUDevice is one physical adapter. A GPU usually exposes a card node
// and a render node; both end up in Nodes, in discovery order.
type GPUDevice struct {
	// BusPath is the target of /sys/class/drm/<node>/device, e.g.
	// "../../../0000:03:00.0". It is the registry key.
	BusPath  string
	Identity Identity
	Nodes    []string
}

// Registry maps a PCI bus path to its GPU.
type Registry map[string]*GPUDevice

// Keys returns the bus paths in sorted order.
func (r Registry) Keys() []string {
	keys := make([]string, 0, len(r))
	for key := range r {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// --- 进程快照 ---

// Process is a process as seen at enumeration time. Targets holds the
// resolved target of every open descriptor that could be read.
type Process struct {
	PID     int
	Name    string
	Targets []string
}

// --- 报告输出类型 ---

// Report is the structured form of one run.
type Report struct {
	Host HostInfo    `json:"host" yaml:"host"`
	GPUs []GPUReport `json:"gpus" yaml:"gpus"`
}

// HostInfo 主机信息
type HostInfo struct {
	Hostname string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Kernel   string `json:"kernel,omitempty" yaml:"kernel,omitempty"`
	Platform string `json:"platform,omitempty" yaml:"platform,omitempty"`
}

// GPUReport GPU 及其使用者
type GPUReport struct {
	BusAddress string          `json:"bus_address" yaml:"bus_address"`
	Identity   Identity        `json:"identity" yaml:"identity"`
	Nodes      []string        `json:"nodes" yaml:"nodes"`
	Processes  []ProcessReport `json:"processes" yaml:"processes"`
}

// ProcessReport 使用 GPU 的进程
type ProcessReport struct {
	PID       int    `json:"pid" yaml:"pid"`
	Name      string `json:"name" yaml:"name"`
	User      string `json:"user,omitempty" yaml:"user,omitempty"`
	GPUMemory string `json:"gpu_memory,omitempty" yaml:"gpu_memory,omitempty"`
}
