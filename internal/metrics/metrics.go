// Package metrics 导出 Prometheus textfile 格式的 GPU 使用指标
//
// The file is meant for node_exporter's textfile collector; the tool
// itself never serves HTTP.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AnalyseDeCircuit/gpuproc/pkg/types"
)

const namespace = "gpuproc"

// Registry builds a fresh registry describing rep.
func Registry(rep types.Report) *prometheus.Registry {
	gpuInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "gpu_info",
		Help:      "GPU identity, always 1.",
	}, []string{"bus", "vendor_id", "device_id", "vendor", "device"})

	gpuProcesses := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "gpu_processes",
		Help:      "Number of processes holding a descriptor on the GPU.",
	}, []string{"bus"})

	processGPU := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_gpu",
		Help:      "Process holding a descriptor on the GPU, always 1.",
	}, []string{"bus", "pid", "name"})

	registry := prometheus.NewRegistry()
	registry.MustRegister(gpuInfo, gpuProcesses, processGPU)

	for _, gpu := range rep.GPUs {
		gpuInfo.WithLabelValues(
			gpu.BusAddress,
			gpu.Identity.VendorID,
			gpu.Identity.DeviceID,
			gpu.Identity.VendorLabel(),
			gpu.Identity.DeviceLabel(),
		).Set(1)
		gpuProcesses.WithLabelValues(gpu.BusAddress).Set(float64(len(gpu.Processes)))
		for _, proc := range gpu.Processes {
			processGPU.WithLabelValues(gpu.BusAddress, strconv.Itoa(proc.PID), proc.Name).Set(1)
		}
	}
	return registry
}

// WriteTextfile writes rep to path atomically.
func WriteTextfile(path string, rep types.Report) error {
	return prometheus.WriteToTextfile(path, Registry(rep))
}
