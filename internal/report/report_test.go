package report

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/AnalyseDeCircuit/gpuproc/internal/config"
	"github.com/AnalyseDeCircuit/gpuproc/internal/correlate"
	"github.com/AnalyseDeCircuit/gpuproc/pkg/types"
)

func sampleResult() correlate.Result {
	vendor, device := "Advanced Micro Devices, Inc. [AMD/ATI]", "Ellesmere [Radeon RX 470/480/570/570X/580/580X/590]"
	return correlate.Result{
		Processes: []types.Process{
			{PID: 812, Name: "Xorg"},
			{PID: 1337, Name: "blender"},
		},
		Buckets: []correlate.Bucket{
			{
				Device: &types.GPUDevice{
					BusPath:  "../../../0000:03:00.0",
					Identity: types.Identity{VendorID: "1002", VendorName: &vendor, DeviceID: "67df", DeviceName: &device},
					Nodes:    []string{"/dev/dri/card0", "/dev/dri/renderD128"},
				},
				Processes: []int{0, 1},
			},
			{
				Device: &types.GPUDevice{
					BusPath:  "../../../0000:04:00.0",
					Identity: types.Identity{VendorID: "abcd", DeviceID: "0001"},
					Nodes:    []string{"/dev/dri/card1"},
				},
			},
		},
	}
}

func TestWriteText(t *testing.T) {
	rep := Build(context.Background(), sampleResult(), Options{})

	var buf bytes.Buffer
	if err := Write(&buf, rep, config.FormatText, false); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	expected := "GPU Advanced Micro Devices, Inc. [AMD/ATI] Ellesmere [Radeon RX 470/480/570/570X/580/580X/590] (1002:67df) [0000:03:00.0] is used by:\n" +
		"(812) Xorg\n" +
		"(1337) blender\n" +
		"GPU Unknown Manufacturer Unknown Device (abcd:0001) [0000:04:00.0] is used by:\n"
	if buf.String() != expected {
		t.Errorf("Write() =\n%s\nexpected\n%s", buf.String(), expected)
	}
}

func TestWriteTextVerbose(t *testing.T) {
	opts := Options{
		Owner: func(_ context.Context, pid int) string {
			if pid == 812 {
				return "root"
			}
			return ""
		},
		Memory: func(busPath string, pid int) (uint64, bool) {
			if busPath == "../../../0000:03:00.0" && pid == 1337 {
				return 3 << 30, true
			}
			return 0, false
		},
	}
	rep := Build(context.Background(), sampleResult(), opts)

	var buf bytes.Buffer
	if err := Write(&buf, rep, config.FormatText, true); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	for _, want := range []string{"(812) Xorg user=root\n", "(1337) blender gpu_memory=3.0 GiB\n"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestWriteStructured(t *testing.T) {
	rep := Build(context.Background(), sampleResult(), Options{
		Host: func(context.Context) types.HostInfo { return types.HostInfo{Hostname: "workstation"} },
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, rep, config.FormatJSON, false); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		var decoded types.Report
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Host.Hostname != "workstation" || len(decoded.GPUs) != 2 {
			t.Errorf("decoded = %+v", decoded)
		}
		if decoded.GPUs[1].Identity.VendorName != nil {
			t.Error("unresolved vendor name should stay null")
		}
		if !strings.Contains(buf.String(), `"vendor_name": null`) {
			t.Errorf("JSON should carry null names:\n%s", buf.String())
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, rep, config.FormatYAML, false); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		var decoded types.Report
		if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid YAML: %v", err)
		}
		if len(decoded.GPUs) != 2 || decoded.GPUs[0].BusAddress != "0000:03:00.0" {
			t.Errorf("decoded = %+v", decoded)
		}
		if len(decoded.GPUs[0].Processes) != 2 || decoded.GPUs[0].Processes[1].Name != "blender" {
			t.Errorf("processes = %+v", decoded.GPUs[0].Processes)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if err := Write(&bytes.Buffer{}, rep, "xml", false); err == nil {
			t.Error("Write() should reject unknown formats")
		}
	})
}

func TestDisplayBusPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"../../../0000:03:00.0", "0000:03:00.0"},
		{"../../../devices/pci0000:00/0000:00:02.0", "devices/pci0000:00/0000:00:02.0"},
		{"0000:03:00.0", "0000:03:00.0"},
	}
	for _, tt := range tests {
		if got := DisplayBusPath(tt.input); got != tt.expected {
			t.Errorf("DisplayBusPath(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    uint64
		expected string
	}{
		{0, "0 MiB"},
		{512 << 20, "512 MiB"},
		{1 << 30, "1.0 GiB"},
		{3 << 29, "1.5 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.input); got != tt.expected {
			t.Errorf("formatBytes(%d) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}
