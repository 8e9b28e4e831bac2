package correlate

import (
	"reflect"
	"testing"

	"github.com/AnalyseDeCircuit/gpuproc/pkg/types"
)

func testRegistry() types.Registry {
	return types.Registry{
		"../../../0000:03:00.0": {
			BusPath:  "../../../0000:03:00.0",
			Identity: types.Identity{VendorID: "1002", DeviceID: "67df"},
			Nodes:    []string{"/dev/dri/card0", "/dev/dri/renderD128"},
		},
		"../../../0000:04:00.0": {
			BusPath:  "../../../0000:04:00.0",
			Identity: types.Identity{VendorID: "10de", DeviceID: "2684"},
			Nodes:    []string{"/dev/dri/card1", "/dev/dri/renderD129"},
		},
	}
}

func pids(result Result, bucket int) []int {
	var out []int
	for _, proc := range result.Users(bucket) {
		out = append(out, proc.PID)
	}
	return out
}

func TestCorrelate(t *testing.T) {
	processes := []types.Process{
		{PID: 1, Name: "init", Targets: []string{"/dev/null", "socket:[1]"}},
		{PID: 2, Name: "Xorg", Targets: []string{"/dev/dri/card0"}},
		{PID: 3, Name: "blender", Targets: []string{"/dev/dri/renderD128", "/dev/null", "/dev/dri/renderD129"}},
		{PID: 4, Name: "cuda", Targets: []string{"/dev/dri/renderD129"}},
		{PID: 5, Name: "idle"},
	}

	result := Correlate(testRegistry(), processes)
	if len(result.Buckets) != 2 {
		t.Fatalf("len(Buckets) = %d, expected 2", len(result.Buckets))
	}

	tests := []struct {
		name     string
		bucket   int
		busPath  string
		expected []int
	}{
		{"第一块 GPU", 0, "../../../0000:03:00.0", []int{2, 3}},
		{"第二块 GPU", 1, "../../../0000:04:00.0", []int{3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := result.Buckets[tt.bucket].Device.BusPath; got != tt.busPath {
				t.Errorf("BusPath = %q, expected %q", got, tt.busPath)
			}
			if got := pids(result, tt.bucket); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("PIDs = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestCorrelateUnrelatedProcessInNoBucket(t *testing.T) {
	processes := []types.Process{
		{PID: 7, Name: "vim", Targets: []string{"/dev/pts/0", "/home/user/.vimrc"}},
	}
	result := Correlate(testRegistry(), processes)
	for i := range result.Buckets {
		if n := len(result.Buckets[i].Processes); n != 0 {
			t.Errorf("bucket %d has %d processes, expected 0", i, n)
		}
	}
}

// Descriptors on both the card and render node of one GPU list the
// process once; duplicate entries are removed rather than kept.
func TestCorrelateDeduplicatesSameDevice(t *testing.T) {
	processes := []types.Process{
		{PID: 9, Name: "gnome-shell", Targets: []string{
			"/dev/dri/card0", "/dev/dri/renderD128", "/dev/dri/card0",
		}},
	}
	result := Correlate(testRegistry(), processes)
	if got := pids(result, 0); !reflect.DeepEqual(got, []int{9}) {
		t.Errorf("PIDs = %v, expected [9]", got)
	}
	if got := pids(result, 1); len(got) != 0 {
		t.Errorf("PIDs = %v, expected none", got)
	}
}

func TestCorrelateNoDevices(t *testing.T) {
	processes := []types.Process{
		{PID: 2, Name: "Xorg", Targets: []string{"/dev/dri/card0"}},
	}
	result := Correlate(types.Registry{}, processes)
	if len(result.Buckets) != 0 {
		t.Errorf("len(Buckets) = %d, expected 0", len(result.Buckets))
	}
	if len(result.Processes) != 1 {
		t.Errorf("len(Processes) = %d, expected 1", len(result.Processes))
	}
}
