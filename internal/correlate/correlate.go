// Package correlate maps open descriptors to the GPUs they point at.
package correlate

import "github.com/AnalyseDeCircuit/gpuproc/pkg/types"

// Bucket is one GPU and the processes using it. Processes holds indexes
// into Result.Processes, in process order, each at most once.
type Bucket struct {
	Device    *types.GPUDevice
	Processes []int
}

// Result owns the process snapshot the buckets refer to.
type Result struct {
	Processes []types.Process
	Buckets   []Bucket
}

// Users returns the processes of bucket i.
func (r Result) Users(i int) []types.Process {
	users := make([]types.Process, 0, len(r.Buckets[i].Processes))
	for _, index := range r.Buckets[i].Processes {
		users = append(users, r.Processes[index])
	}
	return users
}

// Correlate builds one bucket per GPU, ordered by bus path, and adds
// every process holding a descriptor on one of the GPU's nodes. A
// process with descriptors on two nodes of the same GPU is listed once.
func Correlate(registry types.Registry, processes []types.Process) Result {
	result := Result{
		Processes: processes,
		Buckets:   make([]Bucket, 0, len(registry)),
	}

	// Node paths are unique across GPUs, so each target maps to at most
	// one bucket.
	owner := make(map[string]int)
	for _, key := range registry.Keys() {
		device := registry[key]
		for _, node := range device.Nodes {
			owner[node] = len(result.Buckets)
		}
		result.Buckets = append(result.Buckets, Bucket{Device: device})
	}

	for index, proc := range processes {
		var seen map[int]bool
		for _, target := range proc.Targets {
			bucket, ok := owner[target]
			if !ok || seen[bucket] {
				continue
			}
			if seen == nil {
				seen = make(map[int]bool)
			}
			seen[bucket] = true
			result.Buckets[bucket].Processes = append(result.Buckets[bucket].Processes, index)
		}
	}

	return result
}
