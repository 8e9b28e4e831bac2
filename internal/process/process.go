// Package process 提供进程快照功能
package process

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/prometheus/procfs"
	psprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/AnalyseDeCircuit/gpuproc/pkg/types"
)

// List snapshots every process under procRoot, sorted by PID.
//
// Processes that exit, or whose fd directory or status file we may not
// read, are left out. Descriptors whose link cannot be read are dropped
// from the process's targets.
func List(procRoot string) ([]types.Process, error) {
	procFS, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", procRoot, err)
	}

	procs, err := procFS.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	sort.Slice(procs, func(i, j int) bool {
		return procs[i].PID < procs[j].PID
	})

	result := make([]types.Process, 0, len(procs))
	for _, proc := range procs {
		snapshot, err := snapshotOf(proc)
		if err != nil {
			if skippable(err) {
				continue
			}
			return nil, fmt.Errorf("read process %d: %w", proc.PID, err)
		}
		result = append(result, snapshot)
	}
	return result, nil
}

func snapshotOf(proc procfs.Proc) (types.Process, error) {
	links, err := proc.FileDescriptorTargets()
	if err != nil {
		return types.Process{}, err
	}
	// FileDescriptorTargets leaves "" for links it could not read.
	targets := make([]string, 0, len(links))
	for _, target := range links {
		if target != "" {
			targets = append(targets, target)
		}
	}

	status, err := proc.NewStatus()
	if err != nil {
		return types.Process{}, err
	}

	return types.Process{
		PID:     proc.PID,
		Name:    status.Name,
		Targets: targets,
	}, nil
}

// skippable reports whether err means the process went away or is not
// ours to inspect.
func skippable(err error) bool {
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist)
}

// Owner returns the user running pid, "uid:<n>" when the uid has no
// name, or "" when the process cannot be inspected. gopsutil reads the
// proc root from HOST_PROC.
func Owner(ctx context.Context, pid int) string {
	proc, err := psprocess.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return ""
	}
	if username, err := proc.UsernameWithContext(ctx); err == nil && username != "" {
		return username
	}
	if uids, err := proc.UidsWithContext(ctx); err == nil && len(uids) > 0 {
		return fmt.Sprintf("uid:%d", uids[0])
	}
	return ""
}
