package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// Scope selects which processes CPU power is attributed to.
type Scope string

const (
	ScopeProcess Scope = "process"
	ScopeUser    Scope = "user"
	ScopeSystem  Scope = "system"
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeProcess, ScopeUser, ScopeSystem:
		return Scope(s), nil
	case "":
		return ScopeProcess, nil
	}
	return "", fmt.Errorf("collector: unknown measurement scope %q", s)
}

// Shares is the fraction of host CPU time and resident memory used by the
// measured processes.
type Shares struct {
	CPU    float64
	Memory float64
}

// ShareFunc computes the current shares.
type ShareFunc func(ctx context.Context) (Shares, error)

// MemoryFunc returns used host memory in GiB.
type MemoryFunc func(ctx context.Context) (float64, error)

// UsedMemoryGiB reads used memory from the host.
func UsedMemoryGiB(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent / 100 * float64(vm.Total) / (1 << 30), nil
}

// ScopeShares returns the share function for scope. System scope always
// reports full shares.
func ScopeShares(scope Scope) ShareFunc {
	if scope == ScopeSystem {
		return func(context.Context) (Shares, error) {
			return Shares{CPU: 1, Memory: 1}, nil
		}
	}
	t := &shareTracker{scope: scope, procs: make(map[int32]*process.Process)}
	return t.shares
}

// shareTracker keeps process handles between calls so CPU percent is
// measured since the previous call.
type shareTracker struct {
	scope Scope

	mu    sync.Mutex
	procs map[int32]*process.Process
}

func (t *shareTracker) shares(ctx context.Context) (Shares, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pids, err := t.pids(ctx)
	if err != nil {
		return Shares{}, err
	}

	ncpu, err := cpu.CountsWithContext(ctx, true)
	if err != nil || ncpu < 1 {
		ncpu = 1
	}

	seen := make(map[int32]bool, len(pids))
	var cpuPct float64
	var rss uint64
	for _, pid := range pids {
		p, ok := t.procs[pid]
		if !ok {
			p, err = process.NewProcessWithContext(ctx, pid)
			if err != nil {
				continue
			}
			t.procs[pid] = p
		}
		seen[pid] = true
		if pct, err := p.PercentWithContext(ctx, 0); err == nil {
			cpuPct += pct
		}
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
			rss += mi.RSS
		}
	}
	for pid := range t.procs {
		if !seen[pid] {
			delete(t.procs, pid)
		}
	}

	total, err := totalRSS(ctx)
	if err != nil {
		return Shares{}, err
	}
	s := Shares{CPU: min(cpuPct/100/float64(ncpu), 1)}
	if total > 0 {
		s.Memory = min(float64(rss)/float64(total), 1)
	}
	return s, nil
}

func (t *shareTracker) pids(ctx context.Context) ([]int32, error) {
	switch t.scope {
	case ScopeUser:
		u, err := user.Current()
		if err != nil {
			return nil, err
		}
		all, err := process.ProcessesWithContext(ctx)
		if err != nil {
			return nil, err
		}
		var pids []int32
		for _, p := range all {
			name, err := p.UsernameWithContext(ctx)
			if err == nil && name == u.Username {
				pids = append(pids, p.Pid)
			}
		}
		return pids, nil
	default:
		self, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
		if err != nil {
			return nil, err
		}
		pids := []int32{self.Pid}
		children, err := self.ChildrenWithContext(ctx)
		if err != nil && !errors.Is(err, process.ErrorNoChildren) {
			return nil, err
		}
		for _, c := range descendants(ctx, children) {
			pids = append(pids, c.Pid)
		}
		return pids, nil
	}
}

func descendants(ctx context.Context, procs []*process.Process) []*process.Process {
	var out []*process.Process
	for _, p := range procs {
		out = append(out, p)
		kids, err := p.ChildrenWithContext(ctx)
		if err != nil {
			continue
		}
		out = append(out, descendants(ctx, kids)...)
	}
	return out
}

func totalRSS(ctx context.Context) (uint64, error) {
	all, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, p := range all {
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
			total += mi.RSS
		}
	}
	return total, nil
}
