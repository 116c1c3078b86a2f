package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultRAPLDir is the powercap interface root.
const DefaultRAPLDir = "/sys/class/powercap/intel-rapl"

// DRAMWattsPerGiB estimates DRAM power when no DRAM counter is exposed.
const DRAMWattsPerGiB = 0.375

// ErrUnavailable is returned when a device has no readable power source.
var ErrUnavailable = errors.New("collector: power metrics unavailable")

var (
	packageDirRe  = regexp.MustCompile(`^intel-rapl:\d+$`)
	domainDirRe   = regexp.MustCompile(`^intel-rapl:\d+:\d+$`)
	packageNameRe = regexp.MustCompile(`^package-\d+$`)
)

type raplDomain struct {
	name     string
	energy   string
	maxRange uint64
	dram     bool
}

// CPU reads package and DRAM power from RAPL energy counters. Usage is
// the average power between consecutive reads.
type CPU struct {
	domains []raplDomain
	limit   float64
	shares  ShareFunc
	memory  MemoryFunc
	now     func() time.Time

	mu       sync.Mutex
	last     map[string]uint64
	lastTime time.Time
}

// NewCPU discovers RAPL domains under dir. It returns ErrUnavailable if no
// counter can be read.
func NewCPU(dir string, shares ShareFunc, memory MemoryFunc, now func() time.Time) (*CPU, error) {
	if dir == "" {
		dir = DefaultRAPLDir
	}
	if now == nil {
		now = time.Now
	}
	domains, limitUW, err := discoverRAPL(dir)
	if err != nil {
		return nil, err
	}
	c := &CPU{
		domains: domains,
		limit:   float64(limitUW) / 1e6,
		shares:  shares,
		memory:  memory,
		now:     now,
	}

	counters := c.readCounters()
	var sum uint64
	for _, v := range counters {
		sum += v
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: no readable RAPL counters in %s", ErrUnavailable, dir)
	}
	c.last = counters
	c.lastTime = now()
	return c, nil
}

func discoverRAPL(dir string) ([]raplDomain, uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var domains []raplDomain
	var limit uint64
	for _, e := range entries {
		if !packageDirRe.MatchString(e.Name()) {
			continue
		}
		pkgDir := filepath.Join(dir, e.Name())
		name := readString(filepath.Join(pkgDir, "name"))
		if name == "" || name == "psys" {
			continue
		}
		domains = append(domains, raplDomain{
			name:     name,
			energy:   filepath.Join(pkgDir, "energy_uj"),
			maxRange: readUint(filepath.Join(pkgDir, "max_energy_range_uj")),
		})
		if packageNameRe.MatchString(name) {
			limit += powerLimit(pkgDir)
		}

		subs, err := os.ReadDir(pkgDir)
		if err != nil {
			continue
		}
		for _, s := range subs {
			if !domainDirRe.MatchString(s.Name()) {
				continue
			}
			domDir := filepath.Join(pkgDir, s.Name())
			// Only DRAM is outside the package counter.
			if readString(filepath.Join(domDir, "name")) != "dram" {
				continue
			}
			domains = append(domains, raplDomain{
				name:     "dram-" + name,
				energy:   filepath.Join(domDir, "energy_uj"),
				maxRange: readUint(filepath.Join(domDir, "max_energy_range_uj")),
				dram:     true,
			})
		}
	}
	if len(domains) == 0 {
		return nil, 0, fmt.Errorf("%w: no RAPL packages in %s", ErrUnavailable, dir)
	}
	return domains, limit, nil
}

// powerLimit prefers the short-term constraint.
func powerLimit(dir string) uint64 {
	for _, f := range []string{"constraint_1_power_limit_uw", "constraint_0_power_limit_uw"} {
		p := filepath.Join(dir, f)
		if _, err := os.Stat(p); err == nil {
			return readUint(p)
		}
	}
	return 0
}

func (c *CPU) readCounters() map[string]uint64 {
	out := make(map[string]uint64, len(c.domains))
	for _, d := range c.domains {
		out[d.name] = readUint(d.energy)
	}
	return out
}

// Limit returns the summed package power limit in watts.
func (c *CPU) Limit() float64 {
	return c.limit
}

// Read returns the CPU power attributed to the measurement scope, in watts.
func (c *CPU) Read(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	counters := c.readCounters()
	period := now.Sub(c.lastTime).Seconds()
	if period <= 0 {
		return 0, fmt.Errorf("collector: non-positive RAPL period %v", period)
	}

	var pkgUJ, dramUJ uint64
	for _, d := range c.domains {
		diff := counterDelta(c.last[d.name], counters[d.name], d.maxRange)
		if d.dram {
			dramUJ += diff
		} else {
			pkgUJ += diff
		}
	}
	c.last = counters
	c.lastTime = now

	cpuW := float64(pkgUJ) / 1e6 / period
	dramW := float64(dramUJ) / 1e6 / period
	if dramW == 0 && c.memory != nil {
		gib, err := c.memory(ctx)
		if err != nil {
			return 0, fmt.Errorf("collector: used memory: %w", err)
		}
		dramW = gib * DRAMWattsPerGiB
	}

	s := Shares{CPU: 1, Memory: 1}
	if c.shares != nil {
		var err error
		if s, err = c.shares(ctx); err != nil {
			return 0, fmt.Errorf("collector: shares: %w", err)
		}
	}
	return cpuW*s.CPU + dramW*s.Memory, nil
}

// counterDelta handles a single wrap of the energy counter. A counter that
// went backwards without a usable max range (unknown, or below the previous
// value) was reset, and the interval counts as zero.
func counterDelta(prev, cur, maxRange uint64) uint64 {
	if cur >= prev {
		return cur - prev
	}
	if maxRange == 0 || prev > maxRange {
		return 0
	}
	return maxRange - prev + cur
}

func readString(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func readUint(path string) uint64 {
	v, err := strconv.ParseUint(readString(path), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
