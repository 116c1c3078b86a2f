package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// DefaultDRMDir is the DRM class root.
const DefaultDRMDir = "/sys/class/drm"

var cardDirRe = regexp.MustCompile(`^card\d+$`)

// GPU reads board power from DRM hwmon sensors, summed over all cards.
type GPU struct {
	inputs []string
	limit  float64
}

// NewGPU discovers hwmon power sensors under dir. It returns ErrUnavailable
// if no card exposes one.
func NewGPU(dir string) (*GPU, error) {
	if dir == "" {
		dir = DefaultDRMDir
	}
	cards, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	g := &GPU{}
	for _, card := range cards {
		if !cardDirRe.MatchString(card.Name()) {
			continue
		}
		hwmonRoot := filepath.Join(dir, card.Name(), "device", "hwmon")
		hwmons, err := os.ReadDir(hwmonRoot)
		if err != nil {
			continue
		}
		for _, hw := range hwmons {
			base := filepath.Join(hwmonRoot, hw.Name())
			input := firstExisting(
				filepath.Join(base, "power1_average"),
				filepath.Join(base, "power1_input"),
			)
			if input == "" {
				continue
			}
			g.inputs = append(g.inputs, input)
			g.limit += float64(readUint(filepath.Join(base, "power1_cap"))) / 1e6
			break
		}
	}
	if len(g.inputs) == 0 {
		return nil, fmt.Errorf("%w: no GPU power sensors in %s", ErrUnavailable, dir)
	}
	return g, nil
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Limit returns the summed power cap in watts.
func (g *GPU) Limit() float64 {
	return g.limit
}

// Read returns the summed board power in watts.
func (g *GPU) Read() (float64, error) {
	var total float64
	for _, in := range g.inputs {
		v, err := strconv.ParseFloat(readString(in), 64)
		if err != nil {
			return 0, fmt.Errorf("collector: parse %s: %w", in, err)
		}
		total += v / 1e6
	}
	return total, nil
}
