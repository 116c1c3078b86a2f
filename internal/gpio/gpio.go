// Package gpio drives a physical indicator LED from the daemon's
// availability state. The real implementation uses the Linux GPIO character
// device; the fake records writes for tests.
package gpio

// Indicator is a single on/off output.
type Indicator interface {
	// Set switches the output on or off.
	Set(on bool) error

	// Close turns the output off and releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO chip the indicator line is requested from.
const DefaultChip = "gpiochip0"

// Mode selects what the indicator shows.
type Mode string

const (
	// ModeEmissions lights the LED while emissions are available.
	ModeEmissions Mode = "emissions"
	// ModePower lights the LED while any power metric is available.
	ModePower Mode = "power"
)

// State is the subset of daemon state an indicator reacts to.
type State struct {
	Enabled            bool
	CPUAvailable       bool
	GPUAvailable       bool
	EmissionsAvailable bool
}

// Lit reports whether the LED should be on for s.
func (m Mode) Lit(s State) bool {
	if !s.Enabled {
		return false
	}
	if m == ModePower {
		return s.CPUAvailable || s.GPUAvailable
	}
	return s.EmissionsAvailable
}

// Driver writes an Indicator only when its lit state changes.
type Driver struct {
	out  Indicator
	mode Mode
	lit  bool
	set  bool
}

// NewDriver creates a Driver for out.
func NewDriver(out Indicator, mode Mode) *Driver {
	if mode == "" {
		mode = ModeEmissions
	}
	return &Driver{out: out, mode: mode}
}

// Apply updates the output for s. It returns whether a write happened.
func (d *Driver) Apply(s State) (bool, error) {
	lit := d.mode.Lit(s)
	if d.set && lit == d.lit {
		return false, nil
	}
	if err := d.out.Set(lit); err != nil {
		return false, err
	}
	d.lit, d.set = lit, true
	return true, nil
}
