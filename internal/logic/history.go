package logic

// HistorySize is the number of values kept for sparklines.
const HistorySize = 20

// History is a fixed-capacity FIFO of metric values. It always holds exactly
// its capacity: it starts filled with zero shares and every Push evicts the
// oldest entry.
// Not safe for concurrent use; the caller synchronizes.
type History struct {
	buf  []MetricValue
	head int // oldest entry, also the next write position
}

// NewHistory creates a history of the given capacity pre-filled with zeros.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	h := &History{buf: make([]MetricValue, capacity)}
	for i := range h.buf {
		h.buf[i] = MetricValue{CPUPowerShare: zeroShare(), GPUPowerShare: zeroShare()}
	}
	return h
}

func zeroShare() *float64 {
	var z float64
	return &z
}

// Push appends v and evicts the oldest value.
func (h *History) Push(v MetricValue) {
	// Overwrite oldest: head is already pointing at it
	h.buf[h.head] = v
	h.head = (h.head + 1) % len(h.buf)
}

// Values returns the entries oldest first. The returned slice is a copy.
func (h *History) Values() []MetricValue {
	out := make([]MetricValue, len(h.buf))
	for i := range h.buf {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	return out
}

// Len returns the number of entries, which is always the capacity.
func (h *History) Len() int {
	return len(h.buf)
}
