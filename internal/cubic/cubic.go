// Package cubic implements the CUBIC-like congestion window controller
// driving the RDFT download/upload senders (spec.md §4.3).
package cubic

import "math"

const (
	// C and B are the CUBIC shape constants fixed by the wire format defaults.
	C = 0.4
	B = 0.7
)

// Controller tracks cwnd and its last peak (cwndMax); the refresh-cycle
// round-trip time is not stored but passed to each Grow call. It is not safe
// for concurrent use;
// callers serialize access the same way the window package does.
type Controller struct {
	cwnd    uint32
	cwndMax uint32
}

// New returns a Controller starting at the given window (CWND_START, default 1500).
func New(start uint32) *Controller {
	if start < 1 {
		start = 1
	}
	return &Controller{cwnd: start, cwndMax: start}
}

// Cwnd returns the current window size. Always >= 1.
func (c *Controller) Cwnd() uint32 { return c.cwnd }

// Shrink halves cwnd (floored at 1), records the pre-shrink value as cwndMax,
// and is invoked when a refresh cycle ends with unacknowledged in-flight ids.
func (c *Controller) Shrink() {
	c.cwndMax = c.cwnd
	next := c.cwnd / 2
	if next < 1 {
		next = 1
	}
	c.cwnd = next
}

// Grow applies the CUBIC regrowth update after a refresh cycle in which every
// in-flight id was acknowledged. rtt is the wall-clock span of that cycle in
// seconds. (rtt - k) is clamped to zero before cubing (spec.md §9) so a
// negative span never shrinks cwnd below cwndMax.
func (c *Controller) Grow(rttSeconds float64) {
	k := math.Cbrt((float64(c.cwndMax) * (1 - B)) / C)
	radicand := rttSeconds - k
	if radicand < 0 {
		radicand = 0
	}
	grown := C*math.Pow(radicand, 3) + float64(c.cwndMax)
	next := uint32(math.Round(grown))
	if next < 1 {
		next = 1
	}
	c.cwnd = next
}
