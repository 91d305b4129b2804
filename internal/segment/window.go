package segment

// Window is an ordered pair of timestamps in seconds since the epoch.
type Window struct {
	Start float64
	End   float64
}

// Overlaps reports whether the two windows share any instant. Both endpoints
// are inclusive: touching windows overlap.
func (w Window) Overlaps(o Window) bool {
	return w.Start <= o.End && w.End >= o.Start
}
