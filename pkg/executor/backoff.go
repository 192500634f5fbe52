package executor

import "time"

// acquisitionBackoff computes the sleep before the next acquisition cycle.
//
// A full page means more work is probably waiting: no sleep. An empty cycle
// doubles the idle wait, capped at max, so a persistently quiet system
// degrades to slow polling. A partial page halves the idle wait, so the
// executor speeds back up quickly when work reappears after a quiet period.
type acquisitionBackoff struct {
	min  time.Duration
	max  time.Duration
	idle time.Duration
}

func newAcquisitionBackoff(min, max time.Duration) *acquisitionBackoff {
	return &acquisitionBackoff{min: min, max: max}
}

func (b *acquisitionBackoff) next(acquired, maxPerCycle int) time.Duration {
	switch {
	case maxPerCycle > 0 && acquired >= maxPerCycle:
		b.idle = 0
		return 0
	case acquired > 0:
		b.idle /= 2
		if b.idle < b.min {
			b.idle = 0
		}
		return b.idle
	default:
		if b.idle == 0 {
			b.idle = b.min
		} else {
			b.idle *= 2
		}
		if b.idle > b.max {
			b.idle = b.max
		}
		return b.idle
	}
}
