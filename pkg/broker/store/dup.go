package store

import "time"

// dupWindow is a bounded time-window set of message-ids used for
// duplicate detection. Entries older than the window are pruned lazily on
// each check.
type dupWindow struct {
	window time.Duration
	seen   map[string]time.Time
}

// EnableDuplicateDetection switches duplicate detection on with the given
// history window. Calling it again replaces the window but keeps history.
func (c *Container) EnableDuplicateDetection(window time.Duration) {
	if c.dup == nil {
		c.dup = &dupWindow{seen: map[string]time.Time{}}
	}
	c.dup.window = window
}

// IsDuplicate records the message-id and reports whether it was already
// seen within the detection window. Always false when detection is off.
func (c *Container) IsDuplicate(id string, now time.Time) bool {
	if c.dup == nil {
		return false
	}
	d := c.dup
	cutoff := now.Add(-d.window)
	for k, t := range d.seen {
		if t.Before(cutoff) {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = now
	return false
}
