package session

import "time"

// Combo counts clears that follow each other within Window.
type Combo struct {
	Count  int
	Last   time.Time
	Window time.Duration
}

// Clear records a clear event at now. The first clear ever, or one within
// the window of the previous clear, extends the streak; a late clear starts
// over at zero.
func (c *Combo) Clear(now time.Time) {
	if c.Last.IsZero() || now.Sub(c.Last) < c.Window {
		c.Count++
	} else {
		c.Count = 0
	}
	c.Last = now
}

// Break is a placement that cleared nothing.
func (c *Combo) Break() { c.Count = 0 }
