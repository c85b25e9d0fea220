package domain

import (
	"fmt"
	"time"
)

// Namer derives a frame's file name from its index. Frames are spaced Step
// apart starting at midnight of Date, so with a 10 minute step index 5 maps to
// minute 50 and index 6 to 01:00.
type Namer struct {
	Prefix string
	Suffix string
	Date   time.Time
	Step   time.Duration
}

// DefaultStep is the spacing between consecutive frames.
const DefaultStep = 10 * time.Minute

// Time returns the timestamp of frame i.
func (n Namer) Time(i int) time.Time {
	step := n.Step
	if step <= 0 {
		step = DefaultStep
	}
	day := time.Date(n.Date.Year(), n.Date.Month(), n.Date.Day(), 0, 0, 0, 0, n.Date.Location())
	return day.Add(time.Duration(i) * step)
}

// Name returns the file name of frame i, e.g. "swrad_202407070050_jet.tif".
func (n Namer) Name(i int) string {
	t := n.Time(i)
	return fmt.Sprintf("%s%s%02d%02d%s", n.Prefix, t.Format("20060102"), t.Hour(), t.Minute(), n.Suffix)
}

// FramesPerDay returns how many frames of the configured step fit in 24 hours.
func (n Namer) FramesPerDay() int {
	step := n.Step
	if step <= 0 {
		step = DefaultStep
	}
	return int((24 * time.Hour) / step)
}
