package capture

import (
	"context"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Screen grabs one display. Display 0 is the primary monitor.
type Screen struct {
	Display int
}

// Grab captures the configured display.
func (s Screen) Grab(_ context.Context) (image.Image, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("no active displays")
	}
	if s.Display < 0 || s.Display >= n {
		return nil, fmt.Errorf("display %d out of range (have %d)", s.Display, n)
	}
	return screenshot.CaptureDisplay(s.Display)
}
