package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"time"
)

var (
	// ErrCapture means no image could be grabbed this cycle.
	ErrCapture = errors.New("capture: grab failed")

	// ErrEncode means an image was grabbed but could not be encoded.
	ErrEncode = errors.New("capture: encode failed")
)

// Grabber returns the current screen contents.
type Grabber interface {
	Grab(ctx context.Context) (image.Image, error)
}

// GrabberFunc adapts a function to Grabber.
type GrabberFunc func(ctx context.Context) (image.Image, error)

// Grab calls f.
func (f GrabberFunc) Grab(ctx context.Context) (image.Image, error) { return f(ctx) }

// Frame is one encoded capture.
type Frame struct {
	CapturedAt time.Time
	Payload    []byte
	Ext        string
}

// Capturer grabs and encodes one frame per call.
type Capturer struct {
	grabber Grabber
	format  string
	quality int
	now     func() time.Time

	// last is the most recent capture time handed out.
	last time.Time
}

// New returns a Capturer encoding as format (jpeg|png) with the given JPEG
// quality.
func New(g Grabber, format string, quality int) *Capturer {
	return &Capturer{grabber: g, format: format, quality: quality, now: time.Now}
}

// SetEncoding changes format and quality for subsequent captures.
func (c *Capturer) SetEncoding(format string, quality int) {
	c.format = format
	c.quality = quality
}

// Capture grabs the screen and encodes it. The capture time is taken before
// the grab so it orders frames by when they were requested. Capture times
// strictly increase at microsecond resolution, even if the wall clock is
// stepped back.
func (c *Capturer) Capture(ctx context.Context) (Frame, error) {
	at := c.stamp()

	img, err := c.grabber.Grab(ctx)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrCapture, err)
	}
	if img == nil {
		return Frame{}, fmt.Errorf("%w: no image", ErrCapture)
	}

	data, ext, err := Encode(img, c.format, c.quality)
	if err != nil {
		return Frame{}, err
	}
	return Frame{CapturedAt: at, Payload: data, Ext: ext}, nil
}

// stamp returns the next capture time: the wall clock, or one microsecond
// past the previous capture when the clock has not moved forward.
func (c *Capturer) stamp() time.Time {
	at := c.now().UTC().Truncate(time.Microsecond)
	if !c.last.IsZero() && !at.After(c.last) {
		at = c.last.Add(time.Microsecond)
	}
	c.last = at
	return at
}

// Encode renders img as jpeg or png and returns the bytes and file extension.
func Encode(img image.Image, format string, quality int) ([]byte, string, error) {
	var buf bytes.Buffer
	switch format {
	case "jpeg", "jpg", "":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, "", fmt.Errorf("%w: jpeg: %w", ErrEncode, err)
		}
		return buf.Bytes(), ".jpg", nil
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, "", fmt.Errorf("%w: png: %w", ErrEncode, err)
		}
		return buf.Bytes(), ".png", nil
	default:
		return nil, "", fmt.Errorf("%w: unsupported format %q", ErrEncode, format)
	}
}
