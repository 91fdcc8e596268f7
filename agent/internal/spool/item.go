package spool

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const stampLayout = "20060102T150405"

// Key identifies one capture.
type Key struct {
	CaptureTime time.Time
	SourceID    string
}

// NewKey normalizes t to UTC with microsecond precision, the resolution kept
// in filenames, so a key survives a round trip through the directory.
func NewKey(t time.Time, sourceID string) Key {
	return Key{CaptureTime: t.UTC().Truncate(time.Microsecond), SourceID: sourceID}
}

// Stamp renders the capture time as YYYYMMDDTHHMMSSffffffZ.
func (k Key) Stamp() string {
	t := k.CaptureTime.UTC()
	return t.Format(stampLayout) + fmt.Sprintf("%06d", t.Nanosecond()/1000) + "Z"
}

// Stem is the filename without extension.
func (k Key) Stem() string {
	return k.Stamp() + "_" + k.SourceID
}

func (k Key) String() string { return k.Stem() }

// Equal reports whether k and o name the same capture.
func (k Key) Equal(o Key) bool {
	return k.CaptureTime.Equal(o.CaptureTime) && k.SourceID == o.SourceID
}

// Item is one undelivered capture. Payload is never interpreted.
type Item struct {
	Key     Key
	Ext     string
	Payload []byte
}

// Filename is the on-disk and upload name of the item.
func (i Item) Filename() string {
	return i.Key.Stem() + i.Ext
}

// Entry describes a spooled item without its payload.
type Entry struct {
	Key     Key
	Ext     string
	Name    string
	Path    string
	Size    int64
	ModTime time.Time

	// Parsed is false when the name did not follow the spool layout and the
	// key was derived from ModTime instead.
	Parsed bool
}

// parseName splits <stamp>_<source><ext> back into a key.
func parseName(name string) (Key, string, bool) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	stamp, source, ok := strings.Cut(stem, "_")
	if !ok || source == "" {
		return Key{}, ext, false
	}
	t, ok := parseStamp(stamp)
	if !ok {
		return Key{}, ext, false
	}
	return Key{CaptureTime: t, SourceID: source}, ext, true
}

func parseStamp(s string) (time.Time, bool) {
	// 15 chars of date/time, 6 digits of microseconds, trailing Z.
	if len(s) != len(stampLayout)+7 || s[len(s)-1] != 'Z' {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(stampLayout, s[:len(stampLayout)], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	us, err := strconv.Atoi(s[len(stampLayout) : len(s)-1])
	if err != nil || us < 0 {
		return time.Time{}, false
	}
	return t.Add(time.Duration(us) * time.Microsecond), true
}
