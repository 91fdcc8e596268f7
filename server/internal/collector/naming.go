package collector

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const defaultSource = "client"

func keep(s string, extra string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune(extra, r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SanitizeTimestamp keeps letters, digits, '-', '_' and '.'.
func SanitizeTimestamp(s string) string { return keep(s, "-_.") }

// SanitizeSource keeps letters, digits, '-' and '_'. Empty results become "client".
func SanitizeSource(s string) string {
	if out := keep(s, "-_"); out != "" {
		return out
	}
	return defaultSource
}

// stamp formats t like the agent's spool names: 20060102T150405 plus
// microseconds and a Z suffix.
func stamp(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%06dZ", t.Format("20060102T150405"), t.Nanosecond()/1000)
}

// UploadName builds the stored file name for an upload.
func UploadName(timestamp, source, filename string, received time.Time) string {
	ts := SanitizeTimestamp(timestamp)
	if ts == "" {
		ts = stamp(received)
	}
	ext := "." + keep(strings.TrimPrefix(filepath.Ext(filename), "."), "")
	if ext == "." {
		ext = ".jpg"
	}
	return ts + "_" + SanitizeSource(source) + ext
}
