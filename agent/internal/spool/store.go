package spool

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// ErrIO marks a failure to read or write the spool directory. An item whose
// Put fails with ErrIO is lost.
var ErrIO = errors.New("spool: i/o failure")

const tempPrefix = ".tmp-"

// PutResult reports what Put had to evict to make room.
type PutResult struct {
	// Evicted lists items dropped, oldest first. Empty when there was room.
	Evicted []Key

	// Replaced is true when an item with the same identity already existed
	// and was overwritten.
	Replaced bool
}

// Store is a bounded, directory-backed spool. It is safe for concurrent use;
// every method holds the same mutex for its full duration.
type Store struct {
	mu       sync.Mutex
	dir      string
	maxFiles int
}

// Open creates dir if needed and returns a Store holding at most maxFiles
// items. Leftover temp files from an interrupted Put are removed.
func Open(dir string, maxFiles int) (*Store, error) {
	if maxFiles <= 0 {
		return nil, fmt.Errorf("spool: max files must be positive, got %d", maxFiles)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create dir %q: %w", ErrIO, dir, err)
	}

	s := &Store{dir: dir, maxFiles: maxFiles}

	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read dir %q: %w", ErrIO, dir, err)
	}
	for _, de := range des {
		if strings.HasPrefix(de.Name(), tempPrefix) {
			_ = os.Remove(filepath.Join(dir, de.Name()))
		}
	}
	return s, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

// MaxFiles returns the current capacity.
func (s *Store) MaxFiles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxFiles
}

// SetMaxFiles changes the capacity. A lower limit takes effect on the next
// Put or SweepExpired.
func (s *Store) SetMaxFiles(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxFiles = n
}

// Put stores item. An existing item with the same identity (capture time and
// source) is replaced, whatever its extension. When the remaining items leave
// no room, the globally oldest are evicted until there is, whether or not
// item is older than them. Write failures are returned wrapped in ErrIO and
// are not retried.
func (s *Store) Put(item Item) (PutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res PutResult
	entries, err := s.scan()
	if err != nil {
		return res, err
	}

	var siblings, others []Entry
	for _, e := range entries {
		if e.Key.Equal(item.Key) {
			siblings = append(siblings, e)
			continue
		}
		others = append(others, e)
	}
	res.Replaced = len(siblings) > 0

	for len(others) >= s.maxFiles {
		oldest := others[0]
		if err := os.Remove(oldest.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return res, fmt.Errorf("%w: evict %q: %w", ErrIO, oldest.Name, err)
		}
		res.Evicted = append(res.Evicted, oldest.Key)
		others = others[1:]
		slog.Warn("spool: full, evicted oldest item",
			"evicted", oldest.Name, "max_files", s.maxFiles)
	}

	name := item.Filename()
	if err := s.write(name, item.Payload); err != nil {
		return res, err
	}

	// Same identity under another extension; the new payload supersedes it.
	for _, e := range siblings {
		if e.Name == name {
			continue
		}
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Error("spool: remove replaced item failed", "name", e.Name, "err", err)
		}
	}
	return res, nil
}

// write stores data under name via a temp file and rename so a crash never
// leaves a truncated item visible to scan.
func (s *Store) write(name string, data []byte) error {
	f, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("%w: create temp: %w", ErrIO, err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: write %q: %w", ErrIO, name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: close %q: %w", ErrIO, name, err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: rename %q: %w", ErrIO, name, err)
	}
	return nil
}

// ListPending returns a snapshot of all items, oldest capture first.
func (s *Store) ListPending() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scan()
}

// Load reads the payload for e.
func (s *Store) Load(e Entry) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(e.Path)
	if err != nil {
		return Item{}, fmt.Errorf("%w: read %q: %w", ErrIO, e.Name, err)
	}
	return Item{Key: e.Key, Ext: e.Ext, Payload: data}, nil
}

// Remove deletes the item identified by key. It returns false, not an error,
// when no such item exists.
func (s *Store) Remove(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.scan()
	if err != nil {
		slog.Error("spool: remove scan failed", "key", key.String(), "err", err)
		return false
	}
	removed := false
	for _, e := range entries {
		if !e.Key.Equal(key) {
			continue
		}
		if err := os.Remove(e.Path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Error("spool: remove failed", "name", e.Name, "err", err)
			}
			continue
		}
		removed = true
	}
	return removed
}

// Count returns the number of items currently held.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.scan()
	if err != nil {
		slog.Error("spool: count scan failed", "err", err)
		return 0
	}
	return len(entries)
}

// SweepExpired removes every item captured more than retention before now,
// then trims the oldest items until the count is within MaxFiles. It returns
// the number removed; per-file failures are aggregated into the error.
func (s *Store) SweepExpired(now time.Time, retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.scan()
	if err != nil {
		return 0, err
	}

	var (
		errs    *multierror.Error
		removed int
		kept    []Entry
	)
	for _, e := range entries {
		if now.Sub(e.Key.CaptureTime) <= retention {
			kept = append(kept, e)
			continue
		}
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = multierror.Append(errs, fmt.Errorf("%w: expire %q: %w", ErrIO, e.Name, err))
			kept = append(kept, e)
			continue
		}
		removed++
	}

	for len(kept) > s.maxFiles {
		e := kept[0]
		kept = kept[1:]
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = multierror.Append(errs, fmt.Errorf("%w: trim %q: %w", ErrIO, e.Name, err))
			continue
		}
		removed++
	}

	return removed, errs.ErrorOrNil()
}

// Clear removes every item and returns how many were removed.
func (s *Store) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.scan()
	if err != nil {
		return 0, err
	}
	var (
		errs    *multierror.Error
		removed int
	)
	for _, e := range entries {
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = multierror.Append(errs, fmt.Errorf("%w: clear %q: %w", ErrIO, e.Name, err))
			continue
		}
		removed++
	}
	return removed, errs.ErrorOrNil()
}

// scan lists items sorted oldest first. Callers must hold s.mu.
func (s *Store) scan() ([]Entry, error) {
	des, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read dir %q: %w", ErrIO, s.dir, err)
	}

	entries := make([]Entry, 0, len(des))
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		e := Entry{
			Name:    name,
			Path:    filepath.Join(s.dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if key, ext, ok := parseName(name); ok {
			e.Key, e.Ext, e.Parsed = key, ext, true
		} else {
			e.Ext = ext
			e.Key = NewKey(info.ModTime(), strings.TrimSuffix(name, ext))
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ti, tj := entries[i].Key.CaptureTime, entries[j].Key.CaptureTime
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}
