// ABOUTME: On-disk archive of finished audio containers
// ABOUTME: Names live streams by timestamp and lists containers newest first
package archive

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Deploy-u/Audio-Recording-System/pkg/audio"
	"github.com/Deploy-u/Audio-Recording-System/pkg/audio/wav"
	"github.com/jonboulle/clockwork"
)

const (
	// Extension of every archived container
	Extension = ".wav"

	// LivePrefix starts the name of every live stream file
	LivePrefix = "livestream_"

	// timestampLayout is ISO 8601 in UTC with milliseconds
	timestampLayout = "2006-01-02T15:04:05.000Z"

	maxNameAttempts = 100
)

// fileSafe turns ISO 8601 timestamps into portable file name fragments
var fileSafe = strings.NewReplacer(":", "-", ".", "-")

// Record describes a finished container
type Record struct {
	Name     string  `json:"name"`
	URL      string  `json:"url"`
	Size     int64   `json:"size"`
	Duration float64 `json:"duration_seconds"`
}

// Archive is a directory of containers served under a URL prefix
type Archive struct {
	dir       string
	urlPrefix string
	clock     clockwork.Clock
}

// New creates an archive rooted at dir, creating the directory if needed
func New(dir, urlPrefix string, clock clockwork.Clock) (*Archive, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir %s: %w", dir, err)
	}
	return &Archive{
		dir:       dir,
		urlPrefix: strings.TrimSuffix(urlPrefix, "/"),
		clock:     clock,
	}, nil
}

// Dir returns the archive directory
func (a *Archive) Dir() string {
	return a.dir
}

// LiveName returns the file name for a stream started at t
func LiveName(t time.Time) string {
	return LivePrefix + fileSafe.Replace(t.UTC().Format(timestampLayout)) + Extension
}

// CreateLive opens a container for a new live stream named after the
// current time. Streams starting in the same millisecond get a zero padded
// "_NNN" suffix, which sorts after the unsuffixed name and in creation order.
func (a *Archive) CreateLive(format audio.Format) (*wav.Writer, error) {
	base := strings.TrimSuffix(LiveName(a.clock.Now()), Extension)

	var lastErr error
	for i := 0; i < maxNameAttempts; i++ {
		name := base + Extension
		if i > 0 {
			name = fmt.Sprintf("%s_%03d%s", base, i, Extension)
		}

		w, err := wav.Create(filepath.Join(a.dir, name), format)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// Path returns the on-disk path of a container name inside the archive.
// Names containing path separators are rejected.
func (a *Archive) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(a.dir, name), nil
}

// List returns every container in the archive, newest first. Timestamped
// names make reverse lexicographic order chronological.
func (a *Archive) List() ([]Record, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive dir %s: %w", a.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	records := make([]Record, 0, len(names))
	for _, name := range names {
		p := filepath.Join(a.dir, name)
		fi, err := os.Stat(p)
		if err != nil {
			// Removed between ReadDir and Stat
			continue
		}

		rec := Record{
			Name: name,
			URL:  path.Join(a.urlPrefix, name),
			Size: fi.Size(),
		}
		if info, err := wav.ReadFileInfo(p); err == nil {
			rec.Duration = info.Duration().Seconds()
		}
		records = append(records, rec)
	}
	return records, nil
}
