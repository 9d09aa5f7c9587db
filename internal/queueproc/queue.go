package queueproc

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"relay/internal/fileutil"
)

// QuarantineLayout is the timestamp format appended to quarantined items.
const QuarantineLayout = "20060102150405"

const quarantineMarker = ".ERROR."

var quarantinePattern = regexp.MustCompile(`\.ERROR\.\d{14}$`)

// IsQuarantined reports whether name is a quarantined item.
func IsQuarantined(name string) bool {
	return quarantinePattern.MatchString(name)
}

// QuarantineName returns name.ERROR.<timestamp> for the given instant.
func QuarantineName(name string, at time.Time) string {
	return name + quarantineMarker + at.Format(QuarantineLayout)
}

type queued struct {
	path    string
	modTime time.Time
}

// Scan lists the pending items of dir, oldest modification time first.
// Directories, quarantined items and hidden temporary files are excluded.
func Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	items := make([]queued, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, fileutil.TempPrefix) || IsQuarantined(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		items = append(items, queued{path: filepath.Join(dir, name), modTime: info.ModTime()})
	}
	slices.SortStableFunc(items, func(a, b queued) int {
		if c := a.modTime.Compare(b.modTime); c != 0 {
			return c
		}
		return strings.Compare(a.path, b.path)
	})
	paths := make([]string, len(items))
	for i, item := range items {
		paths[i] = item.path
	}
	return paths, nil
}

// Quarantined lists the quarantined items of dir in name order.
func Quarantined(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && IsQuarantined(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// quarantine renames path to its quarantine name, moving the timestamp
// forward one second at a time until the name is unused.
func quarantine(path string, at time.Time) (string, error) {
	for {
		target := QuarantineName(path, at)
		_, err := os.Lstat(target)
		if errors.Is(err, fs.ErrNotExist) {
			if err := os.Rename(path, target); err != nil {
				return "", err
			}
			return target, nil
		}
		if err != nil {
			return "", err
		}
		at = at.Add(time.Second)
	}
}

// handoffName returns a collision resistant downstream queue name.
func handoffName(at time.Time) string {
	return fmt.Sprintf("%d.%s", at.UnixMilli(), uuid.NewString())
}

// handoff moves src into dir under a fresh name and returns the new path.
func handoff(src, dir string, now func() time.Time) (string, error) {
	for {
		target := filepath.Join(dir, handoffName(now()))
		_, err := os.Lstat(target)
		if errors.Is(err, fs.ErrNotExist) {
			if err := fileutil.MoveFile(src, target); err != nil {
				return "", err
			}
			return target, nil
		}
		if err != nil {
			return "", err
		}
	}
}

func writeSpeed(path string, processed int64, elapsed time.Duration) error {
	return os.WriteFile(path, fmt.Appendf(nil, "%d %d", processed, elapsed.Nanoseconds()), 0o644)
}

// ReadSpeed parses a speed file written by a processor.
func ReadSpeed(path string) (processed int64, elapsed time.Duration, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	var nanos int64
	if _, err := fmt.Sscanf(string(data), "%d %d", &processed, &nanos); err != nil {
		return 0, 0, fmt.Errorf("parse speed file %s: %w", path, err)
	}
	return processed, time.Duration(nanos), nil
}
