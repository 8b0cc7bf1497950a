package snapshot

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var ErrInvalidName = errors.New("snapshot name does not match <prefix>-pickle-<generation>.<ext>")

const pickleMarker = "-pickle-"

var namePattern = regexp.MustCompile(`^(.+)-pickle-(\d+)\.([A-Za-z0-9]+)$`)

// Name is a parsed snapshot file name.
type Name struct {
	Prefix     string
	Generation int
	Ext        string
}

// ParseName splits "log-2019-11-15-14h-22m-30s-pickle-21.json" into its run
// prefix, generation index and extension.
func ParseName(filename string) (Name, error) {
	match := namePattern.FindStringSubmatch(filename)
	if match == nil {
		return Name{}, fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}
	generation, err := strconv.Atoi(match[2])
	if err != nil {
		return Name{}, fmt.Errorf("%w: %q: %v", ErrInvalidName, filename, err)
	}
	return Name{Prefix: match[1], Generation: generation, Ext: match[3]}, nil
}

func (n Name) String() string {
	return FileName(n.Prefix, n.Generation, n.Ext)
}

func FileName(prefix string, generation int, ext string) string {
	return fmt.Sprintf("%s-pickle-%d.%s", prefix, generation, normalizeExt(ext))
}

// Discover lists the regular files in dir that carry the extension and the
// "-pickle-" marker, sorted by name. Reports and summaries written next to
// the snapshots are not picked up.
func Discover(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	suffix := "." + normalizeExt(ext)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if strings.HasSuffix(entry.Name(), suffix) && strings.Contains(entry.Name(), pickleMarker) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func normalizeExt(ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		return DefaultExt
	}
	return ext
}
