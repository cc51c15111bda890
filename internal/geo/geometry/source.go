package geometry

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
)

// WorldKey identifies the world-level country outlines.
const WorldKey = "@world"

// DefaultExtensions are tried in order when a country or region file is opened.
var DefaultExtensions = []string{".topojson", ".geojson", ".json"}

var (
	keyPattern     = regexp.MustCompile(`^[A-Z]{3}(\.[0-9A-Za-z_]+)*$`)
	countryPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Source opens raw boundary files by key. A missing file must be reported
// with an error matching fs.ErrNotExist.
type Source interface {
	Open(key string) (io.ReadCloser, error)
}

// ValidKey reports whether key can name a boundary file.
func ValidKey(key string) bool {
	return key == WorldKey || keyPattern.MatchString(key)
}

// FSSource lays boundary files out the way the static bundle does:
//
//	<World>                          world outlines
//	<CountryDir>/ESP/ESP.topojson    regions of ESP
//	<CountryDir>/ESP/ESP.1.topojson  sub-regions of ESP.1
type FSSource struct {
	FS         fs.FS
	World      string
	CountryDir string
	Extensions []string
}

// NewDirSource serves files from a directory on disk.
func NewDirSource(root, world, countryDir string) FSSource {
	return FSSource{
		FS:         os.DirFS(root),
		World:      world,
		CountryDir: countryDir,
	}
}

func (s FSSource) Open(key string) (io.ReadCloser, error) {
	if key == WorldKey {
		return s.FS.Open(s.World)
	}
	if !keyPattern.MatchString(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	for _, ext := range s.extensions() {
		f, err := s.FS.Open(s.filePath(key, ext))
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: %w", key, fs.ErrNotExist)
}

// Countries lists the ISO3 codes that have a directory under CountryDir.
func (s FSSource) Countries() ([]string, error) {
	dir := s.CountryDir
	if dir == "" {
		dir = "."
	}
	entries, err := fs.ReadDir(s.FS, dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && countryPattern.MatchString(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Regions lists the region keys (e.g. "ESP.1") that have their own
// sub-region file inside a country directory.
func (s FSSource) Regions(country string) ([]string, error) {
	entries, err := fs.ReadDir(s.FS, path.Join(s.CountryDir, country))
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		for _, ext := range s.extensions() {
			if !strings.HasSuffix(name, ext) {
				continue
			}
			key := strings.TrimSuffix(name, ext)
			if key != country && strings.HasPrefix(key, country+".") && keyPattern.MatchString(key) && !seen[key] {
				seen[key] = true
				out = append(out, key)
			}
			break
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s FSSource) filePath(key, ext string) string {
	return path.Join(s.CountryDir, key[:3], key+ext)
}

func (s FSSource) extensions() []string {
	if len(s.Extensions) > 0 {
		return s.Extensions
	}
	return DefaultExtensions
}
