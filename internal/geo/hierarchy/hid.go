package hierarchy

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidHID = errors.New("invalid hierarchical id")

// HID is a parsed hierarchical id such as "ESP.1.2": an ISO3 country code
// followed by one segment per level below the country.
type HID struct {
	Country  string
	Segments []string
}

func ParseHID(s string) (HID, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts[0]) != 3 || !isLetters(parts[0]) {
		return HID{}, fmt.Errorf("%w: %q", ErrInvalidHID, s)
	}
	for _, p := range parts[1:] {
		if p == "" {
			return HID{}, fmt.Errorf("%w: %q", ErrInvalidHID, s)
		}
	}
	return HID{Country: strings.ToUpper(parts[0]), Segments: parts[1:]}, nil
}

// Level is 1 for a country, 2 for a region, 3 for a sub-region.
func (h HID) Level() int { return 1 + len(h.Segments) }

func (h HID) String() string {
	if len(h.Segments) == 0 {
		return h.Country
	}
	return h.Country + "." + strings.Join(h.Segments, ".")
}

func (h HID) Parent() (HID, bool) {
	if len(h.Segments) == 0 {
		return HID{}, false
	}
	return HID{Country: h.Country, Segments: h.Segments[:len(h.Segments)-1]}, true
}

func (h HID) Child(seg string) HID {
	segs := make([]string, len(h.Segments), len(h.Segments)+1)
	copy(segs, h.Segments)
	return HID{Country: h.Country, Segments: append(segs, seg)}
}

// LevelOf counts the levels of a well-formed hierarchical id string.
func LevelOf(hid string) int {
	return strings.Count(hid, ".") + 1
}

// ParentOf returns hid without its last segment, or "" for a country.
func ParentOf(hid string) string {
	i := strings.LastIndexByte(hid, '.')
	if i < 0 {
		return ""
	}
	return hid[:i]
}

// CountryOf returns the upper-cased first segment.
func CountryOf(hid string) string {
	if i := strings.IndexByte(hid, '.'); i >= 0 {
		hid = hid[:i]
	}
	return strings.ToUpper(hid)
}

// Join builds "CC.local".
func Join(country, local string) string {
	return strings.ToUpper(country) + "." + local
}

// LocalCode normalises a code read from polygon properties to the part of a
// hierarchical id below the country: a leading "ESP." is dropped, as is a
// GADM version suffix such as "_1". "ESP.1.2_1" becomes "1.2"; "7" stays "7".
func LocalCode(country, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, ".")
	if len(parts) > 1 && strings.EqualFold(parts[0], country) {
		parts = parts[1:]
	}
	last := parts[len(parts)-1]
	if i := strings.LastIndexByte(last, '_'); i > 0 && isDigits(last[i+1:]) {
		parts[len(parts)-1] = last[:i]
	}
	return strings.Join(parts, ".")
}

// ChildOf places a local code read from a region's sub-region file under
// that region. Single-segment codes are relative to the parent; longer codes
// are already relative to the country.
func ChildOf(parent, local string) string {
	if strings.Contains(local, ".") {
		return Join(CountryOf(parent), local)
	}
	return parent + "." + local
}

func isLetters(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return s != ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
