package locate

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/paulmach/orb/geojson"
)

// Extractor reads one value out of a feature's properties.
type Extractor func(props geojson.Properties) (string, bool)

// Field looks a property up by name, ignoring case. Blank values and the
// Natural Earth placeholder "-99" count as absent; numbers are formatted
// without exponent.
func Field(name string) Extractor {
	return func(props geojson.Properties) (string, bool) {
		v, ok := lookup(props, name)
		if !ok {
			return "", false
		}
		return normalize(v)
	}
}

// Chain tries extractors in order and returns the first usable value.
type Chain []Extractor

func ChainOf(names ...string) Chain {
	c := make(Chain, 0, len(names))
	for _, n := range names {
		c = append(c, Field(n))
	}
	return c
}

func (c Chain) Extract(props geojson.Properties) (string, bool) {
	for _, ex := range c {
		if v, ok := ex(props); ok {
			return v, true
		}
	}
	return "", false
}

func lookup(props geojson.Properties, name string) (any, bool) {
	if v, ok := props[name]; ok {
		return v, true
	}
	if v, ok := props[strings.ToUpper(name)]; ok {
		return v, true
	}
	if v, ok := props[strings.ToLower(name)]; ok {
		return v, true
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, name) {
			return props[k], true
		}
	}
	return nil, false
}

func normalize(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		s = t.String()
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	default:
		return "", false
	}
	if s == "" || s == "-99" {
		return "", false
	}
	return s, true
}

// LevelFields names the id and name properties of one polygon level.
type LevelFields struct {
	ID   []string `yaml:"id"`
	Name []string `yaml:"name"`
}

// Fields is the property precedence used to read boundary files.
type Fields struct {
	Country     []string    `yaml:"country"`
	CountryName []string    `yaml:"country_name"`
	Region      LevelFields `yaml:"region"`
	SubRegion   LevelFields `yaml:"subregion"`
}

func DefaultFields() Fields {
	return Fields{
		Country:     []string{"ISO3_CODE", "ISO_A3", "ADM0_A3", "ISO_A3_EH"},
		CountryName: []string{"NAME", "ADMIN", "NAME_LONG", "NAME_0"},
		Region: LevelFields{
			ID:   []string{"ID_1", "GID_1"},
			Name: []string{"NAME_1", "NAME"},
		},
		SubRegion: LevelFields{
			ID:   []string{"ID_2", "GID_2"},
			Name: []string{"NAME_2", "NAME"},
		},
	}
}

// LoadFieldsFile reads a YAML override of DefaultFields. Lists missing
// from the file keep their defaults; an empty path returns the defaults.
func LoadFieldsFile(path string) (Fields, error) {
	f := DefaultFields()
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read fields file: %w", err)
	}

	var override Fields
	if err := yaml.Unmarshal(data, &override); err != nil {
		return f, fmt.Errorf("parse fields file %s: %w", path, err)
	}
	pick(&f.Country, override.Country)
	pick(&f.CountryName, override.CountryName)
	pick(&f.Region.ID, override.Region.ID)
	pick(&f.Region.Name, override.Region.Name)
	pick(&f.SubRegion.ID, override.SubRegion.ID)
	pick(&f.SubRegion.Name, override.SubRegion.Name)
	return f, nil
}

func pick(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}
