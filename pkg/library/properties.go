package library

import (
	"os"
	"strings"

	"github.com/magiconair/properties"

	"github.com/matzehuels/arduci/pkg/errors"
)

// Properties is the parsed content of library.properties.
//
// List-valued keys (architectures, depends, includes) are comma separated
// in the file and trimmed here. Version constraints on depends entries,
// e.g. "Servo (>=1.1.0)", are dropped: only the name is kept.
type Properties struct {
	Name          string
	Version       string
	Author        string
	Maintainer    string
	Sentence      string
	Paragraph     string
	Category      string
	URL           string
	Architectures []string
	Depends       []string
	Includes      []string
	DotALinkage   bool
	Precompiled   string
	LDFlags       string
}

// AllArchitectures is the wildcard architecture.
const AllArchitectures = "*"

// SupportsAll reports whether the library declares the wildcard architecture.
func (p *Properties) SupportsAll() bool {
	for _, a := range p.Architectures {
		if a == AllArchitectures {
			return true
		}
	}
	return false
}

// LoadProperties reads a library.properties file. A missing file yields
// nil, nil: legacy libraries are not required to have one.
func LoadProperties(path string) (*Properties, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLibrary, err, "read %s", path)
	}
	props, err := ParseProperties(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLibrary, err, "parse %s", path)
	}
	return props, nil
}

// ParseProperties parses library.properties content.
func ParseProperties(data []byte) (*Properties, error) {
	// Values such as ldflags may legitimately contain "${...}".
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	raw, err := loader.LoadBytes(data)
	if err != nil {
		return nil, err
	}

	get := func(key string) string { return strings.TrimSpace(raw.GetString(key, "")) }

	p := &Properties{
		Name:          get("name"),
		Version:       get("version"),
		Author:        get("author"),
		Maintainer:    get("maintainer"),
		Sentence:      get("sentence"),
		Paragraph:     get("paragraph"),
		Category:      get("category"),
		URL:           get("url"),
		Architectures: splitList(get("architectures")),
		Includes:      splitList(get("includes")),
		DotALinkage:   strings.EqualFold(get("dot_a_linkage"), "true"),
		Precompiled:   get("precompiled"),
		LDFlags:       get("ldflags"),
	}
	for _, dep := range splitList(get("depends")) {
		if name := stripConstraint(dep); name != "" {
			p.Depends = append(p.Depends, name)
		}
	}
	return p, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func stripConstraint(dep string) string {
	if i := strings.Index(dep, "("); i >= 0 {
		dep = dep[:i]
	}
	return strings.TrimSpace(dep)
}
