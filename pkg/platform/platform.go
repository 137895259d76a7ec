// Package platform chooses which configured platforms a library is built
// and tested on.
//
// The decision combines the platforms a configuration asks for with the
// architectures a library declares in its library.properties:
//
//  1. no properties, or no architectures declared: the desired list as is
//  2. the wildcard architecture "*": the desired list as is
//  3. otherwise, supported = every configured platform whose board
//     architecture the library declares, and then
//     - with the unmodified tool defaults: supported, sorted
//     - with a project or example override: desired ∩ supported, in
//     desired order
//
// An override only ever narrows by architecture; it is never widened.
// Every name returned must be defined, otherwise the run stops with an
// UNKNOWN_PLATFORM error.
package platform

import (
	"slices"

	"github.com/matzehuels/arduci/pkg/config"
	"github.com/matzehuels/arduci/pkg/errors"
	"github.com/matzehuels/arduci/pkg/library"
)

// Select returns the platforms to exercise for a library.
func Select(cfg *config.Config, desired []string, props *library.Properties) ([]string, error) {
	if props == nil || len(props.Architectures) == 0 || props.SupportsAll() {
		return assertDefined(cfg, desired)
	}

	var supported []string
	for _, name := range cfg.PlatformNames() {
		if slices.Contains(props.Architectures, cfg.Architecture(name)) {
			supported = append(supported, name)
		}
	}
	if cfg.IsDefault {
		return supported, nil
	}

	var out []string
	for _, name := range desired {
		if slices.Contains(supported, name) && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return assertDefined(cfg, out)
}

func assertDefined(cfg *config.Config, names []string) ([]string, error) {
	for _, name := range names {
		if !cfg.HasPlatform(name) {
			return nil, errors.New(errors.ErrCodeUnknownPlatform,
				"platform %q is not defined in any configuration tier (known: %v)", name, cfg.PlatformNames())
		}
	}
	return slices.Clone(names), nil
}
