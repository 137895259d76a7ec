package config

import (
	_ "embed"
	"sync"
)

//go:embed default.yaml
var defaultYAML []byte

var (
	defaultOnce   sync.Once
	defaultConfig *Config
)

// Default returns a fresh copy of the embedded tool defaults.
//
// The embedded file is validated once; a broken default tier is a
// programming error and panics.
func Default() *Config {
	defaultOnce.Do(func() {
		cfg, warnings, err := Parse(defaultYAML, "")
		if err != nil {
			panic("config: embedded defaults: " + err.Error())
		}
		if len(warnings) > 0 {
			panic("config: embedded defaults: " + warnings[0].String())
		}
		cfg.IsDefault = true
		defaultConfig = cfg
	})
	return defaultConfig.Clone()
}
