package library

import (
	"os"
	"path/filepath"

	"github.com/matzehuels/arduci/pkg/errors"
)

// Runtime is the mock Arduino core that host builds compile against. Its
// arduino/ directory mocks the hardware API and unittest/ holds the test
// harness.
type Runtime struct {
	Dir string
}

// ArduinoDir holds the mock hardware headers and sources.
func (r Runtime) ArduinoDir() string { return filepath.Join(r.Dir, "arduino") }

// UnittestDir holds the unit-test support headers and sources.
func (r Runtime) UnittestDir() string { return filepath.Join(r.Dir, "unittest") }

// Validate checks that both runtime directories exist.
func (r Runtime) Validate() error {
	for _, d := range []string{r.ArduinoDir(), r.UnittestDir()} {
		if !isDir(d) {
			return errors.New(errors.ErrCodeInvalidPath, "mock runtime directory %s not found", d)
		}
	}
	return nil
}

// Files returns the runtime's headers and sources, searched recursively
// under ArduinoDir then UnittestDir.
func (r Runtime) Files() (FileSet, error) {
	c := &collector{base: r.Dir, seen: make(map[string]bool)}
	for _, d := range []string{r.ArduinoDir(), r.UnittestDir()} {
		if _, err := os.Stat(d); err != nil {
			continue
		}
		if err := c.walk(d); err != nil {
			return FileSet{}, err
		}
	}
	return c.fs, nil
}
