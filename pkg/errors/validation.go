package errors

import (
	"strings"
	"unicode"
)

// ValidateLibraryName validates an Arduino library name before it is handed
// to the installer or mapped onto a directory.
//
// Names may contain spaces (they are mapped to underscores on disk) but not
// path separators, traversal sequences or control characters.
func ValidateLibraryName(name string) error {
	if strings.TrimSpace(name) == "" {
		return New(ErrCodeInvalidLibrary, "library name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidLibrary, "library name too long (max 256 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidLibrary, "library name contains invalid control characters")
		}
	}

	for _, pattern := range []string{"..", "/", "\\", "\x00"} {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidLibrary, "library name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// ValidateBoardID checks that a fully qualified board name has at least the
// package, architecture and board segments ("arduino:avr:uno"). Menu options
// may follow as a fourth segment ("arduino:avr:mega:cpu=atmega2560").
func ValidateBoardID(id string) error {
	parts := strings.Split(id, ":")
	if len(parts) < 3 {
		return New(ErrCodeInvalidConfig, "board id %q must look like package:arch:board", id)
	}
	for _, p := range parts[:3] {
		if p == "" {
			return New(ErrCodeInvalidConfig, "board id %q has an empty segment", id)
		}
	}
	return nil
}

// ValidatePath validates a relative path taken from a configuration file.
//
// Validation rules:
//   - Path cannot be empty
//   - No null bytes or control characters
//   - No absolute paths (must be relative to the library)
//   - No path traversal sequences (..)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, "\\") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with a separator)")
	}

	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
		}
	}

	return nil
}
