package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/arduci/pkg/errors"
)

// OverrideFileNames are the file names probed, in order, for an override tier.
var OverrideFileNames = []string{".arduino-ci.yml", ".arduino-ci.yaml"}

// Warning describes a configuration value that was dropped during validation.
type Warning struct {
	Source  string // file the value came from
	Field   string // dotted path, e.g. "platforms.uno.board"
	Message string
}

func (w Warning) String() string {
	if w.Source == "" {
		return fmt.Sprintf("%s: %s", w.Field, w.Message)
	}
	return fmt.Sprintf("%s: %s: %s", w.Source, w.Field, w.Message)
}

// WarningsError promotes warnings to an INVALID_CONFIG error (strict mode).
func WarningsError(warnings []Warning) error {
	if len(warnings) == 0 {
		return nil
	}
	lines := make([]string, len(warnings))
	for i, w := range warnings {
		lines[i] = w.String()
	}
	return errors.New(errors.ErrCodeInvalidConfig, "%d configuration warning(s) in strict mode:\n  %s",
		len(warnings), strings.Join(lines, "\n  "))
}

// =============================================================================
// Schema
// =============================================================================

type kind int

const (
	kindScalar  kind = iota // string, number or bool, read as string
	kindList                // sequence of scalars
	kindMap                 // fixed set of keys
	kindEntries             // arbitrary keys, each value of one schema
)

func (k kind) String() string {
	switch k {
	case kindScalar:
		return "a scalar"
	case kindList:
		return "a list"
	default:
		return "a map"
	}
}

type schema struct {
	kind   kind
	fields map[string]*schema // kindMap
	entry  *schema            // kindEntries
}

var (
	scalar = &schema{kind: kindScalar}
	list   = &schema{kind: kindList}
)

func fields(f map[string]*schema) *schema { return &schema{kind: kindMap, fields: f} }
func entries(e *schema) *schema           { return &schema{kind: kindEntries, entry: e} }

// configSchema is the single source of truth for which keys a tier may hold.
var configSchema = fields(map[string]*schema{
	"packages": entries(fields(map[string]*schema{
		"url": scalar,
	})),
	"platforms": entries(fields(map[string]*schema{
		"board":   scalar,
		"package": scalar,
		"gcc": fields(map[string]*schema{
			"features": list,
			"defines":  list,
			"warnings": list,
			"flags":    list,
		}),
	})),
	"compile": fields(map[string]*schema{
		"platforms": list,
		"libraries": list,
	}),
	"unittest": fields(map[string]*schema{
		"platforms":    list,
		"libraries":    list,
		"compilers":    list,
		"exclude_dirs": list,
		"testfiles": fields(map[string]*schema{
			"select": list,
			"reject": list,
		}),
	}),
})

// checker walks a document against configSchema, producing a filtered copy
// that contains only well-shaped values.
type checker struct {
	source   string
	warnings []Warning
}

func (c *checker) warn(field, format string, args ...any) {
	c.warnings = append(c.warnings, Warning{Source: c.source, Field: field, Message: fmt.Sprintf(format, args...)})
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

// check returns the filtered node or nil when the value must be dropped.
// Null values are dropped silently; callers handle null entries themselves.
func (c *checker) check(s *schema, n *yaml.Node, path string) *yaml.Node {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if isNull(n) {
		return nil
	}
	switch s.kind {
	case kindScalar:
		if n.Kind != yaml.ScalarNode {
			c.warn(path, "expected %s, got %s; ignored", s.kind, describe(n))
			return nil
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n.Value}

	case kindList:
		if n.Kind != yaml.SequenceNode {
			c.warn(path, "expected %s, got %s; ignored", s.kind, describe(n))
			return nil
		}
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for i, item := range n.Content {
			if item.Kind == yaml.AliasNode {
				item = item.Alias
			}
			if item.Kind != yaml.ScalarNode || isNull(item) {
				c.warn(fmt.Sprintf("%s[%d]", path, i), "list elements must be scalars; got %s; ignored", describe(item))
				continue
			}
			out.Content = append(out.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item.Value})
		}
		return out

	case kindMap, kindEntries:
		if n.Kind != yaml.MappingNode {
			c.warn(path, "expected %s, got %s; ignored", s.kind, describe(n))
			return nil
		}
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i].Value, n.Content[i+1]
			sub := s.entry
			if s.kind == kindMap {
				var ok bool
				if sub, ok = s.fields[key]; !ok {
					c.warn(join(path, key), "unknown key; ignored")
					continue
				}
			}
			if v := c.check(sub, val, join(path, key)); v != nil {
				out.Content = append(out.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, v)
			}
		}
		return out
	}
	return nil
}

func describe(n *yaml.Node) string {
	switch n.Kind {
	case yaml.SequenceNode:
		return "a list"
	case yaml.MappingNode:
		return "a map"
	case yaml.ScalarNode:
		if isNull(n) {
			return "null"
		}
		return fmt.Sprintf("scalar %q", n.Value)
	}
	return "an unsupported value"
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// nullEntries returns the names of entries under section whose value is null.
func nullEntries(root *yaml.Node, section string) []string {
	var names []string
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != section || root.Content[i+1].Kind != yaml.MappingNode {
			continue
		}
		m := root.Content[i+1]
		for j := 0; j+1 < len(m.Content); j += 2 {
			if isNull(m.Content[j+1]) {
				names = append(names, m.Content[j].Value)
			}
		}
	}
	return names
}

// =============================================================================
// Value checks
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("boardid", func(fl validator.FieldLevel) bool {
		return errors.ValidateBoardID(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("relpath", func(fl validator.FieldLevel) bool {
		return errors.ValidatePath(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("glob", func(fl validator.FieldLevel) bool {
		return doublestar.ValidatePattern(fl.Field().String())
	})
	return v
}

// checkValues drops decoded values whose content is invalid even though
// their shape is right.
func (c *checker) checkValues(cfg *Config) {
	for _, name := range sortedKeys(cfg.Packages) {
		p := cfg.Packages[name]
		if p == nil {
			continue
		}
		if err := validate.Struct(p); err != nil {
			c.warn("packages."+name+".url", "%q is not a valid URL; ignored", p.URL)
			p.URL = ""
		}
	}
	for _, name := range sortedKeys(cfg.Platforms) {
		p := cfg.Platforms[name]
		if p == nil {
			continue
		}
		if err := validate.Struct(p); err != nil {
			c.warn("platforms."+name+".board", "%q is not a board id (package:arch:board); ignored", p.Board)
			p.Board = ""
		}
	}
	cfg.Unittest.ExcludeDirs = c.checkList("unittest.exclude_dirs", cfg.Unittest.ExcludeDirs, "relpath",
		"must be a relative path inside the library")
	if tf := cfg.Unittest.TestFiles; tf != nil {
		tf.Select = c.checkList("unittest.testfiles.select", tf.Select, "glob", "is not a valid glob")
		tf.Reject = c.checkList("unittest.testfiles.reject", tf.Reject, "glob", "is not a valid glob")
	}
}

func (c *checker) checkList(field string, values []string, tag, problem string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for i, v := range values {
		if err := validate.Var(v, tag); err != nil {
			c.warn(fmt.Sprintf("%s[%d]", field, i), "%q %s; ignored", v, problem)
			continue
		}
		out = append(out, v)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// Loading
// =============================================================================

// Parse validates one configuration tier. Malformed values become warnings;
// only unparseable YAML is an error.
func Parse(data []byte, source string) (*Config, []Warning, error) {
	cfg := newConfig()
	if source != "" {
		cfg.Sources = []string{source}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", displayName(source))
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return cfg, nil, nil
	}
	root := doc.Content[0]

	c := &checker{source: source}
	if isNull(root) {
		return cfg, nil, nil
	}
	filtered := c.check(configSchema, root, "")
	if filtered != nil {
		if err := filtered.Decode(cfg); err != nil {
			return nil, c.warnings, errors.Wrap(errors.ErrCodeInternal, err, "decode %s", displayName(source))
		}
		if cfg.Packages == nil {
			cfg.Packages = make(map[string]*Package)
		}
		if cfg.Platforms == nil {
			cfg.Platforms = make(map[string]*Platform)
		}
		for _, name := range nullEntries(root, "packages") {
			cfg.Packages[name] = nil
		}
		for _, name := range nullEntries(root, "platforms") {
			cfg.Platforms[name] = nil
		}
		c.checkValues(cfg)
	}
	return cfg, c.warnings, nil
}

// Load reads and validates one configuration file.
func Load(path string) (*Config, []Warning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", path)
	}
	return Parse(data, path)
}

// FindOverrideFile returns the override file in dir, or "" when none exists.
func FindOverrideFile(dir string) string {
	for _, name := range OverrideFileNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// WithOverrideFile layers the override file found in dir on top of c.
// When dir has no override file, c is returned unchanged.
func (c *Config) WithOverrideFile(dir string) (*Config, []Warning, error) {
	path := FindOverrideFile(dir)
	if path == "" {
		return c, nil, nil
	}
	override, warnings, err := Load(path)
	if err != nil {
		return nil, warnings, err
	}
	return Merge(c, override), warnings, nil
}

// Dump renders the configuration as YAML.
func (c *Config) Dump() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode config")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode config")
	}
	return buf.Bytes(), nil
}

func displayName(source string) string {
	if source == "" {
		return "configuration"
	}
	return source
}
