package core

import (
	"bytes"
	_ "embed"
	"errors"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"cmsstore/pkg/domain"
)

// Processor categories recognised by the default configuration.
const (
	CategoryLocal      = "local"
	CategoryRemote     = "remote"
	CategoryWebservice = "webservice"
)

const (
	nodeConfigRoot = "PSXProcessorConfig"
	nodeComponent  = "component"
	nodeProcessor  = "processor"
	nodeProperty   = "property"
)

//go:embed processors.xml
var defaultConfigXML []byte

// Setting is one named processor property. Value holds the text; Element
// holds the first nested element when the property is structured.
type Setting struct {
	Name    string
	Value   string
	Element *domain.Element
}

// PropertyBag is the ordered set of settings configured for a processor.
// Lookups are case-insensitive.
type PropertyBag struct {
	settings []Setting
}

// NewPropertyBag builds a bag from name/value pairs.
func NewPropertyBag(pairs ...string) PropertyBag {
	var b PropertyBag
	for i := 0; i+1 < len(pairs); i += 2 {
		b.settings = append(b.settings, Setting{Name: pairs[i], Value: pairs[i+1]})
	}
	return b
}

func (b PropertyBag) find(name string) (Setting, bool) {
	for _, s := range b.settings {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Setting{}, false
}

// Get returns the text value of name.
func (b PropertyBag) Get(name string) (string, bool) {
	s, ok := b.find(name)
	return s.Value, ok
}

// String returns the value of name or def when absent or empty.
func (b PropertyBag) String(name, def string) string {
	if v, ok := b.Get(name); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// Bool parses name as a boolean, falling back to def.
func (b PropertyBag) Bool(name string, def bool) bool {
	v, ok := b.Get(name)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "y":
		return true
	case "no", "n":
		return false
	}
	if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
		return parsed
	}
	return def
}

// Element returns the nested element configured for name, if any.
func (b PropertyBag) Element(name string) *domain.Element {
	s, _ := b.find(name)
	return s.Element
}

// Names lists setting names in configuration order.
func (b PropertyBag) Names() []string {
	out := make([]string, len(b.settings))
	for i, s := range b.settings {
		out[i] = s.Name
	}
	return out
}

// Len returns the number of settings.
func (b PropertyBag) Len() int { return len(b.settings) }

// ProcessorDef binds a component type to an implementation within a category.
type ProcessorDef struct {
	Type       domain.ComponentType
	Category   string
	Impl       string
	Properties PropertyBag
}

// Config is a parsed processor configuration document.
type Config struct {
	defs map[string]ProcessorDef
}

func defKey(t domain.ComponentType, category string) string {
	return strings.ToLower(category) + "\x00" + strings.ToLower(string(t))
}

// Lookup returns the definition for (component type, category). Both are
// matched case-insensitively.
func (c *Config) Lookup(t domain.ComponentType, category string) (ProcessorDef, bool) {
	d, ok := c.defs[defKey(t, category)]
	return d, ok
}

// Definitions returns the definitions of one category ordered by type.
func (c *Config) Definitions(category string) []ProcessorDef {
	var out []ProcessorDef
	for _, d := range c.defs {
		if strings.EqualFold(d.Category, category) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Categories lists the distinct categories present.
func (c *Config) Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, d := range c.defs {
		k := strings.ToLower(d.Category)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d.Category)
	}
	sort.Strings(out)
	return out
}

// LoadConfig parses a configuration document. A duplicate (category,
// component type) pair is a duplicate-processor fault.
func LoadConfig(r io.Reader) (*Config, error) {
	if r == nil {
		return nil, domain.NewFault(domain.ReasonConfigMissing, "LoadConfig", "no configuration supplied")
	}
	root, err := domain.DecodeXML(r)
	if err != nil {
		return nil, &domain.Fault{Reason: domain.ReasonConfigMalformed, Op: "LoadConfig", Message: "parse configuration", Err: err}
	}
	return configFromElement(root)
}

// LoadConfigFile reads the configuration at path.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied configuration path
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &domain.Fault{Reason: domain.ReasonConfigMissing, Op: "LoadConfigFile", Message: path, Err: err}
	}
	if err != nil {
		return nil, &domain.Fault{Reason: domain.ReasonConfigMissing, Op: "LoadConfigFile", Message: "open " + path, Err: err}
	}
	defer func() { _ = f.Close() }()
	return LoadConfig(f)
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() (*Config, error) {
	return LoadConfig(bytes.NewReader(defaultConfigXML))
}

func configFromElement(root *domain.Element) (*Config, error) {
	const op = "LoadConfig"
	if root.Name != nodeConfigRoot {
		return nil, domain.NewFault(domain.ReasonConfigMalformed, op, "root element must be %s, got %s", nodeConfigRoot, root.Name)
	}
	cfg := &Config{defs: make(map[string]ProcessorDef)}
	for _, comp := range root.ChildrenNamed(nodeComponent) {
		typ, _ := comp.Attr("type")
		if strings.TrimSpace(typ) == "" {
			return nil, domain.NewFault(domain.ReasonConfigMalformed, op, "component entry without type")
		}
		for _, proc := range comp.ChildrenNamed(nodeProcessor) {
			category, _ := proc.Attr("category")
			impl, _ := proc.Attr("impl")
			if strings.TrimSpace(category) == "" || strings.TrimSpace(impl) == "" {
				return nil, domain.NewFault(domain.ReasonConfigMalformed, op, "processor for %s needs category and impl", typ)
			}
			def := ProcessorDef{
				Type:     domain.ComponentType(strings.TrimSpace(typ)),
				Category: strings.TrimSpace(category),
				Impl:     strings.TrimSpace(impl),
			}
			for _, prop := range proc.ChildrenNamed(nodeProperty) {
				name, _ := prop.Attr("name")
				if strings.TrimSpace(name) == "" {
					return nil, domain.NewFault(domain.ReasonConfigMalformed, op, "unnamed property on %s/%s", category, typ)
				}
				s := Setting{Name: name, Value: prop.Text}
				if len(prop.Children) > 0 {
					s.Element = prop.Children[0].Clone()
				}
				def.Properties.settings = append(def.Properties.settings, s)
			}
			k := defKey(def.Type, def.Category)
			if _, dup := cfg.defs[k]; dup {
				return nil, domain.NewFault(domain.ReasonDuplicateProcessor, op, "duplicate processor for category %s and type %s", category, typ)
			}
			cfg.defs[k] = def
		}
	}
	return cfg, nil
}
