// Package moduleyaml reads module configurations from module.yaml files.
//
// Each top-level key declares a configuration, written
//
//	name > parent1, parent2 *default
//
// except the optional `default` section whose deps and force list every
// configuration inherits. A section may hold `deps` (a list of
// `name@treeish/configuration` references, `-name` removals and one
// `force: branch1,branch2` item) and `build`.
package moduleyaml

import (
	"fmt"
	"strings"

	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/modconfig"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file expected at the root of every module
const FileName = "module.yaml"

const (
	defaultSection = "default"
	defaultMarker  = "*default"
)

// ParseError reports a malformed module file
type ParseError struct {
	Module string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s/%s:%d: %s", e.Module, FileName, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s/%s: %s", e.Module, FileName, e.Reason)
}

// Parse builds the configuration model of module from module.yaml content
func Parse(module string, data []byte) (*modconfig.Model, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Module: module, Reason: err.Error()}
	}

	// Empty file
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return modconfig.NewModel(module, nil, nil)
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{Module: module, Line: root.Line, Reason: "expected a mapping of configurations"}
	}

	var (
		defaults *modconfig.Declaration
		decls    []modconfig.Declaration
	)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, body := root.Content[i], root.Content[i+1]

		if keyNode.Value == defaultSection {
			d := modconfig.Declaration{Name: defaultSection}
			if err := parseBody(module, body, &d); err != nil {
				return nil, err
			}
			defaults = &d
			continue
		}

		d, err := ParseHeader(keyNode.Value)
		if err != nil {
			return nil, &ParseError{Module: module, Line: keyNode.Line, Reason: err.Error()}
		}
		if err := parseBody(module, body, &d); err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}

	// A file holding only the default section describes the conventional configuration
	if len(decls) == 0 && defaults != nil {
		decls = append(decls, modconfig.Declaration{Name: modconfig.DefaultConfiguration})
	}

	return modconfig.NewModel(module, defaults, decls)
}

// ParseHeader parses a section key `name > parent1, parent2 *default`
func ParseHeader(header string) (modconfig.Declaration, error) {
	var d modconfig.Declaration

	h := strings.TrimSpace(header)
	if strings.HasSuffix(h, defaultMarker) {
		d.IsDefault = true
		h = strings.TrimSpace(strings.TrimSuffix(h, defaultMarker))
	}

	name, parents, hasParents := strings.Cut(h, ">")
	d.Name = strings.TrimSpace(name)
	if d.Name == "" || strings.ContainsAny(d.Name, " \t,") {
		return d, fmt.Errorf("invalid configuration name in %q", header)
	}

	if hasParents {
		for _, p := range strings.Split(parents, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				return d, fmt.Errorf("empty parent configuration in %q", header)
			}
			d.Parents = append(d.Parents, p)
		}
	}
	return d, nil
}

func parseBody(module string, body *yaml.Node, d *modconfig.Declaration) error {
	if body.Kind == yaml.ScalarNode && body.Tag == "!!null" {
		return nil
	}
	if body.Kind != yaml.MappingNode {
		return &ParseError{Module: module, Line: body.Line, Reason: fmt.Sprintf("section %s must be a mapping", d.Name)}
	}

	for i := 0; i+1 < len(body.Content); i += 2 {
		key, value := body.Content[i], body.Content[i+1]
		switch key.Value {
		case "deps":
			if err := parseDeps(module, value, d); err != nil {
				return err
			}
		case "build":
			if d.Name == defaultSection {
				return &ParseError{Module: module, Line: key.Line, Reason: "the default section cannot declare a build"}
			}
			var spec modconfig.BuildSpec
			if err := value.Decode(&spec); err != nil {
				return &ParseError{Module: module, Line: value.Line, Reason: err.Error()}
			}
			d.Build = &spec
		default:
			// install, artifacts and similar sections belong to the builder, not to resolution
		}
	}
	return nil
}

func parseDeps(module string, list *yaml.Node, d *modconfig.Declaration) error {
	if list.Kind == yaml.ScalarNode && list.Tag == "!!null" {
		return nil
	}
	if list.Kind != yaml.SequenceNode {
		return &ParseError{Module: module, Line: list.Line, Reason: fmt.Sprintf("deps of %s must be a list", d.Name)}
	}

	for _, item := range list.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			entry, err := ParseEntry(item.Value)
			if err != nil {
				return &ParseError{Module: module, Line: item.Line, Reason: err.Error()}
			}
			d.Entries = append(d.Entries, entry)

		case yaml.MappingNode:
			if len(item.Content) != 2 || item.Content[0].Value != "force" {
				return &ParseError{Module: module, Line: item.Line, Reason: "only `force: branches` may appear as a mapping in deps"}
			}
			if d.Force != nil {
				return &ParseError{Module: module, Line: item.Line, Reason: fmt.Sprintf("%s declares force more than once", d.Name)}
			}
			d.Force = splitBranches(item.Content[1].Value)

		default:
			return &ParseError{Module: module, Line: item.Line, Reason: "unsupported deps item"}
		}
	}
	return nil
}

// ParseEntry parses one deps item. A leading '-' turns it into a removal directive.
func ParseEntry(ref string) (modconfig.Entry, error) {
	ref = strings.TrimSpace(ref)
	remove := strings.HasPrefix(ref, "-")
	parsed, err := dep.Parse(strings.TrimSpace(strings.TrimPrefix(ref, "-")))
	if err != nil {
		return modconfig.Entry{}, err
	}
	return modconfig.Entry{Dep: parsed, Remove: remove}, nil
}

func splitBranches(s string) []string {
	out := make([]string, 0)
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
