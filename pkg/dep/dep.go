package dep

import (
	"fmt"
	"strings"
)

// Wildcard matches any treeish or configuration in a removal pattern.
const Wildcard = "*"

// Dep references a module at an optional treeish and configuration.
// Empty Treeish means the default branch, empty Configuration means the
// module's default configuration.
type Dep struct {
	Name          string
	Treeish       string
	Configuration string
}

// Key is the graph identity of a dependency: module name plus resolved configuration.
// Treeish is deliberately not part of it.
type Key struct {
	Name          string
	Configuration string
}

// FormatError reports a malformed dependency reference
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed dependency %q: %s", e.Input, e.Reason)
}

// New creates a Dep with the given fields
func New(name, treeish, configuration string) Dep {
	return Dep{Name: name, Treeish: treeish, Configuration: configuration}
}

// Parse parses `name[@treeish][/configuration]`.
// A backslash makes the following '@' or '/' literal. Any other '@' after
// the name, or '/' inside the configuration, must be escaped.
func Parse(s string) (Dep, error) {
	var (
		fields  [3]strings.Builder
		field   int // 0 name, 1 treeish, 2 configuration
		escaped bool
	)

	for _, r := range s {
		if escaped {
			escaped = false
			if r == '@' || r == '/' {
				fields[field].WriteRune(r)
				continue
			}
			// Not an escape sequence, keep the backslash literally.
			fields[field].WriteRune('\\')
		}

		switch {
		case r == '\\':
			escaped = true
		case r == '@' && field == 0:
			field = 1
		case r == '@':
			return Dep{}, &FormatError{Input: s, Reason: "unescaped '@' after the module name"}
		case r == '/' && field < 2:
			field = 2
		case r == '/':
			return Dep{}, &FormatError{Input: s, Reason: "unescaped '/' in configuration"}
		default:
			fields[field].WriteRune(r)
		}
	}

	if escaped {
		return Dep{}, &FormatError{Input: s, Reason: "trailing unescaped backslash"}
	}

	d := Dep{
		Name:          fields[0].String(),
		Treeish:       fields[1].String(),
		Configuration: fields[2].String(),
	}
	if d.Name == "" {
		return Dep{}, &FormatError{Input: s, Reason: "empty module name"}
	}
	return d, nil
}

// MustParse is Parse for literals in tests and tables
func MustParse(s string) Dep {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String serializes the dependency back into the reference grammar
func (d Dep) String() string {
	var b strings.Builder
	b.WriteString(escape(d.Name))
	if d.Treeish != "" {
		b.WriteByte('@')
		b.WriteString(escape(d.Treeish))
	}
	if d.Configuration != "" {
		b.WriteByte('/')
		b.WriteString(escape(d.Configuration))
	}
	return b.String()
}

func escape(s string) string {
	if !strings.ContainsAny(s, "@/") {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if r == '@' || r == '/' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Key returns the graph identity, using configuration as given.
func (d Dep) Key() Key {
	return Key{Name: d.Name, Configuration: d.Configuration}
}

// WithConfiguration returns a copy with the configuration replaced
func (d Dep) WithConfiguration(configuration string) Dep {
	d.Configuration = configuration
	return d
}

// SameModule reports whether two module names refer to the same module.
// Module names are case-insensitive.
func SameModule(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Matches reports whether d is selected by a removal pattern.
// Absent or wildcard treeish/configuration in the pattern match anything.
func (d Dep) Matches(pattern Dep) bool {
	if !SameModule(d.Name, pattern.Name) {
		return false
	}
	if pattern.Treeish != "" && pattern.Treeish != Wildcard && pattern.Treeish != d.Treeish {
		return false
	}
	if pattern.Configuration != "" && pattern.Configuration != Wildcard && pattern.Configuration != d.Configuration {
		return false
	}
	return true
}

func (k Key) String() string {
	return k.Name + "/" + k.Configuration
}
