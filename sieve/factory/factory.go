// Package factory builds and introspects SIEVE filter sets: named,
// independently enable/disable-able "if" rules expressed as plain Go
// tuples instead of hand-written SIEVE text, mirroring factory.py's
// FiltersSet but generalised to the richer condition/action shapes
// test_factory.py exercises (envelope, body, currentdate, negation).
package factory

import (
	"errors"
	"fmt"
	"io"

	"github.com/tonioo/sievelib/sieve"
)

// ErrFilterAlreadyExists is returned by AddFilter when name is already in
// use within the set.
var ErrFilterAlreadyExists = errors.New("filter already exists")

// ErrUnknownFilter is returned by operations addressing a filter name the
// set doesn't contain.
var ErrUnknownFilter = errors.New("unknown filter")

const (
	// DefaultNamePretext and DefaultDescriptionPretext are the default
	// comment prefixes used to recognise (and emit) a filter's display
	// name and description, e.g. "# Filter: vacation-rule".
	DefaultNamePretext        = "Filter: "
	DefaultDescriptionPretext = "Description: "
)

// Filter is one named, independently toggleable rule within a FilterSet.
type Filter struct {
	Name        string
	Description string
	Enabled     bool

	// Content is the rule's "if" command. While the filter is disabled,
	// Content is the wrapping "if false { ... }" shell with the original
	// rule as its only child; GetFilter unwraps it, Content itself does not.
	Content *sieve.Command
}

// Condition is one entry of a filter's test list, built from a loosely
// typed tuple: Condition{"Sender", ":is", "toto@toto.com"} for a generic
// header test, Condition{"size", ":over", "100K"}, Condition{"envelope",
// ":is", []string{"From"}, []string{"hello"}}, and so on. See
// buildConditionCmd for the exact shapes accepted.
type Condition []any

// Action is one entry of a filter's action list: Action{"fileinto",
// ":copy", "Toto"}. The first element names the action; any tag among the
// rest is classified by its leading colon, any []string by its shape,
// anything else by its Go type (int -> number, else -> string).
type Action []any

// Option configures a FilterSet at construction time.
type Option func(*FilterSet)

// WithNamePretext overrides the comment prefix used to recognise and emit
// a filter's display name (default "Filter: ").
func WithNamePretext(pretext string) Option {
	return func(fs *FilterSet) { fs.namePretext = pretext }
}

// WithDescriptionPretext overrides the comment prefix used to recognise
// and emit a filter's description (default "Description: ").
func WithDescriptionPretext(pretext string) Option {
	return func(fs *FilterSet) { fs.descPretext = pretext }
}

// FilterSet is an ordered collection of named filters sharing one require
// statement, built up incrementally and serialised as a whole script.
type FilterSet struct {
	Name string

	filters []*Filter
	exts    *sieve.ExtensionSet

	namePretext string
	descPretext string
}

// NewFilterSet returns an empty FilterSet named name.
func NewFilterSet(name string, opts ...Option) *FilterSet {
	fs := &FilterSet{
		Name:        name,
		exts:        sieve.NewExtensionSet(),
		namePretext: DefaultNamePretext,
		descPretext: DefaultDescriptionPretext,
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// Filters returns the filters in declaration order. The slice and its
// elements are owned by the FilterSet; callers must not mutate them.
func (fs *FilterSet) Filters() []*Filter {
	return fs.filters
}

func (fs *FilterSet) find(name string) *Filter {
	for _, f := range fs.filters {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (fs *FilterSet) indexOf(name string) int {
	for i, f := range fs.filters {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Require adds name to the set's require list directly, for capabilities
// a filter's conditions/actions don't already imply (e.g. a script-wide
// "encoded-character" dependency).
func (fs *FilterSet) Require(name string) {
	fs.exts.Add(name)
}

// AddFilter appends a new, enabled filter built from conditions and
// actions. matchtype selects "anyof" or "allof" ("" defaults to "anyof").
func (fs *FilterSet) AddFilter(name string, conditions []Condition, actions []Action, matchtype string) error {
	if fs.find(name) != nil {
		return ErrFilterAlreadyExists
	}
	content, err := fs.createFilter(conditions, actions, matchtype)
	if err != nil {
		return err
	}
	fs.filters = append(fs.filters, &Filter{Name: name, Content: content, Enabled: true})
	return nil
}

// UpdateFilter replaces the conditions/actions of an existing filter,
// preserving its position, enabled state and description. newName renames
// it ("" keeps the existing name); renaming onto another filter's name is
// rejected.
func (fs *FilterSet) UpdateFilter(name string, conditions []Condition, actions []Action, matchtype, newName string) error {
	f := fs.find(name)
	if f == nil {
		return fmt.Errorf("%w: %s", ErrUnknownFilter, name)
	}
	if newName != "" && newName != name && fs.find(newName) != nil {
		return ErrFilterAlreadyExists
	}
	content, err := fs.createFilter(conditions, actions, matchtype)
	if err != nil {
		return err
	}
	f.Content = content
	if !f.Enabled {
		f.Enabled = true
		fs.DisableFilter(name)
	}
	if newName != "" {
		f.Name = newName
	}
	return nil
}

// ReplaceFilter swaps in a raw *sieve.Command tree (e.g. one parsed from
// hand-written SIEVE text) as filter name's content.
func (fs *FilterSet) ReplaceFilter(name string, content *sieve.Command, description string) error {
	f := fs.find(name)
	if f == nil {
		return fmt.Errorf("%w: %s", ErrUnknownFilter, name)
	}
	f.Content = content
	f.Description = description
	return nil
}

// GetFilter returns the filter's "if" command, unwrapping the "if false
// {}" shell a disabled filter is stored under so callers always see the
// real rule. It returns nil if name is unknown.
func (fs *FilterSet) GetFilter(name string) *sieve.Command {
	f := fs.find(name)
	if f == nil {
		return nil
	}
	if isDisabledShell(f.Content) {
		return f.Content.Children[0]
	}
	return f.Content
}

// RemoveFilter deletes a filter by name, reporting whether it existed.
func (fs *FilterSet) RemoveFilter(name string) bool {
	i := fs.indexOf(name)
	if i < 0 {
		return false
	}
	fs.filters = append(fs.filters[:i], fs.filters[i+1:]...)
	return true
}

// MoveFilter moves filter name one position up or down ("up"/"down"),
// reporting whether the move happened.
func (fs *FilterSet) MoveFilter(name, direction string) bool {
	i := fs.indexOf(name)
	if i < 0 {
		return false
	}
	var j int
	switch direction {
	case "up":
		j = i - 1
	case "down":
		j = i + 1
	default:
		return false
	}
	if j < 0 || j >= len(fs.filters) {
		return false
	}
	fs.filters[i], fs.filters[j] = fs.filters[j], fs.filters[i]
	return true
}

// IsFilterDisabled reports whether name is currently disabled.
func (fs *FilterSet) IsFilterDisabled(name string) bool {
	f := fs.find(name)
	return f != nil && !f.Enabled
}

// DisableFilter wraps filter name's rule in "if false { ... }" so a SIEVE
// engine skips it outright while the original rule is preserved intact.
func (fs *FilterSet) DisableFilter(name string) bool {
	f := fs.find(name)
	if f == nil || !f.Enabled {
		return false
	}
	shell, err := sieve.New("if", nil, fs.exts, false)
	if err != nil {
		return false
	}
	falseTest, err := sieve.New("false", nil, fs.exts, false)
	if err != nil {
		return false
	}
	if _, err := shell.CheckNextArg(sieve.TTest, falseTest, true, false); err != nil {
		return false
	}
	shell.AddChild(f.Content)
	f.Content = shell
	f.Enabled = false
	return true
}

// EnableFilter reverses DisableFilter.
func (fs *FilterSet) EnableFilter(name string) bool {
	f := fs.find(name)
	if f == nil || f.Enabled {
		return false
	}
	if !isDisabledShell(f.Content) {
		f.Enabled = true
		return true
	}
	f.Content = f.Content.Children[0]
	f.Enabled = true
	return true
}

func isDisabledShell(content *sieve.Command) bool {
	if content == nil || content.Name != "if" || len(content.Children) != 1 {
		return false
	}
	t, ok := content.Arg("test")
	if !ok {
		return false
	}
	testCmd, ok := t.(*sieve.Command)
	return ok && testCmd.Name == "false"
}

// FromParserResult populates the set from an already-parsed script,
// reading each top-level "if"'s leading "# Filter: <name>" /
// "# Description: <text>" comments for display metadata and folding any
// "require" statements into the set's own extension list.
func (fs *FilterSet) FromParserResult(p *sieve.Parser) {
	cpt := 1
	for _, cmd := range p.Result() {
		if cmd.Name == "require" {
			switch v := cmd.Arguments["capabilities"].(type) {
			case string:
				fs.exts.Add(sieve.Unquote(v))
			case []string:
				for _, n := range v {
					fs.exts.Add(sieve.Unquote(n))
				}
			}
			continue
		}

		name := fmt.Sprintf("Unnamed rule %d", cpt)
		description := ""
		for _, c := range cmd.Comments {
			if rest, ok := stripPrefix(c, fs.namePretext); ok {
				name = rest
			} else if rest, ok := stripPrefix(c, fs.descPretext); ok {
				description = rest
			}
		}

		fs.filters = append(fs.filters, &Filter{
			Name:        name,
			Description: description,
			Enabled:     !isDisabledShell(cmd),
			Content:     cmd,
		})
		cpt++
	}
}

func stripPrefix(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):], true
	}
	return "", false
}

// ToSieve writes the whole set (a leading "require" statement followed by
// each filter's commented, possibly-disabled "if" rule) as SIEVE text.
func (fs *FilterSet) ToSieve(w io.Writer) error {
	if len(fs.exts.List()) > 0 {
		req, err := sieve.New("require", nil, fs.exts, false)
		if err != nil {
			return err
		}
		if _, err := req.CheckNextArg(sieve.TStringList, fs.exts.List(), true, false); err != nil {
			return err
		}
		if err := req.ToSieve(w, 0); err != nil {
			return err
		}
		io.WriteString(w, "\n")
	}
	for _, f := range fs.filters {
		fmt.Fprintf(w, "# %s%s\n", fs.namePretext, f.Name)
		if f.Description != "" {
			fmt.Fprintf(w, "# %s%s\n", fs.descPretext, f.Description)
		}
		if err := f.Content.ToSieve(w, 0); err != nil {
			return err
		}
	}
	return nil
}

// Dump writes a short human-readable listing of the set's filters, one
// line each, chiefly useful for debugging and CLI tooling.
func (fs *FilterSet) Dump(w io.Writer) {
	for i, f := range fs.filters {
		state := "enabled"
		if !f.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(w, "%d. %s (%s)\n", i+1, f.Name, state)
	}
}
