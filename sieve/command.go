package sieve

import (
	"fmt"
	"io"
	"strings"
)

// Command is the single, schema-driven node type used for every control,
// action and test command. Per SPEC_FULL.md §6.2 this collapses the
// source's one-struct-per-command-name design (FileintoCommand,
// AddressCommand, ...) onto one generic type plus a registered
// *CommandSpec, matching the registry redesign spec.md §9 calls for.
type Command struct {
	Name     string
	Kind     CommandKind
	Parent   *Command
	Children []*Command

	// Arguments maps a slot name to its bound value: string (string,
	// number or tag lexeme), []string (stringlist), *Command (test) or
	// []*Command (testlist).
	Arguments map[string]any

	// Comments holds any "#" line comments the parser found immediately
	// preceding this command, in source order. The filter factory reads
	// the "Filter: <name>" convention out of these for if-blocks.
	Comments []string
	Line     int

	spec *CommandSpec
	exts *ExtensionSet

	nextArgPos   int
	rargsCnt     int
	requiredArgs int
	curArg       *ArgSlot
}

func newCommand(spec *CommandSpec, parent *Command, exts *ExtensionSet) *Command {
	return &Command{
		Name:         spec.Name,
		Kind:         spec.Kind,
		Parent:       parent,
		Arguments:    map[string]any{},
		spec:         spec,
		exts:         exts,
		requiredArgs: -1,
	}
}

// Spec exposes the static schema backing this command.
func (c *Command) Spec() *CommandSpec { return c.spec }

// AcceptsChildren reports whether this command can open a block.
func (c *Command) AcceptsChildren() bool { return c.spec.AcceptChildren }

// MustFollow returns the set of sibling command names this command (an
// elsif/else) is required to directly follow, or nil.
func (c *Command) MustFollow() []string { return c.spec.MustFollow }

// Extension returns the extension name gating this whole command, or "".
func (c *Command) Extension() string { return c.spec.Extension }

// HasArguments reports whether this command's schema declares any slots.
func (c *Command) HasArguments() bool { return len(c.spec.Args) > 0 }

// Arg returns the value bound to the named slot.
func (c *Command) Arg(name string) (any, bool) {
	v, ok := c.Arguments[name]
	return v, ok
}

// IsComplete reports whether every required slot is bound, there is no
// pending extra-argument, and the command isn't a variable-arity test
// (anyof/allof never report complete until their closing parenthesis).
func (c *Command) IsComplete() bool {
	if c.spec.VariableArgsNB {
		return false
	}
	if c.requiredArgs == -1 {
		c.requiredArgs = 0
		for _, a := range c.spec.Args {
			if a.Required {
				c.requiredArgs++
			}
		}
	}
	return c.rargsCnt == c.requiredArgs && c.curArg == nil
}

// AddChild appends child to Children iff this command accepts children.
func (c *Command) AddChild(child *Command) bool {
	if !c.spec.AcceptChildren {
		return false
	}
	child.Parent = c
	c.Children = append(c.Children, child)
	return true
}

// extensionLoaded reports whether ext is required, tolerating a nil set
// (commands built without extension tracking, e.g. ad hoc test trees).
func (c *Command) extensionLoaded(ext string) bool {
	return c.exts != nil && c.exts.Has(ext)
}

// CheckNextArg attempts to bind value (of the given kind) to this
// command's next eligible slot, following the five-step algorithm in
// spec.md §4.2 / SPEC_FULL.md §6.2. When add is false the value is not
// stored in Arguments, though the slot cursor still advances as if it had
// been bound. When checkExtension is false, extension gating is skipped
// (used by the filter factory, which manages its own require list).
func (c *Command) CheckNextArg(kind ArgType, value any, add, checkExtension bool) (bool, error) {
	if !c.HasArguments() {
		return false, nil
	}
	if c.IsComplete() {
		return false, nil
	}

	if c.curArg != nil {
		slot := c.curArg
		if kind == slot.Extra.Type && (len(slot.Extra.Values) == 0 || containsFold(slot.Extra.Values, asString(value))) {
			if add {
				c.Arguments[slot.Name] = value
			}
			c.curArg = nil
			return true, nil
		}
		return false, &BadValueError{Argument: slot.Name, Value: describeValue(value)}
	}

	failed := false
	pos := c.nextArgPos
	var lastSlot *ArgSlot
	var gateErr error

	for pos < len(c.spec.Args) {
		slot := &c.spec.Args[pos]
		lastSlot = slot

		if slot.Required {
			if slot.hasType(TTestList) {
				if kind != TTest {
					failed = true
				} else if add {
					cmd, _ := value.(*Command)
					list, _ := c.Arguments[slot.Name].([]*Command)
					c.Arguments[slot.Name] = append(list, cmd)
				}
			} else if !slot.hasType(kind) || !slotValueAllowed(slot, value) {
				failed = true
			} else if err := c.checkSlotGating(slot, value, checkExtension); err != nil {
				gateErr = err
			} else {
				c.rargsCnt++
				c.nextArgPos = pos + 1
				if add {
					c.Arguments[slot.Name] = value
				}
			}
			break
		}

		if slot.hasType(kind) {
			if !slotValueAllowed(slot, value) {
				pos++
				continue
			}
			if err := c.checkSlotGating(slot, value, checkExtension); err != nil {
				gateErr = err
				break
			}
			if slot.Extra != nil && (len(slot.Extra.ValidFor) == 0 || containsFold(slot.Extra.ValidFor, asString(value))) {
				c.curArg = slot
				break
			}
			if add {
				c.Arguments[slot.Name] = value
			}
			break
		}
		pos++
	}

	if gateErr != nil {
		return false, gateErr
	}
	if failed {
		return false, &BadArgumentError{Command: c.Name, Seen: describeValue(value), Expected: lastSlot.Types}
	}
	return true, nil
}

// checkSlotGating enforces both whole-slot gating (ArgSlot.Extension) and
// per-value gating (ArgSlot.ExtensionValues), per spec.md §4.2 step 4/5.
func (c *Command) checkSlotGating(slot *ArgSlot, value any, checkExtension bool) error {
	if slot.Extension != "" && checkExtension && !c.extensionLoaded(slot.Extension) {
		return &ExtensionNotLoadedError{Name: slot.Extension}
	}
	if len(slot.Values) == 0 && len(slot.ExtensionValues) == 0 {
		return nil
	}
	s := asString(value)
	if s == "" {
		return nil
	}
	if ext, gated := slot.extensionFor(s); gated {
		if checkExtension && !c.extensionLoaded(ext) {
			return &ExtensionNotLoadedError{Name: ext}
		}
	}
	return nil
}

func slotValueAllowed(slot *ArgSlot, value any) bool {
	s := asString(value)
	if s == "" {
		return true
	}
	return slot.validValue(s)
}

// ExtraRequiredExtensions lists the extensions implied by bound slots: a
// bound slot gated as a whole by ArgSlot.Extension (e.g. the :count/:value
// slots -> "relational"), and a bound tag that unlocks an extension via
// ExtensionValues (e.g. fileinto's ":copy" -> "copy", ":flags" ->
// "imap4flags"). For a tag taking an extra argument the tag's own spelling
// is what is looked up. The filter factory uses this to compute the
// require list a built command implies (spec.md §4.4's "any positional
// tag forces its enclosing extension to be required").
func (c *Command) ExtraRequiredExtensions() []string {
	var out []string
	for i := range c.spec.Args {
		slot := &c.spec.Args[i]
		v, ok := c.Arguments[slot.Name]
		if !ok {
			continue
		}
		if slot.Extension != "" {
			out = append(out, slot.Extension)
		}
		tag := asString(v)
		if slot.Extra != nil && len(slot.Values) > 0 {
			tag = slot.Values[0]
		}
		if ext, gated := slot.extensionFor(tag); gated {
			out = append(out, ext)
		}
	}
	return out
}

// ReassignArguments resolves hasflag's argument ambiguity after the
// parser has decided the command is syntactically complete: if only the
// optional "variablename" slot was filled (because the scan in
// CheckNextArg bound the sole stringlist argument to the first slot it
// matched), move the value to the required "list" slot instead.
func (c *Command) ReassignArguments() {
	if !c.spec.NonDeterministic {
		return
	}
	if _, hasList := c.Arguments["list"]; hasList {
		return
	}
	v, ok := c.Arguments["variablename"]
	if !ok {
		return
	}
	c.Arguments["list"] = v
	delete(c.Arguments, "variablename")
	c.rargsCnt++
	c.nextArgPos = len(c.spec.Args)
}

// CompleteCB runs this command's completion hook. Only "require" has one:
// it appends its capability names to the owning ExtensionSet.
func (c *Command) CompleteCB() {
	if c.Name != "require" || c.exts == nil {
		return
	}
	switch v := c.Arguments["capabilities"].(type) {
	case string:
		c.exts.Add(v)
	case []string:
		for _, name := range v {
			c.exts.Add(name)
		}
	}
}

// Walk returns this command and every descendant (via Children and any
// Command/[]Command-valued argument) in stable pre-order.
func (c *Command) Walk() []*Command {
	var out []*Command
	var rec func(*Command)
	rec = func(n *Command) {
		out = append(out, n)
		for i := range n.spec.Args {
			v, ok := n.Arguments[n.spec.Args[i].Name]
			if !ok {
				continue
			}
			switch t := v.(type) {
			case *Command:
				rec(t)
			case []*Command:
				for _, sub := range t {
					rec(sub)
				}
			}
		}
		for _, ch := range n.Children {
			rec(ch)
		}
	}
	rec(c)
	return out
}

// ToSieve renders this command (and its subtree) as SIEVE text at the
// given indentation level.
func (c *Command) ToSieve(w io.Writer, indent int) error {
	writeIndent(w, indent)
	io.WriteString(w, c.Name)

	for i := range c.spec.Args {
		slot := &c.spec.Args[i]
		v, ok := c.Arguments[slot.Name]
		if !ok {
			continue
		}
		io.WriteString(w, " ")
		switch val := v.(type) {
		case []*Command:
			io.WriteString(w, "(")
			for j, t := range val {
				if j > 0 {
					io.WriteString(w, ", ")
				}
				t.ToSieve(w, 0)
			}
			io.WriteString(w, ")")
		case *Command:
			val.ToSieve(w, indent)
		case []string:
			if slot.WriteTag && len(slot.Values) > 0 {
				io.WriteString(w, slot.Values[0]+" ")
			}
			io.WriteString(w, "[")
			for j, s := range val {
				if j > 0 {
					io.WriteString(w, ", ")
				}
				io.WriteString(w, quote(s))
			}
			io.WriteString(w, "]")
		case string:
			writeScalarArg(w, slot, val)
		}
	}

	if !c.spec.AcceptChildren {
		if c.spec.Kind != Test {
			io.WriteString(w, ";\n")
		}
		return nil
	}
	if c.spec.Kind != Control {
		return nil
	}
	io.WriteString(w, " {\n")
	for _, ch := range c.Children {
		ch.ToSieve(w, indent+4)
	}
	writeIndent(w, indent)
	io.WriteString(w, "}\n")
	return nil
}

func writeScalarArg(w io.Writer, slot *ArgSlot, v string) {
	if slot.Extra != nil {
		if slot.WriteTag && len(slot.Values) > 0 {
			io.WriteString(w, slot.Values[0]+" ")
		}
		if slot.Extra.Type == TString {
			io.WriteString(w, quote(v))
		} else {
			io.WriteString(w, v)
		}
		return
	}
	if slot.hasType(TString) {
		io.WriteString(w, quote(v))
		return
	}
	io.WriteString(w, v)
}

func writeIndent(w io.Writer, n int) {
	if n > 0 {
		io.WriteString(w, strings.Repeat(" ", n))
	}
}

func containsFold(values []string, v string) bool {
	lv := strings.ToLower(v)
	for _, allowed := range values {
		if strings.ToLower(allowed) == lv {
			return true
		}
	}
	return false
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func describeValue(v any) string {
	switch t := v.(type) {
	case *Command:
		return t.Name
	case []string:
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprint(v)
	}
}
