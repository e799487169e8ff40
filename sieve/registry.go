package sieve

import "strings"

// registry replaces the source's dynamic "<Name>Command" class lookup
// (get_command_instance in commands.py) with an explicit map from command
// name to schema, per the redesign SPEC_FULL.md §6.2 and spec.md §9
// mandate. Register is the public extension point; built-in commands
// self-register from catalogue.go's init().
var registry = map[string]*CommandSpec{}

// Register adds spec to the command registry under its lowercased Name.
// Re-registering a name replaces the previous schema, which lets callers
// override a built-in command if they need to.
func Register(spec *CommandSpec) {
	registry[strings.ToLower(spec.Name)] = spec
}

// Lookup returns the schema registered for name, if any.
func Lookup(name string) (*CommandSpec, bool) {
	spec, ok := registry[strings.ToLower(name)]
	return spec, ok
}

// New constructs a Command for name, enforcing extension gating against
// exts when checkExtension is true. The factory builds commands with
// checkExtension=false because it manages its own require list explicitly
// rather than relying on prior parse state (mirroring
// get_command_instance(name, parent, False) in factory.py).
func New(name string, parent *Command, exts *ExtensionSet, checkExtension bool) (*Command, error) {
	spec, ok := Lookup(name)
	if !ok {
		return nil, &UnknownCommandError{Name: name}
	}
	if checkExtension && spec.Extension != "" && (exts == nil || !exts.Has(spec.Extension)) {
		return nil, &UnknownCommandError{Name: name}
	}
	return newCommand(spec, parent, exts), nil
}
