package sieve

// Shared argument slots reused across several test commands, mirroring
// commands.py's module-level comparator/address_part/match_type dicts.

func comparatorSlot() ArgSlot {
	return ArgSlot{
		Name:     "comparator",
		Types:    []ArgType{TTag},
		Values:   []string{":comparator"},
		Required: false,
		Extra: &ExtraArg{
			Type:   TString,
			Values: []string{`"i;octet"`, `"i;ascii-casemap"`},
		},
		WriteTag: true,
	}
}

func addressPartSlot() ArgSlot {
	return ArgSlot{
		Name:     "address-part",
		Types:    []ArgType{TTag},
		Values:   []string{":localpart", ":domain", ":all"},
		Required: false,
	}
}

// matchTypeSlot is shared by every test that supports :is/:contains/:matches
// plus the regex extension. :count/:value (the relational extension) carry
// a trailing relational-operator string and so are modelled as their own
// slots, returned by relationalSlots.
func matchTypeSlot() ArgSlot {
	return ArgSlot{
		Name:     "match-type",
		Types:    []ArgType{TTag},
		Values:   []string{":is", ":contains", ":matches"},
		Required: false,
		ExtensionValues: map[string]string{
			":regex": "regex",
		},
	}
}

// relationalSlots models the :count/:value match-types RFC 5231 adds, each
// of which takes a following relational-operator string ("gt", "lt", "eq",
// "ge", "le", "ne").
func relationalSlots() []ArgSlot {
	return []ArgSlot{
		{Name: "count", Types: []ArgType{TTag}, Values: []string{":count"},
			Extension: "relational", Extra: &ExtraArg{Type: TString}, WriteTag: true},
		{Name: "value", Types: []ArgType{TTag}, Values: []string{":value"},
			Extension: "relational", Extra: &ExtraArg{Type: TString}, WriteTag: true},
	}
}

func init() {
	registerControlCommands()
	registerActionCommands()
	registerTestCommands()
}

func registerControlCommands() {
	Register(&CommandSpec{
		Name: "require",
		Kind: Control,
		Args: []ArgSlot{
			{Name: "capabilities", Types: []ArgType{TString, TStringList}, Required: true},
		},
	})
	Register(&CommandSpec{Name: "stop", Kind: Control})
	Register(&CommandSpec{
		Name:           "if",
		Kind:           Control,
		AcceptChildren: true,
		Args: []ArgSlot{
			{Name: "test", Types: []ArgType{TTest}, Required: true},
		},
	})
	Register(&CommandSpec{
		Name:           "elsif",
		Kind:           Control,
		AcceptChildren: true,
		MustFollow:     []string{"if", "elsif"},
		Args: []ArgSlot{
			{Name: "test", Types: []ArgType{TTest}, Required: true},
		},
	})
	Register(&CommandSpec{
		Name:           "else",
		Kind:           Control,
		AcceptChildren: true,
		MustFollow:     []string{"if", "elsif"},
	})
	Register(&CommandSpec{
		Name:      "set",
		Kind:      Control,
		Extension: "variables",
		Args: []ArgSlot{
			{
				Name:     "modifier",
				Types:    []ArgType{TTag},
				Required: false,
				Values: []string{
					":lower", ":upper", ":lowerfirst", ":upperfirst",
					":quotewildcard", ":length",
				},
			},
			{Name: "name", Types: []ArgType{TString}, Required: true},
			{Name: "value", Types: []ArgType{TString}, Required: true},
		},
	})
}

func registerActionCommands() {
	Register(&CommandSpec{Name: "keep", Kind: Action})
	Register(&CommandSpec{Name: "discard", Kind: Action})

	Register(&CommandSpec{
		Name:      "fileinto",
		Kind:      Action,
		Extension: "fileinto",
		Args: []ArgSlot{
			{Name: "copy", Types: []ArgType{TTag}, Values: []string{":copy"},
				ExtensionValues: map[string]string{":copy": "copy"}},
			{Name: "create", Types: []ArgType{TTag}, Values: []string{":create"},
				ExtensionValues: map[string]string{":create": "mailbox"}},
			{Name: "flags", Types: []ArgType{TTag}, Values: []string{":flags"},
				ExtensionValues: map[string]string{":flags": "imap4flags"},
				Extra:           &ExtraArg{Type: TStringList}, WriteTag: true},
			{Name: "mailbox", Types: []ArgType{TString}, Required: true},
		},
	})
	Register(&CommandSpec{
		Name: "redirect",
		Kind: Action,
		Args: []ArgSlot{
			{Name: "copy", Types: []ArgType{TTag}, Values: []string{":copy"},
				ExtensionValues: map[string]string{":copy": "copy"}},
			{Name: "address", Types: []ArgType{TString}, Required: true},
		},
	})
	Register(&CommandSpec{
		Name:      "reject",
		Kind:      Action,
		Extension: "reject",
		Args: []ArgSlot{
			{Name: "text", Types: []ArgType{TString}, Required: true},
		},
	})
	Register(&CommandSpec{
		Name:      "vacation",
		Kind:      Action,
		Extension: "vacation",
		Args: []ArgSlot{
			{Name: "subject", Types: []ArgType{TTag}, Values: []string{":subject"},
				Extra: &ExtraArg{Type: TString}, WriteTag: true},
			{Name: "days", Types: []ArgType{TTag}, Values: []string{":days"},
				Extra: &ExtraArg{Type: TNumber}, WriteTag: true},
			{Name: "seconds", Types: []ArgType{TTag}, Values: []string{":seconds"},
				ExtensionValues: map[string]string{":seconds": "vacation-seconds"},
				Extra:           &ExtraArg{Type: TNumber}, WriteTag: true},
			{Name: "from", Types: []ArgType{TTag}, Values: []string{":from"},
				Extra: &ExtraArg{Type: TString}, WriteTag: true},
			{Name: "addresses", Types: []ArgType{TTag}, Values: []string{":addresses"},
				Extra: &ExtraArg{Type: TStringList}, WriteTag: true},
			{Name: "handle", Types: []ArgType{TTag}, Values: []string{":handle"},
				Extra: &ExtraArg{Type: TString}, WriteTag: true},
			{Name: "mime", Types: []ArgType{TTag}, Values: []string{":mime"}},
			{Name: "reason", Types: []ArgType{TString}, Required: true},
		},
	})
	Register(&CommandSpec{
		Name:      "setflag",
		Kind:      Action,
		Extension: "imap4flags",
		Args: []ArgSlot{
			{Name: "variablename", Types: []ArgType{TString}, Required: false},
			{Name: "list", Types: []ArgType{TStringList, TString}, Required: true},
		},
	})
	Register(&CommandSpec{
		Name:      "addflag",
		Kind:      Action,
		Extension: "imap4flags",
		Args: []ArgSlot{
			{Name: "variablename", Types: []ArgType{TString}, Required: false},
			{Name: "list", Types: []ArgType{TStringList, TString}, Required: true},
		},
	})
	Register(&CommandSpec{
		Name:      "removeflag",
		Kind:      Action,
		Extension: "imap4flags",
		Args: []ArgSlot{
			{Name: "variablename", Types: []ArgType{TString}, Required: false},
			{Name: "list", Types: []ArgType{TStringList, TString}, Required: true},
		},
	})
}

func registerTestCommands() {
	Register(&CommandSpec{
		Name: "address",
		Kind: Test,
		Args: append([]ArgSlot{
			comparatorSlot(),
			addressPartSlot(),
			matchTypeSlot(),
		}, append(relationalSlots(),
			ArgSlot{Name: "header-list", Types: []ArgType{TString, TStringList}, Required: true},
			ArgSlot{Name: "key-list", Types: []ArgType{TString, TStringList}, Required: true},
		)...),
	})
	Register(&CommandSpec{
		Name:           "allof",
		Kind:           Test,
		VariableArgsNB: true,
		Args: []ArgSlot{
			{Name: "tests", Types: []ArgType{TTestList}, Required: true},
		},
	})
	Register(&CommandSpec{
		Name:           "anyof",
		Kind:           Test,
		VariableArgsNB: true,
		Args: []ArgSlot{
			{Name: "tests", Types: []ArgType{TTestList}, Required: true},
		},
	})
	Register(&CommandSpec{
		Name:      "envelope",
		Kind:      Test,
		Extension: "envelope",
		Args: append([]ArgSlot{
			comparatorSlot(),
			addressPartSlot(),
			matchTypeSlot(),
		}, append(relationalSlots(),
			ArgSlot{Name: "header-list", Types: []ArgType{TString, TStringList}, Required: true},
			ArgSlot{Name: "key-list", Types: []ArgType{TString, TStringList}, Required: true},
		)...),
	})
	Register(&CommandSpec{
		Name: "exists",
		Kind: Test,
		Args: []ArgSlot{
			{Name: "header-names", Types: []ArgType{TStringList, TString}, Required: true},
		},
	})
	Register(&CommandSpec{Name: "true", Kind: Test})
	Register(&CommandSpec{Name: "false", Kind: Test})
	Register(&CommandSpec{
		Name: "header",
		Kind: Test,
		Args: append([]ArgSlot{
			comparatorSlot(),
			matchTypeSlot(),
		}, append(relationalSlots(),
			ArgSlot{Name: "header-names", Types: []ArgType{TString, TStringList}, Required: true},
			ArgSlot{Name: "key-list", Types: []ArgType{TString, TStringList}, Required: true},
		)...),
	})
	Register(&CommandSpec{
		Name: "not",
		Kind: Test,
		Args: []ArgSlot{
			{Name: "test", Types: []ArgType{TTest}, Required: true},
		},
	})
	Register(&CommandSpec{
		Name: "size",
		Kind: Test,
		Args: []ArgSlot{
			{Name: "comparator", Types: []ArgType{TTag}, Values: []string{":over", ":under"}, Required: true},
			{Name: "limit", Types: []ArgType{TNumber}, Required: true},
		},
	})
	Register(&CommandSpec{
		Name:             "hasflag",
		Kind:             Test,
		Extension:        "imap4flags",
		NonDeterministic: true,
		Args: append([]ArgSlot{
			comparatorSlot(),
			matchTypeSlot(),
		}, append(relationalSlots(),
			ArgSlot{Name: "variablename", Types: []ArgType{TString}, Required: false},
			ArgSlot{Name: "list", Types: []ArgType{TStringList, TString}, Required: true},
		)...),
	})
	Register(&CommandSpec{
		Name:      "body",
		Kind:      Test,
		Extension: "body",
		Args: append([]ArgSlot{
			comparatorSlot(),
			matchTypeSlot(),
		}, append(relationalSlots(),
			ArgSlot{Name: "raw", Types: []ArgType{TTag}, Values: []string{":raw"}},
			ArgSlot{Name: "text", Types: []ArgType{TTag}, Values: []string{":text"}},
			ArgSlot{Name: "content", Types: []ArgType{TTag}, Values: []string{":content"},
				Extra: &ExtraArg{Type: TStringList}, WriteTag: true},
			ArgSlot{Name: "key-list", Types: []ArgType{TStringList, TString}, Required: true},
		)...),
	})
	Register(&CommandSpec{
		Name:      "date",
		Kind:      Test,
		Extension: "date",
		Args: append([]ArgSlot{
			comparatorSlot(),
			matchTypeSlot(),
		}, append(relationalSlots(),
			ArgSlot{Name: "date-part", Types: []ArgType{TString}, Required: true},
			ArgSlot{Name: "key-list", Types: []ArgType{TStringList, TString}, Required: true},
		)...),
	})
	Register(&CommandSpec{
		Name:      "currentdate",
		Kind:      Test,
		Extension: "date",
		Args: append([]ArgSlot{
			comparatorSlot(),
			{Name: "zone", Types: []ArgType{TTag}, Values: []string{":zone"},
				Extra: &ExtraArg{Type: TString}, WriteTag: true},
			{Name: "originalzone", Types: []ArgType{TTag}, Values: []string{":originalzone"}},
			matchTypeSlot(),
		}, append(relationalSlots(),
			ArgSlot{Name: "date-part", Types: []ArgType{TString}, Required: true},
			ArgSlot{Name: "key-list", Types: []ArgType{TStringList, TString}, Required: true},
		)...),
	})
}
