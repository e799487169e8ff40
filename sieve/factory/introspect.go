package factory

import (
	"strings"

	"github.com/tonioo/sievelib/sieve"
)

// GetFilterMatchType returns "anyof" or "allof" for the named filter's test
// list, or "" if the filter doesn't exist.
func (fs *FilterSet) GetFilterMatchType(name string) string {
	content := fs.GetFilter(name)
	if content == nil {
		return ""
	}
	t, ok := content.Arg("test")
	if !ok {
		return ""
	}
	mtype, ok := t.(*sieve.Command)
	if !ok {
		return ""
	}
	return mtype.Name
}

// GetFilterConditions returns the named filter's conditions as the same
// tuple shapes AddFilter accepts, the inverse of buildCondition.
func (fs *FilterSet) GetFilterConditions(name string) []Condition {
	content := fs.GetFilter(name)
	if content == nil {
		return nil
	}
	t, ok := content.Arg("test")
	if !ok {
		return nil
	}
	mtype, ok := t.(*sieve.Command)
	if !ok {
		return nil
	}
	testsVal, ok := mtype.Arg("tests")
	if !ok {
		return nil
	}
	tests, _ := testsVal.([]*sieve.Command)
	out := make([]Condition, 0, len(tests))
	for _, test := range tests {
		out = append(out, tupleFromTest(test, false))
	}
	return out
}

// GetFilterActions returns the named filter's actions as the same tuple
// shapes AddFilter accepts, the inverse of buildAction.
func (fs *FilterSet) GetFilterActions(name string) []Action {
	content := fs.GetFilter(name)
	if content == nil {
		return nil
	}
	out := make([]Action, 0, len(content.Children))
	for _, child := range content.Children {
		out = append(out, tupleFromAction(child))
	}
	return out
}

func tupleFromTest(cmd *sieve.Command, negate bool) Condition {
	switch cmd.Name {
	case "not":
		inner, _ := cmd.Arg("test")
		if innerCmd, ok := inner.(*sieve.Command); ok {
			return tupleFromTest(innerCmd, !negate)
		}
		return nil

	case "true", "false":
		return Condition{cmd.Name}

	case "size":
		tag, _ := cmd.Arg("comparator")
		limit, _ := cmd.Arg("limit")
		return Condition{"size", asStr(tag), sieve.Unquote(asStr(limit))}

	case "exists":
		name := "exists"
		if negate {
			name = "notexists"
		}
		out := Condition{name}
		hv, _ := cmd.Arg("header-names")
		for _, h := range toList(hv) {
			out = append(out, sieve.Unquote(h))
		}
		return out

	case "envelope", "address":
		op, relop, hasRelop := testOp(cmd, negate)
		hl, _ := cmd.Arg("header-list")
		kl, _ := cmd.Arg("key-list")
		out := Condition{cmd.Name, op}
		if hasRelop {
			out = append(out, relop)
		}
		return append(out, unquoteAny(hl), unquoteAny(kl))

	case "body":
		out := Condition{"body"}
		if v, ok := cmd.Arg("raw"); ok {
			out = append(out, asStr(v))
		} else if v, ok := cmd.Arg("text"); ok {
			out = append(out, asStr(v))
		} else if v, ok := cmd.Arg("content"); ok {
			out = append(out, ":content", unquoteAny(v))
		}
		op, relop, hasRelop := testOp(cmd, negate)
		out = append(out, op)
		if hasRelop {
			out = append(out, relop)
		}
		kl, _ := cmd.Arg("key-list")
		for _, t := range toList(kl) {
			out = append(out, sieve.Unquote(t))
		}
		return out

	case "currentdate":
		out := Condition{"currentdate"}
		if z, ok := cmd.Arg("zone"); ok {
			out = append(out, ":zone", sieve.Unquote(asStr(z)))
		} else if _, ok := cmd.Arg("originalzone"); ok {
			out = append(out, ":originalzone")
		}
		op, relop, hasRelop := testOp(cmd, negate)
		out = append(out, op)
		if hasRelop {
			out = append(out, relop)
		}
		dp, _ := cmd.Arg("date-part")
		out = append(out, sieve.Unquote(asStr(dp)))
		kl, _ := cmd.Arg("key-list")
		for _, v := range toList(kl) {
			out = append(out, sieve.Unquote(v))
		}
		return out

	default: // header
		op, relop, hasRelop := testOp(cmd, negate)
		hn, _ := cmd.Arg("header-names")
		kl, _ := cmd.Arg("key-list")
		out := Condition{unquoteAny(hn), op}
		if hasRelop {
			out = append(out, relop)
		}
		return append(out, unquoteAny(kl))
	}
}

// testOp returns a test's match-type/relational operator tag, negated per
// negateIfSet when the enclosing "not" was stripped off by the caller,
// plus — for the ":count"/":value" relational match-types RFC 5231 adds —
// the relational-operator operand ("eq", "gt", ...) bound alongside it, so
// GetFilterConditions can reconstruct the same tuple shape AddFilter
// accepts instead of silently dropping the operand on introspection.
func testOp(cmd *sieve.Command, negate bool) (op, relop string, hasRelop bool) {
	if v, ok := cmd.Arg("count"); ok {
		return negateIfSet(":count", negate), sieve.Unquote(asStr(v)), true
	}
	if v, ok := cmd.Arg("value"); ok {
		return negateIfSet(":value", negate), sieve.Unquote(asStr(v)), true
	}
	return negateIfSet(asStr(argOrZero(cmd, "match-type")), negate), "", false
}

func tupleFromAction(cmd *sieve.Command) Action {
	out := Action{cmd.Name}
	for i := range cmd.Spec().Args {
		slot := &cmd.Spec().Args[i]
		v, ok := cmd.Arg(slot.Name)
		if !ok {
			continue
		}
		if slot.Extra != nil && slot.WriteTag && len(slot.Values) > 0 {
			out = append(out, slot.Values[0])
			out = append(out, unquoteAny(v))
			continue
		}
		out = append(out, unquoteAny(v))
	}
	return out
}

func negateIfSet(op string, negate bool) string {
	if !negate {
		return op
	}
	return ":not" + strings.TrimPrefix(op, ":")
}

func argOrZero(cmd *sieve.Command, name string) any {
	v, _ := cmd.Arg(name)
	return v
}

func asStr(v any) string {
	s, _ := v.(string)
	return s
}

func toList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case string:
		return []string{t}
	default:
		return nil
	}
}

func unquoteAny(v any) any {
	switch t := v.(type) {
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = sieve.Unquote(s)
		}
		return out
	case string:
		return sieve.Unquote(t)
	default:
		return v
	}
}
