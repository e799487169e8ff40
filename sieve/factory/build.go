package factory

import (
	"fmt"
	"strings"

	"github.com/tonioo/sievelib/sieve"
)

// createFilter builds the "if <matchtype> (conditions) { actions }" tree
// for a new or updated filter, folding every extension its tests and
// actions imply into the set's require list as it goes.
func (fs *FilterSet) createFilter(conditions []Condition, actions []Action, matchtype string) (*sieve.Command, error) {
	if matchtype == "" {
		matchtype = "anyof"
	}
	ifCmd, err := sieve.New("if", nil, fs.exts, false)
	if err != nil {
		return nil, err
	}

	mtype, err := sieve.New(matchtype, ifCmd, fs.exts, false)
	if err != nil {
		return nil, err
	}
	for _, cond := range conditions {
		testCmd, err := fs.buildCondition(cond)
		if err != nil {
			return nil, err
		}
		if _, err := mtype.CheckNextArg(sieve.TTest, testCmd, true, false); err != nil {
			return nil, err
		}
	}
	if _, err := ifCmd.CheckNextArg(sieve.TTest, mtype, true, false); err != nil {
		return nil, err
	}

	for _, act := range actions {
		actionCmd, err := fs.buildAction(act)
		if err != nil {
			return nil, err
		}
		ifCmd.AddChild(actionCmd)
	}
	return ifCmd, nil
}

// requireFromCommand folds cmd's own gating extension (if any) and every
// extension any bound tag of cmd implies (e.g. fileinto's ":copy" ->
// "copy") into the set's require list. It is the single mechanism behind
// spec.md §4.4's "building a condition/action automatically requires the
// extensions it needs" rule, for both tests and actions alike.
func (fs *FilterSet) requireFromCommand(cmd *sieve.Command) {
	if ext := cmd.Extension(); ext != "" {
		fs.exts.Add(ext)
	}
	for _, ext := range cmd.ExtraRequiredExtensions() {
		fs.exts.Add(ext)
	}
}

func (fs *FilterSet) newTest(name string) (*sieve.Command, error) {
	return sieve.New(name, nil, fs.exts, false)
}

func (fs *FilterSet) wrapNot(inner *sieve.Command) (*sieve.Command, error) {
	cmd, err := fs.newTest("not")
	if err != nil {
		return nil, err
	}
	if _, err := cmd.CheckNextArg(sieve.TTest, inner, true, false); err != nil {
		return nil, err
	}
	return cmd, nil
}

// buildCondition translates one Condition tuple into a test Command,
// requiring whatever extensions it implies and wrapping it in "not" if its
// match-type or command name carries a ":not.../notexists" negation.
func (fs *FilterSet) buildCondition(cond Condition) (*sieve.Command, error) {
	cmd, negate, err := fs.buildConditionCmd(cond)
	if err != nil {
		return nil, err
	}
	fs.requireFromCommand(cmd)
	if negate {
		return fs.wrapNot(cmd)
	}
	return cmd, nil
}

func (fs *FilterSet) buildConditionCmd(cond Condition) (*sieve.Command, bool, error) {
	if len(cond) == 0 {
		return nil, false, fmt.Errorf("factory: empty condition")
	}
	marker, _ := cond[0].(string)

	switch marker {
	case "true", "false":
		cmd, err := fs.newTest(marker)
		return cmd, false, err

	case "size":
		cmd, err := fs.newTest("size")
		if err != nil {
			return nil, false, err
		}
		if err := bindSeq(cmd, sieve.TTag, cond[1]); err != nil {
			return nil, false, err
		}
		if err := bindSeq(cmd, sieve.TNumber, cond[2]); err != nil {
			return nil, false, err
		}
		return cmd, false, nil

	case "exists", "notexists":
		cmd, err := fs.newTest("exists")
		if err != nil {
			return nil, false, err
		}
		if err := bindList(cmd, sieve.TStringList, stringsFrom(cond[1:])); err != nil {
			return nil, false, err
		}
		return cmd, marker == "notexists", nil

	case "envelope", "address":
		cmd, err := fs.newTest(marker)
		if err != nil {
			return nil, false, err
		}
		op, _ := cond[1].(string)
		op, negate := stripNotTag(op)
		if err := bindSeq(cmd, sieve.TTag, op); err != nil {
			return nil, false, err
		}
		idx := 2
		if isRelationalOp(op) {
			relop, _ := cond[idx].(string)
			idx++
			if err := bindSeq(cmd, sieve.TString, relop); err != nil {
				return nil, false, err
			}
		}
		if err := bindAny(cmd, cond[idx]); err != nil {
			return nil, false, err
		}
		idx++
		if err := bindAny(cmd, cond[idx]); err != nil {
			return nil, false, err
		}
		return cmd, negate, nil

	case "body":
		cmd, err := fs.newTest("body")
		if err != nil {
			return nil, false, err
		}
		idx := 1
		transform, _ := cond[idx].(string)
		if err := bindSeq(cmd, sieve.TTag, transform); err != nil {
			return nil, false, err
		}
		idx++
		if strings.EqualFold(transform, ":content") && idx < len(cond) {
			if err := bindAny(cmd, cond[idx]); err != nil {
				return nil, false, err
			}
			idx++
		}
		rawOp, _ := cond[idx].(string)
		idx++
		op, negate := stripNotTag(rawOp)
		if err := bindSeq(cmd, sieve.TTag, op); err != nil {
			return nil, false, err
		}
		if isRelationalOp(op) {
			relop, _ := cond[idx].(string)
			idx++
			if err := bindSeq(cmd, sieve.TString, relop); err != nil {
				return nil, false, err
			}
		}
		if err := bindList(cmd, sieve.TStringList, stringsFrom(cond[idx:])); err != nil {
			return nil, false, err
		}
		return cmd, negate, nil

	case "currentdate":
		cmd, err := fs.newTest("currentdate")
		if err != nil {
			return nil, false, err
		}
		idx := 1
		zoneOrOriginal, _ := cond[idx].(string)
		idx++
		if err := bindSeq(cmd, sieve.TTag, zoneOrOriginal); err != nil {
			return nil, false, err
		}
		if strings.EqualFold(zoneOrOriginal, ":zone") {
			zoneValue, _ := cond[idx].(string)
			idx++
			if err := bindSeq(cmd, sieve.TString, zoneValue); err != nil {
				return nil, false, err
			}
		}
		rawOp, _ := cond[idx].(string)
		idx++
		op, negate := stripNotTag(rawOp)
		if err := bindSeq(cmd, sieve.TTag, op); err != nil {
			return nil, false, err
		}
		if isRelationalOp(op) {
			relop, _ := cond[idx].(string)
			idx++
			if err := bindSeq(cmd, sieve.TString, relop); err != nil {
				return nil, false, err
			}
		}
		datepart, _ := cond[idx].(string)
		idx++
		if err := bindSeq(cmd, sieve.TString, datepart); err != nil {
			return nil, false, err
		}
		if err := bindList(cmd, sieve.TStringList, stringsFrom(cond[idx:])); err != nil {
			return nil, false, err
		}
		return cmd, negate, nil

	default:
		// Generic (headers, op, values) header test; headers is cond[0]
		// itself rather than a reserved marker. A relational op
		// ("headers, :count, relop, values") inserts relop ahead of
		// values, same as envelope/address/body/currentdate above.
		cmd, err := fs.newTest("header")
		if err != nil {
			return nil, false, err
		}
		rawOp, _ := cond[1].(string)
		op, negate := stripNotTag(rawOp)
		if err := bindSeq(cmd, sieve.TTag, op); err != nil {
			return nil, false, err
		}
		idx := 2
		if isRelationalOp(op) {
			relop, _ := cond[idx].(string)
			idx++
			if err := bindSeq(cmd, sieve.TString, relop); err != nil {
				return nil, false, err
			}
		}
		if err := bindAny(cmd, cond[0]); err != nil {
			return nil, false, err
		}
		if err := bindAny(cmd, cond[idx]); err != nil {
			return nil, false, err
		}
		return cmd, negate, nil
	}
}

// isRelationalOp reports whether op is RFC 5231's ":count"/":value"
// match-type, which binds a trailing relational-operator string ("eq",
// "gt", "lt", "ge", "le", "ne") of its own — see relationalSlots in
// sieve/catalogue.go.
func isRelationalOp(op string) bool {
	return strings.EqualFold(op, ":value") || strings.EqualFold(op, ":count")
}

// buildAction translates one Action tuple into an action Command,
// classifying each argument after the name by shape: a leading-colon
// string is a tag, a []string a stringlist, an integer a number, anything
// else a bare string.
func (fs *FilterSet) buildAction(act Action) (*sieve.Command, error) {
	if len(act) == 0 {
		return nil, fmt.Errorf("factory: empty action")
	}
	name, _ := act[0].(string)
	cmd, err := sieve.New(name, nil, fs.exts, false)
	if err != nil {
		return nil, err
	}
	for _, raw := range act[1:] {
		kind, val := classify(raw)
		if _, err := cmd.CheckNextArg(kind, val, true, false); err != nil {
			return nil, err
		}
	}
	fs.requireFromCommand(cmd)
	return cmd, nil
}

// stripNotTag splits a ":not"-prefixed match-type tag (e.g. ":notcontains")
// into its positive form (":contains") and a negation flag.
func stripNotTag(op string) (string, bool) {
	const prefix = ":not"
	if strings.HasPrefix(op, prefix) && len(op) > len(prefix) {
		return ":" + op[len(prefix):], true
	}
	return op, false
}

func bindSeq(cmd *sieve.Command, kind sieve.ArgType, value any) error {
	_, err := cmd.CheckNextArg(kind, value, true, false)
	return err
}

func bindList(cmd *sieve.Command, kind sieve.ArgType, value []string) error {
	_, err := cmd.CheckNextArg(kind, value, true, false)
	return err
}

// bindAny classifies and binds a single value that may legitimately be
// either a string or a list: fed to a slot accepting String or
// StringList, either shape should be taken as-is.
func bindAny(cmd *sieve.Command, v any) error {
	switch t := v.(type) {
	case []string:
		return bindList(cmd, sieve.TStringList, t)
	case string:
		return bindSeq(cmd, sieve.TString, t)
	default:
		return bindSeq(cmd, sieve.TString, fmt.Sprint(t))
	}
}

// stringsFrom flattens a tail of tuple elements (each expected to be a
// plain string) into a []string, used for exists' header list, body's
// term list and currentdate's value list.
func stringsFrom(tail []any) []string {
	out := make([]string, 0, len(tail))
	for _, v := range tail {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		default:
			out = append(out, fmt.Sprint(t))
		}
	}
	return out
}

// classify maps a raw action-argument value (per spec.md §4.4: integers ->
// number, lists -> stringlist, colon-prefixed strings -> tag, anything
// else -> string) to its ArgType and bindable value.
func classify(raw any) (sieve.ArgType, any) {
	switch v := raw.(type) {
	case int:
		return sieve.TNumber, fmt.Sprint(v)
	case int64:
		return sieve.TNumber, fmt.Sprint(v)
	case []string:
		return sieve.TStringList, v
	case string:
		if strings.HasPrefix(v, ":") {
			return sieve.TTag, v
		}
		return sieve.TString, v
	default:
		return sieve.TString, fmt.Sprint(v)
	}
}
