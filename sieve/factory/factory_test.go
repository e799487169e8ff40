package factory

import (
	"strings"
	"testing"

	"github.com/tonioo/sievelib/sieve"
)

func TestGetFilterConditionsRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		cond Condition
	}{
		{"generic header", Condition{"Sender", ":is", "toto@toto.com"}},
		{"generic header negated", Condition{"Sender", ":notis", "toto@toto.com"}},
		{"exists", Condition{"exists", "list-help", "list-unsubscribe"}},
		{"notexists", Condition{"notexists", "list-help", "list-unsubscribe"}},
		{"envelope", Condition{"envelope", ":is", []string{"From"}, []string{"hello"}}},
		{"body", Condition{"body", ":raw", ":notcontains", "matteo"}},
		{"currentdate is", Condition{"currentdate", ":zone", "+0100", ":notis", "date", "2019-02-26"}},
		{"currentdate value", Condition{"currentdate", ":zone", "+0100", ":value", "gt", "date", "2019-02-26"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			fs := NewFilterSet("test")
			if err := fs.AddFilter("rule", []Condition{c.cond}, []Action{{"fileinto", "INBOX"}}, ""); err != nil {
				t.Fatalf("AddFilter: %v", err)
			}
			got := fs.GetFilterConditions("rule")
			if len(got) != 1 {
				t.Fatalf("got %d conditions, want 1", len(got))
			}
			if !conditionEqual(got[0], c.cond) {
				t.Errorf("round trip mismatch:\n got:  %#v\n want: %#v", got[0], c.cond)
			}
		})
	}
}

func conditionEqual(a, b Condition) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !valueEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	as, aok := a.([]string)
	bs, bok := b.([]string)
	if aok || bok {
		if !aok || !bok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if as[i] != bs[i] {
				return false
			}
		}
		return true
	}
	return a == b
}

func TestGetFilterConditionsFromParserResult(t *testing.T) {
	src := `require ["date", "fileinto"];

# rule:aaa
if anyof (currentdate :zone "+0100" :is "date" ["2019-03-27"]) {
    fileinto "INBOX";
}
`
	p := sieve.NewParser()
	if _, err := p.Parse([]byte(src)); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	fs := NewFilterSet("aaa", WithNamePretext("rule:"))
	fs.FromParserResult(p)

	conds := fs.GetFilterConditions("aaa")
	want := Condition{"currentdate", ":zone", "+0100", ":is", "date", "2019-03-27"}
	if len(conds) != 1 || !conditionEqual(conds[0], want) {
		t.Fatalf("conditions = %#v, want [%#v]", conds, want)
	}
}

func TestGetFilterMatchType(t *testing.T) {
	fs := NewFilterSet("test")
	if err := fs.AddFilter("ruleX",
		[]Condition{{"Sender", ":is", "toto@toto.com"}},
		[]Action{{"fileinto", ":copy", "Toto"}}, ""); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}
	if got := fs.GetFilterMatchType("ruleX"); got != "anyof" {
		t.Errorf("GetFilterMatchType = %q, want anyof", got)
	}
}

func TestGetFilterActions(t *testing.T) {
	fs := NewFilterSet("test")
	if err := fs.AddFilter("ruleX",
		[]Condition{{"Sender", ":is", "toto@toto.com"}},
		[]Action{{"fileinto", ":copy", "Toto"}}, ""); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}
	actions := fs.GetFilterActions("ruleX")
	if len(actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(actions))
	}
	act := actions[0]
	if act[0] != "fileinto" {
		t.Errorf("action[0] = %v, want fileinto", act[0])
	}
	found := false
	for _, v := range act {
		if v == ":copy" {
			found = true
		}
	}
	if !found {
		t.Errorf("action %#v missing :copy", act)
	}

	if err := fs.AddFilter("ruleY", []Condition{{"Subject", ":contains", "aaa"}}, []Action{{"stop"}}, ""); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}
	actions = fs.GetFilterActions("ruleY")
	if len(actions) != 1 || actions[0][0] != "stop" {
		t.Errorf("ruleY actions = %#v, want [[stop]]", actions)
	}
}

func TestAddHeaderFilterToSieve(t *testing.T) {
	fs := NewFilterSet("test")
	if err := fs.AddFilter("rule1",
		[]Condition{{"Sender", ":is", "toto@toto.com"}},
		[]Action{{"fileinto", ":copy", "Toto"}}, ""); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}
	if fs.GetFilter("rule1") == nil {
		t.Fatal("rule1 not found")
	}
	var out strings.Builder
	if err := fs.ToSieve(&out); err != nil {
		t.Fatalf("ToSieve: %v", err)
	}
	want := `require ["fileinto", "copy"];

# Filter: rule1
if anyof (header :is "Sender" "toto@toto.com") {
    fileinto :copy "Toto";
}
`
	if out.String() != want {
		t.Errorf("ToSieve output mismatch:\n got:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestUseActionWithTag(t *testing.T) {
	fs := NewFilterSet("test")
	if err := fs.AddFilter("rule1",
		[]Condition{{"Sender", ":is", "toto@toto.com"}},
		[]Action{{"redirect", ":copy", "toto@titi.com"}}, ""); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}
	var out strings.Builder
	if err := fs.ToSieve(&out); err != nil {
		t.Fatalf("ToSieve: %v", err)
	}
	want := `require ["copy"];

# Filter: rule1
if anyof (header :is "Sender" "toto@toto.com") {
    redirect :copy "toto@titi.com";
}
`
	if out.String() != want {
		t.Errorf("ToSieve output mismatch:\n got:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestAddHeaderFilterWithNot(t *testing.T) {
	fs := NewFilterSet("test")
	if err := fs.AddFilter("rule1",
		[]Condition{{"Sender", ":notcontains", "toto@toto.com"}},
		[]Action{{"fileinto", "Toto"}}, ""); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}
	var out strings.Builder
	if err := fs.ToSieve(&out); err != nil {
		t.Fatalf("ToSieve: %v", err)
	}
	want := `require ["fileinto"];

# Filter: rule1
if anyof (not header :contains "Sender" "toto@toto.com") {
    fileinto "Toto";
}
`
	if out.String() != want {
		t.Errorf("ToSieve output mismatch:\n got:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestAddExistsFilter(t *testing.T) {
	fs := NewFilterSet("test")
	if err := fs.AddFilter("rule1",
		[]Condition{{"exists", "list-help", "list-unsubscribe"}},
		[]Action{{"fileinto", "Toto"}}, ""); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}
	var out strings.Builder
	if err := fs.ToSieve(&out); err != nil {
		t.Fatalf("ToSieve: %v", err)
	}
	want := `require ["fileinto"];

# Filter: rule1
if anyof (exists ["list-help", "list-unsubscribe"]) {
    fileinto "Toto";
}
`
	if out.String() != want {
		t.Errorf("ToSieve output mismatch:\n got:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestAddNotExistsFilter(t *testing.T) {
	fs := NewFilterSet("test")
	if err := fs.AddFilter("rule1",
		[]Condition{{"notexists", "list-help", "list-unsubscribe"}},
		[]Action{{"fileinto", "Toto"}}, ""); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}
	var out strings.Builder
	if err := fs.ToSieve(&out); err != nil {
		t.Fatalf("ToSieve: %v", err)
	}
	want := `require ["fileinto"];

# Filter: rule1
if anyof (not exists ["list-help", "list-unsubscribe"]) {
    fileinto "Toto";
}
`
	if out.String() != want {
		t.Errorf("ToSieve output mismatch:\n got:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestAddSizeFilter(t *testing.T) {
	fs := NewFilterSet("test")
	if err := fs.AddFilter("rule1",
		[]Condition{{"size", ":over", "100k"}},
		[]Action{{"fileinto", "Totoéé"}}, ""); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}
	var out strings.Builder
	if err := fs.ToSieve(&out); err != nil {
		t.Fatalf("ToSieve: %v", err)
	}
	want := `require ["fileinto"];

# Filter: rule1
if anyof (size :over 100k) {
    fileinto "Totoéé";
}
`
	if out.String() != want {
		t.Errorf("ToSieve output mismatch:\n got:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestRemoveFilter(t *testing.T) {
	fs := NewFilterSet("test")
	if err := fs.AddFilter("rule1",
		[]Condition{{"Sender", ":is", "toto@toto.com"}},
		[]Action{{"fileinto", "Toto"}}, ""); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}
	if fs.GetFilter("rule1") == nil {
		t.Fatal("rule1 should exist before removal")
	}
	if !fs.RemoveFilter("rule1") {
		t.Fatal("RemoveFilter returned false")
	}
	if fs.GetFilter("rule1") != nil {
		t.Error("rule1 should be gone after removal")
	}
}

// TestDisableFilter reproduces the original implementation's well-known
// quirk of extra spaces between "if" and "anyof" for a disabled filter: the
// wrapped rule's match-type command re-indents itself at its parent's
// level instead of at column zero. This is a grounded fidelity match, kept
// intentionally rather than "fixed".
func TestDisableFilter(t *testing.T) {
	fs := NewFilterSet("test")
	if err := fs.AddFilter("rule1",
		[]Condition{{"Sender", ":is", "toto@toto.com"}},
		[]Action{{"fileinto", "Toto"}}, ""); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}
	if !fs.DisableFilter("rule1") {
		t.Fatal("DisableFilter returned false")
	}
	var out strings.Builder
	if err := fs.ToSieve(&out); err != nil {
		t.Fatalf("ToSieve: %v", err)
	}
	want := "require [\"fileinto\"];\n\n" +
		"# Filter: rule1\n" +
		"if false {\n" +
		"    if     anyof (header :is \"Sender\" \"toto@toto.com\") {\n" +
		"        fileinto \"Toto\";\n" +
		"    }\n" +
		"}\n"
	if out.String() != want {
		t.Errorf("ToSieve output mismatch:\n got:\n%q\nwant:\n%q", out.String(), want)
	}
	if !fs.IsFilterDisabled("rule1") {
		t.Error("rule1 should report disabled")
	}
}

func TestEnableFilter(t *testing.T) {
	fs := NewFilterSet("test")
	if err := fs.AddFilter("rule1",
		[]Condition{{"Sender", ":is", "toto@toto.com"}},
		[]Action{{"fileinto", "Toto"}}, ""); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}
	fs.DisableFilter("rule1")
	if !fs.EnableFilter("rule1") {
		t.Fatal("EnableFilter returned false")
	}
	if fs.IsFilterDisabled("rule1") {
		t.Error("rule1 should report enabled again")
	}
	var out strings.Builder
	if err := fs.ToSieve(&out); err != nil {
		t.Fatalf("ToSieve: %v", err)
	}
	want := `require ["fileinto"];

# Filter: rule1
if anyof (header :is "Sender" "toto@toto.com") {
    fileinto "Toto";
}
`
	if out.String() != want {
		t.Errorf("re-enabled output mismatch:\n got:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestAddBodyFilter(t *testing.T) {
	fs := NewFilterSet("test")
	if err := fs.AddFilter("test",
		[]Condition{{"body", ":raw", ":contains", "matteo"}},
		[]Action{{"fileinto", "Toto"}}, ""); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}
	var out strings.Builder
	if err := fs.ToSieve(&out); err != nil {
		t.Fatalf("ToSieve: %v", err)
	}
	want := `require ["body", "fileinto"];

# Filter: test
if anyof (body :contains :raw ["matteo"]) {
    fileinto "Toto";
}
`
	if out.String() != want {
		t.Errorf("ToSieve output mismatch:\n got:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestAddEnvelopeFilter(t *testing.T) {
	fs := NewFilterSet("test")
	if err := fs.AddFilter("test",
		[]Condition{{"envelope", ":is", []string{"From"}, []string{"hello"}}},
		[]Action{{"fileinto", "INBOX"}}, ""); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}
	var out strings.Builder
	if err := fs.ToSieve(&out); err != nil {
		t.Fatalf("ToSieve: %v", err)
	}
	want := `require ["envelope", "fileinto"];

# Filter: test
if anyof (envelope :is ["From"] ["hello"]) {
    fileinto "INBOX";
}
`
	if out.String() != want {
		t.Errorf("ToSieve output mismatch:\n got:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestAddNotEnvelopeFilter(t *testing.T) {
	fs := NewFilterSet("test")
	if err := fs.AddFilter("test",
		[]Condition{{"envelope", ":notis", []string{"From"}, []string{"hello"}}},
		[]Action{{"fileinto", "INBOX"}}, ""); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}
	var out strings.Builder
	if err := fs.ToSieve(&out); err != nil {
		t.Fatalf("ToSieve: %v", err)
	}
	want := `require ["envelope", "fileinto"];

# Filter: test
if anyof (not envelope :is ["From"] ["hello"]) {
    fileinto "INBOX";
}
`
	if out.String() != want {
		t.Errorf("ToSieve output mismatch:\n got:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestAddCurrentdateFilter(t *testing.T) {
	fs := NewFilterSet("test")
	if err := fs.AddFilter("test",
		[]Condition{{"currentdate", ":zone", "+0100", ":is", "date", "2019-02-26"}},
		[]Action{{"fileinto", "INBOX"}}, ""); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}
	var out strings.Builder
	if err := fs.ToSieve(&out); err != nil {
		t.Fatalf("ToSieve: %v", err)
	}
	want := `require ["date", "fileinto"];

# Filter: test
if anyof (currentdate :zone "+0100" :is "date" ["2019-02-26"]) {
    fileinto "INBOX";
}
`
	if out.String() != want {
		t.Errorf("ToSieve output mismatch:\n got:\n%s\nwant:\n%s", out.String(), want)
	}
}

// TestAddCurrentdateRelationalFilter exercises the :value relational
// match-type, which requires both "date" and "relational". This
// implementation resolves a condition's full require-set (its own gating
// extension plus every tag-implied one) before moving on to actions, so
// "relational" lands ahead of "fileinto" in the require list.
func TestAddCurrentdateRelationalFilter(t *testing.T) {
	fs := NewFilterSet("test")
	if err := fs.AddFilter("test",
		[]Condition{{"currentdate", ":zone", "+0100", ":value", "gt", "date", "2019-02-26"}},
		[]Action{{"fileinto", "INBOX"}}, ""); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}
	var out strings.Builder
	if err := fs.ToSieve(&out); err != nil {
		t.Fatalf("ToSieve: %v", err)
	}
	want := `require ["date", "relational", "fileinto"];

# Filter: test
if anyof (currentdate :zone "+0100" :value "gt" "date" ["2019-02-26"]) {
    fileinto "INBOX";
}
`
	if out.String() != want {
		t.Errorf("ToSieve output mismatch:\n got:\n%s\nwant:\n%s", out.String(), want)
	}
}
