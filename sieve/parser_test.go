package sieve

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// cmdEqualOpts ignores the cursor/back-reference fields a structural
// equality check over two independently-parsed trees should never compare:
// Parent would make cmp walk into a cycle, and spec/exts/cursor fields are
// either shared-by-pointer-but-irrelevant or parser-instance-local.
var cmdEqualOpts = cmp.Options{
	cmp.AllowUnexported(Command{}),
	cmpopts.IgnoreFields(Command{}, "Parent", "spec", "exts", "nextArgPos", "rargsCnt", "requiredArgs", "curArg", "Comments", "Line"),
}

func mustParse(t *testing.T, src string) []*Command {
	t.Helper()
	p := NewParser()
	cmds, err := p.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return cmds
}

func serialize(t *testing.T, cmds []*Command) string {
	t.Helper()
	var out strings.Builder
	for _, c := range cmds {
		if err := c.ToSieve(&out, 0); err != nil {
			t.Fatalf("ToSieve: %v", err)
		}
	}
	return out.String()
}

// TestParseSizeTest is spec.md §8 scenario 1.
func TestParseSizeTest(t *testing.T) {
	cmds := mustParse(t, `if size :over 100k { discard; }`)
	if len(cmds) != 1 {
		t.Fatalf("got %d top-level commands, want 1", len(cmds))
	}
	ifCmd := cmds[0]
	if ifCmd.Name != "if" {
		t.Fatalf("top-level command = %q, want if", ifCmd.Name)
	}
	testVal, ok := ifCmd.Arg("test")
	if !ok {
		t.Fatal("if has no bound test")
	}
	sizeCmd, ok := testVal.(*Command)
	if !ok || sizeCmd.Name != "size" {
		t.Fatalf("if's test = %v, want a size command", testVal)
	}
	if over, _ := sizeCmd.Arg("comparator"); over != ":over" {
		t.Errorf("size comparator = %v, want :over", over)
	}
	if limit, _ := sizeCmd.Arg("limit"); limit != "100k" {
		t.Errorf("size limit = %v, want 100k", limit)
	}
	if len(ifCmd.Children) != 1 || ifCmd.Children[0].Name != "discard" {
		t.Errorf("if's children = %v, want a single discard", ifCmd.Children)
	}
}

// TestParseRFC5228Example is spec.md §8 scenario 2 (abridged to the
// require/if/elsif/else skeleton the scenario actually checks).
func TestParseRFC5228Example(t *testing.T) {
	src := `require ["fileinto"];

if header :is "Sender" "owner-ietf-mta-filters@imc.org" {
    fileinto "filter";
} elsif address :domain :is ["From","To"] "example.com" {
    keep;
} else {
    fileinto "personal";
}
`
	p := NewParser()
	cmds, err := p.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cmds) != 4 {
		t.Fatalf("got %d top-level commands, want 4 (require, if, elsif, else)", len(cmds))
	}
	if cmds[0].Name != "require" || cmds[1].Name != "if" || cmds[2].Name != "elsif" || cmds[3].Name != "else" {
		names := []string{cmds[0].Name, cmds[1].Name, cmds[2].Name, cmds[3].Name}
		t.Fatalf("top-level names = %v, want [require if elsif else]", names)
	}
	if !p.Extensions().Has("fileinto") {
		t.Error(`Extensions() should contain "fileinto" after parsing the require statement`)
	}
}

// TestParseGatingFailure is spec.md §8 scenario 3: a fileinto used without
// requiring its extension first must fail with ExtensionNotLoadedError (or
// UnknownCommandError, per the registry's single gating check).
func TestParseGatingFailure(t *testing.T) {
	p := NewParser()
	_, err := p.Parse([]byte(`if header :contains "Subject" "FAST" { fileinto "spam"; }`))
	if err == nil {
		t.Fatal("expected a gating error, got nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "fileinto") {
		t.Errorf("error %q should mention fileinto", msg)
	}
}

// TestElsifMustFollowIf rejects a dangling elsif.
func TestElsifMustFollowIf(t *testing.T) {
	p := NewParser()
	_, err := p.Parse([]byte(`stop; elsif true { keep; }`))
	if err == nil {
		t.Fatal("expected a ParseError for a dangling elsif")
	}
}

// TestUnmatchedBlockFailsAtEOF checks premature end-of-input is reported,
// not silently accepted.
func TestUnmatchedBlockFailsAtEOF(t *testing.T) {
	p := NewParser()
	if _, err := p.Parse([]byte(`if true { keep;`)); err == nil {
		t.Fatal("expected an error for an unterminated block")
	}
}

// TestWalkVisitsEveryNodeOnce checks the §8 Walk() invariant over a tree
// with nested tests, a testlist, and action children.
func TestWalkVisitsEveryNodeOnce(t *testing.T) {
	cmds := mustParse(t, `
require ["fileinto"];
if anyof (header :is "Subject" "hi", not exists "X-Spam") {
    fileinto "x";
    stop;
}
`)
	seen := map[*Command]bool{}
	var total int
	for _, top := range cmds {
		for _, n := range top.Walk() {
			total++
			if seen[n] {
				t.Fatalf("Walk revisited node %p (%s)", n, n.Name)
			}
			seen[n] = true
		}
	}
	if total != len(seen) {
		t.Errorf("total walked = %d, unique = %d", total, len(seen))
	}
	// require, if, anyof, header, not, exists, fileinto, stop = 8
	if total != 8 {
		t.Errorf("walked %d nodes, want 8", total)
	}
}

// TestParseRoundTrip checks spec.md §8's round-trip law: re-parsing the
// serialised form of a parsed script yields a structurally equal tree,
// across a small corpus exercising nested blocks, testlists, negation and
// the extension catalogue.
func TestParseRoundTrip(t *testing.T) {
	corpus := []string{
		`if size :over 100K { discard; }`,
		`require ["fileinto", "copy"];
if anyof (header :is "Subject" "hi", not exists ["X-Spam"]) {
    fileinto :copy "x";
} else {
    keep;
}`,
		`require ["imap4flags"];
if hasflag "\\Seen" {
    discard;
}`,
		`require ["fileinto", "relational"];
if header :count "ge" :comparator "i;ascii-casemap" ["X-N"] ["3"] {
    fileinto "big";
}`,
	}

	for i, src := range corpus {
		first := mustParse(t, src)
		out := serialize(t, first)
		second := mustParse(t, out)

		if diff := cmp.Diff(first, second, cmdEqualOpts); diff != "" {
			t.Errorf("corpus[%d]: round-trip mismatch (-first +second):\n%s\nserialised form:\n%s", i, diff, out)
		}
	}
}

// TestHashCommentsAttachToNextCommand checks the parser's comment-buffering
// contract the filter factory's FromParserResult depends on.
func TestHashCommentsAttachToNextCommand(t *testing.T) {
	cmds := mustParse(t, "# Filter: vacation-rule\n# Description: out of office\nif true { keep; }\n")
	if len(cmds) != 1 {
		t.Fatalf("got %d top-level commands, want 1", len(cmds))
	}
	if len(cmds[0].Comments) != 2 {
		t.Fatalf("comments = %v, want 2 entries", cmds[0].Comments)
	}
	if cmds[0].Comments[0] != "Filter: vacation-rule" {
		t.Errorf("comments[0] = %q", cmds[0].Comments[0])
	}
}
