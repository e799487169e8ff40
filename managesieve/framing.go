package managesieve

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// sizeExpr recognises a literal announcement such as "{1234}" or
// "{1234+}" (the "+" marks a non-synchronising literal; either form is
// read the same way, by the announced byte count), mirroring
// managesieve.py's size_expr.
var sizeExpr = regexp.MustCompile(`^\{(\d+)\+?\}$`)

// respcodeExpr recognises a final status line: "OK", "NO" or "BYE",
// optionally followed by free text (itself possibly a quoted string or a
// literal announcement), mirroring managesieve.py's respcode_expr.
var respcodeExpr = regexp.MustCompile(`(?i)^(OK|NO|BYE)\s*(.*)$`)

// errorExpr pulls an optional leading response code (e.g. "(AUTH-TOO-WEAK)")
// off a quoted error message, mirroring managesieve.py's error_expr.
var errorExpr = regexp.MustCompile(`^(\([\w/-]+\))?\s*"(.*)"$`)

// frameReader reads CRLF-terminated lines and length-prefixed literals off
// a MANAGESIEVE connection, adapting the teacher's literal()/
// literalLength()/literalRest() split to a line-oriented (rather than
// IMAP's command-oriented) protocol.
type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReaderSize(r, 4096)}
}

// readLine reads one line, trimming its trailing CRLF (or bare LF).
func (f *frameReader) readLine() (string, error) {
	line, err := f.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readLiteral reads exactly n raw bytes followed by the CRLF that always
// terminates a literal's content.
func (f *frameReader) readLiteral(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.r, buf); err != nil {
		return "", fmt.Errorf("managesieve: short literal read: %w", err)
	}
	if _, err := f.readLine(); err != nil {
		return "", err
	}
	return string(buf), nil
}

// readItem reads one logical response item: either a plain line, or, when
// the line is exactly a "{N}"/"{N+}" literal announcement, the N bytes of
// literal content that follow it.
func (f *frameReader) readItem() (string, error) {
	line, err := f.readLine()
	if err != nil {
		return "", err
	}
	if m := sizeExpr.FindStringSubmatch(line); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return "", fmt.Errorf("managesieve: bad literal length %q: %w", m[1], err)
		}
		return f.readLiteral(n)
	}
	return line, nil
}

// finalStatus is the parsed form of the OK/NO/BYE line that ends every
// MANAGESIEVE response.
type finalStatus struct {
	Kind string // "OK", "NO" or "BYE"
	Code string
	Text string
}

func (s finalStatus) ok() bool { return strings.EqualFold(s.Kind, "OK") }

// readResponse reads response items until it hits the terminating
// OK/NO/BYE line, returning the items seen before it and the parsed
// status. A literal announcement that stands in for the status line's own
// message (e.g. `NO (QUOTA) {12}`) is read here and becomes its Text.
func (f *frameReader) readResponse() ([]string, finalStatus, error) {
	var items []string
	for {
		item, err := f.readItem()
		if err != nil {
			return items, finalStatus{}, err
		}
		if m := respcodeExpr.FindStringSubmatch(item); m != nil {
			status := finalStatus{Kind: strings.ToUpper(m[1])}
			if rest := strings.TrimSpace(m[2]); rest != "" {
				if em := errorExpr.FindStringSubmatch(rest); em != nil {
					status.Code, status.Text = em[1], em[2]
				} else {
					code, tail := "", rest
					if i := strings.Index(rest, ")"); strings.HasPrefix(rest, "(") && i > 0 {
						code, tail = rest[:i+1], strings.TrimSpace(rest[i+1:])
					}
					if lm := sizeExpr.FindStringSubmatch(tail); lm != nil {
						n, _ := strconv.Atoi(lm[1])
						status.Code = code
						if status.Text, err = f.readLiteral(n); err != nil {
							return items, finalStatus{}, err
						}
					} else {
						status.Text = strings.Trim(rest, `"`)
					}
				}
			}
			return items, status, nil
		}
		items = append(items, item)
	}
}

// prepareArg renders one command argument: a literal announcement
// ("{N}"/"{N+}") passes through untouched, anything else is double-quoted
// with embedded quotes escaped.
func prepareArg(arg string) string {
	if sizeExpr.MatchString(arg) {
		return arg
	}
	return `"` + strings.ReplaceAll(arg, `"`, `\"`) + `"`
}

// writeCommand writes one verb line, passing each argument through
// prepareArg when quoted is true and writing it as-is otherwise, mirroring
// managesieve.py's __prepare_args/__send_command.
func writeCommand(w io.Writer, verb string, quoted bool, args ...string) error {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, verb)
	for _, a := range args {
		if quoted {
			parts = append(parts, prepareArg(a))
		} else {
			parts = append(parts, a)
		}
	}
	_, err := io.WriteString(w, strings.Join(parts, " ")+"\r\n")
	return err
}

// writeContent writes content as a non-synchronising "{N+}" literal
// followed by its raw bytes (used for the client's SASL responses),
// mirroring managesieve.py's __prepare_content.
func writeContent(w io.Writer, content string) error {
	if _, err := fmt.Fprintf(w, "{%d+}\r\n", len(content)); err != nil {
		return err
	}
	if _, err := io.WriteString(w, content); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
