package sieve

import (
	"fmt"
)

// Parser turns SIEVE source into a forest of top-level Command nodes. It is
// a recursive-descent translation of parser.py's ad hoc state machine: the
// grammar is small enough, and a real in-memory Lexer (vs. the source's
// line-at-a-time tokenizer) makes plain recursive descent the natural Go
// shape rather than porting the state-table.
//
// A Parser owns its own ExtensionSet, never a package-level one, per
// spec.md §9's "loaded_extensions must not be process-wide" note.
type Parser struct {
	lex      *Lexer
	peeked   *Token
	comments []string

	exts   *ExtensionSet
	result []*Command
	err    error
}

// NewParser returns a Parser with a fresh, empty extension set.
func NewParser() *Parser {
	return &Parser{exts: NewExtensionSet()}
}

// Extensions returns the set of extensions required ("require"-d) by the
// parsed script.
func (p *Parser) Extensions() *ExtensionSet { return p.exts }

// Result returns the top-level commands parsed by the last call to Parse.
func (p *Parser) Result() []*Command { return p.result }

// Parse tokenizes and parses src, returning the top-level command list.
func (p *Parser) Parse(src []byte) ([]*Command, error) {
	p.lex = NewLexer(src)
	p.peeked = nil
	p.comments = nil
	p.result = nil
	p.err = nil
	p.exts = NewExtensionSet()

	cmds, err := p.parseBlock(nil)
	if err != nil {
		return nil, err
	}
	p.result = cmds
	return cmds, nil
}

// next returns the next non-comment token, buffering comments it passes
// over so the next parsed command can claim them.
func (p *Parser) next() (Token, error) {
	if p.peeked != nil {
		t := *p.peeked
		p.peeked = nil
		return t, nil
	}
	for {
		t, err := p.lex.Next()
		if err != nil {
			return Token{}, err
		}
		if t.Kind == HashComment {
			p.comments = append(p.comments, t.Lexeme)
			continue
		}
		if t.Kind == BracketComment {
			continue
		}
		return t, nil
	}
}

func (p *Parser) peek() (Token, error) {
	if p.peeked == nil {
		t, err := p.next()
		if err != nil {
			return Token{}, err
		}
		p.peeked = &t
	}
	return *p.peeked, nil
}

func (p *Parser) takeComments() []string {
	if len(p.comments) == 0 {
		return nil
	}
	c := p.comments
	p.comments = nil
	return c
}

func perr(t Token, format string, args ...any) error {
	return &ParseError{Msg: fmt.Sprintf(format, args...), Line: t.Line, Col: t.Col, TokenLen: len(t.Lexeme)}
}

// parseBlock parses commands until it sees a RightCBracket (nested block) or
// EOF (top level), enforcing elsif/else's MustFollow constraint against the
// previous sibling in the same block.
func (p *Parser) parseBlock(parent *Command) ([]*Command, error) {
	var out []*Command
	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if tok.Kind == EOF || tok.Kind == RightCBracket {
			return out, nil
		}
		if tok.Kind != Identifier {
			return nil, perr(tok, "expected a command, got %s", tok.Kind)
		}

		cmd, err := p.parseCommand(parent)
		if err != nil {
			return nil, err
		}

		if mf := cmd.MustFollow(); mf != nil {
			if len(out) == 0 || !containsFold(mf, out[len(out)-1].Name) {
				return nil, perr(tok, "%s must directly follow one of %v", cmd.Name, mf)
			}
		}
		out = append(out, cmd)
	}
}

// parseCommand parses one identifier-led command: its arguments, then
// either a terminating semicolon or a child block.
func (p *Parser) parseCommand(parent *Command) (*Command, error) {
	nameTok, err := p.next()
	if err != nil {
		return nil, err
	}
	comments := p.takeComments()

	cmd, err := New(nameTok.Lexeme, parent, p.exts, true)
	if err != nil {
		return nil, perr(nameTok, "%s", err)
	}
	cmd.Comments = comments
	cmd.Line = nameTok.Line
	if parent != nil {
		parent.AddChild(cmd)
	}

	if err := p.parseArguments(cmd); err != nil {
		return nil, err
	}

	if cmd.spec.NonDeterministic {
		cmd.ReassignArguments()
	}

	if cmd.AcceptsChildren() {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if tok.Kind != LeftCBracket {
			return nil, perr(tok, "expected '{' after %s, got %s", cmd.Name, tok.Kind)
		}
		children, err := p.parseBlock(cmd)
		if err != nil {
			return nil, err
		}
		cmd.Children = children
		tok, err = p.next()
		if err != nil {
			return nil, err
		}
		if tok.Kind != RightCBracket {
			return nil, perr(tok, "expected '}', got %s", tok.Kind)
		}
		return cmd, nil
	}

	if cmd.Kind != Test {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if tok.Kind != Semicolon {
			return nil, perr(tok, "expected ';' after %s, got %s", cmd.Name, tok.Kind)
		}
		if cmd.Name == "require" {
			cmd.CompleteCB()
		}
	}

	return cmd, nil
}

// parseArguments repeatedly reads one argument and binds it via
// CheckNextArg until cmd reports completion (or, for a test command whose
// sole job is to sit inside a parent's argument list, until the next token
// cannot possibly be another argument).
func (p *Parser) parseArguments(cmd *Command) error {
	for {
		tok, err := p.peek()
		if err != nil {
			return err
		}

		switch tok.Kind {
		case Semicolon, LeftCBracket, RightParen, Comma, EOF:
			return nil
		}

		if cmd.IsComplete() && !cmd.spec.VariableArgsNB {
			return nil
		}

		switch tok.Kind {
		case Tag:
			p.next()
			if ok, err := cmd.CheckNextArg(TTag, tok.Lexeme, true, true); err != nil {
				return perr(tok, "%s", err)
			} else if !ok {
				return perr(tok, "unexpected tag %s for %s", tok.Lexeme, cmd.Name)
			}
		case Number:
			p.next()
			if ok, err := cmd.CheckNextArg(TNumber, tok.Lexeme, true, true); err != nil {
				return perr(tok, "%s", err)
			} else if !ok {
				return perr(tok, "unexpected number %s for %s", tok.Lexeme, cmd.Name)
			}
		case String, Multiline:
			p.next()
			if ok, err := cmd.CheckNextArg(TString, tok.Lexeme, true, true); err != nil {
				return perr(tok, "%s", err)
			} else if !ok {
				return perr(tok, "unexpected string for %s", cmd.Name)
			}
		case LeftBracket:
			list, err := p.parseStringList()
			if err != nil {
				return err
			}
			if ok, err := cmd.CheckNextArg(TStringList, list, true, true); err != nil {
				return perr(tok, "%s", err)
			} else if !ok {
				return perr(tok, "unexpected string list for %s", cmd.Name)
			}
		case LeftParen:
			if err := p.parseTestList(cmd); err != nil {
				return err
			}
		case Identifier:
			sub, err := p.parseCommand(nil)
			if err != nil {
				return err
			}
			if ok, err := cmd.CheckNextArg(TTest, sub, true, true); err != nil {
				return perr(tok, "%s", err)
			} else if !ok {
				return perr(tok, "unexpected test %s for %s", sub.Name, cmd.Name)
			}
		default:
			return perr(tok, "unexpected token %s while parsing %s arguments", tok.Kind, cmd.Name)
		}
	}
}

func (p *Parser) parseStringList() ([]string, error) {
	open, err := p.next() // consume '['
	if err != nil {
		return nil, err
	}
	var out []string
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		switch tok.Kind {
		case String:
			out = append(out, tok.Lexeme)
		case RightBracket:
			return out, nil
		case Comma:
			continue
		default:
			return nil, perr(tok, "expected string in list opened at line %d, got %s", open.Line, tok.Kind)
		}
	}
}

// parseTestList parses a parenthesised "(" test *("," test) ")" argument,
// binding each nested test one at a time into cmd's required testlist slot.
func (p *Parser) parseTestList(cmd *Command) error {
	open, err := p.next() // consume '('
	if err != nil {
		return err
	}
	for {
		tok, err := p.peek()
		if err != nil {
			return err
		}
		if tok.Kind == RightParen {
			p.next()
			return nil
		}
		if tok.Kind != Identifier {
			return perr(tok, "expected a test inside list opened at line %d, got %s", open.Line, tok.Kind)
		}
		sub, err := p.parseCommand(nil)
		if err != nil {
			return err
		}
		if ok, err := cmd.CheckNextArg(TTest, sub, true, true); err != nil {
			return perr(tok, "%s", err)
		} else if !ok {
			return perr(tok, "unexpected test %s for %s", sub.Name, cmd.Name)
		}

		tok, err = p.peek()
		if err != nil {
			return err
		}
		if tok.Kind == Comma {
			p.next()
			continue
		}
	}
}
