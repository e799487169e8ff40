// Package managesieve implements a RFC 5804 MANAGESIEVE client: connect,
// optionally STARTTLS, authenticate via SASL, then list, fetch, upload,
// delete, rename, (de)activate and syntax-check SIEVE scripts on a mail
// server. A Client is configured with functional options and logs each
// line prefixed with a per-connection id.
package managesieve

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultPort is the IANA-assigned MANAGESIEVE port (RFC 5804 §1.1).
const DefaultPort = 4190

// Dialer opens the raw TCP connection a Client speaks MANAGESIEVE over.
// Its default is net.Dialer.DialContext; WithDialer overrides it, chiefly
// for tests (net.Pipe has no "dial").
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

// Option configures a Client at construction time.
type Option func(*Client)

// WithPort overrides the default MANAGESIEVE port (4190).
func WithPort(port int) Option {
	return func(c *Client) { c.port = port }
}

// WithReadTimeout bounds how long each client call may spend on I/O
// (default 5s). The deadline is set once when the call starts and covers
// all of that call's reads and writes together; it is not renewed per read.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) { c.readTimeout = d }
}

// WithTLSConfig supplies the tls.Config used by StartTLS. Connect always
// dials plain TCP; there is no implicit-TLS mode.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) { c.tlsConfig = cfg }
}

// WithAuthMech pins the SASL mechanism Authenticate uses, bypassing the
// usual DIGEST-MD5/PLAIN/LOGIN/OAUTHBEARER preference order.
func WithAuthMech(mech string) Option {
	return func(c *Client) { c.authMech = mech }
}

// WithLogger attaches a logger; by default the client logs nothing.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithDialer overrides how the client opens its TCP connection.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// Client is a single MANAGESIEVE connection. It is not safe for concurrent
// use: one Client serialises to one connection, one goroutine at a time,
// matching the protocol's own strict command/response turn-taking.
type Client struct {
	host string
	port int

	dialer      Dialer
	readTimeout time.Duration
	tlsConfig   *tls.Config
	authMech    string
	logger      *log.Logger

	id   string
	conn net.Conn
	fr   *frameReader

	caps          capabilities
	authenticated bool
}

// NewClient returns a Client that will connect to host (DefaultPort unless
// WithPort overrides it).
func NewClient(host string, opts ...Option) *Client {
	c := &Client{
		host:        host,
		port:        DefaultPort,
		readTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capabilities returns the capability set most recently advertised by the
// server (at greeting, or after CAPABILITY/STARTTLS/AUTHENTICATE).
func (c *Client) Capabilities() map[string]string {
	out := make(map[string]string, len(c.caps))
	for k, v := range c.caps {
		out[k] = v
	}
	return out
}

// log writes info to the configured logger, prefixed with this
// connection's id, mirroring the teacher session's log method.
func (c *Client) log(info ...interface{}) {
	if c.logger == nil {
		return
	}
	preamble := fmt.Sprintf("MANAGESIEVE (%s) ", c.id)
	message := append([]interface{}{preamble}, info...)
	c.logger.Print(message...)
}

func (c *Client) setConn(conn net.Conn) {
	c.conn = conn
	c.fr = newFrameReader(conn)
}

// withContext runs fn, closing the connection and returning ctx.Err() if
// ctx is cancelled first. This is the sole concurrency primitive a Client
// needs: one goroutine drives the blocking I/O, another only ever closes
// the socket out from under it.
func (c *Client) withContext(ctx context.Context, fn func() error) error {
	if c.conn != nil && c.readTimeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.readTimeout))
	}
	if ctx == nil || ctx.Done() == nil {
		return fn()
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if c.conn != nil {
			c.conn.Close()
		}
		<-done
		return ctx.Err()
	}
}

// Connect dials the server and reads its capability greeting.
func (c *Client) Connect(ctx context.Context) error {
	return c.withContext(ctx, func() error {
		dial := c.dialer
		if dial == nil {
			var d net.Dialer
			dial = d.DialContext
		}
		addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))
		conn, err := dial(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		c.setConn(conn)
		if c.readTimeout > 0 {
			c.conn.SetDeadline(time.Now().Add(c.readTimeout))
		}
		id, err := uuid.NewRandom()
		if err != nil {
			c.id = addr
		} else {
			c.id = id.String()
		}
		c.log("connected to", addr)

		items, status, err := c.fr.readResponse()
		if err != nil {
			return err
		}
		if !status.ok() {
			return &Error{Code: status.Code, Msg: status.Text}
		}
		c.caps = parseCapabilities(items)
		return nil
	})
}

// StartTLS upgrades the connection in place, per RFC 5804 §2.2: issue
// STARTTLS, perform the handshake, then re-read the capability greeting
// the server resends over the encrypted channel.
func (c *Client) StartTLS(ctx context.Context) error {
	if c.conn == nil {
		return errNotConnected
	}
	return c.withContext(ctx, func() error {
		if err := writeCommand(c.conn, "STARTTLS", false); err != nil {
			return err
		}
		if err := c.expectOK(); err != nil {
			return err
		}

		cfg := c.tlsConfig
		if cfg == nil {
			cfg = &tls.Config{ServerName: c.host}
		} else if cfg.ServerName == "" {
			clone := cfg.Clone()
			clone.ServerName = c.host
			cfg = clone
		}
		tlsConn := tls.Client(c.conn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return err
		}
		c.setConn(tlsConn)
		c.log("STARTTLS negotiated")

		items, status, err := c.fr.readResponse()
		if err != nil {
			return err
		}
		if !status.ok() {
			return &Error{Code: status.Code, Msg: status.Text}
		}
		c.caps = parseCapabilities(items)
		return nil
	})
}

// Capability re-issues CAPABILITY and refreshes the cached capability set.
func (c *Client) Capability(ctx context.Context) (map[string]string, error) {
	if c.conn == nil {
		return nil, errNotConnected
	}
	var out map[string]string
	err := c.withContext(ctx, func() error {
		if err := writeCommand(c.conn, "CAPABILITY", false); err != nil {
			return err
		}
		items, status, err := c.fr.readResponse()
		if err != nil {
			return err
		}
		if !status.ok() {
			return &Error{Code: status.Code, Msg: status.Text}
		}
		c.caps = parseCapabilities(items)
		out = c.Capabilities()
		return nil
	})
	return out, err
}

// Authenticate selects a SASL mechanism (WithAuthMech's pin, or the first
// of DIGEST-MD5/PLAIN/LOGIN/OAUTHBEARER the server advertises) and runs
// it. authzID may be empty.
func (c *Client) Authenticate(ctx context.Context, user, pass, authzID string) error {
	if c.conn == nil {
		return errNotConnected
	}
	return c.withContext(ctx, func() error {
		mech, err := selectAuthMech(c.authMech, c.caps.saslMechs())
		if err != nil {
			return err
		}
		c.log("authenticating", user, "via", mech)

		switch mech {
		case MechPlain:
			return c.authSimple(mech, plainResponse(authzID, user, pass))
		case MechOAuthBearer:
			return c.authSimple(mech, oauthBearerResponse(user, pass))
		case MechLogin:
			return c.authLogin(user, pass)
		case MechDigestMD5:
			return c.authDigestMD5(user, pass, authzID)
		default:
			return fmt.Errorf("managesieve: unsupported auth mechanism %q", mech)
		}
	})
}

func (c *Client) authSimple(mech, resp string) error {
	if err := writeCommand(c.conn, "AUTHENTICATE", true, mech, resp); err != nil {
		return err
	}
	return c.finishAuth()
}

func (c *Client) authLogin(user, pass string) error {
	if err := writeCommand(c.conn, "AUTHENTICATE", true, MechLogin); err != nil {
		return err
	}
	if _, err := c.fr.readItem(); err != nil { // "Username:" challenge, unused
		return err
	}
	if err := writeContent(c.conn, loginUserResponse(user)); err != nil {
		return err
	}
	if _, err := c.fr.readItem(); err != nil { // "Password:" challenge, unused
		return err
	}
	if err := writeContent(c.conn, loginPassResponse(pass)); err != nil {
		return err
	}
	return c.finishAuth()
}

func (c *Client) authDigestMD5(user, pass, authzID string) error {
	if err := writeCommand(c.conn, "AUTHENTICATE", true, MechDigestMD5); err != nil {
		return err
	}
	challenge, err := c.fr.readItem()
	if err != nil {
		return err
	}
	dmd5, err := newDigestMD5(challenge, "sieve/"+c.host)
	if err != nil {
		return err
	}
	resp, err := dmd5.response(user, pass, authzID)
	if err != nil {
		return err
	}
	if err := writeContent(c.conn, resp); err != nil {
		return err
	}

	final, err := c.fr.readItem()
	if err != nil {
		return err
	}
	ok, err := dmd5.checkLastChallenge(user, pass, final)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("managesieve: server's rspauth confirmation did not match")
	}
	if err := writeContent(c.conn, ""); err != nil {
		return err
	}
	return c.finishAuth()
}

func (c *Client) finishAuth() error {
	items, status, err := c.fr.readResponse()
	if err != nil {
		return err
	}
	if !status.ok() {
		return &Error{Code: status.Code, Msg: status.Text}
	}
	c.authenticated = true
	if len(items) > 0 {
		c.caps = parseCapabilities(items)
	}
	return nil
}

// Logout sends LOGOUT and closes the connection.
func (c *Client) Logout(ctx context.Context) error {
	if c.conn == nil {
		return nil
	}
	err := c.withContext(ctx, func() error {
		if err := writeCommand(c.conn, "LOGOUT", false); err != nil {
			return err
		}
		_, _, err := c.fr.readResponse()
		return err
	})
	closeErr := c.conn.Close()
	c.conn = nil
	c.authenticated = false
	if err != nil {
		return err
	}
	return closeErr
}

func (c *Client) requireAuth() error {
	if !c.authenticated {
		return errAuthRequired
	}
	if c.conn == nil {
		return errNotConnected
	}
	return nil
}

func (c *Client) expectOK() error {
	_, status, err := c.fr.readResponse()
	if err != nil {
		return err
	}
	if !status.ok() {
		return &Error{Code: status.Code, Msg: status.Text}
	}
	return nil
}

// Listscripts returns the server's active script name ("" if none) and the
// names of every other script it holds, mirroring managesieve.py's
// listscripts (the active script is reported once, as its own return
// value, not duplicated into the list).
func (c *Client) Listscripts(ctx context.Context) (active string, scripts []string, err error) {
	if err := c.requireAuth(); err != nil {
		return "", nil, err
	}
	err = c.withContext(ctx, func() error {
		if err := writeCommand(c.conn, "LISTSCRIPTS", false); err != nil {
			return err
		}
		items, status, err := c.fr.readResponse()
		if err != nil {
			return err
		}
		if !status.ok() {
			return &Error{Code: status.Code, Msg: status.Text}
		}
		for _, item := range items {
			name, isActive := parseScriptListLine(item)
			if name == "" {
				continue
			}
			if isActive {
				active = name
				continue
			}
			scripts = append(scripts, name)
		}
		return nil
	})
	return active, scripts, err
}

// Getscript fetches a script's content.
func (c *Client) Getscript(ctx context.Context, name string) (string, error) {
	if err := c.requireAuth(); err != nil {
		return "", err
	}
	var content string
	err := c.withContext(ctx, func() error {
		if err := writeCommand(c.conn, "GETSCRIPT", true, name); err != nil {
			return err
		}
		items, status, err := c.fr.readResponse()
		if err != nil {
			return err
		}
		if !status.ok() {
			return &Error{Code: status.Code, Msg: status.Text}
		}
		if len(items) > 0 {
			content = items[0]
		}
		return nil
	})
	return content, err
}

// Putscript uploads content as script name, creating or overwriting it.
func (c *Client) Putscript(ctx context.Context, name, content string) error {
	if err := c.requireAuth(); err != nil {
		return err
	}
	return c.withContext(ctx, func() error {
		if err := sendVerbWithLiteral(c.conn, "PUTSCRIPT", name, content); err != nil {
			return err
		}
		return c.expectOK()
	})
}

// Deletescript removes a script from the server.
func (c *Client) Deletescript(ctx context.Context, name string) error {
	if err := c.requireAuth(); err != nil {
		return err
	}
	return c.withContext(ctx, func() error {
		if err := writeCommand(c.conn, "DELETESCRIPT", true, name); err != nil {
			return err
		}
		return c.expectOK()
	})
}

// Setactive marks name as the server's single active script; an empty
// name deactivates whichever script is currently active.
func (c *Client) Setactive(ctx context.Context, name string) error {
	if err := c.requireAuth(); err != nil {
		return err
	}
	return c.withContext(ctx, func() error {
		if err := writeCommand(c.conn, "SETACTIVE", true, name); err != nil {
			return err
		}
		return c.expectOK()
	})
}

// Havespace asks whether the server has room for a script named name of
// the given size.
func (c *Client) Havespace(ctx context.Context, name string, size int64) error {
	if err := c.requireAuth(); err != nil {
		return err
	}
	return c.withContext(ctx, func() error {
		if _, err := fmt.Fprintf(c.conn, "HAVESPACE %s %d\r\n", prepareArg(name), size); err != nil {
			return err
		}
		return c.expectOK()
	})
}

// Checkscript asks the server to validate content without storing it.
func (c *Client) Checkscript(ctx context.Context, content string) error {
	if err := c.requireAuth(); err != nil {
		return err
	}
	return c.withContext(ctx, func() error {
		if err := sendLiteral(c.conn, "CHECKSCRIPT", content); err != nil {
			return err
		}
		return c.expectOK()
	})
}

// Renamescript renames a script, using the server's native RENAMESCRIPT
// verb when its advertised VERSION supports it (RFC 5804 §2.10.1), and
// otherwise simulating it via LISTSCRIPTS/GETSCRIPT/PUTSCRIPT/SETACTIVE/
// DELETESCRIPT. The simulated path aborts, without rolling back, on the
// first step that fails.
func (c *Client) Renamescript(ctx context.Context, oldname, newname string) error {
	if err := c.requireAuth(); err != nil {
		return err
	}
	if c.caps.supportsRenamescript() {
		return c.withContext(ctx, func() error {
			if err := writeCommand(c.conn, "RENAMESCRIPT", true, oldname, newname); err != nil {
				return err
			}
			return c.expectOK()
		})
	}
	return c.simulateRenamescript(ctx, oldname, newname)
}

func (c *Client) simulateRenamescript(ctx context.Context, oldname, newname string) error {
	active, scripts, err := c.Listscripts(ctx)
	if err != nil {
		return err
	}
	found := active == oldname
	for _, s := range scripts {
		if s == oldname {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("managesieve: script %q does not exist", oldname)
	}
	content, err := c.Getscript(ctx, oldname)
	if err != nil {
		return err
	}
	if err := c.Putscript(ctx, newname, content); err != nil {
		return err
	}
	if active == oldname {
		if err := c.Setactive(ctx, newname); err != nil {
			return err
		}
	}
	return c.Deletescript(ctx, oldname)
}

func sendVerbWithLiteral(w io.Writer, verb, name, content string) error {
	if _, err := fmt.Fprintf(w, "%s %s {%d+}\r\n", verb, prepareArg(name), len(content)); err != nil {
		return err
	}
	if _, err := io.WriteString(w, content); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

func sendLiteral(w io.Writer, verb, content string) error {
	if _, err := fmt.Fprintf(w, "%s {%d+}\r\n", verb, len(content)); err != nil {
		return err
	}
	if _, err := io.WriteString(w, content); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// quotedExpr pulls successive double-quoted segments out of a response
// line, e.g. `"IMPLEMENTATION" "Dovecot Pigeonhole"` or `"myscript" ACTIVE`.
var quotedExpr = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)

func splitQuoted(line string) []string {
	matches := quotedExpr.FindAllStringSubmatch(line, -1)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = strings.ReplaceAll(m[1], `\"`, `"`)
	}
	return out
}

func parseCapabilities(items []string) capabilities {
	caps := capabilities{}
	for _, item := range items {
		parts := splitQuoted(item)
		if len(parts) == 0 {
			continue
		}
		name := strings.ToUpper(parts[0])
		switch name {
		case CapImplementation, CapSASL, CapSieve, CapStartTLS, CapNotify, CapLanguage, CapVersion:
		default:
			continue // only the recognised capability names are kept
		}
		value := ""
		if len(parts) > 1 {
			value = parts[1]
		}
		caps[name] = value
	}
	return caps
}

// listScriptLineExpr recognises one LISTSCRIPTS response item: a quoted
// script name optionally followed by the bare word ACTIVE, mirroring
// managesieve.py's handling of LISTSCRIPTS.
var listScriptLineExpr = regexp.MustCompile(`(?i)^"((?:[^"\\]|\\.)*)"\s*(ACTIVE)?\s*$`)

// parseScriptListLine extracts a script name and its ACTIVE marker from one
// LISTSCRIPTS response item. A name delivered as a literal ({N}/{N+})
// arrives from readItem already unwrapped to raw bytes, with no surrounding
// quotes and no room for a trailing "ACTIVE" (the literal's announced
// length covers the name only) — such an item is the bare name outright.
func parseScriptListLine(line string) (name string, active bool) {
	if m := listScriptLineExpr.FindStringSubmatch(line); m != nil {
		return strings.ReplaceAll(m[1], `\"`, `"`), m[2] != ""
	}
	if line == "" {
		return "", false
	}
	return line, false
}
