package managesieve

import "strings"

// Known capability names a server may advertise in its greeting or in
// response to CAPABILITY, mirroring managesieve.py's KNOWN_CAPABILITIES.
const (
	CapImplementation = "IMPLEMENTATION"
	CapSASL           = "SASL"
	CapSieve          = "SIEVE"
	CapStartTLS       = "STARTTLS"
	CapNotify         = "NOTIFY"
	CapLanguage       = "LANGUAGE"
	CapVersion        = "VERSION"
)

// capabilities holds the server's advertised capability set, keyed by its
// name in upper case. Capabilities with no associated value (e.g.
// STARTTLS) are stored with an empty string.
type capabilities map[string]string

func (c capabilities) has(name string) bool {
	_, ok := c[strings.ToUpper(name)]
	return ok
}

func (c capabilities) get(name string) string {
	return c[strings.ToUpper(name)]
}

// saslMechs splits the advertised SASL capability's value into its
// individual mechanism names.
func (c capabilities) saslMechs() []string {
	return strings.Fields(c.get(CapSASL))
}

// sieveExtensions splits the advertised SIEVE capability's value into its
// individual extension names.
func (c capabilities) sieveExtensions() []string {
	return strings.Fields(c.get(CapSieve))
}

// supportsRenamescript reports whether the server is new enough to have a
// native RENAMESCRIPT verb (VERSION >= "1.0" in this implementation's
// judgement; anything reporting no VERSION at all is treated as pre-1.0).
func (c capabilities) supportsRenamescript() bool {
	v := c.get(CapVersion)
	return v != "" && v >= "1.0"
}
