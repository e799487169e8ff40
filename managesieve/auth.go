package managesieve

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Supported SASL mechanisms, in this client's preference order when none
// is pinned via WithAuthMech, mirroring managesieve.py's
// SUPPORTED_AUTH_MECHS.
const (
	MechDigestMD5   = "DIGEST-MD5"
	MechPlain       = "PLAIN"
	MechLogin       = "LOGIN"
	MechOAuthBearer = "OAUTHBEARER"
)

var supportedAuthMechs = []string{MechDigestMD5, MechPlain, MechLogin, MechOAuthBearer}

// selectAuthMech picks the mechanism to use: pinned when set (an error if
// the server does not advertise it; there is no fallback), otherwise the
// first of supportedAuthMechs the server advertises.
func selectAuthMech(pinned string, advertised []string) (string, error) {
	has := func(name string) bool {
		for _, m := range advertised {
			if strings.EqualFold(m, name) {
				return true
			}
		}
		return false
	}
	if pinned != "" {
		if !has(pinned) {
			return "", fmt.Errorf("managesieve: server does not advertise auth mechanism %q", pinned)
		}
		return pinned, nil
	}
	for _, m := range supportedAuthMechs {
		if has(m) {
			return m, nil
		}
	}
	return "", fmt.Errorf("managesieve: no supported auth mechanism among %v", advertised)
}

// plainResponse builds the SASL PLAIN initial response: authzid NUL
// authcid NUL password, base64-encoded.
func plainResponse(authzid, user, pass string) string {
	msg := authzid + "\x00" + user + "\x00" + pass
	return base64.StdEncoding.EncodeToString([]byte(msg))
}

// loginUserResponse and loginPassResponse answer LOGIN's two challenges
// ("Username:" then "Password:").
func loginUserResponse(user string) string { return base64.StdEncoding.EncodeToString([]byte(user)) }
func loginPassResponse(pass string) string { return base64.StdEncoding.EncodeToString([]byte(pass)) }

// oauthBearerResponse builds the RFC 7628 OAUTHBEARER initial response,
// matching managesieve.py's _oauthbearer_authentication exactly (no host/
// port fields, unlike a full RFC 7628 GS2 header). The GS2 "a=" field
// carries the username, not the authzid.
func oauthBearerResponse(user, token string) string {
	msg := fmt.Sprintf("n,a=%s,\x01auth=Bearer %s\x01\x01", user, token)
	return base64.StdEncoding.EncodeToString([]byte(msg))
}
