package sieve

import "github.com/docker/go-units"

// SizeInBytes parses a size test's bound limit (e.g. "100K", "1M") into a
// byte count using the same K/M/G suffix rules as RFC 5228 §5.9. It is
// valid only on a "size" command.
func (c *Command) SizeInBytes() (int64, error) {
	limit, _ := c.Arguments["limit"].(string)
	return units.RAMInBytes(unquote(limit))
}
