// Package constr parses the wire credential format every action carries: an
// API key followed by an optional password.
//
// Composition: <36-char canonical UUIDv4>[¤<password>]
//
// The separator is U+00A4 CURRENCY SIGN, which encodes to the two bytes
// 0xC2 0xA4 in UTF-8. The fixed-width prefix is validated in full before
// anything past it is trusted.
package constr

import (
	"errors"

	"github.com/google/uuid"
)

// uuidTextLen is the length of a canonical UUID string, e.g.
// "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx".
const uuidTextLen = 36

// sepBytes is the UTF-8 encoding of U+00A4.
var sepBytes = [2]byte{0xC2, 0xA4}

// ErrInvalid is returned when the wire string is not a valid constr: either
// the leading 36 bytes are not a canonical UUIDv4, or trailing bytes exist
// that are neither the separator nor its following password.
var ErrInvalid = errors.New("constr: invalid credential")

// Constr is a parsed credential: an API key identifying the caller's
// account, with an optional password.
type Constr struct {
	APIKey      uuid.UUID
	Password    string // empty means "no password provided"
	HasPassword bool
}

// Parse decodes the wire form of a credential. It never allocates more than
// the password substring duplicated from s, so callers bound to a
// request-scoped cleanup cycle only need to track that one string.
func Parse(s string) (Constr, error) {
	if len(s) < uuidTextLen {
		return Constr{}, ErrInvalid
	}

	key, err := uuid.Parse(s[:uuidTextLen])
	if err != nil {
		return Constr{}, ErrInvalid
	}
	if key.Version() != 4 {
		return Constr{}, ErrInvalid
	}

	rest := s[uuidTextLen:]
	if rest == "" {
		return Constr{APIKey: key}, nil
	}

	if len(rest) < len(sepBytes) || rest[0] != sepBytes[0] || rest[1] != sepBytes[1] {
		return Constr{}, ErrInvalid
	}

	return Constr{APIKey: key, Password: rest[len(sepBytes):], HasPassword: true}, nil
}

// String renders the canonical wire form, password included. Used only for
// round-trip tests; production code never logs a constr.
func (c Constr) String() string {
	s := c.APIKey.String()
	if c.HasPassword {
		s += string(sepBytes[:]) + c.Password
	}
	return s
}
