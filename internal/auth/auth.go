// Package auth wraps the bcrypt password primitive and holds the root
// administrator's credential, which lives in configuration and never in
// the store.
package auth

import (
	"crypto/subtle"

	"github.com/5cover/tchatator413/internal/constr"
	"golang.org/x/crypto/bcrypt"
)

// CheckPassword reports whether password matches hash. A bcrypt primitive
// failure (malformed hash) is treated as "does not match" rather than
// propagated — the caller cannot recover from it differently either way.
func CheckPassword(hash []byte, password string) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// HashPassword hashes a clear password for storage. A failure here is
// fatal — the caller is expected to treat a non-nil error as cause to
// abort startup or the account-creation path, not to retry or degrade.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// RootCredential is the administrator credential held in configuration.
// The clear ROOT_PASSWORD never survives startup: it is bcrypt-hashed once
// and only the hash is kept.
type RootCredential struct {
	APIKey       [16]byte // raw bytes of the root UUIDv4, compared directly
	PasswordHash []byte   // bcrypt hash; nil means no root password is set
}

// VerifyRootConstr checks c against the configured root credential. A nil
// stored hash combined with no supplied password is a valid fall-through,
// reachable only through this function — never through the store-backed
// user path.
func VerifyRootConstr(root RootCredential, c constr.Constr) bool {
	key, _ := c.APIKey.MarshalBinary()
	if subtle.ConstantTimeCompare(key, root.APIKey[:]) != 1 {
		return false
	}
	if len(root.PasswordHash) == 0 {
		return !c.HasPassword || c.Password == ""
	}
	return CheckPassword(root.PasswordHash, c.Password)
}
