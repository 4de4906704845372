package auth

import (
	"testing"

	"github.com/google/uuid"

	"github.com/5cover/tchatator413/internal/constr"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "correct horse battery staple") {
		t.Error("CheckPassword rejected the password it was hashed from")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("CheckPassword accepted a wrong password")
	}
}

func TestCheckPassword_EmptyHashNeverMatches(t *testing.T) {
	if CheckPassword(nil, "") {
		t.Error("CheckPassword(nil, \"\") reported a match")
	}
	if CheckPassword([]byte{}, "anything") {
		t.Error("CheckPassword([]byte{}, ...) reported a match")
	}
}

func rootConstr(t *testing.T, key uuid.UUID, password string) constr.Constr {
	t.Helper()
	s := key.String()
	if password != "" {
		s += "\xC2\xA4" + password
	}
	c, err := constr.Parse(s)
	if err != nil {
		t.Fatalf("constr.Parse: %v", err)
	}
	return c
}

func TestVerifyRootConstr_PasswordlessRootAcceptsNoPassword(t *testing.T) {
	key := uuid.New()
	root := RootCredential{}
	bin, _ := key.MarshalBinary()
	copy(root.APIKey[:], bin)

	if !VerifyRootConstr(root, rootConstr(t, key, "")) {
		t.Error("want match: no root password configured, none supplied")
	}
}

func TestVerifyRootConstr_PasswordlessRootRejectsSuppliedPassword(t *testing.T) {
	key := uuid.New()
	root := RootCredential{}
	bin, _ := key.MarshalBinary()
	copy(root.APIKey[:], bin)

	if VerifyRootConstr(root, rootConstr(t, key, "x")) {
		t.Error("want no match: root has no password but one was supplied")
	}
}

func TestVerifyRootConstr_RequiresMatchingPassword(t *testing.T) {
	key := uuid.New()
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	root := RootCredential{PasswordHash: hash}
	bin, _ := key.MarshalBinary()
	copy(root.APIKey[:], bin)

	if VerifyRootConstr(root, rootConstr(t, key, "s3cret")) != true {
		t.Error("want match: correct root password")
	}
	if VerifyRootConstr(root, rootConstr(t, key, "wrong")) {
		t.Error("want no match: wrong root password")
	}
	if VerifyRootConstr(root, rootConstr(t, key, "")) {
		t.Error("want no match: root requires a password but none was supplied")
	}
}

func TestVerifyRootConstr_WrongAPIKeyNeverMatches(t *testing.T) {
	root := RootCredential{}
	bin, _ := uuid.New().MarshalBinary()
	copy(root.APIKey[:], bin)

	other := uuid.New()
	if VerifyRootConstr(root, rootConstr(t, other, "")) {
		t.Error("want no match: API key does not belong to root")
	}
}
