package action

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestGetInt32_Overflow(t *testing.T) {
	w := with{"n": json.RawMessage(`4294967296`)} // 2^32, too big for int32
	_, errv := getInt32(w, "n", "loc")
	if errv == nil || errv.Kind != ErrTypeMismatch {
		t.Fatalf("got %+v, want type_mismatch", errv)
	}
}

func TestGetInt32_FractionalIsTypeError(t *testing.T) {
	w := with{"n": json.RawMessage(`1.5`)}
	_, errv := getInt32(w, "n", "loc")
	if errv == nil || errv.Kind != ErrTypeMismatch {
		t.Fatalf("got %+v, want type_mismatch", errv)
	}
}

func TestGetInt32_Exact(t *testing.T) {
	w := with{"n": json.RawMessage(`2147483647`)}
	n, errv := getInt32(w, "n", "loc")
	if errv != nil {
		t.Fatalf("getInt32: %v", errv)
	}
	if n != math.MaxInt32 {
		t.Errorf("n = %d, want %d", n, math.MaxInt32)
	}
}

func TestGetString_NoCoercion(t *testing.T) {
	w := with{"s": json.RawMessage(`42`)}
	_, errv := getString(w, "s", "loc")
	if errv == nil || errv.Kind != ErrTypeMismatch {
		t.Fatalf("got %+v, want type_mismatch for a number where a string is required", errv)
	}
}

func TestGetUser_EmailTooLong(t *testing.T) {
	long := strings.Repeat("a", maxEmailLen) + "@example.com"
	raw, _ := json.Marshal(long)
	w := with{"user": json.RawMessage(raw)}
	_, errv := getUser(context.Background(), stubAdapter{}, w, "user", "loc")
	if errv == nil || errv.Kind != ErrInvalidValue {
		t.Fatalf("got %+v, want invalid_value for an over-long email", errv)
	}
}

func TestGetUser_LongNameStillLooksUp(t *testing.T) {
	// A name between the display-name width and the overall ceiling is
	// still a lookup, not an invalid value.
	long := strings.Repeat("n", maxPseudoLen+1)
	db := stubAdapter{byName: map[string]int32{long: 9}}
	raw, _ := json.Marshal(long)
	w := with{"user": json.RawMessage(raw)}
	id, errv := getUser(context.Background(), db, w, "user", "loc")
	if errv != nil {
		t.Fatalf("getUser: %+v", errv)
	}
	if id != 9 {
		t.Errorf("id = %d, want 9", id)
	}
}

func TestGetUser_NegativeID(t *testing.T) {
	w := with{"user": json.RawMessage(`-5`)}
	_, errv := getUser(context.Background(), stubAdapter{}, w, "user", "loc")
	if errv == nil || errv.Kind != ErrInvalidValue {
		t.Fatalf("got %+v, want invalid_value for a non-positive user id", errv)
	}
}

func TestGetUser_ZeroID(t *testing.T) {
	w := with{"user": json.RawMessage(`0`)}
	_, errv := getUser(context.Background(), stubAdapter{}, w, "user", "loc")
	if errv == nil || errv.Kind != ErrInvalidValue {
		t.Fatalf("got %+v, want invalid_value for id 0 (reserved for root, not a lookup target)", errv)
	}
}

func TestGetUser_WrongShape(t *testing.T) {
	w := with{"user": json.RawMessage(`true`)}
	_, errv := getUser(context.Background(), stubAdapter{}, w, "user", "loc")
	if errv == nil || errv.Kind != ErrInvalidValue {
		t.Fatalf("got %+v, want invalid_value for a boolean user reference", errv)
	}
}

func TestGetPage_Missing(t *testing.T) {
	w := with{}
	page, errv := getPage(w, "page", "loc")
	if errv != nil {
		t.Fatalf("getPage: %v", errv)
	}
	if page != 1 {
		t.Errorf("page = %d, want 1 (default)", page)
	}
}
