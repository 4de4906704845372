package action

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"golang.org/x/text/cases"

	"github.com/5cover/tchatator413/internal/constr"
	"github.com/5cover/tchatator413/internal/store/adapter"
)

// fold is applied to an email or display name before it reaches the store,
// so "Alice@Example.com" and "alice@example.com" resolve to the same
// account. Unicode case folding rather than ASCII strings.ToLower, since
// business_name and user_name are free-form Unicode.
var fold = cases.Fold()

// with is the decoded {"do":...,"with":{...}} payload's argument object,
// keyed by field name with values left as raw JSON so each decoder can
// enforce its own exact type.
type with map[string]json.RawMessage

// maxEmailLen and maxPseudoLen are the email and display-name column
// widths. A "user" string argument is bounded by the larger of the two
// before its shape is even looked at.
const (
	maxEmailLen  = 319
	maxPseudoLen = 255
)

func missingKey(location string) *Error {
	return &Error{Kind: ErrMissingKey, Location: location}
}

func typeMismatch(location string) *Error {
	return &Error{Kind: ErrTypeMismatch, Location: location}
}

func invalidValue(location string) *Error {
	return &Error{Kind: ErrInvalidValue, Location: location}
}

func internalErr(location string) *Error {
	return &Error{Kind: ErrOther, Location: location, Status: 500}
}

// getRaw fetches key from w, reporting missing_key against location if
// absent.
func getRaw(w with, key, location string) (json.RawMessage, *Error) {
	v, ok := w[key]
	if !ok {
		return nil, missingKey(location)
	}
	return v, nil
}

// getString decodes a required JSON string, exact-typed: no coercion from
// numbers or booleans.
func getString(w with, key, location string) (string, *Error) {
	raw, errv := getRaw(w, key, location)
	if errv != nil {
		return "", errv
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", typeMismatch(location)
	}
	return s, nil
}

// getInt32 decodes a required JSON integer fitting in 32 bits. A JSON
// number with a fractional part, or one that does not fit in int32, is a
// type error, not a clamped value.
func getInt32(w with, key, location string) (int32, *Error) {
	raw, errv := getRaw(w, key, location)
	if errv != nil {
		return 0, errv
	}
	n, ok := asInt64(raw)
	if !ok || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, typeMismatch(location)
	}
	return int32(n), nil
}

// asInt64 reports whether raw is a JSON number with no fractional or
// exponent part, along with its value.
func asInt64(raw json.RawMessage) (int64, bool) {
	// json.Number also accepts a quoted numeric string; a JSON string is
	// never an integer here.
	if t := trimSpace(raw); len(t) > 0 && t[0] == '"' {
		return 0, false
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return 0, false
	}
	s := num.String()
	if strings.ContainsAny(s, ".eE") {
		return 0, false
	}
	n, err := num.Int64()
	if err != nil {
		return 0, false
	}
	return n, true
}

// getConstr decodes the required credential argument.
func getConstr(w with, key, location string) (constr.Constr, *Error) {
	s, errv := getString(w, key, location)
	if errv != nil {
		return constr.Constr{}, errv
	}
	c, err := constr.Parse(s)
	if err != nil {
		return constr.Constr{}, invalidValue(location)
	}
	return c, nil
}

// getPage decodes the optional page argument, defaulting to 1 when absent.
// Values < 1 are invalid_value.
func getPage(w with, key, location string) (int32, *Error) {
	raw, ok := w[key]
	if !ok {
		return 1, nil
	}
	n, typeOK := asInt64(raw)
	if !typeOK || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, typeMismatch(location)
	}
	if n < 1 {
		return 0, invalidValue(location)
	}
	return int32(n), nil
}

// getUser decodes a user reference: a positive JSON integer id, or a JSON
// string resolved by email or by name (members first, then professionals).
func getUser(ctx context.Context, db adapter.Adapter, w with, key, location string) (int32, *Error) {
	raw, errv := getRaw(w, key, location)
	if errv != nil {
		return 0, errv
	}

	if n, ok := asInt64(raw); ok {
		if n <= 0 || n > math.MaxInt32 {
			return 0, invalidValue(location)
		}
		return int32(n), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, invalidValue(location)
	}
	if len(s) == 0 || len(s) > max(maxEmailLen, maxPseudoLen) {
		return 0, invalidValue(location)
	}

	folded := fold.String(s)

	var (
		id  int32
		err error
	)
	if strings.Contains(s, "@") {
		id, err = db.GetUserIDByEmail(ctx, folded)
	} else {
		id, err = db.GetUserIDByName(ctx, folded)
	}
	if err != nil {
		// A lookup miss while decoding an argument means the reference
		// itself is bad, not that a record is missing: invalid_value, the
		// same class as any other unusable argument.
		if err == adapter.ErrNotFound {
			return 0, invalidValue(location)
		}
		return 0, internalErr(location)
	}
	return id, nil
}
