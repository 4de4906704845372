package action

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/5cover/tchatator413/internal/constr"
	"github.com/5cover/tchatator413/internal/store/adapter"
)

// stubAdapter implements only the lookup methods the parser calls; every
// other method panics so a test fails loudly if evaluation logic leaks into
// parser tests.
type stubAdapter struct {
	adapter.Adapter
	byEmail map[string]int32
	byName  map[string]int32
}

func (s stubAdapter) GetUserIDByEmail(_ context.Context, email string) (int32, error) {
	if id, ok := s.byEmail[email]; ok {
		return id, nil
	}
	return 0, adapter.ErrNotFound
}

func (s stubAdapter) GetUserIDByName(_ context.Context, name string) (int32, error) {
	if id, ok := s.byName[name]; ok {
		return id, nil
	}
	return 0, adapter.ErrNotFound
}

func validConstr() string {
	return uuid.New().String()
}

func TestParseRequest_Object(t *testing.T) {
	fragments, errv := ParseRequest(json.RawMessage(`{"do":"motd","with":{}}`))
	if errv != nil {
		t.Fatalf("ParseRequest: %v", errv)
	}
	if len(fragments) != 1 {
		t.Fatalf("got %d fragments, want 1", len(fragments))
	}
}

func TestParseRequest_Array(t *testing.T) {
	fragments, errv := ParseRequest(json.RawMessage(`[{"do":"motd","with":{}},{"do":"motd","with":{}}]`))
	if errv != nil {
		t.Fatalf("ParseRequest: %v", errv)
	}
	if len(fragments) != 2 {
		t.Fatalf("got %d fragments, want 2", len(fragments))
	}
}

func TestParseRequest_EmptyArray(t *testing.T) {
	fragments, errv := ParseRequest(json.RawMessage(`[]`))
	if errv != nil {
		t.Fatalf("ParseRequest: %v", errv)
	}
	if len(fragments) != 0 {
		t.Fatalf("got %d fragments, want 0", len(fragments))
	}
}

func TestParseRequest_Malformed(t *testing.T) {
	cases := []string{`42`, `"oops"`, `true`, `null`, ``}
	for _, c := range cases {
		_, errv := ParseRequest(json.RawMessage(c))
		if errv == nil {
			t.Errorf("ParseRequest(%q): want type_mismatch error", c)
		} else if errv.Kind != ErrTypeMismatch || errv.Location != "request" {
			t.Errorf("ParseRequest(%q): got %+v, want type_mismatch at request", c, errv)
		}
	}
}

func TestParseAction_UnknownVerb(t *testing.T) {
	db := stubAdapter{}
	a := ParseAction(context.Background(), db, json.RawMessage(`{"do":"frobnicate","with":{}}`), nil)
	if a.Verb != VerbError || a.Err.Status != 500 {
		t.Fatalf("got %+v, want error/internal", a)
	}
}

func TestParseAction_MissingDo(t *testing.T) {
	a := ParseAction(context.Background(), stubAdapter{}, json.RawMessage(`{"with":{}}`), nil)
	if a.Verb != VerbError || a.Err.Kind != ErrMissingKey || a.Err.Location != "action.do" {
		t.Fatalf("got %+v, want missing_key at action.do", a)
	}
}

func TestParseAction_MissingWith(t *testing.T) {
	a := ParseAction(context.Background(), stubAdapter{}, json.RawMessage(`{"do":"motd"}`), nil)
	if a.Verb != VerbError || a.Err.Kind != ErrMissingKey || a.Err.Location != "action.with" {
		t.Fatalf("got %+v, want missing_key at action.with", a)
	}
}

func TestParseAction_DoWrongType(t *testing.T) {
	a := ParseAction(context.Background(), stubAdapter{}, json.RawMessage(`{"do":7,"with":{}}`), nil)
	if a.Verb != VerbError || a.Err.Kind != ErrTypeMismatch || a.Err.Location != "action.do" {
		t.Fatalf("got %+v, want type_mismatch at action.do", a)
	}
}

func TestParseAction_Motd(t *testing.T) {
	c := validConstr()
	raw := json.RawMessage(`{"do":"motd","with":{"constr":"` + c + `"}}`)
	a := ParseAction(context.Background(), stubAdapter{}, raw, nil)
	if a.Verb != VerbMotd {
		t.Fatalf("got verb %v, want motd", a.Verb)
	}
}

func TestParseAction_SendContentMissing(t *testing.T) {
	c := validConstr()
	raw := json.RawMessage(`{"do":"send","with":{"constr":"` + c + `","dest":3}}`)
	a := ParseAction(context.Background(), stubAdapter{}, raw, nil)
	if a.Verb != VerbError || a.Err.Kind != ErrMissingKey || a.Err.Location != "send.with.content" {
		t.Fatalf("got %+v, want missing_key at send.with.content", a)
	}
}

func TestParseAction_SendByID(t *testing.T) {
	c := validConstr()
	raw := json.RawMessage(`{"do":"send","with":{"constr":"` + c + `","dest":3,"content":"hi"}}`)
	a := ParseAction(context.Background(), stubAdapter{}, raw, nil)
	if a.Verb != VerbSend {
		t.Fatalf("got verb %v (err=%+v), want send", a.Verb, a.Err)
	}
	if a.Send.Dest != 3 || a.Send.Content != "hi" {
		t.Errorf("got %+v", a.Send)
	}
}

// TestParseAction_SendArgsExact diffs the full decoded SendArgs against the
// expected value with cmp.Diff rather than field-by-field, so a regression
// in any field (including one nobody thought to assert on individually)
// shows up with a readable diff.
func TestParseAction_SendArgsExact(t *testing.T) {
	c, err := constr.Parse(validConstr())
	if err != nil {
		t.Fatalf("constr.Parse: %v", err)
	}
	raw := json.RawMessage(`{"do":"send","with":{"constr":"` + c.String() + `","dest":3,"content":"hi"}}`)
	a := ParseAction(context.Background(), stubAdapter{}, raw, nil)
	if a.Verb != VerbSend {
		t.Fatalf("got verb %v (err=%+v), want send", a.Verb, a.Err)
	}
	want := &SendArgs{Constr: c, Dest: 3, Content: "hi"}
	if diff := cmp.Diff(want, a.Send); diff != "" {
		t.Errorf("SendArgs mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAction_SendByEmail(t *testing.T) {
	c := validConstr()
	db := stubAdapter{byEmail: map[string]int32{"alice@example.com": 7}}
	raw := json.RawMessage(`{"do":"send","with":{"constr":"` + c + `","dest":"alice@example.com","content":"hi"}}`)
	a := ParseAction(context.Background(), db, raw, nil)
	if a.Verb != VerbSend || a.Send.Dest != 7 {
		t.Fatalf("got %+v (err=%+v), want send to user 7", a, a.Err)
	}
}

func TestParseAction_SendByName_UnknownIsInvalidValue(t *testing.T) {
	c := validConstr()
	db := stubAdapter{byName: map[string]int32{}}
	raw := json.RawMessage(`{"do":"send","with":{"constr":"` + c + `","dest":"bob","content":"hi"}}`)
	a := ParseAction(context.Background(), db, raw, nil)
	if a.Verb != VerbError || a.Err.Kind != ErrInvalidValue || a.Err.Location != "send.with.dest" {
		t.Fatalf("got %+v, want invalid_value at send.with.dest", a)
	}
}

func TestParseAction_InvalidConstr(t *testing.T) {
	raw := json.RawMessage(`{"do":"motd","with":{"constr":"not-a-uuid"}}`)
	a := ParseAction(context.Background(), stubAdapter{}, raw, nil)
	if a.Verb != VerbError || a.Err.Kind != ErrInvalidValue {
		t.Fatalf("got %+v, want invalid_value", a)
	}
}

func TestParseAction_PageBoundaries(t *testing.T) {
	c := validConstr()
	cases := []struct {
		page    string
		wantErr bool
	}{
		{`1`, false},
		{`2`, false},
		{`0`, true},
		{`-1`, true},
	}
	for _, tc := range cases {
		raw := json.RawMessage(`{"do":"inbox","with":{"constr":"` + c + `","page":` + tc.page + `}}`)
		a := ParseAction(context.Background(), stubAdapter{}, raw, nil)
		gotErr := a.Verb == VerbError
		if gotErr != tc.wantErr {
			t.Errorf("page=%s: error=%v (err=%+v), want error=%v", tc.page, gotErr, a.Err, tc.wantErr)
		}
	}
}

func TestParseAction_PageDefaultsToOne(t *testing.T) {
	c := validConstr()
	raw := json.RawMessage(`{"do":"inbox","with":{"constr":"` + c + `"}}`)
	a := ParseAction(context.Background(), stubAdapter{}, raw, nil)
	if a.Verb != VerbInbox || a.Inbox.Page != 1 {
		t.Fatalf("got %+v (err=%+v), want inbox page 1", a, a.Err)
	}
}

func TestParseAction_RmMsgIDType(t *testing.T) {
	c := validConstr()
	raw := json.RawMessage(`{"do":"rm","with":{"constr":"` + c + `","msg_id":"1"}}`)
	a := ParseAction(context.Background(), stubAdapter{}, raw, nil)
	if a.Verb != VerbError || a.Err.Kind != ErrTypeMismatch || a.Err.Location != "rm.with.msg_id" {
		t.Fatalf("got %+v, want type_mismatch at rm.with.msg_id", a)
	}
}
