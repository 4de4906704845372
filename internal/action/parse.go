package action

import (
	"context"
	"encoding/json"

	"github.com/5cover/tchatator413/internal/store/adapter"
)

// LogFunc lets the parser report conditions worth a log line (an unknown
// verb) without this package importing internal/config directly.
type LogFunc func(format string, args ...any)

// ParseRequest splits one top-level JSON value into the JSON fragments of
// its constituent actions: an object is one action, an array of objects is
// one action per element, anything else is a single type_mismatch error
// located at "request".
func ParseRequest(raw json.RawMessage) ([]json.RawMessage, *Error) {
	trimmed := trimSpace(raw)
	if len(trimmed) == 0 {
		return nil, &Error{Kind: ErrTypeMismatch, Location: "request"}
	}

	switch trimmed[0] {
	case '{':
		return []json.RawMessage{raw}, nil
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, &Error{Kind: ErrTypeMismatch, Location: "request"}
		}
		return arr, nil
	default:
		return nil, &Error{Kind: ErrTypeMismatch, Location: "request"}
	}
}

func trimSpace(b []byte) []byte {
	i, j := 0, len(b)
	for i < j && isJSONSpace(b[i]) {
		i++
	}
	for j > i && isJSONSpace(b[j-1]) {
		j--
	}
	return b[i:j]
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// rawAction is the shape every action fragment must have before dispatch:
// {"do": <verb>, "with": <args>}.
type rawAction struct {
	Do   json.RawMessage `json:"do"`
	With json.RawMessage `json:"with"`
}

// ParseAction decodes one JSON action fragment into a typed Action. It may
// consult db to resolve a "user" argument (email or name) into a numeric
// id — the only store access parsing ever performs.
func ParseAction(ctx context.Context, db adapter.Adapter, raw json.RawMessage, logf LogFunc) Action {
	var ra rawAction
	if err := json.Unmarshal(raw, &ra); err != nil {
		return ErrorAction(&Error{Kind: ErrTypeMismatch, Location: "action"})
	}
	if len(ra.Do) == 0 {
		return ErrorAction(missingKey("action.do"))
	}

	var verb string
	if err := json.Unmarshal(ra.Do, &verb); err != nil {
		return ErrorAction(typeMismatch("action.do"))
	}

	if len(ra.With) == 0 {
		return ErrorAction(missingKey("action.with"))
	}
	var w with
	if err := json.Unmarshal(ra.With, &w); err != nil {
		return ErrorAction(typeMismatch("action.with"))
	}

	switch verb {
	case "whois":
		return parseWhois(ctx, db, w)
	case "send":
		return parseSend(ctx, db, w)
	case "motd":
		return parseMotd(w)
	case "inbox":
		return parsePaged(w, VerbInbox)
	case "outbox":
		return parsePaged(w, VerbOutbox)
	case "edit":
		return parseEdit(w)
	case "rm":
		return parseRm(w)
	case "block":
		return parseUserTarget(ctx, db, w, VerbBlock)
	case "unblock":
		return parseUserTarget(ctx, db, w, VerbUnblock)
	case "ban":
		return parseUserTarget(ctx, db, w, VerbBan)
	case "unban":
		return parseUserTarget(ctx, db, w, VerbUnban)
	default:
		if logf != nil {
			logf("unknown verb %q", verb)
		}
		return ErrorAction(&Error{Kind: ErrOther, Location: "action.do", Status: 500})
	}
}

func parseWhois(ctx context.Context, db adapter.Adapter, w with) Action {
	c, errv := getConstr(w, "constr", "whois.with.constr")
	if errv != nil {
		return ErrorAction(errv)
	}
	uid, errv := getUser(ctx, db, w, "user", "whois.with.user")
	if errv != nil {
		return ErrorAction(errv)
	}
	return Action{Verb: VerbWhois, Whois: &WhoisArgs{Constr: c, UserID: uid}}
}

func parseSend(ctx context.Context, db adapter.Adapter, w with) Action {
	c, errv := getConstr(w, "constr", "send.with.constr")
	if errv != nil {
		return ErrorAction(errv)
	}
	dest, errv := getUser(ctx, db, w, "dest", "send.with.dest")
	if errv != nil {
		return ErrorAction(errv)
	}
	content, errv := getString(w, "content", "send.with.content")
	if errv != nil {
		return ErrorAction(errv)
	}
	return Action{Verb: VerbSend, Send: &SendArgs{Constr: c, Dest: dest, Content: content}}
}

func parseMotd(w with) Action {
	c, errv := getConstr(w, "constr", "motd.with.constr")
	if errv != nil {
		return ErrorAction(errv)
	}
	return Action{Verb: VerbMotd, Motd: &MotdArgs{Constr: c}}
}

func parsePaged(w with, verb Verb) Action {
	c, errv := getConstr(w, "constr", verb.String()+".with.constr")
	if errv != nil {
		return ErrorAction(errv)
	}
	page, errv := getPage(w, "page", verb.String()+".with.page")
	if errv != nil {
		return ErrorAction(errv)
	}
	args := &PageArgs{Constr: c, Page: page}
	return Action{Verb: verb, Inbox: pageArgsIf(verb == VerbInbox, args), Outbox: pageArgsIf(verb == VerbOutbox, args)}
}

func pageArgsIf(cond bool, a *PageArgs) *PageArgs {
	if cond {
		return a
	}
	return nil
}

func parseEdit(w with) Action {
	c, errv := getConstr(w, "constr", "edit.with.constr")
	if errv != nil {
		return ErrorAction(errv)
	}
	msgID, errv := getInt32(w, "msg_id", "edit.with.msg_id")
	if errv != nil {
		return ErrorAction(errv)
	}
	newContent, errv := getString(w, "new_content", "edit.with.new_content")
	if errv != nil {
		return ErrorAction(errv)
	}
	return Action{Verb: VerbEdit, Edit: &EditArgs{Constr: c, MsgID: msgID, NewContent: newContent}}
}

func parseRm(w with) Action {
	c, errv := getConstr(w, "constr", "rm.with.constr")
	if errv != nil {
		return ErrorAction(errv)
	}
	msgID, errv := getInt32(w, "msg_id", "rm.with.msg_id")
	if errv != nil {
		return ErrorAction(errv)
	}
	return Action{Verb: VerbRm, Rm: &RmArgs{Constr: c, MsgID: msgID}}
}

func parseUserTarget(ctx context.Context, db adapter.Adapter, w with, verb Verb) Action {
	location := verb.String() + ".with.constr"
	c, errv := getConstr(w, "constr", location)
	if errv != nil {
		return ErrorAction(errv)
	}
	target, errv := getUser(ctx, db, w, "user", verb.String()+".with.user")
	if errv != nil {
		return ErrorAction(errv)
	}
	args := &UserTargetArgs{Constr: c, Target: target}
	a := Action{Verb: verb}
	switch verb {
	case VerbBlock:
		a.Block = args
	case VerbUnblock:
		a.Unblock = args
	case VerbBan:
		a.Ban = args
	case VerbUnban:
		a.Unban = args
	}
	return a
}
