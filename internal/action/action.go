// Package action implements the parsing half of the request pipeline:
// turning one JSON value into a typed Action, a tagged union over the
// verbs {whois, send, motd, inbox, outbox, edit, rm, block, unblock, ban,
// unban} plus an error variant. One struct, one pointer field per verb,
// exactly one of which is non-nil.
package action

import (
	"time"

	"github.com/5cover/tchatator413/internal/constr"
)

// Verb names one of the eleven actions a request can carry, or Error for a
// parse failure.
type Verb int

const (
	VerbWhois Verb = iota
	VerbSend
	VerbMotd
	VerbInbox
	VerbOutbox
	VerbEdit
	VerbRm
	VerbBlock
	VerbUnblock
	VerbBan
	VerbUnban
	VerbError
)

func (v Verb) String() string {
	switch v {
	case VerbWhois:
		return "whois"
	case VerbSend:
		return "send"
	case VerbMotd:
		return "motd"
	case VerbInbox:
		return "inbox"
	case VerbOutbox:
		return "outbox"
	case VerbEdit:
		return "edit"
	case VerbRm:
		return "rm"
	case VerbBlock:
		return "block"
	case VerbUnblock:
		return "unblock"
	case VerbBan:
		return "ban"
	case VerbUnban:
		return "unban"
	case VerbError:
		return "error"
	default:
		return "unknown"
	}
}

// WhoisArgs is the payload of {"do":"whois","with":{...}}.
type WhoisArgs struct {
	Constr constr.Constr
	UserID int32
}

// SendArgs is the payload of a send action.
type SendArgs struct {
	Constr  constr.Constr
	Dest    int32
	Content string
}

// PageArgs is the payload shared by inbox and outbox.
type PageArgs struct {
	Constr constr.Constr
	Page   int32
}

// EditArgs is the payload of an edit action.
type EditArgs struct {
	Constr     constr.Constr
	MsgID      int32
	NewContent string
}

// RmArgs is the payload of a rm action.
type RmArgs struct {
	Constr constr.Constr
	MsgID  int32
}

// UserTargetArgs is the payload shared by block, unblock, ban and unban.
type UserTargetArgs struct {
	Constr constr.Constr
	Target int32
}

// MotdArgs is the payload of a motd action. The verb carries no arguments
// beyond the credential.
type MotdArgs struct {
	Constr constr.Constr
}

// Action is a tagged union over the eleven verbs plus Error. Exactly one
// pointer field is non-nil.
type Action struct {
	Verb Verb

	Whois   *WhoisArgs
	Send    *SendArgs
	Motd    *MotdArgs
	Inbox   *PageArgs
	Outbox  *PageArgs
	Edit    *EditArgs
	Rm      *RmArgs
	Block   *UserTargetArgs
	Unblock *UserTargetArgs
	Ban     *UserTargetArgs
	Unban   *UserTargetArgs

	Err *Error
}

// ErrorKind classifies what went wrong with an action.
type ErrorKind int

const (
	ErrMissingKey ErrorKind = iota
	ErrTypeMismatch
	ErrInvalidValue
	ErrRateLimit
	ErrInvariantViolation
	ErrOther
)

// Error is the payload of an Action of kind VerbError, or of an evaluation
// failure folded back into a Response.
type Error struct {
	Kind ErrorKind

	// Location is "<verb>.with.<arg>", "action", "action.do",
	// "action.with" or "request".
	Location string

	// Status is the HTTP-flavoured status code for ErrOther and for
	// evaluation failures folded into this type (unauthorized, forbidden,
	// not_found, payload_too_large, internal).
	Status int

	// InvariantName is set only for ErrInvariantViolation: one of
	// no_send_self, client_send_pro, pro_responds_client.
	InvariantName string

	// NextRequestAt is set only for ErrRateLimit.
	NextRequestAt time.Time

	// Context is an optional human-readable detail, such as the offending
	// JSON fragment, folded into the encoder's one-line message.
	Context string
}

// ErrorAction wraps e as a VerbError Action.
func ErrorAction(e *Error) Action {
	return Action{Verb: VerbError, Err: e}
}

// ConstrOf returns the credential carried by a, regardless of verb. Only
// meaningful for non-error actions.
func (a Action) ConstrOf() constr.Constr {
	switch a.Verb {
	case VerbWhois:
		return a.Whois.Constr
	case VerbSend:
		return a.Send.Constr
	case VerbMotd:
		return a.Motd.Constr
	case VerbInbox:
		return a.Inbox.Constr
	case VerbOutbox:
		return a.Outbox.Constr
	case VerbEdit:
		return a.Edit.Constr
	case VerbRm:
		return a.Rm.Constr
	case VerbBlock:
		return a.Block.Constr
	case VerbUnblock:
		return a.Unblock.Constr
	case VerbBan:
		return a.Ban.Constr
	case VerbUnban:
		return a.Unban.Constr
	default:
		return constr.Constr{}
	}
}
