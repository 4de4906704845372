// Package response renders a tagged Response into a JSON object with up to
// three keys: the verb-specific body, an error object, and the pagination
// flag.
package response

import (
	"time"

	"github.com/5cover/tchatator413/internal/action"
	"github.com/5cover/tchatator413/internal/store/types"
)

// Response is a tagged union parallel to action.Action, plus the
// has_next_page flag paginated verbs set.
type Response struct {
	Verb action.Verb

	Whois   *WhoisBody
	Send    *SendBody
	Motd    *MotdBody
	Inbox   *MessagesBody
	Outbox  *MessagesBody
	Edit    *EmptyBody
	Rm      *EmptyBody
	Block   *EmptyBody
	Unblock *EmptyBody
	Ban     *EmptyBody
	Unban   *EmptyBody

	Err *action.Error
}

// EmptyBody is the body of verbs whose success carries no payload beyond
// an empty object.
type EmptyBody struct{}

// WhoisBody is whois's response body.
type WhoisBody struct {
	UserID  int32
	Role    types.Role
	Variant types.UserVariant
}

// SendBody is send's response body.
type SendBody struct {
	MsgID int32
}

// MotdBody is motd's response body. The verb is reserved; it carries no
// payload beyond an empty object.
type MotdBody struct{}

// MessagesBody is inbox/outbox's response body, plus the pagination flag.
type MessagesBody struct {
	Messages    []Msg
	HasNextPage bool
}

// Msg is a message rendered for the wire. Age fields are omitted when
// zero.
type Msg struct {
	ID         int32
	SentAt     time.Time
	Content    string
	Sender     int32
	Recipient  int32
	ReadAge    int32
	EditedAge  int32
	DeletedAge int32
}

// FromMessage renders a store message for the wire.
func FromMessage(m types.Message) Msg {
	return Msg{
		ID:         m.ID,
		SentAt:     m.SentAt,
		Content:    m.Content,
		Sender:     m.SenderID,
		Recipient:  m.RecipientID,
		ReadAge:    m.ReadAge,
		EditedAge:  m.EditedAge,
		DeletedAge: m.DeletedAge,
	}
}

// ErrorResponse wraps e as the error body of a Response for verb.
func ErrorResponse(verb action.Verb, e *action.Error) Response {
	return Response{Verb: verb, Err: e}
}
