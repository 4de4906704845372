package response

import (
	"encoding/json"
	"fmt"

	"github.com/5cover/tchatator413/internal/action"
	"github.com/5cover/tchatator413/internal/store/types"
)

// wireMsg is the wire shape of one message. Age fields are omitted when
// zero via omitempty.
type wireMsg struct {
	MsgID      int32  `json:"msg_id"`
	SentAt     int64  `json:"sent_at"`
	Content    string `json:"content"`
	Sender     int32  `json:"sender"`
	Recipient  int32  `json:"recipient"`
	DeletedAge int32  `json:"deleted_age,omitempty"`
	ReadAge    int32  `json:"read_age,omitempty"`
	EditedAge  int32  `json:"edited_age,omitempty"`
}

func renderMsg(m Msg) wireMsg {
	return wireMsg{
		MsgID:      m.ID,
		SentAt:     m.SentAt.Unix(),
		Content:    m.Content,
		Sender:     m.Sender,
		Recipient:  m.Recipient,
		DeletedAge: m.DeletedAge,
		ReadAge:    m.ReadAge,
		EditedAge:  m.EditedAge,
	}
}

type wireWhoisBody struct {
	UserID int32     `json:"user_id"`
	Admin  *struct{} `json:"admin,omitempty"`
	Member *struct {
		UserName string `json:"user_name"`
	} `json:"member,omitempty"`
	Pro *struct {
		BusinessName string `json:"business_name"`
	} `json:"pro,omitempty"`
}

func renderWhois(b *WhoisBody) wireWhoisBody {
	out := wireWhoisBody{UserID: b.UserID}
	switch v := b.Variant.(type) {
	case types.Member:
		out.Member = &struct {
			UserName string `json:"user_name"`
		}{UserName: v.UserName}
	case types.Pro:
		out.Pro = &struct {
			BusinessName string `json:"business_name"`
		}{BusinessName: v.BusinessName}
	default:
		out.Admin = &struct{}{}
	}
	return out
}

// wireError is the {"error": ...} payload of a failed action.
type wireError struct {
	Status        int    `json:"status"`
	Message       string `json:"message,omitempty"`
	NextRequestAt *int64 `json:"next_request_at,omitempty"`
}

// wireResponse is the up-to-three-key object one action's outcome renders
// to.
type wireResponse struct {
	Body        any        `json:"body,omitempty"`
	Error       *wireError `json:"error,omitempty"`
	HasNextPage *bool      `json:"has_next_page,omitempty"`
}

// statusOf maps an error's kind to its HTTP-flavoured status code.
func statusOf(e *action.Error) int {
	switch e.Kind {
	case action.ErrMissingKey, action.ErrTypeMismatch, action.ErrInvalidValue, action.ErrInvariantViolation:
		return 400
	case action.ErrRateLimit:
		return 429
	case action.ErrOther:
		return e.Status
	default:
		return 500
	}
}

// messageOf assembles the one-line human-readable rendering of e from its
// location and context.
func messageOf(e *action.Error) string {
	switch e.Kind {
	case action.ErrMissingKey:
		return fmt.Sprintf("%s: missing required key", e.Location)
	case action.ErrTypeMismatch:
		return fmt.Sprintf("%s: wrong type", e.Location)
	case action.ErrInvalidValue:
		if e.Context != "" {
			return fmt.Sprintf("%s: invalid value (%s)", e.Location, e.Context)
		}
		return fmt.Sprintf("%s: invalid value", e.Location)
	case action.ErrRateLimit:
		return "too many requests"
	case action.ErrInvariantViolation:
		return fmt.Sprintf("%s: %s", e.Location, e.InvariantName)
	case action.ErrOther:
		if e.Context != "" {
			return e.Context
		}
		return httpText(e.Status)
	default:
		return ""
	}
}

func httpText(status int) string {
	switch status {
	case 400:
		return "bad request"
	case 401:
		return "unauthorized"
	case 403:
		return "forbidden"
	case 404:
		return "not found"
	case 413:
		return "payload too large"
	case 429:
		return "too many requests"
	case 500:
		return "internal server error"
	default:
		return "error"
	}
}

// encodeError renders e as a wireError.
func encodeError(e *action.Error) *wireError {
	we := &wireError{Status: statusOf(e), Message: messageOf(e)}
	if e.Kind == action.ErrRateLimit {
		ts := e.NextRequestAt.Unix()
		we.NextRequestAt = &ts
	}
	return we
}

// Encode renders one Response into its wire object.
func Encode(r Response) wireResponse {
	if r.Err != nil {
		return wireResponse{Error: encodeError(r.Err)}
	}

	switch r.Verb {
	case action.VerbWhois:
		return wireResponse{Body: renderWhois(r.Whois)}
	case action.VerbSend:
		return wireResponse{Body: struct {
			MsgID int32 `json:"msg_id"`
		}{r.Send.MsgID}}
	case action.VerbMotd:
		return wireResponse{Body: struct{}{}}
	case action.VerbInbox:
		return messagesResponse(r.Inbox)
	case action.VerbOutbox:
		return messagesResponse(r.Outbox)
	default:
		// edit, rm, block, unblock, ban, unban: empty-object body.
		return wireResponse{Body: struct{}{}}
	}
}

func messagesResponse(b *MessagesBody) wireResponse {
	msgs := make([]wireMsg, len(b.Messages))
	for i, m := range b.Messages {
		msgs[i] = renderMsg(m)
	}
	resp := wireResponse{Body: msgs}
	if b.HasNextPage {
		t := true
		resp.HasNextPage = &t
	}
	return resp
}

// EncodeRequest renders a full request's responses as a JSON array: one
// element per processed action, in input order.
func EncodeRequest(responses []Response) ([]byte, error) {
	wire := make([]wireResponse, len(responses))
	for i, r := range responses {
		wire[i] = Encode(r)
	}
	return json.Marshal(wire)
}
