// Package eval implements the action evaluator: the common
// authenticate/authorise prelude shared by every verb, followed by the
// per-verb business logic dispatched off action.Action.
package eval

import (
	"context"
	"time"

	"github.com/5cover/tchatator413/internal/action"
	"github.com/5cover/tchatator413/internal/auth"
	"github.com/5cover/tchatator413/internal/config"
	"github.com/5cover/tchatator413/internal/response"
	"github.com/5cover/tchatator413/internal/store/adapter"
	"github.com/5cover/tchatator413/internal/store/types"
)

// Evaluator holds the shared, connection-scoped state evaluation needs: the
// DAL handle, the live configuration, the root credential held out of the
// store, and a logger for internal failures.
type Evaluator struct {
	db   adapter.Adapter
	cfg  *config.Config
	root auth.RootCredential
	log  *config.Logger
}

// New builds an Evaluator over db, bound to cfg's current limits and root's
// credential.
func New(db adapter.Adapter, cfg *config.Config, root auth.RootCredential, log *config.Logger) *Evaluator {
	return &Evaluator{db: db, cfg: cfg, root: root, log: log}
}

// DB exposes the underlying Adapter so the parser can resolve a "user"
// argument (email or name) into an id — the only store access the parser
// performs.
func (e *Evaluator) DB() adapter.Adapter { return e.db }

func internalError(location string) *action.Error {
	return &action.Error{Kind: action.ErrOther, Location: location, Status: 500}
}

func otherError(location string, status int) *action.Error {
	return &action.Error{Kind: action.ErrOther, Location: location, Status: status}
}

func invariant(location, name string) *action.Error {
	return &action.Error{Kind: action.ErrInvariantViolation, Location: location, InvariantName: name}
}

// authenticate resolves the action's credential to an identity. The
// configuration-held root credential is checked before the store is ever
// consulted; root never has a user row.
func (e *Evaluator) authenticate(ctx context.Context, verb action.Verb, c action.Action) (types.Identity, *action.Error) {
	constr := c.ConstrOf()
	location := verb.String() + ".with.constr"

	if auth.VerifyRootConstr(e.root, constr) {
		return types.Identity{ID: types.RootID, Role: types.RoleAdmin}, nil
	}

	id, err := e.db.VerifyUserConstr(ctx, constr)
	if err != nil {
		if err == adapter.ErrUnauthorized {
			return types.Identity{}, otherError(location, 401)
		}
		e.log.Error("verify_user_constr: %v", err)
		return types.Identity{}, internalError(location)
	}
	return id, nil
}

// roleGates names which roles may invoke each verb. block/unblock/ban/
// unban are reserved to administrators and professional accounts.
var roleGates = map[action.Verb]types.Role{
	action.VerbWhois:   types.RoleAll,
	action.VerbSend:    types.RoleAll,
	action.VerbMotd:    types.RoleAll,
	action.VerbInbox:   types.RoleAll,
	action.VerbOutbox:  types.RoleAll,
	action.VerbEdit:    types.RoleAll,
	action.VerbRm:      types.RoleAll,
	action.VerbBlock:   types.RoleAdmin | types.RolePro,
	action.VerbUnblock: types.RoleAdmin | types.RolePro,
	action.VerbBan:     types.RoleAdmin | types.RolePro,
	action.VerbUnban:   types.RoleAdmin | types.RolePro,
}

func (e *Evaluator) authorize(verb action.Verb, identity types.Identity) *action.Error {
	gate := roleGates[verb]
	if !identity.Role.Any(gate) {
		return otherError(verb.String()+".with.constr", 403)
	}
	return nil
}

// Evaluate runs the full prelude-plus-dispatch pipeline for one Action,
// producing its Response. An Action of kind VerbError short-circuits: the
// evaluator never performs a side effect for it.
func (e *Evaluator) Evaluate(ctx context.Context, a action.Action) response.Response {
	if a.Verb == action.VerbError {
		return response.ErrorResponse(a.Verb, a.Err)
	}

	identity, errv := e.authenticate(ctx, a.Verb, a)
	if errv != nil {
		return response.ErrorResponse(a.Verb, errv)
	}
	if errv := e.authorize(a.Verb, identity); errv != nil {
		return response.ErrorResponse(a.Verb, errv)
	}

	switch a.Verb {
	case action.VerbWhois:
		return e.evalWhois(ctx, identity, a.Whois)
	case action.VerbSend:
		return e.evalSend(ctx, identity, a.Send)
	case action.VerbMotd:
		return response.Response{Verb: action.VerbMotd, Motd: &response.MotdBody{}}
	case action.VerbInbox:
		return e.evalInbox(ctx, identity, a.Inbox)
	case action.VerbOutbox:
		return e.evalOutbox(ctx, identity, a.Outbox)
	case action.VerbEdit:
		return e.evalEdit(ctx, identity, a.Edit)
	case action.VerbRm:
		return e.evalRm(ctx, a.Rm)
	case action.VerbBlock:
		return e.evalBlock(ctx, identity, a.Block)
	case action.VerbUnblock:
		return e.evalUnblock(ctx, identity, a.Unblock)
	case action.VerbBan:
		return e.evalBan(ctx, identity, a.Ban)
	case action.VerbUnban:
		return e.evalUnban(ctx, identity, a.Unban)
	default:
		return response.ErrorResponse(a.Verb, internalError("action.do"))
	}
}

func (e *Evaluator) evalWhois(ctx context.Context, _ types.Identity, args *action.WhoisArgs) response.Response {
	u, err := e.db.GetUser(ctx, args.UserID)
	if err != nil {
		if err == adapter.ErrNotFound {
			return response.ErrorResponse(action.VerbWhois, otherError("whois.with.user", 404))
		}
		e.log.Error("get_user: %v", err)
		return response.ErrorResponse(action.VerbWhois, internalError("whois.with.user"))
	}
	return response.Response{Verb: action.VerbWhois, Whois: &response.WhoisBody{
		UserID:  u.ID,
		Role:    u.Role,
		Variant: u.Variant,
	}}
}

// evalSend runs the send checks in a fixed order — destination exists,
// payload within bounds, no self-send, members only write to pros, pros
// only respond to members who contacted them first — before ever calling
// SendMsg.
func (e *Evaluator) evalSend(ctx context.Context, caller types.Identity, args *action.SendArgs) response.Response {
	destRole, err := e.db.GetUserRole(ctx, args.Dest)
	if err != nil {
		if err == adapter.ErrNotFound {
			return response.ErrorResponse(action.VerbSend, otherError("send.with.dest", 404))
		}
		e.log.Error("get_user_role: %v", err)
		return response.ErrorResponse(action.VerbSend, internalError("send.with.dest"))
	}

	if int32(len(args.Content)) > int32(e.cfg.MaxMsgLength) {
		return response.ErrorResponse(action.VerbSend, otherError("send.with.content", 413))
	}

	if caller.ID == args.Dest {
		return response.ErrorResponse(action.VerbSend, invariant("send.with.dest", "no_send_self"))
	}

	if caller.Role.Has(types.RoleMember) && !destRole.Has(types.RolePro) {
		return response.ErrorResponse(action.VerbSend, invariant("send.with.dest", "client_send_pro"))
	}

	if caller.Role.Has(types.RolePro) {
		if !destRole.Has(types.RoleMember) {
			return response.ErrorResponse(action.VerbSend, invariant("send.with.dest", "pro_responds_client"))
		}
		n, err := e.db.CountMsg(ctx, args.Dest, caller.ID)
		if err != nil {
			e.log.Error("count_msg: %v", err)
			return response.ErrorResponse(action.VerbSend, internalError("send.with.dest"))
		}
		if n == 0 {
			return response.ErrorResponse(action.VerbSend, invariant("send.with.dest", "pro_responds_client"))
		}
	}

	id, err := e.db.SendMsg(ctx, caller.ID, args.Dest, args.Content)
	if err != nil {
		if err == adapter.ErrBlocked {
			return response.ErrorResponse(action.VerbSend, otherError("send.with.dest", 403))
		}
		e.log.Error("send_msg: %v", err)
		return response.ErrorResponse(action.VerbSend, internalError("send.with.dest"))
	}
	return response.Response{Verb: action.VerbSend, Send: &response.SendBody{MsgID: id}}
}

// splitPage truncates an over-fetched-by-one row slice to limit and reports
// whether more rows existed past the window.
func splitPage(rows []types.Message, limit int32) ([]types.Message, bool) {
	if int32(len(rows)) > limit {
		return rows[:limit], true
	}
	return rows, false
}

func (e *Evaluator) evalInbox(ctx context.Context, caller types.Identity, args *action.PageArgs) response.Response {
	limit := int32(e.cfg.PageInbox)
	offset := limit * (args.Page - 1)
	rows, err := e.db.GetInbox(ctx, limit, offset, caller.ID)
	if err != nil {
		e.log.Error("get_inbox: %v", err)
		return response.ErrorResponse(action.VerbInbox, internalError("inbox.with.page"))
	}
	page, hasNext := splitPage(rows, limit)
	return messagesResponse(action.VerbInbox, page, hasNext)
}

func (e *Evaluator) evalOutbox(ctx context.Context, caller types.Identity, args *action.PageArgs) response.Response {
	limit := int32(e.cfg.PageOutbox)
	offset := limit * (args.Page - 1)
	rows, err := e.db.GetOutbox(ctx, limit, offset, caller.ID)
	if err != nil {
		e.log.Error("get_outbox: %v", err)
		return response.ErrorResponse(action.VerbOutbox, internalError("outbox.with.page"))
	}
	page, hasNext := splitPage(rows, limit)
	return messagesResponse(action.VerbOutbox, page, hasNext)
}

func messagesResponse(verb action.Verb, rows []types.Message, hasNext bool) response.Response {
	msgs := make([]response.Msg, len(rows))
	for i, m := range rows {
		msgs[i] = response.FromMessage(m)
	}
	body := &response.MessagesBody{Messages: msgs, HasNextPage: hasNext}
	r := response.Response{Verb: verb}
	if verb == action.VerbInbox {
		r.Inbox = body
	} else {
		r.Outbox = body
	}
	return r
}

func (e *Evaluator) evalEdit(ctx context.Context, _ types.Identity, args *action.EditArgs) response.Response {
	if int32(len(args.NewContent)) > int32(e.cfg.MaxMsgLength) {
		return response.ErrorResponse(action.VerbEdit, otherError("edit.with.new_content", 413))
	}
	if err := e.db.EditMsg(ctx, args.MsgID, args.NewContent); err != nil {
		if err == adapter.ErrNotFound {
			return response.ErrorResponse(action.VerbEdit, otherError("edit.with.msg_id", 404))
		}
		e.log.Error("edit_msg: %v", err)
		return response.ErrorResponse(action.VerbEdit, internalError("edit.with.msg_id"))
	}
	return response.Response{Verb: action.VerbEdit, Edit: &response.EmptyBody{}}
}

func (e *Evaluator) evalRm(ctx context.Context, args *action.RmArgs) response.Response {
	err := e.db.RmMsg(ctx, args.MsgID)
	if err != nil {
		if err == adapter.ErrNotFound {
			return response.ErrorResponse(action.VerbRm, otherError("rm.with.msg_id", 404))
		}
		e.log.Error("rm_msg: %v", err)
		return response.ErrorResponse(action.VerbRm, internalError("rm.with.msg_id"))
	}
	return response.Response{Verb: action.VerbRm, Rm: &response.EmptyBody{}}
}

func (e *Evaluator) blockFor() time.Duration {
	return time.Duration(e.cfg.BlockFor) * time.Second
}

func (e *Evaluator) evalBlock(ctx context.Context, caller types.Identity, args *action.UserTargetArgs) response.Response {
	if err := e.db.BlockUser(ctx, caller.ID, args.Target, e.blockFor()); err != nil {
		if err == adapter.ErrNotFound {
			return response.ErrorResponse(action.VerbBlock, otherError("block.with.user", 404))
		}
		e.log.Error("block_user: %v", err)
		return response.ErrorResponse(action.VerbBlock, internalError("block.with.user"))
	}
	return response.Response{Verb: action.VerbBlock, Block: &response.EmptyBody{}}
}

func (e *Evaluator) evalUnblock(ctx context.Context, caller types.Identity, args *action.UserTargetArgs) response.Response {
	if err := e.db.UnblockUser(ctx, caller.ID, args.Target); err != nil {
		if err == adapter.ErrNotFound {
			return response.ErrorResponse(action.VerbUnblock, otherError("unblock.with.user", 404))
		}
		e.log.Error("unblock_user: %v", err)
		return response.ErrorResponse(action.VerbUnblock, internalError("unblock.with.user"))
	}
	return response.Response{Verb: action.VerbUnblock, Unblock: &response.EmptyBody{}}
}

func (e *Evaluator) evalBan(ctx context.Context, caller types.Identity, args *action.UserTargetArgs) response.Response {
	if err := e.db.BanUser(ctx, caller.ID, args.Target, e.blockFor()); err != nil {
		if err == adapter.ErrNotFound {
			return response.ErrorResponse(action.VerbBan, otherError("ban.with.user", 404))
		}
		e.log.Error("ban_user: %v", err)
		return response.ErrorResponse(action.VerbBan, internalError("ban.with.user"))
	}
	return response.Response{Verb: action.VerbBan, Ban: &response.EmptyBody{}}
}

func (e *Evaluator) evalUnban(ctx context.Context, caller types.Identity, args *action.UserTargetArgs) response.Response {
	if err := e.db.UnbanUser(ctx, caller.ID, args.Target); err != nil {
		if err == adapter.ErrNotFound {
			return response.ErrorResponse(action.VerbUnban, otherError("unban.with.user", 404))
		}
		e.log.Error("unban_user: %v", err)
		return response.ErrorResponse(action.VerbUnban, internalError("unban.with.user"))
	}
	return response.Response{Verb: action.VerbUnban, Unban: &response.EmptyBody{}}
}

// EvaluateRequest evaluates actions strictly in input order. No action
// observes another's uncommitted side effects because each runs to
// completion (commit or rollback) before the next begins.
func (e *Evaluator) EvaluateRequest(ctx context.Context, actions []action.Action) []response.Response {
	out := make([]response.Response, len(actions))
	for i, a := range actions {
		out[i] = e.Evaluate(ctx, a)
	}
	return out
}
