// Package adapter declares the contract the evaluator uses to talk to the
// relational store: a single interface the core depends on, implemented by
// exactly one concrete package (internal/store/postgres).
package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/5cover/tchatator413/internal/constr"
	"github.com/5cover/tchatator413/internal/store/types"
)

// ErrNotFound is returned by any Adapter call whose subject (user, message)
// does not exist. The evaluator translates it to a 404 response; the
// argument decoder, resolving a user reference, translates it to
// invalid_value. It is never logged by the adapter, only by whoever cannot
// recover from it.
var ErrNotFound = errors.New("adapter: not found")

// ErrUnauthorized is returned by VerifyUserConstr when the credential does
// not match any stored account.
var ErrUnauthorized = errors.New("adapter: unauthorized")

// ErrBlocked is returned by SendMsg when the sender has been blocked or
// banned by policy rather than by a missing row or a driver failure.
var ErrBlocked = errors.New("adapter: blocked")

// Every other failure an Adapter call can produce is a plain error already
// logged by the adapter implementation before it's returned; callers must
// never log it a second time.

// Adapter is the interface the evaluator and the argument decoders depend
// on. It is implemented once, by internal/store/postgres, but is kept as an
// interface so the evaluator can be tested against a fake.
type Adapter interface {
	// VerifyUserConstr resolves a credential to an identity. Returns
	// ErrUnauthorized if the api key is unknown or the password does not
	// match.
	VerifyUserConstr(ctx context.Context, c constr.Constr) (types.Identity, error)

	// GetUserIDByEmail resolves an email to a user id. Returns ErrNotFound
	// if no account uses that email.
	GetUserIDByEmail(ctx context.Context, email string) (int32, error)

	// GetUserIDByName resolves a display name to a user id, checking
	// members before professional accounts. Returns ErrNotFound if no
	// account uses that name.
	GetUserIDByName(ctx context.Context, name string) (int32, error)

	// GetUser fills a full user record, including its role-specific
	// variant. Returns ErrNotFound if id does not exist.
	GetUser(ctx context.Context, id int32) (types.User, error)

	// GetUserRole returns the role of a user. Returns ErrNotFound if id
	// does not exist.
	GetUserRole(ctx context.Context, id int32) (types.Role, error)

	// GetMsg fills a message record. Returns ErrNotFound if id does not
	// exist or was removed.
	GetMsg(ctx context.Context, id int32) (types.Message, error)

	// CountMsg counts messages previously sent from sender to recipient.
	CountMsg(ctx context.Context, sender, recipient int32) (int32, error)

	// SendMsg inserts a message and returns its id. Returns ErrBlocked if
	// the store's policy (send_msg stored procedure) refuses the send
	// because the sender is blocked or banned; that is distinct from a
	// business-rule rejection, which the evaluator checks itself before
	// ever calling SendMsg.
	SendMsg(ctx context.Context, sender, recipient int32, content string) (int32, error)

	// GetInbox returns up to limit+1 messages addressed to recipient,
	// newest first, starting at offset. Returning limit+1 rows lets the
	// caller compute has_next_page without a second round trip.
	GetInbox(ctx context.Context, limit, offset, recipient int32) ([]types.Message, error)

	// GetOutbox returns up to limit+1 messages sent by sender, newest
	// first, starting at offset. Same over-fetch-by-one convention as
	// GetInbox.
	GetOutbox(ctx context.Context, limit, offset, sender int32) ([]types.Message, error)

	// EditMsg replaces a message's content and stamps the edit time.
	// Returns ErrNotFound if no row was affected.
	EditMsg(ctx context.Context, id int32, newContent string) error

	// RmMsg deletes a message. Returns ErrNotFound if no row was affected.
	RmMsg(ctx context.Context, id int32) error

	// BlockUser records that actor has blocked target for the given
	// duration. Returns ErrNotFound if target does not exist.
	BlockUser(ctx context.Context, actor, target int32, blockFor time.Duration) error

	// UnblockUser lifts a block previously recorded by BlockUser.
	UnblockUser(ctx context.Context, actor, target int32) error

	// BanUser records that actor has banned target for the given duration.
	// Returns ErrNotFound if target does not exist.
	BanUser(ctx context.Context, actor, target int32, blockFor time.Duration) error

	// UnbanUser lifts a ban previously recorded by BanUser.
	UnbanUser(ctx context.Context, actor, target int32) error

	// Transaction runs body inside BEGIN/COMMIT. body's returned error, if
	// any, causes a ROLLBACK instead; that error is then returned from
	// Transaction unchanged. Nested transactions are not supported: a
	// second Transaction call inside body's call stack is a programming
	// error.
	Transaction(ctx context.Context, body func(ctx context.Context) error) error

	// Close releases the underlying connection pool.
	Close() error
}
