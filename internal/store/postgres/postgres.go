// Package postgres is the sole implementation of adapter.Adapter, built on
// jmoiron/sqlx over lib/pq. The schema it targets carries the send policy
// in a stored procedure (send_msg), reads messages through the msg_ordered
// view, and stores timestamps as microseconds since the PostgreSQL epoch.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/5cover/tchatator413/internal/auth"
	"github.com/5cover/tchatator413/internal/config"
	"github.com/5cover/tchatator413/internal/constr"
	"github.com/5cover/tchatator413/internal/store/adapter"
	"github.com/5cover/tchatator413/internal/store/types"
)

// pgEpochOffset is the number of seconds between the Unix epoch and the
// PostgreSQL epoch (2000-01-01 UTC).
const pgEpochOffset = 946684800

// Store is the concrete Adapter over a shared *sqlx.DB pool handle.
type Store struct {
	db  *sqlx.DB
	log *config.Logger
}

// Open connects to the database named by env, in the driver/DSN convention
// lib/pq expects.
func Open(env config.Env, log *config.Logger) (*Store, error) {
	dsn := fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		env.DBHost, env.DBPort, env.DBName, env.DBUser, env.DBPassword)
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// txKey is the context key Transaction uses to thread its *sqlx.Tx through
// to nested adapter calls, so that all queries body makes run against the
// same BEGIN and nothing is visible outside it until COMMIT.
type txKey struct{}

// ext returns the query executor for ctx: the active transaction if one was
// opened by Transaction, otherwise the shared pool handle.
func (s *Store) ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

func pgMicros(t time.Time) int64 {
	return (t.Unix() - pgEpochOffset) * 1_000_000
}

func fromPgMicros(micros int64) time.Time {
	return time.Unix(micros/1_000_000+pgEpochOffset, 0).UTC()
}

// internal wraps a driver-level failure, logging it once here so callers
// never have to.
func (s *Store) internal(op string, err error) error {
	s.log.Error("postgres: %s: %v", op, err)
	return fmt.Errorf("postgres: %s: %w", op, err)
}

type userRow struct {
	ID           int32          `db:"id"`
	Role         int32          `db:"role"`
	UserName     sql.NullString `db:"user_name"`
	BusinessName sql.NullString `db:"business_name"`
	PasswordHash []byte         `db:"password_hash"`
	APIKey       string         `db:"api_key"`
}

func (s *Store) role(raw int32, op string) (types.Role, error) {
	r := types.Role(raw)
	if !r.Valid() {
		return 0, s.internal(op, fmt.Errorf("decoded role %d outside {admin,member,pro}", raw))
	}
	return r, nil
}

func (u userRow) variant(role types.Role) types.UserVariant {
	switch role {
	case types.RoleMember:
		return types.Member{UserName: u.UserName.String}
	case types.RolePro:
		return types.Pro{BusinessName: u.BusinessName.String}
	default:
		return nil
	}
}

// VerifyUserConstr resolves c against the users table by api_key, then
// checks the password with bcrypt. A valid root credential never reaches
// this method: auth.VerifyRootConstr is checked by the evaluator first, and
// a root key that fails that check finds no users row here.
func (s *Store) VerifyUserConstr(ctx context.Context, c constr.Constr) (types.Identity, error) {
	var row userRow
	err := sqlx.GetContext(ctx, s.ext(ctx), &row,
		`SELECT id, role, user_name, business_name, password_hash, api_key FROM users WHERE api_key = $1`,
		c.APIKey.String())
	if errors.Is(err, sql.ErrNoRows) {
		return types.Identity{}, adapter.ErrUnauthorized
	}
	if err != nil {
		return types.Identity{}, s.internal("verify_user_constr", err)
	}

	if !auth.CheckPassword(row.PasswordHash, c.Password) {
		return types.Identity{}, adapter.ErrUnauthorized
	}

	role, err := s.role(row.Role, "verify_user_constr")
	if err != nil {
		return types.Identity{}, err
	}
	return types.Identity{ID: row.ID, Role: role}, nil
}

func (s *Store) GetUserIDByEmail(ctx context.Context, email string) (int32, error) {
	var id int32
	err := sqlx.GetContext(ctx, s.ext(ctx), &id, `SELECT id FROM users WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, adapter.ErrNotFound
	}
	if err != nil {
		return 0, s.internal("get_user_id_by_email", err)
	}
	return id, nil
}

// GetUserIDByName checks members before professional accounts.
func (s *Store) GetUserIDByName(ctx context.Context, name string) (int32, error) {
	var id int32
	err := sqlx.GetContext(ctx, s.ext(ctx), &id, `SELECT id FROM users WHERE role = $1 AND user_name = $2`, int32(types.RoleMember), name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, s.internal("get_user_id_by_name", err)
	}

	err = sqlx.GetContext(ctx, s.ext(ctx), &id, `SELECT id FROM users WHERE role = $1 AND business_name = $2`, int32(types.RolePro), name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, adapter.ErrNotFound
	}
	if err != nil {
		return 0, s.internal("get_user_id_by_name", err)
	}
	return id, nil
}

func (s *Store) GetUser(ctx context.Context, id int32) (types.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, s.ext(ctx), &row,
		`SELECT id, role, user_name, business_name, password_hash, api_key FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return types.User{}, adapter.ErrNotFound
	}
	if err != nil {
		return types.User{}, s.internal("get_user", err)
	}
	role, err := s.role(row.Role, "get_user")
	if err != nil {
		return types.User{}, err
	}
	return types.User{ID: row.ID, Role: role, Variant: row.variant(role)}, nil
}

func (s *Store) GetUserRole(ctx context.Context, id int32) (types.Role, error) {
	var raw int32
	err := sqlx.GetContext(ctx, s.ext(ctx), &raw, `SELECT role FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, adapter.ErrNotFound
	}
	if err != nil {
		return 0, s.internal("get_user_role", err)
	}
	return s.role(raw, "get_user_role")
}

type msgRow struct {
	ID          int32  `db:"id"`
	Content     string `db:"content"`
	SentAt      int64  `db:"sent_at"`
	ReadAge     int32  `db:"read_age"`
	EditedAge   int32  `db:"edited_age"`
	DeletedAge  int32  `db:"deleted_age"`
	SenderID    int32  `db:"sender_id"`
	RecipientID int32  `db:"recipient_id"`
}

func (m msgRow) toMessage() types.Message {
	return types.Message{
		ID:          m.ID,
		Content:     m.Content,
		SentAt:      fromPgMicros(m.SentAt),
		ReadAge:     m.ReadAge,
		EditedAge:   m.EditedAge,
		DeletedAge:  m.DeletedAge,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
	}
}

func (s *Store) GetMsg(ctx context.Context, id int32) (types.Message, error) {
	var row msgRow
	err := sqlx.GetContext(ctx, s.ext(ctx), &row, `SELECT * FROM msg_ordered WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Message{}, adapter.ErrNotFound
	}
	if err != nil {
		return types.Message{}, s.internal("get_msg", err)
	}
	return row.toMessage(), nil
}

func (s *Store) CountMsg(ctx context.Context, sender, recipient int32) (int32, error) {
	var n int32
	err := sqlx.GetContext(ctx, s.ext(ctx), &n, `SELECT count(*) FROM msg_ordered WHERE sender_id = $1 AND recipient_id = $2`, sender, recipient)
	if err != nil {
		return 0, s.internal("count_msg", err)
	}
	return n, nil
}

// SendMsg calls the send_msg stored procedure, which enforces the
// sender-blocked/banned policy that the evaluator itself does not check.
func (s *Store) SendMsg(ctx context.Context, sender, recipient int32, content string) (int32, error) {
	var id int32
	err := sqlx.GetContext(ctx, s.ext(ctx), &id, `SELECT send_msg($1, $2, $3)`, sender, recipient, content)
	if err != nil {
		return 0, s.internal("send_msg", err)
	}
	if id == 0 {
		return 0, adapter.ErrBlocked
	}
	return id, nil
}

// GetInbox fetches limit+1 rows so the evaluator can compute has_next_page
// without a second round trip.
func (s *Store) GetInbox(ctx context.Context, limit, offset, recipient int32) ([]types.Message, error) {
	return s.getMessages(ctx, "get_inbox", `recipient_id = $1`, recipient, limit, offset)
}

func (s *Store) GetOutbox(ctx context.Context, limit, offset, sender int32) ([]types.Message, error) {
	return s.getMessages(ctx, "get_outbox", `sender_id = $1`, sender, limit, offset)
}

func (s *Store) getMessages(ctx context.Context, op, predicate string, party, limit, offset int32) ([]types.Message, error) {
	var rows []msgRow
	query := fmt.Sprintf(`SELECT * FROM msg_ordered WHERE %s ORDER BY sent_at DESC LIMIT $2 OFFSET $3`, predicate)
	if err := sqlx.SelectContext(ctx, s.ext(ctx), &rows, query, party, limit+1, offset); err != nil {
		return nil, s.internal(op, err)
	}
	msgs := make([]types.Message, len(rows))
	for i, r := range rows {
		msgs[i] = r.toMessage()
	}
	return msgs, nil
}

func (s *Store) EditMsg(ctx context.Context, id int32, newContent string) error {
	res, err := s.ext(ctx).ExecContext(ctx,
		`UPDATE messages SET content = $2, edited_at = now_micros() WHERE id = $1 AND deleted_at IS NULL`,
		id, newContent)
	if err != nil {
		return s.internal("edit_msg", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.internal("edit_msg", err)
	}
	if n == 0 {
		return adapter.ErrNotFound
	}
	return nil
}

func (s *Store) RmMsg(ctx context.Context, id int32) error {
	res, err := s.ext(ctx).ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return s.internal("rm_msg", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.internal("rm_msg", err)
	}
	if n == 0 {
		return adapter.ErrNotFound
	}
	return nil
}

// upsertRestriction runs its existence check and its mutation under
// Transaction, so that "target vanished between the check and the write"
// can never leave a dangling blocks/bans row.
func (s *Store) upsertRestriction(ctx context.Context, op, table string, actor, target int32, until *time.Time) error {
	return s.Transaction(ctx, func(ctx context.Context) error {
		var exists bool
		if err := sqlx.GetContext(ctx, s.ext(ctx), &exists, `SELECT true FROM users WHERE id = $1`, target); errors.Is(err, sql.ErrNoRows) {
			return adapter.ErrNotFound
		} else if err != nil {
			return s.internal(op, err)
		}

		var err error
		if until != nil {
			query := fmt.Sprintf(`INSERT INTO %s (actor_id, target_id, until) VALUES ($1, $2, $3)
				ON CONFLICT (actor_id, target_id) DO UPDATE SET until = EXCLUDED.until`, table)
			_, err = s.ext(ctx).ExecContext(ctx, query, actor, target, pgMicros(*until))
		} else {
			query := fmt.Sprintf(`DELETE FROM %s WHERE actor_id = $1 AND target_id = $2`, table)
			_, err = s.ext(ctx).ExecContext(ctx, query, actor, target)
		}
		if err != nil {
			return s.internal(op, err)
		}
		return nil
	})
}

func (s *Store) BlockUser(ctx context.Context, actor, target int32, blockFor time.Duration) error {
	until := time.Now().Add(blockFor)
	return s.upsertRestriction(ctx, "block_user", "blocks", actor, target, &until)
}

func (s *Store) UnblockUser(ctx context.Context, actor, target int32) error {
	return s.upsertRestriction(ctx, "unblock_user", "blocks", actor, target, nil)
}

func (s *Store) BanUser(ctx context.Context, actor, target int32, blockFor time.Duration) error {
	until := time.Now().Add(blockFor)
	return s.upsertRestriction(ctx, "ban_user", "bans", actor, target, &until)
}

func (s *Store) UnbanUser(ctx context.Context, actor, target int32) error {
	return s.upsertRestriction(ctx, "unban_user", "bans", actor, target, nil)
}

// Transaction wraps body in BEGIN/COMMIT, rolling back on any non-nil
// error. Nested transactions are a programming error.
func (s *Store) Transaction(ctx context.Context, body func(ctx context.Context) error) error {
	if _, nested := ctx.Value(txKey{}).(*sqlx.Tx); nested {
		panic("postgres: nested transaction")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return s.internal("transaction", err)
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)

	if err := body(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("transaction: rollback after %v: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return s.internal("transaction", err)
	}
	return nil
}
