package postgres

import "context"

// schema is executed once by EnsureSchema. user_name and business_name are
// each globally unique, asserted through table constraints rather than
// application logic.
//
// Timestamps are stored as 64-bit microseconds since the PostgreSQL epoch
// (2000-01-01 UTC); now_micros() is the single definition of "now" in that
// encoding, shared by send_msg, the msg_ordered age computation and the
// blocks/bans expiry checks so no two sites can disagree on units. Ages
// are not stored: read_at/edited_at/deleted_at event timestamps are, and
// msg_ordered derives each age as whole seconds since its event, 0 when
// the event never happened.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            SERIAL PRIMARY KEY,
	role          INTEGER NOT NULL,
	api_key       UUID NOT NULL UNIQUE,
	password_hash BYTEA,
	email         VARCHAR(319) UNIQUE,
	user_name     VARCHAR(255) UNIQUE,
	business_name VARCHAR(255) UNIQUE
);

CREATE TABLE IF NOT EXISTS messages (
	id           SERIAL PRIMARY KEY,
	content      TEXT NOT NULL,
	sent_at      BIGINT NOT NULL,
	read_at      BIGINT,
	edited_at    BIGINT,
	deleted_at   BIGINT,
	sender_id    INTEGER NOT NULL,
	recipient_id INTEGER NOT NULL REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_id, sent_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id, sent_at DESC);

CREATE OR REPLACE FUNCTION now_micros() RETURNS BIGINT AS $$
	SELECT (extract(epoch from now())::bigint - 946684800) * 1000000;
$$ LANGUAGE sql;

CREATE OR REPLACE VIEW msg_ordered AS
	SELECT id, content, sent_at,
		COALESCE(((now_micros() - read_at) / 1000000)::integer, 0)    AS read_age,
		COALESCE(((now_micros() - edited_at) / 1000000)::integer, 0)  AS edited_age,
		COALESCE(((now_micros() - deleted_at) / 1000000)::integer, 0) AS deleted_age,
		sender_id, recipient_id
	FROM messages
	ORDER BY sent_at DESC;

CREATE TABLE IF NOT EXISTS blocks (
	actor_id  INTEGER NOT NULL REFERENCES users(id),
	target_id INTEGER NOT NULL REFERENCES users(id),
	until     BIGINT NOT NULL,
	PRIMARY KEY (actor_id, target_id)
);

CREATE TABLE IF NOT EXISTS bans (
	actor_id  INTEGER NOT NULL REFERENCES users(id),
	target_id INTEGER NOT NULL REFERENCES users(id),
	until     BIGINT NOT NULL,
	PRIMARY KEY (actor_id, target_id)
);

CREATE OR REPLACE FUNCTION send_msg(p_sender INTEGER, p_recipient INTEGER, p_content TEXT)
RETURNS INTEGER AS $$
DECLARE
	v_id INTEGER;
BEGIN
	IF EXISTS (
		SELECT 1 FROM blocks WHERE actor_id = p_recipient AND target_id = p_sender AND until > now_micros()
	) OR EXISTS (
		SELECT 1 FROM bans WHERE target_id = p_sender AND until > now_micros()
	) THEN
		RETURN 0;
	END IF;

	INSERT INTO messages (content, sent_at, sender_id, recipient_id)
	VALUES (p_content, now_micros(), p_sender, p_recipient)
	RETURNING id INTO v_id;

	RETURN v_id;
END;
$$ LANGUAGE plpgsql;
`

// EnsureSchema creates the tables, view and stored procedure this adapter
// depends on if they do not already exist. Intended for local development
// and interactive mode; a production deployment is expected to run its own
// migration tooling against the same shapes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return s.internal("ensure_schema", err)
	}
	return nil
}
