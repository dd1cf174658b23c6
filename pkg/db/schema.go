package db

import "fmt"

// Schema statements, applied in order by scripts/migrate. Message rows
// cluster ascending by snowflake ID so history reads come back in creation
// order. Read receipts are written to two tables: message_reads answers
// "who has seen message M", user_reads answers "what has reader U read".
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id uuid PRIMARY KEY,
		username text,
		first_name text,
		last_name text,
		avatar_url text,
		email text,
		is_active boolean,
		is_online boolean,
		last_active timestamp
	)`,
	`CREATE INDEX IF NOT EXISTS users_online_idx ON users (is_online)`,
	`CREATE TABLE IF NOT EXISTS channels (
		id uuid PRIMARY KEY,
		slug text,
		name text,
		kind text,
		created_by uuid,
		created_at timestamp,
		last_activity timestamp,
		is_deleted boolean,
		is_archived boolean,
		allow_uploads boolean,
		allow_reactions boolean,
		slow_mode_seconds int,
		require_approval boolean,
		read_only boolean,
		max_members int
	)`,
	`CREATE TABLE IF NOT EXISTS channel_members (
		channel_id uuid,
		user_id uuid,
		role text,
		joined_at timestamp,
		muted boolean,
		can_write boolean,
		can_add_members boolean,
		can_delete_messages boolean,
		can_moderate boolean,
		PRIMARY KEY (channel_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_channels (
		user_id uuid,
		channel_id uuid,
		PRIMARY KEY (user_id, channel_id)
	)`,
	`CREATE TABLE IF NOT EXISTS dm_pairs (
		pair_key text PRIMARY KEY,
		channel_id uuid
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		channel_id uuid,
		id bigint,
		sender_id uuid,
		kind text,
		body text,
		attachments list<text>,
		is_deleted boolean,
		edited_at timestamp,
		PRIMARY KEY (channel_id, id)
	) WITH CLUSTERING ORDER BY (id ASC)`,
	`CREATE TABLE IF NOT EXISTS message_revisions (
		channel_id uuid,
		message_id bigint,
		revised_at timestamp,
		body text,
		PRIMARY KEY ((channel_id, message_id), revised_at)
	) WITH CLUSTERING ORDER BY (revised_at DESC)`,
	`CREATE TABLE IF NOT EXISTS message_reactions (
		channel_id uuid,
		message_id bigint,
		emoji text,
		user_id uuid,
		PRIMARY KEY ((channel_id, message_id), emoji, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS message_reads (
		channel_id uuid,
		message_id bigint,
		user_id uuid,
		read_at timestamp,
		PRIMARY KEY (channel_id, message_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_reads (
		channel_id uuid,
		user_id uuid,
		message_id bigint,
		PRIMARY KEY ((channel_id, user_id), message_id)
	)`,
	`CREATE TABLE IF NOT EXISTS channel_counters (
		channel_id uuid PRIMARY KEY,
		message_count counter
	)`,
}

var tableNames = []string{
	"users", "channels", "channel_members", "user_channels", "dm_pairs",
	"messages", "message_revisions", "message_reactions", "message_reads",
	"user_reads", "channel_counters",
}

// EnsureKeyspace connects to the system keyspace and creates the target
// keyspace if missing. Schema creation at startup is an MVP convenience;
// production deployments run scripts/migrate instead.
func EnsureKeyspace(hosts []string, keyspace string) error {
	sys, err := NewSession(hosts, "system")
	if err != nil {
		return err
	}
	defer sys.Close()

	stmt := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`, keyspace)
	return sys.Query(stmt).Exec()
}

// Migrate applies the full schema to the session's keyspace.
func Migrate(session *Session) error {
	for _, stmt := range schemaStatements {
		if err := session.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Drop removes every table. Used by scripts/migrate -drop for local resets.
func Drop(session *Session) error {
	for _, name := range tableNames {
		if err := session.Query("DROP TABLE IF EXISTS " + name).Exec(); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
	}
	return nil
}
