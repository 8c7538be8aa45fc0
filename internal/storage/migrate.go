package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// Migration is one forward schema step.
type Migration struct {
	Version int64
	Name    string
	// Statements are keyed by driver name.
	Statements map[string][]string
}

// Keep this in order of execution, oldest to newest.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create tables",
		Statements: map[string][]string{
			DriverSQLite: {
				`CREATE TABLE IF NOT EXISTS users (
  id            TEXT PRIMARY KEY,
  email         TEXT NOT NULL,
  password_hash TEXT,
  created_at    TEXT NOT NULL,
  updated_at    TEXT NOT NULL,
  deleted_at    TEXT
);`,
				`CREATE UNIQUE INDEX IF NOT EXISTS users_email_live ON users(email) WHERE deleted_at IS NULL;`,
				`CREATE TABLE IF NOT EXISTS webhooks (
  id          TEXT PRIMARY KEY,
  token       TEXT NOT NULL,
  name        TEXT,
  visibility  TEXT NOT NULL DEFAULT 'private',
  is_enabled  INTEGER NOT NULL DEFAULT 1,
  owner_id    TEXT REFERENCES users(id),
  session_id  TEXT,
  created_at  TEXT NOT NULL,
  updated_at  TEXT NOT NULL,
  deleted_at  TEXT
);`,
				`CREATE UNIQUE INDEX IF NOT EXISTS webhooks_token_live ON webhooks(token) WHERE deleted_at IS NULL;`,
				`CREATE INDEX IF NOT EXISTS webhooks_owner ON webhooks(owner_id);`,
				`CREATE INDEX IF NOT EXISTS webhooks_session ON webhooks(session_id);`,
				`CREATE TABLE IF NOT EXISTS requests (
  id            TEXT PRIMARY KEY,
  webhook_id    TEXT NOT NULL REFERENCES webhooks(id),
  webhook_token TEXT NOT NULL,
  method        TEXT NOT NULL,
  headers       TEXT NOT NULL DEFAULT '{}',
  query_params  TEXT NOT NULL DEFAULT '{}',
  body          TEXT,
  captured_at   TEXT NOT NULL,
  source_ip     TEXT NOT NULL,
  user_agent    TEXT,
  deleted_at    TEXT
);`,
				`CREATE INDEX IF NOT EXISTS requests_webhook_captured ON requests(webhook_id, captured_at);`,
				`CREATE TABLE IF NOT EXISTS response_configs (
  id           TEXT PRIMARY KEY,
  webhook_id   TEXT NOT NULL REFERENCES webhooks(id),
  status_code  INTEGER NOT NULL DEFAULT 200,
  headers      TEXT NOT NULL DEFAULT '{}',
  body         TEXT,
  content_type TEXT NOT NULL DEFAULT 'application/json',
  created_at   TEXT NOT NULL,
  updated_at   TEXT NOT NULL,
  deleted_at   TEXT
);`,
				`CREATE UNIQUE INDEX IF NOT EXISTS response_configs_webhook_live ON response_configs(webhook_id) WHERE deleted_at IS NULL;`,
			},
			DriverPostgres: {
				`CREATE TABLE IF NOT EXISTS users (
  id            TEXT PRIMARY KEY,
  email         TEXT NOT NULL,
  password_hash TEXT,
  created_at    TEXT NOT NULL,
  updated_at    TEXT NOT NULL,
  deleted_at    TEXT
);`,
				`CREATE UNIQUE INDEX IF NOT EXISTS users_email_live ON users(email) WHERE deleted_at IS NULL;`,
				`CREATE TABLE IF NOT EXISTS webhooks (
  id          TEXT PRIMARY KEY,
  token       TEXT NOT NULL,
  name        TEXT,
  visibility  TEXT NOT NULL DEFAULT 'private',
  is_enabled  BOOLEAN NOT NULL DEFAULT TRUE,
  owner_id    TEXT REFERENCES users(id),
  session_id  TEXT,
  created_at  TEXT NOT NULL,
  updated_at  TEXT NOT NULL,
  deleted_at  TEXT
);`,
				`CREATE UNIQUE INDEX IF NOT EXISTS webhooks_token_live ON webhooks(token) WHERE deleted_at IS NULL;`,
				`CREATE INDEX IF NOT EXISTS webhooks_owner ON webhooks(owner_id);`,
				`CREATE INDEX IF NOT EXISTS webhooks_session ON webhooks(session_id);`,
				`CREATE TABLE IF NOT EXISTS requests (
  id            TEXT PRIMARY KEY,
  webhook_id    TEXT NOT NULL REFERENCES webhooks(id),
  webhook_token TEXT NOT NULL,
  method        TEXT NOT NULL,
  headers       TEXT NOT NULL DEFAULT '{}',
  query_params  TEXT NOT NULL DEFAULT '{}',
  body          TEXT,
  captured_at   TEXT NOT NULL,
  source_ip     TEXT NOT NULL,
  user_agent    TEXT,
  deleted_at    TEXT
);`,
				`CREATE INDEX IF NOT EXISTS requests_webhook_captured ON requests(webhook_id, captured_at);`,
				`CREATE TABLE IF NOT EXISTS response_configs (
  id           TEXT PRIMARY KEY,
  webhook_id   TEXT NOT NULL REFERENCES webhooks(id),
  status_code  INTEGER NOT NULL DEFAULT 200,
  headers      TEXT NOT NULL DEFAULT '{}',
  body         TEXT,
  content_type TEXT NOT NULL DEFAULT 'application/json',
  created_at   TEXT NOT NULL,
  updated_at   TEXT NOT NULL,
  deleted_at   TEXT
);`,
				`CREATE UNIQUE INDEX IF NOT EXISTS response_configs_webhook_live ON response_configs(webhook_id) WHERE deleted_at IS NULL;`,
			},
		},
	},
}

const migrationsTable = `CREATE TABLE IF NOT EXISTS migrations (
  version    INTEGER PRIMARY KEY,
  name       TEXT NOT NULL,
  applied_at TEXT NOT NULL
);`

// Migrate applies every migration newer than the recorded version.
func Migrate(ctx context.Context, d *DB) error {
	driver := d.DriverName()
	return d.TransactionContext(ctx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, migrationsTable); err != nil {
			return fmt.Errorf("create migrations table: %w", err)
		}

		var current int64
		err := tx.GetContext(ctx, &current, "SELECT version FROM migrations ORDER BY version DESC LIMIT 1")
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read migration version: %w", err)
		}

		for _, m := range migrations {
			if m.Version <= current {
				continue
			}
			stmts, ok := m.Statements[driver]
			if !ok {
				return fmt.Errorf("migration %d has no statements for driver %q", m.Version, driver)
			}

			d.logger.Info("running migration", slog.Int64("version", m.Version), slog.String("name", m.Name))
			for _, stmt := range stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
				}
			}
			if _, err := tx.ExecContext(ctx,
				tx.Rebind("INSERT INTO migrations (version, name, applied_at) VALUES (?, ?, ?)"),
				m.Version, m.Name, Now(),
			); err != nil {
				return fmt.Errorf("record migration %d: %w", m.Version, err)
			}
		}
		return nil
	})
}

// Version returns the newest applied migration.
func Version(ctx context.Context, h Handler) (int64, error) {
	var v int64
	err := h.GetContext(ctx, &v, "SELECT version FROM migrations ORDER BY version DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}
