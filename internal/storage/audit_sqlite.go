package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"koyomi/pkg/logx"
)

type sqliteAudit struct {
	db  *sql.DB
	log logx.Logger
}

const sqliteAuditSchema = `
CREATE TABLE IF NOT EXISTS audit (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	at      TEXT NOT NULL,
	channel TEXT NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	plugin  TEXT NOT NULL,
	action  TEXT NOT NULL,
	detail  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_at ON audit(at);
CREATE INDEX IF NOT EXISTS idx_audit_channel ON audit(channel);
`

func openSQLiteAudit(cfg AuditConfig, log logx.Logger) (Audit, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("audit.path is required for the sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteAuditSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit migrate: %w", err)
	}
	return &sqliteAudit{db: db, log: log}, nil
}

func (a *sqliteAudit) Append(ctx context.Context, e AuditEntry) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO audit (at, channel, user_id, plugin, action, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		e.At.Format("2006-01-02T15:04:05.000Z07:00"), e.Channel, e.UserID, e.Plugin, e.Action, e.Detail,
	)
	return err
}

func (a *sqliteAudit) Close() error {
	return a.db.Close()
}
