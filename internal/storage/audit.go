package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"koyomi/pkg/logx"
)

// AuditEntry records a state mutation or a fired reminder.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At      time.Time `json:"at"`
	Channel string    `json:"channel"`
	UserID  string    `json:"userId,omitempty"`
	Plugin  string    `json:"plugin"`
	Action  string    `json:"action"`
	Detail  string    `json:"detail,omitempty"`
}

// Audit is the minimal append-only log API.
type Audit interface {
	Append(ctx context.Context, e AuditEntry) error
	Close() error
}

// AuditConfig configures the audit log.
//
// Driver values:
//   - "file": dependency-free JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", (nil, nil) is returned and auditing is off.
type AuditConfig struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

func OpenAudit(cfg AuditConfig, log logx.Logger) (Audit, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "none":
		return nil, nil
	case "file":
		return openFileAudit(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLiteAudit(cfg, log)
	default:
		return nil, errors.New("unknown audit driver: " + driver)
	}
}
