package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"koyomi/pkg/logx"
)

// fileAudit appends JSON Lines to a single file.
type fileAudit struct {
	log logx.Logger

	mu sync.Mutex
	f  *os.File
}

func openFileAudit(cfg AuditConfig, log logx.Logger) (Audit, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("audit.path is required for the file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileAudit{log: log, f: f}, nil
}

func (a *fileAudit) Append(ctx context.Context, e AuditEntry) error {
	_ = ctx
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(a.f).Encode(e)
}

func (a *fileAudit) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}
