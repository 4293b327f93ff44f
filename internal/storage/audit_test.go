package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"koyomi/pkg/logx"
)

func TestOpenAuditDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", "NONE"} {
		a, err := OpenAudit(AuditConfig{Driver: driver}, logx.Logger{})
		if err != nil {
			t.Fatalf("driver %q: %v", driver, err)
		}
		if a != nil {
			t.Fatalf("driver %q: expected nil audit", driver)
		}
	}
}

func TestOpenAuditUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := OpenAudit(AuditConfig{Driver: "postgres"}, logx.Logger{}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFileAuditAppend(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := OpenAudit(AuditConfig{Driver: "file", Path: path}, logx.Logger{})
	if err != nil {
		t.Fatalf("OpenAudit error: %v", err)
	}

	ctx := context.Background()
	at := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	entries := []AuditEntry{
		{At: at, Channel: "100", UserID: "42", Plugin: "reminder", Action: "add", Detail: "tea"},
		{At: at.Add(time.Minute), Channel: "100", Plugin: "reminder", Action: "fired"},
	}
	for _, e := range entries {
		if err := a.Append(ctx, e); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := a.Append(ctx, entries[0]); err == nil {
		t.Fatal("Append after Close succeeded")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer f.Close()
	var got []AuditEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad audit line %q: %v", sc.Text(), err)
		}
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("lines = %d, want 2", len(got))
	}
	if got[0].Action != "add" || got[0].Detail != "tea" || got[1].Action != "fired" {
		t.Fatalf("entries = %+v", got)
	}
}

func TestSQLiteAuditAppend(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.db")
	a, err := OpenAudit(AuditConfig{Driver: "sqlite", Path: path}, logx.Logger{})
	if err != nil {
		t.Fatalf("OpenAudit error: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	at := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		e := AuditEntry{At: at.Add(time.Duration(i) * time.Minute), Channel: "100", Plugin: "calendar", Action: "fix"}
		if err := a.Append(ctx, e); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	sa := a.(*sqliteAudit)
	var n int
	if err := sa.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit WHERE channel = ?", "100").Scan(&n); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if n != 3 {
		t.Fatalf("rows = %d, want 3", n)
	}
}

func TestFileAuditRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := OpenAudit(AuditConfig{Driver: "file"}, logx.Logger{}); err == nil {
		t.Fatal("expected error for missing path")
	}
}
