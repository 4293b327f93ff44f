package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", `{
		"telegram": {"token": "tok"},
		"timezone": "UTC",
		"commands": {"prefix": "?"},
		"plugins": {"reminder": {"tick": "30s"}}
	}`)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Telegram.Token != "tok" || cfg.Location() != "UTC" || cfg.Prefix() != "?" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if raw := cfg.PluginRaw("reminder"); len(raw) == 0 {
		t.Fatal("plugin block missing")
	}
	if raw := cfg.PluginRaw("absent"); raw != nil {
		t.Fatalf("absent plugin raw = %s", raw)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", `
telegram:
  token: tok
storage:
  state_path: ./state.json
  audit:
    driver: sqlite
    path: ./audit.db
`)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Telegram.Token != "tok" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Storage.Audit.Driver != "sqlite" {
		t.Fatalf("audit driver = %q", cfg.Storage.Audit.Driver)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", `{"telegram": {"token": "tok"}, "telegarm": {}}`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", `{"telegram": {"token": "tok"}} {"extra": true}`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", `{"telegram": {"token": "tok"}}`)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Prefix() != "!" {
		t.Fatalf("default prefix = %q", cfg.Prefix())
	}
	if cfg.Location() != "Asia/Tokyo" {
		t.Fatalf("default timezone = %q", cfg.Location())
	}
}

func TestSubscribePublishDropsOldest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	a := &Config{Timezone: "UTC"}
	b := &Config{Timezone: "Asia/Tokyo"}
	m.publish(a)
	m.publish(b) // buffer full: a is dropped, b replaces it

	select {
	case got := <-ch:
		if got != b {
			t.Fatalf("got %+v, want newest config", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no config delivered")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("tick", "", time.Minute)
	if err != nil || d != time.Minute {
		t.Fatalf("empty: d=%v err=%v", d, err)
	}
	d, err = ParseDurationOrDefault("tick", "30s", time.Minute)
	if err != nil || d != 30*time.Second {
		t.Fatalf("30s: d=%v err=%v", d, err)
	}
	if _, err := ParseDurationOrDefault("tick", "fast", time.Minute); err == nil {
		t.Fatal("expected error for bad duration")
	}
}
