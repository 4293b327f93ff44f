package config

import (
	"bytes"
	"encoding/json"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Commands CommandsConfig `json:"commands,omitempty"`

	// Timezone is the single IANA zone all reminder and calendar times are
	// interpreted in. Defaults to Asia/Tokyo.
	Timezone string `json:"timezone,omitempty"`

	Storage StorageConfig `json:"storage,omitempty"`

	Plugins map[string]PluginConfigRaw `json:"plugins,omitempty"`
}

type TelegramConfig struct {
	// Token may be omitted in favor of the KOYOMI_TOKEN environment variable.
	Token       string `json:"token,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console,omitempty"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type CommandsConfig struct {
	// Prefix is the command sigil. Defaults to "!".
	Prefix string `json:"prefix,omitempty"`
}

type StorageConfig struct {
	// StatePath is the JSON state file holding reminders and pinned calendars.
	StatePath string `json:"state_path,omitempty"`

	Audit AuditConfig `json:"audit,omitempty"`
}

// AuditConfig configures the optional audit log.
//
// Driver values: "" or "none" (disabled), "file" (JSON Lines), "sqlite".
type AuditConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// PluginConfigRaw defers plugin config decoding to the plugin itself.
type PluginConfigRaw = json.RawMessage

func (c *Config) Prefix() string {
	if c == nil || c.Commands.Prefix == "" {
		return "!"
	}
	return c.Commands.Prefix
}

func (c *Config) Location() string {
	if c == nil || c.Timezone == "" {
		return "Asia/Tokyo"
	}
	return c.Timezone
}

// PluginRaw returns the raw config block for a plugin (nil if absent).
func (c *Config) PluginRaw(name string) PluginConfigRaw {
	if c == nil || c.Plugins == nil {
		return nil
	}
	return c.Plugins[name]
}

// Equal compares two configs by their canonical JSON encoding.
func (c *Config) Equal(other *Config) bool {
	if c == nil || other == nil {
		return c == other
	}
	a, err1 := json.Marshal(c)
	b, err2 := json.Marshal(other)
	if err1 != nil || err2 != nil {
		return false
	}
	return bytes.Equal(a, b)
}
