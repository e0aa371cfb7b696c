package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"feeds": [
			{"name": "activities", "socketUrl": "https://wb.example.com/activities/updates"}
		]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("logLevel = %q", cfg.LogLevel)
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("pollInterval = %d", cfg.PollInterval)
	}
	if cfg.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("reconnectDelay = %d", cfg.ReconnectDelay)
	}
	if cfg.DiagLogSize != DefaultDiagLogSize {
		t.Errorf("diagLogSize = %d", cfg.DiagLogSize)
	}
}

func TestLoad_FullFeed(t *testing.T) {
	path := writeConfig(t, `{
		"logLevel": "debug",
		"feeds": [
			{
				"name": "activities",
				"socketUrl": "https://wb.example.com/activities/updates",
				"pollingUrl": "https://wb.example.com/activities/updates/poll",
				"filter": "(u) => u.project === 'p1'"
			}
		]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	feed := cfg.Feeds[0]
	if feed.PollingURL == "" || feed.Filter == "" {
		t.Errorf("feed = %+v", feed)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no feeds", `{}`},
		{"missing name", `{"feeds":[{"socketUrl":"https://x.com/u"}]}`},
		{"duplicate name", `{"feeds":[
			{"name":"a","socketUrl":"https://x.com/u"},
			{"name":"a","socketUrl":"https://x.com/v"}
		]}`},
		{"missing socketUrl", `{"feeds":[{"name":"a"}]}`},
		{"bad socket scheme", `{"feeds":[{"name":"a","socketUrl":"ftp://x.com/u"}]}`},
		{"bad polling scheme", `{"feeds":[{"name":"a","socketUrl":"https://x.com/u","pollingUrl":"ws://x.com/p"}]}`},
		{"bad log level", `{"logLevel":"verbose","feeds":[{"name":"a","socketUrl":"https://x.com/u"}]}`},
		{"negative interval", `{"pollInterval":-1,"feeds":[{"name":"a","socketUrl":"https://x.com/u"}]}`},
	}

	for _, c := range cases {
		path := writeConfig(t, c.content)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected error", c.name)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
