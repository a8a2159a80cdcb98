package literal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "literal.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
marker: data-live
sanitize: ugc
log:
  level: info
  format: json
serve:
  addr: 127.0.0.1:9000
  publish_interval: 250ms
`)
	t.Setenv("LITERAL_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	want := &Config{
		Marker:   "data-live",
		Sanitize: "ugc",
		Log:      LogConfig{Level: "debug", Format: "json"},
		Serve:    ServeConfig{Addr: "127.0.0.1:9000", PublishInterval: 250 * time.Millisecond},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"sanitize policy", "sanitize: paranoid\n", "sanitize"},
		{"marker", "marker: \"a b\"\n", "marker"},
		{"log level", "log:\n  level: loud\n", "log.level"},
		{"interval", "serve:\n  publish_interval: -1s\n", "publish_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("LoadConfig error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for a missing config file")
	}
}

func TestConfigOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Marker = "data-live"
	cfg.Sanitize = "strict"
	cfg.Log.Level = "debug"

	var logs bytes.Buffer
	logger, err := cfg.Logger(&logs)
	if err != nil {
		t.Fatalf("Logger returned error: %v", err)
	}
	opts, err := cfg.Options(logger)
	if err != nil {
		t.Fatalf("Options returned error: %v", err)
	}

	doc := mustParse(t, `<p id="p" data-live>${v}</p>`)
	obs := New(doc, opts...)
	if obs.Marker() != "data-live" {
		t.Fatalf("Marker = %q", obs.Marker())
	}

	p := mustElement(t, doc, "p")
	_ = obs.Data(p).Set("v", "<i>x</i>")
	if err := obs.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if got := doc.InnerHTML(p); got != "x" {
		t.Fatalf("content = %q, want sanitized x", got)
	}
	if !strings.Contains(logs.String(), "[DEBUG] literal activated") {
		t.Fatalf("expected debug activation log, got:\n%s", logs.String())
	}
}
