package logx

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestConfigLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		conf Config
		want zerolog.Level
	}{
		{name: "default", conf: Config{}, want: zerolog.InfoLevel},
		{name: "debug flag", conf: Config{Debug: true}, want: zerolog.DebugLevel},
		{name: "explicit level wins", conf: Config{Debug: true, Level: "WARN"}, want: zerolog.WarnLevel},
		{name: "unknown level falls back", conf: Config{Level: "loud"}, want: zerolog.InfoLevel},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.conf.level(); got != tc.want {
				t.Fatalf("level() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNewWritesServiceField(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(Config{Service: "orchestrator", Output: &buf})
	l.Debug().Msg("hidden")
	l.Info().Str("thread_key", "t-1").Msg("turn processed")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected exactly one json line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "orchestrator" || entry["thread_key"] != "t-1" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}
