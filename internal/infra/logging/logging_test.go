//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"commerce-access/internal/config"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(l), &m); err != nil {
			t.Fatalf("not a json line %q: %v", l, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNewWriter_LevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, config.LogConfig{Level: "INFO", Format: "json"}, false)

	log.Debug().Msg("hidden")
	ctx := WithEventID(WithUserID(WithTraceID(context.Background(), "tr-1"), "u-1"), "cs_1")
	With(ctx, log).Info().Msg("payment completed")

	got := lines(t, &buf)
	if len(got) != 1 {
		t.Fatalf("expected only the info line, got %d", len(got))
	}
	for k, want := range map[string]string{
		"service":          "commerce-access",
		"trace_id":         "tr-1",
		"user_id":          "u-1",
		"payment_event_id": "cs_1",
		"message":          "payment completed",
	} {
		if got[0][k] != want {
			t.Errorf("%s: want %q, got %v", k, want, got[0][k])
		}
	}
}

func TestNewWriter_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, config.LogConfig{Level: "verbose"}, false)
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")
	if got := lines(t, &buf); len(got) != 1 || got[0]["message"] != "shown" {
		t.Fatalf("expected info level, got %v", got)
	}
}

func TestNewWriter_SamplingKeepsWarnings(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, config.LogConfig{Level: "info", Sampling: true}, false)
	for i := 0; i < 50; i++ {
		log.Info().Msg("noise")
		log.Error().Bool("late_completion", true).Msg("late")
	}
	info, errs := 0, 0
	for _, l := range lines(t, &buf) {
		switch l["level"] {
		case "info":
			info++
		case "error":
			errs++
		}
	}
	if errs != 50 {
		t.Errorf("errors must never be sampled, got %d of 50", errs)
	}
	if info == 0 || info >= 50 {
		t.Errorf("expected info thinned, got %d of 50", info)
	}
}

func TestWith_SkipsUnsetFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, config.LogConfig{Level: "info"}, false)
	With(WithUserID(context.Background(), ""), log).Info().Msg("anon")
	got := lines(t, &buf)
	if _, ok := got[0]["user_id"]; ok {
		t.Errorf("empty ids must not be logged, got %v", got[0])
	}
}

func TestRedactEmail(t *testing.T) {
	cases := []struct {
		in   string
		dev  bool
		want string
	}{
		{"buyer@example.com", false, "b***@example.com"},
		{"Buyer@Example.com", true, "Buyer@Example.com"},
		{"a@x.io", false, "a***@x.io"},
		{"not-an-email", false, "***"},
		{"@example.com", false, "***"},
		{"trailing@", false, "***"},
		{"", false, "***"},
	}
	for _, tc := range cases {
		if got := RedactEmail(tc.in, tc.dev); got != tc.want {
			t.Errorf("RedactEmail(%q, %v) = %q, want %q", tc.in, tc.dev, got, tc.want)
		}
	}
}
