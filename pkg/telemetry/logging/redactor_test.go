package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestRedactString(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "postgres url",
			input: "dial postgres://spend:hunter2@db:5432/spendcap failed",
			want:  "dial postgres://spend:***@db:5432/spendcap failed",
		},
		{
			name:  "key value dsn",
			input: "host=db user=spend password=hunter2 dbname=spendcap",
			want:  "host=db user=spend password=*** dbname=spendcap",
		},
		{
			name:  "bearer token",
			input: "Authorization: Bearer abc.def-ghi",
			want:  "Authorization: Bearer ***",
		},
		{
			name:  "url without credentials",
			input: "redis://localhost:6379/0",
			want:  "redis://localhost:6379/0",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RedactString(tt.input); got != tt.want {
				t.Errorf("RedactString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := map[string]bool{
		"internal_auth_secret": true,
		"Password":             true,
		"api_token":            true,
		"Authorization":        true,
		"resource_id":          false,
		"amount_sats":          false,
		"window":               false,
	}
	for key, want := range tests {
		if got := isSensitiveKey(key); got != want {
			t.Errorf("isSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestMaskValue(t *testing.T) {
	tests := map[string]string{
		"":                "",
		"short":           "***",
		"s3cr3t-value-xx": "s3cr***",
	}
	for in, want := range tests {
		if got := maskValue(in); got != want {
			t.Errorf("maskValue(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf, RedactSecrets: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("starting",
		"internal_auth_secret", "very-secret-value",
		"dsn", "postgres://spend:hunter2@db/spendcap",
		"resource_id", "key-1",
	)

	out := buf.String()
	for _, leaked := range []string{"very-secret-value", "hunter2"} {
		if strings.Contains(out, leaked) {
			t.Errorf("log output leaked %q: %s", leaked, out)
		}
	}
	if !strings.Contains(out, "key-1") {
		t.Errorf("non-sensitive attribute was altered: %s", out)
	}
}

func TestLoggerWithoutRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("starting", "dsn", "postgres://spend:hunter2@db/spendcap")
	if !strings.Contains(buf.String(), "hunter2") {
		t.Errorf("value redacted with RedactSecrets disabled: %s", buf.String())
	}
}
