package window

import (
	"errors"
	"testing"
	"time"
)

func TestWindow_Duration(t *testing.T) {
	tests := []struct {
		window Window
		want   time.Duration
	}{
		{Daily, 24 * time.Hour},
		{Weekly, 7 * 24 * time.Hour},
		{Monthly, 30 * 24 * time.Hour},
		{Annual, 365 * 24 * time.Hour},
		{Window(0), 0},
		{Window(9), 0},
	}

	for _, tt := range tests {
		if got := tt.window.Duration(); got != tt.want {
			t.Errorf("%s.Duration() = %v, want %v", tt.window, got, tt.want)
		}
	}
}

func TestAll_OrderedShortestFirst(t *testing.T) {
	windows := All()
	if len(windows) != 4 {
		t.Fatalf("Expected 4 windows, got %d", len(windows))
	}

	for i := 1; i < len(windows); i++ {
		if windows[i].Duration() <= windows[i-1].Duration() {
			t.Errorf("Window %s is not longer than %s", windows[i], windows[i-1])
		}
	}

	// Mutating the copy must not affect later calls
	windows[0] = Annual
	if All()[0] != Daily {
		t.Error("All() returned shared backing array")
	}

	if Longest() != windows[len(windows)-1] {
		t.Errorf("Longest() = %s, want Annual", Longest())
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Window
		wantErr bool
	}{
		{"daily", Daily, false},
		{"24h", Daily, false},
		{"Weekly", Weekly, false},
		{" 7d ", Weekly, false},
		{"month", Monthly, false},
		{"ANNUAL", Annual, false},
		{"yearly", Annual, false},
		{"365d", Annual, false},
		{"hourly", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrUnknown) {
					t.Errorf("Expected ErrUnknown, got %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestWindow_TextRoundTrip(t *testing.T) {
	for _, w := range All() {
		text, err := w.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%s) failed: %v", w, err)
		}

		var parsed Window
		if err := parsed.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%s) failed: %v", text, err)
		}
		if parsed != w {
			t.Errorf("Round trip %s -> %s", w, parsed)
		}
	}

	if _, err := Window(42).MarshalText(); err == nil {
		t.Error("Expected error marshaling invalid window")
	}
}
