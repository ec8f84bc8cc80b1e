// ABOUTME: Tests for shared utility functions used by CLI commands
// ABOUTME: Verifies truncate, formatTime, validation and message reading helpers
package commands

import (
	"strings"
	"testing"
	"time"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"long string truncated", "hello world", 8, "hello..."},
		{"very short maxLen", "hello", 2, "he"},
		{"maxLen equals 3", "hello", 3, "hel"},
		{"empty string", "", 10, ""},
		{"unicode cut on rune boundary", "你好世界！", 3, "你好世"},
		{"unicode truncated with ellipsis", "你好世界你好世界", 5, "你好..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		input    time.Time
		contains string
	}{
		{"just now", now.Add(-30 * time.Second), "just now"},
		{"minutes ago", now.Add(-5 * time.Minute), "5m ago"},
		{"hours ago", now.Add(-3 * time.Hour), "3h ago"},
		{"days ago", now.Add(-2 * 24 * time.Hour), "2d ago"},
		{"weeks ago shows date", now.Add(-14 * 24 * time.Hour), now.Add(-14 * 24 * time.Hour).Format("2006-01-02")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatTime(tt.input)
			if !strings.Contains(got, tt.contains) {
				t.Errorf("formatTime() = %q, want to contain %q", got, tt.contains)
			}
		})
	}
}

func TestValidatePositiveInt(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		fieldName string
		wantErr   bool
	}{
		{"positive value", 5, "count", false},
		{"zero value", 0, "limit", true},
		{"negative value", -1, "concurrency", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePositiveInt(tt.n, tt.fieldName)
			if (err != nil) != tt.wantErr {
				t.Errorf("validatePositiveInt(%d, %q) error = %v, wantErr %v", tt.n, tt.fieldName, err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.fieldName) {
				t.Errorf("error %q should name the field %q", err, tt.fieldName)
			}
		})
	}
}

func TestReadMessages(t *testing.T) {
	input := "first question\n\n   \nsecond question  \r\nthird\n"

	got, err := readMessages(strings.NewReader(input))
	if err != nil {
		t.Fatalf("readMessages() error = %v", err)
	}

	want := []string{"first question", "second question", "third"}
	if len(got) != len(want) {
		t.Fatalf("readMessages() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("readMessages()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
