package strings

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{
			name:     "short string unchanged",
			input:    "hello",
			maxLen:   10,
			expected: "hello",
		},
		{
			name:     "exact length unchanged",
			input:    "hello",
			maxLen:   5,
			expected: "hello",
		},
		{
			name:     "long string truncated",
			input:    "hello world this is a long string",
			maxLen:   15,
			expected: "hello world ...",
		},
		{
			name:     "whitespace collapsed",
			input:    "group-a,\n\tgroup-b",
			maxLen:   40,
			expected: "group-a, group-b",
		},
		{
			name:     "unicode safe",
			input:    "ümlaut ümlaut ümlaut",
			maxLen:   8,
			expected: "ümlau...",
		},
		{
			name:     "tiny max clamped",
			input:    "abcdefgh",
			maxLen:   1,
			expected: "a...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.input, tt.maxLen); got != tt.expected {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.expected)
			}
		})
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"short", "********"},
		{"12345678", "********"},
		{"abcdefghijkl", "abcd******** (12 chars)"},
	}

	for _, tt := range tests {
		if got := Mask(tt.input); got != tt.expected {
			t.Errorf("Mask(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
