package utils

import (
	"testing"
)

func TestShortenString(t *testing.T) {
	tests := []struct {
		input    string
		length   int
		expected string
	}{
		{"hello world", 5, "hello..."},
		{"hello", 10, "hello"},
		{"", 3, ""},
		{"abcdef", 0, "abcdef"},
		{"abcdef", 6, "abcdef"},
		{"abcdef", 3, "abc..."},
	}

	for _, tt := range tests {
		result := ShortenString(tt.input, tt.length)
		if result != tt.expected {
			t.Errorf("ShortenString(%q, %d) = %q; want %q", tt.input, tt.length, result, tt.expected)
		}
	}
}

func TestURLPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://example.com/login?next=/home", "/login"},
		{"https://example.com", "/"},
		{"http://localhost:3000/api/users/1#frag", "/api/users/1"},
		{"/dashboard?tab=2", "/dashboard"},
		{"", "/"},
	}

	for _, tt := range tests {
		if got := URLPath(tt.input); got != tt.expected {
			t.Errorf("URLPath(%q) = %q; want %q", tt.input, got, tt.expected)
		}
	}
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base, p  string
		expected string
	}{
		{"https://example.com", "/login", "https://example.com/login"},
		{"https://example.com/app/", "settings", "https://example.com/app/settings"},
		{"https://example.com", "https://other.org/x", "https://other.org/x"},
	}

	for _, tt := range tests {
		got, err := JoinURL(tt.base, tt.p)
		if err != nil {
			t.Fatalf("JoinURL(%q, %q) returned error: %v", tt.base, tt.p, err)
		}
		if got != tt.expected {
			t.Errorf("JoinURL(%q, %q) = %q; want %q", tt.base, tt.p, got, tt.expected)
		}
	}
}
