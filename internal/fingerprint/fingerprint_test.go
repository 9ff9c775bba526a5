package fingerprint

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  Hello World  ", "hello world"},
		{"Hello    World   Again", "hello world again"},
		{"  HeLLo\tWoRLD ", "hello world"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	fp1 := Build("Account", "Checking", "1234")
	fp2 := Build("Account", "Checking", "1234")
	if fp1 != fp2 {
		t.Error("same inputs must produce the same fingerprint")
	}
}

func TestBuildOrderMatters(t *testing.T) {
	if Build("a", "b") == Build("b", "a") {
		t.Error("part order must affect the fingerprint")
	}
}

func TestBuildNormalizesParts(t *testing.T) {
	if Build("  WALMART ", "100") != Build("walmart", "100") {
		t.Error("fingerprints must be insensitive to case and padding")
	}
}
