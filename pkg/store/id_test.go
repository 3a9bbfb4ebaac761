package store

import (
	"regexp"
	"testing"
)

var idPattern = regexp.MustCompile(`^store-[0-9a-f]{8}$`)

func TestGenerateID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GenerateID()
		if err != nil {
			t.Fatalf("GenerateID() error: %v", err)
		}
		if !idPattern.MatchString(id) {
			t.Errorf("GenerateID() = %q, does not match %s", id, idPattern)
		}
		if seen[id] {
			t.Fatalf("GenerateID() produced duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestHost(t *testing.T) {
	got := Host("store-abcd1234", "stores.example.com")
	want := "store-abcd1234.stores.example.com"
	if got != want {
		t.Errorf("Host() = %q, want %q", got, want)
	}
}

func TestValidSlug(t *testing.T) {
	tests := []struct {
		slug string
		want bool
	}{
		{"store-abcd1234", true},
		{"abc", true},
		{"a", true},
		{"", false},
		{"-abc", false},
		{"abc-", false},
		{"Abc", false},
		{"abc_def", false},
		{"abc def", false},
		{"abc;rm -rf /", false},
	}

	for _, tt := range tests {
		if got := ValidSlug(tt.slug); got != tt.want {
			t.Errorf("ValidSlug(%q) = %v, want %v", tt.slug, got, tt.want)
		}
	}
}
