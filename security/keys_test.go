package security

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestNewKeySet(t *testing.T) {
	tests := []struct {
		name    string
		keys    []string
		wantLen int
		wantErr error
	}{
		{"single", []string{"k1"}, 1, nil},
		{"trims and drops empty", []string{" k1 ", "", "  ", "k2"}, 2, nil},
		{"nothing", nil, 0, ErrNoAPIKeys},
		{"only blanks", []string{"", " "}, 0, ErrNoAPIKeys},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := NewKeySet(tt.keys)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewKeySet() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && set.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", set.Len(), tt.wantLen)
			}
		})
	}
}

func TestNewKeySet_InvalidHash(t *testing.T) {
	if _, err := NewKeySet([]string{"$2a$broken"}); err == nil {
		t.Error("NewKeySet() should reject a malformed bcrypt hash")
	}
}

func TestKeySet_Contains(t *testing.T) {
	hashed, err := HashKey("hashed-key", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashKey() error = %v", err)
	}

	set, err := NewKeySet([]string{"plain-key", "other-key", hashed})
	if err != nil {
		t.Fatalf("NewKeySet() error = %v", err)
	}

	tests := []struct {
		key  string
		want bool
	}{
		{"plain-key", true},
		{"other-key", true},
		{"hashed-key", true},
		{"plain-ke", false},
		{"plain-key ", false},
		{"", false},
		{hashed, false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := set.Contains(tt.key); got != tt.want {
				t.Errorf("Contains(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestIsHashedKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"$2a$10$abc", true},
		{"$2b$10$abc", true},
		{"$2y$10$abc", true},
		{"$1$abc", false},
		{"plain", false},
	}

	for _, tt := range tests {
		if got := IsHashedKey(tt.key); got != tt.want {
			t.Errorf("IsHashedKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestHashKey(t *testing.T) {
	if _, err := HashKey("", 0); err == nil {
		t.Error("HashKey(\"\") should return error")
	}

	hash, err := HashKey("secret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashKey() error = %v", err)
	}
	if !IsHashedKey(hash) {
		t.Errorf("HashKey() = %q, not recognised as a hash", hash)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}
}

func TestParseKeyList(t *testing.T) {
	got := ParseKeyList(" a, b ,,c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("ParseKeyList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ParseKeyList()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
