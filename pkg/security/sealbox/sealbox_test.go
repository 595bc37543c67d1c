package sealbox

import (
	"errors"
	"testing"
)

func newBox(t *testing.T) *Box {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	b, err := New(key)
	if err != nil {
		t.Fatalf("failed to create box: %v", err)
	}
	return b
}

func TestSealOpen(t *testing.T) {
	b := newBox(t)

	sealed, err := b.Seal("endpoint-secret")
	if err != nil {
		t.Fatalf("failed to seal: %v", err)
	}
	if sealed == "endpoint-secret" {
		t.Fatal("expected sealed value to differ from plaintext")
	}

	again, _ := b.Seal("endpoint-secret")
	if again == sealed {
		t.Error("expected random nonce to produce distinct sealed values")
	}

	plain, err := b.Open(sealed)
	if err != nil {
		t.Fatalf("failed to open: %v", err)
	}
	if plain != "endpoint-secret" {
		t.Errorf("expected %q, got %q", "endpoint-secret", plain)
	}
}

func TestOpenFailures(t *testing.T) {
	b := newBox(t)
	other := newBox(t)

	sealed, err := other.Seal("value")
	if err != nil {
		t.Fatalf("failed to seal: %v", err)
	}

	tests := []struct {
		name   string
		sealed string
	}{
		{"wrong key", sealed},
		{"not base64", "%%%"},
		{"too short", "AAAA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := b.Open(tt.sealed); !errors.Is(err, ErrOpen) {
				t.Errorf("expected ErrOpen, got %v", err)
			}
		})
	}
}

func TestNewInvalidKey(t *testing.T) {
	for _, key := range []string{"", "short", "AAAA"} {
		if _, err := New(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("expected ErrInvalidKey for %q, got %v", key, err)
		}
	}
}
