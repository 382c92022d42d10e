package id

import (
	"encoding/base32"
	"strings"
	"testing"
)

func decode(t *testing.T, id string) []byte {
	t.Helper()
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(id))
	if err != nil {
		t.Fatalf("decode %q: %v", id, err)
	}
	return raw
}

func TestNewIDIsLowercaseUnpaddedUUIDv4(t *testing.T) {
	got, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if len(got) != 26 || strings.ContainsAny(got, "=ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		t.Fatalf("id %q is not a 26-char lowercase base32 string", got)
	}

	raw := decode(t, got)
	if len(raw) != 16 {
		t.Fatalf("decoded %d bytes, want 16", len(raw))
	}
	if v := raw[6] >> 4; v != 4 {
		t.Fatalf("uuid version = %d, want 4", v)
	}
	if variant := raw[8] & 0xC0; variant != 0x80 {
		t.Fatalf("uuid variant = %#x, want 0x80", variant)
	}
}

func TestNewIDDoesNotRepeat(t *testing.T) {
	seen := make(map[string]bool)
	for range 128 {
		got, err := NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if seen[got] {
			t.Fatalf("duplicate id %q", got)
		}
		seen[got] = true
	}
}
