package polystore

import (
	"errors"
	"testing"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantID  string
		wantRel string
		wantErr error
	}{
		{"simple", "store:/a/b", "store", "a/b", nil},
		{"root", "store:/", "store", "", nil},
		{"trailing slash", "store:/a/b/", "store", "a/b", nil},
		{"repeated slashes", "store://a///b", "store", "a/b", nil},
		{"no separator", "plainpath", "", "", ErrInvalidAddress},
		{"empty id", ":/a/b", "", "", ErrInvalidAddress},
		{"relative path", "store:etc", "", "", ErrInvalidPath},
		{"dot segment", "store:/a/./b", "", "", ErrInvalidPath},
		{"traversal", "store:/../etc/passwd", "", "", ErrInvalidPath},
		{"nested traversal", "store:/a/../b", "", "", ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ParseAddress(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseAddress(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q): %v", tt.input, err)
			}
			if addr.StorageID != tt.wantID {
				t.Errorf("StorageID = %q, want %q", addr.StorageID, tt.wantID)
			}
			if addr.Rel() != tt.wantRel {
				t.Errorf("Rel() = %q, want %q", addr.Rel(), tt.wantRel)
			}
		})
	}
}

func TestAddressSegments(t *testing.T) {
	addr, err := ParseAddress("store:/a/b")
	if err != nil {
		t.Fatal(err)
	}
	segments := addr.Segments()
	if len(segments) != 2 || segments[0] != "a" || segments[1] != "b" {
		t.Errorf("Segments() = %v, want [a b]", segments)
	}
}

func TestAddressHelpers(t *testing.T) {
	addr, err := ParseAddress("store:/models/en/base.bin")
	if err != nil {
		t.Fatal(err)
	}
	if got := addr.Base(); got != "base.bin" {
		t.Errorf("Base() = %q", got)
	}
	if got := addr.Dir().Rel(); got != "models/en" {
		t.Errorf("Dir().Rel() = %q", got)
	}
	if got := addr.Dir().Join("large.bin").Rel(); got != "models/en/large.bin" {
		t.Errorf("Join() = %q", got)
	}
	if got := addr.String(); got != "store:/models/en/base.bin" {
		t.Errorf("String() = %q", got)
	}
}

func TestIsManagedAddress(t *testing.T) {
	if !IsManagedAddress("store:/a") {
		t.Error("store:/a should be managed")
	}
	if IsManagedAddress("/tmp/file") {
		t.Error("/tmp/file should not be managed")
	}
	if IsManagedAddress("relative/path") {
		t.Error("relative/path should not be managed")
	}
}
