package utils

import (
	"regexp"
	"testing"
)

func TestNewGuestTag(t *testing.T) {
	re := regexp.MustCompile(`^guest-[0-9a-f]{8}$`)
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		tag := NewGuestTag()
		if !re.MatchString(tag) {
			t.Fatalf("unexpected tag format %q", tag)
		}
		seen[tag] = struct{}{}
	}
	if len(seen) < 99 {
		t.Fatalf("guest tags collide too often: %d unique of 100", len(seen))
	}
}

func TestNewIDIsUnique(t *testing.T) {
	if NewID() == NewID() {
		t.Fatalf("expected distinct ids")
	}
}
