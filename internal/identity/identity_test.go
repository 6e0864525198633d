package identity

import (
	"strings"
	"testing"
	"time"
)

func TestNewItemIDFormat(t *testing.T) {
	id := NewItemID()
	if len(id) < 13+9 {
		t.Fatalf("item id too short: %q", id)
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewItemID()
		if seen[id] {
			t.Fatalf("duplicate item id generated: %q", id)
		}
		seen[id] = true
	}
}

func TestNewLocationIDIsUUID(t *testing.T) {
	id := NewLocationID()
	if strings.Count(id, "-") != 4 || len(id) != 36 {
		t.Errorf("expected UUID format, got %q", id)
	}
}

func TestNowRoundTrips(t *testing.T) {
	s := Now()
	parsed, ok := Parse(s)
	if !ok {
		t.Fatalf("Now() produced unparseable timestamp %q", s)
	}
	if time.Since(parsed) > time.Minute {
		t.Errorf("parsed timestamp too far in the past: %v", parsed)
	}
	if !strings.HasSuffix(s, "Z") {
		t.Errorf("expected UTC timestamp, got %q", s)
	}
}

func TestBefore(t *testing.T) {
	older := Format(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := Format(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))

	if !Before(older, newer) {
		t.Error("expected older < newer")
	}
	if Before(newer, older) {
		t.Error("expected newer not before older")
	}
	if Before("garbage", newer) {
		t.Error("malformed timestamps must not be considered older")
	}
	if Before("", newer) {
		t.Error("empty timestamps must not be considered older")
	}
}
