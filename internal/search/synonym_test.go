package search

import "testing"

func TestExpand(t *testing.T) {
	got := Expand("  Gaming   LAPTOP ")
	if len(got) != 2 || got[0] != "gaming laptop" || got[1] != "gaming notebook" {
		t.Fatalf("unexpected expansion %v", got)
	}
	if got := Expand("thinkpad"); len(got) != 1 || got[0] != "thinkpad" {
		t.Fatalf("expected query only, got %v", got)
	}
	if got := Expand("   "); got != nil {
		t.Fatalf("expected nil for blank query, got %v", got)
	}
}
