package scraper

import (
	"testing"
	"time"

	"notebook-scout/internal/domain/listing"
)

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in         string
		cents      int64
		missing    bool
		negotiable bool
	}{
		{in: "450 €", cents: 45000},
		{in: "1.250 € VB", cents: 125000, negotiable: true},
		{in: "1.299,99 €", cents: 129999},
		{in: "89,50 €", cents: 8950},
		{in: "VB", missing: true, negotiable: true},
		{in: "Verhandlungsbasis 300 €", cents: 30000, negotiable: true},
		{in: "Zu verschenken", cents: 0},
		{in: "Preis auf Anfrage", missing: true},
		{in: "", missing: true},
	}
	for _, tc := range cases {
		got, neg := parsePrice(tc.in)
		if neg != tc.negotiable {
			t.Fatalf("%q: expected negotiable=%v, got %v", tc.in, tc.negotiable, neg)
		}
		if tc.missing {
			if got != nil {
				t.Fatalf("%q: expected nil price, got %d", tc.in, *got)
			}
			continue
		}
		if got == nil || *got != tc.cents {
			t.Fatalf("%q: expected %d cents, got %v", tc.in, tc.cents, got)
		}
	}
}

func TestParsePostedAt(t *testing.T) {
	now := time.Date(2024, 3, 15, 18, 0, 0, 0, berlin)
	cases := []struct {
		in   string
		want *time.Time
	}{
		{in: "Heute, 14:30", want: ptrTime(time.Date(2024, 3, 15, 14, 30, 0, 0, berlin))},
		{in: "Gestern, 09:15", want: ptrTime(time.Date(2024, 3, 14, 9, 15, 0, 0, berlin))},
		{in: "Gestern", want: ptrTime(time.Date(2024, 3, 14, 0, 0, 0, 0, berlin))},
		{in: "vor 3 Stunden", want: ptrTime(now.Add(-3 * time.Hour))},
		{in: "vor 2 Tagen", want: ptrTime(now.AddDate(0, 0, -2))},
		{in: "12.03.2024", want: ptrTime(time.Date(2024, 3, 12, 0, 0, 0, 0, berlin))},
		{in: "01.02.", want: ptrTime(time.Date(2024, 2, 1, 0, 0, 0, 0, berlin))},
		{in: "31.02.2024", want: nil},
		{in: "demnächst", want: nil},
		{in: "", want: nil},
	}
	for _, tc := range cases {
		got := parsePostedAt(tc.in, now)
		if tc.want == nil {
			if got != nil {
				t.Fatalf("%q: expected nil, got %s", tc.in, got)
			}
			continue
		}
		if got == nil || !got.Equal(*tc.want) {
			t.Fatalf("%q: expected %s, got %v", tc.in, tc.want, got)
		}
	}
}

func TestParseLocation(t *testing.T) {
	city, region := parseLocation(" 10115  Berlin - Mitte ")
	if city == nil || *city != "Berlin" || region == nil || *region != "Mitte" {
		t.Fatalf("unexpected location %v %v", city, region)
	}
	city, region = parseLocation("80331 München")
	if city == nil || *city != "München" || region != nil {
		t.Fatalf("unexpected location %v %v", city, region)
	}
	city, region = parseLocation("   ")
	if city != nil || region != nil {
		t.Fatalf("expected nil location")
	}
}

func TestResolveExternalID(t *testing.T) {
	if got := resolveExternalID("2891234567", "https://x.test/a"); got != "2891234567" {
		t.Fatalf("expected attribute id, got %q", got)
	}
	if got := resolveExternalID("", "https://x.test/s-anzeige/foo/2891234570-278-1234"); got != "2891234570" {
		t.Fatalf("expected url id, got %q", got)
	}
	a := resolveExternalID("", "https://x.test/s-anzeige/no-id")
	b := resolveExternalID("abc", "https://x.test/s-anzeige/no-id")
	if len(a) != 32 || a != b {
		t.Fatalf("expected stable 32 char hash, got %q and %q", a, b)
	}
	if got := resolveExternalID("", " "); got != "" {
		t.Fatalf("expected empty id for empty url, got %q", got)
	}
}

func TestClassifyItemType(t *testing.T) {
	cases := []struct {
		title string
		desc  string
		want  string
	}{
		{title: "Lenovo ThinkPad T480 i5-8350U 16GB RAM", want: listing.ItemTypeLaptop},
		{title: "MacBook Pro 14 Zoll", want: listing.ItemTypeLaptop},
		{title: "Laptop Tasche schwarz", want: listing.ItemTypeAccessory},
		{title: "Original Netzteil 65W", want: listing.ItemTypeAccessory},
		{title: "Notebook mit Netzteil", want: listing.ItemTypeLaptop},
		{title: "Gaming Stuhl", want: listing.ItemTypeOther},
	}
	for _, tc := range cases {
		var desc *string
		if tc.desc != "" {
			desc = &tc.desc
		}
		if got := classifyItemType(tc.title, desc); got != tc.want {
			t.Fatalf("%q: expected %s, got %s", tc.title, tc.want, got)
		}
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
