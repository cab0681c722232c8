package scraper

import (
	"net/url"
	"strings"
	"testing"
)

func TestSearchURL_OneKeywordPerURL(t *testing.T) {
	base := "https://www.kleinanzeigen.de/"
	keywords := []string{"asus rog", "msi katana"}
	urls := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		u, err := SearchURL(base, kw, "", "c278")
		if err != nil {
			t.Fatalf("expected nil err, got %v", err)
		}
		urls = append(urls, u)
	}

	for i, raw := range urls {
		parsed, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("invalid url %q: %v", raw, err)
		}
		if got := parsed.Query()["keywords"]; len(got) != 1 || got[0] != keywords[i] {
			t.Fatalf("url %q: expected keywords=%q, got %v", raw, keywords[i], got)
		}
		for j, other := range keywords {
			if j != i && strings.Contains(parsed.Query().Get("keywords"), other) {
				t.Fatalf("url %q leaks keyword %q", raw, other)
			}
		}
		if parsed.Path != "/s-notebooks/c278" {
			t.Fatalf("unexpected path %q", parsed.Path)
		}
	}
}

func TestSearchURL_CityAndUnknownCategory(t *testing.T) {
	u, err := SearchURL("https://www.kleinanzeigen.de", "thinkpad", "Berlin", "c999")
	if err != nil {
		t.Fatalf("expected nil err, got %v", err)
	}
	if u != "https://www.kleinanzeigen.de/s-c999/berlin/c999?keywords=thinkpad" {
		t.Fatalf("unexpected url %q", u)
	}

	if _, err := SearchURL("https://www.kleinanzeigen.de", "  ", "", "c278"); err == nil {
		t.Fatalf("expected error for empty keyword")
	}
	if _, err := SearchURL("", "x", "", "c278"); err == nil {
		t.Fatalf("expected error for empty base")
	}
}

func TestPageURL(t *testing.T) {
	search := "https://www.kleinanzeigen.de/s-notebooks/c278?keywords=asus+rog"
	if got := PageURL(search, 1); got != search {
		t.Fatalf("page 1 must be the search url, got %q", got)
	}
	want := "https://www.kleinanzeigen.de/s-notebooks/c278/seite:3/?keywords=asus+rog"
	if got := PageURL(search, 3); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if got := PageURL("https://x.test/s-notebooks/c278/", 2); got != "https://x.test/s-notebooks/c278/seite:2/" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestLookupCategory(t *testing.T) {
	c, ok := LookupCategory(" C278 ")
	if !ok || c.Slug != "notebooks" {
		t.Fatalf("expected notebooks category, got %+v %v", c, ok)
	}
	if _, ok := LookupCategory("c000"); ok {
		t.Fatalf("expected unknown category")
	}
	cats := Categories()
	cats[0].Code = "mutated"
	if Categories()[0].Code != "c278" {
		t.Fatalf("Categories must return a copy")
	}
}
