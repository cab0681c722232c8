package search

import "strings"

// Synonyms maps a lowercase search term to the other names sellers use for
// the same thing. Ads on the marketplace mix German and English freely.
var Synonyms = map[string][]string{
	"laptop":          {"notebook"},
	"notebook":        {"laptop"},
	"gaming laptop":   {"gaming notebook"},
	"gaming notebook": {"gaming laptop"},
	"macbook":         {"mac book"},
	"netzteil":        {"ladegerät", "ladekabel", "charger"},
	"ladegerät":       {"netzteil", "charger"},
	"charger":         {"netzteil", "ladegerät"},
	"docking station": {"dockingstation", "dock"},
	"dockingstation":  {"docking station", "dock"},
	"akku":            {"battery", "batterie"},
	"tasche":          {"sleeve", "hülle", "bag"},
}

func GetSynonyms(query string) []string {
	if query == "" {
		return []string{}
	}
	if v, ok := Synonyms[query]; ok {
		out := make([]string, 0, len(v))
		out = append(out, v...)
		return out
	}
	return []string{}
}

// Expand returns the normalized query followed by its synonyms, without
// duplicates. An empty query expands to nothing.
func Expand(query string) []string {
	q := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if q == "" {
		return nil
	}
	out := []string{q}
	seen := map[string]bool{q: true}
	for _, s := range GetSynonyms(q) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
