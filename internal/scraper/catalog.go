package scraper

import (
	"fmt"
	"net/url"
	"strings"
)

type Category struct {
	Code        string `json:"code"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type City struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

var categories = []Category{
	{Code: "c278", Slug: "notebooks", Name: "Notebooks", Description: "Laptops and notebooks"},
	{Code: "c225", Slug: "pcs", Name: "PCs", Description: "Desktop computers"},
	{Code: "c285", Slug: "tablets-reader", Name: "Tablets & Reader", Description: "Tablets and e-readers"},
	{Code: "c161", Slug: "elektronik", Name: "Elektronik", Description: "All electronics"},
	{Code: "c228", Slug: "pc-zubehoer-software", Name: "PC-Zubehör & Software", Description: "Accessories and software"},
}

var cities = []City{
	{Slug: "", Name: "Deutschlandweit"},
	{Slug: "berlin", Name: "Berlin"},
	{Slug: "hamburg", Name: "Hamburg"},
	{Slug: "muenchen", Name: "München"},
	{Slug: "koeln", Name: "Köln"},
	{Slug: "frankfurt-am-main", Name: "Frankfurt am Main"},
	{Slug: "stuttgart", Name: "Stuttgart"},
	{Slug: "duesseldorf", Name: "Düsseldorf"},
	{Slug: "leipzig", Name: "Leipzig"},
	{Slug: "dortmund", Name: "Dortmund"},
	{Slug: "essen", Name: "Essen"},
	{Slug: "bremen", Name: "Bremen"},
	{Slug: "dresden", Name: "Dresden"},
	{Slug: "hannover", Name: "Hannover"},
	{Slug: "nuernberg", Name: "Nürnberg"},
}

func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

func Cities() []City {
	out := make([]City, len(cities))
	copy(out, cities)
	return out
}

func LookupCategory(code string) (Category, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, c := range categories {
		if c.Code == code {
			return c, true
		}
	}
	return Category{}, false
}

// SearchURL builds the first results page for exactly one keyword.
func SearchURL(base, keyword, city, categoryCode string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", fmt.Errorf("empty base url")
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return "", fmt.Errorf("empty keyword")
	}
	categoryCode = strings.ToLower(strings.TrimSpace(categoryCode))
	if categoryCode == "" {
		return "", fmt.Errorf("empty category")
	}

	slug := categoryCode
	if c, ok := LookupCategory(categoryCode); ok {
		slug = c.Slug
	}

	segs := []string{base, "s-" + url.PathEscape(slug)}
	if city = strings.ToLower(strings.TrimSpace(city)); city != "" {
		segs = append(segs, url.PathEscape(city))
	}
	segs = append(segs, url.PathEscape(categoryCode))

	q := url.Values{}
	q.Set("keywords", keyword)
	return strings.Join(segs, "/") + "?" + q.Encode(), nil
}

// PageURL inserts the pagination segment before the query string.
func PageURL(searchURL string, page int) string {
	if page <= 1 {
		return searchURL
	}
	path, query, hasQuery := strings.Cut(searchURL, "?")
	path = strings.TrimRight(path, "/")
	if hasQuery {
		return fmt.Sprintf("%s/seite:%d/?%s", path, page, query)
	}
	return fmt.Sprintf("%s/seite:%d/", path, page)
}
