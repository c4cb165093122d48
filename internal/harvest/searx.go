package harvest

import (
	"net/url"
	"strings"
)

// BuildSearchURL renders the results URL for a query against a SearXNG-style
// search endpoint. The fixed parameters pin the general category, English
// results, and the simple theme so the result markup stays predictable.
func BuildSearchURL(baseURL, query string) string {
	base := strings.TrimRight(baseURL, "/")
	params := url.Values{}
	params.Set("q", query)
	params.Set("category_general", "1")
	params.Set("language", "en")
	params.Set("time_range", "")
	params.Set("safesearch", "1")
	params.Set("theme", "simple")
	return base + "?" + params.Encode()
}
