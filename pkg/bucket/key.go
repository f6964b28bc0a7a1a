package bucket

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Key generates a deterministic cache key for a request.
// Format: METHOD scheme://host/path?query with query parameters sorted.
//
// Example:
//
//	GET https://api.quran.com/v1/surah/1?lang=en
func Key(req *http.Request) string {
	u := req.URL

	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte(' ')
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(u.Host)
	b.WriteString(u.EscapedPath())

	// Sort query params for determinism
	query := u.Query()
	if len(query) > 0 {
		keys := make([]string, 0, len(query))
		for key := range query {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		b.WriteByte('?')
		for i, key := range keys {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(fmt.Sprintf("%s=%s", key, query.Get(key)))
		}
	}

	return b.String()
}
