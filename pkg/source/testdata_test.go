package source

import (
	"fmt"
	"strings"
)

// sourceJSON renders a minimal valid source definition.
func sourceJSON(key string, requireKey bool) string {
	return fmt.Sprintf(`{
	"uniqueKey": %q,
	"label": %q,
	"supportApiKey": %t,
	"requireApiKey": %t,
	"api": {
		"baseUrl": "https://%s.example.com/api",
		"endpoints": {"search": "/search", "detail": "/w/{id}", "curated": "/curated"},
		"authentication": {"type": "query", "key": "apikey"},
		"pagination": {"pageParam": "page", "perPageParam": "per_page", "currentPageParam": "page"},
		"searchParam": "q"
	},
	"responseMapping": {
		"resultListPath": "data",
		"pagination": {"currentPagePath": "meta.current_page", "perPagePath": "meta.per_page", "totalPath": "meta.total"},
		"image": {"idPath": "id", "thumbnailUrlPath": "thumb", "imageUrlPath": "path"}
	}
}`, key, strings.ToUpper(key[:1])+key[1:], requireKey, requireKey, key)
}

func documentJSON(sources ...string) string {
	return `{"sources": [` + strings.Join(sources, ",") + `]}`
}
