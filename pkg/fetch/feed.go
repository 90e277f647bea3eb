package fetch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mmcdole/gofeed"
)

// feedToJSON parses an RSS, Atom or JSON feed and re-encodes it as the JSON
// form of gofeed.Feed, so the regular response mapping can walk it
// (e.g. "items", "enclosures.0.url", "authors.0.name").
func feedToJSON(body []byte) ([]byte, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}
	for _, item := range feed.Items {
		// Some feeds only carry a link; use it as the guid.
		if item.GUID == "" {
			item.GUID = item.Link
		}
		if len(item.Enclosures) == 0 {
			if enc := mediaEnclosure(item); enc != nil {
				item.Enclosures = []*gofeed.Enclosure{enc}
			} else if item.Image != nil && item.Image.URL != "" {
				item.Enclosures = []*gofeed.Enclosure{{URL: item.Image.URL}}
			}
		}
	}
	out, err := json.Marshal(feed)
	if err != nil {
		return nil, fmt.Errorf("encoding feed: %w", err)
	}
	return out, nil
}

// mediaEnclosure returns the first media:content element with a url, as used
// by Media RSS feeds.
func mediaEnclosure(item *gofeed.Item) *gofeed.Enclosure {
	media, ok := item.Extensions["media"]
	if !ok {
		return nil
	}
	for _, name := range []string{"content", "thumbnail"} {
		for _, ext := range media[name] {
			if u := ext.Attrs["url"]; u != "" {
				return &gofeed.Enclosure{URL: u, Type: ext.Attrs["type"]}
			}
		}
	}
	return nil
}
