// Package fetch queries remote image sources and normalizes their responses.
package fetch

// DefaultAspectRatio is used when a source reports neither a ratio nor dimensions (3:4).
const DefaultAspectRatio = 0.75

// DefaultExtension is used when neither the item nor the source names a format.
const DefaultExtension = "jpg"

// ImageItem is a normalized search result. Only the engine constructs it.
type ImageItem struct {
	ID               string  `json:"id"`
	ThumbnailURL     string  `json:"thumbnailUrl"`
	URL              string  `json:"url"`
	AspectRatio      float64 `json:"aspectRatio"`
	Description      string  `json:"description,omitempty"`
	Uploader         string  `json:"uploader,omitempty"`
	UploaderURL      string  `json:"uploaderUrl,omitempty"`
	SourceKey        string  `json:"sourceKey"`
	PlaceholderColor string  `json:"placeholderColor,omitempty"`
	Extension        string  `json:"extension"`
}

// PageInfo is the pagination metadata reported by a source. Zero fields were
// not reported.
type PageInfo struct {
	CurrentPage int `json:"currentPage,omitempty"`
	LastPage    int `json:"lastPage,omitempty"`
	PerPage     int `json:"perPage,omitempty"`
	Total       int `json:"total,omitempty"`
}

// HasPosition reports whether both the current and last page are known.
func (p *PageInfo) HasPosition() bool {
	return p != nil && p.CurrentPage > 0 && p.LastPage > 0
}

// PageResult is one page of items plus optional metadata.
type PageResult struct {
	Items []ImageItem `json:"items"`
	Meta  *PageInfo   `json:"meta,omitempty"`
}

// Request selects a page. An empty Query lists the curated endpoint.
type Request struct {
	Page    int
	Query   string
	Sorting string
}
