// Package source resolves the source-definition document and per-source
// credentials into live, queryable wallpaper sources.
package source

import (
	"fmt"
	"strings"
)

// Response formats understood by the fetch engine.
const (
	FormatJSON = "json"
	FormatFeed = "feed"
)

// Authentication types.
const (
	AuthQuery  = "query"
	AuthHeader = "header"
)

// Document is the persisted source-definition document.
type Document struct {
	Sources []Definition `json:"sources"`
}

// Definition declares one remote image API. UniqueKey is its stable identity.
type Definition struct {
	UniqueKey        string          `json:"uniqueKey"`
	Label            string          `json:"label"`
	Description      string          `json:"description,omitempty"`
	SupportAPIKey    bool            `json:"supportApiKey"`
	RequireAPIKey    bool            `json:"requireApiKey"`
	DocumentationURL string          `json:"documentationUrl,omitempty"`
	ImageFormat      string          `json:"imageFormat,omitempty"`
	API              API             `json:"api"`
	ResponseMapping  ResponseMapping `json:"responseMapping"`
}

// API describes how requests are built.
type API struct {
	BaseURL        string            `json:"baseUrl"`
	Format         string            `json:"format,omitempty"`
	Endpoints      Endpoints         `json:"endpoints"`
	Authentication Authentication    `json:"authentication"`
	Pagination     PaginationParams  `json:"pagination"`
	SearchParam    string            `json:"searchParam"`
	PerPage        int               `json:"perPage,omitempty"`
	SortingParam   string            `json:"sortingParam,omitempty"`
	OrderParam     string            `json:"orderParam,omitempty"`
	Order          string            `json:"order,omitempty"`
	Params         map[string]string `json:"params,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
}

// Endpoints are paths appended to the base URL. Detail may contain an {id} placeholder.
type Endpoints struct {
	Search  string `json:"search"`
	Detail  string `json:"detail"`
	Curated string `json:"curated"`
}

// Authentication names where the API key goes: a query parameter or a header.
type Authentication struct {
	Type   string `json:"type"`
	Key    string `json:"key"`
	Prefix string `json:"prefix,omitempty"`
}

// PaginationParams are request parameter names. CurrentPageParam is accepted as
// an alias for PageParam.
type PaginationParams struct {
	PageParam        string `json:"pageParam"`
	PerPageParam     string `json:"perPageParam"`
	CurrentPageParam string `json:"currentPageParam"`
}

// ResponseMapping holds gjson paths into the response body.
// An empty ResultListPath means the body itself is the list.
type ResponseMapping struct {
	ResultListPath       string            `json:"resultListPath"`
	SearchResultListPath string            `json:"searchResultListPath,omitempty"`
	DetailPath           string            `json:"detailPath,omitempty"`
	Pagination           PaginationMapping `json:"pagination"`
	Image                ImageMapping      `json:"image"`
}

// PaginationMapping locates page metadata in a response.
type PaginationMapping struct {
	CurrentPagePath string `json:"currentPagePath"`
	LastPagePath    string `json:"lastPagePath,omitempty"`
	PerPagePath     string `json:"perPagePath"`
	TotalPath       string `json:"totalPath"`
}

// ImageMapping locates item fields relative to one element of the result list.
type ImageMapping struct {
	IDPath               string `json:"idPath"`
	ThumbnailURLPath     string `json:"thumbnailUrlPath"`
	ImageURLPath         string `json:"imageUrlPath"`
	DescriptionPath      string `json:"descriptionPath,omitempty"`
	TitlePath            string `json:"titlePath,omitempty"`
	UploaderPath         string `json:"uploaderPath,omitempty"`
	UploaderURLPath      string `json:"uploaderUrlPath,omitempty"`
	PlaceholderColorPath string `json:"placeholderColorPath,omitempty"`
	WidthPath            string `json:"widthPath,omitempty"`
	HeightPath           string `json:"heightPath,omitempty"`
	AspectRatioPath      string `json:"aspectRatioPath,omitempty"`
	FileTypePath         string `json:"fileTypePath,omitempty"`
}

// Page returns the request parameter carrying the page number.
func (p PaginationParams) Page() string {
	if p.PageParam != "" {
		return p.PageParam
	}
	return p.CurrentPageParam
}

// IsFeed reports whether responses are RSS/Atom/JSON feeds rather than JSON API bodies.
func (a API) IsFeed() bool {
	return strings.EqualFold(a.Format, FormatFeed)
}

// Validate reports why d cannot be used, or nil.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.UniqueKey) == "" {
		return fmt.Errorf("source has an empty uniqueKey")
	}
	if strings.TrimSpace(d.API.BaseURL) == "" {
		return fmt.Errorf("source %q: api.baseUrl is required", d.UniqueKey)
	}
	if d.ResponseMapping.Image.IDPath == "" || d.ResponseMapping.Image.ImageURLPath == "" {
		return fmt.Errorf("source %q: responseMapping.image needs idPath and imageUrlPath", d.UniqueKey)
	}
	if f := d.API.Format; f != "" && !strings.EqualFold(f, FormatJSON) && !strings.EqualFold(f, FormatFeed) {
		return fmt.Errorf("source %q: unknown api.format %q", d.UniqueKey, f)
	}
	if d.SupportAPIKey || d.RequireAPIKey {
		switch d.API.Authentication.Type {
		case AuthQuery, AuthHeader:
		default:
			return fmt.Errorf("source %q: authentication.type must be %q or %q", d.UniqueKey, AuthQuery, AuthHeader)
		}
		if d.API.Authentication.Key == "" {
			return fmt.Errorf("source %q: authentication.key is required", d.UniqueKey)
		}
	}
	return nil
}

// Validate checks every source and that keys are unique.
func (doc Document) Validate() error {
	if len(doc.Sources) == 0 {
		return fmt.Errorf("document has no sources")
	}
	seen := make(map[string]bool, len(doc.Sources))
	for _, d := range doc.Sources {
		if err := d.Validate(); err != nil {
			return err
		}
		if seen[d.UniqueKey] {
			return fmt.Errorf("duplicate uniqueKey %q", d.UniqueKey)
		}
		seen[d.UniqueKey] = true
	}
	return nil
}

// ConfiguredSource is a Definition joined with its credential state.
// It is rebuilt on every read and never persisted.
type ConfiguredSource struct {
	Definition
	APIKey    string
	IsDefault bool
}

// HasAPIKey reports whether a non-blank key is stored.
func (s ConfiguredSource) HasAPIKey() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

// IsConfigured reports whether the source can be queried.
func (s ConfiguredSource) IsConfigured() bool {
	return !s.RequireAPIKey || s.HasAPIKey()
}
