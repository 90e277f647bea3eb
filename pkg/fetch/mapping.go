package fetch

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/dixieflatline76/wallsource/pkg/source"
	"github.com/tidwall/gjson"
)

var knownExtensions = map[string]string{
	"jpg":  "jpg",
	"jpeg": "jpg",
	"png":  "png",
	"webp": "webp",
	"gif":  "gif",
}

// normalizePage walks body with the source's response mapping.
func normalizePage(body []byte, def source.Definition, search bool) (PageResult, error) {
	if !gjson.ValidBytes(body) {
		return PageResult{}, errors.New("response is not valid JSON")
	}
	m := def.ResponseMapping
	listPath := m.ResultListPath
	if search && m.SearchResultListPath != "" {
		listPath = m.SearchResultListPath
	}

	root := gjson.ParseBytes(body)
	list := root
	if listPath != "" {
		list = root.Get(listPath)
	}
	switch {
	case list.IsArray():
	case list.Exists() && list.Type == gjson.Null:
		return PageResult{Items: []ImageItem{}, Meta: pageInfo(root, m.Pagination)}, nil
	case !list.Exists():
		return PageResult{}, fmt.Errorf("result list %q not found", listPath)
	default:
		return PageResult{}, fmt.Errorf("result list %q is not an array", listPath)
	}

	items := make([]ImageItem, 0, len(list.Array()))
	list.ForEach(func(_, raw gjson.Result) bool {
		if item, ok := mapItem(raw, def); ok {
			items = append(items, item)
		}
		return true
	})
	return PageResult{Items: items, Meta: pageInfo(root, m.Pagination)}, nil
}

// normalizeDetail maps the single item found at the detail path.
func normalizeDetail(body []byte, def source.Definition) (ImageItem, error) {
	if !gjson.ValidBytes(body) {
		return ImageItem{}, errors.New("response is not valid JSON")
	}
	raw := gjson.ParseBytes(body)
	if p := def.ResponseMapping.DetailPath; p != "" {
		raw = raw.Get(p)
	}
	item, ok := mapItem(raw, def)
	if !ok {
		return ImageItem{}, errors.New("detail response has no id or image url")
	}
	return item, nil
}

func pageInfo(root gjson.Result, m source.PaginationMapping) *PageInfo {
	get := func(p string) int {
		if p == "" {
			return 0
		}
		return int(root.Get(p).Int())
	}
	info := &PageInfo{
		CurrentPage: get(m.CurrentPagePath),
		LastPage:    get(m.LastPagePath),
		PerPage:     get(m.PerPagePath),
		Total:       get(m.TotalPath),
	}
	if *info == (PageInfo{}) {
		return nil
	}
	return info
}

// mapItem builds an ImageItem from one raw element. Elements without an id or
// a full-size URL are dropped.
func mapItem(raw gjson.Result, def source.Definition) (ImageItem, bool) {
	if !raw.Exists() {
		return ImageItem{}, false
	}
	m := def.ResponseMapping.Image
	str := func(p string) string {
		if p == "" {
			return ""
		}
		return strings.TrimSpace(raw.Get(p).String())
	}

	item := ImageItem{
		ID:               str(m.IDPath),
		URL:              str(m.ImageURLPath),
		ThumbnailURL:     str(m.ThumbnailURLPath),
		Description:      str(m.DescriptionPath),
		Uploader:         str(m.UploaderPath),
		UploaderURL:      str(m.UploaderURLPath),
		PlaceholderColor: str(m.PlaceholderColorPath),
		SourceKey:        def.UniqueKey,
	}
	if item.ID == "" || item.URL == "" {
		return ImageItem{}, false
	}
	if item.ThumbnailURL == "" {
		item.ThumbnailURL = item.URL
	}
	if item.Description == "" {
		item.Description = str(m.TitlePath)
	}
	item.AspectRatio = aspectRatio(raw, m)
	item.Extension = extension(str(m.FileTypePath), item.URL, def.ImageFormat)
	return item, true
}

// aspectRatio is width/height: an explicit ratio, else the dimensions, else 3:4.
func aspectRatio(raw gjson.Result, m source.ImageMapping) float64 {
	if m.AspectRatioPath != "" {
		if r := raw.Get(m.AspectRatioPath).Float(); r > 0 {
			return r
		}
	}
	if m.WidthPath != "" && m.HeightPath != "" {
		w := raw.Get(m.WidthPath).Float()
		h := raw.Get(m.HeightPath).Float()
		if w > 0 && h > 0 {
			return w / h
		}
	}
	return DefaultAspectRatio
}

// extension resolves the file extension from a MIME type or bare type name,
// then the URL path, then the source default.
func extension(fileType, rawURL, sourceFormat string) string {
	if ft := strings.ToLower(strings.TrimSpace(fileType)); ft != "" {
		if i := strings.LastIndex(ft, "/"); i >= 0 {
			ft = ft[i+1:]
		}
		if ext, ok := knownExtensions[ft]; ok {
			return ext
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
		if known, ok := knownExtensions[ext]; ok {
			return known
		}
	}
	if f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(sourceFormat), ".")); f != "" {
		if known, ok := knownExtensions[f]; ok {
			return known
		}
		return f
	}
	return DefaultExtension
}
