package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dixieflatline76/wallsource/pkg/source"
	"github.com/dixieflatline76/wallsource/util/log"
)

// Response size limits.
const (
	maxPageBytes  = 16 << 20
	maxImageBytes = 128 << 20
)

// Engine executes list, detail and download requests against any source
// described by a source.Definition.
type Engine struct {
	client *http.Client
}

// NewEngine creates an Engine. The client should carry bounded timeouts, see NewHTTPClient.
func NewEngine(client *http.Client) *Engine {
	if client == nil {
		client = NewHTTPClient(ClientOptions{})
	}
	return &Engine{client: client}
}

// Fetch returns one page from src. Every failure is a *Error.
func (e *Engine) Fetch(ctx context.Context, src source.ConfiguredSource, req Request) (PageResult, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	// Sources without a page parameter serve a single page.
	if req.Page > 1 && src.API.Pagination.Page() == "" {
		return PageResult{Items: []ImageItem{}}, nil
	}

	u, err := buildListURL(src, req)
	if err != nil {
		return PageResult{}, &Error{Kind: BadRequest, Source: src.UniqueKey, Err: err}
	}
	body, err := e.get(ctx, src, u, maxPageBytes)
	if err != nil {
		return PageResult{}, err
	}
	if src.API.IsFeed() {
		if body, err = feedToJSON(body); err != nil {
			return PageResult{}, &Error{Kind: MalformedResponse, Source: src.UniqueKey, Err: err}
		}
	}

	result, err := normalizePage(body, src.Definition, req.Query != "")
	if err != nil {
		return PageResult{}, &Error{Kind: MalformedResponse, Source: src.UniqueKey, Err: err}
	}
	log.Debugf("Fetch: %s page %d query=%q returned %d items", src.UniqueKey, req.Page, req.Query, len(result.Items))
	return result, nil
}

// GetSingleImage loads one item through the detail endpoint.
func (e *Engine) GetSingleImage(ctx context.Context, src source.ConfiguredSource, id string) (ImageItem, error) {
	if src.API.Endpoints.Detail == "" || src.API.IsFeed() {
		return ImageItem{}, &Error{Kind: BadRequest, Source: src.UniqueKey, Err: errors.New("source has no detail endpoint")}
	}
	if id == "" {
		return ImageItem{}, &Error{Kind: BadRequest, Source: src.UniqueKey, Err: errors.New("empty image id")}
	}

	endpoint := src.API.Endpoints.Detail
	if strings.Contains(endpoint, "{id}") {
		endpoint = strings.ReplaceAll(endpoint, "{id}", url.PathEscape(id))
	} else {
		endpoint = strings.TrimRight(endpoint, "/") + "/" + url.PathEscape(id)
	}
	u, err := buildURL(src, endpoint, nil)
	if err != nil {
		return ImageItem{}, &Error{Kind: BadRequest, Source: src.UniqueKey, Err: err}
	}

	body, err := e.get(ctx, src, u, maxPageBytes)
	if err != nil {
		return ImageItem{}, err
	}
	item, err := normalizeDetail(body, src.Definition)
	if err != nil {
		return ImageItem{}, &Error{Kind: MalformedResponse, Source: src.UniqueKey, Err: err}
	}
	return item, nil
}

// Download fetches the bytes at rawURL with the same error classification as Fetch.
func (e *Engine) Download(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &Error{Kind: BadRequest, Err: fmt.Errorf("invalid image url %q", rawURL)}
	}
	return e.get(ctx, source.ConfiguredSource{}, u, maxImageBytes)
}

func (e *Engine) get(ctx context.Context, src source.ConfiguredSource, u *url.URL, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{Kind: BadRequest, Source: src.UniqueKey, Err: err}
	}
	for k, v := range src.API.Headers {
		req.Header.Set(k, v)
	}
	if src.HasAPIKey() && src.API.Authentication.Key != "" && src.API.Authentication.Type == source.AuthHeader {
		req.Header.Set(src.API.Authentication.Key, src.API.Authentication.Prefix+strings.TrimSpace(src.APIKey))
	}
	if req.Header.Get("Accept") == "" && src.UniqueKey != "" && !src.API.IsFeed() {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, src.UniqueKey, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		log.Printf("Fetch: %s %s%s returned %s", src.UniqueKey, u.Host, u.Path, resp.Status)
		return nil, &Error{
			Kind:   kindForStatus(resp.StatusCode),
			Status: resp.StatusCode,
			Source: src.UniqueKey,
			Err:    fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, transportError(ctx, src.UniqueKey, err)
	}
	if int64(len(body)) > limit {
		return nil, &Error{Kind: MalformedResponse, Source: src.UniqueKey, Err: fmt.Errorf("response exceeds %d bytes", limit)}
	}
	return body, nil
}

func transportError(ctx context.Context, sourceKey string, err error) error {
	// A cancelled caller is not a connectivity problem.
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return &Error{Kind: Unknown, Source: sourceKey, Err: ctxErr}
	}
	return &Error{Kind: NetworkUnreachable, Source: sourceKey, Err: err}
}

func buildListURL(src source.ConfiguredSource, req Request) (*url.URL, error) {
	api := src.API
	endpoint := api.Endpoints.Curated
	params := url.Values{}
	if req.Query != "" {
		endpoint = api.Endpoints.Search
		if api.SearchParam != "" {
			params.Set(api.SearchParam, req.Query)
		}
	}
	if p := api.Pagination.Page(); p != "" {
		params.Set(p, strconv.Itoa(req.Page))
	}
	if api.PerPage > 0 && api.Pagination.PerPageParam != "" {
		params.Set(api.Pagination.PerPageParam, strconv.Itoa(api.PerPage))
	}
	if req.Sorting != "" && api.SortingParam != "" {
		params.Set(api.SortingParam, req.Sorting)
	}
	if api.Order != "" && api.OrderParam != "" {
		params.Set(api.OrderParam, api.Order)
	}
	return buildURL(src, endpoint, params)
}

// buildURL joins the base URL and endpoint, then adds static params, the
// request params and a query-string API key.
func buildURL(src source.ConfiguredSource, endpoint string, params url.Values) (*url.URL, error) {
	raw := strings.TrimRight(src.API.BaseURL, "/")
	if endpoint != "" {
		raw += "/" + strings.TrimLeft(endpoint, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	q := u.Query()
	for k, v := range src.API.Params {
		q.Set(k, v)
	}
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	if src.HasAPIKey() && src.API.Authentication.Key != "" && src.API.Authentication.Type == source.AuthQuery {
		q.Set(src.API.Authentication.Key, strings.TrimSpace(src.APIKey))
	}
	u.RawQuery = q.Encode()
	return u, nil
}
