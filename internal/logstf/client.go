// Package logstf is a minimal client for the public logs.tf API. It covers the log search
// endpoint and the per match JSON documents.
package logstf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/leighmacdonald/steamid/v4/steamid"
	"github.com/leighmacdonald/tf-logs/internal/cache"
	"github.com/leighmacdonald/tf-logs/internal/encoding"
	"github.com/oapi-codegen/runtime"
)

const (
	DefaultLimit   = 1000
	MaxLimit       = 10000
	minTitleLength = 2
	// maxErrorBody bounds how much of an error response is kept in a RemoteServiceError.
	maxErrorBody = 4096
)

// HTTPDoer defines a common interface for HTTP clients.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// LogsQuery holds the search parameters for the log search endpoint. Zero values are omitted from
// the request, except Limit which falls back to DefaultLimit, and Offset which is always sent.
type LogsQuery struct {
	// Title is a title substring search, min. 2 characters.
	Title string
	// Map is the exact map name.
	Map string
	// Uploader is the uploaders steam id. Any steam id form is accepted and sent as SteamID64.
	Uploader string
	// Players are steam ids that must all have played in the log, sent as SteamID64.
	Players []string
	Limit   int
	Offset  int
}

// Validate checks the query against the documented constraints of the search endpoint.
func (q LogsQuery) Validate() error {
	if q.Title != "" && utf8.RuneCountInString(q.Title) < minTitleLength {
		return fmt.Errorf("%w: title must be at least %d characters", ErrInvalidQuery, minTitleLength)
	}

	if q.Limit < 0 || q.Limit > MaxLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidQuery, MaxLimit)
	}

	if q.Offset < 0 {
		return fmt.Errorf("%w: offset must not be negative", ErrInvalidQuery)
	}

	if q.Uploader != "" && !steamid.New(q.Uploader).Valid() {
		return fmt.Errorf("%w: invalid uploader steam id: %s", ErrInvalidQuery, q.Uploader)
	}

	for _, player := range q.Players {
		if !steamid.New(player).Valid() {
			return fmt.Errorf("%w: invalid player steam id: %s", ErrInvalidQuery, player)
		}
	}

	return nil
}

func (q LogsQuery) limit() int {
	if q.Limit == 0 {
		return DefaultLimit
	}

	return q.Limit
}

// steamID64 renders an already validated steam id in the 64 bit form the search endpoint expects.
func steamID64(steamID string) string {
	return steamid.New(steamID).String()
}

// ParsePlayers splits a comma separated list of steam ids, normalizing each to SteamID64.
func ParsePlayers(players string) ([]string, error) {
	var parsed []string //nolint:prealloc

	for _, player := range strings.Split(players, ",") {
		player = strings.TrimSpace(player)
		if player == "" {
			continue
		}

		steamID := steamid.New(player)
		if !steamID.Valid() {
			return nil, fmt.Errorf("%w: invalid player steam id: %s", ErrInvalidQuery, player)
		}

		parsed = append(parsed, steamID.String())
	}

	return parsed, nil
}

// NewHTTPClient creates a http client with an overall request timeout and bounded handshake and
// header waits.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			ExpectContinueTimeout: time.Second,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Client talks to logs.tf. An optional cache stores successfully decoded match documents.
type Client struct {
	baseURL    *url.URL
	httpClient HTTPDoer
	cache      cache.Cache
}

func New(baseURL string, httpClient HTTPDoer, detailCache cache.Cache) (*Client, error) {
	serverURL, errURL := url.Parse(baseURL)
	if errURL != nil {
		return nil, errors.Join(errURL, ErrRequest)
	}

	if !strings.HasSuffix(serverURL.Path, "/") {
		serverURL.Path += "/"
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{baseURL: serverURL, httpClient: httpClient, cache: detailCache}, nil
}

// Logs performs a single search request.
func (c *Client) Logs(ctx context.Context, query LogsQuery) ([]LogSummary, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	req, errReq := c.newLogsRequest(ctx, query)
	if errReq != nil {
		return nil, errors.Join(errReq, ErrRequest)
	}

	body, errBody := c.do(req)
	if errBody != nil {
		return nil, errBody
	}

	resp, errDecode := encoding.Decode[LogsResponse](body)
	if errDecode != nil {
		return nil, errDecode
	}

	return resp.Logs, nil
}

// ListLogs lazily pages through search results starting at query.Offset. It stops after a short
// or empty page, after the given number of pages when pages > 0, or on the first error, which is
// yielded as the final element.
func (c *Client) ListLogs(ctx context.Context, query LogsQuery, pages int) iter.Seq2[LogSummary, error] {
	return func(yield func(LogSummary, error) bool) {
		query.Limit = query.limit()

		for page := 0; pages <= 0 || page < pages; page++ {
			logs, err := c.Logs(ctx, query)
			if err != nil {
				yield(LogSummary{}, err)

				return
			}

			slog.Debug("Fetched log page", slog.String("map", query.Map),
				slog.Int("offset", query.Offset), slog.Int("results", len(logs)))

			for _, summary := range logs {
				if !yield(summary, nil) {
					return
				}
			}

			if len(logs) < query.Limit {
				return
			}

			query.Offset += len(logs)
		}
	}
}

// Log fetches and decodes a single match document. Non 200 responses return a *RemoteServiceError
// and undecodable documents return a *DecodeError.
func (c *Client) Log(ctx context.Context, logID int64) (*Detail, error) {
	if c.cache != nil {
		body, errCache := c.cache.Get(logID, cache.CacheLogDetail)
		if errCache == nil {
			if detail, errDecode := decodeDetail(logID, body); errDecode == nil {
				return detail, nil
			}
		} else if !errors.Is(errCache, cache.ErrCacheMiss) {
			slog.Warn("Failed to read cached log", slog.Int64("log_id", logID),
				slog.String("error", errCache.Error()))
		}
	}

	pathParam, errParam := runtime.StyleParamWithLocation("simple", false, "id", runtime.ParamLocationPath, logID)
	if errParam != nil {
		return nil, errors.Join(errParam, ErrRequest)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL.JoinPath("json", pathParam).String(), nil)
	if errReq != nil {
		return nil, errors.Join(errReq, ErrRequest)
	}

	body, errBody := c.do(req)
	if errBody != nil {
		return nil, errBody
	}

	detail, errDecode := decodeDetail(logID, body)
	if errDecode != nil {
		return nil, errDecode
	}

	if c.cache != nil {
		if err := c.cache.Set(logID, cache.CacheLogDetail, body); err != nil {
			slog.Warn("Failed to cache log", slog.Int64("log_id", logID), slog.String("error", err.Error()))
		}
	}

	return detail, nil
}

func decodeDetail(logID int64, body []byte) (*Detail, error) {
	detail, err := encoding.Decode[Detail](body)
	if err != nil {
		return nil, &DecodeError{LogID: logID, Err: err}
	}

	return &detail, nil
}

func (c *Client) newLogsRequest(ctx context.Context, query LogsQuery) (*http.Request, error) {
	players := make([]string, len(query.Players))
	for idx, player := range query.Players {
		players[idx] = steamID64(player)
	}

	queryURL := c.baseURL.JoinPath("api", "v1", "log")
	queryValues := queryURL.Query()

	params := []struct {
		name  string
		value any
		set   bool
	}{
		{name: "title", value: query.Title, set: query.Title != ""},
		{name: "map", value: query.Map, set: query.Map != ""},
		{name: "uploader", value: steamID64(query.Uploader), set: query.Uploader != ""},
		{name: "player", value: strings.Join(players, ","), set: len(players) > 0},
		{name: "limit", value: query.limit(), set: true},
		{name: "offset", value: query.Offset, set: true},
	}

	for _, param := range params {
		if !param.set {
			continue
		}

		queryFrag, errFrag := runtime.StyleParamWithLocation("form", true, param.name, runtime.ParamLocationQuery, param.value)
		if errFrag != nil {
			return nil, errFrag
		}

		parsed, errParse := url.ParseQuery(queryFrag)
		if errParse != nil {
			return nil, errParse
		}

		for key, values := range parsed {
			for _, value := range values {
				queryValues.Add(key, value)
			}
		}
	}

	queryURL.RawQuery = queryValues.Encode()

	return http.NewRequestWithContext(ctx, http.MethodGet, queryURL.String(), nil)
}

// do performs the request and returns the full body of a 200 response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, errResp := c.httpClient.Do(req)
	if errResp != nil {
		return nil, errors.Join(errResp, ErrRequest)
	}

	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			slog.Error("Failed to close response body", slog.String("error", err.Error()))
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return nil, &RemoteServiceError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(errBody))}
	}

	body, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return nil, errors.Join(errRead, ErrRequest)
	}

	return body, nil
}
