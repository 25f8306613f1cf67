package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// userAgent is sent on every request for upstream-side diagnostics.
const userAgent = "tablesync/0.1"

// TokenSource provides bearer tokens for upstream requests. Defined at the
// consumer per "accept interfaces, return structs" — do not relocate this
// to a credentials package.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// oauthTokenSource adapts an oauth2.TokenSource (e.g. from
// clientcredentials.Config) to the narrower TokenSource contract this
// package depends on.
type oauthTokenSource struct {
	src oauth2.TokenSource
}

func (o *oauthTokenSource) Token(ctx context.Context) (string, error) {
	tok, err := o.src.Token()
	if err != nil {
		return "", fmt.Errorf("upstream: obtaining token: %w", err)
	}

	return tok.AccessToken, nil
}

// NewClientCredentialsTokenSource builds a TokenSource using the OAuth2
// client-credentials grant, the mechanism the upstream table's app
// id/secret pair authenticates with (spec §6.5). The app token and table
// id are carried separately, as request-scoped headers, not part of the
// OAuth2 flow.
func NewClientCredentialsTokenSource(ctx context.Context, tokenURL, appID, secret string) TokenSource {
	cc := &clientcredentials.Config{
		ClientID:     appID,
		ClientSecret: secret,
		TokenURL:     tokenURL,
	}

	return &oauthTokenSource{src: cc.TokenSource(ctx)}
}

// Client is an HTTP client for the upstream table service satisfying the
// ListRecords / ResolveAttachments / TableRevision contract of spec §6.2.
// It owns request construction, authentication, and response decoding;
// retry/backoff is layered on top by internal/syncengine via
// internal/retry, using Classify from errors.go.
type Client struct {
	baseURL    string
	tableID    string
	appToken   string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
}

// NewClient creates an upstream Client.
func NewClient(baseURL, tableID, appToken string, httpClient *http.Client, token TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		tableID:    tableID,
		appToken:   appToken,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
	}
}

// listRecordsResponse mirrors the upstream table's paginated list JSON.
type listRecordsResponse struct {
	Records []struct {
		RecordID string                    `json:"record_id"`
		Fields   map[string]json.RawMessage `json:"fields"`
	} `json:"records"`
	NextCursor string `json:"next_cursor"`
	Total      int    `json:"total"`
}

// ListRecords fetches one page of upstream records (spec §6.2). Pass an
// empty cursor for the first page.
func (c *Client) ListRecords(ctx context.Context, cursor string, pageSize int) (*ListPage, error) {
	q := url.Values{}
	q.Set("page_size", strconv.Itoa(pageSize))

	if cursor != "" {
		q.Set("cursor", cursor)
	}

	path := fmt.Sprintf("/tables/%s/records?%s", c.tableID, q.Encode())

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var lr listRecordsResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("upstream: decoding list response: %w", err)
	}

	page := &ListPage{
		Records:    make([]RawRecord, 0, len(lr.Records)),
		NextCursor: lr.NextCursor,
		TotalHint:  lr.Total,
	}

	for _, rec := range lr.Records {
		fields := make(map[string]FieldValue, len(rec.Fields))

		for name, raw := range rec.Fields {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				c.logger.Warn("upstream: failed to decode field, skipping",
					slog.String("record_id", rec.RecordID),
					slog.String("field", name),
					slog.String("error", err.Error()),
				)

				continue
			}

			fields[name] = FieldValue{Raw: v}
		}

		page.Records = append(page.Records, RawRecord{RecordID: rec.RecordID, Fields: fields})
	}

	return page, nil
}

// resolveAttachmentsResponse mirrors the upstream table's batched
// attachment-resolution JSON.
type resolveAttachmentsResponse struct {
	URLs map[string]struct {
		URL       string `json:"url"`
		ExpiresIn int64  `json:"expires_in"` // seconds, per spec §4.2
	} `json:"urls"`
}

// resolveRequest is the body for the attachment-resolve call.
type resolveRequest struct {
	Tokens   []string `json:"tokens"`
	Revision int64    `json:"revision"`
}

// ResolveAttachments batches up to len(tokens) attachment tokens into a
// single resolve request, per spec §4.2 step 1. revision is the value
// returned by TableRevision, required as call context for the resolve
// endpoint (spec §6.2).
func (c *Client) ResolveAttachments(ctx context.Context, tokens []string, revision int64) (map[string]ResolvedAttachment, error) {
	body := resolveRequest{Tokens: tokens, Revision: revision}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("upstream: encoding resolve request: %w", err)
	}

	path := fmt.Sprintf("/tables/%s/attachments/resolve", c.tableID)

	resp, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rr resolveAttachmentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("upstream: decoding resolve response: %w", err)
	}

	out := make(map[string]ResolvedAttachment, len(rr.URLs))
	now := nowFunc()

	for token, v := range rr.URLs {
		out[token] = ResolvedAttachment{
			URL:       v.URL,
			ExpiresAt: now.Add(secondsToDuration(v.ExpiresIn)),
		}
	}

	return out, nil
}

// tableRevisionResponse mirrors the upstream table's revision probe JSON.
type tableRevisionResponse struct {
	Revision int64 `json:"revision"`
}

// TableRevision returns the upstream table's current revision counter,
// required as context for ResolveAttachments (spec §6.2).
func (c *Client) TableRevision(ctx context.Context) (int64, error) {
	path := fmt.Sprintf("/tables/%s/revision", c.tableID)

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var tr tableRevisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return 0, fmt.Errorf("upstream: decoding revision response: %w", err)
	}

	return tr.Revision, nil
}

// Ping performs a lightweight reachability check against the upstream
// table service, for /health (spec §6.1). Reuses TableRevision since it
// is the cheapest authenticated endpoint in the contract.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.TableRevision(ctx)
	return err
}

// do executes a single authenticated HTTP request (no retry — retry is the
// caller's responsibility via internal/retry, so that pause/cancel
// cooperative checks in internal/syncengine remain the single source of
// truth for when an attempt sequence stops). Returns a classifiable *Error
// on non-2xx responses.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = newBytesReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("upstream: building request: %w", err)
	}

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("upstream: obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-App-Token", c.appToken)
	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err //nolint:wrapcheck // classified as network error by Classify
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return resp, nil
	}

	errBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	return nil, &Error{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
		Message:    string(errBody),
		Err:        classifyStatus(resp.StatusCode),
	}
}
