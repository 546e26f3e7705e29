package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"threadsync/internal/faults"
	"threadsync/internal/threads"
)

// HTTPDoer describes the HTTP client used by the sync API.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the HTTP fallback endpoints. A zero credential means
// guest mode; guest requests simply omit the bearer header.
type Client struct {
	baseURL    string
	credential string
	client     HTTPDoer
}

// New builds an API client. client may be nil, in which case the
// default HTTP client is used.
func New(baseURL, credential string, client HTTPDoer) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		credential: strings.TrimSpace(credential),
		client:     client,
	}
}

// errorBody is the server's JSON error shape.
type errorBody struct {
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Payload map[string]any `json:"payload"`
}

// ThreadIndex fetches the lightweight thread index. A non-zero since
// value asks only for rows changed after that instant.
func (c *Client) ThreadIndex(ctx context.Context, since time.Time) ([]threads.IndexRow, error) {
	endpoint := c.baseURL + "/threads"
	if !since.IsZero() {
		endpoint += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}
	var rows []threads.IndexRow
	if err := c.getJSON(ctx, endpoint, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Thread fetches one full thread record.
func (c *Client) Thread(ctx context.Context, threadID string) (*threads.Thread, error) {
	var t threads.Thread
	if err := c.getJSON(ctx, c.baseURL+"/threads/"+url.PathEscape(threadID), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateThread creates a server-side thread and returns its record.
func (c *Client) CreateThread(ctx context.Context, title string) (*threads.Thread, error) {
	body := map[string]string{"title": title}
	var t threads.Thread
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/threads", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// RenameThread updates a thread title.
func (c *Client) RenameThread(ctx context.Context, threadID, title string) error {
	body := map[string]string{"title": title}
	return c.doJSON(ctx, http.MethodPatch, c.baseURL+"/threads/"+url.PathEscape(threadID), body, nil)
}

// DeleteThread soft-deletes a thread server-side.
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	return c.doJSON(ctx, http.MethodDelete, c.baseURL+"/threads/"+url.PathEscape(threadID), nil, nil)
}

// AddDraftURL registers URL-sourced media on a thread's draft via the
// form endpoint and returns the resulting draft file record.
func (c *Client) AddDraftURL(ctx context.Context, threadID, mediaURL string) (*threads.DraftFile, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("sourceType", "url"); err != nil {
		return nil, fmt.Errorf("write form field: %w", err)
	}
	if err := form.WriteField("url", mediaURL); err != nil {
		return nil, fmt.Errorf("write form field: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("finalize form: %w", err)
	}

	endpoint := c.baseURL + "/threads/" + url.PathEscape(threadID) + "/draft/files"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("build draft url request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	c.authorize(req)

	var file threads.DraftFile
	if err := c.execute(req, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// DeleteDraftFile removes one staged file from a thread's draft.
func (c *Client) DeleteDraftFile(ctx context.Context, threadID, itemID string) error {
	endpoint := c.baseURL + "/threads/" + url.PathEscape(threadID) + "/draft/files/" + url.PathEscape(itemID)
	return c.doJSON(ctx, http.MethodDelete, endpoint, nil, nil)
}

// DownloadMedia streams a media URL (usually from MEDIA_URL) to w.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build media request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, faults.Wrap(faults.ErrTransport, "api", "download", "media fetch failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, faults.Wrap(faults.ErrResource, "api", "download", fmt.Sprintf("media fetch returned %d", resp.StatusCode), nil)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, faults.Wrap(faults.ErrTransport, "api", "download", "media stream interrupted", err)
	}
	return n, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.authorize(req)
	return c.execute(req, out)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)
	return c.execute(req, out)
}

func (c *Client) authorize(req *http.Request) {
	if c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}
}

// execute runs the request, classifying failures: connection problems
// are transport errors, structured server rejections become resource
// or protocol errors depending on status.
func (c *Client) execute(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return faults.Wrap(faults.ErrTransport, "api", req.Method, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.classify(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return faults.Wrap(faults.ErrProtocol, "api", req.Method, "malformed response body", err)
	}
	return nil
}

func (c *Client) classify(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var body errorBody
	_ = json.Unmarshal(data, &body)
	if body.Message == "" {
		body.Message = strings.TrimSpace(string(data))
	}
	if body.Message == "" {
		body.Message = resp.Status
	}
	serverErr := &faults.ServerError{ErrCode: body.Code, Message: body.Message, Payload: body.Payload}

	marker := faults.ErrProtocol
	switch {
	case resp.StatusCode == http.StatusPaymentRequired,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusRequestEntityTooLarge,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusUnsupportedMediaType:
		marker = faults.ErrResource
	}
	return faults.Wrap(marker, "api", "", fmt.Sprintf("server rejected request (%d)", resp.StatusCode), serverErr)
}
