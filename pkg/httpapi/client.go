// Package httpapi talks to the OCR converter REST API: it uploads images for
// extraction, requests rendered images and reads back stored artifacts.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/menta2k/ocr-overlay/pkg/client"
	"github.com/menta2k/ocr-overlay/pkg/types"
)

// DefaultBaseURL is where the API lives when nothing else is configured
const DefaultBaseURL = "http://localhost:8001/api"

// maxErrorBody bounds how much of a failed reply is read for the message
const maxErrorBody = 64 << 10

var _ client.Backend = (*Client)(nil)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// StatusError is returned for a non-2xx reply. It matches types.ErrNetwork.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Detail)
}

func (e *StatusError) Unwrap() error {
	return types.ErrNetwork
}

// uploadResponse is the reply of /upload-ocr and the items of /ocr-results
type uploadResponse struct {
	ID            string   `json:"id"`
	Filename      string   `json:"filename"`
	ExtractedText string   `json:"extracted_text"`
	Confidence    *float64 `json:"confidence"`
	Timestamp     string   `json:"timestamp"`
}

func NewClient(serverURL string, timeout time.Duration) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(serverURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Client{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Extract uploads an image as the multipart field "file" and returns the
// extraction result
func (c *Client) Extract(ctx context.Context, filename string, data []byte) (*types.ExtractionResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	// the server checks the part's content type, so set it explicitly
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	header.Set("Content-Type", http.DetectContentType(data))
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create form part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write form part: %v", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %v", err)
	}

	respBody, err := c.sendRequest(ctx, http.MethodPost, "/upload-ocr", mw.FormDataContentType(), &body)
	if err != nil {
		return nil, err
	}

	var resp uploadResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", types.ErrNetwork, err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: response carries no artifact id", types.ErrNetwork)
	}

	result := resp.toResult()
	return &result, nil
}

// Render posts the request to /edit-image and returns the streamed image.
// The caller must close the returned body.
func (c *Client) Render(ctx context.Context, renderReq types.RenderRequest) (*types.RenderedImage, error) {
	jsonData, err := json.Marshal(renderReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/edit-image", "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected content type %q", types.ErrNetwork, contentType)
	}

	return &types.RenderedImage{
		Body:        resp.Body,
		ContentType: contentType,
		Filename:    attachmentFilename(resp.Header.Get("Content-Disposition")),
	}, nil
}

// FetchImage returns the stored original image of an artifact
func (c *Client) FetchImage(ctx context.Context, id string) ([]byte, error) {
	return c.sendRequest(ctx, http.MethodGet, "/image/"+url.PathEscape(id), "", nil)
}

// ListResults returns the extraction history kept by the server
func (c *Client) ListResults(ctx context.Context) ([]types.ExtractionResult, error) {
	respBody, err := c.sendRequest(ctx, http.MethodGet, "/ocr-results", "", nil)
	if err != nil {
		return nil, err
	}

	var items []uploadResponse
	if err := json.Unmarshal(respBody, &items); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", types.ErrNetwork, err)
	}

	results := make([]types.ExtractionResult, 0, len(items))
	for _, item := range items {
		results = append(results, item.toResult())
	}
	return results, nil
}

func (c *Client) sendRequest(ctx context.Context, method, endpoint, contentType string, body io.Reader) ([]byte, error) {
	resp, err := c.do(ctx, method, endpoint, contentType, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", types.ErrNetwork, err)
	}
	return data, nil
}

// do sends the request and returns the response of a 2xx reply with its
// body still open
func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send request: %v", types.ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Detail: errorDetail(data)}
	}
	return resp, nil
}

// errorDetail pulls the "detail" field out of an error reply, falling back
// to the raw text
func errorDetail(data []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(data))
}

func attachmentFilename(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func (r uploadResponse) toResult() types.ExtractionResult {
	result := types.ExtractionResult{
		ArtifactID:    r.ID,
		Filename:      r.Filename,
		ExtractedText: r.ExtractedText,
		Timestamp:     parseTimestamp(r.Timestamp),
	}
	if r.Confidence != nil {
		result.ConfidencePercent = *r.Confidence
	}
	return result
}

// parseTimestamp accepts RFC 3339 as well as the zone-less ISO form the
// server emits. Unparseable values yield the zero time.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
