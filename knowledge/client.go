// Package knowledge provides the HTTP client for the Open WebUI knowledge
// API: file upload plus attach/detach of files to a knowledge collection.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/cvaz1306/owui-kb-s3-sync-webhook/errors"
)

const defaultTimeout = 60 * time.Second

// Client talks to an Open WebUI instance using bearer-token auth.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the request timeout on the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a knowledge API client. baseURL is the Open WebUI root,
// e.g. "http://openwebui:8080".
func NewClient(baseURL, apiKey string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient",
			"base URL required")
	}
	if apiKey == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient",
			"API key required")
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type uploadResponse struct {
	ID string `json:"id"`
}

type apiError struct {
	Detail string `json:"detail"`
}

// UploadFile uploads the content as a named file and returns the file ID
// Open WebUI assigned to it.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", errors.Wrap(err, "Client", "UploadFile", "create form file")
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", errors.Wrap(err, "Client", "UploadFile", "copy file content")
	}
	if err := writer.Close(); err != nil {
		return "", errors.Wrap(err, "Client", "UploadFile", "finalize multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/files/", &body)
	if err != nil {
		return "", errors.Wrap(err, "Client", "UploadFile", "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.WrapTransient(errors.ErrUploadFailed, "Client", "UploadFile",
			fmt.Sprintf("upload %q: %v", name, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.WrapTransient(errors.ErrUploadFailed, "Client", "UploadFile",
			fmt.Sprintf("upload %q: %s", name, decodeAPIError(resp)))
	}

	var uploaded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", errors.WrapInvalid(err, "Client", "UploadFile", "decode response")
	}
	if uploaded.ID == "" {
		return "", errors.WrapInvalid(errors.ErrInvalidData, "Client", "UploadFile",
			"response missing file id")
	}

	return uploaded.ID, nil
}

// AddFileToKnowledge attaches an uploaded file to a knowledge collection.
func (c *Client) AddFileToKnowledge(ctx context.Context, knowledgeID, fileID string) error {
	if err := c.postFileOp(ctx, knowledgeID, fileID, "add"); err != nil {
		return errors.WrapTransient(errors.ErrRegisterFailed, "Client", "AddFileToKnowledge",
			fmt.Sprintf("attach file %s to %s: %v", fileID, knowledgeID, err))
	}
	return nil
}

// RemoveFileFromKnowledge detaches a file from a knowledge collection.
func (c *Client) RemoveFileFromKnowledge(ctx context.Context, knowledgeID, fileID string) error {
	if err := c.postFileOp(ctx, knowledgeID, fileID, "remove"); err != nil {
		return errors.WrapTransient(errors.ErrDeregisterFailed, "Client", "RemoveFileFromKnowledge",
			fmt.Sprintf("detach file %s from %s: %v", fileID, knowledgeID, err))
	}
	return nil
}

func (c *Client) postFileOp(ctx context.Context, knowledgeID, fileID, op string) error {
	payload, err := json.Marshal(map[string]string{"file_id": fileID})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/knowledge/%s/file/%s", c.baseURL, knowledgeID, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s", decodeAPIError(resp))
	}

	// Response body is the updated knowledge record; callers only need success
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// decodeAPIError extracts Open WebUI's {"detail": ...} error shape, falling
// back to the bare status code.
func decodeAPIError(resp *http.Response) string {
	var apiErr apiError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Detail != "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, apiErr.Detail)
	}
	return fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
}
