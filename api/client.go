package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"docuchat/config"
	"docuchat/logger"
)

// Operation names, used as the prefix of every error message
const (
	opHealth         = "health check failed"
	opUpload         = "upload failed"
	opProcessAndPush = "processing failed"
	opIndexInfo      = "failed to get index info"
	opSearch         = "search failed"
	opAnswer         = "failed to get answer"
)

// Backend paths
const healthPath = "/api/v1"

func uploadPath(projectID string) string {
	return "/api/v1/data/upload/" + url.PathEscape(projectID)
}

func processAndPushPath(projectID string) string {
	return "/api/v1/data/process-and-push/" + url.PathEscape(projectID)
}

func indexInfoPath(projectID string) string {
	return "/api/v1/nlp/index/info/" + url.PathEscape(projectID)
}

func searchPath(projectID string) string {
	return "/api/v1/nlp/index/search/" + url.PathEscape(projectID)
}

func answerPath(projectID string) string {
	return "/api/v1/nlp/index/answer/" + url.PathEscape(projectID)
}

// Client talks to the RAG backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the backend described by cfg
func NewClient(cfg config.APIConfig, log logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.Named("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// postJSON sends payload as a JSON body
func (c *Client) postJSON(ctx context.Context, op, path string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to marshal request: %w", op, err)
	}
	return c.do(ctx, op, http.MethodPost, path, bytes.NewReader(data), "application/json")
}

// do issues one request and returns the body of a 2xx response. Transport
// failures wrap ErrUnreachable, non-2xx responses are *HTTPError.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string) ([]byte, error) {
	endpoint := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.log.Debug("request", logger.String("method", method), logger.String("url", endpoint))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", op, ctxErr)
		}
		c.log.Error("backend unreachable", logger.String("url", endpoint), logger.Error(err))
		return nil, fmt.Errorf("%s: %w: %v", op, ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", op, err)
	}

	c.log.Debug("response",
		logger.String("url", endpoint),
		logger.Int("status", resp.StatusCode),
		logger.String("body", string(respBody)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := newHTTPError(op, resp.StatusCode, respBody)
		c.log.Warn("backend error", logger.String("url", endpoint), logger.Error(httpErr))
		return nil, httpErr
	}
	return respBody, nil
}

// decode unmarshals a 2xx body, reporting malformed JSON as ErrValidation
func decode(op string, body []byte, out interface{}) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrValidation, err)
	}
	return nil
}
