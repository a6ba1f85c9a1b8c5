package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/tidwall/gjson"

	"docuchat/logger"
)

// AllowedExtensions are the document types the upload flow accepts
var AllowedExtensions = []string{".pdf", ".docx", ".txt"}

// AllowedExtension reports whether name has an accepted document extension
func AllowedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Health is the backend's answer to the health check
type Health struct {
	Status string
	// Fields holds every top-level field of the response
	Fields map[string]interface{}
}

// UploadResponse is returned by a successful upload
type UploadResponse struct {
	Success bool
	FileID  string
	Message string
}

// ProcessParams controls how the backend chunks a file
type ProcessParams struct {
	ChunkSize   int
	OverlapSize int
	DoReset     bool
}

// Validate checks the parameters before they are sent
func (p ProcessParams) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.ChunkSize, validation.Required, validation.Min(1)),
		validation.Field(&p.OverlapSize, validation.Min(0)),
	)
	if err != nil {
		return err
	}
	if p.OverlapSize >= p.ChunkSize {
		return errors.New("overlap size must be smaller than chunk size")
	}
	return nil
}

type processRequest struct {
	FileID      string `json:"file_id"`
	ChunkSize   int    `json:"chunk_size"`
	OverlapSize int    `json:"overlap_size"`
	DoReset     int    `json:"do_reset"`
}

// ProcessResponse is returned by a successful process-and-push call
type ProcessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Health checks that the backend is up
func (c *Client) Health(ctx context.Context) (*Health, error) {
	body, err := c.do(ctx, opHealth, http.MethodGet, healthPath, nil, "")
	if err != nil {
		return nil, err
	}
	h := &Health{}
	if err := decode(opHealth, body, &h.Fields); err != nil {
		return nil, err
	}
	h.Status = gjson.GetBytes(body, "status").String()
	if h.Status == "" {
		h.Status = "ok"
	}
	return h, nil
}

// Upload sends one document to the backend as multipart field "file". The
// returned FileID is what ProcessAndPush needs.
func (c *Client) Upload(ctx context.Context, projectID, filename string, r io.Reader) (*UploadResponse, error) {
	if !AllowedExtension(filename) {
		return nil, fmt.Errorf("%s: %w: unsupported file type %q (allowed: %s)",
			opUpload, ErrPrecondition, filepath.Ext(filename), strings.Join(AllowedExtensions, ", "))
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create form file: %w", opUpload, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("%s: failed to read %s: %w", opUpload, filename, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%s: failed to finish form: %w", opUpload, err)
	}

	body, err := c.do(ctx, opUpload, http.MethodPost, uploadPath(projectID), &buf, writer.FormDataContentType())
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: %w: body is not JSON", opUpload, ErrValidation)
	}
	fileID := gjson.GetBytes(body, "file_id")
	if !fileID.Exists() || fileID.String() == "" {
		return nil, fmt.Errorf("%s: %w: response has no file_id", opUpload, ErrValidation)
	}

	resp := &UploadResponse{
		Success: true,
		FileID:  fileID.String(),
		Message: gjson.GetBytes(body, "message").String(),
	}
	if s := gjson.GetBytes(body, "success"); s.Exists() {
		resp.Success = s.Bool()
	}
	c.log.Info("file uploaded",
		logger.String("project_id", projectID),
		logger.String("name", filename),
		logger.String("file_id", resp.FileID),
	)
	return resp, nil
}

// ProcessAndPush asks the backend to chunk an uploaded file and push it to
// the vector index. An empty fileID is refused without calling the backend.
func (c *Client) ProcessAndPush(ctx context.Context, projectID, fileID string, params ProcessParams) (*ProcessResponse, error) {
	if fileID == "" {
		return nil, fmt.Errorf("%s: %w: file has not been uploaded yet", opProcessAndPush, ErrPrecondition)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", opProcessAndPush, ErrPrecondition, err)
	}

	req := processRequest{
		FileID:      fileID,
		ChunkSize:   params.ChunkSize,
		OverlapSize: params.OverlapSize,
	}
	if params.DoReset {
		req.DoReset = 1
	}

	body, err := c.postJSON(ctx, opProcessAndPush, processAndPushPath(projectID), req)
	if err != nil {
		return nil, err
	}

	resp := &ProcessResponse{Success: true}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := decode(opProcessAndPush, body, resp); err != nil {
			return nil, err
		}
	}
	return resp, nil
}
