package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docuchat/api"
	"docuchat/logger"
	"docuchat/models"
	"docuchat/store"
)

// ErrUnknownProject is returned when a workflow names a project that does
// not exist
var ErrUnknownProject = errors.New("project not found")

// UploadResult is the outcome for one path of UploadFiles. File is the zero
// value when the path was rejected before a record was created.
type UploadResult struct {
	Path string
	File models.UploadedFile
	Err  error
}

// FormatSize renders a byte count the way file records store it
func FormatSize(bytes int64) string {
	return fmt.Sprintf("%.2f MB", float64(bytes)/1024/1024)
}

// UploadFiles uploads documents to a project one at a time, in order. A
// directory contributes every document found under it. A failing file is
// marked as errored and the rest still run.
func (e *Engine) UploadFiles(ctx context.Context, projectID uint, paths []string) ([]UploadResult, error) {
	if _, ok := e.Projects.Get(projectID); !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProject, projectID)
	}

	expanded, err := expandPaths(paths)
	if err != nil {
		return nil, err
	}

	results := make([]UploadResult, 0, len(expanded))
	for _, path := range expanded {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := e.uploadOne(ctx, projectID, path)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	e.Logger.Info("upload finished",
		logger.Uint("project_id", projectID),
		logger.Int("files", len(results)),
		logger.Int("failed", failed),
	)
	return results, nil
}

// uploadOne handles a single path. Only a store failure is returned as an
// error; everything else is reported on the result.
func (e *Engine) uploadOne(ctx context.Context, projectID uint, path string) (UploadResult, error) {
	res := UploadResult{Path: path}
	name := filepath.Base(path)

	if !api.AllowedExtension(name) {
		res.Err = fmt.Errorf("%w: unsupported file type %q (allowed: %s)",
			api.ErrPrecondition, filepath.Ext(name), strings.Join(api.AllowedExtensions, ", "))
		return res, nil
	}

	f, err := os.Open(path)
	if err != nil {
		res.Err = fmt.Errorf("failed to open %s: %w", path, err)
		return res, nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		res.Err = fmt.Errorf("failed to stat %s: %w", path, err)
		return res, nil
	}

	record, err := e.Files.Add(models.UploadedFile{
		Name:      name,
		Size:      FormatSize(info.Size()),
		Status:    models.StatusUploaded,
		ProjectID: projectID,
	})
	if err != nil {
		return res, fmt.Errorf("failed to save file record: %w", err)
	}
	res.File = record

	log := e.Logger.With(logger.String("file", name), logger.String("id", record.ID))
	resp, err := e.API.Upload(ctx, BackendID(projectID), name, f)
	if err != nil {
		log.Warn("upload failed", logger.Error(err))
		res.Err = err
		if ferr := e.markFailed(record.ID, err); ferr != nil {
			return res, ferr
		}
		res.File, _ = e.Files.Get(record.ID)
		return res, nil
	}

	fileID := resp.FileID
	if err := e.Files.Update(record.ID, store.FilePatch{FileID: &fileID}); err != nil {
		return res, fmt.Errorf("failed to save backend file id: %w", err)
	}
	if err := e.Projects.RecordDocument(projectID); err != nil {
		return res, fmt.Errorf("failed to update project: %w", err)
	}
	res.File, _ = e.Files.Get(record.ID)

	if e.Defaults.AutoIndex {
		if err := e.ProcessFile(ctx, record.ID, e.ProcessParams()); err != nil {
			res.Err = err
		}
		res.File, _ = e.Files.Get(record.ID)
	}
	return res, nil
}

// ProcessFile asks the backend to chunk and index an uploaded file. A file
// the backend has not acknowledged is refused without a request.
func (e *Engine) ProcessFile(ctx context.Context, id string, params api.ProcessParams) error {
	f, ok := e.Files.Get(id)
	if !ok {
		return fmt.Errorf("%w: file %s not found", api.ErrPrecondition, id)
	}
	if !f.Uploaded() {
		return fmt.Errorf("%w: %s has not been uploaded yet", api.ErrPrecondition, f.Name)
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: %v", api.ErrPrecondition, err)
	}

	processing := models.StatusProcessing
	noError := ""
	if err := e.Files.Update(id, store.FilePatch{Status: &processing, Error: &noError}); err != nil {
		return fmt.Errorf("failed to update file status: %w", err)
	}

	log := e.Logger.With(logger.String("file", f.Name), logger.String("file_id", f.FileID))
	log.Info("processing file",
		logger.Int("chunk_size", params.ChunkSize),
		logger.Int("overlap_size", params.OverlapSize),
		logger.Bool("do_reset", params.DoReset),
	)

	if _, err := e.API.ProcessAndPush(ctx, BackendID(f.ProjectID), f.FileID, params); err != nil {
		log.Warn("processing failed", logger.Error(err))
		if ferr := e.markFailed(id, err); ferr != nil {
			return ferr
		}
		return err
	}

	indexed := models.StatusIndexed
	if err := e.Files.Update(id, store.FilePatch{Status: &indexed}); err != nil {
		return fmt.Errorf("failed to update file status: %w", err)
	}
	log.Info("file indexed")
	return nil
}

// DeleteFile removes a file record locally
func (e *Engine) DeleteFile(id string) error {
	if err := e.Files.Delete(id); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (e *Engine) markFailed(id string, cause error) error {
	status := models.StatusError
	msg := cause.Error()
	if err := e.Files.Update(id, store.FilePatch{Status: &status, Error: &msg}); err != nil {
		return fmt.Errorf("failed to update file status: %w", err)
	}
	return nil
}

// expandPaths replaces each directory with the documents found under it
func expandPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			// Missing paths are reported per file by the upload
			out = append(out, p)
			continue
		}
		docs, err := ScanDocuments(p)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", p, err)
		}
		out = append(out, docs...)
	}
	return out, nil
}
