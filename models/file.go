package models

import (
	"time"
)

// FileStatus is the processing state of an uploaded file
type FileStatus string

const (
	StatusUploaded   FileStatus = "uploaded"
	StatusProcessing FileStatus = "processing"
	StatusIndexed    FileStatus = "indexed"
	StatusError      FileStatus = "error"
)

// Valid reports whether s is one of the known statuses
func (s FileStatus) Valid() bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusIndexed, StatusError:
		return true
	}
	return false
}

// UploadedFile is the local record of a document added to a project.
// FileID is assigned by the backend once the upload call succeeds.
type UploadedFile struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Size       string     `json:"size"`
	UploadDate time.Time  `json:"upload_date"`
	FileID     string     `json:"file_id,omitempty"`
	Status     FileStatus `json:"status"`
	ProjectID  uint       `json:"project_id"`
	Error      string     `json:"error,omitempty"`
}

// Uploaded reports whether the backend has acknowledged the file
func (f UploadedFile) Uploaded() bool {
	return f.FileID != ""
}
