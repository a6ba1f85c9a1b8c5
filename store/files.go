package store

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docuchat/logger"
	"docuchat/models"
)

// FilePatch holds the fields to change on a file; nil fields are kept
type FilePatch struct {
	Name   *string
	Status *models.FileStatus
	// FileID sets the backend identifier. An empty value never clears one
	// that is already set.
	FileID *string
	Error  *string
}

// FileStore is the persisted list of uploaded files across all projects
type FileStore struct {
	mu    sync.Mutex
	slots Slots
	log   logger.Logger
	now   func() time.Time
	files []models.UploadedFile
}

// NewFileStore loads the file list from slots
func NewFileStore(slots Slots, log logger.Logger) (*FileStore, error) {
	files, err := load[models.UploadedFile](slots, FilesSlot, log)
	if err != nil {
		return nil, err
	}
	log.Debug("files loaded", logger.Int("count", len(files)))
	return &FileStore{
		slots: slots,
		log:   log,
		now:   clock,
		files: files,
	}, nil
}

// newFileID returns an opaque id of the form file_<unixms>_<random>
func newFileID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("file_%d_%s", now.UnixMilli(), suffix)
}

// Add assigns a new id to f and appends it. A zero UploadDate is set to now
// and an empty status to uploaded.
func (s *FileStore) Add(f models.UploadedFile) (models.UploadedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	f.ID = newFileID(now)
	if f.UploadDate.IsZero() {
		f.UploadDate = now
	} else {
		f.UploadDate = f.UploadDate.UTC()
	}
	if f.Status == "" {
		f.Status = models.StatusUploaded
	}
	if !f.Status.Valid() {
		return models.UploadedFile{}, fmt.Errorf("invalid status: %s", f.Status)
	}

	if err := s.commit(append(s.snapshot(), f)); err != nil {
		return models.UploadedFile{}, err
	}
	return f, nil
}

// Update merges patch into the file with the given id. Unknown ids are
// ignored.
func (s *FileStore) Update(id string, patch FilePatch) error {
	if patch.Status != nil && !patch.Status.Valid() {
		return fmt.Errorf("invalid status: %s", *patch.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	next := s.snapshot()
	f := &next[i]
	if patch.Name != nil {
		f.Name = *patch.Name
	}
	if patch.Status != nil {
		f.Status = *patch.Status
	}
	if patch.FileID != nil && *patch.FileID != "" {
		f.FileID = *patch.FileID
	}
	if patch.Error != nil {
		f.Error = *patch.Error
	}
	return s.commit(next)
}

// Delete removes the file record. Only local state changes; the backend
// copy is left alone.
func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	next := make([]models.UploadedFile, 0, len(s.files)-1)
	next = append(next, s.files[:i]...)
	next = append(next, s.files[i+1:]...)
	return s.commit(next)
}

// DeleteByProject removes every file record owned by projectID and returns
// how many were removed
func (s *FileStore) DeleteByProject(projectID uint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]models.UploadedFile, 0, len(s.files))
	removed := 0
	for _, f := range s.files {
		if f.ProjectID == projectID {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.commit(kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// Get returns the file with the given id
func (s *FileStore) Get(id string) (models.UploadedFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.UploadedFile{}, false
	}
	return s.files[i], true
}

// List returns a copy of all files
func (s *FileStore) List() []models.UploadedFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot()
}

// ListByProject returns the files owned by projectID in the order they were
// added
func (s *FileStore) ListByProject(projectID uint) []models.UploadedFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.UploadedFile
	for _, f := range s.files {
		if f.ProjectID == projectID {
			out = append(out, f)
		}
	}
	return out
}

// Close writes the final state
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}

func (s *FileStore) indexOf(id string) int {
	for i := range s.files {
		if s.files[i].ID == id {
			return i
		}
	}
	return -1
}

// snapshot copies the list; s.mu must be held
func (s *FileStore) snapshot() []models.UploadedFile {
	out := make([]models.UploadedFile, len(s.files))
	copy(out, s.files)
	return out
}

// commit writes next and makes it the current list only once the write
// succeeded; s.mu must be held
func (s *FileStore) commit(next []models.UploadedFile) error {
	if err := save(s.slots, FilesSlot, next); err != nil {
		return err
	}
	s.files = next
	return nil
}

// persist must be called with s.mu held
func (s *FileStore) persist() error {
	return save(s.slots, FilesSlot, s.files)
}
