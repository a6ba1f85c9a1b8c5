package store

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/db"
	"docuchat/logger"
	"docuchat/models"
)

// memSlots is an in-memory Slots that can be told to fail writes
type memSlots struct {
	values   map[string]string
	failSet  error
	setCalls int
}

func newMemSlots() *memSlots {
	return &memSlots{values: make(map[string]string)}
}

func (m *memSlots) GetSlot(key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", db.ErrSlotNotFound
	}
	return v, nil
}

func (m *memSlots) SetSlot(key, value string) error {
	m.setCalls++
	if m.failSet != nil {
		return m.failSet
	}
	m.values[key] = value
	return nil
}

func openTestDB(t *testing.T) (*db.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	d, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d, path
}

func TestProjectIDsAreMonotonic(t *testing.T) {
	ps, err := NewProjectStore(newMemSlots(), logger.NewNop())
	require.NoError(t, err)

	var last uint
	for _, name := range []string{"Research Papers", "Legal Documents", "Company Docs"} {
		p, err := ps.Create(name, "")
		require.NoError(t, err)
		assert.Greater(t, p.ID, last)
		last = p.ID
	}

	// Deleting the middle project must not let a later create reuse an id
	require.NoError(t, ps.Delete(2))
	p, err := ps.Create("Fourth", "")
	require.NoError(t, err)
	assert.Equal(t, uint(4), p.ID)

	// Deleting the newest one must not free its id either
	require.NoError(t, ps.Delete(4))
	p, err = ps.Create("Fifth", "")
	require.NoError(t, err)
	assert.Equal(t, uint(5), p.ID)
}

func TestProjectIDsAreNotReusedAfterReload(t *testing.T) {
	d, _ := openTestDB(t)

	ps, err := NewProjectStore(d, logger.NewNop())
	require.NoError(t, err)
	_, err = ps.Create("Research Papers", "")
	require.NoError(t, err)
	b, err := ps.Create("Legal Documents", "")
	require.NoError(t, err)
	require.NoError(t, ps.Delete(b.ID))

	reloaded, err := NewProjectStore(d, logger.NewNop())
	require.NoError(t, err)
	c, err := reloaded.Create("Company Docs", "")
	require.NoError(t, err)
	assert.Equal(t, uint(3), c.ID)
}

func TestProjectCreateRejectsBlankName(t *testing.T) {
	slots := newMemSlots()
	ps, err := NewProjectStore(slots, logger.NewNop())
	require.NoError(t, err)

	_, err = ps.Create("   ", "no name")
	assert.Error(t, err)
	assert.Empty(t, ps.List())
	assert.Equal(t, 0, slots.setCalls)
}

func TestProjectUpdateDeleteAndLookup(t *testing.T) {
	ps, err := NewProjectStore(newMemSlots(), logger.NewNop())
	require.NoError(t, err)

	p, err := ps.Create("Research Papers", "Collection of AI research papers")
	require.NoError(t, err)

	name := "Papers"
	require.NoError(t, ps.Update(p.ID, ProjectPatch{Name: &name}))
	got, ok := ps.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, "Papers", got.Name)
	assert.Equal(t, "Collection of AI research papers", got.Description)

	// Unknown ids are no-ops
	assert.NoError(t, ps.Update(99, ProjectPatch{Name: &name}))
	assert.NoError(t, ps.Delete(99))
	assert.Len(t, ps.List(), 1)

	_, ok = ps.Get(99)
	assert.False(t, ok)

	require.NoError(t, ps.Delete(p.ID))
	_, ok = ps.Get(p.ID)
	assert.False(t, ok)
}

func TestProjectRecordDocument(t *testing.T) {
	ps, err := NewProjectStore(newMemSlots(), logger.NewNop())
	require.NoError(t, err)

	created := time.Date(2025, 11, 4, 9, 0, 0, 0, time.UTC)
	ps.now = func() time.Time { return created }
	p, err := ps.Create("Research Papers", "")
	require.NoError(t, err)

	later := created.Add(2 * time.Hour)
	ps.now = func() time.Time { return later }
	require.NoError(t, ps.RecordDocument(p.ID))
	require.NoError(t, ps.RecordDocument(p.ID))

	got, _ := ps.Get(p.ID)
	assert.Equal(t, 2, got.DocumentCount)
	assert.Equal(t, later, got.LastActivity)
	assert.Equal(t, created, got.CreatedAt)
}

func TestProjectSearch(t *testing.T) {
	ps, err := NewProjectStore(newMemSlots(), logger.NewNop())
	require.NoError(t, err)

	_, _ = ps.Create("Research Papers", "Collection of academic papers on machine learning")
	_, _ = ps.Create("Legal Documents", "Contract reviews and legal documentation")

	assert.Len(t, ps.Search(""), 2)
	assert.Len(t, ps.Search("LEGAL"), 1)
	assert.Len(t, ps.Search("machine"), 1)
	assert.Empty(t, ps.Search("recipes"))
}

func TestProjectsRoundTripThroughDatabase(t *testing.T) {
	d, _ := openTestDB(t)

	ps, err := NewProjectStore(d, logger.NewNop())
	require.NoError(t, err)
	_, err = ps.Create("Research Papers", "AI papers")
	require.NoError(t, err)
	p2, err := ps.Create("Legal Documents", "")
	require.NoError(t, err)
	require.NoError(t, ps.RecordDocument(p2.ID))
	require.NoError(t, ps.Close())

	reloaded, err := NewProjectStore(d, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, ps.List(), reloaded.List())
}

func TestCorruptStateIsDiscarded(t *testing.T) {
	slots := newMemSlots()
	slots.values[ProjectsSlot] = `{not json`
	slots.values[FilesSlot] = `{"id":"not-a-list"}`
	log := logger.NewTestLogger()

	ps, err := NewProjectStore(slots, log)
	require.NoError(t, err)
	assert.Empty(t, ps.List())

	fs, err := NewFileStore(slots, log)
	require.NoError(t, err)
	assert.Empty(t, fs.List())

	assert.Len(t, log.EntriesAt("WARN"), 2)

	// The store keeps working and overwrites the corrupt slot
	_, err = ps.Create("Fresh", "")
	require.NoError(t, err)
	var stored []models.Project
	require.NoError(t, json.Unmarshal([]byte(slots.values[ProjectsSlot]), &stored))
	assert.Len(t, stored, 1)
}

func TestPersistFailureIsReturned(t *testing.T) {
	slots := newMemSlots()
	ps, err := NewProjectStore(slots, logger.NewNop())
	require.NoError(t, err)

	slots.failSet = errors.New("disk full")
	_, err = ps.Create("Research Papers", "")
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, ps.List())

	slots.failSet = nil
	p, err := ps.Create("Research Papers", "")
	require.NoError(t, err)
	assert.Len(t, ps.List(), 1)

	slots.failSet = errors.New("disk full")
	name := "Renamed"
	assert.Error(t, ps.Update(p.ID, ProjectPatch{Name: &name}))
	assert.Error(t, ps.RecordDocument(p.ID))
	assert.Error(t, ps.Delete(p.ID))
	got, ok := ps.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, "Research Papers", got.Name)
	assert.Equal(t, 0, got.DocumentCount)
}

func TestFilePersistFailureLeavesListUnchanged(t *testing.T) {
	slots := newMemSlots()
	fs, err := NewFileStore(slots, logger.NewNop())
	require.NoError(t, err)
	f, err := fs.Add(models.UploadedFile{Name: "a.pdf", ProjectID: 1})
	require.NoError(t, err)

	slots.failSet = errors.New("disk full")
	_, err = fs.Add(models.UploadedFile{Name: "b.pdf", ProjectID: 1})
	assert.ErrorContains(t, err, "disk full")

	indexed := models.StatusIndexed
	assert.Error(t, fs.Update(f.ID, FilePatch{Status: &indexed}))
	assert.Error(t, fs.Delete(f.ID))
	n, err := fs.DeleteByProject(1)
	assert.Error(t, err)
	assert.Equal(t, 0, n)

	files := fs.List()
	require.Len(t, files, 1)
	assert.Equal(t, f.ID, files[0].ID)
	assert.Equal(t, models.StatusUploaded, files[0].Status)
}

func TestFileLifecycle(t *testing.T) {
	slots := newMemSlots()
	fs, err := NewFileStore(slots, logger.NewNop())
	require.NoError(t, err)

	f, err := fs.Add(models.UploadedFile{Name: "a.pdf", Size: "0.50 MB", ProjectID: 1})
	require.NoError(t, err)
	assert.Regexp(t, `^file_\d+_[0-9a-f]{9}$`, f.ID)
	assert.Equal(t, models.StatusUploaded, f.Status)
	assert.Empty(t, f.FileID)
	assert.False(t, f.UploadDate.IsZero())

	_, err = fs.Add(models.UploadedFile{Name: "b.txt", ProjectID: 2})
	require.NoError(t, err)

	byProject := fs.ListByProject(1)
	require.Len(t, byProject, 1)
	assert.Equal(t, f.ID, byProject[0].ID)

	backendID := "abc123"
	require.NoError(t, fs.Update(f.ID, FilePatch{FileID: &backendID}))
	processing := models.StatusProcessing
	require.NoError(t, fs.Update(f.ID, FilePatch{Status: &processing}))

	got, ok := fs.Get(f.ID)
	require.True(t, ok)
	assert.Equal(t, "abc123", got.FileID)
	assert.Equal(t, models.StatusProcessing, got.Status)

	require.NoError(t, fs.Delete(f.ID))
	assert.Empty(t, fs.ListByProject(1))
	assert.Len(t, fs.List(), 1)
}

func TestFileBackendIDIsNeverCleared(t *testing.T) {
	fs, err := NewFileStore(newMemSlots(), logger.NewNop())
	require.NoError(t, err)

	f, err := fs.Add(models.UploadedFile{Name: "a.pdf", ProjectID: 1, FileID: "abc123"})
	require.NoError(t, err)

	empty := ""
	require.NoError(t, fs.Update(f.ID, FilePatch{FileID: &empty}))
	got, _ := fs.Get(f.ID)
	assert.Equal(t, "abc123", got.FileID)
}

func TestFileUpdateRejectsUnknownStatus(t *testing.T) {
	fs, err := NewFileStore(newMemSlots(), logger.NewNop())
	require.NoError(t, err)
	f, err := fs.Add(models.UploadedFile{Name: "a.pdf", ProjectID: 1})
	require.NoError(t, err)

	bogus := models.FileStatus("done")
	assert.Error(t, fs.Update(f.ID, FilePatch{Status: &bogus}))

	_, err = fs.Add(models.UploadedFile{Name: "b.pdf", Status: bogus})
	assert.Error(t, err)
}

func TestFilesDeleteByProject(t *testing.T) {
	fs, err := NewFileStore(newMemSlots(), logger.NewNop())
	require.NoError(t, err)

	for _, p := range []uint{1, 2, 1, 3} {
		_, err := fs.Add(models.UploadedFile{Name: "doc.txt", ProjectID: p})
		require.NoError(t, err)
	}

	n, err := fs.DeleteByProject(1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, fs.ListByProject(1))
	assert.Len(t, fs.List(), 2)
}

func TestFilesRoundTripThroughDatabase(t *testing.T) {
	d, _ := openTestDB(t)

	fs, err := NewFileStore(d, logger.NewNop())
	require.NoError(t, err)
	a, err := fs.Add(models.UploadedFile{Name: "a.pdf", Size: "1.25 MB", ProjectID: 1})
	require.NoError(t, err)
	_, err = fs.Add(models.UploadedFile{Name: "b.docx", Size: "0.01 MB", ProjectID: 1, Status: models.StatusError, Error: "Upload failed"})
	require.NoError(t, err)
	id := "srv-1"
	require.NoError(t, fs.Update(a.ID, FilePatch{FileID: &id}))

	reloaded, err := NewFileStore(d, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, fs.List(), reloaded.List())
}
