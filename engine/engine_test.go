package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/api"
	"docuchat/config"
	"docuchat/db"
	"docuchat/logger"
	"docuchat/models"
	"docuchat/store"
)

// fakeBackend records calls and answers with the configured functions
type fakeBackend struct {
	mu      sync.Mutex
	uploads []string
	process []string

	uploadErr  map[string]error
	processErr error
	infoErr    error
	pipeline   func(question string) (*api.PipelineResult, error)
	lastLimit  int
}

func (f *fakeBackend) Upload(ctx context.Context, projectID, filename string, r io.Reader) (*api.UploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, projectID+"/"+filename)
	if err := f.uploadErr[filename]; err != nil {
		return nil, err
	}
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	return &api.UploadResponse{Success: true, FileID: "srv_" + filename}, nil
}

func (f *fakeBackend) ProcessAndPush(ctx context.Context, projectID, fileID string, params api.ProcessParams) (*api.ProcessResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.process = append(f.process, fmt.Sprintf("%s/%s/%d/%d/%t", projectID, fileID, params.ChunkSize, params.OverlapSize, params.DoReset))
	if f.processErr != nil {
		return nil, f.processErr
	}
	return &api.ProcessResponse{Success: true}, nil
}

func (f *fakeBackend) IndexInfo(ctx context.Context, projectID string) (*api.IndexInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	n := 3
	return &api.IndexInfo{ProjectID: projectID, TotalDocuments: &n}, nil
}

func (f *fakeBackend) Pipeline(ctx context.Context, projectID, question string, limit int) (*api.PipelineResult, error) {
	f.mu.Lock()
	f.lastLimit = limit
	f.mu.Unlock()
	return f.pipeline(question)
}

// noIndexError is what the client returns for a project with no index
func noIndexError(t *testing.T) error {
	t.Helper()
	srv := newStatusServer(t, http.StatusNotFound)
	c := api.NewClient(config.APIConfig{BaseURL: srv}, logger.NewNop())
	_, err := c.IndexInfo(context.Background(), "1")
	require.True(t, api.IsNoIndex(err))
	return err
}

func setupEngine(t *testing.T, backend Backend) *Engine {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	projects, err := store.NewProjectStore(d, logger.NewNop())
	require.NoError(t, err)
	files, err := store.NewFileStore(d, logger.NewNop())
	require.NoError(t, err)

	return New(backend, projects, files, config.Default().Processing, logger.NewTestLogger())
}

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	return path
}

func TestCreateAndDeleteProject(t *testing.T) {
	e := setupEngine(t, &fakeBackend{})

	p, err := e.CreateProject("Research Papers", "")
	require.NoError(t, err)
	assert.Equal(t, uint(1), p.ID)
	assert.Equal(t, 0, p.DocumentCount)

	_, err = e.CreateProject("   ", "")
	assert.Error(t, err)

	_, err = e.Files.Add(models.UploadedFile{Name: "a.pdf", ProjectID: p.ID})
	require.NoError(t, err)

	require.NoError(t, e.DeleteProject(p.ID))
	_, ok := e.Projects.Get(p.ID)
	assert.False(t, ok)
	assert.Empty(t, e.Files.ListByProject(p.ID))
}

// keyFailSlots fails every write to failKey
type keyFailSlots struct {
	store.Slots
	failKey string
}

func (k *keyFailSlots) SetSlot(key, value string) error {
	if key == k.failKey {
		return errors.New("disk full")
	}
	return k.Slots.SetSlot(key, value)
}

func TestDeleteProjectFailureKeepsFiles(t *testing.T) {
	d, err := db.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	slots := &keyFailSlots{Slots: d}

	projects, err := store.NewProjectStore(slots, logger.NewNop())
	require.NoError(t, err)
	files, err := store.NewFileStore(slots, logger.NewNop())
	require.NoError(t, err)
	e := New(&fakeBackend{}, projects, files, config.Default().Processing, logger.NewTestLogger())

	p, err := e.CreateProject("Research Papers", "")
	require.NoError(t, err)
	_, err = e.Files.Add(models.UploadedFile{Name: "a.pdf", ProjectID: p.ID})
	require.NoError(t, err)

	slots.failKey = store.ProjectsSlot
	assert.ErrorContains(t, e.DeleteProject(p.ID), "disk full")
	_, ok := e.Projects.Get(p.ID)
	assert.True(t, ok)
	assert.Len(t, e.Files.ListByProject(p.ID), 1)
}

func TestUploadFiles(t *testing.T) {
	backend := &fakeBackend{}
	e := setupEngine(t, backend)
	p, err := e.CreateProject("Research Papers", "")
	require.NoError(t, err)

	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "a.pdf", 2*1024*1024),
		writeFile(t, dir, "b.txt", 512),
	}

	results, err := e.UploadFiles(context.Background(), p.ID, paths)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, []string{"1/a.pdf", "1/b.txt"}, backend.uploads)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.Equal(t, models.StatusUploaded, r.File.Status)
		assert.Equal(t, "srv_"+r.File.Name, r.File.FileID)
	}
	assert.Equal(t, "2.00 MB", results[0].File.Size)

	got, _ := e.Projects.Get(p.ID)
	assert.Equal(t, 2, got.DocumentCount)
	assert.Empty(t, backend.process)
}

func TestUploadFilesIsolatesFailures(t *testing.T) {
	backend := &fakeBackend{uploadErr: map[string]error{
		"bad.pdf": fmt.Errorf("upload failed: %w: dial tcp", api.ErrUnreachable),
	}}
	e := setupEngine(t, backend)
	p, err := e.CreateProject("Legal Documents", "")
	require.NoError(t, err)

	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "bad.pdf", 10),
		writeFile(t, dir, "image.png", 10),
		filepath.Join(dir, "missing.docx"),
		writeFile(t, dir, "good.docx", 10),
	}

	results, err := e.UploadFiles(context.Background(), p.ID, paths)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.ErrorIs(t, results[0].Err, api.ErrUnreachable)
	assert.Equal(t, models.StatusError, results[0].File.Status)
	assert.Contains(t, results[0].File.Error, "cannot reach backend")
	assert.False(t, results[0].File.Uploaded())

	assert.ErrorIs(t, results[1].Err, api.ErrPrecondition)
	assert.Empty(t, results[1].File.ID)

	assert.Error(t, results[2].Err)
	assert.Empty(t, results[2].File.ID)

	assert.NoError(t, results[3].Err)
	assert.True(t, results[3].File.Uploaded())

	// Only the two accepted files reached the backend and got records
	assert.Equal(t, []string{"1/bad.pdf", "1/good.docx"}, backend.uploads)
	assert.Len(t, e.Files.ListByProject(p.ID), 2)
	got, _ := e.Projects.Get(p.ID)
	assert.Equal(t, 1, got.DocumentCount)
}

func TestUploadFilesUnknownProject(t *testing.T) {
	e := setupEngine(t, &fakeBackend{})
	_, err := e.UploadFiles(context.Background(), 42, []string{"a.pdf"})
	assert.ErrorIs(t, err, ErrUnknownProject)
}

func TestUploadFilesExpandsDirectories(t *testing.T) {
	backend := &fakeBackend{}
	e := setupEngine(t, backend)
	p, err := e.CreateProject("Company Docs", "")
	require.NoError(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "z.txt", 1)
	writeFile(t, dir, "sub/a.pdf", 1)
	writeFile(t, dir, "notes.md", 1)

	results, err := e.UploadFiles(context.Background(), p.ID, []string{dir})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, filepath.Join(dir, "sub", "a.pdf"), results[0].Path)
	assert.Equal(t, filepath.Join(dir, "z.txt"), results[1].Path)
}

func TestUploadFilesAutoIndex(t *testing.T) {
	backend := &fakeBackend{}
	e := setupEngine(t, backend)
	e.Defaults.AutoIndex = true
	p, err := e.CreateProject("Research Papers", "")
	require.NoError(t, err)

	results, err := e.UploadFiles(context.Background(), p.ID, []string{writeFile(t, t.TempDir(), "a.pdf", 1)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, models.StatusIndexed, results[0].File.Status)
	assert.Equal(t, []string{"1/srv_a.pdf/400/20/false"}, backend.process)
}

func TestProcessFileWithoutBackendIDIsRejectedLocally(t *testing.T) {
	backend := &fakeBackend{}
	e := setupEngine(t, backend)
	p, err := e.CreateProject("Research Papers", "")
	require.NoError(t, err)

	f, err := e.Files.Add(models.UploadedFile{Name: "a.pdf", Size: "1.00 MB", ProjectID: p.ID})
	require.NoError(t, err)

	err = e.ProcessFile(context.Background(), f.ID, api.ProcessParams{ChunkSize: 400, OverlapSize: 20})
	assert.ErrorIs(t, err, api.ErrPrecondition)
	assert.Empty(t, backend.process)

	got, _ := e.Files.Get(f.ID)
	assert.Equal(t, models.StatusUploaded, got.Status)

	err = e.ProcessFile(context.Background(), "file_0_missing", e.ProcessParams())
	assert.ErrorIs(t, err, api.ErrPrecondition)
}

func TestProcessFile(t *testing.T) {
	backend := &fakeBackend{}
	e := setupEngine(t, backend)
	p, err := e.CreateProject("Research Papers", "")
	require.NoError(t, err)
	results, err := e.UploadFiles(context.Background(), p.ID, []string{writeFile(t, t.TempDir(), "a.pdf", 1)})
	require.NoError(t, err)
	id := results[0].File.ID

	require.NoError(t, e.ProcessFile(context.Background(), id, api.ProcessParams{ChunkSize: 100, OverlapSize: 10, DoReset: true}))
	got, _ := e.Files.Get(id)
	assert.Equal(t, models.StatusIndexed, got.Status)
	assert.Equal(t, []string{"1/srv_a.pdf/100/10/true"}, backend.process)

	assert.ErrorIs(t, e.ProcessFile(context.Background(), id, api.ProcessParams{ChunkSize: 10, OverlapSize: 10}), api.ErrPrecondition)
	assert.Len(t, backend.process, 1)
}

func TestProcessFileFailureMarksError(t *testing.T) {
	backend := &fakeBackend{processErr: errors.New("processing failed: 400 - bad file")}
	e := setupEngine(t, backend)
	p, err := e.CreateProject("Research Papers", "")
	require.NoError(t, err)
	results, err := e.UploadFiles(context.Background(), p.ID, []string{writeFile(t, t.TempDir(), "a.pdf", 1)})
	require.NoError(t, err)
	id := results[0].File.ID

	err = e.ProcessFile(context.Background(), id, e.ProcessParams())
	require.Error(t, err)

	got, _ := e.Files.Get(id)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, "processing failed: 400 - bad file", got.Error)
	assert.Equal(t, "srv_a.pdf", got.FileID)

	// A retry that succeeds clears the error
	backend.processErr = nil
	require.NoError(t, e.ProcessFile(context.Background(), id, e.ProcessParams()))
	got, _ = e.Files.Get(id)
	assert.Equal(t, models.StatusIndexed, got.Status)
	assert.Empty(t, got.Error)
}

func TestIndexStatus(t *testing.T) {
	backend := &fakeBackend{}
	e := setupEngine(t, backend)

	info, ok, err := e.IndexStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, *info.TotalDocuments)

	backend.infoErr = noIndexError(t)
	info, ok, err = e.IndexStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, info)

	backend.infoErr = fmt.Errorf("failed to get index info: %w", api.ErrUnreachable)
	_, _, err = e.IndexStatus(context.Background(), 1)
	assert.ErrorIs(t, err, api.ErrUnreachable)
}

// slowInfoBackend blocks index info calls until release is closed
type slowInfoBackend struct {
	fakeBackend
	calls   int32
	started chan struct{}
	release chan struct{}
}

func (s *slowInfoBackend) IndexInfo(ctx context.Context, projectID string) (*api.IndexInfo, error) {
	if atomic.AddInt32(&s.calls, 1) == 1 {
		close(s.started)
	}
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	n := 7
	return &api.IndexInfo{ProjectID: projectID, TotalChunks: &n}, nil
}

func TestIndexStatusSharesConcurrentRequests(t *testing.T) {
	backend := &slowInfoBackend{started: make(chan struct{}), release: make(chan struct{})}
	e := setupEngine(t, backend)

	var wg sync.WaitGroup
	results := make([]*api.IndexInfo, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _, _ = e.IndexStatus(context.Background(), 1)
	}()
	<-backend.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _, _ = e.IndexStatus(context.Background(), 1)
	}()
	// Give the second caller time to join the in-flight request
	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&backend.calls))
	for _, info := range results {
		require.NotNil(t, info)
		assert.Equal(t, 7, *info.TotalChunks)
	}
}

func TestIndexStatusSurvivesFirstCallerCancel(t *testing.T) {
	backend := &slowInfoBackend{started: make(chan struct{}), release: make(chan struct{})}
	e := setupEngine(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var firstErr, secondErr error
	var second *api.IndexInfo
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, firstErr = e.IndexStatus(ctx, 1)
	}()
	<-backend.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		second, _, secondErr = e.IndexStatus(context.Background(), 1)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	assert.ErrorIs(t, firstErr, context.Canceled)
	require.NoError(t, secondErr)
	require.NotNil(t, second)
	assert.Equal(t, 7, *second.TotalChunks)
	assert.Equal(t, int32(1), atomic.LoadInt32(&backend.calls))
}
