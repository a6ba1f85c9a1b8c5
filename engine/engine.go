package engine

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/sync/singleflight"

	"docuchat/api"
	"docuchat/config"
	"docuchat/logger"
	"docuchat/models"
	"docuchat/store"
)

// Backend is the part of the RAG backend the workflows depend on.
// *api.Client implements it.
type Backend interface {
	Upload(ctx context.Context, projectID, filename string, r io.Reader) (*api.UploadResponse, error)
	ProcessAndPush(ctx context.Context, projectID, fileID string, params api.ProcessParams) (*api.ProcessResponse, error)
	IndexInfo(ctx context.Context, projectID string) (*api.IndexInfo, error)
	Pipeline(ctx context.Context, projectID, question string, limit int) (*api.PipelineResult, error)
}

// Engine runs the project, document and chat workflows over the backend and
// the local stores
type Engine struct {
	API      Backend
	Projects *store.ProjectStore
	Files    *store.FileStore
	Defaults config.ProcessingConfig
	Logger   logger.Logger

	// inflight collapses concurrent index info requests for one project
	inflight singleflight.Group
}

// New creates an Engine. A nil log discards output.
func New(backend Backend, projects *store.ProjectStore, files *store.FileStore, defaults config.ProcessingConfig, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		API:      backend,
		Projects: projects,
		Files:    files,
		Defaults: defaults,
		Logger:   log.Named("engine"),
	}
}

// BackendID is the project identifier used in backend paths
func BackendID(projectID uint) string {
	return strconv.FormatUint(uint64(projectID), 10)
}

// ProcessParams returns the processing parameters from the defaults
func (e *Engine) ProcessParams() api.ProcessParams {
	return api.ProcessParams{
		ChunkSize:   e.Defaults.ChunkSize,
		OverlapSize: e.Defaults.OverlapSize,
		DoReset:     e.Defaults.DoReset,
	}
}

// CreateProject validates the name and adds a project
func (e *Engine) CreateProject(name, description string) (models.Project, error) {
	p, err := e.Projects.Create(name, description)
	if err != nil {
		return models.Project{}, err
	}
	e.Logger.Info("project created", logger.Uint("project_id", p.ID), logger.String("name", p.Name))
	return p, nil
}

// DeleteProject removes a project together with its local file records.
// The backend has no delete endpoint, so indexed data stays there.
// Once the project itself is gone a failure to drop its files is only
// logged; the leftover records belong to no listed project.
func (e *Engine) DeleteProject(id uint) error {
	if err := e.Projects.Delete(id); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	removed, err := e.Files.DeleteByProject(id)
	if err != nil {
		e.Logger.Warn("failed to delete project files",
			logger.Uint("project_id", id),
			logger.Error(err),
		)
	}
	e.Logger.Info("project deleted", logger.Uint("project_id", id), logger.Int("files", removed))
	return nil
}

// IndexStatus returns what the backend has indexed for a project. The
// second result is false when nothing is indexed yet, which is not an error.
// Concurrent calls for one project share a request that outlives any single
// caller's context; each caller still returns as soon as its own ctx is done.
func (e *Engine) IndexStatus(ctx context.Context, projectID uint) (*api.IndexInfo, bool, error) {
	key := BackendID(projectID)
	ch := e.inflight.DoChan(key, func() (interface{}, error) {
		return e.API.IndexInfo(context.WithoutCancel(ctx), key)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res = <-ch:
	}
	if res.Shared {
		e.Logger.Debug("index info request shared", logger.Uint("project_id", projectID))
	}
	v, err := res.Val, res.Err
	if err != nil {
		if api.IsNoIndex(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v.(*api.IndexInfo), true, nil
}
