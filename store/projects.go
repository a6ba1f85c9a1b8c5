package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"docuchat/config"
	"docuchat/db"
	"docuchat/logger"
	"docuchat/models"
)

// ProjectPatch holds the fields to change on a project; nil fields are kept
type ProjectPatch struct {
	Name          *string
	Description   *string
	DocumentCount *int
	LastActivity  *time.Time
}

// ProjectStore is the persisted list of projects
type ProjectStore struct {
	mu       sync.Mutex
	slots    Slots
	log      logger.Logger
	now      func() time.Time
	projects []models.Project
	// lastID is the highest id ever handed out, kept in ProjectsLastIDSlot
	lastID uint
}

// NewProjectStore loads the project list from slots
func NewProjectStore(slots Slots, log logger.Logger) (*ProjectStore, error) {
	projects, err := load[models.Project](slots, ProjectsSlot, log)
	if err != nil {
		return nil, err
	}
	lastID, err := loadLastID(slots, log)
	if err != nil {
		return nil, err
	}
	log.Debug("projects loaded", logger.Int("count", len(projects)), logger.Uint("last_id", lastID))
	return &ProjectStore{
		slots:    slots,
		log:      log,
		now:      clock,
		projects: projects,
		lastID:   lastID,
	}, nil
}

func loadLastID(slots Slots, log logger.Logger) (uint, error) {
	raw, err := slots.GetSlot(ProjectsLastIDSlot)
	if errors.Is(err, db.ErrSlotNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", ProjectsLastIDSlot, err)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		log.Warn("discarding corrupt stored state",
			logger.String("slot", ProjectsLastIDSlot),
			logger.Error(err),
		)
		return 0, nil
	}
	return uint(id), nil
}

// ValidateProjectName checks a name before a project is created or renamed
func ValidateProjectName(name string) error {
	return validation.Validate(strings.TrimSpace(name),
		validation.Required.Error("please enter a project name"),
		validation.RuneLength(1, config.MaxProjectNameLength),
	)
}

// Create adds a project whose ID is one greater than any ID this store has
// ever assigned, including deleted ones
func (s *ProjectStore) Create(name, description string) (models.Project, error) {
	if err := ValidateProjectName(name); err != nil {
		return models.Project{}, fmt.Errorf("invalid project name: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	maxID := s.lastID
	for _, p := range s.projects {
		if p.ID > maxID {
			maxID = p.ID
		}
	}
	id := maxID + 1

	now := s.now()
	project := models.Project{
		ID:           id,
		Name:         strings.TrimSpace(name),
		Description:  strings.TrimSpace(description),
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := s.slots.SetSlot(ProjectsLastIDSlot, strconv.FormatUint(uint64(id), 10)); err != nil {
		return models.Project{}, fmt.Errorf("failed to persist %s: %w", ProjectsLastIDSlot, err)
	}
	s.lastID = id

	if err := s.commit(append(s.snapshot(), project)); err != nil {
		return models.Project{}, err
	}
	return project, nil
}

// Update merges patch into the project with the given id. Unknown ids are
// ignored.
func (s *ProjectStore) Update(id uint, patch ProjectPatch) error {
	if patch.Name != nil {
		if err := ValidateProjectName(*patch.Name); err != nil {
			return fmt.Errorf("invalid project name: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	next := s.snapshot()
	p := &next[i]
	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.DocumentCount != nil {
		p.DocumentCount = *patch.DocumentCount
	}
	if patch.LastActivity != nil {
		p.LastActivity = patch.LastActivity.UTC()
	}
	return s.commit(next)
}

// RecordDocument bumps the document count and last activity of a project
func (s *ProjectStore) RecordDocument(id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	next := s.snapshot()
	next[i].DocumentCount++
	next[i].LastActivity = s.now()
	return s.commit(next)
}

// Delete removes the project with the given id. Unknown ids are ignored.
func (s *ProjectStore) Delete(id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	next := make([]models.Project, 0, len(s.projects)-1)
	next = append(next, s.projects[:i]...)
	next = append(next, s.projects[i+1:]...)
	return s.commit(next)
}

// Get returns the project with the given id
func (s *ProjectStore) Get(id uint) (models.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Project{}, false
	}
	return s.projects[i], true
}

// List returns a copy of all projects in creation order
func (s *ProjectStore) List() []models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot()
}

// Search returns projects whose name or description contains query,
// ignoring case. An empty query matches everything.
func (s *ProjectStore) Search(query string) []models.Project {
	q := strings.ToLower(strings.TrimSpace(query))
	all := s.List()
	if q == "" {
		return all
	}
	var out []models.Project
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Description), q) {
			out = append(out, p)
		}
	}
	return out
}

// Close writes the final state
func (s *ProjectStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}

func (s *ProjectStore) indexOf(id uint) int {
	for i := range s.projects {
		if s.projects[i].ID == id {
			return i
		}
	}
	return -1
}

// snapshot copies the list; s.mu must be held
func (s *ProjectStore) snapshot() []models.Project {
	out := make([]models.Project, len(s.projects))
	copy(out, s.projects)
	return out
}

// commit writes next and makes it the current list only once the write
// succeeded; s.mu must be held
func (s *ProjectStore) commit(next []models.Project) error {
	if err := save(s.slots, ProjectsSlot, next); err != nil {
		return err
	}
	s.projects = next
	return nil
}

// persist must be called with s.mu held
func (s *ProjectStore) persist() error {
	return save(s.slots, ProjectsSlot, s.projects)
}
