package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docuchat/db"
	"docuchat/logger"
)

// Slot keys used by the stores
const (
	ProjectsSlot       = "docuchat_projects"
	ProjectsLastIDSlot = "docuchat_projects_last_id"
	FilesSlot          = "docuchat_files"
)

// Slots is durable named storage holding one serialized value per key.
// GetSlot must return db.ErrSlotNotFound for a key that was never written.
type Slots interface {
	GetSlot(key string) (string, error)
	SetSlot(key, value string) error
}

// clock returns the current time in UTC so persisted timestamps round-trip
// to equal values
func clock() time.Time {
	return time.Now().UTC()
}

// load decodes the list stored under key. A missing slot yields an empty
// list; a corrupt one is logged and discarded.
func load[T any](slots Slots, key string, log logger.Logger) ([]T, error) {
	raw, err := slots.GetSlot(key)
	if errors.Is(err, db.ErrSlotNotFound) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	var list []T
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		log.Warn("discarding corrupt stored state",
			logger.String("slot", key),
			logger.Error(err),
		)
		return []T{}, nil
	}
	if list == nil {
		list = []T{}
	}
	return list, nil
}

// save serializes list and writes it to key
func save(slots Slots, key string, list interface{}) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := slots.SetSlot(key, string(data)); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return nil
}
