package models

import (
	"time"
)

// Slot is one named durable storage slot. The stores keep their whole list
// serialized as JSON in a single slot.
type Slot struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"unique;not null" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"type:datetime" json:"updated_at"`
}

// Project groups uploaded documents and the chat run against them
type Project struct {
	ID            uint      `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	DocumentCount int       `json:"document_count"`
	LastActivity  time.Time `json:"last_activity"`
}
