package models

import (
	"time"
)

// Role identifies who authored a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Citation is a source backing an assistant answer
type Citation struct {
	Label   string   `json:"label"`
	Snippet string   `json:"snippet,omitempty"`
	Score   *float64 `json:"score,omitempty"`
}

// ChatMessage is one turn of a project chat
type ChatMessage struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	Sources   []Citation `json:"sources,omitempty"`
	// Typing marks the placeholder shown while an answer is pending
	Typing bool `json:"-"`
}
