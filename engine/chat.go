package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docuchat/api"
	"docuchat/logger"
	"docuchat/models"
)

const (
	// Greeting opens every chat session
	Greeting = "Hello! I'm your document assistant. Ask me anything about your uploaded documents."

	// NoIndexNotice answers a question asked before anything was indexed
	NoIndexNotice = "No documents have been indexed for this project yet. Upload and process documents in the Files tab, then ask again."
)

// ErrEmptyQuestion is returned when Send gets a blank question
var ErrEmptyQuestion = errors.New("question is empty")

// ErrBusy is returned when a question is sent while another is pending
var ErrBusy = errors.New("an answer is still pending")

// SuggestedQuestions are offered before the first question is asked
func SuggestedQuestions() []string {
	return []string{
		"What is the document about?",
		"Summarize the key findings",
		"What methodologies are discussed?",
	}
}

// Chat is one project's conversation. It lives in memory only.
type Chat struct {
	mu        sync.Mutex
	engine    *Engine
	projectID uint
	now       func() time.Time
	messages  []models.ChatMessage
	pending   bool
}

// NewChat starts a conversation about a project
func (e *Engine) NewChat(projectID uint) *Chat {
	c := &Chat{
		engine:    e,
		projectID: projectID,
		now:       time.Now,
	}
	c.reset()
	return c
}

func (c *Chat) reset() {
	c.messages = []models.ChatMessage{c.message(models.RoleAssistant, Greeting)}
	c.pending = false
}

func (c *Chat) message(role models.Role, content string) models.ChatMessage {
	return models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: c.now(),
	}
}

// ProjectID returns the project the chat is about
func (c *Chat) ProjectID() uint {
	return c.projectID
}

// Messages returns a copy of the history, oldest first
func (c *Chat) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Pending reports whether an answer is being waited for
func (c *Chat) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Fresh reports whether nothing has been asked yet
func (c *Chat) Fresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages) == 1
}

// Clear drops the history back to the greeting
func (c *Chat) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// Send asks a question and waits for the answer
func (c *Chat) Send(ctx context.Context, question string) (models.ChatMessage, error) {
	if err := c.Begin(question); err != nil {
		return models.ChatMessage{}, err
	}
	return c.Finish(ctx, question)
}

// Begin appends the question and a typing placeholder. Finish must follow.
func (c *Chat) Begin(question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return ErrEmptyQuestion
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending {
		return ErrBusy
	}
	placeholder := c.message(models.RoleAssistant, "")
	placeholder.Typing = true
	c.messages = append(c.messages, c.message(models.RoleUser, question), placeholder)
	c.pending = true
	return nil
}

// Finish runs the RAG pipeline for the question started with Begin and
// replaces the placeholder with the answer. A project with nothing indexed
// gets a notice instead of an error.
func (c *Chat) Finish(ctx context.Context, question string) (models.ChatMessage, error) {
	question = strings.TrimSpace(question)
	e := c.engine
	log := e.Logger.With(logger.Uint("project_id", c.projectID))

	res, err := e.API.Pipeline(ctx, BackendID(c.projectID), question, e.Defaults.SearchLimit)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropPlaceholder()
	c.pending = false

	if err != nil {
		if api.IsNoIndex(err) {
			log.Info("question asked before indexing")
			msg := c.message(models.RoleAssistant, NoIndexNotice)
			c.messages = append(c.messages, msg)
			return msg, nil
		}
		log.Warn("question failed", logger.Error(err))
		return models.ChatMessage{}, err
	}

	text := res.Answer.Text
	if text == "" {
		text = "The backend returned no answer for this question."
	}
	msg := c.message(models.RoleAssistant, text)
	msg.Sources = res.Answer.Citations()
	c.messages = append(c.messages, msg)
	log.Info("question answered", logger.Int("sources", len(msg.Sources)))
	return msg, nil
}

func (c *Chat) dropPlaceholder() {
	kept := c.messages[:0]
	for _, m := range c.messages {
		if !m.Typing {
			kept = append(kept, m)
		}
	}
	c.messages = kept
}
