package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"docuchat/logger"
	"docuchat/models"
)

// DefaultLimit is the number of chunks requested when the caller sets none
const DefaultLimit = 5

// IndexInfo describes what the backend has indexed for a project. The
// counts are nil when the backend omits them.
type IndexInfo struct {
	ProjectID      string `json:"-"`
	TotalDocuments *int   `json:"total_documents,omitempty"`
	TotalChunks    *int   `json:"total_chunks,omitempty"`
}

// SearchRequest is a semantic search query
type SearchRequest struct {
	Text  string
	Limit int
}

// AnswerRequest is a question for the RAG answer endpoint
type AnswerRequest struct {
	Text  string
	Limit int
}

type queryBody struct {
	Text  string `json:"text"`
	Limit int    `json:"limit"`
}

func newQueryBody(text string, limit int) queryBody {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return queryBody{Text: text, Limit: limit}
}

// Chunk is one scored piece of an indexed document. Metadata is whatever
// JSON value the backend attached, usually an object.
type Chunk struct {
	Text     string      `json:"text"`
	Score    float64     `json:"score"`
	Metadata interface{} `json:"metadata,omitempty"`
}

// MetadataString returns the string stored under key when Metadata is an
// object
func (c Chunk) MetadataString(key string) (string, bool) {
	m, ok := c.Metadata.(map[string]interface{})
	if !ok {
		return "", false
	}
	v, ok := m[key].(string)
	return v, ok
}

// SearchResult is the response of the search endpoint
type SearchResult struct {
	Chunks []Chunk `json:"chunks,omitempty"`
}

// AnswerShape records which payload layout the answer endpoint used
type AnswerShape int

const (
	// ShapeNone means no answer text was found
	ShapeNone AnswerShape = iota
	// ShapeString is a bare JSON string body
	ShapeString
	// ShapeAnswerField is {"answer": "..."}
	ShapeAnswerField
	// ShapeNestedAnswer is {"answer": {"answer": "..."}}
	ShapeNestedAnswer
	// ShapeNestedText is {"answer": {"text": "..."}}
	ShapeNestedText
	// ShapeTextField is {"text": "..."}
	ShapeTextField
)

func (s AnswerShape) String() string {
	switch s {
	case ShapeString:
		return "string"
	case ShapeAnswerField:
		return "answer"
	case ShapeNestedAnswer:
		return "answer.answer"
	case ShapeNestedText:
		return "answer.text"
	case ShapeTextField:
		return "text"
	}
	return "none"
}

// Answer is the canonical form of an answer endpoint response, whatever
// layout the backend used
type Answer struct {
	Text    string
	Shape   AnswerShape
	Sources []string
	Chunks  []Chunk
}

// Citations returns the sources backing the answer. Plain source strings
// win over chunks; chunks carry their score and text.
func (a *Answer) Citations() []models.Citation {
	if len(a.Sources) > 0 {
		out := make([]models.Citation, 0, len(a.Sources))
		for _, s := range a.Sources {
			out = append(out, models.Citation{Label: s})
		}
		return out
	}
	if len(a.Chunks) == 0 {
		return nil
	}
	out := make([]models.Citation, 0, len(a.Chunks))
	for i, ch := range a.Chunks {
		score := ch.Score
		out = append(out, models.Citation{
			Label:   chunkLabel(ch, i),
			Snippet: ch.Text,
			Score:   &score,
		})
	}
	return out
}

// chunkLabel names a chunk after its source document when the metadata has
// one
func chunkLabel(ch Chunk, i int) string {
	for _, key := range []string{"source", "file_name", "filename", "file_id"} {
		if v, ok := ch.MetadataString(key); ok && v != "" {
			return v
		}
	}
	return fmt.Sprintf("Chunk %d", i+1)
}

// IndexInfo returns what is indexed for a project. A project with nothing
// indexed yet answers 404 or 500; see IsNoIndex.
func (c *Client) IndexInfo(ctx context.Context, projectID string) (*IndexInfo, error) {
	body, err := c.do(ctx, opIndexInfo, http.MethodGet, indexInfoPath(projectID), nil, "")
	if err != nil {
		if IsNoIndex(err) {
			c.log.Info("no index for project yet", logger.String("project_id", projectID))
		}
		return nil, err
	}
	info := &IndexInfo{ProjectID: projectID}
	if err := decode(opIndexInfo, body, info); err != nil {
		return nil, err
	}
	if pid := gjson.GetBytes(body, "project_id"); pid.Exists() {
		info.ProjectID = pid.String()
	}
	return info, nil
}

// Search runs a semantic search over a project's index
func (c *Client) Search(ctx context.Context, projectID string, req SearchRequest) (*SearchResult, error) {
	body, err := c.postJSON(ctx, opSearch, searchPath(projectID), newQueryBody(req.Text, req.Limit))
	if err != nil {
		return nil, err
	}
	result := &SearchResult{}
	if err := decode(opSearch, body, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Answer asks the backend to answer a question from a project's documents
func (c *Client) Answer(ctx context.Context, projectID string, req AnswerRequest) (*Answer, error) {
	body, err := c.postJSON(ctx, opAnswer, answerPath(projectID), newQueryBody(req.Text, req.Limit))
	if err != nil {
		return nil, err
	}
	answer, err := DecodeAnswer(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opAnswer, err)
	}
	c.log.Debug("answer decoded",
		logger.String("shape", answer.Shape.String()),
		logger.Int("sources", len(answer.Sources)),
		logger.Int("chunks", len(answer.Chunks)),
	)
	return answer, nil
}

// DecodeAnswer converts any supported answer payload into an Answer
func DecodeAnswer(body []byte) (*Answer, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: answer body is not JSON", ErrValidation)
	}
	root := gjson.ParseBytes(body)

	if root.Type == gjson.String {
		return &Answer{Text: root.Str, Shape: ShapeString}, nil
	}
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: unexpected answer payload %s", ErrValidation, truncate(root.Raw, 80))
	}

	a := &Answer{}
	field := root.Get("answer")
	switch {
	case field.Type == gjson.String:
		a.Text, a.Shape = field.Str, ShapeAnswerField
	case field.IsObject() && field.Get("answer").Type == gjson.String:
		a.Text, a.Shape = field.Get("answer").Str, ShapeNestedAnswer
	case field.IsObject() && field.Get("text").Type == gjson.String:
		a.Text, a.Shape = field.Get("text").Str, ShapeNestedText
	case root.Get("text").Type == gjson.String:
		a.Text, a.Shape = root.Get("text").Str, ShapeTextField
	}

	root.Get("sources").ForEach(func(_, v gjson.Result) bool {
		if s := v.String(); s != "" {
			a.Sources = append(a.Sources, s)
		}
		return true
	})

	if chunks := root.Get("chunks"); chunks.IsArray() {
		if err := decode("chunks", []byte(chunks.Raw), &a.Chunks); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
