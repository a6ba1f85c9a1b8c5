package api

import (
	"context"
	"time"

	"docuchat/logger"
)

// PipelineResult bundles the three responses of a RAG query
type PipelineResult struct {
	IndexInfo *IndexInfo
	Search    *SearchResult
	Answer    *Answer
}

// Pipeline answers a question end to end: index info, then search, then
// answer. Each step waits for the previous one. The first failing step
// aborts the run and its error is returned as is.
func (c *Client) Pipeline(ctx context.Context, projectID, question string, limit int) (*PipelineResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	log := c.log.Named("pipeline").With(logger.String("project_id", projectID))
	start := time.Now()
	log.Info("starting RAG pipeline", logger.String("question", question), logger.Int("limit", limit))

	log.Debug("step 1/3: index info")
	info, err := c.IndexInfo(ctx, projectID)
	if err != nil {
		log.Warn("RAG pipeline failed", logger.Int("step", 1), logger.Error(err))
		return nil, err
	}

	log.Debug("step 2/3: search")
	search, err := c.Search(ctx, projectID, SearchRequest{Text: question, Limit: limit})
	if err != nil {
		log.Warn("RAG pipeline failed", logger.Int("step", 2), logger.Error(err))
		return nil, err
	}

	log.Debug("step 3/3: answer")
	answer, err := c.Answer(ctx, projectID, AnswerRequest{Text: question, Limit: limit})
	if err != nil {
		log.Warn("RAG pipeline failed", logger.Int("step", 3), logger.Error(err))
		return nil, err
	}

	log.Info("RAG pipeline complete", logger.Duration("elapsed", time.Since(start)))
	return &PipelineResult{IndexInfo: info, Search: search, Answer: answer}, nil
}
