// Package memory bridges an agent's in-RAM working memory with the durable
// knowledge repository: storing what was learned and recalling what is
// relevant to the task at hand, with caller-side relevance scoring.
package memory

import (
	"sort"
	"strings"

	"ampere/pkg/knowledge"
	"ampere/pkg/logx"
)

// Context describes what the agent is about to do, for recall.
type Context struct {
	TaskType    string   `json:"task_type"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
}

// Service is the memory layer an agent talks to. The repository never
// assigns relevance scores; the service does, from query-time heuristics.
type Service struct {
	repo    *knowledge.Repository
	agentID string
	logger  *logx.Logger
}

// NewService creates a memory service for one agent.
func NewService(repo *knowledge.Repository, agentID string) *Service {
	return &Service{
		repo:    repo,
		agentID: agentID,
		logger:  logx.NewLogger("memory-" + agentID),
	}
}

// StoreKnowledge persists a knowledge value with the agent's identity.
func (s *Service) StoreKnowledge(k knowledge.Knowledge, tags []string, taskType string) (*knowledge.Entry, error) {
	opts := knowledge.StoreOptions{
		AgentID: &s.agentID,
		Tags:    tags,
	}
	if taskType != "" {
		opts.TaskType = &taskType
	}
	entry, err := s.repo.StoreKnowledge(k, opts)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Stored %s knowledge %s", k.Type, entry.ID)
	return entry, nil
}

// RecallRelevantKnowledge gathers candidate entries by tag, task type, and
// description similarity, scores each in [0,1], and returns the best first.
func (s *Service) RecallRelevantKnowledge(ctx Context, limit int) ([]knowledge.WithScore, error) {
	candidates := make(map[string]*knowledge.Entry)

	if len(ctx.Tags) > 0 {
		byTags, err := s.repo.FindKnowledgeByTags(ctx.Tags, 0)
		if err != nil {
			return nil, err
		}
		for _, e := range byTags {
			candidates[e.ID] = e
		}
	}
	if ctx.TaskType != "" {
		byTask, err := s.repo.FindKnowledgeByTaskType(ctx.TaskType, 0)
		if err != nil {
			return nil, err
		}
		for _, e := range byTask {
			candidates[e.ID] = e
		}
	}
	if ctx.Description != "" {
		similar, err := s.repo.FindSimilarKnowledge(ctx.Description, 0)
		if err != nil {
			return nil, err
		}
		for _, e := range similar {
			candidates[e.ID] = e
		}
	}

	scored := make([]knowledge.WithScore, 0, len(candidates))
	for _, entry := range candidates {
		tags, err := s.repo.GetTagsForKnowledge(entry.ID)
		if err != nil {
			return nil, err
		}
		entry.Tags = tags
		scored = append(scored, knowledge.WithScore{
			Entry: entry,
			Score: relevanceScore(ctx, entry),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].Entry.Timestamp.Equal(scored[j].Entry.Timestamp) {
			return scored[i].Entry.Timestamp.After(scored[j].Entry.Timestamp)
		}
		return scored[i].Entry.ID < scored[j].Entry.ID
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	s.logger.Debug("Recalled %d entries for task type %q", len(scored), ctx.TaskType)
	return scored, nil
}

// relevanceScore weighs task-type match, tag overlap, and description token
// coverage into [0,1].
func relevanceScore(ctx Context, entry *knowledge.Entry) float64 {
	score := 0.0

	if ctx.TaskType != "" && entry.TaskType != nil && *entry.TaskType == ctx.TaskType {
		score += 0.4
	}

	if len(ctx.Tags) > 0 {
		entryTags := make(map[string]bool, len(entry.Tags))
		for _, tag := range entry.Tags {
			entryTags[tag] = true
		}
		matched := 0
		for _, tag := range ctx.Tags {
			if entryTags[strings.ToLower(strings.TrimSpace(tag))] {
				matched++
			}
		}
		score += 0.4 * float64(matched) / float64(len(ctx.Tags))
	}

	if ctx.Description != "" {
		tokens := strings.Fields(strings.ToLower(ctx.Description))
		if len(tokens) > 0 {
			haystack := strings.ToLower(entry.Approach + " " + entry.Learnings)
			matched := 0
			for _, token := range tokens {
				if len(token) >= 2 && strings.Contains(haystack, token) {
					matched++
				}
			}
			score += 0.2 * float64(matched) / float64(len(tokens))
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
