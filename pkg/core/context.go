package core

import (
	"context"
	"sort"
	"strings"
)

const (
	userPrefix      = "User: "
	assistantPrefix = "Assistant: "
)

// FormatTurn renders a turn as the canonical two-line text used for
// embedding, vector storage and context assembly.
func FormatTurn(userMessage, aiResponse string) string {
	return userPrefix + userMessage + "\n" + assistantPrefix + aiResponse
}

// SplitTurn parses text produced by FormatTurn back into its two sides.
// Text in any other shape comes back entirely as the user message.
func SplitTurn(text string) (userMessage, aiResponse string) {
	if !strings.HasPrefix(text, userPrefix) {
		return text, ""
	}
	rest := strings.TrimPrefix(text, userPrefix)
	idx := strings.Index(rest, "\n"+assistantPrefix)
	if idx < 0 {
		return rest, ""
	}
	return rest[:idx], rest[idx+len("\n"+assistantPrefix):]
}

// mergeMemories combines memory lists, dropping later duplicates of the same
// timestamp and ordering the result chronologically.
func mergeMemories(lists ...[]*ContextMemory) []*ContextMemory {
	seen := make(map[string]struct{})
	var merged []*ContextMemory
	for _, list := range lists {
		for _, mem := range list {
			if _, dup := seen[mem.Timestamp]; dup {
				continue
			}
			seen[mem.Timestamp] = struct{}{}
			merged = append(merged, mem)
		}
	}
	sortChronological(merged)
	return merged
}

// sortChronological orders memories by timestamp. Timestamps sort
// lexicographically in time order.
func sortChronological(memories []*ContextMemory) {
	sort.SliceStable(memories, func(a, b int) bool {
		return memories[a].Timestamp < memories[b].Timestamp
	})
}

// formatContext renders memories as alternating user/assistant text.
func formatContext(memories []*ContextMemory) string {
	parts := make([]string, len(memories))
	for i, mem := range memories {
		parts[i] = FormatTurn(mem.UserMessage, mem.AIResponse)
	}
	return strings.Join(parts, "\n\n")
}

// trimToBudget reduces memories to at most budget entries. When a reranker
// is available the most relevant entries survive; otherwise the newest do.
// The survivors are returned in chronological order either way.
func (s *Service) trimToBudget(ctx context.Context, query string, memories []*ContextMemory, budget int) []*ContextMemory {
	if len(memories) <= budget {
		return memories
	}

	reranked := s.rerankMemories(ctx, query, memories)
	if len(reranked) > budget {
		reranked = reranked[:budget]
	}
	sortChronological(reranked)
	return reranked
}

// rerankMemories orders memories by rerank relevance to query.
//
// Reranking is strictly best-effort: with no provider configured, or on any
// provider error, the original order comes back with the neutral score 1.0.
func (s *Service) rerankMemories(ctx context.Context, query string, memories []*ContextMemory) []*ContextMemory {
	if s.reranker == nil || !s.config.Reranker.Enabled || len(memories) == 0 {
		return withNeutralScores(memories)
	}

	documents := make([]string, len(memories))
	for i, mem := range memories {
		documents[i] = FormatTurn(mem.UserMessage, mem.AIResponse)
	}

	results, err := s.reranker.Rerank(ctx, query, documents, 0)
	if err != nil {
		s.logger.Warn("rerank failed, keeping original order", "error", err)
		return withNeutralScores(memories)
	}

	reranked := make([]*ContextMemory, 0, len(memories))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(memories) {
			continue
		}
		mem := memories[r.Index]
		mem.Similarity = r.RelevanceScore
		reranked = append(reranked, mem)
	}
	if len(reranked) == 0 {
		return withNeutralScores(memories)
	}
	return reranked
}

func withNeutralScores(memories []*ContextMemory) []*ContextMemory {
	for _, mem := range memories {
		if mem.Similarity == 0 {
			mem.Similarity = 1.0
		}
	}
	return memories
}
