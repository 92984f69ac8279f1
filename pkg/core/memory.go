// Package core implements the memory service that ties the embedding,
// vector, graph and history layers together.
//
// A saved turn lives in three stores joined by one timestamp: the history
// store keeps the full text, the vector store keeps the embedding for
// similarity search, and the graph store keeps the node with its SIMILAR_TO
// relationships. The service owns the write ordering and the read-side
// context assembly.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/charmbracelet/log"

	"github.com/recallkit/recallkit-go/pkg/embedder"
	openaiembed "github.com/recallkit/recallkit-go/pkg/embedder/openai"
	qwenembed "github.com/recallkit/recallkit-go/pkg/embedder/qwen"
	"github.com/recallkit/recallkit-go/pkg/graph"
	graphneo4j "github.com/recallkit/recallkit-go/pkg/graph/neo4j"
	graphsqlite "github.com/recallkit/recallkit-go/pkg/graph/sqlite"
	"github.com/recallkit/recallkit-go/pkg/history"
	historymysql "github.com/recallkit/recallkit-go/pkg/history/mysql"
	historypostgres "github.com/recallkit/recallkit-go/pkg/history/postgres"
	historysqlite "github.com/recallkit/recallkit-go/pkg/history/sqlite"
	"github.com/recallkit/recallkit-go/pkg/reranker"
	rerankbge "github.com/recallkit/recallkit-go/pkg/reranker/bge"
	rerankcohere "github.com/recallkit/recallkit-go/pkg/reranker/cohere"
	"github.com/recallkit/recallkit-go/pkg/vector"
	"github.com/recallkit/recallkit-go/pkg/vector/flat"
)

// Service is the memory orchestrator.
//
// All methods are safe for concurrent use as long as the injected stores
// are.
type Service struct {
	config   *Config
	vector   vector.Store
	graph    graph.Store
	history  history.Store
	embedder embedder.Provider
	reranker reranker.Provider
	policy   *graph.RelationPolicy
	node     *snowflake.Node
	logger   *log.Logger

	reconcileStop chan struct{}
}

// Dependencies bundles the stores and providers a Service runs on.
// Reranker and Logger are optional.
type Dependencies struct {
	Vector   vector.Store
	Graph    graph.Store
	History  history.Store
	Embedder embedder.Provider
	Reranker reranker.Provider
	Logger   *log.Logger
}

// New creates a Service from explicitly constructed dependencies.
func New(cfg *Config, deps Dependencies) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Vector == nil || deps.Graph == nil || deps.History == nil || deps.Embedder == nil {
		return nil, NewMemoryError("New", ErrInvalidConfig)
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.WithPrefix("recallkit")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewMemoryError("New", err)
	}

	return &Service{
		config:   cfg,
		vector:   deps.Vector,
		graph:    deps.Graph,
		history:  deps.History,
		embedder: deps.Embedder,
		reranker: deps.Reranker,
		policy:   relationPolicy(cfg),
		node:     node,
		logger:   logger,
	}, nil
}

// NewFromConfig creates a Service, constructing every store and provider
// from the configuration.
func NewFromConfig(ctx context.Context, cfg *Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.WithPrefix("recallkit")

	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, NewMemoryError("NewFromConfig", err)
	}

	rer, err := newReranker(cfg)
	if err != nil {
		return nil, NewMemoryError("NewFromConfig", err)
	}

	vec, err := flat.NewStore(&flat.Config{
		IndexPath:  cfg.Vector.IndexPath,
		Dimensions: cfg.Vector.Dimensions,
		Logger:     logger.WithPrefix("vector"),
	})
	if err != nil {
		return nil, NewMemoryError("NewFromConfig", err)
	}

	grph, err := newGraphStore(ctx, cfg, logger)
	if err != nil {
		return nil, NewMemoryError("NewFromConfig", err)
	}

	hist, err := newHistoryStore(cfg)
	if err != nil {
		return nil, NewMemoryError("NewFromConfig", err)
	}

	return New(cfg, Dependencies{
		Vector:   vec,
		Graph:    grph,
		History:  hist,
		Embedder: emb,
		Reranker: rer,
		Logger:   logger,
	})
}

func newEmbedder(cfg *Config) (embedder.Provider, error) {
	switch cfg.Embedder.Provider {
	case "openai":
		return openaiembed.NewClient(&openaiembed.Config{
			APIKey:     cfg.Embedder.APIKey,
			Model:      cfg.Embedder.Model,
			BaseURL:    cfg.Embedder.BaseURL,
			Dimensions: cfg.Embedder.Dimensions,
		})
	case "qwen":
		return qwenembed.NewClient(&qwenembed.Config{
			APIKey:     cfg.Embedder.APIKey,
			Model:      cfg.Embedder.Model,
			BaseURL:    cfg.Embedder.BaseURL,
			Dimensions: cfg.Embedder.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", cfg.Embedder.Provider)
	}
}

func newReranker(cfg *Config) (reranker.Provider, error) {
	if !cfg.Reranker.Enabled {
		return nil, nil
	}
	switch cfg.Reranker.Provider {
	case "cohere":
		return rerankcohere.NewClient(&rerankcohere.Config{
			APIKey:  cfg.Reranker.APIKey,
			Model:   cfg.Reranker.Model,
			BaseURL: cfg.Reranker.BaseURL,
		})
	case "bge":
		return rerankbge.NewClient(&rerankbge.Config{
			BaseURL: cfg.Reranker.BaseURL,
			APIKey:  cfg.Reranker.APIKey,
			Model:   cfg.Reranker.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported reranker provider: %s", cfg.Reranker.Provider)
	}
}

func newGraphStore(ctx context.Context, cfg *Config, logger *log.Logger) (graph.Store, error) {
	policy := relationPolicy(cfg)
	switch cfg.Graph.Provider {
	case "neo4j":
		return graphneo4j.NewClient(ctx, &graphneo4j.Config{
			URI:      cfg.Graph.URI,
			User:     cfg.Graph.User,
			Password: cfg.Graph.Password,
			Policy:   policy,
			Logger:   logger.WithPrefix("graph"),
		})
	case "sqlite":
		return graphsqlite.NewClient(&graphsqlite.Config{
			DBPath: cfg.Graph.DBPath,
			Policy: policy,
			Logger: logger.WithPrefix("graph"),
		})
	default:
		return nil, fmt.Errorf("unsupported graph provider: %s", cfg.Graph.Provider)
	}
}

func newHistoryStore(cfg *Config) (history.Store, error) {
	switch cfg.History.Provider {
	case "mysql":
		return historymysql.NewClient(&historymysql.Config{
			Host:     cfg.History.Host,
			Port:     cfg.History.Port,
			User:     cfg.History.User,
			Password: cfg.History.Password,
			DBName:   cfg.History.Database,
		})
	case "postgres":
		return historypostgres.NewClient(&historypostgres.Config{
			Host:     cfg.History.Host,
			Port:     cfg.History.Port,
			User:     cfg.History.User,
			Password: cfg.History.Password,
			DBName:   cfg.History.Database,
			SSLMode:  cfg.History.SSLMode,
		})
	case "sqlite":
		return historysqlite.NewClient(&historysqlite.Config{
			DBPath: cfg.History.DBPath,
		})
	default:
		return nil, fmt.Errorf("unsupported history provider: %s", cfg.History.Provider)
	}
}

func relationPolicy(cfg *Config) *graph.RelationPolicy {
	return &graph.RelationPolicy{
		MinSimilarity:           cfg.Retrieval.MinSimilarity,
		DedupCutoff:             cfg.Retrieval.DedupCutoff,
		CrossConversationMargin: cfg.Retrieval.CrossConversationMargin,
		CrossConversationFloor:  cfg.Retrieval.CrossConversationFloor,
		MaxPathDepth:            cfg.Retrieval.MaxPathDepth,
	}
}

// SaveTurn stores one conversation turn across all stores and returns its
// timestamp.
//
// When an existing memory is at least DedupCutoff similar to the new turn,
// nothing is written anywhere and the existing timestamp comes back. A
// turn addressed to a conversation that does not exist is demoted to a
// global memory rather than rejected.
//
// Store writes after embedding are best effort: individual store failures
// are logged and the remaining writes still happen, so a flaky store
// degrades recall instead of losing the turn everywhere.
func (s *Service) SaveTurn(ctx context.Context, userMessage, aiResponse string, opts ...Option) (string, error) {
	if strings.TrimSpace(userMessage) == "" && strings.TrimSpace(aiResponse) == "" {
		return "", NewMemoryError("SaveTurn", ErrInvalidInput)
	}

	o := s.applyOptions(opts)
	conversationID := o.conversationID
	if conversationID != GlobalConversation {
		if _, err := s.history.GetConversation(ctx, conversationID); err != nil {
			if errors.Is(err, history.ErrConversationNotFound) {
				s.logger.Warn("conversation not found, saving as global memory",
					"conversation_id", conversationID)
				conversationID = GlobalConversation
			} else {
				return "", NewMemoryError("SaveTurn", err)
			}
		}
	}

	text := s.truncate(FormatTurn(userMessage, aiResponse))
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", NewMemoryError("SaveTurn", err)
	}

	// Candidates are searched globally so cross-conversation relations can
	// form; the relation policy holds them to a stricter threshold.
	candidates, err := s.vector.Search(ctx, vec, s.config.Retrieval.CandidateK, GlobalConversation)
	if err != nil {
		s.logger.Warn("candidate search failed", "error", err)
		candidates = nil
	}

	// Duplicate detection considers only memories the new turn could be
	// confused with: same conversation or global.
	for _, cand := range candidates {
		if cand.ConversationID != conversationID && cand.ConversationID != GlobalConversation {
			continue
		}
		if s.policy.IsDuplicate(cand.Similarity) {
			s.logger.Info("duplicate turn, reusing existing memory",
				"timestamp", cand.Timestamp, "similarity", cand.Similarity)
			return cand.Timestamp, nil
		}
	}

	timestamp := generateTimestamp(s.node)

	if err := s.history.SaveMessage(ctx, &history.Message{
		ConversationID: conversationID,
		Timestamp:      timestamp,
		UserMessage:    userMessage,
		AIResponse:     aiResponse,
		TokensInput:    o.tokensInput,
		TokensOutput:   o.tokensOutput,
		Cost:           o.cost,
		Metadata:       o.metadata,
	}); err != nil {
		s.logger.Error("history write failed", "timestamp", timestamp, "error", err)
	}

	if err := s.vector.Add(ctx, vec, text, timestamp, conversationID); err != nil {
		s.logger.Error("vector write failed", "timestamp", timestamp, "error", err)
	}

	graphCandidates := make([]*graph.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		graphCandidates = append(graphCandidates, &graph.Candidate{
			Timestamp:      cand.Timestamp,
			ConversationID: cand.ConversationID,
			Similarity:     cand.Similarity,
		})
	}
	if _, err := s.graph.CreateWithRelations(ctx, userMessage, aiResponse, timestamp, conversationID, graphCandidates); err != nil {
		s.logger.Error("graph write failed", "timestamp", timestamp, "error", err)
	}

	return timestamp, nil
}

// GetContext assembles the memory context for a query.
//
// For conversation-scoped calls the recent history window is consulted
// first: when it already holds at least half the configured window of
// turns, that window is the context and no embedding, vector or graph call
// is made. Otherwise the query is embedded, similar memories are fetched
// from the vector store, the best hit is expanded through the graph, and
// the merged result is trimmed to the budget.
func (s *Service) GetContext(ctx context.Context, query string, opts ...Option) (*ContextResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, NewMemoryError("GetContext", ErrInvalidInput)
	}

	o := s.applyOptions(opts)

	var historyMems []*ContextMemory
	if o.conversationID != GlobalConversation {
		if _, err := s.history.GetConversation(ctx, o.conversationID); err != nil {
			return nil, historyError("GetContext", err)
		}

		messages, err := s.history.GetRecentMessages(ctx, o.conversationID, s.config.Conversation.WindowSize, true)
		if err != nil {
			s.logger.Warn("history window fetch failed", "conversation_id", o.conversationID, "error", err)
		}
		for _, msg := range messages {
			historyMems = append(historyMems, &ContextMemory{
				Timestamp:      msg.Timestamp,
				UserMessage:    msg.UserMessage,
				AIResponse:     msg.AIResponse,
				Similarity:     1.0,
				Source:         SourceHistory,
				ConversationID: msg.ConversationID,
			})
		}

		if s.config.Conversation.UseHistoryContext && len(historyMems) >= s.config.Conversation.WindowSize/2 {
			return &ContextResult{
				Context:  formatContext(historyMems),
				Memories: historyMems,
			}, nil
		}
	}

	vectorMems, graphMems := s.searchSemantic(ctx, query, o)

	merged := mergeMemories(historyMems, vectorMems, graphMems)
	if len(merged) == 0 {
		merged = s.recentFallback(ctx, o)
	}
	merged = s.trimToBudget(ctx, query, merged, o.maxMemories)

	return &ContextResult{
		Context:  formatContext(merged),
		Memories: merged,
	}, nil
}

// searchSemantic embeds the query, searches the vector store and expands
// the best hit through the graph. Failures degrade to empty results.
func (s *Service) searchSemantic(ctx context.Context, query string, o *callOptions) (vectorMems, graphMems []*ContextMemory) {
	vec, err := s.embedder.Embed(ctx, s.truncate(query))
	if err != nil {
		s.logger.Warn("query embedding failed", "error", err)
		return nil, nil
	}

	hits, err := s.vector.Search(ctx, vec, o.maxMemories, o.conversationID)
	if err != nil {
		s.logger.Warn("vector search failed", "error", err)
		return nil, nil
	}

	for _, hit := range hits {
		if hit.Similarity < s.config.Retrieval.MinSimilarity {
			continue
		}
		userMsg, aiResp := SplitTurn(hit.Text)
		vectorMems = append(vectorMems, &ContextMemory{
			Timestamp:      hit.Timestamp,
			UserMessage:    userMsg,
			AIResponse:     aiResp,
			Similarity:     hit.Similarity,
			Source:         SourceVector,
			ConversationID: hit.ConversationID,
		})
	}
	if len(vectorMems) == 0 {
		return nil, nil
	}

	// Scoped reads still take cross-conversation neighbors: the stricter
	// linking threshold already vetted them, and same-conversation hits
	// rank first.
	related, err := s.graph.GetRelated(ctx, vectorMems[0].Timestamp, &graph.RelatedOptions{
		Depth:                    s.config.Retrieval.GraphDepth,
		MinSimilarity:            s.config.Retrieval.MinSimilarity,
		Limit:                    o.maxMemories,
		ConversationID:           o.conversationID,
		IncludeCrossConversation: true,
	})
	if err != nil {
		s.logger.Warn("graph expansion failed", "timestamp", vectorMems[0].Timestamp, "error", err)
		return vectorMems, nil
	}
	for _, mem := range related {
		graphMems = append(graphMems, s.contextMemoryFromGraph(ctx, mem, SourceGraph))
	}
	return vectorMems, graphMems
}

// recentFallback returns the newest memories when nothing else matched.
func (s *Service) recentFallback(ctx context.Context, o *callOptions) []*ContextMemory {
	recent, err := s.graph.GetRecent(ctx, o.conversationID, o.maxMemories)
	if err != nil {
		s.logger.Warn("recency fallback failed", "error", err)
		return nil
	}
	memories := make([]*ContextMemory, 0, len(recent))
	for _, mem := range recent {
		cm := s.contextMemoryFromGraph(ctx, mem, SourceRecent)
		cm.Similarity = 1.0
		memories = append(memories, cm)
	}
	return memories
}

// contextMemoryFromGraph converts a graph node to a context entry,
// upgrading its previews to the full text when the history store has it.
func (s *Service) contextMemoryFromGraph(ctx context.Context, mem *graph.Memory, source string) *ContextMemory {
	cm := &ContextMemory{
		Timestamp:      mem.Timestamp,
		UserMessage:    mem.UserMessage,
		AIResponse:     mem.AIResponse,
		Similarity:     mem.Similarity,
		Source:         source,
		ConversationID: mem.ConversationID,
	}
	if msg, err := s.history.GetMessageByTimestamp(ctx, mem.Timestamp); err == nil {
		cm.UserMessage = msg.UserMessage
		cm.AIResponse = msg.AIResponse
	}
	return cm
}

// SearchMemories finds memories matching a keyword. When the keyword scan
// comes back empty the query falls through to semantic search so that
// paraphrases still find their memories.
func (s *Service) SearchMemories(ctx context.Context, keyword string, opts ...Option) ([]*Memory, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, NewMemoryError("SearchMemories", ErrInvalidInput)
	}

	o := s.applyOptions(opts)

	found, err := s.graph.SearchByKeyword(ctx, keyword, o.conversationID, o.maxMemories)
	if err != nil {
		return nil, storageError("SearchMemories", err)
	}

	memories := make([]*Memory, 0, len(found))
	for _, mem := range found {
		memories = append(memories, s.memoryFromGraph(ctx, mem))
	}
	if len(memories) > 0 {
		return memories, nil
	}

	return s.searchSemanticMemories(ctx, keyword, o)
}

// searchSemanticMemories is the vector-based fallback of SearchMemories.
func (s *Service) searchSemanticMemories(ctx context.Context, query string, o *callOptions) ([]*Memory, error) {
	vec, err := s.embedder.Embed(ctx, s.truncate(query))
	if err != nil {
		return nil, NewMemoryError("SearchMemories", err)
	}

	hits, err := s.vector.Search(ctx, vec, o.maxMemories, o.conversationID)
	if err != nil {
		return nil, NewMemoryError("SearchMemories", err)
	}

	var memories []*Memory
	for _, hit := range hits {
		if hit.Similarity < s.config.Retrieval.MinSimilarity {
			continue
		}
		userMsg, aiResp := SplitTurn(hit.Text)
		mem := &Memory{
			Timestamp:      hit.Timestamp,
			UserMessage:    userMsg,
			AIResponse:     aiResp,
			ConversationID: hit.ConversationID,
			Similarity:     hit.Similarity,
		}
		if node, err := s.graph.GetByTimestamp(ctx, hit.Timestamp); err == nil {
			mem.Topic = node.Topic
		}
		memories = append(memories, mem)
	}
	return memories, nil
}

// GetMemoryByTimestamp returns one memory with its full text and topic.
func (s *Service) GetMemoryByTimestamp(ctx context.Context, timestamp string) (*Memory, error) {
	msg, histErr := s.history.GetMessageByTimestamp(ctx, timestamp)
	node, graphErr := s.graph.GetByTimestamp(ctx, timestamp)
	if histErr != nil && graphErr != nil {
		return nil, NewMemoryError("GetMemoryByTimestamp", ErrNotFound)
	}

	mem := &Memory{Timestamp: timestamp}
	if msg != nil {
		mem.UserMessage = msg.UserMessage
		mem.AIResponse = msg.AIResponse
		mem.ConversationID = msg.ConversationID
	}
	if node != nil {
		mem.Topic = node.Topic
		if msg == nil {
			mem.UserMessage = node.UserMessage
			mem.AIResponse = node.AIResponse
			mem.ConversationID = node.ConversationID
		}
	}
	return mem, nil
}

// memoryFromGraph converts a graph node to a Memory, upgrading previews to
// the full text when the history store has it.
func (s *Service) memoryFromGraph(ctx context.Context, mem *graph.Memory) *Memory {
	m := &Memory{
		Timestamp:      mem.Timestamp,
		UserMessage:    mem.UserMessage,
		AIResponse:     mem.AIResponse,
		Topic:          mem.Topic,
		ConversationID: mem.ConversationID,
		Similarity:     mem.Similarity,
	}
	if msg, err := s.history.GetMessageByTimestamp(ctx, mem.Timestamp); err == nil {
		m.UserMessage = msg.UserMessage
		m.AIResponse = msg.AIResponse
	}
	return m
}

// BrowseMemories pages through stored memories in insertion order. It
// returns the page plus the total number of matching memories.
func (s *Service) BrowseMemories(ctx context.Context, offset, limit int, opts ...Option) ([]*Memory, int, error) {
	o := s.applyOptions(opts)
	if limit <= 0 || limit > s.config.Retrieval.MaxPageSize {
		limit = s.config.Retrieval.MaxPageSize
	}

	page, total, err := s.vector.Page(ctx, offset, limit, o.conversationID)
	if err != nil {
		return nil, 0, storageError("BrowseMemories", err)
	}

	memories := make([]*Memory, 0, len(page))
	for _, rec := range page {
		userMsg, aiResp := SplitTurn(rec.Text)
		mem := &Memory{
			Timestamp:      rec.Timestamp,
			UserMessage:    userMsg,
			AIResponse:     aiResp,
			ConversationID: rec.ConversationID,
		}
		if node, err := s.graph.GetByTimestamp(ctx, rec.Timestamp); err == nil {
			mem.Topic = node.Topic
		}
		memories = append(memories, mem)
	}
	return memories, total, nil
}

// Statistics reports the state of the memory subsystem across stores.
// Inconsistency between the vector and graph stores is reported, never
// repaired.
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	vecStats, err := s.vector.Stats(ctx)
	if err != nil {
		return nil, storageError("Statistics", err)
	}
	graphStats, err := s.graph.Stats(ctx)
	if err != nil {
		return nil, storageError("Statistics", err)
	}

	stats := &Statistics{
		VectorCount:        vecStats.Count,
		VectorSizeMB:       vecStats.SizeMB,
		GraphNodeCount:     graphStats.NodeCount,
		GraphRelCount:      graphStats.RelationCount,
		EarliestMemory:     graphStats.EarliestTimestamp,
		LatestMemory:       graphStats.LatestTimestamp,
		ConversationCounts: graphStats.ConversationCounts,
		IsConsistent:       int64(vecStats.Count) == graphStats.NodeCount,
	}
	for _, tc := range graphStats.TopTopics {
		stats.TopTopics = append(stats.TopTopics, TopicCount{Topic: tc.Topic, Count: tc.Count})
	}
	return stats, nil
}

// CheckConsistency compares the vector and graph store record counts and
// returns ErrInconsistentStores when they diverge. It never repairs.
func (s *Service) CheckConsistency(ctx context.Context) error {
	stats, err := s.Statistics(ctx)
	if err != nil {
		return err
	}
	if !stats.IsConsistent {
		return NewMemoryError("CheckConsistency",
			fmt.Errorf("%w: vector=%d graph=%d", ErrInconsistentStores, stats.VectorCount, stats.GraphNodeCount))
	}
	return nil
}

// ClearAll removes every memory from the vector and graph stores. The
// history store is the system of record and keeps its conversation log.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.vector.Clear(ctx); err != nil {
		return storageError("ClearAll", err)
	}
	if err := s.graph.ClearAll(ctx); err != nil {
		return storageError("ClearAll", err)
	}
	return nil
}

// ClearConversation removes a conversation's memories from the vector and
// graph stores, leaving its history intact.
func (s *Service) ClearConversation(ctx context.Context, conversationID int64) error {
	if _, err := s.graph.ClearConversation(ctx, conversationID); err != nil {
		return storageError("ClearConversation", err)
	}
	if _, err := s.vector.RemoveConversation(ctx, conversationID); err != nil {
		return storageError("ClearConversation", err)
	}
	return nil
}

// ClearByKeyword removes every memory matching keyword from the vector and
// graph stores and returns how many were removed.
func (s *Service) ClearByKeyword(ctx context.Context, keyword string) (int, error) {
	if strings.TrimSpace(keyword) == "" {
		return 0, NewMemoryError("ClearByKeyword", ErrInvalidInput)
	}

	timestamps, err := s.graph.ClearByKeyword(ctx, keyword)
	if err != nil {
		return 0, storageError("ClearByKeyword", err)
	}
	if _, err := s.vector.RemoveByTimestamps(ctx, timestamps); err != nil {
		return 0, storageError("ClearByKeyword", err)
	}
	return len(timestamps), nil
}

// CreateConversation creates a new conversation in the history store.
func (s *Service) CreateConversation(ctx context.Context, title, description string, settings map[string]interface{}) (*history.Conversation, error) {
	conv, err := s.history.CreateConversation(ctx, title, description, settings)
	if err != nil {
		return nil, NewMemoryError("CreateConversation", err)
	}
	return conv, nil
}

// GetConversation returns a conversation by ID.
func (s *Service) GetConversation(ctx context.Context, id int64) (*history.Conversation, error) {
	conv, err := s.history.GetConversation(ctx, id)
	if err != nil {
		return nil, historyError("GetConversation", err)
	}
	return conv, nil
}

// ListConversations returns conversations newest first plus the total
// count.
func (s *Service) ListConversations(ctx context.Context, offset, limit int) ([]*history.Conversation, int, error) {
	if limit <= 0 || limit > s.config.Retrieval.MaxPageSize {
		limit = s.config.Retrieval.MaxPageSize
	}
	conversations, total, err := s.history.ListConversations(ctx, offset, limit)
	if err != nil {
		return nil, 0, NewMemoryError("ListConversations", err)
	}
	return conversations, total, nil
}

// UpdateConversation updates a conversation's title, description and
// settings.
func (s *Service) UpdateConversation(ctx context.Context, id int64, title, description string, settings map[string]interface{}) error {
	if err := s.history.UpdateConversation(ctx, id, title, description, settings); err != nil {
		return historyError("UpdateConversation", err)
	}
	return nil
}

// UpdateConversationFiles replaces a conversation's file references.
func (s *Service) UpdateConversationFiles(ctx context.Context, id int64, files []string) error {
	if err := s.history.UpdateConversationFiles(ctx, id, files); err != nil {
		return historyError("UpdateConversationFiles", err)
	}
	return nil
}

// DeleteConversation deletes a conversation with its history and all its
// derived memories.
func (s *Service) DeleteConversation(ctx context.Context, id int64) error {
	if err := s.history.DeleteConversation(ctx, id); err != nil {
		return historyError("DeleteConversation", err)
	}
	if _, err := s.graph.ClearConversation(ctx, id); err != nil {
		s.logger.Error("graph cleanup failed", "conversation_id", id, "error", err)
	}
	if _, err := s.vector.RemoveConversation(ctx, id); err != nil {
		s.logger.Error("vector cleanup failed", "conversation_id", id, "error", err)
	}
	return nil
}

// Close shuts down the reconciler and closes every store and provider.
func (s *Service) Close() error {
	s.StopReconciler()

	var firstErr error
	closers := []func() error{
		s.vector.Close,
		s.graph.Close,
		s.history.Close,
		s.embedder.Close,
	}
	if s.reranker != nil {
		closers = append(closers, s.reranker.Close)
	}
	for _, close := range closers {
		if err := close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return NewMemoryError("Close", firstErr)
	}
	return nil
}

// historyError translates the history store's not-found sentinel into the
// service-level ErrConversationNotFound so callers can match it without
// importing pkg/history.
func historyError(op string, err error) error {
	if errors.Is(err, history.ErrConversationNotFound) {
		return NewMemoryError(op, ErrConversationNotFound)
	}
	return NewMemoryError(op, err)
}

// storageError tags a failed store call with ErrStorageOperation while
// keeping the underlying error in the chain.
func storageError(op string, err error) error {
	return NewMemoryError(op, fmt.Errorf("%w: %w", ErrStorageOperation, err))
}

// truncate caps text at the configured embedding input length.
func (s *Service) truncate(text string) string {
	max := s.config.Embedder.MaxChars
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
