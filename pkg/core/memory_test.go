package core

import (
	"context"
	"errors"
	"hash/fnv"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	graphsqlite "github.com/recallkit/recallkit-go/pkg/graph/sqlite"
	historysqlite "github.com/recallkit/recallkit-go/pkg/history/sqlite"
	"github.com/recallkit/recallkit-go/pkg/reranker"
	"github.com/recallkit/recallkit-go/pkg/vector/flat"
)

const testDims = 8

// fakeEmbedder returns deterministic vectors: identical texts map to
// identical vectors, distinct texts to widely separated ones. Tests that
// need controlled similarities pin exact vectors per text.
type fakeEmbedder struct {
	calls int
	fixed map[string][]float32
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{fixed: make(map[string][]float32)}
}

func (f *fakeEmbedder) pin(text string, vec []float32) {
	fitted := make([]float32, testDims)
	copy(fitted, vec)
	f.fixed[text] = fitted
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if vec, ok := f.fixed[text]; ok {
		return vec, nil
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	vec := make([]float32, testDims)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(seed%1000) / 50
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (f *fakeEmbedder) Dimensions() int { return testDims }
func (f *fakeEmbedder) Close() error    { return nil }

type failingReranker struct{}

func (failingReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]*reranker.Result, error) {
	return nil, errors.New("reranker unavailable")
}
func (failingReranker) Close() error { return nil }

func newTestService(t *testing.T, mutate func(*Config)) (*Service, *fakeEmbedder) {
	t.Helper()
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Embedder.Dimensions = testDims
	cfg.Vector.Dimensions = testDims
	cfg.Vector.IndexPath = filepath.Join(dir, "index.bin")
	cfg.Graph.DBPath = filepath.Join(dir, "graph.db")
	cfg.History.DBPath = filepath.Join(dir, "history.db")
	if mutate != nil {
		mutate(cfg)
	}

	vec, err := flat.NewStore(&flat.Config{
		IndexPath:  cfg.Vector.IndexPath,
		Dimensions: cfg.Vector.Dimensions,
	})
	require.NoError(t, err)

	grph, err := graphsqlite.NewClient(&graphsqlite.Config{
		DBPath: cfg.Graph.DBPath,
		Policy: relationPolicy(cfg),
	})
	require.NoError(t, err)

	hist, err := historysqlite.NewClient(&historysqlite.Config{
		DBPath: cfg.History.DBPath,
	})
	require.NoError(t, err)

	emb := newFakeEmbedder()
	deps := Dependencies{
		Vector:   vec,
		Graph:    grph,
		History:  hist,
		Embedder: emb,
	}
	if cfg.Reranker.Enabled {
		deps.Reranker = failingReranker{}
	}

	service, err := New(cfg, deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = service.Close() })
	return service, emb
}

func TestSaveTurnAndGetMemoryByTimestamp(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	timestamp, err := service.SaveTurn(ctx,
		"I adopted a golden retriever named Biscuit",
		"Congratulations, golden retrievers are great dogs")
	require.NoError(t, err)
	require.NotEmpty(t, timestamp)

	mem, err := service.GetMemoryByTimestamp(ctx, timestamp)
	require.NoError(t, err)
	assert.Equal(t, "I adopted a golden retriever named Biscuit", mem.UserMessage)
	assert.Equal(t, "Congratulations, golden retrievers are great dogs", mem.AIResponse)
	assert.NotEmpty(t, mem.Topic)
	assert.Equal(t, GlobalConversation, mem.ConversationID)
}

func TestSaveTurnRejectsEmptyInput(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	_, err := service.SaveTurn(ctx, "  ", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSaveTurnDeduplicates(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	first, err := service.SaveTurn(ctx, "my cat is named Mochi", "Noted!")
	require.NoError(t, err)

	// The identical turn embeds to the identical vector: similarity 1.0,
	// nothing new is written.
	second, err := service.SaveTurn(ctx, "my cat is named Mochi", "Noted!")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stats, err := service.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.VectorCount)
	assert.Equal(t, int64(1), stats.GraphNodeCount)
}

func TestSaveTurnUnknownConversationDemotedToGlobal(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	timestamp, err := service.SaveTurn(ctx, "hello", "hi", WithConversation(999))
	require.NoError(t, err)

	mem, err := service.GetMemoryByTimestamp(ctx, timestamp)
	require.NoError(t, err)
	assert.Equal(t, GlobalConversation, mem.ConversationID)
}

func TestGetContextUnknownConversation(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	_, err := service.GetContext(ctx, "anything", WithConversation(999))
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestGetContextHistoryShortCircuit(t *testing.T) {
	ctx := context.Background()
	service, emb := newTestService(t, func(cfg *Config) {
		cfg.Conversation.WindowSize = 4
	})

	conv, err := service.CreateConversation(ctx, "chat", "", nil)
	require.NoError(t, err)

	turns := [][2]string{
		{"we leave on the 3rd", "Got it, departing on the 3rd."},
		{"flying into Tokyo Haneda", "Haneda is closer to the city than Narita."},
		{"then a week in Kyoto", "A week gives you time for day trips too."},
	}
	for _, turn := range turns {
		_, err := service.SaveTurn(ctx, turn[0], turn[1], WithConversation(conv.ID))
		require.NoError(t, err)
	}

	callsBefore := emb.calls
	result, err := service.GetContext(ctx, "where are we flying into?", WithConversation(conv.ID))
	require.NoError(t, err)

	// The window already holds enough turns: no embedding, vector or
	// graph call happened.
	assert.Equal(t, callsBefore, emb.calls)
	require.Len(t, result.Memories, 3)
	for _, mem := range result.Memories {
		assert.Equal(t, SourceHistory, mem.Source)
		assert.Equal(t, 1.0, mem.Similarity)
	}
	assert.Contains(t, result.Context, "Haneda")
}

func TestGetContextSemanticSearch(t *testing.T) {
	ctx := context.Background()
	service, emb := newTestService(t, nil)

	turnA := FormatTurn("tell me about dogs", "Dogs are loyal companions")
	turnB := FormatTurn("what do dogs eat", "Most dogs thrive on balanced kibble")
	turnC := FormatTurn("explain tax law", "Tax law varies by jurisdiction")
	emb.pin(turnA, []float32{1, 0.1, 0, 0})
	emb.pin(turnB, []float32{1, 0.2, 0, 0})
	emb.pin(turnC, []float32{5, 5, 5, 5})
	emb.pin("dog question", []float32{1, 0, 0, 0})

	_, err := service.SaveTurn(ctx, "tell me about dogs", "Dogs are loyal companions")
	require.NoError(t, err)
	_, err = service.SaveTurn(ctx, "what do dogs eat", "Most dogs thrive on balanced kibble")
	require.NoError(t, err)
	_, err = service.SaveTurn(ctx, "explain tax law", "Tax law varies by jurisdiction")
	require.NoError(t, err)

	result, err := service.GetContext(ctx, "dog question")
	require.NoError(t, err)

	require.Len(t, result.Memories, 2)
	assert.NotContains(t, result.Context, "tax law")
	// Chronological order regardless of similarity ranking.
	assert.Less(t, result.Memories[0].Timestamp, result.Memories[1].Timestamp)
}

func TestGetContextBudgetWithFailingReranker(t *testing.T) {
	ctx := context.Background()
	service, emb := newTestService(t, func(cfg *Config) {
		cfg.Retrieval.MaxMemories = 2
		cfg.Reranker.Enabled = true
	})

	texts := [][2]string{
		{"dogs part one", "first answer about dogs"},
		{"dogs part two", "second answer about dogs"},
		{"dogs part three", "third answer about dogs"},
	}
	vectors := [][]float32{
		{1, 0.10, 0, 0},
		{1, 0.20, 0, 0},
		{1, 0.30, 0, 0},
	}
	for i, turn := range texts {
		emb.pin(FormatTurn(turn[0], turn[1]), vectors[i])
		_, err := service.SaveTurn(ctx, turn[0], turn[1])
		require.NoError(t, err)
	}
	emb.pin("dogs", []float32{1, 0, 0, 0})

	// The reranker fails, so trimming degrades to the original order
	// instead of erroring.
	result, err := service.GetContext(ctx, "dogs")
	require.NoError(t, err)
	assert.Len(t, result.Memories, 2)
}

func TestSearchMemoriesKeyword(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	_, err := service.SaveTurn(ctx, "Biscuit chewed my headphone cable", "Puppies love cables")
	require.NoError(t, err)
	_, err = service.SaveTurn(ctx, "remind me about the dentist", "Appointment is on Friday")
	require.NoError(t, err)

	found, err := service.SearchMemories(ctx, "biscuit")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Biscuit chewed my headphone cable", found[0].UserMessage)
	assert.NotEmpty(t, found[0].Topic)
}

func TestSearchMemoriesSemanticFallback(t *testing.T) {
	ctx := context.Background()
	service, emb := newTestService(t, nil)

	turn := FormatTurn("Biscuit chewed my headphone cable", "Puppies love cables")
	emb.pin(turn, []float32{1, 0.1, 0, 0})
	emb.pin("puppy destruction", []float32{1, 0, 0, 0})

	_, err := service.SaveTurn(ctx, "Biscuit chewed my headphone cable", "Puppies love cables")
	require.NoError(t, err)

	// No keyword match, but the query embeds close to the stored turn.
	found, err := service.SearchMemories(ctx, "puppy destruction")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Biscuit chewed my headphone cable", found[0].UserMessage)
	assert.Greater(t, found[0].Similarity, 0.7)
}

func TestClearByKeyword(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	_, err := service.SaveTurn(ctx, "trains in Japan are punctual", "They famously are")
	require.NoError(t, err)
	_, err = service.SaveTurn(ctx, "pasta recipe please", "Start with good tomatoes")
	require.NoError(t, err)

	removed, err := service.ClearByKeyword(ctx, "trains")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	stats, err := service.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.VectorCount)
	assert.Equal(t, int64(1), stats.GraphNodeCount)
	assert.True(t, stats.IsConsistent)
}

func TestDeleteConversationRemovesDerivedMemories(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	conv, err := service.CreateConversation(ctx, "chat", "", nil)
	require.NoError(t, err)
	_, err = service.SaveTurn(ctx, "scoped turn", "scoped answer", WithConversation(conv.ID))
	require.NoError(t, err)
	_, err = service.SaveTurn(ctx, "global turn", "global answer")
	require.NoError(t, err)

	require.NoError(t, service.DeleteConversation(ctx, conv.ID))

	stats, err := service.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.VectorCount)
	assert.Equal(t, int64(1), stats.GraphNodeCount)

	_, err = service.GetConversation(ctx, conv.ID)
	assert.Error(t, err)
}

func TestStatisticsConsistency(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	_, err := service.SaveTurn(ctx, "a turn", "an answer")
	require.NoError(t, err)

	stats, err := service.Statistics(ctx)
	require.NoError(t, err)
	assert.True(t, stats.IsConsistent)
	require.NoError(t, service.CheckConsistency(ctx))

	// Drop the vector side only: divergence is reported, not repaired.
	require.NoError(t, service.vector.Clear(ctx))

	stats, err = service.Statistics(ctx)
	require.NoError(t, err)
	assert.False(t, stats.IsConsistent)
	assert.Equal(t, 0, stats.VectorCount)
	assert.Equal(t, int64(1), stats.GraphNodeCount)

	assert.ErrorIs(t, service.CheckConsistency(ctx), ErrInconsistentStores)
}

func TestBrowseMemories(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)

	conv, err := service.CreateConversation(ctx, "chat", "", nil)
	require.NoError(t, err)
	_, err = service.SaveTurn(ctx, "scoped turn", "scoped answer", WithConversation(conv.ID))
	require.NoError(t, err)
	_, err = service.SaveTurn(ctx, "global turn", "global answer")
	require.NoError(t, err)

	memories, total, err := service.BrowseMemories(ctx, 0, 10, WithConversation(conv.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, memories, 1)
	assert.Equal(t, "scoped turn", memories[0].UserMessage)
}

func TestAsyncServiceSaveAndSearch(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, nil)
	async := NewAsyncService(service)

	saved := <-async.SaveTurnAsync(ctx, "async turn about llamas", "Llamas are friendly")
	require.NoError(t, saved.Error)
	assert.NotEmpty(t, saved.Timestamp)

	found := <-async.SearchMemoriesAsync(ctx, "llamas")
	require.NoError(t, found.Error)
	assert.Len(t, found.Memories, 1)

	async.Wait()
}
