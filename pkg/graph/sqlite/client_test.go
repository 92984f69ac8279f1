package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recallkit-go/pkg/graph"
	"github.com/recallkit/recallkit-go/pkg/graph/sqlite"
)

func newTestClient(t *testing.T) *sqlite.Client {
	t.Helper()
	client, err := sqlite.NewClient(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "graph.db"),
		Policy: &graph.RelationPolicy{
			MinSimilarity:           0.7,
			DedupCutoff:             0.95,
			CrossConversationMargin: 0.1,
			CrossConversationFloor:  0.8,
			MaxPathDepth:            10,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	topic, err := client.CreateWithRelations(ctx,
		"Planning a trip to Kyoto next spring",
		"Kyoto in spring is beautiful, especially during cherry blossom season",
		"ts-1", 1, nil)
	require.NoError(t, err)
	assert.NotEqual(t, "uncategorized", topic)

	mem, err := client.GetByTimestamp(ctx, "ts-1")
	require.NoError(t, err)
	assert.Equal(t, "ts-1", mem.Timestamp)
	assert.Equal(t, int64(1), mem.ConversationID)
	assert.Equal(t, topic, mem.Topic)
}

func TestRelationThresholds(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.CreateWithRelations(ctx, "first memory about trains", "reply", "ts-1", 1, nil)
	require.NoError(t, err)
	_, err = client.CreateWithRelations(ctx, "other conversation memory", "reply", "ts-2", 2, nil)
	require.NoError(t, err)

	// Same conversation at 0.75 links; cross conversation at 0.75 does not
	// (effective threshold 0.8); a 0.96 candidate is a duplicate, not a
	// relation.
	_, err = client.CreateWithRelations(ctx, "new memory about trains", "reply", "ts-3", 1,
		[]*graph.Candidate{
			{Timestamp: "ts-1", ConversationID: 1, Similarity: 0.75},
			{Timestamp: "ts-2", ConversationID: 2, Similarity: 0.75},
		})
	require.NoError(t, err)

	related, err := client.GetRelated(ctx, "ts-3", &graph.RelatedOptions{Depth: 1, MinSimilarity: 0.0})
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, "ts-1", related[0].Timestamp)
	assert.InDelta(t, 0.75, related[0].Similarity, 1e-9)
}

func TestDuplicateCandidateNotLinked(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.CreateWithRelations(ctx, "original", "reply", "ts-1", 1, nil)
	require.NoError(t, err)

	_, err = client.CreateWithRelations(ctx, "near copy", "reply", "ts-2", 1,
		[]*graph.Candidate{{Timestamp: "ts-1", ConversationID: 1, Similarity: 0.97}})
	require.NoError(t, err)

	related, err := client.GetRelated(ctx, "ts-2", &graph.RelatedOptions{Depth: 2, MinSimilarity: 0.0})
	require.NoError(t, err)
	assert.Empty(t, related)
}

func TestExistingPathSkipsNewEdge(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.CreateWithRelations(ctx, "a", "r", "ts-1", 1, nil)
	require.NoError(t, err)
	_, err = client.CreateWithRelations(ctx, "b", "r", "ts-2", 1,
		[]*graph.Candidate{{Timestamp: "ts-1", ConversationID: 1, Similarity: 0.8}})
	require.NoError(t, err)

	// ts-3 links to ts-2; ts-1 is then reachable through ts-2, so the
	// direct ts-3 to ts-1 edge is skipped.
	_, err = client.CreateWithRelations(ctx, "c", "r", "ts-3", 1,
		[]*graph.Candidate{
			{Timestamp: "ts-2", ConversationID: 1, Similarity: 0.9},
			{Timestamp: "ts-1", ConversationID: 1, Similarity: 0.8},
		})
	require.NoError(t, err)

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.RelationCount)

	// ts-1 is still reached at depth 2 with the product of edge weights.
	related, err := client.GetRelated(ctx, "ts-3", &graph.RelatedOptions{Depth: 2, MinSimilarity: 0.0})
	require.NoError(t, err)
	require.Len(t, related, 2)
	assert.Equal(t, "ts-2", related[0].Timestamp)
	assert.Equal(t, "ts-1", related[1].Timestamp)
	assert.InDelta(t, 0.9*0.8, related[1].Similarity, 1e-9)
}

func TestGetRelatedMinSimilarity(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.CreateWithRelations(ctx, "a", "r", "ts-1", 1, nil)
	require.NoError(t, err)
	_, err = client.CreateWithRelations(ctx, "b", "r", "ts-2", 1,
		[]*graph.Candidate{{Timestamp: "ts-1", ConversationID: 1, Similarity: 0.72}})
	require.NoError(t, err)

	related, err := client.GetRelated(ctx, "ts-2", &graph.RelatedOptions{Depth: 2, MinSimilarity: 0.8})
	require.NoError(t, err)
	assert.Empty(t, related)
}

func TestGetRelatedConversationScope(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.CreateWithRelations(ctx, "a", "r", "ts-1", 1, nil)
	require.NoError(t, err)
	_, err = client.CreateWithRelations(ctx, "b", "r", "ts-2", 2,
		[]*graph.Candidate{{Timestamp: "ts-1", ConversationID: 1, Similarity: 0.85}})
	require.NoError(t, err)
	_, err = client.CreateWithRelations(ctx, "c", "r", "ts-3", 1,
		[]*graph.Candidate{{Timestamp: "ts-1", ConversationID: 1, Similarity: 0.8}})
	require.NoError(t, err)

	// Scoped without cross-conversation inclusion drops the other
	// conversation's memory entirely.
	related, err := client.GetRelated(ctx, "ts-1", &graph.RelatedOptions{
		Depth:          1,
		ConversationID: 1,
	})
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, "ts-3", related[0].Timestamp)

	// With inclusion the same-conversation memory still ranks first even
	// though the cross-conversation edge is stronger.
	related, err = client.GetRelated(ctx, "ts-1", &graph.RelatedOptions{
		Depth:                    1,
		ConversationID:           1,
		IncludeCrossConversation: true,
	})
	require.NoError(t, err)
	require.Len(t, related, 2)
	assert.Equal(t, "ts-3", related[0].Timestamp)
	assert.Equal(t, "ts-2", related[1].Timestamp)
}

func TestSearchByKeyword(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.CreateWithRelations(ctx, "Biscuit chewed my cable", "reply", "ts-1", 1, nil)
	require.NoError(t, err)
	_, err = client.CreateWithRelations(ctx, "weather tomorrow", "reply", "ts-2", 1, nil)
	require.NoError(t, err)

	found, err := client.SearchByKeyword(ctx, "biscuit", 0, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "ts-1", found[0].Timestamp)

	found, err = client.SearchByKeyword(ctx, "biscuit", 2, 10)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestGetRecent(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.CreateWithRelations(ctx, "a", "r", "ts-1", 1, nil)
	require.NoError(t, err)
	_, err = client.CreateWithRelations(ctx, "b", "r", "ts-2", 2, nil)
	require.NoError(t, err)
	_, err = client.CreateWithRelations(ctx, "c", "r", "ts-3", 1, nil)
	require.NoError(t, err)

	recent, err := client.GetRecent(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "ts-3", recent[0].Timestamp)
	assert.Equal(t, "ts-1", recent[1].Timestamp)
}

func TestClearConversation(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.CreateWithRelations(ctx, "a", "r", "ts-1", 1, nil)
	require.NoError(t, err)
	_, err = client.CreateWithRelations(ctx, "b", "r", "ts-2", 1,
		[]*graph.Candidate{{Timestamp: "ts-1", ConversationID: 1, Similarity: 0.8}})
	require.NoError(t, err)
	_, err = client.CreateWithRelations(ctx, "c", "r", "ts-3", 2, nil)
	require.NoError(t, err)

	removed, err := client.ClearConversation(ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ts-1", "ts-2"}, removed)

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.NodeCount)
	assert.Equal(t, int64(0), stats.RelationCount)
}

func TestClearByKeyword(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.CreateWithRelations(ctx, "trains in Japan", "reply", "ts-1", 1, nil)
	require.NoError(t, err)
	_, err = client.CreateWithRelations(ctx, "cooking pasta", "reply", "ts-2", 1, nil)
	require.NoError(t, err)

	removed, err := client.ClearByKeyword(ctx, "trains")
	require.NoError(t, err)
	assert.Equal(t, []string{"ts-1"}, removed)

	_, err = client.GetByTimestamp(ctx, "ts-1")
	assert.Error(t, err)
	_, err = client.GetByTimestamp(ctx, "ts-2")
	assert.NoError(t, err)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.CreateWithRelations(ctx, "trains and stations", "reply", "ts-1", 1, nil)
	require.NoError(t, err)
	_, err = client.CreateWithRelations(ctx, "more about trains", "reply", "ts-2", 2, nil)
	require.NoError(t, err)

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.NodeCount)
	assert.Equal(t, "ts-1", stats.EarliestTimestamp)
	assert.Equal(t, "ts-2", stats.LatestTimestamp)
	assert.Equal(t, int64(1), stats.ConversationCounts[1])
	assert.Equal(t, int64(1), stats.ConversationCounts[2])
	assert.NotEmpty(t, stats.TopTopics)
}
