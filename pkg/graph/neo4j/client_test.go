package neo4j

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathExistsQueryUsesExistsSubquery(t *testing.T) {
	query := pathExistsQuery(10)

	assert.Contains(t, query, "EXISTS {")
	assert.Contains(t, query, "[:SIMILAR_TO*1..10]")
	// The exists(pattern) function form was removed in Neo4j 5; generating
	// it would fail every path check and silently skip relation creation.
	assert.NotContains(t, query, "EXISTS((")
}

func TestStatsQueriesCountIndependently(t *testing.T) {
	// Counting relationships in the same query as a node MATCH multiplies
	// rows, so the relationship count must not share a query with nodes.
	assert.NotContains(t, statsNodeQuery, "SIMILAR_TO")
	assert.NotContains(t, statsRelQuery, "OPTIONAL MATCH")
	assert.Contains(t, statsRelQuery, "count(r)")
	assert.NotContains(t, statsRelQuery, "(m:Memory)")
}
