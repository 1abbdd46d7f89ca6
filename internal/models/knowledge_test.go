package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tree := &KnowledgeNode{
		ID:   "whatever",
		Name: "Biology",
		Children: []*KnowledgeNode{
			{ID: "cells", Name: "Cells", Children: []*KnowledgeNode{{Name: "Membrane"}, nil}},
			{ID: "cells", Name: "More cells"},
			{Name: "Blank"},
		},
	}

	tree.Normalize()

	assert.Equal(t, RootNodeID, tree.ID)
	require.Len(t, tree.Children, 3)
	assert.Equal(t, "cells", tree.Children[0].ID)
	require.Len(t, tree.Children[0].Children, 1)
	assert.Equal(t, "node-1-1", tree.Children[0].Children[0].ID)
	assert.Equal(t, "cells-2", tree.Children[1].ID)
	assert.Equal(t, "node-3", tree.Children[2].ID)
}

func TestFindAndMarkCompleted(t *testing.T) {
	tree := FallbackKnowledgeTree()

	assert.Same(t, tree, tree.Find(RootNodeID))
	require.NotNil(t, tree.Find("error-1"))
	assert.Nil(t, tree.Find("nope"))

	assert.True(t, tree.MarkCompleted("error-1"))
	assert.True(t, tree.Find("error-1").Completed)
	assert.False(t, tree.MarkCompleted("nope"))
}

func TestClone_IsDeep(t *testing.T) {
	tree := FallbackKnowledgeTree()
	copied := tree.Clone()

	copied.MarkCompleted("error-1")

	assert.False(t, tree.Find("error-1").Completed)
	assert.Equal(t, 2, copied.Count())
}

func TestFallbackKnowledgeTree(t *testing.T) {
	tree := FallbackKnowledgeTree()

	assert.Equal(t, "Study Material (Processing Error)", tree.Name)
	require.Len(t, tree.Children, 1)
	assert.Equal(t, "Processing Failed", tree.Children[0].Name)
	assert.Contains(t, tree.Children[0].Details, "too large or invalid")
}

func TestFormatClock(t *testing.T) {
	tests := map[int]string{
		3600: "60:00",
		3599: "59:59",
		65:   "1:05",
		0:    "0:00",
		-3:   "0:00",
	}
	for seconds, want := range tests {
		assert.Equal(t, want, FormatClock(seconds))
	}
}
