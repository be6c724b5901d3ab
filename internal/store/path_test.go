package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidDocumentPath(t *testing.T) {
	assert.True(t, ValidDocumentPath("groups/g1"))
	assert.True(t, ValidDocumentPath("groups/g1/answers/p1_0"))
	assert.False(t, ValidDocumentPath("groups"))
	assert.False(t, ValidDocumentPath("groups/g1/answers"))
	assert.False(t, ValidDocumentPath(""))
}

func TestValidCollectionPath(t *testing.T) {
	assert.True(t, ValidCollectionPath("groups"))
	assert.True(t, ValidCollectionPath("groups/g1/players"))
	assert.False(t, ValidCollectionPath("groups/g1"))
	assert.False(t, ValidCollectionPath(""))
}

func TestParentCollectionAndDocumentID(t *testing.T) {
	assert.Equal(t, "groups/g1/players", ParentCollection("groups/g1/players/p1"))
	assert.Equal(t, "groups", ParentCollection("groups/g1"))
	assert.Equal(t, "p1", DocumentID("groups/g1/players/p1"))
	assert.Equal(t, "g1", DocumentID("groups/g1"))
}

func TestEqualValueAcrossJSONSkew(t *testing.T) {
	assert.True(t, EqualValue(float64(3), 3))
	assert.True(t, EqualValue(int64(3), 3))
	assert.True(t, EqualValue("a", "a"))
	assert.False(t, EqualValue("3", 3))
	assert.False(t, EqualValue(nil, 3))
}
