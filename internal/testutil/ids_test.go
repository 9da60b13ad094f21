package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedRequestIDGenerator_Sequence(t *testing.T) {
	gen := NewFixedRequestIDGenerator("req")

	assert.Equal(t, "req-1", gen.Generate())
	assert.Equal(t, "req-2", gen.Generate())
}

func TestFixedRequestIDGenerator_EmptyPrefixDefault(t *testing.T) {
	gen := NewFixedRequestIDGenerator("")
	assert.Equal(t, "test-request-1", gen.Generate())
}

func TestArticleType_Shape(t *testing.T) {
	ct := ArticleType()
	assert.Len(t, ct.FieldSets(), 4)
	assert.Len(t, ct.Mappings, 4)
	assert.True(t, ct.Root.Children[1].HasNestedSimpleChild())
	assert.False(t, FlatSectionsType().Root.Children[0].HasNestedSimpleChild())
}
