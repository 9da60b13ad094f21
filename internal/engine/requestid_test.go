package engine

import (
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_Version(t *testing.T) {
	id := UUIDv7Generator{}.Generate()

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[0-9a-f]{4}-[0-9a-f]{12}$`, id)
}

func TestUUIDv7Generator_UniqueAndSortable(t *testing.T) {
	var gen UUIDv7Generator
	ids := make([]string, 500)
	seen := make(map[string]bool, len(ids))
	for i := range ids {
		ids[i] = gen.Generate()
		require.False(t, seen[ids[i]], "id %s issued twice", ids[i])
		seen[ids[i]] = true
	}
	assert.True(t, sort.StringsAreSorted(ids), "ids issued later sort later")
}
