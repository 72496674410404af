package uuid

import (
	"testing"

	googleuuid "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsTimeOrderedV7(t *testing.T) {
	t.Parallel()

	gen := New()
	seen := make(map[string]struct{}, 64)
	for range 64 {
		raw, err := gen.NewID()
		require.NoError(t, err)
		id, err := googleuuid.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, googleuuid.Version(7), id.Version())
		seen[raw] = struct{}{}
	}
	assert.Len(t, seen, 64)
}

func TestNewTaskIDIsNeverNil(t *testing.T) {
	t.Parallel()

	gen := New()
	first, second := gen.NewTaskID(), gen.NewTaskID()
	assert.NotEqual(t, googleuuid.Nil, first)
	assert.NotEqual(t, first, second)
}
