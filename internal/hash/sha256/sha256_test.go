package sha256

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasher(t *testing.T) {
	t.Parallel()

	const page = "<html><body>site.test</body></html>"
	full, err := New().Hash([]byte(page))
	require.NoError(t, err)
	require.Len(t, full, 64)

	tests := []struct {
		name   string
		hasher *Hasher
		want   string
	}{
		{name: "full digest", hasher: New(), want: full},
		{name: "short digest", hasher: NewShort(12), want: full[:12]},
		{name: "oversized length keeps full digest", hasher: NewShort(100), want: full},
		{name: "zero length keeps full digest", hasher: &Hasher{}, want: full},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.hasher.Hash([]byte(page))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHasherKnownVector(t *testing.T) {
	t.Parallel()

	got, err := New().Hash(nil)
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", got)
}
