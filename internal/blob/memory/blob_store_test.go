package memory_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/devharvest/internal/blob/memory"
)

func TestPutObjectStoresContent(t *testing.T) {
	t.Parallel()

	s := memory.New()
	uri, err := s.PutObject(context.Background(), "profiles/alice/1.json", "application/json", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "memory://profiles/alice/1.json", uri)

	data, ok := s.Object("profiles/alice/1.json")
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(data))
	assert.Equal(t, 1, s.Len())
}

func TestPutObjectOverwrites(t *testing.T) {
	t.Parallel()

	s := memory.New()
	_, err := s.PutObject(context.Background(), "p", "", strings.NewReader("old"))
	require.NoError(t, err)
	_, err = s.PutObject(context.Background(), "p", "", strings.NewReader("new"))
	require.NoError(t, err)

	data, _ := s.Object("p")
	assert.Equal(t, "new", string(data))
	assert.Equal(t, 1, s.Len())
}
