package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	fsStore, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"fs":     fsStore,
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "main_cmd-main_abc", "graph.json", []byte(`{}`)))
			require.NoError(t, s.Put(ctx, "main_cmd-main_abc", "helper_util-str_def.png", []byte{1, 2}))
			require.NoError(t, s.Put(ctx, "other", "x.png", []byte{3}))

			got, err := s.Get(ctx, "main_cmd-main_abc", "graph.json")
			require.NoError(t, err)
			assert.Equal(t, `{}`, string(got))

			names, err := s.List(ctx, "main_cmd-main_abc")
			require.NoError(t, err)
			assert.Equal(t, []string{"graph.json", "helper_util-str_def.png"}, names)

			_, err = s.Get(ctx, "main_cmd-main_abc", "missing.png")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.Error(t, s.Put(ctx, "", "a", nil))
			assert.Error(t, s.Put(ctx, "a", " ", nil))
		})
	}
}

func TestFSStoreListMissingDir(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	names, err := s.List(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestObjectKeyStaysInsideDir(t *testing.T) {
	assert.Equal(t, "build/a.png", objectKey("build", "a.png"))
	assert.Equal(t, "build/etc/passwd", objectKey("build", "../../etc/passwd"))
}

func TestNewS3StoreValidates(t *testing.T) {
	_, err := NewS3Store(S3Config{})
	assert.Error(t, err)
	_, err = NewS3Store(S3Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)
	_, err = NewS3Store(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"})
	assert.Error(t, err)

	s, err := NewS3Store(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "codegraph"})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", s.region)
	assert.Equal(t, "image/png", contentType("n.PNG"))
}
