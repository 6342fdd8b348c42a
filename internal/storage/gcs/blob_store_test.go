package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "corpus"})
	assert.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{})
	assert.Error(t, err)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	s, err := New(client, Config{Bucket: "corpus", Prefix: "/gutenberg/raw/"})
	require.NoError(t, err)
	assert.Equal(t, "gutenberg/raw/84.txt", s.ObjectName("84.txt"))

	bare, err := New(client, Config{Bucket: "corpus"})
	require.NoError(t, err)
	assert.Equal(t, "84.txt", bare.ObjectName("/84.txt"))

	_, err = bare.PutObject(context.Background(), " ", "text/plain", nil)
	assert.Error(t, err)
}
