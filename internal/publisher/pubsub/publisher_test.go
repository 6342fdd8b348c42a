package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishWithoutPublisher(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "books", map[string]int{"id": 84})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestDialRequiresProjectAndTopic(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), "", "books")
	assert.Error(t, err)
	_, err = Dial(context.Background(), "project", "")
	assert.Error(t, err)
}

func TestCloseWithoutClient(t *testing.T) {
	t.Parallel()

	assert.NoError(t, New(nil).Close())
}
