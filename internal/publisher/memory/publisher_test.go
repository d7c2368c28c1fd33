package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "catalog-runs", map[string]string{"run_id": "r1"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "catalog-alerts", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "catalog-runs", msgs[0].Topic)
	require.Equal(t, "catalog-alerts", msgs[1].Topic)

	msgs[0].Topic = "modified"
	require.Equal(t, "catalog-runs", pub.Messages()[0].Topic)
}

func TestPublisherEncodesJSON(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "catalog-runs", struct {
		RunID string `json:"run_id"`
	}{RunID: "r1"})
	require.NoError(t, err)
	require.JSONEq(t, `{"run_id":"r1"}`, string(pub.Messages()[0].Data))

	_, err = pub.Publish(context.Background(), "catalog-runs", make(chan int))
	require.Error(t, err)
	require.Len(t, pub.Messages(), 1)
}
