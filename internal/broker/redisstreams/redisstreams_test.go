package redisstreams

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"marketpipeline/internal/broker"
)

func newMockBroker(t *testing.T) (*Broker, redismock.ClientMock) {
	t.Helper()
	rdb, mock := redismock.NewClientMock()
	return New(rdb, "test-consumer"), mock
}

func TestPublishAppendsToBoundStream(t *testing.T) {
	b, mock := newMockBroker(t)
	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: streamKey(broker.TopicOrderbook, broker.RoutingKeyOrderbookUpdates),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": []byte("frame")},
	}).SetVal("1-0")

	err := b.Publish(context.Background(), broker.TopicOrderbook, broker.RoutingKeyOrderbookUpdates, []byte("frame"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeRejectsUnknownQueue(t *testing.T) {
	b, _ := newMockBroker(t)
	err := b.Consume(context.Background(), "not_a_real_queue", func(ctx context.Context, d broker.Delivery) error {
		return nil
	})
	require.Error(t, err)
}
