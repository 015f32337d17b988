package outbox

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestProducerReusesWriterPerTopic(t *testing.T) {
	producer := NewKafkaProducer([]string{"broker:9092"})

	first := producer.writerForTopic("plan_events")
	second := producer.writerForTopic("plan_events")
	other := producer.writerForTopic("reconcile_requests")

	require.Same(t, first, second)
	require.NotSame(t, first, other)
}

func TestProducerPartitionsByKey(t *testing.T) {
	producer := NewKafkaProducer([]string{"broker:9092"})

	writer := producer.writerForTopic("plan_events")
	require.IsType(t, &kafka.Hash{}, writer.Balancer)
	require.Equal(t, kafka.RequireAll, writer.RequiredAcks)
}

func TestProducerWriteEmptyBatchIsNoop(t *testing.T) {
	producer := NewKafkaProducer([]string{"broker:9092"})

	// No writer is created, so nothing dials the broker.
	require.NoError(t, producer.WriteMessages(context.Background(), "plan_events"))
	require.Empty(t, producer.writers)
}

func TestProducerCloseIsIdempotent(t *testing.T) {
	producer := NewKafkaProducer([]string{"broker:9092"})
	producer.writerForTopic("plan_events")

	require.NoError(t, producer.Close())
	require.NoError(t, producer.Close())
	require.Empty(t, producer.writers)
}
