package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	SetMetricsRegisterer(prometheus.NewRegistry())
}

type funcHandler struct {
	topic string
	fn    func(context.Context, []byte) error
}

func (h funcHandler) Topic() string                              { return h.topic }
func (h funcHandler) Handle(ctx context.Context, b []byte) error { return h.fn(ctx, b) }

func TestEncode(t *testing.T) {
	b, err := encode([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encode(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))

	_, err = encode(func() {})
	assert.Error(t, err)
}

func TestNewRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
	_, err = NewConsumer(nil)
	assert.Error(t, err)
}

func TestHandleRetriesUntilSuccess(t *testing.T) {
	c, err := NewConsumer(nil, WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(3, time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)

	var calls int32
	h := funcHandler{topic: "t", fn: func(context.Context, []byte) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}}
	require.NoError(t, c.handle(h, kafka.Message{Topic: "t"}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHandlePermanentAndPanic(t *testing.T) {
	c, err := NewConsumer(nil, WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(5, time.Millisecond, time.Millisecond))
	require.NoError(t, err)

	var calls int32
	bad := errors.New("bad payload")
	h := funcHandler{topic: "t", fn: func(context.Context, []byte) error {
		atomic.AddInt32(&calls, 1)
		return Permanent(bad)
	}}
	assert.ErrorIs(t, c.handle(h, kafka.Message{}), bad)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	p := funcHandler{topic: "t", fn: func(context.Context, []byte) error { panic("boom") }}
	assert.ErrorContains(t, c.handle(p, kafka.Message{}), "panic in handler")
}

func TestPartitionLockIsStable(t *testing.T) {
	c, err := NewConsumer(nil, WithConsumerBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)
	assert.Same(t, c.partitionLock("t", 1), c.partitionLock("t", 1))
	assert.NotSame(t, c.partitionLock("t", 1), c.partitionLock("t", 2))
}

func TestProcessCountsDropWithoutDLQ(t *testing.T) {
	c, err := NewConsumer(nil, WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(1, time.Millisecond, time.Millisecond))
	require.NoError(t, err)
	c.RegisterHandler(funcHandler{topic: "drop-topic", fn: func(context.Context, []byte) error {
		return Permanent(errors.New("bad payload"))
	}})

	before := testutil.ToFloat64(consumerDropped.WithLabelValues("drop-topic"))
	c.process(kafka.Message{Topic: "drop-topic", Partition: 0, Offset: 7})
	assert.Equal(t, before+1, testutil.ToFloat64(consumerDropped.WithLabelValues("drop-topic")))
}
