package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	require.Error(t, err)
}

func TestPublishEncodesValues(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "gzip")

	require.NoError(t, p.Publish(context.Background(), "alerts", []byte("GARAN"), map[string]string{"symbol": "GARAN"}))
	require.NoError(t, p.Publish(context.Background(), "alerts", nil, "raw"))
	require.NoError(t, p.PublishMessage(context.Background(), "logs", []byte(`{"a":1}`)))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "alerts", w.msgs[0].Topic)
	assert.Equal(t, []byte("GARAN"), w.msgs[0].Key)
	assert.JSONEq(t, `{"symbol":"GARAN"}`, string(w.msgs[0].Value))
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Equal(t, "logs", w.msgs[2].Topic)
	assert.Nil(t, w.msgs[2].Key)
}

func TestPublishBatch(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "none")

	require.NoError(t, p.PublishBatch(context.Background(), "status", nil))
	assert.Empty(t, w.msgs)

	err := p.PublishBatch(context.Background(), "status", []Message{
		{Key: []byte("a"), Value: 1},
		{Key: []byte("b"), Value: "two"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "1", string(w.msgs[0].Value))
	assert.Equal(t, "two", string(w.msgs[1].Value))
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewProducerWithWriter(&fakeWriter{err: boom}, "gzip")

	err := p.Publish(context.Background(), "alerts", nil, "x")
	require.ErrorIs(t, err, boom)

	require.NoError(t, p.Close())
}
