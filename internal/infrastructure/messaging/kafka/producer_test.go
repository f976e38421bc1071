package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// mockKafkaWriter
type mockKafkaWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	closeFunc func() error
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		return m.writeFunc(ctx, msgs...)
	}
	return nil
}

func (m *mockKafkaWriter) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func newTestProducer(w WriterInterface) *Producer {
	return newProducer(w, ProducerConfig{Brokers: []string{"localhost:9092"}, MaxMessageBytes: 64}, nil)
}

func newTestProducerMessage(topic, key, value string) *ProducerMessage {
	return &ProducerMessage{Topic: topic, Key: []byte(key), Value: []byte(value)}
}

func TestValidateProducerConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProducerConfig
		wantErr bool
	}{
		{"valid", ProducerConfig{Brokers: []string{"b:9092"}}, false},
		{"no brokers", ProducerConfig{}, true},
		{"negative retries", ProducerConfig{Brokers: []string{"b:9092"}, MaxRetries: -1}, true},
		{"unknown sasl", ProducerConfig{Brokers: []string{"b:9092"}, Security: SecurityConfig{SASLEnabled: true, SASLMechanism: "GSSAPI", SASLUsername: "u", SASLPassword: "p"}}, true},
		{"sasl without password", ProducerConfig{Brokers: []string{"b:9092"}, Security: SecurityConfig{SASLEnabled: true, SASLMechanism: "PLAIN", SASLUsername: "u"}}, true},
		{"tls without cert", ProducerConfig{Brokers: []string{"b:9092"}, Security: SecurityConfig{TLSEnabled: true}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProducerConfig(tt.cfg)
			if tt.wantErr {
				assert.True(t, pkgerrors.IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPublish_Success(t *testing.T) {
	var captured []kafka.Message
	p := newTestProducer(&mockKafkaWriter{
		writeFunc: func(ctx context.Context, msgs ...kafka.Message) error {
			captured = msgs
			return nil
		},
	})
	msg := newTestProducerMessage("test", "k", "v")
	msg.Headers = map[string]string{"h": "1"}

	require.NoError(t, p.Publish(context.Background(), msg))
	require.Len(t, captured, 1)
	assert.Equal(t, "test", captured[0].Topic)
	assert.Equal(t, "k", string(captured[0].Key))
	assert.Equal(t, []kafka.Header{{Key: "h", Value: []byte("1")}}, captured[0].Headers)
	assert.False(t, captured[0].Time.IsZero())
	assert.Equal(t, int64(1), p.Sent())
}

func TestPublish_Validation(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{})
	ctx := context.Background()

	assert.Error(t, p.Publish(ctx, newTestProducerMessage("", "k", "v")))
	assert.Error(t, p.Publish(ctx, newTestProducerMessage("t", "k", "")))
	assert.Error(t, p.Publish(ctx, newTestProducerMessage("t", "k", string(make([]byte, 65)))))
	assert.Zero(t, p.Sent())
}

func TestPublish_Failure(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{
		writeFunc: func(ctx context.Context, msgs ...kafka.Message) error {
			return errors.New("write failed")
		},
	})
	err := p.Publish(context.Background(), newTestProducerMessage("test", "k", "v"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMessageQueue))
	assert.Equal(t, int64(1), p.Failed())
}

func TestPublishBatch(t *testing.T) {
	tests := []struct {
		name          string
		writeErr      error
		wantSucceeded int
		wantFailed    int
		wantIndex     int
	}{
		{"all ok", nil, 2, 0, 0},
		{"partial", kafka.WriteErrors{nil, errors.New("fail")}, 1, 1, 1},
		{"whole batch", errors.New("broker down"), 0, 2, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProducer(&mockKafkaWriter{
				writeFunc: func(ctx context.Context, msgs ...kafka.Message) error { return tt.writeErr },
			})
			res, err := p.PublishBatch(context.Background(), []*ProducerMessage{
				newTestProducerMessage("test", "1", "1"),
				newTestProducerMessage("test", "2", "2"),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantSucceeded, res.Succeeded)
			assert.Equal(t, tt.wantFailed, res.Failed)
			if tt.wantFailed > 0 {
				assert.Equal(t, tt.wantIndex, res.Errors[0].Index)
			}
		})
	}
}

func TestProducerClose(t *testing.T) {
	closed := 0
	p := newTestProducer(&mockKafkaWriter{
		closeFunc: func() error {
			closed++
			return nil
		},
	})
	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
	assert.Equal(t, 1, closed)
	assert.Equal(t, ErrProducerClosed, p.Publish(context.Background(), newTestProducerMessage("t", "k", "v")))
}

//Personal.AI order the ending
