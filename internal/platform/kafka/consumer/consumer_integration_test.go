//go:build integration

package consumer_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"consent-ledger/internal/platform/kafka"
	"consent-ledger/internal/platform/kafka/consumer"
	"consent-ledger/internal/platform/kafka/producer"
	"consent-ledger/pkg/testutil/containers"
)

type recordingHandler struct {
	mu       sync.Mutex
	messages []*consumer.Message
	failKey  string
}

func (h *recordingHandler) Handle(_ context.Context, msg *consumer.Message) error {
	if string(msg.Key) == h.failKey {
		return errors.New("rejected")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

type KafkaIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestKafkaIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaIntegrationSuite))
}

func (s *KafkaIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())
	cfg := kafka.DefaultProducerConfig(kafka.ParseBrokers(s.kafka.Brokers))
	cfg.DeliveryTimeout = 10 * time.Second
	p, err := producer.New(cfg, nil)
	s.Require().NoError(err)
	s.producer = p
}

func (s *KafkaIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close(context.Background())
	}
}

func (s *KafkaIntegrationSuite) TestProducerHealth() {
	s.NoError(s.producer.Health(context.Background()))
}

func (s *KafkaIntegrationSuite) TestRoundTripWithHeaders() {
	ctx := context.Background()
	topic := fmt.Sprintf("ledger-events-%d", time.Now().UnixNano())

	for i := range 3 {
		s.Require().NoError(s.producer.Produce(ctx, &producer.Message{
			Topic:   topic,
			Key:     fmt.Appendf(nil, "key-%d", i),
			Value:   []byte(`{"action":"consent_granted"}`),
			Headers: map[string]string{"action": "consent_granted"},
		}))
	}

	handler := &recordingHandler{failKey: "key-1"}
	c, err := consumer.New(kafka.DefaultConsumerConfig(kafka.ParseBrokers(s.kafka.Brokers), "ingest-"+topic, topic), handler, nil)
	s.Require().NoError(err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- c.Run(runCtx) }()

	s.Eventually(func() bool { return handler.count() == 2 }, 15*time.Second, 100*time.Millisecond)
	cancel()
	s.NoError(<-done)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	s.Equal("consent_granted", handler.messages[0].Headers["action"])
	s.Equal(topic, handler.messages[0].Topic)
}

func (s *KafkaIntegrationSuite) TestAdminProvisionsTopic() {
	ctx := context.Background()
	admin, err := kafka.NewAdmin(kafka.ParseBrokers(s.kafka.Brokers))
	s.Require().NoError(err)
	defer admin.Close()

	s.NoError(admin.Check(ctx))

	topic := fmt.Sprintf("ledger-provisioned-%d", time.Now().UnixNano())
	s.NoError(admin.EnsureTopic(ctx, topic))
	s.NoError(admin.EnsureTopic(ctx, topic), "existing topic is accepted")
}
